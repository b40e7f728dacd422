// Package i18n renders the locale-templated translation system prompt
// consumed by orchestrator.SystemPromptBuilder (§11 "Translation"). It is
// a small locale-name lookup, not a general i18n/CLDR layer.
package i18n

import "fmt"

// localeNames maps a short language code to its display name, the same
// shape as the original's locale-name dict.
var localeNames = map[string]string{
	"en": "English",
	"es": "Spanish",
	"fr": "French",
	"de": "German",
	"it": "Italian",
	"pt": "Portuguese",
	"ja": "Japanese",
	"ko": "Korean",
	"zh": "Chinese",
	"ru": "Russian",
	"ar": "Arabic",
	"hi": "Hindi",
}

// DisplayName returns the human-readable name for a locale code,
// falling back to the code itself for one not in the table.
func DisplayName(code string) string {
	if name, ok := localeNames[code]; ok {
		return name
	}
	return code
}

// TranslationPrompt builds the system prompt for a stateless translation
// request (§4.5 "Translation is a specialization of AIT_POST"): a direct
// instruction naming both languages by their display name, with no
// narration or commentary.
func TranslationPrompt(sourceLanguage, targetLanguage string) string {
	return fmt.Sprintf(
		"Translate the user's message from %s to %s. Respond with only the translation, no commentary, no quotation marks.",
		DisplayName(sourceLanguage), DisplayName(targetLanguage),
	)
}
