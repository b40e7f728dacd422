package orchestrator

import "testing"

func TestConversationDuplicateMessageID(t *testing.T) {
	c := NewConversation("gpt-4o", "be concise", nil)
	if err := c.AddMessage("m1", "hello"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := c.AddMessage("m1", "hello again"); err == nil {
		t.Fatal("expected duplicate message_id to be rejected")
	} else if KindOf(err) != InvalidInput {
		t.Errorf("expected InvalidInput, got %v", KindOf(err))
	}
}

func TestConversationDialogOrdering(t *testing.T) {
	c := NewConversation("gpt-4o", "", nil)
	c.AddMessage("m1", "hi")
	c.AppendReply("m1", "hello there")
	c.AddMessage("m2", "how are you")

	dialog := c.Dialog()
	if len(dialog) != 3 {
		t.Fatalf("expected 3 dialog entries, got %d", len(dialog))
	}
	if dialog[0].Content != "hi" || dialog[1].Content != "hello there" || dialog[2].Content != "how are you" {
		t.Errorf("unexpected dialog order: %+v", dialog)
	}
}

func TestConversationReplyFor(t *testing.T) {
	c := NewConversation("gpt-4o", "", nil)
	c.AddMessage("m1", "hi")
	if _, ok := c.ReplyFor("m1"); ok {
		t.Fatal("expected no reply yet")
	}
	c.AppendReply("m1", "hello")
	text, ok := c.ReplyFor("m1")
	if !ok || text != "hello" {
		t.Fatalf("expected reply 'hello', got %q ok=%v", text, ok)
	}
}

func TestConversationKeyUnique(t *testing.T) {
	a := NewConversation("", "", nil)
	b := NewConversation("", "", nil)
	if a.Key == b.Key {
		t.Error("expected distinct UUID keys")
	}
}
