// Command aitalkmaster starts the multi-session conversational
// orchestration service: HTTP ingress, the two C4 job queues, the
// domain Store, and either Mode A direct MP3 streaming or Mode B
// broadcaster hand-off, selected by configuration.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/lokutor-ai/aitalkmaster/pkg/audio"
	"github.com/lokutor-ai/aitalkmaster/pkg/broadcaster"
	"github.com/lokutor-ai/aitalkmaster/pkg/config"
	"github.com/lokutor-ai/aitalkmaster/pkg/filestore"
	"github.com/lokutor-ai/aitalkmaster/pkg/httpapi"
	"github.com/lokutor-ai/aitalkmaster/pkg/i18n"
	"github.com/lokutor-ai/aitalkmaster/pkg/logging"
	"github.com/lokutor-ai/aitalkmaster/pkg/orchestrator"
	"github.com/lokutor-ai/aitalkmaster/pkg/providers"
	"github.com/lokutor-ai/aitalkmaster/pkg/queue"
	"github.com/lokutor-ai/aitalkmaster/pkg/ratelimit"
	"github.com/lokutor-ai/aitalkmaster/pkg/reaper"
	"github.com/lokutor-ai/aitalkmaster/pkg/stream"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("note: no .env file found, using system environment variables")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	zapLogger, syncLogger, err := logging.NewZap(cfg.Server.LogFile)
	if err != nil {
		log.Fatalf("logging: %v", err)
	}
	defer syncLogger()
	var appLogger orchestrator.Logger = zapLogger

	if err := run(cfg, appLogger); err != nil {
		appLogger.Error("fatal startup error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger orchestrator.Logger) error {
	chatProvider, err := providers.NewChatProvider(cfg.ChatClient)
	if err != nil {
		return err
	}
	if llmLogPath := cfg.Aitalkmaster.LLMLogFile; llmLogPath != "" {
		llmLog, err := logging.NewLLMLog(llmLogPath)
		if err != nil {
			return err
		}
		defer llmLog.Close()
		chatProvider = providers.NewLoggingChatProvider(chatProvider, llmLog)
	}

	ttsProvider, err := providers.NewTTSProvider(cfg.AudioClient)
	if err != nil {
		return err
	}

	audioRoot := cfg.Aitalkmaster.AudioRoot
	if audioRoot == "" {
		audioRoot = "data/audio"
	}
	files := filestore.New(audioRoot)
	audioProcessor := audio.New(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Mode B (broadcaster hand-off) wires an external mount controller
	// into the Store; Mode A (direct streaming) keeps the Store free of
	// any mount concept and serves listeners from pkg/stream instead
	// (§4.6).
	var mountController orchestrator.MountController
	var mountStopper reaper.MountStopper
	var listenerCounter reaper.ListenerCounter
	var streamNotifier orchestrator.StreamNotifier
	broadcastMode := cfg.BroadcasterControl != nil

	if broadcastMode {
		ctrl := broadcaster.NewController(cfg.BroadcasterControl.Host, cfg.BroadcasterControl.HTTPPort, logger)
		mountController = ctrl
		mountStopper = ctrl
		streamNotifier = ctrl
		if cfg.AdminStats != nil {
			listenerCounter = broadcaster.NewStatsClient(
				cfg.AdminStats.Host, cfg.AdminStats.Port,
				cfg.AdminStats.AdminUser, cfg.AdminStats.AdminPassword,
				cfg.AdminStats.StreamEndpointPrefix,
			)
		}
	}

	store := orchestrator.NewStore(files, mountController, logger, 0, 0)

	var streamHandler httpapi.StreamHandler
	if !broadcastMode {
		fillerDir := cfg.Aitalkmaster.FillerAudioDir
		if fillerDir == "" {
			return orchestrator.Newf(orchestrator.Fatal, "aitalkmaster.filler_audio_dir is required without broadcaster_control")
		}
		fillerPool, err := stream.LoadFillerPool(fillerDir, time.Now().UnixNano())
		if err != nil {
			return err
		}
		streamSrv := stream.NewServer(store, stream.DiskFileOpener{Active: files, Filler: fillerPool}, audioProcessor)
		streamNotifier = streamSrv
		streamHandler = streamSrv
		listenerCounter = streamSrv
	}

	limiter := ratelimit.New(cfg.Server.Usage.RateLimitPerDay)

	pipeline := orchestrator.NewPipeline(
		store, chatProvider, ttsProvider, files, audioProcessor,
		limiter, streamNotifier, logger, cfg.Server.Usage.AudioCostPerSecond,
	)

	msgQueue := queue.New(ctx, "message", 256, cfg.Server.NumWorkers, logger)
	audioQueue := queue.New(ctx, "audio", 256, cfg.Server.NumAudioWorkers, logger)

	ipPolicy := ratelimit.IPPolicy{UseForwardedFor: cfg.Server.Usage.RateLimitXForwardedFor}

	var quota httpapi.Quota
	if cfg.Server.Usage.UseRateLimit {
		quota = limiter
	}

	srv := httpapi.NewServer(
		store, pipeline, cfg.ChatClient, cfg.AudioClient,
		quota, ipPolicy,
		enqueueFunc(msgQueue), enqueueFunc(audioQueue),
		streamHandler, i18n.TranslationPrompt, logger,
	)

	if listenerCounter != nil {
		r := reaper.New(store, listenerCounter, mountStopper, files, logger, cfg.Aitalkmaster.JoinKeyKeepAliveList)
		go r.Run(ctx)
	}

	host := cfg.Server.Host
	if host == "" {
		host = "0.0.0.0"
	}
	port := cfg.Server.Port
	if port == 0 {
		port = 8080
	}
	httpSrv := &http.Server{Addr: host + ":" + strconv.Itoa(port), Handler: srv.Router()}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		shutdownAll(shutdownCtx, httpSrv, store, mountController, msgQueue, audioQueue, logger)
	}()

	logger.Info("aitalkmaster listening", "addr", httpSrv.Addr)
	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return orchestrator.Newf(orchestrator.Fatal, "http server: %w", err)
	}
	return nil
}

// enqueueFunc adapts a *queue.Queue to the context-less enqueue closure
// httpapi.NewServer takes — every pipeline call already carries its own
// context from the request.
func enqueueFunc(q *queue.Queue) func(kind, clientIP string, handler func() error) error {
	return func(kind, clientIP string, handler func() error) error {
		return q.Enqueue(queue.Job{
			Kind:     kind,
			ClientIP: clientIP,
			Handler:  func(context.Context) error { return handler() },
		})
	}
}

// shutdownAll runs the shutdown sequence (§9 Design Notes): stop
// accepting connections, drain both job queues, then reset every live
// session so its files are archived and, in Mode B, stop its mount
// (Store.Reset itself leaves mounts running).
func shutdownAll(ctx context.Context, httpSrv *http.Server, store *orchestrator.Store, mounts orchestrator.MountController, msgQueue, audioQueue *queue.Queue, logger orchestrator.Logger) {
	if err := httpSrv.Shutdown(ctx); err != nil {
		logger.Warn("http shutdown failed", "error", err)
	}
	if err := msgQueue.Drain(ctx); err != nil {
		logger.Warn("message queue drain failed", "error", err)
	}
	if err := audioQueue.Drain(ctx); err != nil {
		logger.Warn("audio queue drain failed", "error", err)
	}
	for joinKey := range store.Sessions() {
		if err := store.Reset(joinKey); err != nil {
			logger.Warn("shutdown reset failed", "join_key", joinKey, "error", err)
		}
		if mounts != nil {
			if err := mounts.StopMount(joinKey); err != nil {
				logger.Warn("shutdown stop mount failed", "join_key", joinKey, "error", err)
			}
		}
	}
}
