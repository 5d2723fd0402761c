package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ent0n29/novagate/internal/analytics"
	"github.com/ent0n29/novagate/internal/config"
	"github.com/ent0n29/novagate/internal/httpapi"
	"github.com/ent0n29/novagate/internal/knowledge"
	"github.com/ent0n29/novagate/internal/nova"
	"github.com/ent0n29/novagate/internal/observability"
	"github.com/ent0n29/novagate/internal/tools"
	"github.com/ent0n29/novagate/internal/transport/bedrockstream"
	"github.com/ent0n29/novagate/internal/transport/loopback"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	ctx := context.Background()
	store, err := analytics.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("analytics store init failed: %v", err)
	}
	defer store.Close()

	kb, err := knowledge.NewManager(cfg.DataDir)
	if err != nil {
		log.Fatalf("knowledge base init failed: %v", err)
	}

	transport := selectTransport(ctx, cfg)

	registry := tools.Default(tools.NewReservationStore())

	manager := nova.NewManager(nova.Config{
		Inference: nova.InferenceConfig{
			MaxTokens:   cfg.MaxTokens,
			TopP:        cfg.TopP,
			Temperature: cfg.Temperature,
		},
		AudioQueueCapacity: cfg.AudioQueueCapacity,
		InactivityTimeout:  cfg.SessionInactivityTimeout,
		ReaperInterval:     cfg.ReaperInterval,
	}, transport, registry, metrics)

	api := httpapi.New(cfg, manager, store, kb, metrics)
	manager.SetCloseHook(api.OnSessionClosed)

	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()
	manager.StartReaper(runCtx)

	go func() {
		log.Printf("server listening on %s", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("shutdown signal received")

	runCancel()
	manager.CloseAll()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = httpServer.Close()
	}

	log.Printf("shutdown complete")
}

// selectTransport picks the model stream backend. "auto" prefers Bedrock and
// drops to the loopback echo when the AWS client cannot be built, so the
// service still runs on a laptop with no credentials.
func selectTransport(ctx context.Context, cfg config.Config) nova.Transport {
	mode := strings.ToLower(strings.TrimSpace(cfg.Transport))
	if mode == "" {
		mode = "auto"
	}

	tryBedrock := func(fatal bool) nova.Transport {
		t, err := bedrockstream.New(ctx, bedrockstream.Config{
			Region:          cfg.AWSRegion,
			ModelID:         cfg.BedrockModelID,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
			SessionToken:    cfg.AWSSessionToken,
		})
		if err != nil {
			if fatal {
				log.Fatalf("bedrock transport init failed: %v", err)
			}
			log.Printf("bedrock transport unavailable: %v", err)
			return nil
		}
		log.Printf("transport: bedrock (%s, %s)", cfg.AWSRegion, cfg.BedrockModelID)
		return t
	}

	switch mode {
	case "bedrock":
		return tryBedrock(true)
	case "loopback":
		log.Printf("transport: loopback echo")
		return loopback.New()
	default: // auto
		if t := tryBedrock(false); t != nil {
			return t
		}
		log.Printf("transport: loopback echo (bedrock unavailable)")
		return loopback.New()
	}
}
