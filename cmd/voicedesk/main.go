package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/openai/openai-go/v3/option"

	"github.com/knolabs/voicedesk/pkg/agent/config"
	"github.com/knolabs/voicedesk/pkg/agent/metrics"
	"github.com/knolabs/voicedesk/pkg/agent/session"
	"github.com/knolabs/voicedesk/pkg/agent/sessions"
	"github.com/knolabs/voicedesk/pkg/agent/tools"
	"github.com/knolabs/voicedesk/pkg/crm"
	"github.com/knolabs/voicedesk/pkg/llm"
	"github.com/knolabs/voicedesk/pkg/room"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	if err := run(context.Background(), logger); err != nil {
		logger.Error("voicedesk exited with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	_ = godotenv.Load(".env.local")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	m := metrics.New("voicedesk")
	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr, m, logger)
	}

	crmClient := crm.NewClient(crm.Endpoints{
		Token:            cfg.APIToken,
		CandidateURL:     cfg.CandidateURL,
		InterviewURL:     cfg.InterviewURL,
		ContactLookupURL: cfg.ContactLookupURL,
		WebhookURL:       cfg.WebhookURL,
	}, &http.Client{Timeout: cfg.HTTPTimeout})

	registry, err := buildRegistry(crmClient, cfg.BookedTag, logger)
	if err != nil {
		return fmt.Errorf("build tool registry: %w", err)
	}
	executor := tools.NewExecutor(registry, logger, m, cfg.HTTPTimeout)
	logger.Info("tools registered", "tools", registry.Names())

	var deciderOpts []option.RequestOption
	if base := os.Getenv("OPENAI_BASE_URL"); base != "" {
		deciderOpts = append(deciderOpts, option.WithBaseURL(base))
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		deciderOpts = append(deciderOpts, option.WithAPIKey(key))
	}
	decider := llm.NewOpenAI(cfg.Model, deciderOpts...)

	roomConn, err := room.Dial(ctx, cfg.RoomURL, room.Options{Token: cfg.RoomToken, Logger: logger})
	if err != nil {
		return fmt.Errorf("connect room: %w", err)
	}
	logger.Info("connected to room", "url", cfg.RoomURL)

	sess, err := session.New(session.Dependencies{
		Room:     roomConn,
		Decider:  decider,
		Executor: executor,
		Registry: registry,
		Logger:   logger,
		Metrics:  m,
		Config: session.Config{
			SystemPrompt:         cfg.SystemPrompt,
			Greeting:             cfg.Greeting,
			FollowUpDelay:        cfg.FollowUpDelay,
			FollowUpTool:         tools.ToolCheckStatus,
			LivenessInterval:     cfg.LivenessInterval,
			MaxModelCallsPerTurn: cfg.MaxModelCallsPerTurn,
		},
	})
	if err != nil {
		return fmt.Errorf("build session: %w", err)
	}

	tracker := sessions.NewTracker()
	unregister := tracker.Register(sess.ID(), sessions.Handle{Cancel: sess.Cancel})

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("shutting down", "signal", sig.String())
			tracker.CancelAll()
			cancel()
		case <-runCtx.Done():
		}
	}()

	err = sess.Run(runCtx)
	unregister()

	sweepCtx, sweepCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer sweepCancel()
	tracker.Wait(sweepCtx)

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func buildRegistry(crmClient *crm.Client, bookedTag string, logger *slog.Logger) (*tools.Registry, error) {
	registry := tools.NewRegistry()
	handlers := []tools.Handler{
		&tools.SaveCandidate{CRM: crmClient, Logger: logger},
		&tools.ScheduleInterview{CRM: crmClient, Logger: logger},
		&tools.RecordScreeningAnswers{Logger: logger},
		&tools.BookAppointment{CRM: crmClient, Logger: logger},
		&tools.CheckStatus{CRM: crmClient, BookedTag: bookedTag, Logger: logger},
	}
	for _, h := range handlers {
		if err := registry.Register(h); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

func serveMetrics(addr string, m *metrics.Metrics, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	logger.Info("serving metrics", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("metrics server failed", "error", err)
	}
}
