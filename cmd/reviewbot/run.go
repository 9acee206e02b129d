package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/premierreview/reviewbot/internal/api"
	"github.com/premierreview/reviewbot/internal/assistant"
	"github.com/premierreview/reviewbot/internal/flow"
	"github.com/premierreview/reviewbot/internal/genai"
	"github.com/premierreview/reviewbot/internal/lockfile"
	"github.com/premierreview/reviewbot/internal/messaging"
	"github.com/premierreview/reviewbot/internal/persuasion"
	"github.com/premierreview/reviewbot/internal/pipeline"
	"github.com/premierreview/reviewbot/internal/questions"
	"github.com/premierreview/reviewbot/internal/reengage"
	"github.com/premierreview/reviewbot/internal/scheduler"
)

const shutdownTimeout = 15 * time.Second

// run wires every component and blocks until SIGINT or SIGTERM.
func run(flags Flags) error {
	lock, err := lockfile.Acquire(flags.stateDir)
	if err != nil {
		return err
	}
	defer lock.Release()

	st, err := openStore(flags)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	chat, err := genai.NewClient(buildGenAIOptions(flags, flags.OpenAIModel)...)
	if err != nil {
		return fmt.Errorf("failed to create chat client: %w", err)
	}
	grader, err := genai.NewClient(buildGenAIOptions(flags, flags.GradingModel)...)
	if err != nil {
		return fmt.Errorf("failed to create grading client: %w", err)
	}
	ai := assistant.NewLLMBackend(chat, st, assistant.WithGrader(grader))

	gw, err := messaging.NewGraphGateway(st, buildGraphOptions(flags)...)
	if err != nil {
		return fmt.Errorf("failed to create Messenger gateway: %w", err)
	}

	router := flow.NewRegistry(flow.Deps{
		Store:      st,
		AI:         ai,
		Persuasion: persuasion.New(flags.WebsiteURL),
	})
	pipe := pipeline.New(st, router, ai, gw, buildPipelineOptions(flags)...)

	// Workers get their own context so Stop can drain after the signal fires.
	workCtx, cancelWork := context.WithCancel(context.Background())
	defer cancelWork()
	dispatcher := pipeline.NewDispatcher(pipe, st,
		pipeline.WithWorkers(flags.workers),
		pipeline.WithQueueSize(flags.QueueSize))
	dispatcher.Start(workCtx)

	sweeper := reengage.NewSweeper(st, ai, gw)
	sched := scheduler.NewScheduler()
	err = sched.AddContextJob(workCtx, "reengage-sweep", flags.reengageSchedule, func(ctx context.Context) error {
		_, err := sweeper.RunSweep(ctx)
		return err
	})
	if err != nil {
		sched.Stop()
		dispatcher.Stop()
		return fmt.Errorf("invalid re-engagement schedule %q: %w", flags.reengageSchedule, err)
	}

	apiOpts := append(buildAPIOptions(flags), api.WithSweep(func(ctx context.Context) (int, error) {
		report, err := sweeper.RunSweep(ctx)
		return report.Sent, err
	}))
	server := api.NewServer(dispatcher, st, apiOpts...)

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() { serveErr <- server.Start() }()

	select {
	case <-sigCtx.Done():
		slog.Info("Shutdown signal received")
	case err = <-serveErr:
		if err != nil {
			slog.Error("HTTP server stopped", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
		slog.Warn("HTTP shutdown incomplete", "error", shutdownErr)
	}
	dispatcher.Stop()
	sched.Stop()
	return err
}

// runImport loads a questions export into the configured store.
func runImport(flags Flags) error {
	f, err := os.Open(flags.importQuestions)
	if err != nil {
		return err
	}
	defer f.Close()

	st, err := openStore(flags)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	res, err := questions.Import(context.Background(), st, f)
	if err != nil {
		return err
	}
	for _, s := range res.Skipped {
		slog.Warn("Skipped question", "course", s.Entry.CourseName, "reason", s.Reason)
	}
	fmt.Printf("Import complete. Imported: %d, Skipped: %d\n", res.Imported, len(res.Skipped))
	return nil
}
