package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"transcript-insights-go/internal/artifact"
	"transcript-insights-go/internal/assets"
	"transcript-insights-go/internal/config"
	"transcript-insights-go/internal/events"
	"transcript-insights-go/internal/extractor"
	"transcript-insights-go/internal/logger"
	"transcript-insights-go/internal/metrics"
	"transcript-insights-go/internal/pipeline"
	"transcript-insights-go/internal/store"
	"transcript-insights-go/internal/synthesis"
	"transcript-insights-go/internal/transcription"
	"transcript-insights-go/internal/types"
	"transcript-insights-go/internal/watcher"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		logger.New().WithError(err).Fatal("failed to load config")
	}
	logger.Configure(logger.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format})

	log := logger.New()
	log.WithField("service", "transcript-insights-go").Info("starting service")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		log.WithError(err).Fatal("failed to open store")
	}
	defer st.Close()
	log.WithField("driver", cfg.Store.Driver).Info("store ready")

	m := metrics.NewDefault()
	pub := events.New(&cfg.Kafka, m)
	defer pub.Close()

	policy := cfg.Retry
	policy.OnRetry = func(op string, _ error, _ time.Duration) { m.RecordRetry(op) }
	opts := cfg.ExtractorOptions()
	opts.Retry = policy

	orch := pipeline.New(pipeline.Config{
		Concurrency:    cfg.Pipeline.Concurrency,
		Strategy:       cfg.Pipeline.Strategy,
		DefaultPersona: cfg.Pipeline.Persona,
		Segmentation:   cfg.Segmentation,
		Quiz:           cfg.Quiz,
		Synthesis: synthesis.Config{
			DirectMax: cfg.Pipeline.DirectSynthesisMax,
			ChunkSize: cfg.Pipeline.MapChunkSize,
		},
	}, pipeline.Deps{
		Store:  st,
		Suites: func(p extractor.Persona) *extractor.Suite { return extractor.NewSuite(p, opts) },
		Transcriber: transcription.New(transcription.Config{
			URL:          cfg.Transcription.URL,
			PollInterval: cfg.Transcription.PollInterval,
			PollTimeout:  cfg.Transcription.PollTimeout,
			Mock:         cfg.Transcription.Mock,
			Retry:        policy,
		}),
		Artifacts: artifact.Local{Root: cfg.Assets.ArtifactDir},
		Events:    pub,
		Metrics:   m,
		Assets:    assets.Writer{Dir: cfg.Assets.OutputDir},
	})

	// jobs outlive their request but not the process
	runner := &runner{orch: orch, ctx: ctx, log: logger.Component("runner")}

	if cfg.Inbox.Enabled {
		w, err := watcher.New(cfg.Inbox.Dir, inboxHandler(runner, cfg), cfg.Inbox.MaxConcurrent)
		if err != nil {
			log.WithError(err).Fatal("failed to start inbox watcher")
		}
		defer w.Stop()
		go func() {
			if err := w.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.WithError(err).Error("inbox watcher stopped")
			}
		}()
	}

	app := &server{store: st, runner: runner, personaDefault: cfg.Pipeline.Persona}
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      app.routes(m),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.WithField("addr", srv.Addr).Info("listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server terminated")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("server shutdown")
	}
	runner.wait()
	log.Info("service stopped")
}

// runner executes jobs in the background, tracking them for shutdown.
type runner struct {
	orch *pipeline.Orchestrator
	ctx  context.Context
	wg   sync.WaitGroup
	log  *logger.Logger
}

func (r *runner) submit(ctx context.Context, job *types.Job) error {
	if err := r.orch.Submit(ctx, job); err != nil {
		return err
	}
	r.start(job.ID)
	return nil
}

func (r *runner) start(ids ...string) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for _, id := range ids {
			if _, err := r.orch.Run(r.ctx, id); err != nil {
				r.log.WithJob(id).WithError(err).Warn("job did not complete")
			}
		}
	}()
}

func (r *runner) wait() { r.wg.Wait() }

// inboxHandler submits an inbox file and runs it to completion, so the
// watcher's semaphore bounds concurrent inbox jobs.
func inboxHandler(r *runner, cfg *config.Config) watcher.Handler {
	return func(ctx context.Context, path string) error {
		job, err := watcher.JobFromFile(path, cfg.Pipeline.Persona)
		if err != nil {
			return err
		}
		job.ArtifactPath = artifactPath(cfg.Assets.ArtifactDir, path)
		if err := r.orch.Submit(ctx, job); err != nil {
			return err
		}
		_, err = r.orch.Run(ctx, job.ID)
		return err
	}
}

// artifactPath makes path relative to the artifact root. Files outside
// the root are not owned by the service and are never deleted.
func artifactPath(root, path string) string {
	if root == "" {
		return path
	}
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return ""
	}
	return rel
}
