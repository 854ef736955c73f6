package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/finxai/xai/internal/artifact"
	"github.com/finxai/xai/internal/attribution"
	"github.com/finxai/xai/internal/cache"
	"github.com/finxai/xai/internal/joblog"
	"github.com/finxai/xai/internal/jobs"
	"github.com/finxai/xai/internal/models"
	"github.com/finxai/xai/internal/orchestration"
	"github.com/finxai/xai/internal/projectconfig"
	"github.com/finxai/xai/internal/telemetry"
	"github.com/finxai/xai/internal/utils"
)

// app is the fully wired explanation engine used by every command.
type app struct {
	cfg       *projectconfig.ProjectConfig
	store     artifact.Store
	orch      *orchestration.Orchestrator
	telemetry *telemetry.Metrics
	jobLog    joblog.Recorder
}

// newArtifactStore builds the configured backend, wrapped in a circuit
// breaker when enabled. The breaker only guards the remote backend.
func newArtifactStore(cfg *projectconfig.ProjectConfig, m *telemetry.Metrics) (artifact.Store, error) {
	artifactDir, _ := cfg.Paths()
	switch cfg.Artifacts.Backend {
	case "file":
		return artifact.NewFileStore(artifactDir), nil
	case "azblob":
		blob, err := artifact.NewBlobStore(artifact.BlobConfig{
			AccountURL: cfg.Artifacts.AzBlob.AccountURL,
			Container:  cfg.Artifacts.AzBlob.Container,
			Prefix:     cfg.Artifacts.AzBlob.Prefix,
		})
		if err != nil {
			return nil, err
		}
		if b := cfg.Artifacts.Breaker; b.Enabled == nil || *b.Enabled {
			bc := artifact.BreakerConfig{
				MaxFailures: uint32(max(0, b.MaxFailures)),
				OpenTimeout: b.OpenTimeout.Std(),
			}
			if m != nil {
				bc.OnStateChange = m.ObserveBreaker
			}
			return artifact.WithBreaker("azblob", blob, bc), nil
		}
		return blob, nil
	}
	return nil, fmt.Errorf("unknown artifact backend %q", cfg.Artifacts.Backend)
}

func newJobStore(ctx context.Context, cfg *projectconfig.ProjectConfig) (jobs.Store, error) {
	ttl := cfg.Jobs.Redis.TTL.Std()
	switch cfg.Jobs.Store {
	case "memory":
		return jobs.NewMemoryStore(ttl), nil
	case "redis":
		return jobs.NewRedisStore(ctx, jobs.RedisOptions{
			Addr:     cfg.Jobs.Redis.Addr,
			Password: cfg.Jobs.Redis.Password,
			DB:       cfg.Jobs.Redis.DB,
			TTL:      ttl,
		})
	}
	return nil, fmt.Errorf("unknown job store %q", cfg.Jobs.Store)
}

// newApp wires configuration into an orchestrator. store overrides the
// configured artifact backend when non-nil.
func newApp(ctx context.Context, cfg *projectconfig.ProjectConfig, store artifact.Store, withMetrics bool) (*app, error) {
	logger := slog.Default()
	var m *telemetry.Metrics
	if withMetrics {
		m = telemetry.New()
	}

	if store == nil {
		var err error
		if store, err = newArtifactStore(cfg, m); err != nil {
			return nil, err
		}
	}
	memo := artifact.Memoize(store)

	build, err := cfg.BuildConfig()
	if err != nil {
		return nil, err
	}
	cacheOpts := []cache.Option{
		cache.WithBuildTimeout(cfg.Engine.BuildTimeout.Std()),
		cache.WithLogger(logger),
	}
	if m != nil {
		cacheOpts = append(cacheOpts, cache.WithObserver(m.CacheObserver()))
	}
	explainers := cache.New(func(ctx context.Context, modelID string, method models.Method) (*attribution.State, error) {
		return attribution.NewState(ctx, memo, modelID, method, build)
	}, cacheOpts...)

	engine := attribution.NewEngine(explainers,
		attribution.WithSeed(build.Seed),
		attribution.WithDefaultSampleSize(cfg.Engine.GlobalSampleSize),
		attribution.WithWorkers(cfg.Engine.GlobalWorkers),
		attribution.WithLogger(logger),
	)

	jobStore, err := newJobStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	jobLog := joblog.Discard
	if path := cfg.EventLogPath(); path != "" {
		f, err := joblog.OpenFile(path)
		if err != nil {
			return nil, err
		}
		jobLog = f
	}

	opts := []orchestration.Option{
		orchestration.WithConfig(orchestration.Config{
			LocalTimeout:   cfg.Engine.LocalTimeout.Std(),
			Quality:        cfg.QualityOptions(),
			Performance:    cfg.PerformanceOptions(),
			Interpretation: cfg.InterpretationOptions(),
		}),
		orchestration.WithJobStore(jobStore),
		orchestration.WithQueueOptions(
			jobs.WithWorkers(cfg.Jobs.Workers),
			jobs.WithQueueSize(cfg.Jobs.QueueSize),
			jobs.WithListener(utils.JobEventToSlog),
			jobs.WithListener(joblog.Listener(jobLog, logger)),
		),
		orchestration.WithArtifactMemo(memo),
		orchestration.WithLogger(logger),
	}
	if _, resultsDir := cfg.Paths(); resultsDir != "" {
		opts = append(opts, orchestration.WithResultCache(cache.NewResultCache(resultsDir)))
	}
	if m != nil {
		opts = append(opts, orchestration.WithMetrics(m))
	}

	return &app{
		cfg:       cfg,
		store:     store,
		orch:      orchestration.New(engine, explainers, memo, opts...),
		telemetry: m,
		jobLog:    jobLog,
	}, nil
}

// Close drains the job queue before closing the job log so the final
// transitions are recorded.
func (a *app) Close() {
	a.orch.Close()
	if err := a.jobLog.Close(); err != nil {
		slog.Warn("closing job log", "error", err)
	}
}
