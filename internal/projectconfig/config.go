// Package projectconfig provides the ProjectConfig struct and loader for
// .xai.yaml project-level configuration files.
package projectconfig

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/finxai/xai/internal/attribution"
	"github.com/finxai/xai/internal/interpretation"
	"github.com/finxai/xai/internal/metrics"
	"github.com/finxai/xai/internal/utils"
	"github.com/finxai/xai/internal/validation"
	"gopkg.in/yaml.v3"
)

// FileName is the configuration file looked up by Load.
const FileName = ".xai.yaml"

// Default values for project configuration. New() references them and no
// other code should duplicate them.
const (
	DefaultArtifactBackend = "file"
	DefaultArtifactDir     = "artifacts/"
	DefaultCompression     = "none"

	DefaultBreakerMaxFailures = 3
	DefaultBreakerOpenTimeout = 30 * time.Second

	DefaultBackgroundSize   = 100
	DefaultGlobalSampleSize = attribution.DefaultSampleSize
	DefaultGlobalWorkers    = attribution.DefaultWorkers
	DefaultSeed             = attribution.DefaultSeed
	DefaultLocalTimeout     = 30 * time.Second
	DefaultBuildTimeout     = 2 * time.Minute

	DefaultJobWorkers   = 2
	DefaultJobQueueSize = 64
	DefaultJobStore     = "memory"
	DefaultRedisAddr    = "localhost:6379"
	DefaultJobTTL       = time.Hour

	DefaultResultsDir = ".xai-cache"

	DefaultServerPort = 8080
)

// Duration is a time.Duration written as a Go duration string ("30s").
type Duration time.Duration

func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	var s string
	if err := n.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", n.Line, err)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// AzBlobConfig locates artifacts in Azure Blob Storage.
type AzBlobConfig struct {
	AccountURL string `yaml:"account_url,omitempty"`
	Container  string `yaml:"container,omitempty"`
	Prefix     string `yaml:"prefix,omitempty"`
}

// BreakerConfig guards a remote artifact backend.
type BreakerConfig struct {
	Enabled     *bool    `yaml:"enabled,omitempty"`
	MaxFailures int      `yaml:"max_failures,omitempty"`
	OpenTimeout Duration `yaml:"open_timeout,omitempty"`
}

// ArtifactsConfig selects the artifact store backend.
type ArtifactsConfig struct {
	Backend     string        `yaml:"backend,omitempty"`
	Dir         string        `yaml:"dir,omitempty"`
	Compression string        `yaml:"compression,omitempty"`
	AzBlob      AzBlobConfig  `yaml:"azblob,omitempty"`
	Breaker     BreakerConfig `yaml:"breaker,omitempty"`
}

// EngineConfig holds explainer cache and attribution engine settings.
type EngineConfig struct {
	BackgroundSize   int      `yaml:"background_size,omitempty"`
	GlobalSampleSize int      `yaml:"global_sample_size,omitempty"`
	GlobalWorkers    int      `yaml:"global_workers,omitempty"`
	Seed             *int64   `yaml:"seed,omitempty"`
	LocalTimeout     Duration `yaml:"local_timeout,omitempty"`
	BuildTimeout     Duration `yaml:"build_timeout,omitempty"`
}

// QualityConfig holds explanation quality metric settings.
type QualityConfig struct {
	TopKFraction     float64 `yaml:"top_k_fraction,omitempty"`
	Baseline         string  `yaml:"baseline,omitempty"`
	NoiseScale       float64 `yaml:"noise_scale,omitempty"`
	RobustnessTrials int     `yaml:"robustness_trials,omitempty"`
}

// PerformanceConfig holds classifier evaluation settings.
type PerformanceConfig struct {
	Threshold       float64 `yaml:"threshold,omitempty"`
	CalibrationBins int     `yaml:"calibration_bins,omitempty"`
}

// InterpretationConfig holds the rule-based interpretation cutoffs.
type InterpretationConfig struct {
	TopFeatures    int     `yaml:"top_features,omitempty"`
	StrongCutoff   float64 `yaml:"strong_cutoff,omitempty"`
	ModerateCutoff float64 `yaml:"moderate_cutoff,omitempty"`
}

// RedisConfig locates the Redis job store.
type RedisConfig struct {
	Addr     string   `yaml:"addr,omitempty"`
	Password string   `yaml:"password,omitempty"`
	DB       int      `yaml:"db,omitempty"`
	TTL      Duration `yaml:"ttl,omitempty"`
}

// JobsConfig holds async job queue settings.
type JobsConfig struct {
	Workers   int         `yaml:"workers,omitempty"`
	QueueSize int         `yaml:"queue_size,omitempty"`
	Store     string      `yaml:"store,omitempty"`
	Redis     RedisConfig `yaml:"redis,omitempty"`
	// EventLog is an NDJSON file that receives every job transition. Empty
	// disables it.
	EventLog string `yaml:"event_log,omitempty"`
}

// CacheConfig holds the on-disk global result cache settings. An empty
// ResultsDir disables it.
type CacheConfig struct {
	ResultsDir string `yaml:"results_dir,omitempty"`
}

// ServerConfig holds HTTP server settings. A zero RateLimit disables rate
// limiting.
type ServerConfig struct {
	Port      int     `yaml:"port,omitempty"`
	RateLimit float64 `yaml:"rate_limit,omitempty"`
	Burst     int     `yaml:"burst,omitempty"`
}

// ProjectConfig is the top-level configuration loaded from .xai.yaml.
type ProjectConfig struct {
	Artifacts      ArtifactsConfig           `yaml:"artifacts,omitempty"`
	Engine         EngineConfig              `yaml:"engine,omitempty"`
	Explainers     map[string]map[string]any `yaml:"explainers,omitempty"`
	Quality        QualityConfig             `yaml:"quality,omitempty"`
	Performance    PerformanceConfig         `yaml:"performance,omitempty"`
	Interpretation InterpretationConfig      `yaml:"interpretation,omitempty"`
	Jobs           JobsConfig                `yaml:"jobs,omitempty"`
	Cache          CacheConfig               `yaml:"cache,omitempty"`
	Server         ServerConfig              `yaml:"server,omitempty"`

	// Root is the directory relative paths resolve against: the directory
	// holding .xai.yaml, or the start directory when there is none.
	Root string `yaml:"-"`
}

// New returns a ProjectConfig with all hard-coded defaults populated.
func New() *ProjectConfig {
	q := metrics.DefaultQualityOptions()
	p := metrics.DefaultPerformanceOptions()
	in := interpretation.DefaultOptions()
	return &ProjectConfig{
		Artifacts: ArtifactsConfig{
			Backend:     DefaultArtifactBackend,
			Dir:         DefaultArtifactDir,
			Compression: DefaultCompression,
			Breaker: BreakerConfig{
				Enabled:     utils.Ptr(true),
				MaxFailures: DefaultBreakerMaxFailures,
				OpenTimeout: Duration(DefaultBreakerOpenTimeout),
			},
		},
		Engine: EngineConfig{
			BackgroundSize:   DefaultBackgroundSize,
			GlobalSampleSize: DefaultGlobalSampleSize,
			GlobalWorkers:    DefaultGlobalWorkers,
			Seed:             utils.Ptr(int64(DefaultSeed)),
			LocalTimeout:     Duration(DefaultLocalTimeout),
			BuildTimeout:     Duration(DefaultBuildTimeout),
		},
		Quality: QualityConfig{
			TopKFraction:     q.TopKFraction,
			Baseline:         string(q.Baseline),
			NoiseScale:       q.NoiseScale,
			RobustnessTrials: q.RobustnessTrials,
		},
		Performance: PerformanceConfig{
			Threshold:       p.Threshold,
			CalibrationBins: p.CalibrationBins,
		},
		Interpretation: InterpretationConfig{
			TopFeatures:    in.TopFeatures,
			StrongCutoff:   in.StrongCutoff,
			ModerateCutoff: in.ModerateCutoff,
		},
		Jobs: JobsConfig{
			Workers:   DefaultJobWorkers,
			QueueSize: DefaultJobQueueSize,
			Store:     DefaultJobStore,
			Redis: RedisConfig{
				Addr: DefaultRedisAddr,
				TTL:  Duration(DefaultJobTTL),
			},
		},
		Cache: CacheConfig{
			ResultsDir: DefaultResultsDir,
		},
		Server: ServerConfig{
			Port: DefaultServerPort,
		},
	}
}

// Load finds .xai.yaml by walking up from startDir (max 10 levels),
// validates it against the config schema, unmarshals it, and fills in
// missing fields with defaults. If no config file is found, returns defaults
// with a nil error. Real I/O errors (e.g. permission denied) are returned to
// the caller.
func Load(startDir string) (*ProjectConfig, error) {
	data, path, err := findConfigFile(startDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg := New() // no file found → return defaults
			cfg.Root, _ = filepath.Abs(startDir)
			return cfg, nil
		}
		return nil, fmt.Errorf("loading %s: %w", FileName, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	cfg.Root = filepath.Dir(path)
	return cfg, nil
}

// Parse validates and decodes configuration bytes over the defaults.
func Parse(data []byte) (*ProjectConfig, error) {
	if errs := validation.ValidateConfigBytes(data); len(errs) > 0 {
		return nil, fmt.Errorf("invalid %s:\n  %s", FileName, strings.Join(errs, "\n  "))
	}

	var fileCfg ProjectConfig
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", FileName, err)
	}

	cfg := New()
	mergeConfig(cfg, &fileCfg)
	if _, err := cfg.ExplainerOptions(); err != nil {
		return nil, err
	}
	if err := cfg.QualityOptions().Validate(); err != nil {
		return nil, fmt.Errorf("quality: %w", err)
	}
	if err := cfg.InterpretationOptions().Validate(); err != nil {
		return nil, fmt.Errorf("interpretation: %w", err)
	}
	return cfg, nil
}

// findConfigFile walks up from dir looking for .xai.yaml (max 10 levels).
// Returns os.ErrNotExist if no config file is found.
func findConfigFile(dir string) ([]byte, string, error) {
	// Convert to absolute path so filepath.Dir(".") walks correctly.
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, "", fmt.Errorf("resolving path %q: %w", dir, err)
	}
	dir = absDir

	for i := 0; i < 10; i++ {
		p := filepath.Join(dir, FileName)
		data, err := os.ReadFile(p)
		if err == nil {
			return data, p, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return nil, "", fmt.Errorf("reading %q: %w", p, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break // reached filesystem root
		}
		dir = parent
	}
	return nil, "", os.ErrNotExist
}

// Paths returns the artifact directory and result cache directory resolved
// against Root. An empty results directory stays empty.
func (c *ProjectConfig) Paths() (artifactDir, resultsDir string) {
	return utils.ResolvePath(c.Artifacts.Dir, c.Root), utils.ResolvePath(c.Cache.ResultsDir, c.Root)
}

// EventLogPath returns the job event log resolved against Root, or "" when
// the log is disabled.
func (c *ProjectConfig) EventLogPath() string {
	return utils.ResolvePath(c.Jobs.EventLog, c.Root)
}

// ExplainerOptions decodes the explainers section over the default options.
func (c *ProjectConfig) ExplainerOptions() (attribution.Options, error) {
	return attribution.DecodeOptions(c.Explainers)
}

// QualityOptions returns the quality metric options.
func (c *ProjectConfig) QualityOptions() metrics.QualityOptions {
	return metrics.QualityOptions{
		TopKFraction:     c.Quality.TopKFraction,
		Baseline:         metrics.Baseline(c.Quality.Baseline),
		NoiseScale:       c.Quality.NoiseScale,
		RobustnessTrials: c.Quality.RobustnessTrials,
		Seed:             c.seed(),
	}
}

// PerformanceOptions returns the classifier evaluation options.
func (c *ProjectConfig) PerformanceOptions() metrics.PerformanceOptions {
	return metrics.PerformanceOptions{
		Threshold:       c.Performance.Threshold,
		CalibrationBins: c.Performance.CalibrationBins,
	}
}

// InterpretationOptions returns the rule-based interpretation cutoffs.
func (c *ProjectConfig) InterpretationOptions() interpretation.Options {
	return interpretation.Options{
		TopFeatures:    c.Interpretation.TopFeatures,
		StrongCutoff:   c.Interpretation.StrongCutoff,
		ModerateCutoff: c.Interpretation.ModerateCutoff,
	}
}

// BuildConfig returns the explainer construction settings.
func (c *ProjectConfig) BuildConfig() (attribution.BuildConfig, error) {
	opts, err := c.ExplainerOptions()
	if err != nil {
		return attribution.BuildConfig{}, err
	}
	return attribution.BuildConfig{
		BackgroundSize: c.Engine.BackgroundSize,
		Seed:           c.seed(),
		Options:        opts,
	}, nil
}

func (c *ProjectConfig) seed() int64 {
	if c.Engine.Seed == nil {
		return DefaultSeed
	}
	return *c.Engine.Seed
}

// mergeConfig overlays non-zero values from src onto dst.
func mergeConfig(dst, src *ProjectConfig) {
	// Artifacts
	if src.Artifacts.Backend != "" {
		dst.Artifacts.Backend = src.Artifacts.Backend
	}
	if src.Artifacts.Dir != "" {
		dst.Artifacts.Dir = src.Artifacts.Dir
	}
	if src.Artifacts.Compression != "" {
		dst.Artifacts.Compression = src.Artifacts.Compression
	}
	if src.Artifacts.AzBlob.AccountURL != "" {
		dst.Artifacts.AzBlob.AccountURL = src.Artifacts.AzBlob.AccountURL
	}
	if src.Artifacts.AzBlob.Container != "" {
		dst.Artifacts.AzBlob.Container = src.Artifacts.AzBlob.Container
	}
	if src.Artifacts.AzBlob.Prefix != "" {
		dst.Artifacts.AzBlob.Prefix = src.Artifacts.AzBlob.Prefix
	}
	if src.Artifacts.Breaker.Enabled != nil {
		dst.Artifacts.Breaker.Enabled = src.Artifacts.Breaker.Enabled
	}
	if src.Artifacts.Breaker.MaxFailures != 0 {
		dst.Artifacts.Breaker.MaxFailures = src.Artifacts.Breaker.MaxFailures
	}
	if src.Artifacts.Breaker.OpenTimeout != 0 {
		dst.Artifacts.Breaker.OpenTimeout = src.Artifacts.Breaker.OpenTimeout
	}

	// Engine
	if src.Engine.BackgroundSize != 0 {
		dst.Engine.BackgroundSize = src.Engine.BackgroundSize
	}
	if src.Engine.GlobalSampleSize != 0 {
		dst.Engine.GlobalSampleSize = src.Engine.GlobalSampleSize
	}
	if src.Engine.GlobalWorkers != 0 {
		dst.Engine.GlobalWorkers = src.Engine.GlobalWorkers
	}
	if src.Engine.Seed != nil {
		dst.Engine.Seed = src.Engine.Seed
	}
	if src.Engine.LocalTimeout != 0 {
		dst.Engine.LocalTimeout = src.Engine.LocalTimeout
	}
	if src.Engine.BuildTimeout != 0 {
		dst.Engine.BuildTimeout = src.Engine.BuildTimeout
	}

	// Explainers
	if len(src.Explainers) > 0 {
		dst.Explainers = src.Explainers
	}

	// Quality
	if src.Quality.TopKFraction != 0 {
		dst.Quality.TopKFraction = src.Quality.TopKFraction
	}
	if src.Quality.Baseline != "" {
		dst.Quality.Baseline = src.Quality.Baseline
	}
	if src.Quality.NoiseScale != 0 {
		dst.Quality.NoiseScale = src.Quality.NoiseScale
	}
	if src.Quality.RobustnessTrials != 0 {
		dst.Quality.RobustnessTrials = src.Quality.RobustnessTrials
	}

	// Performance
	if src.Performance.Threshold != 0 {
		dst.Performance.Threshold = src.Performance.Threshold
	}
	if src.Performance.CalibrationBins != 0 {
		dst.Performance.CalibrationBins = src.Performance.CalibrationBins
	}

	// Interpretation
	if src.Interpretation.TopFeatures != 0 {
		dst.Interpretation.TopFeatures = src.Interpretation.TopFeatures
	}
	if src.Interpretation.StrongCutoff != 0 {
		dst.Interpretation.StrongCutoff = src.Interpretation.StrongCutoff
	}
	if src.Interpretation.ModerateCutoff != 0 {
		dst.Interpretation.ModerateCutoff = src.Interpretation.ModerateCutoff
	}

	// Jobs
	if src.Jobs.Workers != 0 {
		dst.Jobs.Workers = src.Jobs.Workers
	}
	if src.Jobs.QueueSize != 0 {
		dst.Jobs.QueueSize = src.Jobs.QueueSize
	}
	if src.Jobs.Store != "" {
		dst.Jobs.Store = src.Jobs.Store
	}
	if src.Jobs.Redis.Addr != "" {
		dst.Jobs.Redis.Addr = src.Jobs.Redis.Addr
	}
	if src.Jobs.Redis.Password != "" {
		dst.Jobs.Redis.Password = src.Jobs.Redis.Password
	}
	if src.Jobs.Redis.DB != 0 {
		dst.Jobs.Redis.DB = src.Jobs.Redis.DB
	}
	if src.Jobs.Redis.TTL != 0 {
		dst.Jobs.Redis.TTL = src.Jobs.Redis.TTL
	}
	if src.Jobs.EventLog != "" {
		dst.Jobs.EventLog = src.Jobs.EventLog
	}

	// Cache
	if src.Cache.ResultsDir != "" {
		dst.Cache.ResultsDir = src.Cache.ResultsDir
	}

	// Server
	if src.Server.Port != 0 {
		dst.Server.Port = src.Server.Port
	}
	if src.Server.RateLimit != 0 {
		dst.Server.RateLimit = src.Server.RateLimit
	}
	if src.Server.Burst != 0 {
		dst.Server.Burst = src.Server.Burst
	}
}
