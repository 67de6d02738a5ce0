package config

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"

	"coa-docket/models"
	"coa-docket/storage"
	"coa-docket/utils"
)

const (
	defaultRunTimeout        = 30 * time.Minute
	defaultMaxAttempts       = 3
	defaultInitialDelay      = time.Second
	defaultMaxDelay          = 30 * time.Second
	defaultConcurrency       = 3
	defaultRequestsPerSecond = 1.0
	defaultMaxPages          = 200
	defaultOutputDir         = "./output"
	defaultLookupCacheTTL    = time.Hour
)

// RetryConfig bounds the retries of every upstream call
type RetryConfig struct {
	MaxAttempts  int           `yaml:"max_attempts"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
}

// AnalysisConfig configures the optional issue analysis service
type AnalysisConfig struct {
	Model  string `yaml:"model"`
	APIKey string `yaml:"-"`
}

// RunConfig holds everything a discovery run needs
type RunConfig struct {
	BarNumbers        []string              `yaml:"bar_numbers"`
	Jurisdictions     []string              `yaml:"jurisdictions"`
	RunTimeout        time.Duration         `yaml:"run_timeout"`
	Retry             RetryConfig           `yaml:"retry"`
	Concurrency       int                   `yaml:"concurrency"`
	RequestsPerSecond float64               `yaml:"requests_per_second"`
	MaxPages          int                   `yaml:"max_pages"`
	OutputDir         string                `yaml:"output_dir"`
	Resume            bool                  `yaml:"resume"`
	FixturesPath      string                `yaml:"fixtures_path"`
	LookupCacheTTL    time.Duration         `yaml:"lookup_cache_ttl"`
	Storage           storage.StorageConfig `yaml:"storage"`
	Analysis          AnalysisConfig        `yaml:"analysis"`
	DatabaseURL       string                `yaml:"-"`
}

// Load reads the optional YAML file at path, applies environment overrides
// and fills defaults. It does not validate; call Validate.
func Load(path string) (RunConfig, error) {
	var cfg RunConfig
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, errors.Mark(errors.Wrapf(err, "failed to read config %s", path), models.ErrFatalConfiguration)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, errors.Wrapf(models.ErrFatalConfiguration, "invalid config %s: %v", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return cfg, errors.Mark(err, models.ErrFatalConfiguration)
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *RunConfig) applyEnv() error {
	if v := utils.GetListEnv("BAR_NUMBERS"); len(v) > 0 {
		c.BarNumbers = v
	}
	if v := utils.GetListEnv("JURISDICTIONS"); len(v) > 0 {
		c.Jurisdictions = v
	}

	var err error
	if c.RunTimeout, err = utils.GetDurationEnv("RUN_TIMEOUT", c.RunTimeout); err != nil {
		return err
	}
	if c.Retry.MaxAttempts, err = utils.GetIntEnv("RETRY_MAX_ATTEMPTS", c.Retry.MaxAttempts); err != nil {
		return err
	}
	if c.Retry.InitialDelay, err = utils.GetDurationEnv("RETRY_INITIAL_DELAY", c.Retry.InitialDelay); err != nil {
		return err
	}
	if c.Retry.MaxDelay, err = utils.GetDurationEnv("RETRY_MAX_DELAY", c.Retry.MaxDelay); err != nil {
		return err
	}
	if c.Concurrency, err = utils.GetIntEnv("CONCURRENCY", c.Concurrency); err != nil {
		return err
	}
	if c.RequestsPerSecond, err = utils.GetFloatEnv("REQUESTS_PER_SECOND", c.RequestsPerSecond); err != nil {
		return err
	}
	if c.MaxPages, err = utils.GetIntEnv("MAX_PAGES", c.MaxPages); err != nil {
		return err
	}
	if c.Resume, err = utils.GetBoolEnv("RESUME", c.Resume); err != nil {
		return err
	}

	c.OutputDir = utils.GetStringEnv("OUTPUT_DIR", c.OutputDir)
	c.FixturesPath = utils.GetStringEnv("FIXTURES_PATH", c.FixturesPath)
	c.Analysis.Model = utils.GetStringEnv("GEMINI_MODEL", c.Analysis.Model)
	c.Analysis.APIKey = os.Getenv("GEMINI_API_KEY")
	c.DatabaseURL = os.Getenv("DATABASE_URL")
	c.Storage = storage.ConfigFromEnv(c.Storage)
	return nil
}

func (c *RunConfig) applyDefaults() {
	if len(c.Jurisdictions) == 0 {
		for _, j := range models.DefaultJurisdictions {
			c.Jurisdictions = append(c.Jurisdictions, string(j))
		}
	}
	if c.RunTimeout == 0 {
		c.RunTimeout = defaultRunTimeout
	}
	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = defaultMaxAttempts
	}
	if c.Retry.InitialDelay == 0 {
		c.Retry.InitialDelay = defaultInitialDelay
	}
	if c.Retry.MaxDelay == 0 {
		c.Retry.MaxDelay = defaultMaxDelay
	}
	if c.Concurrency == 0 {
		c.Concurrency = defaultConcurrency
	}
	if c.RequestsPerSecond == 0 {
		c.RequestsPerSecond = defaultRequestsPerSecond
	}
	if c.MaxPages == 0 {
		c.MaxPages = defaultMaxPages
	}
	if c.OutputDir == "" {
		c.OutputDir = defaultOutputDir
	}
	if c.LookupCacheTTL == 0 {
		c.LookupCacheTTL = defaultLookupCacheTTL
	}
}

// Validate rejects configurations a run cannot start with
func (c RunConfig) Validate() error {
	if len(c.BarNumbers) == 0 {
		return errors.Wrap(models.ErrFatalConfiguration, "no bar numbers configured (BAR_NUMBERS)")
	}
	if _, err := c.ParsedJurisdictions(); err != nil {
		return err
	}
	if c.RunTimeout <= 0 {
		return errors.Wrapf(models.ErrFatalConfiguration, "run timeout must be positive, got %s", c.RunTimeout)
	}
	if c.Retry.MaxAttempts < 1 {
		return errors.Wrapf(models.ErrFatalConfiguration, "retry attempts must be at least 1, got %d", c.Retry.MaxAttempts)
	}
	if c.Retry.InitialDelay < 0 || c.Retry.MaxDelay < 0 {
		return errors.Wrap(models.ErrFatalConfiguration, "retry delays must not be negative")
	}
	if c.Concurrency < 1 {
		return errors.Wrapf(models.ErrFatalConfiguration, "concurrency must be at least 1, got %d", c.Concurrency)
	}
	if c.RequestsPerSecond < 0 {
		return errors.Wrapf(models.ErrFatalConfiguration, "requests per second must not be negative, got %g", c.RequestsPerSecond)
	}
	return nil
}

// ParsedJurisdictions validates and returns the configured court codes
func (c RunConfig) ParsedJurisdictions() ([]models.Jurisdiction, error) {
	if len(c.Jurisdictions) == 0 {
		return nil, errors.Wrap(models.ErrFatalConfiguration, "no jurisdictions configured")
	}
	out := make([]models.Jurisdiction, 0, len(c.Jurisdictions))
	for _, code := range c.Jurisdictions {
		j, err := models.ParseJurisdiction(code)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, nil
}
