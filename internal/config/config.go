package config

import (
	"log"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	configPathEnv    = "DEVPULSE_CONFIG"
	databaseDSNEnv   = "DATABASE_DSN"
	restURLEnv       = "SUPABASE_URL"
	restKeyEnv       = "SUPABASE_SERVICE_ROLE"
	geminiAPIKeyEnv  = "GEMINI_API_KEY"
	githubTokenEnv   = "GITHUB_TOKEN"
	hubTokenEnv      = "HF_TOKEN"
	webhookURLEnv    = "N8N_WEBHOOK_URL"
	webhookSecretEnv = "N8N_SHARED_SECRET"
	githubReposEnv   = "GITHUB_REPOS"
	hubModelsEnv     = "HF_MODELS"
	hubDatasetsEnv   = "HF_DATASETS"
	blogFeedsEnv     = "BLOG_FEEDS"

	defaultCronExpr    = "0 6 * * *"
	defaultHTTPTimeout = 25 * time.Second
)

// Config holds high-level settings required across the application.
type Config struct {
	Logging    LoggingConfig    `yaml:"logging"`
	Store      StoreConfig      `yaml:"store"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	Fetch      FetchConfig      `yaml:"fetch"`
	GitHub     GitHubConfig     `yaml:"github"`
	ModelHub   ModelHubConfig   `yaml:"modelHub"`
	BlogFeeds  BlogFeedConfig   `yaml:"blogFeeds"`
	Enrichment EnrichmentConfig `yaml:"enrichment"`
	Webhook    WebhookConfig    `yaml:"webhook"`
}

// LoggingConfig selects the slog level.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// StoreConfig selects the persistence path: direct Postgres or the REST
// query interface.
type StoreConfig struct {
	Mode    string  `yaml:"mode"` // "postgres" or "rest"
	DSN     string  `yaml:"dsn"`
	RestURL string  `yaml:"restUrl"`
	RestKey string  `yaml:"restKey"`
	Floor   float64 `yaml:"scoreFloor"`
}

// SchedulerConfig defines when the pipeline runs.
type SchedulerConfig struct {
	CronExpression string `yaml:"cronExpression"`
}

// FetchConfig bounds outbound fetching across connectors.
type FetchConfig struct {
	Concurrency    int     `yaml:"concurrency"`
	RateQPS        float64 `yaml:"rateQps"`
	TimeoutSeconds int     `yaml:"timeoutSeconds"`
}

// Timeout resolves the per-request timeout for connector HTTP clients.
func (f FetchConfig) Timeout() time.Duration {
	if f.TimeoutSeconds <= 0 {
		return defaultHTTPTimeout
	}
	return time.Duration(f.TimeoutSeconds) * time.Second
}

// GitHubConfig describes the code-host connector.
type GitHubConfig struct {
	Repos        []string `yaml:"repos"`
	Token        string   `yaml:"token"`
	PerRepoLimit int      `yaml:"perRepoLimit"`
	PageCap      int      `yaml:"pageCap"`
	SourceWeight float64  `yaml:"sourceWeight"`
}

// ModelHubConfig describes the model-hub connector.
type ModelHubConfig struct {
	Models        []string `yaml:"models"`
	Datasets      []string `yaml:"datasets"`
	Token         string   `yaml:"token"`
	LookbackHours int      `yaml:"lookbackHours"`
	ScanLimit     int      `yaml:"scanLimit"`
	SourceWeight  float64  `yaml:"sourceWeight"`
}

// BlogFeedConfig describes the blog-feed connector.
type BlogFeedConfig struct {
	Feeds         []string `yaml:"feeds"`
	LookbackHours int      `yaml:"lookbackHours"`
	ForceLatest   bool     `yaml:"forceLatest"`
	MinKeep       int      `yaml:"minKeep"`
	PerFeedLimit  int      `yaml:"perFeedLimit"`
	SourceWeight  float64  `yaml:"sourceWeight"`
}

// EnrichmentConfig drives the enrichment batch and the summarizer call.
type EnrichmentConfig struct {
	BatchLimit     int     `yaml:"batchLimit"`
	HalflifeHours  float64 `yaml:"halflifeHours"`
	AlertThreshold float64 `yaml:"alertThreshold"`
	GeminiAPIKey   string  `yaml:"geminiApiKey"`
	GeminiModel    string  `yaml:"geminiModel"`
}

// WebhookConfig wires the outbound automation endpoint.
type WebhookConfig struct {
	URL    string `yaml:"url"`
	Secret string `yaml:"secret"`
}

// Load reads YAML configuration (if present) and applies environment
// overrides.
func Load() Config {
	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else {
			var fileCfg Config
			if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
				log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			} else {
				cfg = mergeConfig(cfg, fileCfg)
			}
		}
	}

	cfg.applyEnvOverrides()
	return cfg
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.Store.DSN = v
		if c.Store.Mode == "" {
			c.Store.Mode = "postgres"
		}
	}
	if v := os.Getenv(restURLEnv); v != "" {
		c.Store.RestURL = v
	}
	if v := os.Getenv(restKeyEnv); v != "" {
		c.Store.RestKey = v
	}
	if v := os.Getenv(geminiAPIKeyEnv); v != "" {
		c.Enrichment.GeminiAPIKey = v
	}
	if v := os.Getenv(githubTokenEnv); v != "" {
		c.GitHub.Token = v
	}
	if v := os.Getenv(hubTokenEnv); v != "" {
		c.ModelHub.Token = v
	}
	if v := os.Getenv(webhookURLEnv); v != "" {
		c.Webhook.URL = v
	}
	if v := os.Getenv(webhookSecretEnv); v != "" {
		c.Webhook.Secret = v
	}

	if v := splitCSV(os.Getenv(githubReposEnv)); len(v) > 0 {
		c.GitHub.Repos = v
	}
	if v := splitCSV(os.Getenv(hubModelsEnv)); len(v) > 0 {
		c.ModelHub.Models = v
	}
	if v := splitCSV(os.Getenv(hubDatasetsEnv)); len(v) > 0 {
		c.ModelHub.Datasets = v
	}
	if v := splitCSV(os.Getenv(blogFeedsEnv)); len(v) > 0 {
		c.BlogFeeds.Feeds = v
	}
}

// splitCSV parses simple comma-separated lists from env:
// "a/b,c/d , e" -> ["a/b" "c/d" "e"]; empty -> nil.
func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func mergeConfig(base, override Config) Config {
	if override.Logging.Level != "" {
		base.Logging = override.Logging
	}

	if override.Store.Mode != "" {
		base.Store.Mode = override.Store.Mode
	}
	if override.Store.DSN != "" {
		base.Store.DSN = override.Store.DSN
	}
	if override.Store.RestURL != "" {
		base.Store.RestURL = override.Store.RestURL
	}
	if override.Store.RestKey != "" {
		base.Store.RestKey = override.Store.RestKey
	}
	if override.Store.Floor > 0 {
		base.Store.Floor = override.Store.Floor
	}

	if override.Scheduler.CronExpression != "" {
		base.Scheduler.CronExpression = override.Scheduler.CronExpression
	}

	if override.Fetch.Concurrency > 0 {
		base.Fetch.Concurrency = override.Fetch.Concurrency
	}
	if override.Fetch.RateQPS > 0 {
		base.Fetch.RateQPS = override.Fetch.RateQPS
	}
	if override.Fetch.TimeoutSeconds > 0 {
		base.Fetch.TimeoutSeconds = override.Fetch.TimeoutSeconds
	}

	if len(override.GitHub.Repos) > 0 {
		base.GitHub.Repos = override.GitHub.Repos
	}
	if override.GitHub.Token != "" {
		base.GitHub.Token = override.GitHub.Token
	}
	if override.GitHub.PerRepoLimit > 0 {
		base.GitHub.PerRepoLimit = override.GitHub.PerRepoLimit
	}
	if override.GitHub.PageCap > 0 {
		base.GitHub.PageCap = override.GitHub.PageCap
	}
	if override.GitHub.SourceWeight > 0 {
		base.GitHub.SourceWeight = override.GitHub.SourceWeight
	}

	if len(override.ModelHub.Models) > 0 {
		base.ModelHub.Models = override.ModelHub.Models
	}
	if len(override.ModelHub.Datasets) > 0 {
		base.ModelHub.Datasets = override.ModelHub.Datasets
	}
	if override.ModelHub.Token != "" {
		base.ModelHub.Token = override.ModelHub.Token
	}
	if override.ModelHub.LookbackHours > 0 {
		base.ModelHub.LookbackHours = override.ModelHub.LookbackHours
	}
	if override.ModelHub.ScanLimit > 0 {
		base.ModelHub.ScanLimit = override.ModelHub.ScanLimit
	}
	if override.ModelHub.SourceWeight > 0 {
		base.ModelHub.SourceWeight = override.ModelHub.SourceWeight
	}

	if len(override.BlogFeeds.Feeds) > 0 {
		base.BlogFeeds.Feeds = override.BlogFeeds.Feeds
	}
	if override.BlogFeeds.LookbackHours > 0 {
		base.BlogFeeds.LookbackHours = override.BlogFeeds.LookbackHours
	}
	if override.BlogFeeds.ForceLatest {
		base.BlogFeeds.ForceLatest = true
	}
	if override.BlogFeeds.MinKeep > 0 {
		base.BlogFeeds.MinKeep = override.BlogFeeds.MinKeep
	}
	if override.BlogFeeds.PerFeedLimit > 0 {
		base.BlogFeeds.PerFeedLimit = override.BlogFeeds.PerFeedLimit
	}
	if override.BlogFeeds.SourceWeight > 0 {
		base.BlogFeeds.SourceWeight = override.BlogFeeds.SourceWeight
	}

	if override.Enrichment.BatchLimit > 0 {
		base.Enrichment.BatchLimit = override.Enrichment.BatchLimit
	}
	if override.Enrichment.HalflifeHours > 0 {
		base.Enrichment.HalflifeHours = override.Enrichment.HalflifeHours
	}
	if override.Enrichment.AlertThreshold > 0 {
		base.Enrichment.AlertThreshold = override.Enrichment.AlertThreshold
	}
	if override.Enrichment.GeminiAPIKey != "" {
		base.Enrichment.GeminiAPIKey = override.Enrichment.GeminiAPIKey
	}
	if override.Enrichment.GeminiModel != "" {
		base.Enrichment.GeminiModel = override.Enrichment.GeminiModel
	}

	if override.Webhook.URL != "" {
		base.Webhook.URL = override.Webhook.URL
	}
	if override.Webhook.Secret != "" {
		base.Webhook.Secret = override.Webhook.Secret
	}

	return base
}

func defaultConfig() Config {
	return Config{
		Logging:   LoggingConfig{Level: "info"},
		Store:     StoreConfig{Mode: "rest", Floor: 0.80},
		Scheduler: SchedulerConfig{CronExpression: defaultCronExpr},
		Fetch: FetchConfig{
			Concurrency: 10,
			RateQPS:     5.0,
		},
		GitHub: GitHubConfig{
			PerRepoLimit: 3,
			PageCap:      3,
			SourceWeight: 1.0,
		},
		ModelHub: ModelHubConfig{
			LookbackHours: 72,
			ScanLimit:     200,
			SourceWeight:  1.0,
		},
		BlogFeeds: BlogFeedConfig{
			LookbackHours: 72,
			ForceLatest:   true,
			MinKeep:       3,
			SourceWeight:  1.0,
		},
		Enrichment: EnrichmentConfig{
			BatchLimit:     25,
			HalflifeHours:  48.0,
			AlertThreshold: 0.80,
			GeminiModel:    "gemini-1.5-flash",
		},
		Webhook: WebhookConfig{
			URL: "http://localhost:5678/webhook/devpulse/new-signal",
		},
	}
}
