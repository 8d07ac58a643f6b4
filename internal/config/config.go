package config

import (
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	configPathEnv   = "RESEARCH_MONITOR_CONFIG"
	anthropicKeyEnv = "ANTHROPIC_API_KEY"
	githubTokenEnv  = "GITHUB_TOKEN"
	slackWebhookEnv = "SLACK_WEBHOOK_URL"
)

// Config holds high-level settings required across the application.
type Config struct {
	Claude        ClaudeConfig       `yaml:"claude"`
	Monitoring    MonitoringConfig   `yaml:"monitoring"`
	Paths         PathsConfig        `yaml:"paths"`
	Sources       SourcesConfig      `yaml:"sources"`
	Prompts       PromptsConfig      `yaml:"prompts"`
	Notifications NotificationConfig `yaml:"notifications"`
	Logging       LoggingConfig      `yaml:"logging"`
}

// LoggingConfig controls log verbosity.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// ClaudeConfig defines how to contact the Claude API. Delays are expressed in
// seconds so YAML stays plain numbers.
type ClaudeConfig struct {
	APIKey                   string  `yaml:"apiKey"`
	BaseURL                  string  `yaml:"baseUrl"`
	Model                    string  `yaml:"model"`
	MaxTokens                int     `yaml:"maxTokens"`
	Temperature              float64 `yaml:"temperature"`
	MaxRetries               int     `yaml:"maxRetries"`
	InitialRetryDelaySeconds float64 `yaml:"initialRetryDelay"`
	RequestDelaySeconds      float64 `yaml:"requestDelay"`
}

// InitialRetryDelay resolves the backoff base as a duration.
func (c ClaudeConfig) InitialRetryDelay() time.Duration {
	return time.Duration(c.InitialRetryDelaySeconds * float64(time.Second))
}

// RequestDelay resolves the minimum inter-request spacing as a duration.
func (c ClaudeConfig) RequestDelay() time.Duration {
	return time.Duration(c.RequestDelaySeconds * float64(time.Second))
}

// MonitoringConfig tunes the filtering pipeline.
type MonitoringConfig struct {
	Interests          string   `yaml:"interests"`
	Keywords           []string `yaml:"keywords"`
	RelevanceThreshold float64  `yaml:"relevanceThreshold"`
	MaxItemsPerSource  int      `yaml:"maxItemsPerSource"`
	SaveDebugData      bool     `yaml:"saveDebugData"`
}

// PathsConfig locates on-disk state and outputs.
type PathsConfig struct {
	ArtifactsDir string `yaml:"artifactsDir"`
	DebugDir     string `yaml:"debugDir"`
	OutputDir    string `yaml:"outputDir"`
	SummariesDir string `yaml:"summariesDir"`
}

// SourcesConfig groups per-source settings.
type SourcesConfig struct {
	Arxiv               ArxivConfig      `yaml:"arxiv"`
	GitHub              GitHubConfig     `yaml:"github"`
	HuggingFacePapers   HFPapersConfig   `yaml:"huggingfacePapers"`
	HuggingFaceTrending HFTrendingConfig `yaml:"huggingfaceTrending"`
}

// ArxivConfig describes the category listing crawl.
type ArxivConfig struct {
	Enabled    bool             `yaml:"enabled"`
	Categories []CategoryConfig `yaml:"categories"`
	PageSize   int              `yaml:"pageSize"`
	MaxItems   int              `yaml:"maxItems"`
}

// CategoryConfig holds one listing endpoint to crawl.
type CategoryConfig struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// GitHubConfig describes the repository search.
type GitHubConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Token    string   `yaml:"token"`
	Topics   []string `yaml:"topics"`
	Keywords []string `yaml:"keywords"`
	MinStars int      `yaml:"minStars"`
	MaxItems int      `yaml:"maxItems"`
}

// HFPapersConfig describes the daily papers crawl.
type HFPapersConfig struct {
	Enabled    bool `yaml:"enabled"`
	SearchDays int  `yaml:"searchDays"`
	MaxItems   int  `yaml:"maxItems"`
}

// HFTrendingConfig describes the trending models fetch.
type HFTrendingConfig struct {
	Enabled     bool   `yaml:"enabled"`
	PipelineTag string `yaml:"pipelineTag"`
	MaxDaysOld  int    `yaml:"maxDaysOld"`
	MaxItems    int    `yaml:"maxItems"`
}

// PromptsConfig overrides gateway prompt templates; empty fields keep the
// built-in defaults.
type PromptsConfig struct {
	RelevanceSystem     string `yaml:"relevanceSystem"`
	RelevanceUser       string `yaml:"relevanceUser"`
	SummarySystem       string `yaml:"summarySystem"`
	SummaryUser         string `yaml:"summaryUser"`
	HighlightsSystem    string `yaml:"highlightsSystem"`
	HighlightsUser      string `yaml:"highlightsUser"`
	DigestSummarySystem string `yaml:"digestSummarySystem"`
	DigestSummaryUser   string `yaml:"digestSummaryUser"`
}

// NotificationConfig encapsulates outbound channels.
type NotificationConfig struct {
	SlackWebhookURL string `yaml:"slackWebhookUrl"`
}

// Load reads YAML configuration (if present) over the defaults and applies
// environment overrides. An empty path falls back to RESEARCH_MONITOR_CONFIG.
// Absent YAML keys keep their default values, so partial files work.
func Load(path string) Config {
	cfg := defaultConfig()

	if path == "" {
		path = os.Getenv(configPathEnv)
	}
	if path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else if err := yaml.Unmarshal(raw, &cfg); err != nil {
			log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			cfg = defaultConfig()
		}
	}

	cfg.applyEnvOverrides()
	return cfg
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(anthropicKeyEnv); v != "" {
		c.Claude.APIKey = v
	}
	if v := os.Getenv(githubTokenEnv); v != "" {
		c.Sources.GitHub.Token = v
	}
	if v := os.Getenv(slackWebhookEnv); v != "" {
		c.Notifications.SlackWebhookURL = v
	}
}

func defaultConfig() Config {
	return Config{
		Claude: ClaudeConfig{
			Model:                    "claude-sonnet-4-20250514",
			MaxTokens:                4096,
			Temperature:              0.7,
			MaxRetries:               5,
			InitialRetryDelaySeconds: 2.0,
			RequestDelaySeconds:      1.5,
		},
		Monitoring: MonitoringConfig{
			Interests:          "Speech synthesis, text-to-speech, and voice cloning research.",
			Keywords:           []string{"speech", "tts", "text-to-speech", "voice"},
			RelevanceThreshold: 0.6,
			MaxItemsPerSource:  30,
		},
		Paths: PathsConfig{
			ArtifactsDir: "artifacts",
			DebugDir:     "debug",
			OutputDir:    "digests",
			SummariesDir: "summaries",
		},
		Logging: LoggingConfig{Level: "info"},
		Sources: SourcesConfig{
			Arxiv: ArxivConfig{
				Enabled: true,
				Categories: []CategoryConfig{
					{Name: "cs.CL", URL: "https://arxiv.org/list/cs.CL/recent"},
					{Name: "eess.AS", URL: "https://arxiv.org/list/eess.AS/recent"},
				},
				MaxItems: 50,
			},
			GitHub: GitHubConfig{
				Enabled:  true,
				Topics:   []string{"text-to-speech"},
				MinStars: 50,
				MaxItems: 30,
			},
			HuggingFacePapers: HFPapersConfig{
				Enabled:    true,
				SearchDays: 7,
				MaxItems:   50,
			},
			HuggingFaceTrending: HFTrendingConfig{
				Enabled:     true,
				PipelineTag: "text-to-speech",
				MaxDaysOld:  14,
				MaxItems:    50,
			},
		},
	}
}
