package config

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the application's configuration model.
// It captures credentials, pacing strategy, content rules, and the persona.
type Config struct {
	Account    AccountConfig    `yaml:"account"`
	Storage    StorageConfig    `yaml:"storage"`
	Browser    BrowserConfig    `yaml:"browser"`
	LLM        LLMConfig        `yaml:"llm"`
	Trends     TrendsConfig     `yaml:"trends"`
	Persona    PersonaConfig    `yaml:"persona"`
	Admission  AdmissionConfig  `yaml:"admission"`
	Pacing     PacingConfig     `yaml:"pacing"`
	Content    ContentConfig    `yaml:"content"`
	Validation ValidationConfig `yaml:"validation"`
	Server     ServerConfig     `yaml:"server"`
}

type AccountConfig struct {
	Handle string `yaml:"handle"`
	// IANA timezone used for day keys and the sleep window, e.g. "Europe/Berlin".
	Timezone string `yaml:"timezone"`
}

type StorageConfig struct {
	DBPath string `yaml:"dbPath"`
}

type BrowserConfig struct {
	// Session cookie for x.com. If empty, read from env X_AUTH_TOKEN.
	AuthToken          string `yaml:"authToken"`
	Headless           bool   `yaml:"headless"`
	PageTimeoutSeconds int    `yaml:"pageTimeoutSeconds"`
}

type LLMConfig struct {
	// If empty, read from env OPENROUTER_API_KEY.
	APIKey            string `yaml:"apiKey"`
	BaseURL           string `yaml:"baseURL"`
	Model             string `yaml:"model"`
	Referer           string `yaml:"referer"`
	Title             string `yaml:"title"`
	TimeoutSeconds    int    `yaml:"timeoutSeconds"`
	RequestsPerMinute int    `yaml:"requestsPerMinute"`
}

type TrendsConfig struct {
	// If empty, read from env PERPLEXITY_API_KEY.
	APIKey         string `yaml:"apiKey"`
	BaseURL        string `yaml:"baseURL"`
	Model          string `yaml:"model"`
	TimeoutSeconds int    `yaml:"timeoutSeconds"`
	// Cron specs (minute hour dom month dow) for research runs.
	Schedules []string `yaml:"schedules"`
}

type PersonaConfig struct {
	// Voice description injected into every generation prompt.
	Style  string   `yaml:"style"`
	Topics []string `yaml:"topics"`
}

type AdmissionConfig struct {
	// Hard per-day caps per action kind. A kind missing from the map is
	// uncapped; an explicit 0 disables that kind.
	DailyLimits map[string]int `yaml:"dailyLimits"`
	// Hourly reply target re-rolled each clock hour within [min,max].
	HourlyMin int `yaml:"hourlyMin"`
	HourlyMax int `yaml:"hourlyMax"`
	// Actions per session before a forced break, re-rolled after each break.
	SessionMin int `yaml:"sessionMin"`
	SessionMax int `yaml:"sessionMax"`
	// Forced break length in minutes.
	BreakMinMinutes int `yaml:"breakMinMinutes"`
	BreakMaxMinutes int `yaml:"breakMaxMinutes"`
	// Per-candidate random skip probability drawn from [min,max].
	SkipMin float64 `yaml:"skipMin"`
	SkipMax float64 `yaml:"skipMax"`
	// No actions while the local hour is in [start,end).
	SleepStartHour int `yaml:"sleepStartHour"`
	SleepEndHour   int `yaml:"sleepEndHour"`
	// Minimum hours between contacts to the same account.
	CooldownHours int `yaml:"cooldownHours"`
}

type PacingConfig struct {
	CycleMinSeconds       int `yaml:"cycleMinSeconds"`
	CycleMaxSeconds       int `yaml:"cycleMaxSeconds"`
	CycleJitterMinSeconds int `yaml:"cycleJitterMinSeconds"`
	CycleJitterMaxSeconds int `yaml:"cycleJitterMaxSeconds"`
	CandidateDelayMinMs   int `yaml:"candidateDelayMinMs"`
	CandidateDelayMaxMs   int `yaml:"candidateDelayMaxMs"`
	FeedScanMax           int `yaml:"feedScanMax"`
	MaxRepliesPerCycle    int `yaml:"maxRepliesPerCycle"`
	ErrorCooldownSeconds  int `yaml:"errorCooldownSeconds"`
	SleepWindowNapMinutes int `yaml:"sleepWindowNapMinutes"`
	HourlyMetNapMinutes   int `yaml:"hourlyMetNapMinutes"`
}

type ContentConfig struct {
	// When true, generated content waits in the draft queue for approval
	// instead of posting immediately.
	ApprovalRequired bool `yaml:"approvalRequired"`
	// Extra generation attempts after a validation rejection.
	GenerationRetries int `yaml:"generationRetries"`
	// Per-candidate chances of the extra engagement actions.
	LikeProbability    float64 `yaml:"likeProbability"`
	RetweetProbability float64 `yaml:"retweetProbability"`
	// Chance a scheduled composition becomes a thread instead of a post.
	ThreadProbability float64 `yaml:"threadProbability"`
	// Cron specs for composed original posts.
	PostSchedules []string `yaml:"postSchedules"`
	// Approved drafts posted at the top of each cycle.
	MaxApprovedPerCycle int `yaml:"maxApprovedPerCycle"`
}

type ValidationConfig struct {
	MaxReplyLen      int      `yaml:"maxReplyLen"`
	MaxPostLen       int      `yaml:"maxPostLen"`
	HistoryWindow    int      `yaml:"historyWindow"`
	SimilarPrefixLen int      `yaml:"similarPrefixLen"`
	BannedPhrases    []string `yaml:"bannedPhrases"`
	BannedEmojis     []string `yaml:"bannedEmojis"`
	GenericOpeners   []string `yaml:"genericOpeners"`
}

type ServerConfig struct {
	Addr        string `yaml:"addr"`
	MetricsAddr string `yaml:"metricsAddr"`
}

// Default returns a sensible default configuration.
func Default() Config {
	return Config{
		Account: AccountConfig{Handle: "", Timezone: "Local"},
		Storage: StorageConfig{DBPath: "./starling.db"},
		Browser: BrowserConfig{Headless: true, PageTimeoutSeconds: 45},
		LLM: LLMConfig{
			BaseURL:           "https://openrouter.ai/api/v1",
			Model:             "openai/gpt-4o-mini",
			Title:             "starling",
			TimeoutSeconds:    60,
			RequestsPerMinute: 20,
		},
		Trends: TrendsConfig{
			BaseURL:        "https://api.perplexity.ai",
			Model:          "sonar",
			TimeoutSeconds: 90,
			Schedules:      []string{"10 8 * * *", "10 16 * * *"},
		},
		Persona: PersonaConfig{
			Style:  "dry, specific, first-hand; short sentences; no hype",
			Topics: []string{"ai", "golang", "distributed systems", "developer tools"},
		},
		Admission: AdmissionConfig{
			DailyLimits: map[string]int{
				"reply": 70, "like": 20, "retweet": 4,
				"post": 2, "thread": 2, "quote": 2,
			},
			HourlyMin: 8, HourlyMax: 12,
			SessionMin: 3, SessionMax: 7,
			BreakMinMinutes: 5, BreakMaxMinutes: 25,
			SkipMin: 0.20, SkipMax: 0.35,
			SleepStartHour: 2, SleepEndHour: 7,
			CooldownHours: 24,
		},
		Pacing: PacingConfig{
			CycleMinSeconds: 120, CycleMaxSeconds: 300,
			CycleJitterMinSeconds: 10, CycleJitterMaxSeconds: 60,
			CandidateDelayMinMs: 1500, CandidateDelayMaxMs: 5000,
			FeedScanMax:           15,
			MaxRepliesPerCycle:    3,
			ErrorCooldownSeconds:  60,
			SleepWindowNapMinutes: 30,
			HourlyMetNapMinutes:   5,
		},
		Content: ContentConfig{
			ApprovalRequired:  false,
			GenerationRetries: 1,
			LikeProbability:   0.3, RetweetProbability: 0.1,
			ThreadProbability:   0.15,
			PostSchedules:       []string{"30 9 * * *", "30 18 * * *"},
			MaxApprovedPerCycle: 3,
		},
		Validation: ValidationConfig{
			MaxReplyLen:      240,
			MaxPostLen:       280,
			HistoryWindow:    30,
			SimilarPrefixLen: 20,
			BannedPhrases: []string{
				"as an ai", "language model", "i cannot", "i can't assist",
				"in conclusion", "in summary", "furthermore", "moreover",
				"it's important to note", "it is worth noting",
				"certainly", "great point", "well said", "couldn't agree more",
				"game changer", "game-changer", "delve", "deep dive",
				"unlock", "elevate", "leverage", "synergy", "paradigm",
				"in the realm of", "navigating the", "tapestry",
			},
			BannedEmojis: []string{
				"🚀", "🔥", "💯", "🙌", "✨", "💪", "🎯", "🤖", "😂", "😍",
			},
			GenericOpeners: []string{
				"great", "amazing", "facts", "so true", "love this", "this!",
				"interesting", "wow", "nice", "agreed", "exactly",
				"absolutely", "well said", "100%",
			},
		},
		Server: ServerConfig{Addr: ":8090", MetricsAddr: ":9090"},
	}
}

// ResolveEnv fills in credential fields from environment variables if not set.
func (c *Config) ResolveEnv() {
	if c.Browser.AuthToken == "" {
		c.Browser.AuthToken = os.Getenv("X_AUTH_TOKEN")
	}
	if c.LLM.APIKey == "" {
		c.LLM.APIKey = os.Getenv("OPENROUTER_API_KEY")
	}
	if c.Trends.APIKey == "" {
		c.Trends.APIKey = os.Getenv("PERPLEXITY_API_KEY")
	}
}

// Location resolves the configured timezone.
func (c Config) Location() (*time.Location, error) {
	if c.Account.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Account.Timezone)
}

// Load reads YAML config from path, applied over the defaults so a
// partial file still yields a runnable configuration.
func Load(path string) (Config, error) {
	cfg := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, err
	}
	cfg.ResolveEnv()
	return cfg, nil
}

// Save writes YAML config to path, creating directories as needed.
func Save(path string, cfg Config) error {
	if path == "" {
		return errors.New("empty path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}
