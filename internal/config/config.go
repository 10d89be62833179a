package config

import (
	"log"
	"time"

	"github.com/caarlos0/env/v6"
)

type Config struct {
	TelegramBotToken string  `env:"TELEGRAM_BOT_TOKEN,required"`
	AllowedUsers     []int64 `env:"ALLOWED_USERS" envSeparator:":"`
	AdminUserID      int64   `env:"ADMIN_USER"`

	// Backend
	APIURL      string        `env:"RAGCHAT_API_URL" envDefault:"http://localhost:8000"`
	HTTPTimeout time.Duration `env:"HTTP_TIMEOUT" envDefault:"0s"`

	// Session
	DefaultModel   string        `env:"DEFAULT_MODEL" envDefault:"google/gemini-2.5-flash"`
	ThinkingPeriod time.Duration `env:"THINKING_PERIOD" envDefault:"1800ms"`
	SessionIdleTTL time.Duration `env:"SESSION_IDLE_TTL" envDefault:"12h"`

	// API key verification against OpenRouter before storing it
	VerifyAPIKey      bool   `env:"VERIFY_API_KEY" envDefault:"false"`
	OpenRouterBaseURL string `env:"OPENROUTER_BASE_URL" envDefault:"https://openrouter.ai/api/v1"`
	OpenRouterTitle   string `env:"OPENROUTER_TITLE" envDefault:"ragchat"`

	// Storage
	AllowlistFilePath string `env:"ALLOWLIST_FILE_PATH" envDefault:"data/allowlist.json"`
	PendingFilePath   string `env:"PENDING_FILE_PATH" envDefault:"data/pending.json"`
	IdentityFilePath  string `env:"IDENTITY_FILE_PATH" envDefault:"data/identities.json"`
	JournalFilePath   string `env:"JOURNAL_FILE_PATH" envDefault:"data/journal.jsonl"`

	// Logging
	LogFilePath   string `env:"LOG_FILE_PATH" envDefault:"logs/bot.log"`
	LogProduction bool   `env:"LOG_PRODUCTION" envDefault:"false"`

	// Schedules (cron syntax)
	ModelsRefreshSpec string `env:"MODELS_REFRESH_SPEC" envDefault:"@every 6h"`
	ReportSpec        string `env:"REPORT_SPEC" envDefault:"0 21 * * *"`

	// Formatting
	MessageParseMode string `env:"MESSAGE_PARSE_MODE" envDefault:"HTML"`
}

func New() *Config {
	cfg, err := Parse()
	if err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}
	return cfg
}

// Parse reads the configuration from the environment.
func Parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
