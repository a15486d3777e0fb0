package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	AppName     = "itemcheck"
	EnvFileName = "config.env"
)

const (
	ProviderGemini    = "gemini"
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
)

const (
	defaultHTTPAddr    = ":8080"
	defaultHistoryPath = "history.db"
	defaultEbayRate    = 5.0
)

// Config is the process configuration read from the environment.
type Config struct {
	Provider        string
	GeminiAPIKey    string
	AnthropicAPIKey string
	OpenAIAPIKey    string
	Model           string
	LiteModel       string

	EbayAppID      string
	EbayRatePerSec float64

	HTTPAddr    string
	CORSOrigins []string

	HistoryDBPath string
	DatabaseURL   string

	BotToken           string
	AllowedTelegramIDs []int64

	IntentLengthThreshold int
}

// LoadEnvFile loads config.env from the user's config directory and .env
// from the working directory. Variables already set in the environment win.
// Errors are ignored since neither file has to exist.
func LoadEnvFile() {
	if configBase, err := os.UserConfigDir(); err == nil {
		_ = godotenv.Load(filepath.Join(configBase, AppName, EnvFileName))
	}
	_ = godotenv.Load(".env")
}

// Load reads the configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Provider:        strings.ToLower(envOr("LLM_PROVIDER", ProviderGemini)),
		GeminiAPIKey:    os.Getenv("GEMINI_API_KEY"),
		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
		OpenAIAPIKey:    os.Getenv("OPENAI_API_KEY"),
		Model:           os.Getenv("LLM_MODEL"),
		LiteModel:       os.Getenv("LLM_LITE_MODEL"),
		EbayAppID:       os.Getenv("EBAY_APP_ID"),
		HTTPAddr:        envOr("HTTP_ADDR", defaultHTTPAddr),
		CORSOrigins:     splitList(os.Getenv("CORS_ORIGINS")),
		HistoryDBPath:   envOr("HISTORY_DB_PATH", defaultHistoryPath),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		BotToken:        os.Getenv("BOT_TOKEN"),
	}

	rate, err := parseFloat("EBAY_RATE_PER_SEC", defaultEbayRate)
	if err != nil {
		return nil, err
	}
	cfg.EbayRatePerSec = rate

	threshold, err := parseInt("INTENT_LENGTH_THRESHOLD", 0)
	if err != nil {
		return nil, err
	}
	cfg.IntentLengthThreshold = threshold

	for _, s := range splitList(os.Getenv("ALLOWED_TELEGRAM_IDS")) {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("ALLOWED_TELEGRAM_IDS: invalid id %q: %w", s, err)
		}
		cfg.AllowedTelegramIDs = append(cfg.AllowedTelegramIDs, id)
	}

	return cfg, nil
}

// Missing returns the names of required variables that are not set for the
// selected provider.
func (c *Config) Missing() []string {
	var missing []string
	switch c.Provider {
	case ProviderGemini:
		if c.GeminiAPIKey == "" {
			missing = append(missing, "GEMINI_API_KEY")
		}
	case ProviderAnthropic:
		if c.AnthropicAPIKey == "" {
			missing = append(missing, "ANTHROPIC_API_KEY")
		}
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			missing = append(missing, "OPENAI_API_KEY")
		}
	}
	return missing
}

// Validate reports an unknown provider or missing required variables.
func (c *Config) Validate() error {
	switch c.Provider {
	case ProviderGemini, ProviderAnthropic, ProviderOpenAI:
	default:
		return fmt.Errorf("LLM_PROVIDER must be one of gemini, anthropic, openai, got %q", c.Provider)
	}
	if missing := c.Missing(); len(missing) > 0 {
		return fmt.Errorf("missing required config: %s", strings.Join(missing, ", "))
	}
	if c.EbayRatePerSec <= 0 {
		return fmt.Errorf("EBAY_RATE_PER_SEC must be positive")
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return n, nil
}

func parseFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number: %w", key, err)
	}
	return f, nil
}
