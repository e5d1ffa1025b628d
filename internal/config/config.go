package config

import (
	"github.com/caarlos0/env/v6"
)

type LLMProvider string

const (
	ProviderOpenAI LLMProvider = "openai"
	ProviderYandex LLMProvider = "yandex"
)

type Config struct {
	ListenAddr string `env:"LISTEN_ADDR" envDefault:":8000"`

	// LLM settings
	LLMProvider      LLMProvider `env:"LLM_PROVIDER" envDefault:"openai"`
	OpenAIAPIKey     string      `env:"OPENAI_API_KEY"`
	OpenAIBaseURL    string      `env:"OPENAI_BASE_URL"`
	OpenAIModel      string      `env:"OPENAI_MODEL" envDefault:"gpt-3.5-turbo"`
	Temperature      float32     `env:"LLM_TEMPERATURE" envDefault:"0.7"`
	MaxTokens        int         `env:"LLM_MAX_TOKENS" envDefault:"1000"`
	YandexOAuthToken string      `env:"YANDEX_OAUTH_TOKEN"`
	YandexFolderID   string      `env:"YANDEX_FOLDER_ID"`

	// OpenRouter (optional)
	OpenRouterReferrer string `env:"OPENROUTER_REFERRER"`
	OpenRouterTitle    string `env:"OPENROUTER_TITLE"`

	// Storage
	TranscriptDir           string `env:"TRANSCRIPT_DIR" envDefault:"data/transcripts"`
	AuditLogPath            string `env:"AUDIT_LOG_PATH" envDefault:"logs/interactions.jsonl"`
	AllowlistFilePath       string `env:"ALLOWLIST_FILE_PATH"`
	TranscriptRetentionDays int    `env:"TRANSCRIPT_RETENTION_DAYS" envDefault:"0"`

	// Identity
	DefaultUserID     string   `env:"DEFAULT_USER_ID" envDefault:"default_user"`
	AllowedUsers      []string `env:"ALLOWED_USERS" envSeparator:":"`
	SessionSecretKey  string   `env:"SESSION_SECRET_KEY"`
	AzureClientID     string   `env:"AZURE_CLIENT_ID"`
	AzureClientSecret string   `env:"AZURE_CLIENT_SECRET"`
	AzureTenantID     string   `env:"AZURE_TENANT_ID"`
	AzureRedirectURI  string   `env:"REDIRECT_URI"`

	// Transport
	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"*"`
	StaticDir   string   `env:"STATIC_DIR"`
}

func New() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
