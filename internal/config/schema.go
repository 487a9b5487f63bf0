package config

// Config holds distill configuration.
// Stored at: config.yaml in the working directory or ~/.distill.
type Config struct {
	LLM    LLMConfig    `mapstructure:"llm" yaml:"llm"`
	Defra  DefraConfig  `mapstructure:"defra" yaml:"defra"`
	Server ServerConfig `mapstructure:"server" yaml:"server"`
	Ingest IngestConfig `mapstructure:"ingest" yaml:"ingest"`
}

// LLMConfig configures the chat-completions client. BaseURL may point
// at any OpenAI-compatible endpoint (OpenAI, OpenRouter, vLLM).
type LLMConfig struct {
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
	APIKey  string `mapstructure:"api_key" yaml:"api_key"` // supports ${ENV_VAR} syntax

	// Model identifiers per tier.
	ExtractionModel string `mapstructure:"extraction_model" yaml:"extraction_model"`
	FilteringModel  string `mapstructure:"filtering_model" yaml:"filtering_model"`
	ReasoningModel  string `mapstructure:"reasoning_model" yaml:"reasoning_model"`

	// RequestsPerMinute caps outbound calls. 0 disables limiting.
	RequestsPerMinute int `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
	TimeoutSeconds    int `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
}

// DefraConfig holds DefraDB connection and container configuration.
type DefraConfig struct {
	// URL of a running DefraDB node (default: http://localhost:9181)
	URL string `mapstructure:"url" yaml:"url"`
	// ContainerName is the Docker container name (default: distill-defra)
	ContainerName string `mapstructure:"container_name" yaml:"container_name"`
	// Image is the Docker image to use (default: sourcenetwork/defradb:latest)
	Image string `mapstructure:"image" yaml:"image"`
	// Port is the host port to bind (default: 9181)
	Port string `mapstructure:"port" yaml:"port"`
}

// ServerConfig holds the HTTP server configuration.
type ServerConfig struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" yaml:"port"`
	// SigningKey signs session tokens (supports ${ENV_VAR} syntax).
	SigningKey string `mapstructure:"signing_key" yaml:"signing_key"`
}

// IngestConfig bounds uploads.
type IngestConfig struct {
	// MaxUploadMB caps the accepted PDF size.
	MaxUploadMB int `mapstructure:"max_upload_mb" yaml:"max_upload_mb"`
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			BaseURL:           "https://openrouter.ai/api/v1",
			APIKey:            "${OPENROUTER_API_KEY}",
			ExtractionModel:   "openai/gpt-4o-mini",
			FilteringModel:    "openai/gpt-4o",
			ReasoningModel:    "anthropic/claude-sonnet-4",
			RequestsPerMinute: 150,
			TimeoutSeconds:    120,
		},
		Defra: DefraConfig{
			URL:           "http://localhost:9181",
			ContainerName: "distill-defra",
			Image:         "sourcenetwork/defradb:latest",
			Port:          "9181",
		},
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8080,
		},
		Ingest: IngestConfig{
			MaxUploadMB: 100,
		},
	}
}
