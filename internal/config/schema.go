package config

// Config holds folio configuration.
// Stored at: {home}/config.yaml
type Config struct {
	Provider ProviderCfg `mapstructure:"provider" yaml:"provider"`
	Batch    BatchCfg    `mapstructure:"batch" yaml:"batch"`
	Defaults DefaultsCfg `mapstructure:"defaults" yaml:"defaults"`
	Defra    DefraConfig `mapstructure:"defra" yaml:"defra"`
}

// ProviderCfg configures the inference batch provider.
type ProviderCfg struct {
	Type           string `mapstructure:"type" yaml:"type"`                       // "openai"
	Model          string `mapstructure:"model" yaml:"model"`                     // Default model
	APIKey         string `mapstructure:"api_key" yaml:"api_key"`                 // API key (supports ${ENV_VAR} syntax)
	BaseURL        string `mapstructure:"base_url" yaml:"base_url"`               // Override endpoint (tests, proxies)
	TimeoutSeconds int    `mapstructure:"timeout_seconds" yaml:"timeout_seconds"` // HTTP timeout
	MaxRetries     int    `mapstructure:"max_retries" yaml:"max_retries"`         // Transport retries
}

// BatchCfg configures batch submission sizing and polling.
type BatchCfg struct {
	// Limit caps how many pages one submission covers.
	Limit int `mapstructure:"limit" yaml:"limit"`
	// PollIntervalSeconds is the suggested delay between reconciler polls.
	PollIntervalSeconds int `mapstructure:"poll_interval_seconds" yaml:"poll_interval_seconds"`
	// FetchTimeoutSeconds is the per-image download timeout.
	FetchTimeoutSeconds int `mapstructure:"fetch_timeout_seconds" yaml:"fetch_timeout_seconds"`
}

// DefaultsCfg specifies default pipeline settings.
type DefaultsCfg struct {
	Language       string `mapstructure:"language" yaml:"language"`               // Source language hint
	TargetLanguage string `mapstructure:"target_language" yaml:"target_language"` // Translation target
	License        string `mapstructure:"license" yaml:"license"`                 // Edition license
}

// DefraConfig holds DefraDB container configuration.
type DefraConfig struct {
	// ContainerName is the Docker container name (default: folio-defra)
	ContainerName string `mapstructure:"container_name" yaml:"container_name"`
	// Image is the Docker image to use (default: sourcenetwork/defradb:latest)
	Image string `mapstructure:"image" yaml:"image"`
	// Port is the host port to bind (default: 9181)
	Port string `mapstructure:"port" yaml:"port"`
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Provider: ProviderCfg{
			Type:           "openai",
			Model:          "gpt-5-mini",
			APIKey:         "${OPENAI_API_KEY}",
			TimeoutSeconds: 120,
			MaxRetries:     3,
		},
		Batch: BatchCfg{
			Limit:               50,
			PollIntervalSeconds: 60,
			FetchTimeoutSeconds: 30,
		},
		Defaults: DefaultsCfg{
			TargetLanguage: "English",
			License:        "CC-BY-4.0",
		},
		Defra: DefraConfig{
			ContainerName: "folio-defra",
			Image:         "sourcenetwork/defradb:latest",
			Port:          "9181",
		},
	}
}
