package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// GitHubConfig holds provider credentials and endpoints.
type GitHubConfig struct {
	WebhookSecret string `koanf:"webhook_secret"`
	Token         string `koanf:"token"`
	APIURL        string `koanf:"api_url"`
}

// GatewayConfig configures the intake gateway.
type GatewayConfig struct {
	Port             int           `koanf:"port"`
	ReviewServiceURL string        `koanf:"review_service_url"`
	DiffFetchTimeout time.Duration `koanf:"diff_fetch_timeout"`
	ForwardTimeout   time.Duration `koanf:"forward_timeout"`
	PublishTimeout   time.Duration `koanf:"publish_timeout"`
}

// AnalysisConfig configures the analysis service.
type AnalysisConfig struct {
	Port          int           `koanf:"port"`
	MaxDiffSize   int           `koanf:"max_diff_size"`
	ModelTimeout  time.Duration `koanf:"model_timeout"`
	RedactSecrets bool          `koanf:"redact_secrets"`
}

// LLMConfig selects and configures the model backend.
type LLMConfig struct {
	Provider    string  `koanf:"provider"`
	APIKey      string  `koanf:"api_key"`
	Model       string  `koanf:"model"`
	BaseURL     string  `koanf:"base_url"`
	Temperature float64 `koanf:"temperature"`
	RepairJSON  bool    `koanf:"repair_json"`
}

// HTTPConfig holds limits shared by both servers.
type HTTPConfig struct {
	MaxBodySize int64 `koanf:"max_body_size"`

	// TrustedProxies lists the CIDR ranges whose X-Forwarded-For header is
	// honored. When empty the client is the TCP peer.
	TrustedProxies []string `koanf:"trusted_proxies"`
}

// RateLimitConfig configures the per-client sliding window.
type RateLimitConfig struct {
	Window   time.Duration `koanf:"window"`
	Max      int           `koanf:"max"`
	RedisURL string        `koanf:"redis_url"`
}

// LogConfig configures zerolog output.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// Config is the immutable process configuration. It is built once at startup
// and handed to every component that needs a part of it.
type Config struct {
	GitHub    GitHubConfig    `koanf:"github"`
	Gateway   GatewayConfig   `koanf:"gateway"`
	Analysis  AnalysisConfig  `koanf:"analysis"`
	LLM       LLMConfig       `koanf:"llm"`
	HTTP      HTTPConfig      `koanf:"http"`
	RateLimit RateLimitConfig `koanf:"rate_limit"`
	Log       LogConfig       `koanf:"log"`
}

// DefaultMaxDiffSize is one megabyte.
const DefaultMaxDiffSize = 1024 * 1024

// envKeys maps the supported environment variables onto config keys.
var envKeys = map[string]string{
	"GITHUB_WEBHOOK_SECRET": "github.webhook_secret",
	"GITHUB_TOKEN":          "github.token",
	"GITHUB_API_URL":        "github.api_url",
	"REVIEW_SERVICE_URL":    "gateway.review_service_url",
	"GATEWAY_PORT":          "gateway.port",
	"DIFF_FETCH_TIMEOUT":    "gateway.diff_fetch_timeout",
	"FORWARD_TIMEOUT":       "gateway.forward_timeout",
	"PUBLISH_TIMEOUT":       "gateway.publish_timeout",
	"ANALYSIS_PORT":         "analysis.port",
	"MAX_DIFF_SIZE":         "analysis.max_diff_size",
	"MODEL_TIMEOUT":         "analysis.model_timeout",
	"REDACT_SECRETS":        "analysis.redact_secrets",
	"LLM_PROVIDER":          "llm.provider",
	"LLM_API_KEY":           "llm.api_key",
	"LLM_MODEL":             "llm.model",
	"LLM_BASE_URL":          "llm.base_url",
	"LLM_TEMPERATURE":       "llm.temperature",
	"LLM_REPAIR_JSON":       "llm.repair_json",
	"MAX_BODY_SIZE":         "http.max_body_size",
	"TRUSTED_PROXIES":       "http.trusted_proxies",
	"RATE_LIMIT_WINDOW":     "rate_limit.window",
	"RATE_LIMIT_MAX":        "rate_limit.max",
	"RATE_LIMIT_REDIS_URL":  "rate_limit.redis_url",
	"LOG_LEVEL":             "log.level",
	"LOG_FORMAT":            "log.format",
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"github.api_url":             "https://api.github.com/",
		"gateway.port":               3000,
		"gateway.diff_fetch_timeout": 10 * time.Second,
		"gateway.forward_timeout":    120 * time.Second,
		"gateway.publish_timeout":    15 * time.Second,
		"analysis.port":              3001,
		"analysis.max_diff_size":     DefaultMaxDiffSize,
		"analysis.model_timeout":     90 * time.Second,
		"analysis.redact_secrets":    true,
		"llm.provider":               "openai",
		"llm.model":                  "gpt-4o-mini",
		"llm.temperature":            0.2,
		"llm.repair_json":            false,
		"http.max_body_size":         int64(5 * 1024 * 1024),
		"rate_limit.window":          time.Minute,
		"rate_limit.max":             60,
		"log.level":                  "info",
		"log.format":                 "json",
	}
}

// LoadConfig loads defaults, then the optional TOML file, then the environment.
func LoadConfig(configPath string) (*Config, error) {
	var k = koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("error loading defaults: %w", err)
	}

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
				return nil, fmt.Errorf("error loading config: %w", err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error reading config %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.ProviderWithValue("", ".", func(key, value string) (string, interface{}) {
		path := envKeys[key]
		if path == "http.trusted_proxies" {
			return path, splitList(value)
		}
		return path, value
	}), nil); err != nil {
		return nil, fmt.Errorf("error loading environment: %w", err)
	}

	var config Config
	if err := k.Unmarshal("", &config); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	config.LLM.Provider = strings.ToLower(strings.TrimSpace(config.LLM.Provider))
	return &config, nil
}

// splitList splits a comma-separated value, dropping empty items.
func splitList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// InitConfig writes a sample configuration file.
func InitConfig(configPath string) error {
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("configuration file already exists at %s", configPath)
	}

	sampleConfig := `# reviewbridge configuration
# Every key can be overridden by its environment variable, e.g. GITHUB_TOKEN.

[github]
webhook_secret = ""
token = "your-github-token"
api_url = "https://api.github.com/"

[gateway]
port = 3000
review_service_url = "http://localhost:3001"
diff_fetch_timeout = "10s"
forward_timeout = "120s"
publish_timeout = "15s"

[analysis]
port = 3001
max_diff_size = 1048576
model_timeout = "90s"
redact_secrets = true

[llm]
provider = "openai"
api_key = "your-llm-api-key"
model = "gpt-4o-mini"
temperature = 0.2
repair_json = false

[http]
max_body_size = 5242880
# CIDR ranges of reverse proxies allowed to set X-Forwarded-For.
trusted_proxies = []

[rate_limit]
window = "1m"
max = 60
redis_url = ""

[log]
level = "info"
format = "json"
`

	return os.WriteFile(configPath, []byte(sampleConfig), 0644)
}

// ValidateGateway checks the settings the intake gateway cannot start without.
func (c *Config) ValidateGateway() error {
	if err := c.validateShared(c.Gateway.Port); err != nil {
		return err
	}

	if c.Gateway.ReviewServiceURL == "" {
		return fmt.Errorf("review service url is required (REVIEW_SERVICE_URL)")
	}
	u, err := url.Parse(c.Gateway.ReviewServiceURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("review service url must be an absolute http(s) url: %q", c.Gateway.ReviewServiceURL)
	}

	if c.GitHub.Token == "" {
		return fmt.Errorf("github token is required (GITHUB_TOKEN)")
	}

	if c.Gateway.DiffFetchTimeout <= 0 || c.Gateway.ForwardTimeout <= 0 || c.Gateway.PublishTimeout <= 0 {
		return fmt.Errorf("gateway timeouts must be positive")
	}
	if c.Gateway.DiffFetchTimeout >= c.Gateway.ForwardTimeout {
		return fmt.Errorf("diff fetch timeout (%s) must be shorter than forward timeout (%s)",
			c.Gateway.DiffFetchTimeout, c.Gateway.ForwardTimeout)
	}

	return nil
}

// ValidateAnalysis checks the settings the analysis service cannot start without.
func (c *Config) ValidateAnalysis() error {
	if err := c.validateShared(c.Analysis.Port); err != nil {
		return err
	}

	switch c.LLM.Provider {
	case "openai", "anthropic", "gemini", "cohere":
		if c.LLM.APIKey == "" {
			return fmt.Errorf("llm api key is required for provider %s (LLM_API_KEY)", c.LLM.Provider)
		}
	case "ollama":
	default:
		return fmt.Errorf("unsupported llm provider: %q", c.LLM.Provider)
	}

	if c.Analysis.MaxDiffSize <= 0 {
		return fmt.Errorf("max diff size must be positive")
	}
	if c.Analysis.ModelTimeout <= 0 {
		return fmt.Errorf("model timeout must be positive")
	}

	return nil
}

func (c *Config) validateShared(port int) error {
	if port <= 0 || port > 65535 {
		return fmt.Errorf("invalid port: %d", port)
	}
	if c.HTTP.MaxBodySize <= 0 {
		return fmt.Errorf("max body size must be positive")
	}
	for _, cidr := range c.HTTP.TrustedProxies {
		if _, _, err := net.ParseCIDR(cidr); err != nil {
			return fmt.Errorf("invalid trusted proxy range %q: %w", cidr, err)
		}
	}
	if c.RateLimit.Window <= 0 {
		return fmt.Errorf("rate limit window must be positive")
	}
	if c.RateLimit.Max <= 0 {
		return fmt.Errorf("rate limit max must be positive")
	}
	return nil
}
