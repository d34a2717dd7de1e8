package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type EnvConfig struct {
	// Invalid lists set variables that failed to parse; their defaults were used.
	Invalid   []InvalidValue
	SessionID string
	LLM       LLMEnvConfig
	OTel      OTelEnvConfig
	Log       LogEnvConfig
	SMTP      SMTPEnvConfig
}

type LLMEnvConfig struct {
	Backend     string // "http" or "openai"
	APIKey      string
	BaseURL     string
	Model       string
	Temperature *float64
	Timeout     time.Duration
	MaxRetries  *int
	Referer     string
	Title       string
	// APIErrorRetryRule is an expr rule deciding whether provider-reported errors are retried.
	APIErrorRetryRule string
	OTel              LLMOTelEnvConfig
}

type LLMOTelEnvConfig struct {
	Enabled       bool
	CaptureBodies bool
	MaxBodyBytes  int
}

type OTelEnvConfig struct {
	Enabled     bool
	ServiceName string
	Endpoint    string
	Protocol    string // "grpc" or "http/protobuf"
	Headers     map[string]string
	Insecure    bool
	SampleRatio float64
}

// SMTPEnvConfig configures itinerary delivery by email. Host empty disables it.
type SMTPEnvConfig struct {
	Host               string
	Port               int
	User               string
	Password           string
	From               string
	TLSMode            string // auto, disabled, starttls or implicit
	InsecureSkipVerify bool
}

type LogEnvConfig struct {
	Level  string
	Format string // "text" or "json"
}

// InvalidValue is an environment variable whose value could not be parsed.
type InvalidValue struct {
	Key   string
	Value string
	Err   error
}

func (v InvalidValue) Error() string {
	return fmt.Sprintf("%s=%q: %v", v.Key, v.Value, v.Err)
}

// envReader parses typed variables and records the ones it had to ignore.
type envReader struct {
	invalid []InvalidValue
}

func (r *envReader) reject(key, value string, err error) {
	r.invalid = append(r.invalid, InvalidValue{Key: key, Value: value, Err: err})
}

func LoadEnv() EnvConfig {
	env := &envReader{}
	otlpEndpoint := strings.TrimSpace(envString("OTEL_EXPORTER_OTLP_ENDPOINT", ""))

	apiKey := envString("LLM_API_KEY", "")
	if apiKey == "" {
		apiKey = envString("OPENROUTER_API_KEY", "")
	}

	cfg := EnvConfig{
		SessionID: envString("SESSION_ID", ""),
		LLM: LLMEnvConfig{
			Backend:           strings.ToLower(envString("LLM_BACKEND", "http")),
			APIKey:            apiKey,
			BaseURL:           envString("LLM_BASE_URL", ""),
			Model:             envString("LLM_MODEL", ""),
			Temperature:       env.floatPtr("LLM_TEMPERATURE"),
			Timeout:           env.timeout("LLM_TIMEOUT", 0),
			MaxRetries:        env.intPtr("LLM_MAX_RETRIES"),
			Referer:           envString("LLM_HTTP_REFERER", ""),
			Title:             envString("LLM_APP_TITLE", ""),
			APIErrorRetryRule: envString("LLM_API_ERROR_RETRY_RULE", ""),
			OTel: LLMOTelEnvConfig{
				Enabled:       envBool("OTEL_LLM_ENABLED", true),
				CaptureBodies: envBool("OTEL_CAPTURE_LLM_BODIES", false),
				MaxBodyBytes:  env.int("OTEL_LLM_MAX_BODY_BYTES", 64*1024),
			},
		},
		OTel: OTelEnvConfig{
			Enabled:     envBool("OTEL_ENABLED", false),
			ServiceName: envString("OTEL_SERVICE_NAME", "wanderlust-ai"),
			Endpoint:    otlpEndpoint,
			Protocol:    strings.ToLower(envString("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc")),
			Headers:     parseHeaders(envString("OTEL_EXPORTER_OTLP_HEADERS", "")),
			Insecure:    envBool("OTEL_EXPORTER_OTLP_INSECURE", defaultInsecure(otlpEndpoint)),
			SampleRatio: clamp01(env.float("OTEL_TRACES_SAMPLE_RATIO", 1.0)),
		},
		Log: LogEnvConfig{
			Level:  strings.ToLower(envString("LOG_LEVEL", "info")),
			Format: strings.ToLower(envString("LOG_FORMAT", "text")),
		},
		SMTP: SMTPEnvConfig{
			Host:               envString("SMTP_HOST", ""),
			Port:               env.int("SMTP_PORT", 587),
			User:               envString("SMTP_USER", ""),
			Password:           envString("SMTP_PASSWORD", ""),
			From:               envString("SMTP_FROM", ""),
			TLSMode:            envString("SMTP_TLS_MODE", ""),
			InsecureSkipVerify: envBool("SMTP_INSECURE_SKIP_VERIFY", false),
		},
	}
	cfg.Invalid = env.invalid
	return cfg
}

func envString(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "y", "on":
		return true
	default:
		return false
	}
}

func (r *envReader) int(key string, fallback int) int {
	if p := r.intPtr(key); p != nil {
		return *p
	}
	return fallback
}

func (r *envReader) intPtr(key string) *int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		r.reject(key, v, err)
		return nil
	}
	return &i
}

func (r *envReader) float(key string, fallback float64) float64 {
	if p := r.floatPtr(key); p != nil {
		return *p
	}
	return fallback
}

func (r *envReader) floatPtr(key string) *float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		r.reject(key, v, err)
		return nil
	}
	return &f
}

func (r *envReader) timeout(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := ParseTimeout(v)
	if err != nil {
		r.reject(key, v, err)
		return fallback
	}
	return d
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func parseHeaders(raw string) map[string]string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	out := map[string]string{}
	for _, part := range strings.Split(raw, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		k = strings.TrimSpace(k)
		v = strings.TrimSpace(v)
		if k == "" || v == "" {
			continue
		}
		out[k] = v
	}
	return out
}

func defaultInsecure(endpoint string) bool {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return true
	}
	if strings.Contains(endpoint, "://") {
		u, err := url.Parse(endpoint)
		if err != nil {
			return false
		}
		return u.Scheme == "http"
	}
	return strings.HasPrefix(endpoint, "localhost:") ||
		strings.HasPrefix(endpoint, "127.0.0.1:")
}
