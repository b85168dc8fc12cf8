package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrNoTargets is returned when no platform is configured for monitoring
var ErrNoTargets = errors.New("configuration must define at least one target")

// Config holds the application configuration
type Config struct {
	ServerAddress string
	Environment   string
	LogLevel      string

	CheckInterval     time.Duration
	DeepCheckSchedule string
	RequestTimeout    time.Duration
	AICheckTimeout    time.Duration
	RestartDelay      time.Duration

	Thresholds Thresholds
	Targets    []TargetConfig
	DeepCheck  DeepCheckConfig
	NATS       NATSConfig
	Redis      RedisConfig
	WebSocket  WebSocketConfig
	RateLimit  RateLimitConfig

	CORSAllowedOrigins []string
}

// Thresholds drive classification, aggregation and retention
type Thresholds struct {
	ResponseTime      time.Duration
	CriticalDownCount int
	IncidentHistory   int
	ErrorHistory      int
	PatternWindow     int
	PatternThreshold  int
}

// TargetConfig defines a platform to monitor
type TargetConfig struct {
	Name       string `yaml:"name" json:"name"`
	URL        string `yaml:"url" json:"url"`
	HealthPath string `yaml:"health_path" json:"healthPath"`
}

// ProbeURL returns the full health endpoint of the target.
func (t TargetConfig) ProbeURL() string {
	return strings.TrimRight(t.URL, "/") + t.HealthPath
}

// DeepCheckConfig holds the collaborator endpoints probed by the deep check
type DeepCheckConfig struct {
	OrchestratorURL string
	AnalyticsURL    string
	AIServiceURL    string
}

// NATSConfig configures the NATS event sink
type NATSConfig struct {
	Enabled       bool
	URL           string
	SubjectPrefix string
	MaxReconnects int
	ReconnectWait time.Duration
}

// RedisConfig configures the Redis event sink
type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	Channel  string
}

// WebSocketConfig tunes dashboard websocket connections
type WebSocketConfig struct {
	ReadBufferSize  int
	WriteBufferSize int
	PingInterval    time.Duration
	PongWait        time.Duration
	WriteWait       time.Duration
	MaxMessageSize  int64
}

// RateLimitConfig bounds the API request rate
type RateLimitConfig struct {
	RPS   float64
	Burst int
}

type targetsFile struct {
	Targets []TargetConfig `yaml:"targets"`
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		ServerAddress:     getEnv("SERVER_ADDRESS", ":8097"),
		Environment:       getEnv("ENVIRONMENT", "development"),
		LogLevel:          getEnv("LOG_LEVEL", ""),
		CheckInterval:     time.Duration(getEnvAsInt("CHECK_INTERVAL_SECONDS", 30)) * time.Second,
		DeepCheckSchedule: getEnv("DEEP_CHECK_SCHEDULE", "@every 5m"),
		RequestTimeout:    time.Duration(getEnvAsInt("REQUEST_TIMEOUT_SECONDS", 5)) * time.Second,
		AICheckTimeout:    time.Duration(getEnvAsInt("AI_CHECK_TIMEOUT_SECONDS", 10)) * time.Second,
		RestartDelay:      time.Duration(getEnvAsInt("RESTART_DELAY_SECONDS", 5)) * time.Second,
		Thresholds: Thresholds{
			ResponseTime:      time.Duration(getEnvAsInt("RESPONSE_TIME_THRESHOLD_MS", 2000)) * time.Millisecond,
			CriticalDownCount: getEnvAsInt("CRITICAL_DOWN_THRESHOLD", 2),
			IncidentHistory:   getEnvAsInt("INCIDENT_HISTORY_LIMIT", 50),
			ErrorHistory:      getEnvAsInt("ERROR_HISTORY_LIMIT", 5),
			PatternWindow:     getEnvAsInt("PATTERN_WINDOW", 10),
			PatternThreshold:  getEnvAsInt("PATTERN_THRESHOLD", 3),
		},
		DeepCheck: DeepCheckConfig{
			OrchestratorURL: getEnv("ORCHESTRATOR_URL", "http://localhost:4000"),
			AnalyticsURL:    getEnv("ANALYTICS_URL", "http://localhost:3000"),
			AIServiceURL:    getEnv("AI_SERVICE_URL", "http://localhost:3000"),
		},
		NATS: NATSConfig{
			Enabled:       getEnvAsBool("NATS_ENABLED", false),
			URL:           getEnv("NATS_URL", "nats://nats.nats.svc.cluster.local:4222"),
			SubjectPrefix: getEnv("NATS_SUBJECT_PREFIX", "platform.health"),
			MaxReconnects: getEnvAsInt("NATS_MAX_RECONNECTS", -1),
			ReconnectWait: getEnvAsDuration("NATS_RECONNECT_WAIT", 2*time.Second),
		},
		Redis: RedisConfig{
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Channel:  getEnv("REDIS_CHANNEL", "platform-health:events"),
		},
		WebSocket: WebSocketConfig{
			ReadBufferSize:  getEnvAsInt("WS_READ_BUFFER_SIZE", 1024),
			WriteBufferSize: getEnvAsInt("WS_WRITE_BUFFER_SIZE", 1024),
			PingInterval:    getEnvAsDuration("WS_PING_INTERVAL", 30*time.Second),
			PongWait:        getEnvAsDuration("WS_PONG_WAIT", 60*time.Second),
			WriteWait:       getEnvAsDuration("WS_WRITE_WAIT", 10*time.Second),
			MaxMessageSize:  int64(getEnvAsInt("WS_MAX_MESSAGE_SIZE", 4096)),
		},
		RateLimit: RateLimitConfig{
			RPS:   getEnvAsFloat("API_RATE_LIMIT_RPS", 20),
			Burst: getEnvAsInt("API_RATE_LIMIT_BURST", 40),
		},
		CORSAllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "*")),
	}

	targets, err := loadTargets(getEnv("TARGETS_FILE", ""))
	if err != nil {
		return nil, err
	}
	cfg.Targets = targets

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// IsProduction reports whether the service runs in production
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// EffectiveLogLevel returns LOG_LEVEL, or debug outside production and info
// in production when it is unset
func (c *Config) EffectiveLogLevel() string {
	if c.LogLevel != "" {
		return c.LogLevel
	}
	if c.IsProduction() {
		return "info"
	}
	return "debug"
}

// Validate checks the configuration for values the monitor cannot run with
func (c *Config) Validate() error {
	if len(c.Targets) == 0 {
		return ErrNoTargets
	}
	seen := make(map[string]struct{}, len(c.Targets))
	for i, t := range c.Targets {
		if t.Name == "" {
			return fmt.Errorf("target %d is missing a name", i)
		}
		if t.URL == "" {
			return fmt.Errorf("target %s url is required", t.Name)
		}
		if _, dup := seen[t.Name]; dup {
			return fmt.Errorf("duplicate target name %q", t.Name)
		}
		seen[t.Name] = struct{}{}
	}
	if c.CheckInterval <= 0 {
		return errors.New("check interval must be positive")
	}
	if c.RequestTimeout <= 0 {
		return errors.New("request timeout must be positive")
	}
	if c.Thresholds.CriticalDownCount < 1 {
		return errors.New("critical down threshold must be at least 1")
	}
	if c.Thresholds.IncidentHistory < 1 || c.Thresholds.ErrorHistory < 1 {
		return errors.New("history limits must be at least 1")
	}
	if c.Thresholds.PatternWindow < 1 || c.Thresholds.PatternThreshold < 1 {
		return errors.New("pattern window and threshold must be at least 1")
	}
	return nil
}

// loadTargets reads the target list from a YAML file, falling back to the built-in platforms
func loadTargets(path string) ([]TargetConfig, error) {
	if path == "" {
		return defaultTargets(), nil
	}

	content, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return defaultTargets(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read targets file: %w", err)
	}

	var file targetsFile
	if err := yaml.Unmarshal(content, &file); err != nil {
		return nil, fmt.Errorf("parse targets file: %w", err)
	}
	for i := range file.Targets {
		if file.Targets[i].HealthPath == "" {
			file.Targets[i].HealthPath = "/health"
		}
	}
	return file.Targets, nil
}

func defaultTargets() []TargetConfig {
	return []TargetConfig{
		{Name: "shared-services", URL: getEnv("SHARED_SERVICES_URL", "http://localhost:3000"), HealthPath: "/health"},
		{Name: "mobile-app", URL: getEnv("MOBILE_APP_URL", "http://localhost:3000"), HealthPath: "/health"},
		{Name: "youtube-automation", URL: getEnv("YOUTUBE_AUTOMATION_URL", "http://localhost:3001"), HealthPath: "/health"},
		{Name: "print-on-demand", URL: getEnv("PRINT_ON_DEMAND_URL", "http://localhost:3002"), HealthPath: "/health"},
		{Name: "online-course", URL: getEnv("ONLINE_COURSE_URL", "http://localhost:3003"), HealthPath: "/health"},
		{Name: "automation-orchestrator", URL: getEnv("ORCHESTRATOR_URL", "http://localhost:4000"), HealthPath: "/health"},
	}
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
