package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment" default:"development" validate:"required,oneof=development staging production test"`
	Log         struct {
		Level      string `yaml:"level" default:"info" validate:"oneof=debug info warn error fatal panic"`
		Format     string `yaml:"format" default:"console" validate:"oneof=json console"`
		Output     string `yaml:"output" default:"stdout"`
		TimeFormat string `yaml:"time_format"`
		Collect    bool   `yaml:"collect"`
	} `yaml:"log"`
	Server struct {
		Port            int           `yaml:"port" default:"8080" validate:"gt=0,lt=65536"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"15s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
		DecidePerMinute int           `yaml:"decide_per_minute" default:"600" validate:"gt=0"`
		CORSOrigins     []string      `yaml:"cors_origins"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Tracing struct {
		Enabled     bool   `yaml:"enabled"`
		ServiceName string `yaml:"service_name" default:"newssignal"`
	} `yaml:"tracing"`
	Engine   EngineConfig   `yaml:"engine"`
	AI       AIConfig       `yaml:"ai"`
	Notify   NotifyConfig   `yaml:"notify"`
	State    StateConfig    `yaml:"state"`
	Ingest   IngestConfig   `yaml:"ingest"`
	Delivery DeliveryConfig `yaml:"delivery"`
	Kafka    struct {
		Enabled         bool     `yaml:"enabled"`
		Brokers         []string `yaml:"brokers" validate:"required_if=Enabled true"`
		StatementsTopic string   `yaml:"statements_topic" default:"newssignal.statements"`
		DecisionsTopic  string   `yaml:"decisions_topic" default:"newssignal.decisions"`
		LogsTopic       string   `yaml:"logs_topic" default:"newssignal.logs"`
		RequiredAcks    int      `yaml:"required_acks" default:"1"`
		Compression     string   `yaml:"compression" default:"snappy"`
		Producer        struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"5"`
			Linger       time.Duration `yaml:"linger" default:"10ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			Enabled    bool          `yaml:"enabled"`
			GroupID    string        `yaml:"group_id" default:"newssignal-engine"`
			Workers    int           `yaml:"workers" default:"4"`
			BufferSize int           `yaml:"buffer_size" default:"256"`
			RetryMax   int           `yaml:"retry_max" default:"3"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"100ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"5s"`
			DLQTopic   string        `yaml:"dlq_topic" default:"newssignal.statements.dlq"`
			MinBytes   int           `yaml:"min_bytes" default:"1"`
			MaxBytes   int           `yaml:"max_bytes" default:"10485760"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Enabled          bool          `yaml:"enabled"`
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"newssignal"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"30s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
	} `yaml:"clickhouse"`
	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Addr     string `yaml:"addr" default:"localhost:6379"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix" default:"newssignal"`
		PoolSize int    `yaml:"pool_size" default:"10"`
		// LocalTTL bounds how long a replica serves a value from memory.
		LocalTTL time.Duration `yaml:"local_ttl" default:"5m"`
	} `yaml:"redis"`
	// Queue is the Redis list intake for statements, an alternative to Kafka.
	Queue struct {
		Enabled    bool          `yaml:"enabled"`
		Workers    int           `yaml:"workers" default:"2" validate:"gt=0"`
		RetryLimit int           `yaml:"retry_limit" default:"3"`
		RetryDelay time.Duration `yaml:"retry_delay" default:"10s"`
		Prefix     string        `yaml:"prefix" default:"newssignal:queue"`
	} `yaml:"queue"`
}

// EngineConfig holds the scoring pipeline resources and tunables.
type EngineConfig struct {
	RelevancePath   string        `yaml:"relevance_path"`
	RelevanceFloor  *float64      `yaml:"relevance_threshold" validate:"omitempty,gte=0,lte=1"`
	SourceWeights   string        `yaml:"source_weights_path"`
	LexiconPath     string        `yaml:"lexicon_path"`
	CalibrationPath string        `yaml:"calibration_path"`
	NERDir          string        `yaml:"ner_dir"`
	RulesPath       string        `yaml:"rules_path"`
	HotReload       bool          `yaml:"hot_reload" default:"true"`
	ReloadInterval  time.Duration `yaml:"reload_interval" default:"2s"`
	HistorySize     int           `yaml:"history_size" default:"500" validate:"gt=0"`
	Workers         int           `yaml:"workers" default:"8" validate:"gt=0"`
	Antispam        struct {
		WindowSize int           `yaml:"window_size" default:"128" validate:"gt=0"`
		Similarity float64       `yaml:"similarity" default:"0.9" validate:"gt=0,lte=1"`
		Horizon    time.Duration `yaml:"horizon" default:"10m"`
	} `yaml:"antispam"`
	Rerank struct {
		RelevanceThreshold float64 `yaml:"relevance_threshold" default:"0" validate:"gte=0,lte=1"`
		Similarity         float64 `yaml:"similarity" default:"0.9" validate:"gt=0,lte=1"`
		Decay              float64 `yaml:"decay" default:"0.7" validate:"gt=0,lte=1"`
	} `yaml:"rerank"`
	EvictSchedule string `yaml:"evict_schedule" default:"@every 1m"`
}

type AIConfig struct {
	Enabled        bool          `yaml:"enabled"`
	Provider       string        `yaml:"provider" default:"mock" validate:"oneof=mock openai claude none"`
	APIKey         string        `yaml:"api_key" default:"ENV"`
	Model          string        `yaml:"model"`
	BaseURL        string        `yaml:"base_url"`
	DailyLimit     int           `yaml:"daily_limit" default:"20" validate:"gte=0"`
	AllowedSources []string      `yaml:"allowed_sources"`
	Band           float64       `yaml:"borderline_band" default:"0.1" validate:"gte=0,lte=1"`
	Timeout        time.Duration `yaml:"timeout" default:"5s"`
	CacheTTL       time.Duration `yaml:"cache_ttl" default:"24h"`
	SharedCache    bool          `yaml:"shared_cache"`
	Breaker        struct {
		MaxFailures uint32        `yaml:"max_failures" default:"5"`
		OpenTimeout time.Duration `yaml:"open_timeout" default:"30s"`
	} `yaml:"breaker"`
}

type NotifyConfig struct {
	Enabled      bool          `yaml:"enabled" default:"true"`
	PollSchedule string        `yaml:"poll_schedule" default:"@every 60s"`
	Cooldown     time.Duration `yaml:"cooldown" default:"180m"`
	SendTimeout  time.Duration `yaml:"send_timeout" default:"5s"`
	PerMinute    int           `yaml:"per_minute" default:"10" validate:"gt=0"`
	Slack        struct {
		WebhookURL string `yaml:"webhook_url" validate:"omitempty,url"`
	} `yaml:"slack"`
	Discord struct {
		WebhookURL string `yaml:"webhook_url" validate:"omitempty,url"`
	} `yaml:"discord"`
	LogSink bool `yaml:"log_sink" default:"true"`
}

type StateConfig struct {
	Backend  string `yaml:"backend" default:"none" validate:"oneof=none file redis"`
	Path     string `yaml:"path" default:"state"` // directory for the file backend
	Schedule string `yaml:"checkpoint_schedule" default:"@every 30s"`
}

type IngestConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Schedule    string        `yaml:"schedule" default:"@every 5m"`
	Whitelist   []string      `yaml:"whitelist"`
	DedupWindow time.Duration `yaml:"dedup_window" default:"10m"`
	MaxLen      int           `yaml:"max_len" default:"1500" validate:"gt=0"`
	Reuters     struct {
		Enabled bool   `yaml:"enabled"`
		URL     string `yaml:"url" default:"https://www.reutersagency.com/feed/?best-topics=business-finance"`
	} `yaml:"reuters"`
	Fed struct {
		Enabled bool   `yaml:"enabled"`
		URL     string `yaml:"url" default:"https://www.federalreserve.gov/feeds/press_all.xml"`
	} `yaml:"fed"`
	// Finnhub streams company news over a websocket; the ingest job drains it.
	Finnhub struct {
		Enabled        bool          `yaml:"enabled"`
		APIKey         string        `yaml:"api_key"`
		URL            string        `yaml:"url" default:"wss://ws.finnhub.io"`
		Symbols        []string      `yaml:"symbols"`
		ReconnectDelay time.Duration `yaml:"reconnect_delay" default:"5s"`
		PingInterval   time.Duration `yaml:"ping_interval" default:"30s"`
		BufferSize     int           `yaml:"buffer_size" default:"1000"`
	} `yaml:"finnhub"`
}

// DeliveryConfig controls where committed decisions are routed.
type DeliveryConfig struct {
	Backend    string `yaml:"backend" default:"none" validate:"oneof=none kafka clickhouse"`
	MaxRPS     int    `yaml:"max_rps" default:"50"`
	BufferSize int    `yaml:"buffer_size" default:"1000"`
	Stream     bool   `yaml:"stream" default:"true"`
}

var validate = validator.New()

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML bytes, applies defaults and validates the result.
func Parse(b []byte) (*Config, error) {
	// Defaults first so explicit zero values in YAML (false, 0) survive.
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// LoadWithEnv loads .env (if present), the YAML file, then applies
// environment overrides.
func LoadWithEnv(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	if err := c.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	list := func(key string, dst *[]string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = splitList(v)
		}
	}

	str("NEWSSIGNAL_ENV", &c.Environment)
	str("LOG_LEVEL", &c.Log.Level)
	str("RELEVANCE_CONFIG_PATH", &c.Engine.RelevancePath)
	if v, ok := lookup("RELEVANCE_THRESHOLD"); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("RELEVANCE_THRESHOLD: %w", err)
		}
		f = min(max(f, 0), 1)
		c.Engine.RelevanceFloor = &f
	}
	if v, ok := lookup("HOT_RELOAD"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("HOT_RELOAD: %w", err)
		}
		c.Engine.HotReload = b
	}

	if v, ok := lookup("AI_ENABLED"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("AI_ENABLED: %w", err)
		}
		c.AI.Enabled = b
	}
	str("AI_PROVIDER", &c.AI.Provider)
	list("AI_SOURCES", &c.AI.AllowedSources)
	if v, ok := lookup("AI_DAILY_LIMIT"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("AI_DAILY_LIMIT: %w", err)
		}
		c.AI.DailyLimit = n
	}
	if v, ok := lookup("AI_BORDERLINE_BAND"); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("AI_BORDERLINE_BAND: %w", err)
		}
		c.AI.Band = f
	}
	if c.AI.APIKey == "ENV" || c.AI.APIKey == "" {
		c.AI.APIKey = ""
		switch c.AI.Provider {
		case "openai":
			str("OPENAI_API_KEY", &c.AI.APIKey)
		case "claude":
			str("ANTHROPIC_API_KEY", &c.AI.APIKey)
		}
	}

	str("NOTIFY_POLL_SCHEDULE", &c.Notify.PollSchedule)
	if v, ok := lookup("NOTIFY_COOLDOWN"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("NOTIFY_COOLDOWN: %w", err)
		}
		c.Notify.Cooldown = d
	}
	str("SLACK_WEBHOOK_URL", &c.Notify.Slack.WebhookURL)
	str("DISCORD_WEBHOOK_URL", &c.Notify.Discord.WebhookURL)

	list("KAFKA_BROKERS", &c.Kafka.Brokers)
	str("REDIS_ADDR", &c.Redis.Addr)
	str("REDIS_PASSWORD", &c.Redis.Password)
	list("INGEST_WHITELIST", &c.Ingest.Whitelist)
	str("FINNHUB_API_KEY", &c.Ingest.Finnhub.APIKey)
	list("FINNHUB_SYMBOLS", &c.Ingest.Finnhub.Symbols)
	return nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.AI.Enabled && (c.AI.Provider == "openai" || c.AI.Provider == "claude") && c.AI.APIKey == "" {
		return fmt.Errorf("ai.api_key is required for provider %q", c.AI.Provider)
	}
	if c.Ingest.Finnhub.Enabled && c.Ingest.Finnhub.APIKey == "" {
		return fmt.Errorf("ingest.finnhub.api_key is required when finnhub is enabled")
	}
	if c.AI.SharedCache && !c.Redis.Enabled {
		return fmt.Errorf("ai.shared_cache requires redis.enabled")
	}
	if c.State.Backend == "redis" && !c.Redis.Enabled {
		return fmt.Errorf("state.backend=redis requires redis.enabled")
	}
	if c.Delivery.Backend == "kafka" && !c.Kafka.Enabled {
		return fmt.Errorf("delivery.backend=kafka requires kafka.enabled")
	}
	if c.Delivery.Backend == "clickhouse" && !c.ClickHouse.Enabled {
		return fmt.Errorf("delivery.backend=clickhouse requires clickhouse.enabled")
	}
	return nil
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
