package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultTickInterval is the cadence at which production is added to the counter.
	DefaultTickInterval = time.Second
	// DefaultAutosaveInterval is the cadence of automatic saves.
	DefaultAutosaveInterval = 5 * time.Second
	// DefaultSaveDir is where the file store keeps save blobs.
	DefaultSaveDir = "saves"
	// DefaultSaveKey is the durable-store slot holding the game.
	DefaultSaveKey = "idle_game_save"
	// DefaultCodec selects the on-disk compression of save blobs.
	DefaultCodec = "identity"
	// DefaultQueueSize bounds the number of pending actions.
	DefaultQueueSize = 64

	// DefaultHTTPAddr is the listen address of the HTTP and WebSocket API.
	DefaultHTTPAddr = ":8080"
	// DefaultGRPCAddr is the listen address of the gRPC API. Empty disables it.
	DefaultGRPCAddr = ":9090"

	// DefaultManualSaveWindow bounds how often save/load may be requested over the API.
	DefaultManualSaveWindow = 10 * time.Second
	// DefaultManualSaveBurst sets how many save/load requests fit in a window.
	DefaultManualSaveBurst = 5

	// DefaultLogLevel controls verbosity for daemon logs.
	DefaultLogLevel = "info"
	// DefaultLogMaxSizeMB caps the size of a single log file before rotation.
	DefaultLogMaxSizeMB = 50
	// DefaultLogMaxBackups limits retained rotated log files.
	DefaultLogMaxBackups = 5
	// DefaultLogMaxAgeDays controls how long rotated log files are kept on disk.
	DefaultLogMaxAgeDays = 7
	// DefaultLogCompress toggles gzip compression for rotated log files.
	DefaultLogCompress = true

	// DefaultEnvFile is loaded before reading the environment when present.
	DefaultEnvFile = ".env"
)

// Config captures all runtime tunables for the idle game daemon.
type Config struct {
	TickInterval     time.Duration
	AutosaveInterval time.Duration
	QueueSize        int
	SaveDir          string
	SaveKey          string
	Codec            string
	Ephemeral        bool
	SaveOnExit       bool
	LoadOnStart      bool
	JournalPath      string

	HTTPAddr       string
	AllowedOrigins []string
	GRPCAddr       string
	GRPCSecret     string

	ManualSaveWindow time.Duration
	ManualSaveBurst  int

	Logging LoggingConfig
}

// LoggingConfig captures structured logging configuration options.
type LoggingConfig struct {
	Level      string
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// fileConfig mirrors Config in the optional YAML file named by IDLE_CONFIG.
type fileConfig struct {
	TickInterval     string   `yaml:"tick_interval"`
	AutosaveInterval string   `yaml:"autosave_interval"`
	QueueSize        int      `yaml:"queue_size"`
	SaveDir          string   `yaml:"save_dir"`
	SaveKey          string   `yaml:"save_key"`
	Codec            string   `yaml:"codec"`
	Ephemeral        *bool    `yaml:"ephemeral"`
	SaveOnExit       *bool    `yaml:"save_on_exit"`
	LoadOnStart      *bool    `yaml:"load_on_start"`
	JournalPath      string   `yaml:"journal_path"`
	HTTPAddr         string   `yaml:"http_addr"`
	AllowedOrigins   []string `yaml:"allowed_origins"`
	GRPCAddr         *string  `yaml:"grpc_addr"`
	GRPCSecret       string   `yaml:"grpc_secret"`
	ManualSaveWindow string   `yaml:"manual_save_window"`
	ManualSaveBurst  int      `yaml:"manual_save_burst"`
	Logging          struct {
		Level      string `yaml:"level"`
		Path       string `yaml:"path"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups *int   `yaml:"max_backups"`
		MaxAgeDays *int   `yaml:"max_age_days"`
		Compress   *bool  `yaml:"compress"`
	} `yaml:"logging"`
}

// Codecs lists the accepted values of IDLE_CODEC.
var Codecs = []string{"identity", "gzip", "zstd", "snappy"}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		TickInterval:     DefaultTickInterval,
		AutosaveInterval: DefaultAutosaveInterval,
		QueueSize:        DefaultQueueSize,
		SaveDir:          DefaultSaveDir,
		SaveKey:          DefaultSaveKey,
		Codec:            DefaultCodec,
		SaveOnExit:       true,
		LoadOnStart:      true,
		HTTPAddr:         DefaultHTTPAddr,
		GRPCAddr:         DefaultGRPCAddr,
		ManualSaveWindow: DefaultManualSaveWindow,
		ManualSaveBurst:  DefaultManualSaveBurst,
		Logging: LoggingConfig{
			Level:      DefaultLogLevel,
			MaxSizeMB:  DefaultLogMaxSizeMB,
			MaxBackups: DefaultLogMaxBackups,
			MaxAgeDays: DefaultLogMaxAgeDays,
			Compress:   DefaultLogCompress,
		},
	}
}

// Load builds the configuration from defaults, an optional .env file, an
// optional YAML file and finally IDLE_* environment variables, in increasing
// precedence. Every invalid value is reported in a single error.
func Load() (*Config, error) {
	envFile := getString("IDLE_ENV_FILE", DefaultEnvFile)
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", envFile, err)
	}

	cfg := Default()
	var problems []string

	if path := strings.TrimSpace(os.Getenv("IDLE_CONFIG")); path != "" {
		if err := cfg.applyFile(path); err != nil {
			problems = append(problems, err.Error())
		}
	}

	cfg.SaveDir = getString("IDLE_SAVE_DIR", cfg.SaveDir)
	cfg.SaveKey = getString("IDLE_SAVE_KEY", cfg.SaveKey)
	cfg.Codec = strings.ToLower(getString("IDLE_CODEC", cfg.Codec))
	cfg.JournalPath = getString("IDLE_JOURNAL_PATH", cfg.JournalPath)
	cfg.HTTPAddr = getString("IDLE_HTTP_ADDR", cfg.HTTPAddr)
	cfg.GRPCSecret = getString("IDLE_GRPC_SECRET", cfg.GRPCSecret)
	cfg.Logging.Level = getString("IDLE_LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Path = getString("IDLE_LOG_PATH", cfg.Logging.Path)
	if raw, ok := os.LookupEnv("IDLE_GRPC_ADDR"); ok {
		cfg.GRPCAddr = strings.TrimSpace(raw)
	}
	if origins := parseList(os.Getenv("IDLE_ALLOWED_ORIGINS")); origins != nil {
		cfg.AllowedOrigins = origins
	}

	durationVar(&problems, "IDLE_TICK_INTERVAL", &cfg.TickInterval)
	durationVar(&problems, "IDLE_AUTOSAVE_INTERVAL", &cfg.AutosaveInterval)
	durationVar(&problems, "IDLE_MANUAL_SAVE_WINDOW", &cfg.ManualSaveWindow)
	positiveIntVar(&problems, "IDLE_QUEUE_SIZE", &cfg.QueueSize)
	positiveIntVar(&problems, "IDLE_MANUAL_SAVE_BURST", &cfg.ManualSaveBurst)
	positiveIntVar(&problems, "IDLE_LOG_MAX_SIZE_MB", &cfg.Logging.MaxSizeMB)
	nonNegativeIntVar(&problems, "IDLE_LOG_MAX_BACKUPS", &cfg.Logging.MaxBackups)
	nonNegativeIntVar(&problems, "IDLE_LOG_MAX_AGE_DAYS", &cfg.Logging.MaxAgeDays)
	boolVar(&problems, "IDLE_LOG_COMPRESS", &cfg.Logging.Compress)
	boolVar(&problems, "IDLE_EPHEMERAL", &cfg.Ephemeral)
	boolVar(&problems, "IDLE_SAVE_ON_EXIT", &cfg.SaveOnExit)
	boolVar(&problems, "IDLE_LOAD_ON_START", &cfg.LoadOnStart)

	problems = append(problems, cfg.validate()...)

	if len(problems) > 0 {
		return nil, errors.New(strings.Join(problems, "; "))
	}
	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("IDLE_CONFIG: %v", err)
	}
	var file fileConfig
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("IDLE_CONFIG %s: %v", path, err)
	}

	var problems []string
	parseDuration := func(field, raw string, dst *time.Duration) {
		if raw == "" {
			return
		}
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			problems = append(problems, fmt.Sprintf("%s must be a positive duration, got %q", field, raw))
			return
		}
		*dst = d
	}
	parseDuration("tick_interval", file.TickInterval, &c.TickInterval)
	parseDuration("autosave_interval", file.AutosaveInterval, &c.AutosaveInterval)
	parseDuration("manual_save_window", file.ManualSaveWindow, &c.ManualSaveWindow)

	if file.QueueSize > 0 {
		c.QueueSize = file.QueueSize
	}
	if file.ManualSaveBurst > 0 {
		c.ManualSaveBurst = file.ManualSaveBurst
	}
	setString(&c.SaveDir, file.SaveDir)
	setString(&c.SaveKey, file.SaveKey)
	setString(&c.Codec, strings.ToLower(file.Codec))
	setString(&c.JournalPath, file.JournalPath)
	setString(&c.HTTPAddr, file.HTTPAddr)
	setString(&c.GRPCSecret, file.GRPCSecret)
	if file.GRPCAddr != nil {
		c.GRPCAddr = strings.TrimSpace(*file.GRPCAddr)
	}
	if len(file.AllowedOrigins) > 0 {
		c.AllowedOrigins = append([]string(nil), file.AllowedOrigins...)
	}
	setBool(&c.Ephemeral, file.Ephemeral)
	setBool(&c.SaveOnExit, file.SaveOnExit)
	setBool(&c.LoadOnStart, file.LoadOnStart)

	setString(&c.Logging.Level, file.Logging.Level)
	setString(&c.Logging.Path, file.Logging.Path)
	if file.Logging.MaxSizeMB > 0 {
		c.Logging.MaxSizeMB = file.Logging.MaxSizeMB
	}
	if file.Logging.MaxBackups != nil {
		c.Logging.MaxBackups = *file.Logging.MaxBackups
	}
	if file.Logging.MaxAgeDays != nil {
		c.Logging.MaxAgeDays = *file.Logging.MaxAgeDays
	}
	setBool(&c.Logging.Compress, file.Logging.Compress)

	if len(problems) > 0 {
		return fmt.Errorf("IDLE_CONFIG %s: %s", path, strings.Join(problems, ", "))
	}
	return nil
}

func (c *Config) validate() []string {
	var problems []string
	validCodec := false
	for _, name := range Codecs {
		if c.Codec == name {
			validCodec = true
		}
	}
	if !validCodec {
		problems = append(problems, fmt.Sprintf("IDLE_CODEC must be one of %s, got %q", strings.Join(Codecs, "|"), c.Codec))
	}
	if strings.TrimSpace(c.SaveKey) == "" {
		problems = append(problems, "IDLE_SAVE_KEY must not be empty")
	}
	if !c.Ephemeral && strings.TrimSpace(c.SaveDir) == "" {
		problems = append(problems, "IDLE_SAVE_DIR must be set unless IDLE_EPHEMERAL is true")
	}
	if c.Logging.MaxBackups < 0 || c.Logging.MaxAgeDays < 0 {
		problems = append(problems, "log retention values must be non-negative")
	}
	return problems
}

func durationVar(problems *[]string, key string, dst *time.Duration) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		*problems = append(*problems, fmt.Sprintf("%s must be a positive duration, got %q", key, raw))
		return
	}
	*dst = d
}

func positiveIntVar(problems *[]string, key string, dst *int) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		*problems = append(*problems, fmt.Sprintf("%s must be a positive integer, got %q", key, raw))
		return
	}
	*dst = value
}

func nonNegativeIntVar(problems *[]string, key string, dst *int) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		*problems = append(*problems, fmt.Sprintf("%s must be a non-negative integer, got %q", key, raw))
		return
	}
	*dst = value
}

func boolVar(problems *[]string, key string, dst *bool) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		*problems = append(*problems, fmt.Sprintf("%s must be a boolean value, got %q", key, raw))
		return
	}
	*dst = value
}

func setString(dst *string, value string) {
	if value = strings.TrimSpace(value); value != "" {
		*dst = value
	}
}

func setBool(dst *bool, value *bool) {
	if value != nil {
		*dst = *value
	}
}

func getString(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func parseList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		if item := strings.TrimSpace(part); item != "" {
			values = append(values, item)
		}
	}
	return values
}
