package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the pipeline services
type Config struct {
	General  GeneralConfig  `mapstructure:"general"`
	Server   ServerConfig   `mapstructure:"server"`
	Output   OutputConfig   `mapstructure:"output"`
	Watch    WatchConfig    `mapstructure:"watch"`
	Tools    ToolsConfig    `mapstructure:"tools"`
	Nostr    NostrConfig    `mapstructure:"nostr"`
	Trigger  TriggerConfig  `mapstructure:"trigger"`
	Blossom  BlossomConfig  `mapstructure:"blossom"`
	Prefetch PrefetchConfig `mapstructure:"prefetch"`
	Storage  StorageConfig  `mapstructure:"storage"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Debug    bool   `mapstructure:"debug"`
	LogLevel string `mapstructure:"log_level"`
}

// ServerConfig contains HTTP server and auth settings
type ServerConfig struct {
	Address   string `mapstructure:"address"`
	JWTSecret string `mapstructure:"jwt_secret"` // optional; empty disables token checks
}

// OutputConfig locates the shared job store on disk.
type OutputConfig struct {
	Dir string `mapstructure:"dir"`
}

// WatchConfig contains the shared stage-watcher loop settings
type WatchConfig struct {
	PollInterval  time.Duration `mapstructure:"poll_interval"`
	Debounce      time.Duration `mapstructure:"debounce"`
	VideoDebounce time.Duration `mapstructure:"video_debounce"`
	MetricsPort   int           `mapstructure:"metrics_port"`
}

// ToolsConfig identifies the remote tool server and the per-stage tool names
type ToolsConfig struct {
	ServerURL  string        `mapstructure:"server_url"`
	DailyTool  string        `mapstructure:"daily_tool"`
	WeeklyTool string        `mapstructure:"weekly_tool"`
	AccessTool string        `mapstructure:"access_tool"`
	Timeout    time.Duration `mapstructure:"timeout"`
	Debug      bool          `mapstructure:"debug"`
}

// NostrConfig contains signing key material and the relay set for publishing
type NostrConfig struct {
	PrivateKey string   `mapstructure:"private_key"` // 64-char hex
	Relays     []string `mapstructure:"relays"`
}

// TriggerConfig contains the montage trigger endpoint settings
type TriggerConfig struct {
	URL         string `mapstructure:"url"`
	Token       string `mapstructure:"token"`
	RecipeID    string `mapstructure:"recipe_id"`
	SessionName string `mapstructure:"session_name"`
}

// BlossomConfig contains the content-addressed upload host settings
type BlossomConfig struct {
	Servers     []string `mapstructure:"servers"`
	UploadPaths []string `mapstructure:"upload_paths"`
	Debug       bool     `mapstructure:"debug"`
}

// PrefetchConfig bounds the media prefetcher
type PrefetchConfig struct {
	MaxBytes    int64 `mapstructure:"max_bytes"`
	Concurrency int   `mapstructure:"concurrency"`
}

// StorageConfig contains optional backing services
type StorageConfig struct {
	Redis RedisConfig `mapstructure:"redis"`
}

// RedisConfig contains Redis connection settings for the admission lock.
// An empty host leaves the in-memory admitter in place.
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (r RedisConfig) Enabled() bool { return strings.TrimSpace(r.Host) != "" }

func (r RedisConfig) Validate() error {
	if !r.Enabled() {
		return nil
	}
	if strings.TrimSpace(r.Port) == "" {
		return fmt.Errorf("storage.redis.port required when host is set")
	}
	return nil
}

func (w WatchConfig) Validate() error {
	if w.PollInterval <= 0 {
		return fmt.Errorf("watch.poll_interval must be > 0")
	}
	if w.Debounce < 0 || w.VideoDebounce < 0 {
		return fmt.Errorf("watch debounce values cannot be negative")
	}
	return nil
}

func (t ToolsConfig) Validate() error {
	if strings.TrimSpace(t.ServerURL) == "" {
		return fmt.Errorf("tools.server_url required")
	}
	return nil
}

func (n NostrConfig) Validate() error {
	if n.PrivateKey != "" && len(n.PrivateKey) != 64 {
		return fmt.Errorf("nostr.private_key must be 64 hex chars")
	}
	return nil
}

func (p PrefetchConfig) Validate() error {
	if p.MaxBytes <= 0 {
		return fmt.Errorf("prefetch.max_bytes must be > 0")
	}
	if p.Concurrency <= 0 {
		return fmt.Errorf("prefetch.concurrency must be > 0")
	}
	return nil
}

// LoadConfig loads config from file. Every option carries a literal default so
// a missing config file still yields a runnable configuration.
func LoadConfig(path string) *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("json")

	viper.SetDefault("general.debug", false)
	viper.SetDefault("general.log_level", "info")
	viper.SetDefault("server.address", ":3080")
	viper.SetDefault("server.jwt_secret", "")
	viper.SetDefault("output.dir", "output")
	viper.SetDefault("watch.poll_interval", 2*time.Second)
	viper.SetDefault("watch.debounce", time.Second)
	viper.SetDefault("watch.video_debounce", 500*time.Millisecond)
	viper.SetDefault("watch.metrics_port", 0)
	viper.SetDefault("tools.server_url", "https://cvm.otherstuff.studio/mcp")
	viper.SetDefault("tools.daily_tool", "summarise")
	viper.SetDefault("tools.weekly_tool", "weekly_summary")
	viper.SetDefault("tools.access_tool", "cashu_access")
	viper.SetDefault("tools.timeout", 2*time.Minute)
	viper.SetDefault("tools.debug", false)
	viper.SetDefault("nostr.private_key", "")
	viper.SetDefault("nostr.relays", []string{
		"wss://relay.damus.io",
		"wss://nos.lol",
		"wss://purplepag.es/",
		"wss://index.hzrd149.com/",
		"wss://relay.devvul.com",
	})
	viper.SetDefault("trigger.url", "http://dev.otherstuff.studio:3000/api/triggers/")
	viper.SetDefault("trigger.token", "")
	viper.SetDefault("trigger.recipe_id", "24fff1dda53900e41493cdf2ff643854")
	viper.SetDefault("trigger.session_name", "Short Video Montage")
	viper.SetDefault("blossom.servers", []string{"https://blossom.primal.net/"})
	viper.SetDefault("blossom.upload_paths", []string{"", "upload", "api/upload", "files", "api/files"})
	viper.SetDefault("blossom.debug", false)
	viper.SetDefault("prefetch.max_bytes", int64(50*1024*1024))
	viper.SetDefault("prefetch.concurrency", 3)
	viper.SetDefault("storage.redis.host", "")
	viper.SetDefault("storage.redis.port", "6379")
	viper.SetDefault("storage.redis.db", 0)
	viper.SetDefault("storage.redis.timeout", 5*time.Second)

	if path == "" {
		viper.AddConfigPath("./config")
		viper.AddConfigPath(".")
	} else {
		viper.SetConfigFile(path)
	}

	viper.SetEnvPrefix("CRAIGD")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			panic(fmt.Errorf("fatal error config file: %w", err))
		}
		// no config file: defaults + env only
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}

	if err := config.Watch.Validate(); err != nil {
		panic(err)
	}
	if err := config.Tools.Validate(); err != nil {
		panic(err)
	}
	if err := config.Nostr.Validate(); err != nil {
		panic(err)
	}
	if err := config.Prefetch.Validate(); err != nil {
		panic(err)
	}
	if err := config.Storage.Redis.Validate(); err != nil {
		panic(err)
	}
	return &config
}
