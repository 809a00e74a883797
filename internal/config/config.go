package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

type Config struct {
	Telegram    TelegramConfig    `mapstructure:"telegram"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Downloads   DownloadsConfig   `mapstructure:"downloads"`
	Payments    PaymentsConfig    `mapstructure:"payments"`
	Extractor   ExtractorConfig   `mapstructure:"extractor"`
	Ytdlp       YtdlpConfig       `mapstructure:"ytdlp"`
	FFmpeg      FFmpegConfig      `mapstructure:"ffmpeg"`
	PostProcess PostProcessConfig `mapstructure:"postprocess"`
	Links       LinksConfig       `mapstructure:"links"`
	Server      ServerConfig      `mapstructure:"server"`
	Progress    ProgressConfig    `mapstructure:"progress"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

type TelegramConfig struct {
	Token string `mapstructure:"token"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

type DownloadsConfig struct {
	Dir string `mapstructure:"dir"`
}

type PaymentsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type ExtractorConfig struct {
	// Primary selects the backend used for full downloads: "youtube" or "ytdlp".
	Primary string `mapstructure:"primary"`
}

type YtdlpConfig struct {
	Path string `mapstructure:"path"`
}

type FFmpegConfig struct {
	Path string `mapstructure:"path"`
}

type PostProcessConfig struct {
	AudioBitrate string `mapstructure:"audio_bitrate"`
}

type LinksConfig struct {
	TTL           time.Duration `mapstructure:"ttl"`
	BaseURL       string        `mapstructure:"base_url"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

type ServerConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
	Debug   bool   `mapstructure:"debug"`
}

type ProgressConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Loader wraps a viper instance so the running process can re-read
// settings that are allowed to change at runtime.
type Loader struct {
	v *viper.Viper
}

// NewLoader prepares a loader. An empty path searches ./configs and . for config.yaml.
func NewLoader(path string) *Loader {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("PEAKTUBE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Variables the bot has always been deployed with.
	_ = v.BindEnv("telegram.token", "PEAKTUBE_TELEGRAM_TOKEN", "TELEGRAM_BOT_TOKEN")
	_ = v.BindEnv("database.path", "PEAKTUBE_DATABASE_PATH", "DB_PATH")

	setDefaults(v)
	return &Loader{v: v}
}

// Load reads the config file (if any) and returns the merged configuration.
func (l *Loader) Load() (*Config, error) {
	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// OnChange re-reads the payments flag whenever the config file changes.
func (l *Loader) OnChange(fn func(paymentsEnabled bool)) {
	l.v.OnConfigChange(func(fsnotify.Event) {
		fn(l.v.GetBool("payments.enabled"))
	})
	l.v.WatchConfig()
}

// Validate checks values that would otherwise fail deep inside a pipeline run.
func (c *Config) Validate() error {
	switch c.Extractor.Primary {
	case "youtube", "ytdlp":
	default:
		return fmt.Errorf("extractor.primary: unsupported value %q", c.Extractor.Primary)
	}
	if c.Links.TTL <= 0 {
		return fmt.Errorf("links.ttl must be positive, got %s", c.Links.TTL)
	}
	if c.Links.SweepInterval <= 0 {
		return fmt.Errorf("links.sweep_interval must be positive, got %s", c.Links.SweepInterval)
	}
	if c.Downloads.Dir == "" {
		return errors.New("downloads.dir must be set")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.path", "/data/bot.db")
	v.SetDefault("downloads.dir", "/data/downloads")

	v.SetDefault("payments.enabled", true)

	v.SetDefault("extractor.primary", "youtube")
	v.SetDefault("ytdlp.path", "yt-dlp")
	v.SetDefault("ffmpeg.path", "ffmpeg")
	v.SetDefault("postprocess.audio_bitrate", "192k")

	v.SetDefault("links.ttl", "24h")
	v.SetDefault("links.base_url", "")
	v.SetDefault("links.sweep_interval", "1h")

	v.SetDefault("server.enabled", false)
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.debug", false)

	v.SetDefault("progress.interval", "1s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}
