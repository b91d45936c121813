package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dkeye/voicecall/internal/app/publish"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type ICEServer struct {
	URLs       []string `mapstructure:"urls"`
	Username   string   `mapstructure:"username"`
	Credential string   `mapstructure:"credential"`
}

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	StaticPath string        `mapstructure:"static_path"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	LogLevel   string        `mapstructure:"log_level"`
	RateLimit  int           `mapstructure:"rate_limit"`
	RateWindow time.Duration `mapstructure:"rate_window"`

	SignalingURL    string      `mapstructure:"signaling_url"`
	Room            string      `mapstructure:"room"`
	Client          string      `mapstructure:"client"`
	ICEServers      []ICEServer `mapstructure:"ice_servers"`
	IncludeLoopback bool        `mapstructure:"include_loopback"`

	// chunk_interval, drain_delay and codec sit at the top level of the file.
	publish.Config `mapstructure:",squash"`
	Endpoints      []publish.Endpoint `mapstructure:"endpoints"`
}

// Load reads config/config.<CONFIG_ENV>.yaml (dev by default) over the built-in
// defaults. VOICECALL_* environment variables override scalar keys.
func Load() (*Config, error) {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return LoadFile(fmt.Sprintf("config/config.%s.yaml", env))
}

func LoadFile(fileName string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("VOICECALL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	log.Info().
		Str("module", "config").
		Str("mode", cfg.Mode).
		Int("port", cfg.Port).
		Str("signaling", cfg.SignalingURL).
		Int("endpoints", len(cfg.Endpoints)).
		Msg("config ready")
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("log_level", "info")
	v.SetDefault("rate_limit", 200)
	v.SetDefault("rate_window", "1s")

	v.SetDefault("signaling_url", "ws://localhost:8080")
	v.SetDefault("room", "lobby")
	v.SetDefault("client", "")
	v.SetDefault("ice_servers", []map[string]any{
		{"urls": []string{"stun:stun.l.google.com:19302"}},
	})
	v.SetDefault("include_loopback", false)
	v.SetDefault("chunk_interval", "250ms")
	v.SetDefault("drain_delay", "3s")
	v.SetDefault("codec", "audio/pcmu")
	v.SetDefault("endpoints", []map[string]any{})
}

// Level parses LogLevel, falling back to info.
func (c *Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}
