// Package config loads runtime settings from the environment, reading a
// .env file first when one is present.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	DiscordToken      string   `env:"DISCORD_TOKEN,required,notEmpty"`
	GuildID           string   `env:"DISCORD_GUILD_ID"`
	GuildBlacklist    []string `env:"DISCORD_GUILD_BLACKLIST" envSeparator:","`
	InitSlashCommands bool     `env:"INIT_SLASH_COMMANDS" envDefault:"true"`
	CommandsCacheDir  string   `env:"COMMANDS_CACHE_DIR" envDefault:"data/commands"`

	HealthPort int `env:"PORT" envDefault:"3000"`

	ConnectTimeout time.Duration `env:"VOICE_CONNECT_TIMEOUT" envDefault:"5s"`
	IdleGrace      time.Duration `env:"IDLE_GRACE_PERIOD" envDefault:"5s"`

	YouTubeProxy string  `env:"YOUTUBE_PROXY"`
	SearchRate   float64 `env:"SEARCH_RPS" envDefault:"2"`
	FFmpegPath   string  `env:"FFMPEG_PATH" envDefault:"ffmpeg"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"console"`
	LogFile   string `env:"LOG_FILE"`
}

// Load reads .env files (all optional) into the process environment.
// It reports whether a file was found.
func Load(files ...string) (bool, error) {
	err := godotenv.Load(files...)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load env file: %w", err)
	}
	return true, nil
}

// New parses the environment into a Config.
func New() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Blacklisted reports whether guildID is excluded from command registration.
func (c *Config) Blacklisted(guildID string) bool {
	for _, id := range c.GuildBlacklist {
		if id == guildID {
			return true
		}
	}
	return false
}

func (c *Config) validate() error {
	switch c.LogFormat {
	case "console", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be console or json, got %q", c.LogFormat)
	}
	if c.HealthPort <= 0 || c.HealthPort > 65535 {
		return fmt.Errorf("PORT out of range: %d", c.HealthPort)
	}
	if c.ConnectTimeout <= 0 {
		return errors.New("VOICE_CONNECT_TIMEOUT must be positive")
	}
	if c.IdleGrace <= 0 {
		return errors.New("IDLE_GRACE_PERIOD must be positive")
	}
	if c.SearchRate <= 0 {
		return errors.New("SEARCH_RPS must be positive")
	}
	return nil
}
