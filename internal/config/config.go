// Package config loads server configuration from a YAML file, environment
// variables prefixed with OPTCG_, and built-in defaults, in that order of
// precedence from lowest to highest: defaults, file, environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the complete server configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
	Game    GameConfig    `mapstructure:"game"`
	Cards   CardsConfig   `mapstructure:"cards"`
}

// ServerConfig configures the websocket relay.
type ServerConfig struct {
	WebSocket WebSocketConfig `mapstructure:"websocket"`
}

// WebSocketConfig configures the websocket listener.
type WebSocketConfig struct {
	Address        string        `mapstructure:"address"`
	Path           string        `mapstructure:"path"`
	ReadLimit      int64         `mapstructure:"read_limit"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	PongTimeout    time.Duration `mapstructure:"pong_timeout"`
	SendBufferSize int           `mapstructure:"send_buffer_size"`
}

// LoggingConfig selects the log level and encoding.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// GameConfig holds the rules that vary per deployment.
type GameConfig struct {
	PromptTimeout            time.Duration `mapstructure:"prompt_timeout"`
	RestrictFirstTurnAttacks bool          `mapstructure:"restrict_first_turn_attacks"`
	StartingHand             int           `mapstructure:"starting_hand"`
	DonPerTurn               int           `mapstructure:"don_per_turn"`
	DonDeckSize              int           `mapstructure:"don_deck_size"`
	ReplayDir                string        `mapstructure:"replay_dir"` // empty disables saved replays
}

// CardsConfig selects where card definitions are loaded from.
type CardsConfig struct {
	Source      string `mapstructure:"source"` // file or postgres
	Path        string `mapstructure:"path"`
	DatabaseURL string `mapstructure:"database_url"`
	Table       string `mapstructure:"table"`
	MaxConns    int32  `mapstructure:"max_conns"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.websocket.address", ":8080")
	v.SetDefault("server.websocket.path", "/ws")
	v.SetDefault("server.websocket.read_limit", 64*1024)
	v.SetDefault("server.websocket.write_timeout", 10*time.Second)
	v.SetDefault("server.websocket.pong_timeout", 60*time.Second)
	v.SetDefault("server.websocket.send_buffer_size", 64)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("game.prompt_timeout", 60*time.Second)
	v.SetDefault("game.restrict_first_turn_attacks", true)
	v.SetDefault("game.starting_hand", 5)
	v.SetDefault("game.don_per_turn", 2)
	v.SetDefault("game.don_deck_size", 10)
	v.SetDefault("game.replay_dir", "")

	v.SetDefault("cards.source", "file")
	v.SetDefault("cards.path", "data/cards.json")
	v.SetDefault("cards.table", "cards")
	v.SetDefault("cards.max_conns", 4)
}

// Load reads the configuration. A missing file at path is not an error;
// defaults and environment variables still apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("OPTCG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !isMissingFile(err) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that would make the server misbehave.
func (c *Config) Validate() error {
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format)
	}
	if c.Game.PromptTimeout < 0 {
		return fmt.Errorf("game.prompt_timeout cannot be negative")
	}
	if c.Game.StartingHand < 0 || c.Game.DonPerTurn < 0 || c.Game.DonDeckSize < 0 {
		return fmt.Errorf("game counts cannot be negative")
	}
	switch c.Cards.Source {
	case "file":
		if c.Cards.Path == "" {
			return fmt.Errorf("cards.path is required for the file source")
		}
	case "postgres":
		if c.Cards.DatabaseURL == "" {
			return fmt.Errorf("cards.database_url is required for the postgres source")
		}
	default:
		return fmt.Errorf("cards.source must be file or postgres, got %q", c.Cards.Source)
	}
	return nil
}

// viper reports a missing explicit config file as a plain fs error.
func isMissingFile(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
