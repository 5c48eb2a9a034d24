package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const tokenFile = "token"

// Settings are the CLI's own settings, separate from the server config.
type Settings struct {
	Server  string        `mapstructure:"server"`
	Home    string        `mapstructure:"home"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// LoadSettings resolves settings from, in increasing precedence: defaults,
// $SMARTMARK_HOME/config.yaml, SMARTMARK_* environment variables and the
// root command's flags.
func LoadSettings(cmd *cobra.Command) (*Settings, error) {
	v := viper.New()

	defaultHome := ".smartmark"
	if home, err := os.UserHomeDir(); err == nil {
		defaultHome = filepath.Join(home, ".smartmark")
	}

	v.SetDefault("server", "http://localhost:8080")
	v.SetDefault("home", defaultHome)
	v.SetDefault("timeout", "15s")

	// Environment variable overrides
	v.SetEnvPrefix("SMARTMARK")
	v.AutomaticEnv()
	v.BindEnv("server", "SMARTMARK_SERVER")
	v.BindEnv("home", "SMARTMARK_HOME")
	v.BindEnv("timeout", "SMARTMARK_TIMEOUT")

	if cmd != nil {
		flags := cmd.Root().PersistentFlags()
		for _, key := range []string{"server", "home"} {
			if f := flags.Lookup(key); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, err
				}
			}
		}
	}

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(v.GetString("home"))
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read CLI config: %w", err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("failed to parse CLI config: %w", err)
	}
	s.Server = strings.TrimRight(s.Server, "/")
	return &s, nil
}

// TokenPath is where the session token is kept.
func (s *Settings) TokenPath() string {
	return filepath.Join(s.Home, tokenFile)
}

// LoadToken returns the stored token, or "" when there is none.
func (s *Settings) LoadToken() (string, error) {
	data, err := os.ReadFile(s.TokenPath())
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read session token: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// SaveToken stores token, readable only by the current user.
func (s *Settings) SaveToken(token string) error {
	if err := os.MkdirAll(s.Home, 0o700); err != nil {
		return fmt.Errorf("failed to create %s: %w", s.Home, err)
	}
	if err := os.WriteFile(s.TokenPath(), []byte(token+"\n"), 0o600); err != nil {
		return fmt.Errorf("failed to save session token: %w", err)
	}
	return nil
}

// ClearToken removes the stored token.
func (s *Settings) ClearToken() error {
	err := os.Remove(s.TokenPath())
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove session token: %w", err)
	}
	return nil
}
