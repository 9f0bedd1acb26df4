// Package config хранит настройки blogctl в ~/.blogctl/config.json.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const DefaultURL = "http://localhost:8080"

type Config struct {
	Version     int               `json:"version"`
	URL         string            `json:"url"`
	Token       string            `json:"token,omitempty"`
	User        string            `json:"user,omitempty"`
	LoggedInAt  string            `json:"logged_in_at,omitempty"`
	Preferences map[string]string `json:"preferences,omitempty"`
}

// Path возвращает путь к файлу конфигурации. BLOGCTL_CONFIG переопределяет его.
func Path() (string, error) {
	if p := os.Getenv("BLOGCTL_CONFIG"); p != "" {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".blogctl", "config.json"), nil
}

func Load() (*Config, error) {
	p, err := Path()
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{Version: 1, URL: DefaultURL, Preferences: map[string]string{}}, nil
		}
		return nil, err
	}
	var c Config
	if err := json.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if c.URL == "" {
		c.URL = DefaultURL
	}
	if c.Version == 0 {
		c.Version = 1
	}
	if c.Preferences == nil {
		c.Preferences = map[string]string{}
	}
	return &c, nil
}

func Save(c *Config) error {
	p, err := Path()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	// токен внутри, файл только для владельца
	return os.WriteFile(p, append(b, '\n'), 0o600)
}

// SetSession запоминает токен после входа.
func (c *Config) SetSession(token, user string) {
	c.Token = token
	c.User = user
	c.LoggedInAt = time.Now().UTC().Format(time.RFC3339)
}

func (c *Config) ClearSession() {
	c.Token = ""
	c.User = ""
	c.LoggedInAt = ""
}
