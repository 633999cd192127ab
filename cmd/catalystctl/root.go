package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	apiclient "github.com/Simply-U-Promotions/project-catalyst-sub000/pkg/api/client"
)

const defaultAPIBase = "http://localhost:4000"

var buildVersion = "dev"

type cliConfig struct {
	APIBaseURL  string `json:"api_base_url"`
	AccessToken string `json:"access_token"`
}

var (
	flagAPI     string
	flagToken   string
	flagTimeout time.Duration
)

var rootCmd = &cobra.Command{
	Use:           "catalystctl",
	Short:         "Deploy generated applications to Catalyst",
	Version:       buildVersion,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagAPI, "api", "", "API base URL (env CATALYST_API)")
	rootCmd.PersistentFlags().StringVar(&flagToken, "token", "", "access token (env CATALYST_TOKEN)")
	rootCmd.PersistentFlags().DurationVar(&flagTimeout, "timeout", 30*time.Second, "request timeout")
}

// session resolves the API client and token from flags, environment and the saved config.
func session() (*apiclient.Client, string, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, "", err
	}
	base := firstNonEmpty(flagAPI, os.Getenv("CATALYST_API"), cfg.APIBaseURL, defaultAPIBase)
	token := firstNonEmpty(flagToken, os.Getenv("CATALYST_TOKEN"), cfg.AccessToken)
	if token == "" {
		return nil, "", errors.New("not logged in; run catalystctl login")
	}
	client, err := apiclient.New(base, apiclient.WithHTTPClient(&http.Client{Timeout: flagTimeout}))
	if err != nil {
		return nil, "", err
	}
	return client, token, nil
}

func loadConfig() (cliConfig, error) {
	path, err := configPath()
	if err != nil {
		return cliConfig{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cliConfig{APIBaseURL: defaultAPIBase}, nil
		}
		return cliConfig{}, err
	}
	var cfg cliConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cliConfig{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = defaultAPIBase
	}
	return cfg, nil
}

func saveConfig(cfg cliConfig) error {
	path, err := configPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func configPath() (string, error) {
	if override := strings.TrimSpace(os.Getenv("CATALYST_CONFIG")); override != "" {
		return override, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "catalyst", "config.json"), nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
