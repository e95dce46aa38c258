package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/c4h-run/refactorctl/internal/orchestrator"
	"github.com/c4h-run/refactorctl/pkg/schema"
)

// Config holds server-level settings: everything main needs to wire up a
// process, as opposed to the domain config (teams, provider secrets,
// orchestration defaults) loaded separately from TeamsPath by
// loadDomainConfig.
// Priority: env vars > settings.json > defaults.
type Config struct {
	ListenAddr      string        `json:"listen_addr"`
	DBPath          string        `json:"db_path"`
	StorageRoot     string        `json:"storage_root"`
	LineageRoot     string        `json:"lineage_root"`
	BackupsRoot     string        `json:"backups_root"`
	TeamsPath       string        `json:"teams_path"`
	LogLevel        string        `json:"log_level"`
	RetentionCron   string        `json:"retention_cron"`
	RetentionWindow time.Duration `json:"retention_window"`
}

func defaultConfig() Config {
	return Config{
		ListenAddr:      ":8080",
		DBPath:          filepath.Join(refactorctlDir(), "refactorctl.db"),
		StorageRoot:     filepath.Join(refactorctlDir(), "workflows"),
		LineageRoot:     filepath.Join(refactorctlDir(), "lineage"),
		BackupsRoot:     filepath.Join(refactorctlDir(), "backups"),
		TeamsPath:       "teams.yaml",
		LogLevel:        "info",
		RetentionCron:   "0 * * * *",
		RetentionWindow: 30 * 24 * time.Hour,
	}
}

func refactorctlDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".refactorctl"
	}
	return filepath.Join(home, ".refactorctl")
}

func settingsPath() string {
	return filepath.Join(refactorctlDir(), "settings.json")
}

func loadConfig() Config {
	cfg := defaultConfig()

	// Layer 2: settings.json (ignore if missing).
	if data, err := os.ReadFile(settingsPath()); err == nil {
		_ = json.Unmarshal(data, &cfg)
	}

	// Layer 3: env vars override.
	if v := os.Getenv("REFACTORCTL_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("REFACTORCTL_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("REFACTORCTL_STORAGE_ROOT"); v != "" {
		cfg.StorageRoot = v
	}
	if v := os.Getenv("REFACTORCTL_LINEAGE_ROOT"); v != "" {
		cfg.LineageRoot = v
	}
	if v := os.Getenv("REFACTORCTL_BACKUPS_ROOT"); v != "" {
		cfg.BackupsRoot = v
	}
	if v := os.Getenv("REFACTORCTL_TEAMS_PATH"); v != "" {
		cfg.TeamsPath = v
	}
	if v := os.Getenv("REFACTORCTL_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("REFACTORCTL_RETENTION_CRON"); v != "" {
		cfg.RetentionCron = v
	}
	if v := os.Getenv("REFACTORCTL_RETENTION_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RetentionWindow = time.Duration(n) * 24 * time.Hour
		}
	}

	return cfg
}

// domainConfig is the on-disk shape of the YAML file named by
// Config.TeamsPath: server defaults, the team topology, and which
// environment variable backs each provider's secret. No generic loader
// in internal/config returns anything richer than a schema.Tree, so this
// is unmarshaled directly against schema.TeamDefinition's own yaml tags.
type domainConfig struct {
	ServerDefaults  schema.Tree                   `yaml:"server_defaults"`
	Teams           []schema.TeamDefinition       `yaml:"teams"`
	ProviderSecrets []orchestrator.ProviderSecret `yaml:"provider_secrets"`
}

func loadDomainConfig(path string) (domainConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domainConfig{}, err
	}
	var dc domainConfig
	if err := yaml.Unmarshal(data, &dc); err != nil {
		return domainConfig{}, err
	}
	return dc, nil
}
