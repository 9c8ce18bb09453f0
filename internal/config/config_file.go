package config

import (
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
)

// FileConfig mirrors Config but uses strings for durations to make TOML friendly.
type FileConfig struct {
	Scheme          string `toml:"scheme"`
	Host            string `toml:"host"`
	BackendPort     string `toml:"backend_port"`
	FrontendPort    string `toml:"frontend_port"`
	PageURL         string `toml:"page_url"`
	CoordinatorURL  string `toml:"coordinator_url"`
	TrainingURL     string `toml:"training_url"`
	HealthPath      string `toml:"health_path"`
	CandidatePorts  []int  `toml:"candidate_ports"`
	Timeout         string `toml:"timeout"`
	ProbeTimeout    string `toml:"probe_timeout"`
	TrainingTimeout string `toml:"training_timeout"`
	RefreshInterval string `toml:"refresh_interval"`
	MaxBodyBytes    int64  `toml:"max_body_bytes"`
	MaxHeaderBytes  int    `toml:"max_header_bytes"`
	Debug           *bool  `toml:"debug"`
	Listen          string `toml:"listen"`
}

// LoadFileConfig reads and parses a TOML config file from the given path.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// DefaultConfigPath returns ~/.mpcwatch/config.toml, or "" when the home
// directory is unknown.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".mpcwatch", "config.toml")
	}
	return ""
}

// ApplyFileConfig applies configuration from a file to the Config struct.
// It respects flags that have been explicitly set (changed map).
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("scheme", fc.Scheme, &cfg.Scheme)
	s.setString("host", fc.Host, &cfg.Host)
	s.setString("backend-port", fc.BackendPort, &cfg.BackendPort)
	s.setString("frontend-port", fc.FrontendPort, &cfg.FrontendPort)
	s.setString("page-url", fc.PageURL, &cfg.PageURL)
	s.setString("coordinator-url", fc.CoordinatorURL, &cfg.CoordinatorURL)
	s.setString("training-url", fc.TrainingURL, &cfg.TrainingURL)
	s.setString("health-path", fc.HealthPath, &cfg.HealthPath)
	s.setString("listen", fc.Listen, &cfg.Listen)
	s.setInts("candidate-ports", fc.CandidatePorts, &cfg.CandidatePorts)

	if err := s.setDuration("timeout", fc.Timeout, &cfg.Timeout); err != nil {
		return err
	}
	if err := s.setDuration("probe-timeout", fc.ProbeTimeout, &cfg.ProbeTimeout); err != nil {
		return err
	}
	if err := s.setDuration("training-timeout", fc.TrainingTimeout, &cfg.TrainingTimeout); err != nil {
		return err
	}
	if err := s.setDuration("refresh", fc.RefreshInterval, &cfg.RefreshInterval); err != nil {
		return err
	}

	s.setInt64("max-body-bytes", fc.MaxBodyBytes, &cfg.MaxBodyBytes)
	s.setInt("max-header-bytes", fc.MaxHeaderBytes, &cfg.MaxHeaderBytes)
	s.setBool("debug", fc.Debug, &cfg.Debug)

	return nil
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
