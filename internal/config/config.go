// Package config holds the single configuration struct mpcwatch builds at
// startup. Values are layered file → environment → flags; flags the user set
// explicitly are never overwritten by the lower layers.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bft-labs/mpcwatch/pkg/discovery"
	"github.com/bft-labs/mpcwatch/pkg/endpoint"
	"github.com/bft-labs/mpcwatch/pkg/failover"
	"github.com/bft-labs/mpcwatch/pkg/transport"
)

const (
	DefaultCoordinatorURL = "http://localhost:8060"
	DefaultTrainingURL    = "http://localhost:8084"
	DefaultPageURL        = "http://localhost:8030/"
	DefaultListen         = "127.0.0.1:8090"
)

// Config holds all runtime options.
type Config struct {
	Scheme string
	Host   string

	// BackendPort and FrontendPort are raw overrides; empty means unset.
	// They are validated by port inference, not here.
	BackendPort  string
	FrontendPort string
	PageURL      string

	CoordinatorURL string
	TrainingURL    string

	HealthPath     string
	CandidatePorts []int

	Timeout         time.Duration
	ProbeTimeout    time.Duration
	TrainingTimeout time.Duration
	RefreshInterval time.Duration

	MaxBodyBytes   int64
	MaxHeaderBytes int

	Debug  bool
	Listen string
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		Scheme:          endpoint.DefaultScheme,
		Host:            endpoint.DefaultHost,
		PageURL:         DefaultPageURL,
		CoordinatorURL:  DefaultCoordinatorURL,
		TrainingURL:     DefaultTrainingURL,
		HealthPath:      failover.DefaultHealthPath,
		CandidatePorts:  failover.DefaultCandidates(),
		Timeout:         transport.DefaultTimeout,
		ProbeTimeout:    failover.DefaultProbeTimeout,
		TrainingTimeout: 10 * time.Second,
		RefreshInterval: 5 * time.Second,
		MaxBodyBytes:    transport.DefaultMaxBodyBytes,
		MaxHeaderBytes:  transport.DefaultMaxHeaderBytes,
		Listen:          DefaultListen,
	}
}

// Sources returns the port inference inputs carried by the config.
func (c Config) Sources() discovery.Sources {
	return discovery.Sources{
		BackendPort:  c.BackendPort,
		FrontendPort: c.FrontendPort,
		PageURL:      c.PageURL,
	}
}

// Validate checks the configuration for errors and sets derived defaults.
// Port overrides are deliberately not checked: an invalid override falls
// back to the default port with a warning at resolution time.
func (c *Config) Validate() error {
	if c.Scheme == "" {
		c.Scheme = endpoint.DefaultScheme
	}
	if c.Scheme != "http" && c.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", c.Scheme)
	}
	if c.Host == "" {
		c.Host = endpoint.DefaultHost
	}

	c.CoordinatorURL = strings.TrimRight(c.CoordinatorURL, "/")
	if c.CoordinatorURL == "" {
		c.CoordinatorURL = DefaultCoordinatorURL
	}
	if _, err := endpoint.Parse(c.CoordinatorURL); err != nil {
		return fmt.Errorf("coordinator url: %w", err)
	}
	c.TrainingURL = strings.TrimRight(c.TrainingURL, "/")
	if c.TrainingURL == "" {
		c.TrainingURL = DefaultTrainingURL
	}
	if _, err := endpoint.Parse(c.TrainingURL); err != nil {
		return fmt.Errorf("training url: %w", err)
	}

	if c.HealthPath == "" {
		c.HealthPath = failover.DefaultHealthPath
	}
	if !strings.HasPrefix(c.HealthPath, "/") {
		c.HealthPath = "/" + c.HealthPath
	}
	if len(c.CandidatePorts) == 0 {
		c.CandidatePorts = failover.DefaultCandidates()
	}
	for _, p := range c.CandidatePorts {
		if !discovery.ValidPort(p) {
			return fmt.Errorf("candidate port %d out of range", p)
		}
	}

	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.ProbeTimeout <= 0 {
		return fmt.Errorf("probe timeout must be positive")
	}
	if c.ProbeTimeout > failover.DefaultProbeTimeout {
		return fmt.Errorf("probe timeout must be at most %s, got %s", failover.DefaultProbeTimeout, c.ProbeTimeout)
	}
	if c.TrainingTimeout <= 0 {
		c.TrainingTimeout = c.Timeout
	}
	if c.RefreshInterval <= 0 {
		return fmt.Errorf("refresh interval must be positive")
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = transport.DefaultMaxBodyBytes
	}
	if c.MaxHeaderBytes <= 0 {
		c.MaxHeaderBytes = transport.DefaultMaxHeaderBytes
	}
	return nil
}

// configSetter helps apply configuration values while respecting flag precedence.
// It only applies values if the corresponding flag hasn't been explicitly set.
type configSetter struct {
	changed map[string]bool
}

func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

// setString sets a string value if not empty and flag not changed.
func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

// setInt sets an int value if positive and flag not changed.
func (s *configSetter) setInt(flag string, value int, dst *int) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

func (s *configSetter) setInt64(flag string, value int64, dst *int64) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

func (s *configSetter) setInts(flag string, value []int, dst *[]int) {
	if len(value) == 0 || s.changed[flag] {
		return
	}
	*dst = append([]int(nil), value...)
}

// setDuration parses and sets a duration from string if valid and flag not changed.
func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

// setBool sets a bool value from a pointer if not nil and flag not changed.
func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setIntFromString parses a string to int and sets the destination if valid.
func (s *configSetter) setIntFromString(flag, value string, dst *int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if i <= 0 {
		return nil
	}
	*dst = i
	return nil
}

func (s *configSetter) setInt64FromString(flag, value string, dst *int64) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if i <= 0 {
		return nil
	}
	*dst = i
	return nil
}

// setIntsFromString parses a comma separated list such as "8083,8082".
func (s *configSetter) setIntsFromString(flag, value string, dst *[]int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	var out []int
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		i, err := strconv.Atoi(part)
		if err != nil {
			return fmt.Errorf("parse %s: %w", flag, err)
		}
		out = append(out, i)
	}
	if len(out) > 0 {
		*dst = out
	}
	return nil
}

// setBoolFromString accepts "true" and "1" as true, anything else as false.
func (s *configSetter) setBoolFromString(flag, value string, dst *bool) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value == "true" || value == "1"
}
