// Package mpcwatch is the embeddable entry point to the dashboard request
// layer.
//
// Example usage:
//
//	cfg := mpcwatch.DefaultConfig()
//	cfg.PageURL = "http://localhost:8031/"
//	svc, err := mpcwatch.New(cfg, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	status, err := svc.Status(ctx)
package mpcwatch

import (
	"github.com/bft-labs/mpcwatch/internal/app"
	"github.com/bft-labs/mpcwatch/internal/config"
	"github.com/bft-labs/mpcwatch/pkg/dashboard"
	"github.com/bft-labs/mpcwatch/pkg/log"
)

// Config holds the configuration for the request layer.
// Use DefaultConfig() to get a Config with sensible defaults.
type Config = config.Config

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return config.DefaultConfig()
}

// New validates cfg and returns a ready dashboard service. A nil logger
// discards all output.
func New(cfg Config, logger log.Logger) (*dashboard.Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a, err := app.New(cfg, logger)
	if err != nil {
		return nil, err
	}
	return a.Service, nil
}
