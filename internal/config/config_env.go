package config

import "os"

// firstEnv returns the first non-empty value among the named variables.
func firstEnv(names ...string) string {
	for _, n := range names {
		if v := os.Getenv(n); v != "" {
			return v
		}
	}
	return ""
}

// ApplyEnvConfig applies configuration from environment variables (MPCWATCH_*).
// BACKEND_PORT and PORT are honoured as fallbacks for the port overrides so
// an existing per-participant launch script keeps working.
// It respects flags that have been explicitly set (changed map).
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("scheme", os.Getenv("MPCWATCH_SCHEME"), &cfg.Scheme)
	s.setString("host", os.Getenv("MPCWATCH_HOST"), &cfg.Host)
	s.setString("backend-port", firstEnv("MPCWATCH_BACKEND_PORT", "BACKEND_PORT"), &cfg.BackendPort)
	s.setString("frontend-port", firstEnv("MPCWATCH_FRONTEND_PORT", "PORT"), &cfg.FrontendPort)
	s.setString("page-url", os.Getenv("MPCWATCH_PAGE_URL"), &cfg.PageURL)
	s.setString("coordinator-url", os.Getenv("MPCWATCH_COORDINATOR_URL"), &cfg.CoordinatorURL)
	s.setString("training-url", os.Getenv("MPCWATCH_TRAINING_URL"), &cfg.TrainingURL)
	s.setString("health-path", os.Getenv("MPCWATCH_HEALTH_PATH"), &cfg.HealthPath)
	s.setString("listen", os.Getenv("MPCWATCH_LISTEN"), &cfg.Listen)

	if err := s.setIntsFromString("candidate-ports", os.Getenv("MPCWATCH_CANDIDATE_PORTS"), &cfg.CandidatePorts); err != nil {
		return err
	}

	if err := s.setDuration("timeout", os.Getenv("MPCWATCH_TIMEOUT"), &cfg.Timeout); err != nil {
		return err
	}
	if err := s.setDuration("probe-timeout", os.Getenv("MPCWATCH_PROBE_TIMEOUT"), &cfg.ProbeTimeout); err != nil {
		return err
	}
	if err := s.setDuration("training-timeout", os.Getenv("MPCWATCH_TRAINING_TIMEOUT"), &cfg.TrainingTimeout); err != nil {
		return err
	}
	if err := s.setDuration("refresh", os.Getenv("MPCWATCH_REFRESH_INTERVAL"), &cfg.RefreshInterval); err != nil {
		return err
	}

	if err := s.setInt64FromString("max-body-bytes", os.Getenv("MPCWATCH_MAX_BODY_BYTES"), &cfg.MaxBodyBytes); err != nil {
		return err
	}
	if err := s.setIntFromString("max-header-bytes", os.Getenv("MPCWATCH_MAX_HEADER_BYTES"), &cfg.MaxHeaderBytes); err != nil {
		return err
	}

	s.setBoolFromString("debug", os.Getenv("MPCWATCH_DEBUG"), &cfg.Debug)

	return nil
}
