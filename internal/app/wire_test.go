package app

import (
	"testing"

	"github.com/bft-labs/mpcwatch/internal/config"
)

func TestNew_Participant2(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.FrontendPort = "8031"
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	a, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := a.Cache.Get().String(); got != "http://localhost:8082" {
		t.Errorf("endpoint = %s, want http://localhost:8082", got)
	}
	if a.Service.Self().ID != 2 {
		t.Errorf("self = %d, want 2", a.Service.Self().ID)
	}
}

func TestNew_BadCoordinatorURL(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.CoordinatorURL = "http://localhost:8060/api"
	if _, err := New(cfg, nil); err == nil {
		t.Fatal("expected error for coordinator url with path")
	}
}
