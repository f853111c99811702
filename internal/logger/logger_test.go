package logger

import (
	"testing"

	"vfzsync/internal/config"
)

func TestNew_FallsBackOnUnknownLevel(t *testing.T) {
	log, err := New(config.LogConfig{Level: "loud", Encoding: "json"}, config.AppConfig{Project: "vfzsync", Env: "test"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if !log.Core().Enabled(0) {
		t.Fatalf("info level disabled")
	}
	if log.Core().Enabled(-1) {
		t.Fatalf("debug level enabled")
	}
}
