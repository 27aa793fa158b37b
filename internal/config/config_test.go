package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate() error = %v", err)
	}

	if cfg.NumClasses != 3 {
		t.Errorf("NumClasses = %d, want 3", cfg.NumClasses)
	}
	if cfg.BatchFraction != 0.4 {
		t.Errorf("BatchFraction = %g, want 0.4", cfg.BatchFraction)
	}
	if cfg.CaptureBurst != 50 || cfg.CaptureInterval != 100*time.Millisecond {
		t.Errorf("capture = %d x %s, want 50 x 100ms", cfg.CaptureBurst, cfg.CaptureInterval)
	}
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mudra.yaml")
	data := []byte(`
epochs: 5
hidden_units: 32
capture_interval: 250ms
tick_interval: 2s
mqtt:
  broker: localhost:1883
`)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Epochs != 5 {
		t.Errorf("Epochs = %d, want 5", cfg.Epochs)
	}
	if cfg.HiddenUnits != 32 {
		t.Errorf("HiddenUnits = %d, want 32", cfg.HiddenUnits)
	}
	if cfg.CaptureInterval != 250*time.Millisecond {
		t.Errorf("CaptureInterval = %s, want 250ms", cfg.CaptureInterval)
	}
	if cfg.TickInterval != 2*time.Second {
		t.Errorf("TickInterval = %s, want 2s", cfg.TickInterval)
	}
	if cfg.MQTT.Topic != "mudra/events" {
		t.Errorf("MQTT.Topic = %q, want default to survive", cfg.MQTT.Topic)
	}
	if cfg.LearningRate != 0.0001 {
		t.Errorf("LearningRate = %g, want default 0.0001", cfg.LearningRate)
	}
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()

	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	bad := filepath.Join(dir, "bad.yaml")
	os.WriteFile(bad, []byte("epochs: [1, 2"), 0644)
	if _, err := Load(bad); err == nil {
		t.Error("expected error for malformed YAML")
	}

	invalid := filepath.Join(dir, "invalid.yaml")
	os.WriteFile(invalid, []byte("num_classes: 4\n"), 0644)
	if _, err := Load(invalid); err == nil {
		t.Error("expected validation error for num_classes 4")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"zero learning rate", func(c *Config) { c.LearningRate = 0 }},
		{"zero hidden units", func(c *Config) { c.HiddenUnits = 0 }},
		{"zero epochs", func(c *Config) { c.Epochs = 0 }},
		{"batch fraction above one", func(c *Config) { c.BatchFraction = 1.5 }},
		{"zero batch fraction", func(c *Config) { c.BatchFraction = 0 }},
		{"zero capture burst", func(c *Config) { c.CaptureBurst = 0 }},
		{"zero countdown", func(c *Config) { c.Countdown = 0 }},
		{"negative tick", func(c *Config) { c.TickInterval = -time.Second }},
		{"broker without topic", func(c *Config) { c.MQTT.Broker = "localhost:1883"; c.MQTT.Topic = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() should fail")
			}
		})
	}
}

func TestApplyOverrides(t *testing.T) {
	cfg := Default()
	camera := 2
	cfg.ApplyOverrides(Overrides{CameraID: &camera, Listen: ":9090", Epochs: 3})

	if cfg.CameraID != 2 {
		t.Errorf("CameraID = %d, want 2", cfg.CameraID)
	}
	if cfg.Listen != ":9090" {
		t.Errorf("Listen = %q, want :9090", cfg.Listen)
	}
	if cfg.Epochs != 3 {
		t.Errorf("Epochs = %d, want 3", cfg.Epochs)
	}

	// Zero values leave the config untouched
	cfg.ApplyOverrides(Overrides{})
	if cfg.Listen != ":9090" {
		t.Errorf("empty override changed Listen to %q", cfg.Listen)
	}
	if cfg.CameraID != 2 {
		t.Errorf("empty override changed CameraID to %d", cfg.CameraID)
	}

	// Device 0 is a valid override.
	zero := 0
	cfg.ApplyOverrides(Overrides{CameraID: &zero})
	if cfg.CameraID != 0 {
		t.Errorf("CameraID = %d, want 0", cfg.CameraID)
	}
}
