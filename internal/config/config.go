// Package config loads the runtime settings for a mudra session.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// NumClasses is the size of the closed label set (stone, scissors, paper).
const NumClasses = 3

// DefaultModelURL points at the MobileNet v1 0.25/224 frozen graph.
const DefaultModelURL = "https://storage.googleapis.com/download.tensorflow.org/models/mobilenet_v1_2018_08_02/mobilenet_v1_0.25_224.tgz"

// Config captures every knob the session reads. It is treated as read-only
// once loaded.
type Config struct {
	NumClasses      int           `yaml:"num_classes"`
	LearningRate    float64       `yaml:"learning_rate"`
	HiddenUnits     int           `yaml:"hidden_units"`
	Epochs          int           `yaml:"epochs"`
	BatchFraction   float64       `yaml:"batch_fraction"`
	CaptureInterval time.Duration `yaml:"capture_interval"`
	CaptureBurst    int           `yaml:"capture_burst"`
	Countdown       int           `yaml:"countdown"`
	TickInterval    time.Duration `yaml:"tick_interval"`
	CameraID        int           `yaml:"camera_id"`
	Seed            uint64        `yaml:"seed"`
	DataDir         string        `yaml:"data_dir"`
	Listen          string        `yaml:"listen"`
	StaticDir       string        `yaml:"static_dir"`
	HooksDir        string        `yaml:"hooks_dir"`
	Model           ModelConfig   `yaml:"model"`
	MQTT            MQTTConfig    `yaml:"mqtt"`
}

// ModelConfig locates the pretrained feature extractor.
type ModelConfig struct {
	URL      string `yaml:"url"`
	CacheDir string `yaml:"cache_dir"`
}

// MQTTConfig enables the MQTT emitter when Broker is set.
type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	Topic    string `yaml:"topic"`
	ClientID string `yaml:"client_id"`
}

// Overrides captures CLI supplied values.
type Overrides struct {
	// CameraID is a pointer because device 0 is a real choice.
	CameraID  *int
	Listen    string
	DataDir   string
	StaticDir string
	ModelURL  string
	Epochs    int
	Seed      uint64
}

// Default returns the stock configuration.
func Default() Config {
	dataDir := ".mudra"
	if home, err := os.UserHomeDir(); err == nil {
		dataDir = filepath.Join(home, ".mudra")
	}

	return Config{
		NumClasses:      NumClasses,
		LearningRate:    0.0001,
		HiddenUnits:     100,
		Epochs:          20,
		BatchFraction:   0.4,
		CaptureInterval: 100 * time.Millisecond,
		CaptureBurst:    50,
		Countdown:       3,
		TickInterval:    time.Second,
		CameraID:        0,
		Seed:            1,
		DataDir:         dataDir,
		Listen:          ":8080",
		HooksDir:        filepath.Join(dataDir, "hooks"),
		Model: ModelConfig{
			URL:      DefaultModelURL,
			CacheDir: filepath.Join(dataDir, "models"),
		},
		MQTT: MQTTConfig{
			Topic:    "mudra/events",
			ClientID: "mudra",
		},
	}
}

// Load reads a YAML file on top of the defaults and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// ApplyOverrides updates c using any non-zero override.
func (c *Config) ApplyOverrides(o Overrides) {
	if o.CameraID != nil {
		c.CameraID = *o.CameraID
	}
	if o.Listen != "" {
		c.Listen = o.Listen
	}
	if o.DataDir != "" {
		c.DataDir = o.DataDir
	}
	if o.StaticDir != "" {
		c.StaticDir = o.StaticDir
	}
	if o.ModelURL != "" {
		c.Model.URL = o.ModelURL
	}
	if o.Epochs > 0 {
		c.Epochs = o.Epochs
	}
	if o.Seed != 0 {
		c.Seed = o.Seed
	}
}

// Validate verifies the config is runnable.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if c.NumClasses != NumClasses {
		return fmt.Errorf("num_classes must be %d (got %d)", NumClasses, c.NumClasses)
	}
	if c.LearningRate <= 0 {
		return fmt.Errorf("learning_rate must be > 0 (got %g)", c.LearningRate)
	}
	if c.HiddenUnits <= 0 {
		return fmt.Errorf("hidden_units must be > 0 (got %d)", c.HiddenUnits)
	}
	if c.Epochs <= 0 {
		return fmt.Errorf("epochs must be > 0 (got %d)", c.Epochs)
	}
	if c.BatchFraction <= 0 || c.BatchFraction > 1 {
		return fmt.Errorf("batch_fraction must be in (0, 1] (got %g)", c.BatchFraction)
	}
	if c.CaptureInterval <= 0 {
		return fmt.Errorf("capture_interval must be > 0 (got %s)", c.CaptureInterval)
	}
	if c.CaptureBurst <= 0 {
		return fmt.Errorf("capture_burst must be > 0 (got %d)", c.CaptureBurst)
	}
	if c.Countdown <= 0 {
		return fmt.Errorf("countdown must be > 0 (got %d)", c.Countdown)
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("tick_interval must be > 0 (got %s)", c.TickInterval)
	}
	if c.MQTT.Broker != "" && c.MQTT.Topic == "" {
		return errors.New("mqtt.topic is required when mqtt.broker is set")
	}
	return nil
}
