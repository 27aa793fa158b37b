package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gonuts/flag"

	"github.com/ayusman/mudra/internal/app"
	"github.com/ayusman/mudra/internal/config"
	"github.com/ayusman/mudra/internal/emitter"
	"github.com/ayusman/mudra/internal/events"
	"github.com/ayusman/mudra/internal/hook"
	"github.com/ayusman/mudra/internal/store"
)

const hookTimeout = 10 * time.Second

// options are the flags shared by every command.
type options struct {
	configPath string
	camera     int
	overrides  config.Overrides
}

func (o *options) register(fs *flag.FlagSet) {
	fs.StringVar(&o.configPath, "config", "", "YAML config file")
	fs.StringVar(&o.overrides.DataDir, "data", "", "data directory (history database, model cache)")
	fs.IntVar(&o.camera, "camera", -1, "camera device ID (default from config)")
	fs.StringVar(&o.overrides.ModelURL, "model", "", "feature extractor URL or path")
	fs.IntVar(&o.overrides.Epochs, "epochs", 0, "training epochs")
	fs.Uint64Var(&o.overrides.Seed, "seed", 0, "random seed")
}

// load builds the effective configuration.
func (o *options) load() (config.Config, error) {
	cfg := config.Default()
	if o.configPath != "" {
		var err error
		if cfg, err = config.Load(o.configPath); err != nil {
			return config.Config{}, err
		}
	}
	if o.camera >= 0 {
		o.overrides.CameraID = &o.camera
	}
	cfg.ApplyOverrides(o.overrides)
	if o.overrides.DataDir != "" {
		cfg.HooksDir = filepath.Join(cfg.DataDir, "hooks")
		cfg.Model.CacheDir = filepath.Join(cfg.DataDir, "models")
	}
	return cfg, cfg.Validate()
}

// openStore opens the history database under the data directory.
func openStore(cfg config.Config) (*store.Store, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	return store.New(filepath.Join(cfg.DataDir, "mudra.db"))
}

// env is a session with its history store and event sinks.
type env struct {
	cfg     config.Config
	store   *store.Store
	session *app.Session
	closers []func()
}

// newEnv opens the store, creates the session and attaches the MQTT
// emitter and hooks when they are configured. Setup is left to the caller.
func newEnv(cfg config.Config) (*env, error) {
	st, err := openStore(cfg)
	if err != nil {
		return nil, err
	}

	bus := events.NewBus()
	e := &env{cfg: cfg, store: st}

	if cfg.MQTT.Broker != "" {
		em := emitter.New(emitter.Config{
			Broker:   cfg.MQTT.Broker,
			Topic:    cfg.MQTT.Topic,
			ClientID: cfg.MQTT.ClientID,
			QoS:      1,
		})
		if err := em.Connect(); err != nil {
			log.Printf("MQTT disabled: %v", err)
		} else {
			bus.Subscribe(em)
			e.closers = append(e.closers, func() { em.Close() })
		}
	}

	if cfg.HooksDir != "" {
		manager := hook.NewManager(cfg.HooksDir)
		if err := manager.Discover(); err != nil {
			log.Printf("Hooks disabled: %v", err)
		} else if hooks := manager.List(); len(hooks) > 0 {
			d := hook.NewDispatcher(manager, hook.NewExecutor(hookTimeout))
			bus.Subscribe(d)
			e.closers = append(e.closers, d.Close)
			log.Printf("Loaded %d hooks from %s", len(hooks), cfg.HooksDir)
		}
	}

	e.session = app.New(app.Config{Settings: cfg, Store: st, Bus: bus})
	return e, nil
}

// Close releases the session, sinks and store, in that order.
func (e *env) Close() {
	if err := e.session.Close(); err != nil {
		log.Printf("Session close: %v", err)
	}
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
	e.store.Close()
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
