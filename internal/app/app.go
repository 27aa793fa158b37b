// Package app wires the frame source, extractor, example store, trainer
// and game into one session.
package app

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log"
	"math/rand/v2"
	"sync"

	"github.com/google/uuid"

	"github.com/ayusman/mudra/internal/capture"
	"github.com/ayusman/mudra/internal/config"
	"github.com/ayusman/mudra/internal/dataset"
	"github.com/ayusman/mudra/internal/events"
	"github.com/ayusman/mudra/internal/extractor"
	"github.com/ayusman/mudra/internal/game"
	"github.com/ayusman/mudra/internal/model"
	"github.com/ayusman/mudra/internal/store"
)

var (
	// ErrNotReady is returned when an operation needs a completed Setup.
	ErrNotReady = errors.New("session not set up")
	// ErrCaptureInProgress is returned when a capture burst is already running.
	ErrCaptureInProgress = errors.New("capture already in progress")
	// ErrTrainingInProgress is returned when a training run is already running.
	ErrTrainingInProgress = errors.New("training already in progress")
)

// Config holds the session's collaborators. Nil collaborators are created
// from Settings.
type Config struct {
	Settings config.Config
	Camera   capture.Camera
	Embedder extractor.Embedder
	Store    *store.Store
	Bus      *events.Bus
}

// Session is one play session. Examples, the trained head and the score
// live only as long as the session.
type Session struct {
	id       string
	cfg      config.Config
	source   *capture.Source
	embedder extractor.Embedder
	examples *dataset.Store
	store    *store.Store
	bus      *events.Bus
	seed     uint64

	coordinator *game.Coordinator

	mu        sync.RWMutex
	ready     bool
	capturing bool
	training  bool
	runs      uint64
	head      *model.Head
	lastRun   *model.Run
	thumbs    map[int]*image.RGBA
	game      *gameHandle
}

// New creates a session. Nothing touches the camera or network until Setup.
func New(cfg Config) *Session {
	camera := cfg.Camera
	if camera == nil {
		camera = capture.NewCamera(cfg.Settings.CameraID)
	}

	bus := cfg.Bus
	if bus == nil {
		bus = events.NewBus()
	}

	seed := cfg.Settings.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}

	s := &Session{
		id:       uuid.New().String(),
		cfg:      cfg.Settings,
		source:   capture.NewSource(camera),
		embedder: cfg.Embedder,
		examples: dataset.New(cfg.Settings.NumClasses),
		store:    cfg.Store,
		bus:      bus,
		seed:     seed,
		thumbs:   make(map[int]*image.RGBA),
	}

	s.coordinator = game.NewCoordinator(game.Config{
		Countdown: cfg.Settings.Countdown,
		Interval:  cfg.Settings.TickInterval,
		Rand:      rand.New(rand.NewPCG(seed, 0x9e3779b97f4a7c15)),
		OnTick:    s.onTick,
		OnRound:   s.onRound,
	})

	return s
}

// ID returns the session ID.
func (s *Session) ID() string { return s.id }

// Bus returns the session's event bus.
func (s *Session) Bus() *events.Bus { return s.bus }

// Source returns the frame source.
func (s *Session) Source() *capture.Source { return s.source }

// Settings returns the read-only configuration.
func (s *Session) Settings() config.Config { return s.cfg }

// Setup waits for the camera, then loads the extractor. The camera gate
// always resolves before the model is fetched.
func (s *Session) Setup(ctx context.Context) error {
	if err := <-s.source.Setup(ctx); err != nil {
		return err
	}

	if s.embedder == nil {
		e, err := extractor.Load(ctx, extractor.Config{
			URL:      s.cfg.Model.URL,
			CacheDir: s.cfg.Model.CacheDir,
		})
		if err != nil {
			return err
		}
		s.embedder = e
	}

	if s.store != nil {
		err := s.store.Sessions().Create(&store.Session{
			ID:           s.id,
			CameraID:     s.cfg.CameraID,
			ModelVersion: extractor.TruncationVersion,
		})
		if err != nil {
			log.Printf("Failed to record session: %v", err)
		}
	}

	s.mu.Lock()
	s.ready = true
	s.mu.Unlock()

	w, h := s.source.Resolution()
	log.Printf("Session %s ready (camera %dx%d)", s.id, w, h)
	return nil
}

// Ready reports whether Setup completed.
func (s *Session) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready
}

// Trained reports whether a training run has succeeded in this session.
func (s *Session) Trained() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.head != nil
}

// Head returns the installed head, or nil before a successful run.
func (s *Session) Head() *model.Head {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.head
}

// Thumbnail returns the last frame captured for label.
func (s *Session) Thumbnail(label int) (*image.RGBA, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	img, ok := s.thumbs[label]
	return img, ok
}

// Status is a point-in-time view of the session.
type Status struct {
	SessionID string      `json:"session_id"`
	Ready     bool        `json:"ready"`
	Capturing bool        `json:"capturing"`
	Training  bool        `json:"training"`
	Trained   bool        `json:"trained"`
	Converged bool        `json:"converged"`
	Examples  int         `json:"examples"`
	Counts    []int       `json:"counts"`
	Display   image.Point `json:"display"`
	LastRun   *RunStatus  `json:"last_run,omitempty"`
	Game      GameStatus  `json:"game"`
}

// RunStatus summarizes the latest training run.
type RunStatus struct {
	ID       string  `json:"id"`
	Status   string  `json:"status"`
	Reason   string  `json:"reason,omitempty"`
	Batches  int     `json:"batches"`
	LastLoss float64 `json:"last_loss"`
}

// GameStatus summarizes the game.
type GameStatus struct {
	Running bool       `json:"running"`
	State   string     `json:"state"`
	Score   game.Score `json:"score"`
}

// Status returns the current session status.
func (s *Session) Status() Status {
	s.mu.RLock()
	st := Status{
		SessionID: s.id,
		Ready:     s.ready,
		Capturing: s.capturing,
		Training:  s.training,
		Trained:   s.head != nil,
	}
	run := s.lastRun
	s.mu.RUnlock()

	st.Examples = s.examples.Len()
	st.Counts = s.examples.Counts()
	st.Display = s.source.Display()
	st.Game = GameStatus{
		Running: s.coordinator.Running(),
		State:   s.coordinator.State().String(),
		Score:   s.coordinator.Score(),
	}

	if run != nil {
		rs := &RunStatus{
			ID:      run.ID,
			Status:  string(run.Status()),
			Batches: len(run.Losses()),
		}
		if err := run.Err(); err != nil {
			rs.Reason = err.Error()
		}
		if n := len(run.Losses()); n > 0 {
			rs.LastLoss = run.LastLoss()
		}
		st.LastRun = rs
		st.Converged = st.Trained && run.Converged()
	}

	return st
}

// Close stops the game and releases the camera, extractor and examples.
func (s *Session) Close() error {
	s.StopGame()

	var errs []error
	if err := s.source.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close camera: %w", err))
	}
	if s.embedder != nil {
		if err := s.embedder.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close extractor: %w", err))
		}
	}
	s.examples.Release()

	if s.store != nil && s.Ready() {
		if err := s.store.Sessions().End(s.id); err != nil {
			log.Printf("Failed to close session record: %v", err)
		}
	}

	s.mu.Lock()
	s.ready = false
	s.mu.Unlock()

	log.Printf("Session %s closed", s.id)
	return errors.Join(errs...)
}
