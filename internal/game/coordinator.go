package game

import (
	"context"
	"errors"
	"iter"
	"log"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrAlreadyRunning is returned when Run is called while a game is in progress.
var ErrAlreadyRunning = errors.New("game already running")

// errorLogWindow bounds the default OnError to one log line per window.
const errorLogWindow = 5 * time.Second

// State is the coordinator's position in the round cycle.
type State int

const (
	Idle State = iota
	CountingDown
	Resolved
)

func (s State) String() string {
	switch s {
	case CountingDown:
		return "counting_down"
	case Resolved:
		return "resolved"
	default:
		return "idle"
	}
}

// MoveSource opens a stream of the human's moves. The stream must end
// when ctx is done.
type MoveSource func(ctx context.Context) iter.Seq2[Move, error]

// Round is one finalized round.
type Round struct {
	ID       string
	Number   int
	Human    Move
	Computer Move
	Outcome  Outcome
	Score    Score
	// Buffered is set when no prediction existed at expiry and the round
	// waited for the first one.
	Buffered   bool
	StartedAt  time.Time
	ResolvedAt time.Time
}

// Config controls round timing and randomness.
type Config struct {
	// Countdown is the value each round starts from.
	Countdown int
	// Interval is the time between countdown ticks.
	Interval time.Duration
	// Rand draws the computer's move. A nil Rand uses a random seed.
	Rand *rand.Rand

	// OnTick is called with the remaining count, starting with Countdown.
	OnTick func(remaining int)
	// OnRound is called once per resolved round.
	OnRound func(Round)
	// OnError is called for errors from the move stream. Defaults to
	// logging at most one line per few seconds.
	OnError func(error)
}

// Coordinator runs the countdown, samples the human's latest move and
// scores rounds. The score lives as long as the coordinator.
type Coordinator struct {
	cfg Config
	rng *rand.Rand

	mu      sync.Mutex
	state   State
	score   Score
	rounds  int
	running bool
	last    *Round
}

// NewCoordinator creates an idle coordinator.
func NewCoordinator(cfg Config) *Coordinator {
	if cfg.Countdown <= 0 {
		cfg.Countdown = 3
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.OnError == nil {
		cfg.OnError = errorLogger(errorLogWindow)
	}

	rng := cfg.Rand
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	return &Coordinator{cfg: cfg, rng: rng}
}

// Run plays rounds until ctx is done. Cancellation is the normal way to
// stop and is not reported as an error.
func (c *Coordinator) Run(ctx context.Context, moves MoveSource) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return ErrAlreadyRunning
	}
	c.running = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.running = false
		c.state = Idle
		c.mu.Unlock()
	}()

	ctx, cancel := context.WithCancel(ctx)
	latest := NewLatest[Move]()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.sample(ctx, moves, latest)
	}()
	defer func() {
		cancel()
		wg.Wait()
	}()

	for {
		round, ok := c.playRound(ctx, latest)
		if !ok {
			return nil
		}
		if c.cfg.OnRound != nil {
			c.cfg.OnRound(round)
		}
	}
}

func (c *Coordinator) sample(ctx context.Context, moves MoveSource, latest *Latest[Move]) {
	for m, err := range moves(ctx) {
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			c.cfg.OnError(err)
			continue
		}
		latest.Set(m)
	}
}

func (c *Coordinator) playRound(ctx context.Context, latest *Latest[Move]) (Round, bool) {
	c.setState(CountingDown)
	started := time.Now()

	c.tick(c.cfg.Countdown)
	for remaining := range Countdown(ctx, c.cfg.Countdown, c.cfg.Interval) {
		c.tick(remaining)
	}
	if ctx.Err() != nil {
		return Round{}, false
	}

	computer := Move(c.rng.IntN(NumMoves))

	human, ok := latest.Get()
	buffered := false
	if !ok {
		// Never resolve without a human move: hold the round until the
		// first prediction arrives.
		var err error
		human, err = latest.Wait(ctx)
		if err != nil {
			return Round{}, false
		}
		buffered = true
	}

	outcome := Resolve(human, computer)

	c.mu.Lock()
	c.state = Resolved
	c.score = c.score.Add(outcome)
	c.rounds++
	round := Round{
		ID:         uuid.New().String(),
		Number:     c.rounds,
		Human:      human,
		Computer:   computer,
		Outcome:    outcome,
		Score:      c.score,
		Buffered:   buffered,
		StartedAt:  started,
		ResolvedAt: time.Now(),
	}
	c.last = &round
	c.mu.Unlock()

	return round, true
}

func (c *Coordinator) tick(remaining int) {
	if c.cfg.OnTick != nil {
		c.cfg.OnTick(remaining)
	}
}

func (c *Coordinator) setState(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = s
}

// State returns the current state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Score returns the cumulative score.
func (c *Coordinator) Score() Score {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.score
}

// Running reports whether Run is in progress.
func (c *Coordinator) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// LastRound returns the most recently resolved round, if any.
func (c *Coordinator) LastRound() (Round, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last == nil {
		return Round{}, false
	}
	return *c.last, true
}

// errorLogger logs the first error of each window and counts the rest.
func errorLogger(window time.Duration) func(error) {
	var (
		mu         sync.Mutex
		last       time.Time
		suppressed int
	)
	return func(err error) {
		mu.Lock()
		defer mu.Unlock()

		now := time.Now()
		if !last.IsZero() && now.Sub(last) < window {
			suppressed++
			return
		}
		if suppressed > 0 {
			log.Printf("Prediction error: %v (%d more since last report)", err, suppressed)
		} else {
			log.Printf("Prediction error: %v", err)
		}
		last = now
		suppressed = 0
	}
}
