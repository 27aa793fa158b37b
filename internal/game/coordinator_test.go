package game

import (
	"bytes"
	"context"
	"errors"
	"iter"
	"log"
	"math/rand/v2"
	"os"
	"sync"
	"testing"
	"time"
)

// fixedMoves emits the given moves and then ends.
func fixedMoves(moves ...Move) MoveSource {
	return func(ctx context.Context) iter.Seq2[Move, error] {
		return func(yield func(Move, error) bool) {
			for _, m := range moves {
				if !yield(m, nil) {
					return
				}
			}
		}
	}
}

func TestCoordinator_FullRound(t *testing.T) {
	const seed1, seed2 = 7, 9
	expected := rand.New(rand.NewPCG(seed1, seed2))

	var (
		mu     sync.Mutex
		ticks  []int
		rounds []Round
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := NewCoordinator(Config{
		Countdown: 3,
		Interval:  time.Millisecond,
		Rand:      rand.New(rand.NewPCG(seed1, seed2)),
		OnTick: func(remaining int) {
			mu.Lock()
			ticks = append(ticks, remaining)
			mu.Unlock()
		},
		OnRound: func(r Round) {
			mu.Lock()
			rounds = append(rounds, r)
			n := len(rounds)
			mu.Unlock()
			if n == 2 {
				cancel()
			}
		},
	})

	if err := c.Run(ctx, fixedMoves(Paper)); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()

	if len(rounds) != 2 {
		t.Fatalf("rounds = %d, want 2", len(rounds))
	}
	// Each round counts 3, 2, 1, 0 and the next starts again at 3.
	if len(ticks) < 5 || ticks[0] != 3 || ticks[3] != 0 || ticks[4] != 3 {
		t.Errorf("ticks = %v", ticks)
	}

	var score Score
	for i, r := range rounds {
		if r.Human != Paper {
			t.Errorf("round %d human = %v, want paper", i, r.Human)
		}
		if want := Move(expected.IntN(NumMoves)); r.Computer != want {
			t.Errorf("round %d computer = %v, want %v", i, r.Computer, want)
		}
		if r.Outcome != Resolve(r.Human, r.Computer) {
			t.Errorf("round %d outcome = %v", i, r.Outcome)
		}
		score = score.Add(r.Outcome)
		if r.Score != score || r.Number != i+1 {
			t.Errorf("round %d score = %+v, number = %d", i, r.Score, r.Number)
		}
	}

	if c.Score() != score {
		t.Errorf("Score() = %+v, want %+v", c.Score(), score)
	}
	if c.State() != Idle || c.Running() {
		t.Errorf("after Run: State() = %v, Running() = %v", c.State(), c.Running())
	}
	if last, ok := c.LastRound(); !ok || last.ID != rounds[1].ID {
		t.Error("LastRound() is not the final round")
	}
}

func TestCoordinator_UsesLatestMove(t *testing.T) {
	midway := make(chan struct{}, 1)
	moves := func(ctx context.Context) iter.Seq2[Move, error] {
		return func(yield func(Move, error) bool) {
			if !yield(Stone, nil) {
				return
			}
			select {
			case <-midway:
			case <-ctx.Done():
				return
			}
			if !yield(Paper, nil) {
				return
			}
			<-ctx.Done()
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var got []Round
	c := NewCoordinator(Config{
		Countdown: 3,
		Interval:  10 * time.Millisecond,
		OnTick: func(remaining int) {
			if remaining == 2 {
				select {
				case midway <- struct{}{}:
				default:
				}
			}
		},
		OnRound: func(r Round) {
			got = append(got, r)
			cancel()
		},
	})

	if err := c.Run(ctx, moves); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("rounds = %d, want 1", len(got))
	}
	if got[0].Human != Paper {
		t.Errorf("human = %v, want paper (the latest move before expiry)", got[0].Human)
	}
	if got[0].Buffered {
		t.Error("round waited although a move was available")
	}
}

func TestErrorLogger_LimitsRate(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	flags := log.Flags()
	log.SetFlags(0)
	t.Cleanup(func() {
		log.SetOutput(os.Stderr)
		log.SetFlags(flags)
	})

	logErr := errorLogger(time.Hour)
	for range 50 {
		logErr(errors.New("failed to read frame"))
	}

	if n := bytes.Count(buf.Bytes(), []byte("\n")); n != 1 {
		t.Errorf("logged %d lines for 50 errors, want 1:\n%s", n, buf.String())
	}
}

func TestCoordinator_WaitsForFirstPrediction(t *testing.T) {
	release := make(chan struct{})
	moves := func(ctx context.Context) iter.Seq2[Move, error] {
		return func(yield func(Move, error) bool) {
			select {
			case <-release:
			case <-ctx.Done():
				return
			}
			yield(Scissors, nil)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	resolved := make(chan Round, 1)
	c := NewCoordinator(Config{
		Countdown: 2,
		Interval:  time.Millisecond,
		OnRound: func(r Round) {
			resolved <- r
			cancel()
		},
	})

	done := make(chan error, 1)
	go func() { done <- c.Run(ctx, moves) }()

	// The countdown finishes well before the first prediction.
	select {
	case <-resolved:
		t.Fatal("round resolved without a prediction")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)

	select {
	case r := <-resolved:
		if r.Human != Scissors || !r.Buffered {
			t.Errorf("round = %+v, want buffered scissors", r)
		}
	case <-time.After(time.Second):
		t.Fatal("round never resolved")
	}

	if err := <-done; err != nil {
		t.Errorf("Run() error = %v", err)
	}
}

func TestCoordinator_StopWhileWaiting(t *testing.T) {
	never := func(ctx context.Context) iter.Seq2[Move, error] {
		return func(yield func(Move, error) bool) { <-ctx.Done() }
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	c := NewCoordinator(Config{Countdown: 1, Interval: time.Millisecond})
	if err := c.Run(ctx, never); err != nil {
		t.Errorf("Run() error = %v", err)
	}
	if c.Score() != (Score{}) {
		t.Errorf("Score() = %+v without any round", c.Score())
	}
}

func TestCoordinator_StreamErrors(t *testing.T) {
	var mu sync.Mutex
	var errs []error

	moves := func(ctx context.Context) iter.Seq2[Move, error] {
		return func(yield func(Move, error) bool) {
			if !yield(0, errors.New("bad frame")) {
				return
			}
			yield(Stone, nil)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := NewCoordinator(Config{
		Countdown: 1,
		Interval:  time.Millisecond,
		OnError: func(err error) {
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
		},
		OnRound: func(Round) { cancel() },
	})

	if err := c.Run(ctx, moves); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(errs) != 1 {
		t.Errorf("OnError called %d times, want 1", len(errs))
	}
}

func TestCoordinator_AlreadyRunning(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := NewCoordinator(Config{Countdown: 3, Interval: time.Hour})
	go c.Run(ctx, fixedMoves(Stone))

	deadline := time.Now().Add(time.Second)
	for !c.Running() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	if err := c.Run(ctx, fixedMoves(Stone)); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Run() error = %v, want ErrAlreadyRunning", err)
	}
}
