package app

import (
	"context"
	"iter"
	"log"

	"github.com/ayusman/mudra/internal/events"
	"github.com/ayusman/mudra/internal/game"
	"github.com/ayusman/mudra/internal/inference"
	"github.com/ayusman/mudra/internal/store"
)

type gameHandle struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Predict classifies live frames with the head installed when Predict is
// called. A head trained later is not picked up by this sequence.
func (s *Session) Predict(ctx context.Context) (iter.Seq2[inference.Prediction, error], error) {
	if !s.Ready() {
		return nil, ErrNotReady
	}

	loop, err := inference.NewLoop(s.source, s.embedder, s.Head())
	if err != nil {
		return nil, err
	}

	return func(yield func(inference.Prediction, error) bool) {
		for p, err := range loop.Predictions(ctx) {
			if err == nil {
				s.bus.Emit(events.Prediction, events.PredictionData{
					Class:  p.Class,
					Move:   game.Move(p.Class).String(),
					Scores: p.Scores,
				})
			}
			if !yield(p, err) {
				return
			}
		}
	}, nil
}

// Play starts the game in the background. It fails with
// inference.ErrModelNotTrained before a successful training run.
func (s *Session) Play(ctx context.Context) error {
	if !s.Ready() {
		return ErrNotReady
	}
	if s.Head() == nil {
		return inference.ErrModelNotTrained
	}

	s.mu.Lock()
	if s.game != nil {
		s.mu.Unlock()
		return game.ErrAlreadyRunning
	}
	gctx, cancel := context.WithCancel(ctx)
	h := &gameHandle{cancel: cancel, done: make(chan struct{})}
	s.game = h
	s.mu.Unlock()

	moves := func(ctx context.Context) iter.Seq2[game.Move, error] {
		return func(yield func(game.Move, error) bool) {
			preds, err := s.Predict(ctx)
			if err != nil {
				yield(0, err)
				return
			}
			for p, err := range preds {
				if !yield(game.Move(p.Class), err) {
					return
				}
			}
		}
	}

	s.bus.Emit(events.GameStarted, nil)
	log.Printf("Game started")

	go func() {
		defer close(h.done)
		defer cancel()

		if err := s.coordinator.Run(gctx, moves); err != nil {
			log.Printf("Game stopped: %v", err)
		}

		s.mu.Lock()
		if s.game == h {
			s.game = nil
		}
		s.mu.Unlock()

		s.bus.Emit(events.GameStopped, s.coordinator.Score())
	}()

	return nil
}

// StopGame stops a running game and waits for it to wind down.
func (s *Session) StopGame() {
	s.mu.RLock()
	h := s.game
	s.mu.RUnlock()

	if h == nil {
		return
	}
	h.cancel()
	<-h.done
	log.Printf("Game stopped")
}

// GameRunning reports whether a game is in progress.
func (s *Session) GameRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.game != nil
}

// Score returns the cumulative score of the session.
func (s *Session) Score() game.Score {
	return s.coordinator.Score()
}

// LastRound returns the most recent resolved round.
func (s *Session) LastRound() (game.Round, bool) {
	return s.coordinator.LastRound()
}

func (s *Session) onTick(remaining int) {
	s.bus.Emit(events.Tick, events.TickData{Remaining: remaining})
}

func (s *Session) onRound(r game.Round) {
	s.bus.Emit(events.RoundResolved, events.RoundData{
		ID:            r.ID,
		Number:        r.Number,
		Human:         r.Human.String(),
		Computer:      r.Computer.String(),
		Outcome:       r.Outcome.String(),
		HumanScore:    r.Score.Human,
		ComputerScore: r.Score.Computer,
		Buffered:      r.Buffered,
	})

	if s.store == nil {
		return
	}
	err := s.store.Rounds().Create(&store.Round{
		ID:            r.ID,
		SessionID:     s.id,
		Number:        r.Number,
		HumanMove:     r.Human.String(),
		ComputerMove:  r.Computer.String(),
		Outcome:       r.Outcome.String(),
		HumanScore:    r.Score.Human,
		ComputerScore: r.Score.Computer,
		Buffered:      r.Buffered,
		ResolvedAt:    r.ResolvedAt,
	})
	if err != nil {
		log.Printf("Failed to record round %d: %v", r.Number, err)
	}
}
