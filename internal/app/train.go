package app

import (
	"context"
	"iter"
	"log"
	"math/rand/v2"

	"github.com/ayusman/mudra/internal/events"
	"github.com/ayusman/mudra/internal/model"
	"github.com/ayusman/mudra/internal/store"
)

// Train starts a training run on the examples captured so far. Dataset
// problems are returned before any work starts. The returned sequence
// yields one loss per batch. The new head replaces the current one only if
// the sequence runs to completion.
func (s *Session) Train(ctx context.Context) (iter.Seq2[model.BatchLoss, error], error) {
	if !s.Ready() {
		return nil, ErrNotReady
	}

	s.mu.Lock()
	if s.training {
		s.mu.Unlock()
		return nil, ErrTrainingInProgress
	}
	s.runs++
	rng := rand.New(rand.NewPCG(s.seed, s.runs))
	s.mu.Unlock()

	ds := s.examples.Snapshot()
	run, err := model.NewRun(ds, model.TrainConfig{
		LearningRate:  s.cfg.LearningRate,
		HiddenUnits:   s.cfg.HiddenUnits,
		Epochs:        s.cfg.Epochs,
		BatchFraction: s.cfg.BatchFraction,
		Rand:          rng,
	})
	if err != nil {
		return nil, err
	}

	return func(yield func(model.BatchLoss, error) bool) {
		s.mu.Lock()
		if s.training {
			s.mu.Unlock()
			yield(model.BatchLoss{}, ErrTrainingInProgress)
			return
		}
		s.training = true
		s.lastRun = run
		s.mu.Unlock()

		record := &store.TrainingRun{
			ID:           run.ID,
			SessionID:    s.id,
			Examples:     ds.Rows(),
			LabelCounts:  ds.Counts(),
			BatchSize:    run.BatchSize(),
			Epochs:       s.cfg.Epochs,
			LearningRate: s.cfg.LearningRate,
		}
		s.recordRunStart(record)
		s.bus.Emit(events.TrainingStarted, events.TrainingData{RunID: run.ID, Examples: ds.Rows()})

		defer s.finishRun(run, record)

		for bl, err := range run.Fit(ctx) {
			if err == nil {
				s.bus.Emit(events.BatchLoss, events.LossData{
					RunID: run.ID, Epoch: bl.Epoch, Batch: bl.Batch, Step: bl.Step, Loss: bl.Loss,
				})
			}
			if !yield(bl, err) {
				return
			}
		}
	}, nil
}

// finishRun installs the head of a successful run and records the outcome.
// It runs however the training sequence ends.
func (s *Session) finishRun(run *model.Run, record *store.TrainingRun) {
	head := run.Head()

	s.mu.Lock()
	s.training = false
	if head != nil {
		s.head = head
	}
	s.mu.Unlock()

	record.Status = string(run.Status())
	record.Converged = head != nil && run.Converged()
	if err := run.Err(); err != nil {
		record.Reason = err.Error()
	}

	data := events.TrainingData{
		RunID:     run.ID,
		Examples:  record.Examples,
		Status:    record.Status,
		Reason:    record.Reason,
		FinalLoss: run.LastLoss(),
		Converged: record.Converged,
	}
	if head != nil {
		log.Printf("Training run %s succeeded after %d batches, loss %.5f", run.ID, len(run.Losses()), data.FinalLoss)
		s.bus.Emit(events.Trained, data)
	} else {
		log.Printf("Training run %s ended %s: %s", run.ID, record.Status, record.Reason)
		if len(run.Losses()) == 0 {
			data.FinalLoss = 0
		}
		s.bus.Emit(events.TrainingFailed, data)
	}

	if s.store != nil {
		if err := s.store.Runs().Finish(record, run.Losses()); err != nil {
			log.Printf("Failed to record training run %s: %v", run.ID, err)
		}
	}
}

func (s *Session) recordRunStart(record *store.TrainingRun) {
	if s.store == nil {
		return
	}
	if err := s.store.Runs().Create(record); err != nil {
		log.Printf("Failed to record training run %s: %v", record.ID, err)
	}
}
