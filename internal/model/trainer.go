package model

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"

	"github.com/ayusman/mudra/internal/dataset"
)

var (
	// ErrEmptyDataset is returned when training is requested with no examples.
	ErrEmptyDataset = errors.New("dataset is empty")
	// ErrDegenerateBatchSize is returned when the batch fraction of the
	// dataset rounds down to zero rows.
	ErrDegenerateBatchSize = errors.New("batch size rounds to zero")
	// ErrTrainingDiverged is returned when a batch loss is NaN or infinite.
	ErrTrainingDiverged = errors.New("training diverged")
	// ErrRunConsumed is returned when Fit is called on a run that already started.
	ErrRunConsumed = errors.New("training run already started")
)

// Status is the lifecycle state of a training run.
type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// TrainConfig holds the fixed training hyperparameters.
type TrainConfig struct {
	LearningRate  float64
	HiddenUnits   int
	Epochs        int
	BatchFraction float64
	// Rand drives weight init and shuffling. A nil Rand uses a random seed.
	Rand *rand.Rand
}

// BatchLoss is the loss observed after one mini-batch update.
type BatchLoss struct {
	Epoch int
	Batch int
	Step  int
	Loss  float64
}

// Run is one training invocation. Each Run owns a brand-new head and
// optimizer; nothing carries over from earlier runs.
type Run struct {
	ID string

	cfg       TrainConfig
	ds        dataset.Dataset
	batchSize int
	rng       *rand.Rand
	head      *Head
	opt       *Adam

	mu       sync.Mutex
	started  bool
	status   Status
	err      error
	losses   []float64
	begun    time.Time
	finished time.Time
	trained  *Head
}

// NewRun validates ds and prepares a fresh head for it. Validation errors
// are returned before any training work happens.
func NewRun(ds dataset.Dataset, cfg TrainConfig) (*Run, error) {
	if ds.Rows() == 0 {
		return nil, ErrEmptyDataset
	}

	batchSize := int(math.Floor(float64(ds.Rows()) * cfg.BatchFraction))
	if batchSize <= 0 {
		return nil, fmt.Errorf("%w: %d examples x %.2f", ErrDegenerateBatchSize, ds.Rows(), cfg.BatchFraction)
	}

	rng := cfg.Rand
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	return &Run{
		ID:        uuid.New().String(),
		cfg:       cfg,
		ds:        ds,
		batchSize: batchSize,
		rng:       rng,
		head:      NewHead(ds.Dim(), cfg.HiddenUnits, ds.Classes(), rng),
		opt:       NewAdam(cfg.LearningRate),
		status:    StatusRunning,
	}, nil
}

// BatchSize returns the mini-batch size in rows.
func (r *Run) BatchSize() int { return r.batchSize }

// Steps returns how many losses a successful run emits.
func (r *Run) Steps() int {
	return r.cfg.Epochs * ((r.ds.Rows() + r.batchSize - 1) / r.batchSize)
}

// Fit trains the head, yielding one BatchLoss per mini-batch. The sequence
// ends with an error on divergence or when ctx is done. Breaking out of the
// range cancels the run. Fit can be consumed once.
func (r *Run) Fit(ctx context.Context) iter.Seq2[BatchLoss, error] {
	return func(yield func(BatchLoss, error) bool) {
		r.mu.Lock()
		if r.started {
			r.mu.Unlock()
			yield(BatchLoss{}, ErrRunConsumed)
			return
		}
		r.started = true
		r.begun = time.Now()
		r.mu.Unlock()

		rows := r.ds.Rows()
		step := 0

		for epoch := 0; epoch < r.cfg.Epochs; epoch++ {
			perm := r.rng.Perm(rows)

			for batch, lo := 0, 0; lo < rows; batch, lo = batch+1, lo+r.batchSize {
				if err := ctx.Err(); err != nil {
					r.finish(StatusCancelled, err)
					yield(BatchLoss{}, err)
					return
				}

				idx := perm[lo:min(lo+r.batchSize, rows)]
				loss := r.head.step(gather(r.ds.X, idx), gather(r.ds.Y, idx))

				if math.IsNaN(loss) || math.IsInf(loss, 0) {
					err := fmt.Errorf("%w: loss %v at epoch %d batch %d", ErrTrainingDiverged, loss, epoch, batch)
					r.finish(StatusFailed, err)
					yield(BatchLoss{}, err)
					return
				}

				r.opt.Step(r.head)

				r.mu.Lock()
				r.losses = append(r.losses, loss)
				r.mu.Unlock()

				if !yield(BatchLoss{Epoch: epoch, Batch: batch, Step: step, Loss: loss}, nil) {
					r.finish(StatusCancelled, context.Canceled)
					return
				}
				step++
			}
		}

		r.mu.Lock()
		r.trained = r.head
		r.mu.Unlock()
		r.finish(StatusSucceeded, nil)
	}
}

func (r *Run) finish(status Status, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status = status
	r.err = err
	r.finished = time.Now()
}

func gather(src *mat.Dense, idx []int) *mat.Dense {
	_, cols := src.Dims()
	dst := mat.NewDense(len(idx), cols, nil)
	for i, row := range idx {
		dst.SetRow(i, src.RawRowView(row))
	}
	return dst
}

// Head returns the trained head, or nil unless Fit completed successfully.
func (r *Run) Head() *Head {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.trained
}

// Status returns the run state.
func (r *Run) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Err returns why the run failed or was cancelled.
func (r *Run) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Losses returns a copy of the loss curve so far.
func (r *Run) Losses() []float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]float64, len(r.losses))
	copy(out, r.losses)
	return out
}

// LastLoss returns the most recent batch loss, or NaN before the first batch.
func (r *Run) LastLoss() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.losses) == 0 {
		return math.NaN()
	}
	return r.losses[len(r.losses)-1]
}

// Converged reports whether the last batch loss fell below the learning rate.
func (r *Run) Converged() bool {
	return r.LastLoss() < r.cfg.LearningRate
}

// Times returns when fitting started and finished. Zero values mean not yet.
func (r *Run) Times() (started, finished time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.begun, r.finished
}
