// Package events fans session activity out to observers such as the
// websocket hub, hooks and the MQTT emitter.
package events

import (
	"sync"
	"time"
)

// Type names an event.
type Type string

const (
	CaptureStarted  Type = "capture_started"
	ExampleAdded    Type = "example_added"
	CaptureFinished Type = "capture_finished"
	TrainingStarted Type = "training_started"
	BatchLoss       Type = "batch_loss"
	Trained         Type = "trained"
	TrainingFailed  Type = "training_failed"
	Prediction      Type = "prediction"
	GameStarted     Type = "game_started"
	Tick            Type = "tick"
	RoundResolved   Type = "round_resolved"
	GameStopped     Type = "game_stopped"
)

// Event is one notification. Data is one of the payload types below.
type Event struct {
	Type Type      `json:"type"`
	Time time.Time `json:"time"`
	Data any       `json:"data,omitempty"`
}

// CaptureData describes a capture burst or a single captured example.
type CaptureData struct {
	Label int `json:"label"`
	Count int `json:"count"`
	Total int `json:"total"`
}

// LossData is one training batch loss.
type LossData struct {
	RunID string  `json:"run_id"`
	Epoch int     `json:"epoch"`
	Batch int     `json:"batch"`
	Step  int     `json:"step"`
	Loss  float64 `json:"loss"`
}

// TrainingData describes the start or end of a training run.
type TrainingData struct {
	RunID     string  `json:"run_id"`
	Examples  int     `json:"examples"`
	Status    string  `json:"status,omitempty"`
	Reason    string  `json:"reason,omitempty"`
	FinalLoss float64 `json:"final_loss,omitempty"`
	Converged bool    `json:"converged,omitempty"`
}

// PredictionData is one live classification.
type PredictionData struct {
	Class  int       `json:"class"`
	Move   string    `json:"move"`
	Scores []float64 `json:"scores"`
}

// TickData is a countdown value.
type TickData struct {
	Remaining int `json:"remaining"`
}

// RoundData is a resolved game round.
type RoundData struct {
	ID            string `json:"id"`
	Number        int    `json:"number"`
	Human         string `json:"human"`
	Computer      string `json:"computer"`
	Outcome       string `json:"outcome"`
	HumanScore    int    `json:"human_score"`
	ComputerScore int    `json:"computer_score"`
	Buffered      bool   `json:"buffered,omitempty"`
}

// Sink receives events. Publish must not block for long.
type Sink interface {
	Publish(e Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(e Event)

// Publish calls f(e).
func (f SinkFunc) Publish(e Event) { f(e) }

// Bus delivers every event to every subscribed sink in subscription order.
type Bus struct {
	mu    sync.RWMutex
	sinks []Sink
}

// NewBus creates a bus with no sinks.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe adds a sink.
func (b *Bus) Subscribe(s Sink) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sinks = append(b.sinks, s)
}

// Emit stamps and publishes an event of type t. A nil Bus drops it.
func (b *Bus) Emit(t Type, data any) {
	if b == nil {
		return
	}
	b.Publish(Event{Type: t, Time: time.Now(), Data: data})
}

// Publish delivers e to all sinks.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	sinks := b.sinks
	b.mu.RUnlock()

	for _, s := range sinks {
		s.Publish(e)
	}
}
