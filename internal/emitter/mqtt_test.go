package emitter

import (
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/ayusman/mudra/internal/events"
)

type fakeToken struct {
	err     error
	expired bool
}

func (t *fakeToken) Wait() bool                     { return !t.expired }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return !t.expired }
func (t *fakeToken) Done() <-chan struct{}          { ch := make(chan struct{}); close(ch); return ch }
func (t *fakeToken) Error() error                   { return t.err }

type message struct {
	topic   string
	payload []byte
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []message
	err  error
	sent chan struct{}
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{sent: make(chan struct{}, 16)}
}

func (p *fakePublisher) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	p.mu.Lock()
	p.msgs = append(p.msgs, message{topic: topic, payload: payload.([]byte)})
	err := p.err
	p.mu.Unlock()
	p.sent <- struct{}{}
	return &fakeToken{err: err}
}

// fakeClient answers Connect with token and records Disconnect calls.
// Methods the emitter never calls are left to the embedded nil interface.
type fakeClient struct {
	mqtt.Client
	token        *fakeToken
	disconnected int
}

func (c *fakeClient) Connect() mqtt.Token { return c.token }
func (c *fakeClient) Disconnect(quiesce uint) {
	c.disconnected++
}
func (c *fakeClient) IsConnected() bool { return false }

func waitSent(t *testing.T, p *fakePublisher) {
	t.Helper()
	select {
	case <-p.sent:
	case <-time.After(time.Second):
		t.Fatal("nothing published")
	}
}

func TestEmitter_PublishesSelectedEvents(t *testing.T) {
	pub := newFakePublisher()
	e := New(Config{Topic: "mudra/events"})
	e.start(pub)
	e.setConnected(true)
	defer e.Close()

	e.Publish(events.Event{Type: events.Tick, Time: time.Now(), Data: events.TickData{Remaining: 1}})
	e.Publish(events.Event{Type: events.RoundResolved, Time: time.Now(), Data: events.RoundData{Human: "paper", Computer: "stone", Outcome: "human", HumanScore: 1}})
	waitSent(t, pub)

	pub.mu.Lock()
	defer pub.mu.Unlock()
	if len(pub.msgs) != 1 {
		t.Fatalf("published %d messages, want 1", len(pub.msgs))
	}
	if pub.msgs[0].topic != "mudra/events/round_resolved" {
		t.Errorf("topic = %q", pub.msgs[0].topic)
	}

	var decoded struct {
		Type string         `msgpack:"type"`
		Data map[string]any `msgpack:"data"`
	}
	if err := msgpack.Unmarshal(pub.msgs[0].payload, &decoded); err != nil {
		t.Fatalf("payload is not msgpack: %v", err)
	}
	if decoded.Type != "round_resolved" || decoded.Data["outcome"] != "human" {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestEmitter_NotConnected(t *testing.T) {
	e := New(Config{Topic: "t"})
	err := e.send(events.Event{Type: events.Trained})
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("send() error = %v, want ErrNotConnected", err)
	}
	if e.Stats().Errors != 1 {
		t.Errorf("Errors = %d, want 1", e.Stats().Errors)
	}
}

func TestEmitter_PublishError(t *testing.T) {
	pub := newFakePublisher()
	pub.err = errors.New("broker refused")

	e := New(Config{Topic: "t"})
	e.pub = pub
	e.setConnected(true)

	if err := e.send(events.Event{Type: events.Trained}); err == nil {
		t.Error("send() expected error")
	}
	if s := e.Stats(); s.Errors != 1 || len(s.Published) != 0 {
		t.Errorf("Stats() = %+v", s)
	}
}

func TestEmitter_DropsWhenFull(t *testing.T) {
	e := New(Config{Topic: "t", Events: []events.Type{events.Tick}})
	// No loop is running, so the queue fills up.
	for i := 0; i < queueSize+3; i++ {
		e.Publish(events.Event{Type: events.Tick})
	}
	if got := e.Stats().Dropped; got != 3 {
		t.Errorf("Dropped = %d, want 3", got)
	}
}

func TestEmitter_CloseTwice(t *testing.T) {
	e := New(Config{Topic: "t"})
	e.start(newFakePublisher())
	if err := e.Close(); err != nil {
		t.Fatal(err)
	}
	if err := e.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestEmitter_ConnectFailureDisconnects(t *testing.T) {
	tests := []struct {
		name  string
		token *fakeToken
	}{
		{"timeout", &fakeToken{expired: true}},
		{"refused", &fakeToken{err: errors.New("connection refused")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &fakeClient{token: tt.token}
			e := New(Config{Broker: "localhost:1883", Topic: "mudra/events"})
			e.newClient = func(*mqtt.ClientOptions) mqtt.Client { return client }

			if err := e.Connect(); err == nil {
				t.Fatal("Connect() error = nil")
			}
			if client.disconnected != 1 {
				t.Errorf("Disconnect called %d times, want 1", client.disconnected)
			}
			if e.Stats().Connected {
				t.Error("Stats().Connected after failed Connect")
			}
			if err := e.Close(); err != nil {
				t.Errorf("Close() error = %v", err)
			}
		})
	}
}
