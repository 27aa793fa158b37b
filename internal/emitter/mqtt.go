// Package emitter publishes selected session events to an MQTT broker.
package emitter

import (
	"bytes"
	"errors"
	"fmt"
	"log"
	"slices"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/ayusman/mudra/internal/events"
)

// ErrNotConnected is returned when publishing without a broker connection.
var ErrNotConnected = errors.New("mqtt not connected")

// DefaultEvents are the event types forwarded when Config.Events is empty.
// High-rate events such as predictions and ticks stay local.
var DefaultEvents = []events.Type{
	events.Trained,
	events.TrainingFailed,
	events.GameStarted,
	events.RoundResolved,
	events.GameStopped,
}

const (
	queueSize      = 64
	connectTimeout = 5 * time.Second
)

// Config holds broker settings.
type Config struct {
	Broker   string
	Topic    string
	ClientID string
	QoS      byte
	Events   []events.Type
}

// publisher is the part of mqtt.Client the emitter needs.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTEmitter is an events.Sink that forwards events as msgpack payloads
// to "<topic>/<event type>".
type MQTTEmitter struct {
	cfg       Config
	client    mqtt.Client
	pub       publisher
	newClient func(*mqtt.ClientOptions) mqtt.Client

	queue chan events.Event
	done  chan struct{}
	wg    sync.WaitGroup

	mu        sync.RWMutex
	connected bool
	published map[string]uint64
	errors    uint64
	dropped   uint64
}

// Stats contains emitter statistics.
type Stats struct {
	Connected bool
	Published map[string]uint64
	Errors    uint64
	Dropped   uint64
}

// New creates an emitter. Call Connect before events are published.
func New(cfg Config) *MQTTEmitter {
	if len(cfg.Events) == 0 {
		cfg.Events = DefaultEvents
	}
	return &MQTTEmitter{
		cfg:       cfg,
		queue:     make(chan events.Event, queueSize),
		done:      make(chan struct{}),
		published: make(map[string]uint64),
		newClient: mqtt.NewClient,
	}
}

// Connect establishes the broker connection and starts the publish loop.
// On failure the client is disconnected so no retries linger.
func (e *MQTTEmitter) Connect() error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", e.cfg.Broker))
	opts.SetClientID(e.cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(c mqtt.Client) {
		e.setConnected(true)
		log.Printf("MQTT connected to %s", e.cfg.Broker)
	}
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		e.setConnected(false)
		log.Printf("MQTT connection to %s lost, reconnecting: %v", e.cfg.Broker, err)
	}

	client := e.newClient(opts)

	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		client.Disconnect(0)
		return fmt.Errorf("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		client.Disconnect(0)
		return fmt.Errorf("mqtt connection failed: %w", err)
	}

	e.client = client
	e.start(client)
	e.setConnected(true)
	return nil
}

func (e *MQTTEmitter) start(pub publisher) {
	e.pub = pub
	e.wg.Add(1)
	go e.loop()
}

func (e *MQTTEmitter) loop() {
	defer e.wg.Done()
	for {
		select {
		case <-e.done:
			return
		case ev := <-e.queue:
			if err := e.send(ev); err != nil {
				log.Printf("MQTT publish %s failed: %v", ev.Type, err)
			}
		}
	}
}

// Publish implements events.Sink. Events outside Config.Events are ignored
// and events are dropped when the queue is full.
func (e *MQTTEmitter) Publish(ev events.Event) {
	if !slices.Contains(e.cfg.Events, ev.Type) {
		return
	}

	select {
	case e.queue <- ev:
	default:
		e.mu.Lock()
		e.dropped++
		e.mu.Unlock()
	}
}

// Encode marshals an event to msgpack using its json field names.
func Encode(ev events.Event) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(ev); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (e *MQTTEmitter) send(ev events.Event) error {
	if !e.isConnected() {
		e.countError()
		return ErrNotConnected
	}

	payload, err := Encode(ev)
	if err != nil {
		e.countError()
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	topic := fmt.Sprintf("%s/%s", e.cfg.Topic, ev.Type)
	token := e.pub.Publish(topic, e.cfg.QoS, false, payload)
	if !token.WaitTimeout(2 * time.Second) {
		e.countError()
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		e.countError()
		return fmt.Errorf("publish failed: %w", err)
	}

	e.mu.Lock()
	e.published[topic]++
	e.mu.Unlock()
	return nil
}

// Close stops the publish loop and disconnects.
func (e *MQTTEmitter) Close() error {
	select {
	case <-e.done:
		return nil
	default:
		close(e.done)
	}
	e.wg.Wait()

	if e.client != nil && e.client.IsConnected() {
		e.client.Disconnect(250)
		log.Printf("MQTT disconnected")
	}
	e.setConnected(false)
	return nil
}

// Stats returns emitter statistics.
func (e *MQTTEmitter) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	published := make(map[string]uint64, len(e.published))
	for k, v := range e.published {
		published[k] = v
	}

	return Stats{
		Connected: e.connected,
		Published: published,
		Errors:    e.errors,
		Dropped:   e.dropped,
	}
}

func (e *MQTTEmitter) setConnected(v bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.connected = v
}

func (e *MQTTEmitter) isConnected() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.connected
}

func (e *MQTTEmitter) countError() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.errors++
}
