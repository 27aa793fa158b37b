package hook

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ayusman/mudra/internal/events"
)

func TestDispatcher_RunsSubscribedHooks(t *testing.T) {
	skipOnWindows(t)

	dir := t.TempDir()
	out := filepath.Join(t.TempDir(), "received.json")
	writeHook(t, dir, "recorder", `#!/bin/sh
cat > "`+out+`"
echo '{"success":true}'
`, "round_resolved")

	manager := NewManager(dir)
	if err := manager.Discover(); err != nil {
		t.Fatal(err)
	}

	d := NewDispatcher(manager, NewExecutor(5*time.Second))
	defer d.Close()

	bus := events.NewBus()
	bus.Subscribe(d)

	bus.Emit(events.Tick, events.TickData{Remaining: 1})
	bus.Emit(events.RoundResolved, events.RoundData{Human: "stone", Computer: "scissors", Outcome: "human"})

	deadline := time.Now().Add(5 * time.Second)
	for {
		if runs, _, _ := d.Counts(); runs == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("hook never ran")
		}
		time.Sleep(10 * time.Millisecond)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("hook did not record its input: %v", err)
	}

	var req struct {
		Event string           `json:"event"`
		Data  events.RoundData `json:"data"`
	}
	if err := json.Unmarshal(data, &req); err != nil {
		t.Fatalf("invalid request json: %v", err)
	}
	if req.Event != "round_resolved" || req.Data.Outcome != "human" {
		t.Errorf("request = %+v", req)
	}

	if runs, failed, _ := d.Counts(); runs != 1 || failed != 0 {
		t.Errorf("Counts() = %d runs, %d failed", runs, failed)
	}
}

func TestDispatcher_CountsFailures(t *testing.T) {
	skipOnWindows(t)

	dir := t.TempDir()
	writeHook(t, dir, "broken", "#!/bin/sh\nexit 3\n", "trained")

	manager := NewManager(dir)
	manager.Discover()

	d := NewDispatcher(manager, NewExecutor(5*time.Second))
	defer d.Close()

	d.Publish(events.Event{Type: events.Trained, Time: time.Now()})

	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, failed, _ := d.Counts(); failed == 1 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("failure never counted")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestDispatcher_IgnoresUnsubscribed(t *testing.T) {
	d := NewDispatcher(NewManager(t.TempDir()), NewExecutor(time.Second))
	d.Publish(events.Event{Type: events.Tick})
	d.Close()

	if runs, _, dropped := d.Counts(); runs != 0 || dropped != 0 {
		t.Errorf("Counts() = %d runs, %d dropped", runs, dropped)
	}
}
