package progress

import (
	"testing"
	"time"
)

func TestCounter_ReportsAtPercentSteps(t *testing.T) {
	hub := NewHub()
	ch, cancel := hub.Subscribe(16)
	defer cancel()

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewCounter("vpoller-fnt", "discover", 8, nil, hub)
	c.now = func() time.Time { return base }

	reports := 0
	for i := 0; i < 8; i++ {
		if c.Inc() {
			reports++
		}
	}
	if reports != 4 {
		t.Fatalf("reports=%d want=4", reports)
	}
	var last Event
	for i := 0; i < reports; i++ {
		last = <-ch
	}
	if last.Percent != 100 || last.Done != 8 {
		t.Fatalf("last=%+v want percent=100 done=8", last)
	}
}

func TestCounter_ReportsAfterTimeStep(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewCounter("fnt-zabbix", "sync", 1000, nil, nil)
	c.now = func() time.Time { return now }
	c.lastReport = now

	if c.Inc() {
		t.Fatalf("unexpected report before step")
	}
	now = now.Add(61 * time.Second)
	if !c.Inc() {
		t.Fatalf("expected time-based report")
	}
}

func TestHub_SlowSubscriberDoesNotBlock(t *testing.T) {
	hub := NewHub()
	_, cancel := hub.Subscribe(1)
	defer cancel()
	hub.Publish(Event{Stage: "a"})
	hub.Publish(Event{Stage: "b"})
	if hub.Dropped() != 1 {
		t.Fatalf("dropped=%d want=1", hub.Dropped())
	}
	if ev, ok := hub.Last(); !ok || ev.Stage != "b" {
		t.Fatalf("last=%+v ok=%v", ev, ok)
	}
}
