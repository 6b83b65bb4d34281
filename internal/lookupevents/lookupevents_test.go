package lookupevents

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"

	"github.com/mohammed-shakir/flurstueck-map/internal/core/model"
)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func mockConfig() *sarama.Config {
	cfg := mocks.NewTestConfig()
	cfg.Producer.Return.Errors = true
	cfg.Producer.Return.Successes = false
	return cfg
}

func TestPublish_SendsJSONKeyedByParcel(t *testing.T) {
	mp := mocks.NewAsyncProducer(t, mockConfig())
	mp.ExpectInputWithCheckerFunctionAndSucceed(func(b []byte) error {
		var ev Event
		if err := json.Unmarshal(b, &ev); err != nil {
			return err
		}
		if ev.Key != "6123-4-12" || ev.Flur != 4 || ev.H3Cell != "8c1fa4a4a4a4bff" {
			return fmt.Errorf("unexpected event %+v", ev)
		}
		if ev.TS.IsZero() {
			return fmt.Errorf("ts must be set")
		}
		return nil
	})

	p := New(mp, Options{Topic: "lookups", Logger: quiet()})
	if !p.Publish(Event{Key: "6123-4-12", Gemarkung: 6123, Flur: 4, Flurstueck: 12, H3Cell: "8c1fa4a4a4a4bff"}) {
		t.Fatal("expected event to be queued")
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestPublish_DedupesWithinWindow(t *testing.T) {
	mp := mocks.NewAsyncProducer(t, mockConfig())
	mp.ExpectInputAndSucceed()
	mp.ExpectInputAndSucceed()

	p := New(mp, Options{DedupeWindow: time.Minute, Logger: quiet()})
	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	if !p.Publish(Event{Key: "a", TS: t0}) {
		t.Fatal("first event must be queued")
	}
	if p.Publish(Event{Key: "a", TS: t0.Add(30 * time.Second)}) {
		t.Fatal("repeat within window must be suppressed")
	}
	if !p.Publish(Event{Key: "a", TS: t0.Add(2 * time.Minute)}) {
		t.Fatal("repeat after window must be queued")
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestPublish_AfterCloseIsDropped(t *testing.T) {
	mp := mocks.NewAsyncProducer(t, mockConfig())
	p := New(mp, Options{Logger: quiet()})
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if p.Publish(Event{Key: "late"}) {
		t.Fatal("publish after close must report false")
	}
	if err := p.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

// stuckProducer accepts messages only when the test reads from input.
type stuckProducer struct {
	sarama.AsyncProducer
	input chan *sarama.ProducerMessage
	errs  chan *sarama.ProducerError
}

func newStuckProducer() *stuckProducer {
	return &stuckProducer{
		input: make(chan *sarama.ProducerMessage),
		errs:  make(chan *sarama.ProducerError),
	}
}

func (s *stuckProducer) Input() chan<- *sarama.ProducerMessage { return s.input }
func (s *stuckProducer) Errors() <-chan *sarama.ProducerError  { return s.errs }
func (s *stuckProducer) Close() error {
	close(s.errs)
	return nil
}

func waitQueueEmpty(t *testing.T, p *Publisher) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for len(p.events) > 0 {
		if time.Now().After(deadline) {
			t.Fatal("loop did not pick up the queued event")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestPublish_DroppedEventDoesNotSuppressRetry(t *testing.T) {
	prod := newStuckProducer()
	p := New(prod, Options{QueueSize: 1, DedupeWindow: time.Minute, Logger: quiet()})
	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	// first filler is held by the loop, second one fills the queue
	if !p.Publish(Event{Key: "filler-1", TS: t0}) {
		t.Fatal("filler-1 must be queued")
	}
	waitQueueEmpty(t, p)
	if !p.Publish(Event{Key: "filler-2", TS: t0}) {
		t.Fatal("filler-2 must be queued")
	}

	if p.Publish(Event{Key: "x", TS: t0}) {
		t.Fatal("x must be dropped while the queue is full")
	}

	if msg := <-prod.input; msg.Key != sarama.StringEncoder("filler-1") {
		t.Fatalf("first message key=%v want filler-1", msg.Key)
	}
	waitQueueEmpty(t, p)

	if !p.Publish(Event{Key: "x", TS: t0.Add(time.Second)}) {
		t.Fatal("retry of a dropped event must be queued")
	}
	if p.Publish(Event{Key: "x", TS: t0.Add(2 * time.Second)}) {
		t.Fatal("x is now published and must be deduped")
	}

	go func() {
		for range prod.input {
		}
	}()
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	close(prod.input)
}

func TestNewKafkaPublisher_RequiresBrokers(t *testing.T) {
	if _, err := NewKafkaPublisher(nil, Options{}); err == nil {
		t.Fatal("expected error without brokers")
	}
}

func TestForFeature(t *testing.T) {
	d := 3
	k := model.QueryKey{Gemarkung: 6123, Flur: 4, Flurstueck: 12, Nenner: &d}
	f := model.Feature{Attributes: model.Attributes{ObjectID: model.Int(99)}}

	ev := ForFeature(k, f, 50.1, 8.2, "8c1faa0000001ff", "cli")
	if ev.Key != "6123-4-12/3" || ev.ObjectID != 99 || ev.Source != "cli" {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if ev.Nenner == nil || *ev.Nenner != 3 {
		t.Fatalf("nenner=%v want 3", ev.Nenner)
	}
	if ev.Lat != 50.1 || ev.Lon != 8.2 || ev.H3Cell != "8c1faa0000001ff" {
		t.Fatalf("location=%v,%v cell=%q", ev.Lat, ev.Lon, ev.H3Cell)
	}
	if !ev.TS.IsZero() {
		t.Fatal("timestamp is set on Publish, not here")
	}
}
