// Package lookupevents publishes resolved-parcel events to Kafka.
package lookupevents

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/mohammed-shakir/flurstueck-map/internal/core/model"
	"github.com/mohammed-shakir/flurstueck-map/internal/core/observability"
)

type Event struct {
	Key        string    `json:"key"`
	Gemarkung  int       `json:"gemarkung"`
	Flur       int       `json:"flur"`
	Flurstueck int       `json:"flurstueck"`
	Nenner     *int      `json:"nenner,omitempty"`
	ObjectID   int64     `json:"object_id,omitempty"`
	Lat        float64   `json:"lat"`
	Lon        float64   `json:"lon"`
	H3Cell     string    `json:"h3_cell,omitempty"`
	Source     string    `json:"source,omitempty"`
	TS         time.Time `json:"ts"`
}

// ForFeature builds the event for key k resolved to f, located at
// lat/lon inside cell.
func ForFeature(k model.QueryKey, f model.Feature, lat, lon float64, cell, source string) Event {
	return Event{
		Key:        k.String(),
		Gemarkung:  k.Gemarkung,
		Flur:       k.Flur,
		Flurstueck: k.Flurstueck,
		Nenner:     k.Nenner,
		ObjectID:   f.Attributes.ObjectID.Value,
		Lat:        lat,
		Lon:        lon,
		H3Cell:     cell,
		Source:     source,
	}
}

type Options struct {
	Topic        string
	QueueSize    int
	DedupeWindow time.Duration
	DedupeSize   int
	Logger       *slog.Logger
}

type Publisher struct {
	topic  string
	prod   sarama.AsyncProducer
	log    *slog.Logger
	window time.Duration
	now    func() time.Time

	recentMu sync.Mutex
	recent   *lru.Cache[string, time.Time]

	closeMu sync.RWMutex
	closed  bool
	events  chan Event

	stopped  chan struct{}
	errsDone chan struct{}
}

// NewKafkaPublisher connects an async producer to brokers.
func NewKafkaPublisher(brokers []string, opts Options) (*Publisher, error) {
	if len(brokers) == 0 {
		return nil, errors.New("lookupevents: no brokers configured")
	}
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_5_0_0
	cfg.Producer.Return.Errors = true
	cfg.Producer.Return.Successes = false
	cfg.Producer.RequiredAcks = sarama.WaitForLocal

	prod, err := sarama.NewAsyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("lookupevents: create async producer: %w", err)
	}
	return New(prod, opts), nil
}

// New wraps prod. Events for a key already published within DedupeWindow
// are suppressed; a zero window disables that.
func New(prod sarama.AsyncProducer, opts Options) *Publisher {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1024
	}
	if opts.DedupeSize <= 0 {
		opts.DedupeSize = 4096
	}
	if opts.Topic == "" {
		opts.Topic = "parcel-lookups"
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	recent, _ := lru.New[string, time.Time](opts.DedupeSize)

	p := &Publisher{
		topic:    opts.Topic,
		prod:     prod,
		log:      opts.Logger,
		window:   opts.DedupeWindow,
		now:      time.Now,
		recent:   recent,
		events:   make(chan Event, opts.QueueSize),
		stopped:  make(chan struct{}),
		errsDone: make(chan struct{}),
	}

	go p.loop()
	go func() {
		defer close(p.errsDone)
		for err := range p.prod.Errors() {
			if err != nil {
				observability.IncLookupEvent("error")
				p.log.Warn("lookup event producer error", "err", err.Err, "topic", p.topic)
			}
		}
	}()
	return p
}

func (p *Publisher) loop() {
	defer close(p.stopped)
	for ev := range p.events {
		b, err := json.Marshal(ev)
		if err != nil {
			observability.IncLookupEvent("error")
			p.log.Warn("lookup event marshal", "err", err)
			continue
		}
		p.prod.Input() <- &sarama.ProducerMessage{
			Topic: p.topic,
			Key:   sarama.StringEncoder(ev.Key),
			Value: sarama.ByteEncoder(b),
		}
	}
}

// Publish queues ev without blocking and reports whether it was queued.
// A key only counts as published once its event is queued, so a dropped
// event does not suppress the next attempt.
func (p *Publisher) Publish(ev Event) bool {
	if ev.TS.IsZero() {
		ev.TS = p.now().UTC()
	}

	p.closeMu.RLock()
	defer p.closeMu.RUnlock()
	if p.closed {
		observability.IncLookupEvent("dropped")
		return false
	}

	p.recentMu.Lock()
	defer p.recentMu.Unlock()
	if p.seenRecently(ev.Key, ev.TS) {
		observability.IncLookupEvent("deduped")
		return false
	}
	select {
	case p.events <- ev:
		if p.window > 0 && ev.Key != "" {
			p.recent.Add(ev.Key, ev.TS)
		}
		observability.IncLookupEvent("queued")
		return true
	default:
		// queue full, never block the request path
		observability.IncLookupEvent("dropped")
		return false
	}
}

// seenRecently must be called with recentMu held.
func (p *Publisher) seenRecently(key string, ts time.Time) bool {
	if p.window <= 0 || key == "" {
		return false
	}
	last, ok := p.recent.Get(key)
	return ok && ts.Sub(last) < p.window
}

// Close flushes queued events and closes the producer.
func (p *Publisher) Close() error {
	p.closeMu.Lock()
	if p.closed {
		p.closeMu.Unlock()
		return nil
	}
	p.closed = true
	close(p.events)
	p.closeMu.Unlock()

	<-p.stopped
	err := p.prod.Close()
	<-p.errsDone
	if err != nil {
		return fmt.Errorf("lookupevents: close producer: %w", err)
	}
	return nil
}
