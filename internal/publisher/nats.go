package publisher

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"transit-core/internal/trip"
)

type NATSPublisher struct {
	nc          *nats.Conn
	subject     string
	logSubjects bool
	metrics     PublisherMetrics
	logger      zerolog.Logger
}

type PublisherMetrics interface {
	NATSPublishedInc()
	NATSPublishErrInc()
	PublishObserve(d time.Duration)
	NATSSetConnected(connected bool)
}

type Config struct {
	URL string
	// Subject is the prefix for trip updates; messages go to
	// <Subject>.<route>.<trip id>.
	Subject     string
	LogSubjects bool
	Metrics     PublisherMetrics
	Logger      zerolog.Logger
}

func NewNATSPublisher(cfg Config) (*NATSPublisher, error) {
	m := cfg.Metrics
	logger := cfg.Logger.With().Str("component", "publisher").Logger()
	nc, err := nats.Connect(cfg.URL,
		nats.Name("transit-ingest"),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			logger.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(true)
			}
			logger.Info().Msg("nats reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			logger.Info().Msg("nats closed")
		}),
	)
	if err != nil {
		return nil, err
	}
	if m != nil {
		m.NATSSetConnected(true)
	}
	subject := cfg.Subject
	if subject == "" {
		subject = "trips"
	}
	return &NATSPublisher{nc: nc, subject: subject, logSubjects: cfg.LogSubjects, metrics: m, logger: logger}, nil
}

// Conn exposes the connection so the feed subscription can share it.
func (p *NATSPublisher) Conn() *nats.Conn { return p.nc }

func (p *NATSPublisher) Close() {
	if p.nc != nil {
		_ = p.nc.Drain()
		p.nc.Close()
	}
}

// Change says why a trip message was sent.
type Change string

const (
	Created Change = "created"
	Updated Change = "updated"
)

// TripMessage carries the live state of a trip after it was written.
type TripMessage struct {
	Batch     string         `json:"batch"`
	Change    Change         `json:"change"`
	TripID    string         `json:"tripId"`
	Route     uint16         `json:"route"`
	Path      string         `json:"path"`
	Direction trip.Direction `json:"direction"`
	Delay     int32          `json:"delay"`
	NextStop  *uint16        `json:"nextStop,omitempty"`
	LastStop  *uint16        `json:"lastStop,omitempty"`
	BusID     *uint16        `json:"busId,omitempty"`
	Departure time.Time      `json:"departure"`
}

func NewTripMessage(batch string, change Change, t trip.Trip, departure time.Time) TripMessage {
	return TripMessage{
		Batch:     batch,
		Change:    change,
		TripID:    t.ID,
		Route:     t.Route,
		Path:      t.Path,
		Direction: t.Direction,
		Delay:     t.Delay,
		NextStop:  t.NextStop,
		LastStop:  t.LastStop,
		BusID:     t.BusID,
		Departure: departure,
	}
}

// Subject returns the subject msg is published on under prefix.
func Subject(prefix string, msg TripMessage) string {
	return fmt.Sprintf("%s.%s.%s", prefix, strconv.FormatUint(uint64(msg.Route), 10), subjectToken(msg.TripID))
}

func (p *NATSPublisher) PublishTrip(msg TripMessage) error {
	subject := Subject(p.subject, msg)
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if p.logSubjects {
		p.logger.Debug().Str("subject", subject).Msg("nats publish")
	}
	start := time.Now()
	err = p.nc.Publish(subject, b)
	if p.metrics != nil {
		p.metrics.PublishObserve(time.Since(start))
		if err != nil {
			p.metrics.NATSPublishErrInc()
		} else {
			p.metrics.NATSPublishedInc()
		}
	}
	return err
}

func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	// NATS token cannot contain spaces, '>', '*', or trailing '.'
	repl := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_")
	s = repl.Replace(s)
	if s == "" {
		s = "_"
	}
	return s
}
