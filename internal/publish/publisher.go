// Package publish announces device classifications to other systems.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"netsniff/internal/classifier"
	"netsniff/internal/devices"
)

// Event is the JSON message published for every classified device.
type Event struct {
	ScanID       string              `json:"scan_id"`
	IP           string              `json:"ip"`
	MAC          string              `json:"mac,omitempty"`
	DeviceType   string              `json:"device_type"`
	Confidence   float64             `json:"confidence"`
	Methods      []classifier.Method `json:"methods"`
	Evidence     []string            `json:"evidence"`
	ClassifiedAt time.Time           `json:"classified_at"`
}

// EventsFromScan builds one event per classified device in r.
func EventsFromScan(r devices.ScanReport) []Event {
	events := make([]Event, 0, len(r.Results))
	for _, c := range r.Results {
		events = append(events, Event{
			ScanID:       r.ID,
			IP:           c.IP,
			MAC:          c.MAC,
			DeviceType:   c.Result.DeviceType,
			Confidence:   c.Result.Confidence,
			Methods:      c.Result.Methods,
			Evidence:     c.Result.Evidence,
			ClassifiedAt: c.At,
		})
	}
	return events
}

// Publisher sends classification events.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close()
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close()                               {}

type natsConn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// NATSPublisher publishes events as JSON to a NATS subject.
type NATSPublisher struct {
	nc      natsConn
	subject string
	log     zerolog.Logger
}

// NewNATSPublisher connects to the NATS server at url.
func NewNATSPublisher(url, subject string, log zerolog.Logger) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("netsniff"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info().Str("url", c.ConnectedUrl()).Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS at %s: %w", url, err)
	}
	log.Info().Str("url", url).Str("subject", subject).Msg("connected to NATS")
	return &NATSPublisher{nc: nc, subject: subject, log: log}, nil
}

// Publish serializes ev to JSON and publishes it.
func (p *NATSPublisher) Publish(ctx context.Context, ev Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event for %s: %w", ev.IP, err)
	}
	if err := p.nc.Publish(p.subject, data); err != nil {
		return fmt.Errorf("publish event for %s: %w", ev.IP, err)
	}
	return nil
}

// Close drains and closes the NATS connection.
func (p *NATSPublisher) Close() {
	if p.nc == nil {
		return
	}
	if err := p.nc.Drain(); err != nil {
		p.log.Warn().Err(err).Msg("nats drain failed")
		return
	}
	p.log.Debug().Msg("nats connection drained and closed")
}
