package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

type NATSConfig struct {
	URL           string
	SubjectPrefix string
	MaxReconnects int
	ReconnectWait time.Duration
}

func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		SubjectPrefix: DefaultSubjectPrefix,
		MaxReconnects: -1, // Infinite
		ReconnectWait: 2 * time.Second,
	}
}

// NATSPublisher publishes usage events as JSON on <prefix>.locked.
type NATSPublisher struct {
	nc     *nats.Conn
	config NATSConfig
}

func NewNATSPublisher(cfg NATSConfig) (*NATSPublisher, error) {
	opts := []nats.Option{
		nats.Name("screentime"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	return &NATSPublisher{nc: nc, config: cfg}, nil
}

func (p *NATSPublisher) PublishLocked(ctx context.Context, event UsageLocked) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", EventTypeUsageLocked, err)
	}

	msg := &nats.Msg{
		Subject: LockedSubject(p.config.SubjectPrefix),
		Data:    data,
		Header:  nats.Header{},
	}
	msg.Header.Set("Event-Type", EventTypeUsageLocked)
	msg.Header.Set(nats.MsgIdHdr, event.ID.String())

	if err := p.nc.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish %s: %w", msg.Subject, err)
	}

	// Flush so the event leaves before a page close tears down the context
	if err := p.nc.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("flush %s: %w", msg.Subject, err)
	}

	log.Debug().
		Str("subject", msg.Subject).
		Str("event_id", event.ID.String()).
		Str("connection_id", event.ConnectionID).
		Msg("published usage event")
	return nil
}

func (p *NATSPublisher) Close() error {
	if p.nc == nil {
		return nil
	}
	if err := p.nc.Drain(); err != nil {
		return fmt.Errorf("drain NATS connection: %w", err)
	}
	return nil
}

// LockedSubject returns the subject usage-locked events are published on.
func LockedSubject(prefix string) string {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return prefix + ".locked"
}

// LogPublisher only logs events. Used when no NATS server is configured.
type LogPublisher struct{}

func NewLogPublisher() *LogPublisher {
	return &LogPublisher{}
}

func (p *LogPublisher) PublishLocked(_ context.Context, event UsageLocked) error {
	e := log.Info().
		Str("event_id", event.ID.String()).
		Str("connection_id", event.ConnectionID).
		Str("user_agent", event.UserAgent).
		Int("elapsed_seconds", event.ElapsedSeconds).
		Time("locked_at", event.LockedAt)
	if event.UserID != nil {
		e = e.Str("user_id", event.UserID.String())
	}
	e.Msg("usage locked")
	return nil
}

func (p *LogPublisher) Close() error {
	return nil
}
