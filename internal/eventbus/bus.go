// Audittrail - Tamper-Evident Audit Logging for Maintenance Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/audittrail

package eventbus

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"

	"github.com/tomtom215/audittrail/internal/audit"
	"github.com/tomtom215/audittrail/internal/logging"
	"github.com/tomtom215/audittrail/internal/metrics"
)

// Topics
const (
	TopicPersisted = "audit.persisted"
	TopicAlerts    = "audit.alerts"
)

// Message metadata keys.
const (
	MetadataSequence      = "sequence_number"
	MetadataSeverity      = "severity"
	MetadataCorrelationID = "correlation_id"
	MetadataAlertKind     = "alert_kind"
)

// Broadcaster receives serialized persisted events for live tail.
type Broadcaster interface {
	// BroadcastRaw sends raw JSON bytes to all connected clients.
	BroadcastRaw(data []byte)
}

// Config holds bus settings.
type Config struct {
	// OutputBuffer is the per-subscriber channel buffer.
	OutputBuffer int64

	// CloseTimeout is how long to wait for handlers when closing.
	CloseTimeout time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		OutputBuffer: 1024,
		CloseTimeout: 10 * time.Second,
	}
}

// Bus is the in-process event bus. It implements audit.Notifier for the
// processor and verifier, and routes messages to the live-tail hub and the
// alert monitor.
type Bus struct {
	pubsub  *gochannel.GoChannel
	router  *message.Router
	logger  watermill.LoggerAdapter
	monitor *AlertMonitor
}

var _ audit.Notifier = (*Bus)(nil)

// New creates a bus. A nil tail skips live-tail fan-out.
func New(cfg Config, monitor *AlertMonitor, tail Broadcaster) (*Bus, error) {
	if cfg.OutputBuffer <= 0 {
		cfg.OutputBuffer = DefaultConfig().OutputBuffer
	}
	if cfg.CloseTimeout <= 0 {
		cfg.CloseTimeout = DefaultConfig().CloseTimeout
	}
	if monitor == nil {
		monitor = NewAlertMonitor(0)
	}

	logger := NewLoggerAdapter()
	pubsub := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer:            cfg.OutputBuffer,
		Persistent:                     false,
		BlockPublishUntilSubscriberAck: false,
	}, logger)

	router, err := message.NewRouter(message.RouterConfig{CloseTimeout: cfg.CloseTimeout}, logger)
	if err != nil {
		return nil, fmt.Errorf("create watermill router: %w", err)
	}
	router.AddMiddleware(middleware.Recoverer)

	b := &Bus{
		pubsub:  pubsub,
		router:  router,
		logger:  logger,
		monitor: monitor,
	}

	router.AddConsumerHandler("alert-monitor", TopicAlerts, pubsub, b.handleAlert)
	if tail != nil {
		router.AddConsumerHandler("live-tail", TopicPersisted, pubsub, func(msg *message.Message) error {
			// Broadcast failures must not trigger redelivery.
			tail.BroadcastRaw(msg.Payload)
			return nil
		})
	}

	return b, nil
}

// Monitor returns the alert monitor fed by the bus.
func (b *Bus) Monitor() *AlertMonitor {
	return b.monitor
}

// Run starts the router and blocks until ctx is canceled.
func (b *Bus) Run(ctx context.Context) error {
	err := b.router.Run(ctx)
	if cerr := b.pubsub.Close(); cerr != nil {
		logging.Warn().Err(cerr).Msg("failed to close event bus pubsub")
	}
	if err != nil {
		return fmt.Errorf("event bus router: %w", err)
	}
	return ctx.Err()
}

// Running is closed once handlers are subscribed.
func (b *Bus) Running() chan struct{} {
	return b.router.Running()
}

// PublishPersisted publishes one message per persisted event.
func (b *Bus) PublishPersisted(events []*audit.Event) {
	msgs := make([]*message.Message, 0, len(events))
	for _, e := range events {
		payload, err := json.Marshal(e)
		if err != nil {
			logging.Error().Err(err).Int64("sequence", e.SequenceNumber).Msg("failed to encode persisted event")
			continue
		}
		msg := message.NewMessage(watermill.NewUUID(), payload)
		msg.Metadata.Set(MetadataSequence, strconv.FormatInt(e.SequenceNumber, 10))
		msg.Metadata.Set(MetadataSeverity, string(e.Severity))
		if e.CorrelationID != "" {
			msg.Metadata.Set(MetadataCorrelationID, e.CorrelationID)
		}
		msgs = append(msgs, msg)
	}
	if len(msgs) == 0 {
		return
	}
	if err := b.pubsub.Publish(TopicPersisted, msgs...); err != nil {
		logging.Debug().Err(err).Int("events", len(msgs)).Msg("persisted events not published")
	}
}

// PublishAlert publishes an operational alert.
func (b *Bus) PublishAlert(a audit.Alert) {
	metrics.AuditAlerts.WithLabelValues(a.Kind).Inc()

	payload, err := json.Marshal(a)
	if err != nil {
		logging.Error().Err(err).Str("kind", a.Kind).Msg("failed to encode alert")
		return
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set(MetadataAlertKind, a.Kind)
	if err := b.pubsub.Publish(TopicAlerts, msg); err != nil {
		// The router is gone during shutdown; record directly.
		b.monitor.Record(a)
		logging.Debug().Err(err).Str("kind", a.Kind).Msg("alert not published")
	}
}

func (b *Bus) handleAlert(msg *message.Message) error {
	var a audit.Alert
	if err := json.Unmarshal(msg.Payload, &a); err != nil {
		// Malformed payloads are dropped, not retried.
		b.logger.Error("Failed to parse alert", err, watermill.LogFields{"message_uuid": msg.UUID})
		return nil
	}
	b.monitor.Record(a)

	ev := logging.Warn()
	if a.Kind == audit.AlertIntegrityBroken || a.Kind == audit.AlertEventsLost {
		ev = logging.Error()
	}
	ev.Str("alert_kind", a.Kind).
		Str("error", a.Error).
		Int("count", a.Count).
		Int64("sequence", a.Sequence).
		Time("at", a.At).
		Msg(a.Message)
	return nil
}
