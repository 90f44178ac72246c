// Audittrail - Tamper-Evident Audit Logging for Maintenance Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/audittrail

package eventbus

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/rs/zerolog"

	"github.com/tomtom215/audittrail/internal/logging"
)

// LoggerAdapter routes Watermill's internal logging through zerolog.
type LoggerAdapter struct {
	fields watermill.LogFields
}

var _ watermill.LoggerAdapter = (*LoggerAdapter)(nil)

// NewLoggerAdapter returns an adapter tagged with the eventbus component.
func NewLoggerAdapter() *LoggerAdapter {
	return &LoggerAdapter{fields: watermill.LogFields{"component": "eventbus"}}
}

func (l *LoggerAdapter) event(e *zerolog.Event, fields watermill.LogFields) *zerolog.Event {
	return e.Fields(map[string]interface{}(l.fields.Add(fields)))
}

func (l *LoggerAdapter) Error(msg string, err error, fields watermill.LogFields) {
	l.event(logging.Error(), fields).Err(err).Msg(msg)
}

func (l *LoggerAdapter) Info(msg string, fields watermill.LogFields) {
	l.event(logging.Info(), fields).Msg(msg)
}

func (l *LoggerAdapter) Debug(msg string, fields watermill.LogFields) {
	l.event(logging.Debug(), fields).Msg(msg)
}

func (l *LoggerAdapter) Trace(msg string, fields watermill.LogFields) {
	l.event(logging.Trace(), fields).Msg(msg)
}

func (l *LoggerAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &LoggerAdapter{fields: l.fields.Add(fields)}
}
