// Audittrail - Tamper-Evident Audit Logging for Maintenance Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/audittrail

package audit

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// Format is an export encoding.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"

	// FormatCEF is ArcSight Common Event Format, one event per line, for
	// SIEM ingestion.
	FormatCEF Format = "cef"
)

// ParseFormat returns the format named s, case-insensitively. An empty
// string selects CSV.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatCSV, nil
	case FormatCSV, FormatJSON, FormatCEF:
		return f, nil
	}
	return "", fmt.Errorf("%w: unsupported export format %q", ErrInvalidArgument, s)
}

// Export is an encoded set of events ready for download.
type Export struct {
	Data        []byte
	ContentType string
	Filename    string
	Count       int

	// Truncated is set when more events matched than the export row limit.
	Truncated bool
}

// exportTimeLayout is the timestamp layout used in CSV exports.
const exportTimeLayout = "2006-01-02 15:04:05"

var csvHeader = []string{"ID", "Timestamp", "UserName", "Action", "EntityType", "EntityId", "Details", "IPAddress"}

// encodeExport encodes events and names the file after generatedAt.
func encodeExport(events []Event, format Format, generatedAt time.Time) (*Export, error) {
	var (
		data        []byte
		contentType string
		err         error
	)

	switch format {
	case FormatCSV:
		data, err = encodeCSV(events)
		contentType = "text/csv"
	case FormatJSON:
		data, err = encodeJSON(events)
		contentType = "application/json"
	case FormatCEF:
		data = NewCEFEncoder().Encode(events)
		contentType = "text/plain"
	default:
		return nil, fmt.Errorf("%w: unsupported export format %q", ErrInvalidArgument, format)
	}
	if err != nil {
		return nil, err
	}

	return &Export{
		Data:        data,
		ContentType: contentType,
		Filename:    fmt.Sprintf("audit_logs_%s.%s", generatedAt.UTC().Format("20060102_150405"), format),
		Count:       len(events),
	}, nil
}

// encodeCSV writes RFC 4180 CSV with a header row.
func encodeCSV(events []Event) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(csvHeader); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	for i := range events {
		e := &events[i]
		record := []string{
			strconv.FormatInt(e.ID, 10),
			e.Timestamp.UTC().Format(exportTimeLayout),
			e.UserName,
			e.Action,
			e.EntityName,
			e.EntityID,
			e.Description,
			e.IPAddress,
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("write csv record %d: %w", e.ID, err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

// encodeJSON writes an indented array. No events encode as [].
func encodeJSON(events []Event) ([]byte, error) {
	if events == nil {
		events = []Event{}
	}
	data, err := json.MarshalIndent(events, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode json export: %w", err)
	}
	return data, nil
}

// CEFEncoder encodes events in Common Event Format.
// CEF:Version|Device Vendor|Device Product|Device Version|Signature ID|Name|Severity|Extension
type CEFEncoder struct {
	DeviceVendor  string
	DeviceProduct string
	DeviceVersion string
}

// NewCEFEncoder creates an encoder with the product defaults.
func NewCEFEncoder() *CEFEncoder {
	return &CEFEncoder{
		DeviceVendor:  "Audittrail",
		DeviceProduct: "MaintenanceAudit",
		DeviceVersion: "1.0",
	}
}

// Encode returns one CEF line per event.
func (c *CEFEncoder) Encode(events []Event) []byte {
	lines := make([]string, 0, len(events))
	for i := range events {
		e := &events[i]
		lines = append(lines, fmt.Sprintf("CEF:0|%s|%s|%s|%s|%s|%d|%s",
			cefHeader(c.DeviceVendor),
			cefHeader(c.DeviceProduct),
			cefHeader(c.DeviceVersion),
			cefHeader(e.Action),
			cefHeader(e.Description),
			cefSeverity(e.Severity),
			cefExtension(e),
		))
	}
	return []byte(strings.Join(lines, "\n"))
}

// cefSeverity maps severities onto the CEF 0-10 scale.
func cefSeverity(s Severity) int {
	switch s {
	case SeverityInfo:
		return 3
	case SeverityWarning:
		return 5
	case SeverityError:
		return 7
	case SeverityCritical:
		return 10
	}
	return 0
}

func cefExtension(e *Event) string {
	parts := []string{
		"rt=" + strconv.FormatInt(e.Timestamp.UnixMilli(), 10),
		"cs1Label=sequence",
		"cs1=" + strconv.FormatInt(e.SequenceNumber, 10),
	}
	if e.UserName != "" {
		parts = append(parts, "suser="+cefValue(e.UserName))
	}
	if e.UserID != "" {
		parts = append(parts, "suid="+cefValue(e.UserID))
	}
	if e.IPAddress != "" {
		parts = append(parts, "src="+cefValue(e.IPAddress))
	}
	if e.EntityName != "" {
		parts = append(parts, "cs2Label=entity", "cs2="+cefValue(e.EntityName+":"+e.EntityID))
	}
	outcome := "success"
	if !e.Success {
		outcome = "failure"
	}
	parts = append(parts, "outcome="+outcome, "cat="+cefValue(string(e.Category)))
	if e.CorrelationID != "" {
		parts = append(parts, "externalId="+cefValue(e.CorrelationID))
	}
	return strings.Join(parts, " ")
}

var (
	cefHeaderEscaper = strings.NewReplacer(`\`, `\\`, `|`, `\|`, "\n", " ", "\r", "")
	cefValueEscaper  = strings.NewReplacer(`\`, `\\`, `=`, `\=`, "\n", `\n`, "\r", "")
)

func cefHeader(s string) string { return cefHeaderEscaper.Replace(s) }

func cefValue(s string) string { return cefValueEscaper.Replace(s) }
