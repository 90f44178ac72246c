// Audittrail - Tamper-Evident Audit Logging for Maintenance Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/audittrail

package logging

import "strings"

// maxLoggedValueLen bounds user-supplied strings written to the operational log.
const maxLoggedValueLen = 256

// SanitizeValue strips line breaks and control characters from a
// user-supplied value and truncates it, so request data cannot forge
// additional log lines.
func SanitizeValue(value string) string {
	var b strings.Builder
	b.Grow(min(len(value), maxLoggedValueLen))
	n := 0
	for _, r := range value {
		if n >= maxLoggedValueLen {
			b.WriteString("...")
			break
		}
		if r < 0x20 || r == 0x7f {
			r = ' '
		}
		b.WriteRune(r)
		n++
	}
	return b.String()
}
