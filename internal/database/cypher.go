package database

import (
	"fmt"
	"strings"
	"time"
)

// quoteString escapes single quotes for inline Cypher literals. NULL-byte
// stripping is unnecessary here since every caller feeds in names/ids already
// validated upstream (adapter names, provider strings, model names).
func quoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "\\'") + "'"
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "timestamp('1970-01-01 00:00:00')"
	}
	return fmt.Sprintf("timestamp(%s)", quoteString(t.UTC().Format("2006-01-02 15:04:05")))
}

func formatOptionalTime(t *time.Time) string {
	if t == nil {
		return "NULL"
	}
	return formatTime(*t)
}

func formatBool(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func formatOptionalFloat(f *float64) string {
	if f == nil {
		return "NULL"
	}
	return fmt.Sprintf("%f", *f)
}
