// Package canonical provides the deterministic byte encoding of ledger events
// used for hashing. Semantically identical events must produce byte-identical
// output in every implementation, so the encoder is hand-rolled rather than
// relying on a JSON library's defaults.
package canonical

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
	"unicode/utf16"
)

// TimestampLayout renders an instant in UTC with fixed microsecond precision
// and an explicit +00:00 offset (never "Z").
const TimestampLayout = "2006-01-02T15:04:05.000000+00:00"

// Fields holds the eleven hashable fields of an event — everything except the
// event hash itself. Optional fields are nil pointers and encode as JSON null.
type Fields struct {
	EventID           string
	AgentID           string
	ActionType        string
	ToolName          *string
	Timestamp         time.Time
	Environment       *string
	ModelVersion      *string
	PromptVersion     *string
	InputHash         string
	OutputHash        string
	PreviousEventHash *string
}

// NormalizeTimestamp converts t to UTC and renders it with the fixed layout.
// Six fractional digits always, zero-padded, no truncation beyond microseconds.
func NormalizeTimestamp(t time.Time) string {
	return t.UTC().Truncate(time.Microsecond).Format(TimestampLayout)
}

// Encode returns the canonical JSON object for f: keys in ascending code-point
// order, no whitespace, nulls explicit, ASCII-only output with non-ASCII code
// points escaped as \uXXXX, no trailing newline.
func Encode(f Fields) []byte {
	var buf bytes.Buffer
	buf.WriteByte('{')
	writeField(&buf, "action_type", &f.ActionType)
	buf.WriteByte(',')
	writeField(&buf, "agent_id", &f.AgentID)
	buf.WriteByte(',')
	writeField(&buf, "environment", f.Environment)
	buf.WriteByte(',')
	writeField(&buf, "event_id", &f.EventID)
	buf.WriteByte(',')
	writeField(&buf, "input_hash", &f.InputHash)
	buf.WriteByte(',')
	writeField(&buf, "model_version", f.ModelVersion)
	buf.WriteByte(',')
	writeField(&buf, "output_hash", &f.OutputHash)
	buf.WriteByte(',')
	writeField(&buf, "previous_event_hash", f.PreviousEventHash)
	buf.WriteByte(',')
	writeField(&buf, "prompt_version", f.PromptVersion)
	buf.WriteByte(',')
	ts := NormalizeTimestamp(f.Timestamp)
	writeField(&buf, "timestamp", &ts)
	buf.WriteByte(',')
	writeField(&buf, "tool_name", f.ToolName)
	buf.WriteByte('}')
	return buf.Bytes()
}

// Hash returns the lowercase hex SHA-256 of the canonical encoding of f.
func Hash(f Fields) string {
	sum := sha256.Sum256(Encode(f))
	return hex.EncodeToString(sum[:])
}

// HashBytes computes the SHA-256 hash of raw bytes and returns lowercase hex.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func writeField(buf *bytes.Buffer, key string, value *string) {
	buf.Write(encodeString(key))
	buf.WriteByte(':')
	if value == nil {
		buf.WriteString("null")
		return
	}
	buf.Write(encodeString(*value))
}

// encodeString produces an ASCII-only JSON string: the two-character escapes
// of RFC 8259 for quote, backslash, and the common controls, \u00xx for the
// remaining controls, and \uxxxx (a lowercase surrogate pair beyond the BMP)
// for DEL and every code point above it. Printable ASCII, including <, > and
// &, passes through raw. encoding/json is not used here: its escaping choices
// differ on exactly these classes and would change the hashes.
func encodeString(s string) []byte {
	var buf bytes.Buffer
	buf.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			buf.WriteString(`\"`)
		case '\\':
			buf.WriteString(`\\`)
		case '\b':
			buf.WriteString(`\b`)
		case '\f':
			buf.WriteString(`\f`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		default:
			switch {
			case r < 0x20 || r >= 0x7f:
				if r > 0xffff {
					hi, lo := utf16.EncodeRune(r)
					fmt.Fprintf(&buf, `\u%04x\u%04x`, hi, lo)
				} else {
					fmt.Fprintf(&buf, `\u%04x`, r)
				}
			default:
				buf.WriteRune(r)
			}
		}
	}
	buf.WriteByte('"')
	return buf.Bytes()
}
