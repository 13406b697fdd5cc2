// Package observation defines the timestamped records netcheck utilities append
// to their logs, and the line format they are written in.
//
// Each observation is one logfmt header line, optionally followed by the raw probe
// output as continuation lines:
//
//	ts=2026-10-16T09:30:00.000000Z level=info utility=dns_check target=example.com msg="resolved example.com in 42 ms" duration_ms=42
//	  | 93.184.215.14
//
// Header lines always parse back into an Observation; continuation lines are
// reattached to the header above them.
package observation

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/go-logfmt/logfmt"
	"github.com/google/uuid"
)

type Level string

const (
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// TimeLayout is the timestamp format used in log lines. Fixed width, so lines sort.
const TimeLayout = "2006-01-02T15:04:05.000000Z07:00"

// continuationPrefix marks a line of raw probe output belonging to the header above it.
const continuationPrefix = "  | "

var reservedKeys = map[string]bool{
	"ts":      true,
	"level":   true,
	"utility": true,
	"target":  true,
	"msg":     true,
}

// Observation is a single immutable, timestamped probe result.
type Observation struct {
	ID      string            `json:"id"`
	Time    time.Time         `json:"time"`
	Utility string            `json:"utility"`
	Target  string            `json:"target"`
	Level   Level             `json:"level"`
	Message string            `json:"msg"`
	Fields  map[string]string `json:"fields,omitempty"`
	Raw     string            `json:"raw,omitempty"`
}

// New returns an observation with a fresh time-ordered ID.
func New(ts time.Time, utility, target string, level Level, msg string) Observation {
	id, err := uuid.NewV7()
	if err != nil {
		// only fails if the random source does
		id = uuid.New()
	}

	return Observation{
		ID:      id.String(),
		Time:    ts.UTC(),
		Utility: utility,
		Target:  target,
		Level:   level,
		Message: msg,
	}
}

// With returns a copy of o with the key set in its fields.
func (o Observation) With(key, value string) Observation {
	fields := make(map[string]string, len(o.Fields)+1)
	for k, v := range o.Fields {
		fields[k] = v
	}
	fields[key] = value
	o.Fields = fields
	return o
}

// WithRaw returns a copy of o carrying raw probe output.
func (o Observation) WithRaw(raw []byte) Observation {
	o.Raw = string(raw)
	return o
}

// Field returns the named field, if present.
func (o Observation) Field(key string) (string, bool) {
	v, ok := o.Fields[key]
	return v, ok
}

// MarshalText encodes o as a header line plus continuation lines, newline terminated.
func (o Observation) MarshalText() ([]byte, error) {
	var buf bytes.Buffer
	enc := logfmt.NewEncoder(&buf)

	keyvals := []any{
		"ts", o.Time.UTC().Format(TimeLayout),
		"level", string(o.Level),
		"utility", o.Utility,
		"target", o.Target,
		"msg", o.Message,
	}

	fieldKeys := make([]string, 0, len(o.Fields))
	for k := range o.Fields {
		if reservedKeys[k] {
			return nil, fmt.Errorf("field %q collides with a reserved key", k)
		}
		fieldKeys = append(fieldKeys, k)
	}
	sort.Strings(fieldKeys)
	for _, k := range fieldKeys {
		keyvals = append(keyvals, k, o.Fields[k])
	}

	if err := enc.EncodeKeyvals(keyvals...); err != nil {
		return nil, fmt.Errorf("encoding observation: %w", err)
	}
	if err := enc.EndRecord(); err != nil {
		return nil, fmt.Errorf("ending record: %w", err)
	}

	raw := strings.TrimRight(o.Raw, "\r\n")
	if raw != "" {
		for _, line := range strings.Split(raw, "\n") {
			buf.WriteString(continuationPrefix)
			buf.WriteString(strings.TrimRight(line, "\r"))
			buf.WriteByte('\n')
		}
	}

	return buf.Bytes(), nil
}

// ParseLine parses a single header line. It does not know about continuation lines.
func ParseLine(line string) (Observation, error) {
	var o Observation

	dec := logfmt.NewDecoder(strings.NewReader(line))
	if !dec.ScanRecord() {
		if err := dec.Err(); err != nil {
			return o, fmt.Errorf("scanning record: %w", err)
		}
		return o, fmt.Errorf("empty line")
	}

	var sawTime bool
	for dec.ScanKeyval() {
		key, value := string(dec.Key()), string(dec.Value())
		switch key {
		case "ts":
			ts, err := time.Parse(TimeLayout, value)
			if err != nil {
				return o, fmt.Errorf("parsing timestamp %q: %w", value, err)
			}
			o.Time = ts
			sawTime = true
		case "level":
			o.Level = Level(value)
		case "utility":
			o.Utility = value
		case "target":
			o.Target = value
		case "msg":
			o.Message = value
		default:
			if o.Fields == nil {
				o.Fields = make(map[string]string)
			}
			o.Fields[key] = value
		}
	}
	if err := dec.Err(); err != nil {
		return o, fmt.Errorf("decoding line: %w", err)
	}

	if !sawTime {
		return o, fmt.Errorf("line has no timestamp")
	}

	return o, nil
}

// Parse reads a whole log, reattaching raw output to its observation.
func Parse(r io.Reader) ([]Observation, error) {
	var (
		results []Observation
		raw     []string
		lineNo  int
	)

	flushRaw := func() {
		if len(results) > 0 && len(raw) > 0 {
			results[len(results)-1].Raw = strings.Join(raw, "\n")
		}
		raw = nil
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()

		// editors and log shippers like to strip the trailing space of an empty raw line
		if strings.HasPrefix(line, continuationPrefix) || line == strings.TrimRight(continuationPrefix, " ") {
			if len(results) == 0 {
				return nil, fmt.Errorf("line %d: continuation without a header", lineNo)
			}
			var rawLine string
			if strings.HasPrefix(line, continuationPrefix) {
				rawLine = line[len(continuationPrefix):]
			}
			raw = append(raw, rawLine)
			continue
		}

		if strings.TrimSpace(line) == "" {
			continue
		}

		flushRaw()
		o, err := ParseLine(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		results = append(results, o)
	}
	flushRaw()

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading log: %w", err)
	}

	return results, nil
}
