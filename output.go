package console

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
)

// OutputChannel is the result writer handed to renderers.
type OutputChannel interface {
	Level() OutputLevel
	SetLevel(level OutputLevel)
	Info(msg string)
	Warn(msg string)
	Error(msg string)
	Debug(msg string)
	WriteJSON(v any)
	WriteTable(headers []string, rows [][]string)
	Writer() io.Writer
	Buffer() *bytes.Buffer
}

// OutputLevel enumerates verbosity levels.
type OutputLevel int

const (
	OutputQuiet OutputLevel = iota
	OutputNormal
	OutputVerbose
	OutputDebug
)

// ParseOutputLevel converts a config string to an OutputLevel.
func ParseOutputLevel(s string) (OutputLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "quiet":
		return OutputQuiet, nil
	case "", "normal":
		return OutputNormal, nil
	case "verbose":
		return OutputVerbose, nil
	case "debug":
		return OutputDebug, nil
	default:
		return OutputNormal, fmt.Errorf("unknown output level %q", s)
	}
}

func (l OutputLevel) String() string {
	switch l {
	case OutputQuiet:
		return "quiet"
	case OutputNormal:
		return "normal"
	case OutputVerbose:
		return "verbose"
	case OutputDebug:
		return "debug"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

// DefaultOutputChannel writes to an io.Writer and keeps a copy in a buffer.
// It is safe for use by concurrent tasks of one invocation.
type DefaultOutputChannel struct {
	mu     sync.Mutex
	level  OutputLevel
	prefix string
	writer io.Writer
	buf    *bytes.Buffer
}

// NewOutputChannel builds an OutputChannel targeting w.
func NewOutputChannel(w io.Writer) *DefaultOutputChannel {
	if w == nil {
		w = io.Discard
	}
	buf := &bytes.Buffer{}
	return &DefaultOutputChannel{level: OutputNormal, writer: io.MultiWriter(w, buf), buf: buf}
}

// WithPrefix sets a line prefix, used to tag asynchronous output with its command.
func (c *DefaultOutputChannel) WithPrefix(prefix string) *DefaultOutputChannel {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prefix = prefix
	return c
}

// Level returns current verbosity.
func (c *DefaultOutputChannel) Level() OutputLevel {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.level
}

// SetLevel updates verbosity.
func (c *DefaultOutputChannel) SetLevel(level OutputLevel) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.level = level
}

func (c *DefaultOutputChannel) line(threshold OutputLevel, label, msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.level < threshold {
		return
	}
	fmt.Fprintf(c.writer, "%s%s%s\n", c.prefix, label, msg)
}

// Info writes an informational message; suppressed when quiet.
func (c *DefaultOutputChannel) Info(msg string) { c.line(OutputNormal, "", msg) }

// Warn writes a warning message.
func (c *DefaultOutputChannel) Warn(msg string) { c.line(OutputNormal, "WARNING: ", msg) }

// Error writes an error message regardless of level.
func (c *DefaultOutputChannel) Error(msg string) { c.line(OutputQuiet, "ERROR: ", msg) }

// Debug writes only at debug level.
func (c *DefaultOutputChannel) Debug(msg string) { c.line(OutputDebug, "DEBUG: ", msg) }

// WriteJSON renders indented JSON.
func (c *DefaultOutputChannel) WriteJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		c.Error(fmt.Sprintf("failed to encode json: %v", err))
		return
	}
	c.line(OutputNormal, "", string(data))
}

// WriteTable renders a header line and aligned rows.
func (c *DefaultOutputChannel) WriteTable(headers []string, rows [][]string) {
	if len(headers) == 0 {
		return
	}
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(strings.TrimSpace(h))
	}
	for _, row := range rows {
		for i := range widths {
			if i < len(row) && len(row[i]) > widths[i] {
				widths[i] = len(row[i])
			}
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.level < OutputNormal {
		return
	}
	fmt.Fprintln(c.writer, c.prefix+formatHeader(headers, widths))
	for _, row := range rows {
		fmt.Fprintln(c.writer, c.prefix+formatRow(row, widths))
	}
}

func formatHeader(headers []string, widths []int) string {
	cells := make([]string, len(widths))
	for i := range widths {
		value := ""
		if i < len(headers) {
			value = strings.TrimSpace(headers[i])
		}
		cells[i] = fmt.Sprintf(" %-*s ", widths[i], value)
	}
	return "|" + strings.Join(cells, "|") + "|"
}

func formatRow(row []string, widths []int) string {
	var b strings.Builder
	b.Grow(len(widths) * 8)
	b.WriteString("  ")
	for i := range widths {
		value := ""
		if i < len(row) {
			value = row[i]
		}
		b.WriteString(fmt.Sprintf("%-*s", widths[i], value))
		if i < len(widths)-1 {
			b.WriteString("   ")
		}
	}
	return strings.TrimRight(b.String(), " ")
}

// Writer returns the underlying writer.
func (c *DefaultOutputChannel) Writer() io.Writer { return c.writer }

// Buffer exposes captured output, useful in tests.
func (c *DefaultOutputChannel) Buffer() *bytes.Buffer { return c.buf }

// Captured returns the captured output as a string.
func (c *DefaultOutputChannel) Captured() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.String()
}
