package ndjson

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/iambrandonn/pairagent/internal/protocol"
)

// MaxMessageSize bounds a single surface message (16 KiB). Prompts and
// answers are a few hundred bytes; anything larger is a misbehaving helper.
const MaxMessageSize = 16 * 1024

// Encoder writes one JSON value per line and flushes after each.
type Encoder struct {
	mu     sync.Mutex
	writer *bufio.Writer
	logger *slog.Logger
}

// NewEncoder creates an encoder writing to w.
func NewEncoder(w io.Writer, logger *slog.Logger) *Encoder {
	return &Encoder{
		writer: bufio.NewWriter(w),
		logger: logger,
	}
}

// Encode writes v as a single line. Safe for concurrent use.
func (e *Encoder) Encode(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	if len(data) > MaxMessageSize {
		e.logger.Error("message exceeds size limit",
			"size", len(data),
			"limit", MaxMessageSize)
		return fmt.Errorf("message size %d exceeds limit %d", len(data), MaxMessageSize)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	data = append(data, '\n')
	if _, err := e.writer.Write(data); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := e.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush output: %w", err)
	}
	return nil
}

// Decoder reads NDJSON lines.
type Decoder struct {
	scanner *bufio.Scanner
	logger  *slog.Logger
	lineNum int
}

// NewDecoder creates a decoder reading from r.
func NewDecoder(r io.Reader, logger *slog.Logger) *Decoder {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), MaxMessageSize)

	return &Decoder{
		scanner: scanner,
		logger:  logger,
	}
}

// next returns the next non-empty line, or io.EOF.
func (d *Decoder) next() ([]byte, error) {
	for d.scanner.Scan() {
		d.lineNum++
		if line := d.scanner.Bytes(); len(line) > 0 {
			return line, nil
		}
	}
	if err := d.scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanner error at line %d: %w", d.lineNum, err)
	}
	return nil, io.EOF
}

// Decode reads the next line into v.
func (d *Decoder) Decode(v any) error {
	line, err := d.next()
	if err != nil {
		return err
	}
	if err := json.Unmarshal(line, v); err != nil {
		d.logger.Error("failed to unmarshal JSON",
			"line", d.lineNum,
			"error", err,
			"data", string(line[:min(100, len(line))]))
		return fmt.Errorf("failed to unmarshal line %d: %w", d.lineNum, err)
	}
	return nil
}

// DecodeMessage reads the next line and returns the surface message it
// holds: *protocol.Prompt, *protocol.Answer or *protocol.Close.
func (d *Decoder) DecodeMessage() (any, error) {
	line, err := d.next()
	if err != nil {
		return nil, err
	}

	var envelope struct {
		Kind protocol.MessageKind `json:"kind"`
	}
	if err := json.Unmarshal(line, &envelope); err != nil {
		return nil, fmt.Errorf("line %d: failed to parse envelope: %w", d.lineNum, err)
	}

	var msg any
	switch envelope.Kind {
	case protocol.MessageKindPrompt:
		msg = &protocol.Prompt{}
	case protocol.MessageKindAnswer:
		msg = &protocol.Answer{}
	case protocol.MessageKindClose:
		msg = &protocol.Close{}
	case "":
		return nil, fmt.Errorf("line %d: missing 'kind' field", d.lineNum)
	default:
		d.logger.Warn("unknown message kind", "line", d.lineNum, "kind", envelope.Kind)
		return nil, fmt.Errorf("line %d: unknown message kind: %s", d.lineNum, envelope.Kind)
	}

	if err := json.Unmarshal(line, msg); err != nil {
		return nil, fmt.Errorf("line %d: failed to decode %s: %w", d.lineNum, envelope.Kind, err)
	}
	return msg, nil
}
