package claude

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/forged/internal/logging"
)

// maxLineBytes bounds a single stream-json line. Tool results can carry
// whole files, so the ceiling is generous.
const maxLineBytes = 4 * 1024 * 1024

// LogEntry is one well-formed JSON event from the stream, kept verbatim
// for callers that want the full transcript.
type LogEntry struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"raw"`
}

// resultEvent is the terminal message of a stream-json run.
type resultEvent struct {
	Type         string        `json:"type"`
	Subtype      string        `json:"subtype"`
	Result       string        `json:"result"`
	IsError      bool          `json:"is_error"`
	TotalCostUSD float64       `json:"total_cost_usd"`
	Usage        *usagePayload `json:"usage"`
}

type usagePayload struct {
	InputTokens              int `json:"input_tokens"`
	OutputTokens             int `json:"output_tokens"`
	CacheCreationInputTokens int `json:"cache_creation_input_tokens"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens"`
}

func (ev *resultEvent) usage() *Usage {
	u := &Usage{CostUSD: ev.TotalCostUSD}
	if ev.Usage != nil {
		u.InputTokens = ev.Usage.InputTokens
		u.OutputTokens = ev.Usage.OutputTokens
		u.CacheCreationInputTokens = ev.Usage.CacheCreationInputTokens
		u.CacheReadInputTokens = ev.Usage.CacheReadInputTokens
	}
	return u
}

// collector accumulates the three output channels of a run: the
// authoritative result event, fallback text from lines that are not
// JSON, and the raw transcript.
type collector struct {
	ctx context.Context
	log *logging.Logger

	raw        strings.Builder
	fallback   strings.Builder
	logs       []LogEntry
	resultText string
	resultSeen bool
	usage      *Usage
}

func newCollector(ctx context.Context, log *logging.Logger) *collector {
	return &collector{ctx: ctx, log: log}
}

func (c *collector) readStdout(r io.Reader, touch func()) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineBytes)
	for sc.Scan() {
		touch()
		line := sc.Text()
		c.raw.WriteString(line)
		c.raw.WriteByte('\n')
		c.consume(line)
	}
	if err := sc.Err(); err != nil {
		c.log.Warn(c.ctx, "stdout read aborted", zap.Error(err))
	}
}

// consume classifies one line. Only a line that is in its entirety a
// single JSON object counts as an event; everything else is literal
// assistant output. Checking the decode result rather than the leading
// byte keeps half-written JSON out of the event path.
func (c *collector) consume(line string) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &fields); err != nil || fields == nil {
		c.fallback.WriteString(line)
		c.fallback.WriteByte('\n')
		return
	}

	var typ string
	if raw, ok := fields["type"]; ok {
		_ = json.Unmarshal(raw, &typ)
	}
	c.logs = append(c.logs, LogEntry{Type: typ, Raw: json.RawMessage(trimmed)})

	if typ == "result" {
		var ev resultEvent
		if err := json.Unmarshal([]byte(trimmed), &ev); err == nil {
			c.resultSeen = true
			c.resultText = ev.Result
			c.usage = ev.usage()
			c.log.Debug(c.ctx, "result event",
				zap.String("subtype", ev.Subtype),
				zap.Bool("is_error", ev.IsError))
		}
		return
	}
	c.log.Trace(c.ctx, "stream event", zap.String("type", typ))
}

// result builds the normalized output. Precedence: result field, then
// fallback text, then raw stdout, then stderr, then a fixed sentinel.
func (c *collector) result(stderr string) *Result {
	res := &Result{
		JSONLogs:  c.logs,
		RawOutput: strings.TrimRight(c.raw.String(), "\n"),
		Usage:     c.usage,
	}
	switch {
	case c.resultSeen && c.resultText != "":
		res.Output = c.resultText
	case c.fallback.Len() > 0:
		res.Output = strings.TrimSpace(c.fallback.String())
	case c.raw.Len() > 0:
		res.Output = strings.TrimSpace(c.raw.String())
	case strings.TrimSpace(stderr) != "":
		res.Output = strings.TrimSpace(stderr)
	default:
		res.Output = noOutput
	}
	return res
}

// cappedBuffer retains at most limit bytes and counts the rest, so a
// runaway stderr cannot grow an error payload without bound.
type cappedBuffer struct {
	mu    sync.Mutex
	limit int
	buf   bytes.Buffer
	total int64
}

func newCappedBuffer(limit int) *cappedBuffer {
	return &cappedBuffer{limit: limit}
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.total += int64(len(p))
	if room := b.limit - b.buf.Len(); room > 0 {
		keep := p
		if len(keep) > room {
			keep = keep[:room]
		}
		b.buf.Write(keep)
	}
	return len(p), nil
}

func (b *cappedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// Excerpt returns the retained prefix, marking truncation when bytes
// were dropped.
func (b *cappedBuffer) Excerpt() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := strings.TrimSpace(b.buf.String())
	if b.total > int64(b.buf.Len()) {
		s += " [truncated]"
	}
	return s
}
