// Package logging provides leveled logging and the job event log for metrosim.
// It offers two complementary outputs:
//   - A leveled slog.Logger for stderr (operational output)
//   - A JobLog of structured JSONL job events (.metrosim/jobs.jsonl)
package logging

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// LevelTrace is a custom slog level below Debug. At this level per-segment
// and per-agent progress is logged.
const LevelTrace = slog.LevelDebug - 4

// JobLogFile is the name of the job event log inside the state directory.
const JobLogFile = "jobs.jsonl"

// ParseLevel maps a level name to a slog.Level.
// Supported values: "error", "warn", "info", "debug", "trace"
// (case-insensitive). Unknown values default to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "error":
		return slog.LevelError
	case "warn", "warning":
		return slog.LevelWarn
	case "debug":
		return slog.LevelDebug
	case "trace":
		return LevelTrace
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a leveled text logger writing to w.
func NewLogger(level string, w io.Writer) *slog.Logger {
	lvl := ParseLevel(level)
	opts := &slog.HandlerOptions{
		Level: lvl,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey {
				if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == LevelTrace {
					a.Value = slog.StringValue("TRACE")
				}
			}
			return a
		},
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// JobEvent is one line of the job event log.
type JobEvent struct {
	Time       time.Time `json:"time"`
	JobID      string    `json:"job_id"`
	Kind       string    `json:"kind"`
	Target     string    `json:"target"`
	Status     string    `json:"status"`
	Message    string    `json:"message,omitempty"`
	DurationMS int64     `json:"duration_ms,omitempty"`
}

// JobLog appends job events to a JSONL file. It is safe for concurrent use.
// A nil JobLog is valid; all methods are no-ops on a nil receiver.
type JobLog struct {
	mu   sync.Mutex
	file *os.File
}

// NewJobLog opens dir/jobs.jsonl for append. At info level and above it
// returns nil and no file is created. It also returns nil if the file cannot
// be opened.
func NewJobLog(dir string, level string) *JobLog {
	if ParseLevel(level) > slog.LevelDebug {
		return nil
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil
	}

	f, err := os.OpenFile(filepath.Join(dir, JobLogFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil
	}

	return &JobLog{file: f}
}

// Log writes ev as a single JSONL line, stamping Time if it is unset.
func (l *JobLog) Log(ev JobEvent) {
	if l == nil {
		return
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	data = append(data, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return
	}
	_, _ = l.file.Write(data)
}

// Close closes the underlying file.
func (l *JobLog) Close() {
	if l == nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		l.file.Close()
		l.file = nil
	}
}

// ReadJobLog returns the last limit events of dir/jobs.jsonl, oldest first.
// A missing file yields no events. Lines that do not parse are skipped.
// A limit of zero or less returns every event.
func ReadJobLog(dir string, limit int) ([]JobEvent, error) {
	f, err := os.Open(filepath.Join(dir, JobLogFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open job log: %w", err)
	}
	defer f.Close()

	var events []JobEvent
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var ev JobEvent
		if json.Unmarshal(scanner.Bytes(), &ev) != nil {
			continue
		}
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read job log: %w", err)
	}

	if limit > 0 && len(events) > limit {
		events = events[len(events)-limit:]
	}
	return events, nil
}
