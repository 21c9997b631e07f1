package logging

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Transcript mirrors every log record of a run to a plain-text file, one
// line per event, so an administrator can review a logon run after the fact.
type Transcript struct {
	mu   sync.Mutex
	file *os.File
}

var (
	transcriptMu sync.RWMutex
	transcript   *Transcript
)

// OpenTranscript starts a transcript for this run under dir. The file name
// carries the run label and a timestamp. Safe to call when a transcript is
// already open; the previous one is closed first.
func OpenTranscript(dir, label string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create transcript dir: %w", err)
	}

	name := fmt.Sprintf("%s-%s.log", label, time.Now().Format("20060102-150405"))
	f, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open transcript: %w", err)
	}

	transcriptMu.Lock()
	defer transcriptMu.Unlock()
	if transcript != nil {
		transcript.close()
	}
	transcript = &Transcript{file: f}
	return nil
}

// CloseTranscript flushes and closes the active transcript, if any.
func CloseTranscript() {
	transcriptMu.Lock()
	defer transcriptMu.Unlock()
	if transcript != nil {
		transcript.close()
		transcript = nil
	}
}

func (t *Transcript) close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.file.Sync()
	t.file.Close()
}

func (t *Transcript) write(record slog.Record, attrs []slog.Attr) {
	var b strings.Builder
	b.WriteString(record.Time.Format(time.RFC3339))
	b.WriteByte(' ')
	b.WriteString(record.Level.String())
	b.WriteByte(' ')
	b.WriteString(record.Message)
	for _, a := range attrs {
		fmt.Fprintf(&b, " %s=%v", a.Key, a.Value.Any())
	}
	record.Attrs(func(a slog.Attr) bool {
		fmt.Fprintf(&b, " %s=%v", a.Key, a.Value.Any())
		return true
	})
	b.WriteByte('\n')

	t.mu.Lock()
	defer t.mu.Unlock()
	t.file.WriteString(b.String())
}

// transcriptHandler wraps a base slog.Handler to also append records to the
// active transcript file. Logger-level attrs are tracked locally so the
// transcript line carries them too.
type transcriptHandler struct {
	base  slog.Handler
	attrs []slog.Attr
}

func (h *transcriptHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.base.Enabled(ctx, level)
}

func (h *transcriptHandler) Handle(ctx context.Context, record slog.Record) error {
	transcriptMu.RLock()
	t := transcript
	transcriptMu.RUnlock()

	if t != nil {
		t.write(record, h.attrs)
	}
	return h.base.Handle(ctx, record)
}

func (h *transcriptHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &transcriptHandler{base: h.base.WithAttrs(attrs), attrs: merged}
}

func (h *transcriptHandler) WithGroup(name string) slog.Handler {
	return &transcriptHandler{base: h.base.WithGroup(name), attrs: h.attrs}
}
