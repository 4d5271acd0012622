package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"

	"motionsync.ai/internal/sim/world"
)

type JSONLZstdWriter struct {
	baseDir string
	prefix  string

	// header, when set, is written as the first line of every new file.
	header func() any
	now    func() time.Time

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

func NewJSONLZstdWriter(baseDir, prefix string) *JSONLZstdWriter {
	return &JSONLZstdWriter{
		baseDir: baseDir,
		prefix:  prefix,
		now:     time.Now,
	}
}

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *JSONLZstdWriter) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	hour := w.now().UTC().Format("2006-01-02-15")
	if hour != w.curHour {
		if err := w.rotateLocked(hour); err != nil {
			return err
		}
	}
	if err := w.writeLineLocked(v); err != nil {
		return err
	}
	return w.w.Flush()
}

func (w *JSONLZstdWriter) writeLineLocked(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	return w.w.WriteByte('\n')
}

func (w *JSONLZstdWriter) rotateLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	dir := filepath.Dir(w.pathForHour(hour))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(w.pathForHour(hour), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 128*1024)
	w.curHour = hour
	if w.header != nil {
		return w.writeLineLocked(w.header())
	}
	return nil
}

func (w *JSONLZstdWriter) closeLocked() error {
	var err1 error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err1 = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	w.w = nil
	return err1
}

func (w *JSONLZstdWriter) pathForHour(hour string) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, hour))
}

// RunHeader opens every journal file. A replay uses it to pick the step
// length and to tell runs apart when files from several runs share a dir.
type RunHeader struct {
	RunID      string `json:"run_id"`
	WorldID    string `json:"world_id"`
	TickRateHz int    `json:"tick_rate_hz"`
	Started    string `json:"started"`
}

// TickLogger writes one JSONL entry per tick (compressed).
type TickLogger struct {
	w   *JSONLZstdWriter
	run RunHeader
}

func NewTickLogger(worldDir, worldID string, tickRateHz int) *TickLogger {
	l := &TickLogger{
		w: NewJSONLZstdWriter(filepath.Join(worldDir, "events"), "events"),
		run: RunHeader{
			RunID:      uuid.NewString(),
			WorldID:    worldID,
			TickRateHz: tickRateHz,
			Started:    time.Now().UTC().Format(time.RFC3339),
		},
	}
	l.w.header = func() any { return journalLine{Run: &l.run} }
	return l
}

func (l *TickLogger) RunID() string { return l.run.RunID }

func (l *TickLogger) WriteTick(v world.TickLogEntry) error {
	return l.w.Write(journalLine{TickLogEntry: &v})
}

func (l *TickLogger) Close() error { return l.w.Close() }

// journalLine is either a run header or a tick entry.
type journalLine struct {
	Run *RunHeader `json:"run,omitempty"`
	*world.TickLogEntry
}
