// Package trace implements the asynchronous trace logger and the
// trace player described in spec.md §4.G and §4.H: persistence of
// observed frames to CSV or TRC files, and time-accurate playback of
// a previously recorded file.
package trace

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/canscope/engine/frame"
	"github.com/sirupsen/logrus"
)

// Format selects the on-disk trace representation.
type Format string

const (
	FormatCSV Format = "csv"
	FormatTRC Format = "trc"
)

const flushEveryFrames = 100

// Config configures a logging session, per spec.md §4.G.
type Config struct {
	Format        Format
	Path          string
	AutoSplit     bool
	MaxSizeMB     int
	MaxDurationSec int
}

// Logger is the asynchronous trace writer. A single background
// goroutine drains an unbounded queue fed by Log, matching the
// "writer is expected to keep up" contract of spec.md §5.
type Logger struct {
	cfg   Config
	log   *logrus.Entry

	mu      sync.Mutex
	queue   []frame.Frame
	notify  chan struct{}
	closed  bool
	done    chan struct{}

	file        *os.File
	writer      *bufio.Writer
	written     int
	bytesOut    int64
	startedAt   time.Time
	splitIndex  int
}

// Start opens the trace file, writes its header, and launches the
// writer goroutine.
func Start(cfg Config, log *logrus.Entry) (*Logger, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	l := &Logger{
		cfg:       cfg,
		log:       log,
		notify:    make(chan struct{}, 1),
		done:      make(chan struct{}),
		startedAt: time.Now(),
	}
	if err := l.openFile(cfg.Path); err != nil {
		return nil, fmt.Errorf("trace: open %s: %w", cfg.Path, err)
	}
	go l.run()
	return l, nil
}

func (l *Logger) openFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	l.file = f
	l.writer = bufio.NewWriter(f)
	l.bytesOut = 0
	header := l.header()
	n, err := l.writer.WriteString(header)
	l.bytesOut += int64(n)
	return err
}

func (l *Logger) header() string {
	if l.cfg.Format == FormatTRC {
		return fmt.Sprintf("$FILEVERSION=2.0\n$STARTTIME=%s\n",
			l.startedAt.Format("2006-01-02 15:04:05.000"))
	}
	return "Time,ID,Extended,Remote,DLC,Data,Direction,Channel\n"
}

// Log enqueues a frame for writing. Safe for concurrent callers; never
// blocks the caller, matching the lossless-but-unbounded queue policy
// of spec.md §5.
func (l *Logger) Log(f frame.Frame) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.queue = append(l.queue, f)
	l.mu.Unlock()
	select {
	case l.notify <- struct{}{}:
	default:
	}
}

func (l *Logger) run() {
	defer close(l.done)
	for {
		l.mu.Lock()
		batch := l.queue
		l.queue = nil
		closed := l.closed
		l.mu.Unlock()

		for _, f := range batch {
			l.writeRow(f)
		}
		if closed && len(batch) == 0 {
			l.finalFlush()
			return
		}
		if len(batch) == 0 {
			<-l.notify
		}
	}
}

func (l *Logger) writeRow(f frame.Frame) {
	var row string
	if l.cfg.Format == FormatTRC {
		row = trcRow(f)
	} else {
		row = csvRow(f)
	}
	n, err := l.writer.WriteString(row)
	l.bytesOut += int64(n)
	if err != nil {
		l.log.WithError(err).Error("trace: write failed, terminating logger")
		l.mu.Lock()
		l.closed = true
		l.mu.Unlock()
		return
	}
	l.written++
	if l.written%flushEveryFrames == 0 {
		l.writer.Flush()
	}
	l.maybeRotate()
}

func csvRow(f frame.Frame) string {
	return fmt.Sprintf("%.6f,%s,%t,%t,%d,%s,%s,%s\n",
		f.Timestamp, f.HexID(), f.IsExtended, f.IsRemote, f.DLC, f.HexData(), f.Direction, f.Channel)
}

func trcRow(f frame.Frame) string {
	var typ string
	switch {
	case f.IsExtended && f.Direction == frame.DirectionTx:
		typ = "Tx"
	case f.IsExtended:
		typ = "Rx"
	case f.Direction == frame.DirectionTx:
		typ = "tx"
	default:
		typ = "rx"
	}
	return fmt.Sprintf(" %11.6f %s %s %d %s\n", f.Timestamp*1000, typ, f.HexID(), f.DLC, f.HexData())
}

func (l *Logger) maybeRotate() {
	if !l.cfg.AutoSplit {
		return
	}
	overSize := l.cfg.MaxSizeMB > 0 && l.bytesOut > int64(l.cfg.MaxSizeMB)<<20
	overDuration := l.cfg.MaxDurationSec > 0 && time.Since(l.startedAt) > time.Duration(l.cfg.MaxDurationSec)*time.Second
	if !overSize && !overDuration {
		return
	}
	l.writer.Flush()
	l.file.Close()

	l.splitIndex++
	ext := filepath.Ext(l.cfg.Path)
	stem := strings.TrimSuffix(l.cfg.Path, ext)
	nextPath := fmt.Sprintf("%s_%d%s", stem, l.written, ext)
	if err := l.openFile(nextPath); err != nil {
		l.log.WithError(err).Error("trace: rotation failed, terminating logger")
		l.mu.Lock()
		l.closed = true
		l.mu.Unlock()
		return
	}
	l.startedAt = time.Now()
}

func (l *Logger) finalFlush() {
	l.writer.Flush()
	l.file.Close()
}

// Stop drops the sender side of the queue and waits briefly for the
// writer to drain, per spec.md §4.G.
func (l *Logger) Stop() {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	select {
	case l.notify <- struct{}{}:
	default:
	}
	select {
	case <-l.done:
	case <-time.After(2 * time.Second):
		l.log.Warn("trace: writer did not drain within grace period")
	}
}
