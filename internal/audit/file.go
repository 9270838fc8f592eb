package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/flowforge/taskctl/internal/log"
	"github.com/flowforge/taskctl/internal/pubsub"
)

const (
	// defaultBufferSize is the ring buffer capacity before a flush is
	// forced, matching the teacher's session writer.
	defaultBufferSize = 256
	// defaultFlushInterval is how often the background goroutine flushes
	// to disk even if the buffer never hits its threshold.
	defaultFlushInterval = 250 * time.Millisecond
	// flushThresholdPercent is the fill percentage that triggers an
	// immediate flush instead of waiting for the ticker.
	flushThresholdPercent = 75
)

// FileSink is an append-only JSONL audit sink: a ring-buffered writer
// flushed periodically and fanned out live to every subscriber, adapted
// from the teacher's session event BufferedWriter (ring buffer + 75%
// threshold flush + background ticker) generalized from raw session bytes
// to one JSON-encoded Record per line.
type FileSink struct {
	path   string
	file   *os.File
	broker *pubsub.Broker[Record]

	mu             sync.Mutex
	buffer         [][]byte
	bufferSize     int
	flushThreshold int
	flushInterval  time.Duration

	writeErrors atomic.Int64
	done        chan struct{}
	wg          sync.WaitGroup
	closed      bool
}

// NewFileSink opens (creating/appending to) path and starts its background
// flush loop.
func NewFileSink(path string) (*FileSink, error) {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return newFileSinkWithConfig(path, file, defaultBufferSize, defaultFlushInterval), nil
}

func newFileSinkWithConfig(path string, file *os.File, bufferSize int, flushInterval time.Duration) *FileSink {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	if flushInterval <= 0 {
		flushInterval = defaultFlushInterval
	}
	s := &FileSink{
		path:           path,
		file:           file,
		broker:         pubsub.NewBroker[Record](),
		buffer:         make([][]byte, 0, bufferSize),
		bufferSize:     bufferSize,
		flushThreshold: (bufferSize * flushThresholdPercent) / 100,
		flushInterval:  flushInterval,
		done:           make(chan struct{}),
	}
	s.wg.Add(1)
	go s.flushLoop()
	return s
}

// Subscribe streams every record FileSink writes from here on, for
// taskctl watch.
func (s *FileSink) Subscribe(ctx context.Context) <-chan pubsub.Event[Record] {
	return s.broker.Subscribe(ctx)
}

// Record implements Sink: it stamps an id/timestamp, appends to the ring
// buffer, publishes to subscribers, and flushes immediately if the buffer
// crossed its threshold.
func (s *FileSink) Record(ctx context.Context, kind string, fields map[string]interface{}) {
	rec := Record{ID: uuid.NewString(), Time: time.Now(), Kind: kind, Fields: fields}
	s.broker.Publish(pubsub.CreatedEvent, rec)

	line, err := json.Marshal(rec)
	if err != nil {
		log.Warn(log.CatAudit, "failed to marshal audit record", "kind", kind, "error", err)
		return
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.buffer = append(s.buffer, line)
	if len(s.buffer) >= s.flushThreshold {
		s.flushLocked()
	}
}

// Flush writes every buffered record to disk.
func (s *FileSink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked()
}

// Query answers a filtered, most-recent-first history lookup by flushing
// pending records and scanning the JSONL file. Unlike SQLiteSink.Query
// this is a full scan, acceptable for the default sink's expected volume
// (one daemon, JSON Lines, no concurrent writers outside this process).
func (s *FileSink) Query(ctx context.Context, q Query) ([]Record, error) {
	if err := s.Flush(); err != nil {
		log.Warn(log.CatAudit, "flush before query failed", "error", err)
	}

	f, err := os.Open(s.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var matched []Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var r Record
		if err := json.Unmarshal(scanner.Bytes(), &r); err != nil {
			continue
		}
		if q.matches(r) {
			matched = append(matched, r)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	sort.Slice(matched, func(i, j int) bool { return matched[i].Time.After(matched[j].Time) })
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}
	return matched, nil
}

func (s *FileSink) flushLocked() error {
	if len(s.buffer) == 0 {
		return nil
	}
	var firstErr error
	for _, line := range s.buffer {
		if _, err := s.file.Write(line); err != nil {
			s.writeErrors.Add(1)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	s.buffer = s.buffer[:0]
	return firstErr
}

func (s *FileSink) flushLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			if err := s.Flush(); err != nil {
				log.Warn(log.CatAudit, "periodic audit flush failed", "error", err)
			}
		}
	}
}

// ErrorCount returns the number of write errors seen so far.
func (s *FileSink) ErrorCount() int64 { return s.writeErrors.Load() }

// Close stops the flush loop, flushes one last time, and closes the file.
func (s *FileSink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return os.ErrClosed
	}
	s.closed = true
	s.mu.Unlock()

	close(s.done)
	s.wg.Wait()

	s.mu.Lock()
	flushErr := s.flushLocked()
	s.mu.Unlock()

	s.broker.Close()
	closeErr := s.file.Close()
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}

var _ Sink = (*FileSink)(nil)
