package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"
)

// DefaultChannelCapacity is the bounded intake channel's default size.
const DefaultChannelCapacity = 10000

// DefaultBatchSize and DefaultFlushInterval are the shipper's default
// batching thresholds.
const (
	DefaultBatchSize     = 200
	DefaultFlushInterval = time.Second
)

// Sink is the in-process telemetry pipe: a bounded channel owned by a single
// shipper goroutine, with a synchronous, non-blocking Enqueue on the
// producer side.
type Sink struct {
	ch            chan Event
	client        *http.Client
	ingestURL     string
	batchSize     int
	flushInterval time.Duration
}

// NewSink builds a Sink. batchSize/flushInterval fall back to their
// defaults when zero.
func NewSink(capacity int, ingestURL string, batchSize int, flushInterval time.Duration, timeout time.Duration) *Sink {
	if capacity <= 0 {
		capacity = DefaultChannelCapacity
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if flushInterval <= 0 {
		flushInterval = DefaultFlushInterval
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Sink{
		ch:            make(chan Event, capacity),
		client:        &http.Client{Timeout: timeout},
		ingestURL:     ingestURL,
		batchSize:     batchSize,
		flushInterval: flushInterval,
	}
}

// Enqueue is the hot-path call from the tracing subsystem: synchronous,
// non-blocking, and silent on a full channel even under sustained overflow.
func (s *Sink) Enqueue(e Event) {
	select {
	case s.ch <- e:
	default:
	}
}

// Run is the shipper loop: it accumulates events into a buffer, flushing on
// batch_size or on a missed-tick-delays ticker, until ctx is cancelled. Events
// that arrive before the next tick are still buffered; on that tick it
// flushes, drains what the channel holds at that moment without blocking,
// and exits after a final flush. It also exits if the channel is closed.
func (s *Sink) Run(ctx context.Context) {
	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	buf := make([]Event, 0, s.batchSize)
	draining := false
	done := ctx.Done()

	for {
		select {
		case <-done:
			// Disarm so the closed channel does not win every select until
			// the drain tick arrives.
			done = nil
			draining = true

		case <-ticker.C:
			if len(buf) > 0 {
				s.flush(buf)
				buf = buf[:0]
			}
			if draining {
				s.drainRemaining(&buf)
				return
			}

		case e, ok := <-s.ch:
			if !ok {
				s.drainRemaining(&buf)
				return
			}
			buf = append(buf, e)
			if len(buf) >= s.batchSize {
				s.flush(buf)
				buf = buf[:0]
			}
		}
	}
}

// drainRemaining empties whatever is currently buffered in the channel
// without blocking, flushing full batches as it goes, then flushes the tail.
func (s *Sink) drainRemaining(buf *[]Event) {
	for {
		select {
		case e, ok := <-s.ch:
			if !ok {
				s.flushTail(buf)
				return
			}
			*buf = append(*buf, e)
			if len(*buf) >= s.batchSize {
				s.flush(*buf)
				*buf = (*buf)[:0]
			}
		default:
			s.flushTail(buf)
			return
		}
	}
}

func (s *Sink) flushTail(buf *[]Event) {
	if len(*buf) > 0 {
		s.flush(*buf)
		*buf = (*buf)[:0]
	}
}

// flush POSTs batch as a JSON array to ingestURL. The response body is read
// and discarded; there is no retry and no in-process logging, to avoid
// recursively generating telemetry about telemetry.
func (s *Sink) flush(batch []Event) {
	if s.ingestURL == "" {
		return
	}
	data, err := json.Marshal(batch)
	if err != nil {
		return
	}

	req, err := http.NewRequest(http.MethodPost, s.ingestURL, bytes.NewReader(data))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
}
