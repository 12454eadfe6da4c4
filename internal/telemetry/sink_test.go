package telemetry

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSink_Enqueue_DropsOnFullChannel(t *testing.T) {
	s := NewSink(1, "", 0, 0, 0)
	require.True(t, trySend(s, Event{Message: "first"}))
	s.Enqueue(Event{Message: "overflow"})
}

func trySend(s *Sink, e Event) bool {
	select {
	case s.ch <- e:
		return true
	default:
		return false
	}
}

func TestSink_Run_FlushesBatchAndDrainsOnShutdown(t *testing.T) {
	var mu sync.Mutex
	var received []Event

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var batch []Event
		require.NoError(t, json.NewDecoder(r.Body).Decode(&batch))
		mu.Lock()
		received = append(received, batch...)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewSink(100, srv.URL, 2, 20*time.Millisecond, 0)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	s.Enqueue(Event{Message: "one"})
	s.Enqueue(Event{Message: "two"})
	s.Enqueue(Event{Message: "three"})

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sink did not shut down")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 3)
}
