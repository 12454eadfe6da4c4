package telemetry

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/modsentry/modsentry/internal/alert"
)

type fakeNotifier struct {
	alerts []alert.Alert
}

func (f *fakeNotifier) Notify(a alert.Alert) {
	f.alerts = append(f.alerts, a)
}

func TestGateway_HandleIngest_SingleEvent(t *testing.T) {
	var bulkBody []byte
	es := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		bulkBody, _ = readAll(r)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"errors":false,"items":[{"index":{"status":201}}]}`))
	}))
	defer es.Close()

	index, err := NewIndexClient(es.URL)
	require.NoError(t, err)

	gw := NewGateway(index, nil)
	body, _ := json.Marshal(Event{Service: "telegram-bot", Level: LevelInfo, Message: "hit"})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/ingest", bytes.NewReader(body))
	gw.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, string(bulkBody), `"index"`)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, float64(1), resp["indexed"])
}

func TestGateway_HandleIngest_ArrayBody(t *testing.T) {
	es := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"errors":false,"items":[{"index":{"status":201}},{"index":{"status":201}}]}`))
	}))
	defer es.Close()

	index, err := NewIndexClient(es.URL)
	require.NoError(t, err)

	gw := NewGateway(index, nil)
	body, _ := json.Marshal([]Event{
		{Service: "a", Level: LevelInfo, Message: "one"},
		{Service: "b", Level: LevelWarn, Message: "two"},
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/ingest", bytes.NewReader(body))
	gw.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, float64(2), resp["indexed"])
}

func TestGateway_HandleIngest_FailureNotifies(t *testing.T) {
	es := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer es.Close()

	index, err := NewIndexClient(es.URL)
	require.NoError(t, err)

	notifier := &fakeNotifier{}
	gw := NewGateway(index, notifier)
	body, _ := json.Marshal(Event{Service: "telegram-bot", Level: LevelInfo, Message: "hit"})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/ingest", bytes.NewReader(body))
	gw.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadGateway, rec.Code)
	require.Len(t, notifier.alerts, 1)
	require.Equal(t, "INGEST_FAILED", notifier.alerts[0].Kind)
}

func TestGateway_HandleIngest_EmptyBatchSkipsIndex(t *testing.T) {
	gw := NewGateway(&IndexClient{}, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/ingest", bytes.NewReader([]byte(`[]`)))
	gw.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, float64(0), resp["indexed"])
}

func TestGateway_HandleIngest_RejectsNonPost(t *testing.T) {
	gw := NewGateway(&IndexClient{}, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ingest", nil)
	gw.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func readAll(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	buf := new(bytes.Buffer)
	_, err := buf.ReadFrom(r.Body)
	return buf.Bytes(), err
}
