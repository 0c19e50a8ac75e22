package calibd

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoSim-25-26J-441/contact-calibration/pkg/models"
	"github.com/GoSim-25-26J-441/contact-calibration/pkg/utils"
)

func TestValidateCallbackURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		errType error
	}{
		{"valid external URL", "https://example.com/callback", nil},
		{"valid localhost for development", "http://localhost:8000/callback", nil},
		{"URL with run_id template", "http://localhost:8000/callback/{run_id}", nil},
		{"invalid scheme", "ftp://example.com/callback", ErrInvalidURL},
		{"missing hostname", "http:///callback", ErrInvalidURL},
		{"metadata endpoint IP", "http://169.254.169.254/metadata", ErrMetadataEndpoint},
		{"metadata endpoint hostname", "http://metadata.google.internal/metadata", ErrMetadataEndpoint},
		{"wildcard address", "http://0.0.0.0:8000/callback", ErrInternalHost},
		{"direct loopback IP", "http://127.0.0.1:8000/callback", ErrInternalHost},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateCallbackURL(tt.url)
			if tt.errType == nil {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, tt.errType), "got %v", err)
		})
	}
}

func testRecord() *RunRecord {
	return &RunRecord{
		Run: &models.Run{
			ID:        "cb-run",
			Status:    models.RunStatusConverged,
			StartTime: time.Unix(100, 0),
			EndTime:   time.Unix(101, 0),
			Result:    &models.RunResult{BestValue: 0.25, Iterations: 7},
		},
	}
}

func TestNotifierSendsPayloadAndSecret(t *testing.T) {
	received := make(chan NotificationPayload, 1)
	var path, secret atomic.Value
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path.Store(r.URL.Path)
		secret.Store(r.Header.Get(CallbackSecretHeader))
		var p NotificationPayload
		_ = json.NewDecoder(r.Body).Decode(&p)
		w.WriteHeader(http.StatusNoContent)
		received <- p
	}))
	defer ts.Close()

	n := NewNotifier()
	n.Notify(ts.URL+"/hooks/{run_id}", "s3cret", testRecord())

	select {
	case p := <-received:
		assert.Equal(t, "cb-run", p.RunID)
		assert.Equal(t, models.RunStatusConverged, p.Status)
		assert.Equal(t, int64(100000), p.StartedAtMs)
		require.NotNil(t, p.Result)
		assert.Equal(t, 7, p.Result.Iterations)
	case <-time.After(5 * time.Second):
		t.Fatal("notification not received")
	}
	assert.Equal(t, "/hooks/cb-run", path.Load())
	assert.Equal(t, "s3cret", secret.Load())
}

func TestNotifierRetriesUntilSuccess(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	n := NewNotifier(WithBackoff(utils.NewConstantBackoff(time.Millisecond)))
	err := n.send(ts.URL, "", NotificationPayload{RunID: "r"})
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestNotifierGivesUp(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	n := NewNotifier(WithBackoff(utils.NewConstantBackoff(time.Millisecond)), WithRetries(2))
	err := n.send(ts.URL, "", NotificationPayload{RunID: "r"})
	require.Error(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestCallbackBackoff(t *testing.T) {
	b, err := CallbackBackoff("constant", 200*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 200*time.Millisecond, b.NextDelay(0))
	assert.Equal(t, 200*time.Millisecond, b.NextDelay(5))

	b, err = CallbackBackoff("exponential", 100*time.Millisecond)
	require.NoError(t, err)
	for attempt := 0; attempt < 10; attempt++ {
		d := b.NextDelay(attempt)
		assert.Greater(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, 4500*time.Millisecond)
	}

	_, err = CallbackBackoff("linear", time.Second)
	assert.Error(t, err)
	_, err = CallbackBackoff("constant", 0)
	assert.Error(t, err)
}

func TestNotifierSkipsEmptyURL(t *testing.T) {
	// must not panic or spawn work
	NewNotifier().Notify("", "", nil)
	NewNotifier().Notify("http://example.com", "", &RunRecord{})
}

func TestExecutorNotifiesOnCompletion(t *testing.T) {
	received := make(chan NotificationPayload, 1)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p NotificationPayload
		_ = json.NewDecoder(r.Body).Decode(&p)
		received <- p
	}))
	defer ts.Close()

	store, executor := newTestExecutor(t, WithNotifier(NewNotifier()))
	_, err := store.Create("notified", parseConfig(t, quickConfig), quickConfig, Callback{URL: ts.URL})
	require.NoError(t, err)
	_, err = executor.Start("notified")
	require.NoError(t, err)

	select {
	case p := <-received:
		assert.Equal(t, "notified", p.RunID)
		assert.True(t, p.Status.IsTerminal())
	case <-time.After(60 * time.Second):
		t.Fatal("completion callback not received")
	}
}
