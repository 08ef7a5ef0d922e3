package workerrt

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRuntime_Register_RetriesUntilSuccess(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/workers/register" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		n := atomic.AddInt32(&attempts, 1)
		if n < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second)
	rt := NewRuntime("t1", "default", client, ShellExecutor{}, nil)
	rt.BackoffFloor = time.Millisecond
	rt.BackoffCeil = 5 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	err := rt.Register(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, atomic.LoadInt32(&attempts), int32(3))
}

func TestRuntime_Register_CanceledContextStops(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second)
	rt := NewRuntime("t1", "default", client, ShellExecutor{}, nil)
	rt.BackoffFloor = 10 * time.Millisecond
	rt.BackoffCeil = 20 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err := rt.Register(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

// TestRuntime_Run_DrainsInFlightWorkBeforeReturning dispatches a single slow
// fragment, cancels the context mid-execution, and checks Run doesn't return
// until the fragment's result has actually been reported.
func TestRuntime_Run_DrainsInFlightWorkBeforeReturning(t *testing.T) {
	var reported int32
	fragID := "11111111-1111-1111-1111-111111111111"

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/workers/heartbeat":
			w.WriteHeader(http.StatusOK)
		case "/work/request":
			if atomic.LoadInt32(&reported) != 0 {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			json.NewEncoder(w).Encode(map[string]FragmentAssignment{"data": {Script: "sleep 0.2"}})
		case "/work/result":
			atomic.StoreInt32(&reported, 1)
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()
	_ = fragID

	client := NewClient(srv.URL, time.Second)
	rt := NewRuntime("t1", "default", client, ShellExecutor{}, nil)
	rt.HeartbeatInterval = 500 * time.Millisecond
	rt.PollInterval = 10 * time.Millisecond
	rt.ScriptTimeout = time.Second

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		rt.Run(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	assert.Equal(t, int32(1), atomic.LoadInt32(&reported), "in-flight fragment should have reported its result before Run returned")
}
