package heartbeat

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

	"github.com/cuemby/swarmcore/pkg/gateway"
	"github.com/cuemby/swarmcore/pkg/swarmtypes"
)

func TestHeartbeatTicksAndUpdatesStatus(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": string(swarmtypes.WFRRunning)})
	}))
	defer srv.Close()

	gw := gateway.New(srv.URL)
	hb := New(gw, 1, 10*time.Millisecond, 1.5, swarmtypes.WFRBound)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hb.Start(ctx)
	defer hb.Stop()

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&calls) >= 2
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, swarmtypes.WFRRunning, hb.CurrentStatus())
	assert.Greater(t, hb.TimeSinceLastHeartbeat(), time.Duration(0))
}

func TestHeartbeatStopBlocksUntilGoroutineExits(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"status": string(swarmtypes.WFRRunning)})
	}))
	defer srv.Close()

	gw := gateway.New(srv.URL)
	hb := New(gw, 1, 5*time.Millisecond, 1.5, swarmtypes.WFRBound)
	hb.Start(context.Background())
	hb.Stop()

	select {
	case <-hb.doneCh:
	default:
		t.Fatal("doneCh should be closed after Stop returns")
	}
}

func TestHeartbeatSurvivesTransientFailure(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"status": string(swarmtypes.WFRRunning)})
	}))
	defer srv.Close()

	gw := gateway.New(srv.URL, gateway.WithMaxRetries(0))
	hb := New(gw, 1, 5*time.Millisecond, 1.5, swarmtypes.WFRBound)
	hb.Start(context.Background())
	defer hb.Stop()

	require.Eventually(t, func() bool {
		return hb.CurrentStatus() == swarmtypes.WFRRunning
	}, time.Second, 5*time.Millisecond)
}
