package speedtest

import (
	"context"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func TestMeasureLatencyAllProbesSucceed(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.RawQuery != "latency" {
			t.Errorf("probe hit %q, want the latency query", r.URL.String())
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	got := MeasureLatency(context.Background(), srv.Client(), srv.URL, 3)

	if math.IsInf(got, 1) {
		t.Fatal("latency is infinite for a reachable server")
	}
	if got <= 0 {
		t.Errorf("latency = %v, want > 0", got)
	}
	if hits.Load() != 3 {
		t.Errorf("server saw %d probes, want 3", hits.Load())
	}
}

func TestMeasureLatencyAllProbesFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	got := MeasureLatency(context.Background(), http.DefaultClient, srv.URL, 3)
	if !math.IsInf(got, 1) {
		t.Errorf("latency = %v, want +Inf when every probe fails", got)
	}
}

func TestMeasureLatencyPartialFailure(t *testing.T) {
	// One failed probe contributes +Inf; the mean must be infinite even
	// when other probes succeed.
	// Drop every connection from the second request onward: the transport
	// retries a GET whose reused connection died, so a single dropped
	// request would be retried on a fresh connection and still succeed.
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) >= 2 {
			conn, _, err := w.(http.Hijacker).Hijack()
			if err == nil {
				conn.Close()
			}
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	got := MeasureLatency(context.Background(), http.DefaultClient, srv.URL, 3)
	if !math.IsInf(got, 1) {
		t.Errorf("latency = %v, want +Inf when any probe fails", got)
	}
}

func TestMeasureLatencyZeroCount(t *testing.T) {
	got := MeasureLatency(context.Background(), http.DefaultClient, "http://example.invalid", 0)
	if !math.IsInf(got, 1) {
		t.Errorf("latency = %v, want +Inf for zero probes", got)
	}
}
