package main

import (
	"errors"
	"io"
	"log"
	"net/http/httptest"
	"strings"
	"testing"

	"motionsync.ai/internal/sim/world"
	"motionsync.ai/internal/transport/observer"
)

type countingLogger struct {
	n   int
	err error
}

func (c *countingLogger) WriteTick(world.TickLogEntry) error {
	c.n++
	return c.err
}

func TestFanoutTickLogger_ReachesEverySink(t *testing.T) {
	bad := &countingLogger{err: errors.New("disk full")}
	good := &countingLogger{}
	f := fanoutTickLogger{bad, nil, good}

	if err := f.WriteTick(world.TickLogEntry{Tick: 3}); err == nil {
		t.Fatalf("expected the first sink error to surface")
	}
	if bad.n != 1 || good.n != 1 {
		t.Fatalf("sinks written: bad=%d good=%d", bad.n, good.n)
	}
}

func TestWriteMetrics_Exposition(t *testing.T) {
	obs := observer.NewServer("w1", 20, log.New(io.Discard, "", 0))
	rec := httptest.NewRecorder()
	writeMetrics(rec, "w1", world.WorldMetrics{Tick: 42, Agents: 3, Launches: 7}, obs, nil, nil)

	body := rec.Body.String()
	for _, want := range []string{
		`motionsync_world_tick{world="w1"} 42`,
		`motionsync_world_agents{world="w1"} 3`,
		`motionsync_sync_messages_total{world="w1",type="MOVE_SPLINE"} 7`,
		`motionsync_observers{world="w1"} 0`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("missing %q in:\n%s", want, body)
		}
	}
	if strings.Contains(body, "motionsync_index_") {
		t.Fatalf("index metrics without an index")
	}
}

func TestOpenRuntimeIndex_Disabled(t *testing.T) {
	idx, err := openRuntimeIndex(t.TempDir(), true, log.New(io.Discard, "", 0))
	if err != nil || idx != nil {
		t.Fatalf("disabled index: idx=%v err=%v", idx, err)
	}
	t.Setenv("MS_INDEX_BACKEND", "d1")
	if _, err := openRuntimeIndex(t.TempDir(), false, log.New(io.Discard, "", 0)); err == nil {
		t.Fatalf("expected unsupported backend error")
	}
}

func TestIsLoopbackRemote(t *testing.T) {
	if !isLoopbackRemote("127.0.0.1:5000") || !isLoopbackRemote("[::1]:80") {
		t.Fatalf("loopback not detected")
	}
	if isLoopbackRemote("10.0.0.2:80") {
		t.Fatalf("non-loopback accepted")
	}
}
