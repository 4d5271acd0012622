package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	persistlog "motionsync.ai/internal/persistence/log"
	"motionsync.ai/internal/persistence/snapshot"
	"motionsync.ai/internal/sim/scenario"
	"motionsync.ai/internal/sim/tuning"
	"motionsync.ai/internal/sim/world"
	"motionsync.ai/internal/transport/observer"
	"motionsync.ai/internal/transport/ws"
)

func main() {
	var (
		addr         = flag.String("addr", ":8080", "http listen address")
		configDir    = flag.String("configs", "./configs", "config directory")
		dataDir      = flag.String("data", "./data", "runtime data directory")
		tuningPath   = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		scenarioPath = flag.String("scenario", "", "path to scenario.yaml (default: <configs>/scenario.yaml)")
		seed         = flag.Int64("seed", 0, "override the tuning seed (0 keeps it)")
		disableDB    = flag.Bool("disable_db", false, "disable the trajectory index")
		snapEvery    = flag.Uint64("snapshot_every", 600, "checkpoint the observer replica every N ticks (0 disables)")
		headless     = flag.Bool("headless", false, "step the scenario's ticks as fast as possible, then exit")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", tp)
		tune = tuning.Defaults()
	}
	if *seed != 0 {
		tune.Seed = *seed
	}

	sp := strings.TrimSpace(*scenarioPath)
	if sp == "" {
		sp = filepath.Join(*configDir, "scenario.yaml")
	}
	sc, err := scenario.Load(sp)
	if err != nil {
		logger.Fatalf("load scenario: %v", err)
	}

	w, err := sc.Build(tune, logger)
	if err != nil {
		logger.Fatalf("world: %v", err)
	}
	w.SetScript(sc.Commands())

	worldDir := filepath.Join(*dataDir, "worlds", sc.WorldID)
	_ = os.MkdirAll(worldDir, 0o755)

	// Optional: read-model index backend (does not affect sim determinism).
	idx, err := openRuntimeIndex(worldDir, *disableDB, logger)
	if err != nil {
		logger.Fatalf("open index backend: %v", err)
	}
	if idx != nil {
		defer idx.Close()
		if err := idx.UpsertTuning(tune); err != nil {
			logger.Printf("index backend: upsert tuning: %v", err)
		}
	}

	tickLog := persistlog.NewTickLogger(worldDir, sc.WorldID, tune.TickRateHz)
	defer tickLog.Close()
	if idx != nil {
		idx.RecordRun(tickLog.RunID(), sc.WorldID, tune.TickRateHz)
	}
	logger.Printf("world=%s run=%s seed=%d tick_rate=%d agents=%d", sc.WorldID, tickLog.RunID(), tune.Seed, tune.TickRateHz, len(sc.Agents))

	obsSrv := observer.NewServer(sc.WorldID, tune.TickRateHz, log.New(os.Stdout, "[observer] ", log.LstdFlags|log.Lmicroseconds))
	snapRec := snapshot.NewRecorder(worldDir, sc.WorldID, tickLog.RunID(), tune.TickRateHz, *snapEvery, log.New(os.Stdout, "[snapshot] ", log.LstdFlags|log.Lmicroseconds))
	defer snapRec.Close()

	sinks := fanoutTickLogger{tickLog, obsSrv, snapRec}
	if idx != nil {
		sinks = append(sinks, idx)
	}
	w.AddTickLogger(sinks)

	if *headless {
		ticks := sc.Ticks
		if ticks <= 0 {
			logger.Fatalf("headless run needs ticks > 0 in %s", sp)
		}
		var digest string
		for i := 0; i < ticks; i++ {
			_, digest = w.StepOnce(nil)
		}
		logger.Printf("headless run done: ticks=%d digest=%s replica_mismatches=%d", ticks, digest, snapRec.Mismatches())
		return
	}

	ctx, cancel := signalContext()
	defer cancel()

	worldDone := make(chan struct{})
	go func() {
		defer close(worldDone)
		if err := w.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("world stopped: %v", err)
		}
	}()
	// Sinks close on return; the world must not write to them afterwards.
	defer func() {
		cancel()
		<-worldDone
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		writeMetrics(rw, sc.WorldID, w.Metrics(), obsSrv, snapRec, idx)
	})

	enableAdminHTTP := envBool("MS_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP())
	enablePprofHTTP := envBool("MS_ENABLE_PPROF_HTTP", false)
	if enableAdminHTTP {
		// Local-only admin endpoints (do not affect simulation determinism).
		mux.HandleFunc("/admin/v1/state", func(rw http.ResponseWriter, r *http.Request) {
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			rw.Header().Set("Content-Type", "application/json")
			resp := struct {
				WorldID string             `json:"world_id"`
				RunID   string             `json:"run_id"`
				Metrics world.WorldMetrics `json:"metrics"`
			}{
				WorldID: sc.WorldID,
				RunID:   tickLog.RunID(),
				Metrics: w.Metrics(),
			}
			_ = json.NewEncoder(rw).Encode(resp)
		})
	} else {
		logger.Printf("admin endpoints disabled (MS_ENABLE_ADMIN_HTTP=false)")
	}
	if enablePprofHTTP {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	} else {
		logger.Printf("pprof endpoints disabled (MS_ENABLE_PPROF_HTTP=false)")
	}
	mux.HandleFunc("/v1/observer/bootstrap", obsSrv.BootstrapHandler())
	mux.HandleFunc("/v1/observer/ws", obsSrv.WSHandler())
	mux.HandleFunc("/v1/commands", ws.NewServer(w, logger).Handler())

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s", *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
}

func writeMetrics(rw http.ResponseWriter, worldID string, m world.WorldMetrics, obs *observer.Server, snap *snapshot.Recorder, idx runtimeIndex) {
	// Minimal Prometheus exposition format.
	fmt.Fprintf(rw, "# HELP motionsync_world_tick Current world tick.\n")
	fmt.Fprintf(rw, "# TYPE motionsync_world_tick gauge\n")
	fmt.Fprintf(rw, "motionsync_world_tick{world=%q} %d\n", worldID, m.Tick)

	fmt.Fprintf(rw, "# HELP motionsync_world_agents Current number of agents in the world.\n")
	fmt.Fprintf(rw, "# TYPE motionsync_world_agents gauge\n")
	fmt.Fprintf(rw, "motionsync_world_agents{world=%q} %d\n", worldID, m.Agents)
	fmt.Fprintf(rw, "motionsync_world_transports{world=%q} %d\n", worldID, m.Transports)

	fmt.Fprintf(rw, "# HELP motionsync_world_queue_depth Command inbox backlog.\n")
	fmt.Fprintf(rw, "# TYPE motionsync_world_queue_depth gauge\n")
	fmt.Fprintf(rw, "motionsync_world_queue_depth{world=%q,queue=%q} %d\n", worldID, "inbox", m.InboxDepth)

	fmt.Fprintf(rw, "# HELP motionsync_world_step_ms Last tick step duration in milliseconds.\n")
	fmt.Fprintf(rw, "# TYPE motionsync_world_step_ms gauge\n")
	fmt.Fprintf(rw, "motionsync_world_step_ms{world=%q} %.3f\n", worldID, m.StepMS)

	fmt.Fprintf(rw, "# HELP motionsync_sync_messages_total Sync messages emitted.\n")
	fmt.Fprintf(rw, "# TYPE motionsync_sync_messages_total counter\n")
	fmt.Fprintf(rw, "motionsync_sync_messages_total{world=%q,type=%q} %d\n", worldID, "MOVE_SPLINE", m.Launches)
	fmt.Fprintf(rw, "motionsync_sync_messages_total{world=%q,type=%q} %d\n", worldID, "MOVE_STOP", m.Stops)

	fmt.Fprintf(rw, "# HELP motionsync_observers Connected observer sessions.\n")
	fmt.Fprintf(rw, "# TYPE motionsync_observers gauge\n")
	fmt.Fprintf(rw, "motionsync_observers{world=%q} %d\n", worldID, obs.SessionCount())
	fmt.Fprintf(rw, "motionsync_observer_dropped_total{world=%q} %d\n", worldID, obs.Dropped())

	if snap != nil {
		fmt.Fprintf(rw, "# HELP motionsync_replica_mismatch_total Ticks where the server-side replica digest differed from the world.\n")
		fmt.Fprintf(rw, "# TYPE motionsync_replica_mismatch_total counter\n")
		fmt.Fprintf(rw, "motionsync_replica_mismatch_total{world=%q} %d\n", worldID, snap.Mismatches())
		fmt.Fprintf(rw, "motionsync_snapshots_written_total{world=%q} %d\n", worldID, snap.Written())
		fmt.Fprintf(rw, "motionsync_snapshots_dropped_total{world=%q} %d\n", worldID, snap.Dropped())
	}

	if idx != nil {
		st := idx.Stats()
		fmt.Fprintf(rw, "# HELP motionsync_index_queue_depth Trajectory index writer backlog.\n")
		fmt.Fprintf(rw, "# TYPE motionsync_index_queue_depth gauge\n")
		fmt.Fprintf(rw, "motionsync_index_queue_depth{world=%q} %d\n", worldID, st.QueueDepth)
		fmt.Fprintf(rw, "motionsync_index_dropped_total{world=%q,kind=%q} %d\n", worldID, "tick", st.DropTickTotal)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
