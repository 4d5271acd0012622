package main

import (
	"database/sql"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id (required unless -db)")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	agentID := fs.String("agent", "", "agent_id filter (splines, stops, events)")
	sinceTick := fs.Uint64("since_tick", 0, "only rows at or after this tick")
	limit := fs.Int("limit", 20, "result limit")
	_ = fs.Parse(args)

	q := "runs"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		if strings.TrimSpace(*worldID) == "" {
			fmt.Fprintln(os.Stderr, "missing -world or -db")
			os.Exit(2)
		}
		path = filepath.Join(*dataDir, "worlds", *worldID, "index", "world.sqlite")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	if *limit <= 0 {
		*limit = 20
	}
	if err := runQuery(db, q, *agentID, *sinceTick, *limit, printJSON); err != nil {
		fmt.Fprintln(os.Stderr, q+":", err)
		os.Exit(1)
	}
}

func runQuery(db *sql.DB, q, agentID string, sinceTick uint64, limit int, emit func(any)) error {
	switch q {
	case "runs":
		rows, err := db.Query(`SELECT run_id,world_id,tick_rate_hz,started_at FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				RunID      string `json:"run_id"`
				WorldID    string `json:"world_id"`
				TickRateHz int    `json:"tick_rate_hz"`
				StartedAt  string `json:"started_at"`
			}
			if err := rows.Scan(&r.RunID, &r.WorldID, &r.TickRateHz, &r.StartedAt); err != nil {
				return err
			}
			emit(r)
		}
		return rows.Err()

	case "ticks":
		rows, err := db.Query(`SELECT tick,digest,splines,stops,events,leaves FROM ticks WHERE tick>=? ORDER BY tick LIMIT ?`, sinceTick, limit)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Tick    uint64 `json:"tick"`
				Digest  string `json:"digest"`
				Splines int    `json:"splines"`
				Stops   int    `json:"stops"`
				Events  int    `json:"events"`
				Leaves  int    `json:"leaves"`
			}
			if err := rows.Scan(&r.Tick, &r.Digest, &r.Splines, &r.Stops, &r.Events, &r.Leaves); err != nil {
				return err
			}
			emit(r)
		}
		return rows.Err()

	case "splines":
		rows, err := db.Query(`SELECT agent_id,spline_id,tick,mode,cyclic,velocity,transport_id,vertical,points FROM splines
			WHERE (?='' OR agent_id=?) AND tick>=? ORDER BY tick,agent_id LIMIT ?`, agentID, agentID, sinceTick, limit)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				AgentID     string  `json:"agent_id"`
				SplineID    uint32  `json:"spline_id"`
				Tick        uint64  `json:"tick"`
				Mode        string  `json:"mode"`
				Cyclic      bool    `json:"cyclic"`
				Velocity    float64 `json:"velocity"`
				TransportID string  `json:"transport_id,omitempty"`
				Vertical    string  `json:"vertical,omitempty"`
				Points      int     `json:"points"`
			}
			var transport, vertical sql.NullString
			if err := rows.Scan(&r.AgentID, &r.SplineID, &r.Tick, &r.Mode, &r.Cyclic, &r.Velocity, &transport, &vertical, &r.Points); err != nil {
				return err
			}
			r.TransportID, r.Vertical = transport.String, vertical.String
			emit(r)
		}
		return rows.Err()

	case "stops":
		rows, err := db.Query(`SELECT agent_id,spline_id,tick,x,y,z,orientation,transport_id FROM stops
			WHERE (?='' OR agent_id=?) AND tick>=? ORDER BY tick,agent_id LIMIT ?`, agentID, agentID, sinceTick, limit)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				AgentID     string     `json:"agent_id"`
				SplineID    uint32     `json:"spline_id"`
				Tick        uint64     `json:"tick"`
				Pos         [3]float64 `json:"pos"`
				Orientation float64    `json:"orientation"`
				TransportID string     `json:"transport_id,omitempty"`
			}
			var transport sql.NullString
			if err := rows.Scan(&r.AgentID, &r.SplineID, &r.Tick, &r.Pos[0], &r.Pos[1], &r.Pos[2], &r.Orientation, &transport); err != nil {
				return err
			}
			r.TransportID = transport.String
			emit(r)
		}
		return rows.Err()

	case "events":
		rows, err := db.Query(`SELECT tick,agent_id,type,kind,ref,code FROM events
			WHERE (?='' OR agent_id=?) AND tick>=? ORDER BY tick,seq LIMIT ?`, agentID, agentID, sinceTick, limit)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Tick    uint64 `json:"tick"`
				AgentID string `json:"agent_id"`
				Type    string `json:"type"`
				Kind    string `json:"kind,omitempty"`
				Ref     string `json:"ref,omitempty"`
				Code    string `json:"code,omitempty"`
			}
			var kind, ref, code sql.NullString
			if err := rows.Scan(&r.Tick, &r.AgentID, &r.Type, &kind, &ref, &code); err != nil {
				return err
			}
			r.Kind, r.Ref, r.Code = kind.String, ref.String, code.String
			emit(r)
		}
		return rows.Err()

	case "meta":
		rows, err := db.Query(`SELECT key,value FROM meta ORDER BY key`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Key   string `json:"key"`
				Value string `json:"value"`
			}
			if err := rows.Scan(&r.Key, &r.Value); err != nil {
				return err
			}
			emit(r)
		}
		return rows.Err()
	}
	return fmt.Errorf("unknown query %q (runs, ticks, splines, stops, events, meta)", q)
}
