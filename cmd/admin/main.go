package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"motionsync.ai/internal/persistence/snapshot"
	"motionsync.ai/internal/protocol"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "db":
			dbCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		case "metrics":
			metricsCmd(os.Args[2:])
			return
		case "snapshot":
			snapshotCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id (optional)")
	_ = fs.Parse(args)

	base := filepath.Join(*dataDir, "worlds")
	if *worldID != "" {
		base = filepath.Join(base, *worldID)
	}

	entries, err := os.ReadDir(base)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	for _, e := range entries {
		fmt.Println(e.Name())
	}
}

// snapshotCmd prints a replica checkpoint: one header line, then one line per
// track.
func snapshotCmd(args []string) {
	fs := flag.NewFlagSet("snapshot", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id")
	tick := fs.Uint64("tick", 0, "snapshot tick (optional; defaults to latest)")
	_ = fs.Parse(args)

	if strings.TrimSpace(*worldID) == "" {
		fmt.Fprintln(os.Stderr, "missing -world")
		os.Exit(2)
	}
	worldDir := filepath.Join(*dataDir, "worlds", *worldID)
	t := *tick
	if t == 0 {
		lt, ok, err := snapshot.Latest(worldDir, 0)
		if err != nil {
			fmt.Fprintln(os.Stderr, "list snapshots:", err)
			os.Exit(1)
		}
		if !ok {
			fmt.Fprintln(os.Stderr, "no snapshots found")
			os.Exit(2)
		}
		t = lt
	}
	snap, err := snapshot.ReadSnapshot(snapshot.Path(worldDir, t))
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}
	printJSON(struct {
		snapshot.Header
		TickRate int    `json:"tick_rate_hz"`
		Tracks   int    `json:"tracks"`
		Digest   string `json:"digest"`
	}{snap.Header, snap.TickRate, len(snap.Tracks), snap.Digest})
	for _, tr := range snap.Tracks {
		printJSON(trackSummary(tr.AgentID, tr.Msg, tr.Elapsed, tr.Cycles, tr.Finalized))
	}
}

type trackLine struct {
	AgentID   string  `json:"agent_id"`
	Type      string  `json:"type"`
	SplineID  uint32  `json:"spline_id"`
	Mode      string  `json:"mode,omitempty"`
	Points    int     `json:"points,omitempty"`
	Elapsed   float64 `json:"elapsed"`
	Cycles    int     `json:"cycles,omitempty"`
	Finalized bool    `json:"finalized"`
}

func trackSummary(agentID string, raw json.RawMessage, elapsed float64, cycles int, finalized bool) trackLine {
	out := trackLine{AgentID: agentID, Elapsed: elapsed, Cycles: cycles, Finalized: finalized}
	msg, err := protocol.DecodeSync(raw)
	if err != nil {
		out.Type = "INVALID"
		return out
	}
	switch m := msg.(type) {
	case protocol.MoveSplineMsg:
		out.Type, out.SplineID, out.Mode, out.Points = m.Type, m.SplineID, m.Mode, len(m.Points)
	case protocol.MoveStopMsg:
		out.Type, out.SplineID = m.Type, m.SplineID
	}
	return out
}

func printJSON(v any) {
	b, _ := json.Marshal(v)
	fmt.Println(string(b))
}
