// Package scenario loads the world a server or test starts from: terrain,
// transports, agents and a script of commands keyed by tick.
package scenario

import (
	"fmt"
	"log"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"motionsync.ai/internal/sim/tuning"
	"motionsync.ai/internal/sim/world"
	"motionsync.ai/internal/sim/world/logic/navgrid"
)

type Scenario struct {
	WorldID string `yaml:"world_id"`
	// Ticks bounds a headless run; 0 runs until stopped.
	Ticks int `yaml:"ticks"`

	Grid       Grid        `yaml:"grid"`
	Obstacles  []Obstacle  `yaml:"obstacles"`
	Transports []Transport `yaml:"transports"`
	Agents     []Agent     `yaml:"agents"`
	Script     []Intent    `yaml:"script"`
}

type Grid struct {
	Width     float64 `yaml:"width"`
	Height    float64 `yaml:"height"`
	CellSize  float64 `yaml:"cell_size"`
	Ground    float64 `yaml:"ground"`
	Clearance float64 `yaml:"clearance"`
}

type Obstacle struct {
	Min [2]float64 `yaml:"min"`
	Max [2]float64 `yaml:"max"`
}

type Transport struct {
	ID       string       `yaml:"id"`
	Route    [][3]float64 `yaml:"route"`
	Velocity float64      `yaml:"velocity"`
}

type Agent struct {
	ID             string         `yaml:"id"`
	Player         bool           `yaml:"player"`
	Pos            [3]float64     `yaml:"pos"`
	Orientation    float64        `yaml:"orientation"`
	CanFly         bool           `yaml:"can_fly"`
	CanSwim        bool           `yaml:"can_swim"`
	Speeds         *tuning.Speeds `yaml:"speeds"`
	BoundingRadius float64        `yaml:"bounding_radius"`
	Transport      string         `yaml:"transport"`
	CombatTarget   string         `yaml:"combat_target"`
}

// Intent is one scripted command.
type Intent struct {
	AtTick   uint64       `yaml:"at_tick"`
	Kind     string       `yaml:"kind"`
	Agent    string       `yaml:"agent"`
	Ref      string       `yaml:"ref"`
	Target   string       `yaml:"target"`
	Point    [3]float64   `yaml:"point"`
	Points   [][3]float64 `yaml:"points"`
	UsePath  bool         `yaml:"use_path"`
	Walk     bool         `yaml:"walk"`
	Smooth   bool         `yaml:"smooth"`
	Velocity float64      `yaml:"velocity"`
	Distance float64      `yaml:"distance"`
	Angle    float64      `yaml:"angle"`
	Seconds  float64      `yaml:"seconds"`
	SpeedXY  float64      `yaml:"speed_xy"`
	SpeedZ   float64      `yaml:"speed_z"`
	Height   float64      `yaml:"height"`
	Slot     string       `yaml:"slot"`
}

func Load(path string) (Scenario, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Scenario{}, err
	}
	s, err := Parse(raw)
	if err != nil {
		return s, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

func Parse(raw []byte) (Scenario, error) {
	var s Scenario
	if err := yaml.Unmarshal(raw, &s); err != nil {
		return s, err
	}
	if s.WorldID == "" {
		s.WorldID = "world"
	}
	if s.Grid.CellSize == 0 {
		s.Grid.CellSize = 1
	}
	return s, s.Validate()
}

func (s Scenario) Validate() error {
	if !(s.Grid.Width > 0) || !(s.Grid.Height > 0) {
		return fmt.Errorf("grid: width and height must be > 0")
	}
	if !(s.Grid.CellSize > 0) {
		return fmt.Errorf("grid: cell_size must be > 0")
	}
	for i, o := range s.Obstacles {
		if o.Min[0] > o.Max[0] || o.Min[1] > o.Max[1] {
			return fmt.Errorf("obstacles[%d]: min exceeds max", i)
		}
	}
	seen := map[string]bool{}
	for i, a := range s.Agents {
		if a.ID == "" {
			return fmt.Errorf("agents[%d]: missing id", i)
		}
		if seen[a.ID] {
			return fmt.Errorf("agents[%d]: duplicate id %s", i, a.ID)
		}
		seen[a.ID] = true
	}
	for i, in := range s.Script {
		if in.Kind == "" {
			return fmt.Errorf("script[%d]: missing kind", i)
		}
	}
	return nil
}

func (s Scenario) Nav() *navgrid.Grid {
	boxes := make([]navgrid.Box, len(s.Obstacles))
	for i, o := range s.Obstacles {
		boxes[i] = navgrid.Box{MinX: o.Min[0], MinY: o.Min[1], MaxX: o.Max[0], MaxY: o.Max[1]}
	}
	return navgrid.New(navgrid.Config{
		Width:     s.Grid.Width,
		Height:    s.Grid.Height,
		CellSize:  s.Grid.CellSize,
		Ground:    s.Grid.Ground,
		Clearance: s.Grid.Clearance,
		Obstacles: boxes,
	})
}

// Build creates the world with its terrain and transports. Agents arrive
// through the tick-0 commands of Commands so their spawns are journaled.
func (s Scenario) Build(tune tuning.Tuning, logger *log.Logger) (*world.World, error) {
	w, err := world.New(world.WorldConfig{ID: s.WorldID, Tuning: tune, Nav: s.Nav()}, logger)
	if err != nil {
		return nil, err
	}
	for _, tr := range s.Transports {
		if err := w.AddTransport(world.TransportSpec{ID: tr.ID, Route: tr.Route, Velocity: tr.Velocity}); err != nil {
			return nil, err
		}
	}
	return w, nil
}

// Commands groups spawns and scripted intents by tick. Spawns come first at
// tick 0; intents keep file order within a tick.
func (s Scenario) Commands() map[uint64][]world.Command {
	out := map[uint64][]world.Command{}
	for _, a := range s.Agents {
		spec := world.AgentSpec{
			ID:             a.ID,
			Player:         a.Player,
			Pos:            a.Pos,
			Orientation:    a.Orientation,
			CanFly:         a.CanFly,
			CanSwim:        a.CanSwim,
			Speeds:         a.Speeds,
			BoundingRadius: a.BoundingRadius,
			TransportID:    a.Transport,
			CombatTarget:   a.CombatTarget,
		}
		out[0] = append(out[0], world.Command{Kind: world.CmdSpawn, AgentID: a.ID, Spawn: &spec})
	}
	script := append([]Intent(nil), s.Script...)
	sort.SliceStable(script, func(i, j int) bool { return script[i].AtTick < script[j].AtTick })
	for _, in := range script {
		out[in.AtTick] = append(out[in.AtTick], in.Command())
	}
	return out
}

func (in Intent) Command() world.Command {
	return world.Command{
		Kind:     world.CommandKind(in.Kind),
		AgentID:  in.Agent,
		Ref:      in.Ref,
		TargetID: in.Target,
		Point:    in.Point,
		Points:   in.Points,
		UsePath:  in.UsePath,
		Walk:     in.Walk,
		Smooth:   in.Smooth,
		Velocity: in.Velocity,
		Distance: in.Distance,
		Angle:    in.Angle,
		Seconds:  in.Seconds,
		SpeedXY:  in.SpeedXY,
		SpeedZ:   in.SpeedZ,
		Height:   in.Height,
		Slot:     in.Slot,
	}
}
