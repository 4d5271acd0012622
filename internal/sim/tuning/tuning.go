package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	TickRateHz int   `yaml:"tick_rate_hz"`
	Seed       int64 `yaml:"seed"`

	Speeds Speeds `yaml:"speeds"`
	Path   Path   `yaml:"path"`
	Chase  Chase  `yaml:"chase"`
	Follow Follow `yaml:"follow"`
	Flee   Flee   `yaml:"flee"`

	// Gravity used by falling curves, in units/s^2.
	Gravity float64 `yaml:"gravity"`
}

// Speeds is the default per-mode speed table applied to agents that do not
// carry their own.
type Speeds struct {
	Walk       float64 `yaml:"walk"`
	Run        float64 `yaml:"run"`
	RunBack    float64 `yaml:"run_back"`
	Swim       float64 `yaml:"swim"`
	SwimBack   float64 `yaml:"swim_back"`
	Flight     float64 `yaml:"flight"`
	FlightBack float64 `yaml:"flight_back"`
}

type Path struct {
	MaxLength    float64 `yaml:"max_length"`
	RetryDelayMs int     `yaml:"retry_delay_ms"`
}

type Chase struct {
	RecheckDistance float64 `yaml:"recheck_distance"`
	ContactRange    float64 `yaml:"contact_range"`
}

type Follow struct {
	RecheckDistance   float64 `yaml:"recheck_distance"`
	RecheckIntervalMs int     `yaml:"recheck_interval_ms"`
	Distance          float64 `yaml:"distance"`
}

// Flee carries the destination-selection constants. They are gameplay tuned,
// not physical constants.
type Flee struct {
	MinQuiet float64 `yaml:"min_quiet"`
	MaxQuiet float64 `yaml:"max_quiet"`

	NearScale     [2]float64 `yaml:"near_scale"`
	NearJitterDeg float64    `yaml:"near_jitter_deg"`
	FarScale      [2]float64 `yaml:"far_scale"`
	FarJitterDeg  float64    `yaml:"far_jitter_deg"`
	InsideScale   [2]float64 `yaml:"inside_scale"`

	ReplanMinMs int `yaml:"replan_min_ms"`
	ReplanMaxMs int `yaml:"replan_max_ms"`
}

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion: "1.0",
		TickRateHz:      10,
		Seed:            1337,
		Speeds: Speeds{
			Walk:       2.5,
			Run:        7.0,
			RunBack:    4.5,
			Swim:       4.722222,
			SwimBack:   2.5,
			Flight:     7.0,
			FlightBack: 4.5,
		},
		Path: Path{
			MaxLength:    74,
			RetryDelayMs: 500,
		},
		Chase: Chase{
			RecheckDistance: 5.0,
			ContactRange:    1.5,
		},
		Follow: Follow{
			RecheckDistance:   2.5,
			RecheckIntervalMs: 500,
			Distance:          3.0,
		},
		Flee: Flee{
			MinQuiet:      28,
			MaxQuiet:      43,
			NearScale:     [2]float64{0.4, 1.3},
			NearJitterDeg: 22.5,
			FarScale:      [2]float64{0.4, 1.0},
			FarJitterDeg:  45,
			InsideScale:   [2]float64{0.6, 1.2},
			ReplanMinMs:   800,
			ReplanMaxMs:   2300,
		},
		Gravity: 19.29110527038574,
	}
}

// Load reads a tuning file on top of Defaults, so a file only has to name the
// values it changes.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	if t.TickRateHz <= 0 {
		return fmt.Errorf("tick_rate_hz must be > 0")
	}
	s := t.Speeds
	for name, v := range map[string]float64{
		"walk": s.Walk, "run": s.Run, "run_back": s.RunBack,
		"swim": s.Swim, "swim_back": s.SwimBack,
		"flight": s.Flight, "flight_back": s.FlightBack,
	} {
		if v <= 0 {
			return fmt.Errorf("speeds.%s must be > 0", name)
		}
	}
	if t.Path.MaxLength <= 0 {
		return fmt.Errorf("path.max_length must be > 0")
	}
	if t.Chase.RecheckDistance < 0 || t.Follow.RecheckDistance < 0 {
		return fmt.Errorf("recheck distances must be >= 0")
	}
	f := t.Flee
	if f.MinQuiet <= 0 || f.MaxQuiet <= f.MinQuiet {
		return fmt.Errorf("flee quiet bounds must satisfy 0 < min_quiet < max_quiet")
	}
	for name, r := range map[string][2]float64{"near_scale": f.NearScale, "far_scale": f.FarScale, "inside_scale": f.InsideScale} {
		if r[0] <= 0 || r[1] < r[0] {
			return fmt.Errorf("flee.%s must be an increasing positive range", name)
		}
	}
	if f.ReplanMinMs <= 0 || f.ReplanMaxMs < f.ReplanMinMs {
		return fmt.Errorf("flee replan window must satisfy 0 < min <= max")
	}
	if t.Gravity <= 0 {
		return fmt.Errorf("gravity must be > 0")
	}
	return nil
}

// TickSeconds is the fixed simulation step.
func (t Tuning) TickSeconds() float64 {
	return 1 / float64(t.TickRateHz)
}

func MsToSeconds(ms int) float64 {
	return float64(ms) / 1000
}
