package trace

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/roach88/physync/internal/config"
	"github.com/roach88/physync/internal/scene"
	"github.com/roach88/physync/internal/world"
)

// DomainScene prefixes scene hashes. The version suffix allows a future
// change of what is hashed.
const DomainScene = "physync/scene/v1"

// Run is one recorded simulation of a scene.
type Run struct {
	ID        string `json:"id"`
	Scene     string `json:"scene"`
	SceneHash string `json:"scene_hash"`
	// Config is the world configuration as JSON.
	Config string `json:"config"`
}

// NewRun describes a run of the scene source with the given configuration.
func NewRun(id, sceneName string, source []byte, cfg config.World) (Run, error) {
	cfgJSON, err := marshalConfig(cfg)
	if err != nil {
		return Run{}, fmt.Errorf("new run: %w", err)
	}
	return Run{
		ID:        id,
		Scene:     sceneName,
		SceneHash: SceneHash(source),
		Config:    cfgJSON,
	}, nil
}

// SceneHash computes SHA256(domain + 0x00 + source) as hex.
func SceneHash(source []byte) string {
	h := sha256.New()
	h.Write([]byte(DomainScene))
	h.Write([]byte{0x00})
	h.Write(source)
	return hex.EncodeToString(h.Sum(nil))
}

// Tick is one recorded sync window.
type Tick struct {
	Seq         int64 `json:"seq"`
	DeltaMicros int64 `json:"delta_us"`

	Actors    int `json:"actors"`
	Created   int `json:"created"`
	Released  int `json:"released"`
	Rebuilt   int `json:"rebuilt"`
	Delivered int `json:"delivered"`

	Events   []Event   `json:"events"`
	Commands []Command `json:"commands"`
	Poses    []Pose    `json:"poses"`
}

// Event is a delivered contact or trigger report. Nodes are named.
type Event struct {
	Kind     string  `json:"kind"`
	Sender   string  `json:"sender"`
	Receiver string  `json:"receiver"`
	Points   []Point `json:"points,omitempty"`
}

// Point is one contact point.
type Point struct {
	Position mgl32.Vec3 `json:"position"`
	Normal   mgl32.Vec3 `json:"normal"`
	Impulse  mgl32.Vec3 `json:"impulse"`
}

// Command is one executed rigid body command.
type Command struct {
	Node string `json:"node"`
	Name string `json:"command"`
}

// Pose is a body's scene-space pose at the end of the tick.
type Pose struct {
	Node     string     `json:"node"`
	Position mgl32.Vec3 `json:"position"`
	Rotation mgl32.Quat `json:"rotation"`
}

// FromReport converts a world tick report plus the live bodies into a
// trace tick. Poses are sorted by node name.
func FromReport(r world.TickReport, bodies []*scene.Node) Tick {
	t := Tick{
		Seq:         r.Seq,
		DeltaMicros: r.Delta.Microseconds(),
		Actors:      r.Actors,
		Created:     len(r.Created),
		Released:    r.Released,
		Rebuilt:     r.Rebuilt,
		Delivered:   r.Delivered,
		Events:      make([]Event, 0, len(r.Events)),
		Commands:    make([]Command, 0, len(r.Commands)),
		Poses:       make([]Pose, 0, len(bodies)),
	}

	for _, rec := range r.Events {
		e := Event{
			Kind:     rec.Kind.String(),
			Sender:   rec.Sender.Name(),
			Receiver: rec.Receiver.Name(),
		}
		for i := range rec.Positions {
			p := Point{Position: rec.Positions[i]}
			if i < len(rec.Normals) {
				p.Normal = rec.Normals[i]
			}
			if i < len(rec.Impulses) {
				p.Impulse = rec.Impulses[i]
			}
			e.Points = append(e.Points, p)
		}
		t.Events = append(t.Events, e)
	}

	for _, c := range r.Commands {
		t.Commands = append(t.Commands, Command{Node: c.Node.Name(), Name: c.Command.Kind.String()})
	}

	for _, n := range bodies {
		p := n.ScenePose()
		t.Poses = append(t.Poses, Pose{Node: n.Name(), Position: p.Position, Rotation: p.Rotation})
	}
	sort.SliceStable(t.Poses, func(i, j int) bool { return t.Poses[i].Node < t.Poses[j].Node })

	return t
}

// configJSON is the stored shape of config.World. Durations are strings.
type configJSON struct {
	Gravity                  mgl32.Vec3 `json:"gravity"`
	Running                  bool       `json:"running"`
	ForceDebugDraw           bool       `json:"force_debug_draw"`
	EnableCCD                bool       `json:"enable_ccd"`
	TypicalLength            float32    `json:"typical_length"`
	TypicalSpeed             float32    `json:"typical_speed"`
	DefaultDensity           float32    `json:"default_density"`
	MinTimestep              string     `json:"min_timestep"`
	MaxTimestep              string     `json:"max_timestep"`
	NumThreads               int        `json:"num_threads"`
	ReportKinematicKinematic bool       `json:"report_kinematic_kinematic"`
	ReportStaticKinematic    bool       `json:"report_static_kinematic"`
}

// marshalConfig renders the configuration with HTML escaping disabled so
// the stored text is stable.
func marshalConfig(c config.World) (string, error) {
	v := configJSON{
		Gravity:                  c.Gravity,
		Running:                  c.Running,
		ForceDebugDraw:           c.ForceDebugDraw,
		EnableCCD:                c.EnableCCD,
		TypicalLength:            c.TypicalLength,
		TypicalSpeed:             c.TypicalSpeed,
		DefaultDensity:           c.DefaultDensity,
		MinTimestep:              c.MinTimestep.String(),
		MaxTimestep:              c.MaxTimestep.String(),
		NumThreads:               c.NumThreads,
		ReportKinematicKinematic: c.ReportKinematicKinematic,
		ReportStaticKinematic:    c.ReportStaticKinematic,
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", fmt.Errorf("marshal config: %w", err)
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n")), nil
}

func marshalPoints(points []Point) (string, error) {
	if points == nil {
		points = []Point{}
	}
	data, err := json.Marshal(points)
	if err != nil {
		return "", fmt.Errorf("marshal points: %w", err)
	}
	return string(data), nil
}

func unmarshalPoints(s string) ([]Point, error) {
	var points []Point
	if err := json.Unmarshal([]byte(s), &points); err != nil {
		return nil, fmt.Errorf("unmarshal points: %w", err)
	}
	if len(points) == 0 {
		return nil, nil
	}
	return points, nil
}
