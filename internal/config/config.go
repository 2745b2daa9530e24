// Package config holds world settings, their defaults and the clamping
// rules applied when settings change.
package config

import (
	"log/slog"
	"runtime"
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/roach88/physync/internal/native"
)

// Defaults match a scene measured in centimetres at 60 frames per second.
const (
	DefaultTypicalLength  float32 = 100
	DefaultTypicalSpeed   float32 = 1000
	DefaultDensity        float32 = 0.001
	DefaultMinTimestep            = 16667 * time.Microsecond
	DefaultMaxTimestep            = 33333 * time.Microsecond
	AutomaticThreadCount          = -1
)

// DefaultGravity points down the Y axis at 981 cm/s^2.
var DefaultGravity = mgl32.Vec3{0, -981, 0}

// World is the full set of world settings.
//
// EnableCCD, TypicalLength, TypicalSpeed, NumThreads and both report flags
// are init-only: they are read once when the native scene is created.
type World struct {
	Gravity        mgl32.Vec3
	Running        bool
	ForceDebugDraw bool

	EnableCCD     bool
	TypicalLength float32
	TypicalSpeed  float32

	DefaultDensity float32
	MinTimestep    time.Duration
	MaxTimestep    time.Duration

	// NumThreads is the native solver worker count; -1 selects one per CPU.
	NumThreads int

	ReportKinematicKinematic bool
	ReportStaticKinematic    bool
}

// Default returns the default world settings.
func Default() World {
	return World{
		Gravity:        DefaultGravity,
		Running:        true,
		TypicalLength:  DefaultTypicalLength,
		TypicalSpeed:   DefaultTypicalSpeed,
		DefaultDensity: DefaultDensity,
		MinTimestep:    DefaultMinTimestep,
		MaxTimestep:    DefaultMaxTimestep,
		NumThreads:     AutomaticThreadCount,
	}
}

// Normalize applies the setter clamping rules to every field at once, as
// when a whole configuration is loaded from a file. Corrections are logged.
func (w *World) Normalize(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	w.MaxTimestep = ClampMaxTimestep(w.MaxTimestep, logger)
	w.MinTimestep = ClampMinTimestep(w.MinTimestep, w.MaxTimestep, logger)
	if w.TypicalLength <= 0 {
		logger.Warn("typical length must be positive, using default", "value", w.TypicalLength, "default", DefaultTypicalLength)
		w.TypicalLength = DefaultTypicalLength
	}
	if w.NumThreads < AutomaticThreadCount {
		logger.Warn("thread count below -1, using automatic", "value", w.NumThreads)
		w.NumThreads = AutomaticThreadCount
	}
}

// ClampMinTimestep bounds a new minimum timestep to [0, max].
func ClampMinTimestep(min, max time.Duration, logger *slog.Logger) time.Duration {
	if min > max {
		logger.Warn("minimum timestep greater than maximum timestep, value clamped", "min", min, "max", max)
		min = max
	}
	if min < 0 {
		logger.Warn("minimum timestep less than zero, value clamped", "min", min)
		min = 0
	}
	return min
}

// ClampMaxTimestep bounds a new maximum timestep to [0, inf).
func ClampMaxTimestep(max time.Duration, logger *slog.Logger) time.Duration {
	if max < 0 {
		logger.Warn("maximum timestep less than zero, value clamped", "max", max)
		max = 0
	}
	return max
}

// Threads resolves NumThreads to a concrete worker count.
func (w World) Threads() int {
	if w.NumThreads >= 0 {
		return w.NumThreads
	}
	return runtime.NumCPU()
}

// SceneDesc builds the native scene description for these settings.
func (w World) SceneDesc(cb native.EventCallback, shader native.FilterShader) native.SceneDesc {
	return native.SceneDesc{
		Gravity:                  w.Gravity,
		TypicalLength:            w.TypicalLength,
		TypicalSpeed:             w.TypicalSpeed,
		EnableCCD:                w.EnableCCD,
		NumThreads:               w.Threads(),
		ReportKinematicKinematic: w.ReportKinematicKinematic,
		ReportStaticKinematic:    w.ReportStaticKinematic,
		Callback:                 cb,
		Shader:                   shader,
	}
}
