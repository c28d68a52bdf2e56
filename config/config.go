// Package config decodes named scalar configuration parameters into
// strongly typed settings for the rest of the module.
package config

import (
	"fmt"

	"github.com/mitchellh/mapstructure"

	"github.com/unnamed2/tailor/loopclosure"
	"github.com/unnamed2/tailor/odometry"
	"github.com/unnamed2/tailor/registration"
	"github.com/unnamed2/tailor/spatialmath"
)

// Provider is named-scalar configuration access with defaults, the Go
// analogue of ros::NodeHandle::param<T>(key, var, default).
type Provider interface {
	Bool(key string, def bool) bool
	Float(key string, def float64) float64
	Floats(key string, def []float64) []float64
	Int(key string, def int) int
	String(key string, def string) string
}

// MapProvider implements Provider over a flat map, decoding each stored
// value into the requested type via mapstructure.Decode so that numeric
// types read back from a JSON/YAML source (where everything decodes as
// float64 or []interface{}) coerce cleanly, the same tolerance rdk's
// AttrConfig decode gets from its mapstructure.NewDecoder call.
type MapProvider map[string]interface{}

func (p MapProvider) Bool(key string, def bool) bool {
	v, ok := p[key]
	if !ok {
		return def
	}
	var out bool
	if err := mapstructure.Decode(v, &out); err != nil {
		return def
	}
	return out
}

func (p MapProvider) Float(key string, def float64) float64 {
	v, ok := p[key]
	if !ok {
		return def
	}
	var out float64
	if err := mapstructure.Decode(v, &out); err != nil {
		return def
	}
	return out
}

func (p MapProvider) Floats(key string, def []float64) []float64 {
	v, ok := p[key]
	if !ok {
		return def
	}
	var out []float64
	if err := mapstructure.Decode(v, &out); err != nil {
		return def
	}
	return out
}

func (p MapProvider) Int(key string, def int) int {
	v, ok := p[key]
	if !ok {
		return def
	}
	var out int
	if err := mapstructure.Decode(v, &out); err != nil {
		return def
	}
	return out
}

func (p MapProvider) String(key string, def string) string {
	v, ok := p[key]
	if !ok {
		return def
	}
	var out string
	if err := mapstructure.Decode(v, &out); err != nil {
		return def
	}
	return out
}

// FatalError reports a configuration problem severe enough to warrant
// aborting the process, without this module ever calling os.Exit itself;
// the embedder decides whether a FatalError should terminate the process.
// The accompanying Attrs is always a corrected, usable configuration,
// never a zero value.
type FatalError struct {
	Reason string
}

func (e *FatalError) Error() string { return e.Reason }

// Attrs is the fully decoded, strongly typed configuration.
type Attrs struct {
	UseSolidLidar       bool
	UseSpinLidar        bool
	SolidLidarExtrinsic spatialmath.Transform
	Registration        registration.Config
	Odometry            odometry.Config
	Loop                loopclosure.Config
	MappingSavePath     string
}

// Load reads every known configuration key from p, applying defaults, and
// enforces two fatal-but-corrected policies: at least one of
// use_solid_lidar/use_spin_lidar must be true, and solid_lidar_extrinsic
// must decode to exactly 6 floats.
func Load(p Provider) (Attrs, error) {
	var a Attrs
	a.UseSolidLidar = p.Bool("use_solid_lidar", true)
	a.UseSpinLidar = p.Bool("use_spin_lidar", true)

	var fatal error
	if !a.UseSolidLidar && !a.UseSpinLidar {
		a.UseSolidLidar = true
		a.UseSpinLidar = true
		fatal = &FatalError{Reason: "use_solid_lidar and use_spin_lidar cannot be both false"}
	}

	ext := p.Floats("solid_lidar_extrinsic", []float64{0, 0, 0, 0, 0, 0})
	if len(ext) != 6 {
		if fatal == nil {
			fatal = &FatalError{Reason: fmt.Sprintf("solid_lidar_extrinsic must have 6 elements, %d got", len(ext))}
		}
		ext = []float64{0, 0, 0, 0, 0, 0}
	}
	configured := spatialmath.Transform{
		X: ext[0], Y: ext[1], Z: ext[2],
		Roll: ext[3], Pitch: ext[4], Yaw: ext[5],
	}
	// The parameter is solid-LiDAR-to-spin-LiDAR; feature extraction needs
	// the inverse to carry solid-LiDAR points into the spin-LiDAR frame, so
	// it's inverted once here rather than on every extracted frame.
	inverted, err := configured.Inverse()
	if err != nil {
		if fatal == nil {
			fatal = &FatalError{Reason: "solid_lidar_extrinsic is not invertible"}
		}
		inverted = spatialmath.Identity()
	}
	a.SolidLidarExtrinsic = inverted

	a.Registration = registration.DefaultConfig()
	a.Registration.DegenerateThreshold = p.Float("lm/degenerate_threshold", 10.0)

	a.Odometry = odometry.DefaultConfig()
	a.Odometry.KeyframeX = p.Float("keyframe/x", 0.5)
	a.Odometry.KeyframeY = p.Float("keyframe/y", 0.5)
	a.Odometry.KeyframeZ = p.Float("keyframe/z", 0.1)
	a.Odometry.KeyframeRoll = p.Float("keyframe/roll", 0.02)
	a.Odometry.KeyframePitch = p.Float("keyframe/pitch", 0.02)
	a.Odometry.KeyframeYaw = p.Float("keyframe/yaw", 0.02)
	a.Odometry.Registration = a.Registration

	a.Loop = loopclosure.DefaultConfig()
	a.Loop.MaxLoss = p.Float("loop/max_loss", 0.05)
	a.Loop.ResetCount = p.Int("loop/reset", 5)
	a.Loop.InitialLoad = p.Int("loop/initial_load", 100)
	a.Loop.Enable = p.Bool("loop/enable", true)

	a.MappingSavePath = p.String("mapping_save_path", "")

	return a, fatal
}
