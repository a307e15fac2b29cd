// Package condition implements input conditioning ("cleanpoints"):
// parsing, de-duplication, velocity/distance filtering, and the
// windowed derived-quantity computation (velocity, bearing, rotation)
// described in spec.md §4.4. Grounded on
// original_source/pyosmroute/lib/gpsclean.py and
// original_source/pyosmroute/gpsclean.py, reshaped from a pandas/numpy
// columnar style into plain Go slices over a small Point type.
package condition

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/andi-rb/osmmatch/internal/geo"
	"github.com/andi-rb/osmmatch/internal/table"
)

const (
	DefaultMinVelocity     = 0.0
	DefaultMaxVelocity     = 250.0
	DefaultMinDistance     = 30.0
	DefaultParameterWindow = 3
)

// Config holds the conditioning parameters from spec.md §6.
type Config struct {
	MinVelocity     float64
	MaxVelocity     float64
	MinDistance     float64
	ParameterWindow int
}

func DefaultConfig() Config {
	return Config{
		MinVelocity:     DefaultMinVelocity,
		MaxVelocity:     DefaultMaxVelocity,
		MinDistance:     DefaultMinDistance,
		ParameterWindow: DefaultParameterWindow,
	}
}

// RawPoint is a single input GPS row, already column-addressed at the
// caller (spec.md §6: "caller-specified column references").
type RawPoint struct {
	OriginalIndex int
	DateTimeRaw   string
	Lon, Lat      float64
	Extra         table.Row // passthrough columns, carried unprefixed to the points summary
}

// Point is a conditioned GPS observation (spec.md §3).
type Point struct {
	OriginalIndex int
	DateTime      time.Time
	Lon, Lat      float64

	Velocity   float64
	Bearing    *float64 // nil if undefined (single-point window or zero velocity)
	Rotation   float64
	DistPrev   float64 // distance from previous conditioned point, 0 for the first
	Extra      table.Row
}

func (p Point) loc() geo.Point { return geo.NewPoint(p.Lon, p.Lat) }

// ParseDateTime parses the "YYYY-MM-DD HH:MM:SS" prefix of raw,
// stripping any trailing characters (fractional seconds, timezone
// letters, quoting) as spec.md §6 requires.
func ParseDateTime(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	s = strings.ReplaceAll(s, "\"", "")
	s = strings.ReplaceAll(s, "T", " ")
	s = strings.ReplaceAll(s, "Z", "")
	if i := strings.IndexByte(s, '.'); i >= 0 {
		s = s[:i]
	}
	if i := strings.IndexByte(s, '+'); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimSpace(s)
	if len(s) > len("2006-01-02 15:04:05") {
		s = s[:len("2006-01-02 15:04:05")]
	}
	t, err := time.Parse("2006-01-02 15:04:05", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("condition: unparseable datetime %q: %w", raw, err)
	}
	return t, nil
}

// CleanPoints implements spec.md §4.4 steps 1-3: parsing, duplicate
// removal, and velocity/distance filtering. Step 4 (windowed derived
// quantities) is applied by ComputeDerived.
func CleanPoints(raw []RawPoint, cfg Config) ([]Point, error) {
	parsed := make([]Point, 0, len(raw))
	for _, r := range raw {
		dt, err := ParseDateTime(r.DateTimeRaw)
		if err != nil {
			return nil, err
		}
		parsed = append(parsed, Point{
			OriginalIndex: r.OriginalIndex,
			DateTime:      dt,
			Lon:           r.Lon,
			Lat:           r.Lat,
			Extra:         r.Extra,
		})
	}

	deduped := dedupe(parsed)
	if len(deduped) == 0 {
		return deduped, nil
	}

	kept := []Point{deduped[0]}
	for i := 1; i < len(deduped); i++ {
		prev := kept[len(kept)-1]
		cur := deduped[i]

		dt := cur.DateTime.Sub(prev.DateTime).Seconds()
		dist := geo.Distance(prev.loc(), cur.loc())

		var vel float64
		if dt > 0 {
			vel = dist / dt
		} else {
			vel = math.Inf(1)
		}

		if vel < cfg.MinVelocity || vel > cfg.MaxVelocity {
			continue
		}
		if dist < cfg.MinDistance {
			continue
		}
		kept = append(kept, cur)
	}

	return ComputeDerived(kept, cfg), nil
}

// dedupe drops consecutive points identical in both coordinates and
// timestamp (spec.md §4.4 step 2).
func dedupe(points []Point) []Point {
	if len(points) == 0 {
		return points
	}
	out := []Point{points[0]}
	for i := 1; i < len(points); i++ {
		last := out[len(out)-1]
		cur := points[i]
		if cur.Lat == last.Lat && cur.Lon == last.Lon && cur.DateTime.Equal(last.DateTime) {
			continue
		}
		out = append(out, cur)
	}
	return out
}

// ComputeDerived computes velocity, bearing, and rotation over a
// symmetric window of cfg.ParameterWindow points (one-sided at the
// ends), and distance-from-previous as a plain adjacent distance
// (spec.md §4.4 step 4; windowing matches the original's
// velocities()/bearings()/rotations() helpers, distance-from-previous
// matches its non-windowed distances() helper).
func ComputeDerived(points []Point, cfg Config) []Point {
	n := len(points)
	if n == 0 {
		return points
	}

	window := cfg.ParameterWindow
	if window < 1 {
		window = 1
	}
	iminus := window / 2
	iplus := window - iminus - 1

	out := make([]Point, n)
	copy(out, points)

	for i := 0; i < n; i++ {
		lo := i - iminus
		if lo < 0 {
			lo = 0
		}
		hi := i + iplus
		if hi > n-1 {
			hi = n - 1
		}

		if i > 0 {
			out[i].DistPrev = geo.Distance(points[i-1].loc(), points[i].loc())
		}

		if lo == hi {
			out[i].Velocity = 0
			out[i].Bearing = nil
			out[i].Rotation = 0
			continue
		}

		dt := points[hi].DateTime.Sub(points[lo].DateTime).Seconds()
		dist := geo.Distance(points[lo].loc(), points[hi].loc())
		if dt > 0 {
			out[i].Velocity = dist / dt
		} else {
			out[i].Velocity = 0
		}

		b := geo.Bearing(points[lo].loc(), points[hi].loc())
		if out[i].Velocity == 0 {
			out[i].Bearing = nil
		} else {
			out[i].Bearing = &b
		}

		out[i].Rotation = computeRotation(points, i, lo, hi)
	}

	return out
}

// computeRotation is the signed turn angle at i: the angular
// difference between the incoming bearing (lo->i) and the outgoing
// bearing (i->hi) over the same window used for the other derived
// quantities, positive for a rightward (clockwise) turn.
func computeRotation(points []Point, i, lo, hi int) float64 {
	if lo == i || hi == i {
		return 0
	}
	bIn := geo.Bearing(points[lo].loc(), points[i].loc())
	bOut := geo.Bearing(points[i].loc(), points[hi].loc())
	diff := bOut - bIn
	for diff > 180 {
		diff -= 360
	}
	for diff < -180 {
		diff += 360
	}
	return diff
}
