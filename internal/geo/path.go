package geo

import (
	"encoding/json"
	"fmt"
	"math"

	geom "github.com/peterstace/simplefeatures/geom"

	"github.com/threepy/vizserver/pkg/scene"
)

// ParsePath parses a JSON array of points into an XYZ geom.LineString.
// Input format: "[[x1,y1,z1],[x2,y2,z2],...]"; a missing z is 0.
func ParsePath(input string) (geom.LineString, error) {
	var coords [][]float64
	if err := json.Unmarshal([]byte(input), &coords); err != nil {
		return geom.LineString{}, fmt.Errorf("failed to parse path JSON: %w", err)
	}
	return PathFromPoints(coords)
}

// PathFromPoints builds an XYZ line string from [x, y] or [x, y, z] points.
func PathFromPoints(points [][]float64) (geom.LineString, error) {
	if len(points) < 2 {
		return geom.LineString{}, fmt.Errorf("path must have at least 2 points, got %d", len(points))
	}

	flat := make([]float64, 0, len(points)*3)
	for i, p := range points {
		switch len(p) {
		case 2:
			flat = append(flat, p[0], p[1], 0)
		case 3:
			flat = append(flat, p[0], p[1], p[2])
		default:
			return geom.LineString{}, fmt.Errorf("point %d has %d values", i, len(p))
		}
	}

	return geom.NewLineString(geom.NewSequence(flat, geom.DimXYZ)), nil
}

// arcLengths returns the cumulative 3D distance at each vertex.
func arcLengths(seq geom.Sequence) []float64 {
	out := make([]float64, seq.Length())
	for i := 1; i < seq.Length(); i++ {
		a, b := seq.Get(i-1), seq.Get(i)
		out[i] = out[i-1] + math.Sqrt(
			(b.X-a.X)*(b.X-a.X)+
				(b.Y-a.Y)*(b.Y-a.Y)+
				(b.Z-a.Z)*(b.Z-a.Z))
	}
	return out
}

// PathTrack builds a vector keyframe track that moves along path over
// duration seconds at constant speed.
func PathTrack(trackName string, path geom.LineString, duration float64) (scene.KeyframeTrack, error) {
	seq := path.Coordinates()
	if seq.Length() < 2 {
		return scene.KeyframeTrack{}, fmt.Errorf("%w: path needs at least 2 points", scene.ErrValidation)
	}
	if duration <= 0 || math.IsNaN(duration) {
		return scene.KeyframeTrack{}, fmt.Errorf("%w: duration must be positive", scene.ErrValidation)
	}

	lengths := arcLengths(seq)
	total := lengths[len(lengths)-1]
	if total == 0 {
		return scene.KeyframeTrack{}, fmt.Errorf("%w: path has zero length", scene.ErrValidation)
	}

	times := make([]float64, seq.Length())
	values := make([]float64, 0, seq.Length()*3)
	for i := range times {
		times[i] = duration * lengths[i] / total
		c := seq.Get(i)
		values = append(values, c.X, c.Y, c.Z)
	}
	times[len(times)-1] = duration

	return scene.NewKeyframeTrack(trackName, times, values, scene.InterpolateLinear, scene.ValueVector)
}
