// Package geo converts geodetic coordinates and paths into scene space.
package geo

import (
	"errors"
	"math"
	"strconv"
	"strings"

	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/wroge/wgs84"
)

// EPSG codes used for transforms.
const (
	epsgGeodetic    = 4326 // WGS84 lon/lat/height
	epsgGeocentric  = 4978 // WGS84 earth-centred, earth-fixed
	epsgWebMercator = 3857
)

// ErrInvalidCoordinates is returned when the coordinates are invalid
var ErrInvalidCoordinates = errors.New("invalid coordinates provided")

// ECEFFromGeodetic converts WGS84 longitude and latitude in degrees and
// height in metres to earth-centred, earth-fixed metres.
func ECEFFromGeodetic(lon, lat, alt float64) (x, y, z float64, err error) {
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 || math.IsNaN(alt) || math.IsInf(alt, 0) {
		return 0, 0, 0, ErrInvalidCoordinates
	}
	f := wgs84.EPSG().Transform(epsgGeodetic, epsgGeocentric)
	x, y, z = f(lon, lat, alt)
	if math.IsNaN(x) || math.IsNaN(y) || math.IsNaN(z) {
		return 0, 0, 0, ErrInvalidCoordinates
	}
	return x, y, z, nil
}

// SceneFromECEF maps ECEF axes onto the renderer's Y-up frame: the north
// pole is +Y and the prime meridian at the equator is +X.
func SceneFromECEF(x, y, z, scale float64) [3]float64 {
	return [3]float64{x * scale, z * scale, -y * scale}
}

// ScenePosition converts a geodetic coordinate straight to a scaled scene
// position.
func ScenePosition(lon, lat, alt, scale float64) ([3]float64, error) {
	x, y, z, err := ECEFFromGeodetic(lon, lat, alt)
	if err != nil {
		return [3]float64{}, err
	}
	return SceneFromECEF(x, y, z, scale), nil
}

// WebMercatorFromGeodetic projects a longitude and latitude to EPSG:3857
// metres, for flat map scenes.
func WebMercatorFromGeodetic(lon, lat float64) (geom.Point, error) {
	if lat < -85.06 || lat > 85.06 || lon < -180 || lon > 180 {
		return geom.Point{}, ErrInvalidCoordinates
	}
	f := wgs84.EPSG().Transform(epsgGeodetic, epsgWebMercator)
	x, y, _ := f(lon, lat, 0)
	return geom.NewPoint(geom.Coordinates{XY: geom.XY{X: x, Y: y}}), nil
}

// ParseGeodetic parses "lon,lat" or "lon,lat,alt" into an XYZ point.
func ParseGeodetic(coords string) (geom.Point, error) {
	parts := strings.Split(coords, ",")
	if len(parts) < 2 || len(parts) > 3 {
		return geom.NewEmptyPoint(geom.DimXYZ), ErrInvalidCoordinates
	}

	vals := [3]float64{}
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return geom.NewEmptyPoint(geom.DimXYZ), ErrInvalidCoordinates
		}
		vals[i] = v
	}

	return geom.NewPoint(geom.Coordinates{
		XY:   geom.XY{X: vals[0], Y: vals[1]},
		Z:    vals[2],
		Type: geom.DimXYZ,
	}), nil
}
