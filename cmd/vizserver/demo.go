package main

import (
	"fmt"

	"github.com/threepy/vizserver/internal/geo"
	"github.com/threepy/vizserver/internal/registry"
	"github.com/threepy/vizserver/internal/visualizer"
	"github.com/threepy/vizserver/pkg/scene"
)

// The demo scene is in kilometres.
const (
	earthRadiusKm = 6371.0
	metresToKm    = 1e-3
	orbitAltitude = 400_000.0 // metres
	orbitPeriod   = 60.0      // seconds of animation per revolution
)

// populateEarthDemo describes the Earth with a satellite circling the
// equator in low orbit.
func populateEarthDemo(viz *visualizer.Visualizer) error {
	sphere := scene.DefaultSphereParams()
	sphere.Radius = earthRadiusKm
	sphere.WidthSegments = 64
	sphere.HeightSegments = 32
	earthGeometry, err := scene.NewSphereGeometry("earth_geometry", sphere)
	if err != nil {
		return err
	}
	earth, err := scene.NewSimpleMesh("earth", earthGeometry, scene.NewMeshLambertMaterial("earth_material", 0x2266cc))
	if err != nil {
		return err
	}
	if err := viz.AddObject(earth, registry.RootName); err != nil {
		return fmt.Errorf("adding earth: %w", err)
	}

	sphere.Radius = 150
	sphere.WidthSegments = 16
	sphere.HeightSegments = 8
	satGeometry, err := scene.NewSphereGeometry("satellite_geometry", sphere)
	if err != nil {
		return err
	}
	satellite, err := scene.NewSimpleMesh("satellite", satGeometry, scene.NewMeshLambertMaterial("satellite_material", 0xffaa00))
	if err != nil {
		return err
	}
	if err := viz.AddObject(satellite, registry.RootName); err != nil {
		return fmt.Errorf("adding satellite: %w", err)
	}
	if err := viz.PlaceGeodetic("satellite", 0, 0, orbitAltitude, metresToKm); err != nil {
		return err
	}

	points := make([][]float64, 0, 13)
	for lon := -180.0; lon <= 180; lon += 30 {
		pos, err := geo.ScenePosition(lon, 0, orbitAltitude, metresToKm)
		if err != nil {
			return err
		}
		points = append(points, pos[:])
	}
	orbit, err := geo.PathFromPoints(points)
	if err != nil {
		return err
	}
	if _, err := viz.AnimatePath("orbit", "satellite", orbit, orbitPeriod); err != nil {
		return fmt.Errorf("adding orbit: %w", err)
	}
	if err := viz.LoadAnimation("orbit", ""); err != nil {
		return err
	}

	position := [3]float64{0, earthRadiusKm, earthRadiusKm * 3}
	target := [3]float64{0, 0, 0}
	return viz.CameraControls("controls", visualizer.CameraOptions{
		Position:         &position,
		Target:           &target,
		EnableTransition: true,
	})
}
