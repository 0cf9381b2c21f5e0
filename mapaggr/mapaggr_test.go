package mapaggr

import (
	"math"
	"testing"

	"hermes/models"
)

func TestAggregatorPreservesTotalCount(t *testing.T) {
	a := New(&models.ViewPort{
		LatMin: 4.0,
		LonMin: 5.0,
		LatMax: 9.0,
		LonMax: 10.0,
	}, &models.Point{
		Lat: 6.5,
		Lon: 7.5,
	})

	points := []models.Point{
		{Lat: 5.3, Lon: 4.5},
		{Lat: 5.7, Lon: 4.1},
		{Lat: 7.3, Lon: 5.6},
		{Lat: 8.3, Lon: 7.5},
		{Lat: 8.1, Lon: 7.7},
		{Lat: 8.9, Lon: 7.9},
		{Lat: 9.1, Lon: 10.7},
		{Lat: 5.1, Lon: 3.7},
	}

	for _, p := range points {
		a.AddPoint(p.Lat, p.Lon)
	}

	total := int64(0)
	for _, r := range a.ToArray() {
		if r.Count < 1 {
			t.Errorf("Cluster %v has a non-positive count", r)
		}
		total += r.Count
	}
	if total != int64(len(points)) {
		t.Errorf("Clusters cover %d points, added %d", total, len(points))
	}
}

func TestAggregatorSinglePointKeepsLocation(t *testing.T) {
	a := New(&models.ViewPort{
		LatMin: 40.0,
		LonMin: 20.0,
		LatMax: 41.0,
		LonMax: 21.0,
	}, &models.Point{
		Lat: 40.5,
		Lon: 20.5,
	})

	a.AddPoint(40.42, 20.37)

	r := a.ToArray()
	if len(r) != 1 {
		t.Fatalf("Expected a single cluster, got %d", len(r))
	}
	// A cluster of one reports the original point, up to leaf-cell
	// precision.
	if math.Abs(r[0].Latitude-40.42) > 0.001 || math.Abs(r[0].Longitude-20.37) > 0.001 {
		t.Errorf("Single-point cluster at %f,%f moved away from 40.42,20.37", r[0].Latitude, r[0].Longitude)
	}
	if r[0].Count != 1 {
		t.Errorf("Single-point cluster has count %d", r[0].Count)
	}
}

func TestAggregatorMergesNearbyPoints(t *testing.T) {
	a := New(&models.ViewPort{
		LatMin: 30.0,
		LonMin: -10.0,
		LatMax: 50.0,
		LonMax: 30.0,
	}, &models.Point{
		Lat: 40.0,
		Lon: 10.0,
	})

	// Two points a few meters apart land in the same cell at any
	// aggregation level in range.
	a.AddPoint(40.00001, 10.00001)
	a.AddPoint(40.00002, 10.00002)

	r := a.ToArray()
	if len(r) != 1 {
		t.Fatalf("Expected nearby points to merge into one cluster, got %d", len(r))
	}
	if r[0].Count != 2 {
		t.Errorf("Merged cluster has count %d, want 2", r[0].Count)
	}
}
