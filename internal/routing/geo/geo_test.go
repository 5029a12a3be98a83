package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHaversineSymmetricAndZero(t *testing.T) {
	a := Point{Lat: 12.9716, Lng: 77.5946}
	b := Point{Lat: 13.0827, Lng: 80.2707}

	ab := HaversineMeters(a, b)
	ba := HaversineMeters(b, a)

	assert.InDelta(t, ab, ba, 1e-6)
	assert.GreaterOrEqual(t, ab, 0.0)
	assert.InDelta(t, 0.0, HaversineMeters(a, a), 1e-9)
}

func TestHaversineKnownDistance(t *testing.T) {
	// Bangalore to Chennai is roughly 290km by air.
	blr := Point{Lat: 12.9716, Lng: 77.5946}
	chn := Point{Lat: 13.0827, Lng: 80.2707}

	km := HaversineKm(blr, chn)
	assert.InDelta(t, 290, km, 20)
}

func TestPolylineRoundTrip(t *testing.T) {
	points := []Point{
		{Lat: 12.9716, Lng: 77.5946},
		{Lat: 12.9800, Lng: 77.6100},
		{Lat: 13.0000, Lng: 77.6300},
	}

	encoded := EncodePolyline(points)
	decoded := DecodePolyline(encoded)

	require.Len(t, decoded, len(points))
	for i := range points {
		assert.InDelta(t, points[i].Lat, decoded[i].Lat, 1e-5)
		assert.InDelta(t, points[i].Lng, decoded[i].Lng, 1e-5)
	}

	reEncoded := EncodePolyline(decoded)
	assert.Equal(t, encoded, reEncoded)
}

func TestPolylineEmpty(t *testing.T) {
	assert.Equal(t, "", EncodePolyline(nil))
	assert.Nil(t, DecodePolyline(""))
}

func TestIsPointInPolygonSquare(t *testing.T) {
	square := []Point{
		{Lat: 0, Lng: 0},
		{Lat: 0, Lng: 10},
		{Lat: 10, Lng: 10},
		{Lat: 10, Lng: 0},
	}

	assert.True(t, IsPointInPolygon(Point{Lat: 5, Lng: 5}, square))
	assert.False(t, IsPointInPolygon(Point{Lat: 15, Lng: 5}, square))
}

func TestIsPointInPolygonRotationInvariant(t *testing.T) {
	square := []Point{
		{Lat: 0, Lng: 0},
		{Lat: 0, Lng: 10},
		{Lat: 10, Lng: 10},
		{Lat: 10, Lng: 0},
	}
	rotated := append(append([]Point{}, square[2:]...), square[:2]...)

	p := Point{Lat: 5, Lng: 5}
	assert.Equal(t, IsPointInPolygon(p, square), IsPointInPolygon(p, rotated))

	outside := Point{Lat: 100, Lng: 100}
	assert.Equal(t, IsPointInPolygon(outside, square), IsPointInPolygon(outside, rotated))
}

func TestIsPointInPolygonDegenerate(t *testing.T) {
	assert.False(t, IsPointInPolygon(Point{}, nil))
	assert.False(t, IsPointInPolygon(Point{}, []Point{{Lat: 0, Lng: 0}, {Lat: 1, Lng: 1}}))
}

func TestHaversineAntimeridianDoesNotPanic(t *testing.T) {
	a := Point{Lat: 10, Lng: 179.9}
	b := Point{Lat: 10, Lng: -179.9}
	d := HaversineMeters(a, b)
	assert.False(t, math.IsNaN(d))
}
