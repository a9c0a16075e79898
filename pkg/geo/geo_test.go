package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/unihall/attendance-api/pkg/errors"
)

func TestDistanceKnownValues(t *testing.T) {
	// One degree of longitude at the equator is roughly 111.2 km.
	d, err := Distance(Point{Lat: 0, Lon: 0}, Point{Lat: 0, Lon: 1})
	require.NoError(t, err)
	assert.InDelta(t, 111195, d, 200)

	d, err = Distance(Point{Lat: 0, Lon: 0}, Point{Lat: 0, Lon: 0.0003})
	require.NoError(t, err)
	assert.InDelta(t, 33.4, d, 0.5)
}

func TestDistanceZero(t *testing.T) {
	d, err := Distance(Point{Lat: 5.6037, Lon: -0.187}, Point{Lat: 5.6037, Lon: -0.187})
	require.NoError(t, err)
	assert.Zero(t, d)
}

func TestDistanceSymmetric(t *testing.T) {
	a := Point{Lat: 5.6037, Lon: -0.187}
	b := Point{Lat: 5.6030, Lon: -0.186}
	ab, err := Distance(a, b)
	require.NoError(t, err)
	ba, err := Distance(b, a)
	require.NoError(t, err)
	assert.InDelta(t, ab, ba, 1e-9)
}

func TestDistanceInvalidCoordinates(t *testing.T) {
	cases := []struct {
		name string
		a, b Point
	}{
		{"lat too high", Point{Lat: 91, Lon: 0}, Point{}},
		{"lat too low", Point{Lat: -90.5, Lon: 0}, Point{}},
		{"lon too high", Point{}, Point{Lat: 0, Lon: 180.1}},
		{"lon too low", Point{}, Point{Lat: 0, Lon: -181}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Distance(tc.a, tc.b)
			assert.ErrorIs(t, err, appErrors.ErrInvalidCoordinate)
		})
	}
}

func TestWithinRadius(t *testing.T) {
	anchor := Point{Lat: 0, Lon: 0}

	ok, err := WithinRadius(anchor, Point{Lat: 0, Lon: 0.0003}, 50)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = WithinRadius(anchor, Point{Lat: 0, Lon: 0.001}, 50)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWithinRadiusMonotonicInRadius(t *testing.T) {
	anchor := Point{Lat: 0, Lon: 0}
	point := Point{Lat: 0, Lon: 0.0006}

	inner, err := WithinRadius(anchor, point, 30)
	require.NoError(t, err)
	outer, err := WithinRadius(anchor, point, 100)
	require.NoError(t, err)

	assert.False(t, inner)
	assert.True(t, outer)
	// Growing the radius never flips a hit into a miss.
	for radius := 100.0; radius <= 1000; radius += 100 {
		ok, err := WithinRadius(anchor, point, radius)
		require.NoError(t, err)
		assert.True(t, ok)
	}
}
