package locator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeKnownLocations(t *testing.T) {
	tests := []struct {
		name string
		lat  float64
		lon  float64
		want string
	}{
		{"ARRL HQ Newington", 41.7148, -72.7272, "FN31pr"},
		{"Munich", 48.1374, 11.5755, "JN58sd"},
		{"Sydney", -33.8688, 151.2093, "QF56od"},
		{"Tokyo", 35.6762, 139.6503, "PM95tq"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Encode(tt.lat, tt.lon, 6)
			require.NoError(t, err)
			// Case-insensitive comparison: subsquares conventionally lowercase
			assert.Equal(t, normalize(tt.want), normalize(got))
		})
	}
}

func normalize(g string) string {
	out := []byte(g)
	for i := range out {
		if out[i] >= 'a' && out[i] <= 'z' {
			out[i] -= 32
		}
	}
	return string(out)
}

func TestDecodeReturnsSquareCenter(t *testing.T) {
	lat, lon, err := Decode("FN31")
	require.NoError(t, err)
	// FN31 spans lat 41..42, lon -74..-72; center is 41.5, -73
	assert.InDelta(t, 41.5, lat, 1e-9)
	assert.InDelta(t, -73.0, lon, 1e-9)
}

func TestDecodeCaseInsensitive(t *testing.T) {
	lat1, lon1, err := Decode("fn31pr")
	require.NoError(t, err)
	lat2, lon2, err := Decode("FN31PR")
	require.NoError(t, err)
	assert.Equal(t, lat1, lat2)
	assert.Equal(t, lon1, lon2)
}

func TestDecodeRejectsInvalid(t *testing.T) {
	for _, grid := range []string{"", "F", "ZZ99", "FN3", "FN31ZZ", "12AB", "FN31p!"} {
		_, _, err := Decode(grid)
		assert.Error(t, err, "grid %q should be invalid", grid)
	}
}

func TestEncodeRejectsOutOfRange(t *testing.T) {
	_, err := Encode(91, 0, 6)
	assert.Error(t, err)
	_, err = Encode(0, 181, 6)
	assert.Error(t, err)
	_, err = Encode(0, 0, 5)
	assert.Error(t, err)
}

func TestRoundTripWithinHalfSquare(t *testing.T) {
	// A 6-char subsquare is 5' lon x 2.5' lat; decode(encode(p)) must stay
	// within half of that in each axis.
	points := []struct{ lat, lon float64 }{
		{41.7148, -72.7272},
		{-33.8688, 151.2093},
		{0.001, 0.001},
		{-0.001, -0.001},
		{89.9, 179.9},
		{-89.9, -179.9},
	}

	const halfLat = (1.0 / 24) / 2
	const halfLon = (2.0 / 24) / 2

	for _, p := range points {
		grid, err := Encode(p.lat, p.lon, 6)
		require.NoError(t, err)
		lat, lon, err := Decode(grid)
		require.NoError(t, err)
		assert.InDelta(t, p.lat, lat, halfLat+1e-9, "lat for %s", grid)
		assert.InDelta(t, p.lon, lon, halfLon+1e-9, "lon for %s", grid)
	}
}

func TestGridRoundTripStable(t *testing.T) {
	// Encoding the center of a decoded locator must reproduce the locator
	for _, grid := range []string{"FN31PR", "JN58TD", "QF56OD", "AA00AA", "RR99XX"} {
		lat, lon, err := Decode(grid)
		require.NoError(t, err)
		got, err := Encode(lat, lon, 6)
		require.NoError(t, err)
		assert.Equal(t, grid, normalize(got))
	}
}

func TestDistance(t *testing.T) {
	// Newington CT to Munich is roughly 6300 km
	km, err := Distance("FN31PR", "JN58TD")
	require.NoError(t, err)
	assert.InDelta(t, 6300, km, 100)

	// Same locator distances to zero
	km, err = Distance("FN31PR", "FN31PR")
	require.NoError(t, err)
	assert.Equal(t, 0.0, km)
}

func TestBearing(t *testing.T) {
	// Due-east neighbor across a small step
	brg, err := Bearing("JN58TD", "JN58UD")
	require.NoError(t, err)
	assert.InDelta(t, 90, brg, 5)

	// Transatlantic path from New England toward Europe heads northeast
	brg, err = Bearing("FN31PR", "JN58TD")
	require.NoError(t, err)
	assert.Greater(t, brg, 30.0)
	assert.Less(t, brg, 90.0)
}
