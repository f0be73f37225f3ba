// Package locator implements Maidenhead grid locator conversion and
// great-circle distance/bearing between locators.
package locator

import (
	"fmt"
	"math"
	"strings"

	"github.com/fullduplex/carrierwave/pkg/utils"
)

const earthRadiusKm = 6371.0

// Encode converts latitude/longitude to a Maidenhead locator.
// Precision is the locator length: 4, 6 or 8 characters.
func Encode(lat, lon float64, precision int) (string, error) {
	if precision != 4 && precision != 6 && precision != 8 {
		return "", utils.NewAppError(utils.ErrCodeValidation, "Locator precision must be 4, 6 or 8", fmt.Sprintf("got %d", precision))
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return "", utils.NewAppError(utils.ErrCodeValidation, "Coordinates out of range", fmt.Sprintf("lat=%f lon=%f", lat, lon))
	}

	// Shift to positive ranges: longitude 0..360, latitude 0..180
	adjLon := lon + 180
	adjLat := lat + 90

	// The north pole and the antimeridian fall just outside the last square
	if adjLon >= 360 {
		adjLon = math.Nextafter(360, 0)
	}
	if adjLat >= 180 {
		adjLat = math.Nextafter(180, 0)
	}

	var b strings.Builder

	// Field: 20 deg lon x 10 deg lat
	b.WriteByte(byte('A' + int(adjLon/20)))
	b.WriteByte(byte('A' + int(adjLat/10)))
	lonRem := math.Mod(adjLon, 20)
	latRem := math.Mod(adjLat, 10)

	// Square: 2 deg x 1 deg
	b.WriteByte(byte('0' + int(lonRem/2)))
	b.WriteByte(byte('0' + int(latRem/1)))
	lonRem = math.Mod(lonRem, 2)
	latRem = math.Mod(latRem, 1)

	if precision >= 6 {
		// Subsquare: 5 min lon x 2.5 min lat
		b.WriteByte(byte('A' + int(lonRem/(2.0/24))))
		b.WriteByte(byte('A' + int(latRem/(1.0/24))))
		lonRem = math.Mod(lonRem, 2.0/24)
		latRem = math.Mod(latRem, 1.0/24)
	}

	if precision >= 8 {
		// Extended square
		b.WriteByte(byte('0' + int(lonRem/(2.0/240))))
		b.WriteByte(byte('0' + int(latRem/(1.0/240))))
	}

	return b.String(), nil
}

// Decode converts a Maidenhead locator to the latitude/longitude of the
// center of the designated square. Accepts 2, 4, 6 or 8 characters in
// either case.
func Decode(grid string) (lat, lon float64, err error) {
	grid = strings.ToUpper(strings.TrimSpace(grid))

	n := len(grid)
	if n != 2 && n != 4 && n != 6 && n != 8 {
		return 0, 0, utils.NewAppError(utils.ErrCodeValidation, "Locator length must be 2, 4, 6 or 8", grid)
	}

	if grid[0] < 'A' || grid[0] > 'R' || grid[1] < 'A' || grid[1] > 'R' {
		return 0, 0, utils.NewAppError(utils.ErrCodeValidation, "Invalid locator field", grid)
	}

	lon = float64(grid[0]-'A')*20 - 180
	lat = float64(grid[1]-'A')*10 - 90
	lonSize, latSize := 20.0, 10.0

	if n >= 4 {
		if grid[2] < '0' || grid[2] > '9' || grid[3] < '0' || grid[3] > '9' {
			return 0, 0, utils.NewAppError(utils.ErrCodeValidation, "Invalid locator square", grid)
		}
		lon += float64(grid[2]-'0') * 2
		lat += float64(grid[3] - '0')
		lonSize, latSize = 2, 1
	}

	if n >= 6 {
		if grid[4] < 'A' || grid[4] > 'X' || grid[5] < 'A' || grid[5] > 'X' {
			return 0, 0, utils.NewAppError(utils.ErrCodeValidation, "Invalid locator subsquare", grid)
		}
		lon += float64(grid[4]-'A') * (2.0 / 24)
		lat += float64(grid[5]-'A') * (1.0 / 24)
		lonSize, latSize = 2.0/24, 1.0/24
	}

	if n >= 8 {
		if grid[6] < '0' || grid[6] > '9' || grid[7] < '0' || grid[7] > '9' {
			return 0, 0, utils.NewAppError(utils.ErrCodeValidation, "Invalid extended square", grid)
		}
		lon += float64(grid[6]-'0') * (2.0 / 240)
		lat += float64(grid[7]-'0') * (1.0 / 240)
		lonSize, latSize = 2.0/240, 1.0/240
	}

	// Center of the square
	lon += lonSize / 2
	lat += latSize / 2

	return lat, lon, nil
}

// IsValid reports whether a string is a well-formed locator
func IsValid(grid string) bool {
	_, _, err := Decode(grid)
	return err == nil
}

// Distance returns the great-circle distance in kilometers between the
// centers of two locators.
func Distance(a, b string) (float64, error) {
	lat1, lon1, err := Decode(a)
	if err != nil {
		return 0, err
	}
	lat2, lon2, err := Decode(b)
	if err != nil {
		return 0, err
	}

	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lon2 - lon1) * math.Pi / 180

	h := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)

	return 2 * earthRadiusKm * math.Asin(math.Sqrt(h)), nil
}

// Bearing returns the initial great-circle bearing in degrees (0..360)
// from locator a toward locator b.
func Bearing(a, b string) (float64, error) {
	lat1, lon1, err := Decode(a)
	if err != nil {
		return 0, err
	}
	lat2, lon2, err := Decode(b)
	if err != nil {
		return 0, err
	}

	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dLambda := (lon2 - lon1) * math.Pi / 180

	y := math.Sin(dLambda) * math.Cos(phi2)
	x := math.Cos(phi1)*math.Sin(phi2) - math.Sin(phi1)*math.Cos(phi2)*math.Cos(dLambda)

	deg := math.Atan2(y, x) * 180 / math.Pi
	return math.Mod(deg+360, 360), nil
}
