package geo

import "math"

const earthRadiusKm = 6371.0

// Distance returns the great-circle distance in kilometers between two
// coordinates, using the haversine formula.
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	dlat := radians(lat2 - lat1)
	dlon := radians(lon2 - lon1)

	a := math.Pow(math.Sin(dlat/2), 2) +
		math.Cos(radians(lat1))*math.Cos(radians(lat2))*math.Pow(math.Sin(dlon/2), 2)
	c := 2 * math.Asin(math.Sqrt(a))

	return earthRadiusKm * c
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
