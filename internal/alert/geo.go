package alert

import "math"

const earthRadiusKm = 6371.0

type GeoLocation struct {
	City      string  `json:"city,omitempty"`
	Country   string  `json:"country,omitempty"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// DistanceKm is the great-circle (haversine) distance between two points.
func DistanceKm(a, b GeoLocation) float64 {
	lat1 := toRadians(a.Latitude)
	lat2 := toRadians(b.Latitude)
	dLat := lat2 - lat1
	dLon := toRadians(b.Longitude - a.Longitude)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Min(1, math.Sqrt(h)))
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

func (g *GeoLocation) label() string {
	switch {
	case g == nil:
		return ""
	case g.City != "" && g.Country != "":
		return g.City + ", " + g.Country
	case g.Country != "":
		return g.Country
	default:
		return g.City
	}
}

func (g *GeoLocation) toMap() interface{} {
	if g == nil {
		return nil
	}
	return map[string]interface{}{
		"city":      g.City,
		"country":   g.Country,
		"latitude":  g.Latitude,
		"longitude": g.Longitude,
	}
}
