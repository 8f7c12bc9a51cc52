package oblique

import (
	"github.com/paulmach/orb"
	"github.com/wroge/wgs84"
)

type utmProjection struct {
	code    string
	zone    int
	south   bool
	forward wgs84.Func
	inverse wgs84.Func
}

// newUTMProjection builds a WGS84 UTM zone, or an ETRS89 zone when etrs89
// is set. ETRS89 is always northern.
func newUTMProjection(code string, zone int, south, etrs89 bool) *utmProjection {
	crs := wgs84.UTM(float64(zone), !south)
	if etrs89 {
		crs = wgs84.ETRS89UTM(float64(zone))
	}
	return &utmProjection{
		code:    code,
		zone:    zone,
		south:   south,
		forward: wgs84.LonLat().To(crs),
		inverse: crs.To(wgs84.LonLat()),
	}
}

func (u *utmProjection) Code() string { return u.code }

// FromWGS84 projects lon/lat degrees to easting/northing.
func (u *utmProjection) FromWGS84(p orb.Point) orb.Point {
	x, y, _ := u.forward(p[0], p[1], 0)
	return orb.Point{x, y}
}

// ToWGS84 unprojects easting/northing to lon/lat degrees.
func (u *utmProjection) ToWGS84(p orb.Point) orb.Point {
	lon, lat, _ := u.inverse(p[0], p[1], 0)
	return orb.Point{lon, lat}
}
