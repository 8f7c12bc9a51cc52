package oblique

import (
	"strconv"
	"strings"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
)

// Projection converts image-native coordinates to and from WGS84.
type Projection interface {
	// Code is the identifier the projection is registered under.
	Code() string
	ToWGS84(p orb.Point) orb.Point
	FromWGS84(p orb.Point) orb.Point
}

// ToWorld converts an image-native point into world (Web Mercator) space.
func ToWorld(proj Projection, p orb.Point) orb.Point {
	if _, ok := proj.(mercatorProjection); ok {
		return p
	}
	return project.WGS84.ToMercator(proj.ToWGS84(p))
}

// FromWorld converts a world (Web Mercator) point into image-native space.
func FromWorld(proj Projection, p orb.Point) orb.Point {
	if _, ok := proj.(mercatorProjection); ok {
		return p
	}
	return proj.FromWGS84(project.Mercator.ToWGS84(p))
}

type mercatorProjection struct{ code string }

func (m mercatorProjection) Code() string                  { return m.code }
func (mercatorProjection) ToWGS84(p orb.Point) orb.Point   { return project.Mercator.ToWGS84(p) }
func (mercatorProjection) FromWGS84(p orb.Point) orb.Point { return project.WGS84.ToMercator(p) }

type wgs84Projection struct{ code string }

func (w wgs84Projection) Code() string                  { return w.code }
func (wgs84Projection) ToWGS84(p orb.Point) orb.Point   { return p }
func (wgs84Projection) FromWGS84(p orb.Point) orb.Point { return p }

// Mercator is EPSG:3857, the world projection.
var Mercator Projection = mercatorProjection{code: "EPSG:3857"}

// WGS84 is EPSG:4326 with longitude first.
var WGS84 Projection = wgs84Projection{code: "EPSG:4326"}

// ProjectionRegistry resolves CRS identifiers and proj4 definitions.
//
// Definitions without an EPSG code are registered under identifiers that are
// unique within the registry ("adhoc:1", "adhoc:2", ...). Each Collection owns
// its own registry so identifiers never leak between collections.
type ProjectionRegistry struct {
	mu      sync.RWMutex
	byCode  map[string]Projection
	byDef   map[string]Projection
	counter int
}

// NewProjectionRegistry creates a registry knowing EPSG:3857, EPSG:900913
// and EPSG:4326. UTM codes are built on first use.
func NewProjectionRegistry() *ProjectionRegistry {
	r := &ProjectionRegistry{
		byCode: make(map[string]Projection),
		byDef:  make(map[string]Projection),
	}
	r.byCode["EPSG:3857"] = Mercator
	r.byCode["EPSG:900913"] = mercatorProjection{code: "EPSG:900913"}
	r.byCode["EPSG:4326"] = WGS84
	return r
}

// Get returns the projection registered under code.
//
// EPSG:326xx, EPSG:327xx (WGS84 UTM north/south) and EPSG:258xx (ETRS89 UTM)
// are created on demand.
func (r *ProjectionRegistry) Get(code string) (Projection, error) {
	code = normalizeCode(code)

	r.mu.RLock()
	p, ok := r.byCode[code]
	r.mu.RUnlock()
	if ok {
		return p, nil
	}

	p, err := utmFromCode(code)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.byCode[code]; ok {
		return existing, nil
	}
	r.byCode[code] = p
	return p, nil
}

// Resolve accepts either a CRS code or a proj4 definition.
func (r *ProjectionRegistry) Resolve(crs string) (Projection, error) {
	crs = strings.TrimSpace(crs)
	if strings.HasPrefix(crs, "+") {
		return r.Register(crs)
	}
	return r.Get(crs)
}

// Register builds a projection from a proj4 definition and assigns it a
// registry-scoped identifier. Registering the same definition twice returns
// the same projection.
//
// Supported: +proj=utm (+zone, +south), +proj=merc and +proj=longlat.
func (r *ProjectionRegistry) Register(def string) (Projection, error) {
	key := strings.Join(strings.Fields(def), " ")

	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.byDef[key]; ok {
		return p, nil
	}

	params := parseProj4(key)
	code := "adhoc:" + strconv.Itoa(r.counter+1)

	var p Projection
	switch params["proj"] {
	case "utm":
		zone, err := strconv.Atoi(params["zone"])
		if err != nil || zone < 1 || zone > 60 {
			return nil, &ErrUnknownProjection{Code: def}
		}
		_, south := params["south"]
		p = newUTMProjection(code, zone, south, false)
	case "merc":
		p = mercatorProjection{code: code}
	case "longlat", "latlong", "lonlat":
		p = wgs84Projection{code: code}
	default:
		return nil, &ErrUnknownProjection{Code: def}
	}

	r.counter++
	r.byDef[key] = p
	r.byCode[code] = p
	return p, nil
}

func parseProj4(def string) map[string]string {
	params := make(map[string]string)
	for _, field := range strings.Fields(def) {
		field = strings.TrimPrefix(field, "+")
		if k, v, ok := strings.Cut(field, "="); ok {
			params[k] = v
		} else {
			params[field] = ""
		}
	}
	return params
}

// normalizeCode maps "urn:ogc:def:crs:EPSG::25832", "epsg:25832" and
// "25832" to "EPSG:25832".
func normalizeCode(code string) string {
	code = strings.TrimSpace(code)
	if i := strings.LastIndex(code, ":"); i >= 0 && strings.Contains(strings.ToUpper(code), "EPSG") {
		return "EPSG:" + code[i+1:]
	}
	if _, err := strconv.Atoi(code); err == nil {
		return "EPSG:" + code
	}
	return code
}

func utmFromCode(code string) (Projection, error) {
	num, err := strconv.Atoi(strings.TrimPrefix(code, "EPSG:"))
	if err != nil {
		return nil, &ErrUnknownProjection{Code: code}
	}
	switch {
	case num >= 32601 && num <= 32660:
		return newUTMProjection(code, num-32600, false, false), nil
	case num >= 32701 && num <= 32760:
		return newUTMProjection(code, num-32700, true, false), nil
	case num >= 25828 && num <= 25838:
		return newUTMProjection(code, num-25800, false, true), nil
	}
	return nil, &ErrUnknownProjection{Code: code}
}
