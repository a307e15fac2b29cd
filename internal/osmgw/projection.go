package osmgw

import "math"

// earthRadiusWebMercator is the sphere radius EPSG:3857 (Web Mercator,
// OSM's "900913" projection) is defined against. osm2pgsql stores
// planet_osm_line/planet_osm_nodes geometry in this projection; the
// original gateway called out to PostGIS's ST_Transform for every
// lookup (original_source/pyosmroute/dbinterface.py: GenericDB.project/
// unproject). Doing the same transform in Go lets WaysNear prefilter
// by a projected bounding box without a round trip per candidate.
const earthRadiusWebMercator = 6378137.0

// project converts WGS84 degrees to EPSG:3857 meters.
func project(lon, lat float64) (x, y float64) {
	x = earthRadiusWebMercator * lon * math.Pi / 180
	clampedLat := math.Min(89.5, math.Max(-89.5, lat))
	y = earthRadiusWebMercator * math.Log(math.Tan(math.Pi/4+clampedLat*math.Pi/360))
	return x, y
}

// unproject converts EPSG:3857 meters back to WGS84 degrees.
func unproject(x, y float64) (lon, lat float64) {
	lon = x / earthRadiusWebMercator * 180 / math.Pi
	lat = (2*math.Atan(math.Exp(y/earthRadiusWebMercator)) - math.Pi/2) * 180 / math.Pi
	return lon, lat
}

// metricBoundingBox returns a projected-meter box of half-width radiusM
// around (lon, lat), used to prefilter way_bbox rows before the exact
// great-circle distance check (spec.md §4.2: "approximate index lookup
// followed by exact geometric confirmation").
func metricBoundingBox(lon, lat, radiusM float64) (minX, minY, maxX, maxY float64) {
	x, y := project(lon, lat)
	return x - radiusM, y - radiusM, x + radiusM, y + radiusM
}
