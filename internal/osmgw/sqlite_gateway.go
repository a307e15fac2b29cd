// SQLiteGateway implements Gateway against a normalized rendering of
// the osm2pgsql schema (planet_osm_nodes / planet_osm_ways /
// planet_osm_line) described in spec.md §6 and
// original_source/pyosmroute/osm/planetdb.py. No PostGIS/pgx driver
// appears anywhere in the retrieved corpus, so this gateway is backed
// by modernc.org/sqlite (used the same way in other example repos'
// embedded-storage layers) with PostGIS's array and hstore columns
// normalized into child tables, and ST_DWithin's spatial index
// approximated by a precomputed bounding-box column filtered in Go
// (see projection.go).
package osmgw

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/paulmach/osm"
)

// Schema is the DDL a SQLiteGateway expects. Callers building a fresh
// database (e.g. in tests, or an import pipeline outside this engine's
// scope) can execute it directly.
const Schema = `
CREATE TABLE IF NOT EXISTS planet_osm_nodes (
	node_id INTEGER PRIMARY KEY,
	lon     REAL NOT NULL,
	lat     REAL NOT NULL
);
CREATE TABLE IF NOT EXISTS planet_osm_node_tags (
	node_id INTEGER NOT NULL,
	key     TEXT NOT NULL,
	value   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_node_tags_node ON planet_osm_node_tags(node_id);

CREATE TABLE IF NOT EXISTS planet_osm_ways (
	way_id INTEGER PRIMARY KEY
);
CREATE TABLE IF NOT EXISTS planet_osm_way_tags (
	way_id INTEGER NOT NULL,
	key    TEXT NOT NULL,
	value  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_way_tags_way ON planet_osm_way_tags(way_id);

CREATE TABLE IF NOT EXISTS planet_osm_way_nodes (
	way_id   INTEGER NOT NULL,
	position INTEGER NOT NULL,
	node_id  INTEGER NOT NULL,
	PRIMARY KEY (way_id, position)
);
CREATE INDEX IF NOT EXISTS idx_way_nodes_node ON planet_osm_way_nodes(node_id);

CREATE TABLE IF NOT EXISTS planet_osm_line (
	osm_id  INTEGER PRIMARY KEY,
	highway TEXT,
	min_x   REAL NOT NULL,
	min_y   REAL NOT NULL,
	max_x   REAL NOT NULL,
	max_y   REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_line_bbox ON planet_osm_line(min_x, max_x, min_y, max_y);
`

// excludedHighways mirrors the non-routable exclusion list in
// original_source/pyosmroute/osm/planetdb.py's nearest_ways query.
var excludedHighways = map[string]bool{
	"cycleway":  true,
	"footway":   true,
	"bridleway": true,
	"steps":     true,
	"path":      true,
}

// sqliteParamLimit keeps IN-clause batches under SQLite's default
// bound-parameter ceiling (999, conservatively rounded down here).
const sqliteParamLimit = 900

// SQLiteGateway is a Gateway backed by a single *sql.DB handle.
// Queries use database/sql's driver-level connection pool; it is safe
// for concurrent use by multiple match calls.
type SQLiteGateway struct {
	db *sql.DB
}

func NewSQLiteGateway(db *sql.DB) *SQLiteGateway {
	return &SQLiteGateway{db: db}
}

func (g *SQLiteGateway) WaysNear(ctx context.Context, lon, lat, radiusM float64) ([]int64, error) {
	minX, minY, maxX, maxY := metricBoundingBox(lon, lat, radiusM)

	rows, err := g.db.QueryContext(ctx, `
		SELECT osm_id, highway FROM planet_osm_line
		WHERE min_x <= ? AND max_x >= ? AND min_y <= ? AND max_y >= ?`,
		maxX, minX, maxY, minY)
	if err != nil {
		return nil, fmt.Errorf("%w: ways_near query: %v", ErrTransient, err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		var highway sql.NullString
		if err := rows.Scan(&id, &highway); err != nil {
			return nil, fmt.Errorf("%w: ways_near scan: %v", ErrTransient, err)
		}
		if highway.Valid && excludedHighways[highway.String] {
			continue
		}
		if !highway.Valid || highway.String == "" {
			continue
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: ways_near rows: %v", ErrTransient, err)
	}
	return ids, nil
}

func (g *SQLiteGateway) WayNodes(ctx context.Context, wayID int64) (WayRecord, error) {
	recs, err := g.WayNodesBatch(ctx, []int64{wayID})
	if err != nil {
		return WayRecord{}, err
	}
	rec, ok := recs[wayID]
	if !ok {
		return WayRecord{}, fmt.Errorf("%w: way %d not found", ErrInternal, wayID)
	}
	return rec, nil
}

func (g *SQLiteGateway) WayNodesBatch(ctx context.Context, wayIDs []int64) (map[int64]WayRecord, error) {
	out := make(map[int64]WayRecord, len(wayIDs))
	for _, id := range dedupeInt64(wayIDs) {
		out[id] = WayRecord{WayID: id}
	}

	for _, chunk := range chunkInt64(dedupeInt64(wayIDs), sqliteParamLimit) {
		if len(chunk) == 0 {
			continue
		}
		placeholders, args := inClause(chunk)

		nodeRows, err := g.db.QueryContext(ctx, fmt.Sprintf(
			`SELECT way_id, node_id FROM planet_osm_way_nodes WHERE way_id IN (%s) ORDER BY way_id, position`,
			placeholders), args...)
		if err != nil {
			return nil, fmt.Errorf("%w: way_nodes query: %v", ErrTransient, err)
		}
		err = func() error {
			defer nodeRows.Close()
			for nodeRows.Next() {
				var wayID, nodeID int64
				if err := nodeRows.Scan(&wayID, &nodeID); err != nil {
					return fmt.Errorf("%w: way_nodes scan: %v", ErrTransient, err)
				}
				rec := out[wayID]
				rec.Nodes = append(rec.Nodes, nodeID)
				out[wayID] = rec
			}
			return nodeRows.Err()
		}()
		if err != nil {
			return nil, err
		}

		tagRows, err := g.db.QueryContext(ctx, fmt.Sprintf(
			`SELECT way_id, key, value FROM planet_osm_way_tags WHERE way_id IN (%s)`,
			placeholders), args...)
		if err != nil {
			return nil, fmt.Errorf("%w: way_tags query: %v", ErrTransient, err)
		}
		err = func() error {
			defer tagRows.Close()
			for tagRows.Next() {
				var wayID int64
				var key, value string
				if err := tagRows.Scan(&wayID, &key, &value); err != nil {
					return fmt.Errorf("%w: way_tags scan: %v", ErrTransient, err)
				}
				rec := out[wayID]
				rec.Tags = append(rec.Tags, osm.Tag{Key: key, Value: value})
				out[wayID] = rec
			}
			return tagRows.Err()
		}()
		if err != nil {
			return nil, err
		}
	}

	for id, rec := range out {
		if len(rec.Nodes) == 0 {
			return nil, fmt.Errorf("%w: way %d has no nodes", ErrInternal, id)
		}
	}
	return out, nil
}

func (g *SQLiteGateway) Node(ctx context.Context, nodeID int64) (NodeRecord, error) {
	recs, err := g.NodeBatch(ctx, []int64{nodeID})
	if err != nil {
		return NodeRecord{}, err
	}
	rec, ok := recs[nodeID]
	if !ok {
		return NodeRecord{}, fmt.Errorf("%w: node %d not found", ErrInternal, nodeID)
	}
	return rec, nil
}

func (g *SQLiteGateway) NodeBatch(ctx context.Context, nodeIDs []int64) (map[int64]NodeRecord, error) {
	out := make(map[int64]NodeRecord)

	for _, chunk := range chunkInt64(dedupeInt64(nodeIDs), sqliteParamLimit) {
		if len(chunk) == 0 {
			continue
		}
		placeholders, args := inClause(chunk)

		rows, err := g.db.QueryContext(ctx, fmt.Sprintf(
			`SELECT node_id, lon, lat FROM planet_osm_nodes WHERE node_id IN (%s)`,
			placeholders), args...)
		if err != nil {
			return nil, fmt.Errorf("%w: nodes query: %v", ErrTransient, err)
		}
		err = func() error {
			defer rows.Close()
			for rows.Next() {
				var rec NodeRecord
				if err := rows.Scan(&rec.NodeID, &rec.Lon, &rec.Lat); err != nil {
					return fmt.Errorf("%w: nodes scan: %v", ErrTransient, err)
				}
				out[rec.NodeID] = rec
			}
			return rows.Err()
		}()
		if err != nil {
			return nil, err
		}

		tagRows, err := g.db.QueryContext(ctx, fmt.Sprintf(
			`SELECT node_id, key, value FROM planet_osm_node_tags WHERE node_id IN (%s)`,
			placeholders), args...)
		if err != nil {
			return nil, fmt.Errorf("%w: node_tags query: %v", ErrTransient, err)
		}
		err = func() error {
			defer tagRows.Close()
			for tagRows.Next() {
				var nodeID int64
				var key, value string
				if err := tagRows.Scan(&nodeID, &key, &value); err != nil {
					return fmt.Errorf("%w: node_tags scan: %v", ErrTransient, err)
				}
				rec := out[nodeID]
				rec.Tags = append(rec.Tags, osm.Tag{Key: key, Value: value})
				out[nodeID] = rec
			}
			return tagRows.Err()
		}()
		if err != nil {
			return nil, err
		}
	}

	for _, id := range dedupeInt64(nodeIDs) {
		if _, ok := out[id]; !ok {
			return nil, fmt.Errorf("%w: node %d not found", ErrInternal, id)
		}
	}
	return out, nil
}

func (g *SQLiteGateway) WaysAtNode(ctx context.Context, nodeID int64) ([]int64, error) {
	rows, err := g.db.QueryContext(ctx,
		`SELECT DISTINCT way_id FROM planet_osm_way_nodes WHERE node_id = ?`, nodeID)
	if err != nil {
		return nil, fmt.Errorf("%w: ways_at_node query: %v", ErrTransient, err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("%w: ways_at_node scan: %v", ErrTransient, err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func dedupeInt64(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func chunkInt64(ids []int64, size int) [][]int64 {
	if len(ids) == 0 {
		return nil
	}
	var chunks [][]int64
	for i := 0; i < len(ids); i += size {
		end := i + size
		if end > len(ids) {
			end = len(ids)
		}
		chunks = append(chunks, ids[i:end])
	}
	return chunks
}

func inClause(ids []int64) (string, []any) {
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	return strings.Join(placeholders, ","), args
}
