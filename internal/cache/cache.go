// Package cache is an optional, disableable disk read-through decorator
// over an osmgw.Gateway (spec.md §4.2 DOMAIN STACK: "a cache may sit in
// front of the gateway provided it cannot change match outcomes, only
// latency"). It is grounded on the teacher's pkg/kv package: badger as
// the embedded store, kelindar/binary for encoding, DataDog/zstd for
// compression, and uber/h3-go for bucketing spatial lookups — the same
// four libraries, repointed from CH-edge records to OSM node/way/way-near
// records.
package cache

import (
	"context"
	"fmt"

	"github.com/DataDog/zstd"
	"github.com/dgraph-io/badger/v4"
	"github.com/kelindar/binary"
	"github.com/paulmach/osm"
	h3 "github.com/uber/h3-go/v4"

	"github.com/andi-rb/osmmatch/internal/osmgw"
)

// h3Resolution mirrors the teacher's choice (pkg/kv/kv_db.go uses
// resolution 9 for its nearest-street bucketing) — fine enough that a
// WaysNear search radius typically stays within one or two rings.
const h3Resolution = 9

// DiskCache wraps an osmgw.Gateway with a badger-backed read-through
// cache. A miss always falls through to inner and populates the cache;
// a cache failure never fails the call, it only forgoes caching for
// that request (spec.md: caching must not change match outcomes).
type DiskCache struct {
	inner osmgw.Gateway
	db    *badger.DB
}

func NewDiskCache(inner osmgw.Gateway, db *badger.DB) *DiskCache {
	return &DiskCache{inner: inner, db: db}
}

func (c *DiskCache) Close() error { return c.db.Close() }

type cachedNode struct {
	Lon, Lat float64
	Tags     osm.Tags
}

type cachedWay struct {
	Tags  osm.Tags
	Nodes []int64
}

func (c *DiskCache) Node(ctx context.Context, nodeID int64) (osmgw.NodeRecord, error) {
	key := nodeKey(nodeID)
	if raw, ok := c.get(key); ok {
		var cn cachedNode
		if err := decode(raw, &cn); err == nil {
			return osmgw.NodeRecord{NodeID: nodeID, Lon: cn.Lon, Lat: cn.Lat, Tags: cn.Tags}, nil
		}
	}

	rec, err := c.inner.Node(ctx, nodeID)
	if err != nil {
		return rec, err
	}
	c.set(key, cachedNode{Lon: rec.Lon, Lat: rec.Lat, Tags: rec.Tags})
	return rec, nil
}

func (c *DiskCache) NodeBatch(ctx context.Context, nodeIDs []int64) (map[int64]osmgw.NodeRecord, error) {
	out := make(map[int64]osmgw.NodeRecord, len(nodeIDs))
	var misses []int64

	for _, id := range nodeIDs {
		if raw, ok := c.get(nodeKey(id)); ok {
			var cn cachedNode
			if err := decode(raw, &cn); err == nil {
				out[id] = osmgw.NodeRecord{NodeID: id, Lon: cn.Lon, Lat: cn.Lat, Tags: cn.Tags}
				continue
			}
		}
		misses = append(misses, id)
	}
	if len(misses) == 0 {
		return out, nil
	}

	fetched, err := c.inner.NodeBatch(ctx, misses)
	if err != nil {
		return nil, err
	}
	for id, rec := range fetched {
		out[id] = rec
		c.set(nodeKey(id), cachedNode{Lon: rec.Lon, Lat: rec.Lat, Tags: rec.Tags})
	}
	return out, nil
}

func (c *DiskCache) WayNodes(ctx context.Context, wayID int64) (osmgw.WayRecord, error) {
	key := wayKey(wayID)
	if raw, ok := c.get(key); ok {
		var cw cachedWay
		if err := decode(raw, &cw); err == nil {
			return osmgw.WayRecord{WayID: wayID, Tags: cw.Tags, Nodes: cw.Nodes}, nil
		}
	}

	rec, err := c.inner.WayNodes(ctx, wayID)
	if err != nil {
		return rec, err
	}
	c.set(key, cachedWay{Tags: rec.Tags, Nodes: rec.Nodes})
	return rec, nil
}

func (c *DiskCache) WayNodesBatch(ctx context.Context, wayIDs []int64) (map[int64]osmgw.WayRecord, error) {
	out := make(map[int64]osmgw.WayRecord, len(wayIDs))
	var misses []int64

	for _, id := range wayIDs {
		if raw, ok := c.get(wayKey(id)); ok {
			var cw cachedWay
			if err := decode(raw, &cw); err == nil {
				out[id] = osmgw.WayRecord{WayID: id, Tags: cw.Tags, Nodes: cw.Nodes}
				continue
			}
		}
		misses = append(misses, id)
	}
	if len(misses) == 0 {
		return out, nil
	}

	fetched, err := c.inner.WayNodesBatch(ctx, misses)
	if err != nil {
		return nil, err
	}
	for id, rec := range fetched {
		out[id] = rec
		c.set(wayKey(id), cachedWay{Tags: rec.Tags, Nodes: rec.Nodes})
	}
	return out, nil
}

func (c *DiskCache) WaysAtNode(ctx context.Context, nodeID int64) ([]int64, error) {
	key := waysAtNodeKey(nodeID)
	if raw, ok := c.get(key); ok {
		var ids []int64
		if err := decode(raw, &ids); err == nil {
			return ids, nil
		}
	}

	ids, err := c.inner.WaysAtNode(ctx, nodeID)
	if err != nil {
		return nil, err
	}
	c.set(key, ids)
	return ids, nil
}

// WaysNear is cached by H3 cell at h3Resolution, the same ring-search
// pattern as the teacher's KVDB.GetNearestStreetsFromPointCoord: a miss
// on the exact cell falls through to inner (not to neighbouring cells —
// unlike the teacher, a miss here must be exact, since this cache must
// never change which ways a caller sees within radiusM).
func (c *DiskCache) WaysNear(ctx context.Context, lon, lat, radiusM float64) ([]int64, error) {
	cell := h3.LatLngToCell(h3.NewLatLng(lat, lon), h3Resolution)
	key := waysNearKey(cell, radiusM)

	if raw, ok := c.get(key); ok {
		var ids []int64
		if err := decode(raw, &ids); err == nil {
			return ids, nil
		}
	}

	ids, err := c.inner.WaysNear(ctx, lon, lat, radiusM)
	if err != nil {
		return nil, err
	}
	c.set(key, ids)
	return ids, nil
}

func (c *DiskCache) get(key []byte) ([]byte, bool) {
	var compressed []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		compressed, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, false
	}
	raw, err := zstd.Decompress(nil, compressed)
	if err != nil {
		return nil, false
	}
	return raw, true
}

func (c *DiskCache) set(key []byte, v any) {
	raw, err := binary.Marshal(v)
	if err != nil {
		return
	}
	compressed, err := zstd.Compress(nil, raw)
	if err != nil {
		return
	}
	_ = c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, compressed)
	})
}

func decode(raw []byte, v any) error {
	return binary.Unmarshal(raw, v)
}

func nodeKey(id int64) []byte         { return []byte(fmt.Sprintf("n:%d", id)) }
func wayKey(id int64) []byte          { return []byte(fmt.Sprintf("w:%d", id)) }
func waysAtNodeKey(id int64) []byte   { return []byte(fmt.Sprintf("wan:%d", id)) }
func waysNearKey(cell h3.Cell, radiusM float64) []byte {
	return []byte(fmt.Sprintf("wn:%s:%.0f", cell.String(), radiusM))
}
