// Package space provides the spatial index used for electrode targeting.
// Units are inserted once and never removed; queries are Euclidean in 3D.
package space

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"neuroplate/internal/model"
)

var ErrDuplicateUnit = errors.New("unit already indexed")

// Index is a uniform hash grid. Cell size is fixed at construction and
// should be on the order of the typical query radius; radius queries visit
// only the cells overlapping the query sphere. With a degenerate cell size
// relative to the data spread this decays to a linear scan of all occupied
// cells, which is still correct and acceptable at organoid scale (hundreds
// to low thousands of units).
type Index struct {
	cellSize float64
	cells    map[cellKey][]entry
	count    int
	ids      map[model.UnitID]struct{}
}

type cellKey struct {
	x, y, z int
}

type entry struct {
	id  model.UnitID
	pos model.Vec3
}

func NewIndex(cellSize float64) *Index {
	if cellSize <= 0 {
		cellSize = 1
	}
	return &Index{
		cellSize: cellSize,
		cells:    make(map[cellKey][]entry),
		ids:      make(map[model.UnitID]struct{}),
	}
}

func (ix *Index) Len() int {
	return ix.count
}

func (ix *Index) Insert(id model.UnitID, pos model.Vec3) error {
	if _, exists := ix.ids[id]; exists {
		return fmt.Errorf("%w: %d", ErrDuplicateUnit, id)
	}
	key := ix.keyFor(pos)
	ix.cells[key] = append(ix.cells[key], entry{id: id, pos: pos})
	ix.ids[id] = struct{}{}
	ix.count++
	return nil
}

// QueryRadius returns every indexed unit whose distance from p is <= radius,
// ordered by ascending distance, ties broken by ascending identity. The
// boundary is inclusive.
func (ix *Index) QueryRadius(p model.Vec3, radius float64) []model.UnitID {
	if radius < 0 {
		return nil
	}
	rsq := radius * radius
	var hits []entryDist
	ix.visitCells(p, radius, func(e entry) {
		if d := e.pos.DistSq(p); d <= rsq {
			hits = append(hits, entryDist{e, d})
		}
	})
	sortByDistance(hits)
	out := make([]model.UnitID, len(hits))
	for i, h := range hits {
		out[i] = h.id
	}
	return out
}

// QueryKNN returns up to k unit identities by ascending distance from p,
// ties broken by ascending identity.
func (ix *Index) QueryKNN(p model.Vec3, k int) []model.UnitID {
	if k <= 0 || ix.count == 0 {
		return nil
	}
	// Grow the search radius in cell-size rings until enough candidates are
	// found, then widen once more so a nearer unit in an unvisited cell
	// cannot be missed.
	radius := ix.cellSize
	for {
		var hits []entryDist
		rsq := radius * radius
		ix.visitCells(p, radius, func(e entry) {
			if d := e.pos.DistSq(p); d <= rsq {
				hits = append(hits, entryDist{e, d})
			}
		})
		if len(hits) >= k {
			confirm := radius + ix.cellSize
			csq := confirm * confirm
			hits = hits[:0]
			ix.visitCells(p, confirm, func(e entry) {
				if d := e.pos.DistSq(p); d <= csq {
					hits = append(hits, entryDist{e, d})
				}
			})
			sortByDistance(hits)
			if len(hits) > k {
				hits = hits[:k]
			}
			out := make([]model.UnitID, len(hits))
			for i, h := range hits {
				out[i] = h.id
			}
			return out
		}
		if radius > ix.maxExtent(p) {
			sortByDistance(hits)
			if len(hits) > k {
				hits = hits[:k]
			}
			out := make([]model.UnitID, len(hits))
			for i, h := range hits {
				out[i] = h.id
			}
			return out
		}
		radius *= 2
	}
}

type entryDist struct {
	entry
	distSq float64
}

func sortByDistance(hits []entryDist) {
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].distSq != hits[j].distSq {
			return hits[i].distSq < hits[j].distSq
		}
		return hits[i].id < hits[j].id
	})
}

func (ix *Index) keyFor(pos model.Vec3) cellKey {
	return cellKey{
		x: int(math.Floor(pos.X / ix.cellSize)),
		y: int(math.Floor(pos.Y / ix.cellSize)),
		z: int(math.Floor(pos.Z / ix.cellSize)),
	}
}

func (ix *Index) visitCells(p model.Vec3, radius float64, fn func(entry)) {
	lo := ix.keyFor(model.Vec3{X: p.X - radius, Y: p.Y - radius, Z: p.Z - radius})
	hi := ix.keyFor(model.Vec3{X: p.X + radius, Y: p.Y + radius, Z: p.Z + radius})
	for x := lo.x; x <= hi.x; x++ {
		for y := lo.y; y <= hi.y; y++ {
			for z := lo.z; z <= hi.z; z++ {
				for _, e := range ix.cells[cellKey{x, y, z}] {
					fn(e)
				}
			}
		}
	}
}

// maxExtent is an upper bound on the distance from p to any indexed unit,
// used to terminate the KNN ring expansion.
func (ix *Index) maxExtent(p model.Vec3) float64 {
	maxSq := 0.0
	for _, bucket := range ix.cells {
		for _, e := range bucket {
			if d := e.pos.DistSq(p); d > maxSq {
				maxSq = d
			}
		}
	}
	return math.Sqrt(maxSq) + ix.cellSize
}
