package spatial

import (
	"math"

	"tilecraft.dev/internal/sim/entity"
)

const DefaultCellSize = 16.0

// Rect is an axis-aligned box in world units, anchored at its top-left corner.
type Rect struct {
	X, Y, W, H float64
}

func (r Rect) MaxX() float64 { return r.X + r.W }
func (r Rect) MaxY() float64 { return r.Y + r.H }

// Intersects reports whether the boxes overlap. Edges that only touch do not
// count; a zero-extent box is treated as a point on its anchor.
func (r Rect) Intersects(o Rect) bool {
	return overlaps(r.X, r.W, o.X, o.W) && overlaps(r.Y, r.H, o.Y, o.H)
}

func overlaps(a, aw, b, bw float64) bool {
	if aw <= 0 {
		aw = 0
	}
	if bw <= 0 {
		bw = 0
	}
	switch {
	case aw == 0 && bw == 0:
		return a == b
	case aw == 0:
		return a >= b && a < b+bw
	case bw == 0:
		return b >= a && b < a+aw
	}
	return a < b+bw && b < a+aw
}

type Entry struct {
	ID   entity.ID
	Rect Rect
	// Contained entries (inside an inventory) occupy no world space.
	Contained bool
}

type cellKey struct {
	X int
	Y int
}

type placement struct {
	rect  Rect
	cells []cellKey
}

// Index is a uniform-grid spatial hash over entity bounding boxes. Query cost
// depends on the cells a rectangle covers and their occupants, not on the
// number of indexed entities.
type Index struct {
	cellSize    float64
	invCellSize float64

	cells   map[cellKey][]entity.ID
	entries map[entity.ID]*placement
}

func NewIndex(cellSize float64) *Index {
	if cellSize <= 0 {
		cellSize = DefaultCellSize
	}
	return &Index{
		cellSize:    cellSize,
		invCellSize: 1.0 / cellSize,
		cells:       map[cellKey][]entity.ID{},
		entries:     map[entity.ID]*placement{},
	}
}

// Insert adds or replaces an entry. Contained entries are not indexed (and an
// existing placement for the id is dropped).
func (idx *Index) Insert(e Entry) {
	if e.ID == 0 {
		return
	}
	if e.Contained {
		idx.Remove(e.ID)
		return
	}
	if p, ok := idx.entries[e.ID]; ok {
		idx.removeFromCells(e.ID, p.cells)
	}
	cells := idx.cellsFor(e.Rect)
	idx.entries[e.ID] = &placement{rect: e.Rect, cells: cells}
	for _, c := range cells {
		idx.cells[c] = append(idx.cells[c], e.ID)
	}
}

// Update moves an entry. Moving within the same set of cells only rewrites
// the stored rectangle.
func (idx *Index) Update(e Entry) {
	p, ok := idx.entries[e.ID]
	if !ok || e.Contained {
		idx.Insert(e)
		return
	}
	if p.rect == e.Rect {
		return
	}
	cells := idx.cellsFor(e.Rect)
	if sameCells(cells, p.cells) {
		p.rect = e.Rect
		return
	}
	idx.Insert(e)
}

func (idx *Index) Remove(id entity.ID) {
	p, ok := idx.entries[id]
	if !ok {
		return
	}
	idx.removeFromCells(id, p.cells)
	delete(idx.entries, id)
}

func (idx *Index) Has(id entity.ID) bool {
	_, ok := idx.entries[id]
	return ok
}

func (idx *Index) Len() int { return len(idx.entries) }

// Query returns every indexed entity whose box intersects q. Degenerate
// query rectangles yield an empty set.
func (idx *Index) Query(q Rect) entity.Set {
	out := entity.Set{}
	if q.W <= 0 || q.H <= 0 || math.IsNaN(q.W) || math.IsNaN(q.H) {
		return out
	}
	for _, c := range idx.cellsFor(q) {
		for _, id := range idx.cells[c] {
			if out.Has(id) {
				continue
			}
			if p := idx.entries[id]; p != nil && p.rect.Intersects(q) {
				out.Add(id)
			}
		}
	}
	return out
}

func (idx *Index) cellsFor(r Rect) []cellKey {
	w, h := r.W, r.H
	if w < 0 {
		w = 0
	}
	if h < 0 {
		h = 0
	}
	minX := idx.coordToCell(r.X)
	minY := idx.coordToCell(r.Y)
	maxX := idx.coordToCell(r.X + w)
	maxY := idx.coordToCell(r.Y + h)
	cells := make([]cellKey, 0, (maxX-minX+1)*(maxY-minY+1))
	for row := minY; row <= maxY; row++ {
		for col := minX; col <= maxX; col++ {
			cells = append(cells, cellKey{X: col, Y: row})
		}
	}
	return cells
}

func (idx *Index) coordToCell(v float64) int {
	return int(math.Floor(v * idx.invCellSize))
}

func (idx *Index) removeFromCells(id entity.ID, cells []cellKey) {
	for _, c := range cells {
		bucket := idx.cells[c]
		for i := range bucket {
			if bucket[i] != id {
				continue
			}
			bucket[i] = bucket[len(bucket)-1]
			bucket = bucket[:len(bucket)-1]
			break
		}
		if len(bucket) == 0 {
			delete(idx.cells, c)
		} else {
			idx.cells[c] = bucket
		}
	}
}

func sameCells(a, b []cellKey) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
