package world

// Air is the empty block type.
const Air byte = 0

// Block flags.
const (
	FlagNatural byte = 1 << iota
	FlagBackWall
)

// Blocks is the bounded tile grid: a block type, a wall type and flags per
// cell, stored row-major. Accessed only from the world loop goroutine.
type Blocks struct {
	width  int
	height int

	block []byte
	wall  []byte
	flags []byte
}

func NewBlocks(width, height int) *Blocks {
	n := width * height
	return &Blocks{
		width:  width,
		height: height,
		block:  make([]byte, n),
		wall:   make([]byte, n),
		flags:  make([]byte, n),
	}
}

func (b *Blocks) Width() int  { return b.width }
func (b *Blocks) Height() int { return b.height }

func (b *Blocks) InBounds(x, y int) bool {
	return x >= 0 && y >= 0 && x < b.width && y < b.height
}

func (b *Blocks) idx(x, y int) int { return y*b.width + x }

// BlockType reads an in-bounds cell. Out-of-bounds coordinates panic; use
// BlockTypeSafely for untrusted input.
func (b *Blocks) BlockType(x, y int) byte { return b.block[b.idx(x, y)] }

// BlockTypeSafely clamps the coordinates into the grid before reading.
func (b *Blocks) BlockTypeSafely(x, y int) byte {
	return b.block[b.idx(clamp(x, 0, b.width-1), clamp(y, 0, b.height-1))]
}

func (b *Blocks) WallType(x, y int) byte { return b.wall[b.idx(x, y)] }
func (b *Blocks) Flags(x, y int) byte    { return b.flags[b.idx(x, y)] }

func (b *Blocks) SetBlockType(x, y int, t byte) bool {
	if !b.InBounds(x, y) {
		return false
	}
	i := b.idx(x, y)
	b.block[i] = t
	b.flags[i] &^= FlagNatural
	return true
}

// DestroyBlock empties a cell and returns what was there. The wall stays.
func (b *Blocks) DestroyBlock(x, y int) (prev byte, ok bool) {
	if !b.InBounds(x, y) {
		return Air, false
	}
	i := b.idx(x, y)
	prev = b.block[i]
	if prev == Air {
		return Air, false
	}
	b.block[i] = Air
	b.flags[i] &^= FlagNatural
	return prev, true
}

// Region returns the block types of [x,x2) x [y,y2) row-major. Cells outside
// the grid read as Air.
func (b *Blocks) Region(x, y, x2, y2 int) []int {
	if x2 <= x || y2 <= y {
		return []int{}
	}
	out := make([]int, 0, (x2-x)*(y2-y))
	for row := y; row < y2; row++ {
		for col := x; col < x2; col++ {
			if !b.InBounds(col, row) {
				out = append(out, int(Air))
				continue
			}
			out = append(out, int(b.block[b.idx(col, row)]))
		}
	}
	return out
}

// FillLayered lays out a flat world: air above surface, dirtDepth rows of
// dirt, stone below. Underground cells get a matching back wall.
func (b *Blocks) FillLayered(surface, dirtDepth int, dirt, stone byte) {
	for y := 0; y < b.height; y++ {
		var t byte
		switch {
		case y < surface:
			t = Air
		case y < surface+dirtDepth:
			t = dirt
		default:
			t = stone
		}
		for x := 0; x < b.width; x++ {
			i := b.idx(x, y)
			b.block[i] = t
			b.wall[i] = t
			b.flags[i] = 0
			if t != Air {
				b.flags[i] = FlagNatural | FlagBackWall
			}
		}
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
