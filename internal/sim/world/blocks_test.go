package world

import "testing"

func TestBlocks_FillLayered(t *testing.T) {
	b := NewBlocks(8, 12)
	b.FillLayered(4, 2, 1, 2)
	cases := []struct {
		y    int
		want byte
	}{
		{0, Air}, {3, Air}, {4, 1}, {5, 1}, {6, 2}, {11, 2},
	}
	for _, tc := range cases {
		if got := b.BlockType(3, tc.y); got != tc.want {
			t.Fatalf("row %d: got %d want %d", tc.y, got, tc.want)
		}
	}
	if b.Flags(0, 5)&FlagNatural == 0 || b.Flags(0, 0) != 0 {
		t.Fatalf("flags: %b %b", b.Flags(0, 5), b.Flags(0, 0))
	}
}

func TestBlocks_DestroyBlock(t *testing.T) {
	b := NewBlocks(4, 4)
	b.FillLayered(2, 1, 1, 2)

	prev, ok := b.DestroyBlock(1, 2)
	if !ok || prev != 1 {
		t.Fatalf("destroy: prev=%d ok=%v", prev, ok)
	}
	if b.BlockType(1, 2) != Air || b.WallType(1, 2) != 1 {
		t.Fatalf("after destroy: block=%d wall=%d", b.BlockType(1, 2), b.WallType(1, 2))
	}
	if _, ok := b.DestroyBlock(1, 2); ok {
		t.Fatalf("destroying air should fail")
	}
	if _, ok := b.DestroyBlock(-1, 2); ok {
		t.Fatalf("destroying out of bounds should fail")
	}
}

func TestBlocks_SafeReadsAndRegion(t *testing.T) {
	b := NewBlocks(4, 4)
	b.FillLayered(2, 2, 1, 2)
	if got := b.BlockTypeSafely(-5, 99); got != b.BlockType(0, 3) {
		t.Fatalf("clamped read: %d", got)
	}
	if !b.SetBlockType(0, 0, 2) || b.SetBlockType(4, 0, 2) {
		t.Fatalf("SetBlockType bounds")
	}

	r := b.Region(-1, 1, 1, 3)
	want := []int{0, 0, 0, 1}
	if len(r) != len(want) {
		t.Fatalf("region: %v", r)
	}
	for i := range want {
		if r[i] != want[i] {
			t.Fatalf("region: %v want %v", r, want)
		}
	}
	if got := b.Region(2, 2, 2, 4); len(got) != 0 || got == nil {
		t.Fatalf("empty region: %#v", got)
	}
}
