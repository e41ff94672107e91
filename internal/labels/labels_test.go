package labels

import (
	"reflect"
	"testing"
)

// parseMask turns a row-per-string picture into a bool mask. '#' is true.
func parseMask(rows []string) ([]bool, int, int) {
	height := len(rows)
	width := len(rows[0])
	mask := make([]bool, height*width)
	for y, row := range rows {
		for x := 0; x < width; x++ {
			mask[y*width+x] = row[x] == '#'
		}
	}
	return mask, height, width
}

func TestConnectedComponentsFourConnectivity(t *testing.T) {
	mask, h, w := parseMask([]string{
		"##..#",
		"##..#",
		".....",
		"#..##",
	})
	out := make([]uint16, len(mask))
	n, err := ConnectedComponents(mask, h, w, out)
	if err != nil {
		t.Fatalf("label: %v", err)
	}
	if n != 4 {
		t.Fatalf("expected 4 components, got %d", n)
	}
	// Diagonal pixels must not join.
	if out[0] == out[4] {
		t.Fatal("separate components share an ID")
	}
	if out[0] != out[w+1] {
		t.Fatal("4-connected pixels got different IDs")
	}
}

func TestRegions(t *testing.T) {
	frame := []uint16{
		0, 2, 2, 0,
		0, 2, 2, 0,
		7, 0, 0, 0,
	}
	regions := Regions(frame, 3, 4)
	if len(regions) != 2 {
		t.Fatalf("expected 2 regions, got %d", len(regions))
	}
	if regions[0].ID != 2 || regions[1].ID != 7 {
		t.Fatalf("regions not sorted by ID: %+v", regions)
	}
	sq := regions[0]
	if sq.Area != 4 {
		t.Fatalf("square area %d", sq.Area)
	}
	want := Rect{MinX: 1, MinY: 0, MaxX: 3, MaxY: 2}
	if sq.Box != want {
		t.Fatalf("square box %+v want %+v", sq.Box, want)
	}
	if sq.CX != 1.5 || sq.CY != 0.5 {
		t.Fatalf("square centroid (%v, %v)", sq.CX, sq.CY)
	}
}

func TestFilterBySizeKeepsIDs(t *testing.T) {
	frame := []uint16{
		1, 1, 0, 3,
		1, 1, 0, 0,
	}
	FilterBySize(frame, 2, 4, 2, 0)
	if frame[3] != 0 {
		t.Fatal("small component survived")
	}
	if frame[0] != 1 {
		t.Fatal("surviving component was renumbered")
	}
}

func TestFillHoles(t *testing.T) {
	mask, h, w := parseMask([]string{
		"#####",
		"#...#",
		"#.#.#",
		"#...#",
		"#####",
	})
	FillHoles(mask, h, w)
	for i, v := range mask {
		if !v {
			t.Fatalf("pixel %d not filled", i)
		}
	}
}

func TestFillHolesLeavesOpenRegions(t *testing.T) {
	mask, h, w := parseMask([]string{
		"#####",
		"#...#",
		"#####",
		".....",
	})
	open := append([]bool(nil), mask...)
	// Break the enclosure.
	open[w+4] = false
	FillHoles(open, h, w)
	if open[w+2] {
		t.Fatal("region connected to border was filled")
	}
}

func TestErodeDilateInverse(t *testing.T) {
	mask, h, w := parseMask([]string{
		".......",
		".#####.",
		".#####.",
		".#####.",
		".......",
	})
	eroded := Eroded(mask, h, w, 1)
	count := 0
	for _, v := range eroded {
		if v {
			count++
		}
	}
	if count != 3 {
		t.Fatalf("expected 3 pixels after erosion, got %d", count)
	}
	grown := Dilated(eroded, h, w, 1)
	// Growing back stays inside the original mask.
	for i, v := range grown {
		if v && !mask[i] {
			t.Fatalf("dilation escaped original mask at %d", i)
		}
	}
}

func TestOpenedRemovesSpeckle(t *testing.T) {
	mask, h, w := parseMask([]string{
		"#......",
		".......",
		"..###..",
		"..###..",
		"..###..",
	})
	opened := Opened(mask, h, w, 1)
	if opened[0] {
		t.Fatal("isolated pixel survived opening")
	}
	if !opened[3*w+3] {
		t.Fatal("block center removed by opening")
	}
}

func TestRectPadClips(t *testing.T) {
	r := Rect{MinX: 1, MinY: 1, MaxX: 3, MaxY: 3}
	padded := r.Pad(2, 4, 5)
	want := Rect{MinX: 0, MinY: 0, MaxX: 5, MaxY: 4}
	if padded != want {
		t.Fatalf("got %+v want %+v", padded, want)
	}
}

func TestRectUnion(t *testing.T) {
	a := Rect{MinX: 1, MinY: 1, MaxX: 3, MaxY: 3}
	b := Rect{MinX: 2, MinY: 0, MaxX: 5, MaxY: 2}
	got := a.Union(b)
	want := Rect{MinX: 1, MinY: 0, MaxX: 5, MaxY: 3}
	if got != want {
		t.Fatalf("got %+v want %+v", got, want)
	}
	if !reflect.DeepEqual(Rect{}.Union(a), a) {
		t.Fatal("empty union not identity")
	}
}
