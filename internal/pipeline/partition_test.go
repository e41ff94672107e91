package pipeline

import (
	"reflect"
	"testing"
)

func seq(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func TestBatches(t *testing.T) {
	cases := []struct {
		name string
		fovs []int
		size int
		want [][]int
	}{
		{"empty", nil, 4, nil},
		{"single batch", seq(3), 4, [][]int{{0, 1, 2}}},
		{"exact multiple", seq(4), 2, [][]int{{0, 1}, {2, 3}}},
		{"remainder tail", seq(6), 4, [][]int{{0, 1, 2, 3}, {4, 5}}},
		{"size one", seq(3), 1, [][]int{{0}, {1}, {2}}},
		{"size zero clamps to one", seq(3), 0, [][]int{{0}, {1}, {2}}},
		{"negative size clamps to one", seq(2), -4, [][]int{{0}, {1}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Batches(tc.fovs, tc.size)
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("Batches(%v, %d) = %v, want %v", tc.fovs, tc.size, got, tc.want)
			}
		})
	}
}

func TestWorkerRanges(t *testing.T) {
	cases := []struct {
		name    string
		batch   []int
		workers int
		want    [][]int
	}{
		{"empty", nil, 2, nil},
		{"even split", seq(4), 2, [][]int{{0, 1}, {2, 3}}},
		{"remainder to first", seq(5), 2, [][]int{{0, 1, 2}, {3, 4}}},
		{"more workers than fovs", seq(2), 4, [][]int{{0}, {1}}},
		{"one worker", seq(3), 1, [][]int{{0, 1, 2}}},
		{"remainder spread", seq(7), 3, [][]int{{0, 1, 2}, {3, 4}, {5, 6}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := WorkerRanges(tc.batch, tc.workers)
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("WorkerRanges(%v, %d) = %v, want %v", tc.batch, tc.workers, got, tc.want)
			}
		})
	}
}

func TestWorkerRangesCoverWithoutOverlap(t *testing.T) {
	batch := seq(11)
	seen := map[int]bool{}
	prevEnd := 0
	for _, rng := range WorkerRanges(batch, 4) {
		if len(rng) == 0 {
			t.Fatal("empty range emitted")
		}
		if rng[0] != prevEnd {
			t.Fatalf("range starts at %d, want contiguous from %d", rng[0], prevEnd)
		}
		for _, fov := range rng {
			if seen[fov] {
				t.Fatalf("fov %d assigned twice", fov)
			}
			seen[fov] = true
		}
		prevEnd = rng[len(rng)-1] + 1
	}
	if len(seen) != len(batch) {
		t.Fatalf("%d of %d fovs covered", len(seen), len(batch))
	}
}
