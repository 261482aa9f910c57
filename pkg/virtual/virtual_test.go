package virtual

import (
	"testing"

	"pgregory.net/rapid"
)

func fixed(size int) func(int) int { return func(int) int { return size } }

func TestEmptyCollection(t *testing.T) {
	v := New(Options{Count: 0, Viewport: 10, Overscan: 3})
	r := v.Range()
	if !r.Empty {
		t.Fatal("expected empty range")
	}
	if len(r.Items) != 0 || r.TotalSize != 0 {
		t.Fatalf("unexpected items %v total %d", r.Items, r.TotalSize)
	}
}

func TestRangeTenThousandRows(t *testing.T) {
	v := New(Options{Count: 10000, Estimate: fixed(1), Viewport: 20, Overscan: 5})
	v.ScrollTo(5000)
	r := v.Range()
	if r.VisibleStart != 5000 || r.VisibleEnd != 5020 {
		t.Fatalf("visible = [%d,%d), want [5000,5020)", r.VisibleStart, r.VisibleEnd)
	}
	if r.Start != 4995 || r.End != 5025 {
		t.Fatalf("range = [%d,%d), want [4995,5025)", r.Start, r.End)
	}
	if len(r.Items) != 30 {
		t.Fatalf("mounted %d items, want 30", len(r.Items))
	}
	if r.TotalSize != 10000 {
		t.Fatalf("total = %d", r.TotalSize)
	}
}

func TestOverscanClampedAtEdges(t *testing.T) {
	v := New(Options{Count: 50, Estimate: fixed(2), Viewport: 10, Overscan: 4})
	r := v.Range()
	if r.Start != 0 || r.VisibleStart != 0 {
		t.Fatalf("start = %d visible %d", r.Start, r.VisibleStart)
	}
	if r.End != r.VisibleEnd+4 {
		t.Fatalf("end = %d, visible end %d", r.End, r.VisibleEnd)
	}

	v.ScrollTo(1 << 30)
	r = v.Range()
	if r.Offset != 100-10 {
		t.Fatalf("offset = %d, want clamped to 90", r.Offset)
	}
	if r.End != 50 || r.VisibleEnd != 50 {
		t.Fatalf("end = %d visible end %d", r.End, r.VisibleEnd)
	}
}

func TestShortListFitsViewport(t *testing.T) {
	v := New(Options{Count: 3, Estimate: fixed(1), Viewport: 10})
	v.ScrollTo(5)
	r := v.Range()
	if r.Offset != 0 {
		t.Fatalf("offset = %d, want 0", r.Offset)
	}
	if r.VisibleStart != 0 || r.VisibleEnd != 3 {
		t.Fatalf("visible = [%d,%d)", r.VisibleStart, r.VisibleEnd)
	}
}

func TestMeasureAboveViewportPreservesAnchor(t *testing.T) {
	v := New(Options{Count: 100, Estimate: fixed(1), Viewport: 10})
	v.ScrollTo(50)
	before := v.Range()
	anchor := before.Items[0]

	adj := v.Measure(10, 4)
	if adj != 3 {
		t.Fatalf("adjustment = %d, want 3", adj)
	}
	after := v.Range()
	if after.VisibleStart != anchor.Index {
		t.Fatalf("first visible = %d, want %d", after.VisibleStart, anchor.Index)
	}
	if got := v.ItemStart(anchor.Index) - v.Offset(); got != anchor.Start-before.Offset {
		t.Fatalf("anchor moved on screen: %d vs %d", got, anchor.Start-before.Offset)
	}
	if v.TotalSize() != 103 {
		t.Fatalf("total = %d", v.TotalSize())
	}
}

func TestMeasureInsideViewportDoesNotScroll(t *testing.T) {
	v := New(Options{Count: 100, Estimate: fixed(1), Viewport: 10})
	v.ScrollTo(50)
	if adj := v.Measure(52, 3); adj != 0 {
		t.Fatalf("adjustment = %d, want 0", adj)
	}
	if v.Offset() != 50 {
		t.Fatalf("offset = %d", v.Offset())
	}
	if !v.IsMeasured(52) || v.IsMeasured(53) {
		t.Fatal("measured flags wrong")
	}
}

func TestMeasureClampsToOne(t *testing.T) {
	v := New(Options{Count: 5, Estimate: fixed(3), Viewport: 4})
	v.Measure(2, 0)
	if v.ItemSize(2) != 1 {
		t.Fatalf("size = %d, want 1", v.ItemSize(2))
	}
	if v.TotalSize() != 13 {
		t.Fatalf("total = %d, want 13", v.TotalSize())
	}
}

func TestScrollToIndex(t *testing.T) {
	v := New(Options{Count: 100, Estimate: fixed(2), Viewport: 10})

	v.ScrollToIndex(20, AlignStart)
	if v.Offset() != 40 {
		t.Fatalf("start align offset = %d", v.Offset())
	}
	v.ScrollToIndex(20, AlignEnd)
	if v.Offset() != 32 {
		t.Fatalf("end align offset = %d", v.Offset())
	}

	v.ScrollTo(0)
	v.ScrollToIndex(2, AlignAuto)
	if v.Offset() != 0 {
		t.Fatalf("auto align moved for visible item: %d", v.Offset())
	}
	v.ScrollToIndex(10, AlignAuto)
	if v.Offset() != 12 {
		t.Fatalf("auto align below = %d, want 12", v.Offset())
	}
	v.ScrollToIndex(1, AlignAuto)
	if v.Offset() != 2 {
		t.Fatalf("auto align above = %d, want 2", v.Offset())
	}
}

func TestSetCountKeepsMeasurements(t *testing.T) {
	v := New(Options{Count: 10, Estimate: fixed(1), Viewport: 5})
	v.Measure(3, 5)
	v.SetCount(20)
	if v.ItemSize(3) != 5 || v.TotalSize() != 24 {
		t.Fatalf("size %d total %d", v.ItemSize(3), v.TotalSize())
	}
	v.SetCount(2)
	if v.TotalSize() != 2 || v.Count() != 2 {
		t.Fatalf("after shrink total %d count %d", v.TotalSize(), v.Count())
	}
	v.Reset(4)
	if v.IsMeasured(0) || v.TotalSize() != 4 {
		t.Fatal("reset should drop measurements")
	}
}

// Windowing must hold for any mix of estimates, measurements, viewport and
// offset: mounted items are contiguous, positions agree with a naive prefix
// sum, the visible slice covers the viewport exactly, and overscan is
// clamped to the collection.
func TestRangeProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		count := rapid.IntRange(0, 300).Draw(t, "count")
		est := rapid.IntRange(1, 6).Draw(t, "estimate")
		overscan := rapid.IntRange(0, 6).Draw(t, "overscan")
		viewport := rapid.IntRange(1, 60).Draw(t, "viewport")

		v := New(Options{Count: count, Estimate: fixed(est), Overscan: overscan, Viewport: viewport})
		sizes := make([]int, count)
		for i := range sizes {
			sizes[i] = est
		}

		steps := rapid.IntRange(0, 30).Draw(t, "steps")
		for s := 0; s < steps; s++ {
			switch rapid.IntRange(0, 2).Draw(t, "op") {
			case 0:
				if count == 0 {
					continue
				}
				i := rapid.IntRange(0, count-1).Draw(t, "index")
				size := rapid.IntRange(0, 40).Draw(t, "size")
				v.Measure(i, size)
				sizes[i] = max(size, 1)
			case 1:
				v.ScrollTo(rapid.IntRange(-10, 2000).Draw(t, "offset"))
			case 2:
				v.ScrollBy(rapid.IntRange(-50, 50).Draw(t, "delta"))
			}
		}

		total := 0
		starts := make([]int, count)
		for i, s := range sizes {
			starts[i] = total
			total += s
		}
		if v.TotalSize() != total {
			t.Fatalf("total = %d, want %d", v.TotalSize(), total)
		}

		r := v.Range()
		if count == 0 {
			if !r.Empty {
				t.Fatal("expected empty")
			}
			return
		}
		if r.Offset < 0 || r.Offset > max(total-viewport, 0) {
			t.Fatalf("offset %d out of bounds", r.Offset)
		}
		if len(r.Items) != r.End-r.Start {
			t.Fatalf("items %d for range [%d,%d)", len(r.Items), r.Start, r.End)
		}
		for k, it := range r.Items {
			if it.Index != r.Start+k {
				t.Fatalf("item %d has index %d", k, it.Index)
			}
			if it.Start != starts[it.Index] || it.Size != sizes[it.Index] {
				t.Fatalf("item %d at %d size %d, want %d size %d",
					it.Index, it.Start, it.Size, starts[it.Index], sizes[it.Index])
			}
		}

		vs, ve := r.VisibleStart, r.VisibleEnd
		if !(starts[vs] <= r.Offset && r.Offset < starts[vs]+sizes[vs]) {
			t.Fatalf("first visible %d does not contain offset %d", vs, r.Offset)
		}
		last := ve - 1
		if starts[last]+sizes[last] < min(r.Offset+viewport, total) {
			t.Fatalf("visible slice ends at %d before viewport end", starts[last]+sizes[last])
		}
		if ve < count && starts[ve] < r.Offset+viewport {
			t.Fatalf("item %d starts inside viewport but is not visible", ve)
		}
		if r.Start != max(vs-overscan, 0) || r.End != min(ve+overscan, count) {
			t.Fatalf("range [%d,%d) for visible [%d,%d) overscan %d", r.Start, r.End, vs, ve, overscan)
		}
	})
}

func BenchmarkRangeDeepScroll(b *testing.B) {
	v := New(Options{Count: 50000, Estimate: fixed(2), Viewport: 40, Overscan: 3})
	for i := 0; i < b.N; i++ {
		v.ScrollTo((i * 997) % v.TotalSize())
		_ = v.Range()
		v.Measure(v.Range().VisibleStart, 3)
	}
}
