// Package virtual computes which rows of a long list intersect a viewport.
//
// Sizes are abstract units (terminal lines in the TUI). Every item starts
// with an estimated size and may later be corrected with Measure. Start
// offsets are cached by index and only recomputed from the first changed
// index onward, lazily, when a lookup needs them. The first visible index is
// found by binary search over the cached prefix, so lookups stay cheap for
// collections in the thousands.
package virtual

import (
	"sort"

	"github.com/vanderheijden86/bmo/pkg/metrics"
)

// DefaultOverscan is the number of extra items mounted on each side.
const DefaultOverscan = 3

// Options configures a Virtualizer.
type Options struct {
	Count    int
	Estimate func(index int) int
	Overscan int
	Viewport int
}

// Item is one mounted index with its current start offset and size.
type Item struct {
	Index    int
	Start    int
	Size     int
	Measured bool
}

// End returns the offset just past the item.
func (it Item) End() int { return it.Start + it.Size }

// Range is the result of a window computation. Items covers [Start, End),
// which is [VisibleStart, VisibleEnd) widened by the overscan and clamped
// to [0, Count).
type Range struct {
	Start        int
	End          int
	VisibleStart int
	VisibleEnd   int
	Items        []Item
	Offset       int
	TotalSize    int
	// Empty is set when the collection has no items; callers render an
	// empty state instead of a blank viewport.
	Empty bool
}

// Align controls ScrollToIndex placement.
type Align int

const (
	AlignAuto Align = iota
	AlignStart
	AlignEnd
)

// Virtualizer tracks item sizes, the offset cache, and the scroll offset.
// It is not safe for concurrent use; it belongs to one list view.
type Virtualizer struct {
	estimate func(int) int
	overscan int
	viewport int
	offset   int

	sizes    []int
	measured []bool
	starts   []int
	valid    int // starts[i] is correct for i < valid
	total    int
}

// New creates a virtualizer. A nil Estimate uses size 1.
func New(opts Options) *Virtualizer {
	v := &Virtualizer{
		estimate: opts.Estimate,
		overscan: opts.Overscan,
		viewport: max(opts.Viewport, 1),
	}
	if v.estimate == nil {
		v.estimate = func(int) int { return 1 }
	}
	if v.overscan < 0 {
		v.overscan = 0
	}
	v.Reset(opts.Count)
	return v
}

// Reset drops all measurements and re-estimates count items. Use it when
// the collection is replaced wholesale.
func (v *Virtualizer) Reset(count int) {
	count = max(count, 0)
	v.sizes = make([]int, count)
	v.measured = make([]bool, count)
	v.starts = make([]int, count)
	v.valid = 0
	v.total = 0
	for i := range v.sizes {
		v.sizes[i] = v.estimateAt(i)
		v.total += v.sizes[i]
	}
	v.clampOffset()
}

// SetCount resizes the collection, keeping sizes and measurements of the
// indices that remain.
func (v *Virtualizer) SetCount(count int) {
	count = max(count, 0)
	old := len(v.sizes)
	switch {
	case count < old:
		for _, s := range v.sizes[count:] {
			v.total -= s
		}
		v.sizes = v.sizes[:count]
		v.measured = v.measured[:count]
		v.starts = v.starts[:count]
		v.valid = min(v.valid, count)
	case count > old:
		for i := old; i < count; i++ {
			s := v.estimateAt(i)
			v.sizes = append(v.sizes, s)
			v.measured = append(v.measured, false)
			v.starts = append(v.starts, 0)
			v.total += s
		}
	}
	v.clampOffset()
}

func (v *Virtualizer) estimateAt(i int) int {
	return max(v.estimate(i), 1)
}

// Count returns the number of items.
func (v *Virtualizer) Count() int { return len(v.sizes) }

// TotalSize returns the sum of all item sizes.
func (v *Virtualizer) TotalSize() int { return v.total }

// Offset returns the scroll offset.
func (v *Virtualizer) Offset() int { return v.offset }

// Viewport returns the viewport size.
func (v *Virtualizer) Viewport() int { return v.viewport }

// Overscan returns the overscan count.
func (v *Virtualizer) Overscan() int { return v.overscan }

// SetOverscan changes the overscan count.
func (v *Virtualizer) SetOverscan(n int) { v.overscan = max(n, 0) }

// SetViewport changes the viewport size and re-clamps the offset.
func (v *Virtualizer) SetViewport(size int) {
	v.viewport = max(size, 1)
	v.clampOffset()
}

// ItemSize returns the current size of item i, or 0 when out of range.
func (v *Virtualizer) ItemSize(i int) int {
	if i < 0 || i >= len(v.sizes) {
		return 0
	}
	return v.sizes[i]
}

// IsMeasured reports whether item i has a measured size.
func (v *Virtualizer) IsMeasured(i int) bool {
	return i >= 0 && i < len(v.measured) && v.measured[i]
}

// ItemStart returns the start offset of item i.
func (v *Virtualizer) ItemStart(i int) int {
	if i <= 0 || len(v.sizes) == 0 {
		return 0
	}
	if i >= len(v.sizes) {
		return v.total
	}
	v.ensure(i)
	return v.starts[i]
}

// ensure makes starts valid up to and including index k.
func (v *Virtualizer) ensure(k int) {
	if k < v.valid {
		return
	}
	k = min(k, len(v.sizes)-1)
	for i := v.valid; i <= k; i++ {
		if i == 0 {
			v.starts[0] = 0
			continue
		}
		v.starts[i] = v.starts[i-1] + v.sizes[i-1]
	}
	v.valid = k + 1
}

// Measure records the real size of item i. When the item lies entirely
// above the scroll offset, the offset moves by the same delta so the
// visible content stays in place. It returns that scroll adjustment.
func (v *Virtualizer) Measure(i, size int) int {
	if i < 0 || i >= len(v.sizes) {
		return 0
	}
	size = max(size, 1)
	v.measured[i] = true
	old := v.sizes[i]
	if size == old {
		return 0
	}
	delta := size - old
	above := v.ItemStart(i)+old <= v.offset

	v.sizes[i] = size
	v.total += delta
	// starts[i] itself does not depend on sizes[i].
	v.valid = min(v.valid, i+1)

	if !above {
		v.clampOffset()
		return 0
	}
	before := v.offset
	v.offset += delta
	v.clampOffset()
	return v.offset - before
}

// ScrollTo sets the scroll offset, clamped to the scrollable range.
func (v *Virtualizer) ScrollTo(offset int) {
	v.offset = offset
	v.clampOffset()
}

// ScrollBy moves the scroll offset by delta.
func (v *Virtualizer) ScrollBy(delta int) {
	v.ScrollTo(v.offset + delta)
}

// ScrollToIndex brings item i into view.
func (v *Virtualizer) ScrollToIndex(i int, align Align) {
	if len(v.sizes) == 0 {
		return
	}
	i = min(max(i, 0), len(v.sizes)-1)
	start := v.ItemStart(i)
	end := start + v.sizes[i]
	switch align {
	case AlignStart:
		v.ScrollTo(start)
	case AlignEnd:
		v.ScrollTo(end - v.viewport)
	default:
		if start < v.offset {
			v.ScrollTo(start)
		} else if end > v.offset+v.viewport {
			// Items taller than the viewport align to their start.
			v.ScrollTo(min(start, end-v.viewport))
		}
	}
}

func (v *Virtualizer) clampOffset() {
	maxOffset := max(v.total-v.viewport, 0)
	v.offset = min(max(v.offset, 0), maxOffset)
}

// indexAt returns the index of the item containing offset. offset must be
// in [0, total).
func (v *Virtualizer) indexAt(offset int) int {
	n := len(v.sizes)
	// Extend the valid prefix until it reaches past offset, doubling the
	// step so a deep jump costs O(log) extensions.
	step := 64
	for v.valid < n {
		last := v.valid - 1
		if last >= 0 && v.starts[last]+v.sizes[last] > offset {
			break
		}
		v.ensure(min(v.valid+step, n) - 1)
		step *= 2
	}
	i := sort.Search(v.valid, func(i int) bool {
		return v.starts[i]+v.sizes[i] > offset
	})
	return min(i, n-1)
}

// Range computes the window for the current offset.
func (v *Virtualizer) Range() Range {
	defer metrics.Timer(metrics.VirtualRange)()
	n := len(v.sizes)
	if n == 0 {
		return Range{Empty: true}
	}
	v.clampOffset()

	visStart := v.indexAt(v.offset)
	limit := v.offset + v.viewport
	visEnd := visStart + 1
	for visEnd < n && v.ItemStart(visEnd) < limit {
		visEnd++
	}

	start := max(visStart-v.overscan, 0)
	end := min(visEnd+v.overscan, n)
	v.ensure(end - 1)

	items := make([]Item, 0, end-start)
	for i := start; i < end; i++ {
		items = append(items, Item{Index: i, Start: v.starts[i], Size: v.sizes[i], Measured: v.measured[i]})
	}
	return Range{
		Start:        start,
		End:          end,
		VisibleStart: visStart,
		VisibleEnd:   visEnd,
		Items:        items,
		Offset:       v.offset,
		TotalSize:    v.total,
	}
}
