package assetGatherer

// GatherResults is a FIFO buffer. Producers Push, the single consumer Pops
// from the front and calls Trim once in a while to drop popped entries.
// It is not safe for concurrent use.
type GatherResults[T any] struct {
	items    []T
	popIndex int
}

func (g *GatherResults[T]) Push(items ...T) {
	g.items = append(g.items, items...)
}

// Pop returns the oldest remaining entry.
func (g *GatherResults[T]) Pop() (T, bool) {
	var zero T
	if g.popIndex >= len(g.items) {
		return zero, false
	}
	v := g.items[g.popIndex]
	g.items[g.popIndex] = zero
	g.popIndex++
	return v, true
}

// Len is the number of entries not yet popped.
func (g *GatherResults[T]) Len() int { return len(g.items) - g.popIndex }

// Items returns the entries not yet popped without consuming them.
func (g *GatherResults[T]) Items() []T { return g.items[g.popIndex:] }

// Trim erases popped entries.
func (g *GatherResults[T]) Trim() {
	if g.popIndex == 0 {
		return
	}
	n := copy(g.items, g.items[g.popIndex:])
	clear(g.items[n:])
	g.items = g.items[:n]
	g.popIndex = 0
}

// Prioritize moves entries matching first to the front, keeping the
// relative order inside both groups.
func (g *GatherResults[T]) Prioritize(first func(T) bool) int {
	g.Trim()
	front := make([]T, 0, len(g.items))
	back := make([]T, 0, len(g.items))
	for _, v := range g.items {
		if first(v) {
			front = append(front, v)
		} else {
			back = append(back, v)
		}
	}
	g.items = append(front, back...)
	return len(front)
}

// MoveTo appends every remaining entry to dst and empties g.
func (g *GatherResults[T]) MoveTo(dst *GatherResults[T]) {
	dst.items = append(dst.items, g.items[g.popIndex:]...)
	g.Reset()
}

func (g *GatherResults[T]) Reset() {
	g.items = nil
	g.popIndex = 0
}
