package bluetooth

// pendingList is a bounded unordered list of events waiting for an address
// resolution. Removal swaps the last item into the freed slot.
type pendingList[T any] struct {
	items []T
}

func newPendingList[T any](capacity int) *pendingList[T] {
	return &pendingList[T]{items: make([]T, 0, capacity)}
}

// push adds v to the list. It returns false when the list is full.
func (l *pendingList[T]) push(v T) bool {
	if len(l.items) == cap(l.items) {
		return false
	}
	l.items = append(l.items, v)
	return true
}

// pop removes and returns the first item matching fn.
func (l *pendingList[T]) pop(fn func(T) bool) (v T, ok bool) {
	for i, item := range l.items {
		if !fn(item) {
			continue
		}
		last := len(l.items) - 1
		l.items[i] = l.items[last]
		var zero T
		l.items[last] = zero
		l.items = l.items[:last]
		return item, true
	}
	return v, false
}

func (l *pendingList[T]) len() int {
	return len(l.items)
}

func (l *pendingList[T]) full() bool {
	return len(l.items) == cap(l.items)
}

func (l *pendingList[T]) reset() {
	var zero T
	for i := range l.items {
		l.items[i] = zero
	}
	l.items = l.items[:0]
}
