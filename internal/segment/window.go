package segment

// ActivityWindow holds the voiced flags of the last N frames and keeps a running count of
// the voiced ones.
type ActivityWindow struct {
	flags  []bool
	next   int
	size   int
	voiced int
}

// NewActivityWindow creates an empty window of n frames.
func NewActivityWindow(n int) *ActivityWindow {
	return &ActivityWindow{flags: make([]bool, n)}
}

// Push records one frame's flag, forgetting the oldest when the window is full.
func (w *ActivityWindow) Push(voiced bool) {
	if len(w.flags) == 0 {
		return
	}
	if w.size == len(w.flags) {
		if w.flags[w.next] {
			w.voiced--
		}
	} else {
		w.size++
	}
	w.flags[w.next] = voiced
	if voiced {
		w.voiced++
	}
	w.next = (w.next + 1) % len(w.flags)
}

// Voiced returns how many flags in the window are set.
func (w *ActivityWindow) Voiced() int { return w.voiced }

// Len returns how many flags the window currently holds.
func (w *ActivityWindow) Len() int { return w.size }

// Reset clears the window.
func (w *ActivityWindow) Reset() {
	clear(w.flags)
	w.next, w.size, w.voiced = 0, 0, 0
}
