package lipsync

// DefaultHistorySize is the number of frames averaged by default.
const DefaultHistorySize = 8

// History is a fixed-capacity FIFO of recent non-silent frames.
type History struct {
	items []FrameFeatures
	head  int
	size  int
}

// NewHistory creates an empty history holding at most capacity frames.
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = DefaultHistorySize
	}
	return &History{items: make([]FrameFeatures, capacity)}
}

// Push appends f, evicting the oldest frame when full.
func (h *History) Push(f FrameFeatures) {
	idx := (h.head + h.size) % len(h.items)
	if h.size == len(h.items) {
		h.items[h.head] = f
		h.head = (h.head + 1) % len(h.items)
		return
	}
	h.items[idx] = f
	h.size++
}

// Len returns the number of frames held.
func (h *History) Len() int {
	return h.size
}

// Cap returns the configured capacity.
func (h *History) Cap() int {
	return len(h.items)
}

// Last returns the most recently pushed frame.
func (h *History) Last() (FrameFeatures, bool) {
	if h.size == 0 {
		return FrameFeatures{}, false
	}
	return h.items[(h.head+h.size-1)%len(h.items)], true
}

// Reset empties the history.
func (h *History) Reset() {
	h.head = 0
	h.size = 0
}

// Average returns the element-wise mean of the held frames, or a zero frame
// when empty. DeltaBands of the result mirrors the averaged Bands rather
// than averaging the deltas; nothing in the classifier reads it.
func (h *History) Average() FrameFeatures {
	var avg FrameFeatures
	n := h.size
	if n == 0 {
		n = 1
	}
	for i := 0; i < h.size; i++ {
		f := &h.items[(h.head+i)%len(h.items)]
		avg.Volume += f.Volume
		avg.Centroid += f.Centroid
		for b := range f.Bands {
			avg.Bands[b] += f.Bands[b]
		}
	}
	avg.Volume /= float64(n)
	avg.Centroid /= float64(n)
	for b := range avg.Bands {
		avg.Bands[b] /= float64(n)
	}
	avg.DeltaBands = avg.Bands
	return avg
}
