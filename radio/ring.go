package radio

// RingCapacity bounds the number of frames a driver buffers between drains.
const RingCapacity = 16

// Ring is a fixed-capacity FIFO of raw frames. It is not synchronised;
// drivers guard it with their own lock.
type Ring struct {
	data       [RingCapacity]RawFrame
	head, tail int // head = next pop, tail = next push
	count      int
}

// Push appends f, overwriting the oldest frame when full. It reports
// whether a frame was dropped.
func (rb *Ring) Push(f RawFrame) (dropped bool) {
	if rb.count == RingCapacity {
		rb.head = (rb.head + 1) % RingCapacity
		rb.count--
		dropped = true
	}
	rb.data[rb.tail] = f
	rb.tail = (rb.tail + 1) % RingCapacity
	rb.count++
	return dropped
}

// Pop removes the oldest frame.
func (rb *Ring) Pop() (RawFrame, bool) {
	if rb.count == 0 {
		return RawFrame{}, false
	}
	f := rb.data[rb.head]
	rb.head = (rb.head + 1) % RingCapacity
	rb.count--
	return f, true
}

// Len returns the number of buffered frames.
func (rb *Ring) Len() int { return rb.count }
