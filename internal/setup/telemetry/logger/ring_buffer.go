package logger

// RingBuffer keeps the most recent lines written to a log file.
type RingBuffer struct {
	lines []string
	next  int // index of the next write
	count int // lines currently held
}

// NewRingBuffer creates a ring buffer holding at most capacity lines.
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity < 1 {
		capacity = 1
	}

	return &RingBuffer{lines: make([]string, capacity)}
}

// Add stores a line, overwriting the oldest one when full.
func (rb *RingBuffer) Add(line string) {
	rb.lines[rb.next] = line
	rb.next = (rb.next + 1) % len(rb.lines)

	if rb.count < len(rb.lines) {
		rb.count++
	}
}

// Len returns the number of lines held.
func (rb *RingBuffer) Len() int {
	return rb.count
}

// Cap returns the maximum number of lines held.
func (rb *RingBuffer) Cap() int {
	return len(rb.lines)
}

// Lines returns the held lines oldest first.
func (rb *RingBuffer) Lines() []string {
	if rb.count == 0 {
		return nil
	}

	out := make([]string, 0, rb.count)
	start := (rb.next - rb.count + len(rb.lines)) % len(rb.lines)

	for i := range rb.count {
		out = append(out, rb.lines[(start+i)%len(rb.lines)])
	}

	return out
}
