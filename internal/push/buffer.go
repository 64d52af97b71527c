package push

// ring keeps the most recent messages, evicting the oldest first.
// Protected by Conn.mu.
type ring struct {
	items []InboundMessage
	start int
	size  int
}

func newRing(capacity int) *ring {
	if capacity <= 0 {
		return nil
	}
	return &ring{items: make([]InboundMessage, capacity)}
}

func (r *ring) push(msg InboundMessage) {
	if r == nil {
		return
	}
	if r.size < len(r.items) {
		r.items[(r.start+r.size)%len(r.items)] = msg
		r.size++
		return
	}
	r.items[r.start] = msg
	r.start = (r.start + 1) % len(r.items)
}

// slice returns the buffered messages oldest-first.
func (r *ring) slice() []InboundMessage {
	if r == nil {
		return nil
	}
	out := make([]InboundMessage, r.size)
	for i := 0; i < r.size; i++ {
		out[i] = r.items[(r.start+i)%len(r.items)]
	}
	return out
}
