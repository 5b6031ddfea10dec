package media

import (
	"container/heap"

	"github.com/pion/rtp"
)

// reorderBuffer выравнивает порядок входящих пакетов по sequence number.
// Пакет выдается, когда в буфере накопилось больше depth пакетов.
type reorderBuffer struct {
	depth   int
	packets seqHeap
	lastOut uint16
	started bool
	late    uint64
}

func newReorderBuffer(depth int) *reorderBuffer {
	rb := &reorderBuffer{depth: depth}
	heap.Init(&rb.packets)
	return rb
}

// Push добавляет пакет и возвращает готовые к выдаче
func (rb *reorderBuffer) Push(pkt *rtp.Packet) []*rtp.Packet {
	if rb.started && !isSeqNewer(pkt.SequenceNumber, rb.lastOut) {
		// опоздавший пакет, его место уже прошло
		rb.late++
		return nil
	}
	heap.Push(&rb.packets, pkt)

	var ready []*rtp.Packet
	for rb.packets.Len() > rb.depth {
		ready = append(ready, rb.pop())
	}
	return ready
}

// Flush выдает все оставшиеся пакеты по порядку
func (rb *reorderBuffer) Flush() []*rtp.Packet {
	var out []*rtp.Packet
	for rb.packets.Len() > 0 {
		out = append(out, rb.pop())
	}
	return out
}

func (rb *reorderBuffer) pop() *rtp.Packet {
	pkt := heap.Pop(&rb.packets).(*rtp.Packet)
	rb.lastOut = pkt.SequenceNumber
	rb.started = true
	return pkt
}

// seqHeap min-heap по sequence number с учетом переполнения
type seqHeap []*rtp.Packet

func (h seqHeap) Len() int           { return len(h) }
func (h seqHeap) Less(i, j int) bool { return isSeqNewer(h[j].SequenceNumber, h[i].SequenceNumber) }
func (h seqHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *seqHeap) Push(x interface{}) {
	*h = append(*h, x.(*rtp.Packet))
}

func (h *seqHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// isSeqNewer true, если a новее b с учетом переполнения uint16
func isSeqNewer(a, b uint16) bool {
	return a != b && int16(a-b) > 0
}
