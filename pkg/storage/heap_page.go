package storage

// heapPage is an in-memory page of fixed slot capacity. Slots are handed out
// in order and never reused, so a scan over pages and slots returns records
// in insertion order. A bitmap marks which slots still hold a live record.
type heapPage struct {
	records  [][]byte
	inUse    []byte
	nextSlot int
}

func newHeapPage(slotCount int) *heapPage {
	return &heapPage{
		records: make([][]byte, slotCount),
		inUse:   make([]byte, (slotCount+7)/8),
	}
}

func (p *heapPage) slotCount() int {
	return len(p.records)
}

func (p *heapPage) isFull() bool {
	return p.nextSlot == p.slotCount()
}

func (p *heapPage) isInUse(slot int) bool {
	if slot < 0 || slot >= p.slotCount() {
		return false
	}
	return p.inUse[slot/8]&(1<<(slot%8)) != 0
}

func (p *heapPage) setInUse(slot int, inUse bool) {
	mask := byte(1 << (slot % 8))
	if inUse {
		p.inUse[slot/8] |= mask
	} else {
		p.inUse[slot/8] &^= mask
	}
}

// insert stores data in the next free slot and returns its index.
// The caller must check isFull first.
func (p *heapPage) insert(data []byte) int {
	slot := p.nextSlot
	p.records[slot] = data
	p.setInUse(slot, true)
	p.nextSlot++
	return slot
}

func (p *heapPage) remove(slot int) {
	p.records[slot] = nil
	p.setInUse(slot, false)
}

// liveCount returns how many slots hold a record.
func (p *heapPage) liveCount() int {
	n := 0
	for i := 0; i < p.nextSlot; i++ {
		if p.isInUse(i) {
			n++
		}
	}
	return n
}
