// Package storage provides the in-memory row heap backing each table.
package storage

import (
	"errors"
	"fmt"
	"math"
	"sync"
)

const (
	// DefaultSlotsPerPage is the page capacity used when none is configured.
	DefaultSlotsPerPage = 128

	// MaxSlotsPerPage is the largest page capacity RID.Slot can address.
	MaxSlotsPerPage = math.MaxUint16 + 1
)

var (
	// ErrTableNotFound is returned when a heap does not exist.
	ErrTableNotFound = errors.New("heap not found")

	// ErrTableExists is returned when creating a heap that already exists.
	ErrTableExists = errors.New("heap already exists")

	// ErrRecordNotFound is returned when a RID does not point at a live record.
	ErrRecordNotFound = errors.New("record not found")
)

type heap struct {
	pages []*heapPage
}

// Storage keeps one heap of encoded records per table.
type Storage struct {
	mu           sync.RWMutex
	slotsPerPage int
	heaps        map[string]*heap
}

// NewStorage creates an empty Storage whose pages hold slotsPerPage records.
// Capacities above MaxSlotsPerPage are clamped to it.
func NewStorage(slotsPerPage int) *Storage {
	if slotsPerPage <= 0 {
		slotsPerPage = DefaultSlotsPerPage
	}
	if slotsPerPage > MaxSlotsPerPage {
		slotsPerPage = MaxSlotsPerPage
	}
	return &Storage{
		slotsPerPage: slotsPerPage,
		heaps:        make(map[string]*heap),
	}
}

// CreateTable creates an empty heap.
func (s *Storage) CreateTable(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.heaps[name]; ok {
		return fmt.Errorf("%w: %s", ErrTableExists, name)
	}
	s.heaps[name] = &heap{}
	return nil
}

// DropTable discards a heap and every record in it.
func (s *Storage) DropTable(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.heaps[name]; !ok {
		return fmt.Errorf("%w: %s", ErrTableNotFound, name)
	}
	delete(s.heaps, name)
	return nil
}

// Insert appends a copy of data to the named heap and returns its RID.
func (s *Storage) Insert(table string, data []byte) (RID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.heaps[table]
	if !ok {
		return RID{}, fmt.Errorf("%w: %s", ErrTableNotFound, table)
	}
	if len(h.pages) == 0 || h.pages[len(h.pages)-1].isFull() {
		h.pages = append(h.pages, newHeapPage(s.slotsPerPage))
	}
	pageID := len(h.pages) - 1
	buf := make([]byte, len(data))
	copy(buf, data)
	slot := h.pages[pageID].insert(buf)
	return RID{Table: table, Page: uint32(pageID), Slot: uint16(slot)}, nil
}

// Update replaces the record at rid, keeping its position in scan order.
func (s *Storage) Update(rid RID, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.page(rid)
	if err != nil {
		return err
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	p.records[rid.Slot] = buf
	return nil
}

// Delete removes the record at rid.
func (s *Storage) Delete(rid RID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.page(rid)
	if err != nil {
		return err
	}
	p.remove(int(rid.Slot))
	return nil
}

// Scan calls fn for every live record of the table in insertion order.
// Returning false from fn stops the scan early.
func (s *Storage) Scan(table string, fn func(rid RID, data []byte) (bool, error)) error {
	s.mu.RLock()
	h, ok := s.heaps[table]
	if !ok {
		s.mu.RUnlock()
		return fmt.Errorf("%w: %s", ErrTableNotFound, table)
	}
	type entry struct {
		rid  RID
		data []byte
	}
	// Collect under the lock so fn may call back into Storage.
	var entries []entry
	for pageID, p := range h.pages {
		for slot := 0; slot < p.nextSlot; slot++ {
			if !p.isInUse(slot) {
				continue
			}
			entries = append(entries, entry{
				rid:  RID{Table: table, Page: uint32(pageID), Slot: uint16(slot)},
				data: p.records[slot],
			})
		}
	}
	s.mu.RUnlock()

	for _, e := range entries {
		cont, err := fn(e.rid, e.data)
		if err != nil {
			return err
		}
		if !cont {
			return nil
		}
	}
	return nil
}

// Count returns the number of live records in a heap.
func (s *Storage) Count(table string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h, ok := s.heaps[table]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrTableNotFound, table)
	}
	n := 0
	for _, p := range h.pages {
		n += p.liveCount()
	}
	return n, nil
}

// page returns the page holding rid if the slot is live. Callers hold s.mu.
func (s *Storage) page(rid RID) (*heapPage, error) {
	h, ok := s.heaps[rid.Table]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTableNotFound, rid.Table)
	}
	if int(rid.Page) >= len(h.pages) || !h.pages[rid.Page].isInUse(int(rid.Slot)) {
		return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, rid)
	}
	return h.pages[rid.Page], nil
}
