package storage

import "fmt"

// RID identifies a record inside a table heap by page number and slot.
type RID struct {
	Table string
	Page  uint32
	Slot  uint16
}

func (r RID) String() string {
	return r.Table + ":" + fmtPageSlot(r.Page, r.Slot)
}

func fmtPageSlot(p uint32, s uint16) string {
	return fmt.Sprintf("%d.%d", p, s)
}
