package catalog

import (
	"fmt"
	"io"
	"sync"

	"github.com/ChenPufeng/Blastoise/pkg/storage"
)

// Predicate decides whether a stored row takes part in a DELETE or UPDATE.
type Predicate func(row Row) (bool, error)

// Mutation returns the replacement for a row selected by a Predicate.
// It must not modify row in place.
type Mutation func(row Row) ([]Value, error)

// TableManager provides high-level table operations with typed rows.
// Every mutating call either applies completely or leaves the table untouched.
type TableManager struct {
	catalog *Catalog
	storage *storage.Storage
	// primary-key index per table: key -> RID
	keys map[string]map[string]storage.RID
	mu   sync.RWMutex
}

// NewTableManager creates a TableManager over an empty catalog and store.
func NewTableManager(slotsPerPage int) *TableManager {
	return &TableManager{
		catalog: NewCatalog(),
		storage: storage.NewStorage(slotsPerPage),
		keys:    make(map[string]map[string]storage.RID),
	}
}

// Catalog returns the underlying catalog.
func (tm *TableManager) Catalog() *Catalog {
	return tm.catalog
}

// CreateTable creates a new table with the given columns.
func (tm *TableManager) CreateTable(name string, cols []Column) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	meta, err := tm.catalog.CreateTable(name, cols)
	if err != nil {
		return err
	}
	if err := tm.storage.CreateTable(name); err != nil {
		// Rollback catalog entry
		_ = tm.catalog.DropTable(name)
		return err
	}
	if len(meta.Schema.PrimaryKeyIndexes()) > 0 {
		tm.keys[name] = make(map[string]storage.RID)
	}
	return nil
}

// DropTable removes a table's schema and all of its rows.
func (tm *TableManager) DropTable(name string) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if err := tm.catalog.DropTable(name); err != nil {
		return err
	}
	delete(tm.keys, name)
	return tm.storage.DropTable(name)
}

// LoadSchema restores table definitions written by Catalog.MarshalJSON.
// Every restored table starts empty. The manager must not hold any table.
func (tm *TableManager) LoadSchema(r io.Reader) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if err := tm.catalog.LoadJSON(r); err != nil {
		return err
	}
	for _, name := range tm.catalog.ListTables() {
		meta, err := tm.catalog.GetTable(name)
		if err != nil {
			return err
		}
		if err := tm.storage.CreateTable(name); err != nil {
			return err
		}
		if len(meta.Schema.PrimaryKeyIndexes()) > 0 {
			tm.keys[name] = make(map[string]storage.RID)
		}
	}
	return nil
}

// GetSchema returns the schema of a table.
func (tm *TableManager) GetSchema(name string) (*Schema, error) {
	meta, err := tm.catalog.GetTable(name)
	if err != nil {
		return nil, err
	}
	return meta.Schema, nil
}

// ListTables returns all table names.
func (tm *TableManager) ListTables() []string {
	return tm.catalog.ListTables()
}

// DescribeTable returns column information for a table.
func (tm *TableManager) DescribeTable(name string) ([]Column, error) {
	meta, err := tm.catalog.GetTable(name)
	if err != nil {
		return nil, err
	}
	return meta.Columns, nil
}

// Count returns the number of rows stored in a table.
func (tm *TableManager) Count(name string) (int, error) {
	tm.mu.RLock()
	defer tm.mu.RUnlock()

	if _, err := tm.catalog.GetTable(name); err != nil {
		return 0, err
	}
	return tm.storage.Count(name)
}

// Scan returns a snapshot of every row of a table in insertion order.
func (tm *TableManager) Scan(name string) ([]Row, error) {
	tm.mu.RLock()
	defer tm.mu.RUnlock()

	entries, err := tm.scanLocked(name)
	if err != nil {
		return nil, err
	}
	rows := make([]Row, len(entries))
	for i, e := range entries {
		rows[i] = e.row
	}
	return rows, nil
}

// Insert validates values against the table schema and appends the row.
func (tm *TableManager) Insert(name string, values []Value) (storage.RID, error) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	meta, err := tm.catalog.GetTable(name)
	if err != nil {
		return storage.RID{}, err
	}
	row, err := meta.Schema.Conform(values)
	if err != nil {
		return storage.RID{}, err
	}

	index, hasKey := tm.keys[name]
	var key string
	if hasKey {
		key = meta.Schema.PrimaryKey(row)
		if _, dup := index[key]; dup {
			return storage.RID{}, fmt.Errorf("%w: duplicate primary key in table %q", ErrConstraintViolation, name)
		}
	}

	data, err := EncodeRow(meta.Schema, row)
	if err != nil {
		return storage.RID{}, fmt.Errorf("encode row: %w", err)
	}
	rid, err := tm.storage.Insert(name, data)
	if err != nil {
		return storage.RID{}, err
	}
	if hasKey {
		index[key] = rid
	}
	return rid, nil
}

// DeleteWhere removes every row for which pred returns true and reports how
// many were removed. A predicate error leaves the table unchanged.
func (tm *TableManager) DeleteWhere(name string, pred Predicate) (int, error) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	meta, err := tm.catalog.GetTable(name)
	if err != nil {
		return 0, err
	}
	entries, err := tm.scanLocked(name)
	if err != nil {
		return 0, err
	}

	var doomed []rowEntry
	for _, e := range entries {
		ok, err := pred(e.row)
		if err != nil {
			return 0, err
		}
		if ok {
			doomed = append(doomed, e)
		}
	}

	index := tm.keys[name]
	for _, e := range doomed {
		if err := tm.storage.Delete(e.rid); err != nil {
			return 0, err
		}
		if index != nil {
			delete(index, meta.Schema.PrimaryKey(e.row))
		}
	}
	return len(doomed), nil
}

// UpdateWhere replaces every row selected by pred with mutate's result.
// All replacement rows are computed and checked against the schema and the
// primary key before any of them is written.
func (tm *TableManager) UpdateWhere(name string, pred Predicate, mutate Mutation) (int, error) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	meta, err := tm.catalog.GetTable(name)
	if err != nil {
		return 0, err
	}
	entries, err := tm.scanLocked(name)
	if err != nil {
		return 0, err
	}

	type change struct {
		rid  storage.RID
		data []byte
	}
	var changes []change
	final := make([]rowEntry, len(entries))
	for i, e := range entries {
		final[i] = e
		ok, err := pred(e.row)
		if err != nil {
			return 0, err
		}
		if !ok {
			continue
		}
		values, err := mutate(e.row)
		if err != nil {
			return 0, err
		}
		row, err := meta.Schema.Conform(values)
		if err != nil {
			return 0, err
		}
		data, err := EncodeRow(meta.Schema, row)
		if err != nil {
			return 0, fmt.Errorf("encode row: %w", err)
		}
		final[i].row = row
		changes = append(changes, change{rid: e.rid, data: data})
	}

	var index map[string]storage.RID
	if _, hasKey := tm.keys[name]; hasKey && len(changes) > 0 {
		index = make(map[string]storage.RID, len(final))
		for _, e := range final {
			key := meta.Schema.PrimaryKey(e.row)
			if _, dup := index[key]; dup {
				return 0, fmt.Errorf("%w: duplicate primary key in table %q", ErrConstraintViolation, name)
			}
			index[key] = e.rid
		}
	}

	for _, c := range changes {
		if err := tm.storage.Update(c.rid, c.data); err != nil {
			return 0, err
		}
	}
	if index != nil {
		tm.keys[name] = index
	}
	return len(changes), nil
}

type rowEntry struct {
	rid storage.RID
	row Row
}

// scanLocked decodes every stored row. Callers hold tm.mu.
func (tm *TableManager) scanLocked(name string) ([]rowEntry, error) {
	meta, err := tm.catalog.GetTable(name)
	if err != nil {
		return nil, err
	}
	var entries []rowEntry
	err = tm.storage.Scan(name, func(rid storage.RID, data []byte) (bool, error) {
		row, err := DecodeRow(meta.Schema, data)
		if err != nil {
			return false, fmt.Errorf("decode %s: %w", rid, err)
		}
		entries = append(entries, rowEntry{rid: rid, row: row})
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}
