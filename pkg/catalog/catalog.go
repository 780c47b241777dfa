package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/samber/lo"
)

var (
	// ErrTableNotFound is returned when a table doesn't exist.
	ErrTableNotFound = errors.New("table not found")

	// ErrTableExists is returned when creating a table whose name is taken.
	ErrTableExists = errors.New("table already exists")

	// ErrSchemaMismatch is returned when values or a definition do not fit a schema.
	ErrSchemaMismatch = errors.New("schema mismatch")

	// ErrConstraintViolation is returned when a row breaks NOT NULL or primary-key rules.
	ErrConstraintViolation = errors.New("constraint violation")
)

// TableMeta holds metadata for a table.
type TableMeta struct {
	ID      int      `json:"id"`
	Name    string   `json:"name"`
	Schema  *Schema  `json:"-"`
	Columns []Column `json:"attr_list"`
}

// Catalog maps table names to their schemas.
type Catalog struct {
	mu     sync.RWMutex
	tables map[string]*TableMeta
	nextID int
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		tables: make(map[string]*TableMeta),
		nextID: 1,
	}
}

// validateColumns rejects empty and duplicate column lists.
func validateColumns(name string, cols []Column) error {
	if len(cols) == 0 {
		return fmt.Errorf("%w: table %q has no columns", ErrSchemaMismatch, name)
	}
	seen := make(map[string]bool, len(cols))
	for _, c := range cols {
		if seen[c.Name] {
			return fmt.Errorf("%w: duplicate column %q in table %q", ErrSchemaMismatch, c.Name, name)
		}
		seen[c.Name] = true
		if c.Type == TypeUnknown {
			return fmt.Errorf("%w: column %q has no type", ErrSchemaMismatch, c.Name)
		}
	}
	return nil
}

// CreateTable registers a new table with the given columns.
// Primary-key columns are marked NOT NULL.
func (c *Catalog) CreateTable(name string, cols []Column) (*TableMeta, error) {
	if err := validateColumns(name, cols); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.tables[name]; exists {
		return nil, fmt.Errorf("%w: %q", ErrTableExists, name)
	}

	owned := make([]Column, len(cols))
	copy(owned, cols)
	for i := range owned {
		if owned[i].PrimaryKey {
			owned[i].NotNull = true
		}
	}

	meta := &TableMeta{
		ID:      c.nextID,
		Name:    name,
		Columns: owned,
		Schema:  NewSchema(owned),
	}
	c.nextID++
	c.tables[name] = meta
	return meta, nil
}

// DropTable removes a table from the catalog.
func (c *Catalog) DropTable(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.tables[name]; !exists {
		return fmt.Errorf("%w: %q", ErrTableNotFound, name)
	}
	delete(c.tables, name)
	return nil
}

// GetTable returns metadata for a table.
func (c *Catalog) GetTable(name string) (*TableMeta, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	t, exists := c.tables[name]
	if !exists {
		return nil, fmt.Errorf("%w: %q", ErrTableNotFound, name)
	}
	return t, nil
}

// ListTables returns all table names in sorted order.
func (c *Catalog) ListTables() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := lo.Keys(c.tables)
	sort.Strings(names)
	return names
}

type catalogState struct {
	Tables []*TableMeta `json:"tables"`
	NextID int          `json:"next_id"`
}

// MarshalJSON exports every table definition, ordered by table ID.
func (c *Catalog) MarshalJSON() ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	tables := lo.Values(c.tables)
	sort.Slice(tables, func(i, j int) bool { return tables[i].ID < tables[j].ID })
	return json.Marshal(catalogState{Tables: tables, NextID: c.nextID})
}

// LoadJSON reads table definitions written by MarshalJSON into an empty catalog.
func (c *Catalog) LoadJSON(r io.Reader) error {
	var state catalogState
	if err := json.NewDecoder(r).Decode(&state); err != nil {
		return fmt.Errorf("decode catalog: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.tables) > 0 {
		return errors.New("load catalog: catalog is not empty")
	}
	loaded := make(map[string]*TableMeta, len(state.Tables))
	for _, t := range state.Tables {
		if err := validateColumns(t.Name, t.Columns); err != nil {
			return err
		}
		if _, dup := loaded[t.Name]; dup {
			return fmt.Errorf("%w: %q", ErrTableExists, t.Name)
		}
		t.Schema = NewSchema(t.Columns)
		loaded[t.Name] = t
	}
	c.tables = loaded
	c.nextID = state.NextID
	if c.nextID < 1 {
		c.nextID = len(loaded) + 1
	}
	return nil
}
