package catalog

import (
	"bytes"
	"errors"
	"fmt"
	"testing"
)

func TestTypesAndEncoding(t *testing.T) {
	schema := NewSchema([]Column{
		{Name: "id", Type: TypeInt, NotNull: true},
		{Name: "name", Type: TypeChar, Length: 8},
		{Name: "score", Type: TypeFloat},
	})

	values := Row{NewInt(-42), NewText("Alice"), NewFloat(3.25)}

	data, err := EncodeRow(schema, values)
	if err != nil {
		t.Fatalf("EncodeRow error: %v", err)
	}
	decoded, err := DecodeRow(schema, data)
	if err != nil {
		t.Fatalf("DecodeRow error: %v", err)
	}
	if len(decoded) != len(values) {
		t.Fatalf("expected %d values, got %d", len(values), len(decoded))
	}
	for i := range values {
		if decoded[i] != values[i] {
			t.Errorf("column %d: expected %v, got %v", i, values[i], decoded[i])
		}
	}
}

func TestEncodingWithNulls(t *testing.T) {
	schema := NewSchema([]Column{
		{Name: "id", Type: TypeInt, NotNull: true},
		{Name: "name", Type: TypeChar},
	})

	data, err := EncodeRow(schema, Row{NewInt(1), {Type: TypeChar, IsNull: true}})
	if err != nil {
		t.Fatalf("EncodeRow error: %v", err)
	}
	decoded, err := DecodeRow(schema, data)
	if err != nil {
		t.Fatalf("DecodeRow error: %v", err)
	}
	if !decoded[1].IsNull {
		t.Errorf("name: expected NULL, got %v", decoded[1])
	}

	if _, err := DecodeRow(schema, append(data, 0)); err == nil {
		t.Error("expected error for trailing bytes")
	}
}

func TestConform(t *testing.T) {
	schema := NewSchema([]Column{
		{Name: "id", Type: TypeInt, PrimaryKey: true},
		{Name: "price", Type: TypeFloat},
		{Name: "code", Type: TypeChar, Length: 3},
	})

	tests := []struct {
		name   string
		values []Value
		want   error
	}{
		{"ok", []Value{NewInt(1), NewFloat(1.5), NewText("abc")}, nil},
		{"int widened to float", []Value{NewInt(1), NewInt(2), NewText("a")}, nil},
		{"too few values", []Value{NewInt(1)}, ErrSchemaMismatch},
		{"float into int", []Value{NewFloat(1), NewFloat(2), NewText("a")}, ErrSchemaMismatch},
		{"text too long", []Value{NewInt(1), NewFloat(2), NewText("abcd")}, ErrSchemaMismatch},
		{"null primary key", []Value{Null(), NewFloat(2), NewText("a")}, ErrConstraintViolation},
		{"null allowed", []Value{NewInt(1), Null(), Null()}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row, err := schema.Conform(tt.values)
			if tt.want == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if !row[1].IsNull && row[1].Type != TypeFloat {
					t.Errorf("price stored as %s, want FLOAT", row[1].Type)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestValueKey(t *testing.T) {
	if NewInt(2).Key() != NewFloat(2).Key() {
		t.Error("2 and 2.0 should share a key")
	}
	if NewInt(2).Key() == NewText("2").Key() {
		t.Error("2 and '2' must not share a key")
	}
	if Null().Key() == NewText("").Key() {
		t.Error("NULL and '' must not share a key")
	}
}

func TestCatalogCreateDrop(t *testing.T) {
	cat := NewCatalog()

	cols := []Column{
		{Name: "id", Type: TypeInt, PrimaryKey: true},
		{Name: "name", Type: TypeChar, Length: 20},
	}
	meta, err := cat.CreateTable("users", cols)
	if err != nil {
		t.Fatalf("CreateTable error: %v", err)
	}
	if !meta.Columns[0].NotNull {
		t.Error("primary-key column should be NOT NULL")
	}

	if _, err := cat.CreateTable("users", cols); !errors.Is(err, ErrTableExists) {
		t.Errorf("duplicate create: got %v", err)
	}

	dup := []Column{{Name: "a", Type: TypeInt}, {Name: "a", Type: TypeFloat}}
	if _, err := cat.CreateTable("bad", dup); !errors.Is(err, ErrSchemaMismatch) {
		t.Errorf("duplicate column: got %v", err)
	}

	if _, err := cat.CreateTable("accounts", []Column{{Name: "n", Type: TypeInt}}); err != nil {
		t.Fatal(err)
	}
	if got := fmt.Sprint(cat.ListTables()); got != "[accounts users]" {
		t.Errorf("ListTables = %s", got)
	}

	if err := cat.DropTable("users"); err != nil {
		t.Fatalf("DropTable error: %v", err)
	}
	if _, err := cat.GetTable("users"); !errors.Is(err, ErrTableNotFound) {
		t.Errorf("GetTable after drop: got %v", err)
	}
	if err := cat.DropTable("users"); !errors.Is(err, ErrTableNotFound) {
		t.Errorf("second drop: got %v", err)
	}
}

func TestCatalogJSONRoundTrip(t *testing.T) {
	cat := NewCatalog()
	_, _ = cat.CreateTable("t", []Column{
		{Name: "id", Type: TypeInt, PrimaryKey: true},
		{Name: "label", Type: TypeChar, Length: 5},
	})
	_, _ = cat.CreateTable("s", []Column{{Name: "x", Type: TypeFloat}})

	data, err := cat.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON error: %v", err)
	}
	if !bytes.Contains(data, []byte(`"attr_type":"CHAR"`)) {
		t.Errorf("unexpected JSON: %s", data)
	}

	loaded := NewCatalog()
	if err := loaded.LoadJSON(bytes.NewReader(data)); err != nil {
		t.Fatalf("LoadJSON error: %v", err)
	}
	meta, err := loaded.GetTable("t")
	if err != nil {
		t.Fatal(err)
	}
	if meta.Schema == nil || meta.Columns[1].Length != 5 || !meta.Columns[0].PrimaryKey {
		t.Errorf("table not restored: %+v", meta)
	}
	if err := loaded.LoadJSON(bytes.NewReader(data)); err == nil {
		t.Error("loading into a non-empty catalog should fail")
	}

	// the next table keeps counting after the restored IDs
	next, err := loaded.CreateTable("u", []Column{{Name: "y", Type: TypeInt}})
	if err != nil {
		t.Fatal(err)
	}
	if next.ID != 3 {
		t.Errorf("next ID = %d, want 3", next.ID)
	}
}

func TestTableManagerInsertAndScan(t *testing.T) {
	tm := NewTableManager(2)
	err := tm.CreateTable("t", []Column{
		{Name: "id", Type: TypeInt, PrimaryKey: true},
		{Name: "v", Type: TypeInt, NotNull: true},
	})
	if err != nil {
		t.Fatal(err)
	}

	for i := int64(1); i <= 5; i++ {
		if _, err := tm.Insert("t", []Value{NewInt(i), NewInt(i * 10)}); err != nil {
			t.Fatalf("Insert %d: %v", i, err)
		}
	}
	if _, err := tm.Insert("t", []Value{NewInt(3), NewInt(0)}); !errors.Is(err, ErrConstraintViolation) {
		t.Errorf("duplicate key: got %v", err)
	}
	if _, err := tm.Insert("t", []Value{NewInt(9), Null()}); !errors.Is(err, ErrConstraintViolation) {
		t.Errorf("NULL into NOT NULL: got %v", err)
	}
	if _, err := tm.Insert("missing", nil); !errors.Is(err, ErrTableNotFound) {
		t.Errorf("unknown table: got %v", err)
	}

	rows, err := tm.Scan("t")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 5 {
		t.Fatalf("scan returned %d rows, want 5", len(rows))
	}
	for i, r := range rows {
		if r[0].Int != int64(i+1) {
			t.Errorf("row %d has id %d", i, r[0].Int)
		}
	}
}

func TestTableManagerDeleteWhere(t *testing.T) {
	tm := NewTableManager(0)
	_ = tm.CreateTable("t", []Column{{Name: "id", Type: TypeInt, PrimaryKey: true}})
	for i := int64(1); i <= 4; i++ {
		_, _ = tm.Insert("t", []Value{NewInt(i)})
	}

	n, err := tm.DeleteWhere("t", func(r Row) (bool, error) { return r[0].Int%2 == 0, nil })
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("deleted %d, want 2", n)
	}
	// a freed key can be inserted again
	if _, err := tm.Insert("t", []Value{NewInt(2)}); err != nil {
		t.Errorf("reinsert deleted key: %v", err)
	}

	boom := errors.New("boom")
	_, err = tm.DeleteWhere("t", func(r Row) (bool, error) {
		if r[0].Int == 3 {
			return false, boom
		}
		return true, nil
	})
	if !errors.Is(err, boom) {
		t.Fatalf("got %v, want boom", err)
	}
	if c, _ := tm.Count("t"); c != 3 {
		t.Errorf("failed delete changed the table: count %d", c)
	}
}

func TestTableManagerUpdateAllOrNothing(t *testing.T) {
	tm := NewTableManager(0)
	_ = tm.CreateTable("t", []Column{
		{Name: "id", Type: TypeInt, PrimaryKey: true},
		{Name: "v", Type: TypeInt},
	})
	for i := int64(1); i <= 3; i++ {
		_, _ = tm.Insert("t", []Value{NewInt(i), NewInt(0)})
	}
	all := func(Row) (bool, error) { return true, nil }

	// every id collapses to 1
	_, err := tm.UpdateWhere("t", all, func(r Row) ([]Value, error) {
		return []Value{NewInt(1), r[1]}, nil
	})
	if !errors.Is(err, ErrConstraintViolation) {
		t.Fatalf("got %v, want constraint violation", err)
	}
	rows, _ := tm.Scan("t")
	for i, r := range rows {
		if r[0].Int != int64(i+1) {
			t.Fatalf("failed update changed row %d: %v", i, r)
		}
	}

	// shifting every key by one is fine even though keys overlap midway
	n, err := tm.UpdateWhere("t", all, func(r Row) ([]Value, error) {
		return []Value{NewInt(r[0].Int + 1), NewInt(r[0].Int * 100)}, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Errorf("updated %d, want 3", n)
	}
	if _, err := tm.Insert("t", []Value{NewInt(1), Null()}); err != nil {
		t.Errorf("id 1 should be free after the shift: %v", err)
	}
	if _, err := tm.Insert("t", []Value{NewInt(4), Null()}); !errors.Is(err, ErrConstraintViolation) {
		t.Errorf("id 4 should be taken after the shift: %v", err)
	}
}

func TestTableManagerDrop(t *testing.T) {
	tm := NewTableManager(0)
	_ = tm.CreateTable("t", []Column{{Name: "id", Type: TypeInt}})
	_, _ = tm.Insert("t", []Value{NewInt(1)})
	if err := tm.DropTable("t"); err != nil {
		t.Fatal(err)
	}
	if err := tm.DropTable("t"); !errors.Is(err, ErrTableNotFound) {
		t.Errorf("second drop: got %v", err)
	}
	_ = tm.CreateTable("t", []Column{{Name: "id", Type: TypeInt}})
	if c, _ := tm.Count("t"); c != 0 {
		t.Errorf("recreated table has %d rows", c)
	}
}

func TestTableManagerLoadSchema(t *testing.T) {
	src := NewTableManager(0)
	_ = src.CreateTable("t", []Column{
		{Name: "id", Type: TypeInt, PrimaryKey: true},
		{Name: "label", Type: TypeChar, Length: 5},
	})
	_, _ = src.Insert("t", []Value{NewInt(1), NewText("a")})
	data, err := src.Catalog().MarshalJSON()
	if err != nil {
		t.Fatal(err)
	}

	tm := NewTableManager(0)
	if err := tm.LoadSchema(bytes.NewReader(data)); err != nil {
		t.Fatalf("LoadSchema error: %v", err)
	}
	if c, err := tm.Count("t"); err != nil || c != 0 {
		t.Fatalf("restored table: count %d, err %v", c, err)
	}

	// the restored table has a heap and enforces its primary key
	if _, err := tm.Insert("t", []Value{NewInt(1), NewText("a")}); err != nil {
		t.Fatalf("Insert into restored table: %v", err)
	}
	if _, err := tm.Insert("t", []Value{NewInt(1), NewText("b")}); !errors.Is(err, ErrConstraintViolation) {
		t.Errorf("duplicate key in restored table: got %v", err)
	}
	rows, err := tm.Scan("t")
	if err != nil || len(rows) != 1 {
		t.Errorf("Scan restored table: %v, %v", rows, err)
	}

	if err := tm.LoadSchema(bytes.NewReader(data)); err == nil {
		t.Error("loading into a manager with tables should fail")
	}
}

func TestTableManagerDeleteOnWidePages(t *testing.T) {
	// more slots than a RID can address are clamped to one full slot range
	tm := NewTableManager(70000)
	_ = tm.CreateTable("t", []Column{{Name: "id", Type: TypeInt}})

	const n = 65537
	for i := 1; i <= n; i++ {
		if _, err := tm.Insert("t", []Value{NewInt(int64(i))}); err != nil {
			t.Fatalf("Insert %d: %v", i, err)
		}
	}

	deleted, err := tm.DeleteWhere("t", func(row Row) (bool, error) {
		return row[0].Int == n, nil
	})
	if err != nil || deleted != 1 {
		t.Fatalf("DeleteWhere: deleted %d, err %v", deleted, err)
	}

	rows, err := tm.Scan("t")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != n-1 || rows[0][0].Int != 1 || rows[len(rows)-1][0].Int != n-1 {
		t.Errorf("wrong rows survived: %d rows, first %v, last %v", len(rows), rows[0], rows[len(rows)-1])
	}
}
