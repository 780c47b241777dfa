package sql

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ChenPufeng/Blastoise/pkg/catalog"
)

// Operator is a node of a SELECT plan. Next returns rows one at a time until
// it reports false. Rows handed out are never modified afterwards.
type Operator interface {
	Open() error
	Next() (catalog.Row, bool, error)
	Close()
	Schema() []ResultColumn

	describe() string
	children() []Operator
}

// drain opens op and collects every row it produces.
func drain(op Operator) ([]catalog.Row, error) {
	if err := op.Open(); err != nil {
		return nil, err
	}
	defer op.Close()

	var rows []catalog.Row
	for {
		row, ok, err := op.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return rows, nil
		}
		rows = append(rows, row)
	}
}

// tableScan reads a snapshot of a stored table taken at Open.
type tableScan struct {
	tm     *catalog.TableManager
	table  string
	alias  string
	schema []ResultColumn

	rows []catalog.Row
	pos  int
}

func (s *tableScan) Open() error {
	rows, err := s.tm.Scan(s.table)
	if err != nil {
		return translateError(err)
	}
	s.rows, s.pos = rows, 0
	return nil
}

func (s *tableScan) Next() (catalog.Row, bool, error) {
	if s.pos >= len(s.rows) {
		return nil, false, nil
	}
	row := s.rows[s.pos]
	s.pos++
	return row, true, nil
}

func (s *tableScan) Close()                 { s.rows = nil }
func (s *tableScan) Schema() []ResultColumn { return s.schema }
func (s *tableScan) children() []Operator   { return nil }

func (s *tableScan) describe() string {
	if s.alias != "" && s.alias != s.table {
		return fmt.Sprintf("TableScan %s AS %s", s.table, s.alias)
	}
	return "TableScan " + s.table
}

// derivedScan exposes a planned subquery as a relation of the FROM list.
type derivedScan struct {
	input Operator
	alias string
}

func (s *derivedScan) Open() error                      { return s.input.Open() }
func (s *derivedScan) Next() (catalog.Row, bool, error) { return s.input.Next() }
func (s *derivedScan) Close()                           { s.input.Close() }
func (s *derivedScan) Schema() []ResultColumn           { return s.input.Schema() }
func (s *derivedScan) children() []Operator             { return []Operator{s.input} }

func (s *derivedScan) describe() string {
	if s.alias != "" {
		return "DerivedTable AS " + s.alias
	}
	return "DerivedTable"
}

// crossJoin is the Cartesian product of its inputs. The right side is
// materialised once at Open.
type crossJoin struct {
	left, right Operator

	rightRows []catalog.Row
	cur       catalog.Row
	pos       int
}

func (j *crossJoin) Open() error {
	rows, err := drain(j.right)
	if err != nil {
		return err
	}
	j.rightRows = rows
	j.cur = nil
	j.pos = 0
	return j.left.Open()
}

func (j *crossJoin) Next() (catalog.Row, bool, error) {
	if len(j.rightRows) == 0 {
		return nil, false, nil
	}
	if j.cur == nil || j.pos >= len(j.rightRows) {
		row, ok, err := j.left.Next()
		if err != nil || !ok {
			return nil, false, err
		}
		j.cur, j.pos = row, 0
	}
	r := j.rightRows[j.pos]
	j.pos++
	out := make(catalog.Row, 0, len(j.cur)+len(r))
	out = append(out, j.cur...)
	out = append(out, r...)
	return out, true, nil
}

func (j *crossJoin) Close() {
	j.left.Close()
	j.rightRows = nil
}

func (j *crossJoin) Schema() []ResultColumn {
	return append(append([]ResultColumn{}, j.left.Schema()...), j.right.Schema()...)
}

func (j *crossJoin) describe() string     { return "CrossJoin" }
func (j *crossJoin) children() []Operator { return []Operator{j.left, j.right} }

// filter keeps rows for which cond is True.
type filter struct {
	input Operator
	cond  boundCond
	label string // "Filter" or "Having"
}

func (f *filter) Open() error { return f.input.Open() }

func (f *filter) Next() (catalog.Row, bool, error) {
	for {
		row, ok, err := f.input.Next()
		if err != nil || !ok {
			return nil, false, err
		}
		t, err := f.cond.test(row)
		if err != nil {
			return nil, false, err
		}
		if t == True {
			return row, true, nil
		}
	}
}

func (f *filter) Close()                 { f.input.Close() }
func (f *filter) Schema() []ResultColumn { return f.input.Schema() }
func (f *filter) describe() string       { return fmt.Sprintf("%s %s", f.label, f.cond) }
func (f *filter) children() []Operator   { return []Operator{f.input} }

// aggregate groups its input by key values in first-seen order. Each output
// row holds the group keys, the first input row of the group and the
// aggregate results. With no keys there is exactly one group, even when the
// input is empty.
type aggregate struct {
	input Operator
	keys  []boundExpr
	aggs  []*aggCall
	width int

	rows []catalog.Row
	pos  int
}

type group struct {
	keys  catalog.Row
	first catalog.Row
	accs  []accumulator
}

func (a *aggregate) newGroup(keys, first catalog.Row) *group {
	g := &group{keys: keys, first: first, accs: make([]accumulator, len(a.aggs))}
	for i, call := range a.aggs {
		g.accs[i] = call.newAccumulator()
	}
	return g
}

func (a *aggregate) Open() error {
	if err := a.input.Open(); err != nil {
		return err
	}
	defer a.input.Close()

	index := make(map[string]*group)
	var order []*group
	if len(a.keys) == 0 {
		g := a.newGroup(nil, nil)
		index[""] = g
		order = append(order, g)
	}

	for {
		row, ok, err := a.input.Next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}

		keyVals := make(catalog.Row, len(a.keys))
		var sb strings.Builder
		for i, k := range a.keys {
			v, err := k.eval(row)
			if err != nil {
				return err
			}
			keyVals[i] = v
			sb.WriteString(v.Key())
			sb.WriteByte(0x1f)
		}
		g, ok := index[sb.String()]
		if !ok {
			g = a.newGroup(keyVals, row)
			index[sb.String()] = g
			order = append(order, g)
		}
		if g.first == nil {
			g.first = row
		}

		for i, call := range a.aggs {
			v := catalog.Value{Type: catalog.TypeInt} // COUNT(*) ignores the value
			if call.arg != nil {
				if v, err = call.arg.eval(row); err != nil {
					return err
				}
			}
			if err := g.accs[i].add(v); err != nil {
				return at(err, call.pos)
			}
		}
	}

	a.rows = make([]catalog.Row, 0, len(order))
	for _, g := range order {
		out := make(catalog.Row, 0, len(a.keys)+a.width+len(a.aggs))
		out = append(out, g.keys...)
		if g.first != nil {
			out = append(out, g.first...)
		} else {
			for i := 0; i < a.width; i++ {
				out = append(out, catalog.Null())
			}
		}
		for i, acc := range g.accs {
			v, err := acc.result()
			if err != nil {
				return at(err, a.aggs[i].pos)
			}
			out = append(out, v)
		}
		a.rows = append(a.rows, out)
	}
	a.pos = 0
	return nil
}

func (a *aggregate) Next() (catalog.Row, bool, error) {
	if a.pos >= len(a.rows) {
		return nil, false, nil
	}
	row := a.rows[a.pos]
	a.pos++
	return row, true, nil
}

func (a *aggregate) Close() { a.rows = nil }

func (a *aggregate) Schema() []ResultColumn {
	cols := make([]ResultColumn, 0, len(a.keys)+a.width+len(a.aggs))
	for _, k := range a.keys {
		cols = append(cols, ResultColumn{Name: stripParens(k.String()), Type: k.typ()})
	}
	cols = append(cols, a.input.Schema()...)
	for _, call := range a.aggs {
		cols = append(cols, ResultColumn{Name: call.String(), Type: call.typ()})
	}
	return cols
}

func (a *aggregate) describe() string {
	var parts []string
	if len(a.keys) > 0 {
		keys := make([]string, len(a.keys))
		for i, k := range a.keys {
			keys[i] = stripParens(k.String())
		}
		parts = append(parts, "keys=["+strings.Join(keys, ", ")+"]")
	}
	aggs := make([]string, len(a.aggs))
	for i, call := range a.aggs {
		aggs[i] = call.String()
	}
	parts = append(parts, "aggs=["+strings.Join(aggs, ", ")+"]")
	return "Aggregate " + strings.Join(parts, " ")
}

func (a *aggregate) children() []Operator { return []Operator{a.input} }

// project evaluates the output expressions, followed by any hidden sort keys.
type project struct {
	input  Operator
	exprs  []boundExpr
	schema []ResultColumn
	hidden int
}

func (p *project) Open() error { return p.input.Open() }

func (p *project) Next() (catalog.Row, bool, error) {
	row, ok, err := p.input.Next()
	if err != nil || !ok {
		return nil, false, err
	}
	out := make(catalog.Row, len(p.exprs))
	for i, e := range p.exprs {
		if out[i], err = e.eval(row); err != nil {
			return nil, false, err
		}
	}
	return out, true, nil
}

func (p *project) Close()                 { p.input.Close() }
func (p *project) Schema() []ResultColumn { return p.schema }
func (p *project) children() []Operator   { return []Operator{p.input} }

func (p *project) describe() string {
	visible := len(p.exprs) - p.hidden
	names := make([]string, visible)
	for i := 0; i < visible; i++ {
		names[i] = stripParens(p.exprs[i].String())
	}
	s := "Project [" + strings.Join(names, ", ") + "]"
	if p.hidden > 0 {
		keys := make([]string, p.hidden)
		for i := 0; i < p.hidden; i++ {
			keys[i] = stripParens(p.exprs[visible+i].String())
		}
		s += " sortkeys=[" + strings.Join(keys, ", ") + "]"
	}
	return s
}

// sortOp orders rows ascending by the given columns, NULLs first, keeping
// the input order of ties. Only the first visible columns are emitted.
type sortOp struct {
	input   Operator
	keys    []int
	visible int

	rows []catalog.Row
	pos  int
}

func (s *sortOp) Open() error {
	rows, err := drain(s.input)
	if err != nil {
		return err
	}
	var sortErr error
	sort.SliceStable(rows, func(i, j int) bool {
		for _, k := range s.keys {
			a, b := rows[i][k], rows[j][k]
			switch {
			case a.IsNull && b.IsNull:
				continue
			case a.IsNull:
				return true
			case b.IsNull:
				return false
			}
			cmp, err := compareValues(a, b)
			if err != nil {
				if sortErr == nil {
					sortErr = err
				}
				return false
			}
			if cmp != 0 {
				return cmp < 0
			}
		}
		return false
	})
	if sortErr != nil {
		return sortErr
	}
	s.rows, s.pos = rows, 0
	return nil
}

func (s *sortOp) Next() (catalog.Row, bool, error) {
	if s.pos >= len(s.rows) {
		return nil, false, nil
	}
	row := s.rows[s.pos]
	s.pos++
	return row[:s.visible:s.visible], true, nil
}

func (s *sortOp) Close() { s.rows = nil }

func (s *sortOp) Schema() []ResultColumn {
	return s.input.Schema()[:s.visible]
}

func (s *sortOp) describe() string {
	schema := s.input.Schema()
	names := make([]string, len(s.keys))
	for i, k := range s.keys {
		names[i] = schema[k].Name
	}
	return "Sort [" + strings.Join(names, ", ") + "]"
}

func (s *sortOp) children() []Operator { return []Operator{s.input} }

// explain renders an operator tree, one operator per line, children indented.
func explain(op Operator) []string {
	var lines []string
	var walk func(op Operator, depth int)
	walk = func(op Operator, depth int) {
		lines = append(lines, strings.Repeat("  ", depth)+op.describe())
		for _, child := range op.children() {
			walk(child, depth+1)
		}
	}
	walk(op, 0)
	return lines
}
