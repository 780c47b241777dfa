package sql

import (
	"fmt"

	"github.com/ChenPufeng/Blastoise/pkg/catalog"
)

// ResultKind says which part of a Result is meaningful.
type ResultKind int

const (
	ResultRows    ResultKind = iota // SELECT: Columns and Rows
	ResultCount                     // INSERT, UPDATE, DELETE: RowsAffected
	ResultDDL                       // CREATE TABLE, DROP TABLE: Message
	ResultExplain                   // EXPLAIN: one row per plan line
)

// ResultColumn names and types one output column.
type ResultColumn struct {
	Name string
	Type catalog.DataType
}

// Result represents the result of executing a SQL statement.
type Result struct {
	Kind         ResultKind
	Message      string
	Columns      []ResultColumn
	Rows         []catalog.Row
	RowsAffected int
}

// ColumnNames returns the output column names in order.
func (r *Result) ColumnNames() []string {
	names := make([]string, len(r.Columns))
	for i, c := range r.Columns {
		names[i] = c.Name
	}
	return names
}

// Executor executes SQL statements against a TableManager.
type Executor struct {
	tm      *catalog.TableManager
	planner *Planner
}

// NewExecutor creates a new Executor.
func NewExecutor(tm *catalog.TableManager) *Executor {
	return &Executor{tm: tm, planner: NewPlanner(tm)}
}

// Execute executes a SQL statement and returns a result.
func (e *Executor) Execute(stmt Statement) (*Result, error) {
	var (
		res *Result
		err error
	)
	switch s := stmt.(type) {
	case *SelectStmt:
		res, err = e.executeSelect(s)
	case *ExplainStmt:
		res, err = e.executeExplain(s)
	case *InsertStmt:
		res, err = e.executeInsert(s)
	case *UpdateStmt:
		res, err = e.executeUpdate(s)
	case *DeleteStmt:
		res, err = e.executeDelete(s)
	case *CreateTableStmt:
		res, err = e.executeCreate(s)
	case *DropTableStmt:
		res, err = e.executeDrop(s)
	default:
		return nil, fmt.Errorf("unsupported statement type: %T", stmt)
	}
	if err != nil {
		return nil, translateError(err)
	}
	return res, nil
}

func (e *Executor) executeSelect(stmt *SelectStmt) (*Result, error) {
	plan, err := e.planner.PlanSelect(stmt)
	if err != nil {
		return nil, err
	}
	rows, err := drain(plan)
	if err != nil {
		return nil, err
	}
	return &Result{Kind: ResultRows, Columns: plan.Schema(), Rows: rows}, nil
}

func (e *Executor) executeExplain(stmt *ExplainStmt) (*Result, error) {
	plan, err := e.planner.PlanSelect(stmt.Select)
	if err != nil {
		return nil, err
	}
	res := &Result{
		Kind:    ResultExplain,
		Columns: []ResultColumn{{Name: "QUERY PLAN", Type: catalog.TypeChar}},
	}
	for _, line := range explain(plan) {
		res.Rows = append(res.Rows, catalog.Row{catalog.NewText(line)})
	}
	return res, nil
}

func (e *Executor) executeCreate(stmt *CreateTableStmt) (*Result, error) {
	cols := make([]catalog.Column, len(stmt.Columns))
	for i, c := range stmt.Columns {
		cols[i] = catalog.Column{
			Name:       c.Name,
			Type:       c.Type,
			Length:     c.Length,
			NotNull:    c.NotNull || c.PrimaryKey,
			PrimaryKey: c.PrimaryKey,
		}
	}
	if err := e.tm.CreateTable(stmt.TableName, cols); err != nil {
		return nil, err
	}
	return &Result{Kind: ResultDDL, Message: fmt.Sprintf("Table %s created.", stmt.TableName)}, nil
}

func (e *Executor) executeDrop(stmt *DropTableStmt) (*Result, error) {
	if err := e.tm.DropTable(stmt.TableName); err != nil {
		return nil, err
	}
	return &Result{Kind: ResultDDL, Message: fmt.Sprintf("Table %s dropped.", stmt.TableName)}, nil
}

func (e *Executor) executeInsert(stmt *InsertStmt) (*Result, error) {
	if _, err := e.tm.Insert(stmt.TableName, stmt.Values); err != nil {
		return nil, err
	}
	return &Result{Kind: ResultCount, RowsAffected: 1, Message: "1 row inserted."}, nil
}

// tablePredicate binds a WHERE clause against one table. A nil condition matches every row.
func (e *Executor) tablePredicate(b *binder, where Condition) (catalog.Predicate, error) {
	if where == nil {
		return func(catalog.Row) (bool, error) { return true, nil }, nil
	}
	cond, err := b.bindCond(where, bindContext{clause: "WHERE"})
	if err != nil {
		return nil, err
	}
	return func(row catalog.Row) (bool, error) {
		t, err := cond.test(row)
		return t == True, err
	}, nil
}

func (e *Executor) executeUpdate(stmt *UpdateStmt) (*Result, error) {
	schema, err := e.tm.GetSchema(stmt.TableName)
	if err != nil {
		return nil, err
	}
	b := bindTableScope(stmt.TableName, schema)
	pred, err := e.tablePredicate(b, stmt.Where)
	if err != nil {
		return nil, err
	}

	type setter struct {
		idx  int
		expr boundExpr
	}
	setters := make([]setter, 0, len(stmt.Assignments))
	assigned := make(map[string]bool, len(stmt.Assignments))
	for _, a := range stmt.Assignments {
		_, idx := schema.ColumnByName(a.Column)
		if idx < 0 {
			return nil, &Error{Kind: KindUnknownColumn, Msg: fmt.Sprintf("column %s does not exist in table %s", a.Column, stmt.TableName), Pos: a.Pos}
		}
		if assigned[a.Column] {
			return nil, &Error{Kind: KindSchemaMismatch, Msg: fmt.Sprintf("column %s assigned more than once", a.Column), Pos: a.Pos}
		}
		assigned[a.Column] = true
		expr, err := b.bindExpr(a.Value, bindContext{clause: "UPDATE SET"})
		if err != nil {
			return nil, err
		}
		setters = append(setters, setter{idx: idx, expr: expr})
	}

	// SET expressions all read the old row
	n, err := e.tm.UpdateWhere(stmt.TableName, pred, func(row catalog.Row) ([]catalog.Value, error) {
		next := make([]catalog.Value, len(row))
		copy(next, row)
		for _, s := range setters {
			v, err := s.expr.eval(row)
			if err != nil {
				return nil, err
			}
			next[s.idx] = v
		}
		return next, nil
	})
	if err != nil {
		return nil, err
	}
	return &Result{Kind: ResultCount, RowsAffected: n, Message: fmt.Sprintf("%d row(s) updated.", n)}, nil
}

func (e *Executor) executeDelete(stmt *DeleteStmt) (*Result, error) {
	schema, err := e.tm.GetSchema(stmt.TableName)
	if err != nil {
		return nil, err
	}
	pred, err := e.tablePredicate(bindTableScope(stmt.TableName, schema), stmt.Where)
	if err != nil {
		return nil, err
	}
	n, err := e.tm.DeleteWhere(stmt.TableName, pred)
	if err != nil {
		return nil, err
	}
	return &Result{Kind: ResultCount, RowsAffected: n, Message: fmt.Sprintf("%d row(s) deleted.", n)}, nil
}
