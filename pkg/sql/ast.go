package sql

import (
	"fmt"
	"strings"

	"github.com/ChenPufeng/Blastoise/pkg/catalog"
)

// AST node types for SQL statements

// Statement is the interface for all SQL statements.
type Statement interface {
	statementNode()
}

// Expression is a value-producing AST node.
type Expression interface {
	exprNode()
	String() string
}

// Condition is a boolean AST node used by WHERE and HAVING.
type Condition interface {
	condNode()
	String() string
}

// ColumnDef represents a column definition in CREATE TABLE.
type ColumnDef struct {
	Name       string
	Type       catalog.DataType
	Length     int
	NotNull    bool
	PrimaryKey bool
}

// CreateTableStmt represents CREATE TABLE statement.
type CreateTableStmt struct {
	TableName string
	Columns   []ColumnDef
}

func (s *CreateTableStmt) statementNode() {}

// DropTableStmt represents DROP TABLE statement.
type DropTableStmt struct {
	TableName string
}

func (s *DropTableStmt) statementNode() {}

// InsertStmt represents INSERT [INTO] ... VALUES statement.
type InsertStmt struct {
	TableName string
	Values    []catalog.Value
}

func (s *InsertStmt) statementNode() {}

// Assignment is one "column = expr" item of UPDATE ... SET.
type Assignment struct {
	Column string
	Value  Expression
	Pos    int
}

// UpdateStmt represents UPDATE statement.
type UpdateStmt struct {
	TableName   string
	Assignments []Assignment
	Where       Condition // nil updates every row
}

func (s *UpdateStmt) statementNode() {}

// DeleteStmt represents DELETE FROM ... WHERE statement.
type DeleteStmt struct {
	TableName string
	Where     Condition
}

func (s *DeleteStmt) statementNode() {}

// SelectItem is one entry of the select list.
type SelectItem struct {
	Expr  Expression
	Alias string
}

// TableRef is one relation of the FROM list: a named table or a derived table.
type TableRef struct {
	Name     string
	Subquery *SelectStmt
	Alias    string
	Pos      int
}

// RefName returns the name the relation's columns are qualified by.
// An unaliased derived table has none.
func (r TableRef) RefName() string {
	if r.Alias != "" {
		return r.Alias
	}
	return r.Name
}

// SelectStmt represents SELECT statement.
type SelectStmt struct {
	Star    bool
	Columns []SelectItem
	From    []TableRef
	Where   Condition
	GroupBy []Expression
	Having  Condition
	OrderBy []Expression
}

func (s *SelectStmt) statementNode() {}

// ExplainStmt represents EXPLAIN SELECT statement.
type ExplainStmt struct {
	Select *SelectStmt
}

func (s *ExplainStmt) statementNode() {}

// LiteralExpr is a constant.
type LiteralExpr struct {
	Value catalog.Value
}

func (e *LiteralExpr) exprNode() {}

func (e *LiteralExpr) String() string {
	if e.Value.Type == catalog.TypeChar && !e.Value.IsNull {
		return "'" + strings.ReplaceAll(e.Value.Text, "'", "''") + "'"
	}
	return e.Value.String()
}

// ColumnRef references a column, optionally qualified by a relation name.
type ColumnRef struct {
	Table  string
	Column string
	Pos    int
}

func (e *ColumnRef) exprNode() {}

func (e *ColumnRef) String() string {
	if e.Table != "" {
		return e.Table + "." + e.Column
	}
	return e.Column
}

// BinaryExpr is an arithmetic operation.
type BinaryExpr struct {
	Left  Expression
	Op    TokenType // TOKEN_PLUS, TOKEN_MINUS, TOKEN_STAR, TOKEN_SLASH, TOKEN_PERCENT
	Right Expression
	Pos   int // of the operator
}

func (e *BinaryExpr) exprNode() {}

func (e *BinaryExpr) String() string {
	return fmt.Sprintf("(%s %s %s)", e.Left, opSymbol(e.Op), e.Right)
}

// UnaryExpr is a sign applied to an expression.
type UnaryExpr struct {
	Op   TokenType // TOKEN_PLUS or TOKEN_MINUS
	Expr Expression
	Pos  int
}

func (e *UnaryExpr) exprNode() {}

func (e *UnaryExpr) String() string {
	return opSymbol(e.Op) + e.Expr.String()
}

// AggregateExpr is a call to COUNT, SUM, AVG, MIN or MAX.
type AggregateExpr struct {
	Func TokenType
	Arg  Expression // nil for COUNT(*)
	Pos  int
}

func (e *AggregateExpr) exprNode() {}

func (e *AggregateExpr) String() string {
	if e.Arg == nil {
		return e.Func.String() + "(*)"
	}
	return e.Func.String() + "(" + stripParens(e.Arg.String()) + ")"
}

// ComparisonCond compares two expressions.
type ComparisonCond struct {
	Left  Expression
	Op    TokenType // TOKEN_EQ, TOKEN_NE, TOKEN_LT, TOKEN_LE, TOKEN_GT, TOKEN_GE
	Right Expression
	Pos   int // of the operator
}

func (c *ComparisonCond) condNode() {}

func (c *ComparisonCond) String() string {
	return fmt.Sprintf("%s %s %s", c.Left, opSymbol(c.Op), c.Right)
}

// IsNullCond is "expr IS [NOT] NULL".
type IsNullCond struct {
	Expr Expression
	Not  bool
}

func (c *IsNullCond) condNode() {}

func (c *IsNullCond) String() string {
	if c.Not {
		return c.Expr.String() + " IS NOT NULL"
	}
	return c.Expr.String() + " IS NULL"
}

// LogicalCond joins two conditions with AND or OR.
type LogicalCond struct {
	Left  Condition
	Op    TokenType // TOKEN_AND or TOKEN_OR
	Right Condition
}

func (c *LogicalCond) condNode() {}

func (c *LogicalCond) String() string {
	return fmt.Sprintf("(%s %s %s)", c.Left, c.Op, c.Right)
}

// NotCond negates a condition.
type NotCond struct {
	Cond Condition
}

func (c *NotCond) condNode() {}

func (c *NotCond) String() string {
	return "NOT " + c.Cond.String()
}

func opSymbol(op TokenType) string {
	switch op {
	case TOKEN_PLUS:
		return "+"
	case TOKEN_MINUS:
		return "-"
	case TOKEN_STAR:
		return "*"
	case TOKEN_SLASH:
		return "/"
	case TOKEN_PERCENT:
		return "%"
	case TOKEN_EQ:
		return "="
	case TOKEN_NE:
		return "!="
	case TOKEN_LT:
		return "<"
	case TOKEN_LE:
		return "<="
	case TOKEN_GT:
		return ">"
	case TOKEN_GE:
		return ">="
	}
	return op.String()
}

// stripParens drops one pair of enclosing parentheses added by BinaryExpr.String.
func stripParens(s string) string {
	if len(s) >= 2 && s[0] == '(' && s[len(s)-1] == ')' {
		depth := 0
		for i := 0; i < len(s); i++ {
			switch s[i] {
			case '(':
				depth++
			case ')':
				depth--
				if depth == 0 && i != len(s)-1 {
					return s
				}
			}
		}
		return s[1 : len(s)-1]
	}
	return s
}

// containsAggregate reports whether an aggregate call appears anywhere in e.
func containsAggregate(e Expression) bool {
	switch n := e.(type) {
	case *AggregateExpr:
		return true
	case *BinaryExpr:
		return containsAggregate(n.Left) || containsAggregate(n.Right)
	case *UnaryExpr:
		return containsAggregate(n.Expr)
	}
	return false
}

// condContainsAggregate reports whether an aggregate call appears in c.
func condContainsAggregate(c Condition) bool {
	switch n := c.(type) {
	case *ComparisonCond:
		return containsAggregate(n.Left) || containsAggregate(n.Right)
	case *IsNullCond:
		return containsAggregate(n.Expr)
	case *LogicalCond:
		return condContainsAggregate(n.Left) || condContainsAggregate(n.Right)
	case *NotCond:
		return condContainsAggregate(n.Cond)
	}
	return false
}
