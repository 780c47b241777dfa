package sql

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ChenPufeng/Blastoise/internal/logger"
	"github.com/ChenPufeng/Blastoise/pkg/catalog"
)

// Session runs statement text against one TableManager. Statements are
// serialised, so a Session may be shared between goroutines.
type Session struct {
	mu       sync.Mutex
	id       string
	tm       *catalog.TableManager
	executor *Executor
	log      *logger.Logger
	maxDepth int
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithLogger sets the logger statements are reported to.
func WithLogger(log *logger.Logger) SessionOption {
	return func(s *Session) {
		if log != nil {
			s.log = log
		}
	}
}

// WithMaxDepth sets the parser nesting limit, at most MaxNestingDepth.
func WithMaxDepth(n int) SessionOption {
	return func(s *Session) {
		if n > 0 {
			s.maxDepth = min(n, MaxNestingDepth)
		}
	}
}

// NewSession creates a new session over tm.
func NewSession(tm *catalog.TableManager, opts ...SessionOption) *Session {
	s := &Session{
		id:       uuid.NewString(),
		tm:       tm,
		executor: NewExecutor(tm),
		log:      logger.NewNop(),
		maxDepth: DefaultMaxDepth,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.Named("session").With("session_id", s.id)
	return s
}

// ID returns the session identifier used in log entries.
func (s *Session) ID() string {
	return s.id
}

// TableManager returns the tables this session works on.
func (s *Session) TableManager() *catalog.TableManager {
	return s.tm
}

// ExecuteSQL parses and executes one statement.
func (s *Session) ExecuteSQL(input string) (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.execute(input)
}

// ExecuteScript runs every semicolon-separated statement of input in order,
// stopping at the first failure. Results of the statements that ran are
// returned along with the error.
func (s *Session) ExecuteScript(input string) ([]*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var results []*Result
	for _, stmt := range SplitStatements(input) {
		res, err := s.execute(stmt)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

func (s *Session) execute(input string) (*Result, error) {
	start := time.Now()
	stmt, err := ParseStatement(input, s.maxDepth)
	if err != nil {
		s.log.Warn("parse failed", "error", err, "sql", input)
		return nil, err
	}

	res, err := s.executor.Execute(stmt)
	elapsed := time.Since(start)
	if err != nil {
		s.log.Warn("statement failed", "error", err, "sql", input, "duration", elapsed)
		return nil, err
	}
	s.log.Debug("statement executed",
		"kind", statementKind(stmt),
		"rows", len(res.Rows),
		"affected", res.RowsAffected,
		"duration", elapsed,
	)
	return res, nil
}

func statementKind(stmt Statement) string {
	switch stmt.(type) {
	case *SelectStmt:
		return "select"
	case *ExplainStmt:
		return "explain"
	case *InsertStmt:
		return "insert"
	case *UpdateStmt:
		return "update"
	case *DeleteStmt:
		return "delete"
	case *CreateTableStmt:
		return "create_table"
	case *DropTableStmt:
		return "drop_table"
	}
	return "unknown"
}
