package cli

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ChenPufeng/Blastoise/internal/config"
	"github.com/ChenPufeng/Blastoise/pkg/catalog"
	"github.com/ChenPufeng/Blastoise/pkg/sql"
)

func newTestShell(t *testing.T, cfg *config.Config) (*Shell, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	session := sql.NewSession(catalog.NewTableManager(4))
	return NewShell(&out, session, cfg, nil), &out
}

func runREPL(t *testing.T, shell *Shell, input string) string {
	t.Helper()
	out := shell.out.(*bytes.Buffer)
	repl := NewREPL(strings.NewReader(input), out, "blastoise> ", shell)
	if err := repl.Run(); err != nil {
		t.Fatalf("REPL.Run() error = %v", err)
	}
	return out.String()
}

func TestREPLCommands(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string // substrings that should appear in output
	}{
		{
			name:     "help command",
			input:    "HELP;\n",
			expected: []string{"Meta Commands", "\\dt", "EXPLAIN"},
		},
		{
			name:     "backslash help",
			input:    "\\?\n",
			expected: []string{"Meta Commands"},
		},
		{
			name:     "version command",
			input:    "\\v\n",
			expected: []string{"Blastoise version", Version},
		},
		{
			name:     "list tables when empty",
			input:    "\\dt\n",
			expected: []string{"No tables found"},
		},
		{
			name:     "describe usage",
			input:    "\\d\n",
			expected: []string{"Usage: \\d <table_name>"},
		},
		{
			name:     "describe unknown table",
			input:    "\\d nope\n",
			expected: []string{"Error:", "nope"},
		},
		{
			name:     "unknown meta command",
			input:    "\\foo\n",
			expected: []string{"Unknown command", "\\foo"},
		},
		{
			name:     "syntax error",
			input:    "SELEC 1;\n",
			expected: []string{"Error:", "SyntaxError"},
		},
		{
			name:     "config dump",
			input:    "\\config\n",
			expected: []string{"max_nesting_depth: 128", "level: warn"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			shell, _ := newTestShell(t, nil)
			result := runREPL(t, shell, tt.input+"EXIT;\n")
			for _, exp := range tt.expected {
				if !strings.Contains(result, exp) {
					t.Errorf("expected output to contain %q, got:\n%s", exp, result)
				}
			}
			if !strings.Contains(result, "Goodbye") {
				t.Error("expected goodbye message on exit")
			}
		})
	}
}

func TestREPLMultilineInput(t *testing.T) {
	shell, _ := newTestShell(t, nil)
	result := runREPL(t, shell,
		"CREATE TABLE users (id INT, name CHAR(10));\n"+
			"INSERT INTO users\nVALUES (1, 'ann');\n"+
			"SELECT name\nFROM users\nWHERE id = 1;\n")

	if !strings.Contains(result, ContinuePrompt) {
		t.Errorf("expected continuation prompt, got:\n%s", result)
	}
	for _, exp := range []string{"Table users created.", "1 row inserted.", "ann", "(1 row(s))"} {
		if !strings.Contains(result, exp) {
			t.Errorf("expected output to contain %q, got:\n%s", exp, result)
		}
	}
}

func TestREPLSemicolonInsideStringWaits(t *testing.T) {
	shell, _ := newTestShell(t, nil)
	result := runREPL(t, shell,
		"CREATE TABLE t (a CHAR(10));\n"+
			"INSERT INTO t VALUES ('x;\n"+
			"y');\n")

	if strings.Contains(result, "Error:") {
		t.Errorf("statement ran before the string was closed, got:\n%s", result)
	}
	if !strings.Contains(result, "1 row inserted.") {
		t.Errorf("expected insert to run once complete, got:\n%s", result)
	}
}

func TestREPLExitStopsReading(t *testing.T) {
	shell, _ := newTestShell(t, nil)
	result := runREPL(t, shell, "\\q\nCREATE TABLE t (a INT);\n")
	if strings.Contains(result, "created") {
		t.Errorf("statements after \\q should not run, got:\n%s", result)
	}
	if len(shell.Session().TableManager().ListTables()) != 0 {
		t.Error("table should not exist")
	}
}

func TestShellTablesAndSchema(t *testing.T) {
	shell, out := newTestShell(t, nil)
	if err := shell.RunScript(`
		CREATE TABLE users (id INT PRIMARY KEY, name CHAR(10) NOT NULL);
		INSERT INTO users VALUES (1, 'ann');
		INSERT INTO users VALUES (2, 'bob');
	`); err != nil {
		t.Fatalf("RunScript error: %v", err)
	}

	out.Reset()
	if err := shell.Execute("\\dt"); err != nil {
		t.Fatalf("\\dt error: %v", err)
	}
	if !strings.Contains(out.String(), "users") || !strings.Contains(out.String(), "1 table") {
		t.Errorf("unexpected \\dt output:\n%s", out.String())
	}

	out.Reset()
	if err := shell.Execute("\\d users"); err != nil {
		t.Fatalf("\\d error: %v", err)
	}
	for _, exp := range []string{"Table: users", "id", "INT", "PRI", "CHAR(10)", "NO"} {
		if !strings.Contains(out.String(), exp) {
			t.Errorf("expected describe output to contain %q, got:\n%s", exp, out.String())
		}
	}

	out.Reset()
	if err := shell.Execute("\\schema"); err != nil {
		t.Fatalf("\\schema error: %v", err)
	}
	if !strings.Contains(out.String(), `"users"`) || !strings.Contains(out.String(), `"attr_list"`) {
		t.Errorf("unexpected \\schema output:\n%s", out.String())
	}
}

func TestShellSaveAndLoadSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.json")

	src, out := newTestShell(t, nil)
	if err := src.RunScript(`
		CREATE TABLE users (id INT PRIMARY KEY, name CHAR(10));
		INSERT INTO users VALUES (1, 'ann');
	`); err != nil {
		t.Fatalf("RunScript error: %v", err)
	}
	if err := src.Execute("\\save " + path); err != nil {
		t.Fatalf("\\save error: %v", err)
	}
	if !strings.Contains(out.String(), "Schema saved to") {
		t.Errorf("unexpected \\save output:\n%s", out.String())
	}

	dst, out := newTestShell(t, nil)
	if err := dst.Execute("\\load " + path); err != nil {
		t.Fatalf("\\load error: %v", err)
	}
	if !strings.Contains(out.String(), "Loaded 1 table(s)") {
		t.Errorf("unexpected \\load output:\n%s", out.String())
	}
	n, err := dst.Session().TableManager().Count("users")
	if err != nil || n != 0 {
		t.Fatalf("Count(users) = %d, %v; want empty table", n, err)
	}
	if err := dst.Execute("INSERT INTO users VALUES (1, 'bob');"); err != nil {
		t.Fatalf("insert into loaded table: %v", err)
	}
	if err := dst.Execute("INSERT INTO users VALUES (1, 'cat');"); !errors.Is(err, sql.ErrConstraintViolation) {
		t.Errorf("expected ConstraintViolation on duplicate key, got %v", err)
	}

	out.Reset()
	if err := dst.Execute("\\load " + path); err == nil {
		t.Error("loading into a shell that already has tables should fail")
	}
	if err := dst.Execute("\\load " + filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("loading a missing file should fail")
	}

	out.Reset()
	if err := dst.Execute("\\save"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "Usage: \\save <file>") {
		t.Errorf("expected usage, got:\n%s", out.String())
	}
}

func TestRunScriptStopsAtFirstError(t *testing.T) {
	shell, out := newTestShell(t, nil)
	err := shell.RunScript(`
		CREATE TABLE t (a INT);
		INSERT INTO t VALUES (1);
		INSERT INTO missing VALUES (1);
		INSERT INTO t VALUES (2);
	`)
	if !errors.Is(err, sql.ErrUnknownTable) {
		t.Fatalf("expected UnknownTable, got %v", err)
	}
	if !strings.Contains(out.String(), "Table t created.") || !strings.Contains(out.String(), "Error:") {
		t.Errorf("unexpected output:\n%s", out.String())
	}

	n, _ := shell.Session().TableManager().Count("t")
	if n != 1 {
		t.Errorf("expected 1 row after the failed script, got %d", n)
	}
}

func TestPrintResultCapsRows(t *testing.T) {
	cfg := config.Default()
	cfg.Engine.MaxResultRows = 2
	shell, out := newTestShell(t, cfg)

	if err := shell.RunScript(`
		CREATE TABLE t (a INT);
		INSERT INTO t VALUES (1);
		INSERT INTO t VALUES (2);
		INSERT INTO t VALUES (3);
	`); err != nil {
		t.Fatalf("RunScript error: %v", err)
	}

	out.Reset()
	if err := shell.Execute("SELECT a FROM t ORDER BY a;"); err != nil {
		t.Fatalf("select error: %v", err)
	}
	result := out.String()
	if !strings.Contains(result, "(3 row(s), showing first 2)") {
		t.Errorf("expected truncated row count, got:\n%s", result)
	}
	if strings.Contains(result, "3 |") {
		t.Errorf("third row should not be printed, got:\n%s", result)
	}
}

func TestPrintExplain(t *testing.T) {
	shell, out := newTestShell(t, nil)
	if err := shell.Execute("CREATE TABLE t (a INT);"); err != nil {
		t.Fatal(err)
	}
	out.Reset()
	if err := shell.Execute("EXPLAIN SELECT a FROM t WHERE a > 1;"); err != nil {
		t.Fatalf("explain error: %v", err)
	}
	want := "Project [t.a]\n  Filter t.a > 1\n    TableScan t\n"
	if out.String() != want {
		t.Errorf("explain output = %q, want %q", out.String(), want)
	}
}

func TestPrintNulls(t *testing.T) {
	shell, out := newTestShell(t, nil)
	if err := shell.RunScript("CREATE TABLE t (a INT, b CHAR(4)); INSERT INTO t VALUES (NULL, 'x');"); err != nil {
		t.Fatal(err)
	}
	out.Reset()
	if err := shell.Execute("SELECT a, b FROM t;"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "NULL") {
		t.Errorf("expected NULL in output, got:\n%s", out.String())
	}
}

func TestIsComplete(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"SELECT 1", false},
		{"SELECT 1;", true},
		{"SELECT 1;  ", true},
		{"\\dt", true},
		{"  \\d users", true},
		{"SELECT 'a;", false},
		{"SELECT 'a;' FROM t;", true},
		{"SELECT 1 -- done;", false},
		{"SELECT 1; -- done", true},
	}
	for _, tt := range tests {
		if got := IsComplete(tt.input); got != tt.want {
			t.Errorf("IsComplete(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}
