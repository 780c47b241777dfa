// Package cli provides the shell commands and result rendering for Blastoise.
package cli

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"

	"github.com/ChenPufeng/Blastoise/internal/config"
	"github.com/ChenPufeng/Blastoise/internal/logger"
	"github.com/ChenPufeng/Blastoise/pkg/catalog"
	"github.com/ChenPufeng/Blastoise/pkg/sql"
)

const (
	// Version of Blastoise
	Version = "0.1.0"

	// ContinuePrompt for multi-line statements
	ContinuePrompt = "       ... "
)

// ErrExit is returned by Shell.Execute when the user asked to quit.
var ErrExit = errors.New("exit requested")

// Shell executes complete inputs against a session and writes what they produce.
// Both the readline REPL and the exec command drive one.
type Shell struct {
	out     io.Writer
	session *sql.Session
	cfg     *config.Config
	log     *logger.Logger
}

// NewShell creates a Shell. A nil cfg falls back to the built-in defaults.
func NewShell(out io.Writer, session *sql.Session, cfg *config.Config, log *logger.Logger) *Shell {
	if cfg == nil {
		cfg = config.Default()
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Shell{out: out, session: session, cfg: cfg, log: log.Named("shell")}
}

// Session returns the session statements run on.
func (s *Shell) Session() *sql.Session {
	return s.session
}

// IsComplete reports whether buffered input is ready to run: a backslash
// command is complete at once, SQL once its last token is a semicolon.
func IsComplete(input string) bool {
	if strings.HasPrefix(strings.TrimSpace(input), "\\") {
		return true
	}
	return sql.EndsWithSemicolon(input)
}

// Execute runs one complete input. Statement errors are printed and returned;
// ErrExit means the shell should stop.
func (s *Shell) Execute(input string) error {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil
	}
	if strings.HasPrefix(input, "\\") {
		return s.meta(strings.TrimSuffix(input, ";"))
	}

	switch strings.ToUpper(strings.TrimSpace(strings.TrimSuffix(input, ";"))) {
	case "EXIT", "QUIT":
		return ErrExit
	case "HELP":
		s.printHelp()
		return nil
	}

	s.log.Debug("executing statement", "sql", input)
	res, err := s.session.ExecuteSQL(input)
	if err != nil {
		s.printError(err)
		return err
	}
	s.PrintResult(res)
	return nil
}

// RunScript executes every statement of script, printing each result.
// It stops at the first failing statement.
func (s *Shell) RunScript(script string) error {
	results, err := s.session.ExecuteScript(script)
	for _, res := range results {
		s.PrintResult(res)
	}
	if err != nil {
		s.printError(err)
		return err
	}
	return nil
}

// meta handles backslash commands.
func (s *Shell) meta(input string) error {
	parts := strings.Fields(input)
	if len(parts) == 0 {
		return nil
	}

	switch strings.ToLower(parts[0]) {
	case "\\q", "\\quit":
		return ErrExit
	case "\\?", "\\h", "\\help":
		s.printHelp()
	case "\\v", "\\version":
		fmt.Fprintf(s.out, "Blastoise version %s\n", Version)
	case "\\dt", "\\list":
		s.listTables()
	case "\\d", "\\describe":
		if len(parts) < 2 {
			fmt.Fprintln(s.out, "Usage: \\d <table_name>")
			return nil
		}
		return s.describeTable(parts[1])
	case "\\schema":
		data, err := s.schemaJSON()
		if err != nil {
			return s.fail(err)
		}
		fmt.Fprintln(s.out, string(data))
	case "\\save":
		if len(parts) < 2 {
			fmt.Fprintln(s.out, "Usage: \\save <file>")
			return nil
		}
		data, err := s.schemaJSON()
		if err != nil {
			return s.fail(err)
		}
		if err := os.WriteFile(parts[1], append(data, '\n'), 0644); err != nil {
			return s.fail(err)
		}
		fmt.Fprintf(s.out, "Schema saved to %s.\n", parts[1])
	case "\\load":
		if len(parts) < 2 {
			fmt.Fprintln(s.out, "Usage: \\load <file>")
			return nil
		}
		return s.loadSchema(parts[1])
	case "\\config":
		text, err := s.cfg.YAML()
		if err != nil {
			return s.fail(err)
		}
		fmt.Fprint(s.out, text)
	default:
		fmt.Fprintf(s.out, "Unknown command: %s\nType \\? for help.\n", parts[0])
	}
	return nil
}

// schemaJSON renders the catalog as indented JSON.
func (s *Shell) schemaJSON() ([]byte, error) {
	data, err := s.session.TableManager().Catalog().MarshalJSON()
	if err != nil {
		return nil, err
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, data, "", "  "); err != nil {
		return nil, err
	}
	return pretty.Bytes(), nil
}

// loadSchema creates the empty tables described by a file written with \save.
func (s *Shell) loadSchema(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return s.fail(err)
	}
	defer f.Close()

	tm := s.session.TableManager()
	if err := tm.LoadSchema(f); err != nil {
		return s.fail(fmt.Errorf("load %s: %w", path, err))
	}
	s.log.Info("schema loaded", "file", path, "tables", len(tm.ListTables()))
	fmt.Fprintf(s.out, "Loaded %d table(s) from %s.\n", len(tm.ListTables()), path)
	return nil
}

func (s *Shell) fail(err error) error {
	s.printError(err)
	return err
}

func (s *Shell) printError(err error) {
	fmt.Fprintf(s.out, "Error: %v\n", err)
}

// printHelp displays available commands.
func (s *Shell) printHelp() {
	fmt.Fprintln(s.out, `
Meta Commands:
  \dt, \list         List all tables
  \d <table>         Describe a table
  \schema            Print the catalog as JSON
  \save <file>       Write the catalog JSON to a file
  \load <file>       Create the tables of a saved catalog (empty shell only)
  \config            Print the active configuration
  \v                 Show version
  \?, \h             Show help
  \q                 Quit

SQL Commands:
  CREATE TABLE name (col type [NOT NULL] [PRIMARY KEY], ...);
  DROP TABLE name;
  INSERT INTO name VALUES (...);
  SELECT ... FROM ... [WHERE ...] [GROUP BY ...] [HAVING ...] [ORDER BY ...];
  UPDATE name SET col = expr, ... [WHERE ...];
  DELETE FROM name WHERE ...;
  EXPLAIN SELECT ...;

Statements end with ; and may span several lines.`)
}

// listTables prints all tables with their row counts.
func (s *Shell) listTables() {
	tm := s.session.TableManager()
	tables := tm.ListTables()
	if len(tables) == 0 {
		fmt.Fprintln(s.out, "No tables found.")
		return
	}

	table := s.newTable([]string{"Table", "Rows"})
	for _, name := range tables {
		n, err := tm.Count(name)
		if err != nil {
			continue
		}
		table.Append([]string{name, fmt.Sprint(n)})
	}
	table.Render()
	fmt.Fprintf(s.out, "(%d table(s))\n", len(tables))
}

// describeTable prints column info for a table.
func (s *Shell) describeTable(name string) error {
	cols, err := s.session.TableManager().DescribeTable(name)
	if err != nil {
		return s.fail(err)
	}

	fmt.Fprintf(s.out, "Table: %s\n", name)
	table := s.newTable([]string{"Column", "Type", "Nullable", "Key"})
	for _, c := range cols {
		table.Append([]string{
			c.Name,
			c.TypeName(),
			lo.Ternary(c.NotNull, "NO", "YES"),
			lo.Ternary(c.PrimaryKey, "PRI", ""),
		})
	}
	table.Render()
	return nil
}

// PrintResult formats and prints a statement result. Row output is capped
// at engine.max_result_rows when that is positive.
func (s *Shell) PrintResult(res *sql.Result) {
	switch res.Kind {
	case sql.ResultDDL, sql.ResultCount:
		fmt.Fprintln(s.out, res.Message)
		return
	case sql.ResultExplain:
		for _, row := range res.Rows {
			fmt.Fprintln(s.out, row[0].String())
		}
		return
	}

	rows := res.Rows
	limit := s.cfg.Engine.MaxResultRows
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}

	table := s.newTable(res.ColumnNames())
	for _, row := range rows {
		table.Append(formatRow(row))
	}
	table.Render()

	if len(rows) < len(res.Rows) {
		fmt.Fprintf(s.out, "(%d row(s), showing first %d)\n", len(res.Rows), len(rows))
		return
	}
	fmt.Fprintf(s.out, "(%d row(s))\n", len(res.Rows))
}

func (s *Shell) newTable(header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(s.out)
	table.SetHeader(header)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	return table
}

// formatRow converts a row to display strings.
func formatRow(row catalog.Row) []string {
	return lo.Map(row, func(v catalog.Value, _ int) string {
		return v.String()
	})
}

// REPL reads statements from a plain reader, for piped input and tests.
// Interactive terminals use the readline front end in internal/cli.
type REPL struct {
	in     io.Reader
	out    io.Writer
	prompt string
	shell  *Shell
}

// NewREPL creates a REPL that prints prompts to out and runs input through shell.
func NewREPL(in io.Reader, out io.Writer, prompt string, shell *Shell) *REPL {
	return &REPL{in: in, out: out, prompt: prompt, shell: shell}
}

// Run reads until EOF or an exit command.
func (r *REPL) Run() error {
	scanner := bufio.NewScanner(r.in)
	var buffer strings.Builder

	for {
		if buffer.Len() == 0 {
			fmt.Fprint(r.out, r.prompt)
		} else {
			fmt.Fprint(r.out, ContinuePrompt)
		}

		if !scanner.Scan() {
			break
		}
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}

		if buffer.Len() > 0 {
			buffer.WriteString("\n")
		}
		buffer.WriteString(line)

		input := buffer.String()
		if !IsComplete(input) {
			continue
		}
		buffer.Reset()

		if err := r.shell.Execute(input); errors.Is(err, ErrExit) {
			fmt.Fprintln(r.out, "Goodbye!")
			return nil
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading input: %w", err)
	}

	fmt.Fprintln(r.out, "Goodbye!")
	return nil
}
