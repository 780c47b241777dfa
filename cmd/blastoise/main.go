// Blastoise - an in-memory relational SQL engine
// Main entry point for the interactive shell and script runner

package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	icli "github.com/ChenPufeng/Blastoise/internal/cli"
	"github.com/ChenPufeng/Blastoise/internal/config"
	"github.com/ChenPufeng/Blastoise/internal/logger"
	"github.com/ChenPufeng/Blastoise/pkg/catalog"
	"github.com/ChenPufeng/Blastoise/pkg/cli"
	"github.com/ChenPufeng/Blastoise/pkg/sql"
)

var (
	buildDate = "dev"
	cfgFile   string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "blastoise",
		Short: "Blastoise - an in-memory SQL engine",
		Long: `Blastoise is an in-memory relational engine supporting CREATE TABLE,
INSERT, UPDATE, DELETE and SELECT with joins, derived tables,
GROUP BY/HAVING, ORDER BY and EXPLAIN.

Start the interactive shell:
  blastoise

Run a script:
  blastoise exec script.sql
  blastoise exec -e "CREATE TABLE t (a INT); INSERT INTO t VALUES (1); SELECT * FROM t;"`,
		SilenceUsage: true,
		RunE:         runShell,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "Blastoise %s (built %s)\n", cli.Version, buildDate)
		},
	})

	rootCmd.AddCommand(newExecCmd())
	rootCmd.AddCommand(newInitCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup loads configuration and builds the logger and session every command shares
func setup(out io.Writer) (*config.Config, *logger.Logger, *cli.Shell, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("error loading config: %w", err)
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format, cfg.Log.Output)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("error initializing logger: %w", err)
	}

	tm := catalog.NewTableManager(cfg.Engine.SlotsPerPage)
	session := sql.NewSession(tm,
		sql.WithLogger(log),
		sql.WithMaxDepth(cfg.Engine.MaxNestingDepth),
	)
	log.Debug("session started", "session_id", session.ID())

	return cfg, log, cli.NewShell(out, session, cfg, log), nil
}

func runShell(cmd *cobra.Command, args []string) error {
	cfg, log, shell, err := setup(cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	// Piped input gets the plain reader loop without line editing
	if !readline.IsTerminal(int(os.Stdin.Fd())) {
		return cli.NewREPL(os.Stdin, cmd.OutOrStdout(), "", shell).Run()
	}

	repl := icli.NewREPL(cfg, log, shell)
	if err := repl.Run(); err != nil {
		log.Error("REPL error", "error", err)
		return err
	}
	return nil
}

func newExecCmd() *cobra.Command {
	var script string

	cmd := &cobra.Command{
		Use:   "exec [file]",
		Short: "Execute SQL statements from a file, stdin (-) or --execute",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := readScript(script, args)
			if err != nil {
				return err
			}

			_, log, shell, err := setup(cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			// the shell has already printed the statement error
			if err := shell.RunScript(input); err != nil {
				cmd.SilenceErrors = true
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&script, "execute", "e", "", "SQL statements to execute")
	return cmd
}

// readScript picks the statements from the -e flag, a file argument or stdin
func readScript(script string, args []string) (string, error) {
	switch {
	case script != "" && len(args) > 0:
		return "", errors.New("use either --execute or a file argument, not both")
	case script != "":
		return script, nil
	case len(args) == 0 || args[0] == "-":
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		return string(data), nil
	default:
		data, err := os.ReadFile(args[0])
		if err != nil {
			return "", fmt.Errorf("failed to read script: %w", err)
		}
		return string(data), nil
	}
}

func newInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write a default configuration file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.DefaultFileName
			if len(args) > 0 {
				path = args[0]
			}
			if err := config.CreateDefaultConfig(path, force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created config file: %s\n", path)
			fmt.Fprintf(cmd.OutOrStdout(), "Start the shell with: blastoise --config %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing file")
	return cmd
}
