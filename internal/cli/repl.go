// Package cli provides the interactive readline shell for Blastoise
package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"

	"github.com/ChenPufeng/Blastoise/internal/config"
	"github.com/ChenPufeng/Blastoise/internal/logger"
	"github.com/ChenPufeng/Blastoise/pkg/cli"
)

// REPL implements the Read-Eval-Print Loop on a terminal
type REPL struct {
	config *config.Config
	log    *logger.Logger
	shell  *cli.Shell
	rl     *readline.Instance
}

// NewREPL creates a new REPL instance
func NewREPL(cfg *config.Config, log *logger.Logger, shell *cli.Shell) *REPL {
	return &REPL{
		config: cfg,
		log:    log,
		shell:  shell,
	}
}

// Run starts the REPL loop
func (r *REPL) Run() error {
	rlConfig := &readline.Config{
		Prompt:          r.config.Shell.Prompt,
		HistoryFile:     historyFile(r.config.Shell.HistoryFile),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete:    newCompleter(),
	}

	rl, err := readline.NewEx(rlConfig)
	if err != nil {
		return fmt.Errorf("failed to initialize readline: %w", err)
	}
	defer rl.Close()
	r.rl = rl

	r.printWelcome()

	var multilineBuffer strings.Builder
	inMultiline := false

	for {
		if inMultiline {
			rl.SetPrompt(cli.ContinuePrompt)
		} else {
			rl.SetPrompt(r.config.Shell.Prompt)
		}

		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if inMultiline {
				// Cancel multiline input
				multilineBuffer.Reset()
				inMultiline = false
				fmt.Fprintln(rl.Stdout(), "^C")
			}
			continue
		} else if errors.Is(err, io.EOF) {
			fmt.Fprintln(rl.Stdout(), "\nGoodbye!")
			return nil
		} else if err != nil {
			return fmt.Errorf("readline error: %w", err)
		}

		if strings.TrimSpace(line) == "" {
			continue
		}

		if inMultiline {
			multilineBuffer.WriteString("\n")
		}
		multilineBuffer.WriteString(line)
		fullInput := multilineBuffer.String()

		if !cli.IsComplete(fullInput) {
			inMultiline = true
			continue
		}
		multilineBuffer.Reset()
		inMultiline = false

		if err := r.shell.Execute(fullInput); errors.Is(err, cli.ErrExit) {
			fmt.Fprintln(rl.Stdout(), "Goodbye!")
			return nil
		} else if err != nil {
			r.log.Debug("command failed", "error", err)
		}
	}
}

func (r *REPL) printWelcome() {
	fmt.Fprintf(r.rl.Stdout(), `
  ____  _           _        _
 | __ )| | __ _ ___| |_ ___ (_)___  ___
 |  _ \| |/ _' / __| __/ _ \| / __|/ _ \
 | |_) | | (_| \__ \ || (_) | \__ \  __/
 |____/|_|\__,_|___/\__\___/|_|___/\___|

    Version %s
    Type HELP; or \? for available commands
`, cli.Version)
}

// historyFile resolves the configured history path, defaulting to the home directory
func historyFile(configured string) string {
	if configured != "" {
		return configured
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".blastoise_history")
}

// newCompleter creates an auto-completer for the REPL
func newCompleter() *readline.PrefixCompleter {
	return readline.NewPrefixCompleter(
		readline.PcItem("SELECT"),
		readline.PcItem("INSERT",
			readline.PcItem("INTO"),
		),
		readline.PcItem("UPDATE"),
		readline.PcItem("DELETE",
			readline.PcItem("FROM"),
		),
		readline.PcItem("CREATE",
			readline.PcItem("TABLE"),
		),
		readline.PcItem("DROP",
			readline.PcItem("TABLE"),
		),
		readline.PcItem("EXPLAIN",
			readline.PcItem("SELECT"),
		),
		readline.PcItem("HELP"),
		readline.PcItem("EXIT"),
		readline.PcItem("QUIT"),
		readline.PcItem("\\dt"),
		readline.PcItem("\\d"),
		readline.PcItem("\\schema"),
		readline.PcItem("\\save"),
		readline.PcItem("\\load"),
		readline.PcItem("\\config"),
		readline.PcItem("\\help"),
		readline.PcItem("\\q"),
	)
}
