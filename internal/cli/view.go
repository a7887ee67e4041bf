package cli

import (
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ppiankov/supaspectre/internal/tui"
)

var viewCmd = &cobra.Command{
	Use:   "view <id>",
	Short: "Browse a saved report interactively",
	Long: `View opens a saved report in a terminal UI with filtering, search and
an exposure history for the project.

Keys: / search, t filter kind, r minimum risk, s sort, c copy,
esc clear, q quit.

Example:
  supaspectre view 3f2c...`,
	Args: cobra.ExactArgs(1),
	RunE: runView,
}

func runView(cmd *cobra.Command, args []string) error {
	if !stdoutIsTerminal() {
		return &ValidationError{Message: "view requires an interactive terminal; use 'supaspectre reports show' instead"}
	}
	rt, rep, err := loadReport(cmd, args[0])
	if err != nil {
		return err
	}
	return tui.Run(rep, accessibleHistory(rt.store.Reports(cmd.Context()), rep.ProjectID))
}

func stdoutIsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}
