package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/storefront-dev/storefront/internal/config"
)

var resetForce bool

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Remove the saved session",
	Long: `Remove the locally persisted credential without contacting the server.

Deletes the token file (or sqlite database) configured under token.path,
together with its lock and journal files. The next run starts logged out.

Examples:
  # Interactive confirmation
  storefront reset

  # No prompt
  storefront reset --force`,
	Args: cobra.NoArgs,
	RunE: runReset,
}

func init() {
	resetCmd.Flags().BoolVar(&resetForce, "force", false, "Skip confirmation prompt")
	rootCmd.AddCommand(resetCmd)
}

func runReset(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	out := cmd.ErrOrStderr()

	var existing []string
	for _, p := range resetTargets(cfg.Token) {
		if _, err := os.Stat(p); err == nil {
			existing = append(existing, p)
		}
	}
	if len(existing) == 0 {
		fmt.Fprintln(out, "Nothing to reset: no saved session found.")
		return nil
	}

	fmt.Fprintln(out, "The following will be removed:")
	for _, p := range existing {
		fmt.Fprintf(out, "  - %s\n", p)
	}

	if !resetForce {
		fmt.Fprint(out, "\nProceed? [y/N] ")
		answer, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		answer = strings.TrimSpace(answer)
		if answer != "y" && answer != "Y" {
			fmt.Fprintln(out, "Aborted.")
			return nil
		}
	}

	var failed int
	for _, p := range existing {
		if err := os.Remove(p); err != nil {
			fmt.Fprintf(out, "  ERROR removing %s: %v\n", p, err)
			failed++
		} else {
			fmt.Fprintf(out, "  Removed %s\n", p)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d file(s) could not be removed", failed)
	}

	fmt.Fprintln(out, "\nReset complete. You are logged out.")
	return nil
}

// resetTargets lists the files a token store may leave on disk.
func resetTargets(tc config.TokenConfig) []string {
	if tc.Path == "" {
		return nil
	}
	switch tc.Store {
	case config.TokenStoreSQLite:
		return []string{tc.Path, tc.Path + "-wal", tc.Path + "-shm", tc.Path + "-journal"}
	case config.TokenStoreFile:
		return []string{tc.Path, tc.Path + ".lock"}
	default:
		return nil
	}
}
