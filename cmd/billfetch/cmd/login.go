package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/pigeonworks-llc/billfetch/pkg/config"
)

// loginCmd represents the login command.
var loginCmd = &cobra.Command{
	Use:   "login <source>",
	Short: "Discard a source's saved session",
	Long: `Discard the persisted session for a portal source so the next fetch
performs a full login instead of restoring saved cookies.

Useful after a password change or when a portal invalidates sessions
server-side before the local expiry.

Example:
  billfetch login city-tel
  billfetch fetch --provider city-tel --force`,
	Args: cobra.ExactArgs(1),
	Run:  runLogin,
}

func runLogin(cmd *cobra.Command, args []string) {
	source := args[0]

	cfg, err := config.Load(getConfigFile())
	exitOnError(err, "failed to load configuration")

	providersCfg, err := config.LoadProviders(cfg.ProvidersFile)
	exitOnError(err, "failed to load providers")

	specs, err := providersCfg.Select([]string{source})
	exitOnError(err, "unknown source")
	if specs[0].Kind != "portal" {
		exitOnError(fmt.Errorf("source %s is a %s source and keeps no session", source, specs[0].Kind), "nothing to discard")
	}

	path := filepath.Join(cfg.SessionDir(), source+".json")
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			fmt.Printf("No saved session for %s\n", source)
			return
		}
		exitOnError(err, "failed to remove session file")
	}

	slog.Info("Session discarded", "source", source)
	fmt.Printf("Session for %s discarded; the next fetch will log in again\n", source)
}
