// Command collab runs the collaborative playground: the session relay and
// sandbox server, a terminal session participant, and one-off local runs.
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/sakif/collab-playground/internal/config"
)

// settings carries defaults, collab.yaml, COLLAB_* env and the flags bound
// below, in increasing priority.
var settings = config.New()

var rootCmd = &cobra.Command{
	Use:   "collab",
	Short: "Collab - shared code sessions with sandboxed execution",
	Long: `Collab lets several people edit one buffer together, see who else is in the
session, pick the session's language, and run the code in a sandbox.

Configuration is read from collab.yaml (in . or $HOME/.collab), then from
COLLAB_* environment variables (a .env file is loaded first), then flags.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// A missing .env is normal outside development.
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("loading .env: %w", err)
		}
		return nil
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("log-level", "", "Log level (debug, info, warn, error)")
	flags.String("log-format", "", "Log format (text, json, pretty)")
	_ = settings.BindPFlag("log.level", flags.Lookup("log-level"))
	_ = settings.BindPFlag("log.format", flags.Lookup("log-format"))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		var exit exitCode
		if errors.As(err, &exit) {
			os.Exit(int(exit))
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// bindFlags points config keys at cmd's flags. It runs when cmd runs, not in
// init, because serve and run bind the same keys to different flag sets.
func bindFlags(cmd *cobra.Command, keys map[string]string) error {
	for key, flag := range keys {
		if err := settings.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return fmt.Errorf("binding --%s: %w", flag, err)
		}
	}
	return nil
}

// exitCode ends the process with a specific status and no message.
type exitCode int

func (e exitCode) Error() string { return fmt.Sprintf("exit status %d", int(e)) }
