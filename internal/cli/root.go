// Package cli implements the gallery command line. Each profile is an
// isolated store in the same database the server uses.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// DefaultProfile is used when --profile is not given.
const DefaultProfile = "default"

// RootOptions holds global flags for all commands.
type RootOptions struct {
	DBPath     string // overrides the configured database path when set
	Profile    string
	ConfigPath string
	Format     string // "json" | "text"
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the gallery CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "gallery",
		Short: "Photo gallery from the command line",
		Long: `Manage accounts and photos in a gallery store.

Every profile has its own users, photos and session, like a separate browser.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			if opts.Profile == "" {
				return fmt.Errorf("profile cannot be empty")
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.DBPath, "db", "", "path to database file (default from config or DB_PATH)")
	cmd.PersistentFlags().StringVarP(&opts.Profile, "profile", "p", DefaultProfile, "profile whose store to use")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "path to YAML config file")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewRegisterCommand(opts))
	cmd.AddCommand(NewLoginCommand(opts))
	cmd.AddCommand(NewLogoutCommand(opts))
	cmd.AddCommand(NewWhoamiCommand(opts))
	cmd.AddCommand(NewPhotosCommand(opts))
	cmd.AddCommand(NewRouteCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
