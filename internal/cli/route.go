package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"photo-gallery/internal/guard"
)

// routeResult describes where a navigation ends up.
type routeResult struct {
	Path          string `json:"path"`
	Authenticated bool   `json:"authenticated"`
	Destination   string `json:"destination"`
}

// NewRouteCommand creates the route command.
func NewRouteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "route <path>",
		Short: "Show where a navigation to path lands for the profile's session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(rootOpts)
			if err != nil {
				return err
			}
			defer e.Close()

			authenticated := e.session.IsAuthenticated()
			res := routeResult{
				Path:          args[0],
				Authenticated: authenticated,
				Destination:   guard.Navigate(args[0], authenticated),
			}
			return output(rootOpts, cmd.OutOrStdout(), res, func(w io.Writer) error {
				_, err := fmt.Fprintln(w, res.Destination)
				return err
			})
		},
	}
}
