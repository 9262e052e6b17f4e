package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"photo-gallery/internal/models"
)

// accountView is the public part of a user.
type accountView struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

func newAccountView(u *models.User) *accountView {
	if u == nil {
		return nil
	}
	return &accountView{ID: u.ID, Email: u.Email, Name: u.Name}
}

// NewRegisterCommand creates the register command.
func NewRegisterCommand(rootOpts *RootOptions) *cobra.Command {
	var email, name, password string

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and log in",
		Long: `Create an account in the profile's store and start a session for it.

The password is prompted for twice when --password is omitted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			creds := models.RegisterCredentials{Email: email, Name: name, Password: password, ConfirmPassword: password}
			if password == "" {
				p := newPrompter(cmd)
				var err error
				if creds.Password, err = p.password("Password"); err != nil {
					return fmt.Errorf("failed to read password: %w", err)
				}
				if creds.ConfirmPassword, err = p.password("Confirm password"); err != nil {
					return fmt.Errorf("failed to read password: %w", err)
				}
			}

			e, err := openEnv(rootOpts)
			if err != nil {
				return err
			}
			defer e.Close()

			if err := e.session.Register(creds); err != nil {
				return err
			}
			user := newAccountView(e.session.User())
			return output(rootOpts, cmd.OutOrStdout(), user, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "Registered %s (%s)\n", user.Email, user.ID)
				return err
			})
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&password, "password", "", "password (optional, will prompt if omitted)")
	cmd.MarkFlagRequired("email")

	return cmd
}

// NewLoginCommand creates the login command.
func NewLoginCommand(rootOpts *RootOptions) *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Start a session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				var err error
				if password, err = newPrompter(cmd).password("Password"); err != nil {
					return fmt.Errorf("failed to read password: %w", err)
				}
			}

			e, err := openEnv(rootOpts)
			if err != nil {
				return err
			}
			defer e.Close()

			if err := e.session.Login(models.LoginCredentials{Email: email, Password: password}); err != nil {
				return err
			}
			user := newAccountView(e.session.User())
			return output(rootOpts, cmd.OutOrStdout(), user, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "Logged in as %s\n", user.Email)
				return err
			})
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "password (optional, will prompt if omitted)")
	cmd.MarkFlagRequired("email")

	return cmd
}

// NewLogoutCommand creates the logout command.
func NewLogoutCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(rootOpts)
			if err != nil {
				return err
			}
			defer e.Close()

			if err := e.session.Logout(); err != nil {
				return err
			}
			return output(rootOpts, cmd.OutOrStdout(), map[string]bool{"loggedOut": true}, func(w io.Writer) error {
				_, err := fmt.Fprintln(w, "Logged out")
				return err
			})
		},
	}
}

// NewWhoamiCommand creates the whoami command.
func NewWhoamiCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the session user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(rootOpts)
			if err != nil {
				return err
			}
			defer e.Close()

			user, err := e.requireSession()
			if err != nil {
				return err
			}
			view := newAccountView(user)
			return output(rootOpts, cmd.OutOrStdout(), view, func(w io.Writer) error {
				if view.Name != "" {
					_, err := fmt.Fprintf(w, "%s <%s>\n", view.Name, view.Email)
					return err
				}
				_, err := fmt.Fprintln(w, view.Email)
				return err
			})
		},
	}
}
