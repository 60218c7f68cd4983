package main

import (
	"fmt"
	"io"
	"os"

	"github.com/jrsteele09/go-dashboard-client/adapters"
	"github.com/jrsteele09/go-dashboard-client/session"
	"github.com/spf13/cobra"
)

const passwordEnv = "DASHBOARD_PASSWORD"

func (c *cli) newLoginCmd() *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with email and password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				password = os.Getenv(passwordEnv)
			}
			if password == "" {
				return fmt.Errorf("a password is required, use --password or %s", passwordEnv)
			}
			bridge, err := c.app.session(cmd.Context())
			if err != nil {
				return err
			}
			user, err := bridge.SignInWithPassword(cmd.Context(), email, password)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s\n", user.Email)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Account email")
	cmd.Flags().StringVar(&password, "password", "", "Account password (defaults to $"+passwordEnv+")")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func (c *cli) newSignUpCmd() *cobra.Command {
	var req session.SignUpRequest
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Register a new account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if req.Password == "" {
				req.Password = os.Getenv(passwordEnv)
			}
			if req.ConfirmPassword == "" {
				req.ConfirmPassword = req.Password
			}
			bridge, err := c.app.session(cmd.Context())
			if err != nil {
				return err
			}
			if err := bridge.SignUp(cmd.Context(), req); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Account created for %s, check your inbox to confirm it\n", req.Email)
			return nil
		},
	}
	cmd.Flags().StringVar(&req.Email, "email", "", "Account email")
	cmd.Flags().StringVar(&req.Password, "password", "", "Account password (defaults to $"+passwordEnv+")")
	cmd.Flags().StringVar(&req.ConfirmPassword, "confirm-password", "", "Password confirmation (defaults to the password)")
	cmd.Flags().StringVar(&req.FullName, "name", "", "Full name")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func (c *cli) newResetPasswordCmd() *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "reset-password",
		Short: "Send a password reset email",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			bridge, err := c.app.session(cmd.Context())
			if err != nil {
				return err
			}
			if err := bridge.ResetPassword(cmd.Context(), email); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Password reset email sent to %s\n", email)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Account email")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func (c *cli) newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the stored credential",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			bridge, err := c.app.session(cmd.Context())
			if err != nil {
				// without a provider the local credential can still go
				c.app.creds.Clear()
				return err
			}
			if err := bridge.SignOut(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
			return nil
		},
	}
}

func (c *cli) newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if c.app.cfg.GetOIDCIssuer() == "" {
				// no provider to consult, ask the backend about the stored credential
				user, err := c.app.client.Auth.Me(cmd.Context())
				if err != nil {
					return err
				}
				printUser(out, &user)
				return nil
			}

			bridge, err := c.app.session(cmd.Context())
			if err != nil {
				return err
			}
			snap := bridge.Snapshot()
			if snap.User == nil {
				fmt.Fprintf(out, "Not signed in (%s)\n", snap.State)
				return nil
			}
			printUser(out, snap.User)
			return nil
		},
	}
}

func printUser(w io.Writer, user *adapters.User) {
	fmt.Fprintf(w, "%s <%s>\n", displayName(user), user.Email)
	fmt.Fprintf(w, "  id:    %s\n", user.ID)
	fmt.Fprintf(w, "  plan:  %s\n", user.Plan)
	if user.Company != "" {
		fmt.Fprintf(w, "  company: %s\n", user.Company)
	}
	if !user.EmailVerified {
		fmt.Fprintln(w, "  email not verified")
	}
}

func displayName(user *adapters.User) string {
	if user.Name != "" {
		return user.Name
	}
	return user.ID
}
