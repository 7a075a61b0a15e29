package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

var (
	loginEmail       string
	loginPassword    string
	registerName     string
	registerEmail    string
	registerPassword string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in and remember the session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, err := startClient(cmd)
		if err != nil {
			return err
		}
		defer c.Close()

		resp, err := c.Session.Login(cmd.Context(), loginEmail, loginPassword)
		if err != nil {
			return fmt.Errorf("login failed: %w", err)
		}
		return render(cmd.OutOrStdout(), resp, func(w io.Writer) error {
			_, err := fmt.Fprintf(w, "Logged in as %s <%s>.\n", resp.User.Name, resp.User.Email)
			return err
		})
	},
}

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Create an account and log in",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, err := startClient(cmd)
		if err != nil {
			return err
		}
		defer c.Close()

		resp, err := c.Session.Register(cmd.Context(), registerName, registerEmail, registerPassword)
		if err != nil {
			return fmt.Errorf("registration failed: %w", err)
		}
		return render(cmd.OutOrStdout(), resp, func(w io.Writer) error {
			_, err := fmt.Fprintf(w, "Welcome, %s! You are now logged in.\n", resp.User.Name)
			return err
		})
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the saved session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, err := startClient(cmd)
		if err != nil {
			return err
		}
		defer c.Close()

		c.Session.Logout(cmd.Context())
		fmt.Fprintln(cmd.OutOrStdout(), "Logged out.")
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the logged-in user",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, err := startClient(cmd)
		if err != nil {
			return err
		}
		defer c.Close()

		u := c.Session.CurrentUser()
		return render(cmd.OutOrStdout(), u, func(w io.Writer) error {
			return writeUser(w, u)
		})
	},
}

func init() {
	loginCmd.Flags().StringVar(&loginEmail, "email", "", "account email")
	loginCmd.Flags().StringVar(&loginPassword, "password", "", "account password")
	_ = loginCmd.MarkFlagRequired("email")
	_ = loginCmd.MarkFlagRequired("password")

	registerCmd.Flags().StringVar(&registerName, "name", "", "display name")
	registerCmd.Flags().StringVar(&registerEmail, "email", "", "account email")
	registerCmd.Flags().StringVar(&registerPassword, "password", "", "account password")
	_ = registerCmd.MarkFlagRequired("name")
	_ = registerCmd.MarkFlagRequired("email")
	_ = registerCmd.MarkFlagRequired("password")

	rootCmd.AddCommand(loginCmd, registerCmd, logoutCmd, whoamiCmd)
}
