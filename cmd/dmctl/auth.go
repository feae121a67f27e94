package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matheus3301/dmsync/internal/model"
)

func newSignUpCmd() *cobra.Command {
	var email, password, name string
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account and sign in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(func(ctx context.Context, c *client) error {
				id, err := c.Identity.SignUp(ctx, email, password, name)
				if err != nil {
					return err
				}
				return printIdentity(c.session, id)
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func newLoginCmd() *cobra.Command {
	var email, password, provider string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with a password or an external provider",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if provider == "" && (email == "" || password == "") {
				return errors.New("either --provider or both --email and --password are required")
			}
			return withClient(func(ctx context.Context, c *client) error {
				var (
					id  *model.Identity
					err error
				)
				if provider != "" {
					id, err = c.Identity.SignInWithOAuth(ctx, provider)
				} else {
					id, err = c.Identity.SignIn(ctx, email, password)
				}
				if err != nil {
					return err
				}
				return printIdentity(c.session, id)
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password")
	cmd.Flags().StringVar(&provider, "provider", "", "external identity provider")
	return cmd
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out of the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(func(ctx context.Context, c *client) error {
				if c.Identity.Current() == nil {
					return errNotSignedIn
				}
				if err := c.Identity.SignOut(ctx); err != nil {
					return err
				}
				fmt.Printf("Signed out of session %s\n", c.session)
				return nil
			})
		},
	}
}

func newWhoAmICmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(func(ctx context.Context, c *client) error {
				id := c.Identity.Current()
				if id == nil {
					return errNotSignedIn
				}
				return printIdentity(c.session, id)
			})
		},
	}
}

func newProfileCmd() *cobra.Command {
	var name, photo string
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Change the display name or photo URL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var p model.ProfileUpdate
			if cmd.Flags().Changed("name") {
				p.DisplayName = &name
			}
			if cmd.Flags().Changed("photo") {
				p.PhotoURL = &photo
			}
			if p.DisplayName == nil && p.PhotoURL == nil {
				return errors.New("nothing to change (use --name or --photo)")
			}
			return withCore(func(ctx context.Context, c *client) error {
				id, err := c.Core.UpdateProfile(ctx, p)
				if err != nil {
					return err
				}
				return printIdentity(c.session, id)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "new display name")
	cmd.Flags().StringVar(&photo, "photo", "", "new photo URL")
	return cmd
}

type identityJSON struct {
	Session     string `json:"session"`
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	PhotoURL    string `json:"photoURL,omitempty"`
}

func printIdentity(sessionName string, id *model.Identity) error {
	if jsonOutput {
		return outputJSON(identityJSON{
			Session:     sessionName,
			ID:          id.ID,
			Email:       id.Email,
			DisplayName: id.DisplayName,
			PhotoURL:    id.PhotoURL,
		})
	}
	fmt.Printf("Session: %s\n", sessionName)
	fmt.Printf("User:    %s\n", id.Name())
	fmt.Printf("Email:   %s\n", id.Email)
	fmt.Printf("ID:      %s\n", id.ID)
	return nil
}
