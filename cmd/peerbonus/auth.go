package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/huh"
	peerbonus "github.com/peerbonus/peerbonus-go"
	"github.com/peerbonus/peerbonus-go/authapi"
	"github.com/spf13/cobra"
)

type healthChecker interface {
	Health(ctx context.Context) error
}

func (c *cli) loginCmd() *cobra.Command {
	var creds peerbonus.Credentials
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in with email and password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if creds.Email == "" || creds.Password == "" {
				form := huh.NewForm(huh.NewGroup(
					huh.NewInput().Title("Email").Value(&creds.Email),
					huh.NewInput().Title("Password").EchoMode(huh.EchoModePassword).Value(&creds.Password),
				))
				if err := form.Run(); err != nil {
					return fmt.Errorf("login prompt cancelled: %w", err)
				}
			}

			user, err := c.manager.Login(cmd.Context(), creds)
			if err != nil {
				return describeAuthError("login failed", err)
			}
			c.println(successStyle.Render("✓ Logged in as " + displayName(user)))
			return nil
		},
	}
	cmd.Flags().StringVarP(&creds.Email, "email", "e", "", "account email")
	cmd.Flags().StringVarP(&creds.Password, "password", "p", "", "account password (prompted when omitted)")
	return cmd
}

func (c *cli) registerCmd() *cobra.Command {
	var req peerbonus.RegisterRequest
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and log in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if req.Name == "" || req.Email == "" || req.Password == "" {
				form := huh.NewForm(huh.NewGroup(
					huh.NewInput().Title("Name").Value(&req.Name),
					huh.NewInput().Title("Email").Value(&req.Email),
					huh.NewInput().
						Title("Password").
						Description("At least 8 characters with a letter and a digit").
						EchoMode(huh.EchoModePassword).
						Value(&req.Password),
				))
				if err := form.Run(); err != nil {
					return fmt.Errorf("register prompt cancelled: %w", err)
				}
			}

			user, err := c.manager.Register(cmd.Context(), req)
			if err != nil {
				return describeAuthError("registration failed", err)
			}
			c.println(successStyle.Render("✓ Welcome, " + displayName(user)))
			return nil
		},
	}
	cmd.Flags().StringVarP(&req.Name, "name", "n", "", "display name")
	cmd.Flags().StringVarP(&req.Email, "email", "e", "", "account email")
	cmd.Flags().StringVarP(&req.Password, "password", "p", "", "account password (prompted when omitted)")
	return cmd
}

func (c *cli) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := c.manager.Logout(cmd.Context()); err != nil {
				return err
			}
			c.println(infoStyle.Render("Logged out"))
			return nil
		},
	}
}

func (c *cli) whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged-in user",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if !c.manager.IsLoggedIn() {
				c.println(warningStyle.Render("Not logged in"))
				return nil
			}
			user := c.manager.User()
			c.println(headerStyle.Render(user.Name))
			c.println("  " + user.Email)
			c.println("  " + mutedStyle.Render(user.ID))
			return nil
		},
	}
}

func (c *cli) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show session and backend status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			snap := c.manager.Snapshot()
			c.println(titleStyle.Render("Peer Bonus"))
			c.printf("State:     %s\n", snap.State)

			if snap.LoggedIn && snap.User != nil {
				c.printf("Logged in: %s\n", successStyle.Render("yes, as "+snap.User.Email))
			} else {
				c.printf("Logged in: %s\n", warningStyle.Render("no"))
			}
			if err := c.manager.LastError(); err != nil {
				c.printf("Last error: %s\n", errorStyle.Render(err.Error()))
			}

			switch {
			case c.offline:
				c.printf("Backend:   %s\n", infoStyle.Render("offline ("+c.settings.Offline.UsersPath+")"))
			default:
				checker, ok := c.auth.(healthChecker)
				if !ok {
					break
				}
				if err := checker.Health(cmd.Context()); err != nil {
					c.printf("Backend:   %s\n", errorStyle.Render(c.settings.API.BaseURL+" unreachable: "+err.Error()))
				} else {
					c.printf("Backend:   %s\n", successStyle.Render(c.settings.API.BaseURL+" ok"))
				}
			}
			return nil
		},
	}
}

func displayName(u *peerbonus.User) string {
	if u == nil {
		return "(unknown)"
	}
	if u.Name != "" {
		return u.Name
	}
	return u.Email
}

// describeAuthError reduces an API failure to the backend's message.
func describeAuthError(prefix string, err error) error {
	var apiErr *authapi.Error
	if errors.As(err, &apiErr) && !errors.Is(err, peerbonus.ErrProfileResolution) {
		return fmt.Errorf("%s: %s: %w", prefix, apiErr.Message(), apiErr)
	}
	return fmt.Errorf("%s: %w", prefix, err)
}
