package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/peerbonus/peerbonus-go/kudos"
	"github.com/spf13/cobra"
)

func (c *cli) usersCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "users",
		Short: "List teammates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := c.kudosClient()
			if err != nil {
				return err
			}
			users, err := client.Users(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(users) == 0 {
				c.println(infoStyle.Render("No teammates yet"))
				return nil
			}
			c.println(headerStyle.Render("Teammates"))
			for _, u := range users {
				c.printf("  %-24s %-32s %s\n", u.Name, u.Email, mutedStyle.Render(u.ID))
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "l", kudos.DefaultUsersLimit, "maximum number of users")
	return cmd
}

func (c *cli) feedCmd() *cobra.Command {
	var (
		limit    int
		watch    bool
		received bool
	)
	cmd := &cobra.Command{
		Use:   "feed",
		Short: "Show recent kudos",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := c.kudosClient()
			if err != nil {
				return err
			}
			if limit <= 0 {
				limit = c.settings.Kudos.FeedLimit
			}

			if watch {
				ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
				defer stop()
				c.println(titleStyle.Render("Watching kudos (Ctrl+C to stop)"))
				err := client.Watch(ctx, c.settings.Kudos.WatchInterval, func(batch []kudos.Kudos) {
					for _, k := range batch {
						c.printKudos(k)
					}
				})
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			}

			var list []kudos.Kudos
			if received {
				list, err = client.Received(cmd.Context(), "", limit)
			} else {
				list, err = client.Feed(cmd.Context(), limit)
			}
			if err != nil {
				return err
			}
			if len(list) == 0 {
				c.println(infoStyle.Render("No kudos yet"))
				return nil
			}
			for _, k := range list {
				c.printKudos(k)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "l", 0, "maximum number of kudos (default kudos.feed_limit)")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "keep polling and print new kudos as they arrive")
	cmd.Flags().BoolVar(&received, "received", false, "only kudos you received")
	return cmd
}

func (c *cli) dashboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Show teammates, the feed and your received kudos",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := c.kudosClient()
			if err != nil {
				return err
			}
			d, err := client.Dashboard(cmd.Context())
			if err != nil {
				return err
			}
			c.println(headerStyle.Render(fmt.Sprintf("Teammates (%d)", len(d.Users))))
			for _, u := range d.Users {
				c.printf("  %s %s\n", u.Name, mutedStyle.Render(u.Email))
			}
			c.println()
			c.println(headerStyle.Render(fmt.Sprintf("Received (%d)", len(d.Received))))
			for _, k := range d.Received {
				c.printKudos(k)
			}
			c.println(headerStyle.Render(fmt.Sprintf("Feed (%d)", len(d.Feed))))
			for _, k := range d.Feed {
				c.printKudos(k)
			}
			return nil
		},
	}
}

func (c *cli) sendCmd() *cobra.Command {
	var amount int
	cmd := &cobra.Command{
		Use:   "send <receiver> <message...>",
		Short: "Send kudos to a teammate",
		Long:  "Send kudos to a teammate. The receiver is a user id or an email address.",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := c.kudosClient()
			if err != nil {
				return err
			}
			receiver, err := c.resolveUser(cmd.Context(), client, args[0])
			if err != nil {
				return err
			}
			k, err := client.Send(cmd.Context(), kudos.SendInput{
				ReceiverID: receiver,
				Message:    strings.Join(args[1:], " "),
				Amount:     amount,
			})
			if err != nil {
				return err
			}
			c.println(successStyle.Render(fmt.Sprintf("✓ Sent %d kudos to %s", k.Amount, k.ReceiverName())))
			c.println(mutedStyle.Render(k.ID))
			return nil
		},
	}
	cmd.Flags().IntVarP(&amount, "amount", "a", 1, "kudos amount")
	return cmd
}

func (c *cli) reactCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "react <kudos-id> <emoji>",
		Short: "Toggle your reaction on a kudos",
		Long:  "Toggle your reaction on a kudos. Allowed: " + strings.Join(kudos.Reactions, " "),
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := c.kudosClient()
			if err != nil {
				return err
			}
			r, err := client.ToggleReaction(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			verb := "Removed"
			if r.UserReacted {
				verb = "Added"
			}
			c.printf("%s %s (%d)\n", verb, r.ReactionType, r.Count)
			return nil
		},
	}
}

// resolveUser maps an email address to a user id. Anything else is taken
// as an id.
func (c *cli) resolveUser(ctx context.Context, client *kudos.Client, ref string) (string, error) {
	if !strings.Contains(ref, "@") {
		return ref, nil
	}
	users, err := client.Users(ctx, 0)
	if err != nil {
		return "", err
	}
	for _, u := range users {
		if strings.EqualFold(u.Email, ref) {
			return u.ID, nil
		}
	}
	return "", fmt.Errorf("no teammate with email %s", ref)
}

func (c *cli) printKudos(k kudos.Kudos) {
	when := k.CreatedAt
	if t, err := k.Created(); err == nil {
		when = t.Local().Format("2006-01-02 15:04")
	}
	c.printf("%s %s → %s %s\n",
		amountStyle.Render(fmt.Sprintf("+%d", k.Amount)),
		headerStyle.Render(k.SenderName()),
		headerStyle.Render(k.ReceiverName()),
		mutedStyle.Render(when),
	)
	c.println(messageStyle.Render(k.Message))
}
