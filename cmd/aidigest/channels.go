package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"aidigest/internal/app"
	"aidigest/internal/domain"
)

func newChannelsCmd() *cobra.Command {
	channelsCmd := &cobra.Command{
		Use:   "channels",
		Short: "Manage tracked source channels",
	}

	var peerID int64
	var title string

	addCmd := &cobra.Command{
		Use:   "add <username>",
		Short: "Track a channel by its public username",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app.App) error {
				username := strings.TrimPrefix(args[0], "@")
				if title == "" {
					title = username
				}
				if peerID == 0 {
					// Public channels are keyed by username; a synthetic
					// peer id keeps the unique constraint satisfied.
					peerID = syntheticPeerID(username)
				}
				saved, err := a.Store.Channels().Upsert(ctx, domain.Channel{
					PeerID:   peerID,
					Username: username,
					Title:    title,
					IsActive: true,
				})
				if err != nil {
					return err
				}
				fmt.Printf("channel @%s tracked (id %d)\n", saved.Username, saved.ID)
				return nil
			})
		},
	}
	addCmd.Flags().Int64Var(&peerID, "peer-id", 0, "Telegram peer id, if known")
	addCmd.Flags().StringVar(&title, "title", "", "display title, defaults to the username")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List tracked channels",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app.App) error {
				channels, err := a.Store.Channels().List(ctx)
				if err != nil {
					return err
				}
				if len(channels) == 0 {
					fmt.Println("no channels tracked")
					return nil
				}
				for _, ch := range channels {
					state := "active"
					if !ch.IsActive {
						state = "disabled"
					}
					fetched := "never"
					if ch.LastFetchedAt != nil {
						fetched = ch.LastFetchedAt.Format(time.RFC3339)
					}
					fmt.Printf("%4d  @%-24s %-8s last fetched %s\n", ch.ID, ch.Username, state, fetched)
				}
				return nil
			})
		},
	}

	channelsCmd.AddCommand(addCmd, listCmd,
		toggleCmd("enable", "Resume ingesting a channel", true),
		toggleCmd("disable", "Stop ingesting a channel without deleting its posts", false))
	return channelsCmd
}

func toggleCmd(use, short string, active bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <username>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app.App) error {
				username := strings.TrimPrefix(args[0], "@")
				channels, err := a.Store.Channels().List(ctx)
				if err != nil {
					return err
				}
				for _, ch := range channels {
					if ch.Username == username {
						if err := a.Store.Channels().SetActive(ctx, ch.ID, active); err != nil {
							return err
						}
						fmt.Printf("channel @%s %sd\n", username, use)
						return nil
					}
				}
				return fmt.Errorf("channel @%s is not tracked", username)
			})
		},
	}
}

// syntheticPeerID derives a stable negative id from the username for
// channels added before their real peer id is known.
func syntheticPeerID(username string) int64 {
	var h int64
	for _, r := range username {
		h = h*31 + int64(r)
	}
	if h > 0 {
		h = -h
	}
	if h == 0 {
		h = -1
	}
	return h
}
