package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pilotcli/pilot/internal/config"
	"github.com/pilotcli/pilot/internal/session"
	"github.com/pilotcli/pilot/internal/sessionlock"
)

// sessionsCommand groups session management subcommands.
func sessionsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Manage stored sessions",
	}
	cmd.AddCommand(sessionsListCommand())
	cmd.AddCommand(sessionsDeleteCommand())
	cmd.AddCommand(sessionsGCCommand())
	return cmd
}

// openStore constructs the session store rooted at the global data dir.
func openStore() (*session.Store, error) {
	dir, err := config.GlobalDir()
	if err != nil {
		return nil, err
	}
	return session.NewStore(dir), nil
}

// sessionsListCommand prints stored sessions, newest first.
func sessionsListCommand() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			sessions, err := store.List(limit)
			if err != nil {
				return err
			}
			if len(sessions) == 0 {
				fmt.Fprintln(os.Stdout, "No sessions stored.")
				return nil
			}
			for _, info := range sessions {
				marker := ""
				if sessionlock.IsLocked(info.ID) {
					marker = "  [in use]"
				}
				fmt.Fprintf(os.Stdout, "%s  %s  %6d bytes%s\n",
					info.ID, info.UpdatedAt.Format("2006-01-02 15:04"), info.Size, marker)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of sessions to show (0 for all)")
	return cmd
}

// sessionsDeleteCommand removes one stored session.
func sessionsDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <session-id>",
		Short: "Delete a stored session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			if sessionlock.IsLocked(id) {
				return fmt.Errorf("session %s is in use by another pilot process", id)
			}
			store, err := openStore()
			if err != nil {
				return err
			}
			if err := store.Delete(id); err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "Deleted session %s\n", id)
			return nil
		},
	}
}

// sessionsGCCommand removes sessions older than a cutoff.
func sessionsGCCommand() *cobra.Command {
	var days int
	var yes bool
	cmd := &cobra.Command{
		Use:   "gc",
		Short: "Delete sessions older than a cutoff",
		RunE: func(cmd *cobra.Command, args []string) error {
			if days <= 0 {
				return errors.New("days must be positive")
			}
			store, err := openStore()
			if err != nil {
				return err
			}
			olderThan := time.Duration(days) * 24 * time.Hour

			if !yes {
				candidates, err := staleSessions(store, olderThan)
				if err != nil {
					return err
				}
				if len(candidates) == 0 {
					fmt.Fprintln(os.Stdout, "Nothing to remove.")
					return nil
				}
				fmt.Fprintf(os.Stdout, "About to delete %d session(s) older than %d day(s). Continue? [y/N]: ", len(candidates), days)
				reader := bufio.NewReader(os.Stdin)
				line, _ := reader.ReadString('\n')
				answer := strings.ToLower(strings.TrimSpace(line))
				if answer != "y" && answer != "yes" {
					fmt.Fprintln(os.Stdout, "Aborted.")
					return nil
				}
			}

			removed, err := store.GC(olderThan, sessionlock.IsLocked)
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "Removed %d session(s).\n", len(removed))
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 30, "Delete sessions not updated within this many days")
	cmd.Flags().BoolVar(&yes, "yes", false, "Skip the confirmation prompt")
	return cmd
}

// staleSessions lists session ids past the cutoff without deleting them.
// Sessions held by a live process are excluded, matching what gc removes.
func staleSessions(store *session.Store, olderThan time.Duration) ([]string, error) {
	sessions, err := store.List(0)
	if err != nil {
		return nil, err
	}
	cutoff := time.Now().Add(-olderThan)
	var stale []string
	for _, info := range sessions {
		if info.UpdatedAt.After(cutoff) {
			continue
		}
		if sessionlock.IsLocked(info.ID) {
			continue
		}
		stale = append(stale, info.ID)
	}
	return stale, nil
}
