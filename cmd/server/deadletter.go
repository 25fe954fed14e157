// Sonograph - Audio Recording Analysis Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sonograph

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/tomtom215/sonograph/internal/deadletter"
)

// deadLetterStore is the part of *deadletter.Store the commands use.
type deadLetterStore interface {
	List(ctx context.Context, limit int) ([]*deadletter.Entry, error)
	Count(ctx context.Context) (int, error)
	Delete(ctx context.Context, id string) error
	Purge(ctx context.Context) (int, error)
}

var deadLetterCmd = &cobra.Command{
	Use:     "deadletter",
	Aliases: []string{"dlq"},
	Short:   "Inspect analysis results that could not be applied",
	Long: `The dead-letter store is opened exclusively, so these commands only
work while the server is stopped. Use GET /api/v1/deadletters on a running
server instead.`,
}

var deadLetterListCmd = &cobra.Command{
	Use:   "list",
	Short: "List dead-lettered results, oldest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		limit, err := cmd.Flags().GetInt("limit")
		if err != nil {
			return err
		}
		asJSON, err := cmd.Flags().GetBool("json")
		if err != nil {
			return err
		}
		return withDeadLetters(func(s deadLetterStore) error {
			return listDeadLetters(cmd.Context(), s, cmd.OutOrStdout(), limit, asJSON)
		})
	},
}

var deadLetterDeleteCmd = &cobra.Command{
	Use:   "delete ID...",
	Short: "Delete dead-lettered results by id",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDeadLetters(func(s deadLetterStore) error {
			return deleteDeadLetters(cmd.Context(), s, cmd.OutOrStdout(), args)
		})
	},
}

var deadLetterPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete every dead-lettered result",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		yes, err := cmd.Flags().GetBool("yes")
		if err != nil {
			return err
		}
		return withDeadLetters(func(s deadLetterStore) error {
			return purgeDeadLetters(cmd.Context(), s, cmd.OutOrStdout(), yes)
		})
	},
}

func init() {
	deadLetterListCmd.Flags().Int("limit", 50, "maximum number of entries to show (0 for all)")
	deadLetterListCmd.Flags().Bool("json", false, "print entries as JSON lines")
	deadLetterPurgeCmd.Flags().Bool("yes", false, "confirm the purge")

	deadLetterCmd.AddCommand(deadLetterListCmd, deadLetterDeleteCmd, deadLetterPurgeCmd)
}

func withDeadLetters(fn func(deadLetterStore) error) error {
	store, err := deadletter.Open(&cfg.DeadLetter)
	if err != nil {
		return fmt.Errorf("open dead-letter store (is the server running?): %w", err)
	}
	defer closeLogged("dead-letter store", store.Close)
	return fn(store)
}

func listDeadLetters(ctx context.Context, s deadLetterStore, w io.Writer, limit int, asJSON bool) error {
	entries, err := s.List(ctx, limit)
	if err != nil {
		return err
	}

	if asJSON {
		enc := json.NewEncoder(w)
		for _, e := range entries {
			if err := enc.Encode(e); err != nil {
				return err
			}
		}
		return nil
	}

	total, err := s.Count(ctx)
	if err != nil {
		return err
	}
	if total == 0 {
		_, err := fmt.Fprintln(w, "No dead-lettered results.")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCREATED\tREASON\tATTEMPTS\tSUBJECT\tERROR")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
			e.ID, e.CreatedAt.UTC().Format(time.RFC3339), e.Reason, e.Attempts, e.Subject, oneLine(e.Error, 80))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if len(entries) < total {
		_, err = fmt.Fprintf(w, "Showing %d of %d entries.\n", len(entries), total)
	}
	return err
}

func deleteDeadLetters(ctx context.Context, s deadLetterStore, w io.Writer, ids []string) error {
	var errs []error
	for _, id := range ids {
		if err := s.Delete(ctx, id); err != nil {
			errs = append(errs, fmt.Errorf("delete %s: %w", id, err))
			continue
		}
		fmt.Fprintf(w, "Deleted %s\n", id)
	}
	return errors.Join(errs...)
}

func purgeDeadLetters(ctx context.Context, s deadLetterStore, w io.Writer, confirmed bool) error {
	if !confirmed {
		n, err := s.Count(ctx)
		if err != nil {
			return err
		}
		return fmt.Errorf("refusing to purge %d entries without --yes", n)
	}
	n, err := s.Purge(ctx)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "Purged %d entries.\n", n)
	return err
}

// oneLine flattens s and cuts it to n runes.
func oneLine(s string, n int) string {
	r := []rune(s)
	for i, c := range r {
		if c == '\n' || c == '\r' || c == '\t' {
			r[i] = ' '
		}
	}
	if len(r) > n {
		return string(r[:n-1]) + "…"
	}
	return string(r)
}
