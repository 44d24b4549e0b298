package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"mediavault/internal/textutil"
)

type queueEntry struct {
	Position int       `json:"position"`
	Media    mediaView `json:"media"`
}

func newQueueCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "queue",
		Short: "Show the upload queue in upload order",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, func(runCtx context.Context, s *session) error {
				items, err := s.store.UploadQueue(runCtx)
				if err != nil {
					return err
				}
				entries := make([]queueEntry, 0, len(items))
				for i, item := range items {
					entries = append(entries, queueEntry{Position: i + 1, Media: newMediaView(item)})
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, entries)
				}
				if len(entries) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Upload queue is empty")
					return nil
				}
				rows := make([][]string, 0, len(entries))
				for _, entry := range entries {
					m := entry.Media
					rows = append(rows, []string{
						strconv.Itoa(entry.Position),
						strconv.FormatInt(m.ID, 10),
						textutil.Truncate(m.Title, 40),
						m.Status,
						strconv.Itoa(m.Priority),
						textutil.Truncate(orDash(m.StatusMessage), 50),
					})
				}
				printTable(cmd, []string{"#", "ID", "Title", "Status", "Priority", "Message"}, rows,
					[]columnAlignment{alignRight, alignRight, alignLeft, alignLeft, alignRight, alignLeft})
				return nil
			})
		},
	}
}
