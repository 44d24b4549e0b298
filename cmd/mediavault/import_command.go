package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"mediavault/internal/config"
	"mediavault/internal/lifecycle"
)

type importView struct {
	CollectionID int64              `json:"collection_id"`
	Imported     []mediaView        `json:"imported"`
	Failed       []importFailureRow `json:"failed,omitempty"`
}

type importFailureRow struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

func newImportCommand(ctx *commandContext) *cobra.Command {
	var capture bool
	var queue bool

	cmd := &cobra.Command{
		Use:   "import <project-id> <files...>",
		Short: "Seal files into the project's open collection",
		Long: "Seal files into the project's open collection.\n\n" +
			"Sources are left untouched unless --capture is given, in which case each\n" +
			"file is encrypted in place and its plaintext removed.",
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			projectID, err := parseID(args[0], "project")
			if err != nil {
				return err
			}
			paths := make([]string, 0, len(args)-1)
			for _, arg := range args[1:] {
				expanded, err := config.ExpandPath(arg)
				if err != nil {
					return err
				}
				paths = append(paths, expanded)
			}

			return ctx.withSession(cmd, func(runCtx context.Context, s *session) error {
				run := s.engine.Import
				if capture {
					run = s.engine.Capture
				}
				result, importErr := run(runCtx, projectID, paths...)
				if result == nil {
					return importErr
				}

				if queue && len(result.Imported) > 0 {
					ids := make([]int64, 0, len(result.Imported))
					for _, media := range result.Imported {
						ids = append(ids, media.ID)
					}
					if _, err := s.engine.Enqueue(runCtx, ids...); err != nil {
						return err
					}
					for _, media := range result.Imported {
						if refreshed, err := s.store.GetMedia(runCtx, media.ID); err == nil {
							*media = *refreshed
						}
					}
				}

				if err := renderImport(cmd, ctx.jsonOutput(), result); err != nil {
					return err
				}
				return importErr
			})
		},
	}

	cmd.Flags().BoolVar(&capture, "capture", false, "Encrypt files in place instead of copying them")
	cmd.Flags().BoolVar(&queue, "queue", false, "Queue imported media for upload immediately")
	return cmd
}

func renderImport(cmd *cobra.Command, asJSON bool, result *lifecycle.ImportResult) error {
	view := importView{}
	if result.Collection != nil {
		view.CollectionID = result.Collection.ID
	}
	for _, media := range result.Imported {
		view.Imported = append(view.Imported, newMediaView(media))
	}
	for _, failure := range result.Failed {
		view.Failed = append(view.Failed, importFailureRow{Path: failure.Path, Error: failure.Err.Error()})
	}
	if asJSON {
		return writeJSON(cmd, view)
	}

	out := cmd.OutOrStdout()
	if len(view.Imported) > 0 {
		rows := make([][]string, 0, len(view.Imported))
		for _, m := range view.Imported {
			rows = append(rows, []string{strconv.FormatInt(m.ID, 10), m.Title, m.MimeType, m.Size, m.Status})
		}
		printTable(cmd, []string{"ID", "Title", "Type", "Size", "Status"}, rows,
			[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignLeft})
		fmt.Fprintf(out, "Imported %d file(s) into collection %d\n", len(view.Imported), view.CollectionID)
	}
	for _, failure := range view.Failed {
		fmt.Fprintf(out, "Failed: %s: %s\n", failure.Path, failure.Error)
	}
	return nil
}
