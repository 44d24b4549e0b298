package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

type collectionView struct {
	ID         int64  `json:"id"`
	ProjectID  int64  `json:"project_id"`
	Created    string `json:"created"`
	UploadDate string `json:"upload_date,omitempty"`
	ServerURL  string `json:"server_url,omitempty"`
	Media      int    `json:"media"`
	Uploaded   int    `json:"uploaded"`
}

func newCollectionCommand(ctx *commandContext) *cobra.Command {
	collectionCmd := &cobra.Command{
		Use:   "collection",
		Short: "Inspect and remove collections",
	}

	collectionCmd.AddCommand(newCollectionListCommand(ctx))
	collectionCmd.AddCommand(newCollectionRemoveCommand(ctx))

	return collectionCmd
}

func newCollectionListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list <project-id>",
		Short: "List a project's collections, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			projectID, err := parseID(args[0], "project")
			if err != nil {
				return err
			}
			return ctx.withSession(cmd, func(runCtx context.Context, s *session) error {
				if _, err := s.store.GetProject(runCtx, projectID); err != nil {
					return err
				}
				collections, err := s.store.ListCollections(runCtx, projectID)
				if err != nil {
					return err
				}
				views := make([]collectionView, 0, len(collections))
				for _, c := range collections {
					view := collectionView{
						ID:        c.ID,
						ProjectID: c.ProjectID,
						Created:   formatTime(c.CreatedAt),
						ServerURL: c.ServerURL,
						Media:     c.MediaCount,
						Uploaded:  c.UploadedCount,
					}
					if c.IsUploaded() {
						view.UploadDate = formatOptionalTime(c.UploadDate)
					}
					views = append(views, view)
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, views)
				}
				if len(views) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No collections")
					return nil
				}
				rows := make([][]string, 0, len(views))
				for _, v := range views {
					rows = append(rows, []string{
						strconv.FormatInt(v.ID, 10),
						v.Created,
						fmt.Sprintf("%d/%d", v.Uploaded, v.Media),
						orDash(v.UploadDate),
						orDash(v.ServerURL),
					})
				}
				printTable(cmd, []string{"ID", "Created", "Uploaded", "Closed", "Server URL"}, rows,
					[]columnAlignment{alignRight, alignLeft, alignRight, alignLeft, alignLeft})
				return nil
			})
		},
	}
}

func newCollectionRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Delete a collection and all of its media",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "collection")
			if err != nil {
				return err
			}
			return ctx.withSession(cmd, func(runCtx context.Context, s *session) error {
				if err := s.engine.DeleteCollection(runCtx, id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed collection %d\n", id)
				return nil
			})
		},
	}
}
