package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"mediavault/internal/vault"
)

type projectView struct {
	ID          int64  `json:"id"`
	SpaceID     int64  `json:"space_id"`
	Description string `json:"description"`
	License     string `json:"license,omitempty"`
	Archived    bool   `json:"archived"`
	Created     string `json:"created"`
}

func newProjectCommand(ctx *commandContext) *cobra.Command {
	projectCmd := &cobra.Command{
		Use:   "project",
		Short: "Manage projects within a space",
	}

	projectCmd.AddCommand(newProjectAddCommand(ctx))
	projectCmd.AddCommand(newProjectListCommand(ctx))
	projectCmd.AddCommand(newProjectArchiveCommand(ctx, true))
	projectCmd.AddCommand(newProjectArchiveCommand(ctx, false))
	projectCmd.AddCommand(newProjectRemoveCommand(ctx))

	return projectCmd
}

func newProjectAddCommand(ctx *commandContext) *cobra.Command {
	var spaceID int64
	var license string

	cmd := &cobra.Command{
		Use:   "add <description>",
		Short: "Create a project in the current space",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, func(runCtx context.Context, s *session) error {
				space, err := resolveSpace(runCtx, s.store, spaceID)
				if err != nil {
					return err
				}
				project := &vault.Project{
					SpaceID:     space.ID,
					Description: strings.TrimSpace(args[0]),
					License:     strings.TrimSpace(license),
				}
				if err := s.store.CreateProject(runCtx, project); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Added project %d (%s) to space %s\n", project.ID, project.Description, space.Name)
				return nil
			})
		},
	}

	cmd.Flags().Int64Var(&spaceID, "space", 0, "Space id (defaults to the current space)")
	cmd.Flags().StringVar(&license, "license", "", "License for media in this project")
	return cmd
}

func newProjectListCommand(ctx *commandContext) *cobra.Command {
	var spaceID int64
	var archived bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List projects in the current space",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, func(runCtx context.Context, s *session) error {
				space, err := resolveSpace(runCtx, s.store, spaceID)
				if err != nil {
					return err
				}
				projects, err := s.store.ListProjects(runCtx, space.ID, archived)
				if err != nil {
					return err
				}
				views := make([]projectView, 0, len(projects))
				for _, p := range projects {
					views = append(views, projectView{
						ID:          p.ID,
						SpaceID:     p.SpaceID,
						Description: p.Description,
						License:     p.License,
						Archived:    p.Archived,
						Created:     formatTime(p.CreatedAt),
					})
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, views)
				}
				if len(views) == 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "No projects in space %s\n", space.Name)
					return nil
				}
				rows := make([][]string, 0, len(views))
				for _, v := range views {
					rows = append(rows, []string{strconv.FormatInt(v.ID, 10), v.Description, orDash(v.License), v.Created})
				}
				printTable(cmd, []string{"ID", "Description", "License", "Created"}, rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft})
				return nil
			})
		},
	}

	cmd.Flags().Int64Var(&spaceID, "space", 0, "Space id (defaults to the current space)")
	cmd.Flags().BoolVar(&archived, "archived", false, "List archived projects instead")
	return cmd
}

func newProjectArchiveCommand(ctx *commandContext, archive bool) *cobra.Command {
	use, short, verb := "archive <id>", "Hide a project from the default listing", "Archived"
	if !archive {
		use, short, verb = "unarchive <id>", "Restore an archived project", "Unarchived"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "project")
			if err != nil {
				return err
			}
			return ctx.withSession(cmd, func(runCtx context.Context, s *session) error {
				if err := s.store.SetProjectArchived(runCtx, id, archive); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s project %d\n", verb, id)
				return nil
			})
		},
	}
}

func newProjectRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Delete a project with all of its collections and media",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "project")
			if err != nil {
				return err
			}
			return ctx.withSession(cmd, func(runCtx context.Context, s *session) error {
				if err := s.engine.DeleteProject(runCtx, id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed project %d\n", id)
				return nil
			})
		},
	}
}
