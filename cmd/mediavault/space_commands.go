package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"mediavault/internal/vault"
)

type spaceView struct {
	ID       int64  `json:"id"`
	Kind     string `json:"kind"`
	Name     string `json:"name"`
	Host     string `json:"host,omitempty"`
	Username string `json:"username,omitempty"`
	License  string `json:"license,omitempty"`
	Current  bool   `json:"current"`
}

func newSpaceCommand(ctx *commandContext) *cobra.Command {
	spaceCmd := &cobra.Command{
		Use:   "space",
		Short: "Manage remote destination spaces",
	}

	spaceCmd.AddCommand(newSpaceAddCommand(ctx))
	spaceCmd.AddCommand(newSpaceListCommand(ctx))
	spaceCmd.AddCommand(newSpaceUseCommand(ctx))
	spaceCmd.AddCommand(newSpaceRemoveCommand(ctx))

	return spaceCmd
}

func newSpaceAddCommand(ctx *commandContext) *cobra.Command {
	var kind, host, username, password, license string
	var use bool

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Register a space",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parsedKind, err := vault.ParseSpaceKind(kind)
			if err != nil {
				return err
			}
			return ctx.withSession(cmd, func(runCtx context.Context, s *session) error {
				space := &vault.Space{
					Kind:     parsedKind,
					Name:     strings.TrimSpace(args[0]),
					Host:     strings.TrimSpace(host),
					Username: username,
					Password: password,
					License:  strings.TrimSpace(license),
				}
				if err := s.store.CreateSpace(runCtx, space); err != nil {
					return err
				}
				current, err := s.store.CurrentSpace(runCtx)
				if err != nil {
					return err
				}
				if use || current == nil {
					if err := s.store.SetCurrentSpace(runCtx, space.ID); err != nil {
						return err
					}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Added space %d (%s, %s)\n", space.ID, space.Name, space.Kind)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&kind, "kind", string(vault.SpaceKindPrivateServer), "Space kind (private-server, archive-service, cloud-drive, peer-to-peer)")
	cmd.Flags().StringVar(&host, "host", "", "Server host or endpoint")
	cmd.Flags().StringVar(&username, "username", "", "Account username")
	cmd.Flags().StringVar(&password, "password", "", "Account password or token")
	cmd.Flags().StringVar(&license, "license", "", "Default license for new media")
	cmd.Flags().BoolVar(&use, "use", false, "Make this the current space")
	return cmd
}

func newSpaceListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List spaces",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, func(runCtx context.Context, s *session) error {
				spaces, err := s.store.ListSpaces(runCtx)
				if err != nil {
					return err
				}
				current, err := s.store.CurrentSpace(runCtx)
				if err != nil {
					return err
				}
				views := make([]spaceView, 0, len(spaces))
				for _, space := range spaces {
					views = append(views, spaceView{
						ID:       space.ID,
						Kind:     string(space.Kind),
						Name:     space.Name,
						Host:     space.Host,
						Username: space.Username,
						License:  space.License,
						Current:  current != nil && current.ID == space.ID,
					})
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, views)
				}
				if len(views) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No spaces configured")
					return nil
				}
				rows := make([][]string, 0, len(views))
				for _, v := range views {
					marker := ""
					if v.Current {
						marker = "*"
					}
					rows = append(rows, []string{marker, strconv.FormatInt(v.ID, 10), v.Name, v.Kind, orDash(v.Host), orDash(v.License)})
				}
				printTable(cmd, []string{"", "ID", "Name", "Kind", "Host", "License"}, rows,
					[]columnAlignment{alignLeft, alignRight, alignLeft, alignLeft, alignLeft, alignLeft})
				return nil
			})
		},
	}
}

func newSpaceUseCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "use <id>",
		Short: "Select the current space",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "space")
			if err != nil {
				return err
			}
			return ctx.withSession(cmd, func(runCtx context.Context, s *session) error {
				if err := s.store.SetCurrentSpace(runCtx, id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Current space is now %d\n", id)
				return nil
			})
		},
	}
}

func newSpaceRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Delete a space with all of its projects, collections, and media",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "space")
			if err != nil {
				return err
			}
			return ctx.withSession(cmd, func(runCtx context.Context, s *session) error {
				if err := s.engine.DeleteSpace(runCtx, id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed space %d\n", id)
				return nil
			})
		},
	}
}
