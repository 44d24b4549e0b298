package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"mediavault/internal/config"
	"mediavault/internal/fileutil"
	"mediavault/internal/textutil"
	"mediavault/internal/vault"
)

type mediaView struct {
	ID            int64  `json:"id"`
	ProjectID     int64  `json:"project_id"`
	CollectionID  int64  `json:"collection_id"`
	Title         string `json:"title"`
	Description   string `json:"description,omitempty"`
	Author        string `json:"author,omitempty"`
	Location      string `json:"location,omitempty"`
	Tags          string `json:"tags,omitempty"`
	License       string `json:"license,omitempty"`
	OriginalPath  string `json:"original_path"`
	EncryptedPath string `json:"encrypted_path,omitempty"`
	MimeType      string `json:"mime_type"`
	ContentLength int64  `json:"content_length"`
	Size          string `json:"-"`
	Hash          string `json:"hash,omitempty"`
	Status        string `json:"status"`
	StatusMessage string `json:"status_message,omitempty"`
	Priority      int    `json:"priority"`
	Selected      bool   `json:"selected"`
	Flagged       bool   `json:"flagged"`
	Created       string `json:"created"`
	Updated       string `json:"updated"`
}

func newMediaView(m *vault.Media) mediaView {
	return mediaView{
		ID:            m.ID,
		ProjectID:     m.ProjectID,
		CollectionID:  m.CollectionID,
		Title:         m.Title,
		Description:   m.Description,
		Author:        m.Author,
		Location:      m.Location,
		Tags:          m.Tags,
		License:       m.License,
		OriginalPath:  m.OriginalFilePath,
		EncryptedPath: m.EncryptedPath,
		MimeType:      m.MimeType,
		ContentLength: m.ContentLength,
		Size:          humanize.IBytes(uint64(max(m.ContentLength, 0))),
		Hash:          m.MediaHash,
		Status:        m.Status.String(),
		StatusMessage: m.StatusMessage,
		Priority:      m.Priority,
		Selected:      m.Selected,
		Flagged:       m.Flagged,
		Created:       formatTime(m.CreateDate),
		Updated:       formatTime(m.UpdateDate),
	}
}

func newMediaCommand(ctx *commandContext) *cobra.Command {
	mediaCmd := &cobra.Command{
		Use:   "media",
		Short: "Inspect and manage media items",
	}

	mediaCmd.AddCommand(newMediaListCommand(ctx))
	mediaCmd.AddCommand(newMediaShowCommand(ctx))
	mediaCmd.AddCommand(newMediaQueueCommand(ctx))
	mediaCmd.AddCommand(newMediaRetryCommand(ctx))
	mediaCmd.AddCommand(newMediaRemoveCommand(ctx))
	mediaCmd.AddCommand(newMediaReorderCommand(ctx))
	mediaCmd.AddCommand(newMediaEditCommand(ctx))
	mediaCmd.AddCommand(newMediaSelectCommand(ctx))
	mediaCmd.AddCommand(newMediaExportCommand(ctx))

	return mediaCmd
}

func newMediaListCommand(ctx *commandContext) *cobra.Command {
	var projectID, collectionID int64
	var statuses []string
	var selected bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List media by project, collection, status, or selection",
		RunE: func(cmd *cobra.Command, args []string) error {
			var filter []vault.Status
			for _, name := range statuses {
				status, ok := vault.ParseStatus(name)
				if !ok {
					return fmt.Errorf("unknown status %q", name)
				}
				filter = append(filter, status)
			}
			return ctx.withSession(cmd, func(runCtx context.Context, s *session) error {
				var (
					items []*vault.Media
					err   error
				)
				switch {
				case selected:
					items, err = s.store.SelectedMedia(runCtx)
				case collectionID > 0:
					items, err = s.store.ListMedia(runCtx, collectionID, vault.OrderByStatus)
				case projectID > 0:
					items, err = s.store.ListProjectMedia(runCtx, projectID)
				case len(filter) > 0:
					items, err = s.store.ListMediaByStatus(runCtx, filter...)
				default:
					return errors.New("pass --project, --collection, --status, or --selected")
				}
				if err != nil {
					return err
				}
				items = filterByStatus(items, filter)
				return renderMediaList(cmd, ctx.jsonOutput(), items)
			})
		},
	}

	cmd.Flags().Int64Var(&projectID, "project", 0, "List media in a project")
	cmd.Flags().Int64Var(&collectionID, "collection", 0, "List media in a collection")
	cmd.Flags().StringSliceVarP(&statuses, "status", "s", nil, "Filter by status (repeatable)")
	cmd.Flags().BoolVar(&selected, "selected", false, "List selected media")
	return cmd
}

func filterByStatus(items []*vault.Media, statuses []vault.Status) []*vault.Media {
	if len(statuses) == 0 {
		return items
	}
	out := items[:0]
	for _, item := range items {
		for _, status := range statuses {
			if item.Status == status {
				out = append(out, item)
				break
			}
		}
	}
	return out
}

func renderMediaList(cmd *cobra.Command, asJSON bool, items []*vault.Media) error {
	views := make([]mediaView, 0, len(items))
	for _, item := range items {
		views = append(views, newMediaView(item))
	}
	if asJSON {
		return writeJSON(cmd, views)
	}
	if len(views) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No media found")
		return nil
	}
	rows := make([][]string, 0, len(views))
	for _, v := range views {
		mark := ""
		if v.Selected {
			mark = "*"
		}
		if v.Flagged {
			mark += "!"
		}
		rows = append(rows, []string{
			mark,
			strconv.FormatInt(v.ID, 10),
			strconv.FormatInt(v.CollectionID, 10),
			textutil.Truncate(v.Title, 40),
			v.MimeType,
			v.Size,
			v.Status,
		})
	}
	printTable(cmd, []string{"", "ID", "Coll", "Title", "Type", "Size", "Status"}, rows,
		[]columnAlignment{alignLeft, alignRight, alignRight, alignLeft, alignLeft, alignRight, alignLeft})
	return nil
}

func newMediaShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a media item's details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "media")
			if err != nil {
				return err
			}
			return ctx.withSession(cmd, func(runCtx context.Context, s *session) error {
				media, err := s.store.GetMedia(runCtx, id)
				if err != nil {
					return err
				}
				view := newMediaView(media)
				if ctx.jsonOutput() {
					return writeJSON(cmd, view)
				}
				out := cmd.OutOrStdout()
				fields := [][2]string{
					{"ID", strconv.FormatInt(view.ID, 10)},
					{"Title", orDash(view.Title)},
					{"Status", view.Status},
					{"Message", orDash(view.StatusMessage)},
					{"Project", strconv.FormatInt(view.ProjectID, 10)},
					{"Collection", strconv.FormatInt(view.CollectionID, 10)},
					{"Type", view.MimeType},
					{"Size", view.Size},
					{"SHA-256", orDash(view.Hash)},
					{"Original", view.OriginalPath},
					{"Sealed", orDash(view.EncryptedPath)},
					{"Description", orDash(view.Description)},
					{"Author", orDash(view.Author)},
					{"Location", orDash(view.Location)},
					{"Tags", orDash(view.Tags)},
					{"License", orDash(view.License)},
					{"Priority", strconv.Itoa(view.Priority)},
					{"Selected", yesNo(view.Selected)},
					{"Flagged", yesNo(view.Flagged)},
					{"Created", view.Created},
					{"Updated", view.Updated},
				}
				for _, field := range fields {
					fmt.Fprintf(out, "%-12s %s\n", field[0]+":", field[1])
				}
				return nil
			})
		},
	}
}

// idsOrSelection parses args as media ids, falling back to the selection when
// useSelection is set and no ids were given.
func idsOrSelection(runCtx context.Context, s *session, args []string, useSelection bool) ([]int64, error) {
	if len(args) > 0 {
		return parseIDs(args, "media")
	}
	if !useSelection {
		return nil, errors.New("pass media ids or --selected")
	}
	selected, err := s.store.SelectedMedia(runCtx)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(selected))
	for _, media := range selected {
		ids = append(ids, media.ID)
	}
	if len(ids) == 0 {
		return nil, errors.New("no media selected")
	}
	return ids, nil
}

func newMediaQueueCommand(ctx *commandContext) *cobra.Command {
	var useSelection bool

	cmd := &cobra.Command{
		Use:   "queue [ids...]",
		Short: "Queue local media for upload",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, func(runCtx context.Context, s *session) error {
				ids, err := idsOrSelection(runCtx, s, args, useSelection)
				if err != nil {
					return err
				}
				queued, err := s.engine.Enqueue(runCtx, ids...)
				fmt.Fprintf(cmd.OutOrStdout(), "Queued %d of %d media\n", queued, len(ids))
				return err
			})
		},
	}
	cmd.Flags().BoolVar(&useSelection, "selected", false, "Queue the selected media")
	return cmd
}

func newMediaRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry [ids...]",
		Short: "Requeue failed uploads (all failed media when no ids are given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args, "media")
			if err != nil {
				return err
			}
			return ctx.withSession(cmd, func(runCtx context.Context, s *session) error {
				retried, err := s.engine.Retry(runCtx, ids...)
				fmt.Fprintf(cmd.OutOrStdout(), "Requeued %d media\n", retried)
				return err
			})
		},
	}
}

func newMediaRemoveCommand(ctx *commandContext) *cobra.Command {
	var useSelection bool

	cmd := &cobra.Command{
		Use:   "remove [ids...]",
		Short: "Delete media and their sealed payloads",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, func(runCtx context.Context, s *session) error {
				ids, err := idsOrSelection(runCtx, s, args, useSelection)
				if err != nil {
					return err
				}
				var errs []error
				removed := 0
				for _, id := range ids {
					if err := s.engine.DeleteMedia(runCtx, id); err != nil {
						errs = append(errs, fmt.Errorf("remove media %d: %w", id, err))
						continue
					}
					removed++
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d media\n", removed)
				return errors.Join(errs...)
			})
		},
	}
	cmd.Flags().BoolVar(&useSelection, "selected", false, "Remove the selected media")
	return cmd
}

func newMediaReorderCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reorder <id> <position>",
		Short: "Move a media to a 1-based position in the upload queue",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "media")
			if err != nil {
				return err
			}
			position, err := strconv.Atoi(args[1])
			if err != nil || position < 1 {
				return fmt.Errorf("invalid position %q", args[1])
			}
			return ctx.withSession(cmd, func(runCtx context.Context, s *session) error {
				if err := s.engine.Reorder(runCtx, id, position-1); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Moved media %d to position %d\n", id, position)
				return nil
			})
		},
	}
}

func newMediaEditCommand(ctx *commandContext) *cobra.Command {
	var title, description, author, location, tags, license string
	var flagged bool

	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Edit a media item's metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "media")
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			var patch vault.MetadataPatch
			if flags.Changed("title") {
				patch.Title = &title
			}
			if flags.Changed("description") {
				patch.Description = &description
			}
			if flags.Changed("author") {
				patch.Author = &author
			}
			if flags.Changed("location") {
				patch.Location = &location
			}
			if flags.Changed("tags") {
				patch.Tags = &tags
			}
			if flags.Changed("license") {
				patch.License = &license
			}
			flagChanged := flags.Changed("flagged")
			if patch.Empty() && !flagChanged {
				return errors.New("nothing to change; pass at least one field flag")
			}

			return ctx.withSession(cmd, func(runCtx context.Context, s *session) error {
				if !patch.Empty() {
					if err := s.store.UpdateMetadata(runCtx, id, patch); err != nil {
						return err
					}
				}
				if flagChanged {
					if err := s.store.SetFlagged(runCtx, id, flagged); err != nil {
						return err
					}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Updated media %d\n", id)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "Title")
	cmd.Flags().StringVar(&description, "description", "", "Description")
	cmd.Flags().StringVar(&author, "author", "", "Author")
	cmd.Flags().StringVar(&location, "location", "", "Location")
	cmd.Flags().StringVar(&tags, "tags", "", "Comma-separated tags")
	cmd.Flags().StringVar(&license, "license", "", "License")
	cmd.Flags().BoolVar(&flagged, "flagged", false, "Flag or unflag the media for review")
	return cmd
}

func newMediaSelectCommand(ctx *commandContext) *cobra.Command {
	var clearFirst, off bool

	cmd := &cobra.Command{
		Use:   "select [ids...]",
		Short: "Select media for batch queue or remove",
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args, "media")
			if err != nil {
				return err
			}
			if !clearFirst && len(ids) == 0 {
				return errors.New("pass media ids or --clear")
			}
			return ctx.withSession(cmd, func(runCtx context.Context, s *session) error {
				out := cmd.OutOrStdout()
				if clearFirst {
					cleared, err := s.store.ClearSelection(runCtx)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "Cleared selection (%d media)\n", cleared)
				}
				if len(ids) == 0 {
					return nil
				}
				changed, err := s.store.SetSelected(runCtx, !off, ids...)
				if err != nil {
					return err
				}
				verb := "Selected"
				if off {
					verb = "Deselected"
				}
				fmt.Fprintf(out, "%s %d media\n", verb, changed)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&clearFirst, "clear", false, "Clear the current selection first")
	cmd.Flags().BoolVar(&off, "off", false, "Deselect the given media")
	return cmd
}

func newMediaExportCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "export <id> <destination>",
		Short: "Decrypt a media item to a file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "media")
			if err != nil {
				return err
			}
			dest, err := config.ExpandPath(args[1])
			if err != nil {
				return err
			}
			return ctx.withSession(cmd, func(runCtx context.Context, s *session) error {
				media, err := s.store.GetMedia(runCtx, id)
				if err != nil {
					return err
				}
				if info, err := os.Stat(dest); err == nil && info.IsDir() {
					dest = filepath.Join(dest, filepath.Base(media.OriginalFilePath))
				}
				handle, err := s.engine.Open(runCtx, id)
				if err != nil {
					return err
				}
				if err := fileutil.CopyFileVerified(runCtx, handle.Path, dest, 0o600, nil); err != nil {
					return fmt.Errorf("export media %d: %w", id, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Exported media %d to %s\n", id, dest)
				return nil
			})
		},
	}
}
