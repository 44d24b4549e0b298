package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"mediavault/internal/content"
	"mediavault/internal/daemon"
	"mediavault/internal/preflight"
	"mediavault/internal/vault"
)

type checkView struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

type statusView struct {
	DaemonRunning bool               `json:"daemon_running"`
	Daemon        *daemon.Status     `json:"daemon,omitempty"`
	DaemonError   string             `json:"daemon_error,omitempty"`
	CurrentSpace  string             `json:"current_space,omitempty"`
	Checks        []checkView        `json:"checks"`
	Counts        map[string]int     `json:"counts"`
	Cache         content.CacheStats `json:"cache"`
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon state, preflight checks, and media counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, func(runCtx context.Context, s *session) error {
				view := statusView{Counts: make(map[string]int)}

				running, err := daemon.IsRunning(s.cfg)
				if err != nil {
					return err
				}
				view.DaemonRunning = running
				if running && s.cfg.Metrics.Bind != "" {
					if live, err := daemon.FetchStatus(runCtx, s.cfg.Metrics.Bind); err == nil {
						view.Daemon = live
					} else {
						view.DaemonError = err.Error()
					}
				}

				if space, err := s.store.CurrentSpace(runCtx); err != nil {
					return err
				} else if space != nil {
					view.CurrentSpace = space.Name
				}

				results := preflight.RunAll(runCtx, s.cfg, s.store)
				for _, result := range results {
					view.Checks = append(view.Checks, checkView(result))
				}

				counts, err := s.store.Stats(runCtx)
				if err != nil {
					return err
				}
				for status, count := range counts {
					view.Counts[status.String()] += count
				}

				if stats, err := s.content.Cache().Stats(); err == nil {
					view.Cache = stats
				}

				if ctx.jsonOutput() {
					return writeJSON(cmd, view)
				}
				renderStatus(cmd, view, results, counts)
				return nil
			})
		},
	}
}

func renderStatus(cmd *cobra.Command, view statusView, results []preflight.Result, counts map[vault.Status]int) {
	p := newStatusPrinter(cmd.OutOrStdout())

	p.section("System")
	if view.DaemonRunning {
		p.line("Daemon", statusOK, "running")
	} else {
		p.line("Daemon", statusWarn, "not running")
	}
	switch {
	case view.Daemon != nil:
		p.line("Upload breaker", breakerKind(view.Daemon.Breaker), view.Daemon.Breaker)
		p.line("Pending checks", statusInfo, pendingSummary(view.Daemon.Pending))
	case view.DaemonError != "":
		p.line("Daemon status", statusWarn, view.DaemonError)
	case view.DaemonRunning:
		p.line("Daemon status", statusInfo, "set metrics.bind to see live upload state")
	}
	if view.CurrentSpace != "" {
		p.line("Current space", statusInfo, view.CurrentSpace)
	} else {
		p.line("Current space", statusWarn, "none selected")
	}
	p.line("Cache", statusInfo, fmt.Sprintf("%d file(s), %s of %s", view.Cache.Entries,
		humanize.IBytes(uint64(max(view.Cache.TotalBytes, 0))), humanize.IBytes(uint64(max(view.Cache.MaxBytes, 0)))))

	p.section("Checks")
	for _, result := range results {
		p.check(result)
	}

	if view.Daemon != nil {
		p.section("Uploads")
		active := 0
		for _, media := range view.Daemon.Media {
			if media.Uploaded {
				continue
			}
			active++
			p.line(fmt.Sprintf("Media %d", media.MediaID), statusInfo,
				fmt.Sprintf("%d%% (collection %d)", media.Progress, media.CollectionID))
		}
		if active == 0 {
			fmt.Fprintln(p.out, "No uploads in progress")
		}
	}

	p.section("Media")
	rows := make([][]string, 0, len(counts))
	for _, status := range vault.AllStatuses() {
		if count := counts[status]; count > 0 {
			rows = append(rows, []string{status.String(), strconv.Itoa(count)})
		}
	}
	if len(rows) == 0 {
		fmt.Fprintln(p.out, "No media in the vault")
		return
	}
	printTable(cmd, []string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight})
}

func breakerKind(state string) statusKind {
	switch state {
	case "closed":
		return statusOK
	case "open":
		return statusError
	default:
		return statusWarn
	}
}

func pendingSummary(ids []int64) string {
	if len(ids) == 0 {
		return "none"
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return fmt.Sprintf("%d collection(s): %s", len(ids), strings.Join(parts, ", "))
}
