package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"mediavault/internal/vault"
)

func parseID(arg, what string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s id %q", what, arg)
	}
	return id, nil
}

func parseIDs(args []string, what string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := parseID(arg, what)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// resolveSpace returns the Space named by id, or the current Space when id is
// zero.
func resolveSpace(ctx context.Context, store *vault.Store, id int64) (*vault.Space, error) {
	if id > 0 {
		return store.GetSpace(ctx, id)
	}
	space, err := store.CurrentSpace(ctx)
	if err != nil {
		return nil, err
	}
	if space == nil {
		return nil, errors.New("no current space; pass --space or run `mediavault space use <id>`")
	}
	return space, nil
}

func formatTime(value time.Time) string {
	if value.IsZero() {
		return "-"
	}
	return value.Local().Format("2006-01-02 15:04")
}

func formatOptionalTime(value *time.Time) string {
	if value == nil {
		return "-"
	}
	return formatTime(*value)
}

func orDash(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}
