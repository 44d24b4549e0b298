package vault

import (
	"database/sql"
	"errors"
	"time"
)

type rowScanner interface {
	Scan(dest ...any) error
}

const spaceColumns = `id, kind, name, username, password, host, license, created_at`

const projectColumns = `id, space_id, description, license, archived, created_at`

const collectionColumns = `id, project_id, created_at, upload_date, server_url`

const mediaColumns = `id, project_id, collection_id, original_file_path, encrypted_path, mime_type,
    create_date, update_date, content_length, title, description, author, location, tags, license,
    media_hash, status, status_message, priority, selected, flagged`

func scanSpace(scanner rowScanner) (*Space, error) {
	var (
		space                             Space
		kind                              string
		username, password, host, license sql.NullString
		createdRaw                        string
	)
	if err := scanner.Scan(&space.ID, &kind, &space.Name, &username, &password, &host, &license, &createdRaw); err != nil {
		return nil, err
	}
	space.Kind = SpaceKind(kind)
	space.Username = username.String
	space.Password = password.String
	space.Host = host.String
	space.License = license.String
	if created, err := parseTimeString(createdRaw); err == nil {
		space.CreatedAt = created
	}
	return &space, nil
}

func scanProject(scanner rowScanner) (*Project, error) {
	var (
		project    Project
		license    sql.NullString
		archived   int64
		createdRaw string
	)
	if err := scanner.Scan(&project.ID, &project.SpaceID, &project.Description, &license, &archived, &createdRaw); err != nil {
		return nil, err
	}
	project.License = license.String
	project.Archived = archived != 0
	if created, err := parseTimeString(createdRaw); err == nil {
		project.CreatedAt = created
	}
	return &project, nil
}

func scanCollection(scanner rowScanner, extra ...any) (*Collection, error) {
	var (
		collection Collection
		createdRaw string
		uploadRaw  sql.NullString
		serverURL  sql.NullString
	)
	dest := append([]any{&collection.ID, &collection.ProjectID, &createdRaw, &uploadRaw, &serverURL}, extra...)
	if err := scanner.Scan(dest...); err != nil {
		return nil, err
	}
	collection.ServerURL = serverURL.String
	if created, err := parseTimeString(createdRaw); err == nil {
		collection.CreatedAt = created
	}
	if uploadRaw.Valid {
		if uploaded, err := parseTimeString(uploadRaw.String); err == nil {
			collection.UploadDate = &uploaded
		}
	}
	return &collection, nil
}

func scanMedia(scanner rowScanner) (*Media, error) {
	var (
		media                                               Media
		encryptedPath, mimeType                             sql.NullString
		createRaw, updateRaw                                string
		title, description, author, location, tags, license sql.NullString
		hash, statusMessage                                 sql.NullString
		status                                              int64
		selected, flagged                                   int64
	)
	if err := scanner.Scan(
		&media.ID,
		&media.ProjectID,
		&media.CollectionID,
		&media.OriginalFilePath,
		&encryptedPath,
		&mimeType,
		&createRaw,
		&updateRaw,
		&media.ContentLength,
		&title,
		&description,
		&author,
		&location,
		&tags,
		&license,
		&hash,
		&status,
		&statusMessage,
		&media.Priority,
		&selected,
		&flagged,
	); err != nil {
		return nil, err
	}
	media.EncryptedPath = encryptedPath.String
	media.MimeType = mimeType.String
	media.Title = title.String
	media.Description = description.String
	media.Author = author.String
	media.Location = location.String
	media.Tags = tags.String
	media.License = license.String
	media.MediaHash = hash.String
	media.Status = decodeStatus(status)
	media.StatusMessage = statusMessage.String
	media.Selected = selected != 0
	media.Flagged = flagged != 0
	if created, err := parseTimeString(createRaw); err == nil {
		media.CreateDate = created
	}
	if updated, err := parseTimeString(updateRaw); err == nil {
		media.UpdateDate = updated
	}
	return &media, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func formatTime(value time.Time) string {
	return value.UTC().Format(time.RFC3339Nano)
}

func nowString() string {
	return formatTime(time.Now())
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}

// statusArgs expands statuses into query args including legacy aliases.
func statusArgs(statuses []Status) []any {
	args := make([]any, 0, len(statuses))
	for _, status := range statuses {
		for _, stored := range storedValues(status) {
			args = append(args, int(stored))
		}
	}
	return args
}

func idArgs(ids []int64) []any {
	args := make([]any, 0, len(ids))
	for _, id := range ids {
		args = append(args, id)
	}
	return args
}
