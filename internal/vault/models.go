package vault

import (
	"fmt"
	"strings"
	"time"
)

// Status is the persisted lifecycle state of a Media item. Values are stored
// as integers and must never be renumbered.
type Status int

const (
	StatusNew       Status = 0
	StatusLocal     Status = 1
	StatusQueued    Status = 2
	StatusUploading Status = 4
	StatusUploaded  Status = 5
	StatusError     Status = 9

	// Legacy values still found in old databases. They read back as
	// StatusUploaded and cannot be written.
	StatusPublished    Status = 3
	StatusDeleteRemote Status = 7
)

var statusNames = map[Status]string{
	StatusNew:          "new",
	StatusLocal:        "local",
	StatusQueued:       "queued",
	StatusUploading:    "uploading",
	StatusUploaded:     "uploaded",
	StatusError:        "error",
	StatusPublished:    "published",
	StatusDeleteRemote: "delete_remote",
}

// String returns the lower-case status name.
func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// IsLegacy reports whether the status is a deprecated on-disk value.
func (s Status) IsLegacy() bool {
	return s == StatusPublished || s == StatusDeleteRemote
}

// Valid reports whether s is a live, writable status.
func (s Status) Valid() bool {
	switch s {
	case StatusNew, StatusLocal, StatusQueued, StatusUploading, StatusUploaded, StatusError:
		return true
	}
	return false
}

// ParseStatus converts a status name into a live Status.
func ParseStatus(value string) (Status, bool) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for status, name := range statusNames {
		if name == normalized && status.Valid() {
			return status, true
		}
	}
	return 0, false
}

// AllStatuses lists the live statuses in lifecycle order.
func AllStatuses() []Status {
	return []Status{StatusNew, StatusLocal, StatusQueued, StatusUploading, StatusUploaded, StatusError}
}

// UploadQueueStatuses are the statuses shown in the upload queue.
var UploadQueueStatuses = []Status{StatusQueued, StatusUploading, StatusError}

func decodeStatus(raw int64) Status {
	status := Status(raw)
	if status.IsLegacy() {
		return StatusUploaded
	}
	if !status.Valid() {
		return StatusError
	}
	return status
}

func checkWritable(status Status) error {
	if status.IsLegacy() {
		return fmt.Errorf("%w: %s", ErrDeprecatedStatus, status)
	}
	if !status.Valid() {
		return fmt.Errorf("unknown status %d", int(status))
	}
	return nil
}

// storedValues expands a status into every on-disk integer that decodes to it.
func storedValues(status Status) []Status {
	if status == StatusUploaded {
		return []Status{StatusUploaded, StatusPublished, StatusDeleteRemote}
	}
	return []Status{status}
}

var transitions = map[Status][]Status{
	StatusNew:       {StatusLocal},
	StatusLocal:     {StatusQueued},
	StatusQueued:    {StatusUploading},
	StatusUploading: {StatusUploaded, StatusError, StatusQueued},
	StatusError:     {StatusQueued},
}

// CanTransition reports whether the state machine has an edge from → to.
// Uploading → Queued exists only for crash recovery.
func CanTransition(from, to Status) bool {
	for _, candidate := range transitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// SpaceKind identifies the remote protocol family behind a Space.
type SpaceKind string

const (
	SpaceKindPrivateServer  SpaceKind = "private-server"
	SpaceKindArchiveService SpaceKind = "archive-service"
	SpaceKindCloudDrive     SpaceKind = "cloud-drive"
	SpaceKindPeerToPeer     SpaceKind = "peer-to-peer"
)

// SpaceKinds lists the supported kinds.
func SpaceKinds() []SpaceKind {
	return []SpaceKind{SpaceKindPrivateServer, SpaceKindArchiveService, SpaceKindCloudDrive, SpaceKindPeerToPeer}
}

// ParseSpaceKind validates a kind name.
func ParseSpaceKind(value string) (SpaceKind, error) {
	normalized := SpaceKind(strings.ToLower(strings.TrimSpace(value)))
	for _, kind := range SpaceKinds() {
		if kind == normalized {
			return kind, nil
		}
	}
	return "", fmt.Errorf("unknown space kind %q", value)
}

// Space is a configured remote destination account.
type Space struct {
	ID        int64
	Kind      SpaceKind
	Name      string
	Username  string
	Password  string
	Host      string
	License   string
	CreatedAt time.Time
}

// Project is a named folder of content within a Space.
type Project struct {
	ID          int64
	SpaceID     int64
	Description string
	License     string
	Archived    bool
	CreatedAt   time.Time
}

// Collection groups Media that were imported and queued together.
type Collection struct {
	ID         int64
	ProjectID  int64
	CreatedAt  time.Time
	UploadDate *time.Time
	ServerURL  string

	// Populated by ListCollections.
	MediaCount    int
	UploadedCount int
}

// IsUploaded reports whether the collection has been closed out.
func (c *Collection) IsUploaded() bool {
	return c != nil && c.UploadDate != nil
}

// Media is one archival item.
type Media struct {
	ID               int64
	ProjectID        int64
	CollectionID     int64
	OriginalFilePath string
	EncryptedPath    string
	MimeType         string
	CreateDate       time.Time
	UpdateDate       time.Time
	ContentLength    int64
	Title            string
	Description      string
	Author           string
	Location         string
	Tags             string
	License          string
	MediaHash        string
	Status           Status
	StatusMessage    string
	Priority         int
	Selected         bool
	Flagged          bool
}

// MediaOrder selects the ordering for ListMedia.
type MediaOrder int

const (
	// OrderByStatus sorts by (status, id).
	OrderByStatus MediaOrder = iota
	// OrderByPriority sorts by priority descending, then id.
	OrderByPriority
)

// MetadataPatch carries user-editable metadata. Nil fields are left alone.
type MetadataPatch struct {
	Title       *string
	Description *string
	Author      *string
	Location    *string
	Tags        *string
	License     *string
}

// Empty reports whether the patch changes nothing.
func (p MetadataPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Author == nil &&
		p.Location == nil && p.Tags == nil && p.License == nil
}

// SealedPayload describes the encrypted file written for a Media at import.
type SealedPayload struct {
	EncryptedPath string
	MimeType      string
	ContentLength int64
	MediaHash     string
}

// DatabaseHealth captures diagnostic information for the status command.
type DatabaseHealth struct {
	DBPath               string
	DatabaseExists       bool
	DatabaseReadable     bool
	SchemaVersion        int
	IntegrityOK          bool
	ForeignKeyViolations int
	Error                string
}
