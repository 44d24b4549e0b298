package notify

import (
	"fmt"

	json "github.com/goccy/go-json"
)

// Kind distinguishes event payloads.
type Kind string

const (
	KindChange Kind = "change"
	KindDelete Kind = "delete"
)

// Event is the payload published on the bus.
type Event struct {
	Kind         Kind  `json:"kind"`
	CollectionID int64 `json:"collection_id,omitempty"`
	MediaID      int64 `json:"media_id"`
	Progress     int   `json:"progress"`
	IsUploaded   bool  `json:"is_uploaded"`
}

// Change builds a change event for a Media.
func Change(collectionID, mediaID int64, progress int, uploaded bool) Event {
	return Event{
		Kind:         KindChange,
		CollectionID: collectionID,
		MediaID:      mediaID,
		Progress:     progress,
		IsUploaded:   uploaded,
	}
}

// Delete builds a delete event for a Media.
func Delete(mediaID int64) Event {
	return Event{Kind: KindDelete, MediaID: mediaID}
}

func (e Event) String() string {
	if e.Kind == KindDelete {
		return fmt.Sprintf("delete media=%d", e.MediaID)
	}
	return fmt.Sprintf("change collection=%d media=%d progress=%d uploaded=%t",
		e.CollectionID, e.MediaID, e.Progress, e.IsUploaded)
}

func encodeEvent(e Event) ([]byte, error) {
	return json.Marshal(e)
}

func decodeEvent(payload []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(payload, &e); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	switch e.Kind {
	case KindChange, KindDelete:
	default:
		return Event{}, fmt.Errorf("decode event: unknown kind %q", e.Kind)
	}
	return e, nil
}
