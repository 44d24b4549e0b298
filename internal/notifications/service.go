package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"mediavault/internal/config"
)

const userAgent = "mediavault/0.1.0"

// Event enumerates the notifications the vault can send.
type Event string

const (
	EventCollectionUploaded Event = "collection_uploaded"
	EventImportCompleted    Event = "import_completed"
	EventUploadFailed       Event = "upload_failed"
	EventError              Event = "error"
	EventTest               Event = "test"
)

// Payload carries event fields by name.
type Payload map[string]any

// Service publishes events to a notification backend.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		uploads:  cfg.Notifications.Uploads,
		errors:   cfg.Notifications.Errors,
	}
}

// NewNoop returns a Service that drops every event.
func NewNoop() Service { return noopService{} }

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	uploads  bool
	errors   bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	msg, ok := n.format(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func (n *ntfyService) format(event Event, payload Payload) (message, bool) {
	switch event {
	case EventCollectionUploaded:
		if !n.uploads {
			return message{}, false
		}
		project := payload.text("project")
		count := payload.int("count")
		return message{
			title: "Vault - Collection Uploaded",
			body:  fmt.Sprintf("☁️ %s: %d item%s archived (collection #%d)", project, count, plural(count), payload.int("collectionID")),
			tags:  []string{"mediavault", "upload", "completed"},
		}, true
	case EventImportCompleted:
		if !n.uploads {
			return message{}, false
		}
		imported := payload.int("imported")
		failed := payload.int("failed")
		body := fmt.Sprintf("🔒 Sealed %d file%s into %s", imported, plural(imported), payload.text("project"))
		if failed > 0 {
			body = fmt.Sprintf("%s (%d failed)", body, failed)
		}
		return message{
			title: "Vault - Import Complete",
			body:  body,
			tags:  []string{"mediavault", "import"},
		}, true
	case EventUploadFailed:
		if !n.errors {
			return message{}, false
		}
		return message{
			title:    "Vault - Upload Failed",
			body:     fmt.Sprintf("⚠️ %s: %s", payload.text("media"), payload.text("reason")),
			tags:     []string{"mediavault", "upload", "failed"},
			priority: "high",
		}, true
	case EventError:
		if !n.errors {
			return message{}, false
		}
		var builder strings.Builder
		builder.WriteString("❌ Error")
		if label := payload.text("context"); label != "" {
			builder.WriteString(" with ")
			builder.WriteString(label)
		}
		if detail := payload.text("error"); detail != "" {
			builder.WriteString(": ")
			builder.WriteString(detail)
		}
		return message{
			title:    "Vault - Error",
			body:     builder.String(),
			tags:     []string{"mediavault", "error", "alert"},
			priority: "high",
		}, true
	case EventTest:
		return message{
			title:    "Vault - Test",
			body:     "🧪 Notification system test",
			tags:     []string{"mediavault", "test"},
			priority: "low",
		}, true
	}
	return message{}, false
}

func (n *ntfyService) send(ctx context.Context, msg message) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(msg.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if msg.title != "" {
		req.Header.Set("Title", msg.title)
	}
	if len(msg.tags) > 0 {
		req.Header.Set("Tags", strings.Join(msg.tags, ","))
	}
	if msg.priority != "" && msg.priority != "default" {
		req.Header.Set("Priority", msg.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (p Payload) text(key string) string {
	if p == nil {
		return ""
	}
	switch v := p[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case error:
		return strings.TrimSpace(v.Error())
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func (p Payload) int(key string) int {
	if p == nil {
		return 0
	}
	switch v := p[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	}
	return 0
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
