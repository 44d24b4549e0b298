package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/gofrs/flock"

	"mediavault/internal/daemon"
)

type cliTestEnv struct {
	baseDir    string
	configPath string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	t.Setenv("HOME", filepath.Join(base, "home"))
	t.Setenv("MEDIAVAULT_NTFY_TOPIC", "")

	configPath := filepath.Join(base, "config.toml")
	body := strings.Join([]string{
		"[paths]",
		"data_dir = " + strconv.Quote(filepath.Join(base, "data")),
		"content_dir = " + strconv.Quote(filepath.Join(base, "data", "content")),
		"cache_dir = " + strconv.Quote(filepath.Join(base, "cache")),
		"log_dir = " + strconv.Quote(filepath.Join(base, "logs")),
		"",
		"[logging]",
		`level = "error"`,
		"",
	}, "\n")
	if err := os.WriteFile(configPath, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return &cliTestEnv{baseDir: base, configPath: configPath}
}

func runCLI(t *testing.T, env *cliTestEnv, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--config", env.configPath}, args...))
	err := cmd.Execute()
	return stdout.String(), err
}

func mustRunCLI(t *testing.T, env *cliTestEnv, args ...string) string {
	t.Helper()
	out, err := runCLI(t, env, args...)
	if err != nil {
		t.Fatalf("%s: %v\noutput: %s", strings.Join(args, " "), err, out)
	}
	return out
}

func requireContains(t *testing.T, haystack, needle string) {
	t.Helper()
	if !strings.Contains(haystack, needle) {
		t.Fatalf("expected %q in output:\n%s", needle, haystack)
	}
}

func writeSource(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func setupProject(t *testing.T, env *cliTestEnv) {
	t.Helper()
	requireContains(t, mustRunCLI(t, env, "space", "add", "Home NAS", "--host", "nas.local"), "Added space 1 (Home NAS, private-server)")
	requireContains(t, mustRunCLI(t, env, "project", "add", "Family"), "Added project 1 (Family) to space Home NAS")
}

func TestConfigInitWritesSample(t *testing.T) {
	env := setupCLITestEnv(t)
	target := filepath.Join(t.TempDir(), "config.toml")

	out := mustRunCLI(t, env, "config", "init", "--path", target)
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	if _, err := runCLI(t, env, "config", "init", "--path", target); err == nil {
		t.Fatal("expected init to refuse overwriting without --overwrite")
	}
}

func TestConfigValidateReportsPath(t *testing.T) {
	env := setupCLITestEnv(t)
	requireContains(t, mustRunCLI(t, env, "config", "validate"), "Configuration valid: "+env.configPath)

	if err := os.WriteFile(env.configPath, []byte("[workflow]\nupload_workers = 0\n"), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}
	if _, err := runCLI(t, env, "config", "validate"); err == nil {
		t.Fatal("expected validation error for zero upload workers")
	}
}

func TestSpaceAndProjectCommands(t *testing.T) {
	env := setupCLITestEnv(t)
	setupProject(t, env)

	var spaces []spaceView
	if err := json.Unmarshal([]byte(mustRunCLI(t, env, "--json", "space", "list")), &spaces); err != nil {
		t.Fatalf("decode spaces: %v", err)
	}
	if len(spaces) != 1 || spaces[0].Name != "Home NAS" || !spaces[0].Current {
		t.Fatalf("unexpected spaces: %+v", spaces)
	}

	var projects []projectView
	if err := json.Unmarshal([]byte(mustRunCLI(t, env, "--json", "project", "list")), &projects); err != nil {
		t.Fatalf("decode projects: %v", err)
	}
	if len(projects) != 1 || projects[0].Description != "Family" || projects[0].Archived {
		t.Fatalf("unexpected projects: %+v", projects)
	}

	requireContains(t, mustRunCLI(t, env, "project", "archive", "1"), "project 1")
	if err := json.Unmarshal([]byte(mustRunCLI(t, env, "--json", "project", "list")), &projects); err != nil {
		t.Fatalf("decode projects: %v", err)
	}
	if len(projects) != 0 {
		t.Fatalf("archived projects should be hidden by default: %+v", projects)
	}

	requireContains(t, mustRunCLI(t, env, "space", "remove", "1"), "Removed space 1")
	spaces = nil
	if err := json.Unmarshal([]byte(mustRunCLI(t, env, "--json", "space", "list")), &spaces); err != nil {
		t.Fatalf("decode spaces: %v", err)
	}
	if len(spaces) != 0 {
		t.Fatalf("expected no spaces after removal, got %+v", spaces)
	}
}

func TestImportQueueAndRemove(t *testing.T) {
	env := setupCLITestEnv(t)
	setupProject(t, env)

	src := t.TempDir()
	first := writeSource(t, src, "beach.jpg", "sand and sea")
	second := writeSource(t, src, "dinner.jpg", "pasta")

	var imported importView
	if err := json.Unmarshal([]byte(mustRunCLI(t, env, "--json", "import", "1", first, second)), &imported); err != nil {
		t.Fatalf("decode import: %v", err)
	}
	if len(imported.Imported) != 2 || len(imported.Failed) != 0 {
		t.Fatalf("unexpected import result: %+v", imported)
	}
	for _, media := range imported.Imported {
		if media.Status != "local" {
			t.Fatalf("expected local status, got %q", media.Status)
		}
	}
	if _, err := os.Stat(first); err != nil {
		t.Fatalf("import must leave the source in place: %v", err)
	}

	firstID := strconv.FormatInt(imported.Imported[0].ID, 10)
	secondID := strconv.FormatInt(imported.Imported[1].ID, 10)

	requireContains(t, mustRunCLI(t, env, "media", "queue", firstID), "Queued 1 of 1 media")

	var queue []queueEntry
	if err := json.Unmarshal([]byte(mustRunCLI(t, env, "--json", "queue")), &queue); err != nil {
		t.Fatalf("decode queue: %v", err)
	}
	if len(queue) != 1 || queue[0].Position != 1 || queue[0].Media.Status != "queued" {
		t.Fatalf("unexpected queue: %+v", queue)
	}

	requireContains(t, mustRunCLI(t, env, "media", "remove", secondID), "Removed 1 media")

	var remaining []mediaView
	if err := json.Unmarshal([]byte(mustRunCLI(t, env, "--json", "media", "list", "--project", "1")), &remaining); err != nil {
		t.Fatalf("decode media: %v", err)
	}
	if len(remaining) != 1 || remaining[0].Title != imported.Imported[0].Title {
		t.Fatalf("unexpected remaining media: %+v", remaining)
	}
}

func TestImportReportsMissingFiles(t *testing.T) {
	env := setupCLITestEnv(t)
	setupProject(t, env)

	src := t.TempDir()
	present := writeSource(t, src, "kept.png", "pixels")
	missing := filepath.Join(src, "gone.png")

	out, err := runCLI(t, env, "import", "1", present, missing)
	if err == nil {
		t.Fatal("expected import error for missing file")
	}
	requireContains(t, out, "Imported 1 file(s)")
	requireContains(t, out, "Failed: "+missing)
}

func TestStatusJSON(t *testing.T) {
	env := setupCLITestEnv(t)
	setupProject(t, env)
	src := t.TempDir()
	mustRunCLI(t, env, "import", "1", writeSource(t, src, "a.jpg", "a"))

	var view statusView
	if err := json.Unmarshal([]byte(mustRunCLI(t, env, "--json", "status")), &view); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if view.DaemonRunning {
		t.Fatal("expected daemon to be reported as stopped")
	}
	if view.CurrentSpace != "Home NAS" {
		t.Fatalf("unexpected current space %q", view.CurrentSpace)
	}
	if view.Counts["local"] != 1 {
		t.Fatalf("expected one local media, got %+v", view.Counts)
	}
	if len(view.Checks) == 0 {
		t.Fatal("expected preflight checks")
	}
}

func TestStatusTextOutput(t *testing.T) {
	env := setupCLITestEnv(t)
	out := mustRunCLI(t, env, "status")
	requireContains(t, out, "== System ==")
	requireContains(t, out, "[WARN] not running")
	requireContains(t, out, "No media in the vault")
}

func TestStatusReadsRunningDaemon(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != daemon.StatusPath {
			http.NotFound(w, r)
			return
		}
		body, err := json.Marshal(daemon.Status{
			Running: true,
			Breaker: "half-open",
			Pending: []int64{3},
			Tracked: 2,
			Media: []daemon.MediaProgress{
				{MediaID: 9, CollectionID: 3, Progress: 42},
				{MediaID: 10, CollectionID: 3, Progress: 100, Uploaded: true},
			},
		})
		if err != nil {
			t.Errorf("marshal status: %v", err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	}))
	defer server.Close()

	env := setupCLITestEnv(t)
	f, err := os.OpenFile(env.configPath, os.O_APPEND|os.O_WRONLY, 0)
	if err != nil {
		t.Fatalf("open config: %v", err)
	}
	if _, err := f.WriteString("[metrics]\nbind = " + strconv.Quote(server.Listener.Addr().String()) + "\n"); err != nil {
		t.Fatalf("append config: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close config: %v", err)
	}

	dataDir := filepath.Join(env.baseDir, "data")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		t.Fatalf("mkdir data: %v", err)
	}
	held := flock.New(filepath.Join(dataDir, "mediavault.lock"))
	if ok, err := held.TryLock(); err != nil || !ok {
		t.Fatalf("TryLock = %v, %v", ok, err)
	}
	defer held.Unlock()

	var view statusView
	if err := json.Unmarshal([]byte(mustRunCLI(t, env, "--json", "status")), &view); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if !view.DaemonRunning || view.Daemon == nil {
		t.Fatalf("expected live daemon status, got %+v", view)
	}
	if view.Daemon.Breaker != "half-open" || len(view.Daemon.Media) != 2 {
		t.Fatalf("unexpected daemon status %+v", view.Daemon)
	}

	out := mustRunCLI(t, env, "status")
	requireContains(t, out, "[OK] running")
	requireContains(t, out, "[WARN] half-open")
	requireContains(t, out, "1 collection(s): 3")
	requireContains(t, out, "== Uploads ==")
	requireContains(t, out, "42% (collection 3)")
	if strings.Contains(out, "Media 10:") {
		t.Fatalf("finished uploads should not be listed:\n%s", out)
	}
}

func TestTestNotifyWithoutTopic(t *testing.T) {
	env := setupCLITestEnv(t)
	requireContains(t, mustRunCLI(t, env, "test-notify"), "ntfy topic not configured")
}

func TestMediaListRequiresFilter(t *testing.T) {
	env := setupCLITestEnv(t)
	if _, err := runCLI(t, env, "media", "list"); err == nil {
		t.Fatal("expected media list without a filter to fail")
	}
}

func TestExportAndCacheCommands(t *testing.T) {
	env := setupCLITestEnv(t)
	setupProject(t, env)
	src := t.TempDir()
	mustRunCLI(t, env, "import", "1", writeSource(t, src, "note.txt", "meet at noon"))

	dest := t.TempDir()
	requireContains(t, mustRunCLI(t, env, "media", "export", "1", dest), "Exported media 1")
	data, err := os.ReadFile(filepath.Join(dest, "note.txt"))
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	if string(data) != "meet at noon" {
		t.Fatalf("unexpected export contents %q", data)
	}

	requireContains(t, mustRunCLI(t, env, "cache", "stats"), "1 file(s)")
	requireContains(t, mustRunCLI(t, env, "cache", "clear"), "Removed 1 cached file(s)")
	requireContains(t, mustRunCLI(t, env, "cache", "stats"), "0 file(s)")
}
