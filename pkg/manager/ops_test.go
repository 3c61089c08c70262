package manager

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/raaddl/raad/internal/session"
	"github.com/raaddl/raad/pkg/transfer"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func paused(r *AddRequest) { r.StartPaused = true }

func TestAddDownload_ResolvesPath(t *testing.T) {
	h := newHarness(t, nil)

	first := h.info(t, h.add(t, "https://example.com/media/movie.mp4", paused))
	assert.Equal(t, "/dl/movie.mp4", first.Path)
	assert.Equal(t, "Video", first.Category)
	assert.Equal(t, DefaultQueue, first.Queue)
	assert.Equal(t, transfer.StatusPaused, first.Status)
	assert.Equal(t, transfer.DefaultSegments, first.Options.Segments)

	second := h.info(t, h.add(t, "https://example.com/media/movie.mp4", paused))
	assert.Equal(t, "/dl/movie (1).mp4", second.Path, "reserved by the first task")

	require.NoError(t, h.m.SetCategoryFolder("Video", "/videos"))
	clip := h.info(t, h.add(t, "https://example.com/clip.mkv", paused))
	assert.Equal(t, "/videos/clip.mkv", clip.Path)
	ok, _ := afero.DirExists(h.fs, "/videos")
	assert.True(t, ok)

	require.NoError(t, h.fs.MkdirAll("/custom", 0o755))
	inDir := h.info(t, h.add(t, "https://example.com/a/report.pdf", func(r *AddRequest) {
		r.Path = "/custom"
		r.StartPaused = true
	}))
	assert.Equal(t, "/custom/report.pdf", inDir.Path)
	assert.Equal(t, "Documents", inDir.Category)

	noName := h.info(t, h.add(t, "https://example.com/", paused))
	assert.Equal(t, "/dl/download.bin", noName.Path)

	guid := h.info(t, h.add(t, "https://cdn.example.com/0f8fad5b-d9cb-469f-a165-70867728950e?filename=setup.exe", func(r *AddRequest) {
		r.Path = "/dl/0f8fad5b-d9cb-469f-a165-70867728950e.bin"
		r.StartPaused = true
	}))
	assert.Equal(t, "/dl/setup.exe", guid.Path)

	require.NoError(t, afero.WriteFile(h.fs, "/dl/taken.zip", []byte("x"), 0o644))
	taken := h.info(t, h.add(t, "https://example.com/taken.zip", paused))
	assert.Equal(t, "/dl/taken (1).zip", taken.Path)
}

func TestAddDownload_Validation(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.m.AddDownload(AddRequest{URL: "ftp://example.com/a", Options: transfer.DefaultOptions()})
	assert.ErrorIs(t, err, transfer.ErrInvalidURL)

	opts := transfer.DefaultOptions()
	opts.Segments = -1
	_, err = h.m.AddDownload(AddRequest{URL: "https://example.com/a", Options: opts})
	assert.ErrorIs(t, err, transfer.ErrInvalidSegments)
	assert.Empty(t, h.m.Tasks())
}

func TestAddDownload_DomainRules(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.m.SetDomainRule("https://Example.com/path", "Media"))
	assert.Equal(t, map[string]string{"example.com": "Media"}, h.m.DomainRules())

	routed := h.info(t, h.add(t, "https://example.com/a.zip", paused))
	assert.Equal(t, "Media", routed.Queue)

	explicit := h.info(t, h.add(t, "https://example.com/b.zip", func(r *AddRequest) {
		r.Queue = "Other"
		r.StartPaused = true
	}))
	assert.Equal(t, "Other", explicit.Queue)

	h.m.RemoveDomainRule("EXAMPLE.com")
	plain := h.info(t, h.add(t, "https://example.com/c.zip", paused))
	assert.Equal(t, DefaultQueue, plain.Queue)

	var names []string
	for _, q := range h.m.Queues() {
		names = append(names, q.Name)
	}
	assert.Equal(t, []string{DefaultQueue, "Media", "Other"}, names)
}

func TestQueueManagement(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.m.AddQueue("night"))
	assert.ErrorIs(t, h.m.AddQueue("night"), ErrQueueExists)
	assert.ErrorIs(t, h.m.AddQueue("  "), ErrEmptyName)
	assert.ErrorIs(t, h.m.RemoveQueue(DefaultQueue), ErrDefaultQueue)
	assert.ErrorIs(t, h.m.RemoveQueue("missing"), ErrQueueNotFound)
	assert.ErrorIs(t, h.m.UpdateQueue(Queue{Name: "night", StartMinutes: 1440}), ErrInvalidWindow)
	assert.ErrorIs(t, h.m.UpdateQueue(Queue{Name: "missing"}), ErrQueueNotFound)

	require.NoError(t, h.m.SetDomainRule("example.com", "night"))
	id := h.add(t, "https://example.com/a.iso", paused)
	require.Equal(t, "night", h.info(t, id).Queue)

	require.NoError(t, h.m.RenameQueue("night", "late"))
	assert.Equal(t, "late", h.info(t, id).Queue)
	assert.Equal(t, "late", h.m.DomainRules()["example.com"])
	assert.ErrorIs(t, h.m.RenameQueue("late", DefaultQueue), ErrQueueExists)

	require.NoError(t, h.m.RemoveQueue("late"))
	assert.Equal(t, DefaultQueue, h.info(t, id).Queue)
	assert.Equal(t, DefaultQueue, h.m.DomainRules()["example.com"])
	assert.Len(t, h.m.Queues(), 1)
}

func TestTaskMetadata(t *testing.T) {
	h := newHarness(t, nil)
	id := h.add(t, "https://example.com/a.iso", paused)

	require.NoError(t, h.m.SetTaskQueue(id, "fresh"))
	assert.Equal(t, "fresh", h.info(t, id).Queue)
	require.NoError(t, h.m.SetTaskQueue(id, ""))
	assert.Equal(t, DefaultQueue, h.info(t, id).Queue)

	require.NoError(t, h.m.SetTaskCategory(id, "Programs"))
	assert.Equal(t, "Programs", h.info(t, id).Category)
	require.NoError(t, h.m.SetTaskCategory(id, ""))
	assert.Equal(t, "Other", h.info(t, id).Category)

	assert.ErrorIs(t, h.m.SetTaskQueue("missing", "x"), ErrNotFound)
}

func TestMoveAndRename(t *testing.T) {
	h := newHarness(t, nil)
	id := h.add(t, "https://example.com/a.bin", paused)
	require.NoError(t, afero.WriteFile(h.fs, "/dl/a.bin.part0", []byte("abc"), 0o644))
	require.NoError(t, afero.WriteFile(h.fs, "/dl/a.bin.part1", []byte("def"), 0o644))

	got, err := h.m.MoveTaskFile(id, "/other/b.bin")
	require.NoError(t, err)
	assert.Equal(t, "/other/b.bin", got)
	for _, p := range []string{"/other/b.bin.part0", "/other/b.bin.part1"} {
		ok, _ := afero.Exists(h.fs, p)
		assert.True(t, ok, p)
	}
	ok, _ := afero.Exists(h.fs, "/dl/a.bin.part0")
	assert.False(t, ok)

	require.NoError(t, afero.WriteFile(h.fs, "/other/c.bin", []byte("x"), 0o644))
	got, err = h.m.RenameTask(id, "c.bin")
	require.NoError(t, err)
	assert.Equal(t, "/other/c (1).bin", got)
	assert.Equal(t, got, h.info(t, id).Path)

	_, err = h.m.RenameTask(id, " ")
	assert.ErrorIs(t, err, ErrEmptyName)

	active := h.add(t, "https://example.com/busy.bin", nil)
	_, err = h.m.MoveTaskFile(active, "/other/busy.bin")
	assert.ErrorIs(t, err, ErrActive)
}

func TestRenameArtifactsRefusesCollision(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/a", []byte("1"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/b", []byte("2"), 0o644))
	assert.ErrorIs(t, renameArtifacts(fs, "/a", "/b", 1), ErrTargetExists)
}

func TestRemoveAndClear(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, afero.WriteFile(h.fs, "/dl/done.bin", []byte("done"), 0o644))
	require.NoError(t, afero.WriteFile(h.fs, "/dl/failed.bin.part0", []byte("x"), 0o644))
	require.NoError(t, afero.WriteFile(h.fs, "/dl/paused.bin.part0", []byte("x"), 0o644))
	restoreItems(h,
		session.Item{ID: "done", URL: "https://example.com/done.bin", FilePath: "/dl/done.bin", State: "Done", RetryMax: -1, RetryDelaySec: -1},
		session.Item{ID: "failed", URL: "https://example.com/failed.bin", FilePath: "/dl/failed.bin", State: "Error", RetryMax: -1, RetryDelaySec: -1},
		session.Item{ID: "canceled", URL: "https://example.com/c.bin", FilePath: "/dl/c.bin", State: "Canceled", RetryMax: -1, RetryDelaySec: -1},
		session.Item{ID: "paused", URL: "https://example.com/paused.bin", FilePath: "/dl/paused.bin", State: "Paused", PauseReason: "User", RetryMax: -1, RetryDelaySec: -1},
	)
	require.Len(t, h.m.Tasks(), 4)

	require.NoError(t, h.m.Remove("paused", false))
	ok, _ := afero.Exists(h.fs, "/dl/paused.bin.part0")
	assert.False(t, ok, "temp files go with the task")
	_, err := h.m.Task("paused")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, h.m.Remove("paused", false), ErrNotFound)

	assert.Equal(t, 3, h.m.ClearCompleted())
	assert.Empty(t, h.m.Tasks())
	ok, _ = afero.Exists(h.fs, "/dl/done.bin")
	assert.True(t, ok, "clearing keeps finished files")
	ok, _ = afero.Exists(h.fs, "/dl/failed.bin.part0")
	assert.False(t, ok)
}

func TestRemoveDeletesFinishedFile(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, afero.WriteFile(h.fs, "/dl/done.bin", []byte("done"), 0o644))
	restoreItems(h, session.Item{ID: "done", URL: "https://example.com/done.bin", FilePath: "/dl/done.bin", State: "Done", RetryMax: -1, RetryDelaySec: -1})

	require.NoError(t, h.m.Remove("done", true))
	ok, _ := afero.Exists(h.fs, "/dl/done.bin")
	assert.False(t, ok)
}

func TestImportList_Text(t *testing.T) {
	h := newHarness(t, nil)
	list := strings.Join([]string{
		"# comment",
		"// another",
		"https://example.com/a.zip",
		"",
		"https://example.com/b.iso | /data/b.iso | Nightly | Archives",
		"https://example.com/c.mp3 /music/c.mp3",
		"not-a-url",
	}, "\n")

	n, err := h.m.ImportList(strings.NewReader(list))
	assert.Equal(t, 3, n)
	assert.ErrorIs(t, err, transfer.ErrInvalidURL)

	tasks := h.m.Tasks()
	require.Len(t, tasks, 3)
	assert.Equal(t, "/dl/a.zip", tasks[0].Path)
	assert.Equal(t, "/data/b.iso", tasks[1].Path)
	assert.Equal(t, "Nightly", tasks[1].Queue)
	assert.Equal(t, "Archives", tasks[1].Category)
	assert.Equal(t, "/music/c.mp3", tasks[2].Path)
	assert.Equal(t, "Audio", tasks[2].Category)
}

func TestImportList_JSON(t *testing.T) {
	h := newHarness(t, nil)
	list := `{"items": [
        "https://example.com/x.bin",
        {"url": "https://example.com/y.bin", "filePath": "/y/y.bin", "queueName": "Q", "startPaused": true},
        42,
        {"filePath": "/no/url"}
    ]}`
	n, err := h.m.ImportList(strings.NewReader(list))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	tasks := h.m.Tasks()
	require.Len(t, tasks, 2)
	assert.Equal(t, "https://example.com/x.bin", tasks[0].URL)
	assert.Equal(t, "/y/y.bin", tasks[1].Path)
	assert.Equal(t, "Q", tasks[1].Queue)
	assert.Equal(t, transfer.StatusPaused, tasks[1].Status)

	n, err = h.m.ImportList(strings.NewReader(`["https://example.com/z.bin"]`))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestExportList(t *testing.T) {
	h := newHarness(t, nil)
	h.add(t, "https://example.com/a.zip", paused)
	h.add(t, "https://example.com/b.iso", func(r *AddRequest) {
		r.Queue = "Nightly"
		r.StartPaused = true
	})

	var txt bytes.Buffer
	require.NoError(t, h.m.ExportList(&txt, FormatFor("list.TXT")))
	assert.Equal(t, "https://example.com/a.zip\nhttps://example.com/b.iso\n", txt.String())

	var js bytes.Buffer
	require.NoError(t, h.m.ExportList(&js, FormatFor("list.json")))
	var doc struct {
		Version int          `json:"version"`
		Items   []exportItem `json:"items"`
	}
	require.NoError(t, json.Unmarshal(js.Bytes(), &doc))
	assert.Equal(t, 1, doc.Version)
	require.Len(t, doc.Items, 2)
	assert.Equal(t, exportItem{
		URL: "https://example.com/b.iso", FilePath: "/dl/b.iso", QueueName: "Nightly",
		Category: "Other", State: "Paused",
	}, doc.Items[1])

	assert.ErrorIs(t, h.m.ExportList(&js, "csv"), ErrUnknownFormat)
}
