package manager

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/raaddl/raad/internal/pathutil"
	"github.com/raaddl/raad/pkg/transfer"
	"github.com/spf13/afero"
)

// AddRequest describes a new download. Options should start from
// transfer.DefaultOptions so that retry settings are inherited.
type AddRequest struct {
	URL string
	// Path is the target file or a directory. Empty selects the category
	// folder or the download directory.
	Path string
	// Queue defaults to a matching domain rule, then DefaultQueue.
	Queue string
	// Category empty or pathutil.CategoryAuto is detected from the name.
	Category    string
	Options     transfer.Options
	StartPaused bool
}

// AddDownload registers a task and admits it if a slot is free. It returns
// the task id.
func (m *Manager) AddDownload(req AddRequest) (string, error) {
	req.URL = strings.TrimSpace(req.URL)
	if err := transfer.ValidateURL(req.URL); err != nil {
		return "", err
	}
	if err := req.Options.Validate(); err != nil {
		return "", err
	}
	var id string
	m.loop.Do(func() {
		id = m.add(req)
	})
	return id, nil
}

func (m *Manager) add(req AddRequest) string {
	queue := strings.TrimSpace(req.Queue)
	if queue == "" || queue == DefaultQueue {
		queue = DefaultQueue
		if rule, ok := m.domainRules[pathutil.HostOf(req.URL)]; ok && rule != "" {
			queue = rule
		}
	}
	m.ensureQueue(queue)

	path, category := m.resolvePath(req.URL, req.Path, req.Category)
	if req.Options.Segments == 0 {
		req.Options.Segments = m.settings.Segments
	}
	e := m.newEntry("", req.URL, path, queue, category, req.Options)
	if req.StartPaused {
		e.task.MarkPaused(transfer.PauseUser, m.now())
	}
	m.log.Info("added %s -> %s (queue %s)", req.URL, path, queue)
	m.notify(Event{Kind: TaskAdded, TaskID: e.task.ID(), Status: e.task.Status()})
	m.scheduleSave()
	m.startQueued()
	return e.task.ID()
}

// resolvePath picks the target file and the category of a new task.
func (m *Manager) resolvePath(rawURL, requested, category string) (string, string) {
	path := pathutil.NormalizePath(requested)
	auto := category == "" || category == pathutil.CategoryAuto
	if isDir, _ := afero.IsDir(m.fs, path); path == "" || isDir {
		path = m.defaultPath(rawURL, category, path)
	}
	if auto {
		category = pathutil.DetectCategory(path)
	}
	if name := pathutil.FileNameFromURL(rawURL); name != "" && pathutil.LooksLikeGUID(filepath.Base(path)) {
		path = filepath.Join(filepath.Dir(path), pathutil.SanitizeFilename(name))
	}
	if folder := m.categoryFolder(category); folder != "" {
		path = filepath.Join(folder, filepath.Base(path))
	}
	path = pathutil.UniquePath(m.fs, path, m.reservedPaths())
	if err := m.fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		m.log.Warning("create %s: %v", filepath.Dir(path), err)
	}
	return path, category
}

func (m *Manager) defaultPath(rawURL, category, fallback string) string {
	name := pathutil.SanitizeFilename(pathutil.FileNameFromURL(rawURL))
	if name == "" {
		name = "download.bin"
	}
	if category == "" || category == pathutil.CategoryAuto {
		category = pathutil.DetectCategory(name)
	}
	folder := m.categoryFolder(category)
	if folder == "" {
		folder = fallback
	}
	if folder == "" {
		folder = m.settings.DownloadDir
	}
	return filepath.Join(folder, name)
}

func (m *Manager) categoryFolder(category string) string {
	category = strings.TrimSpace(category)
	if category == "" || category == pathutil.CategoryAuto {
		return ""
	}
	return m.categoryFolders[category]
}

func (m *Manager) reservedPaths() map[string]bool {
	reserved := make(map[string]bool, len(m.tasks))
	for _, e := range m.tasks {
		reserved[e.task.Path()] = true
	}
	return reserved
}

func (m *Manager) withTask(id string, fn func(e *entry) error) error {
	var err error
	m.loop.Do(func() {
		var e *entry
		if e, err = m.lookup(id); err == nil {
			err = fn(e)
		}
	})
	return err
}

// batch runs fn with admission held back until fn returns.
func (m *Manager) batch(fn func()) {
	if m.admitting {
		fn()
		m.readmit = true
		return
	}
	m.admitting = true
	fn()
	m.admitting = false
	m.startQueued()
}

// Pause stops a running or queued task until the user resumes it.
func (m *Manager) Pause(id string) error {
	return m.withTask(id, func(e *entry) error {
		e.task.Pause(transfer.PauseUser)
		m.startQueued()
		return nil
	})
}

// Resume continues a paused task now if every cap and policy allows it,
// otherwise it waits in the queue.
func (m *Manager) Resume(id string) error {
	return m.withTask(id, func(e *entry) error {
		if e.task.State() != transfer.Paused {
			return nil
		}
		if m.admissible(e) {
			e.lastRecv = e.task.Received()
			m.applySpeed(e)
			e.task.Resume()
		} else {
			e.task.Requeue()
		}
		m.startQueued()
		return nil
	})
}

// Cancel aborts a task and deletes its temp files. The entry is kept.
func (m *Manager) Cancel(id string) error {
	return m.withTask(id, func(e *entry) error {
		e.task.Cancel()
		return nil
	})
}

// Restart runs a task again from its partial files and resets its retry
// count.
func (m *Manager) Restart(id string) error {
	return m.withTask(id, func(e *entry) error {
		e.retries = 0
		t := e.task
		switch t.State() {
		case transfer.Downloading:
			e.lastRecv = t.Received()
			t.Restart()
		case transfer.Canceled:
		default:
			t.Requeue()
			m.startQueued()
		}
		return nil
	})
}

// Remove forgets a task. Temp files are always deleted; the finished file
// only with deleteFiles.
func (m *Manager) Remove(id string, deleteFiles bool) error {
	return m.withTask(id, func(e *entry) error {
		t := e.task
		done := t.Status() == transfer.StatusDone
		m.dropEntry(e)
		if s := t.State(); s != transfer.Finished && s != transfer.Canceled {
			t.Cancel()
		} else {
			t.Dispose()
		}
		if deleteFiles && done {
			if err := m.fs.Remove(t.Path()); err != nil && !os.IsNotExist(err) {
				m.log.Warning("remove %s: %v", t.Path(), err)
			}
		}
		m.notify(Event{Kind: TaskRemoved, TaskID: id})
		m.scheduleSave()
		m.startQueued()
		return nil
	})
}

// ClearCompleted removes every Done, Error and Canceled task and returns
// how many were removed.
func (m *Manager) ClearCompleted() int {
	var n int
	m.loop.Do(func() {
		for _, id := range append([]string(nil), m.order...) {
			e := m.tasks[id]
			switch e.task.Status() {
			case transfer.StatusDone, transfer.StatusError, transfer.StatusCanceled:
				m.dropEntry(e)
				e.task.Dispose()
				m.notify(Event{Kind: TaskRemoved, TaskID: id})
				n++
			}
		}
		if n > 0 {
			m.scheduleSave()
			m.updateTotals()
		}
	})
	return n
}

// PauseAll pauses every running and queued task.
func (m *Manager) PauseAll() {
	m.loop.Do(func() {
		m.batch(func() {
			m.each(func(e *entry) {
				if s := e.task.State(); s == transfer.Downloading || s == transfer.Idle {
					e.task.Pause(transfer.PauseUser)
				}
			})
		})
	})
}

// ResumeAll queues every paused task again.
func (m *Manager) ResumeAll() {
	m.loop.Do(func() {
		m.batch(func() {
			m.each(func(e *entry) {
				if e.task.State() == transfer.Paused {
					e.task.Requeue()
				}
			})
		})
	})
}

// CancelAll cancels every task that has not finished.
func (m *Manager) CancelAll() {
	m.loop.Do(func() {
		m.batch(func() {
			m.each(func(e *entry) { e.task.Cancel() })
		})
	})
}

// RetryFailed queues every failed task again with a fresh retry budget.
func (m *Manager) RetryFailed() int {
	var n int
	m.loop.Do(func() {
		m.batch(func() {
			m.each(func(e *entry) {
				if e.task.Status() == transfer.StatusError {
					e.retries = 0
					e.task.Requeue()
					n++
				}
			})
		})
	})
	return n
}

// each visits the tasks in insertion order, skipping any removed on the way.
func (m *Manager) each(fn func(e *entry)) {
	for _, id := range append([]string(nil), m.order...) {
		if e, ok := m.tasks[id]; ok {
			fn(e)
		}
	}
}

// SetTaskMaxSpeed changes a task's own speed cap, 0 for none.
func (m *Manager) SetTaskMaxSpeed(id string, bps int64) error {
	return m.withTask(id, func(e *entry) error {
		e.task.SetSpeedCap(bps)
		m.applySpeed(e)
		m.scheduleSave()
		return nil
	})
}

// SetTaskQueue moves a task to a queue, creating it when needed.
func (m *Manager) SetTaskQueue(id, queue string) error {
	return m.withTask(id, func(e *entry) error {
		queue = strings.TrimSpace(queue)
		if queue == "" {
			queue = DefaultQueue
		}
		m.ensureQueue(queue)
		e.queue = queue
		m.applySpeed(e)
		m.notify(Event{Kind: TaskChanged, TaskID: id, Status: e.task.Status()})
		m.scheduleSave()
		m.tick()
		return nil
	})
}

// SetTaskCategory changes a task's category; empty detects it again.
func (m *Manager) SetTaskCategory(id, category string) error {
	return m.withTask(id, func(e *entry) error {
		category = strings.TrimSpace(category)
		if category == "" || category == pathutil.CategoryAuto {
			category = pathutil.DetectCategory(e.task.Path())
		}
		if e.category == category {
			return nil
		}
		e.category = category
		m.notify(Event{Kind: TaskChanged, TaskID: id, Status: e.task.Status()})
		m.scheduleSave()
		return nil
	})
}

// SetTaskOptions replaces the checksum, retry, post action and network
// options of a task that is not downloading.
func (m *Manager) SetTaskOptions(id string, opts transfer.Options) error {
	if err := opts.Validate(); err != nil {
		return err
	}
	return m.withTask(id, func(e *entry) error {
		if e.task.Active() {
			return ErrActive
		}
		opts.MaxSpeed = e.task.Options().MaxSpeed
		e.task.SetOptions(opts)
		m.scheduleSave()
		return nil
	})
}

// MoveTaskFile moves a task's final and temp files to newPath, made unique
// first. It returns the path actually used.
func (m *Manager) MoveTaskFile(id, newPath string) (string, error) {
	var final string
	err := m.withTask(id, func(e *entry) (err error) {
		final, err = m.move(e, newPath)
		return err
	})
	return final, err
}

// RenameTask renames a task's file within its directory.
func (m *Manager) RenameTask(id, newName string) (string, error) {
	newName = pathutil.SanitizeFilename(strings.TrimSpace(newName))
	if newName == "" {
		return "", ErrEmptyName
	}
	var final string
	err := m.withTask(id, func(e *entry) (err error) {
		final, err = m.move(e, filepath.Join(filepath.Dir(e.task.Path()), newName))
		return err
	})
	return final, err
}

func (m *Manager) move(e *entry, newPath string) (string, error) {
	t := e.task
	if t.Active() {
		return "", ErrActive
	}
	oldPath := pathutil.NormalizePath(t.Path())
	target := pathutil.NormalizePath(newPath)
	if target == "" {
		return "", ErrEmptyName
	}
	if target == oldPath {
		return oldPath, nil
	}
	reserved := m.reservedPaths()
	delete(reserved, oldPath)
	target = pathutil.UniquePath(m.fs, target, reserved)
	if err := m.fs.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", err
	}
	if err := renameArtifacts(m.fs, oldPath, target, m.segmentBound(t)); err != nil {
		return "", err
	}
	t.SetPath(target)
	t.AppendLog("moved to " + target)
	m.log.Info("moved %s to %s", oldPath, target)
	m.notify(Event{Kind: TaskChanged, TaskID: t.ID(), Status: t.Status()})
	m.scheduleSave()
	return target, nil
}

func (m *Manager) segmentBound(t *transfer.Task) int {
	return max(t.SegmentCount(), t.Options().Segments, m.settings.Segments, 1)
}

// renameArtifacts renames the final file and the .part and .partN temp
// files of oldPath. It refuses when both final files exist.
func renameArtifacts(fs afero.Fs, oldPath, newPath string, segments int) error {
	if oldPath == newPath {
		return nil
	}
	oldExists, _ := afero.Exists(fs, oldPath)
	newExists, _ := afero.Exists(fs, newPath)
	if oldExists && newExists {
		return ErrTargetExists
	}
	pairs := [][2]string{{oldPath, newPath}, {oldPath + ".part", newPath + ".part"}}
	for i := 0; i < segments; i++ {
		suffix := ".part" + strconv.Itoa(i)
		pairs = append(pairs, [2]string{oldPath + suffix, newPath + suffix})
	}
	for _, p := range pairs {
		if ok, _ := afero.Exists(fs, p[0]); !ok {
			continue
		}
		if err := fs.Rename(p[0], p[1]); err != nil {
			return fmt.Errorf("rename %s: %w", filepath.Base(p[0]), err)
		}
	}
	return nil
}

// AddQueue creates an empty queue with the global concurrency.
func (m *Manager) AddQueue(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmptyName
	}
	var err error
	m.loop.Do(func() {
		if _, ok := m.queues[name]; ok {
			err = ErrQueueExists
			return
		}
		m.ensureQueue(name)
	})
	return err
}

// RemoveQueue deletes a queue. Its tasks and domain rules move to
// DefaultQueue.
func (m *Manager) RemoveQueue(name string) error {
	if name == DefaultQueue {
		return ErrDefaultQueue
	}
	var err error
	m.loop.Do(func() {
		if _, ok := m.queues[name]; !ok {
			err = ErrQueueNotFound
			return
		}
		m.ensureQueue(DefaultQueue)
		m.each(func(e *entry) {
			if e.queue == name {
				e.queue = DefaultQueue
				m.applySpeed(e)
			}
		})
		for host, q := range m.domainRules {
			if q == name {
				m.domainRules[host] = DefaultQueue
			}
		}
		delete(m.queues, name)
		m.queueOrder = removeString(m.queueOrder, name)
		m.notify(Event{Kind: QueuesChanged})
		m.scheduleSave()
		m.tick()
	})
	return err
}

// RenameQueue renames a queue and updates its tasks and domain rules.
func (m *Manager) RenameQueue(oldName, newName string) error {
	newName = strings.TrimSpace(newName)
	if newName == "" {
		return ErrEmptyName
	}
	if oldName == DefaultQueue {
		return ErrDefaultQueue
	}
	var err error
	m.loop.Do(func() {
		q, ok := m.queues[oldName]
		if !ok {
			err = ErrQueueNotFound
			return
		}
		if _, ok := m.queues[newName]; ok {
			err = ErrQueueExists
			return
		}
		delete(m.queues, oldName)
		q.Name = newName
		m.queues[newName] = q
		for i, n := range m.queueOrder {
			if n == oldName {
				m.queueOrder[i] = newName
			}
		}
		m.each(func(e *entry) {
			if e.queue == oldName {
				e.queue = newName
			}
		})
		for host, qn := range m.domainRules {
			if qn == oldName {
				m.domainRules[host] = newName
			}
		}
		m.notify(Event{Kind: QueuesChanged})
		m.scheduleSave()
	})
	return err
}

// UpdateQueue replaces the limits, schedule and quota settings of an
// existing queue. Today's downloaded bytes are kept.
func (m *Manager) UpdateQueue(q Queue) error {
	if q.StartMinutes < 0 || q.StartMinutes >= 24*60 || q.EndMinutes < 0 || q.EndMinutes >= 24*60 {
		return ErrInvalidWindow
	}
	var err error
	m.loop.Do(func() {
		cur, ok := m.queues[q.Name]
		if !ok {
			err = ErrQueueNotFound
			return
		}
		cur.MaxConcurrent = max(q.MaxConcurrent, 1)
		cur.MaxSpeed = max(q.MaxSpeed, 0)
		cur.ScheduleEnabled = q.ScheduleEnabled
		cur.StartMinutes = q.StartMinutes
		cur.EndMinutes = q.EndMinutes
		cur.QuotaEnabled = q.QuotaEnabled
		cur.QuotaBytes = max(q.QuotaBytes, 0)
		m.each(func(e *entry) {
			if e.queue == cur.Name {
				m.applySpeed(e)
			}
		})
		m.notify(Event{Kind: QueuesChanged})
		m.scheduleSave()
		m.tick()
	})
	return err
}

// Queues returns copies of every queue in creation order.
func (m *Manager) Queues() []Queue {
	var out []Queue
	m.loop.Do(func() {
		out = make([]Queue, 0, len(m.queueOrder))
		for _, name := range m.queueOrder {
			out = append(out, *m.queues[name])
		}
	})
	return out
}

// SetDomainRule routes new downloads from host to queue.
func (m *Manager) SetDomainRule(host, queue string) error {
	host = pathutil.NormalizeHost(host)
	if host == "" {
		return ErrEmptyName
	}
	queue = strings.TrimSpace(queue)
	if queue == "" {
		queue = DefaultQueue
	}
	m.loop.Do(func() {
		m.ensureQueue(queue)
		m.domainRules[host] = queue
		m.scheduleSave()
	})
	return nil
}

func (m *Manager) RemoveDomainRule(host string) {
	host = pathutil.NormalizeHost(host)
	m.loop.Do(func() {
		if _, ok := m.domainRules[host]; ok {
			delete(m.domainRules, host)
			m.scheduleSave()
		}
	})
}

func (m *Manager) DomainRules() map[string]string {
	out := make(map[string]string)
	m.loop.Do(func() {
		for k, v := range m.domainRules {
			out[k] = v
		}
	})
	return out
}

// SetCategoryFolder sets the folder of a category; an empty folder clears it.
func (m *Manager) SetCategoryFolder(category, folder string) error {
	category = strings.TrimSpace(category)
	if category == "" || category == pathutil.CategoryAuto {
		return ErrEmptyName
	}
	folder = pathutil.NormalizePath(folder)
	m.loop.Do(func() {
		if folder == "" {
			delete(m.categoryFolders, category)
		} else {
			m.categoryFolders[category] = folder
		}
		m.scheduleSave()
	})
	return nil
}

func (m *Manager) CategoryFolders() map[string]string {
	out := make(map[string]string)
	m.loop.Do(func() {
		for k, v := range m.categoryFolders {
			out[k] = v
		}
	})
	return out
}

func removeString(list []string, s string) []string {
	out := list[:0]
	for _, v := range list {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}
