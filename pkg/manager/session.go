package manager

import (
	"errors"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/raaddl/raad/internal/checksum"
	"github.com/raaddl/raad/internal/pathutil"
	"github.com/raaddl/raad/internal/session"
	"github.com/raaddl/raad/pkg/transfer"
	"github.com/spf13/afero"
)

// Load restores the session from the configured store. A missing session
// is not an error.
func (m *Manager) Load() error {
	if m.store == nil {
		return nil
	}
	doc, err := m.store.Load()
	if errors.Is(err, session.ErrNoSession) {
		return nil
	}
	if err != nil {
		return err
	}
	m.Restore(doc)
	return nil
}

// Document returns the current state in session form.
func (m *Manager) Document() *session.Document {
	var d *session.Document
	m.loop.Do(func() { d = m.document() })
	return d
}

func (m *Manager) document() *session.Document {
	d := &session.Document{
		Version:         session.Version,
		MaxConcurrent:   m.settings.MaxConcurrent,
		GlobalMaxSpeed:  m.settings.GlobalMaxSpeed,
		PauseOnBattery:  m.settings.PauseOnBattery,
		ResumeOnAC:      m.settings.ResumeOnAC,
		Queues:          make([]session.Queue, 0, len(m.queueOrder)),
		CategoryFolders: make(map[string]string, len(m.categoryFolders)),
		DomainRules:     make(map[string]string, len(m.domainRules)),
		Items:           make([]session.Item, 0, len(m.order)),
	}
	for _, name := range m.queueOrder {
		q := m.queues[name]
		d.Queues = append(d.Queues, session.Queue{
			Name:            q.Name,
			MaxConcurrent:   q.MaxConcurrent,
			MaxSpeed:        q.MaxSpeed,
			ScheduleEnabled: q.ScheduleEnabled,
			StartMinutes:    q.StartMinutes,
			EndMinutes:      q.EndMinutes,
			QuotaEnabled:    q.QuotaEnabled,
			QuotaBytes:      q.QuotaBytes,
			DownloadedToday: q.DownloadedToday,
			LastResetDate:   q.LastReset.Format(dateLayout),
		})
	}
	for k, v := range m.categoryFolders {
		d.CategoryFolders[k] = v
	}
	for k, v := range m.domainRules {
		d.DomainRules[k] = v
	}
	for _, id := range m.order {
		d.Items = append(d.Items, m.item(m.tasks[id]))
	}
	return d
}

func (m *Manager) item(e *entry) session.Item {
	t := e.task
	o := t.Options()
	etag, lastModified := t.Validators()
	mirrors := t.Mirrors()
	it := session.Item{
		ID:               t.ID(),
		URL:              mirrors[0],
		FilePath:         t.Path(),
		Segments:         o.Segments,
		QueueName:        e.queue,
		Category:         e.category,
		State:            string(t.Status()),
		TaskMaxSpeed:     o.MaxSpeed,
		BytesReceived:    t.Received(),
		BytesTotal:       max(t.Total(), 0),
		LastSpeed:        t.Speed(),
		LastEta:          t.ETA(),
		PausedAt:         unixMilli(t.PausedAt()),
		PauseReason:      t.PauseReason().String(),
		CompletedAt:      unixMilli(e.completedAt),
		ETag:             etag,
		LastModified:     lastModified,
		ResumeWarning:    t.ResumeWarning(),
		Mirrors:          mirrors,
		MirrorIndex:      t.MirrorIndex(),
		ChecksumAlgo:     o.Checksum.Algorithm,
		ChecksumExpected: o.Checksum.Expected,
		ChecksumActual:   e.actual,
		ChecksumState:    string(e.checksum),
		VerifyOnComplete: o.Checksum.VerifyOnComplete,
		PostOpenFile:     o.Post.OpenFile,
		PostRevealFolder: o.Post.RevealFolder,
		PostExtract:      o.Post.Extract,
		PostScript:       o.Post.Script,
		RetryMax:         o.Retry.Max,
		RetryDelaySec:    o.Retry.DelaySec,
		Headers:          headerLines(o.Network.Headers),
		CookieHeader:     o.Network.Cookie,
		AuthUser:         o.Network.AuthUser,
		AuthPassword:     o.Network.AuthPassword,
		LastError:        t.LastError(),
		RetryAttempts:    e.retries,
	}
	if p := o.Network.Proxy; p != nil {
		it.Proxy = session.Proxy{
			Scheme:   p.Scheme,
			Host:     p.Host,
			Port:     p.Port,
			User:     p.User,
			Password: p.Password,
		}
	}
	return it
}

func headerLines(h map[string]string) []string {
	lines := make([]string, 0, len(h))
	for k, v := range h {
		lines = append(lines, k+": "+v)
	}
	sort.Strings(lines)
	return lines
}

func unixMilli(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMilli(ms int64) time.Time {
	if ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// Restore replaces the settings, queues, folders and rules with those of
// doc and adds its items. Items whose id is already registered are
// skipped. Tasks saved as Active come back queued.
func (m *Manager) Restore(doc *session.Document) {
	m.loop.Do(func() {
		m.restoring = true
		m.restore(doc)
		m.restoring = false
		m.updateTotals()
		m.startQueued()
	})
}

func (m *Manager) restore(doc *session.Document) {
	if doc.MaxConcurrent > 0 {
		m.settings.MaxConcurrent = doc.MaxConcurrent
	}
	m.settings.GlobalMaxSpeed = max(doc.GlobalMaxSpeed, 0)
	m.settings.PauseOnBattery = doc.PauseOnBattery
	m.settings.ResumeOnAC = doc.ResumeOnAC

	today := dateOf(m.now())
	m.queues = make(map[string]*Queue, len(doc.Queues))
	m.queueOrder = nil
	for _, sq := range doc.Queues {
		if sq.Name == "" || m.queues[sq.Name] != nil {
			continue
		}
		last, err := time.ParseInLocation(dateLayout, sq.LastResetDate, m.now().Location())
		if err != nil {
			last = today
		}
		m.queues[sq.Name] = &Queue{
			Name:            sq.Name,
			MaxConcurrent:   max(sq.MaxConcurrent, 1),
			MaxSpeed:        max(sq.MaxSpeed, 0),
			ScheduleEnabled: sq.ScheduleEnabled,
			StartMinutes:    sq.StartMinutes,
			EndMinutes:      sq.EndMinutes,
			QuotaEnabled:    sq.QuotaEnabled,
			QuotaBytes:      sq.QuotaBytes,
			DownloadedToday: sq.DownloadedToday,
			LastReset:       last,
		}
		m.queueOrder = append(m.queueOrder, sq.Name)
	}
	m.ensureQueue(DefaultQueue)

	m.categoryFolders = make(map[string]string, len(doc.CategoryFolders))
	for k, v := range doc.CategoryFolders {
		m.categoryFolders[k] = v
	}
	m.domainRules = make(map[string]string, len(doc.DomainRules))
	for k, v := range doc.DomainRules {
		m.domainRules[pathutil.NormalizeHost(k)] = v
	}

	for _, it := range doc.Items {
		if err := transfer.ValidateURL(it.URL); err != nil {
			m.log.Warning("skipping saved item %q: %v", it.URL, err)
			continue
		}
		if _, ok := m.tasks[it.ID]; ok && it.ID != "" {
			continue
		}
		m.restoreItem(it)
	}
	m.notify(Event{Kind: QueuesChanged})
}

func (m *Manager) restoreItem(it session.Item) {
	opts := transfer.Options{
		Segments: it.Segments,
		Mirrors:  it.Mirrors,
		MaxSpeed: max(it.TaskMaxSpeed, 0),
		Network: transfer.NetworkOptions{
			Headers:      transfer.ParseHeaderLines(it.Headers),
			Cookie:       it.CookieHeader,
			AuthUser:     it.AuthUser,
			AuthPassword: it.AuthPassword,
		},
		Checksum: transfer.ChecksumOptions{
			Algorithm:        it.ChecksumAlgo,
			Expected:         it.ChecksumExpected,
			VerifyOnComplete: it.VerifyOnComplete,
		},
		Retry: transfer.RetryOptions{Max: max(it.RetryMax, -1), DelaySec: max(it.RetryDelaySec, -1)},
		Post: transfer.PostActions{
			OpenFile:     it.PostOpenFile,
			RevealFolder: it.PostRevealFolder,
			Extract:      it.PostExtract,
			Script:       it.PostScript,
		},
	}
	if it.Proxy.Host != "" {
		opts.Network.Proxy = &transfer.ProxyOptions{
			Scheme:   it.Proxy.Scheme,
			Host:     it.Proxy.Host,
			Port:     it.Proxy.Port,
			User:     it.Proxy.User,
			Password: it.Proxy.Password,
		}
	}
	if opts.Segments <= 0 {
		opts.Segments = m.settings.Segments
	}

	queue := it.QueueName
	if queue == "" {
		queue = DefaultQueue
	}
	m.ensureQueue(queue)
	path := m.reconcileName(it.URL, pathutil.NormalizePath(it.FilePath), opts.Segments)
	if path == "" {
		path = m.defaultPath(it.URL, it.Category, "")
	}
	category := it.Category
	if category == "" || category == pathutil.CategoryAuto {
		category = pathutil.DetectCategory(path)
	}

	e := m.newEntry(it.ID, it.URL, path, queue, category, opts)
	t := e.task
	t.SetMirrorIndex(it.MirrorIndex)
	switch transfer.Status(it.State) {
	case transfer.StatusPaused:
		t.MarkPaused(transfer.ParsePauseReason(it.PauseReason), fromMilli(it.PausedAt))
	case transfer.StatusDone:
		e.completedAt = fromMilli(it.CompletedAt)
		t.MarkDone(e.completedAt)
	case transfer.StatusError:
		e.completedAt = fromMilli(it.CompletedAt)
		msg := it.LastError
		if msg == "" {
			msg = "failed in a previous session"
		}
		t.MarkError(msg)
	case transfer.StatusCanceled:
		t.MarkCanceled()
	}

	received := it.BytesReceived
	if received <= 0 {
		received = t.BytesOnDisk()
	}
	total := it.BytesTotal
	if total <= 0 {
		total = -1
	}
	t.SeedStats(received, total, it.LastSpeed, it.LastEta)
	t.SetValidators(it.ETag, it.LastModified)
	t.SetResumeWarning(it.ResumeWarning)

	e.checksum = checksum.ParseState(it.ChecksumState)
	if e.checksum == checksum.Pending || e.checksum == checksum.Verifying {
		e.checksum = checksum.None
	}
	e.actual = it.ChecksumActual
	e.retries = max(it.RetryAttempts, 0)
	e.lastRecv = received
}

// reconcileName replaces a GUID-like file name from an older session with
// the name in the URL. Files already on disk are renamed along, unless
// the new name is taken.
func (m *Manager) reconcileName(rawURL, path string, segments int) string {
	name := pathutil.SanitizeFilename(pathutil.FileNameFromURL(rawURL))
	if path == "" || name == "" || !pathutil.LooksLikeGUID(filepath.Base(path)) {
		return path
	}
	target := filepath.Join(filepath.Dir(path), name)
	if target == path {
		return path
	}
	if m.anyExists(target, segments) {
		return path
	}
	if !m.anyExists(path, segments) {
		return target
	}
	if err := renameArtifacts(m.fs, path, target, segments); err != nil {
		m.log.Warning("rename %s to %s: %v", filepath.Base(path), name, err)
		return path
	}
	m.log.Info("renamed %s to %s", filepath.Base(path), name)
	return target
}

// anyExists reports whether the final file or any temp file of path exists.
func (m *Manager) anyExists(path string, segments int) bool {
	candidates := []string{path, path + ".part"}
	for i := 0; i < max(segments, 1); i++ {
		candidates = append(candidates, path+".part"+strconv.Itoa(i))
	}
	for _, c := range candidates {
		if ok, _ := afero.Exists(m.fs, c); ok {
			return true
		}
	}
	return false
}
