package manager

import "github.com/raaddl/raad/pkg/transfer"

// Settings are the manager wide policies.
type Settings struct {
	MaxConcurrent  int
	GlobalMaxSpeed int64
	PauseOnBattery bool
	ResumeOnAC     bool
	// DefaultRetryMax and DefaultRetryDelaySec apply to tasks whose own
	// retry options are -1.
	DefaultRetryMax      int
	DefaultRetryDelaySec int
	// DownloadDir receives files whose category has no folder.
	DownloadDir string
	// Segments is the connection count of new tasks.
	Segments        int
	ChecksumWorkers int
}

// DefaultSettings returns the settings of a fresh installation.
func DefaultSettings() Settings {
	return Settings{
		MaxConcurrent:        3,
		ResumeOnAC:           true,
		DefaultRetryMax:      3,
		DefaultRetryDelaySec: 10,
		DownloadDir:          ".",
		Segments:             transfer.DefaultSegments,
		ChecksumWorkers:      2,
	}
}

func (s *Settings) normalize() {
	if s.MaxConcurrent < 1 {
		s.MaxConcurrent = 1
	}
	if s.GlobalMaxSpeed < 0 {
		s.GlobalMaxSpeed = 0
	}
	if s.DefaultRetryMax < 0 {
		s.DefaultRetryMax = 0
	}
	if s.DefaultRetryDelaySec < 0 {
		s.DefaultRetryDelaySec = 0
	}
	if s.Segments < 1 {
		s.Segments = transfer.DefaultSegments
	}
	if s.ChecksumWorkers < 1 {
		s.ChecksumWorkers = 1
	}
	if s.DownloadDir == "" {
		s.DownloadDir = "."
	}
}

// Settings returns a copy of the current settings.
func (m *Manager) Settings() Settings {
	var s Settings
	m.loop.Do(func() { s = m.settings })
	return s
}

// SetMaxConcurrent changes the global cap. Lowering it does not stop
// running tasks; they drain naturally.
func (m *Manager) SetMaxConcurrent(n int) {
	m.loop.Do(func() {
		m.settings.MaxConcurrent = max(n, 1)
		m.scheduleSave()
		m.startQueued()
	})
}

// SetGlobalMaxSpeed changes the global speed level and re-resolves every
// task's limit.
func (m *Manager) SetGlobalMaxSpeed(bps int64) {
	m.loop.Do(func() {
		m.settings.GlobalMaxSpeed = max(bps, 0)
		for _, id := range m.order {
			m.applySpeed(m.tasks[id])
		}
		m.scheduleSave()
	})
}

// SetPowerPolicy configures the battery policy.
func (m *Manager) SetPowerPolicy(pauseOnBattery, resumeOnAC bool) {
	m.loop.Do(func() {
		m.settings.PauseOnBattery = pauseOnBattery
		m.settings.ResumeOnAC = resumeOnAC
		m.scheduleSave()
		m.tick()
	})
}

// SetOnBattery reports the power source, for hosts without a probe.
func (m *Manager) SetOnBattery(on bool) {
	m.loop.Do(func() { m.setOnBattery(on) })
}

// SetRetryPolicy changes the defaults for tasks that inherit them.
func (m *Manager) SetRetryPolicy(maxRetries, delaySec int) {
	m.loop.Do(func() {
		m.settings.DefaultRetryMax = max(maxRetries, 0)
		m.settings.DefaultRetryDelaySec = max(delaySec, 0)
	})
}
