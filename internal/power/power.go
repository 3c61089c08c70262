// Package power reports whether the machine runs on battery.
package power

import (
	"bufio"
	"errors"
	"strings"
)

// ErrUnknown is returned when the power source cannot be determined.
var ErrUnknown = errors.New("power source unknown")

// Probe observes the current power source.
type Probe interface {
	OnBattery() (bool, error)
}

// ProbeFunc adapts a function to Probe.
type ProbeFunc func() (bool, error)

func (f ProbeFunc) OnBattery() (bool, error) { return f() }

// Static is a Probe with a fixed answer, used when the power source is
// configured instead of detected.
type Static bool

func (s Static) OnBattery() (bool, error) { return bool(s), nil }

// Status asks p and returns fallback when the answer is unknown.
func Status(p Probe, fallback bool) bool {
	if p == nil {
		return fallback
	}
	on, err := p.OnBattery()
	if err != nil {
		return fallback
	}
	return on
}

// Default returns the probe for the running platform.
func Default() Probe {
	return platformProbe()
}

// parsePmset reads the output of `pmset -g batt`.
func parsePmset(out string) (bool, error) {
	lower := strings.ToLower(out)
	switch {
	case strings.Contains(lower, "battery power"):
		return true, nil
	case strings.Contains(lower, "ac power"):
		return false, nil
	}
	return false, ErrUnknown
}

// parseUpower reads the output of `upower -i <line_power device>`.
func parseUpower(out string) (bool, error) {
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(sc.Text()), ":")
		if !ok || strings.TrimSpace(key) != "online" {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(value)) {
		case "yes":
			return false, nil
		case "no":
			return true, nil
		}
	}
	return false, ErrUnknown
}
