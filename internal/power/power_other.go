//go:build !darwin && !linux && !windows

package power

func platformProbe() Probe {
	return ProbeFunc(func() (bool, error) { return false, ErrUnknown })
}
