package power

import (
	"path"
	"strings"

	"github.com/spf13/afero"
)

const sysfsRoot = "/sys/class/power_supply"

// sysfsProbe reads the Linux power_supply class. The AC adapter is looked up
// as "AC" first, then as any supply whose type is Mains.
type sysfsProbe struct {
	fs   afero.Fs
	root string
}

func (p sysfsProbe) OnBattery() (bool, error) {
	if on, err := p.readOnline(path.Join(p.root, "AC")); err == nil {
		return on, nil
	}
	entries, err := afero.ReadDir(p.fs, p.root)
	if err != nil {
		return false, ErrUnknown
	}
	sawMains := false
	for _, e := range entries {
		dir := path.Join(p.root, e.Name())
		typ, err := afero.ReadFile(p.fs, path.Join(dir, "type"))
		if err != nil || strings.TrimSpace(string(typ)) != "Mains" {
			continue
		}
		on, err := p.readOnline(dir)
		if err != nil {
			continue
		}
		if !on {
			return false, nil
		}
		sawMains = true
	}
	if sawMains {
		return true, nil
	}
	return false, ErrUnknown
}

// readOnline returns true for battery when dir/online holds "0".
func (p sysfsProbe) readOnline(dir string) (bool, error) {
	data, err := afero.ReadFile(p.fs, path.Join(dir, "online"))
	if err != nil {
		return false, err
	}
	switch strings.TrimSpace(string(data)) {
	case "1":
		return false, nil
	case "0":
		return true, nil
	}
	return false, ErrUnknown
}
