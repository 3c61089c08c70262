//go:build linux

package power

import (
	"context"
	"os/exec"
	"time"

	"github.com/spf13/afero"
)

func platformProbe() Probe {
	sys := sysfsProbe{fs: afero.NewOsFs(), root: sysfsRoot}
	return ProbeFunc(func() (bool, error) {
		if on, err := sys.OnBattery(); err == nil {
			return on, nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		out, err := exec.CommandContext(ctx, "upower", "-i", "/org/freedesktop/UPower/devices/line_power_AC").Output()
		if err != nil {
			return false, ErrUnknown
		}
		return parseUpower(string(out))
	})
}
