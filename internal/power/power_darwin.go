//go:build darwin

package power

import (
	"context"
	"os/exec"
	"time"
)

func platformProbe() Probe {
	return ProbeFunc(func() (bool, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		out, err := exec.CommandContext(ctx, "pmset", "-g", "batt").Output()
		if err != nil {
			return false, ErrUnknown
		}
		return parsePmset(string(out))
	})
}
