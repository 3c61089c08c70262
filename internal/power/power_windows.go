//go:build windows

package power

import (
	"unsafe"

	"golang.org/x/sys/windows"
)

var procGetSystemPowerStatus = windows.NewLazySystemDLL("kernel32.dll").NewProc("GetSystemPowerStatus")

// systemPowerStatus mirrors SYSTEM_POWER_STATUS.
type systemPowerStatus struct {
	ACLineStatus        byte
	BatteryFlag         byte
	BatteryLifePercent  byte
	SystemStatusFlag    byte
	BatteryLifeTime     uint32
	BatteryFullLifeTime uint32
}

func platformProbe() Probe {
	return ProbeFunc(func() (bool, error) {
		if err := procGetSystemPowerStatus.Find(); err != nil {
			return false, ErrUnknown
		}
		var st systemPowerStatus
		r, _, _ := procGetSystemPowerStatus.Call(uintptr(unsafe.Pointer(&st)))
		if r == 0 {
			return false, ErrUnknown
		}
		switch st.ACLineStatus {
		case 0:
			return true, nil
		case 1:
			return false, nil
		}
		return false, ErrUnknown
	})
}
