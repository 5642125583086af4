//go:build linux

package fingerprint

import (
	"os"
	"strings"

	"golang.org/x/sys/unix"
)

// machineIDPaths are checked in order for a stable host identifier.
var machineIDPaths = []string{
	"/etc/machine-id",
	"/var/lib/dbus/machine-id",
}

type platformProvider struct{}

// Fingerprint reads uname and the systemd machine id.
func (platformProvider) Fingerprint() Fingerprint {
	fp := Fingerprint{
		OS:           "linux",
		OSVersion:    DefaultOSVersion,
		ScreenSize:   screenSize(),
		Model:        "unknown",
		LanguageCode: languageCode(),
		DeviceID:     machineDeviceID(),
	}

	var uts unix.Utsname
	if err := unix.Uname(&uts); err == nil {
		fp.OSVersion = normalizeVersion(unix.ByteSliceToString(uts.Release[:]))
		if machine := unix.ByteSliceToString(uts.Machine[:]); machine != "" {
			fp.Model = machine
		}
	}

	return fp
}

func machineDeviceID() string {
	for _, path := range machineIDPaths {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if id := strings.TrimSpace(string(data)); id != "" {
			return deviceIDFromName(id)
		}
	}
	return processDeviceID()
}
