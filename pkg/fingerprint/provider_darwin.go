//go:build darwin

package fingerprint

import "golang.org/x/sys/unix"

type platformProvider struct{}

// Fingerprint reads the kernel and hardware sysctls.
func (platformProvider) Fingerprint() Fingerprint {
	fp := Fingerprint{
		OS:           "macos",
		OSVersion:    DefaultOSVersion,
		ScreenSize:   screenSize(),
		Model:        "unknown",
		LanguageCode: languageCode(),
		DeviceID:     processDeviceID(),
	}

	if v, err := unix.Sysctl("kern.osproductversion"); err == nil && v != "" {
		fp.OSVersion = normalizeVersion(v)
	}
	if m, err := unix.Sysctl("hw.model"); err == nil && m != "" {
		fp.Model = m
	}
	if id, err := unix.Sysctl("kern.uuid"); err == nil && id != "" {
		fp.DeviceID = deviceIDFromName(id)
	}

	return fp
}
