//go:build !linux && !darwin

package fingerprint

import "runtime"

type platformProvider struct{}

// Fingerprint reports what the Go runtime knows about the platform.
func (platformProvider) Fingerprint() Fingerprint {
	return Fingerprint{
		OS:           runtime.GOOS,
		OSVersion:    DefaultOSVersion,
		ScreenSize:   screenSize(),
		Model:        runtime.GOARCH,
		LanguageCode: languageCode(),
		DeviceID:     processDeviceID(),
	}
}
