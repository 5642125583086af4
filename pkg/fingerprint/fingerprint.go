// Package fingerprint collects the device and platform signals that are sent
// to the attribution service to correlate an install with a prior link click.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/text/language"
)

const (
	// DefaultLanguage is used when no locale can be read from the environment.
	DefaultLanguage = "en"

	// DefaultScreenSize is reported by headless processes.
	DefaultScreenSize = "0 x 0"

	// DefaultOSVersion is reported when the platform version is unavailable.
	DefaultOSVersion = "0.0.0"

	// ScreenSizeEnv overrides the reported screen size ("W x H").
	ScreenSizeEnv = "DEEPLINK_SCREEN_SIZE"
)

// Fingerprint is a snapshot of device signals. It is rebuilt for every
// verify call and has no identity beyond structural equality.
type Fingerprint struct {
	OS           string `json:"os"`
	OSVersion    string `json:"osVersion"`
	ScreenSize   string `json:"screenSize"`
	Model        string `json:"model"`
	DeviceID     string `json:"deviceId"`
	LanguageCode string `json:"languageCode"`
}

// Hash returns a short stable digest of the fingerprint.
// Used as a correlation key; 16 hex chars.
func (f Fingerprint) Hash() string {
	data := strings.Join([]string{
		f.OS, f.OSVersion, f.ScreenSize, f.Model, f.DeviceID, f.LanguageCode,
	}, "|")
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:])[:16]
}

// Provider builds fingerprints for one target platform.
type Provider interface {
	Fingerprint() Fingerprint
}

// Static is a Provider that always returns the same fingerprint.
type Static Fingerprint

// Fingerprint returns the fixed fingerprint.
func (s Static) Fingerprint() Fingerprint {
	return Fingerprint(s)
}

// Default returns the Provider compiled in for the current platform.
func Default() Provider {
	return platformProvider{}
}

// Build returns a fingerprint of the current platform. It never fails;
// missing signals fall back to defaults.
func Build() Fingerprint {
	return Default().Fingerprint()
}

// ScreenSize formats a width and height the way the service expects.
func ScreenSize(width, height int) string {
	return fmt.Sprintf("%d x %d", width, height)
}

// deviceNamespace scopes name-based device IDs to this SDK.
var deviceNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://penshort.dev/deeplink"))

// processDeviceID is generated once per process and never persisted.
var processDeviceID = sync.OnceValue(func() string {
	return uuid.NewString()
})

// deviceIDFromName maps a platform identifier onto a stable UUID.
func deviceIDFromName(name string) string {
	return uuid.NewSHA1(deviceNamespace, []byte(name)).String()
}

var versionPattern = regexp.MustCompile(`^(\d+)(?:\.(\d+))?(?:\.(\d+))?`)

// normalizeVersion reduces a platform version string to major.minor.patch.
func normalizeVersion(raw string) string {
	m := versionPattern.FindStringSubmatch(strings.TrimSpace(raw))
	if m == nil {
		return DefaultOSVersion
	}
	parts := []string{m[1], m[2], m[3]}
	for i, p := range parts {
		if p == "" {
			parts[i] = "0"
		}
	}
	return strings.Join(parts, ".")
}

// screenSize reads the override from the environment.
func screenSize() string {
	raw := strings.TrimSpace(os.Getenv(ScreenSizeEnv))
	if raw == "" {
		return DefaultScreenSize
	}
	var w, h int
	if _, err := fmt.Sscanf(strings.ReplaceAll(raw, " ", ""), "%dx%d", &w, &h); err != nil || w < 0 || h < 0 {
		return DefaultScreenSize
	}
	return ScreenSize(w, h)
}

var localeEnv = []string{"LC_ALL", "LC_MESSAGES", "LANG"}

// languageCode extracts the ISO 639 base language from the POSIX locale.
func languageCode() string {
	for _, key := range localeEnv {
		value := os.Getenv(key)
		if i := strings.IndexAny(value, ".@"); i >= 0 {
			value = value[:i]
		}
		if value == "" || value == "C" || value == "POSIX" {
			continue
		}

		tag, err := language.Parse(strings.ReplaceAll(value, "_", "-"))
		if err != nil {
			continue
		}
		base, conf := tag.Base()
		if conf == language.No {
			continue
		}
		return base.String()
	}
	return DefaultLanguage
}
