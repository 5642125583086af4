package attribution

import "strings"

// Mode selects which credential is sent to the service.
type Mode int

const (
	ModeLive Mode = iota
	ModeTest
)

// String returns "live" or "test".
func (m Mode) String() string {
	if m == ModeTest {
		return "test"
	}
	return "live"
}

// ParseMode maps "test" to ModeTest; anything else is live.
func ParseMode(s string) Mode {
	if strings.EqualFold(strings.TrimSpace(s), "test") {
		return ModeTest
	}
	return ModeLive
}

// Credentials holds the two API keys.
type Credentials struct {
	Test string
	Live string
}

// For returns the credential for mode. A missing key yields "".
func (c Credentials) For(mode Mode) string {
	if mode == ModeTest {
		return c.Test
	}
	return c.Live
}
