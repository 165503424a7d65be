package telemetry

import (
	"regexp"
	"strings"
)

// Device is the coarse form factor derived from a user agent.
type Device string

const (
	DeviceDesktop Device = "desktop"
	DeviceMobile  Device = "mobile"
	DeviceTablet  Device = "tablet"
)

var (
	tabletPattern  = regexp.MustCompile(`(?i)tablet|ipad|playbook|silk`)
	androidPattern = regexp.MustCompile(`(?i)android`)
	mobiPattern    = regexp.MustCompile(`(?i)mobi`)
	mobilePattern  = regexp.MustCompile(`Mobile|Android|iP(hone|od)|IEMobile|BlackBerry|Kindle|Silk-Accelerated|(hpw|web)OS|Opera M(obi|ini)`)
)

// ClassifyDevice maps a user agent to a Device. Tablet markers are checked
// first because most tablet user agents also match the mobile patterns.
// Android without "mobi" is a tablet.
func ClassifyDevice(userAgent string) Device {
	if tabletPattern.MatchString(userAgent) {
		return DeviceTablet
	}
	for _, loc := range androidPattern.FindAllStringIndex(userAgent, -1) {
		if !mobiPattern.MatchString(userAgent[loc[1]:]) {
			return DeviceTablet
		}
	}
	if mobilePattern.MatchString(userAgent) {
		return DeviceMobile
	}
	return DeviceDesktop
}

// browserMarkers are checked in order; the first substring match wins.
var browserMarkers = []struct {
	name    string
	markers []string
}{
	{"Firefox", []string{"Firefox"}},
	{"Chrome", []string{"Chrome"}},
	{"Safari", []string{"Safari"}},
	{"Edge", []string{"Edge"}},
	{"Opera", []string{"Opera", "OPR"}},
}

// DetectBrowser returns a browser family name or "Unknown".
func DetectBrowser(userAgent string) string {
	for _, browser := range browserMarkers {
		for _, marker := range browser.markers {
			if strings.Contains(userAgent, marker) {
				return browser.name
			}
		}
	}
	return "Unknown"
}

var osMarkers = []struct {
	name   string
	marker string
}{
	{"Windows", "Win"},
	{"MacOS", "Mac"},
	{"Linux", "Linux"},
	{"Android", "Android"},
	{"iOS", "iOS"},
}

// DetectOS returns an operating system family name or "Unknown".
func DetectOS(userAgent string) string {
	for _, os := range osMarkers {
		if strings.Contains(userAgent, os.marker) {
			return os.name
		}
	}
	return "Unknown"
}
