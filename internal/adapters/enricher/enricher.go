// Package enricher classifies user agents and resolves client locations.
package enricher

import (
	"context"
	"strings"

	"github.com/mssola/useragent"

	"github.com/okian/sitestats/internal/domain/model"
)

// Unknown is reported for any attribute that cannot be determined.
const Unknown = "Unknown"

// Device types.
const (
	DeviceDesktop = "desktop"
	DeviceMobile  = "mobile"
	DeviceTablet  = "tablet"
	DeviceBot     = "bot"
)

// Classifier derives device, browser and OS from a user agent string.
type Classifier interface {
	Classify(userAgent string) model.Device
}

// LocationResolver maps a client IP to a location. It never fails; unknown
// addresses resolve to Unknown.
type LocationResolver interface {
	Resolve(ctx context.Context, ip string) model.Location
}

// UAClassifier implements Classifier with mssola/useragent.
type UAClassifier struct{}

// NewClassifier returns the default classifier.
func NewClassifier() UAClassifier {
	return UAClassifier{}
}

// Classify parses userAgent. An empty string classifies as Unknown everywhere.
func (UAClassifier) Classify(userAgent string) model.Device {
	if strings.TrimSpace(userAgent) == "" {
		return model.Device{Type: Unknown, Browser: Unknown, OS: Unknown}
	}
	ua := useragent.New(userAgent)
	browser, _ := ua.Browser()
	if browser == "" {
		browser = Unknown
	}
	return model.Device{
		Type:    deviceType(ua, userAgent),
		Browser: browser,
		OS:      osFamily(ua.OS(), userAgent),
	}
}

func deviceType(ua *useragent.UserAgent, raw string) string {
	if ua.Bot() {
		return DeviceBot
	}
	if strings.Contains(raw, "iPad") || strings.Contains(raw, "Tablet") ||
		(strings.Contains(raw, "Android") && !strings.Contains(raw, "Mobile")) {
		return DeviceTablet
	}
	if ua.Mobile() {
		return DeviceMobile
	}
	return DeviceDesktop
}

// osFamily folds versioned platform strings such as "Windows 10" or
// "Intel Mac OS X 10_15_7" into a small set of families.
func osFamily(os, raw string) string {
	l := strings.ToLower(os)
	switch {
	case l == "":
		return Unknown
	case strings.Contains(l, "windows"):
		return "Windows"
	case strings.Contains(l, "iphone"), strings.Contains(raw, "iPad"), strings.Contains(raw, "iPhone"):
		return "iOS"
	case strings.Contains(l, "android"):
		return "Android"
	case strings.Contains(l, "mac os"):
		return "macOS"
	case strings.Contains(l, "cros"), strings.Contains(l, "chrome os"):
		return "ChromeOS"
	case strings.Contains(l, "linux"):
		return "Linux"
	default:
		return os
	}
}
