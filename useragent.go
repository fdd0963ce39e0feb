package beacon

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var (
	mobilePattern = regexp.MustCompile(`(?i)mobile|android|iphone|ipad|phone|tablet`)
	tabletPattern = regexp.MustCompile(`(?i)tablet|ipad`)
)

// DetectDevice classifies a user agent as Desktop, Mobile or Tablet.
func DetectDevice(userAgent string) string {
	if !mobilePattern.MatchString(userAgent) {
		return "Desktop"
	}
	if tabletPattern.MatchString(userAgent) {
		return "Tablet"
	}
	return "Mobile"
}

// DetectBrowser returns the first matching browser family. The order
// matters: Chrome user agents also contain "Safari".
func DetectBrowser(userAgent string) string {
	for _, name := range []string{"Chrome", "Firefox", "Safari", "Edge", "Opera"} {
		if strings.Contains(userAgent, name) {
			return name
		}
	}
	return "Unknown"
}

var referrerSources = []struct {
	label   string
	needles []string
}{
	{"Google", []string{"google"}},
	{"Yandex", []string{"yandex"}},
	{"Bing", []string{"bing"}},
	{"Facebook", []string{"facebook", "fb.com"}},
	{"VKontakte", []string{"vk.com", "vkontakte"}},
	{"Telegram", []string{"telegram", "t.me"}},
	{"Instagram", []string{"instagram"}},
	{"YouTube", []string{"youtube"}},
	{"Twitter/X", []string{"twitter", "x.com"}},
	{"TikTok", []string{"tiktok"}},
}

// referrerDisplayLimit is in characters, not bytes.
const referrerDisplayLimit = 50

// ClassifyReferrer labels a referrer URL by traffic source. Hosts containing
// site are reported as "Own site".
func ClassifyReferrer(referrer, site string) string {
	if referrer == "" {
		return "Direct"
	}

	u, err := url.Parse(referrer)
	if err != nil || u.Hostname() == "" {
		if runes := []rune(referrer); len(runes) > referrerDisplayLimit {
			return string(runes[:referrerDisplayLimit]) + "..."
		}
		return referrer
	}

	host := strings.ToLower(u.Hostname())
	for _, src := range referrerSources {
		for _, needle := range src.needles {
			if strings.Contains(host, needle) {
				return fmt.Sprintf("%s (%s)", src.label, host)
			}
		}
	}
	if site != "" && strings.Contains(host, strings.ToLower(site)) {
		return fmt.Sprintf("Own site (%s)", host)
	}
	return host
}
