package beacon

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

const (
	uaChromeDesktop = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
	uaIPhoneSafari  = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1"
	uaIPadSafari    = "Mozilla/5.0 (iPad; CPU OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Safari/604.1"
	uaFirefox       = "Mozilla/5.0 (X11; Linux x86_64; rv:125.0) Gecko/20100101 Firefox/125.0"
)

func TestDetectDevice(t *testing.T) {
	assert.Equal(t, "Desktop", DetectDevice(uaChromeDesktop))
	assert.Equal(t, "Mobile", DetectDevice(uaIPhoneSafari))
	assert.Equal(t, "Tablet", DetectDevice(uaIPadSafari))
	assert.Equal(t, "Desktop", DetectDevice(""))
}

func TestDetectBrowser(t *testing.T) {
	assert.Equal(t, "Chrome", DetectBrowser(uaChromeDesktop))
	assert.Equal(t, "Safari", DetectBrowser(uaIPhoneSafari))
	assert.Equal(t, "Firefox", DetectBrowser(uaFirefox))
	assert.Equal(t, "Opera", DetectBrowser("Opera/9.80 (Windows NT 6.1)"))
	assert.Equal(t, "Unknown", DetectBrowser("curl/8.0"))
}

func TestClassifyReferrer(t *testing.T) {
	cases := []struct {
		name     string
		referrer string
		want     string
	}{
		{"should report direct traffic", "", "Direct"},
		{"should detect google", "https://www.google.com/search?q=game", "Google (www.google.com)"},
		{"should detect telegram short links", "https://t.me/channel", "Telegram (t.me)"},
		{"should detect own site", "https://AviaMasters.example/promo", "Own site (aviamasters.example)"},
		{"should fall back to hostname", "https://news.example.org/a", "news.example.org"},
		{"should keep short unparsable referrers", "not a url", "not a url"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ClassifyReferrer(tc.referrer, "aviamasters"))
		})
	}

	t.Run("should truncate long unparsable referrers", func(t *testing.T) {
		long := strings.Repeat("x", 80)
		assert.Equal(t, strings.Repeat("x", 50)+"...", ClassifyReferrer(long, ""))
	})

	t.Run("should truncate on character boundaries", func(t *testing.T) {
		long := strings.Repeat("ж", 80)
		got := ClassifyReferrer(long, "")
		assert.True(t, utf8.ValidString(got))
		assert.Equal(t, strings.Repeat("ж", 50)+"...", got)

		short := strings.Repeat("ж", 50)
		assert.Equal(t, short, ClassifyReferrer(short, ""))
	})
}
