package search

import (
	"fmt"

	"github.com/bytedance/gopkg/lang/fastrand"
)

// Scraping providers rotate through a pool of plausible desktop browser
// User-Agent strings so consecutive runs do not present the same identity.
var desktopUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/129.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/130.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:132.0) Gecko/20100101 Firefox/132.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:131.0) Gecko/20100101 Firefox/131.0",
	"Mozilla/5.0 (X11; Linux x86_64; rv:128.0) Gecko/20100101 Firefox/128.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.6 Safari/605.1.15",
}

func randomUserAgent() string {
	return desktopUserAgents[fastrand.Uint32n(uint32(len(desktopUserAgents)))]
}

var (
	operaPatterns = []string{
		"Opera/9.80 (J2ME/MIDP; Opera Mini/%s/%s; U; %s) Presto/%s Version/%s",
		"Opera/9.80 (iPhone; Opera Mini/%s/%s; U; %s) Presto/%s Version/%s",
		"Opera/9.80 (iPad; Opera Mini/%s/%s; U; %s) Presto/%s Version/%s",
	}
	operaMiniVersions = []string{"4.0", "5.0.17381", "7.1.32444", "9.80"}
	operaBuilds       = []string{"18.678", "24.743", "503"}
	operaPrestos      = []string{"2.6.35", "2.7.60", "2.8.119"}
	operaFinals       = []string{"10.00", "11.10", "12.16"}
	operaLangs        = []string{"en-US", "en-GB", "de-DE", "fr-FR", "es-ES", "ru-RU", "zh-CN"}
)

// operaMiniUserAgent returns a randomized Opera Mini UA. Google serves its
// lightweight, scrape-friendly markup to these clients.
func operaMiniUserAgent() string {
	pick := func(list []string) string {
		return list[fastrand.Uint32n(uint32(len(list)))]
	}
	pattern := operaPatterns[fastrand.Uint32n(uint32(len(operaPatterns)))]
	return fmt.Sprintf(pattern, pick(operaMiniVersions), pick(operaBuilds), pick(operaLangs), pick(operaPrestos), pick(operaFinals))
}
