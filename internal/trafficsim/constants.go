package trafficsim

import "time"

// HTTP status code constants.
const (
	StatusOK       = 200
	StatusAccepted = 202
	StatusTooMany  = 429
)

// Submission constants.
const (
	WorkerChannelMultiplier = 2

	maxAttempts       = 5
	retryBackoff      = 50 * time.Millisecond
	pollInterval      = 250 * time.Millisecond
	maxPageViews      = 5
	interactionChance = 0.5
	scrollChance      = 0.4
)

var pages = []struct{ path, title string }{
	{"/", "Home"},
	{"/pricing", "Pricing"},
	{"/features", "Features"},
	{"/blog", "Blog"},
	{"/docs", "Docs"},
	{"/signup", "Sign up"},
	{"/contact", "Contact"},
}

var referrers = []string{
	"",
	"https://www.google.com/",
	"https://news.ycombinator.com/",
	"https://twitter.com/",
	"https://www.bing.com/",
}

var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.2 Safari/605.1.15",
	"Mozilla/5.0 (iPhone; CPU iPhone OS 17_2 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.2 Mobile/15E148 Safari/604.1",
	"Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Mobile Safari/537.36",
}

var goals = []struct {
	name  string
	value float64
}{
	{"signup", 0},
	{"trial", 0},
	{"purchase", 49},
	{"purchase", 99},
}
