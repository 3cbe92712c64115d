// Package browser provides the concrete page engines and their shared launch configuration.
package browser

import (
	"github.com/chromedp/chromedp"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
)

// DefaultUserAgent is a realistic Chrome user agent
const DefaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// launchFlag is one Chrome command line switch. An empty value is a bare switch.
type launchFlag struct {
	name  string
	value string
}

// launchFlags lists the switches both engines pass to Chrome, so a crawl
// looks the same to the forum whichever engine drives it.
func launchFlags(headless bool) []launchFlag {
	fl := []launchFlag{
		// navigator.webdriver stays false
		{"disable-blink-features", "AutomationControlled"},
		{"user-agent", DefaultUserAgent},
		// pagination controls end up off screen on small windows
		{"window-size", "1920,1080"},
		{"disable-extensions", ""},
		{"disable-default-apps", ""},
		{"disable-infobars", ""},
		{"no-first-run", ""},
		{"no-default-browser-check", ""},
	}
	if headless {
		fl = append(fl, launchFlag{"disable-gpu", ""})
	}
	return fl
}

// Options returns the chromedp allocator options for a crawl session.
func Options(headless bool) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:], chromedp.Flag("headless", headless))
	for _, f := range launchFlags(headless) {
		if f.value == "" {
			opts = append(opts, chromedp.Flag(f.name, true))
		} else {
			opts = append(opts, chromedp.Flag(f.name, f.value))
		}
	}
	return opts
}

// applyFlags sets the shared switches on a rod launcher.
func applyFlags(l *launcher.Launcher, headless bool) *launcher.Launcher {
	l = l.Headless(headless)
	for _, f := range launchFlags(headless) {
		if f.value == "" {
			l = l.Set(flags.Flag(f.name))
		} else {
			l = l.Set(flags.Flag(f.name), f.value)
		}
	}
	return l
}
