package notifier

import (
	"io"

	"github.com/pkg/browser"
)

func init() {
	// keep opener output off the console
	browser.Stdout = io.Discard
	browser.Stderr = io.Discard
}

// openURL is replaced in tests.
var openURL = browser.OpenURL

// DefaultHyperlinkHandler opens activated links in the system browser and
// ignores every other event type.
func DefaultHyperlinkHandler(ev HyperlinkEvent) error {
	if ev.Type != Activated || ev.URL == "" {
		return nil
	}
	return openURL(ev.URL)
}
