package panel

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// alertSelector matches the danger banner the panel renders above its forms
// when a submission is refused (duplicate domain, quota too large, ...).
const alertSelector = "div.alert-danger"

// findErrorBanner scans an HTML panel page for an error banner and returns its
// text. The boolean is false when the page carries no banner.
func findErrorBanner(body string) (string, bool, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return "", false, fmt.Errorf("failed to parse panel response: %w", err)
	}

	sel := doc.Find(alertSelector).First()
	if sel.Length() == 0 {
		return "", false, nil
	}

	// Dismiss buttons render as "×" inside the banner.
	sel.Find("button").Remove()
	msg := strings.Join(strings.Fields(sel.Text()), " ")
	if msg == "" {
		msg = "unspecified panel error"
	}
	return msg, true, nil
}
