package markup

import "strings"

// The replacer works in a single pass, so the ampersands it introduces are
// never escaped a second time.
var escaper = strings.NewReplacer(
	"&", "&amp;",
	`"`, "&quot;",
	"'", "&#039;",
	"<", "&lt;",
	">", "&gt;",
)

// Escape replaces the five HTML-significant characters with their entities.
func Escape(s string) string {
	return escaper.Replace(s)
}
