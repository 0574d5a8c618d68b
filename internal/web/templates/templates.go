// Package templates embeds the page templates served by the web package.
package templates

import "embed"

//go:embed *.html
var FS embed.FS
