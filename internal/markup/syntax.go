package markup

import (
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

var endTagPattern = regexp.MustCompile(`^</[A-Za-z][^\t\n\f\r />]*[\t\n\f\r ]*>$`)

var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true,
	"hr": true, "img": true, "input": true, "link": true, "meta": true,
	"param": true, "source": true, "track": true, "wbr": true,
}

// checkSyntax walks the token stream and rejects markup the HTML parser
// would silently repair. Optional end tags are not inferred: every non-void
// element must be closed explicitly.
func checkSyntax(src string) error {
	z := html.NewTokenizer(strings.NewReader(src))
	var open []string

	fail := func(format string, args ...any) error {
		return &SyntaxError{Reason: fmt.Sprintf(format, args...), Markup: src}
	}

	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			if err := z.Err(); err != io.EOF {
				return fail("%v", err)
			}
			if raw := bytes.TrimSpace(z.Raw()); len(raw) > 0 {
				return fail("unterminated tag %q", raw)
			}
			if len(open) > 0 {
				return fail("unclosed <%s>", open[len(open)-1])
			}
			return nil

		case html.StartTagToken, html.SelfClosingTagToken:
			raw := append([]byte(nil), z.Raw()...)
			name, _ := z.TagName()
			tag := string(name)
			if reason := checkStartTag(raw); reason != "" {
				return fail("%s in <%s>", reason, tag)
			}
			if voidElements[tag] {
				continue
			}
			if tt == html.SelfClosingTagToken {
				if !inForeignContent(open) {
					return fail("self-closing syntax on non-void element <%s/>", tag)
				}
				continue
			}
			open = append(open, tag)

		case html.CommentToken:
			// The tokenizer turns "</>", "<?...>" and other bogus markup
			// into comments.
			if !bytes.HasPrefix(z.Raw(), []byte("<!--")) {
				return fail("malformed markup %q", z.Raw())
			}

		case html.EndTagToken:
			raw := z.Raw()
			name, _ := z.TagName()
			tag := string(name)
			if !endTagPattern.Match(raw) {
				return fail("malformed end tag %q", raw)
			}
			if voidElements[tag] {
				return fail("end tag for void element </%s>", tag)
			}
			if len(open) == 0 {
				return fail("unexpected </%s>", tag)
			}
			if top := open[len(open)-1]; top != tag {
				return fail("</%s> closes <%s>", tag, top)
			}
			open = open[:len(open)-1]
		}
	}
}

func inForeignContent(open []string) bool {
	for _, tag := range open {
		if tag == "svg" || tag == "math" {
			return true
		}
	}
	return false
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\f' || c == '\r'
}

// checkStartTag scans the raw bytes of a start tag and describes the first
// attribute syntax error the tokenizer would otherwise repair, or returns "".
func checkStartTag(raw []byte) string {
	i := 1
	for i < len(raw) && !isSpace(raw[i]) && raw[i] != '/' && raw[i] != '>' {
		i++
	}

	for {
		spaced := false
		for i < len(raw) && isSpace(raw[i]) {
			i++
			spaced = true
		}
		if i >= len(raw) {
			return "unterminated tag"
		}
		switch raw[i] {
		case '>':
			return ""
		case '/':
			if i+1 < len(raw) && raw[i+1] == '>' {
				return ""
			}
			return "unexpected '/'"
		}
		if !spaced {
			return "missing whitespace between attributes"
		}

		start := i
		for i < len(raw) && !isSpace(raw[i]) && raw[i] != '/' && raw[i] != '>' && (raw[i] != '=' || i == start) {
			i++
		}
		key := raw[start:i]
		if bytes.ContainsAny(key, "\"'<") || key[0] == '=' {
			return fmt.Sprintf("invalid attribute name %q", key)
		}

		j := i
		for j < len(raw) && isSpace(raw[j]) {
			j++
		}
		if j >= len(raw) || raw[j] != '=' {
			continue
		}
		i = j + 1
		for i < len(raw) && isSpace(raw[i]) {
			i++
		}
		if i >= len(raw) || raw[i] == '>' {
			return fmt.Sprintf("missing value for attribute %q", key)
		}

		if q := raw[i]; q == '"' || q == '\'' {
			end := bytes.IndexByte(raw[i+1:], q)
			if end < 0 {
				return fmt.Sprintf("unterminated value for attribute %q", key)
			}
			i += end + 2
			if i < len(raw) && !isSpace(raw[i]) && raw[i] != '>' && raw[i] != '/' {
				return "missing whitespace between attributes"
			}
			continue
		}

		start = i
		for i < len(raw) && !isSpace(raw[i]) && raw[i] != '>' {
			i++
		}
		if bytes.ContainsAny(raw[start:i], "\"'=<`") {
			return fmt.Sprintf("invalid unquoted value for attribute %q", key)
		}
	}
}
