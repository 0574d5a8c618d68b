// Package markup builds render node trees from literal HTML fragments
// combined with substitution values.
//
// A fragment marks each substitution point with {{}}. Text values are
// escaped, booleans and nil render as nothing, nodes are spliced into the
// resulting tree by identity, and anything else is inserted verbatim. Every
// fragment must resolve to exactly one top-level element.
package markup

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Slot is the substitution marker inside a template source.
const Slot = "{{}}"

const placeholderPrefix = "markup-slot:"

type Template struct {
	src   string
	parts []string
}

// Compile splits src on Slot and checks that the literal markup is well
// formed with every slot left empty.
func Compile(src string) (*Template, error) {
	parts := strings.Split(src, Slot)
	if err := checkSyntax(strings.Join(parts, "")); err != nil {
		return nil, err
	}
	return &Template{src: src, parts: parts}, nil
}

// MustCompile is like Compile but panics on error. Use it for templates
// declared at package level.
func MustCompile(src string) *Template {
	t, err := Compile(src)
	if err != nil {
		panic(err)
	}
	return t
}

// Slots reports how many values Render expects.
func (t *Template) Slots() int { return len(t.parts) - 1 }

func (t *Template) String() string { return t.src }

// Element compiles src and renders it with values in one step.
func Element(src string, values ...any) (*html.Node, error) {
	t, err := Compile(src)
	if err != nil {
		return nil, err
	}
	return t.Render(values...)
}

// Render resolves the template against values and returns its single root
// element, detached from any parent. Node values are moved into the tree,
// not copied.
func (t *Template) Render(values ...any) (*html.Node, error) {
	if len(values) != t.Slots() {
		return nil, fmt.Errorf("markup: template has %d slots, got %d values", t.Slots(), len(values))
	}

	nonce := strings.ReplaceAll(uuid.NewString(), "-", "")
	pending := make(map[string][]*html.Node)

	var b strings.Builder
	for i, part := range t.parts {
		b.WriteString(part)
		if i == len(values) {
			break
		}
		v := Classify(values[i])
		if v.err != nil {
			return nil, v.err
		}
		switch v.kind {
		case KindText:
			b.WriteString(Escape(v.text))
		case KindNode, KindNodeList:
			marker := fmt.Sprintf("%s%s:%d", placeholderPrefix, nonce, i)
			pending[marker] = v.nodes
			b.WriteString("<!--" + marker + "-->")
		case KindOther:
			b.WriteString(v.text)
		case KindBoolean, KindNullish:
		}
	}
	src := b.String()

	if err := checkSyntax(src); err != nil {
		return nil, err
	}

	top, err := html.ParseFragment(strings.NewReader(src), &html.Node{
		Type:     html.ElementNode,
		Data:     "body",
		DataAtom: atom.Body,
	})
	if err != nil {
		return nil, &SyntaxError{Reason: err.Error(), Markup: src}
	}

	frag := &html.Node{Type: html.DocumentNode}
	for _, n := range top {
		frag.AppendChild(n)
	}

	if err := splice(frag, pending); err != nil {
		return nil, fmt.Errorf("%w: %s", err, src)
	}

	var roots []*html.Node
	for c := frag.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			roots = append(roots, c)
		}
	}
	if len(roots) != 1 {
		return nil, &StructureError{Count: len(roots), Markup: src}
	}

	root := roots[0]
	frag.RemoveChild(root)
	return root, nil
}

// splice replaces every placeholder comment under root with the nodes it
// stands for. Placeholders are collected before any node is moved so that
// comments inside the substituted nodes are never visited.
func splice(root *html.Node, pending map[string][]*html.Node) error {
	var found []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.CommentNode {
				if _, ok := pending[c.Data]; ok {
					found = append(found, c)
					continue
				}
			}
			walk(c)
		}
	}
	walk(root)

	for _, placeholder := range found {
		for _, n := range pending[placeholder.Data] {
			if n.Parent != nil {
				n.Parent.RemoveChild(n)
			}
			placeholder.Parent.InsertBefore(n, placeholder)
		}
		delete(pending, placeholder.Data)
		placeholder.Parent.RemoveChild(placeholder)
	}

	if len(pending) > 0 {
		return ErrPlacement
	}
	return nil
}
