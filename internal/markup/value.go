package markup

import (
	"fmt"
	"reflect"

	"golang.org/x/net/html"
)

// Kind identifies how a substitution is resolved.
type Kind int

const (
	KindNullish Kind = iota
	KindBoolean
	KindText
	KindNode
	KindNodeList
	KindOther
)

func (k Kind) String() string {
	switch k {
	case KindNullish:
		return "nullish"
	case KindBoolean:
		return "boolean"
	case KindText:
		return "text"
	case KindNode:
		return "node"
	case KindNodeList:
		return "node list"
	case KindOther:
		return "other"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Value is a classified substitution. The zero Value is nullish.
type Value struct {
	kind  Kind
	text  string
	nodes []*html.Node
	err   error
}

func (v Value) Kind() Kind { return v.kind }

// Null renders as the empty string.
func Null() Value { return Value{kind: KindNullish} }

// Bool renders as the empty string whatever its value, which lets callers
// write `cond && node` style conditionals as Classify(cond) or a node.
func Bool(bool) Value { return Value{kind: KindBoolean} }

// Text is escaped before insertion.
func Text(s string) Value { return Value{kind: KindText, text: s} }

// Verbatim is inserted as-is. Never pass user input.
func Verbatim(s string) Value { return Value{kind: KindOther, text: s} }

// Node splices n into the result without copying it. A nil node is nullish.
func Node(n *html.Node) Value {
	if n == nil {
		return Null()
	}
	return Value{kind: KindNode, nodes: []*html.Node{n}}
}

// Nodes splices every node, in order. An empty list is nullish; a nil
// element makes the value invalid and rendering fails.
func Nodes(nodes ...*html.Node) Value {
	if len(nodes) == 0 {
		return Null()
	}
	for i, n := range nodes {
		if n == nil {
			return Value{kind: KindNodeList, err: fmt.Errorf("markup: node list element %d is nil", i)}
		}
	}
	return Value{kind: KindNodeList, nodes: append([]*html.Node(nil), nodes...)}
}

// Classify maps an arbitrary Go value onto exactly one Kind.
func Classify(v any) Value {
	switch x := v.(type) {
	case nil:
		return Null()
	case Value:
		return x
	case string:
		return Text(x)
	case bool:
		return Bool(x)
	case *html.Node:
		return Node(x)
	case []*html.Node:
		return Nodes(x...)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		if rv.IsNil() {
			return Null()
		}
	case reflect.String:
		return Text(rv.String())
	case reflect.Bool:
		return Bool(rv.Bool())
	}
	return Verbatim(fmt.Sprint(v))
}
