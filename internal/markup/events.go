package markup

import (
	"sync"

	"golang.org/x/net/html"
)

// EventDispose is dispatched to every node of a subtree by Events.Dispose
// before its handlers are dropped.
const EventDispose = "dispose"

// Handler reacts to an event dispatched on n.
type Handler func(n *html.Node)

// Events associates handlers with nodes by identity. Because templating
// moves nodes rather than copying them, handlers registered before a node is
// spliced into a larger tree keep firing afterwards.
type Events struct {
	mu       sync.Mutex
	handlers map[*html.Node]map[string][]Handler
}

func NewEvents() *Events {
	return &Events{handlers: make(map[*html.Node]map[string][]Handler)}
}

func (e *Events) On(n *html.Node, event string, h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	byEvent, ok := e.handlers[n]
	if !ok {
		byEvent = make(map[string][]Handler)
		e.handlers[n] = byEvent
	}
	byEvent[event] = append(byEvent[event], h)
}

// Dispatch runs the handlers registered for event on n, in registration
// order, and reports how many ran. Handlers run without the lock held so
// they may register or dispatch further events.
func (e *Events) Dispatch(n *html.Node, event string) int {
	e.mu.Lock()
	hs := append([]Handler(nil), e.handlers[n][event]...)
	e.mu.Unlock()

	for _, h := range hs {
		h(n)
	}
	return len(hs)
}

// Dispose dispatches EventDispose to root and all of its descendants, then
// forgets every handler registered on them.
func (e *Events) Dispose(root *html.Node) {
	var nodes []*html.Node
	Walk(root, func(n *html.Node) bool {
		nodes = append(nodes, n)
		return true
	})

	for _, n := range nodes {
		e.Dispatch(n, EventDispose)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for _, n := range nodes {
		delete(e.handlers, n)
	}
}

// Len reports how many nodes currently have handlers.
func (e *Events) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.handlers)
}
