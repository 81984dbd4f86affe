package subtrie

import (
	"sort"
	"strings"
)

// Wildcard is the segment that matches any single segment during Lookup.
const Wildcard = "+"

// separator delimits topic segments.
const separator = "/"

// Trie maps topic patterns to handlers of type H.
//
// The zero value is not usable; create one with New.
type Trie[H any] struct {
	root  *node[H]
	count int
}

// node is one path prefix in the trie.
//
// parent is only followed when pruning after a delete.
type node[H any] struct {
	parent     *node[H]
	word       string
	children   map[string]*node[H]
	handler    H
	hasHandler bool
}

func newNode[H any](parent *node[H], word string) *node[H] {
	return &node[H]{
		parent:   parent,
		word:     word,
		children: make(map[string]*node[H]),
	}
}

// retained reports whether the node still has a reason to exist.
func (n *node[H]) retained() bool {
	return n.hasHandler || len(n.children) > 0
}

// New creates an empty Trie.
func New[H any]() *Trie[H] {
	return &Trie[H]{root: newNode[H](nil, "")}
}

// Segments splits a topic into its non-empty "/"-delimited segments.
func Segments(topic string) []string {
	return strings.FieldsFunc(topic, func(r rune) bool { return r == '/' })
}

// Insert registers handler at topic, replacing any handler already stored
// at that exact path. Missing nodes are created along the way.
//
// A topic with no segments is ignored: the root never holds a handler.
func (t *Trie[H]) Insert(topic string, handler H) {
	words := Segments(topic)
	if len(words) == 0 {
		return
	}

	cur := t.root
	for _, word := range words {
		child, ok := cur.children[word]
		if !ok {
			child = newNode(cur, word)
			cur.children[word] = child
		}
		cur = child
	}

	if !cur.hasHandler {
		t.count++
	}
	cur.handler = handler
	cur.hasHandler = true
}

// Lookup returns the handlers matching topic in deterministic order.
//
// At each depth the literal child is explored before the "+" child, and a
// node's own handler precedes those of its descendants. The result is empty
// when nothing matches or topic has no segments.
func (t *Trie[H]) Lookup(topic string) []H {
	route := Segments(topic)
	if len(route) == 0 {
		return []H{}
	}
	return t.lookup(route, t.root.children, []H{})
}

func (t *Trie[H]) lookup(route []string, children map[string]*node[H], acc []H) []H {
	if len(route) == 0 {
		return acc
	}

	if child, ok := children[route[0]]; ok {
		acc = collect(child, acc)
		acc = t.lookup(route[1:], child.children, acc)
	}

	// A literal "+" in the route already selected the wildcard node above.
	if route[0] == Wildcard {
		return acc
	}

	if child, ok := children[Wildcard]; ok {
		acc = collect(child, acc)
		acc = t.lookup(route[1:], child.children, acc)
	}

	return acc
}

func collect[H any](n *node[H], acc []H) []H {
	if n.hasHandler {
		acc = append(acc, n.handler)
	}
	return acc
}

// Get returns the handler stored at exactly topic. Wildcard segments are
// matched literally.
func (t *Trie[H]) Get(topic string) (H, bool) {
	var zero H
	words := Segments(topic)
	if len(words) == 0 {
		return zero, false
	}

	cur := t.root
	for _, word := range words {
		child, ok := cur.children[word]
		if !ok {
			return zero, false
		}
		cur = child
	}
	if !cur.hasHandler {
		return zero, false
	}
	return cur.handler, true
}

// Delete clears the handler stored at exactly topic and prunes branches
// left without handlers or children. Wildcard segments are matched
// literally. It reports whether a handler was removed.
//
// Deleting a path that does not exist, or a topic with no segments, is a
// no-op.
func (t *Trie[H]) Delete(topic string) bool {
	words := Segments(topic)
	if len(words) == 0 {
		return false
	}

	cur := t.root
	for _, word := range words {
		child, ok := cur.children[word]
		if !ok {
			return false
		}
		cur = child
	}

	removed := cur.hasHandler
	if removed {
		t.count--
	}
	var zero H
	cur.handler = zero
	cur.hasHandler = false

	for cur != t.root && !cur.retained() {
		delete(cur.parent.children, cur.word)
		cur = cur.parent
	}

	return removed
}

// Len returns the number of stored handlers.
func (t *Trie[H]) Len() int {
	return t.count
}

// Patterns returns every path holding a handler, sorted, with segments
// joined by "/".
func (t *Trie[H]) Patterns() []string {
	patterns := make([]string, 0, t.count)
	var walk func(n *node[H], prefix []string)
	walk = func(n *node[H], prefix []string) {
		if n.hasHandler {
			patterns = append(patterns, strings.Join(prefix, separator))
		}
		for word, child := range n.children {
			walk(child, append(prefix[:len(prefix):len(prefix)], word))
		}
	}
	walk(t.root, nil)

	sort.Strings(patterns)
	return patterns
}
