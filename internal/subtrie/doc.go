// Package subtrie routes inbound Emitter topics to subscription handlers.
//
// A Trie is a prefix tree over "/"-delimited topic segments. Empty segments
// are dropped, so "a/b", "/a/b/" and "a//b" address the same node.
//
// # Wildcards
//
// The segment "+" matches any single segment at lookup time. It is stored as
// an ordinary key on insert and delete, so deleting "a/+/c" removes only the
// handler registered literally at "a/+/c".
//
// There is no multi-level wildcard.
//
// # Matching
//
// Lookup returns the handler of every node entered while walking the topic,
// not only the node at full depth. Given handlers at "a" and "a/b/c",
// looking up "a/b/c" yields both, in pre-order, with the exact branch ahead
// of the wildcard branch at every depth:
//
//	t := subtrie.New[string]()
//	t.Insert("a/", "h1")
//	t.Insert("a/b/c/", "h2")
//	t.Insert("a/+/c/", "h3")
//	t.Lookup("a/b/c") // [h1 h2 h3]
//
// # Thread Safety
//
// A Trie has no internal locking. Callers that insert or delete while other
// goroutines look up must guard all three operations with one lock.
package subtrie
