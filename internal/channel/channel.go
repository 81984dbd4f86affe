// Package channel builds and parses Emitter channel strings.
//
// An Emitter MQTT topic carries the channel key, the channel path and
// optional request parameters in one string:
//
//	<key>/<channel>/?ttl=30&me=0
//	<key>/$share/<group>/<channel>/
//
// Channels created through a link have no key prefix.
package channel

import (
	"net/url"
	"strings"
)

// System channel prefixes used by the Emitter broker for request/response
// traffic. Inbound topics starting with these are not user messages.
const (
	PrefixKeygen   = "emitter/keygen"
	PrefixPresence = "emitter/presence"
	PrefixLink     = "emitter/link"
	PrefixMe       = "emitter/me"
	PrefixError    = "emitter/error"
)

// Request parameter names understood by the broker.
const (
	ParamTTL  = "ttl"
	ParamMe   = "me"
	ParamLast = "last"
)

// sharePrefix marks a share-group subscription.
const sharePrefix = "$share"

// Param is one query-string option appended to a channel.
type Param struct {
	Name  string
	Value string
}

// Channel is a parsed channel string.
type Channel struct {
	// Path is the channel without leading slash, with a trailing slash.
	Path string

	// Params holds the query-string options in the order they appeared.
	Params []Param
}

// Get returns the value of the named parameter and whether it was present.
func (c Channel) Get(name string) (string, bool) {
	for _, p := range c.Params {
		if p.Name == name {
			return p.Value, true
		}
	}
	return "", false
}

// Format prefixes channel with key, ensures a trailing slash and appends
// params as a query string in the given order.
//
// An empty key yields an unprefixed channel, as used by links.
//
//	Format("K", "test")                    // "K/test/"
//	Format("K/", "test/", Param{"ttl","5"}) // "K/test/?ttl=5"
func Format(key, channel string, params ...Param) string {
	var b strings.Builder

	if key != "" {
		b.WriteString(key)
		if !strings.HasSuffix(key, "/") {
			b.WriteByte('/')
		}
	}
	b.WriteString(channel)

	formatted := b.String()
	if !strings.HasSuffix(formatted, "/") {
		formatted += "/"
	}

	if q := encode(params); q != "" {
		formatted += "?" + q
	}
	return formatted
}

// FormatShare builds the topic for subscribing channel as part of a share
// group. Messages on the channel are load-balanced across group members.
func FormatShare(key, channel, group string, params ...Param) string {
	return Format(key, sharePrefix+"/"+group+"/"+strings.TrimPrefix(channel, "/"), params...)
}

// Parse splits a channel string into its path and parameters.
//
// Parse does not strip a key prefix: the broker delivers messages on the
// bare channel, so inbound topics never carry one.
func Parse(s string) Channel {
	path, query, _ := strings.Cut(s, "?")

	path = strings.TrimLeft(path, "/")
	if path != "" && !strings.HasSuffix(path, "/") {
		path += "/"
	}

	return Channel{
		Path:   path,
		Params: decode(query),
	}
}

// IsSystem reports whether topic belongs to one of the broker's system
// channels.
func IsSystem(topic string) bool {
	return strings.HasPrefix(topic, "emitter/")
}

func encode(params []Param) string {
	parts := make([]string, 0, len(params))
	for _, p := range params {
		if p.Name == "" {
			continue
		}
		parts = append(parts, url.QueryEscape(p.Name)+"="+url.QueryEscape(p.Value))
	}
	return strings.Join(parts, "&")
}

func decode(query string) []Param {
	if query == "" {
		return nil
	}

	var params []Param
	for _, part := range strings.Split(query, "&") {
		if part == "" {
			continue
		}
		name, value, _ := strings.Cut(part, "=")
		if n, err := url.QueryUnescape(name); err == nil {
			name = n
		}
		if v, err := url.QueryUnescape(value); err == nil {
			value = v
		}
		params = append(params, Param{Name: name, Value: value})
	}
	return params
}
