package emitter

import (
	"strconv"

	"github.com/nerrad567/emitter-go/internal/channel"
)

// QoS levels offered by the broker.
const (
	AtMostOnce  byte = 0
	AtLeastOnce byte = 1
)

// Option adjusts a single publish, subscribe or link request. Options that
// do not apply to an operation are ignored by it.
type Option func(*request)

// request collects the options of one operation.
type request struct {
	ttl    *int
	echo   *bool
	last   *int
	qos    byte
	retain bool
}

func newRequest(opts []Option) request {
	var r request
	for _, opt := range opts {
		if opt != nil {
			opt(&r)
		}
	}
	return r
}

// WithTTL makes the broker store a published message for the given number
// of seconds.
func WithTTL(seconds int) Option {
	return func(r *request) { r.ttl = &seconds }
}

// WithoutEcho stops the broker delivering a published message back to the
// publishing connection.
func WithoutEcho() Option {
	return func(r *request) {
		echo := false
		r.echo = &echo
	}
}

// WithEcho asks the broker to deliver a published message back to the
// publishing connection.
func WithEcho() Option {
	return func(r *request) {
		echo := true
		r.echo = &echo
	}
}

// WithLast replays up to n stored messages when subscribing.
func WithLast(n int) Option {
	return func(r *request) { r.last = &n }
}

// WithAtMostOnce sends with QoS 0.
func WithAtMostOnce() Option {
	return func(r *request) { r.qos = AtMostOnce }
}

// WithAtLeastOnce sends with QoS 1.
func WithAtLeastOnce() Option {
	return func(r *request) { r.qos = AtLeastOnce }
}

// WithRetain marks a published message as retained.
func WithRetain() Option {
	return func(r *request) { r.retain = true }
}

// publishParams returns the channel parameters understood on publish, in
// the order ttl, me.
func (r request) publishParams() []channel.Param {
	var params []channel.Param
	if r.ttl != nil {
		params = append(params, channel.Param{Name: channel.ParamTTL, Value: strconv.Itoa(*r.ttl)})
	}
	if r.echo != nil {
		me := "0"
		if *r.echo {
			me = "1"
		}
		params = append(params, channel.Param{Name: channel.ParamMe, Value: me})
	}
	return params
}

// subscribeParams returns the channel parameters understood on subscribe.
func (r request) subscribeParams() []channel.Param {
	if r.last == nil {
		return nil
	}
	return []channel.Param{{Name: channel.ParamLast, Value: strconv.Itoa(*r.last)}}
}
