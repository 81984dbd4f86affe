package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/nerrad567/emitter-go/internal/emitter"
	"github.com/nerrad567/emitter-go/internal/keystore"
)

// defaultReplyTimeout bounds how long request commands wait for the broker.
const defaultReplyTimeout = 10 * time.Second

// newFlagSet creates a subcommand flag set that reports errors instead of exiting.
func newFlagSet(a *app, name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.out)
	return fs
}

func parseFlags(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}
	return nil
}

func requireFlag(fs *flag.FlagSet, name, value string) error {
	if value == "" {
		return fmt.Errorf("%w: %s: -%s is required", errUsage, fs.Name(), name)
	}
	return nil
}

// printJSON writes v as indented JSON followed by a newline.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// publishCommand publishes one message. Without -key the key stored for
// the channel by keygen is used.
func publishCommand(ctx context.Context, a *app, args []string) error {
	var key, ch, message string
	var ttl int
	var noEcho, retain bool

	fs := newFlagSet(a, "publish")
	fs.StringVar(&key, "key", "", "channel key (default: the stored key)")
	fs.StringVar(&ch, "channel", "", "channel to publish to")
	fs.StringVar(&message, "message", "", "message payload")
	fs.IntVar(&ttl, "ttl", 0, "seconds the broker stores the message")
	fs.BoolVar(&noEcho, "noecho", false, "do not deliver the message back to this connection")
	fs.BoolVar(&retain, "retain", false, "retain the message")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if err := requireFlag(fs, "channel", ch); err != nil {
		return err
	}

	if key == "" {
		db, keys, err := a.openKeyStore(ctx)
		if err != nil {
			return err
		}
		defer db.Close()
		if key, err = resolveKey(ctx, keys, key, ch); err != nil {
			return err
		}
	}

	opts := []emitter.Option{qosOption(a.cfg.Emitter.QoS)}
	if ttl > 0 {
		opts = append(opts, emitter.WithTTL(ttl))
	}
	if noEcho {
		opts = append(opts, emitter.WithoutEcho())
	}
	if retain {
		opts = append(opts, emitter.WithRetain())
	}

	client, err := a.connect()
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.Publish(key, ch, []byte(message), opts...); err != nil {
		return fmt.Errorf("publishing to %s: %w", ch, err)
	}
	a.log.Info("message published", "channel", ch, "bytes", len(message))
	return nil
}

// keygenCommand requests a channel key with a master key and stores it.
func keygenCommand(ctx context.Context, a *app, args []string) error {
	var req emitter.KeygenRequest
	var timeout time.Duration
	var save bool

	fs := newFlagSet(a, "keygen")
	fs.StringVar(&req.Key, "key", "", "master (secret) key")
	fs.StringVar(&req.Channel, "channel", "", "channel the key grants access to")
	fs.StringVar(&req.Type, "type", "rw", "access flags: r, w, s, p, e, x")
	fs.IntVar(&req.TTL, "ttl", 0, "key lifetime in seconds, 0 for none")
	fs.DurationVar(&timeout, "timeout", defaultReplyTimeout, "how long to wait for the broker")
	fs.BoolVar(&save, "save", true, "store the key for publish and listen")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if err := requireFlag(fs, "key", req.Key); err != nil {
		return err
	}
	if err := requireFlag(fs, "channel", req.Channel); err != nil {
		return err
	}

	client, err := a.connect()
	if err != nil {
		return err
	}
	defer client.Close()

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := client.Keygen(reqCtx, req)
	if err != nil {
		return err
	}

	if save {
		db, keys, err := a.openKeyStore(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := keys.Save(ctx, keystore.ChannelKey{
			Channel: resp.Channel,
			Key:     resp.Key,
			Type:    req.Type,
			TTL:     req.TTL,
		}); err != nil {
			return fmt.Errorf("storing key: %w", err)
		}
		a.log.Info("channel key stored", "channel", resp.Channel, "path", a.cfg.Database.Path)
	}

	return printJSON(a.out, resp)
}

// presenceCommand prints the subscribers of a channel. With -changes it
// keeps printing join and leave events until interrupted.
func presenceCommand(ctx context.Context, a *app, args []string) error {
	var key, ch string
	var changes bool
	var timeout time.Duration

	fs := newFlagSet(a, "presence")
	fs.StringVar(&key, "key", "", "channel key (default: the stored key)")
	fs.StringVar(&ch, "channel", "", "channel to query")
	fs.BoolVar(&changes, "changes", false, "keep printing subscribe and unsubscribe events")
	fs.DurationVar(&timeout, "timeout", defaultReplyTimeout, "how long to wait for the status reply")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if err := requireFlag(fs, "channel", ch); err != nil {
		return err
	}

	if key == "" {
		db, keys, err := a.openKeyStore(ctx)
		if err != nil {
			return err
		}
		defer db.Close()
		if key, err = resolveKey(ctx, keys, key, ch); err != nil {
			return err
		}
	}

	client, err := a.connect()
	if err != nil {
		return err
	}
	defer client.Close()

	events := make(chan emitter.PresenceEvent, 16)
	client.OnPresence(func(ev emitter.PresenceEvent) {
		select {
		case events <- ev:
		default:
			a.log.Warn("presence event dropped", "channel", ev.Channel)
		}
	})
	replies := watchErrors(client)

	if err := client.Presence(key, ch, true, changes); err != nil {
		return err
	}

	waitCtx := ctx
	if !changes {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	for {
		select {
		case ev := <-events:
			if err := printJSON(a.out, ev); err != nil {
				return err
			}
			if !changes {
				return nil
			}
		case err := <-replies:
			return err
		case <-waitCtx.Done():
			if changes && ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("waiting for presence reply: %w", waitCtx.Err())
		}
	}
}

// linkCommand creates a short link to a channel and prints the reply.
func linkCommand(ctx context.Context, a *app, args []string) error {
	var req emitter.LinkRequest
	var ttl int
	var noEcho bool
	var timeout time.Duration

	fs := newFlagSet(a, "link")
	fs.StringVar(&req.Key, "key", "", "channel key (default: the stored key)")
	fs.StringVar(&req.Channel, "channel", "", "channel to link")
	fs.StringVar(&req.Name, "name", "", "two-character link name")
	fs.BoolVar(&req.Private, "private", false, "create a link usable only by this connection")
	fs.BoolVar(&req.Subscribe, "subscribe", false, "also subscribe to the channel")
	fs.IntVar(&ttl, "ttl", 0, "ttl applied to messages published through the link")
	fs.BoolVar(&noEcho, "noecho", false, "do not echo messages published through the link")
	fs.DurationVar(&timeout, "timeout", defaultReplyTimeout, "how long to wait for the broker")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if err := requireFlag(fs, "channel", req.Channel); err != nil {
		return err
	}
	if err := requireFlag(fs, "name", req.Name); err != nil {
		return err
	}

	if req.Key == "" {
		db, keys, err := a.openKeyStore(ctx)
		if err != nil {
			return err
		}
		defer db.Close()
		if req.Key, err = resolveKey(ctx, keys, req.Key, req.Channel); err != nil {
			return err
		}
	}

	var opts []emitter.Option
	if ttl > 0 {
		opts = append(opts, emitter.WithTTL(ttl))
	}
	if noEcho {
		opts = append(opts, emitter.WithoutEcho())
	}

	client, err := a.connect()
	if err != nil {
		return err
	}
	defer client.Close()

	links := make(chan emitter.LinkResponse, 1)
	client.OnLink(func(resp emitter.LinkResponse) {
		select {
		case links <- resp:
		default:
		}
	})
	replies := watchErrors(client)

	if err := client.Link(req, opts...); err != nil {
		return err
	}
	return awaitReply(ctx, a, timeout, links, replies)
}

// meCommand prints the broker's view of this connection.
func meCommand(ctx context.Context, a *app, args []string) error {
	var timeout time.Duration

	fs := newFlagSet(a, "me")
	fs.DurationVar(&timeout, "timeout", defaultReplyTimeout, "how long to wait for the broker")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	client, err := a.connect()
	if err != nil {
		return err
	}
	defer client.Close()

	replies := make(chan emitter.MeResponse, 1)
	client.OnMe(func(resp emitter.MeResponse) {
		select {
		case replies <- resp:
		default:
		}
	})
	errs := watchErrors(client)

	if err := client.Me(); err != nil {
		return err
	}
	return awaitReply(ctx, a, timeout, replies, errs)
}

// watchErrors forwards the first broker error reply.
func watchErrors(client *emitter.Client) <-chan error {
	errs := make(chan error, 1)
	client.OnError(func(resp emitter.ErrorResponse) {
		select {
		case errs <- &resp:
		default:
		}
	})
	return errs
}

// awaitReply prints the first reply, or fails on a broker error or timeout.
func awaitReply[T any](ctx context.Context, a *app, timeout time.Duration, replies <-chan T, errs <-chan error) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	select {
	case resp := <-replies:
		return printJSON(a.out, resp)
	case err := <-errs:
		return err
	case <-ctx.Done():
		return fmt.Errorf("waiting for broker reply: %w", ctx.Err())
	}
}
