package main

import (
	"context"
	"time"

	"github.com/danmuck/netcore/internal/command"
	"github.com/danmuck/netcore/internal/protocol/value"
)

// registerBuiltins installs the commands every netcorectl server answers.
func registerBuiltins(d *command.Dispatcher) error {
	builtins := map[string]command.HandlerFunc{
		"echo": func(_ context.Context, call *command.Call) (value.Value, error) {
			if len(call.Args) == 0 {
				return value.Null(), nil
			}
			return call.Args[0], nil
		},
		"ping": func(context.Context, *command.Call) (value.Value, error) {
			return value.String("pong"), nil
		},
		"time": func(context.Context, *command.Call) (value.Value, error) {
			return value.Int64(time.Now().UnixMilli()), nil
		},
		"commands": func(context.Context, *command.Call) (value.Value, error) {
			names := d.Registry().Names()
			items := make([]value.Value, 0, len(names))
			for _, n := range names {
				items = append(items, value.String(n))
			}
			return value.ArrayOf(value.TagString, items...)
		},
		"whoami": func(_ context.Context, call *command.Call) (value.Value, error) {
			m := value.NewMap()
			m.SetString("id", call.Peer.ID())
			m.SetString("transport", call.Peer.Transport())
			m.SetString("group", call.Peer.Group())
			if addr := call.Peer.RemoteAddr(); addr != nil {
				m.SetString("remote_addr", addr.String())
			}
			return value.FromMap(m), nil
		},
	}
	for name, fn := range builtins {
		if err := d.Register(name, fn); err != nil {
			return err
		}
	}
	return nil
}
