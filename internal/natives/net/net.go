// Package net exposes WebSocket transport to vela scripts, grounded on
// the teacher's internal/network websocket wrapper but trimmed to the
// synchronous call/return shape spec.md's native-function contract
// requires (natives run briefly and return synchronously, section 5).
package net

import (
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"vela/internal/value"
	"vela/internal/vm"
)

var conns = map[string]*websocket.Conn{}

// Register installs ws_connect, ws_send, ws_recv, and ws_close as vela
// globals.
func Register(v *vm.VM) {
	v.Register("ws_connect", 1, func(args []value.Value) (value.Value, error) {
		url, err := stringArg(args, 0, "ws_connect")
		if err != nil {
			return value.Nil(), err
		}
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		if err != nil {
			return value.Nil(), errors.Wrap(err, "ws_connect")
		}
		handle := url
		conns[handle] = conn
		return value.FromObject(v.Heap().InternString(handle)), nil
	})

	v.Register("ws_send", 2, func(args []value.Value) (value.Value, error) {
		conn, err := connArg(args, 0)
		if err != nil {
			return value.Nil(), err
		}
		msg, err := stringArg(args, 1, "ws_send")
		if err != nil {
			return value.Nil(), err
		}
		if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
			return value.Nil(), errors.Wrap(err, "ws_send")
		}
		return value.Nil(), nil
	})

	v.Register("ws_recv", 1, func(args []value.Value) (value.Value, error) {
		conn, err := connArg(args, 0)
		if err != nil {
			return value.Nil(), err
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			return value.Nil(), errors.Wrap(err, "ws_recv")
		}
		return value.FromObject(v.Heap().InternString(string(data))), nil
	})

	v.Register("ws_close", 1, func(args []value.Value) (value.Value, error) {
		handle, err := stringArg(args, 0, "ws_close")
		if err != nil {
			return value.Nil(), err
		}
		conn, ok := conns[handle]
		if !ok {
			return value.Nil(), errors.Errorf("unknown websocket handle %q", handle)
		}
		delete(conns, handle)
		if err := conn.Close(); err != nil {
			return value.Nil(), errors.Wrap(err, "ws_close")
		}
		return value.Nil(), nil
	})
}

func connArg(args []value.Value, i int) (*websocket.Conn, error) {
	handle, err := stringArg(args, i, "ws handle")
	if err != nil {
		return nil, err
	}
	c, ok := conns[handle]
	if !ok {
		return nil, errors.Errorf("unknown websocket handle %q", handle)
	}
	return c, nil
}

func stringArg(args []value.Value, i int, who string) (string, error) {
	if i >= len(args) || !args[i].IsObject() {
		return "", errors.Errorf("%s: argument %d must be a string", who, i)
	}
	s, ok := args[i].AsObject().(*value.StringObj)
	if !ok {
		return "", errors.Errorf("%s: argument %d must be a string", who, i)
	}
	return s.Chars, nil
}
