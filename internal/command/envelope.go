package command

import (
	"fmt"

	"github.com/danmuck/netcore/internal/protocol"
	"github.com/danmuck/netcore/internal/protocol/value"
)

// Envelope entry names.
const (
	FieldCommand = "command"
	FieldArgs    = "args"
	FieldID      = "id"
	FieldResult  = "result"
	FieldError   = "error"
)

var ErrInvalidEnvelope = fmt.Errorf("%w: command: invalid envelope", protocol.ErrDecode)

// Request is a decoded command envelope.
type Request struct {
	Name    string
	Args    []value.Value
	ID      value.Value
	HasID   bool
	Payload *value.Map
}

// NewRequest builds {command, args, id}. Args must share one tag; with no
// args the entry is an empty string array. A zero id omits the id entry.
func NewRequest(name string, id uint64, args ...value.Value) (*value.Map, error) {
	m := value.NewMap()
	m.SetString(FieldCommand, name)
	elem := value.TagString
	if len(args) > 0 {
		elem = args[0].Tag()
	}
	if err := m.SetArray(FieldArgs, elem, args...); err != nil {
		return nil, fmt.Errorf("command: args: %w", err)
	}
	if id != 0 {
		m.SetUint64(FieldID, id)
	}
	return m, nil
}

// ParseRequest reads the envelope fields of m. ok is false when m has no
// command entry, which marks it as a non-command payload.
func ParseRequest(m *value.Map) (req Request, ok bool, err error) {
	cmd, present := m.Get(FieldCommand)
	if !present {
		return Request{}, false, nil
	}
	req.Payload = m
	req.ID, req.HasID = m.Get(FieldID)
	name, err := cmd.AsString()
	if err != nil {
		return req, true, fmt.Errorf("%w: command entry: %w", ErrInvalidEnvelope, err)
	}
	req.Name = name
	if args, present := m.Get(FieldArgs); present {
		items, _, err := args.AsArray()
		if err != nil {
			return req, true, fmt.Errorf("%w: args entry: %w", ErrInvalidEnvelope, err)
		}
		req.Args = items
	}
	return req, true, nil
}

// Reply is a decoded response envelope.
type Reply struct {
	ID      value.Value
	HasID   bool
	Result  value.Value
	Message string
	IsError bool
}

func NewReply(req Request, result value.Value) *value.Map {
	m := value.NewMap()
	// result maps are owned by the callback; a cycle here cannot involve m
	_ = m.Set(FieldResult, result)
	echoID(m, req)
	return m
}

func NewErrorReply(req Request, msg string) *value.Map {
	m := value.NewMap()
	m.SetString(FieldError, msg)
	echoID(m, req)
	return m
}

func echoID(m *value.Map, req Request) {
	if req.HasID {
		_ = m.Set(FieldID, req.ID)
	}
}

// ParseReply recognizes {result} and {error} envelopes. A map carrying a
// command entry is a request, not a reply.
func ParseReply(m *value.Map) (Reply, bool) {
	if m.Has(FieldCommand) {
		return Reply{}, false
	}
	var r Reply
	r.ID, r.HasID = m.Get(FieldID)
	if msg, ok := value.Get[string](m, FieldError); ok {
		r.Message = msg
		r.IsError = true
		return r, true
	}
	res, ok := m.Get(FieldResult)
	if !ok {
		return Reply{}, false
	}
	r.Result = res
	return r, true
}

// ReplyError is a failure reported by the remote command callback.
type ReplyError struct {
	Command string
	Message string
}

func (e *ReplyError) Error() string {
	if e.Command == "" {
		return "command: remote error: " + e.Message
	}
	return fmt.Sprintf("command: %s: remote error: %s", e.Command, e.Message)
}

func (e *ReplyError) Unwrap() error {
	return protocol.ErrApplication
}
