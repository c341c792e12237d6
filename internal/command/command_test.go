package command

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"

	"github.com/danmuck/netcore/internal/pipeline"
	"github.com/danmuck/netcore/internal/protocol"
	"github.com/danmuck/netcore/internal/protocol/value"
	"github.com/danmuck/netcore/internal/testutil/testlog"
)

type recordingPeer struct {
	mu   sync.Mutex
	sent [][]byte
}

func (p *recordingPeer) ID() string          { return "peer-1" }
func (p *recordingPeer) Transport() string   { return "tcp" }
func (p *recordingPeer) Role() pipeline.Role { return pipeline.RoleServer }
func (p *recordingPeer) RemoteAddr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 9}
}
func (p *recordingPeer) Group() string          { return "default" }
func (p *recordingPeer) Tag(string) (any, bool) { return nil, false }
func (p *recordingPeer) SetTag(string, any)     {}
func (p *recordingPeer) Close() error           { return nil }
func (p *recordingPeer) Send(_ context.Context, b []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, append([]byte(nil), b...))
	return nil
}

func (p *recordingPeer) lastReply(t *testing.T) *value.Map {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.sent) == 0 {
		t.Fatalf("no reply sent")
	}
	m, err := value.Unmarshal(p.sent[len(p.sent)-1])
	if err != nil {
		t.Fatalf("decode reply: %v", err)
	}
	return m
}

func encodeRequest(t *testing.T, name string, id uint64, args ...value.Value) []byte {
	t.Helper()
	m, err := NewRequest(name, id, args...)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	b, err := value.Marshal(m)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

func TestDispatcherEchoReplies(t *testing.T) {
	testlog.Start(t)
	d := NewDispatcher(nil)
	if err := d.Register("echo", func(_ context.Context, call *Call) (value.Value, error) {
		return call.Args[0], nil
	}); err != nil {
		t.Fatalf("register: %v", err)
	}
	peer := &recordingPeer{}
	d.Receive(context.Background(), peer, encodeRequest(t, "Echo", 0, value.String("hello")))

	reply := peer.lastReply(t)
	if got, ok := value.Get[string](reply, FieldResult); !ok || got != "hello" {
		t.Fatalf("reply: %v", reply)
	}
	if reply.Has(FieldID) {
		t.Fatalf("id echoed for id-less request")
	}
}

func TestDispatcherEchoesID(t *testing.T) {
	testlog.Start(t)
	d := NewDispatcher(nil)
	_ = d.Register("ping", func(context.Context, *Call) (value.Value, error) {
		return value.String("pong"), nil
	})
	peer := &recordingPeer{}
	d.Receive(context.Background(), peer, encodeRequest(t, "ping", 42))

	reply := peer.lastReply(t)
	rep, ok := ParseReply(reply)
	if !ok || !rep.HasID {
		t.Fatalf("reply missing id: %v", reply)
	}
	if id, err := rep.ID.AsUint64(); err != nil || id != 42 {
		t.Fatalf("id: %v %v", rep.ID, err)
	}
}

func TestDispatcherErrors(t *testing.T) {
	testlog.Start(t)
	d := NewDispatcher(nil)
	_ = d.Register("fail", func(context.Context, *Call) (value.Value, error) {
		return value.Value{}, errors.New("boom")
	})
	_ = d.Register("panic", func(context.Context, *Call) (value.Value, error) {
		panic("bad callback")
	})
	peer := &recordingPeer{}

	cases := map[string]string{
		"missing": "unknown command: missing",
		"fail":    "boom",
	}
	for name, want := range cases {
		d.Receive(context.Background(), peer, encodeRequest(t, name, 1))
		rep, ok := ParseReply(peer.lastReply(t))
		if !ok || !rep.IsError || rep.Message != want {
			t.Fatalf("%s: got %+v want %q", name, rep, want)
		}
	}

	d.Receive(context.Background(), peer, encodeRequest(t, "panic", 1))
	rep, _ := ParseReply(peer.lastReply(t))
	if !rep.IsError {
		t.Fatalf("panic not reported as error")
	}

	_, err := d.Dispatch(context.Background(), peer, Request{Name: "missing"})
	if !errors.Is(err, ErrUnknownCommand) || !errors.Is(err, protocol.ErrApplication) {
		t.Fatalf("dispatch unknown: %v", err)
	}
}

func TestDispatcherFallback(t *testing.T) {
	testlog.Start(t)
	var got [][]byte
	fallback := receiverFunc(func(_ context.Context, _ pipeline.Peer, p []byte) {
		got = append(got, p)
	})
	d := NewDispatcher(fallback)
	peer := &recordingPeer{}

	d.Receive(context.Background(), peer, []byte("raw bytes"))
	m := value.NewMap()
	m.SetString("note", "no command")
	b, _ := value.Marshal(m)
	d.Receive(context.Background(), peer, b)

	if len(got) != 2 {
		t.Fatalf("fallback calls: %d", len(got))
	}
	if len(peer.sent) != 0 {
		t.Fatalf("replied to non-command payloads")
	}
}

func TestInvalidEnvelopeReplies(t *testing.T) {
	testlog.Start(t)
	d := NewDispatcher(nil)
	m := value.NewMap()
	m.SetInt32(FieldCommand, 5)
	b, _ := value.Marshal(m)
	peer := &recordingPeer{}
	d.Receive(context.Background(), peer, b)
	rep, ok := ParseReply(peer.lastReply(t))
	if !ok || !rep.IsError {
		t.Fatalf("expected error reply, got %+v", rep)
	}
}

func TestRegistryReplaceAndNames(t *testing.T) {
	testlog.Start(t)
	r := NewRegistry()
	first := func(context.Context, *Call) (value.Value, error) { return value.Int32(1), nil }
	second := func(context.Context, *Call) (value.Value, error) { return value.Int32(2), nil }
	_ = r.Register("Echo", first)
	_ = r.Register("echo", second)
	_ = r.Register("ping", first)

	fn, ok := r.Resolve("ECHO")
	if !ok {
		t.Fatalf("resolve failed")
	}
	v, _ := fn(context.Background(), nil)
	if n, _ := v.AsInt32(); n != 2 {
		t.Fatalf("last registration did not win: %v", v)
	}
	if names := r.Names(); len(names) != 2 || names[0] != "echo" || names[1] != "ping" {
		t.Fatalf("names: %v", names)
	}
	if err := r.Register("  ", first); !errors.Is(err, ErrInvalidName) {
		t.Fatalf("blank name: %v", err)
	}
	if err := r.Register("x", nil); !errors.Is(err, ErrNilHandler) {
		t.Fatalf("nil handler: %v", err)
	}
	if !r.Unregister("PING") || r.Unregister("ping") {
		t.Fatalf("unregister")
	}
}

func TestRequestArgsMustShareTag(t *testing.T) {
	testlog.Start(t)
	if _, err := NewRequest("mix", 0, value.Int32(1), value.String("x")); err == nil {
		t.Fatalf("expected mixed args to fail")
	}
	m, err := NewRequest("sum", 3, value.Int32(1), value.Int32(2))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req, ok, err := ParseRequest(m)
	if !ok || err != nil || req.Name != "sum" || len(req.Args) != 2 || !req.HasID {
		t.Fatalf("parse: %+v ok=%v err=%v", req, ok, err)
	}
}

func TestRequestWithoutArgsCarriesEmptyArray(t *testing.T) {
	testlog.Start(t)
	m, err := NewRequest("ping", 0)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	args, ok := m.Get(FieldArgs)
	if !ok {
		t.Fatalf("args entry missing")
	}
	items, elem, err := args.AsArray()
	if err != nil || len(items) != 0 || elem != value.TagString {
		t.Fatalf("args: %d items of %s, err %v", len(items), elem, err)
	}
	if _, ok := m.Get(FieldID); ok {
		t.Fatalf("zero id must be omitted")
	}
	req, ok, err := ParseRequest(m)
	if !ok || err != nil || req.Name != "ping" || len(req.Args) != 0 || req.HasID {
		t.Fatalf("parse: %+v ok=%v err=%v", req, ok, err)
	}
}

type receiverFunc func(ctx context.Context, peer pipeline.Peer, payload []byte)

func (f receiverFunc) Receive(ctx context.Context, peer pipeline.Peer, payload []byte) {
	f(ctx, peer, payload)
}
