package auth

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"

	"github.com/danmuck/netcore/internal/command"
	"github.com/danmuck/netcore/internal/pipeline"
	"github.com/danmuck/netcore/internal/protocol/value"
	"github.com/danmuck/netcore/internal/testutil/testlog"
)

type fakePeer struct {
	mu     sync.Mutex
	tags   map[string]any
	sent   []*value.Map
	closed bool
}

func newFakePeer() *fakePeer { return &fakePeer{tags: map[string]any{}} }

func (p *fakePeer) ID() string           { return "peer" }
func (p *fakePeer) Transport() string    { return "tcp" }
func (p *fakePeer) Role() pipeline.Role  { return pipeline.RoleServer }
func (p *fakePeer) RemoteAddr() net.Addr { return &net.TCPAddr{} }
func (p *fakePeer) Group() string        { return "default" }

func (p *fakePeer) Tag(k string) (any, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.tags[k]
	return v, ok
}

func (p *fakePeer) SetTag(k string, v any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tags[k] = v
}

func (p *fakePeer) Send(_ context.Context, b []byte) error {
	m, err := value.Unmarshal(b)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, m)
	return nil
}

func (p *fakePeer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func TestStaticTokenValidate(t *testing.T) {
	testlog.Start(t)
	tests := []struct {
		name    string
		stored  string
		input   string
		wantErr error
	}{
		{name: "empty token denied", stored: "", input: "abc", wantErr: ErrUnauthorized},
		{name: "mismatched token denied", stored: "abc", input: "xyz", wantErr: ErrUnauthorized},
		{name: "matching token allowed", stored: "abc", input: "abc", wantErr: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := StaticToken{Token: tt.stored}.Validate(tt.input)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("got %v want %v", err, tt.wantErr)
			}
		})
	}
}

func TestGateAdmitsAfterToken(t *testing.T) {
	testlog.Start(t)
	g := NewGate(StaticToken{Token: "s3cret"}, 0, 0)
	peer := newFakePeer()

	if _, v := g.OnReceive(peer, []byte("early")); v != pipeline.Drop {
		t.Fatalf("unauthenticated payload passed")
	}
	tok, err := TokenPayload("s3cret")
	if err != nil {
		t.Fatalf("token payload: %v", err)
	}
	if _, v := g.OnReceive(peer, tok); v != pipeline.Drop {
		t.Fatalf("token payload should be consumed")
	}
	if !Authenticated(peer) {
		t.Fatalf("peer not marked authenticated")
	}
	out, v := g.OnReceive(peer, []byte("later"))
	if v != pipeline.Continue || string(out) != "later" {
		t.Fatalf("authenticated payload blocked: %q %v", out, v)
	}

	if len(peer.sent) != 2 {
		t.Fatalf("replies: %d", len(peer.sent))
	}
	if rep, ok := command.ParseReply(peer.sent[0]); !ok || !rep.IsError {
		t.Fatalf("first reply should be an error: %v", peer.sent[0])
	}
	if got, _ := value.Get[string](peer.sent[1], command.FieldResult); got != "authenticated" {
		t.Fatalf("second reply: %v", peer.sent[1])
	}
}

func TestGateClosesAfterRepeatedFailures(t *testing.T) {
	testlog.Start(t)
	g := NewGate(StaticToken{Token: "s3cret"}, 0, 2)
	peer := newFakePeer()
	bad, _ := TokenPayload("wrong")

	g.OnReceive(peer, bad)
	if peer.closed {
		t.Fatalf("closed after one failure")
	}
	g.OnReceive(peer, bad)
	if !peer.closed {
		t.Fatalf("expected close after two failures")
	}
}
