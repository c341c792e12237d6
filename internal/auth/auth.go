// Package auth holds back traffic from peers until they present a token.
//
// Gate is a pipeline handler: register it on a server with a low priority so
// it runs before anything that acts on payloads. A peer authenticates by
// sending {token: "<secret>"} as a payload; until then every other payload is
// dropped and answered with {error: "unauthorized"}.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"

	"github.com/danmuck/netcore/internal/command"
	"github.com/danmuck/netcore/internal/logging"
	"github.com/danmuck/netcore/internal/pipeline"
	"github.com/danmuck/netcore/internal/protocol/value"
)

var ErrUnauthorized = errors.New("auth: unauthorized")

const (
	FieldToken = "token"

	// TagAuthenticated is set to true on a peer once its token is accepted.
	TagAuthenticated = "auth.ok"
	tagFailures      = "auth.failures"

	DefaultMaxFailures = 3
)

// Validator validates an authentication token.
type Validator interface {
	Validate(token string) error
}

// StaticToken accepts a single shared token.
type StaticToken struct {
	Token string
}

func (s StaticToken) Validate(token string) error {
	if s.Token == "" {
		return ErrUnauthorized
	}
	if subtle.ConstantTimeCompare([]byte(s.Token), []byte(token)) != 1 {
		return ErrUnauthorized
	}
	return nil
}

// FuncValidator adapts a function into a Validator.
type FuncValidator func(token string) error

func (f FuncValidator) Validate(token string) error {
	return f(token)
}

type Gate struct {
	pipeline.Base
	v           Validator
	maxFailures int
}

// NewGate returns a gate at priority prio. A peer is disconnected after
// maxFailures rejected payloads; zero means DefaultMaxFailures and a negative
// value never disconnects.
func NewGate(v Validator, prio, maxFailures int) *Gate {
	if maxFailures == 0 {
		maxFailures = DefaultMaxFailures
	}
	return &Gate{Base: pipeline.Base{Prio: prio}, v: v, maxFailures: maxFailures}
}

func Authenticated(peer pipeline.Peer) bool {
	v, ok := peer.Tag(TagAuthenticated)
	return ok && v == true
}

func (g *Gate) OnReceive(peer pipeline.Peer, payload []byte) ([]byte, pipeline.Verdict) {
	if Authenticated(peer) {
		return payload, pipeline.Continue
	}
	l := logging.For("auth")
	if token, ok := tokenOf(payload); ok && g.v.Validate(token) == nil {
		peer.SetTag(TagAuthenticated, true)
		l.Debug().Str("conn", peer.ID()).Msg("auth.Gate accepted token")
		reply(peer, command.NewReply(command.Request{}, value.String("authenticated")))
		return nil, pipeline.Drop
	}

	failures := 1
	if v, ok := peer.Tag(tagFailures); ok {
		if n, ok := v.(int); ok {
			failures = n + 1
		}
	}
	peer.SetTag(tagFailures, failures)
	l.Warn().Str("conn", peer.ID()).Int("failures", failures).Msg("auth.Gate rejected payload")
	reply(peer, command.NewErrorReply(command.Request{}, "unauthorized"))
	if g.maxFailures > 0 && failures >= g.maxFailures {
		_ = peer.Close()
	}
	return nil, pipeline.Drop
}

func tokenOf(payload []byte) (string, bool) {
	m, err := value.Unmarshal(payload)
	if err != nil {
		return "", false
	}
	return value.Get[string](m, FieldToken)
}

// TokenPayload encodes the map a client sends to authenticate.
func TokenPayload(token string) ([]byte, error) {
	m := value.NewMap()
	m.SetString(FieldToken, token)
	return value.Marshal(m)
}

func reply(peer pipeline.Peer, m *value.Map) {
	b, err := value.Marshal(m)
	if err == nil {
		err = peer.Send(context.Background(), b)
	}
	if err != nil {
		l := logging.For("auth")
		l.Debug().Str("conn", peer.ID()).Err(err).Msg("auth.Gate reply failed")
	}
}
