package transport

import (
	"github.com/danmuck/netcore/internal/pipeline"
	"github.com/danmuck/netcore/internal/protocol/security"
	"github.com/danmuck/netcore/internal/session"
)

type Option func(*options)

type options struct {
	sec    *security.Provider
	secSet bool
	parent *pipeline.Pipeline
}

// WithSecurity installs p instead of building a provider from
// session.Config.Security.
func WithSecurity(p *security.Provider) Option {
	return func(o *options) {
		o.sec = p
		o.secSet = true
	}
}

// WithPipeline chains the new connection's pipeline to parent.
func WithPipeline(parent *pipeline.Pipeline) Option {
	return func(o *options) {
		o.parent = parent
	}
}

func resolveOptions(cfg session.Config, opts []Option) (options, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.secSet {
		return o, nil
	}
	sec, err := security.NewProvider(cfg.Security)
	if err != nil {
		return o, err
	}
	o.sec = sec
	return o, nil
}
