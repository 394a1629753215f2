package broker

import (
	"context"
	"log/slog"
	"sync"
)

// Provider owns the process-wide broker connection. Handle constructs it
// lazily; concurrent first callers observe the same instance. Disconnect
// closes and clears it so a later Handle rebuilds from scratch.
type Provider struct {
	cfg        Config
	authorizer Authorizer
	logger     *slog.Logger

	mu     sync.Mutex
	client *Client
}

// NewProvider creates a provider with the given broker config and
// authorizer. No connection is made until Handle is called.
func NewProvider(log *slog.Logger, cfg Config, authorizer Authorizer) *Provider {
	if log == nil {
		log = slog.Default()
	}
	return &Provider{
		cfg:        cfg,
		authorizer: authorizer,
		logger:     log,
	}
}

// Handle returns the shared connection, dialing on first use. A connection
// whose read loop has died is discarded and rebuilt.
func (p *Provider) Handle(ctx context.Context) (Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil && p.client.State() == StateOpen {
		return p.client, nil
	}
	if p.client != nil {
		_ = p.client.Close()
		p.client = nil
	}
	client, err := Connect(ctx, p.logger, p.cfg, p.authorizer)
	if err != nil {
		return nil, err
	}
	p.client = client
	return client, nil
}

// Disconnect closes the shared connection and clears the cached handle.
// No-op when no connection exists.
func (p *Provider) Disconnect() {
	p.mu.Lock()
	client := p.client
	p.client = nil
	p.mu.Unlock()
	if client != nil {
		_ = client.Close()
	}
}
