package beacon

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strconv"
	"sync"
	"time"

	"github.com/coder/quartz"
)

const base36Alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

func randomBase36(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = base36Alphabet[rand.IntN(len(base36Alphabet))]
	}
	return string(b)
}

// IdentityProvider derives the per-profile project id and the per-load
// session id, and resolves the remote document id for the project.
type IdentityProvider struct {
	storage   StorageAdapter
	clock     quartz.Clock
	logger    LoggerAdapter
	prefix    string
	domain    string
	namespace bool

	mu        sync.Mutex
	projectID string
}

// NewIdentityProvider creates a provider. When namespace is false all
// projects on the profile share one remote document id.
func NewIdentityProvider(storage StorageAdapter, clock quartz.Clock, logger LoggerAdapter, prefix, domain string, namespace bool) *IdentityProvider {
	return &IdentityProvider{
		storage:   storage,
		clock:     clock,
		logger:    logger,
		prefix:    prefix,
		domain:    domain,
		namespace: namespace,
	}
}

func (p *IdentityProvider) projectIDKey() string {
	return p.prefix + "_project_id"
}

// DocumentIDKey is the storage key caching the remote document id.
func (p *IdentityProvider) DocumentIDKey(projectID string) string {
	if !p.namespace {
		return p.prefix + "_bin_id"
	}
	return p.prefix + "_bin_id_" + projectID
}

// ProjectID returns the persisted project id, creating it on first use.
// The id never changes once created.
func (p *IdentityProvider) ProjectID() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.projectID != "" {
		return p.projectID
	}

	stored, ok, err := p.storage.Get(p.projectIDKey())
	if err != nil {
		p.logger.Warn("Failed to read project id: %v", err)
	}
	if ok && stored != "" {
		p.projectID = stored
		p.logger.Debug("Using existing project id %s", stored)
		return stored
	}

	id := fmt.Sprintf("%s_%s_%s_%s",
		p.prefix,
		p.domain,
		strconv.FormatInt(p.clock.Now().UnixMilli(), 36),
		randomBase36(13),
	)
	if err := p.storage.Set(p.projectIDKey(), id); err != nil {
		p.logger.Warn("Failed to persist project id: %v", err)
	}
	p.projectID = id
	p.logger.Info("Created project id %s", id)
	return id
}

// NewSessionID generates a fresh session id and records it as the current
// session. Sessions are per page load; they are never reused.
func (p *IdentityProvider) NewSessionID() string {
	id := fmt.Sprintf("session_%d_%s", p.clock.Now().UnixMilli(), randomBase36(9))
	if err := p.storage.Set(keySession, id); err != nil {
		p.logger.Warn("Failed to persist session id: %v", err)
	}
	return id
}

// RemoteDocumentID resolves the document id through remote, giving up after
// timeout. It returns "" when no document is available; callers carry on
// recording locally.
func (p *IdentityProvider) RemoteDocumentID(ctx context.Context, remote *RemoteStore, timeout time.Duration) string {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	id, err := remote.EnsureDocument(ctx)
	if err != nil {
		p.logger.Warn("Remote document unavailable, continuing locally: %v", err)
		return ""
	}
	return id
}
