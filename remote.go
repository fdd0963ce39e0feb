package beacon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/quartz"
	"github.com/tidwall/gjson"
)

// DocumentMetadata identifies who owns a remote document.
type DocumentMetadata struct {
	Site      string `json:"site"`
	ProjectID string `json:"projectId,omitempty"`
	Domain    string `json:"domain,omitempty"`
	Created   string `json:"created,omitempty"`
	Version   string `json:"version,omitempty"`
}

// Document is the shared JSON blob mirroring events remotely.
type Document struct {
	Metadata    DocumentMetadata `json:"metadata"`
	Events      []Event          `json:"events"`
	LastUpdated string           `json:"lastUpdated"`
	TotalEvents int              `json:"totalEvents"`
}

const documentVersion = "1.0"

// RemoteConfig configures a RemoteStore.
type RemoteConfig struct {
	BaseURL      string
	APIKey       string
	APIKeyHeader string
	Site         string
	Domain       string
	ProjectID    string
	// DocumentIDKey is the storage key caching the document id.
	DocumentIDKey string
	// FallbackDocumentID is used for the process lifetime when the document
	// cannot be created. Leave empty to keep failed creations local-only.
	FallbackDocumentID string
	MaxEvents          int
}

// RemoteStore mirrors events into a remote JSON document with a
// read-modify-write of the whole document. Pushes from this process are
// serialized; concurrent writers elsewhere can still overwrite each other.
type RemoteStore struct {
	cfg     RemoteConfig
	http    HTTPAdapter
	storage StorageAdapter
	clock   quartz.Clock
	logger  LoggerAdapter
	metrics *Metrics

	pushMu *Mutex

	mu         sync.Mutex
	documentID string
}

// NewRemoteStore creates a remote store client.
func NewRemoteStore(cfg RemoteConfig, httpAdapter HTTPAdapter, storage StorageAdapter, clock quartz.Clock, logger LoggerAdapter, metrics *Metrics) *RemoteStore {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &RemoteStore{
		cfg:     cfg,
		http:    httpAdapter,
		storage: storage,
		clock:   clock,
		logger:  logger,
		metrics: metrics,
		pushMu:  NewMutex(),
	}
}

// DocumentID returns the document id currently in use, if any.
func (r *RemoteStore) DocumentID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.documentID
}

// LastSynced reports the time of the last successful push.
func (r *RemoteStore) LastSynced() (time.Time, bool) {
	raw, ok, err := r.storage.Get(keyLastSync)
	if err != nil || !ok {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// EnsureDocument returns the cached document id, creating the document on
// first use.
func (r *RemoteStore) EnsureDocument(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.documentID != "" {
		return r.documentID, nil
	}

	if cached, ok, err := r.storage.Get(r.cfg.DocumentIDKey); err != nil {
		r.logger.Warn("Failed to read cached document id: %v", err)
	} else if ok && cached != "" {
		r.documentID = cached
		return cached, nil
	}

	id, _, err := r.create(ctx)
	if err == nil {
		r.adoptLocked(id)
		r.logger.Info("Created remote document %s", id)
		return id, nil
	}

	if r.cfg.FallbackDocumentID != "" {
		r.logger.Warn("Failed to create remote document, using fallback %s: %v", r.cfg.FallbackDocumentID, err)
		r.documentID = r.cfg.FallbackDocumentID
		return r.documentID, nil
	}
	return "", fmt.Errorf("%w: %v", ErrNoDocument, err)
}

// adoptLocked switches to id and caches it for the project.
func (r *RemoteStore) adoptLocked(id string) {
	r.documentID = id
	if err := r.storage.Set(r.cfg.DocumentIDKey, id); err != nil {
		r.logger.Warn("Failed to cache document id: %v", err)
	}
}

func (r *RemoteStore) headers() map[string]string {
	return map[string]string{r.cfg.APIKeyHeader: r.cfg.APIKey}
}

func (r *RemoteStore) initialDocument() *Document {
	now := formatTimestamp(r.clock.Now())
	return &Document{
		Metadata: DocumentMetadata{
			Site:      r.cfg.Site,
			ProjectID: r.cfg.ProjectID,
			Domain:    r.cfg.Domain,
			Created:   now,
			Version:   documentVersion,
		},
		Events:      []Event{},
		LastUpdated: now,
		TotalEvents: 0,
	}
}

// create posts an empty document and returns the server-assigned id.
func (r *RemoteStore) create(ctx context.Context) (string, *Document, error) {
	doc := r.initialDocument()
	body, err := json.Marshal(doc)
	if err != nil {
		return "", nil, fmt.Errorf("encode document: %w", err)
	}

	headers := r.headers()
	headers["X-Bin-Name"] = r.cfg.Site + "-" + r.cfg.ProjectID
	headers["X-Bin-Private"] = "false"

	resp, err := r.http.Do(ctx, &HTTPRequest{
		Method:  http.MethodPost,
		URL:     r.cfg.BaseURL,
		Headers: headers,
		Body:    body,
	})
	if err != nil {
		return "", nil, err
	}
	if !resp.OK {
		return "", nil, &HTTPError{Status: resp.Status}
	}

	id := gjson.GetBytes(resp.Body, "metadata.id").String()
	if id == "" {
		return "", nil, errors.New("create response has no metadata.id")
	}
	return id, doc, nil
}

// Fetch reads the latest version of the document. A missing document is
// recreated; a document without an events array is treated as empty.
func (r *RemoteStore) Fetch(ctx context.Context) (*Document, error) {
	id, err := r.EnsureDocument(ctx)
	if err != nil {
		return nil, err
	}
	return r.fetch(ctx, id, true)
}

// fetch reads document id. With recreateMissing unset a 404 is returned as
// an HTTPError.
func (r *RemoteStore) fetch(ctx context.Context, id string, recreateMissing bool) (*Document, error) {
	resp, err := r.http.Do(ctx, &HTTPRequest{
		Method:  http.MethodGet,
		URL:     r.cfg.BaseURL + "/" + id + "/latest",
		Headers: r.headers(),
	})
	if err != nil {
		return nil, err
	}

	if resp.Status == http.StatusNotFound && recreateMissing {
		r.logger.Warn("Remote document %s not found, creating a new one", id)
		return r.recreate(ctx, id)
	}
	if !resp.OK {
		return nil, &HTTPError{Status: resp.Status}
	}
	if !gjson.ValidBytes(resp.Body) {
		return nil, errors.New("malformed document response")
	}

	record := gjson.GetBytes(resp.Body, "record")
	if !record.IsObject() {
		r.logger.Warn("Remote document %s has no record, starting empty", id)
		return r.emptyDocument(), nil
	}

	var doc Document
	if err := json.Unmarshal([]byte(record.Raw), &doc); err != nil {
		r.logger.Warn("Remote document %s is malformed, starting empty: %v", id, err)
		return r.emptyDocument(), nil
	}
	if doc.Events == nil {
		doc.Events = []Event{}
	}
	return &doc, nil
}

func (r *RemoteStore) recreate(ctx context.Context, staleID string) (*Document, error) {
	r.mu.Lock()
	if current := r.documentID; current != staleID {
		// Another caller replaced the document already; read its contents.
		r.mu.Unlock()
		return r.fetch(ctx, current, false)
	}
	defer r.mu.Unlock()

	id, doc, err := r.create(ctx)
	if err != nil {
		return nil, fmt.Errorf("recreate document: %w", err)
	}
	r.adoptLocked(id)
	r.logger.Info("Created remote document %s", id)
	return doc, nil
}

func (r *RemoteStore) emptyDocument() *Document {
	return &Document{
		Metadata: DocumentMetadata{Site: r.cfg.Site},
		Events:   []Event{},
	}
}

// Push appends event to the remote document, keeping the newest MaxEvents.
func (r *RemoteStore) Push(ctx context.Context, event Event) error {
	err := r.pushMu.RunAtomic(func() error {
		return r.push(ctx, event)
	})
	if err != nil {
		r.metrics.Pushes.WithLabelValues(resultFailure).Inc()
		return err
	}
	r.metrics.Pushes.WithLabelValues(resultSuccess).Inc()
	return nil
}

func (r *RemoteStore) push(ctx context.Context, event Event) error {
	doc, err := r.Fetch(ctx)
	if err != nil {
		return fmt.Errorf("fetch document: %w", err)
	}

	doc.Events = append(doc.Events, event)
	if len(doc.Events) > r.cfg.MaxEvents {
		doc.Events = doc.Events[len(doc.Events)-r.cfg.MaxEvents:]
	}
	now := formatTimestamp(r.clock.Now())
	doc.LastUpdated = now
	doc.TotalEvents = len(doc.Events)

	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}

	resp, err := r.http.Do(ctx, &HTTPRequest{
		Method:  http.MethodPut,
		URL:     r.cfg.BaseURL + "/" + r.DocumentID(),
		Headers: r.headers(),
		Body:    body,
	})
	if err != nil {
		return err
	}
	if !resp.OK {
		return &HTTPError{Status: resp.Status}
	}

	if err := r.storage.Set(keyLastSync, now); err != nil {
		r.logger.Warn("Failed to record last sync time: %v", err)
	}
	r.logger.Debug("Synced event %s to remote document", event.ID)
	return nil
}
