// Package document resolves the version lineage of generated documents and
// navigates between versions.
package document

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/phrazzld/taskwatch/internal/domain"
	"github.com/phrazzld/taskwatch/internal/platform/deepwiki"
	"github.com/phrazzld/taskwatch/internal/redact"
)

var (
	// ErrNoDocument is returned when an operation needs a displayed document.
	ErrNoDocument = errors.New("no document displayed")

	// ErrNavigationSuperseded is returned when a newer navigation finished
	// first; the result of the older one is dropped.
	ErrNavigationSuperseded = errors.New("navigation superseded")
)

// Resolver tracks the displayed document and, while the version panel is
// open, the lineage it belongs to. The lineage is fetched only when the
// panel opens and is kept until Close or Save.
type Resolver struct {
	client deepwiki.Client
	logger *slog.Logger

	mu        sync.Mutex
	displayed domain.Document
	shown     bool
	lineage   []domain.Document
	open      bool
	nav       uint64
}

// NewResolver creates a Resolver.
func NewResolver(client deepwiki.Client, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		client: client,
		logger: logger.With("component", "document_resolver"),
	}
}

// Show fetches a document and makes it the displayed one. The cached
// lineage, if any, is kept and its current marker follows the new id.
func (r *Resolver) Show(ctx context.Context, documentID int64) (domain.Document, error) {
	if documentID <= 0 {
		return domain.Document{}, fmt.Errorf("%w: invalid document id %d", domain.ErrValidation, documentID)
	}

	r.mu.Lock()
	r.nav++
	token := r.nav
	r.mu.Unlock()

	doc, err := r.client.GetDocument(ctx, documentID)
	if err != nil {
		r.logger.Warn("failed to load document",
			"document_id", documentID,
			"error", redact.Error(err))
		return domain.Document{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if token != r.nav {
		return domain.Document{}, ErrNavigationSuperseded
	}
	r.displayed, r.shown = doc, true
	return doc, nil
}

// Select navigates to another version. The document is always re-fetched
// in full.
func (r *Resolver) Select(ctx context.Context, documentID int64) (domain.Document, error) {
	doc, err := r.Show(ctx, documentID)
	if err != nil {
		return domain.Document{}, err
	}
	r.logger.Debug("version selected", "document_id", doc.ID, "version", doc.Version)
	return doc, nil
}

// Current returns the displayed document.
func (r *Resolver) Current() (domain.Document, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.displayed, r.shown
}

// Open opens the version panel for the displayed document, fetching its
// lineage unless it is already cached. If documentID differs from the
// displayed document it is shown first. A lineage that arrives after a
// newer navigation is dropped with ErrNavigationSuperseded.
func (r *Resolver) Open(ctx context.Context, documentID int64) ([]domain.DocumentVersion, error) {
	r.mu.Lock()
	needShow := !r.shown || r.displayed.ID != documentID
	r.mu.Unlock()
	if needShow {
		if _, err := r.Show(ctx, documentID); err != nil {
			return nil, err
		}
	}

	r.mu.Lock()
	if r.open && containsID(r.lineage, documentID) {
		out := domain.SortVersionsDescending(r.lineage, r.displayed.ID)
		r.mu.Unlock()
		return out, nil
	}
	token := r.nav
	r.mu.Unlock()

	docs, err := r.client.DocumentVersions(ctx, documentID)
	if err != nil {
		r.logger.Warn("failed to load versions",
			"document_id", documentID,
			"error", redact.Error(err))
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if token != r.nav {
		return nil, ErrNavigationSuperseded
	}
	r.lineage = append([]domain.Document(nil), docs...)
	r.open = true
	r.logger.Debug("versions loaded", "document_id", documentID, "count", len(docs))
	return domain.SortVersionsDescending(r.lineage, r.displayed.ID), nil
}

// Versions returns the cached lineage newest first, or nil when the panel
// is closed.
func (r *Resolver) Versions() []domain.DocumentVersion {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.open {
		return nil
	}
	return domain.SortVersionsDescending(r.lineage, r.displayed.ID)
}

// IsOpen reports whether the version panel holds a lineage.
func (r *Resolver) IsOpen() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.open
}

// Close drops the cached lineage.
func (r *Resolver) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.open = false
	r.lineage = nil
}

// Save stores content as a new version of the displayed document and
// navigates to it. The cached lineage is invalidated.
func (r *Resolver) Save(ctx context.Context, content string) (domain.Document, error) {
	if strings.TrimSpace(content) == "" {
		return domain.Document{}, fmt.Errorf("%w: content is required", domain.ErrValidation)
	}

	r.mu.Lock()
	if !r.shown {
		r.mu.Unlock()
		return domain.Document{}, ErrNoDocument
	}
	base := r.displayed.ID
	r.nav++
	token := r.nav
	r.mu.Unlock()

	doc, err := r.client.UpdateDocument(ctx, base, content)
	if err != nil {
		r.logger.Warn("failed to save document",
			"document_id", base,
			"error", redact.Error(err))
		return domain.Document{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.open = false
	r.lineage = nil
	if token == r.nav {
		r.displayed, r.shown = doc, true
	}
	r.logger.Info("document saved",
		"base_document_id", base,
		"document_id", doc.ID,
		"version", doc.Version)
	return doc, nil
}

func containsID(docs []domain.Document, id int64) bool {
	for _, d := range docs {
		if d.ID == id {
			return true
		}
	}
	return false
}
