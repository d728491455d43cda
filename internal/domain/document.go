package domain

import (
	"sort"
	"time"
)

// Document is one version of a generated artifact tied to a task.
// Versions of the same logical document are never mutated; edits and
// regenerations create a new version.
type Document struct {
	ID           int64     `json:"id" yaml:"id"`
	RepositoryID int64     `json:"repository_id" yaml:"repository_id"`
	TaskID       int64     `json:"task_id" yaml:"task_id"`
	Title        string    `json:"title" yaml:"title"`
	Filename     string    `json:"filename" yaml:"filename"`
	Content      string    `json:"content" yaml:"content"`
	SortOrder    int       `json:"sort_order" yaml:"sort_order"`
	Version      int       `json:"version" yaml:"version"`
	IsLatest     bool      `json:"is_latest" yaml:"is_latest"`
	CreatedAt    time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" yaml:"updated_at"`
}

// DocumentVersion is one entry of a version lineage as presented to the user.
type DocumentVersion struct {
	DocumentID int64     `json:"document_id" yaml:"document_id"`
	Version    int       `json:"version" yaml:"version"`
	IsLatest   bool      `json:"is_latest" yaml:"is_latest"`
	Current    bool      `json:"current" yaml:"current"`
	UpdatedAt  time.Time `json:"updated_at" yaml:"updated_at"`
}

// SortVersionsDescending orders a lineage newest first and marks the entry
// whose document id equals currentID.
func SortVersionsDescending(docs []Document, currentID int64) []DocumentVersion {
	out := make([]DocumentVersion, 0, len(docs))
	for _, d := range docs {
		out = append(out, DocumentVersion{
			DocumentID: d.ID,
			Version:    d.Version,
			IsLatest:   d.IsLatest,
			Current:    d.ID == currentID,
			UpdatedAt:  d.UpdatedAt,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Version > out[j].Version
	})
	return out
}
