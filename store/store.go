package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no vulnerability exists for the given id.
	ErrNotFound = errors.New("vulnerability not found")

	// ErrDuplicate is returned when creating a vulnerability whose id already exists.
	ErrDuplicate = errors.New("vulnerability already exists")
)

type Store interface {
	Create(ctx context.Context, v *Vulnerability) error
	Get(ctx context.Context, id string) (*Vulnerability, error)
	List(ctx context.Context, opts ...ListOption) ([]*Vulnerability, error)
	Update(ctx context.Context, v *Vulnerability) error
	Delete(ctx context.Context, id string) error
	SetEmbeddingRef(ctx context.Context, vulnerabilityId string, vectorId string) error
	VectorId(ctx context.Context, vulnerabilityId string) (string, error)
	VulnerabilityId(ctx context.Context, vectorId string) (string, error)
	Count(ctx context.Context) (int, error)
	Statistics(ctx context.Context) (*Statistics, error)
	Close() error
}

type Vulnerability struct {
	Id               string    `json:"id"`
	Package          string    `json:"package"`
	Severity         string    `json:"severity"`
	Description      string    `json:"description"`
	PublishedDate    string    `json:"published_date"`
	AffectedVersions string    `json:"affected_versions,omitempty"`
	Remediation      string    `json:"remediation,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

type Statistics struct {
	Total       int            `json:"total"`
	BySeverity  map[string]int `json:"by_severity"`
	TopPackages map[string]int `json:"top_packages"`
	ByMonth     map[string]int `json:"by_month"`
}
