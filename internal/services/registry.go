package services

import (
	"context"

	"github.com/fyrsmithlabs/supplierd/internal/ignore"
	"github.com/fyrsmithlabs/supplierd/internal/pipeline"
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Registry provides access to the supplierd services.
type Registry interface {
	Pipeline() *pipeline.Service
	IgnoreList() *ignore.Policy
	Store() Pinger
}

// Options configures the registry with service instances.
type Options struct {
	Pipeline   *pipeline.Service
	IgnoreList *ignore.Policy

	// Store is optional; readiness checks pass without one.
	Store Pinger
}

type registry struct {
	pipeline   *pipeline.Service
	ignoreList *ignore.Policy
	store      Pinger
}

// NewRegistry creates a new service registry.
func NewRegistry(opts Options) Registry {
	return &registry{
		pipeline:   opts.Pipeline,
		ignoreList: opts.IgnoreList,
		store:      opts.Store,
	}
}

func (r *registry) Pipeline() *pipeline.Service { return r.pipeline }
func (r *registry) IgnoreList() *ignore.Policy  { return r.ignoreList }
func (r *registry) Store() Pinger               { return r.store }
