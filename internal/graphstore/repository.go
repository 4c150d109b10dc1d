// Package graphstore provides optional persistence for enriched networks
// and selected modules.
package graphstore

import (
	"context"

	"github.com/j-berg/metabonet/internal/export"
)

// Repository stores analysis output in a graph database.
type Repository interface {
	// StoreNetwork persists the enriched network under a run label.
	StoreNetwork(ctx context.Context, run string, network export.EnrichedNetwork) error
	// StoreModules persists selected modules and their membership edges.
	StoreModules(ctx context.Context, run string, modules []export.ModuleReport) error
	// Close releases resources.
	Close(ctx context.Context) error
}
