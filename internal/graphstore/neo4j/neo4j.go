// Package neo4j implements graphstore.Repository on Neo4j.
package neo4j

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/j-berg/metabonet/internal/export"
	"github.com/j-berg/metabonet/internal/graphstore"
	"github.com/j-berg/metabonet/internal/network"
)

// Repository persists enriched networks and modules in Neo4j.
type Repository struct {
	driver neo4j.DriverWithContext
}

var _ graphstore.Repository = (*Repository)(nil)

// New connects to Neo4j and verifies connectivity.
func New(ctx context.Context, uri, username, password string) (*Repository, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		return nil, fmt.Errorf("neo4j connectivity: %w", err)
	}
	return &Repository{driver: driver}, nil
}

func (r *Repository) StoreNetwork(ctx context.Context, run string, net export.EnrichedNetwork) error {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for _, n := range net.Nodes {
			props := map[string]any{
				"id":   n.ID,
				"name": n.Name,
				"run":  run,
			}
			if n.CompositeZ != nil {
				props["composite_z"] = *n.CompositeZ
				props["composite_p"] = *n.CompositeP
				props["composite_fold_log"] = *n.CompositeFold
				props["studies"] = n.Studies
			}
			label := "Metabolite"
			if n.Type == network.Reaction {
				label = "Reaction"
			}
			_, err := tx.Run(ctx,
				"MERGE (n:"+label+" {id: $id, run: $run}) SET n += $props",
				map[string]any{"id": n.ID, "run": run, "props": props})
			if err != nil {
				return nil, err
			}
		}
		for _, e := range net.Edges {
			_, err := tx.Run(ctx,
				"MATCH (a {id: $src, run: $run}), (b {id: $dst, run: $run}) "+
					"MERGE (a)-[:LINKS]->(b)",
				map[string]any{"src": e.Source, "dst": e.Target, "run": run})
			if err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("store network: %w", err)
	}
	return nil
}

func (r *Repository) StoreModules(ctx context.Context, run string, modules []export.ModuleReport) error {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for _, m := range modules {
			_, err := tx.Run(ctx,
				"MERGE (m:Module {run: $run, rank: $rank}) "+
					"SET m.seed = $seed, m.score = $score, m.p_value = $p, "+
					"m.reactions = $reactions, m.metabolites = $metabolites, "+
					"m.coverage = $coverage, m.pruned = $pruned",
				map[string]any{
					"run": run, "rank": m.Rank, "seed": m.Seed,
					"score": m.Score, "p": m.PValue,
					"reactions": m.Reactions, "metabolites": m.Metabolites,
					"coverage": m.Coverage, "pruned": m.Pruned,
				})
			if err != nil {
				return nil, err
			}
			for _, id := range m.Nodes {
				_, err := tx.Run(ctx,
					"MATCH (m:Module {run: $run, rank: $rank}), (n {id: $id, run: $run}) "+
						"MERGE (m)-[:CONTAINS]->(n)",
					map[string]any{"run": run, "rank": m.Rank, "id": id})
				if err != nil {
					return nil, err
				}
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("store modules: %w", err)
	}
	return nil
}

func (r *Repository) Close(ctx context.Context) error {
	return r.driver.Close(ctx)
}
