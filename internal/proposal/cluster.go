package proposal

import (
	"fmt"
	"log/slog"

	"github.com/sbenjam1n/hlsopt/internal/hls"
)

// Cluster is the proposal snapshot of one application cluster. Proposal and
// Impact are built once and never mutated; repair works on copies.
type Cluster struct {
	ID       int
	Members  []string
	Records  []hls.ParetoRecord
	Proposal hls.Assignment
	Impact   *ImpactTable
}

// Repairable reports whether the cluster has statistics the repair loop can
// act on.
func (c *Cluster) Repairable() bool {
	return len(c.Records) > 0 && c.Impact != nil && !c.Impact.Empty()
}

// Synthesize canonicalizes the pooled records of a cluster, votes a proposal
// and computes its impact table.
func Synthesize(id int, members []string, recs []hls.ParetoRecord, catalog *hls.Catalog, opts Options, logger *slog.Logger) (*Cluster, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("cluster", id)

	c := &Cluster{ID: id, Members: members, Records: recs}
	if len(recs) == 0 {
		logger.Warn("empty pareto pool", "members", len(members))
		c.Proposal = catalog.Empty()
		c.Impact = NewImpactTable(nil)
		return c, nil
	}

	t, err := Canonicalize(catalog, recs)
	if err != nil {
		return nil, fmt.Errorf("canonicalize cluster %d: %w", id, err)
	}
	c.Proposal = Propose(t, opts)
	c.Impact = BuildImpactTable(t, logger)
	logger.Info("cluster proposal", "records", len(recs), "active", len(c.Proposal.Active()))
	return c, nil
}
