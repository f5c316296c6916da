package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Stability issue kinds.
const (
	// IssueTagChanged: the (model, variant) was exported under another
	// tag before. Archives written by the old class no longer load.
	IssueTagChanged = "tag_changed"
	// IssueTagReused: the tag belongs to a different (model, variant).
	IssueTagReused = "tag_reused"
	// IssueOutputChanged: same model fingerprint and translator version,
	// different artifact hash.
	IssueOutputChanged = "output_changed"
)

// StabilityIssue is one inconsistency between a generation and the
// ledger history.
type StabilityIssue struct {
	Kind      string `json:"kind"`
	Model     string `json:"model"`
	Variant   string `json:"variant"`
	ExportTag string `json:"export_tag"`
	// Previous is the conflicting value: the old tag, the owner of a
	// reused tag, or the old artifact hash.
	Previous string `json:"previous"`
	// RunID is the earlier run the issue refers to.
	RunID string `json:"run_id"`
}

func (i StabilityIssue) String() string {
	switch i.Kind {
	case IssueTagChanged:
		return fmt.Sprintf("%s %s: export tag changed from %s to %s", i.Model, i.Variant, i.Previous, i.ExportTag)
	case IssueTagReused:
		return fmt.Sprintf("%s %s: export tag %s already belongs to %s", i.Model, i.Variant, i.ExportTag, i.Previous)
	case IssueOutputChanged:
		return fmt.Sprintf("%s %s: output changed for an unchanged model (previous hash %s)", i.Model, i.Variant, i.Previous)
	}
	return fmt.Sprintf("%s %s: %s", i.Model, i.Variant, i.Kind)
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// CheckStability compares generations against the recorded history
// without writing anything. run supplies the translator version and is
// excluded from the history.
func (s *Store) CheckStability(ctx context.Context, run Run, gens []Generation) ([]StabilityIssue, error) {
	return s.checkStability(ctx, s.db, run, gens)
}

func (s *Store) checkStability(ctx context.Context, q querier, run Run, gens []Generation) ([]StabilityIssue, error) {
	var issues []StabilityIssue
	for _, g := range gens {
		if g.Status != StatusOK {
			continue
		}

		var owner, ownerVariant, firstRun string
		err := q.QueryRowContext(ctx, s.rebind(`
			SELECT model, variant, first_run FROM export_tags WHERE export_tag = ?
		`), g.ExportTag).Scan(&owner, &ownerVariant, &firstRun)
		switch {
		case err == nil:
			if owner != g.Model || ownerVariant != g.Variant {
				issues = append(issues, StabilityIssue{
					Kind: IssueTagReused, Model: g.Model, Variant: g.Variant,
					ExportTag: g.ExportTag, Previous: owner + " " + ownerVariant, RunID: firstRun,
				})
			}
		case !errors.Is(err, sql.ErrNoRows):
			return nil, fmt.Errorf("check export tag: %w", err)
		}

		prev, ok, err := s.latest(ctx, q, g.Model, g.Variant, run.ID)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if prev.ExportTag != g.ExportTag {
			issues = append(issues, StabilityIssue{
				Kind: IssueTagChanged, Model: g.Model, Variant: g.Variant,
				ExportTag: g.ExportTag, Previous: prev.ExportTag, RunID: prev.RunID,
			})
		}
		if prev.Fingerprint == g.Fingerprint && prev.version == run.Version && prev.Hash != g.Hash {
			issues = append(issues, StabilityIssue{
				Kind: IssueOutputChanged, Model: g.Model, Variant: g.Variant,
				ExportTag: g.ExportTag, Previous: prev.Hash, RunID: prev.RunID,
			})
		}
	}
	return issues, nil
}

type previous struct {
	Generation
	version string
}

// latest returns the most recent successful generation of a
// (model, variant) outside the run excluded.
func (s *Store) latest(ctx context.Context, q querier, model, variant, excluded string) (previous, bool, error) {
	var p previous
	err := q.QueryRowContext(ctx, s.rebind(`
		SELECT g.run_id, g.export_tag, g.fingerprint, g.artifact_hash, r.version
		FROM generations g
		JOIN runs r ON r.id = g.run_id
		WHERE g.model = ? AND g.variant = ? AND g.status = ? AND g.run_id <> ?
		ORDER BY r.seq DESC
		LIMIT 1
	`), model, variant, StatusOK, excluded).Scan(&p.RunID, &p.ExportTag, &p.Fingerprint, &p.Hash, &p.version)
	if errors.Is(err, sql.ErrNoRows) {
		return previous{}, false, nil
	}
	if err != nil {
		return previous{}, false, fmt.Errorf("query latest generation: %w", err)
	}
	return p, true, nil
}
