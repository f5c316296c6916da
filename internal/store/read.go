package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrRunNotFound is returned for an unknown run ID.
var ErrRunNotFound = errors.New("run not found")

// Runs returns the most recent runs, newest first. limit <= 0 returns
// every run.
func (s *Store) Runs(ctx context.Context, limit int) ([]Run, error) {
	query := `
		SELECT id, seq, started_at, translator, version, ir_version, options, succeeded, failed
		FROM runs
		ORDER BY seq DESC
	`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// ReadRun returns one run and its generations ordered by model and
// variant.
func (s *Store) ReadRun(ctx context.Context, id string) (Run, []Generation, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT id, seq, started_at, translator, version, ir_version, options, succeeded, failed
		FROM runs
		WHERE id = ?
	`), id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return Run{}, nil, err
	}
	gens, err := s.queryGenerations(ctx, `
		SELECT g.run_id, g.model, g.variant, g.status, g.class_name, g.export_tag, g.fingerprint,
		       g.artifact_hash, g.table_count, g.column_count, g.stage, g.error
		FROM generations g
		WHERE g.run_id = ?
		ORDER BY g.model ASC, g.variant ASC
	`, id)
	if err != nil {
		return Run{}, nil, err
	}
	return r, gens, nil
}

// History returns every generation of a model, oldest run first. An
// empty variant matches all variants.
func (s *Store) History(ctx context.Context, model, variant string) ([]Generation, error) {
	query := `
		SELECT g.run_id, g.model, g.variant, g.status, g.class_name, g.export_tag, g.fingerprint,
		       g.artifact_hash, g.table_count, g.column_count, g.stage, g.error
		FROM generations g
		JOIN runs r ON r.id = g.run_id
		WHERE g.model = ?`
	args := []any{model}
	if variant != "" {
		query += " AND g.variant = ?"
		args = append(args, variant)
	}
	query += " ORDER BY r.seq ASC, g.variant ASC"
	return s.queryGenerations(ctx, query, args...)
}

// Latest returns the most recent successful generation of a
// (model, variant).
func (s *Store) Latest(ctx context.Context, model, variant string) (Generation, bool, error) {
	p, ok, err := s.latest(ctx, s.db, model, variant, "")
	if err != nil || !ok {
		return Generation{}, ok, err
	}
	gens, err := s.queryGenerations(ctx, `
		SELECT g.run_id, g.model, g.variant, g.status, g.class_name, g.export_tag, g.fingerprint,
		       g.artifact_hash, g.table_count, g.column_count, g.stage, g.error
		FROM generations g
		WHERE g.run_id = ? AND g.model = ? AND g.variant = ?
	`, p.RunID, model, variant)
	if err != nil {
		return Generation{}, false, err
	}
	if len(gens) == 0 {
		return Generation{}, false, nil
	}
	return gens[0], true, nil
}

// ExportTag is the recorded owner of a serialization key.
type ExportTag struct {
	Tag      string `json:"export_tag"`
	Model    string `json:"model"`
	Variant  string `json:"variant"`
	FirstRun string `json:"first_run"`
}

// ExportTags lists every claimed tag in tag order.
func (s *Store) ExportTags(ctx context.Context) ([]ExportTag, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT export_tag, model, variant, first_run
		FROM export_tags
		ORDER BY export_tag ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query export tags: %w", err)
	}
	defer rows.Close()

	tags := []ExportTag{}
	for rows.Next() {
		var t ExportTag
		if err := rows.Scan(&t.Tag, &t.Model, &t.Variant, &t.FirstRun); err != nil {
			return nil, fmt.Errorf("scan export tag: %w", err)
		}
		tags = append(tags, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate export tags: %w", err)
	}
	return tags, nil
}

func (s *Store) queryGenerations(ctx context.Context, query string, args ...any) ([]Generation, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query generations: %w", err)
	}
	defer rows.Close()

	gens := []Generation{}
	for rows.Next() {
		var g Generation
		if err := rows.Scan(&g.RunID, &g.Model, &g.Variant, &g.Status, &g.ClassName, &g.ExportTag,
			&g.Fingerprint, &g.Hash, &g.Tables, &g.Columns, &g.Stage, &g.Error); err != nil {
			return nil, fmt.Errorf("scan generation: %w", err)
		}
		gens = append(gens, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate generations: %w", err)
	}
	return gens, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var (
		r         Run
		startedAt string
		opts      string
	)
	if err := row.Scan(&r.ID, &r.Seq, &startedAt, &r.Translator, &r.Version, &r.IRVersion, &opts, &r.Succeeded, &r.Failed); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, err
		}
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	t, err := time.Parse(time.RFC3339Nano, startedAt)
	if err != nil {
		return Run{}, fmt.Errorf("scan run: started_at: %w", err)
	}
	r.StartedAt = t
	if r.Options, err = unmarshalOptions(opts); err != nil {
		return Run{}, err
	}
	return r, nil
}
