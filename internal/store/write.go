package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Generation statuses.
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// Run is one recorded pipeline run.
type Run struct {
	ID         string         `json:"id"`
	Seq        int64          `json:"seq"`
	StartedAt  time.Time      `json:"started_at"`
	Translator string         `json:"translator"`
	Version    string         `json:"version"`
	IRVersion  string         `json:"ir_version"`
	Options    map[string]any `json:"options,omitempty"`
	Succeeded  int            `json:"succeeded"`
	Failed     int            `json:"failed"`
}

// Generation is the outcome of one (model, variant) within a run.
type Generation struct {
	RunID       string `json:"run_id"`
	Model       string `json:"model"`
	Variant     string `json:"variant"`
	Status      string `json:"status"`
	ClassName   string `json:"class_name,omitempty"`
	ExportTag   string `json:"export_tag,omitempty"`
	Fingerprint string `json:"fingerprint,omitempty"`
	Hash        string `json:"hash,omitempty"`
	Tables      int    `json:"tables,omitempty"`
	Columns     int    `json:"columns,omitempty"`
	Stage       string `json:"stage,omitempty"`
	Error       string `json:"error,omitempty"`
}

// NewRunID returns a time-ordered run identifier.
func NewRunID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// RecordRun writes a run and its generations in one transaction and
// returns the run as stored together with the stability issues found
// against earlier runs. Issues do not prevent the write.
//
// An empty run ID is replaced by a new UUIDv7. Recording the same run
// ID twice is a no-op for rows that already exist.
func (s *Store) RecordRun(ctx context.Context, run Run, gens []Generation) (Run, []StabilityIssue, error) {
	if run.ID == "" {
		run.ID = NewRunID()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	run.Succeeded, run.Failed = 0, 0
	for _, g := range gens {
		if g.Status == StatusOK {
			run.Succeeded++
		} else {
			run.Failed++
		}
	}
	opts, err := marshalOptions(run.Options)
	if err != nil {
		return Run{}, nil, fmt.Errorf("record run: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Run{}, nil, fmt.Errorf("record run: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	issues, err := s.checkStability(ctx, tx, run, gens)
	if err != nil {
		return Run{}, nil, fmt.Errorf("record run: %w", err)
	}

	var existing int64
	err = tx.QueryRowContext(ctx, s.rebind(`SELECT seq FROM runs WHERE id = ?`), run.ID).Scan(&existing)
	switch {
	case err == nil:
		run.Seq = existing
	case errors.Is(err, sql.ErrNoRows):
		if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM runs`).Scan(&run.Seq); err != nil {
			return Run{}, nil, fmt.Errorf("record run: next seq: %w", err)
		}
	default:
		return Run{}, nil, fmt.Errorf("record run: %w", err)
	}

	_, err = tx.ExecContext(ctx, s.rebind(`
		INSERT INTO runs
		(id, seq, started_at, translator, version, ir_version, options, succeeded, failed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`),
		run.ID,
		run.Seq,
		run.StartedAt.UTC().Format(time.RFC3339Nano),
		run.Translator,
		run.Version,
		run.IRVersion,
		opts,
		run.Succeeded,
		run.Failed,
	)
	if err != nil {
		return Run{}, nil, fmt.Errorf("record run: %w", err)
	}

	for _, g := range gens {
		if err := s.writeGeneration(ctx, tx, run.ID, g); err != nil {
			return Run{}, nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return Run{}, nil, fmt.Errorf("record run: commit: %w", err)
	}
	return run, issues, nil
}

func (s *Store) writeGeneration(ctx context.Context, tx *sql.Tx, runID string, g Generation) error {
	_, err := tx.ExecContext(ctx, s.rebind(`
		INSERT INTO generations
		(run_id, model, variant, status, class_name, export_tag, fingerprint, artifact_hash, table_count, column_count, stage, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`),
		runID,
		g.Model,
		g.Variant,
		g.Status,
		g.ClassName,
		g.ExportTag,
		g.Fingerprint,
		g.Hash,
		g.Tables,
		g.Columns,
		g.Stage,
		g.Error,
	)
	if err != nil {
		return fmt.Errorf("write generation: %w", err)
	}
	if g.Status != StatusOK || g.ExportTag == "" {
		return nil
	}

	// The first claimant keeps a tag; later claims are reported by the
	// stability check, not overwritten.
	_, err = tx.ExecContext(ctx, s.rebind(`
		INSERT INTO export_tags
		(export_tag, model, variant, first_run)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(export_tag) DO NOTHING
	`),
		g.ExportTag,
		g.Model,
		g.Variant,
		runID,
	)
	if err != nil {
		return fmt.Errorf("write export tag: %w", err)
	}
	return nil
}
