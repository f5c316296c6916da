package store

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordRun(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	run := testRun("", "0.4.0")
	run.Options = map[string]any{"tables": "basic", "workers": 4}
	failed := Generation{Model: "br", Variant: "BackwardEuler", Status: StatusFailed, Stage: "select", Error: "block too large"}

	got, issues, err := s.RecordRun(ctx, run, []Generation{
		okGeneration("hh", "Normal", "CellHH", "fp-hh", "h1"),
		failed,
	})
	require.NoError(t, err)
	assert.Empty(t, issues)

	id, err := uuid.Parse(got.ID)
	require.NoError(t, err, "generated run IDs are UUIDs")
	assert.Equal(t, uuid.Version(7), id.Version())
	assert.Equal(t, int64(1), got.Seq)
	assert.Equal(t, 1, got.Succeeded)
	assert.Equal(t, 1, got.Failed)

	stored, gens, err := s.ReadRun(ctx, got.ID)
	require.NoError(t, err)
	assert.Equal(t, got.ID, stored.ID)
	assert.True(t, run.StartedAt.Equal(stored.StartedAt))
	assert.Equal(t, "basic", stored.Options["tables"])
	assert.Equal(t, json.Number("4"), stored.Options["workers"])
	require.Len(t, gens, 2)
	assert.Equal(t, "br", gens[0].Model)
	assert.Equal(t, "block too large", gens[0].Error)
	assert.Equal(t, "CellHH", gens[1].ExportTag)

	tags, err := s.ExportTags(ctx)
	require.NoError(t, err)
	assert.Equal(t, []ExportTag{{Tag: "CellHH", Model: "hh", Variant: "Normal", FirstRun: got.ID}}, tags)
}

func TestRecordRunIsIdempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	gens := []Generation{okGeneration("hh", "Normal", "CellHH", "fp", "h1")}

	first, _, err := s.RecordRun(ctx, testRun("run-a", "0.4.0"), gens)
	require.NoError(t, err)
	again, issues, err := s.RecordRun(ctx, testRun("run-a", "0.4.0"), gens)
	require.NoError(t, err)
	assert.Empty(t, issues, "a run is not compared with itself")
	assert.Equal(t, first.Seq, again.Seq)

	runs, err := s.Runs(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
	history, err := s.History(ctx, "hh", "")
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestRunsNewestFirst(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	for _, id := range []string{"r1", "r2", "r3"} {
		_, _, err := s.RecordRun(ctx, testRun(id, "0.4.0"), nil)
		require.NoError(t, err)
	}

	runs, err := s.Runs(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "r3", runs[0].ID)
	assert.Equal(t, int64(3), runs[0].Seq)
	assert.Equal(t, "r2", runs[1].ID)
}

func TestReadRunNotFound(t *testing.T) {
	s := createTestStore(t)
	_, _, err := s.ReadRun(context.Background(), "nope")
	assert.True(t, errors.Is(err, ErrRunNotFound))
}

func TestHistoryAndLatest(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, _, err := s.RecordRun(ctx, testRun("r1", "0.3.0"), []Generation{okGeneration("hh", "Normal", "CellHH", "fp1", "h1")})
	require.NoError(t, err)
	_, _, err = s.RecordRun(ctx, testRun("r2", "0.4.0"), []Generation{
		okGeneration("hh", "Normal", "CellHH", "fp1", "h2"),
		okGeneration("hh", "Cvode", "CellHHCvode", "fp1", "h3"),
	})
	require.NoError(t, err)
	_, _, err = s.RecordRun(ctx, testRun("r3", "0.4.0"), []Generation{
		{Model: "hh", Variant: "Normal", Status: StatusFailed, Stage: "emit", Error: "boom"},
	})
	require.NoError(t, err)

	history, err := s.History(ctx, "hh", "Normal")
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, []string{"r1", "r2", "r3"}, []string{history[0].RunID, history[1].RunID, history[2].RunID})

	all, err := s.History(ctx, "hh", "")
	require.NoError(t, err)
	assert.Len(t, all, 4)

	latest, ok, err := s.Latest(ctx, "hh", "Normal")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "r2", latest.RunID, "failed generations are skipped")
	assert.Equal(t, "h2", latest.Hash)

	_, ok, err = s.Latest(ctx, "br", "Normal")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStabilityIssues(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, _, err := s.RecordRun(ctx, testRun("r1", "0.4.0"), []Generation{
		okGeneration("hh", "Normal", "CellHH", "fp1", "h1"),
		okGeneration("br", "Normal", "CellBR", "fp2", "h2"),
	})
	require.NoError(t, err)

	tests := []struct {
		name    string
		version string
		gen     Generation
		want    []StabilityIssue
	}{
		{
			name:    "unchanged",
			version: "0.4.0",
			gen:     okGeneration("hh", "Normal", "CellHH", "fp1", "h1"),
		},
		{
			name:    "model changed",
			version: "0.4.0",
			gen:     okGeneration("hh", "Normal", "CellHH", "fp9", "h9"),
		},
		{
			name:    "translator changed",
			version: "0.5.0",
			gen:     okGeneration("hh", "Normal", "CellHH", "fp1", "h9"),
		},
		{
			name:    "output changed",
			version: "0.4.0",
			gen:     okGeneration("hh", "Normal", "CellHH", "fp1", "h9"),
			want: []StabilityIssue{{
				Kind: IssueOutputChanged, Model: "hh", Variant: "Normal",
				ExportTag: "CellHH", Previous: "h1", RunID: "r1",
			}},
		},
		{
			name:    "tag changed",
			version: "0.4.0",
			gen:     okGeneration("hh", "Normal", "CellHH2", "fp1", "h1"),
			want: []StabilityIssue{{
				Kind: IssueTagChanged, Model: "hh", Variant: "Normal",
				ExportTag: "CellHH2", Previous: "CellHH", RunID: "r1",
			}},
		},
		{
			name:    "tag reused",
			version: "0.4.0",
			gen:     okGeneration("lr", "Normal", "CellBR", "fp3", "h3"),
			want: []StabilityIssue{{
				Kind: IssueTagReused, Model: "lr", Variant: "Normal",
				ExportTag: "CellBR", Previous: "br Normal", RunID: "r1",
			}},
		},
		{
			name:    "failures are not checked",
			version: "0.4.0",
			gen:     Generation{Model: "hh", Variant: "Normal", Status: StatusFailed},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			issues, err := s.CheckStability(ctx, testRun("next", tt.version), []Generation{tt.gen})
			require.NoError(t, err)
			assert.Equal(t, tt.want, issues)
		})
	}
}

func TestRecordRunReportsIssues(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	_, _, err := s.RecordRun(ctx, testRun("r1", "0.4.0"), []Generation{okGeneration("hh", "Normal", "CellHH", "fp1", "h1")})
	require.NoError(t, err)

	_, issues, err := s.RecordRun(ctx, testRun("r2", "0.4.0"), []Generation{okGeneration("hh", "Normal", "CellHH", "fp1", "h2")})
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, "hh Normal: output changed for an unchanged model (previous hash h1)", issues[0].String())

	history, err := s.History(ctx, "hh", "Normal")
	require.NoError(t, err)
	assert.Len(t, history, 2, "issues do not block the write")
}

func TestStabilityIssueString(t *testing.T) {
	assert.Equal(t, "m V: export tag changed from A to B",
		StabilityIssue{Kind: IssueTagChanged, Model: "m", Variant: "V", ExportTag: "B", Previous: "A"}.String())
	assert.Equal(t, "m V: export tag T already belongs to o W",
		StabilityIssue{Kind: IssueTagReused, Model: "m", Variant: "V", ExportTag: "T", Previous: "o W"}.String())
}

func TestMarshalOptionsIsCanonical(t *testing.T) {
	a, err := marshalOptions(map[string]any{"workers": 2, "tables": "basic"})
	require.NoError(t, err)
	assert.Equal(t, `{"tables":"basic","workers":2}`, a)

	empty, err := marshalOptions(nil)
	require.NoError(t, err)
	assert.Equal(t, "{}", empty)

	_, err = marshalOptions(map[string]any{"tolerance": 1e-8})
	assert.Error(t, err, "floats must be formatted by the caller")
}
