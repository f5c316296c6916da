package cli

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "cellc", cmd.Use)
	assert.Contains(t, cmd.Long, "RushLarsen")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"translate", "batch", "validate", "classify", "tables", "simulate", "check", "history", "version"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	levelFlag := cmd.PersistentFlags().Lookup("log-level")
	require.NotNil(t, levelFlag)
	assert.Equal(t, "warn", levelFlag.DefValue)
}

func TestTranslateCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	translateCmd, _, err := cmd.Find([]string{"translate"})
	require.NoError(t, err)

	outputFlag := translateCmd.Flags().Lookup("output")
	require.NotNil(t, outputFlag)
	assert.Equal(t, "o", outputFlag.Shorthand)

	variantFlag := translateCmd.Flags().Lookup("variant")
	require.NotNil(t, variantFlag)
	assert.Equal(t, "[Normal]", variantFlag.DefValue)

	for _, name := range []string{"tables", "sample-tables", "workers", "ledger", "metrics"} {
		assert.NotNil(t, translateCmd.Flags().Lookup(name), name)
	}
}

func TestRootRejectsInvalidGlobalFlags(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"format", []string{"version", "--format", "xml"}, `invalid format "xml"`},
		{"log level", []string{"version", "--log-level", "trace"}, `invalid log level "trace"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := execute(t, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
			assert.False(t, Reported(err))
		})
	}
}

func TestVersionCommand(t *testing.T) {
	out, _, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "cellc 0.4.0 (IR 1)")
	assert.Contains(t, out, "variants: 20")
	assert.Contains(t, out, "model: hodgkin_huxley_1952")

	out, _, err = execute(t, "version", "--format", "json")
	require.NoError(t, err)
	var info VersionInfo
	resp := decode(t, out, &info)
	assert.Equal(t, "ok", resp.Status)
	assert.Contains(t, info.Variants, "AnalyticCvodeDataClampOpt")
	assert.Len(t, info.Models, 5)
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		level     string
		format    string
		wantDebug bool
		wantWarn  bool
		wantJSON  bool
	}{
		{"debug", "text", true, true, false},
		{"info", "json", false, true, true},
		{"warn", "text", false, true, false},
		{"error", "text", false, false, false},
		{"bogus", "text", false, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.level+"_"+tt.format, func(t *testing.T) {
			buf := &bytes.Buffer{}
			log := newLogger(tt.level, tt.format, buf)

			assert.Equal(t, tt.wantDebug, log.Enabled(context.Background(), slog.LevelDebug))
			assert.Equal(t, tt.wantWarn, log.Enabled(context.Background(), slog.LevelWarn))

			log.Error("generation failed", "model", "m")
			if tt.wantJSON {
				assert.Contains(t, buf.String(), `"model":"m"`)
			} else {
				assert.Contains(t, buf.String(), "model=m")
			}
		})
	}
}

func TestVerboseImpliesDebugLogs(t *testing.T) {
	_, stderr, err := execute(t, "check", "linear_decay_backward_euler", "-v")
	require.NoError(t, err)
	assert.Contains(t, stderr, "level=DEBUG")
	assert.Contains(t, stderr, "scenario=linear_decay_backward_euler")
}
