package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/cellc/internal/classify"
	"github.com/roach88/cellc/internal/pipeline"
	"github.com/roach88/cellc/internal/scheme"
)

// ClassifyOptions holds flags for the classify command.
type ClassifyOptions struct {
	*RootOptions
	Variant string // also select the update rule of each state
}

// StateClass is the classification of one state in command output.
type StateClass struct {
	Index   int    `json:"index"`
	State   string `json:"state"`
	Form    string `json:"form"`
	Summary string `json:"summary"`
	Block   int    `json:"block"`
	Rule    string `json:"rule,omitempty"`
}

// ClassifyResult is the output of the classify command.
type ClassifyResult struct {
	Model   string           `json:"model"`
	Variant string           `json:"variant,omitempty"`
	States  []StateClass     `json:"states"`
	Blocks  []classify.Block `json:"blocks"`
}

// NewClassifyCommand creates the classify command.
func NewClassifyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ClassifyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "classify <model>",
		Short: "Show how each state derivative is classified",
		Long: `Classify every state derivative of a model as a gate, linear or
nonlinear, and list the nonlinear blocks solved together by Newton
iteration. With --variant, also show the update rule each state gets
in that variant.

Examples:
  cellc classify beeler_reuter_1977
  cellc classify model.cue#cell --variant BackwardEuler`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClassify(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Variant, "variant", "", "variant whose update rules to show")

	return cmd
}

func runClassify(opts *ClassifyOptions, ref string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	m, err := pipeline.LoadModel(ref)
	if err != nil {
		return formatter.Fail(err)
	}
	r := classify.Classify(m)

	out := ClassifyResult{Model: m.Name(), Blocks: r.Blocks}
	if out.Blocks == nil {
		out.Blocks = []classify.Block{}
	}
	for _, c := range r.States {
		out.States = append(out.States, StateClass{
			Index:   c.Index,
			State:   c.State,
			Form:    c.Form.String(),
			Summary: c.String(),
			Block:   c.Block,
		})
	}

	if opts.Variant != "" {
		v, err := scheme.ParseVariant(opts.Variant)
		if err != nil {
			return formatter.Fail(withCode(ErrCodeUsage, err))
		}
		plan, err := scheme.Select(r, v, scheme.DefaultOptions())
		if err != nil {
			return formatter.Fail(err)
		}
		out.Variant = v.String()
		for i, rule := range plan.States {
			out.States[i].Rule = rule.Rule.String()
		}
	}

	return formatter.Render(out, nil, func(w io.Writer) {
		io.WriteString(w, classify.Report(r))
		if out.Variant == "" {
			return
		}
		fmt.Fprintf(w, "variant %s\n", out.Variant)
		for _, s := range out.States {
			fmt.Fprintf(w, "%d %s %s\n", s.Index, s.State, s.Rule)
		}
	})
}
