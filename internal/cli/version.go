package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/cellc/internal/ir"
	"github.com/roach88/cellc/internal/scheme"
	"github.com/roach88/cellc/models"
)

// VersionInfo is the output of the version command.
type VersionInfo struct {
	Translator string   `json:"translator"`
	Version    string   `json:"version"`
	IRVersion  string   `json:"ir_version"`
	Variants   []string `json:"variants"`
	Models     []string `json:"models"`
}

// NewVersionCommand creates the version command.
func NewVersionCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "version",
		Short:         "Print the translator version, variants and bundled models",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			info := VersionInfo{
				Translator: ir.TranslatorName,
				Version:    ir.TranslatorVersion,
				IRVersion:  ir.IRVersion,
				Models:     models.Names(),
			}
			for _, v := range scheme.AllVariants() {
				info.Variants = append(info.Variants, v.String())
			}
			return rootOpts.formatter(cmd).Render(info, nil, func(w io.Writer) {
				fmt.Fprintf(w, "%s %s (IR %s)\n", info.Translator, info.Version, info.IRVersion)
				fmt.Fprintf(w, "variants: %d\n", len(info.Variants))
				for _, m := range info.Models {
					fmt.Fprintf(w, "model: %s\n", m)
				}
			})
		},
	}
}
