package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/normanking/lipsync/internal/avatar3d"
	"github.com/normanking/lipsync/internal/morph"
)

// drivenTargets are the shapes lipsync writes every frame.
func drivenTargets() []string {
	var names []string
	for _, idx := range avatar3d.MouthTargets() {
		names = append(names, idx.String())
	}
	return append(names, avatar3d.EyeBlinkLeft.String(), avatar3d.EyeBlinkRight.String())
}

func newInspectCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:         "inspect <model.glb>",
		Short:       "Report which lipsync targets a glTF model provides",
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{skipConfigLoad: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			dict, err := morph.LoadDictionary(args[0])
			if err != nil {
				return err
			}
			report := dict.Coverage(drivenTargets())

			if asJSON {
				return writeJSON(cmd, struct {
					Meshes []morph.MeshTargets `json:"meshes"`
					morph.Report
				}{dict.Meshes, report})
			}

			out := cmd.OutOrStdout()
			for _, m := range dict.Meshes {
				fmt.Fprintf(out, "%-24s %d targets\n", m.Name, len(m.Targets))
			}
			fmt.Fprintf(out, "\ncovered %d/%d\n", len(report.Covered), len(report.Covered)+len(report.Missing))
			for _, n := range report.Missing {
				fmt.Fprintf(out, "  missing %s\n", n)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the report as JSON")
	return cmd
}
