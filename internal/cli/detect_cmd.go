package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/lucasnoah/devloop/internal/detect"
)

var detectCmd = &cobra.Command{
	Use:          "detect",
	Short:        "Show the detected project configuration",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		baseBranch, _ := cmd.Flags().GetString("base-branch")
		format, _ := cmd.Flags().GetString("format")

		project := detect.All(".", baseBranch)
		w := cmd.OutOrStdout()
		switch format {
		case "text":
			fmt.Fprintln(w, project.String())
		case "json":
			out, err := json.MarshalIndent(project, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(w, string(out))
		case "yaml":
			out, err := yaml.Marshal(project)
			if err != nil {
				return err
			}
			fmt.Fprint(w, string(out))
		default:
			return fmt.Errorf("unknown format %q (want text, json, or yaml)", format)
		}
		return nil
	},
}

func init() {
	f := detectCmd.Flags()
	f.String("base-branch", "main", "Base branch for changed-file detection")
	f.String("format", "text", "Output format: text, json, or yaml")
}
