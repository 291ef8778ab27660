package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/clearfile/credit-cli/internal/consensus"
	"github.com/clearfile/credit-cli/internal/document"
)

var (
	analyzeFormat string
	analyzeUser   string
	analyzeSave   bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [file]",
	Short: "Run a multi-model consensus analysis on a credit report",
	Long:  "Reads report text from the given file (or stdin when the argument is \"-\" or omitted), runs every enabled model against it, and prints the reconciled consensus result.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := ""
		if len(args) > 0 {
			path = args[0]
		}
		documentText, err := document.NewReader(os.Stdin).Load(cmd.Context(), path)
		if err != nil {
			return err
		}

		env, err := initAnalysis(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		result, err := env.Engine.AnalyzeWithConsensus(cmd.Context(), documentText, analyzeUser)
		if err != nil {
			return err
		}

		if analyzeSave {
			if env.Store == nil {
				return eris.New("--save requires a configured store driver")
			}
			rec, err := env.Store.SaveAnalysis(cmd.Context(), result, analyzeUser)
			if err != nil {
				return err
			}
			zap.L().Info("analysis saved", zap.String("analysis_id", rec.ID))
		}

		return writeResult(cmd.OutOrStdout(), result, analyzeFormat)
	},
}

// writeResult renders the consensus result in the requested format.
func writeResult(w io.Writer, result *consensus.Result, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return eris.Wrap(enc.Encode(result), "encode json")
	case "yaml":
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return eris.Wrap(enc.Encode(result), "encode yaml")
	default:
		return fmt.Errorf("unknown format %q (want json or yaml)", format)
	}
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeFormat, "format", "json", "output format: json or yaml")
	analyzeCmd.Flags().StringVar(&analyzeUser, "user", "", "user ID to attach to the analysis")
	analyzeCmd.Flags().BoolVar(&analyzeSave, "save", false, "persist the result to the configured store")
	rootCmd.AddCommand(analyzeCmd)
}
