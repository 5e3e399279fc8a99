package cmd

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/joinrace/joinrace/race/stats"
	"github.com/joinrace/joinrace/race/table"
)

var (
	displayUnit    string // ns, us or ms
	statsOutputDir string // Directory for the report workbook
)

// mustUnit parses --unit or exits.
func mustUnit(s string) stats.Unit {
	u, ok := stats.ParseUnit(s)
	if !ok {
		logrus.Fatalf("Invalid unit: %s (want ns, us or ms)", s)
	}
	return u
}

// statsCmd aggregates an anomalies CSV into the report workbook
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Aggregate anomaly records into per-rule, per-room and per-bin statistics",
	Run: func(cmd *cobra.Command, args []string) {
		unit := mustUnit(displayUnit)
		records, err := table.ReadAnomaliesFile(resultFile)
		if err != nil {
			logrus.Fatalf("Failed to read anomalies: %v", err)
		}
		if preprocessorFile != "" {
			sessions, err := table.ReadSessionsFile(preprocessorFile)
			if err != nil {
				logrus.Fatalf("Failed to read sessions: %v", err)
			}
			if len(sessions) != len(records) {
				logrus.Warnf("%s has %d sessions but %s has %d records; rates use the anomalies file",
					preprocessorFile, len(sessions), resultFile, len(records))
			}
		}

		technique := techniqueOf(stats.Sessions(records), "")
		label := runLabel
		if label == "" {
			label = technique
		}
		if label == "" {
			label = "analysis"
		}
		info := runInfo(label, technique, resultFile)

		workbook := outputPath(statsOutputDir, label+"_analysis.xlsx")
		if _, err := statsStage(os.Stdout, info, records, unit, mustTechniqueTable(), workbook); err != nil {
			logrus.Fatalf("Aggregation failed: %v", err)
		}
	},
}

func init() {
	statsCmd.Flags().StringVar(&resultFile, "result_file", "", "Anomalies CSV produced by detect")
	statsCmd.Flags().StringVar(&preprocessorFile, "preprocessor_file", "", "Optional sessions CSV to cross-check totals")
	statsCmd.Flags().StringVar(&runLabel, "label", "", "Report label (default technique name)")
	statsCmd.Flags().StringVar(&statsOutputDir, "output_dir", "reports", "Directory for the report workbook")
	statsCmd.Flags().StringVar(&displayUnit, "unit", "ns", "Timing unit (ns, us, ms)")
	_ = statsCmd.MarkFlagRequired("result_file")

	rootCmd.AddCommand(statsCmd)
}
