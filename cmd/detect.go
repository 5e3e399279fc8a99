package cmd

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/joinrace/joinrace/race"
	"github.com/joinrace/joinrace/race/table"
)

var (
	preprocessorFile string // Sessions CSV produced by pair
	resultFile       string // Anomalies CSV
	detailedOutput   string // Optional text report
	detectRooms      []int  // Restrict detection to these rooms
	sqlitePath       string // Optional SQLite database
	runLabel         string // Label stamped on the run
	workers          int    // Rooms analysed concurrently
)

// detectCmd evaluates a sessions CSV against the technique's rules
var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Flag sessions that violate concurrency invariants",
	Run: func(cmd *cobra.Command, args []string) {
		sessions, err := table.ReadSessionsFile(preprocessorFile)
		if err != nil {
			logrus.Fatalf("Failed to read sessions: %v", err)
		}
		name := techniqueName
		if !cmd.Flags().Changed("technique") {
			name = techniqueOf(sessions, name)
		}
		tech := mustTechnique(name)

		label := runLabel
		if label == "" {
			label = tech.Name
		}
		info := runInfo(label, tech.Name, preprocessorFile)
		logrus.Infof("run id %s", info.RunID)

		_, err = detectStage(sessions, tech, race.DetectOptions{Rooms: detectRooms, Workers: workers}, info, detectOutputs{
			ResultFile:     resultFile,
			DetailedOutput: detailedOutput,
			Workbook:       xlsxOutput,
			SQLite:         sqlitePath,
		})
		if err != nil {
			logrus.Fatalf("Detection failed: %v", err)
		}
	},
}

func init() {
	detectCmd.Flags().StringVar(&preprocessorFile, "preprocessor_file", "", "Sessions CSV produced by pair")
	detectCmd.Flags().StringVar(&resultFile, "result_file", "", "Anomalies CSV output path")
	detectCmd.Flags().StringVar(&detailedOutput, "detailed_output", "", "Optional text report of every anomalous session")
	detectCmd.Flags().IntSliceVar(&detectRooms, "rooms", nil, "Comma-separated rooms to analyse (default all)")
	detectCmd.Flags().StringVar(&xlsxOutput, "xlsx", "", "Optional workbook of anomalous sessions")
	detectCmd.Flags().StringVar(&sqlitePath, "sqlite", "", "Optional SQLite database to store the run in")
	detectCmd.Flags().StringVar(&runLabel, "label", "", "Run label (default technique name)")
	detectCmd.Flags().IntVar(&workers, "workers", 1, "Rooms analysed concurrently")
	detectCmd.Flags().StringVar(&techniqueName, "technique", "lock", "Technique rules to apply (default: the sessions' technique column)")
	_ = detectCmd.MarkFlagRequired("preprocessor_file")
	_ = detectCmd.MarkFlagRequired("result_file")

	rootCmd.AddCommand(detectCmd)
}
