package cmd

import (
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/joinrace/joinrace/race"
	"github.com/joinrace/joinrace/race/chart"
	"github.com/joinrace/joinrace/race/table"
	"github.com/joinrace/joinrace/race/trace"
)

var (
	runOutputDir string // Directory every stage writes into
	metricsFile  string // Optional Prometheus text-format metrics output
)

// runCmd executes pair, detect, stats and chart in one pass
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run every pipeline stage on one log file",
	Run: func(cmd *cobra.Command, args []string) {
		unit := mustUnit(displayUnit)
		techniques := mustTechniqueTable()
		tech, err := techniques.Lookup(techniqueName)
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		metrics := newRunMetrics()
		info := runInfo(runLabel, tech.Name, logFile)
		logrus.Infof("Starting run %s (technique=%s, label=%s)", info.RunID, tech.Name, runLabel)

		start := time.Now()
		sessions, summary, err := pairStage(pairConfig{
			LogFile:   logFile,
			Technique: tech,
			Rooms:     roomFilter(roomNumber),
			Bins:      binOptions(),
			Trace:     trace.TraceConfig{Level: trace.TraceLevelCounts},
		})
		if summary != nil {
			metrics.observePairing(summary)
		}
		if err != nil {
			logrus.Fatalf("Pairing failed: %v", err)
		}
		sessionsPath := outputPath(runOutputDir, runLabel+"_sessions.csv")
		if err := table.WriteSessionsFile(sessionsPath, sessions); err != nil {
			logrus.Fatalf("Failed to write sessions: %v", err)
		}
		metrics.observeStage("pair", start)

		start = time.Now()
		anomaliesPath := outputPath(runOutputDir, runLabel+"_anomalies.csv")
		records, err := detectStage(sessions, tech, race.DetectOptions{Workers: workers}, info, detectOutputs{
			ResultFile:     anomaliesPath,
			DetailedOutput: outputPath(runOutputDir, runLabel+"_detailed.txt"),
			SQLite:         sqlitePath,
		})
		if err != nil {
			logrus.Fatalf("Detection failed: %v", err)
		}
		metrics.observeAnomalies(records, tech.Rules.Labels())
		metrics.observeStage("detect", start)

		start = time.Now()
		if _, err := statsStage(os.Stdout, info, records, unit, techniques, outputPath(runOutputDir, runLabel+"_analysis.xlsx")); err != nil {
			logrus.Fatalf("Aggregation failed: %v", err)
		}
		metrics.observeStage("stats", start)

		start = time.Now()
		series := []chart.Series{{Label: runLabel, Records: records}}
		if _, err := chart.Render(series, chart.Options{OutputDir: runOutputDir, Prefix: runLabel, Techniques: techniques}); err != nil {
			logrus.Fatalf("Chart rendering failed: %v", err)
		}
		metrics.observeStage("chart", start)

		if metricsFile != "" {
			if err := metrics.write(metricsFile); err != nil {
				logrus.Fatalf("Failed to write metrics: %v", err)
			}
			logrus.Infof("metrics written: %s", metricsFile)
		}
		logrus.Infof("Run %s complete.", info.RunID)
	},
}

func init() {
	runCmd.Flags().StringVar(&logFile, "log_file", "", "Log file to scan (.sz files are snappy-decoded)")
	runCmd.Flags().StringVar(&runLabel, "label", "", "Run label used in every output file name")
	runCmd.Flags().StringVar(&techniqueName, "technique", "lock", "Technique whose event tags the log uses")
	runCmd.Flags().IntVar(&roomNumber, "room_number", 0, "Only analyse this room (0 = all rooms)")
	runCmd.Flags().StringVar(&runOutputDir, "output_dir", "output", "Directory for every output file")
	runCmd.Flags().StringVar(&sqlitePath, "sqlite", "", "Optional SQLite database to store the run in")
	runCmd.Flags().StringVar(&metricsFile, "metrics_file", "", "Optional Prometheus text-format metrics output")
	runCmd.Flags().IntVar(&workers, "workers", 1, "Rooms analysed concurrently")
	runCmd.Flags().StringVar(&displayUnit, "unit", "ns", "Timing unit (ns, us, ms)")
	addBinFlags(runCmd)
	_ = runCmd.MarkFlagRequired("log_file")
	_ = runCmd.MarkFlagRequired("label")

	rootCmd.AddCommand(runCmd)
}
