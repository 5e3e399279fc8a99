package cmd

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/joinrace/joinrace/race"
	"github.com/joinrace/joinrace/race/report"
	"github.com/joinrace/joinrace/race/table"
	"github.com/joinrace/joinrace/race/trace"
)

var (
	logFile       string // Input log file (plain or .sz)
	techniqueName string // Technique whose tags the log uses
	roomNumber    int    // Restrict pairing to one room; 0 means all rooms
	sessionsCSV   string // Sessions CSV output
	xlsxOutput    string // Optional workbook output
	outputDir     string // Directory relative output paths are placed in
	binSize       int    // Sessions per bin (chunk strategy)
	maxBins       int    // Maximum bins per room
	binStrategy   string // chunk or even
	traceLevel    string // counts or records
)

// binOptions builds bin parameters from the shared flags.
func binOptions() race.BinOptions {
	return race.BinOptions{Size: binSize, Max: maxBins, Strategy: race.BinStrategy(binStrategy)}
}

// roomFilter converts --room_number into a room list.
func roomFilter(room int) []int {
	if room <= 0 {
		return nil
	}
	return []int{room}
}

// addBinFlags registers the bin flags on cmd.
func addBinFlags(cmd *cobra.Command) {
	cmd.Flags().IntVar(&binSize, "bin_size", 20, "Sessions per bin (chunk strategy)")
	cmd.Flags().IntVar(&maxBins, "max_bins", 10, "Maximum number of bins per room")
	cmd.Flags().StringVar(&binStrategy, "bin_strategy", string(race.BinChunk), "Bin strategy (chunk, even)")
}

// pairCmd turns a raw log into a sessions CSV
var pairCmd = &cobra.Command{
	Use:   "pair",
	Short: "Pair start and terminal log events into sessions",
	Run: func(cmd *cobra.Command, args []string) {
		if !trace.IsValidTraceLevel(traceLevel) {
			logrus.Fatalf("Invalid trace level: %s", traceLevel)
		}
		tech := mustTechnique(techniqueName)
		sessions, _, err := pairStage(pairConfig{
			LogFile:   logFile,
			Technique: tech,
			Rooms:     roomFilter(roomNumber),
			Bins:      binOptions(),
			Trace:     trace.TraceConfig{Level: trace.TraceLevel(traceLevel)},
		})
		if err != nil {
			logrus.Fatalf("Pairing failed: %v", err)
		}

		csvPath := outputPath(outputDir, sessionsCSV)
		if err := table.WriteSessionsFile(csvPath, sessions); err != nil {
			logrus.Fatalf("Failed to write sessions: %v", err)
		}
		logrus.Infof("sessions written: %s", csvPath)

		if xlsxOutput != "" {
			path := outputPath(outputDir, xlsxOutput)
			if err := report.WriteSessionsWorkbook(path, sessions); err != nil {
				logrus.Fatalf("Failed to write workbook: %v", err)
			}
			logrus.Infof("sessions workbook written: %s", path)
		}
	},
}

func init() {
	pairCmd.Flags().StringVar(&logFile, "log_file", "", "Log file to scan (.sz files are snappy-decoded)")
	pairCmd.Flags().StringVar(&techniqueName, "technique", "lock", "Technique whose event tags the log uses")
	pairCmd.Flags().IntVar(&roomNumber, "room_number", 0, "Only pair events of this room (0 = all rooms)")
	pairCmd.Flags().StringVar(&sessionsCSV, "csv", "", "Sessions CSV output path")
	pairCmd.Flags().StringVar(&xlsxOutput, "xlsx", "", "Optional sessions workbook output path")
	pairCmd.Flags().StringVar(&outputDir, "output_dir", "", "Directory for relative output paths")
	pairCmd.Flags().StringVar(&traceLevel, "trace_level", string(trace.TraceLevelCounts), "Pairing trace detail (counts, records)")
	addBinFlags(pairCmd)
	_ = pairCmd.MarkFlagRequired("log_file")
	_ = pairCmd.MarkFlagRequired("csv")

	rootCmd.AddCommand(pairCmd)
}
