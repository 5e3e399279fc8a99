package cmd

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/joinrace/joinrace/race/chart"
	"github.com/joinrace/joinrace/race/table"
)

var (
	chartInputs []string // Anomalies CSVs to compare
	chartLabels []string // One label per input
	chartPrefix string   // File name prefix
	chartDir    string   // Directory for chart images
)

// loadSeries reads one anomalies CSV per label. inputs and labels are
// parallel lists and must have the same length.
func loadSeries(inputs, labels []string) ([]chart.Series, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("no inputs given")
	}
	if len(inputs) != len(labels) {
		return nil, fmt.Errorf("got %d inputs but %d labels; --inputs and --labels must pair up", len(inputs), len(labels))
	}
	series := make([]chart.Series, 0, len(inputs))
	for i, path := range inputs {
		records, err := table.ReadAnomaliesFile(path)
		if err != nil {
			return nil, err
		}
		series = append(series, chart.Series{Label: labels[i], Records: records})
	}
	return series, nil
}

// chartCmd renders comparison charts
var chartCmd = &cobra.Command{
	Use:   "chart",
	Short: "Render comparison charts from one or more anomalies CSVs",
	Run: func(cmd *cobra.Command, args []string) {
		series, err := loadSeries(chartInputs, chartLabels)
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		paths, err := chart.Render(series, chart.Options{OutputDir: chartDir, Prefix: chartPrefix, Techniques: mustTechniqueTable()})
		if err != nil {
			logrus.Fatalf("Chart rendering failed: %v", err)
		}
		logrus.Infof("%d charts written to %s", len(paths), chartDir)
	},
}

func init() {
	chartCmd.Flags().StringSliceVar(&chartInputs, "inputs", nil, "Comma-separated anomalies CSVs")
	chartCmd.Flags().StringSliceVar(&chartLabels, "labels", nil, "Comma-separated labels, one per input")
	chartCmd.Flags().StringVar(&chartDir, "output_dir", "charts", "Directory for chart images")
	chartCmd.Flags().StringVar(&chartPrefix, "prefix", "", "Chart file name prefix")
	_ = chartCmd.MarkFlagRequired("inputs")
	_ = chartCmd.MarkFlagRequired("labels")

	rootCmd.AddCommand(chartCmd)
}
