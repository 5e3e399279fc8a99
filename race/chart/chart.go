// Package chart renders comparison charts across one or more labelled
// anomaly data sets. Every chart is a PNG named <prefix>_<suffix>.png.
package chart

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/joinrace/joinrace/race"
	"github.com/joinrace/joinrace/race/stats"
)

// Chart file suffixes.
const (
	SuffixOutcomes    = "outcome_distribution"
	SuffixRates       = "anomaly_rates"
	SuffixWaitTimes   = "wait_time_distribution"
	SuffixLoadTrend   = "load_trend"
	SuffixRoomAnomaly = "per_room_anomalies"
)

const (
	chartWidth  = 10 * vg.Inch
	chartHeight = 6 * vg.Inch
)

var barWidth = vg.Points(14)

// Series is one labelled data set, typically one anomalies CSV.
type Series struct {
	Label   string
	Records []race.AnomalyRecord
}

// Options controls where charts are written.
type Options struct {
	OutputDir  string
	Prefix     string
	Techniques race.TechniqueTable // resolves reported rules; nil means the built-ins
}

// Path returns the file a chart with suffix is written to.
func (o Options) Path(suffix string) string {
	name := suffix + ".png"
	if o.Prefix != "" {
		name = o.Prefix + "_" + name
	}
	return filepath.Join(o.OutputDir, name)
}

type builder struct {
	suffix string
	build  func([]Series, Options) (*plot.Plot, error)
}

var builders = []builder{
	{SuffixOutcomes, outcomeChart},
	{SuffixRates, rateChart},
	{SuffixWaitTimes, waitChart},
	{SuffixLoadTrend, loadTrendChart},
	{SuffixRoomAnomaly, roomAnomalyChart},
}

// errNoData marks a chart with nothing to draw; it is skipped, not fatal.
var errNoData = errors.New("no data")

// Render writes every chart for series and returns the paths written.
// Charts without data are skipped with a warning.
func Render(series []Series, opts Options) ([]string, error) {
	if len(series) == 0 {
		return nil, fmt.Errorf("no input series")
	}
	if opts.OutputDir != "" {
		if err := os.MkdirAll(opts.OutputDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating directory %s: %w", opts.OutputDir, err)
		}
	}
	var written []string
	for _, b := range builders {
		p, err := b.build(series, opts)
		if errors.Is(err, errNoData) {
			logrus.Warnf("skipping %s chart: no data", b.suffix)
			continue
		}
		if err != nil {
			return written, fmt.Errorf("building %s chart: %w", b.suffix, err)
		}
		path := opts.Path(b.suffix)
		if err := p.Save(chartWidth, chartHeight, path); err != nil {
			return written, fmt.Errorf("saving %s: %w", path, err)
		}
		logrus.Infof("chart written: %s", path)
		written = append(written, path)
	}
	return written, nil
}

func newPlot(title, xLabel, yLabel string) *plot.Plot {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = xLabel
	p.Y.Label.Text = yLabel
	p.Legend.Top = true
	p.Add(plotter.NewGrid())
	return p
}

// groupedBars draws one bar per category per series, side by side.
func groupedBars(p *plot.Plot, categories []string, series []Series, value func(Series, int) float64) error {
	n := len(series)
	for i, s := range series {
		vals := make(plotter.Values, len(categories))
		for c := range categories {
			vals[c] = value(s, c)
		}
		bars, err := plotter.NewBarChart(vals, barWidth)
		if err != nil {
			return err
		}
		bars.LineStyle.Width = vg.Length(0)
		bars.Color = plotutil.Color(i)
		bars.Offset = barWidth * vg.Length(float64(i)-float64(n-1)/2)
		p.Add(bars)
		p.Legend.Add(s.Label, bars)
	}
	p.NominalX(categories...)
	return nil
}

var outcomes = []race.Outcome{race.OutcomeSuccess, race.OutcomeFailOverCapacity, race.OutcomeFailEntry, race.OutcomeUnknown}

func outcomeChart(series []Series, _ Options) (*plot.Plot, error) {
	total := 0
	for _, s := range series {
		total += len(s.Records)
	}
	if total == 0 {
		return nil, errNoData
	}
	categories := make([]string, len(outcomes))
	for i, o := range outcomes {
		categories[i] = string(o)
	}
	p := newPlot("Join outcome distribution", "outcome", "sessions")
	err := groupedBars(p, categories, series, func(s Series, c int) float64 {
		n := 0
		for _, r := range s.Records {
			if r.Outcome == outcomes[c] {
				n++
			}
		}
		return float64(n)
	})
	return p, err
}

func rateChart(series []Series, opts Options) (*plot.Plot, error) {
	var all []race.AnomalyRecord
	for _, s := range series {
		all = append(all, s.Records...)
	}
	if len(all) == 0 {
		return nil, errNoData
	}
	rules := stats.RulesFor(all, opts.Techniques)
	p := newPlot("Anomaly rate by rule", "rule", "rate (%)")
	err := groupedBars(p, rules, series, func(s Series, c int) float64 {
		rs := stats.ComputeRuleStats(s.Records, rules[c:c+1])
		return 100 * rs[0].Rate
	})
	return p, err
}

// durationsMicros collects metric m in microseconds.
func durationsMicros(records []race.AnomalyRecord, m stats.Metric) plotter.Values {
	var out plotter.Values
	for _, r := range records {
		if v, ok := m.Value(r.Session); ok {
			out = append(out, v/stats.UnitMicros.Divisor())
		}
	}
	return out
}

func waitChart(series []Series, _ Options) (*plot.Plot, error) {
	metric := stats.MetricWait
	found := false
	for _, s := range series {
		if len(durationsMicros(s.Records, metric)) > 0 {
			found = true
		}
	}
	if !found {
		metric = stats.MetricCriticalSection
	}

	p := newPlot(fmt.Sprintf("%s time distribution", metric), "label", "time (us)")
	p.Legend.Top = false
	labels := make([]string, len(series))
	drawn := 0
	for i, s := range series {
		labels[i] = s.Label
		vals := durationsMicros(s.Records, metric)
		if len(vals) == 0 {
			continue
		}
		box, err := plotter.NewBoxPlot(vg.Points(30), float64(i), vals)
		if err != nil {
			return nil, err
		}
		box.FillColor = plotutil.Color(i)
		p.Add(box)
		drawn++
	}
	if drawn == 0 {
		return nil, errNoData
	}
	p.NominalX(labels...)
	return p, nil
}

func loadTrendChart(series []Series, _ Options) (*plot.Plot, error) {
	p := newPlot("Mean critical-section time per bin", "bin", "time (us)")
	drawn := 0
	for i, s := range series {
		sums := map[int]float64{}
		counts := map[int]int{}
		for _, r := range s.Records {
			if v, ok := stats.MetricCriticalSection.Value(r.Session); ok {
				sums[r.Bin] += v / stats.UnitMicros.Divisor()
				counts[r.Bin]++
			}
		}
		if len(counts) == 0 {
			continue
		}
		bins := make([]int, 0, len(counts))
		for b := range counts {
			bins = append(bins, b)
		}
		sort.Ints(bins)
		pts := make(plotter.XYs, len(bins))
		for j, b := range bins {
			pts[j].X = float64(b)
			pts[j].Y = sums[b] / float64(counts[b])
		}
		line, points, err := plotter.NewLinePoints(pts)
		if err != nil {
			return nil, err
		}
		line.Color = plotutil.Color(i)
		line.Dashes = plotutil.Dashes(i)
		points.Color = plotutil.Color(i)
		points.Shape = plotutil.Shape(i)
		p.Add(line, points)
		p.Legend.Add(s.Label, line, points)
		drawn++
	}
	if drawn == 0 {
		return nil, errNoData
	}
	return p, nil
}

func roomAnomalyChart(series []Series, _ Options) (*plot.Plot, error) {
	roomSet := map[int]bool{}
	for _, s := range series {
		for _, r := range s.Records {
			roomSet[r.RoomID] = true
		}
	}
	if len(roomSet) == 0 {
		return nil, errNoData
	}
	rooms := make([]int, 0, len(roomSet))
	for room := range roomSet {
		rooms = append(rooms, room)
	}
	sort.Ints(rooms)
	categories := make([]string, len(rooms))
	for i, room := range rooms {
		categories[i] = strconv.Itoa(room)
	}

	p := newPlot("Anomalous sessions per room", "room", "sessions")
	err := groupedBars(p, categories, series, func(s Series, c int) float64 {
		n := 0
		for _, r := range s.Records {
			if r.RoomID == rooms[c] && r.IsAnomalous() {
				n++
			}
		}
		return float64(n)
	})
	return p, err
}
