package report

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"edgeprobe/internal/models"
)

// errTooFewPoints marks a series too short to chart; callers skip it.
var errTooFewPoints = errors.New("need at least two days of data")

var (
	axisStyle = chart.Style{
		StrokeColor: drawing.ColorBlack,
		FontSize:    10,
	}
	gridStyle = chart.Style{
		StrokeColor: drawing.Color{R: 200, G: 200, B: 200, A: 255},
		StrokeWidth: 1.0,
	}
	padding = chart.Style{
		Padding: chart.Box{
			Top:    20,
			Left:   20,
			Right:  20,
			Bottom: 20,
		},
	}
)

func render(graph chart.Chart, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	if err := graph.Render(chart.PNG, file); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

func (g *Generator) generateLatencyChart(outputDir string, s *series) error {
	days, p50, p90 := s.latencyPoints()
	if len(days) < 2 {
		return fmt.Errorf("%s: %w", s.label(), errTooFewPoints)
	}

	graph := chart.Chart{
		Title: fmt.Sprintf("Daily Latency - %s", s.label()),
		TitleStyle: chart.Style{
			FontSize: 16,
		},
		Background: padding,
		Width:      1200,
		Height:     400,
		XAxis: chart.XAxis{
			Name:           "Day (UTC)",
			Style:          axisStyle,
			ValueFormatter: chart.TimeValueFormatterWithFormat("2006-01-02"),
		},
		YAxis: chart.YAxis{
			Name:           "Latency (ms)",
			Style:          axisStyle,
			GridMajorStyle: gridStyle,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name: "p50",
				Style: chart.Style{
					StrokeColor: chart.GetDefaultColor(0),
					StrokeWidth: 2,
				},
				XValues: days,
				YValues: p50,
			},
			chart.TimeSeries{
				Name: "p90",
				Style: chart.Style{
					StrokeColor:     chart.GetDefaultColor(1),
					StrokeWidth:     2,
					StrokeDashArray: []float64{5, 5},
				},
				XValues: days,
				YValues: p90,
			},
		},
	}

	// Weekly trend of the median once there is enough history
	if len(p50) > 7 {
		graph.Series = append(graph.Series, chart.SMASeries{
			Name: "p50 7-day avg",
			Style: chart.Style{
				StrokeColor: chart.GetDefaultColor(2),
				StrokeWidth: 1,
			},
			InnerSeries: graph.Series[0].(chart.TimeSeries),
			Period:      7,
		})
	}
	graph.Elements = []chart.Renderable{
		chart.Legend(&graph),
	}

	name := fmt.Sprintf("latency_%s_%s_%s.png", s.testType, sanitizeFilename(s.provider), sanitizeFilename(s.method))
	return render(graph, filepath.Join(outputDir, name))
}

func (g *Generator) generateSuccessRateChart(outputDir string, tt models.TestType, all []*series) error {
	var allSeries []chart.Series
	colorIndex := 0

	for _, s := range all {
		if s.testType != tt || len(s.rows) < 2 {
			continue
		}
		days := make([]time.Time, 0, len(s.rows))
		rates := make([]float64, 0, len(s.rows))
		for _, r := range s.rows {
			days = append(days, models.DayStart(r.Date))
			rates = append(rates, r.SuccessRate*100)
		}
		allSeries = append(allSeries, chart.TimeSeries{
			Name: fmt.Sprintf("%s %s", s.provider, s.method),
			Style: chart.Style{
				StrokeColor: chart.GetDefaultColor(colorIndex),
				StrokeWidth: 2,
			},
			XValues: days,
			YValues: rates,
		})
		colorIndex++
	}
	if len(allSeries) == 0 {
		return nil
	}

	graph := chart.Chart{
		Title: fmt.Sprintf("Daily Success Rate (%s)", tt),
		TitleStyle: chart.Style{
			FontSize: 16,
		},
		Background: padding,
		Width:      1200,
		Height:     400,
		XAxis: chart.XAxis{
			Name:           "Day (UTC)",
			Style:          axisStyle,
			ValueFormatter: chart.TimeValueFormatterWithFormat("2006-01-02"),
		},
		YAxis: chart.YAxis{
			Name:  "Success %",
			Style: axisStyle,
			Range: &chart.ContinuousRange{
				Min: 0,
				Max: 100,
			},
			GridMajorStyle: gridStyle,
		},
		Series: allSeries,
	}
	graph.Elements = []chart.Renderable{
		chart.Legend(&graph),
	}

	return render(graph, filepath.Join(outputDir, fmt.Sprintf("success_rate_%s.png", tt)))
}
