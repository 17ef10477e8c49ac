package history

import (
	"encoding/json"
	"os"
	"time"

	"github.com/pkg/errors"
)

// PlotData is a chart document for an external renderer.
type PlotData struct {
	PlotType  string       `json:"plot_type"`
	Title     string       `json:"title"`
	Timestamp time.Time    `json:"timestamp"`
	ModelName string       `json:"model_name"`
	Series    []SeriesData `json:"series"`
	Config    PlotConfig   `json:"config"`
}

type SeriesData struct {
	Name string      `json:"name"`
	Type string      `json:"type"`
	Data []DataPoint `json:"data"`
}

type DataPoint struct {
	X interface{} `json:"x"`
	Y interface{} `json:"y"`
}

type PlotConfig struct {
	XAxisLabel string `json:"x_axis_label"`
	YAxisLabel string `json:"y_axis_label"`
	XAxisScale string `json:"x_axis_scale"`
	YAxisScale string `json:"y_axis_scale"`
	ShowLegend bool   `json:"show_legend"`
	ShowGrid   bool   `json:"show_grid"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
}

// NewPlot turns every sequence of s into a line series indexed by
// validation event.
func NewPlot(s Series, model, title string) PlotData {
	plot := PlotData{
		PlotType:  "training_curves",
		Title:     title,
		Timestamp: time.Now(),
		ModelName: model,
		Config: PlotConfig{
			XAxisLabel: "Validation",
			YAxisLabel: "Value",
			XAxisScale: "linear",
			YAxisScale: "linear",
			ShowLegend: true,
			ShowGrid:   true,
			Width:      800,
			Height:     600,
		},
	}
	for _, name := range s.Names() {
		points := make([]DataPoint, len(s[name]))
		for i, v := range s[name] {
			points[i] = DataPoint{X: i, Y: v}
		}
		plot.Series = append(plot.Series, SeriesData{Name: name, Type: "line", Data: points})
	}
	return plot
}

// Plot writes the chart document for s to path.
func Plot(s Series, model, title, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "create plot")
	}
	defer f.Close()

	encoder := json.NewEncoder(f)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(NewPlot(s, model, title)); err != nil {
		return errors.Wrap(err, "encode plot")
	}
	return nil
}
