package colormeter

import (
	"fmt"
	"math"
	"net/http"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"
	"github.com/sirupsen/logrus"

	"github.com/ztkent/color-meter/internal/tools"
)

// Serve the homepage
func (m *CMeter) ServeDashboard() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fileContent, err := templateFiles.ReadFile("html/dashboard.html")
		if err != nil {
			http.Error(w, fmt.Sprintf("failed to read embedded html file: %v", err), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusOK)
		w.Write(fileContent)
	}
}

// Serve the controls for the sensor, start/stop/sample/led/thresholds
func (m *CMeter) ServeControls() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m.executeTemplate(w, "html/controls.gohtml", nil)
	}
}

type SensorStatus struct {
	Connected       bool
	Enabled         bool
	Running         bool
	Armed           bool
	Latched         bool
	Low             uint16
	High            uint16
	Gain            string
	IntegrationTime string
}

func (m *CMeter) status() SensorStatus {
	if m.TCS34725 == nil {
		return SensorStatus{}
	}
	low, high, armed := m.Thresholds()
	latched, err := m.InterruptLatched()
	if err != nil {
		logrus.WithError(err).Warn("Failed to read the sensor status register")
	}
	return SensorStatus{
		Connected:       true,
		Enabled:         m.Enabled(),
		Running:         m.Running(),
		Armed:           armed,
		Latched:         latched,
		Low:             low,
		High:            high,
		Gain:            m.Gain().String(),
		IntegrationTime: m.IntegrationTime().String(),
	}
}

// Status of the sensor
func (m *CMeter) ServeSensorStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m.executeTemplate(w, "html/status.gohtml", m.status())
	}
}

// Serve the lux and color temperature graphs for readings in the date range
func (m *CMeter) ServeResultsGraph() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startDate, endDate := tools.ParseStartAndEndDate(r, m.Location, EVENTS_SPAN)

		var luxValues, cctValues []opts.LineData
		var timeValues []string
		var maxLux int
		for _, reading := range m.History.All() {
			ts := reading.Time.UTC().Format(tools.LayoutDB)
			if ts < startDate || ts > endDate {
				continue
			}
			if reading.Lux > float64(maxLux) {
				// Round up to the nearest 500
				maxLux = int(math.Ceil(reading.Lux/500) * 500)
			}
			// Indeterminate temperatures are left as gaps.
			cct := opts.LineData{Value: "-"}
			if reading.ColorTemperatureValid {
				cct = opts.LineData{Value: math.Round(reading.ColorTemperature)}
			}
			luxValues = append(luxValues, opts.LineData{Value: reading.Lux})
			cctValues = append(cctValues, cct)
			timeValues = append(timeValues, reading.Time.In(m.Location).Format(tools.LayoutDB))
		}

		lux := newLineChart("Lux", "color-meter-lux", "0", fmt.Sprintf("%d", maxLux))
		lux.SetXAxis(timeValues).AddSeries("Lux", luxValues,
			charts.WithLineChartOpts(opts.LineChart{Color: "Yellow"}),
		)
		cct := newLineChart("CCT (K)", "color-meter-cct", "1000", "")
		cct.SetXAxis(timeValues).AddSeries("Color Temperature", cctValues,
			charts.WithLineChartOpts(opts.LineChart{Color: "SkyBlue"}),
		)

		page := components.NewPage()
		page.AddCharts(lux, cct)

		w.Header().Set("Content-Type", "text/html")
		if err := page.Render(w); err != nil {
			logrus.WithError(err).Error("Failed to render graph")
			return
		}
		// Trigger an update for the results tab
		w.Write([]byte(`<div id='resultUpdateTrigger' hx-post='/colormeter/results' hx-target='#resultsContent' hx-trigger='load'></div>`))
		w.Write([]byte(`<script>document.title = "Color Meter";</script>`))
	}
}

func newLineChart(yName, imageName, min, max string) *charts.Line {
	yAxis := opts.YAxis{Name: yName, Min: min}
	if max != "" && max != "0" {
		yAxis.Max = max
	}
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme: types.ThemeChalk,
		}),
		charts.WithXAxisOpts(opts.XAxis{
			Name: "Time",
		}),
		charts.WithYAxisOpts(yAxis),
		charts.WithTooltipOpts(opts.Tooltip{
			Show:      true,
			Trigger:   "axis",
			TriggerOn: "mousemove",
		}),
		charts.WithToolboxOpts(opts.Toolbox{
			Show: true,
			Feature: &opts.ToolBoxFeature{
				SaveAsImage: &opts.ToolBoxFeatureSaveAsImage{
					Show:  true,
					Title: "Save as Image",
					Name:  imageName,
				},
			},
		}),
	)
	return line
}

type ResultsForDisplay struct {
	JobID             string
	Clear             uint16
	Red               uint16
	Green             uint16
	Blue              uint16
	RGB               string
	Lux               string
	ColorTemperature  string
	Gain              string
	IntegrationTime   string
	Time              string
	ReadingsInRange   int
	AverageLuxInRange string
	StartDate         string
	EndDate           string
}

// Update the info in the results tab
func (m *CMeter) ServeResultsTab() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startDate, endDate := tools.ParseStartAndEndDate(r, m.Location, EVENTS_SPAN)
		m.executeTemplate(w, "html/results.gohtml", m.results(startDate, endDate))
	}
}

func (m *CMeter) results(startDate, endDate string) ResultsForDisplay {
	display := ResultsForDisplay{StartDate: startDate, EndDate: endDate}
	if latest, ok := m.History.Latest(); ok {
		red, green, blue := latest.RGB()
		display.JobID = latest.JobID
		display.Clear = latest.Clear
		display.Red = latest.Red
		display.Green = latest.Green
		display.Blue = latest.Blue
		display.RGB = fmt.Sprintf("#%02x%02x%02x", red, green, blue)
		display.Lux = fmt.Sprintf("%.4f", latest.Lux)
		display.ColorTemperature = "n/a"
		if latest.ColorTemperatureValid {
			display.ColorTemperature = fmt.Sprintf("%.0f K", latest.ColorTemperature)
		}
		display.Gain = latest.Gain
		display.IntegrationTime = latest.IntegrationTime
		display.Time = latest.Time.In(m.Location).Format(tools.LayoutDB)
	}

	var total float64
	for _, reading := range m.History.All() {
		ts := reading.Time.UTC().Format(tools.LayoutDB)
		if ts < startDate || ts > endDate {
			continue
		}
		total += reading.Lux
		display.ReadingsInRange++
	}
	if display.ReadingsInRange > 0 {
		display.AverageLuxInRange = fmt.Sprintf("%.4f", total/float64(display.ReadingsInRange))
	}
	return display
}

func (m *CMeter) executeTemplate(w http.ResponseWriter, path string, data interface{}) {
	tmpl, err := parseTemplateFile(path)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if err := tmpl.Execute(w, data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// Used to clear a div with htmx
func (m *CMeter) Clear() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
	}
}
