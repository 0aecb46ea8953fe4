package monitor

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/sunosaathi/sanket/internal/httputil"
)

// echartsAssetsPrefix is the assets host stamped into rendered chart pages.
const echartsAssetsPrefix = "https://go-echarts.github.io/go-echarts-assets/assets/"

// viridisColors is the color ramp shared by the heatmap visual map.
var viridisColors = []string{"#440154", "#482777", "#3e4989", "#31688e", "#26828e", "#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725"}

// handleLossChart renders the train/val loss series as an HTML line chart.
// Query params:
//   - run_id (optional; defaults to the live runner's history)
func (ws *WebServer) handleLossChart(w http.ResponseWriter, r *http.Request) {
	history, source, err := ws.historyForRequest(r)
	if err != nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	if len(history) == 0 {
		httputil.NotFound(w, "no epochs recorded yet")
		return
	}

	epochs := make([]string, 0, len(history))
	trainLoss := make([]opts.LineData, 0, len(history))
	valLoss := make([]opts.LineData, 0, len(history))
	for _, h := range history {
		epochs = append(epochs, strconv.Itoa(h.Epoch))
		trainLoss = append(trainLoss, opts.LineData{Value: h.TrainLoss})
		valLoss = append(valLoss, opts.LineData{Value: h.ValLoss})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Training Loss", Theme: "dark", Width: "1200px", Height: "600px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Training vs Validation Loss", Subtitle: fmt.Sprintf("source=%s epochs=%d", source, len(history))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "epoch"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "loss"}),
	)

	line.SetXAxis(epochs).
		AddSeries("train", trainLoss).
		AddSeries("val", valLoss).
		SetSeriesOptions(charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true)}))

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// handleAccuracyChart renders the train/val accuracy series as an HTML line
// chart. Accuracies are stored as fractions and displayed as percentages.
// Query params:
//   - run_id (optional; defaults to the live runner's history)
func (ws *WebServer) handleAccuracyChart(w http.ResponseWriter, r *http.Request) {
	history, source, err := ws.historyForRequest(r)
	if err != nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	if len(history) == 0 {
		httputil.NotFound(w, "no epochs recorded yet")
		return
	}

	epochs := make([]string, 0, len(history))
	trainAcc := make([]opts.LineData, 0, len(history))
	valAcc := make([]opts.LineData, 0, len(history))
	for _, h := range history {
		epochs = append(epochs, strconv.Itoa(h.Epoch))
		trainAcc = append(trainAcc, opts.LineData{Value: h.TrainAcc * 100})
		valAcc = append(valAcc, opts.LineData{Value: h.ValAcc * 100})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Training Accuracy", Theme: "dark", Width: "1200px", Height: "600px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Training vs Validation Accuracy", Subtitle: fmt.Sprintf("source=%s epochs=%d", source, len(history))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "epoch"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "accuracy (%)", Max: 100}),
	)

	line.SetXAxis(epochs).
		AddSeries("train", trainAcc).
		AddSeries("val", valAcc).
		SetSeriesOptions(charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true)}))

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// handleAttentionChart renders the latest attention snapshot as an HTML
// heatmap: one row per held-out sequence, one column per window timestep.
func (ws *WebServer) handleAttentionChart(w http.ResponseWriter, r *http.Request) {
	if ws.runner == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "no training runner attached")
		return
	}
	attn := ws.runner.AttentionSnapshot()
	if len(attn) == 0 || len(attn[0]) == 0 {
		httputil.NotFound(w, "no attention weights recorded yet")
		return
	}

	steps := len(attn[0])
	timesteps := make([]string, 0, steps)
	for j := 0; j < steps; j++ {
		timesteps = append(timesteps, strconv.Itoa(j))
	}
	sequences := make([]string, 0, len(attn))
	data := make([]opts.HeatMapData, 0, len(attn)*steps)
	maxWeight := float64(0)
	for i, row := range attn {
		sequences = append(sequences, fmt.Sprintf("seq %d", i))
		for j, v := range row {
			if v > maxWeight {
				maxWeight = v
			}
			data = append(data, opts.HeatMapData{Value: [3]interface{}{j, i, v}})
		}
	}
	if maxWeight == 0 {
		maxWeight = 1
	}

	hm := charts.NewHeatMap()
	hm.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Attention Weights", Theme: "dark", Width: "1200px", Height: "600px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Attention Weights", Subtitle: fmt.Sprintf("sequences=%d timesteps=%d", len(attn), steps)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Type: "category", Name: "timestep", SplitArea: &opts.SplitArea{Show: opts.Bool(true)}}),
		charts.WithYAxisOpts(opts.YAxis{Type: "category", Data: sequences, SplitArea: &opts.SplitArea{Show: opts.Bool(true)}}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        float32(maxWeight),
			InRange:    &opts.VisualMapInRange{Color: viridisColors},
		}),
	)

	hm.SetXAxis(timesteps).AddSeries("attention", data)

	var buf bytes.Buffer
	if err := hm.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
