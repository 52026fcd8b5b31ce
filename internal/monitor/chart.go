package monitor

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

const echartsAssetsPrefix = "https://go-echarts.github.io/go-echarts-assets/assets/"

// showChart renders the current pass and the running average of the
// active window. The page reloads itself every refresh seconds (default 2,
// 0 disables).
func (s *Server) showChart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	refresh := 2
	if v := r.URL.Query().Get("refresh"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSONError(w, http.StatusBadRequest, "invalid 'refresh' parameter")
			return
		}
		refresh = n
	}

	s.mu.RLock()
	t := s.trace
	status := s.state.Status
	s.mu.RUnlock()

	line := traceChart(t, string(status))
	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if refresh > 0 {
		w.Header().Set("Refresh", strconv.Itoa(refresh))
	}
	_, _ = w.Write(buf.Bytes())
}

func traceChart(t trace, status string) *charts.Line {
	labels := make([]string, len(t.Axis))
	for i, f := range t.Axis {
		labels[i] = strconv.FormatFloat(f, 'f', 3, 64)
	}

	current := make([]opts.LineData, len(t.Axis))
	for i := range current {
		if i < len(t.Current) {
			current[i] = opts.LineData{Value: t.Current[i]}
		}
	}

	// The sum only changes at pass boundaries; plot it as an average.
	average := make([]opts.LineData, len(t.Axis))
	for i := range average {
		if i < len(t.Sum) && t.Passes > 0 {
			average[i] = opts.LineData{Value: t.Sum[i] / float64(t.Passes)}
		}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Lock-in Scan", Width: "100%", Height: "640px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: fmt.Sprintf("Window %d", t.Window), Subtitle: fmt.Sprintf("status=%s point=%d passes=%d", status, t.Index, t.Passes)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "MHz", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "V", Scale: opts.Bool(true)}),
	)
	line.SetXAxis(labels).
		AddSeries("current", current).
		AddSeries("average", average)
	return line
}
