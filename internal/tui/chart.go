package tui

import (
	"github.com/NimbleMarkets/ntcharts/barchart"
	"github.com/charmbracelet/lipgloss"
	"github.com/tinytelemetry/symposium/internal/model"
	"github.com/tinytelemetry/symposium/internal/table"
)

const (
	hungerChartHeight = 6
	hungerWarning     = 60
	hungerCritical    = 85
)

// renderHungerChart draws one bar per philosopher, scaled to the 0..100 hunger range.
func renderHungerChart(st Styles, phils []model.Philosopher, width int) string {
	if len(phils) == 0 {
		return st.Muted.Render("No philosophers")
	}
	barWidth := 2
	chartWidth := len(phils)*(barWidth+1) - 1
	if width > 0 && chartWidth > width {
		barWidth = 1
		chartWidth = len(phils)*2 - 1
	}

	bc := barchart.New(chartWidth, hungerChartHeight,
		barchart.WithBarGap(1),
		barchart.WithBarWidth(barWidth),
		barchart.WithNoAxis(),
		barchart.WithMaxValue(table.MaxHunger),
	)
	for _, ph := range phils {
		bc.Push(barchart.BarData{
			Label: "",
			Values: []barchart.BarValue{
				{Name: "hunger", Value: ph.Hunger, Style: hungerStyle(st, ph.Hunger)},
			},
		})
	}
	bc.Draw()
	return bc.View()
}

func hungerStyle(st Styles, hunger float64) lipgloss.Style {
	var fg lipgloss.TerminalColor
	switch {
	case hunger >= hungerCritical:
		fg = st.Error.GetForeground()
	case hunger >= hungerWarning:
		fg = st.ForkHeld.GetForeground()
	default:
		fg = st.Success.GetForeground()
	}
	return lipgloss.NewStyle().Foreground(fg).Background(fg)
}
