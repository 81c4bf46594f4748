package alerting

import (
	"fmt"
	"strings"
	"time"

	"liquidity-alerts/internal/fetcher"
	"liquidity-alerts/internal/pool"
)

const (
	ColorBreach  = 0xE74C3C
	ColorHealthy = 0x2ECC71
	ColorWarning = 0xF39C12

	// DataUnavailable replaces the metric lines of a source that returned no snapshot.
	DataUnavailable = "⚠️ Data unavailable"

	maxFieldValue = 1024
	codeFence     = "```"
)

// Field is one name/value block of an embed.
type Field struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

// Footer is the small text line under an embed.
type Footer struct {
	Text string `json:"text"`
}

// Embed is the structured message rendered by the chat webhook.
type Embed struct {
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	Color       int     `json:"color"`
	Fields      []Field `json:"fields"`
	Timestamp   string  `json:"timestamp"`
	Footer      Footer  `json:"footer"`
}

// SourceReport carries one source's evaluated state into the composer.
type SourceReport struct {
	Name      string
	Present   bool
	Metrics   pool.Metrics
	Threshold float64
	Breach    bool
}

// DataAlertInput collects everything needed to render a metrics alert.
type DataAlertInput struct {
	Reports []SourceReport
	Footer  string
	At      time.Time
}

// ComposeDataAlert renders one field per source, in the order given.
func ComposeDataAlert(in DataAlertInput) Embed {
	var breached []string
	fields := make([]Field, 0, len(in.Reports))
	for _, r := range in.Reports {
		if r.Breach {
			breached = append(breached, r.Name)
		}
		fields = append(fields, Field{Name: r.Name, Value: sourceBody(r)})
	}

	embed := Embed{
		Fields:    fields,
		Timestamp: in.At.UTC().Format(time.RFC3339),
		Footer:    Footer{Text: in.Footer},
	}
	if len(breached) > 0 {
		embed.Title = "🚨 Low Liquidity Alert"
		embed.Description = "Available liquidity is below the configured floor for: " + strings.Join(breached, ", ")
		embed.Color = ColorBreach
	} else {
		embed.Title = "✅ Liquidity Report"
		embed.Color = ColorHealthy
	}
	return embed
}

func sourceBody(r SourceReport) string {
	if !r.Present {
		return DataUnavailable
	}

	status := "🟢 OK"
	if r.Breach {
		status = "🔴 BELOW threshold"
	}

	lines := []string{
		"**Status:** " + status,
		fmt.Sprintf("**Available Liquidity:** %s (threshold %s)", FormatUSD(r.Metrics.AvailableLiquidity), FormatUSD(r.Threshold)),
		"**Total Supply:** " + FormatUSD(r.Metrics.TotalSupply),
		"**Total Borrows:** " + FormatUSD(r.Metrics.TotalBorrows),
		"**APY:** " + FormatPercent(r.Metrics.APY),
	}
	return strings.Join(lines, "\n")
}

// ComposeErrorAlert reports that every source exhausted its retries.
func ComposeErrorAlert(errs []fetcher.FetchError, attempts int, footer string, at time.Time) Embed {
	fields := make([]Field, 0, len(errs))
	for _, e := range errs {
		fields = append(fields, Field{
			Name:  "❌ " + e.Source,
			Value: codeFence + truncate(e.Err, maxFieldValue-2*len(codeFence)) + codeFence,
		})
	}

	return Embed{
		Title:       "⚠️ Liquidity Monitor: Data Unavailable",
		Description: fmt.Sprintf("Failed to fetch data from every source after %d attempts each.", attempts),
		Color:       ColorWarning,
		Fields:      fields,
		Timestamp:   at.UTC().Format(time.RFC3339),
		Footer:      Footer{Text: footer},
	}
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-1]) + "…"
}
