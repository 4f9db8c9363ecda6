package scout

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mattn/go-runewidth"
)

// formatDigest renders the plain-text run report: an engagement table
// followed by one section per analysis category.
func formatDigest(tweetCount int, followers, likes EngagementStats, results []categoryResult) string {
	var b strings.Builder
	b.WriteString("Social Listening Digest\n")
	b.WriteString("=======================\n\n")

	if tweetCount == 0 {
		b.WriteString("No posts matched the filters.\n")
		return b.String()
	}

	fmt.Fprintf(&b, "%d posts analyzed.\n\n", tweetCount)
	b.WriteString(renderTable(
		[]string{"Metric", "Mean", "Std Dev", "P50", "P90", "Max"},
		[][]string{
			statsRow("Followers", followers),
			statsRow("Likes", likes),
		},
	))

	for _, result := range results {
		fmt.Fprintf(&b, "\n== %s (%d) ==\n", result.title, len(result.items))
		if len(result.items) == 0 {
			b.WriteString("Nothing found.\n")
			continue
		}
		for i, item := range result.items {
			fmt.Fprintf(&b, "%d. %s\n", i+1, item.Title)
			if item.URL != "" {
				fmt.Fprintf(&b, "   %s\n", item.URL)
			}
			if item.Body != "" {
				fmt.Fprintf(&b, "   %s\n", item.Body)
			}
		}
	}
	return b.String()
}

func statsRow(metric string, stats EngagementStats) []string {
	return []string{
		metric,
		formatNumber(stats.Mean),
		formatNumber(stats.StdDev),
		formatNumber(stats.P50),
		formatNumber(stats.P90),
		formatNumber(stats.Max),
	}
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64)
}

// renderTable pads every column to its widest cell, measured in
// display width. The last column is left unpadded.
func renderTable(headers []string, rows [][]string) string {
	widths := make([]int, len(headers))
	for i, header := range headers {
		widths[i] = runewidth.StringWidth(header)
	}
	for _, row := range rows {
		for i, cell := range row {
			if w := runewidth.StringWidth(cell); w > widths[i] {
				widths[i] = w
			}
		}
	}

	separator := make([]string, len(headers))
	for i := range headers {
		separator[i] = strings.Repeat("-", widths[i])
	}

	var b strings.Builder
	writeRow := func(cells []string) {
		for i, cell := range cells {
			if i > 0 {
				b.WriteString("  ")
			}
			b.WriteString(cell)
			if i < len(cells)-1 {
				if pad := widths[i] - runewidth.StringWidth(cell); pad > 0 {
					b.WriteString(strings.Repeat(" ", pad))
				}
			}
		}
		b.WriteByte('\n')
	}

	writeRow(headers)
	writeRow(separator)
	for _, row := range rows {
		writeRow(row)
	}
	return b.String()
}
