package curator

import (
	"fmt"
	"strings"
)

// Categories an article can be filed under.
var Categories = []string{"markets", "crypto", "companies", "macro", "tech"}

// categoryTitles maps category values to digest section headers, in
// the fixed section order.
var categoryTitles = []struct {
	key   string
	title string
}{
	{"markets", "Markets"},
	{"crypto", "Crypto"},
	{"companies", "Companies"},
	{"macro", "Macro"},
	{"tech", "Tech"},
}

// Article is one curated article as returned by the selection call.
type Article struct {
	Title     string `json:"title"`
	URL       string `json:"url"`
	Summary   string `json:"summary"`
	Category  string `json:"category"`
	Reasoning string `json:"reasoning"`
}

func validCategory(category string) bool {
	for _, c := range Categories {
		if c == category {
			return true
		}
	}
	return false
}

// FormatDigest renders the selection as a plain-text digest. Every
// category gets a section in a fixed order; within a section the
// articles keep their selection order, each with title, url, summary
// and reasoning.
func FormatDigest(articles []Article) string {
	var b strings.Builder
	b.WriteString("Daily News Digest\n")
	b.WriteString("=================\n")

	for _, section := range categoryTitles {
		fmt.Fprintf(&b, "\n== %s ==\n", section.title)

		n := 0
		for _, article := range articles {
			if article.Category != section.key {
				continue
			}
			n++
			fmt.Fprintf(&b, "%d. %s\n", n, article.Title)
			if article.URL != "" {
				fmt.Fprintf(&b, "   %s\n", article.URL)
			}
			if article.Summary != "" {
				fmt.Fprintf(&b, "   %s\n", article.Summary)
			}
			if article.Reasoning != "" {
				fmt.Fprintf(&b, "   Why it matters: %s\n", article.Reasoning)
			}
		}
		if n == 0 {
			b.WriteString("No articles selected.\n")
		}
	}
	return b.String()
}
