package scout

import (
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/relayhq/agents/scraper"
)

// EngagementStats summarize one engagement metric across the analyzed
// posts. Quantiles are empirical: the value of the smallest sample at
// or above the requested fraction.
type EngagementStats struct {
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stdDev"`
	P50    float64 `json:"p50"`
	P90    float64 `json:"p90"`
	Max    float64 `json:"max"`
}

// Summarize computes engagement statistics over values. An empty input
// yields all zeros; the standard deviation needs at least two samples.
func Summarize(values []float64) EngagementStats {
	if len(values) == 0 {
		return EngagementStats{}
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	stats := EngagementStats{
		Mean: stat.Mean(values, nil),
		P50:  stat.Quantile(0.5, stat.Empirical, sorted, nil),
		P90:  stat.Quantile(0.9, stat.Empirical, sorted, nil),
		Max:  sorted[len(sorted)-1],
	}
	if len(values) > 1 {
		stats.StdDev = stat.StdDev(values, nil)
	}
	return stats
}

// engagementValues projects the follower and like counts out of the
// normalized tweets.
func engagementValues(tweets []scraper.Tweet) (followers, likes []float64) {
	followers = make([]float64, 0, len(tweets))
	likes = make([]float64, 0, len(tweets))
	for _, tweet := range tweets {
		followers = append(followers, float64(tweet.Author.Followers))
		likes = append(likes, float64(tweet.Likes))
	}
	return followers, likes
}
