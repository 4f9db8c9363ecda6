package scraper

import "unicode/utf8"

// minTextLength is the shortest post text worth analyzing.
const minTextLength = 30

// typeTweet is the only record type the agents consume; the scraper
// also emits replies, quotes and profile records.
const typeTweet = "tweet"

// Options tune the Normalize filter chain.
type Options struct {
	// MinFollowers drops posts from authors with fewer followers.
	// Zero disables the check.
	MinFollowers int
}

// Normalize filters raw scraped posts down to the set the agents
// analyze. It drops retweets, posts shorter than 30 characters,
// records that are not tweets, and authors below the follower floor,
// then removes duplicate IDs keeping the first occurrence. Input order
// is preserved and the input slice is never modified.
func Normalize(tweets []Tweet, opts Options) []Tweet {
	seen := make(map[string]bool, len(tweets))
	normalized := make([]Tweet, 0, len(tweets))

	for _, tweet := range tweets {
		if tweet.IsRetweet {
			continue
		}
		if utf8.RuneCountInString(tweet.Text) < minTextLength {
			continue
		}
		if tweet.Type != typeTweet {
			continue
		}
		if opts.MinFollowers > 0 && tweet.Author.Followers < opts.MinFollowers {
			continue
		}
		if seen[tweet.ID] {
			continue
		}
		seen[tweet.ID] = true
		normalized = append(normalized, tweet)
	}

	return normalized
}
