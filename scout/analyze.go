package scout

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/relayhq/agents/llm"
	"github.com/relayhq/agents/relay"
	"github.com/relayhq/agents/scraper"
)

// SinkIDs keys, one per analysis category.
const (
	sinkComments  = "comments"
	sinkTrends    = "trends"
	sinkTools     = "tools"
	sinkTutorials = "tutorials"
)

// categoryResult is one analysis category's output, ready to publish.
// Items carry everything but the sink ID, which is resolved from the
// agent config at publish time.
type categoryResult struct {
	key   string
	title string
	items []relay.SinkItem
}

// CommentOpportunity is a post worth replying to, with a drafted reply.
type CommentOpportunity struct {
	TweetURL string `json:"tweetUrl"`
	Author   string `json:"author"`
	Summary  string `json:"summary"`
	Reply    string `json:"reply"`
}

// Trend is a topic gaining traction across the analyzed posts.
type Trend struct {
	Topic    string `json:"topic"`
	Summary  string `json:"summary"`
	Strength string `json:"strength"`
}

// trendStrengths is the fixed momentum scale the model picks from.
var trendStrengths = []string{"emerging", "growing", "peaking"}

// ToolMention is a tool or product discussed in the posts.
type ToolMention struct {
	Name    string `json:"name"`
	Summary string `json:"summary"`
	URL     string `json:"url"`
}

// TutorialIdea is a content idea derived from questions in the posts.
type TutorialIdea struct {
	Title    string `json:"title"`
	Audience string `json:"audience"`
	Outline  string `json:"outline"`
}

func (a *Agent) analyzeComments(ctx context.Context, input, custom string) (categoryResult, error) {
	raw, err := llm.ExtractJSON(ctx, a.model, llm.ExtractionRequest{
		Instruction: buildInstruction(
			"Select the posts worth a thoughtful reply and draft that reply. Skip posts where a reply would add nothing. Keep each selected post's url and author exactly as given.",
			custom),
		Input:      input,
		SchemaName: "comment_opportunities",
		Schema:     commentSchema(),
		Fallback:   json.RawMessage(`{"comments":[]}`),
	})
	if err != nil {
		return categoryResult{}, err
	}

	var parsed struct {
		Comments []CommentOpportunity `json:"comments"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return categoryResult{}, fmt.Errorf("failed to decode comment opportunities: %w", err)
	}

	items := make([]relay.SinkItem, 0, len(parsed.Comments))
	for _, comment := range parsed.Comments {
		items = append(items, relay.SinkItem{
			Title: "Reply to @" + comment.Author,
			Body:  comment.Reply,
			URL:   comment.TweetURL,
			Fields: map[string]interface{}{
				"author":  comment.Author,
				"summary": comment.Summary,
			},
		})
	}
	return categoryResult{key: sinkComments, title: "Comment Opportunities", items: items}, nil
}

func (a *Agent) analyzeTrends(ctx context.Context, input, custom string) (categoryResult, error) {
	raw, err := llm.ExtractJSON(ctx, a.model, llm.ExtractionRequest{
		Instruction: buildInstruction(
			"Identify the topics gaining traction across the posts. For each trend write a one-sentence summary and rate its momentum as emerging, growing or peaking.",
			custom),
		Input:      input,
		SchemaName: "trend_analysis",
		Schema:     trendSchema(),
		Fallback:   json.RawMessage(`{"trends":[]}`),
	})
	if err != nil {
		return categoryResult{}, err
	}

	var parsed struct {
		Trends []Trend `json:"trends"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return categoryResult{}, fmt.Errorf("failed to decode trend analysis: %w", err)
	}

	items := make([]relay.SinkItem, 0, len(parsed.Trends))
	for _, trend := range parsed.Trends {
		items = append(items, relay.SinkItem{
			Title: trend.Topic,
			Body:  trend.Summary,
			Fields: map[string]interface{}{
				"strength": trend.Strength,
			},
		})
	}
	return categoryResult{key: sinkTrends, title: "Trends", items: items}, nil
}

func (a *Agent) analyzeTools(ctx context.Context, input, custom string) (categoryResult, error) {
	raw, err := llm.ExtractJSON(ctx, a.model, llm.ExtractionRequest{
		Instruction: buildInstruction(
			"List the tools, libraries and products people mention in the posts. Summarize in one sentence what each one is and include its url if a post links it.",
			custom),
		Input:      input,
		SchemaName: "tool_mentions",
		Schema:     toolSchema(),
		Fallback:   json.RawMessage(`{"tools":[]}`),
	})
	if err != nil {
		return categoryResult{}, err
	}

	var parsed struct {
		Tools []ToolMention `json:"tools"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return categoryResult{}, fmt.Errorf("failed to decode tool mentions: %w", err)
	}

	items := make([]relay.SinkItem, 0, len(parsed.Tools))
	for _, tool := range parsed.Tools {
		items = append(items, relay.SinkItem{
			Title: tool.Name,
			Body:  tool.Summary,
			URL:   tool.URL,
		})
	}
	return categoryResult{key: sinkTools, title: "Tool Mentions", items: items}, nil
}

func (a *Agent) analyzeTutorials(ctx context.Context, input, custom string) (categoryResult, error) {
	raw, err := llm.ExtractJSON(ctx, a.model, llm.ExtractionRequest{
		Instruction: buildInstruction(
			"Propose tutorial ideas that answer the questions people are asking in the posts. For each idea name the target audience and sketch a short outline.",
			custom),
		Input:      input,
		SchemaName: "tutorial_ideas",
		Schema:     tutorialSchema(),
		Fallback:   json.RawMessage(`{"tutorials":[]}`),
	})
	if err != nil {
		return categoryResult{}, err
	}

	var parsed struct {
		Tutorials []TutorialIdea `json:"tutorials"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return categoryResult{}, fmt.Errorf("failed to decode tutorial ideas: %w", err)
	}

	items := make([]relay.SinkItem, 0, len(parsed.Tutorials))
	for _, idea := range parsed.Tutorials {
		items = append(items, relay.SinkItem{
			Title: idea.Title,
			Body:  idea.Outline,
			Fields: map[string]interface{}{
				"audience": idea.Audience,
			},
		})
	}
	return categoryResult{key: sinkTutorials, title: "Tutorial Ideas", items: items}, nil
}

func buildInstruction(task, custom string) string {
	instruction := "You are a social listening analyst for a developer-tools company. The input is a numbered list of scraped posts. " + task
	if custom != "" {
		instruction += "\n\nAdditional instructions: " + custom
	}
	return instruction
}

// textLimit caps per-post text in the model input.
const textLimit = 500

func formatTweets(tweets []scraper.Tweet) string {
	var b strings.Builder
	for i, tweet := range tweets {
		fmt.Fprintf(&b, "[%d] @%s (%d followers)\n", i+1, tweet.Author.UserName, tweet.Author.Followers)
		if tweet.URL != "" {
			fmt.Fprintf(&b, "URL: %s\n", tweet.URL)
		}
		fmt.Fprintf(&b, "Likes: %d  Replies: %d  Retweets: %d\n", tweet.Likes, tweet.Replies, tweet.Retweets)
		b.WriteString(clip(tweet.Text, textLimit))
		b.WriteByte('\n')
		b.WriteByte('\n')
	}
	return b.String()
}

func clip(text string, max int) string {
	if len(text) <= max {
		return text
	}
	return text[:max] + "..."
}

// listSchema builds the schema shared by every analysis: one array of
// uniform objects under listKey, nothing else allowed.
func listSchema(listKey string, properties map[string]interface{}, required []string) json.RawMessage {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			listKey: map[string]interface{}{
				"type": "array",
				"items": map[string]interface{}{
					"type":                 "object",
					"properties":           properties,
					"required":             required,
					"additionalProperties": false,
				},
			},
		},
		"required":             []string{listKey},
		"additionalProperties": false,
	}
	raw, _ := json.Marshal(schema)
	return raw
}

func commentSchema() json.RawMessage {
	return listSchema("comments", map[string]interface{}{
		"tweetUrl": map[string]interface{}{"type": "string"},
		"author":   map[string]interface{}{"type": "string"},
		"summary":  map[string]interface{}{"type": "string"},
		"reply":    map[string]interface{}{"type": "string"},
	}, []string{"tweetUrl", "author", "summary", "reply"})
}

func trendSchema() json.RawMessage {
	return listSchema("trends", map[string]interface{}{
		"topic":    map[string]interface{}{"type": "string"},
		"summary":  map[string]interface{}{"type": "string"},
		"strength": map[string]interface{}{"type": "string", "enum": trendStrengths},
	}, []string{"topic", "summary", "strength"})
}

func toolSchema() json.RawMessage {
	return listSchema("tools", map[string]interface{}{
		"name":    map[string]interface{}{"type": "string"},
		"summary": map[string]interface{}{"type": "string"},
		"url":     map[string]interface{}{"type": "string"},
	}, []string{"name", "summary", "url"})
}

func tutorialSchema() json.RawMessage {
	return listSchema("tutorials", map[string]interface{}{
		"title":    map[string]interface{}{"type": "string"},
		"audience": map[string]interface{}{"type": "string"},
		"outline":  map[string]interface{}{"type": "string"},
	}, []string{"title", "audience", "outline"})
}
