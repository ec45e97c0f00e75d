package tools

import "context"

// WebSearch returns ranked result stubs for a market research query.
func WebSearch() Tool {
	return newTool("web_search", "Search the web for market intelligence",
		func(_ context.Context, args map[string]any) (map[string]any, error) {
			query := stringArg(args, "query", "banking market trends")
			return map[string]any{
				"query": query,
				"results": []map[string]any{
					{"title": "Digital banking adoption accelerates", "rank": 1, "relevance": 0.92},
					{"title": "Retail deposit competition intensifies", "rank": 2, "relevance": 0.87},
					{"title": "Mobile-first onboarding trends", "rank": 3, "relevance": 0.81},
				},
			}, nil
		})
}

// SocialSentiment returns an aggregate sentiment stub for a topic.
func SocialSentiment() Tool {
	return newTool("social_sentiment", "Analyze social media sentiment for a topic",
		func(_ context.Context, args map[string]any) (map[string]any, error) {
			topic := stringArg(args, "topic", "brand")
			return map[string]any{
				"topic":     topic,
				"sentiment": "positive",
				"score":     0.72,
				"mentions":  1840,
				"breakdown": map[string]any{"positive": 0.61, "neutral": 0.28, "negative": 0.11},
			}, nil
		})
}

// CompetitorMonitor returns recent competitor activity stubs.
func CompetitorMonitor() Tool {
	return newTool("competitor_monitor", "Track competitor campaigns and pricing moves",
		func(_ context.Context, args map[string]any) (map[string]any, error) {
			return map[string]any{
				"competitors": []map[string]any{
					{"name": "FirstRate Bank", "activity": "launched cashback card", "observed_days_ago": 3},
					{"name": "UnionTrust", "activity": "cut personal loan rates 50bps", "observed_days_ago": 7},
				},
			}, nil
		})
}

// SearchTrends returns interest-over-time stubs for search keywords.
func SearchTrends() Tool {
	return newTool("search_trends", "Report search interest trends for keywords",
		func(_ context.Context, args map[string]any) (map[string]any, error) {
			keyword := stringArg(args, "keyword", "savings account")
			return map[string]any{
				"keyword":        keyword,
				"interest_index": 64,
				"trend":          "rising",
				"related":        []string{"high yield savings", "fixed deposit rates"},
			}, nil
		})
}
