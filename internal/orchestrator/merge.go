package orchestrator

import (
	"sort"

	"github.com/JakeFAU/realtime-feeds/internal/feeds"
)

// Merge combines the stored posts with a run's fresh results. Fresh posts
// replace stored ones with the same lookup key; stored posts that were not
// re-observed are kept unchanged. The result is sorted by date descending.
func Merge(existing feeds.Snapshot, fresh []feeds.SourceResult) []feeds.Post {
	merged := make(map[string]feeds.Post, len(existing))
	for key, post := range existing {
		merged[key] = post
	}
	for _, res := range fresh {
		for _, post := range res.Posts {
			merged[post.LookupKey()] = post
		}
	}
	out := make([]feeds.Post, 0, len(merged))
	for _, post := range merged {
		out = append(out, post)
	}
	SortPosts(out)
	return out
}

// SortPosts orders posts by date descending, breaking ties by id so the
// order never depends on fetch completion.
func SortPosts(posts []feeds.Post) {
	sort.SliceStable(posts, func(i, j int) bool {
		if !posts[i].Date.Equal(posts[j].Date) {
			return posts[i].Date.After(posts[j].Date)
		}
		return posts[i].ID < posts[j].ID
	})
}

// FreshPosts flattens the posts of every result.
func FreshPosts(results []feeds.SourceResult) []feeds.Post {
	var out []feeds.Post
	for _, res := range results {
		out = append(out, res.Posts...)
	}
	return out
}

// FetchLogs returns every result's fetch-log row in result order.
func FetchLogs(results []feeds.SourceResult) []feeds.FetchLogRow {
	out := make([]feeds.FetchLogRow, 0, len(results))
	for _, res := range results {
		out = append(out, res.Log)
	}
	return out
}
