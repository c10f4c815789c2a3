package curation

import (
	"sort"

	"github.com/fortuneofweb3/blabz/api_curation/internal/models"
)

// SortPosts orders by score descending, newer first on ties, then by id.
func SortPosts(posts []models.Post) {
	sort.SliceStable(posts, func(i, j int) bool {
		a, b := posts[i], posts[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.PostID < b.PostID
	})
}

// DedupPosts keeps the first occurrence of every post id.
func DedupPosts(posts []models.Post) []models.Post {
	seen := make(map[string]struct{}, len(posts))
	out := make([]models.Post, 0, len(posts))
	for _, p := range posts {
		if _, ok := seen[p.PostID]; ok {
			continue
		}
		seen[p.PostID] = struct{}{}
		out = append(out, p)
	}
	return out
}

// Rank dedups, sorts and caps posts. limit <= 0 keeps everything.
func Rank(posts []models.Post, limit int64) []models.Post {
	out := DedupPosts(posts)
	SortPosts(out)
	if limit > 0 && int64(len(out)) > limit {
		out = out[:limit]
	}
	return out
}

// GroupByProject files each post under every project it matched. Groups are
// in project-name order and each group is ranked independently.
func GroupByProject(posts []models.Post) []models.ProjectGroup {
	byProject := make(map[string][]models.Post)
	for _, p := range DedupPosts(posts) {
		for _, name := range p.Projects {
			byProject[name] = append(byProject[name], p)
		}
	}

	names := make([]string, 0, len(byProject))
	for name := range byProject {
		names = append(names, name)
	}
	sort.Strings(names)

	groups := make([]models.ProjectGroup, 0, len(names))
	for _, name := range names {
		groups = append(groups, models.ProjectGroup{Project: name, Posts: Rank(byProject[name], 0)})
	}
	return groups
}
