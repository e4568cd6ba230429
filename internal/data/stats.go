package data

import "context"

// AuthorStat is one row of the per-author contribution report.
type AuthorStat struct {
	Name        string
	CommitCount int
	Additions   int
	Deletions   int
}

// TopAuthors returns the users with the most authored commits, with their
// aggregate line counts.
func (s *Store) TopAuthors(ctx context.Context, limit int) ([]AuthorStat, error) {
	var stats []AuthorStat
	err := s.db.WithContext(ctx).Raw(`
		SELECT users.name AS name,
		       COUNT(commits.id) AS commit_count,
		       COALESCE(SUM(commits.additions), 0) AS additions,
		       COALESCE(SUM(commits.deletions), 0) AS deletions
		FROM users
		JOIN commits ON commits.author_id = users.id
		GROUP BY users.id, users.name
		ORDER BY commit_count DESC
		LIMIT ?
	`, limit).Scan(&stats).Error
	return stats, err
}
