package data

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/just-nibble/gh-stats/pkg/errcodes"
)

// CommitBySHA looks up a commit (placeholder or synced) by its content hash.
func (s *Store) CommitBySHA(ctx context.Context, sha []byte) (*Commit, error) {
	var commit Commit
	err := s.db.WithContext(ctx).Where("sha = ?", sha).First(&commit).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errcodes.ErrNoRecordFound
	}
	return &commit, err
}

// SyncedSHAs returns the hashes of every fully ingested commit in the repo.
// Placeholder rows (SyncedAt null) are excluded so their detail is still
// fetched when the hash shows up in a listing.
func (s *Store) SyncedSHAs(ctx context.Context, repoID string) (map[string]struct{}, error) {
	var shas [][]byte
	err := s.db.WithContext(ctx).Model(&Commit{}).
		Where("repo_id = ? AND synced_at IS NOT NULL", repoID).
		Pluck("sha", &shas).Error
	if err != nil {
		return nil, err
	}

	set := make(map[string]struct{}, len(shas))
	for _, sha := range shas {
		set[string(sha)] = struct{}{}
	}
	return set, nil
}

// CreateCommit persists a new commit together with its file records.
func (s *Store) CreateCommit(ctx context.Context, commit *Commit) error {
	return s.db.WithContext(ctx).Create(commit).Error
}

// SaveCommit flushes field changes on an existing commit and persists any
// file records attached to it. Used to fill in a placeholder row once the
// commit's detail has been fetched.
func (s *Store) SaveCommit(ctx context.Context, commit *Commit) error {
	return s.db.WithContext(ctx).Session(&gorm.Session{FullSaveAssociations: true}).Save(commit).Error
}

// AddCommitParent records one directed parent edge. Recording an existing
// edge is a no-op; a self-edge is refused.
func (s *Store) AddCommitParent(ctx context.Context, childID, parentID string) error {
	if childID == parentID {
		return errors.New("commit cannot be its own parent")
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&CommitParent{ChildID: childID, ParentID: parentID}).Error
}

// CommitParents returns the parent commits of the commit with the given id.
func (s *Store) CommitParents(ctx context.Context, commitID string) ([]Commit, error) {
	var parents []Commit
	err := s.db.WithContext(ctx).
		Joins("JOIN commit_parents ON commit_parents.parent_id = commits.id").
		Where("commit_parents.child_id = ?", commitID).
		Find(&parents).Error
	return parents, err
}

// CommitChildren returns the child commits of the commit with the given id.
func (s *Store) CommitChildren(ctx context.Context, commitID string) ([]Commit, error) {
	var children []Commit
	err := s.db.WithContext(ctx).
		Joins("JOIN commit_parents ON commit_parents.child_id = commits.id").
		Where("commit_parents.parent_id = ?", commitID).
		Find(&children).Error
	return children, err
}

// RefByName looks up a ref by repository and name.
func (s *Store) RefByName(ctx context.Context, repoID, name string) (*Ref, error) {
	var ref Ref
	err := s.db.WithContext(ctx).Where("repo_id = ? AND name = ?", repoID, name).First(&ref).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errcodes.ErrNoRecordFound
	}
	return &ref, err
}

// CreateRef persists a new ref.
func (s *Store) CreateRef(ctx context.Context, ref *Ref) error {
	return s.db.WithContext(ctx).Create(ref).Error
}

// SetRefHead fills a ref's head pointer. The head is only ever filled when
// previously null.
func (s *Store) SetRefHead(ctx context.Context, ref *Ref, commitID string) error {
	if ref.HeadID != nil {
		return nil
	}
	ref.HeadID = &commitID
	return s.db.WithContext(ctx).Model(ref).Update("head_id", commitID).Error
}
