package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/just-nibble/gh-stats/internal/data"
	"github.com/just-nibble/gh-stats/pkg/errcodes"
	"github.com/just-nibble/gh-stats/pkg/github"
)

// ingestCommits brings one repository's commit history up to date. The
// listing is diffed against the hashes already ingested for the repo, and
// only the difference has its detail fetched. Each new commit is persisted
// and flushed individually, so an interrupted run resumes where it stopped.
//
// Detail fetches answered with 202 (stats still being computed) rejoin the
// back of the hash queue and are retried after the rest has drained.
func (s *Syncer) ingestCommits(ctx context.Context, repo *data.Repo, org *data.Organisation) error {
	existing, err := s.store.SyncedSHAs(ctx, repo.ID)
	if err != nil {
		return err
	}

	repoURL := fmt.Sprintf("%s/repos/%s/%s", s.gh.BaseURL(), org.Name, repo.Name)
	records, err := s.fetchAll(ctx, repoURL+"/commits")
	if err != nil {
		return err
	}

	var queue []string
	queued := make(map[string]struct{})
	for _, c := range github.Decode[github.CommitSummary](records) {
		if c.SHA == "" {
			continue
		}
		if _, ok := existing[c.SHA]; ok {
			continue
		}
		if _, ok := queued[c.SHA]; ok {
			continue
		}
		queued[c.SHA] = struct{}{}
		queue = append(queue, c.SHA)
	}
	log.Info().Str("repo", repo.Name).Int("new", len(queue)).Msg("ingesting commits")

	for len(queue) > 0 {
		if ctx.Err() != nil {
			return errcodes.ErrContextCancelled
		}
		sha := queue[0]
		queue = queue[1:]

		// The listing may race another repo's history; a hash already fully
		// ingested anywhere in the store is skipped without a detail fetch.
		if c, err := s.store.CommitBySHA(ctx, []byte(sha)); err == nil && c.SyncedAt != nil {
			continue
		} else if err != nil && !errors.Is(err, errcodes.ErrNoRecordFound) {
			return err
		}

		walk, err := s.gh.FetchAll(ctx, repoURL+"/commits/"+sha)
		if err != nil {
			if ctx.Err() != nil {
				return errcodes.ErrContextCancelled
			}
			log.Error().Err(err).Str("sha", sha).Msg("commit detail fetch failed, skipping")
			continue
		}
		switch walk.Status {
		case http.StatusOK:
		case http.StatusAccepted:
			log.Debug().Str("sha", sha).Msg("commit detail not ready, requeueing")
			queue = append(queue, sha)
			continue
		default:
			log.Error().Int("status", walk.Status).Str("sha", sha).Msg("commit detail fetch failed, skipping")
			continue
		}

		details := github.Decode[github.CommitDetail](walk.Records)
		if len(details) == 0 {
			log.Error().Str("sha", sha).Msg("commit detail payload empty, skipping")
			continue
		}
		if err := s.persistCommit(ctx, repo, details[0]); err != nil {
			return err
		}
	}

	return nil
}

// persistCommit stores one fully detailed commit: identities, file changes
// and parent edges. An existing placeholder row for the hash is filled in
// place instead of creating a duplicate.
func (s *Syncer) persistCommit(ctx context.Context, repo *data.Repo, detail github.CommitDetail) error {
	committer, committerEmail, err := s.resolveIdentity(ctx, detail.Commit.Committer, detail.Committer)
	if err != nil {
		return err
	}
	author, authorEmail, err := s.resolveIdentity(ctx, detail.Commit.Author, detail.Author)
	if err != nil {
		return err
	}

	sha := []byte(detail.SHA)
	commit, err := s.store.CommitBySHA(ctx, sha)
	fresh := errors.Is(err, errcodes.ErrNoRecordFound)
	if err != nil && !fresh {
		return err
	}
	if fresh {
		commit = &data.Commit{SHA: sha, RepoID: repo.ID}
	}

	authoredAt := detail.Commit.Author.Date
	committedAt := detail.Commit.Committer.Date
	now := time.Now().UTC()

	commit.Message = detail.Commit.Message
	commit.Additions = detail.Stats.Additions
	commit.Deletions = detail.Stats.Deletions
	commit.AuthoredAt = &authoredAt
	commit.CommittedAt = &committedAt
	commit.SyncedAt = &now
	if author != nil {
		commit.AuthorID = &author.ID
	}
	if committer != nil {
		commit.CommitterID = &committer.ID
	}
	if authorEmail != nil {
		commit.AuthorEmailID = &authorEmail.ID
	}
	if committerEmail != nil {
		commit.CommitterEmailID = &committerEmail.ID
	}

	commit.Files = make([]data.File, 0, len(detail.Files))
	for _, f := range detail.Files {
		commit.Files = append(commit.Files, data.File{
			Filename:  f.Filename,
			Status:    f.Status,
			Additions: f.Additions,
			Deletions: f.Deletions,
		})
	}

	if fresh {
		if err := s.store.CreateCommit(ctx, commit); err != nil {
			return err
		}
	} else {
		if err := s.store.SaveCommit(ctx, commit); err != nil {
			return err
		}
	}

	for _, p := range detail.Parents {
		if p.SHA == "" || p.SHA == detail.SHA {
			continue
		}
		parent, err := s.store.CommitBySHA(ctx, []byte(p.SHA))
		if errors.Is(err, errcodes.ErrNoRecordFound) {
			// Parent not ingested yet (shallow or out-of-order history):
			// anchor the edge on a placeholder row that a later ingestion
			// pass fills in.
			parent = &data.Commit{SHA: []byte(p.SHA), RepoID: repo.ID}
			if err := s.store.CreateCommit(ctx, parent); err != nil {
				return err
			}
		} else if err != nil {
			return err
		}
		if err := s.store.AddCommitParent(ctx, commit.ID, parent.ID); err != nil {
			return err
		}
	}

	log.Debug().Str("repo", repo.Name).Str("sha", detail.SHA).Msg("commit ingested")
	return nil
}

// syncRefs reconciles the repository's branches. A ref's head pointer is
// filled once the head commit is locally known and never rewritten.
func (s *Syncer) syncRefs(ctx context.Context, repo *data.Repo, org *data.Organisation) error {
	url := fmt.Sprintf("%s/repos/%s/%s/branches", s.gh.BaseURL(), org.Name, repo.Name)
	records, err := s.fetchAll(ctx, url)
	if err != nil {
		return err
	}

	for _, b := range github.Decode[github.Branch](records) {
		ref, err := s.store.RefByName(ctx, repo.ID, b.Name)
		if errors.Is(err, errcodes.ErrNoRecordFound) {
			ref = &data.Ref{Name: b.Name, RepoID: repo.ID}
			if err := s.store.CreateRef(ctx, ref); err != nil {
				return err
			}
		} else if err != nil {
			return err
		}

		if ref.HeadID != nil || b.Commit.SHA == "" {
			continue
		}
		head, err := s.store.CommitBySHA(ctx, []byte(b.Commit.SHA))
		if errors.Is(err, errcodes.ErrNoRecordFound) {
			continue
		}
		if err != nil {
			return err
		}
		if err := s.store.SetRefHead(ctx, ref, head.ID); err != nil {
			return err
		}
	}
	return nil
}
