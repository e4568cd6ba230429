package service

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/just-nibble/gh-stats/internal/data"
	"github.com/just-nibble/gh-stats/pkg/errcodes"
	"github.com/just-nibble/gh-stats/pkg/github"
)

// Syncer walks the remote API and reconciles what it finds against the
// store. One Syncer serves one run; all work is sequential.
type Syncer struct {
	store *data.Store
	gh    *github.Client
}

// NewSyncer creates a Syncer over an open store and API client.
func NewSyncer(store *data.Store, gh *github.Client) *Syncer {
	return &Syncer{store: store, gh: gh}
}

// Run performs a full incremental sync for the given organisation login
// names, in strict dependency order: organisations, then their members,
// teams and repositories, then each repository's commits and refs.
//
// Fetch-boundary failures are logged and absorbed; store failures are fatal.
// Re-running against an unchanged remote produces no new writes.
func (s *Syncer) Run(ctx context.Context, orgNames []string) error {
	orgs, err := s.syncOrgs(ctx, orgNames)
	if err != nil {
		return err
	}
	log.Info().Int("orgs", len(orgs)).Msg("organisations reconciled")

	if err := s.syncUsers(ctx, orgs); err != nil {
		return err
	}
	if err := s.syncTeams(ctx, orgs); err != nil {
		return err
	}

	repos, err := s.syncRepos(ctx, orgs)
	if err != nil {
		return err
	}
	log.Info().Int("repos", len(repos)).Msg("repositories reconciled")

	for _, r := range repos {
		if err := s.ingestCommits(ctx, r.repo, r.org); err != nil {
			return err
		}
		if err := s.syncRefs(ctx, r.repo, r.org); err != nil {
			return err
		}
	}

	return nil
}

// fetchTask is one queued pagination walk, identified by a caller-chosen key.
type fetchTask struct {
	key string
	url string
	acc []json.RawMessage
}

// collect drains the queued walks in FIFO order and returns the accumulated
// records per key. A walk suspended on a not-ready page rejoins the back of
// the queue, carrying its accumulator, and resumes from the pending URL; the
// governor's pacing keeps a lone requeued walk from spinning. A walk that
// ends on any other non-200 status, or on a transport error, is logged and
// dropped along with its partial accumulation.
func (s *Syncer) collect(ctx context.Context, tasks []fetchTask) (map[string][]json.RawMessage, error) {
	out := make(map[string][]json.RawMessage, len(tasks))

	for len(tasks) > 0 {
		if ctx.Err() != nil {
			return nil, errcodes.ErrContextCancelled
		}
		t := tasks[0]
		tasks = tasks[1:]

		walk, err := s.gh.FetchAll(ctx, t.url)
		if err != nil {
			if ctx.Err() != nil {
				return nil, errcodes.ErrContextCancelled
			}
			log.Error().Err(err).Str("url", t.url).Msg("fetch failed, dropping walk")
			continue
		}

		switch walk.Status {
		case http.StatusOK:
			out[t.key] = append(t.acc, walk.Records...)
		case http.StatusAccepted:
			log.Debug().Str("url", walk.Resume).Msg("page not ready, requeueing walk")
			tasks = append(tasks, fetchTask{
				key: t.key,
				url: walk.Resume,
				acc: append(t.acc, walk.Records...),
			})
		default:
			log.Error().Int("status", walk.Status).Str("url", t.url).
				Msg("walk ended with terminal status, discarding partial result")
		}
	}

	return out, nil
}

// fetchAll runs a single walk to completion, including 202 requeues.
func (s *Syncer) fetchAll(ctx context.Context, url string) ([]json.RawMessage, error) {
	out, err := s.collect(ctx, []fetchTask{{key: url, url: url}})
	if err != nil {
		return nil, err
	}
	return out[url], nil
}
