package github

import (
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
)

// Org is the JSON shape of a GitHub organisation.
type Org struct {
	ID    int64  `json:"id"`
	Login string `json:"login"`
}

// Team is the JSON shape of a GitHub team.
type Team struct {
	ID   int64  `json:"id"`
	Slug string `json:"slug"`
}

// Account is the user sub-object attached to memberships and commits.
type Account struct {
	ID    int64  `json:"id"`
	Login string `json:"login"`
}

// UserDetail is the JSON shape of a full user record.
type UserDetail struct {
	ID    int64   `json:"id"`
	Login string  `json:"login"`
	Email *string `json:"email"`
}

// Repo is the JSON shape of a GitHub repository.
type Repo struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Branch is the JSON shape of a repository branch.
type Branch struct {
	Name   string `json:"name"`
	Commit struct {
		SHA string `json:"sha"`
	} `json:"commit"`
}

// Signature is the name/email/date triple embedded in commit metadata.
type Signature struct {
	Name  string    `json:"name"`
	Email string    `json:"email"`
	Date  time.Time `json:"date"`
}

// CommitSummary is a single entry of a repository commit listing.
type CommitSummary struct {
	SHA string `json:"sha"`
}

// CommitDetail is the JSON shape of a full commit record, including stats,
// changed files and parent hashes.
type CommitDetail struct {
	SHA    string `json:"sha"`
	Commit struct {
		Message   string    `json:"message"`
		Author    Signature `json:"author"`
		Committer Signature `json:"committer"`
	} `json:"commit"`
	Author    *Account `json:"author"`
	Committer *Account `json:"committer"`
	Stats     struct {
		Additions int `json:"additions"`
		Deletions int `json:"deletions"`
	} `json:"stats"`
	Files   []FileChange `json:"files"`
	Parents []struct {
		SHA string `json:"sha"`
	} `json:"parents"`
}

// FileChange is one changed file within a commit detail payload.
type FileChange struct {
	Filename  string `json:"filename"`
	Status    string `json:"status"`
	Additions int    `json:"additions"`
	Deletions int    `json:"deletions"`
}

// Decode unmarshals each raw record into T. Records that fail to decode are
// logged and skipped; the remote occasionally interleaves malformed entries
// and a bad record must not abort the batch.
func Decode[T any](records []json.RawMessage) []T {
	out := make([]T, 0, len(records))
	for _, raw := range records {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			log.Error().Err(err).Str("record", string(raw)).Msg("failed to decode record")
			continue
		}
		out = append(out, v)
	}
	return out
}
