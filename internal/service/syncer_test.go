package service_test

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/just-nibble/gh-stats/internal/data"
	"github.com/just-nibble/gh-stats/internal/service"
	"github.com/just-nibble/gh-stats/pkg/errcodes"
	"github.com/just-nibble/gh-stats/pkg/github"
)

const baseURL = "https://gh.test"

var (
	shaRoot  = strings.Repeat("1", 40)
	shaChild = strings.Repeat("2", 40)
	shaMerge = strings.Repeat("3", 40)
)

// fakeAPI routes requests by path and counts calls per path. Handlers get
// the 1-based call number so a route can answer differently on retries.
type fakeAPI struct {
	routes map[string]func(call int) *http.Response
	calls  map[string]int
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		routes: map[string]func(int) *http.Response{},
		calls:  map[string]int{},
	}
}

func (f *fakeAPI) on(path, body string) {
	f.routes[path] = func(int) *http.Response { return jsonResponse(200, body) }
}

func (f *fakeAPI) RoundTrip(req *http.Request) (*http.Response, error) {
	path := req.URL.Path
	f.calls[path]++
	handler, ok := f.routes[path]
	if !ok {
		return jsonResponse(404, `{"message":"Not Found"}`), nil
	}
	return handler(f.calls[path]), nil
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{},
		Body:       io.NopCloser(bytes.NewReader([]byte(body))),
	}
}

func setupStore(t *testing.T) *data.Store {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, data.Migrate(db))
	return data.NewStore(db)
}

func newTestSyncer(t *testing.T, api *fakeAPI) (*service.Syncer, *data.Store) {
	t.Helper()

	store := setupStore(t)
	client := github.NewClient(baseURL, "octocat", "secret")
	client.HTTPClient = &http.Client{Transport: api}
	client.Governor.SetPace(0)
	return service.NewSyncer(store, client), store
}

// acmeFixture serves one organisation with one member, one team, and one
// repository holding a root commit, a child and a merge, plus a main branch.
func acmeFixture() *fakeAPI {
	api := newFakeAPI()
	api.on("/orgs/acme", `{"id":100,"login":"acme"}`)
	api.on("/orgs/acme/members", `[{"id":1,"login":"alice"}]`)
	api.on("/users/alice", `{"id":1,"login":"alice","email":null}`)
	api.on("/orgs/acme/teams", `[{"id":10,"slug":"core"}]`)
	api.on("/teams/10/members", `[{"id":1,"login":"alice"},{"id":99,"login":"carol"}]`)
	api.on("/orgs/acme/repos", `[{"id":1000,"name":"widget"}]`)
	api.on("/repos/acme/widget/commits",
		fmt.Sprintf(`[{"sha":"%s"},{"sha":"%s"},{"sha":"%s"}]`, shaMerge, shaChild, shaRoot))
	api.on("/repos/acme/widget/commits/"+shaRoot, commitDetail(shaRoot, "initial import", "alice", 1, "alice@example.com"))
	api.on("/repos/acme/widget/commits/"+shaChild, commitDetail(shaChild, "add widget", "alice", 1, "alice@example.com", shaRoot))
	api.on("/repos/acme/widget/commits/"+shaMerge, commitDetail(shaMerge, "merge branch", "alice", 1, "alice@example.com", shaChild, shaRoot))
	api.on("/repos/acme/widget/branches",
		fmt.Sprintf(`[{"name":"main","commit":{"sha":"%s"}}]`, shaMerge))
	return api
}

// commitDetail renders a commit detail payload authored and committed by the
// given account, with one changed file and the given parent hashes.
func commitDetail(sha, message, login string, extID int64, email string, parents ...string) string {
	ps := make([]string, 0, len(parents))
	for _, p := range parents {
		ps = append(ps, fmt.Sprintf(`{"sha":"%s"}`, p))
	}
	return fmt.Sprintf(`{
		"sha": "%s",
		"commit": {
			"message": "%s",
			"author": {"name": "%s", "email": "%s", "date": "2024-05-01T10:00:00Z"},
			"committer": {"name": "%s", "email": "%s", "date": "2024-05-01T10:05:00Z"}
		},
		"author": {"id": %d, "login": "%s"},
		"committer": {"id": %d, "login": "%s"},
		"stats": {"additions": 12, "deletions": 3},
		"files": [{"filename": "main.go", "status": "modified", "additions": 12, "deletions": 3}],
		"parents": [%s]
	}`, sha, message, login, email, login, email, extID, login, extID, login, strings.Join(ps, ","))
}

func TestRunFullSync(t *testing.T) {
	api := acmeFixture()
	syncer, store := newTestSyncer(t, api)
	ctx := context.Background()

	require.NoError(t, syncer.Run(ctx, []string{"acme"}))

	org, err := store.OrgByExtID(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, "acme", org.Name)

	alice, err := store.UserByExtID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "alice", alice.Name)
	inOrg, err := store.UserInOrg(ctx, alice, org)
	require.NoError(t, err)
	assert.True(t, inOrg)

	// Team membership links only already-known users; carol is skipped.
	team, err := store.TeamByExtID(ctx, 10)
	require.NoError(t, err)
	inTeam, err := store.UserInTeam(ctx, alice, team)
	require.NoError(t, err)
	assert.True(t, inTeam)
	var userCount int64
	require.NoError(t, store.DB().Model(&data.User{}).Count(&userCount).Error)
	assert.EqualValues(t, 1, userCount)

	repo, err := store.RepoByExtID(ctx, 1000)
	require.NoError(t, err)
	assert.Equal(t, "widget", repo.Name)
	assert.Equal(t, org.ID, repo.OrgID)

	// All three commits fully ingested, no placeholder left behind.
	synced, err := store.SyncedSHAs(ctx, repo.ID)
	require.NoError(t, err)
	assert.Len(t, synced, 3)
	var commitCount int64
	require.NoError(t, store.DB().Model(&data.Commit{}).Count(&commitCount).Error)
	assert.EqualValues(t, 3, commitCount)

	// The merge commit has both parent edges, the root has none.
	merge, err := store.CommitBySHA(ctx, []byte(shaMerge))
	require.NoError(t, err)
	parents, err := store.CommitParents(ctx, merge.ID)
	require.NoError(t, err)
	assert.Len(t, parents, 2)

	root, err := store.CommitBySHA(ctx, []byte(shaRoot))
	require.NoError(t, err)
	rootParents, err := store.CommitParents(ctx, root.ID)
	require.NoError(t, err)
	assert.Empty(t, rootParents)

	// The commit email was created and linked to alice.
	email, err := store.EmailByAddress(ctx, "alice@example.com")
	require.NoError(t, err)
	require.NotNil(t, email.UserID)
	assert.Equal(t, alice.ID, *email.UserID)

	// The branch ref points at the merge head.
	ref, err := store.RefByName(ctx, repo.ID, "main")
	require.NoError(t, err)
	require.NotNil(t, ref.HeadID)
	assert.Equal(t, merge.ID, *ref.HeadID)

	var fileCount int64
	require.NoError(t, store.DB().Model(&data.File{}).Count(&fileCount).Error)
	assert.EqualValues(t, 3, fileCount)
}

func TestRunIsIdempotent(t *testing.T) {
	api := acmeFixture()
	syncer, store := newTestSyncer(t, api)
	ctx := context.Background()

	require.NoError(t, syncer.Run(ctx, []string{"acme"}))
	require.NoError(t, syncer.Run(ctx, []string{"acme"}))

	var orgs, users, teams, repos, commits, emails, files, refs int64
	store.DB().Model(&data.Organisation{}).Count(&orgs)
	store.DB().Model(&data.User{}).Count(&users)
	store.DB().Model(&data.Team{}).Count(&teams)
	store.DB().Model(&data.Repo{}).Count(&repos)
	store.DB().Model(&data.Commit{}).Count(&commits)
	store.DB().Model(&data.Email{}).Count(&emails)
	store.DB().Model(&data.File{}).Count(&files)
	store.DB().Model(&data.Ref{}).Count(&refs)

	assert.EqualValues(t, 1, orgs)
	assert.EqualValues(t, 1, users)
	assert.EqualValues(t, 1, teams)
	assert.EqualValues(t, 1, repos)
	assert.EqualValues(t, 3, commits)
	assert.EqualValues(t, 1, emails)
	assert.EqualValues(t, 3, files)
	assert.EqualValues(t, 1, refs)

	// Already-ingested commits are not re-fetched on the second run.
	assert.Equal(t, 1, api.calls["/repos/acme/widget/commits/"+shaRoot])
	assert.Equal(t, 1, api.calls["/repos/acme/widget/commits/"+shaChild])
	assert.Equal(t, 1, api.calls["/repos/acme/widget/commits/"+shaMerge])
}

func TestRunRenamesEntitiesInPlace(t *testing.T) {
	api := acmeFixture()
	syncer, store := newTestSyncer(t, api)
	ctx := context.Background()

	// A prior run saw the org and repo under old names.
	require.NoError(t, store.CreateOrg(ctx, &data.Organisation{
		Entity:   data.Entity{Name: "acme-legacy"},
		External: data.External{ExtID: 100},
	}))

	require.NoError(t, syncer.Run(ctx, []string{"acme"}))

	var orgCount int64
	store.DB().Model(&data.Organisation{}).Count(&orgCount)
	assert.EqualValues(t, 1, orgCount)

	org, err := store.OrgByExtID(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, "acme", org.Name)

	// The rest of the run must use the fresh login, not the stale one the
	// run started with: members, repos and commits all land.
	assert.Equal(t, 0, api.calls["/orgs/acme-legacy/members"])
	var users, repos, commits int64
	store.DB().Model(&data.User{}).Count(&users)
	store.DB().Model(&data.Repo{}).Count(&repos)
	store.DB().Model(&data.Commit{}).Count(&commits)
	assert.EqualValues(t, 1, users)
	assert.EqualValues(t, 1, repos)
	assert.EqualValues(t, 3, commits)
}

func TestIngestRetriesNotReadyCommitDetail(t *testing.T) {
	api := acmeFixture()

	// First detail fetch for the root commit answers 202; the hash must be
	// requeued and retried, and end up ingested exactly once.
	detail := commitDetail(shaRoot, "initial import", "alice", 1, "alice@example.com")
	api.routes["/repos/acme/widget/commits/"+shaRoot] = func(call int) *http.Response {
		if call == 1 {
			return jsonResponse(202, ``)
		}
		return jsonResponse(200, detail)
	}

	syncer, store := newTestSyncer(t, api)
	ctx := context.Background()

	require.NoError(t, syncer.Run(ctx, []string{"acme"}))

	assert.Equal(t, 2, api.calls["/repos/acme/widget/commits/"+shaRoot])

	var n int64
	store.DB().Model(&data.Commit{}).Where("sha = ?", []byte(shaRoot)).Count(&n)
	assert.EqualValues(t, 1, n)

	root, err := store.CommitBySHA(ctx, []byte(shaRoot))
	require.NoError(t, err)
	assert.NotNil(t, root.SyncedAt)
	assert.Equal(t, "initial import", root.Message)
}

func TestRunAbsorbsTerminalFetchFailures(t *testing.T) {
	api := acmeFixture()
	api.routes["/orgs/acme/teams"] = func(int) *http.Response {
		return jsonResponse(500, `{"message":"boom"}`)
	}

	syncer, store := newTestSyncer(t, api)
	ctx := context.Background()

	// The failed walk is logged and dropped; the rest of the run continues.
	require.NoError(t, syncer.Run(ctx, []string{"acme"}))

	var teams, commits int64
	store.DB().Model(&data.Team{}).Count(&teams)
	store.DB().Model(&data.Commit{}).Count(&commits)
	assert.EqualValues(t, 0, teams)
	assert.EqualValues(t, 3, commits)
}

func TestRunReportsCancellation(t *testing.T) {
	api := acmeFixture()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Cancel mid-run, while a walk sits requeued: the run must surface the
	// cancellation sentinel instead of a bare context error.
	api.routes["/orgs/acme/teams"] = func(int) *http.Response {
		cancel()
		return jsonResponse(202, ``)
	}

	syncer, _ := newTestSyncer(t, api)
	err := syncer.Run(ctx, []string{"acme"})
	assert.ErrorIs(t, err, errcodes.ErrContextCancelled)
}
