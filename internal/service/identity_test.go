package service_test

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/just-nibble/gh-stats/internal/data"
)

var (
	shaByBob    = strings.Repeat("a", 40)
	shaByDave   = strings.Repeat("b", 40)
	shaInferred = strings.Repeat("c", 40)
	shaUnknown  = strings.Repeat("d", 40)
)

// commitDetailAnon renders a commit detail payload with no account
// sub-objects, only free-text signature email.
func commitDetailAnon(sha, message, email string) string {
	return fmt.Sprintf(`{
		"sha": "%s",
		"commit": {
			"message": "%s",
			"author": {"name": "somebody", "email": "%s", "date": "2024-05-02T09:00:00Z"},
			"committer": {"name": "somebody", "email": "%s", "date": "2024-05-02T09:00:00Z"}
		},
		"author": null,
		"committer": null,
		"stats": {"additions": 1, "deletions": 0},
		"files": [],
		"parents": []
	}`, sha, message, email, email)
}

// identityFixture serves a repo whose commits exercise every identity path:
// account plus email, second account with the same email, email-only with a
// known link, and email-only with an unknown address.
func identityFixture() *fakeAPI {
	api := newFakeAPI()
	api.on("/orgs/acme", `{"id":100,"login":"acme"}`)
	api.on("/orgs/acme/members", `[]`)
	api.on("/orgs/acme/teams", `[]`)
	api.on("/orgs/acme/repos", `[{"id":1000,"name":"widget"}]`)
	api.on("/users/bob", `{"id":2,"login":"bob","email":null}`)
	api.on("/users/dave", `{"id":3,"login":"dave","email":null}`)
	api.on("/repos/acme/widget/commits", fmt.Sprintf(
		`[{"sha":"%s"},{"sha":"%s"},{"sha":"%s"},{"sha":"%s"}]`,
		shaByBob, shaByDave, shaInferred, shaUnknown))
	api.on("/repos/acme/widget/commits/"+shaByBob,
		commitDetail(shaByBob, "first", "bob", 2, "shared@example.com"))
	api.on("/repos/acme/widget/commits/"+shaByDave,
		commitDetail(shaByDave, "second", "dave", 3, "shared@example.com"))
	api.on("/repos/acme/widget/commits/"+shaInferred,
		commitDetailAnon(shaInferred, "third", "shared@example.com"))
	api.on("/repos/acme/widget/commits/"+shaUnknown,
		commitDetailAnon(shaUnknown, "fourth", "nobody@example.com"))
	api.on("/repos/acme/widget/branches", `[]`)
	return api
}

func TestIdentityEmailLinkIsFirstWins(t *testing.T) {
	syncer, store := newTestSyncer(t, identityFixture())
	ctx := context.Background()

	require.NoError(t, syncer.Run(ctx, []string{"acme"}))

	bob, err := store.UserByExtID(ctx, 2)
	require.NoError(t, err)

	// Dave's commit carried the same email but must not steal the link.
	email, err := store.EmailByAddress(ctx, "shared@example.com")
	require.NoError(t, err)
	require.NotNil(t, email.UserID)
	assert.Equal(t, bob.ID, *email.UserID)
}

func TestIdentityInferredFromEmailAlone(t *testing.T) {
	syncer, store := newTestSyncer(t, identityFixture())
	ctx := context.Background()

	require.NoError(t, syncer.Run(ctx, []string{"acme"}))

	bob, err := store.UserByExtID(ctx, 2)
	require.NoError(t, err)

	// No account sub-object, but the email already links to bob.
	inferred, err := store.CommitBySHA(ctx, []byte(shaInferred))
	require.NoError(t, err)
	require.NotNil(t, inferred.AuthorID)
	assert.Equal(t, bob.ID, *inferred.AuthorID)
}

func TestIdentityFullyAnonymousCommit(t *testing.T) {
	syncer, store := newTestSyncer(t, identityFixture())
	ctx := context.Background()

	require.NoError(t, syncer.Run(ctx, []string{"acme"}))

	// Unknown email: the address is recorded unlinked, the user stays nil.
	unknown, err := store.CommitBySHA(ctx, []byte(shaUnknown))
	require.NoError(t, err)
	assert.Nil(t, unknown.AuthorID)
	require.NotNil(t, unknown.AuthorEmailID)

	email, err := store.EmailByAddress(ctx, "nobody@example.com")
	require.NoError(t, err)
	assert.Nil(t, email.UserID)

	var users int64
	store.DB().Model(&data.User{}).Count(&users)
	assert.EqualValues(t, 2, users)
}
