package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/just-nibble/gh-stats/internal/data"
	"github.com/just-nibble/gh-stats/pkg/errcodes"
	"github.com/just-nibble/gh-stats/pkg/github"
)

// syncOrgs reconciles the configured organisation logins and returns every
// organisation now in the store. Logins whose name already matches a stored
// organisation are not re-fetched; the rest are fetched and matched by
// remote id so a renamed organisation is updated in place rather than
// duplicated.
func (s *Syncer) syncOrgs(ctx context.Context, names []string) ([]data.Organisation, error) {
	existing, err := s.store.Organisations(ctx)
	if err != nil {
		return nil, err
	}

	known := make(map[string]struct{}, len(existing))
	for _, org := range existing {
		known[org.Name] = struct{}{}
	}

	for _, name := range names {
		if _, ok := known[name]; ok {
			continue
		}
		records, err := s.fetchAll(ctx, fmt.Sprintf("%s/orgs/%s", s.gh.BaseURL(), name))
		if err != nil {
			return nil, err
		}
		recs := github.Decode[github.Org](records)
		if len(recs) == 0 {
			log.Warn().Str("org", name).Msg("organisation not fetched, skipping")
			continue
		}

		org, created, err := s.findOrCreateOrg(ctx, recs[0])
		if err != nil {
			return nil, err
		}
		if created {
			existing = append(existing, *org)
			continue
		}
		// Matched a stored organisation under a stale login. Downstream
		// phases build URLs from the name, so the fresh record must replace
		// the copy loaded above.
		for i := range existing {
			if existing[i].ExtID == org.ExtID {
				existing[i] = *org
				break
			}
		}
	}

	return existing, nil
}

// findOrCreateOrg reconciles one raw organisation record by remote id.
func (s *Syncer) findOrCreateOrg(ctx context.Context, rec github.Org) (*data.Organisation, bool, error) {
	org, err := s.store.OrgByExtID(ctx, rec.ID)
	if errors.Is(err, errcodes.ErrNoRecordFound) {
		org = &data.Organisation{
			Entity:   data.Entity{Name: rec.Login},
			External: data.External{ExtID: rec.ID},
		}
		if err := s.store.CreateOrg(ctx, org); err != nil {
			return nil, false, err
		}
		log.Info().Str("org", rec.Login).Msg("organisation created")
		return org, true, nil
	}
	if err != nil {
		return nil, false, err
	}

	if org.Name != rec.Login {
		log.Info().Str("from", org.Name).Str("to", rec.Login).Msg("organisation renamed")
		org.Name = rec.Login
		if err := s.store.SaveOrg(ctx, org); err != nil {
			return nil, false, err
		}
	}
	return org, false, nil
}

// syncUsers reconciles the member users of each organisation.
func (s *Syncer) syncUsers(ctx context.Context, orgs []data.Organisation) error {
	tasks := make([]fetchTask, 0, len(orgs))
	for _, org := range orgs {
		url := fmt.Sprintf("%s/orgs/%s/members", s.gh.BaseURL(), org.Name)
		tasks = append(tasks, fetchTask{key: org.ID, url: url})
	}

	byOrg, err := s.collect(ctx, tasks)
	if err != nil {
		return err
	}

	for i := range orgs {
		org := &orgs[i]
		for _, member := range github.Decode[github.Account](byOrg[org.ID]) {
			if _, err := s.findOrCreateUser(ctx, member, org); err != nil {
				return err
			}
		}
	}
	return nil
}

// findOrCreateUser reconciles one raw account by remote id. When org is
// non-nil the user's org membership is recorded (memberships only grow).
// A newly seen user's detail record is fetched once for its public email.
func (s *Syncer) findOrCreateUser(ctx context.Context, rec github.Account, org *data.Organisation) (*data.User, error) {
	user, err := s.store.UserByExtID(ctx, rec.ID)
	if err != nil && !errors.Is(err, errcodes.ErrNoRecordFound) {
		return nil, err
	}

	if user != nil {
		if user.Name != rec.Login {
			log.Info().Str("from", user.Name).Str("to", rec.Login).Msg("user renamed")
			user.Name = rec.Login
			if err := s.store.SaveUser(ctx, user); err != nil {
				return nil, err
			}
		}
		if org != nil {
			if err := s.store.AddUserToOrg(ctx, user, org); err != nil {
				return nil, err
			}
		}
		return user, nil
	}

	user = &data.User{
		Entity:   data.Entity{Name: rec.Login},
		External: data.External{ExtID: rec.ID},
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	if org != nil {
		if err := s.store.AddUserToOrg(ctx, user, org); err != nil {
			return nil, err
		}
	}

	if err := s.enrichUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// enrichUser fetches the full user record and stores the public email, if
// any, linked to the user.
func (s *Syncer) enrichUser(ctx context.Context, user *data.User) error {
	records, err := s.fetchAll(ctx, fmt.Sprintf("%s/users/%s", s.gh.BaseURL(), user.Name))
	if err != nil {
		return err
	}
	details := github.Decode[github.UserDetail](records)
	if len(details) == 0 || details[0].Email == nil || *details[0].Email == "" {
		return nil
	}

	address := *details[0].Email
	_, err = s.store.EmailByAddress(ctx, address)
	if errors.Is(err, errcodes.ErrNoRecordFound) {
		return s.store.CreateEmail(ctx, &data.Email{Address: address, UserID: &user.ID})
	}
	return err
}

// syncTeams reconciles each organisation's teams and team memberships.
// Membership resolution only links members already known as users; unknown
// members are skipped silently.
func (s *Syncer) syncTeams(ctx context.Context, orgs []data.Organisation) error {
	tasks := make([]fetchTask, 0, len(orgs))
	for _, org := range orgs {
		url := fmt.Sprintf("%s/orgs/%s/teams", s.gh.BaseURL(), org.Name)
		tasks = append(tasks, fetchTask{key: org.ID, url: url})
	}

	byOrg, err := s.collect(ctx, tasks)
	if err != nil {
		return err
	}

	for i := range orgs {
		org := &orgs[i]
		for _, rec := range github.Decode[github.Team](byOrg[org.ID]) {
			if err := s.syncTeam(ctx, rec, org); err != nil {
				return err
			}
		}
	}
	return nil
}

// syncTeam reconciles one team and its member links.
func (s *Syncer) syncTeam(ctx context.Context, rec github.Team, org *data.Organisation) error {
	team, err := s.store.TeamByExtID(ctx, rec.ID)
	if errors.Is(err, errcodes.ErrNoRecordFound) {
		team = &data.Team{
			Entity:   data.Entity{Name: rec.Slug},
			External: data.External{ExtID: rec.ID},
			OrgID:    org.ID,
		}
		if err := s.store.CreateTeam(ctx, team); err != nil {
			return err
		}
	} else if err != nil {
		return err
	} else if team.Name != rec.Slug {
		team.Name = rec.Slug
		if err := s.store.SaveTeam(ctx, team); err != nil {
			return err
		}
	}

	records, err := s.fetchAll(ctx, fmt.Sprintf("%s/teams/%d/members", s.gh.BaseURL(), team.ExtID))
	if err != nil {
		return err
	}
	members := github.Decode[github.Account](records)

	ids := make([]int64, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.ID)
	}
	users, err := s.store.UsersByExtIDs(ctx, ids)
	if err != nil {
		return err
	}
	for i := range users {
		if err := s.store.AddUserToTeam(ctx, &users[i], team); err != nil {
			return err
		}
	}
	return nil
}

// repoWithOrg pairs a repository with its owning organisation; the org login
// is needed to build the repo's API URLs.
type repoWithOrg struct {
	repo *data.Repo
	org  *data.Organisation
}

// syncRepos reconciles each organisation's repositories.
func (s *Syncer) syncRepos(ctx context.Context, orgs []data.Organisation) ([]repoWithOrg, error) {
	tasks := make([]fetchTask, 0, len(orgs))
	for _, org := range orgs {
		url := fmt.Sprintf("%s/orgs/%s/repos", s.gh.BaseURL(), org.Name)
		tasks = append(tasks, fetchTask{key: org.ID, url: url})
	}

	byOrg, err := s.collect(ctx, tasks)
	if err != nil {
		return nil, err
	}

	var out []repoWithOrg
	for i := range orgs {
		org := &orgs[i]
		for _, rec := range github.Decode[github.Repo](byOrg[org.ID]) {
			repo, err := s.findOrCreateRepo(ctx, rec, org)
			if err != nil {
				return nil, err
			}
			out = append(out, repoWithOrg{repo: repo, org: org})
		}
	}
	return out, nil
}

// findOrCreateRepo reconciles one raw repository record by remote id.
func (s *Syncer) findOrCreateRepo(ctx context.Context, rec github.Repo, org *data.Organisation) (*data.Repo, error) {
	repo, err := s.store.RepoByExtID(ctx, rec.ID)
	if errors.Is(err, errcodes.ErrNoRecordFound) {
		repo = &data.Repo{
			Entity:   data.Entity{Name: rec.Name},
			External: data.External{ExtID: rec.ID},
			OrgID:    org.ID,
		}
		return repo, s.store.CreateRepo(ctx, repo)
	}
	if err != nil {
		return nil, err
	}

	if repo.Name != rec.Name {
		log.Info().Str("from", repo.Name).Str("to", rec.Name).Msg("repository renamed")
		repo.Name = rec.Name
		if err := s.store.SaveRepo(ctx, repo); err != nil {
			return nil, err
		}
	}
	return repo, nil
}
