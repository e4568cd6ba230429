package data

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/just-nibble/gh-stats/pkg/errcodes"
)

// Organisations returns every persisted organisation.
func (s *Store) Organisations(ctx context.Context) ([]Organisation, error) {
	var orgs []Organisation
	err := s.db.WithContext(ctx).Find(&orgs).Error
	return orgs, err
}

// OrgByExtID looks up an organisation by its remote identifier.
func (s *Store) OrgByExtID(ctx context.Context, extID int64) (*Organisation, error) {
	var org Organisation
	err := s.db.WithContext(ctx).Where("ext_id = ?", extID).First(&org).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errcodes.ErrNoRecordFound
	}
	return &org, err
}

// CreateOrg persists a new organisation.
func (s *Store) CreateOrg(ctx context.Context, org *Organisation) error {
	return s.db.WithContext(ctx).Create(org).Error
}

// SaveOrg flushes field changes on an existing organisation.
func (s *Store) SaveOrg(ctx context.Context, org *Organisation) error {
	return s.db.WithContext(ctx).Save(org).Error
}

// TeamByExtID looks up a team by its remote identifier.
func (s *Store) TeamByExtID(ctx context.Context, extID int64) (*Team, error) {
	var team Team
	err := s.db.WithContext(ctx).Where("ext_id = ?", extID).First(&team).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errcodes.ErrNoRecordFound
	}
	return &team, err
}

// CreateTeam persists a new team.
func (s *Store) CreateTeam(ctx context.Context, team *Team) error {
	return s.db.WithContext(ctx).Create(team).Error
}

// SaveTeam flushes field changes on an existing team.
func (s *Store) SaveTeam(ctx context.Context, team *Team) error {
	return s.db.WithContext(ctx).Save(team).Error
}

// UserByExtID looks up a user by its remote identifier.
func (s *Store) UserByExtID(ctx context.Context, extID int64) (*User, error) {
	var user User
	err := s.db.WithContext(ctx).Where("ext_id = ?", extID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errcodes.ErrNoRecordFound
	}
	return &user, err
}

// UsersByExtIDs returns the already-persisted users among the given remote
// identifiers. Unknown identifiers are simply absent from the result.
func (s *Store) UsersByExtIDs(ctx context.Context, extIDs []int64) ([]User, error) {
	if len(extIDs) == 0 {
		return nil, nil
	}
	var users []User
	err := s.db.WithContext(ctx).Where("ext_id IN ?", extIDs).Find(&users).Error
	return users, err
}

// CreateUser persists a new user.
func (s *Store) CreateUser(ctx context.Context, user *User) error {
	return s.db.WithContext(ctx).Create(user).Error
}

// SaveUser flushes field changes on an existing user.
func (s *Store) SaveUser(ctx context.Context, user *User) error {
	return s.db.WithContext(ctx).Save(user).Error
}

// AddUserToOrg records org membership. Adding an existing membership is a
// no-op; memberships are never removed.
func (s *Store) AddUserToOrg(ctx context.Context, user *User, org *Organisation) error {
	linked, err := s.UserInOrg(ctx, user, org)
	if err != nil || linked {
		return err
	}
	return s.db.WithContext(ctx).Table("organisation_user").
		Create(map[string]interface{}{"organisation_id": org.ID, "user_id": user.ID}).Error
}

// AddUserToTeam records team membership. Adding an existing membership is a
// no-op; memberships are never removed.
func (s *Store) AddUserToTeam(ctx context.Context, user *User, team *Team) error {
	linked, err := s.UserInTeam(ctx, user, team)
	if err != nil || linked {
		return err
	}
	return s.db.WithContext(ctx).Table("team_user").
		Create(map[string]interface{}{"team_id": team.ID, "user_id": user.ID}).Error
}

// UserInTeam reports whether the membership edge already exists.
func (s *Store) UserInTeam(ctx context.Context, user *User, team *Team) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).Table("team_user").
		Where("team_id = ? AND user_id = ?", team.ID, user.ID).
		Count(&n).Error
	return n > 0, err
}

// UserInOrg reports whether the membership edge already exists.
func (s *Store) UserInOrg(ctx context.Context, user *User, org *Organisation) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).Table("organisation_user").
		Where("organisation_id = ? AND user_id = ?", org.ID, user.ID).
		Count(&n).Error
	return n > 0, err
}

// EmailByAddress looks up an email record by address.
func (s *Store) EmailByAddress(ctx context.Context, address string) (*Email, error) {
	var email Email
	err := s.db.WithContext(ctx).Where("address = ?", address).First(&email).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errcodes.ErrNoRecordFound
	}
	return &email, err
}

// CreateEmail persists a new email record, linked or not.
func (s *Store) CreateEmail(ctx context.Context, email *Email) error {
	return s.db.WithContext(ctx).Create(email).Error
}

// LinkEmail attaches an email to its owning user. The link is first-wins:
// an email already linked to a user is left untouched.
func (s *Store) LinkEmail(ctx context.Context, email *Email, user *User) error {
	if email.UserID != nil {
		return nil
	}
	email.UserID = &user.ID
	return s.db.WithContext(ctx).Model(email).Update("user_id", user.ID).Error
}

// UserByEmail resolves a user transitively through an email→user link.
// Returns ErrNoRecordFound when the email is unknown or unlinked.
func (s *Store) UserByEmail(ctx context.Context, address string) (*User, error) {
	email, err := s.EmailByAddress(ctx, address)
	if err != nil {
		return nil, err
	}
	if email.UserID == nil {
		return nil, errcodes.ErrNoRecordFound
	}
	var user User
	err = s.db.WithContext(ctx).Where("id = ?", *email.UserID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errcodes.ErrNoRecordFound
	}
	return &user, err
}

// RepoByExtID looks up a repository by its remote identifier.
func (s *Store) RepoByExtID(ctx context.Context, extID int64) (*Repo, error) {
	var repo Repo
	err := s.db.WithContext(ctx).Where("ext_id = ?", extID).First(&repo).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errcodes.ErrNoRecordFound
	}
	return &repo, err
}

// CreateRepo persists a new repository.
func (s *Store) CreateRepo(ctx context.Context, repo *Repo) error {
	return s.db.WithContext(ctx).Create(repo).Error
}

// SaveRepo flushes field changes on an existing repository.
func (s *Store) SaveRepo(ctx context.Context, repo *Repo) error {
	return s.db.WithContext(ctx).Save(repo).Error
}
