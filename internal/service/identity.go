package service

import (
	"context"
	"errors"

	"github.com/just-nibble/gh-stats/internal/data"
	"github.com/just-nibble/gh-stats/pkg/errcodes"
	"github.com/just-nibble/gh-stats/pkg/github"
)

// resolveIdentity maps a commit's raw author or committer metadata onto the
// stored user and email records. Either or both results may be nil: commit
// metadata can be fully anonymous.
//
// When the commit carries an account sub-object, the user is reconciled by
// remote id and a previously unlinked email is linked to it; an email
// already linked to someone else is left untouched. Without an account the
// user is inferred, if possible, through an existing email→user link.
func (s *Syncer) resolveIdentity(ctx context.Context, sig github.Signature, account *github.Account) (*data.User, *data.Email, error) {
	var email *data.Email
	if sig.Email != "" {
		var err error
		email, err = s.store.EmailByAddress(ctx, sig.Email)
		if errors.Is(err, errcodes.ErrNoRecordFound) {
			email = &data.Email{Address: sig.Email}
			if err := s.store.CreateEmail(ctx, email); err != nil {
				return nil, nil, err
			}
		} else if err != nil {
			return nil, nil, err
		}
	}

	if account != nil {
		user, err := s.findOrCreateUser(ctx, *account, nil)
		if err != nil {
			return nil, nil, err
		}
		if email != nil {
			if err := s.store.LinkEmail(ctx, email, user); err != nil {
				return nil, nil, err
			}
		}
		return user, email, nil
	}

	if sig.Email != "" {
		user, err := s.store.UserByEmail(ctx, sig.Email)
		if errors.Is(err, errcodes.ErrNoRecordFound) {
			return nil, email, nil
		}
		if err != nil {
			return nil, nil, err
		}
		return user, email, nil
	}

	return nil, email, nil
}
