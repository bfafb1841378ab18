package service

import (
	"context"
	"errors"
	"fmt"

	"identity-service/internal/model"
)

// Outcome reports which branch of the federated precedence resolved an
// assertion.
type Outcome string

const (
	OutcomeMatched Outcome = "matched"
	OutcomeLinked  Outcome = "linked"
	OutcomeCreated Outcome = "created"
)

// FederationResolver maps a verified assertion onto a local account. The
// federated subject wins over the email so an account registered with a
// password is linked rather than duplicated.
type FederationResolver struct {
	accounts AccountStore
}

func NewFederationResolver(accounts AccountStore) *FederationResolver {
	return &FederationResolver{accounts: accounts}
}

func (r *FederationResolver) Resolve(ctx context.Context, a model.Assertion) (model.Account, Outcome, error) {
	if a.Subject == "" || a.Email == "" {
		return model.Account{}, "", model.ErrInvalidAssertion
	}
	if !a.EmailVerified {
		return model.Account{}, "", model.ErrEmailNotVerified
	}
	email := model.NormalizeEmail(a.Email)

	existing, err := r.accounts.FindByFederatedID(ctx, a.Subject)
	switch {
	case err == nil:
		patch := model.AccountPatch{Name: &a.Name, Picture: &a.Picture}
		if existing.Email != email {
			patch.Email = &email
		}
		updated, err := r.apply(ctx, existing, patch)
		return updated, OutcomeMatched, err
	case !errors.Is(err, model.ErrAccountNotFound):
		return model.Account{}, "", err
	}

	existing, err = r.accounts.FindByEmail(ctx, email)
	switch {
	case err == nil:
		verified := existing.EmailVerified || a.EmailVerified
		patch := model.AccountPatch{
			FederatedID:   &a.Subject,
			Name:          &a.Name,
			Picture:       &a.Picture,
			EmailVerified: &verified,
		}
		updated, err := r.apply(ctx, existing, patch)
		return updated, OutcomeLinked, err
	case !errors.Is(err, model.ErrAccountNotFound):
		return model.Account{}, "", err
	}

	created := model.Account{
		Email:         email,
		Role:          model.RoleUser,
		FederatedID:   a.Subject,
		Name:          a.Name,
		Picture:       a.Picture,
		EmailVerified: a.EmailVerified,
	}
	if err := r.accounts.Create(ctx, &created); err != nil {
		return model.Account{}, "", fmt.Errorf("create federated account: %w", err)
	}
	return created, OutcomeCreated, nil
}

func (r *FederationResolver) apply(ctx context.Context, acct model.Account, patch model.AccountPatch) (model.Account, error) {
	if err := r.accounts.Update(ctx, acct.ID, patch); err != nil {
		return model.Account{}, fmt.Errorf("update federated account: %w", err)
	}
	return patch.Apply(acct), nil
}
