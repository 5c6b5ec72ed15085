package auth

import (
	"context"
	"errors"

	"github.com/nimasrn/debt-ledger/internal/model"
)

var (
	ErrNotAuthenticated = errors.New("no principal on request")
	ErrNotAdmin         = errors.New("principal is not a ledger admin")
)

// AdminAuthorizer admits the configured set of administrative principals.
type AdminAuthorizer struct {
	admins map[model.Principal]struct{}
}

func NewAdminAuthorizer(admins ...string) *AdminAuthorizer {
	set := make(map[model.Principal]struct{}, len(admins))
	for _, a := range admins {
		if a != "" {
			set[model.Principal(a)] = struct{}{}
		}
	}
	return &AdminAuthorizer{admins: set}
}

func (a *AdminAuthorizer) RequireAuthorized(_ context.Context, principal model.Principal) error {
	if principal == "" {
		return ErrNotAuthenticated
	}
	if _, ok := a.admins[principal]; !ok {
		return ErrNotAdmin
	}
	return nil
}

func (a *AdminAuthorizer) IsAdmin(principal model.Principal) bool {
	_, ok := a.admins[principal]
	return ok
}
