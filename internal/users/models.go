package users

import (
	"time"

	"github.com/ariefcatur/plantnet/internal/apperr"
)

type Role string

const (
	RoleCustomer Role = "customer"
	RoleSeller   Role = "seller"
	RoleAdmin    Role = "admin"
)

// Status tracks a customer's request to become a seller.
type Status string

const (
	StatusNone      Status = ""
	StatusRequested Status = "Requested"
	StatusVerified  Status = "Verified"
)

var (
	ErrNotFound         = apperr.New(apperr.NotFound, "user not found")
	ErrEmailRequired    = apperr.New(apperr.InvalidArgument, "email is required")
	ErrAlreadyRequested = apperr.New(apperr.Conflict, "seller request already pending")
	ErrAlreadySeller    = apperr.New(apperr.Conflict, "user is already a seller or admin")
	ErrNotRequested     = apperr.New(apperr.Conflict, "no pending seller request")
	ErrUnknownRole      = apperr.New(apperr.InvalidArgument, "unknown role")
)

type User struct {
	Email     string
	Name      string
	Image     string
	Role      Role
	Status    Status
	CreatedAt time.Time
	UpdatedAt time.Time
}

func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleCustomer, RoleSeller, RoleAdmin:
		return r, nil
	}
	return "", ErrUnknownRole
}
