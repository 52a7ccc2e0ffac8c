package users

// Seller requests move through
//
//	customer/""  --RequestSeller-->  customer/Requested
//	customer/Requested  --Decide(seller)-->  seller/Verified
//	customer/Requested  --Decide(customer)-->  customer/""
//
// Decide is admin-only; the HTTP layer enforces that.

func RequestSeller(u User) (User, error) {
	if u.Role != RoleCustomer {
		return u, ErrAlreadySeller
	}
	if u.Status == StatusRequested {
		return u, ErrAlreadyRequested
	}
	u.Status = StatusRequested
	return u, nil
}

// Decide approves (RoleSeller) or rejects (RoleCustomer) a pending request.
func Decide(u User, decision Role) (User, error) {
	if decision != RoleSeller && decision != RoleCustomer {
		return u, ErrUnknownRole
	}
	if u.Role != RoleCustomer || u.Status != StatusRequested {
		return u, ErrNotRequested
	}
	if decision == RoleSeller {
		u.Role, u.Status = RoleSeller, StatusVerified
		return u, nil
	}
	u.Status = StatusNone
	return u, nil
}
