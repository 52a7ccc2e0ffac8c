package orders

import "github.com/ariefcatur/plantnet/internal/users"

type Status string

const (
	StatusPending    Status = "Pending"
	StatusInProgress Status = "InProgress"
	StatusDelivered  Status = "Delivered"
	// StatusCancelled is never stored: cancelling deletes the order.
	StatusCancelled Status = "Cancelled"
)

var validNext = map[Status]map[Status]bool{
	StatusPending:    {StatusInProgress: true},
	StatusInProgress: {StatusDelivered: true},
	StatusDelivered:  {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusPending, StatusInProgress, StatusDelivered, StatusCancelled:
		return st, nil
	}
	return "", ErrUnknownStatus
}

// Guard decides a seller status change. changed is false for a same-status no-op.
func Guard(o Order, next Status, actor Actor) (changed bool, err error) {
	if actor.Role != users.RoleSeller {
		return false, ErrSellerOnly
	}
	if o.SellerEmail != actor.Email {
		return false, ErrNotOrderSeller
	}
	if o.Status == StatusDelivered {
		return false, ErrDeliveredLocked
	}
	if _, err := ParseStatus(string(next)); err != nil {
		return false, err
	}
	if next == o.Status {
		return false, nil
	}
	if !CanTransition(o.Status, next) {
		return false, ErrIllegalTransition
	}
	return true, nil
}

// CheckCancel decides whether actor may cancel o from side.
func CheckCancel(o Order, actor Actor, side CancelSide) error {
	switch side {
	case SellerSide:
		if actor.Role != users.RoleSeller {
			return ErrSellerOnly
		}
		if o.SellerEmail != actor.Email {
			return ErrNotOrderSeller
		}
	default:
		if o.Customer.Email != actor.Email {
			return ErrNotOrderCustomer
		}
	}
	if o.Status == StatusDelivered {
		return ErrDeliveredNoCancel
	}
	return nil
}
