package auth

import "context"

// AccountStore is the persistence contract the credential core depends on.
//
// FindByEmail and FindByID return (nil, nil) when no account matches.
// UpdateFields returns ErrNotFound for an unknown id and ErrConcurrentModification
// when guard no longer matches the stored code.
type AccountStore interface {
	Insert(ctx context.Context, account *Account) error
	FindByEmail(ctx context.Context, email string) (*Account, error)
	FindByID(ctx context.Context, id string) (*Account, error)
	UpdateFields(ctx context.Context, id string, update AccountUpdate, guard *OTPGuard) error
}

// AccountUpdate lists the fields to change; nil pointers are left untouched.
// Role is intentionally absent.
type AccountUpdate struct {
	PasswordHash *string
	IsVerified   *bool
	Name         *string
	Phone        *string
	Age          *int
	VerifyOTP    *OTPSlot
	ResetOTP     *OTPSlot
}

func (u AccountUpdate) Empty() bool {
	return u.PasswordHash == nil && u.IsVerified == nil && u.Name == nil &&
		u.Phone == nil && u.Age == nil && u.VerifyOTP == nil && u.ResetOTP == nil
}

// SetSlot returns a copy of u that writes slot for purpose.
func (u AccountUpdate) SetSlot(purpose OTPPurpose, slot OTPSlot) AccountUpdate {
	if purpose == PurposeReset {
		u.ResetOTP = &slot
	} else {
		u.VerifyOTP = &slot
	}
	return u
}

// OTPGuard makes an update conditional on the slot for Purpose still holding
// CodeHash. An empty CodeHash expects the slot to be empty.
type OTPGuard struct {
	Purpose  OTPPurpose
	CodeHash string
}

// Apply mutates a in place. Store implementations share it so the in-memory
// and SQL paths agree on field semantics.
func (u AccountUpdate) Apply(a *Account) {
	if u.PasswordHash != nil {
		a.PasswordHash = *u.PasswordHash
	}
	if u.IsVerified != nil {
		a.IsVerified = *u.IsVerified
	}
	if u.Name != nil {
		name := *u.Name
		a.Name = &name
	}
	if u.Phone != nil {
		a.Phone = *u.Phone
	}
	if u.Age != nil {
		a.Age = *u.Age
	}
	if u.VerifyOTP != nil {
		a.VerifyOTP = *u.VerifyOTP
	}
	if u.ResetOTP != nil {
		a.ResetOTP = *u.ResetOTP
	}
}
