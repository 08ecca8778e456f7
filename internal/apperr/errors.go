// Package apperr defines the domain error taxonomy shared by stores,
// services and the HTTP layer.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"net"
)

type Kind int

const (
	KindInternal Kind = iota
	KindDuplicateEmail
	KindWeakPassword
	KindInvalidCredentials
	KindUserNotFound
	KindTenantNotFound
	KindSlugTaken
	KindAlreadyMember
	KindNotAMember
	KindInsufficientPrivilege
	KindLastOwnerProtected
	KindSelfRemovalByLastOwner
	KindTokenExpired
	KindTokenInvalid
	KindTokenReused
	KindNoActiveWorkspace
	KindTenantMismatch
	KindInsufficientPermissions
	KindRateLimited
	KindUnavailable
	KindNotFound
	KindInvalidInput
)

var kindCodes = map[Kind]string{
	KindInternal:                "internal_error",
	KindDuplicateEmail:          "duplicate_email",
	KindWeakPassword:            "weak_password",
	KindInvalidCredentials:      "invalid_credentials",
	KindUserNotFound:            "user_not_found",
	KindTenantNotFound:          "tenant_not_found",
	KindSlugTaken:               "slug_taken",
	KindAlreadyMember:           "already_member",
	KindNotAMember:              "not_a_member",
	KindInsufficientPrivilege:   "insufficient_privilege",
	KindLastOwnerProtected:      "last_owner_protected",
	KindSelfRemovalByLastOwner:  "self_removal_by_last_owner",
	KindTokenExpired:            "token_expired",
	KindTokenInvalid:            "token_invalid",
	KindTokenReused:             "token_reused",
	KindNoActiveWorkspace:       "no_active_workspace",
	KindTenantMismatch:          "tenant_mismatch",
	KindInsufficientPermissions: "insufficient_permissions",
	KindRateLimited:             "rate_limited",
	KindUnavailable:             "service_unavailable",
	KindNotFound:                "not_found",
	KindInvalidInput:            "invalid_request",
}

// Code is the stable machine-readable identifier returned to clients.
func (k Kind) Code() string {
	if code, ok := kindCodes[k]; ok {
		return code
	}
	return kindCodes[KindInternal]
}

func (k Kind) String() string { return k.Code() }

type Error struct {
	Kind    Kind
	Message string

	// Reason names the violated rule for WeakPassword.
	Reason string
	// Required and Actual carry role names for guard denials.
	Required string
	Actual   string

	Err error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.Code()
	}
	if e.Reason != "" {
		msg = msg + ": " + e.Reason
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, ErrNotAMember)
// holds for values built with New or the helper constructors.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

var (
	ErrDuplicateEmail          = New(KindDuplicateEmail, "email already registered")
	ErrWeakPassword            = New(KindWeakPassword, "password does not meet policy")
	ErrInvalidCredentials      = New(KindInvalidCredentials, "invalid email or password")
	ErrUserNotFound            = New(KindUserNotFound, "user not found")
	ErrTenantNotFound          = New(KindTenantNotFound, "workspace not found")
	ErrSlugTaken               = New(KindSlugTaken, "workspace slug already in use")
	ErrAlreadyMember           = New(KindAlreadyMember, "user is already a member")
	ErrNotAMember              = New(KindNotAMember, "workspace not found")
	ErrInsufficientPrivilege   = New(KindInsufficientPrivilege, "insufficient privilege for this change")
	ErrLastOwnerProtected      = New(KindLastOwnerProtected, "workspace must keep at least one owner")
	ErrSelfRemovalByLastOwner  = New(KindSelfRemovalByLastOwner, "the last owner cannot leave the workspace")
	ErrTokenExpired            = New(KindTokenExpired, "token expired")
	ErrTokenInvalid            = New(KindTokenInvalid, "invalid token")
	ErrTokenReused             = New(KindTokenReused, "refresh token reuse detected")
	ErrNoActiveWorkspace       = New(KindNoActiveWorkspace, "no active workspace selected")
	ErrTenantMismatch          = New(KindTenantMismatch, "workspace context mismatch")
	ErrInsufficientPermissions = New(KindInsufficientPermissions, "insufficient permissions")
	ErrRateLimited             = New(KindRateLimited, "rate limit exceeded")
	ErrUnavailable             = New(KindUnavailable, "service temporarily unavailable")
	ErrNotFound                = New(KindNotFound, "resource not found")
	ErrInvalidInput            = New(KindInvalidInput, "invalid request")
)

func WeakPassword(reason string) *Error {
	return &Error{Kind: KindWeakPassword, Message: ErrWeakPassword.Message, Reason: reason}
}

func InsufficientPermissions(required, actual string) *Error {
	return &Error{
		Kind:     KindInsufficientPermissions,
		Message:  ErrInsufficientPermissions.Message,
		Required: required,
		Actual:   actual,
	}
}

func InvalidInput(message string) *Error {
	return &Error{Kind: KindInvalidInput, Message: message}
}

func Unavailable(cause error) *Error {
	return &Error{Kind: KindUnavailable, Message: ErrUnavailable.Message, Err: cause}
}

// KindOf returns the kind of the first *Error in err's chain, or
// KindInternal when there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Classify converts deadline and connection failures into Unavailable so
// callers never report infrastructure trouble as an authorization outcome.
// Domain errors and nil pass through unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Unavailable(err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return Unavailable(err)
	}
	return err
}

// Wrap annotates err while keeping its kind reachable through errors.Is.
func Wrap(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}
