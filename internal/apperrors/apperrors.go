// Package apperrors converts failures from external collaborators (database,
// object storage, identity, network) into a closed set of user-facing
// messages. Full error detail stays in the logs.
package apperrors

import (
	"errors"
	"fmt"
	"net"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Kind classifies where a ProviderError came from
type Kind string

const (
	KindAuth       Kind = "auth"
	KindDatabase   Kind = "database"
	KindStorage    Kind = "storage"
	KindNetwork    Kind = "network"
	KindValidation Kind = "validation"
	KindUnknown    Kind = "default"
)

// ProviderError is the tagged error produced at the boundary with an external service
type ProviderError struct {
	Kind    Kind
	Code    string
	Message string
	Status  int
	Err     error
}

func (e *ProviderError) Error() string {
	switch {
	case e.Code != "" && e.Message != "":
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, e.Code)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return string(e.Kind)
	}
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Auth builds an identity-provider error such as invalid_credentials
func Auth(code string, status int) *ProviderError {
	return &ProviderError{Kind: KindAuth, Code: code, Status: status}
}

// Storage builds an object-storage error, code is one of the storage/* codes
func Storage(code string, err error) *ProviderError {
	pe := &ProviderError{Kind: KindStorage, Code: code, Err: err}
	if err != nil {
		pe.Message = err.Error()
	}
	return pe
}

// Validation builds an input validation error carrying the first issue message
func Validation(message string) *ProviderError {
	return &ProviderError{Kind: KindValidation, Code: "validation_failed", Message: message}
}

// Network wraps a transport failure
func Network(err error) *ProviderError {
	return &ProviderError{Kind: KindNetwork, Message: "network error", Err: err}
}

// FromPostgres tags a pgx error with its SQLSTATE code.
// No-row results carry the PGRST116 code used for empty single-row lookups.
func FromPostgres(err error) *ProviderError {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return &ProviderError{Kind: KindDatabase, Code: "PGRST116", Message: "no rows", Err: err}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return &ProviderError{Kind: KindDatabase, Code: pgErr.Code, Message: pgErr.Message, Err: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return Network(err)
	}

	return &ProviderError{Kind: KindDatabase, Message: err.Error(), Err: err}
}

// Generic messages by category
const (
	MsgAuth       = "Authentication failed. Please try again or contact support."
	MsgDatabase   = "Unable to process your request. Please try again."
	MsgStorage    = "File operation failed. Please try again."
	MsgNetwork    = "Connection error. Please check your internet connection."
	MsgValidation = "Invalid input. Please check your information."
	MsgDefault    = "An unexpected error occurred. Please try again or contact support."
)

type codeMessage struct {
	code    string
	message string
}

// knownCodes is ordered: message substring matching returns the first hit
var knownCodes = []codeMessage{
	{"23503", "Related information not found. Please check your selection."},
	{"23505", "This entry already exists. Please use a different value."},
	{"23514", "Invalid data provided. Please check your input."},
	{"PGRST116", "No matching records found."},
	{"PGRST301", "Invalid request format."},
	{"invalid_grant", "Invalid credentials. Please check your email and password."},
	{"invalid_credentials", "Invalid credentials. Please check your email and password."},
	{"email_exists", "An account with this email already exists."},
	{"weak_password", "Password is too weak. Please use a stronger password."},
	{"user_not_found", "No account found with this email."},
	{"invalid_otp", "Invalid verification code. Please try again."},
	{"otp_expired", "Verification code has expired. Please request a new one."},
	{"email_not_confirmed", "Please verify your email address before logging in."},
	{"storage/object-not-found", "File not found."},
	{"storage/unauthorized", "You do not have permission to access this file."},
	{"storage/invalid-argument", "Invalid file format or size."},
}

var postgresCode = regexp.MustCompile(`^\d{5}$`)

// UserMessage converts err into a message safe to show to end users.
// Lookup order: exact code, a known code inside the lowercased message,
// then a generic message for the error's category.
func UserMessage(err error) string {
	if err == nil {
		return MsgDefault
	}

	pe := asProviderError(err)

	if pe.Code != "" {
		for _, km := range knownCodes {
			if km.code == pe.Code {
				return km.message
			}
		}
	}

	msg := strings.ToLower(pe.Message)
	for _, km := range knownCodes {
		if strings.Contains(msg, strings.ToLower(km.code)) {
			return km.message
		}
	}

	return categoryMessage(Category(pe))
}

// ValidationMessage returns the first validation issue carried by err,
// or the generic validation message
func ValidationMessage(err error) string {
	var pe *ProviderError
	if errors.As(err, &pe) && pe.Kind == KindValidation && pe.Message != "" {
		return pe.Message
	}
	return MsgValidation
}

// Category applies the heuristic classification used for unmapped errors
func Category(pe *ProviderError) Kind {
	if pe == nil {
		return KindUnknown
	}

	msg := strings.ToLower(pe.Message)
	code := strings.ToLower(pe.Code)

	switch {
	case pe.Kind == KindAuth || pe.Status == 401 || pe.Status == 403:
		return KindAuth
	case strings.Contains(msg, "storage") || strings.Contains(code, "storage"):
		return KindStorage
	case strings.Contains(msg, "fetch") || strings.Contains(msg, "network"):
		return KindNetwork
	case pe.Kind == KindValidation || strings.Contains(code, "validation"):
		return KindValidation
	case postgresCode.MatchString(pe.Code):
		return KindDatabase
	}

	// Fall back to the tag set at the boundary
	switch pe.Kind {
	case KindDatabase, KindStorage, KindNetwork:
		return pe.Kind
	}
	return KindUnknown
}

func categoryMessage(kind Kind) string {
	switch kind {
	case KindAuth:
		return MsgAuth
	case KindDatabase:
		return MsgDatabase
	case KindStorage:
		return MsgStorage
	case KindNetwork:
		return MsgNetwork
	case KindValidation:
		return MsgValidation
	default:
		return MsgDefault
	}
}

func asProviderError(err error) *ProviderError {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe
	}
	return &ProviderError{Kind: KindUnknown, Message: err.Error(), Err: err}
}
