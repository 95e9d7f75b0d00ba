package core

// error_messages.go maps technical errors to user-facing messages with a
// code support staff can look up.
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - File too large
//	FILE002 - Unsupported file format
//	FILE003 - File not found
//	FILE004 - Unsupported JSON layout
//	FILE006 - No file provided
//
// # Schema Errors (SCH001-SCH099)
//
//	SCH001 - Destination table could not be created
//	SCH002 - Permission denied on schema or table
//	SCH003 - Invalid table or schema name
//
// # Row Errors (ROW001-ROW099)
//
//	ROW001 - Duplicate key
//	ROW002 - Value does not match the column type
//	ROW003 - Number out of range
//	ROW004 - Missing required value
//
// # Database Errors (DB001-DB099)
//
//	DB001 - Connection refused
//	DB002 - Connection lost
//	DB003 - Authentication failed
//	DB004 - Table not found
//	DB005 - Timeout
//
// # Import Errors (IMP001-IMP099)
//
//	IMP001 - Too many imports in progress
//	IMP002 - Import cancelled
//	IMP003 - Import timed out
//	IMP004 - Rate limited
//
// # Default Error (ERR000)
//
// Returned when nothing matches. Check the logs for the original error.
//
// Typed errors are matched first with errors.Is. Anything else is matched
// case-insensitively against errorPatterns; the first match wins, so
// specific patterns go before general ones.

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/JonMunkholm/tableimport/internal/reader"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string `json:"message"` // What happened
	Action  string `json:"action"`  // What to do about it
	Code    string `json:"code"`    // Support reference
}

// errorKind maps a sentinel to its message.
type errorKind struct {
	target error
	msg    UserMessage
}

// errorKinds are checked in order with errors.Is before any pattern.
var errorKinds = []errorKind{
	{ErrFileTooLarge, UserMessage{
		Message: "File exceeds the maximum size limit",
		Action:  "Split the file into smaller files",
		Code:    "FILE001",
	}},
	{reader.ErrUnsupportedFormat, UserMessage{
		Message: "File format is not supported",
		Action:  "Use a .csv, .tsv, .txt, .xlsx, .xls or .json file",
		Code:    "FILE002",
	}},
	{reader.ErrFileNotFound, UserMessage{
		Message: "File not found",
		Action:  "Check the path and try again",
		Code:    "FILE003",
	}},
	{reader.ErrUnsupportedJSONShape, UserMessage{
		Message: "JSON layout is not supported",
		Action:  "Provide an array of objects, or an object with a \"data\" array",
		Code:    "FILE004",
	}},
	{ErrInvalidTableName, UserMessage{
		Message: "Invalid table or schema name",
		Action:  "Use letters, digits and underscores only",
		Code:    "SCH003",
	}},
	{ErrTableNotFound, UserMessage{
		Message: "Table not found",
		Action:  "Import a file into this table first",
		Code:    "DB004",
	}},
	{ErrTooManyImports, UserMessage{
		Message: "Another import is in progress",
		Action:  "Please wait a moment and try again",
		Code:    "IMP001",
	}},
	{context.Canceled, UserMessage{
		Message: "Import was cancelled",
		Action:  "Start the import again when ready",
		Code:    "IMP002",
	}},
	{context.DeadlineExceeded, UserMessage{
		Message: "Import timed out",
		Action:  "Try a smaller file or raise IMPORT_TIMEOUT",
		Code:    "IMP003",
	}},
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns maps technical error text (case-insensitive) to user messages.
var errorPatterns = []errorPattern{
	// =========================================================================
	// Database Connection Errors
	// Checked before schema errors because a broken session during DDL is
	// reported as a connection problem.
	// =========================================================================
	{
		pattern: "password authentication failed",
		msg: UserMessage{
			Message: "Database authentication failed",
			Action:  "Check DB_USER and DB_PASSWORD",
			Code:    "DB003",
		},
	},
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to database",
			Action:  "Check DB_HOST and DB_PORT and that the server is running",
			Code:    "DB001",
		},
	},
	{
		pattern: "database connection error",
		msg: UserMessage{
			Message: "Database connection was lost",
			Action:  "Please try again; files after this one were not imported",
			Code:    "DB002",
		},
	},
	{
		pattern: "connection reset",
		msg: UserMessage{
			Message: "Database connection was lost",
			Action:  "Please try again",
			Code:    "DB002",
		},
	},

	// =========================================================================
	// Schema Errors
	// =========================================================================
	{
		pattern: "permission denied",
		msg: UserMessage{
			Message: "Permission denied on the destination schema or table",
			Action:  "Grant CREATE on the schema to the database user",
			Code:    "SCH002",
		},
	},
	{
		pattern: "schema error",
		msg: UserMessage{
			Message: "The destination table could not be created",
			Action:  "Check the logs for the failing statement",
			Code:    "SCH001",
		},
	},

	// =========================================================================
	// Row Errors
	// =========================================================================
	{
		pattern: "duplicate key",
		msg: UserMessage{
			Message: "A row with this key already exists",
			Action:  "Remove duplicate IDs from the file",
			Code:    "ROW001",
		},
	},
	{
		pattern: "out of range",
		msg: UserMessage{
			Message: "A number is too large for its column",
			Action:  "Check the failed rows for oversized values",
			Code:    "ROW003",
		},
	},
	{
		pattern: "invalid input syntax",
		msg: UserMessage{
			Message: "A value does not match its column type",
			Action:  "Check the failed rows for values in the wrong format",
			Code:    "ROW002",
		},
	},
	{
		pattern: "for column",
		msg: UserMessage{
			Message: "A value does not match its column type",
			Action:  "Check the failed rows for values in the wrong format",
			Code:    "ROW002",
		},
	},
	{
		pattern: "not-null constraint",
		msg: UserMessage{
			Message: "A required value is missing",
			Action:  "Fill in the empty cells and try again",
			Code:    "ROW004",
		},
	},

	// =========================================================================
	// Request Errors
	// =========================================================================
	{
		pattern: "no file provided",
		msg: UserMessage{
			Message: "No file was provided",
			Action:  "Select at least one file to import",
			Code:    "FILE006",
		},
	},
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "IMP004",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "Operation timed out",
			Action:  "Please try again later",
			Code:    "DB005",
		},
	},
}

// defaultMessage is returned when nothing matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or check the logs",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message. A nil
// error maps to the zero UserMessage.
//
// Example:
//
//	msg := MapError(outcome.Err)
//	// msg.Code == "SCH001" for a failed CREATE TABLE
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	for _, k := range errorKinds {
		if errors.Is(err, k.target) {
			return k.msg
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError renders err as "Message (Code: XXX). Action", or "" for nil.
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to something more specific than ERR000.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError pairs a technical error with its user message. Error returns
// the user text; Unwrap returns the original for logging.
type UserError struct {
	Technical error
	User      UserMessage
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError maps err. Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
