// Package core provides the streaming conversion engine for the media catalog.
//
// # Error Codes Reference
//
// This file defines operator-facing error messages with codes. The codes are
// written to the run log and returned by the status API so a failed run can be
// diagnosed without reading the full technical error.
//
// # Structure Errors (STR001-STR099)
//
//	STR001 - Unbalanced document: container ends do not match their starts
//	STR002 - Truncated document: the list ended inside an open container
//	STR003 - Invalid token: the list is not well-formed JSON
//
// # Database Errors (DB001-DB099)
//
//	DB001 - Duplicate key: an identifier was written twice
//	DB002 - Connection refused
//	DB003 - Connection reset
//	DB004 - Statement too large for the server
//	DB005 - Deadlock
//	DB006 - Undefined table: migrations have not been applied
//
// # Source Errors (SRC001-SRC099)
//
//	SRC001 - No mirror reachable
//	SRC002 - Archive corrupt: xz stream could not be decoded
//	SRC003 - List file missing
//
// # Run Errors (RUN001-RUN099)
//
//	RUN001 - List too small: not committed
//	RUN002 - Run in progress
//	RUN003 - Run cancelled
//	RUN004 - Run timed out
//	RUN005 - Unknown schema
//
// # Default Error (ERR000)
//
// Sentinel errors are matched first with errors.Is. Remaining errors are
// matched case-insensitively by substring; the first matching pattern wins.
package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors of the conversion engine and the loader around it.
var (
	ErrUnbalanced    = errors.New("unbalanced document structure")
	ErrTruncated     = errors.New("truncated document")
	ErrListTooSmall  = errors.New("list too small")
	ErrRunInProgress = errors.New("run already in progress")
	ErrNoMirror      = errors.New("no mirror reachable")
	ErrUnknownSchema = errors.New("unknown schema")
)

// UserMessage provides operator-facing error information with guidance.
type UserMessage struct {
	Message string // What happened
	Action  string // What to do about it
	Code    string // Error code for support reference
}

type sentinelMessage struct {
	err error
	msg UserMessage
}

// sentinelMessages are checked with errors.Is before any text matching.
var sentinelMessages = []sentinelMessage{
	{ErrUnbalanced, UserMessage{
		Message: "The list document is structurally broken",
		Action:  "Download the list again",
		Code:    "STR001",
	}},
	{ErrTruncated, UserMessage{
		Message: "The list document ended unexpectedly",
		Action:  "Download the list again; the archive is probably incomplete",
		Code:    "STR002",
	}},
	{ErrNoMirror, UserMessage{
		Message: "No download mirror could be reached",
		Action:  "Check network access or reset mirror failure counters in the state file",
		Code:    "SRC001",
	}},
	{ErrListTooSmall, UserMessage{
		Message: "The list contains too few entries and was not committed",
		Action:  "Wait for the next list publication",
		Code:    "RUN001",
	}},
	{ErrRunInProgress, UserMessage{
		Message: "Another run is in progress",
		Action:  "Wait for the running conversion to finish",
		Code:    "RUN002",
	}},
	{context.Canceled, UserMessage{
		Message: "The run was cancelled",
		Action:  "Start a new run when ready",
		Code:    "RUN003",
	}},
	{context.DeadlineExceeded, UserMessage{
		Message: "The run timed out",
		Action:  "Raise LOADER_RUN_TIMEOUT or check database load",
		Code:    "RUN004",
	}},
	{ErrUnknownSchema, UserMessage{
		Message: "The configured list schema is not registered",
		Action:  "Check LOADER_SCHEMA",
		Code:    "RUN005",
	}},
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns maps driver and library error text (case-insensitive) to messages.
// Order matters: more specific patterns come first.
var errorPatterns = []errorPattern{
	{"invalid character", UserMessage{
		Message: "The list document is not valid JSON",
		Action:  "Download the list again",
		Code:    "STR003",
	}},
	{"duplicate key", UserMessage{
		Message: "An entry identifier was written twice",
		Action:  "Run a full conversion to rebuild the tables",
		Code:    "DB001",
	}},
	{"connection refused", UserMessage{
		Message: "Unable to connect to database",
		Action:  "Check DATABASE_URL and that the server is running",
		Code:    "DB002",
	}},
	{"connection reset", UserMessage{
		Message: "Database connection was interrupted",
		Action:  "Run again",
		Code:    "DB003",
	}},
	{"message too large", UserMessage{
		Message: "A statement exceeded the server limit",
		Action:  "Lower LOADER_MAX_BATCH_BYTES",
		Code:    "DB004",
	}},
	{"deadlock", UserMessage{
		Message: "Database was busy with conflicting operations",
		Action:  "Run again",
		Code:    "DB005",
	}},
	{"does not exist", UserMessage{
		Message: "Catalog tables are missing",
		Action:  "Run 'mvload migrate up'",
		Code:    "DB006",
	}},
	{"xz:", UserMessage{
		Message: "The list archive could not be decompressed",
		Action:  "Delete the local archive and download again",
		Code:    "SRC002",
	}},
	{"no such file", UserMessage{
		Message: "The list file does not exist",
		Action:  "Download the list or check the --file path",
		Code:    "SRC003",
	}},
}

var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Check the run log for the technical error",
	Code:    "ERR000",
}

// MapError converts a technical error to an operator-facing message.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	for _, sm := range sentinelMessages {
		if errors.Is(err, sm.err) {
			return sm.msg
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

// ErrorCode returns only the support code for err, or "" for nil.
func ErrorCode(err error) string {
	return MapError(err).Code
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}
