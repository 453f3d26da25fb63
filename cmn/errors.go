// Package cmn provides common constants, types, and utilities shared by the
// distributor's core packages and its collaborators.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package cmn

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrCode is the outward-facing result code carried on every update reply.
// Values mirror the small, fixed vocabulary spec.md §6 calls out; child
// Get/Put/Update operations may pass through additional codes of their own
// (transport failures, "not found", etc.) which the coordinator forwards
// verbatim without re-encoding them into this enum.
type ErrCode int

const (
	OK ErrCode = iota
	InternalFailure
	Aborted
	BucketNotFound
	IllegalParameters
	TestAndSetConditionFailed

	// NotFound is not part of spec.md §6's fixed core vocabulary; it is a
	// child-operation result code the coordinator passes through verbatim
	// (spec.md §6: "plus pass-through of child result codes") for the
	// safe path's "document absent, no condition, no create" branch.
	NotFound
)

func (c ErrCode) String() string {
	switch c {
	case OK:
		return "OK"
	case InternalFailure:
		return "INTERNAL_FAILURE"
	case Aborted:
		return "ABORTED"
	case BucketNotFound:
		return "BUCKET_NOT_FOUND"
	case IllegalParameters:
		return "ILLEGAL_PARAMETERS"
	case TestAndSetConditionFailed:
		return "TEST_AND_SET_CONDITION_FAILED"
	case NotFound:
		return "NOT_FOUND"
	default:
		return fmt.Sprintf("ErrCode(%d)", int(c))
	}
}

// Failed reports whether the code represents anything other than a clean OK.
func (c ErrCode) Failed() bool { return c != OK }

// Result pairs an ErrCode with a human-readable message and, for internal
// failures surfaced from a wrapped Go error, the underlying cause. Result
// implements error so it can flow through normal Go error-handling when
// convenient, while still being inspectable by callers that need the code.
type Result struct {
	Code    ErrCode
	Message string
	cause   error
}

func NewResult(code ErrCode, format string, args ...interface{}) *Result {
	return &Result{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WrapResult wraps an internal error as an INTERNAL_FAILURE result,
// preserving the cause for logging (errors.Cause) without leaking Go error
// plumbing into the outward protocol.
func WrapResult(err error, format string, args ...interface{}) *Result {
	return &Result{
		Code:    InternalFailure,
		Message: fmt.Sprintf(format, args...),
		cause:   errors.WithStack(err),
	}
}

func (r *Result) Error() string {
	if r.Message == "" {
		return r.Code.String()
	}
	return fmt.Sprintf("%s: %s", r.Code, r.Message)
}

func (r *Result) Cause() error {
	if r.cause == nil {
		return r
	}
	return errors.Cause(r.cause)
}

func (r *Result) OK() bool { return r.Code == OK }
