package ddsi

import (
	"fmt"
)

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

// RetCode is a DDS style return code. Negative values are failures.
type RetCode int32

const (
	RetCOk                   RetCode = 0
	RetCError                RetCode = -1
	RetCUnsupported          RetCode = -2
	RetCBadParameter         RetCode = -3
	RetCPreconditionNotMet   RetCode = -4
	RetCOutOfResources       RetCode = -5
	RetCNotEnabled           RetCode = -6
	RetCImmutablePolicy      RetCode = -7
	RetCInconsistentPolicy   RetCode = -8
	RetCAlreadyDeleted       RetCode = -9
	RetCTimeout              RetCode = -10
	RetCNoData               RetCode = -11
	RetCIllegalOperation     RetCode = -12
	RetCNotAllowedBySecurity RetCode = -13

	// extended codes, outside the range defined by the DDS standard
	RetCSerialization RetCode = -100 // sample does not match the type layout
	RetCTypeMismatch  RetCode = -101 // operation across incompatible sertypes
	RetCNotFound      RetCode = -102 // registry lookup miss
)

// FromReturnCode maps a raw return value onto a RetCode.
// Positive values count as success, unknown negative values collapse to RetCError.
func FromReturnCode(rc int32) RetCode {
	switch {
	case rc >= 0:
		return RetCOk
	case rc >= int32(RetCNotAllowedBySecurity):
		return RetCode(rc)
	case rc == int32(RetCSerialization), rc == int32(RetCTypeMismatch), rc == int32(RetCNotFound):
		return RetCode(rc)
	default:
		return RetCError
	}
}

func (c RetCode) String() string {
	switch c {
	case RetCOk:
		return "OK"
	case RetCError:
		return "Unspecified Error"
	case RetCUnsupported:
		return "Unsupported"
	case RetCBadParameter:
		return "Bad parameter"
	case RetCPreconditionNotMet:
		return "Precondition not met"
	case RetCOutOfResources:
		return "Out of resources"
	case RetCNotEnabled:
		return "Not enabled"
	case RetCImmutablePolicy:
		return "Immutable policy"
	case RetCInconsistentPolicy:
		return "Inconsistent policy"
	case RetCAlreadyDeleted:
		return "Already deleted"
	case RetCTimeout:
		return "Timeout"
	case RetCNoData:
		return "No data"
	case RetCIllegalOperation:
		return "Illegal operation"
	case RetCNotAllowedBySecurity:
		return "Not allowed by security"
	case RetCSerialization:
		return "Serialization error"
	case RetCTypeMismatch:
		return "Type mismatch"
	case RetCNotFound:
		return "Not found"
	default:
		return fmt.Sprintf("RetCode(%d)", int32(c))
	}
}

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error wraps a return code and a message.
// Two errors match under errors.Is when their codes are equal.
type Error struct {
	Code RetCode // The return code
	Msg  string  // The error message
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("ddsi: %s (code %d): %s", e.Code, int32(e.Code), e.Msg)
}

// Is enables errors.Is support by comparing return codes.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewError creates a new Error with the given code and message.
func NewError(code RetCode, msg string) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
	}
}

// newErrorf is the formatting variant of NewError used inside the package.
func newErrorf(code RetCode, format string, args ...interface{}) *Error {
	return NewError(code, fmt.Sprintf(format, args...))
}

// Sentinel errors, use errors.Is(err, ddsi.ErrNotFound) and friends.
var (
	// ErrSerialization is returned when a sample or received payload violates the type layout.
	ErrSerialization = NewError(RetCSerialization, "sample does not match type layout")
	// ErrTypeMismatch is raised when two serdata of different sertypes are combined.
	ErrTypeMismatch = NewError(RetCTypeMismatch, "sertype mismatch")
	// ErrNotFound is returned on registry lookup misses.
	ErrNotFound = NewError(RetCNotFound, "sertype not found")
	// ErrInconsistentType is returned when a descriptor conflicts with a registered type of the same identity.
	ErrInconsistentType = NewError(RetCInconsistentPolicy, "conflicting sertype descriptor")
	// ErrBadParameter is returned for invalid descriptors or arguments.
	ErrBadParameter = NewError(RetCBadParameter, "bad parameter")
	// ErrPreconditionNotMet is returned when an operation is not allowed in the current state.
	ErrPreconditionNotMet = NewError(RetCPreconditionNotMet, "precondition not met")
)

// SerializationErrorf creates a serialization error with a detailed message.
// It is the error SerdataOps implementations should return for layout violations.
func SerializationErrorf(format string, args ...interface{}) error {
	return newErrorf(RetCSerialization, format, args...)
}
