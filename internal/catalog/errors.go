package catalog

import (
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	// ErrNotReady indicates the leader-authority gate rejected the call: the
	// catalog is still loading or this process lost leadership. Retryable.
	ErrNotReady = errors.New("catalog: not ready to serve")
	// ErrTableExists indicates a duplicate CreateTable.
	ErrTableExists = errors.New("catalog: table already exists")
	// ErrTableNotFound indicates the named table is unknown.
	ErrTableNotFound = errors.New("catalog: table not found")
	// ErrTabletNotFound indicates the tablet id is unknown.
	ErrTabletNotFound = errors.New("catalog: tablet not found")
	// ErrStaleTerm indicates a replica update carried a term lower than the
	// recorded one; the reporter must resend with current state.
	ErrStaleTerm = errors.New("catalog: replica term is stale")
)

// IsNotReadyError reports whether err means the caller should retry once the
// master has leadership and a loaded catalog.
func IsNotReadyError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNotReady) {
		return true
	}
	if st, ok := status.FromError(err); ok {
		return st.Code() == codes.Unavailable
	}
	return false
}

// IsTableExistsError reports whether err represents a duplicate table.
func IsTableExistsError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTableExists) {
		return true
	}
	if st, ok := status.FromError(err); ok {
		return st.Code() == codes.AlreadyExists
	}
	return false
}

// IsNotFoundError reports whether err indicates a missing table or tablet.
func IsNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTableNotFound) || errors.Is(err, ErrTabletNotFound) {
		return true
	}
	if st, ok := status.FromError(err); ok {
		return st.Code() == codes.NotFound
	}
	return false
}

// IsStaleTermError reports whether err represents a rejected stale-term
// replica update.
func IsStaleTermError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrStaleTerm) {
		return true
	}
	if st, ok := status.FromError(err); ok {
		return st.Code() == codes.FailedPrecondition
	}
	return false
}
