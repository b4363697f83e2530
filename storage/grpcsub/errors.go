package grpcsub

import (
	"context"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/rrauch/ark/storage"
)

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case storage.IsNotFound(err):
		return status.Error(codes.NotFound, err.Error())
	case storage.IsConflict(err):
		return status.Error(codes.Aborted, err.Error())
	case err == storage.ErrInvalidCID:
		return status.Error(codes.InvalidArgument, err.Error())
	case err == storage.ErrCIDMismatch:
		return status.Error(codes.DataLoss, err.Error())
	case err == storage.ErrImmutable:
		return status.Error(codes.FailedPrecondition, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

func mapRPC(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return storage.ErrNetwork
	}

	switch st.Code() {
	case codes.NotFound:
		return storage.ErrNotFound
	case codes.Aborted:
		return storage.ErrConflict
	case codes.InvalidArgument:
		return storage.ErrInvalidCID
	case codes.DataLoss:
		return storage.ErrCIDMismatch
	case codes.FailedPrecondition:
		return storage.ErrImmutable
	case codes.Canceled:
		return context.Canceled
	case codes.DeadlineExceeded, codes.Unavailable, codes.ResourceExhausted:
		// Transient transport conditions: retryable.
		return storage.ErrNetwork
	default:
		// Best-effort: if the server sent a known storage error message,
		// preserve it.
		for _, known := range []error{
			storage.ErrNotFound, storage.ErrConflict, storage.ErrInvalidCID,
			storage.ErrCIDMismatch, storage.ErrImmutable,
		} {
			if st.Message() == known.Error() {
				return known
			}
		}
		return err
	}
}
