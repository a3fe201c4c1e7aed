package remote

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/roach88/notekeeper/internal/ledger"
)

// toStatus maps a node error to a gRPC status. Ledger errors keep their code
// in the status message so the client can report it.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	switch {
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	}

	switch ledger.CodeOf(err) {
	case ledger.ErrCodeAccountNotFound:
		return status.Error(codes.NotFound, err.Error())
	case ledger.ErrCodeAccountConflict, ledger.ErrCodeNoteAlreadyClaimed:
		return status.Error(codes.AlreadyExists, err.Error())
	case ledger.ErrCodeSubmission, ledger.ErrCodeNoteNotConsumable, ledger.ErrCodeStaleUpdate:
		return status.Error(codes.FailedPrecondition, err.Error())
	case ledger.ErrCodeInvalidAsset, ledger.ErrCodeInvalidAccount, ledger.ErrCodeNoteCreation, ledger.ErrCodeEmptyNoteSet:
		return status.Error(codes.InvalidArgument, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// fromStatus converts an RPC failure into a ledger error with the given code.
// Transport-level failures are retryable; rejections are not.
func fromStatus(code ledger.ErrorCode, err error, message string) error {
	st, _ := status.FromError(err)
	switch st.Code() {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Aborted:
		return ledger.WrapRetryable(code, err, message)
	default:
		return ledger.Wrap(code, err, message)
	}
}
