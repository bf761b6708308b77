package approval

import (
	"errors"
	"fmt"

	"github.com/tranvictor/walletd/rpc"
)

var (
	// ErrApprovalNotFound means no pending approval matches the id, which
	// includes an approval that is already being (or has been) resolved.
	ErrApprovalNotFound = errors.New("approval not found")

	ErrNoAccounts           = errors.New("accounts not provided")
	ErrNoTransaction        = errors.New("transaction not provided")
	ErrMalformedTransaction = errors.New("malformed transaction")
	ErrTxOriginMismatch     = errors.New("transaction doesn't match the original request")
	ErrAccountNotFound      = errors.New("account not found")
	ErrUnsupportedKind      = errors.New("unsupported approval kind")

	// ErrTxSendBlocked is the dev-only kill switch outcome. It cannot fire
	// in production builds.
	ErrTxSendBlocked = errors.New("transaction submission blocked by " +
		"WALLETD_DEV_BLOCK_TX_SEND")
)

// UserRejectedError is the standardized rejection pages can recognize
// (EIP-1193 code 4001).
func UserRejectedError() *rpc.Error {
	return &rpc.Error{
		Code:    4001,
		Message: "User rejected the request.",
	}
}

// SubmissionError carries the structured error data a node answered with
// when it refused a raw transaction.
type SubmissionError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("transaction rejected by node: %s", e.Message)
}

func newSubmissionError(rpcErr *rpc.Error) *SubmissionError {
	return &SubmissionError{
		Code:    rpcErr.Code,
		Message: rpcErr.Message,
		Data:    rpcErr.Data,
	}
}
