package common

import (
	"errors"
	"sync"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// RawTxToHash returns valid hex data of a transaction to
// transaction hash
func RawTxToHash(data string) string {
	return crypto.Keccak256Hash(hexutil.MustDecode(data)).Hex()
}

// RunParallel takes multiple functions that each return an error,
// runs them in parallel using goroutines, then aggregates any
// errors using errors.Join. The second return value is the number
// of functions that failed.
func RunParallel(funcs ...func() error) (error, int) {
	var wg sync.WaitGroup
	errs := make(chan error, len(funcs))

	for _, fn := range funcs {
		wg.Add(1)
		go func(fn func() error) {
			defer wg.Done()
			if err := fn(); err != nil {
				errs <- err
			}
		}(fn)
	}

	wg.Wait()
	close(errs)

	var allErrs []error
	for err := range errs {
		allErrs = append(allErrs, err)
	}

	return errors.Join(allErrs...), len(allErrs)
}
