package aa

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/ethereum/go-ethereum/common"
)

var ErrReverted = errors.New("user operation reverted")

// WaitTimeoutError is returned when a submitted operation was not included
// before the receipt deadline. It may still be included later.
type WaitTimeoutError struct {
	Hash common.Hash
}

func (e *WaitTimeoutError) Error() string {
	return fmt.Sprintf("Timed out while waiting for User Operation with hash %q to be confirmed.", e.Hash.Hex())
}

var hashPattern = regexp.MustCompile(`hash\s"([^"]+)"`)

// RecoverHash extracts the operation hash from a receipt timeout. Errors
// relayed as plain text are matched on the hash "0x..." pattern.
func RecoverHash(err error) (common.Hash, bool) {
	if err == nil {
		return common.Hash{}, false
	}
	var timeout *WaitTimeoutError
	if errors.As(err, &timeout) {
		return timeout.Hash, true
	}
	m := hashPattern.FindStringSubmatch(err.Error())
	if len(m) < 2 {
		return common.Hash{}, false
	}
	if len(m[1]) != 66 {
		return common.Hash{}, false
	}
	return common.HexToHash(m[1]), true
}
