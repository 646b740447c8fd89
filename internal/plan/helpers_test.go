package plan_test

import (
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/stretchr/testify/require"
)

func abiConvert(t *testing.T, in interface{}, out interface{}) {
	t.Helper()
	require.NotPanics(t, func() {
		abi.ConvertType(in, out)
	})
}
