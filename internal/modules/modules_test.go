package modules

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/brewit-money/wallet/internal/chain/chaintest"
	"github.com/brewit-money/wallet/internal/contracts"
)

var (
	account  = common.HexToAddress("0x3000000000000000000000000000000000000003")
	executor = common.HexToAddress("0xD7945bbAB1A41a1C3736ED5b2411beA809a2ee2b")
)

func TestInstaller_IsInstalled(t *testing.T) {
	backend := chaintest.NewBackend()
	backend.Handle(account, contracts.ERC7579Account, "isModuleInstalled", func(args []interface{}) ([]interface{}, error) {
		typeID := args[0].(*big.Int)
		module := args[1].(common.Address)
		return []interface{}{typeID.Int64() == 2 && module == executor}, nil
	})
	installer := NewInstaller(backend, logrus.New())

	installed, err := installer.IsInstalled(context.Background(), account, executor, TypeExecutor)
	require.NoError(t, err)
	require.True(t, installed)

	installed, err = installer.IsInstalled(context.Background(), account, executor, TypeValidator)
	require.NoError(t, err)
	require.False(t, installed)
}

func TestInstaller_IsInstalled_CallFailure(t *testing.T) {
	backend := chaintest.NewBackend()
	backend.Fails(account, contracts.ERC7579Account, "isModuleInstalled", errors.New("execution reverted"))
	installer := NewInstaller(backend, logrus.New())

	installed, err := installer.IsInstalled(context.Background(), account, executor, TypeExecutor)
	require.NoError(t, err)
	require.False(t, installed)
}

func TestInstaller_IsInstalled_UnknownType(t *testing.T) {
	installer := NewInstaller(chaintest.NewBackend(), logrus.New())

	_, err := installer.IsInstalled(context.Background(), account, executor, Type("policy"))
	require.Error(t, err)
}

func TestBuildInstall(t *testing.T) {
	call, err := BuildInstall(account, executor, TypeExecutor, nil)
	require.NoError(t, err)
	require.Equal(t, account, call.Target)
	require.Equal(t, int64(0), call.Value.Int64())

	method := contracts.ERC7579Account.Methods["installModule"]
	require.Equal(t, method.ID, []byte(call.Data[:4]))

	args, err := method.Inputs.Unpack(call.Data[4:])
	require.NoError(t, err)
	require.Equal(t, int64(2), args[0].(*big.Int).Int64())
	require.Equal(t, executor, args[1].(common.Address))
	require.Empty(t, args[2].([]byte))
}
