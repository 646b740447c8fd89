// Package modules checks and installs ERC-7579 modules on a smart account.
package modules

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/brewit-money/wallet/internal/chain"
	"github.com/brewit-money/wallet/internal/contracts"
	"github.com/brewit-money/wallet/types"
)

type Type string

const (
	TypeValidator Type = "validator"
	TypeExecutor  Type = "executor"
	TypeFallback  Type = "fallback"
	TypeHook      Type = "hook"
)

func (t Type) ID() (*big.Int, error) {
	switch t {
	case TypeValidator:
		return big.NewInt(1), nil
	case TypeExecutor:
		return big.NewInt(2), nil
	case TypeFallback:
		return big.NewInt(3), nil
	case TypeHook:
		return big.NewInt(4), nil
	default:
		return nil, fmt.Errorf("unknown module type: %q", t)
	}
}

// Checker reports whether a module is installed on an account.
type Checker interface {
	IsInstalled(ctx context.Context, account, module common.Address, typ Type) (bool, error)
}

type Installer struct {
	caller ethereum.ContractCaller
	logger *logrus.Logger
}

func NewInstaller(caller ethereum.ContractCaller, logger *logrus.Logger) *Installer {
	return &Installer{
		caller: caller,
		logger: logger.WithField("pkg", "modules.Installer").Logger,
	}
}

// IsInstalled treats any failed call as "not installed": an undeployed account
// or one without ERC-7579 support cannot have the module either.
func (i *Installer) IsInstalled(ctx context.Context, account, module common.Address, typ Type) (bool, error) {
	typeID, err := typ.ID()
	if err != nil {
		return false, err
	}

	res, err := chain.Call(ctx, i.caller, account, contracts.ERC7579Account, "isModuleInstalled", typeID, module, []byte{})
	if err != nil {
		i.logger.WithFields(logrus.Fields{
			"account": account.Hex(),
			"module":  module.Hex(),
			"type":    typ,
		}).Debugf("isModuleInstalled failed, assuming not installed: %v", err)
		return false, nil
	}

	installed, ok := res[0].(bool)
	if !ok {
		return false, fmt.Errorf("unexpected isModuleInstalled result %T", res[0])
	}
	return installed, nil
}

// BuildInstall returns the self-call installing module on account.
func BuildInstall(account, module common.Address, typ Type, initData []byte) (types.Call, error) {
	typeID, err := typ.ID()
	if err != nil {
		return types.Call{}, err
	}
	if initData == nil {
		initData = []byte{}
	}

	data, err := contracts.ERC7579Account.Pack("installModule", typeID, module, initData)
	if err != nil {
		return types.Call{}, fmt.Errorf("failed to pack installModule: %w", err)
	}
	return types.Call{
		Target: account,
		Value:  big.NewInt(0),
		Data:   data,
	}, nil
}
