package chain

import (
	"fmt"
	"os"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

// EntryPointV07 is the canonical ERC-4337 v0.7 EntryPoint.
const EntryPointV07 = "0x0000000071727De22E5E9d8BAf0edAc6f37da032"

type YAMLDeployment struct {
	ChainID           uint64 `yaml:"chain_id"`
	Name              string `yaml:"name"`
	RPCURL            string `yaml:"rpc_url"`
	BundlerURL        string `yaml:"bundler_url"`
	EntryPoint        string `yaml:"entry_point"`
	WebAuthnValidator string `yaml:"webauthn_validator"`
	AutoDCAExecutor   string `yaml:"auto_dca_executor"`
	SessionValidator  string `yaml:"session_validator"`
	SpendLimitPolicy  string `yaml:"spend_limit_policy"`
	UniswapFactory    string `yaml:"uniswap_factory"`
	UniswapQuoter     string `yaml:"uniswap_quoter"`
}

type YAMLData struct {
	Chains []YAMLDeployment `yaml:"chains"`
}

// Deployment holds the per-chain endpoints and contract addresses.
type Deployment struct {
	ChainID           uint64
	Name              string
	RPCURL            string
	BundlerURL        string
	EntryPoint        common.Address
	WebAuthnValidator common.Address
	AutoDCAExecutor   common.Address
	SessionValidator  common.Address
	SpendLimitPolicy  common.Address
	UniswapFactory    common.Address
	UniswapQuoter     common.Address
}

func (d Deployment) ChainIDString() string {
	return strconv.FormatUint(d.ChainID, 10)
}

func (d Deployment) HasQuoter() bool {
	return d.UniswapQuoter != (common.Address{})
}

type Deployments map[uint64]Deployment

func LoadDeployments(filePath string) (Deployments, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read deployments file: %w", err)
	}
	return ParseDeployments(data)
}

func ParseDeployments(data []byte) (Deployments, error) {
	var yamlData YAMLData
	err := yaml.Unmarshal(data, &yamlData)
	if err != nil {
		return nil, fmt.Errorf("failed to parse yaml: %w", err)
	}

	deployments := make(Deployments, len(yamlData.Chains))
	for _, yd := range yamlData.Chains {
		if yd.ChainID == 0 {
			return nil, fmt.Errorf("deployment %q: chain_id is required", yd.Name)
		}
		if _, exists := deployments[yd.ChainID]; exists {
			return nil, fmt.Errorf("duplicate deployment for chain %d", yd.ChainID)
		}
		if yd.RPCURL == "" {
			return nil, fmt.Errorf("chain %d: rpc_url is required", yd.ChainID)
		}
		if yd.EntryPoint == "" {
			yd.EntryPoint = EntryPointV07
		}

		d := Deployment{
			ChainID:    yd.ChainID,
			Name:       yd.Name,
			RPCURL:     yd.RPCURL,
			BundlerURL: yd.BundlerURL,
		}
		addrs := []struct {
			field    string
			value    string
			dst      *common.Address
			required bool
		}{
			{"entry_point", yd.EntryPoint, &d.EntryPoint, true},
			{"webauthn_validator", yd.WebAuthnValidator, &d.WebAuthnValidator, true},
			{"auto_dca_executor", yd.AutoDCAExecutor, &d.AutoDCAExecutor, true},
			{"session_validator", yd.SessionValidator, &d.SessionValidator, true},
			{"spend_limit_policy", yd.SpendLimitPolicy, &d.SpendLimitPolicy, false},
			{"uniswap_factory", yd.UniswapFactory, &d.UniswapFactory, false},
			{"uniswap_quoter", yd.UniswapQuoter, &d.UniswapQuoter, false},
		}
		for _, a := range addrs {
			if a.value == "" {
				if a.required {
					return nil, fmt.Errorf("chain %d: %s is required", yd.ChainID, a.field)
				}
				continue
			}
			if !common.IsHexAddress(a.value) {
				return nil, fmt.Errorf("chain %d: %s is not an address: %s", yd.ChainID, a.field, a.value)
			}
			*a.dst = common.HexToAddress(a.value)
		}

		deployments[d.ChainID] = d
	}

	return deployments, nil
}

func (ds Deployments) Get(chainID uint64) (Deployment, error) {
	d, ok := ds[chainID]
	if !ok {
		return Deployment{}, fmt.Errorf("chain %d is not configured", chainID)
	}
	return d, nil
}
