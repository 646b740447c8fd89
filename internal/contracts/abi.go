package contracts

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

var (
	AutoDCAExecutor  = mustParse("AutoDCAExecutor", autoDCAExecutorABI)
	SessionValidator = mustParse("SessionValidator", sessionValidatorABI)
	ERC7579Account   = mustParse("ERC7579Account", erc7579AccountABI)
	ERC20            = mustParse("ERC20", erc20ABI)
	ERC4626          = mustParse("ERC4626", erc4626ABI)
	QuoterV2         = mustParse("QuoterV2", quoterV2ABI)
	EntryPoint       = mustParse("EntryPoint", entryPointABI)
)

// ERC1271MagicValue is what isValidSignature returns for a valid signature.
var ERC1271MagicValue = [4]byte{0x16, 0x26, 0xba, 0x7e}

func mustParse(name, definition string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(definition))
	if err != nil {
		panic(fmt.Sprintf("contracts: invalid %s abi: %v", name, err))
	}
	return parsed
}

// Selector returns the 4-byte function selector of method in parsed.
func Selector(parsed abi.ABI, method string) ([4]byte, error) {
	m, ok := parsed.Methods[method]
	if !ok {
		return [4]byte{}, fmt.Errorf("method %s not found", method)
	}
	var sel [4]byte
	copy(sel[:], m.ID)
	return sel, nil
}

const autoDCAExecutorABI = `[
  {"type":"function","name":"createJob","stateMutability":"nonpayable",
   "inputs":[{"name":"jobData","type":"tuple","components":[
     {"name":"vault","type":"address"},
     {"name":"token","type":"address"},
     {"name":"targetToken","type":"address"},
     {"name":"account","type":"address"},
     {"name":"validAfter","type":"uint48"},
     {"name":"validUntil","type":"uint48"},
     {"name":"limitAmount","type":"uint256"},
     {"name":"refreshInterval","type":"uint48"}]}],
   "outputs":[{"name":"jobId","type":"uint256"}]},
  {"type":"function","name":"executeJob","stateMutability":"nonpayable",
   "inputs":[{"name":"jobId","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"getJobData","stateMutability":"view",
   "inputs":[{"name":"account","type":"address"}],
   "outputs":[
     {"name":"jobs","type":"tuple[]","components":[
       {"name":"vault","type":"address"},
       {"name":"token","type":"address"},
       {"name":"targetToken","type":"address"},
       {"name":"account","type":"address"},
       {"name":"validAfter","type":"uint48"},
       {"name":"validUntil","type":"uint48"},
       {"name":"limitAmount","type":"uint256"},
       {"name":"refreshInterval","type":"uint48"}]},
     {"name":"executions","type":"tuple[]","components":[
       {"name":"active","type":"bool"},
       {"name":"lastUsed","type":"uint48"},
       {"name":"totalExecutions","type":"uint256"},
       {"name":"totalTargetToken","type":"uint256"}]}]}
]`

const sessionValidatorABI = `[
  {"type":"function","name":"enableSessionKey","stateMutability":"nonpayable",
   "inputs":[
     {"name":"sessionKey","type":"address"},
     {"name":"sessionData","type":"tuple","components":[
       {"name":"target","type":"address"},
       {"name":"funcSelector","type":"bytes4"},
       {"name":"validAfter","type":"uint48"},
       {"name":"validUntil","type":"uint48"},
       {"name":"active","type":"bool"}]}],
   "outputs":[]},
  {"type":"function","name":"disableSessionKey","stateMutability":"nonpayable",
   "inputs":[{"name":"sessionKey","type":"address"}],"outputs":[]}
]`

const erc7579AccountABI = `[
  {"type":"function","name":"installModule","stateMutability":"payable",
   "inputs":[
     {"name":"moduleTypeId","type":"uint256"},
     {"name":"module","type":"address"},
     {"name":"initData","type":"bytes"}],
   "outputs":[]},
  {"type":"function","name":"isModuleInstalled","stateMutability":"view",
   "inputs":[
     {"name":"moduleTypeId","type":"uint256"},
     {"name":"module","type":"address"},
     {"name":"additionalContext","type":"bytes"}],
   "outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"execute","stateMutability":"payable",
   "inputs":[
     {"name":"mode","type":"bytes32"},
     {"name":"executionCalldata","type":"bytes"}],
   "outputs":[]},
  {"type":"function","name":"isValidSignature","stateMutability":"view",
   "inputs":[
     {"name":"hash","type":"bytes32"},
     {"name":"signature","type":"bytes"}],
   "outputs":[{"name":"","type":"bytes4"}]}
]`

const erc20ABI = `[
  {"type":"function","name":"decimals","stateMutability":"view","inputs":[],
   "outputs":[{"name":"","type":"uint8"}]},
  {"type":"function","name":"balanceOf","stateMutability":"view",
   "inputs":[{"name":"owner","type":"address"}],
   "outputs":[{"name":"","type":"uint256"}]}
]`

const erc4626ABI = `[
  {"type":"function","name":"balanceOf","stateMutability":"view",
   "inputs":[{"name":"owner","type":"address"}],
   "outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"asset","stateMutability":"view","inputs":[],
   "outputs":[{"name":"","type":"address"}]},
  {"type":"function","name":"convertToAssets","stateMutability":"view",
   "inputs":[{"name":"shares","type":"uint256"}],
   "outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"redeem","stateMutability":"nonpayable",
   "inputs":[
     {"name":"shares","type":"uint256"},
     {"name":"receiver","type":"address"},
     {"name":"owner","type":"address"}],
   "outputs":[{"name":"","type":"uint256"}]}
]`

const quoterV2ABI = `[
  {"type":"function","name":"quoteExactInputSingle","stateMutability":"nonpayable",
   "inputs":[{"name":"params","type":"tuple","components":[
     {"name":"tokenIn","type":"address"},
     {"name":"tokenOut","type":"address"},
     {"name":"amountIn","type":"uint256"},
     {"name":"fee","type":"uint24"},
     {"name":"sqrtPriceLimitX96","type":"uint160"}]}],
   "outputs":[
     {"name":"amountOut","type":"uint256"},
     {"name":"sqrtPriceX96After","type":"uint160"},
     {"name":"initializedTicksCrossed","type":"uint32"},
     {"name":"gasEstimate","type":"uint256"}]}
]`

const entryPointABI = `[
  {"type":"function","name":"getNonce","stateMutability":"view",
   "inputs":[
     {"name":"sender","type":"address"},
     {"name":"key","type":"uint192"}],
   "outputs":[{"name":"nonce","type":"uint256"}]}
]`
