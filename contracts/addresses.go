package contracts

import "github.com/ethereum/go-ethereum/common"

// Canonical deployments shared by every supported chain.
var (
	// DefaultEntryPoint is EntryPoint v0.7.
	DefaultEntryPoint        = common.HexToAddress("0x0000000071727De22E5E9d8BAf0edAc6f37da032")
	DefaultSafe7579Adapter   = common.HexToAddress("0x7579F9feedf32331C645828139aFF78d517d0001")
	DefaultSafe7579Launchpad = common.HexToAddress("0x75796e975bD270d487Be50b4e9797780360400ff")
	DefaultSafeSingleton     = common.HexToAddress("0x29fcB43b46531BcA003ddC8FCB67FFE91900C762")
	DefaultSafeProxyFactory  = common.HexToAddress("0x4e1DCf7AD4e460CfD30791CCC4F9c8a4f820ec67")
)
