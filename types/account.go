package types

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	errorsmod "cosmossdk.io/errors"
)

// AccountKind tags the smart account implementation behind an address.
type AccountKind int

const (
	AccountKindUnknown AccountKind = iota
	AccountKindSafe7579
	AccountKindKernel
)

func (k AccountKind) String() string {
	switch k {
	case AccountKindSafe7579:
		return "safe7579"
	case AccountKindKernel:
		return "kernel"
	default:
		return "unknown"
	}
}

// ParseAccountKind parses the lower-case name of an account kind.
func ParseAccountKind(s string) (AccountKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "safe7579", "safe":
		return AccountKindSafe7579, nil
	case "kernel":
		return AccountKindKernel, nil
	default:
		return AccountKindUnknown, errorsmod.Wrapf(ErrInvalidConfiguration, "unknown account kind %q", s)
	}
}

// ModuleRole is the ERC-7579 module category a ModuleInit is installed under.
type ModuleRole int

const (
	ModuleRoleValidator ModuleRole = iota + 1
	ModuleRoleExecutor
	ModuleRoleFallback
	ModuleRoleHook
)

func (r ModuleRole) String() string {
	switch r {
	case ModuleRoleValidator:
		return "validator"
	case ModuleRoleExecutor:
		return "executor"
	case ModuleRoleFallback:
		return "fallback"
	case ModuleRoleHook:
		return "hook"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

// ModuleInit is one module to attach to the account at deployment.
type ModuleInit struct {
	Module   common.Address
	InitData []byte
}

// EmptyModuleInit is the placeholder entry installed for roles without modules.
var EmptyModuleInit = ModuleInit{Module: common.Address{}, InitData: []byte{}}

// NewModuleInits wraps each address into a ModuleInit with empty init data, keeping the
// insertion order. Duplicate addresses within the role are rejected.
func NewModuleInits(role ModuleRole, modules []common.Address) ([]ModuleInit, error) {
	seen := make(map[common.Address]struct{}, len(modules))
	inits := make([]ModuleInit, 0, len(modules))
	for _, m := range modules {
		if _, ok := seen[m]; ok {
			return nil, errorsmod.Wrapf(ErrInvalidConfiguration, "duplicate %s module %s", role, m.Hex())
		}
		seen[m] = struct{}{}
		inits = append(inits, ModuleInit{Module: m, InitData: []byte{}})
	}
	return inits, nil
}

// ValidateModuleInits checks that no module address appears twice within the role.
func ValidateModuleInits(role ModuleRole, inits []ModuleInit) error {
	seen := make(map[common.Address]struct{}, len(inits))
	for _, m := range inits {
		if _, ok := seen[m.Module]; ok {
			return errorsmod.Wrapf(ErrInvalidConfiguration, "duplicate %s module %s", role, m.Module.Hex())
		}
		seen[m.Module] = struct{}{}
	}
	return nil
}

func copyModuleInits(in []ModuleInit) []ModuleInit {
	if in == nil {
		return nil
	}
	out := make([]ModuleInit, len(in))
	for i, m := range in {
		out[i] = ModuleInit{Module: m.Module, InitData: common.CopyBytes(m.InitData)}
	}
	return out
}
