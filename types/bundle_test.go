package types

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

var (
	ownerA  = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	ownerB  = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	factory = common.HexToAddress("0x4e1DCf7AD4e460CfD30791CCC4F9c8a4f820ec67")
	account = common.HexToAddress("0x1234567890123456789012345678901234567890")
)

func validParams() DeploymentParams {
	return DeploymentParams{
		Factory:          factory,
		FactoryData:      []byte{0x1f, 0xfa, 0x0b, 0x2c},
		PredictedAddress: account,
		Owners:           []common.Address{ownerA, ownerB},
		Threshold:        1,
		Validators:       []ModuleInit{{Module: ownerA, InitData: []byte{}}},
	}
}

func TestValidateOwners(t *testing.T) {
	testCases := []struct {
		name      string
		owners    []common.Address
		threshold uint64
		expPass   bool
	}{
		{"one of one", []common.Address{ownerA}, 1, true},
		{"two of two", []common.Address{ownerA, ownerB}, 2, true},
		{"empty owners", nil, 1, false},
		{"zero threshold", []common.Address{ownerA}, 0, false},
		{"threshold above owners", []common.Address{ownerA}, 2, false},
		{"duplicate owner", []common.Address{ownerA, ownerA}, 1, false},
		{"zero address owner", []common.Address{{}}, 1, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateOwners(tc.owners, tc.threshold)
			if tc.expPass {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, ErrInvalidConfiguration)
		})
	}
}

func TestNewDeploymentBundle(t *testing.T) {
	testCases := []struct {
		name     string
		malleate func(p *DeploymentParams)
		expPass  bool
	}{
		{"valid", func(*DeploymentParams) {}, true},
		{"missing factory", func(p *DeploymentParams) { p.Factory = common.Address{} }, false},
		{"missing factory data", func(p *DeploymentParams) { p.FactoryData = nil }, false},
		{"missing predicted address", func(p *DeploymentParams) { p.PredictedAddress = common.Address{} }, false},
		{"threshold above owners", func(p *DeploymentParams) { p.Threshold = 3 }, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			params := validParams()
			tc.malleate(&params)
			bundle, err := NewDeploymentBundle(params)
			if !tc.expPass {
				require.ErrorIs(t, err, ErrInvalidConfiguration)
				require.True(t, bundle.IsZero())
				return
			}
			require.NoError(t, err)
			require.Equal(t, account, bundle.PredictedAddress())
		})
	}
}

func TestDeploymentBundleIsImmutable(t *testing.T) {
	params := validParams()
	bundle, err := NewDeploymentBundle(params)
	require.NoError(t, err)

	params.FactoryData[0] = 0xff
	params.Owners[0] = common.Address{}
	require.Equal(t, byte(0x1f), bundle.FactoryData()[0])
	require.Equal(t, ownerA, bundle.Owners()[0])

	data := bundle.FactoryData()
	data[0] = 0xee
	owners := bundle.Owners()
	owners[1] = common.Address{}
	require.Equal(t, byte(0x1f), bundle.FactoryData()[0])
	require.Equal(t, ownerB, bundle.Owners()[1])
	require.NoError(t, bundle.Validate())
}

func TestInitCode(t *testing.T) {
	bundle, err := NewDeploymentBundle(validParams())
	require.NoError(t, err)

	initCode := bundle.InitCode()
	require.Len(t, initCode, common.AddressLength+4)

	gotFactory, gotData, err := SplitInitCode(initCode)
	require.NoError(t, err)
	require.Equal(t, factory, gotFactory)
	require.Equal(t, bundle.FactoryData(), gotData)

	require.Nil(t, DeploymentBundle{}.InitCode())

	_, _, err = SplitInitCode([]byte{0x01, 0x02})
	require.ErrorIs(t, err, ErrInvalidConfiguration)

	other, err := NewDeploymentBundle(validParams())
	require.NoError(t, err)
	require.True(t, bundle.Equal(other))
}

func TestNewModuleInits(t *testing.T) {
	inits, err := NewModuleInits(ModuleRoleValidator, []common.Address{ownerB, ownerA})
	require.NoError(t, err)
	require.Equal(t, []ModuleInit{
		{Module: ownerB, InitData: []byte{}},
		{Module: ownerA, InitData: []byte{}},
	}, inits)

	_, err = NewModuleInits(ModuleRoleValidator, []common.Address{ownerA, ownerA})
	require.ErrorIs(t, err, ErrInvalidConfiguration)

	require.ErrorIs(t, ValidateModuleInits(ModuleRoleHook, []ModuleInit{EmptyModuleInit, EmptyModuleInit}), ErrInvalidConfiguration)
}

func TestParseAccountKind(t *testing.T) {
	kind, err := ParseAccountKind(" Safe7579 ")
	require.NoError(t, err)
	require.Equal(t, AccountKindSafe7579, kind)

	kind, err = ParseAccountKind("kernel")
	require.NoError(t, err)
	require.Equal(t, "kernel", kind.String())

	_, err = ParseAccountKind("biconomy")
	require.ErrorIs(t, err, ErrInvalidConfiguration)
}
