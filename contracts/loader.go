package contracts

import (
	"embed"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/tidwall/gjson"
)

//go:embed abis/*.json
var artifacts embed.FS

var (
	EntryPointABI        = MustLoadABI("EntryPoint.json")
	Safe7579LaunchpadABI = MustLoadABI("Safe7579Launchpad.json")
	SafeProxyFactoryABI  = MustLoadABI("SafeProxyFactory.json")
	Safe7579ABI          = MustLoadABI("Safe7579.json")
)

// LoadABI parses the abi field of an embedded contract artifact.
func LoadABI(name string) (abi.ABI, error) {
	contents, err := artifacts.ReadFile(path.Join("abis", name))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("failed to read contract artifact %s: %w", name, err)
	}
	return ParseArtifactABI(contents)
}

// ParseArtifactABI extracts and parses the abi field of a compiler artifact.
func ParseArtifactABI(contents []byte) (abi.ABI, error) {
	abiField := gjson.GetBytes(contents, "abi")
	if !abiField.Exists() {
		return abi.ABI{}, errors.New("contract artifact missing abi field")
	}

	parsedABI, err := abi.JSON(strings.NewReader(abiField.Raw))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("failed to parse contract ABI: %w", err)
	}

	return parsedABI, nil
}

// MustLoadABI is LoadABI for package initialisation. Artifacts are embedded at build
// time, so a failure here is a build defect.
func MustLoadABI(name string) abi.ABI {
	parsed, err := LoadABI(name)
	if err != nil {
		panic(err)
	}
	return parsed
}

// ArtifactVersion returns the version recorded in an embedded artifact, if any.
func ArtifactVersion(name string) string {
	contents, err := artifacts.ReadFile(path.Join("abis", name))
	if err != nil {
		return ""
	}
	return gjson.GetBytes(contents, "version").String()
}
