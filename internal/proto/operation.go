// Package proto defines the message schemas of the Nix worker protocol:
// the operation tag enum, the request/reply field layout for every
// operation nixd serves, and the auxiliary record types (PathInfo,
// BasicDerivation, BuildResult, ClientSettings, DrvOutput/Realisation)
// that those schemas are built from. Every Read*/Write* function here is
// polymorphic over io.Reader/io.Writer, per internal/wire.
package proto

import "fmt"

// Protocol handshake constants (spec.md §6).
const (
	WorkerMagic1    uint64 = 0x6e697863
	WorkerMagic2    uint64 = 0x6478696f
	ProtocolVersion uint64 = 1<<8 | 34 // major 1, preferred minor 34
	ProtocolMajor   uint64 = 1
	MinSupportedMinor uint64 = 33
)

// Operation is a worker protocol operation tag.
type Operation uint64

// Operation tags. The full historical enumeration is kept so the dispatch
// loop can tell "known but unsupported" apart from "never heard of this
// tag" in its logging, even though both close the connection with an
// Unsupported fault per spec.md §6.
const (
	OpIsValidPath              Operation = 1
	OpQueryReferrers           Operation = 6
	OpAddToStore               Operation = 7
	OpBuildPaths               Operation = 9
	OpEnsurePath               Operation = 10
	OpAddTempRoot              Operation = 11
	OpAddIndirectRoot          Operation = 12
	OpFindRoots                Operation = 14
	OpSetOptions               Operation = 19
	OpCollectGarbage           Operation = 20
	OpQueryAllValidPaths       Operation = 23
	OpQueryPathInfo            Operation = 26
	OpQueryPathFromHashPart    Operation = 29
	OpQueryValidPaths          Operation = 31
	OpQuerySubstitutablePaths  Operation = 32
	OpQueryValidDerivers       Operation = 33
	OpOptimiseStore            Operation = 34
	OpVerifyStore              Operation = 35
	OpBuildDerivation          Operation = 36
	OpAddSignatures            Operation = 37
	OpNarFromPath              Operation = 38
	OpAddToStoreNar            Operation = 39
	OpQueryMissing             Operation = 40
	OpQueryDerivationOutputMap Operation = 41
	OpRegisterDrvOutput        Operation = 42
	OpQueryRealisation         Operation = 43
	OpAddMultipleToStore       Operation = 44
	OpAddBuildLog              Operation = 45
	OpBuildPathsWithResults    Operation = 46
	OpAddPermRoot              Operation = 47
	OpNop                      Operation = 0
)

//nolint:gochecknoglobals
var operationNames = map[Operation]string{
	OpNop:                      "Nop",
	OpIsValidPath:              "IsValidPath",
	OpQueryReferrers:           "QueryReferrers",
	OpAddToStore:               "AddToStore",
	OpBuildPaths:               "BuildPaths",
	OpEnsurePath:               "EnsurePath",
	OpAddTempRoot:              "AddTempRoot",
	OpAddIndirectRoot:          "AddIndirectRoot",
	OpFindRoots:                "FindRoots",
	OpSetOptions:               "SetOptions",
	OpCollectGarbage:           "CollectGarbage",
	OpQueryAllValidPaths:       "QueryAllValidPaths",
	OpQueryPathInfo:            "QueryPathInfo",
	OpQueryPathFromHashPart:    "QueryPathFromHashPart",
	OpQueryValidPaths:          "QueryValidPaths",
	OpQuerySubstitutablePaths:  "QuerySubstitutablePaths",
	OpQueryValidDerivers:       "QueryValidDerivers",
	OpOptimiseStore:            "OptimiseStore",
	OpVerifyStore:              "VerifyStore",
	OpBuildDerivation:          "BuildDerivation",
	OpAddSignatures:            "AddSignatures",
	OpNarFromPath:              "NarFromPath",
	OpAddToStoreNar:            "AddToStoreNar",
	OpQueryMissing:             "QueryMissing",
	OpQueryDerivationOutputMap: "QueryDerivationOutputMap",
	OpRegisterDrvOutput:        "RegisterDrvOutput",
	OpQueryRealisation:         "QueryRealisation",
	OpAddMultipleToStore:       "AddMultipleToStore",
	OpAddBuildLog:              "AddBuildLog",
	OpBuildPathsWithResults:    "BuildPathsWithResults",
	OpAddPermRoot:              "AddPermRoot",
}

// String returns the human-readable operation name, or a numeric fallback
// for a tag outside the historical enumeration entirely.
func (o Operation) String() string {
	if name, ok := operationNames[o]; ok {
		return name
	}

	return fmt.Sprintf("Operation(%d)", o)
}

// Supported reports whether nixd implements this operation (spec.md §6);
// every other known or unknown tag gets an Unsupported fault.
func (o Operation) Supported() bool {
	switch o {
	case OpNop, OpSetOptions, OpQueryPathInfo, OpQueryValidPaths,
		OpAddMultipleToStore, OpBuildDerivation, OpNarFromPath:
		return true
	default:
		return false
	}
}
