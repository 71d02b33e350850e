package proto

// PathInfo holds the metadata for a store path (spec.md §3). Hash is the
// textual content hash of the path's archive form (e.g. "sha256:..."),
// References is the ordered set of store paths this path depends on, and
// CA is the content-address string when the path is content-addressed.
type PathInfo struct {
	StorePath        string
	Deriver          string
	Hash             string
	References       []string
	RegistrationTime uint64
	NarSize          uint64
	Ultimate         bool
	Sigs             []string
	CA               string
}

// DerivationOutput describes one declared output of a BasicDerivation.
type DerivationOutput struct {
	Name          string
	Path          string
	HashAlgorithm string // empty for non-fixed-output derivations
	Hash          string // empty unless HashAlgorithm is set
}

// BasicDerivation is a build recipe (spec.md §3). Outputs, Inputs, Args
// and Env are kept in the order the client sent them; the core never
// reorders a derivation it did not produce itself.
type BasicDerivation struct {
	Name     string
	Outputs  []DerivationOutput
	Inputs   []string // input_srcs: source store paths
	Platform string
	Builder  string
	Args     []string
	Env      [][2]string
}

// DrvOutput identifies a realisation: (derivation hash, output name).
type DrvOutput struct {
	DrvHash    string
	OutputName string
}

// Realisation is the outcome of building one derivation output.
type Realisation struct {
	OutPath               string
	Signatures            []string
	DependentRealisations map[DrvOutput]string
}

// BuildResult is the reply body of BuildDerivation.
type BuildResult struct {
	Status             BuildStatus
	ErrorMsg           string
	TimesBuilt         uint64
	IsNonDeterministic bool
	StartTime          uint64
	StopTime           uint64
	BuiltOutputs       map[string]Realisation // keyed by output name
}

// ClientSettings is the SetOptions request body (spec.md §3). Obsolete
// fields are read and discarded rather than typed, since the core never
// consults them; see ReadClientSettings.
type ClientSettings struct {
	KeepFailed     bool
	KeepGoing      bool
	TryFallback    bool
	Verbosity      Verbosity
	MaxBuildJobs   uint64
	MaxSilentTime  uint64
	BuildVerbosity Verbosity
	BuildCores     uint64
	UseSubstitutes bool
	Overrides      [][2]string
}
