package proto

import (
	"io"

	"github.com/nixlite/nixd/internal/wire"
)

// MaxStringSize bounds any single string field read from a peer.
const MaxStringSize = 64 * 1024 * 1024 // 64 MiB

// ReadPathInfoBody reads the fields of a PathInfo following the wire's
// UnkeyedValidPathInfo layout (deriver, hash, references, registrationTime,
// narSize, ultimate, sigs, ca); storePath is supplied by the caller, since
// on the wire it either precedes this record (AddToStoreNar/
// AddMultipleToStore) or is the request path itself (QueryPathInfo has no
// use for this — see WritePathInfoOptional).
func ReadPathInfoBody(r io.Reader, storePath string) (*PathInfo, error) {
	deriver, err := wire.ReadString(r, MaxStringSize)
	if err != nil {
		return nil, err
	}

	hash, err := wire.ReadString(r, MaxStringSize)
	if err != nil {
		return nil, err
	}

	references, err := wire.ReadStrings(r, MaxStringSize)
	if err != nil {
		return nil, err
	}

	registrationTime, err := wire.ReadUint64(r)
	if err != nil {
		return nil, err
	}

	narSize, err := wire.ReadUint64(r)
	if err != nil {
		return nil, err
	}

	ultimate, err := wire.ReadBool(r)
	if err != nil {
		return nil, err
	}

	sigs, err := wire.ReadStrings(r, MaxStringSize)
	if err != nil {
		return nil, err
	}

	ca, err := wire.ReadString(r, MaxStringSize)
	if err != nil {
		return nil, err
	}

	return &PathInfo{
		StorePath:        storePath,
		Deriver:          deriver,
		Hash:             hash,
		References:       references,
		RegistrationTime: registrationTime,
		NarSize:          narSize,
		Ultimate:         ultimate,
		Sigs:             sigs,
		CA:               ca,
	}, nil
}

// WritePathInfoBody writes the same fields ReadPathInfoBody reads, i.e.
// everything except the store path itself.
func WritePathInfoBody(w io.Writer, info *PathInfo) error {
	if err := wire.WriteString(w, info.Deriver); err != nil {
		return err
	}

	if err := wire.WriteString(w, info.Hash); err != nil {
		return err
	}

	if err := wire.WriteStrings(w, info.References); err != nil {
		return err
	}

	if err := wire.WriteUint64(w, info.RegistrationTime); err != nil {
		return err
	}

	if err := wire.WriteUint64(w, info.NarSize); err != nil {
		return err
	}

	if err := wire.WriteBool(w, info.Ultimate); err != nil {
		return err
	}

	if err := wire.WriteStrings(w, info.Sigs); err != nil {
		return err
	}

	return wire.WriteString(w, info.CA)
}

// ReadKeyedPathInfo reads a ValidPathInfo: the store path followed by its
// body. Used by AddMultipleToStore, where each item is self-describing.
func ReadKeyedPathInfo(r io.Reader) (*PathInfo, error) {
	storePath, err := wire.ReadString(r, MaxStringSize)
	if err != nil {
		return nil, err
	}

	return ReadPathInfoBody(r, storePath)
}

// WriteKeyedPathInfo writes a ValidPathInfo: the store path followed by its
// body.
func WriteKeyedPathInfo(w io.Writer, info *PathInfo) error {
	if err := wire.WriteString(w, info.StorePath); err != nil {
		return err
	}

	return WritePathInfoBody(w, info)
}

// WritePathInfoOptional writes the optional<PathInfoWithoutPath> reply body
// of QueryPathInfo: a bool tag, followed by the body if info is non-nil.
func WritePathInfoOptional(w io.Writer, info *PathInfo) error {
	if info == nil {
		return wire.WriteBool(w, false)
	}

	if err := wire.WriteBool(w, true); err != nil {
		return err
	}

	return WritePathInfoBody(w, info)
}

// ReadBasicDerivation reads a BasicDerivation request field. The wire
// record carries no name, so Name is left empty; BuildDerivation sets it
// from the drvPath field that precedes the record.
func ReadBasicDerivation(r io.Reader) (*BasicDerivation, error) {
	outCount, err := wire.ReadUint64(r)
	if err != nil {
		return nil, err
	}

	outputs := make([]DerivationOutput, outCount)

	for i := range outputs {
		name, err := wire.ReadString(r, MaxStringSize)
		if err != nil {
			return nil, err
		}

		path, err := wire.ReadString(r, MaxStringSize)
		if err != nil {
			return nil, err
		}

		hashAlgo, err := wire.ReadString(r, MaxStringSize)
		if err != nil {
			return nil, err
		}

		hash, err := wire.ReadString(r, MaxStringSize)
		if err != nil {
			return nil, err
		}

		outputs[i] = DerivationOutput{Name: name, Path: path, HashAlgorithm: hashAlgo, Hash: hash}
	}

	inputs, err := wire.ReadStrings(r, MaxStringSize)
	if err != nil {
		return nil, err
	}

	platform, err := wire.ReadString(r, MaxStringSize)
	if err != nil {
		return nil, err
	}

	builder, err := wire.ReadString(r, MaxStringSize)
	if err != nil {
		return nil, err
	}

	args, err := wire.ReadStrings(r, MaxStringSize)
	if err != nil {
		return nil, err
	}

	env, err := wire.ReadStringPairs(r, MaxStringSize)
	if err != nil {
		return nil, err
	}

	return &BasicDerivation{
		Outputs:  outputs,
		Inputs:   inputs,
		Platform: platform,
		Builder:  builder,
		Args:     args,
		Env:      env,
	}, nil
}

// WriteBasicDerivation writes a BasicDerivation, preserving the order of
// Outputs/Inputs/Args/Env exactly as stored (the core never reorders a
// derivation it did not build itself).
func WriteBasicDerivation(w io.Writer, drv *BasicDerivation) error {
	if err := wire.WriteUint64(w, uint64(len(drv.Outputs))); err != nil {
		return err
	}

	for _, out := range drv.Outputs {
		if err := wire.WriteString(w, out.Name); err != nil {
			return err
		}

		if err := wire.WriteString(w, out.Path); err != nil {
			return err
		}

		if err := wire.WriteString(w, out.HashAlgorithm); err != nil {
			return err
		}

		if err := wire.WriteString(w, out.Hash); err != nil {
			return err
		}
	}

	if err := wire.WriteStrings(w, drv.Inputs); err != nil {
		return err
	}

	if err := wire.WriteString(w, drv.Platform); err != nil {
		return err
	}

	if err := wire.WriteString(w, drv.Builder); err != nil {
		return err
	}

	if err := wire.WriteStrings(w, drv.Args); err != nil {
		return err
	}

	return wire.WriteStringPairs(w, drv.Env)
}

// ReadClientSettings reads the SetOptions request body, discarding the
// obsolete useBuildHook/logType/printBuildTrace fields that remain on the
// wire for compatibility. The verbose-build field is kept as
// BuildVerbosity.
func ReadClientSettings(r io.Reader) (*ClientSettings, error) {
	keepFailed, err := wire.ReadBool(r)
	if err != nil {
		return nil, err
	}

	keepGoing, err := wire.ReadBool(r)
	if err != nil {
		return nil, err
	}

	tryFallback, err := wire.ReadBool(r)
	if err != nil {
		return nil, err
	}

	verbosity, err := wire.ReadUint64(r)
	if err != nil {
		return nil, err
	}

	maxBuildJobs, err := wire.ReadUint64(r)
	if err != nil {
		return nil, err
	}

	maxSilentTime, err := wire.ReadUint64(r)
	if err != nil {
		return nil, err
	}

	if _, err := wire.ReadBool(r); err != nil { // useBuildHook, obsolete
		return nil, err
	}

	buildVerbosity, err := wire.ReadUint64(r)
	if err != nil {
		return nil, err
	}

	if _, err := wire.ReadUint64(r); err != nil { // logType, obsolete
		return nil, err
	}

	if _, err := wire.ReadUint64(r); err != nil { // printBuildTrace, obsolete
		return nil, err
	}

	buildCores, err := wire.ReadUint64(r)
	if err != nil {
		return nil, err
	}

	useSubstitutes, err := wire.ReadBool(r)
	if err != nil {
		return nil, err
	}

	overrides, err := wire.ReadStringPairs(r, MaxStringSize)
	if err != nil {
		return nil, err
	}

	return &ClientSettings{
		KeepFailed:     keepFailed,
		KeepGoing:      keepGoing,
		TryFallback:    tryFallback,
		Verbosity:      Verbosity(verbosity),
		MaxBuildJobs:   maxBuildJobs,
		MaxSilentTime:  maxSilentTime,
		BuildVerbosity: Verbosity(buildVerbosity),
		BuildCores:     buildCores,
		UseSubstitutes: useSubstitutes,
		Overrides:      overrides,
	}, nil
}

// WriteClientSettings writes a SetOptions request body, round-tripping with
// ReadClientSettings (used by tests and by any future client-role code).
func WriteClientSettings(w io.Writer, s *ClientSettings) error {
	if err := wire.WriteBool(w, s.KeepFailed); err != nil {
		return err
	}

	if err := wire.WriteBool(w, s.KeepGoing); err != nil {
		return err
	}

	if err := wire.WriteBool(w, s.TryFallback); err != nil {
		return err
	}

	if err := wire.WriteUint64(w, uint64(s.Verbosity)); err != nil {
		return err
	}

	if err := wire.WriteUint64(w, s.MaxBuildJobs); err != nil {
		return err
	}

	if err := wire.WriteUint64(w, s.MaxSilentTime); err != nil {
		return err
	}

	if err := wire.WriteBool(w, true); err != nil { // useBuildHook
		return err
	}

	if err := wire.WriteUint64(w, uint64(s.BuildVerbosity)); err != nil {
		return err
	}

	if err := wire.WriteUint64(w, 0); err != nil { // logType
		return err
	}

	if err := wire.WriteUint64(w, 0); err != nil { // printBuildTrace
		return err
	}

	if err := wire.WriteUint64(w, s.BuildCores); err != nil {
		return err
	}

	if err := wire.WriteBool(w, s.UseSubstitutes); err != nil {
		return err
	}

	return wire.WriteStringPairs(w, s.Overrides)
}

// WriteBuildResult writes the BuildDerivation reply body.
func WriteBuildResult(w io.Writer, res *BuildResult) error {
	if err := wire.WriteUint64(w, uint64(res.Status)); err != nil {
		return err
	}

	if err := wire.WriteString(w, res.ErrorMsg); err != nil {
		return err
	}

	if err := wire.WriteUint64(w, res.TimesBuilt); err != nil {
		return err
	}

	if err := wire.WriteBool(w, res.IsNonDeterministic); err != nil {
		return err
	}

	if err := wire.WriteUint64(w, res.StartTime); err != nil {
		return err
	}

	if err := wire.WriteUint64(w, res.StopTime); err != nil {
		return err
	}

	if err := wire.WriteUint64(w, uint64(len(res.BuiltOutputs))); err != nil {
		return err
	}

	for name, real := range res.BuiltOutputs {
		if err := wire.WriteString(w, name); err != nil {
			return err
		}

		if err := wire.WriteString(w, real.OutPath); err != nil {
			return err
		}
	}

	return nil
}

// ReadBuildResult reads a BuildDerivation reply body (used by tests to
// round-trip WriteBuildResult).
func ReadBuildResult(r io.Reader) (*BuildResult, error) {
	status, err := wire.ReadUint64(r)
	if err != nil {
		return nil, err
	}

	errorMsg, err := wire.ReadString(r, MaxStringSize)
	if err != nil {
		return nil, err
	}

	timesBuilt, err := wire.ReadUint64(r)
	if err != nil {
		return nil, err
	}

	isNonDeterministic, err := wire.ReadBool(r)
	if err != nil {
		return nil, err
	}

	startTime, err := wire.ReadUint64(r)
	if err != nil {
		return nil, err
	}

	stopTime, err := wire.ReadUint64(r)
	if err != nil {
		return nil, err
	}

	count, err := wire.ReadUint64(r)
	if err != nil {
		return nil, err
	}

	outputs := make(map[string]Realisation, count)

	for i := uint64(0); i < count; i++ {
		name, err := wire.ReadString(r, MaxStringSize)
		if err != nil {
			return nil, err
		}

		outPath, err := wire.ReadString(r, MaxStringSize)
		if err != nil {
			return nil, err
		}

		outputs[name] = Realisation{OutPath: outPath}
	}

	return &BuildResult{
		Status:             BuildStatus(status),
		ErrorMsg:           errorMsg,
		TimesBuilt:         timesBuilt,
		IsNonDeterministic: isNonDeterministic,
		StartTime:          startTime,
		StopTime:           stopTime,
		BuiltOutputs:       outputs,
	}, nil
}
