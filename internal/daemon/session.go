package daemon

import "github.com/nixlite/nixd/internal/proto"

// session holds the per-connection state a worker protocol connection
// accumulates: the client's negotiated version and whatever settings it
// has pushed via SetOptions. nixd accepts and stores these settings but
// does not enforce most of them — MaxBuildJobs/MaxSilentTime/KeepFailed
// are logged and otherwise ignored, since build concurrency is left to
// the sandbox launcher's own configuration rather than per-connection
// throttling. BuildCores is the exception: dispatchBuildDerivation
// forwards it to store.Manager.Build, which sets NIX_BUILD_CORES in the
// sandboxed builder's environment.
type session struct {
	version  uint64
	settings proto.ClientSettings
}

func newSession(version uint64) *session {
	return &session{version: version, settings: *defaultClientSettings()}
}

func defaultClientSettings() *proto.ClientSettings {
	return &proto.ClientSettings{
		KeepFailed:     false,
		KeepGoing:      false,
		TryFallback:    false,
		Verbosity:      proto.VerbNotice,
		MaxBuildJobs:   1,
		MaxSilentTime:  0,
		BuildVerbosity: proto.VerbError,
		BuildCores:     0,
		UseSubstitutes: true,
	}
}
