package proto

import "fmt"

// StderrTag identifies a message on the stderr/progress sub-protocol that
// precedes every reply (spec.md §4.4.3).
type StderrTag uint64

const (
	StderrWrite         StderrTag = 0x64617416
	StderrLast          StderrTag = 0x616c7473
	StderrNext          StderrTag = 0x6f6c6d67
	StderrRead          StderrTag = 0x64617461
	StderrError         StderrTag = 0x63787470
	StderrStartActivity StderrTag = 0x53545254
	StderrStopActivity  StderrTag = 0x53544f50
	StderrResult        StderrTag = 0x52534c54
)

// TrustLevel is reported by the daemon during the (extended) handshake.
// nixd does not implement trust distinctions; it always reports unknown.
type TrustLevel uint64

const (
	TrustUnknown    TrustLevel = 0
	TrustTrusted    TrustLevel = 1
	TrustNotTrusted TrustLevel = 2
)

// Verbosity is the client's requested logging verbosity (SetOptions).
type Verbosity uint64

const (
	VerbError     Verbosity = 0
	VerbWarn      Verbosity = 1
	VerbNotice    Verbosity = 2
	VerbInfo      Verbosity = 3
	VerbTalkative Verbosity = 4
	VerbChatty    Verbosity = 5
	VerbDebug     Verbosity = 6
	VerbVomit     Verbosity = 7
)

// BuildMode controls how BuildDerivation rebuilds an already-valid output.
type BuildMode uint64

const (
	BuildModeNormal BuildMode = 0
	BuildModeRepair BuildMode = 1
	BuildModeCheck  BuildMode = 2
)

// BuildStatus is the outcome of a BuildDerivation call (spec.md §6).
type BuildStatus uint64

const (
	BuildStatusBuilt            BuildStatus = 0
	BuildStatusSubstituted      BuildStatus = 1
	BuildStatusAlreadyValid     BuildStatus = 2
	BuildStatusPermanentFailure BuildStatus = 3
	BuildStatusInputRejected    BuildStatus = 4
	BuildStatusOutputRejected   BuildStatus = 5
	BuildStatusTransientFailure BuildStatus = 6
	BuildStatusCachedFailure    BuildStatus = 7
	BuildStatusTimedOut         BuildStatus = 8
	BuildStatusMiscFailure      BuildStatus = 9
	BuildStatusDependencyFailed BuildStatus = 10
	BuildStatusLogLimitExceeded BuildStatus = 11
	BuildStatusNotDeterministic BuildStatus = 12
)

//nolint:gochecknoglobals
var buildStatusNames = map[BuildStatus]string{
	BuildStatusBuilt:            "Built",
	BuildStatusSubstituted:      "Substituted",
	BuildStatusAlreadyValid:     "AlreadyValid",
	BuildStatusPermanentFailure: "PermanentFailure",
	BuildStatusInputRejected:    "InputRejected",
	BuildStatusOutputRejected:   "OutputRejected",
	BuildStatusTransientFailure: "TransientFailure",
	BuildStatusCachedFailure:    "CachedFailure",
	BuildStatusTimedOut:         "TimedOut",
	BuildStatusMiscFailure:      "MiscFailure",
	BuildStatusDependencyFailed: "DependencyFailed",
	BuildStatusLogLimitExceeded: "LogLimitExceeded",
	BuildStatusNotDeterministic: "NotDeterministic",
}

// String returns the human-readable build status name.
func (s BuildStatus) String() string {
	if name, ok := buildStatusNames[s]; ok {
		return name
	}

	return fmt.Sprintf("BuildStatus(%d)", s)
}
