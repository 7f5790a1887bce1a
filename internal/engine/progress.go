package engine

// ProgressLevel indicates the severity/type of a progress message.
type ProgressLevel int

const (
	LevelInfo ProgressLevel = iota
	LevelVerbose
	LevelWarning
	LevelError
	LevelSuccess
)

func (l ProgressLevel) String() string {
	switch l {
	case LevelVerbose:
		return "verbose"
	case LevelWarning:
		return "warning"
	case LevelError:
		return "error"
	case LevelSuccess:
		return "success"
	}
	return "info"
}

// Stage names the pipeline step a run is in.
type Stage string

const (
	StageResolve  Stage = "resolve"
	StageFetch    Stage = "fetch"
	StagePlan     Stage = "plan"
	StageTransfer Stage = "transfer"
	StageVerify   Stage = "verify"
	StagePersist  Stage = "persist"
	StageDone     Stage = "done"
)

// ProgressEvent represents a sync progress update.
type ProgressEvent struct {
	Message string
	Level   ProgressLevel
	Stage   Stage

	// FileName is set for events about a single photo.
	FileName string
}
