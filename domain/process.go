package domain

// ProcessState is what the health sampler reports for the server process.
type ProcessState string

const (
	ProcessRunning  ProcessState = "RUNNING"
	ProcessSleeping ProcessState = "SLEEP"
	ProcessStopped  ProcessState = "STOP"
	ProcessIdle     ProcessState = "IDLE"
	ProcessZombie   ProcessState = "ZOMBIE"
	ProcessWaiting  ProcessState = "WAIT"
	ProcessLocked   ProcessState = "LOCK"
	ProcessUnknown  ProcessState = "UNKNOWN"
)

var processStates = map[string]ProcessState{
	"R": ProcessRunning,
	"S": ProcessSleeping,
	"T": ProcessStopped,
	"I": ProcessIdle,
	"Z": ProcessZombie,
	"W": ProcessWaiting,
	"L": ProcessLocked,
}

// ProcessStateOf reads the first state letter gopsutil returns, e.g. "S" or "S+".
func ProcessStateOf(letters string) ProcessState {
	if letters == "" {
		return ProcessUnknown
	}
	if state, ok := processStates[letters[:1]]; ok {
		return state
	}
	return ProcessUnknown
}
