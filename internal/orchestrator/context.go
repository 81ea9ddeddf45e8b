package orchestrator

import (
	"github.com/ternarybob/arbor"

	"github.com/hugorneri/RPA-DCTFWEB/internal/interfaces"
	"github.com/hugorneri/RPA-DCTFWEB/internal/ledger"
)

// RunContext carries everything one run needs. There is no process-wide state.
type RunContext struct {
	RunID    string
	Period   string
	Ledger   *ledger.Ledger
	Progress ProgressSink
	Cancel   CancelToken
	// Gate is nil when no manual login is required
	Gate   *LoginGate
	Logger arbor.ILogger
	// History is optional; recording is best-effort
	History interfaces.RunStorage
}

func (rc *RunContext) progress(message string, current, total int) {
	if rc.Progress != nil {
		rc.Progress.Progress(message, current, total)
	}
}

func (rc *RunContext) stopped() bool {
	return rc.Cancel != nil && rc.Cancel.Stopped()
}
