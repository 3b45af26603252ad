package hooking

import "log"

// LogHookBase provides the common logic for all hooks that write log lines.
type LogHookBase struct {
	*log.Logger
}
