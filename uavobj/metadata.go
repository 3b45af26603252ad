package uavobj

import (
	"fmt"
	"time"
)

// UpdateMode governs when an object is sent or logged.
type UpdateMode uint8

// The update modes.
const (
	UpdateModeManual UpdateMode = iota
	UpdateModePeriodic
	UpdateModeOnChange
	UpdateModeThrottled
)

func (m UpdateMode) String() string {
	switch m {
	case UpdateModeManual:
		return "MANUAL"
	case UpdateModePeriodic:
		return "PERIODIC"
	case UpdateModeOnChange:
		return "ON_CHANGE"
	case UpdateModeThrottled:
		return "THROTTLED"
	default:
		return fmt.Sprintf("UpdateMode(%d)", uint8(m))
	}
}

// ParseUpdateMode converts the textual form back to an UpdateMode.
func ParseUpdateMode(s string) (UpdateMode, error) {
	for _, m := range []UpdateMode{
		UpdateModeManual,
		UpdateModePeriodic,
		UpdateModeOnChange,
		UpdateModeThrottled,
	} {
		if m.String() == s {
			return m, nil
		}
	}

	return 0, fmt.Errorf("unknown update mode %q", s)
}

// Metadata is the per-object telemetry and logging policy.
type Metadata struct {
	TelemetryMode   UpdateMode
	TelemetryPeriod time.Duration
	TelemetryAcked  bool

	LoggingMode   UpdateMode
	LoggingPeriod time.Duration
}

// MetaObjectMetadata is the fixed policy of every meta-object. Meta-objects are
// sent when they change and never logged unless asked to.
var MetaObjectMetadata = Metadata{
	TelemetryMode:  UpdateModeOnChange,
	TelemetryAcked: true,
	LoggingMode:    UpdateModeManual,
}
