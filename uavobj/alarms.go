package uavobj

// Alarm names a system alarm slot.
type Alarm uint8

// Alarm slots known to the telemetry pipeline.
const (
	AlarmTelemetry Alarm = iota
	AlarmEventSystem
)

// AlarmSeverity is the level an alarm is raised to.
type AlarmSeverity uint8

// Severities.
const (
	AlarmOK AlarmSeverity = iota
	AlarmWarning
	AlarmError
	AlarmCritical
)
