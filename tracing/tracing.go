// Package tracing collects what the telemetry module does, either as log
// lines or as rows in a recording database.
package tracing

import (
	"reflect"

	"github.com/sarchlab/uavlink/hooking"
	"github.com/sarchlab/uavlink/telemetry"
)

// Collect attaches the hook to every dispatcher, event queue and the link
// monitor of the module.
func Collect(m *telemetry.Module, hook hooking.Hook) {
	for _, c := range m.Channels() {
		c.Dispatcher().AcceptHook(hook)

		for _, q := range c.Lanes().Queues() {
			q.AcceptHook(hook)
		}
	}

	m.Monitor().AcceptHook(hook)
}

func domainName(ctx hooking.HookCtx) string {
	named, ok := ctx.Domain.(hooking.NamedHookable)
	if !ok {
		return reflect.TypeOf(ctx.Domain).String()
	}

	return named.Name()
}
