package tracing

import (
	"log"

	"github.com/sarchlab/uavlink/hooking"
	"github.com/sarchlab/uavlink/queueing"
	"github.com/sarchlab/uavlink/telemetry"
	"github.com/sarchlab/uavlink/uavobj"
)

// DispatchLogger is a hook that prints retries, failures, dropped events and
// link transitions.
type DispatchLogger struct {
	hooking.LogHookBase

	verbose bool
}

// NewDispatchLogger creates a DispatchLogger that writes into the logger.
// A verbose logger also prints every successful dispatch.
func NewDispatchLogger(logger *log.Logger, verbose bool) *DispatchLogger {
	h := new(DispatchLogger)
	h.Logger = logger
	h.verbose = verbose

	return h
}

// Func prints the hook context.
func (h *DispatchLogger) Func(ctx hooking.HookCtx) {
	switch ctx.Pos {
	case telemetry.HookPosDispatch:
		h.logDispatch(ctx)
	case telemetry.HookPosLinkUpdate:
		h.logLinkUpdate(ctx)
	case queueing.HookPosQueueDrop:
		ev := ctx.Item.(uavobj.Event)
		h.Printf("%s: dropped obj %d inst %d %s",
			domainName(ctx), ev.Obj, ev.Instance, ev.Kind)
	}
}

func (h *DispatchLogger) logDispatch(ctx hooking.HookCtx) {
	ev := ctx.Item.(uavobj.Event)
	result := ctx.Detail.(telemetry.DispatchResult)

	switch {
	case result.Err != nil:
		h.Printf("%s: %s obj %d inst %d failed after %d retries: %v",
			domainName(ctx), result.Action, ev.Obj, ev.Instance,
			result.Retries, result.Err)
	case result.Retries > 0:
		h.Printf("%s: %s obj %d inst %d succeeded after %d retries",
			domainName(ctx), result.Action, ev.Obj, ev.Instance,
			result.Retries)
	case h.verbose && result.Action != telemetry.ActionNone:
		h.Printf("%s: %s obj %d inst %d %s",
			domainName(ctx), result.Action, ev.Obj, ev.Instance, ev.Kind)
	}
}

func (h *DispatchLogger) logLinkUpdate(ctx hooking.HookCtx) {
	tr := ctx.Detail.(telemetry.LinkTransition)

	if tr.TimedOut {
		h.Printf("link: no data received, connection timed out")
	}

	if tr.From != tr.To {
		h.Printf("link: %s -> %s (peer %s)", tr.From, tr.To, tr.Peer)
	}
}
