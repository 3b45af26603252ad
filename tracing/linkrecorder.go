package tracing

import (
	"time"

	"github.com/sarchlab/uavlink/datarecording"
	"github.com/sarchlab/uavlink/hooking"
	"github.com/sarchlab/uavlink/telemetry"
	"github.com/sarchlab/uavlink/uavobj"
)

// LinkTableName is the table that holds the link history.
const LinkTableName = "link_history"

// LinkEntry is one statistics period of the link.
type LinkEntry struct {
	Time       int64
	FromStatus string
	ToStatus   string
	PeerStatus string
	TimedOut   bool
	TxDataRate float32
	TxBytes    uint32
	TxFailures uint32
	TxRetries  uint32
	RxDataRate float32
	RxBytes    uint32
	RxFailures uint32
}

// LinkRecorder is a hook that records every link update into a
// DataRecorder.
type LinkRecorder struct {
	recorder datarecording.DataRecorder
	now      func() time.Time
}

// NewLinkRecorder creates the link history table in the recorder.
func NewLinkRecorder(recorder datarecording.DataRecorder) *LinkRecorder {
	recorder.CreateTable(LinkTableName, LinkEntry{})

	return &LinkRecorder{
		recorder: recorder,
		now:      time.Now,
	}
}

// Func records link updates and ignores everything else.
func (r *LinkRecorder) Func(ctx hooking.HookCtx) {
	if ctx.Pos != telemetry.HookPosLinkUpdate {
		return
	}

	stats := ctx.Item.(uavobj.LinkStats)
	tr := ctx.Detail.(telemetry.LinkTransition)

	r.recorder.InsertData(LinkTableName, LinkEntry{
		Time:       r.now().UnixNano(),
		FromStatus: tr.From.String(),
		ToStatus:   tr.To.String(),
		PeerStatus: tr.Peer.String(),
		TimedOut:   tr.TimedOut,
		TxDataRate: stats.TxDataRate,
		TxBytes:    stats.TxBytes,
		TxFailures: stats.TxFailures,
		TxRetries:  stats.TxRetries,
		RxDataRate: stats.RxDataRate,
		RxBytes:    stats.RxBytes,
		RxFailures: stats.RxFailures,
	})
}
