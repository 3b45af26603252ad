package uavobj

import "fmt"

// LinkStatus is the connection state advertised by either end of the link.
type LinkStatus uint8

// The link states. The local end moves through Disconnected, HandshakeAck and
// Connected. The peer advertises HandshakeReq, Connected and Disconnected.
const (
	LinkDisconnected LinkStatus = iota
	LinkHandshakeReq
	LinkHandshakeAck
	LinkConnected
)

func (s LinkStatus) String() string {
	switch s {
	case LinkDisconnected:
		return "DISCONNECTED"
	case LinkHandshakeReq:
		return "HANDSHAKE_REQ"
	case LinkHandshakeAck:
		return "HANDSHAKE_ACK"
	case LinkConnected:
		return "CONNECTED"
	default:
		return fmt.Sprintf("LinkStatus(%d)", uint8(s))
	}
}

// LinkStats is the published link statistics record. The local end keeps one
// and the peer publishes its own.
type LinkStats struct {
	Status LinkStatus `json:"status"`

	TxDataRate float32 `json:"tx_data_rate"`
	TxBytes    uint32  `json:"tx_bytes"`
	TxFailures uint32  `json:"tx_failures"`
	TxRetries  uint32  `json:"tx_retries"`

	RxDataRate   float32 `json:"rx_data_rate"`
	RxBytes      uint32  `json:"rx_bytes"`
	RxFailures   uint32  `json:"rx_failures"`
	RxSyncErrors uint32  `json:"rx_sync_errors"`
	RxCRCErrors  uint32  `json:"rx_crc_errors"`
}

// ClearCounters zeroes every rate and counter while keeping the status.
func (s *LinkStats) ClearCounters() {
	*s = LinkStats{Status: s.Status}
}
