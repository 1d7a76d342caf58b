package sim

import (
	"net/netip"

	"github.com/ystepanoff/otplat/engine"
)

// kickTx hands the next queued frame to the radio when it is idle.
func (e *Engine) kickTx() {
	if e.txBusy || len(e.txQueue) == 0 {
		return
	}
	psdu := e.txQueue[0]
	e.txQueue = e.txQueue[1:]

	e.txFrame.Length = uint16(copy(e.txBuf[:], psdu))
	e.txFrame.Channel = uint8(e.active.Channel)

	if st := e.p.RadioTransmit(&e.txFrame); st != engine.StatusNone {
		e.stats.TxFailures++
		e.log.Warn().Stringer("status", st).Msg("radio transmit")
		e.kickTx()
		return
	}
	e.txBusy = true
}

func (e *Engine) RadioTxDone(frame *engine.RadioFrame, status engine.Status) {
	if !e.txBusy {
		return
	}
	e.txBusy = false
	if status == engine.StatusNone {
		e.stats.TxFrames++
	} else {
		e.stats.TxFailures++
	}
	e.kickTx()
}

func (e *Engine) RadioReceiveDone(frame *engine.RadioFrame, status engine.Status) {
	if status != engine.StatusNone || !e.threadUp {
		e.stats.RxDropped++
		return
	}
	f := DecodeFrame(frame.Payload())
	if f == nil || f.SrcExt == e.extAddr {
		e.stats.RxDropped++
		return
	}
	if f.PanID != e.active.PanID && f.PanID != broadcastShort {
		e.stats.RxDropped++
		return
	}
	if !isMulticast(f.Dst) && !e.isOwnAddress(f.Dst) {
		e.stats.RxDropped++
		return
	}
	e.stats.RxFrames++

	e.log.Trace().
		Str("src", netip.AddrFrom16(f.Src).String()).
		Uint16("dport", f.DstPort).
		Int8("rssi", frame.RxInfo.RSSI).
		Uint8("lqi", frame.RxInfo.LQI).
		Msg("datagram received")

	info := engine.MessageInfo{
		SockAddr: f.Src,
		SockPort: f.SrcPort,
		PeerAddr: f.Dst,
		PeerPort: f.DstPort,
		HopLimit: defaultHopLimit,
	}
	e.deliverLocal(f.Payload, &info)
}
