//go:build tinygo || baremetal

package nrf

import (
	"device/nrf"
)

// Channel n (11-26) is at 2405 + 5*(n-11) MHz; FREQUENCY is the offset
// from 2400 MHz.
func frequency(channel uint8) uint32 {
	return 5 * (uint32(channel) - 10)
}

// startHFCLK starts the high-frequency clock required by the radio.
func startHFCLK() {
	nrf.CLOCK.EVENTS_HFCLKSTARTED.Set(0)
	nrf.CLOCK.TASKS_HFCLKSTART.Set(1)
	for nrf.CLOCK.EVENTS_HFCLKSTARTED.Get() == 0 {
	}
}

// configureRadio puts the peripheral in 802.15.4 mode: 250 kbit/s O-QPSK,
// a one byte PHR carrying the PSDU length and a 16-bit CRC covering the
// whole PSDU.
func configureRadio() {
	nrf.RADIO.POWER.Set(1)
	nrf.RADIO.MODE.Set(nrf.RADIO_MODE_MODE_Ieee802154_250Kbit)
	nrf.RADIO.TXPOWER.Set(nrf.RADIO_TXPOWER_TXPOWER_0dBm)

	nrf.RADIO.PCNF0.Set(
		(8 << nrf.RADIO_PCNF0_LFLEN_Pos) |
			(nrf.RADIO_PCNF0_PLEN_32bitZero << nrf.RADIO_PCNF0_PLEN_Pos) |
			(nrf.RADIO_PCNF0_CRCINC_Include << nrf.RADIO_PCNF0_CRCINC_Pos))

	nrf.RADIO.PCNF1.Set(
		(maxPSDU << nrf.RADIO_PCNF1_MAXLEN_Pos) |
			(nrf.RADIO_PCNF1_ENDIAN_Little << nrf.RADIO_PCNF1_ENDIAN_Pos))

	nrf.RADIO.CRCCNF.Set(
		(nrf.RADIO_CRCCNF_LEN_Two << nrf.RADIO_CRCCNF_LEN_Pos) |
			(nrf.RADIO_CRCCNF_SKIPADDR_Ieee802154 << nrf.RADIO_CRCCNF_SKIPADDR_Pos))
	nrf.RADIO.CRCPOLY.Set(0x11021)
	nrf.RADIO.CRCINIT.Set(0)

	// Sample RSSI on every address match and go straight from READY to
	// START so receive restarts without software help.
	nrf.RADIO.SHORTS.Set(
		nrf.RADIO_SHORTS_READY_START |
			nrf.RADIO_SHORTS_ADDRESS_RSSISTART)
}

// disable stops the radio and waits for the DISABLED state.
func disable() {
	nrf.RADIO.EVENTS_DISABLED.Set(0)
	nrf.RADIO.TASKS_DISABLE.Set(1)
	for nrf.RADIO.EVENTS_DISABLED.Get() == 0 {
	}
}
