package radio

const (
	lqiFloorDBm   = -80
	lqiCeilingDBm = -30
)

// RSSIToLQI maps a received signal strength onto the 0..255 link quality
// scale: linear between -80 dBm and -30 dBm, clamped outside.
func RSSIToLQI(rssi int8) uint8 {
	switch {
	case rssi < lqiFloorDBm:
		return 0
	case rssi > lqiCeilingDBm:
		return 0xFF
	}
	return uint8((int(rssi) - lqiFloorDBm) * 255 / (lqiCeilingDBm - lqiFloorDBm))
}
