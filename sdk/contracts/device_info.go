package contracts

// DeviceInfo describes a hardware MIDI endpoint. Entries are replaced on
// enumeration and removed on disconnect, never mutated in place.
type DeviceInfo struct {
	ID           string // Stable identifier within one transport session.
	Name         string // Device display name.
	Manufacturer string // Device manufacturer, when the transport reports one.
	Connected    bool   // Whether the endpoint is currently reachable.
}
