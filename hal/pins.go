package hal

// Pin levels.
const (
	Low  = 0
	High = 1
)

// Pin modes.
const (
	Input = iota
	Output
	InputPullup
)

// PinMode accepts and discards a pin-direction request. The host has no
// GPIO hardware; the call exists so sketch sources stay unchanged.
func PinMode(pin, mode int) {}

// DigitalWrite accepts and discards a pin write.
func DigitalWrite(pin, level int) {}

// DigitalRead always reads Low on the host.
func DigitalRead(pin int) int {
	return Low
}
