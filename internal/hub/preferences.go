package hub

// Preferences is the persisted settings store the hub reads and writes.
// Implementations must be safe for concurrent use.
type Preferences interface {
	OutputDevice() string
	OutputDeviceName() string
	SetOutputDevice(address, name string) error

	UseExternalDevice() bool
	SetUseExternalDevice(enabled bool) error

	KeyboardLayout() string
	SetKeyboardLayout(layout string) error

	AppendNewline() bool
	SetAppendNewline(enabled bool) error
}
