// Package device holds the transport-neutral vocabulary shared by the keylink
// stack: the dongle's GATT identifiers, address validation and the error taxonomy
// (not found, connection state, write failures, timeouts) that every layer above
// the radio wraps and inspects with errors.Is / errors.As.
//
// The go-ble backed session lives in the go-ble subpackage.
package device
