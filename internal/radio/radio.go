package radio

import "context"

const (
	// ServiceUUID is the provisioning GATT service exposed by the light.
	ServiceUUID = "4b9131c3-c9c5-cc8f-9e45-b51f01c2af4f"

	// WiFiCharacteristicUUID receives credential and confirmation writes.
	WiFiCharacteristicUUID = "a8261b36-07ea-f5b7-8846-e1363e48b5be"

	// DeviceInfoCharacteristicUUID publishes the device's network identity
	// once it has joined WiFi. Readable and notifiable.
	DeviceInfoCharacteristicUUID = "145f8763-1632-c09d-547c-bb6a451e20cf"

	// DeviceNamePrefix is the advertised name prefix of supported lights
	// (e.g. "ESP-C6-Light-AB12").
	DeviceNamePrefix = "ESP-C6-Light"
)

// Link is a connected short-range radio link to one light. It is the narrow
// capability the provisioning engine consumes; the concrete transport (a
// phone's BLE stack, the setup-mode WebSocket bridge, a test fake) is
// irrelevant to the handshake.
//
// Characteristic values are raw payload bytes; transports that carry values
// base64-encoded (as the GATT layer does) decode them before handing them
// to the caller.
type Link interface {
	// WriteCharacteristic writes value to the characteristic and waits for
	// the device's write acknowledgment.
	WriteCharacteristic(ctx context.Context, serviceUUID, charUUID string, value []byte) error

	// ReadCharacteristic reads the current value of the characteristic.
	ReadCharacteristic(ctx context.Context, serviceUUID, charUUID string) ([]byte, error)

	// Subscribe registers onValue for notifications on the characteristic
	// and returns an unsubscribe function. The unsubscribe function is safe
	// to call more than once.
	Subscribe(serviceUUID, charUUID string, onValue func(value []byte)) (func(), error)

	// Disconnect tears down the link. Subscriptions die with it.
	Disconnect() error
}
