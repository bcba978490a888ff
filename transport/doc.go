// Package transport defines the link between the uploader and the target.
//
// Backends live in sub-packages:
//   - transport/uart: serial port via go.bug.st/serial
//   - transport/ble: BLE GATT write/notify characteristic via tinygo.org/x/bluetooth
//
// Both push inbound bytes into an Inbox, so the uploader performs a blocking
// receive with a deadline instead of reacting to callbacks:
//
//	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
//	defer cancel()
//	data, err := port.Receive(ctx)
//
// Any io.ReadWriter-style device can be adapted by implementing Port.
package transport
