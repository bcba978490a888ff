// Package ble implements transport.Port over a BLE GATT characteristic.
//
// The default service and characteristic are the HM-10 style UART bridge
// (0xFFE0 / 0xFFE1), where one characteristic is both written without
// response and subscribed for notifications.
package ble

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"tinygo.org/x/bluetooth"

	"github.com/moffa90/go-otaflash/transport"
)

const (
	// DefaultServiceUUID is the HM-10 UART service
	DefaultServiceUUID = "0000FFE0-0000-1000-8000-00805F9B34FB"

	// DefaultCharacteristicUUID is the HM-10 UART characteristic
	DefaultCharacteristicUUID = "0000FFE1-0000-1000-8000-00805F9B34FB"

	// DefaultMTU is the ATT payload for the default 23 byte MTU
	DefaultMTU = 20
)

// ErrNotFound is returned when the scan ends without seeing the target.
var ErrNotFound = errors.New("ble device not found")

// Config selects the GATT endpoint and scan behavior.
type Config struct {
	ServiceUUID        string
	CharacteristicUUID string

	// ScanTimeout bounds discovery of the target address
	ScanTimeout time.Duration

	// MTU is the largest write issued to the characteristic
	MTU int

	InboxDepth int
}

// DefaultConfig returns the HM-10 endpoint with a 10 second scan.
func DefaultConfig() Config {
	return Config{
		ServiceUUID:        DefaultServiceUUID,
		CharacteristicUUID: DefaultCharacteristicUUID,
		ScanTimeout:        10 * time.Second,
		MTU:                DefaultMTU,
		InboxDepth:         transport.DefaultInboxDepth,
	}
}

// Port is a transport.Port backed by a connected BLE peripheral.
type Port struct {
	address string
	device  bluetooth.Device
	char    bluetooth.DeviceCharacteristic
	cfg     Config
	inbox   *transport.Inbox

	mu     sync.Mutex
	closed bool
}

var _ transport.Port = (*Port)(nil)

// Open scans for address, connects and subscribes to the characteristic.
// address is matched against the advertised address or local name,
// case-insensitively.
func Open(ctx context.Context, address string, cfg Config) (*Port, error) {
	cfg = withDefaults(cfg)

	serviceUUID, err := bluetooth.ParseUUID(cfg.ServiceUUID)
	if err != nil {
		return nil, fmt.Errorf("invalid service uuid %q: %w", cfg.ServiceUUID, err)
	}
	charUUID, err := bluetooth.ParseUUID(cfg.CharacteristicUUID)
	if err != nil {
		return nil, fmt.Errorf("invalid characteristic uuid %q: %w", cfg.CharacteristicUUID, err)
	}

	adapter := bluetooth.DefaultAdapter
	if err := adapter.Enable(); err != nil {
		return nil, fmt.Errorf("enable bluetooth adapter: %w", err)
	}

	result, err := scan(ctx, adapter, address, cfg.ScanTimeout)
	if err != nil {
		return nil, err
	}

	device, err := adapter.Connect(result.Address, bluetooth.ConnectionParams{})
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", address, err)
	}

	char, err := discover(device, serviceUUID, charUUID)
	if err != nil {
		_ = device.Disconnect()
		return nil, err
	}

	p := &Port{
		address: address,
		device:  device,
		char:    char,
		cfg:     cfg,
		inbox:   transport.NewInbox(cfg.InboxDepth),
	}

	if err := char.EnableNotifications(p.onNotify); err != nil {
		_ = device.Disconnect()
		return nil, fmt.Errorf("enable notifications on %s: %w", cfg.CharacteristicUUID, err)
	}

	return p, nil
}

func withDefaults(cfg Config) Config {
	def := DefaultConfig()
	if cfg.ServiceUUID == "" {
		cfg.ServiceUUID = def.ServiceUUID
	}
	if cfg.CharacteristicUUID == "" {
		cfg.CharacteristicUUID = def.CharacteristicUUID
	}
	if cfg.ScanTimeout <= 0 {
		cfg.ScanTimeout = def.ScanTimeout
	}
	if cfg.MTU <= 0 {
		cfg.MTU = def.MTU
	}
	return cfg
}

func scan(ctx context.Context, adapter *bluetooth.Adapter, address string, timeout time.Duration) (bluetooth.ScanResult, error) {
	var (
		found  bluetooth.ScanResult
		ok     bool
		stopMu sync.Mutex
	)

	stop := func() {
		stopMu.Lock()
		defer stopMu.Unlock()
		_ = adapter.StopScan()
	}

	scanCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	go func() {
		<-scanCtx.Done()
		stop()
	}()

	err := adapter.Scan(func(a *bluetooth.Adapter, result bluetooth.ScanResult) {
		if ok {
			return
		}
		if matchesTarget(address, result.Address.String(), result.LocalName()) {
			found = result
			ok = true
			cancel()
		}
	})
	if err != nil {
		return found, fmt.Errorf("scan: %w", err)
	}

	if !ok {
		if ctx.Err() != nil {
			return found, ctx.Err()
		}
		return found, fmt.Errorf("%w: %s", ErrNotFound, address)
	}
	return found, nil
}

// matchesTarget reports whether a scan result identifies the wanted peripheral.
func matchesTarget(target, address, name string) bool {
	target = strings.TrimSpace(target)
	if target == "" {
		return false
	}
	if strings.EqualFold(target, address) {
		return true
	}
	return name != "" && strings.EqualFold(target, name)
}

func discover(device bluetooth.Device, serviceUUID, charUUID bluetooth.UUID) (bluetooth.DeviceCharacteristic, error) {
	var none bluetooth.DeviceCharacteristic

	services, err := device.DiscoverServices([]bluetooth.UUID{serviceUUID})
	if err != nil {
		return none, fmt.Errorf("discover service %s: %w", serviceUUID.String(), err)
	}
	if len(services) == 0 {
		return none, fmt.Errorf("service %s not found", serviceUUID.String())
	}

	chars, err := services[0].DiscoverCharacteristics([]bluetooth.UUID{charUUID})
	if err != nil {
		return none, fmt.Errorf("discover characteristic %s: %w", charUUID.String(), err)
	}
	if len(chars) == 0 {
		return none, fmt.Errorf("characteristic %s not found", charUUID.String())
	}
	return chars[0], nil
}

func (p *Port) onNotify(data []byte) {
	p.inbox.Push(data)
}

// Address returns the address or name the port was opened with.
func (p *Port) Address() string { return p.address }

// Write sends b with a single write-without-response. Callers fragment to
// MaxWriteSize.
func (p *Port) Write(b []byte) (int, error) {
	if p.isClosed() {
		return 0, transport.ErrClosed
	}
	if len(b) > p.cfg.MTU {
		return 0, fmt.Errorf("write of %d bytes exceeds mtu %d", len(b), p.cfg.MTU)
	}
	n, err := p.char.WriteWithoutResponse(b)
	if err != nil {
		return n, fmt.Errorf("ble write: %w", err)
	}
	return n, nil
}

// Receive returns the next notification payload.
func (p *Port) Receive(ctx context.Context) ([]byte, error) {
	return p.inbox.Receive(ctx)
}

// ResetInput drops queued notifications.
func (p *Port) ResetInput() error {
	p.inbox.Reset()
	return nil
}

// MaxWriteSize returns the configured MTU.
func (p *Port) MaxWriteSize() int { return p.cfg.MTU }

// Close disconnects from the peripheral.
func (p *Port) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	p.inbox.Close()
	if err := p.device.Disconnect(); err != nil {
		return fmt.Errorf("disconnect %s: %w", p.address, err)
	}
	return nil
}

func (p *Port) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
