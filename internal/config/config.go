// Package config loads otaflash settings from a TOML file.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/moffa90/go-otaflash/firmware"
	"github.com/moffa90/go-otaflash/ota"
	"github.com/moffa90/go-otaflash/protocol"
	"github.com/moffa90/go-otaflash/transport/ble"
)

// Transport names.
const (
	TransportAuto   = "auto"
	TransportSerial = "serial"
	TransportBLE    = "ble"
	TransportSim    = "sim"
)

// Settings is the resolved configuration for one otaflash run.
type Settings struct {
	Transport string

	Bank     protocol.Bank
	Version  uint32
	Checksum protocol.ChecksumType

	Baud int

	StartAttempts  int
	StartTimeout   time.Duration
	ChunkTimeout   time.Duration
	EndTimeout     time.Duration
	FragmentSize   int
	FragmentDelay  time.Duration
	StartDelay     time.Duration
	Resync         bool
	AbortOnFailure bool

	LogLevel string

	BLEService        string
	BLECharacteristic string
	ScanTimeout       time.Duration
}

// Default returns the built-in settings.
func Default() Settings {
	return Settings{
		Transport:         TransportAuto,
		Bank:              protocol.BankB,
		Version:           protocol.DefaultVersion,
		Checksum:          protocol.ChecksumIEEE,
		Baud:              115200,
		StartAttempts:     ota.DefaultStartAttempts,
		StartTimeout:      ota.DefaultStartTimeout,
		ChunkTimeout:      ota.DefaultChunkTimeout,
		EndTimeout:        ota.DefaultEndTimeout,
		FragmentDelay:     ota.DefaultFragmentDelay,
		Resync:            true,
		LogLevel:          "info",
		BLEService:        ble.DefaultServiceUUID,
		BLECharacteristic: ble.DefaultCharacteristicUUID,
		ScanTimeout:       10 * time.Second,
	}
}

type fileConfig struct {
	Transport         string `toml:"transport"`
	Bank              string `toml:"bank"`
	Version           string `toml:"version"`
	Checksum          string `toml:"checksum"`
	Baud              int    `toml:"baud"`
	StartAttempts     int    `toml:"start_attempts"`
	StartTimeout      string `toml:"start_timeout"`
	ChunkTimeout      string `toml:"chunk_timeout"`
	EndTimeout        string `toml:"end_timeout"`
	FragmentSize      int    `toml:"fragment_size"`
	FragmentDelay     string `toml:"fragment_delay"`
	StartDelay        string `toml:"start_delay"`
	Resync            bool   `toml:"resync"`
	AbortOnFailure    bool   `toml:"abort_on_failure"`
	LogLevel          string `toml:"log_level"`
	BLEService        string `toml:"ble_service"`
	BLECharacteristic string `toml:"ble_characteristic"`
	ScanTimeout       string `toml:"scan_timeout"`
}

// Load reads path on top of Default. Keys absent from the file keep their
// default values.
func Load(path string) (Settings, error) {
	cfg := Default()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Settings{}, fmt.Errorf("load config: %w", err)
	}

	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Settings{}, fmt.Errorf("load config: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("transport") {
		t, err := ParseTransport(raw.Transport)
		if err != nil {
			return Settings{}, err
		}
		cfg.Transport = t
	}

	if meta.IsDefined("bank") {
		b, err := protocol.ParseBank(raw.Bank)
		if err != nil {
			return Settings{}, fmt.Errorf("parse bank: %w", err)
		}
		cfg.Bank = b
	}

	if meta.IsDefined("version") {
		v, err := firmware.ParseVersion(raw.Version)
		if err != nil {
			return Settings{}, fmt.Errorf("parse version: %w", err)
		}
		cfg.Version = v
	}

	if meta.IsDefined("checksum") {
		c, err := protocol.ParseChecksumType(raw.Checksum)
		if err != nil {
			return Settings{}, fmt.Errorf("parse checksum: %w", err)
		}
		cfg.Checksum = c
	}

	if meta.IsDefined("baud") {
		if raw.Baud <= 0 {
			return Settings{}, fmt.Errorf("baud must be positive, got %d", raw.Baud)
		}
		cfg.Baud = raw.Baud
	}

	if meta.IsDefined("start_attempts") {
		if raw.StartAttempts <= 0 {
			return Settings{}, fmt.Errorf("start_attempts must be positive, got %d", raw.StartAttempts)
		}
		cfg.StartAttempts = raw.StartAttempts
	}

	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"start_timeout", raw.StartTimeout, &cfg.StartTimeout},
		{"chunk_timeout", raw.ChunkTimeout, &cfg.ChunkTimeout},
		{"end_timeout", raw.EndTimeout, &cfg.EndTimeout},
		{"fragment_delay", raw.FragmentDelay, &cfg.FragmentDelay},
		{"start_delay", raw.StartDelay, &cfg.StartDelay},
		{"scan_timeout", raw.ScanTimeout, &cfg.ScanTimeout},
	}
	for _, d := range durations {
		if !meta.IsDefined(d.key) {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return Settings{}, fmt.Errorf("parse %s: %w", d.key, err)
		}
		if v < 0 {
			return Settings{}, fmt.Errorf("%s must not be negative, got %v", d.key, v)
		}
		*d.dst = v
	}

	if meta.IsDefined("fragment_size") {
		if raw.FragmentSize < 0 {
			return Settings{}, fmt.Errorf("fragment_size must not be negative, got %d", raw.FragmentSize)
		}
		cfg.FragmentSize = raw.FragmentSize
	}

	if meta.IsDefined("resync") {
		cfg.Resync = raw.Resync
	}

	if meta.IsDefined("abort_on_failure") {
		cfg.AbortOnFailure = raw.AbortOnFailure
	}

	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}

	if meta.IsDefined("ble_service") {
		cfg.BLEService = strings.TrimSpace(raw.BLEService)
	}

	if meta.IsDefined("ble_characteristic") {
		cfg.BLECharacteristic = strings.TrimSpace(raw.BLECharacteristic)
	}

	return cfg, nil
}

// ParseTransport validates a transport name.
func ParseTransport(s string) (string, error) {
	switch t := strings.ToLower(strings.TrimSpace(s)); t {
	case "", TransportAuto:
		return TransportAuto, nil
	case TransportSerial, "uart":
		return TransportSerial, nil
	case TransportBLE, TransportSim:
		return t, nil
	default:
		return "", fmt.Errorf("unknown transport %q (want auto, serial, ble or sim)", s)
	}
}

// UploadOptions converts the step policy to ota options.
func (s Settings) UploadOptions() []ota.Option {
	return []ota.Option{
		ota.WithStartAttempts(s.StartAttempts),
		ota.WithStartTimeout(s.StartTimeout),
		ota.WithChunkTimeout(s.ChunkTimeout),
		ota.WithEndTimeout(s.EndTimeout),
		ota.WithFragmentSize(s.FragmentSize),
		ota.WithFragmentDelay(s.FragmentDelay),
		ota.WithStartDelay(s.StartDelay),
		ota.WithResync(s.Resync),
		ota.WithAbortOnFailure(s.AbortOnFailure),
	}
}

// ImageOptions converts the image metadata to firmware options.
func (s Settings) ImageOptions() []firmware.Option {
	return []firmware.Option{
		firmware.WithBank(s.Bank),
		firmware.WithVersion(s.Version),
		firmware.WithChecksum(s.Checksum),
	}
}

// BLEConfig returns the BLE transport settings.
func (s Settings) BLEConfig() ble.Config {
	cfg := ble.DefaultConfig()
	cfg.ServiceUUID = s.BLEService
	cfg.CharacteristicUUID = s.BLECharacteristic
	cfg.ScanTimeout = s.ScanTimeout
	return cfg
}
