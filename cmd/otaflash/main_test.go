package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/moffa90/go-otaflash/internal/config"
	"github.com/moffa90/go-otaflash/ota"
	"github.com/moffa90/go-otaflash/protocol"
)

func TestDetectTransport(t *testing.T) {
	tests := []struct {
		target string
		want   string
	}{
		{target: "/dev/ttyACM0", want: config.TransportSerial},
		{target: "/dev/tty.usbmodem1101", want: config.TransportSerial},
		{target: "COM3", want: config.TransportSerial},
		{target: "AA:BB:CC:DD:EE:FF", want: config.TransportBLE},
		{target: "aa-bb-cc-dd-ee-ff", want: config.TransportBLE},
		{target: "5F1C8E2A-3B4D-4C6E-9F01-23456789ABCD", want: config.TransportBLE},
		{target: "sim", want: config.TransportSim},
		{target: "SIM", want: config.TransportSim},
		{target: "AA:BB:CC:DD:EE", want: config.TransportSerial},
	}

	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			if got := detectTransport(tt.target); got != tt.want {
				t.Errorf("detectTransport(%q) = %q, want %q", tt.target, got, tt.want)
			}
		})
	}
}

func TestParseArgs(t *testing.T) {
	inv, err := parseArgs([]string{
		"-bank", "A",
		"-version", "2.0.1",
		"-checksum", "stm32",
		"-abort",
		"-start-delay", "500ms",
		"-fragment-size", "20",
		"app.bin", "/dev/ttyUSB0",
	}, io.Discard)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if inv.firmware != "app.bin" || inv.target != "/dev/ttyUSB0" {
		t.Errorf("positional args = %q, %q", inv.firmware, inv.target)
	}

	s := inv.settings
	if s.Transport != config.TransportSerial {
		t.Errorf("Transport = %q, want serial", s.Transport)
	}
	if s.Bank != protocol.BankA || s.Version != 0x02000100 || s.Checksum != protocol.ChecksumSTM32 {
		t.Errorf("image settings = %v 0x%08X %v", s.Bank, s.Version, s.Checksum)
	}
	if !s.AbortOnFailure || s.StartDelay != 500*time.Millisecond || s.FragmentSize != 20 {
		t.Errorf("upload settings = %+v", s)
	}
}

func TestParseArgsDefaults(t *testing.T) {
	inv, err := parseArgs([]string{"app.bin", "AA:BB:CC:DD:EE:FF"}, io.Discard)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := config.Default()
	want.Transport = config.TransportBLE
	if inv.settings != want {
		t.Errorf("settings:\n got %+v\nwant %+v", inv.settings, want)
	}
}

func TestParseArgsConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "otaflash.toml")
	content := "transport = \"sim\"\nbank = \"A\"\nstart_attempts = 7\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	inv, err := parseArgs([]string{"-config", path, "-bank", "B", "app.bin", "/dev/ttyUSB0"}, io.Discard)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if inv.settings.Transport != config.TransportSim {
		t.Errorf("Transport = %q, want sim from file", inv.settings.Transport)
	}
	if inv.settings.Bank != protocol.BankB {
		t.Errorf("Bank = %v, flag should override file", inv.settings.Bank)
	}
	if inv.settings.StartAttempts != 7 {
		t.Errorf("StartAttempts = %d, want 7 from file", inv.settings.StartAttempts)
	}
}

func TestParseArgsErrors(t *testing.T) {
	tests := []struct {
		name   string
		args   []string
		errMsg string
	}{
		{name: "missing target", args: []string{"app.bin"}, errMsg: "expected <firmware> and <target>"},
		{name: "bad bank", args: []string{"-bank", "C", "app.bin", "sim"}, errMsg: "-bank"},
		{name: "bad version", args: []string{"-version", "x", "app.bin", "sim"}, errMsg: "-version"},
		{name: "bad transport", args: []string{"-transport", "usb", "app.bin", "sim"}, errMsg: "-transport"},
		{name: "unknown flag", args: []string{"-retries", "3"}, errMsg: "flag provided but not defined"},
		{name: "missing config", args: []string{"-config", "/nonexistent/otaflash.toml", "a", "b"}, errMsg: "load config"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseArgs(tt.args, io.Discard)
			if err == nil {
				t.Fatalf("expected error containing %q, got nil", tt.errMsg)
			}
			if !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("error = %v, want substring %q", err, tt.errMsg)
			}
		})
	}
}

func writeFirmware(t *testing.T, n int) string {
	t.Helper()

	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i)
	}
	path := filepath.Join(t.TempDir(), "app.bin")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write firmware: %v", err)
	}
	return path
}

func TestRunSimulated(t *testing.T) {
	t.Setenv("OTAFLASH_LOG_LEVEL", "")
	fw := writeFirmware(t, 1500)

	tests := []struct {
		name string
		args []string
	}{
		{name: "bank B", args: []string{"-log-level", "off", fw, "sim"}},
		{name: "bank A stm32", args: []string{"-log-level", "off", "-bank", "A", "-checksum", "stm32", fw, "sim"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			if code := run(context.Background(), tt.args, &stdout, &stderr); code != exitOK {
				t.Fatalf("exit code = %d, want 0\nstderr: %s", code, stderr.String())
			}
			if !strings.Contains(stdout.String(), "upload complete: 1500 bytes in 2 chunks") {
				t.Errorf("stdout = %q", stdout.String())
			}
		})
	}
}

func TestRunFailures(t *testing.T) {
	t.Setenv("OTAFLASH_LOG_LEVEL", "")
	fw := writeFirmware(t, 10)

	tests := []struct {
		name   string
		ctx    func() context.Context
		args   []string
		errMsg string
	}{
		{
			name:   "usage",
			ctx:    context.Background,
			args:   []string{fw},
			errMsg: "expected <firmware> and <target>",
		},
		{
			name:   "missing firmware",
			ctx:    context.Background,
			args:   []string{"-log-level", "error", filepath.Join(t.TempDir(), "none.bin"), "sim"},
			errMsg: "cannot load firmware",
		},
		{
			name: "cancelled",
			ctx: func() context.Context {
				ctx, cancel := context.WithCancel(context.Background())
				cancel()
				return ctx
			},
			args:   []string{"-log-level", "off", fw, "sim"},
			errMsg: "upload failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			if code := run(tt.ctx(), tt.args, &stdout, &stderr); code != exitFailure {
				t.Fatalf("exit code = %d, want 1", code)
			}
			if !strings.Contains(stderr.String(), tt.errMsg) {
				t.Errorf("stderr = %q, want substring %q", stderr.String(), tt.errMsg)
			}
		})
	}
}

func TestRunHelp(t *testing.T) {
	var stderr bytes.Buffer
	if code := run(context.Background(), []string{"-h"}, io.Discard, &stderr); code != exitOK {
		t.Errorf("exit code = %d, want 0", code)
	}
	if !strings.Contains(stderr.String(), "usage: otaflash") {
		t.Errorf("help output = %q", stderr.String())
	}
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		p    ota.Progress
		want string
	}{
		{ota.Progress{Phase: ota.PhaseStart, Attempt: 1}, "Starting"},
		{ota.Progress{Phase: ota.PhaseStart, Attempt: 2}, "Starting (attempt 2)"},
		{ota.Progress{Phase: ota.PhaseData}, "Writing"},
		{ota.Progress{Phase: ota.PhaseEnd}, "Verifying"},
		{ota.Progress{Phase: ota.PhaseComplete}, "Done"},
		{ota.Progress{Phase: ota.PhaseFailed}, "Failed"},
	}

	for _, tt := range tests {
		if got := describe(tt.p); got != tt.want {
			t.Errorf("describe(%+v) = %q, want %q", tt.p, got, tt.want)
		}
	}
}

func TestProgressBarUpdate(t *testing.T) {
	var buf bytes.Buffer
	bar := newProgressBar(&buf, 2048)

	bar.update(ota.Progress{Phase: ota.PhaseStart, Attempt: 1})
	bar.update(ota.Progress{Phase: ota.PhaseData, CurrentChunk: 1, BytesSent: 1024})
	bar.update(ota.Progress{Phase: ota.PhaseComplete, BytesSent: 2048})
	bar.finish(true)

	if bar.desc != "Done" {
		t.Errorf("desc = %q, want Done", bar.desc)
	}
	if buf.Len() == 0 {
		t.Error("progress bar wrote nothing")
	}
}
