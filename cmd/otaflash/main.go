// Command otaflash uploads a firmware image to an OTA bootloader over a
// serial port or BLE.
//
// Usage:
//
//	otaflash [flags] <firmware.bin|firmware.hex> <target>
//
// The target is a serial port path (/dev/ttyACM0, COM3), a BLE address or
// peripheral UUID, or "sim" for a dry run against a simulated bootloader.
// The exit status is 0 when the target accepted the image and 1 otherwise.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/moffa90/go-otaflash/firmware"
	"github.com/moffa90/go-otaflash/internal/config"
	"github.com/moffa90/go-otaflash/internal/devsim"
	"github.com/moffa90/go-otaflash/internal/logging"
	"github.com/moffa90/go-otaflash/ota"
	"github.com/moffa90/go-otaflash/protocol"
	"github.com/moffa90/go-otaflash/transport"
	"github.com/moffa90/go-otaflash/transport/ble"
	"github.com/moffa90/go-otaflash/transport/uart"
)

const (
	exitOK      = 0
	exitFailure = 1
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// invocation is a parsed command line.
type invocation struct {
	firmware   string
	target     string
	settings   config.Settings
	listPorts  bool
	noProgress bool
}

func parseArgs(args []string, stderr io.Writer) (*invocation, error) {
	fs := flag.NewFlagSet("otaflash", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: otaflash [flags] <firmware.bin|firmware.hex> <target>")
		fmt.Fprintln(stderr)
		fmt.Fprintln(stderr, "target is a serial port, a BLE address or UUID, or \"sim\"")
		fmt.Fprintln(stderr)
		fs.PrintDefaults()
	}

	var (
		configPath    = fs.String("config", "", "TOML config file")
		transportName = fs.String("transport", config.TransportAuto, "auto, serial, ble or sim")
		bank          = fs.String("bank", "B", "target bank (A or B)")
		version       = fs.String("version", "0x00010000", "firmware version (0x00010000 or 2.0.1)")
		checksum      = fs.String("checksum", "ieee", "CRC32 variant: ieee or stm32")
		baud          = fs.Int("baud", 115200, "serial baud rate")
		abort         = fs.Bool("abort", false, "send ABORT when a step fails")
		startDelay    = fs.Duration("start-delay", 0, "wait before the first START packet")
		fragmentSize  = fs.Int("fragment-size", 0, "maximum bytes per write, 0 uses the transport limit")
		logLevel      = fs.String("log-level", "info", "debug, info, warn, error or off")
		listPorts     = fs.Bool("list", false, "list serial ports and exit")
		noProgress    = fs.Bool("no-progress", false, "disable the progress bar")
	)

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	inv := &invocation{
		listPorts:  *listPorts,
		noProgress: *noProgress,
		settings:   config.Default(),
	}

	if *configPath != "" {
		s, err := config.Load(*configPath)
		if err != nil {
			return nil, err
		}
		inv.settings = s
	}

	// Flags given explicitly win over the config file.
	var flagErr error
	fs.Visit(func(f *flag.Flag) {
		if flagErr != nil {
			return
		}
		s := &inv.settings
		switch f.Name {
		case "transport":
			s.Transport, flagErr = config.ParseTransport(*transportName)
		case "bank":
			s.Bank, flagErr = protocol.ParseBank(*bank)
		case "version":
			s.Version, flagErr = firmware.ParseVersion(*version)
		case "checksum":
			s.Checksum, flagErr = protocol.ParseChecksumType(*checksum)
		case "baud":
			s.Baud = *baud
		case "abort":
			s.AbortOnFailure = *abort
		case "start-delay":
			s.StartDelay = *startDelay
		case "fragment-size":
			s.FragmentSize = *fragmentSize
		case "log-level":
			s.LogLevel = *logLevel
		}
		if flagErr != nil {
			flagErr = fmt.Errorf("-%s: %w", f.Name, flagErr)
		}
	})
	if flagErr != nil {
		return nil, flagErr
	}

	if inv.listPorts {
		return inv, nil
	}

	if fs.NArg() != 2 {
		fs.Usage()
		return nil, fmt.Errorf("expected <firmware> and <target>, got %d argument(s)", fs.NArg())
	}
	inv.firmware = fs.Arg(0)
	inv.target = fs.Arg(1)

	if inv.settings.Transport == config.TransportAuto {
		inv.settings.Transport = detectTransport(inv.target)
	}

	return inv, nil
}

var macAddress = regexp.MustCompile(`^([0-9A-Fa-f]{2}[:-]){5}[0-9A-Fa-f]{2}$`)

// detectTransport picks a transport from the shape of the target. BLE
// peripherals are addressed by MAC on Linux and Windows and by UUID on macOS.
func detectTransport(target string) string {
	target = strings.TrimSpace(target)
	switch {
	case strings.EqualFold(target, config.TransportSim):
		return config.TransportSim
	case macAddress.MatchString(target):
		return config.TransportBLE
	case isUUID(target):
		return config.TransportBLE
	default:
		return config.TransportSerial
	}
}

func isUUID(s string) bool {
	if len(s) != 36 {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	inv, err := parseArgs(args, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return exitOK
	}
	if err != nil {
		fmt.Fprintf(stderr, "otaflash: %v\n", err)
		return exitFailure
	}

	if inv.listPorts {
		return listSerialPorts(stdout, stderr)
	}

	logCfg := logging.DefaultConfig()
	logCfg.Out = stderr
	if lvl, ok := logging.ParseLevel(inv.settings.LogLevel); ok {
		logCfg.Level = lvl
	}
	logging.ApplyEnv(&logCfg)
	logger := logging.New(logCfg)

	img, err := firmware.Load(inv.firmware, inv.settings.ImageOptions()...)
	if err != nil {
		logger.Error().Err(err).Str("file", inv.firmware).Msg("cannot load firmware")
		return exitFailure
	}

	logger.Info().
		Str("file", inv.firmware).
		Int("size", img.Size()).
		Int("chunks", img.TotalChunks()).
		Str("crc32", fmt.Sprintf("0x%08X", img.CRC32())).
		Str("bank", img.Bank().String()).
		Str("version", firmware.FormatVersion(img.Version())).
		Msg("firmware loaded")

	port, err := openPort(ctx, inv.settings, inv.target)
	if err != nil {
		logger.Error().Err(err).Str("transport", inv.settings.Transport).Str("target", inv.target).Msg("cannot open transport")
		return exitFailure
	}
	defer port.Close()

	logger.Info().Str("transport", inv.settings.Transport).Str("target", inv.target).Msg("connected")

	opts := append(inv.settings.UploadOptions(), ota.WithLogger(logging.NewAdapter(logger)))

	var bar *progressBar
	if !inv.noProgress && isTerminal(stderr) {
		bar = newProgressBar(stderr, img.Size())
		opts = append(opts, ota.WithProgressCallback(bar.update))
	}

	result, err := ota.New(port, opts...).Upload(ctx, img)
	if bar != nil {
		bar.finish(err == nil)
	}
	if err != nil {
		fmt.Fprintf(stderr, "otaflash: upload failed: %v\n", err)
		if result != nil {
			fmt.Fprintf(stderr, "otaflash: %d/%d chunks acknowledged, target reported last chunk %d\n",
				result.ChunksSent, result.TotalChunks, result.LastChunk)
		}
		return exitFailure
	}

	fmt.Fprintf(stdout, "upload complete: %d bytes in %d chunks to bank %s (%s)\n",
		img.Size(), result.ChunksSent, img.Bank(), result.Elapsed.Round(time.Millisecond))
	return exitOK
}

func openPort(ctx context.Context, s config.Settings, target string) (transport.Port, error) {
	switch s.Transport {
	case config.TransportSerial:
		cfg := uart.DefaultConfig()
		cfg.BaudRate = s.Baud
		return uart.Open(target, cfg)
	case config.TransportBLE:
		return ble.Open(ctx, target, s.BLEConfig())
	case config.TransportSim:
		running := protocol.BankA
		if s.Bank == protocol.BankA {
			running = protocol.BankB
		}
		return devsim.New(
			devsim.WithActiveBank(running),
			devsim.WithChecksum(s.Checksum),
			devsim.WithMaxWrite(ble.DefaultMTU),
		), nil
	default:
		return nil, fmt.Errorf("unknown transport %q", s.Transport)
	}
}

func listSerialPorts(stdout, stderr io.Writer) int {
	ports, err := uart.Ports()
	if err != nil {
		fmt.Fprintf(stderr, "otaflash: list serial ports: %v\n", err)
		return exitFailure
	}
	if len(ports) == 0 {
		fmt.Fprintln(stderr, "no serial ports found")
		return exitOK
	}
	for _, p := range ports {
		fmt.Fprintln(stdout, p)
	}
	return exitOK
}
