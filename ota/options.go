package ota

import "time"

// Default step policy.
const (
	DefaultStartAttempts = 3
	DefaultStartTimeout  = 10 * time.Second
	DefaultChunkTimeout  = 15 * time.Second
	DefaultEndTimeout    = 15 * time.Second
	DefaultFragmentDelay = 10 * time.Millisecond
)

// Config holds the uploader configuration.
type Config struct {
	// ProgressCallback is called after each acknowledged step (optional)
	ProgressCallback ProgressCallback

	// Logger is used for logging operations (optional)
	Logger Logger

	// StartAttempts is the number of START sends before giving up
	StartAttempts int

	// StartTimeout bounds the wait for each START response
	StartTimeout time.Duration

	// ChunkTimeout bounds the wait for each DATA response
	ChunkTimeout time.Duration

	// EndTimeout bounds the wait for the END response
	EndTimeout time.Duration

	// FragmentSize caps each write; 0 uses the port's MaxWriteSize
	FragmentSize int

	// FragmentDelay is the pause between fragments of the same packet
	FragmentDelay time.Duration

	// StartDelay is waited once before the first START, giving a freshly
	// opened link time to settle
	StartDelay time.Duration

	// Resync discards inbound bytes preceding the response magic
	Resync bool

	// AbortOnFailure sends an ABORT packet after a rejected or timed out step
	AbortOnFailure bool
}

// defaultConfig returns the default configuration.
func defaultConfig() Config {
	return Config{
		StartAttempts: DefaultStartAttempts,
		StartTimeout:  DefaultStartTimeout,
		ChunkTimeout:  DefaultChunkTimeout,
		EndTimeout:    DefaultEndTimeout,
		FragmentDelay: DefaultFragmentDelay,
		Resync:        true,
	}
}

// Option is a functional option for configuring the Uploader.
type Option func(*Config)

// WithProgressCallback sets a callback function to track upload progress.
//
// Example:
//
//	up := ota.New(port,
//	    ota.WithProgressCallback(func(p ota.Progress) {
//	        fmt.Printf("%.1f%% complete\n", p.Percentage)
//	    }),
//	)
func WithProgressCallback(callback ProgressCallback) Option {
	return func(c *Config) {
		c.ProgressCallback = callback
	}
}

// WithLogger sets a logger for the uploader operations.
func WithLogger(logger Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithTimeout sets the START, DATA and END response timeouts at once.
//
// Example:
//
//	up := ota.New(port, ota.WithTimeout(5*time.Second))
func WithTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		if timeout > 0 {
			c.StartTimeout = timeout
			c.ChunkTimeout = timeout
			c.EndTimeout = timeout
		}
	}
}

// WithStartTimeout sets the wait for each START response. Default is 10s.
func WithStartTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		if timeout > 0 {
			c.StartTimeout = timeout
		}
	}
}

// WithChunkTimeout sets the wait for each DATA response. Default is 15s.
func WithChunkTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		if timeout > 0 {
			c.ChunkTimeout = timeout
		}
	}
}

// WithEndTimeout sets the wait for the END response. Default is 15s.
func WithEndTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		if timeout > 0 {
			c.EndTimeout = timeout
		}
	}
}

// WithStartAttempts sets how many times START is sent before the upload fails.
// Default is 3. DATA and END are never retried.
//
// Example:
//
//	up := ota.New(port, ota.WithStartAttempts(5))
func WithStartAttempts(attempts int) Option {
	return func(c *Config) {
		if attempts > 0 {
			c.StartAttempts = attempts
		}
	}
}

// WithFragmentSize caps the size of each write. The effective size is the
// smaller of this and the port's MaxWriteSize.
//
// Example:
//
//	up := ota.New(port, ota.WithFragmentSize(20))
func WithFragmentSize(size int) Option {
	return func(c *Config) {
		if size >= 0 {
			c.FragmentSize = size
		}
	}
}

// WithFragmentDelay sets the pause between fragments. Default is 10ms.
func WithFragmentDelay(delay time.Duration) Option {
	return func(c *Config) {
		if delay >= 0 {
			c.FragmentDelay = delay
		}
	}
}

// WithStartDelay sets a one-off pause before the first START packet.
func WithStartDelay(delay time.Duration) Option {
	return func(c *Config) {
		if delay >= 0 {
			c.StartDelay = delay
		}
	}
}

// WithResync enables or disables skipping of noise before the response magic.
// Default is true. With resync disabled the first ResponseSize bytes received
// are decoded as-is.
func WithResync(resync bool) Option {
	return func(c *Config) {
		c.Resync = resync
	}
}

// WithAbortOnFailure makes the uploader send an ABORT packet when a step is
// rejected or times out, so the target drops its partial transfer.
// Default is false.
func WithAbortOnFailure(abort bool) Option {
	return func(c *Config) {
		c.AbortOnFailure = abort
	}
}
