package upload

import (
	"fmt"
	"math"
	"time"

	"github.com/arloliu/go-smp/logger"
	"github.com/arloliu/go-smp/smp"
)

// MaxPipelineDepth is the largest accepted pipeline depth.
const MaxPipelineDepth = 32

// Alignment is the byte alignment of chunk lengths. Only the last chunk of an image may be
// unaligned.
type Alignment int

const (
	AlignmentDisabled Alignment = 0
	Alignment2        Alignment = 2
	Alignment4        Alignment = 4
	Alignment8        Alignment = 8
	Alignment16       Alignment = 16
)

func (a Alignment) valid() bool {
	switch a {
	case AlignmentDisabled, Alignment2, Alignment4, Alignment8, Alignment16:
		return true
	default:
		return false
	}
}

// Progress describes how far an upload got.
type Progress struct {
	// Image is the index of the image being uploaded, Images the number of images.
	Image  int
	Images int
	// Offset is the number of bytes of the image the device confirmed.
	Offset uint64
	// Size is the size of the image.
	Size      uint64
	Timestamp time.Time
}

// Config represents the configuration of an Uploader.
type Config struct {
	// pipelineDepth is the number of chunks in flight at the same time.
	// It should be between 1 and MaxPipelineDepth; values above 1 need a device with enough
	// SMP buffers. Defaults to 1.
	pipelineDepth int

	// alignment truncates chunk lengths to a multiple of it.
	// Defaults to AlignmentDisabled.
	alignment Alignment

	// reassemblyBufferSize replaces the transport MTU as the chunk size limit when non-zero.
	// It is capped at 65535. Defaults to 0.
	reassemblyBufferSize int

	// upgrade asks the device to accept only images newer than the running one.
	upgrade bool

	// readParams clamps the pipeline depth to the buffers the device reports before an upload.
	// Defaults to true.
	readParams bool

	// chunkTimeout is the timeout of every chunk but the first.
	// Defaults to smp.FastTimeout.
	chunkTimeout time.Duration

	// firstChunkTimeout covers the first chunk, which makes the device erase its slot.
	// Defaults to smp.DefaultTimeout.
	firstChunkTimeout time.Duration

	progress func(Progress)
	logger   logger.Logger
}

// NewConfig creates an upload configuration with default values and applies opts.
func NewConfig(opts ...Option) (*Config, error) {
	cfg := &Config{
		pipelineDepth:     1,
		readParams:        true,
		chunkTimeout:      smp.FastTimeout,
		firstChunkTimeout: smp.DefaultTimeout,
		logger:            logger.GetLogger(),
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return cfg, err
		}
	}

	return cfg, nil
}

// PipelineDepth returns the configured pipeline depth.
func (cfg *Config) PipelineDepth() int { return cfg.pipelineDepth }

// Alignment returns the chunk alignment.
func (cfg *Config) Alignment() Alignment { return cfg.alignment }

// ReassemblyBufferSize returns the reassembly buffer size, 0 when the MTU limits chunks.
func (cfg *Config) ReassemblyBufferSize() int { return cfg.reassemblyBufferSize }

// Upgrade reports whether only upgrades are accepted.
func (cfg *Config) Upgrade() bool { return cfg.upgrade }

// Option configures a Config.
type Option interface {
	apply(*Config) error
}

type optFunc func(*Config) error

func (f optFunc) apply(cfg *Config) error {
	if cfg == nil {
		return ErrUploadConfigNil
	}

	return f(cfg)
}

// WithPipelineDepth sets the number of chunks in flight.
func WithPipelineDepth(val int) Option {
	return optFunc(func(cfg *Config) error {
		if val < 1 || val > MaxPipelineDepth {
			return fmt.Errorf("upload: pipeline depth %d out of range [1, %d]", val, MaxPipelineDepth)
		}
		cfg.pipelineDepth = val

		return nil
	})
}

// WithAlignment sets the chunk alignment.
func WithAlignment(val Alignment) Option {
	return optFunc(func(cfg *Config) error {
		if !val.valid() {
			return fmt.Errorf("upload: unsupported alignment %d", val)
		}
		cfg.alignment = val

		return nil
	})
}

// WithReassemblyBufferSize makes chunks fill val bytes instead of the MTU. Values above 65535
// are capped.
func WithReassemblyBufferSize(val int) Option {
	return optFunc(func(cfg *Config) error {
		if val < 0 {
			return fmt.Errorf("upload: negative reassembly buffer size %d", val)
		}
		cfg.reassemblyBufferSize = min(val, math.MaxUint16)

		return nil
	})
}

// WithUpgrade sets the upgrade flag of the first chunk.
func WithUpgrade(val bool) Option {
	return optFunc(func(cfg *Config) error {
		cfg.upgrade = val
		return nil
	})
}

// WithDeviceParams enables or disables reading the device buffer parameters before an upload.
func WithDeviceParams(val bool) Option {
	return optFunc(func(cfg *Config) error {
		cfg.readParams = val
		return nil
	})
}

// WithChunkTimeouts sets the timeout of the first chunk and of the following ones.
func WithChunkTimeouts(first, rest time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if first <= 0 || rest <= 0 {
			return fmt.Errorf("upload: chunk timeouts must be positive, got %v and %v", first, rest)
		}
		cfg.firstChunkTimeout = first
		cfg.chunkTimeout = rest

		return nil
	})
}

// WithProgress sets the progress callback. It runs on the callback goroutine of the Manager
// after every acknowledged chunk.
func WithProgress(fn func(Progress)) Option {
	return optFunc(func(cfg *Config) error {
		cfg.progress = fn
		return nil
	})
}

// WithLogger sets the logger. A nil logger keeps the package default logger.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(cfg *Config) error {
		if l != nil {
			cfg.logger = l
		}

		return nil
	})
}
