package udp

import (
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/arloliu/go-smp/logger"
	"github.com/arloliu/go-smp/smp"
)

// MaxDatagramSize is the largest UDP payload.
const MaxDatagramSize = 65535

// ErrConfigNil indicates that a nil Config was provided.
var ErrConfigNil = errors.New("udp: config is nil")

// Config represents the configuration of a UDP transport.
type Config struct {
	mu sync.RWMutex

	// addr is the host:port of the device.
	addr string

	// mtu is the largest request the transport sends.
	// It should be between smp.MinMTU and smp.MaxMTU. Defaults to smp.DefaultMTU(smp.SchemeUDP).
	mtu int

	// readBufferSize is the size of the receive buffer. Responses longer than it are truncated
	// and fail to decode. Defaults to MaxDatagramSize.
	readBufferSize int

	// logger provides a logger instance for logging transport events.
	logger logger.Logger
}

// NewConfig creates a UDP transport configuration for the device at addr and applies opts.
func NewConfig(addr string, opts ...Option) (*Config, error) {
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return nil, fmt.Errorf("udp: invalid address %q: %w", addr, err)
	}

	cfg := &Config{
		addr:           addr,
		mtu:            smp.DefaultMTU(smp.SchemeUDP),
		readBufferSize: MaxDatagramSize,
		logger:         logger.GetLogger(),
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return cfg, err
		}
	}

	return cfg, nil
}

// Addr returns the device address.
func (cfg *Config) Addr() string {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	return cfg.addr
}

// MTU returns the initial MTU.
func (cfg *Config) MTU() int {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	return cfg.mtu
}

// ReadBufferSize returns the receive buffer size.
func (cfg *Config) ReadBufferSize() int {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	return cfg.readBufferSize
}

// Logger returns the configured logger.
func (cfg *Config) Logger() logger.Logger {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	return cfg.logger
}

// Option configures a Config.
type Option interface {
	apply(*Config) error
}

type optFunc struct {
	name      string
	applyFunc func(*Config) error
}

func (o *optFunc) apply(cfg *Config) error {
	if cfg == nil {
		return ErrConfigNil
	}

	if err := o.applyFunc(cfg); err != nil {
		return fmt.Errorf("udp: %s: %w", o.name, err)
	}

	return nil
}

// WithMTU sets the initial MTU.
func WithMTU(val int) Option {
	return &optFunc{name: "WithMTU", applyFunc: func(cfg *Config) error {
		if val < smp.MinMTU || val > smp.MaxMTU {
			return fmt.Errorf("%w: %d is outside of [%d, %d]", smp.ErrInvalidMTU, val, smp.MinMTU, smp.MaxMTU)
		}
		cfg.mtu = val

		return nil
	}}
}

// WithReadBufferSize sets the receive buffer size, between smp.MaxMTU and MaxDatagramSize.
func WithReadBufferSize(val int) Option {
	return &optFunc{name: "WithReadBufferSize", applyFunc: func(cfg *Config) error {
		if val < smp.MaxMTU || val > MaxDatagramSize {
			return fmt.Errorf("read buffer size %d out of range [%d, %d]", val, smp.MaxMTU, MaxDatagramSize)
		}
		cfg.readBufferSize = val

		return nil
	}}
}

// WithLogger sets the logger. A nil logger keeps the package default logger.
func WithLogger(l logger.Logger) Option {
	return &optFunc{name: "WithLogger", applyFunc: func(cfg *Config) error {
		if l != nil {
			cfg.logger = l
		}

		return nil
	}}
}
