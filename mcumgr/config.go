package mcumgr

import (
	"fmt"
	"sync"
	"time"

	"github.com/arloliu/go-smp/logger"
	"github.com/arloliu/go-smp/smp"
)

// ManagerConfig represents the configuration of a Manager.
type ManagerConfig struct {
	mu sync.RWMutex

	// timeout is the request timeout used when Send is called with a zero timeout.
	// It should be between 100 milliseconds and 10 minutes.
	// Defaults to smp.DefaultTimeout.
	timeout time.Duration

	// version is the SMP version of the first request. It is updated from every response.
	// Defaults to smp.SMPv2.
	version smp.Version

	// flags is the header flags byte stamped into every request.
	// Defaults to 0.
	flags uint8

	// logger provides a logger instance for logging SMP requests and responses.
	logger logger.Logger
}

// NewManagerConfig creates a Manager configuration with default values and applies opts.
func NewManagerConfig(opts ...ManagerOption) (*ManagerConfig, error) {
	cfg := &ManagerConfig{
		timeout: smp.DefaultTimeout,
		version: smp.SMPv2,
		logger:  logger.GetLogger(),
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return cfg, err
		}
	}

	return cfg, nil
}

// Timeout returns the default request timeout.
func (cfg *ManagerConfig) Timeout() time.Duration {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	return cfg.timeout
}

// Version returns the initial SMP version.
func (cfg *ManagerConfig) Version() smp.Version {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	return cfg.version
}

// Flags returns the header flags byte.
func (cfg *ManagerConfig) Flags() uint8 {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	return cfg.flags
}

// Logger returns the configured logger.
func (cfg *ManagerConfig) Logger() logger.Logger {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	return cfg.logger
}

// Update applies runtime options to a configuration already in use.
//
// Options that can only be set at creation, such as WithLogger, are rejected.
func (cfg *ManagerConfig) Update(opts ...ManagerOption) error {
	for _, opt := range opts {
		if o, ok := opt.(*managerOptFunc); ok && !o.runtime {
			return fmt.Errorf("mcumgr: option %s cannot be changed at runtime", o.name)
		}

		cfg.mu.Lock()
		err := opt.apply(cfg)
		cfg.mu.Unlock()
		if err != nil {
			return err
		}
	}

	return nil
}

// ManagerOption configures a ManagerConfig.
type ManagerOption interface {
	apply(*ManagerConfig) error
}

type managerOptFunc struct {
	name      string
	runtime   bool
	applyFunc func(*ManagerConfig) error
}

func (o *managerOptFunc) apply(cfg *ManagerConfig) error { return o.applyFunc(cfg) }

func newManagerOptFunc(name string, runtime bool, f func(*ManagerConfig) error) *managerOptFunc {
	return &managerOptFunc{
		name:      name,
		runtime:   runtime,
		applyFunc: f,
	}
}

// WithTimeout sets the default request timeout.
// An error is returned if the timeout is outside the valid range (100ms-10m).
func WithTimeout(val time.Duration) ManagerOption {
	return newManagerOptFunc("WithTimeout", true, func(cfg *ManagerConfig) error {
		if cfg == nil {
			return ErrManagerConfigNil
		}

		if val < 100*time.Millisecond || val > 10*time.Minute {
			return fmt.Errorf("mcumgr: timeout %v out of range [100ms, 10m]", val)
		}
		cfg.timeout = val

		return nil
	})
}

// WithVersion sets the SMP version used until the first response reports the device's version.
func WithVersion(val smp.Version) ManagerOption {
	return newManagerOptFunc("WithVersion", true, func(cfg *ManagerConfig) error {
		if cfg == nil {
			return ErrManagerConfigNil
		}

		if val != smp.SMPv1 && val != smp.SMPv2 {
			return fmt.Errorf("mcumgr: unsupported SMP version %d", val)
		}
		cfg.version = val

		return nil
	})
}

// WithFlags sets the header flags byte of every request.
func WithFlags(val uint8) ManagerOption {
	return newManagerOptFunc("WithFlags", true, func(cfg *ManagerConfig) error {
		if cfg == nil {
			return ErrManagerConfigNil
		}

		cfg.flags = val

		return nil
	})
}

// WithLogger sets the logger. A nil logger keeps the package default logger.
func WithLogger(l logger.Logger) ManagerOption {
	return newManagerOptFunc("WithLogger", false, func(cfg *ManagerConfig) error {
		if cfg == nil {
			return ErrManagerConfigNil
		}

		if l != nil {
			cfg.logger = l
		}

		return nil
	})
}
