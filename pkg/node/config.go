package node

import (
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/ryandielhenn/sudokumesh/pkg/grid"
)

// Default configuration constants
const (
	DefaultP2PPort             = 5000
	DefaultMaintenanceInterval = 10 * time.Second
	DefaultDialTimeout         = 3 * time.Second
	DefaultWriteTimeout        = 5 * time.Second
	DefaultSolveTimeout        = 2 * time.Minute
	DefaultCacheSize           = 256
	DefaultCacheTTL            = 30 * time.Minute
)

var (
	ErrInvalidPort     = errors.New("p2p port must be between 0 and 65535")
	ErrInvalidInterval = errors.New("maintenance interval must be positive")
	ErrInvalidTimeout  = errors.New("timeouts must be positive")
	ErrInvalidHandicap = errors.New("handicap must not be negative")
)

// Config holds the configuration for a node
type Config struct {
	// Host is the address advertised to peers. Empty means detect it.
	Host string
	// ListenHost is the interface the P2P listener binds to. Empty means all.
	ListenHost string
	// P2PPort is the listen port. 0 picks a free port.
	P2PPort int

	MaintenanceInterval time.Duration
	DialTimeout         time.Duration
	WriteTimeout        time.Duration
	SolveTimeout        time.Duration

	// Handicap is slept per unit check by the default verifier.
	Handicap time.Duration
	// AlwaysWorkLocally adds this node to every solve's worker set, not only
	// when it has no peers.
	AlwaysWorkLocally bool

	CacheSize int
	CacheTTL  time.Duration

	Logger   *zap.Logger
	Verifier grid.Verifier
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() Config {
	return Config{
		P2PPort:             DefaultP2PPort,
		MaintenanceInterval: DefaultMaintenanceInterval,
		DialTimeout:         DefaultDialTimeout,
		WriteTimeout:        DefaultWriteTimeout,
		SolveTimeout:        DefaultSolveTimeout,
		CacheSize:           DefaultCacheSize,
		CacheTTL:            DefaultCacheTTL,
	}
}

// Validate checks if the config is valid
func (c *Config) Validate() error {
	if c.P2PPort < 0 || c.P2PPort > 65535 {
		return ErrInvalidPort
	}
	if c.MaintenanceInterval <= 0 {
		return ErrInvalidInterval
	}
	if c.DialTimeout <= 0 || c.WriteTimeout <= 0 || c.SolveTimeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.Handicap < 0 {
		return ErrInvalidHandicap
	}
	return nil
}
