/*
@Language: Go 1.23.4
*/

package norm

import (
	"time"

	"github.com/normproto/norm/internal/rxsess"
)

// Config bundles every session-wide parameter an embedder can set
// before opening a Session (spec §6). Each field has a package-level
// default; Option functions mutate a Config in place.
type Config struct {
	Address string
	Port    int
	Ttl     int
	NodeId  uint32

	SegmentSize int
	FecID       byte
	FecM        byte
	Ndata       int
	Nparity     int
	AutoParity  bool

	TxRateMin float64
	TxRateMax float64
	TxRate    float64

	GrttIntervalMin time.Duration
	GrttIntervalMax time.Duration
	GrttMax         time.Duration

	TxCacheCountMax int
	TxRobustFactor  int
	RxRobustFactor  int
	BackoffFactor   float64

	BufferSpaceBytes int
	BufferFactor     float64

	SyncPolicy rxsess.SyncPolicy
	Unicast    bool
	CCEnabled  bool

	TickMin      time.Duration
	ActivityMin  time.Duration
	ReportInterval time.Duration
}

// DefaultConfig returns a Config populated with NORM's conventional
// defaults (spec §6).
func DefaultConfig() Config {
	return Config{
		Port:            6003,
		Ttl:             255,
		SegmentSize:     1024,
		FecID:           2,
		FecM:            8,
		Ndata:           64,
		Nparity:         16,
		TxRateMin:       1,
		TxRateMax:       1e9,
		TxRate:          64000,
		GrttIntervalMin: 1 * time.Second,
		GrttIntervalMax: 30 * time.Second,
		GrttMax:         10 * time.Second,
		TxCacheCountMax: 256,
		TxRobustFactor:  20,
		RxRobustFactor:  20,
		BackoffFactor:   4,
		BufferSpaceBytes: 1 << 20,
		BufferFactor:    2.0,
		SyncPolicy:      rxsess.SyncCurrent,
		TickMin:         10 * time.Millisecond,
		ActivityMin:     5 * time.Second,
		ReportInterval:  10 * time.Second,
	}
}

// Option mutates a Config; callers compose them when opening a
// Session.
type Option func(*Config)

func WithAddress(addr string, port int) Option {
	return func(c *Config) { c.Address = addr; c.Port = port }
}

func WithTtl(ttl int) Option { return func(c *Config) { c.Ttl = ttl } }

func WithNodeId(id uint32) Option { return func(c *Config) { c.NodeId = id } }

func WithFec(fecID, m byte, ndata, nparity, segSize int) Option {
	return func(c *Config) {
		c.FecID, c.FecM, c.Ndata, c.Nparity, c.SegmentSize = fecID, m, ndata, nparity, segSize
	}
}

func WithTxRate(rate, min, max float64) Option {
	return func(c *Config) { c.TxRate, c.TxRateMin, c.TxRateMax = rate, min, max }
}

func WithCongestionControl(enabled bool) Option {
	return func(c *Config) { c.CCEnabled = enabled }
}

func WithRobustFactor(tx, rx int) Option {
	return func(c *Config) { c.TxRobustFactor, c.RxRobustFactor = tx, rx }
}

func WithBufferSpace(bytes int, factor float64) Option {
	return func(c *Config) { c.BufferSpaceBytes, c.BufferFactor = bytes, factor }
}

func WithSyncPolicy(p rxsess.SyncPolicy) Option {
	return func(c *Config) { c.SyncPolicy = p }
}

func WithUnicast(unicast bool) Option {
	return func(c *Config) { c.Unicast = unicast }
}

func WithGrttBounds(min, max, cap time.Duration) Option {
	return func(c *Config) { c.GrttIntervalMin, c.GrttIntervalMax, c.GrttMax = min, max, cap }
}
