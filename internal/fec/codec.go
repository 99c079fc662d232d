// Package fec implements the systematic Reed-Solomon codecs used to
// protect NORM transport blocks (spec §4.1). Three interchangeable
// implementations are selected by (fecId, m): RS8 over GF(2^8) built on
// github.com/klauspost/reedsolomon, RS16 over GF(2^16) hand-rolled
// because no GF(2^16) erasure-coding library appears anywhere in the
// retrieved pack, and the legacy MDP variant which keeps RS8's algebra
// but orders its generator differently for wire compatibility with
// older NORM senders.
package fec

import "github.com/pkg/errors"

// FEC scheme identifiers, matching the wire-level fecId used in FTI.
const (
	FecIDRS8  = 2
	FecIDRS16 = 5
	FecIDMDP  = 129
)

var (
	// ErrNotInitialized is returned when Encode/Decode is called before Init.
	ErrNotInitialized = errors.New("fec: codec not initialized")
	// ErrBadErasures is returned when erasureLocs is malformed (not strictly
	// ascending, out of range, or erasureCount exceeds available parity).
	ErrBadErasures = errors.New("fec: invalid erasure location list")
	// ErrSingular is returned when the erasure pattern yields a singular
	// decoding submatrix — cannot happen for valid systematic-RS erasure
	// patterns with erasureCount <= nparity, but is checked defensively.
	ErrSingular = errors.New("fec: singular decoding matrix")
	// ErrUnknownScheme is returned by New for an unrecognized (fecId, m).
	ErrUnknownScheme = errors.New("fec: unknown (fecId, m) combination")
)

// Codec is the contract shared by every FEC scheme, mirroring the
// original NormEncoder/NormDecoder virtual-class split (see
// original_source/include/normEncoder.h) collapsed into one interface
// since every Go implementation here is always used as both roles.
type Codec interface {
	// Init allocates the generator/decoding tables for a block with k
	// source symbols, n-k parity symbols, each of vecSize bytes. Must be
	// called before any Encode/Decode.
	Init(k, nparity, vecSize int) error

	// Encode accumulates source symbol segmentID (0..k-1) into the n-k
	// parity vectors. MUST be called exactly once per source symbol in
	// strictly increasing segmentID order for a given block; parity
	// becomes valid only once every source symbol has been encoded.
	// Callers must zero-initialize parity vectors before the first call.
	Encode(segmentID int, data []byte, parity [][]byte) error

	// Decode recovers erased source symbols in place. vectors holds one
	// slice per symbol index 0..k+nparity-1; entries at erasureLocs are
	// nil on input (or stale and ignored) and are filled in on success.
	// erasureLocs must be strictly ascending and erasureCount <= nparity.
	Decode(vectors [][]byte, k int, erasureCount int, erasureLocs []int) error

	// NumData and NumParity report the block geometry passed to Init.
	NumData() int
	NumParity() int
}

// New constructs the codec implementation for the given (fecId, m).
func New(fecID, m int) (Codec, error) {
	switch {
	case fecID == FecIDRS8 && m == 8:
		return &RS8{}, nil
	case fecID == FecIDRS16 && m == 16:
		return &RS16{}, nil
	case fecID == FecIDMDP:
		return &MDP{}, nil
	default:
		return nil, errors.Wrapf(ErrUnknownScheme, "fecId=%d m=%d", fecID, m)
	}
}

func checkErasures(nparity, erasureCount int, erasureLocs []int, total int) error {
	if erasureCount > nparity {
		return errors.Wrap(ErrBadErasures, "erasureCount exceeds nparity")
	}
	if erasureCount != len(erasureLocs) {
		return errors.Wrap(ErrBadErasures, "erasureCount does not match erasureLocs length")
	}
	last := -1
	for _, loc := range erasureLocs {
		if loc <= last || loc < 0 || loc >= total {
			return errors.Wrap(ErrBadErasures, "erasureLocs not strictly ascending or out of range")
		}
		last = loc
	}
	return nil
}
