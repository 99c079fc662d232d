package fec

import (
	"github.com/klauspost/reedsolomon"

	"github.com/pkg/errors"
)

// RS8 is the systematic Reed-Solomon codec over GF(2^8) (fecId=2, m=8),
// valid for blocks with ndata+nparity <= 255. It is a thin adapter over
// github.com/klauspost/reedsolomon, whose Encoder.EncodeIdx method exists
// precisely for this incremental, one-symbol-at-a-time encoding pattern.
type RS8 struct {
	ndata   int
	nparity int
	vecSize int
	enc     reedsolomon.Encoder
}

func (c *RS8) Init(k, nparity, vecSize int) error {
	if k <= 0 || nparity <= 0 || k+nparity > 255 {
		return errors.Errorf("fec/rs8: invalid geometry k=%d nparity=%d (k+nparity must be <= 255)", k, nparity)
	}
	enc, err := reedsolomon.New(k, nparity)
	if err != nil {
		return errors.Wrap(err, "fec/rs8: init")
	}
	c.ndata = k
	c.nparity = nparity
	c.vecSize = vecSize
	c.enc = enc
	return nil
}

func (c *RS8) NumData() int   { return c.ndata }
func (c *RS8) NumParity() int { return c.nparity }

func (c *RS8) Encode(segmentID int, data []byte, parity [][]byte) error {
	if c.enc == nil {
		return ErrNotInitialized
	}
	if segmentID < 0 || segmentID >= c.ndata {
		return errors.Errorf("fec/rs8: segmentID %d out of range [0,%d)", segmentID, c.ndata)
	}
	if len(parity) != c.nparity {
		return errors.Errorf("fec/rs8: expected %d parity vectors, got %d", c.nparity, len(parity))
	}
	return c.enc.EncodeIdx(pad(data, c.vecSize), segmentID, parity)
}

func (c *RS8) Decode(vectors [][]byte, k int, erasureCount int, erasureLocs []int) error {
	if c.enc == nil {
		return ErrNotInitialized
	}
	if err := checkErasures(c.nparity, erasureCount, erasureLocs, c.ndata+c.nparity); err != nil {
		return err
	}
	shards := make([][]byte, len(vectors))
	copy(shards, vectors)
	for _, loc := range erasureLocs {
		shards[loc] = nil
	}
	if err := c.enc.ReconstructData(shards); err != nil {
		return errors.Wrap(ErrSingular, err.Error())
	}
	for _, loc := range erasureLocs {
		if loc < k {
			vectors[loc] = shards[loc]
		}
	}
	return nil
}

// pad returns data extended with trailing zero bytes to exactly n bytes,
// matching the final-segment zero-fill the sender performs before
// encoding (spec §3: "the last symbol of the last block may be
// shorter").
func pad(data []byte, n int) []byte {
	if len(data) >= n {
		return data[:n]
	}
	out := make([]byte, n)
	copy(out, data)
	return out
}
