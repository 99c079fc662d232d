package fec

import "github.com/pkg/errors"

// MDP is the legacy Reed-Solomon variant (fecId=129) kept for
// interoperability with older NORM senders (spec §4.1). It shares RS8's
// GF(2^8) algebra but orders the generator matrix columns in reverse,
// matching the original MDP encoder's different root ordering
// (original_source/include/normEncoderMDP.h) while staying systematic
// and MDS.
type MDP struct {
	gf      *gf256
	ndata   int
	nparity int
	vecSize int
	gen     [][]byte // gen[j][i]
}

func (c *MDP) Init(k, nparity, vecSize int) error {
	if k <= 0 || nparity <= 0 || k+nparity > 255 {
		return errors.Errorf("fec/mdp: invalid geometry k=%d nparity=%d", k, nparity)
	}
	c.gf = sharedGF256
	c.ndata = k
	c.nparity = nparity
	c.vecSize = vecSize
	c.gen = make([][]byte, nparity)
	for j := 0; j < nparity; j++ {
		row := make([]byte, k)
		alphaJ := c.gf.pow(2, j+1)
		for i := 0; i < k; i++ {
			// reverse column ordering distinguishes MDP's generator from RS8's
			row[i] = c.gf.pow(alphaJ, k-1-i)
		}
		c.gen[j] = row
	}
	return nil
}

func (c *MDP) NumData() int   { return c.ndata }
func (c *MDP) NumParity() int { return c.nparity }

func (c *MDP) Encode(segmentID int, data []byte, parity [][]byte) error {
	if c.gf == nil {
		return ErrNotInitialized
	}
	if segmentID < 0 || segmentID >= c.ndata {
		return errors.Errorf("fec/mdp: segmentID %d out of range [0,%d)", segmentID, c.ndata)
	}
	if len(parity) != c.nparity {
		return errors.Errorf("fec/mdp: expected %d parity vectors, got %d", c.nparity, len(parity))
	}
	v := pad(data, c.vecSize)
	for j := 0; j < c.nparity; j++ {
		c.gf.mulVecXOR(parity[j], v, c.gen[j][segmentID])
	}
	return nil
}

func (c *MDP) Decode(vectors [][]byte, k int, erasureCount int, erasureLocs []int) error {
	if c.gf == nil {
		return ErrNotInitialized
	}
	total := c.ndata + c.nparity
	if err := checkErasures(c.nparity, erasureCount, erasureLocs, total); err != nil {
		return err
	}
	if erasureCount == 0 {
		return nil
	}

	erased := make(map[int]bool, erasureCount)
	var erasedData []int
	for _, loc := range erasureLocs {
		erased[loc] = true
		if loc < c.ndata {
			erasedData = append(erasedData, loc)
		}
	}
	if len(erasedData) == 0 {
		return nil
	}

	var rows []int
	for j := 0; j < c.nparity && len(rows) < len(erasedData); j++ {
		if !erased[c.ndata+j] {
			rows = append(rows, j)
		}
	}
	if len(rows) < len(erasedData) {
		return errors.Wrap(ErrSingular, "not enough surviving parity symbols")
	}

	n := len(erasedData)
	a := make([][]byte, n)
	for r := 0; r < n; r++ {
		a[r] = make([]byte, n)
		for cidx := 0; cidx < n; cidx++ {
			a[r][cidx] = c.gen[rows[r]][erasedData[cidx]]
		}
	}

	rhs := make([][]byte, n)
	for r := 0; r < n; r++ {
		acc := make([]byte, c.vecSize)
		copy(acc, vectors[c.ndata+rows[r]])
		for i := 0; i < c.ndata; i++ {
			if erased[i] {
				continue
			}
			c.gf.mulVecXOR(acc, pad(vectors[i], c.vecSize), c.gen[rows[r]][i])
		}
		rhs[r] = acc
	}

	inv, err := gf256Invert(c.gf, a)
	if err != nil {
		return err
	}

	for outRow := 0; outRow < n; outRow++ {
		acc := make([]byte, c.vecSize)
		for col := 0; col < n; col++ {
			c.gf.mulVecXOR(acc, rhs[col], inv[outRow][col])
		}
		vectors[erasedData[outRow]] = acc
	}
	return nil
}

func gf256Invert(gf *gf256, m [][]byte) ([][]byte, error) {
	n := len(m)
	aug := make([][]byte, n)
	for i := 0; i < n; i++ {
		row := make([]byte, 2*n)
		copy(row, m[i])
		row[n+i] = 1
		aug[i] = row
	}
	for col := 0; col < n; col++ {
		pivot := -1
		for r := col; r < n; r++ {
			if aug[r][col] != 0 {
				pivot = r
				break
			}
		}
		if pivot < 0 {
			return nil, ErrSingular
		}
		aug[col], aug[pivot] = aug[pivot], aug[col]
		invPivot := gf.inv(aug[col][col])
		for c := 0; c < 2*n; c++ {
			if aug[col][c] != 0 {
				aug[col][c] = gf.mul(aug[col][c], invPivot)
			}
		}
		for r := 0; r < n; r++ {
			if r == col || aug[r][col] == 0 {
				continue
			}
			factor := aug[r][col]
			for c := 0; c < 2*n; c++ {
				if aug[col][c] != 0 {
					aug[r][c] ^= gf.mul(factor, aug[col][c])
				}
			}
		}
	}
	out := make([][]byte, n)
	for i := 0; i < n; i++ {
		out[i] = aug[i][n:]
	}
	return out, nil
}
