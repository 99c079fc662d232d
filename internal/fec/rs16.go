package fec

import "github.com/pkg/errors"

// RS16 is the systematic Reed-Solomon codec over GF(2^16) (fecId=5,
// m=16), valid for blocks with up to 65535 symbols. Encoding uses a
// Vandermonde generator matrix G[j][i] = alpha^(i*(j+1)); decoding
// inverts the submatrix of G rows corresponding to the parity symbols
// actually received via Gauss-Jordan elimination, exactly as spec §4.1
// describes for both RS flavors.
type RS16 struct {
	gf      *gf65536
	ndata   int
	nparity int
	vecSize int
	gen     [][]uint16 // gen[j][i], j in [0,nparity), i in [0,ndata)
}

func (c *RS16) Init(k, nparity, vecSize int) error {
	if k <= 0 || nparity <= 0 || k+nparity > 65535 {
		return errors.Errorf("fec/rs16: invalid geometry k=%d nparity=%d", k, nparity)
	}
	c.gf = getGF65536()
	c.ndata = k
	c.nparity = nparity
	c.vecSize = vecSize
	c.gen = make([][]uint16, nparity)
	for j := 0; j < nparity; j++ {
		row := make([]uint16, k)
		alphaJ := c.gf.pow(2, j+1) // alpha = generator element 2 of GF(2^16)
		for i := 0; i < k; i++ {
			row[i] = c.gf.pow(alphaJ, i)
		}
		c.gen[j] = row
	}
	return nil
}

func (c *RS16) NumData() int   { return c.ndata }
func (c *RS16) NumParity() int { return c.nparity }

func (c *RS16) Encode(segmentID int, data []byte, parity [][]byte) error {
	if c.gf == nil {
		return ErrNotInitialized
	}
	if segmentID < 0 || segmentID >= c.ndata {
		return errors.Errorf("fec/rs16: segmentID %d out of range [0,%d)", segmentID, c.ndata)
	}
	if len(parity) != c.nparity {
		return errors.Errorf("fec/rs16: expected %d parity vectors, got %d", c.nparity, len(parity))
	}
	v := pad(data, c.vecSize)
	for j := 0; j < c.nparity; j++ {
		c.gf.mulVecXOR(parity[j], v, c.gen[j][segmentID])
	}
	return nil
}

func (c *RS16) Decode(vectors [][]byte, k int, erasureCount int, erasureLocs []int) error {
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
		return nil // only parity symbols missing; nothing to recover
	}

	// Collect enough surviving parity rows to form a square system.
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
	a := make([][]uint16, n)
	for r := 0; r < n; r++ {
		a[r] = make([]uint16, n)
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
			coeff := c.gen[rows[r]][i]
			c.gf.mulVecXOR(acc, pad(vectors[i], c.vecSize), coeff)
		}
		rhs[r] = acc
	}

	inv, err := gf65536Invert(c.gf, a)
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

// gf65536Invert inverts a square matrix over GF(2^16) via Gauss-Jordan
// elimination with partial pivoting, returning ErrSingular if the
// matrix has no inverse (should not occur for valid RS erasure
// patterns, checked defensively per spec §4.1 failure modes).
func gf65536Invert(gf *gf65536, m [][]uint16) ([][]uint16, error) {
	n := len(m)
	aug := make([][]uint16, n)
	for i := 0; i < n; i++ {
		row := make([]uint16, 2*n)
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
	out := make([][]uint16, n)
	for i := 0; i < n; i++ {
		out[i] = aug[i][n:]
	}
	return out, nil
}
