package fec

// gf256 implements GF(2^8) arithmetic with the primitive polynomial
// x^8+x^4+x^3+x^2+1 (0x11d), the field classic Reed-Solomon codecs use.
// It backs the legacy MDP codec's reversed-column generator matrix,
// which needs raw log/antilog multiply tables that
// github.com/klauspost/reedsolomon does not expose as public API (its
// field arithmetic is an implementation detail of the matrix codec we
// already use for RS8).
type gf256 struct {
	logTbl [256]int
	expTbl [512]byte
}

func newGF256() *gf256 {
	const prim = 0x11d
	g := &gf256{}
	x := 1
	for i := 0; i < 255; i++ {
		g.expTbl[i] = byte(x)
		g.logTbl[x] = i
		x <<= 1
		if x&0x100 != 0 {
			x ^= prim
		}
	}
	for i := 255; i < 512; i++ {
		g.expTbl[i] = g.expTbl[i-255]
	}
	return g
}

func (g *gf256) mul(a, b byte) byte {
	if a == 0 || b == 0 {
		return 0
	}
	return g.expTbl[g.logTbl[a]+g.logTbl[b]]
}

func (g *gf256) div(a, b byte) byte {
	if a == 0 {
		return 0
	}
	return g.expTbl[(g.logTbl[a]-g.logTbl[b]+255)%255]
}

func (g *gf256) pow(a byte, n int) byte {
	if a == 0 {
		if n == 0 {
			return 1
		}
		return 0
	}
	e := (g.logTbl[a] * n) % 255
	if e < 0 {
		e += 255
	}
	return g.expTbl[e]
}

func (g *gf256) inv(a byte) byte {
	return g.expTbl[(255-g.logTbl[a])%255]
}

// mulVecXOR multiplies every byte of src by scalar c, XORing into dst.
func (g *gf256) mulVecXOR(dst []byte, src []byte, c byte) {
	if c == 0 {
		return
	}
	if c == 1 {
		for i, v := range src {
			dst[i] ^= v
		}
		return
	}
	lc := g.logTbl[c]
	for i, v := range src {
		if v != 0 {
			dst[i] ^= g.expTbl[lc+g.logTbl[v]]
		}
	}
}

var sharedGF256 = newGF256()
