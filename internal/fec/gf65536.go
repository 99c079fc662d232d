package fec

import "sync"

// gf65536 implements GF(2^16) arithmetic with primitive polynomial
// x^16+x^12+x^3+x+1 (0x1100B), used by RS16 blocks up to 65535 symbols
// (spec §4.1: "16-bit multiplicative tables built from a fixed
// primitive polynomial"). No third-party GF(2^16) erasure-coding
// library is present anywhere in the retrieved pack (klauspost's is
// fixed to GF(2^8)), so this table is hand-built; it is built once and
// shared across all RS16 codec instances in the process.
type gf65536 struct {
	logTbl []int32  // logTbl[x] for x in [1,65535]
	expTbl []uint16 // expTbl[e] for e in [0, 2*65534]
}

const gf16Order = 65536
const gf16Prim = 0x1100B

func newGF65536() *gf65536 {
	g := &gf65536{
		logTbl: make([]int32, gf16Order),
		expTbl: make([]uint16, 2*(gf16Order-1)),
	}
	x := 1
	for i := 0; i < gf16Order-1; i++ {
		g.expTbl[i] = uint16(x)
		g.logTbl[x] = int32(i)
		x <<= 1
		if x&gf16Order != 0 {
			x ^= gf16Prim
		}
	}
	for i := gf16Order - 1; i < len(g.expTbl); i++ {
		g.expTbl[i] = g.expTbl[i-(gf16Order-1)]
	}
	return g
}

var (
	sharedGF65536     *gf65536
	sharedGF65536Once sync.Once
)

func getGF65536() *gf65536 {
	sharedGF65536Once.Do(func() {
		sharedGF65536 = newGF65536()
	})
	return sharedGF65536
}

func (g *gf65536) mul(a, b uint16) uint16 {
	if a == 0 || b == 0 {
		return 0
	}
	return g.expTbl[g.logTbl[a]+g.logTbl[b]]
}

func (g *gf65536) div(a, b uint16) uint16 {
	if a == 0 {
		return 0
	}
	return g.expTbl[(int(g.logTbl[a])-int(g.logTbl[b])+gf16Order-1)%(gf16Order-1)]
}

func (g *gf65536) inv(a uint16) uint16 {
	return g.expTbl[(gf16Order-1-int(g.logTbl[a]))%(gf16Order-1)]
}

func (g *gf65536) pow(a uint16, n int) uint16 {
	if a == 0 {
		if n == 0 {
			return 1
		}
		return 0
	}
	e := (int(g.logTbl[a]) * n) % (gf16Order - 1)
	if e < 0 {
		e += gf16Order - 1
	}
	return g.expTbl[e]
}

// mulVecXOR multiplies every 16-bit word of src by scalar c, XORing the
// result into dst. Both slices are big-endian byte vectors of 16-bit
// words (matching the wire's network byte order).
func (g *gf65536) mulVecXOR(dst, src []byte, c uint16) {
	if c == 0 {
		return
	}
	n := len(src) / 2
	for i := 0; i < n; i++ {
		sv := uint16(src[2*i])<<8 | uint16(src[2*i+1])
		if sv == 0 {
			continue
		}
		var p uint16
		if c == 1 {
			p = sv
		} else {
			p = g.mul(c, sv)
		}
		dst[2*i] ^= byte(p >> 8)
		dst[2*i+1] ^= byte(p)
	}
}
