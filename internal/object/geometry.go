// Package object implements the shared sender/receiver Object: FEC
// blocking geometry, per-block state, storage backings (data/file/
// stream), and the read/write paths that bridge them to the wire
// codec and FEC engine.
package object

import "github.com/normproto/norm/internal/wire"

// Geometry describes how an object's bytes are split into blocks and
// segments. Large blocks (holding one more source symbol than small
// blocks) are numbered first, matching the reference blocking scheme:
// an object's numSegments source symbols split as evenly as possible
// across numBlocks, with any remainder distributed to the first
// largeBlockCount blocks.
type Geometry struct {
	NumBlocks       int
	SmallBlockLen   int
	LargeBlockLen   int
	LargeBlockCount int
	FinalSegSize    int
	NumSegments     int
}

// ComputeGeometry derives an object's blocking geometry from its total
// byte size, the configured segment size, and the FEC block's source
// symbol count (ndata).
func ComputeGeometry(objectSize uint64, segSize, ndata int) Geometry {
	if segSize <= 0 || ndata <= 0 {
		return Geometry{}
	}
	numSegments := int((objectSize + uint64(segSize) - 1) / uint64(segSize))
	if numSegments == 0 {
		numSegments = 1
	}
	numBlocks := (numSegments + ndata - 1) / ndata
	if numBlocks == 0 {
		numBlocks = 1
	}
	small := numSegments / numBlocks
	rem := numSegments - small*numBlocks
	large := small
	largeCount := 0
	if rem > 0 {
		large = small + 1
		largeCount = rem
	}
	finalSegSize := int(objectSize - uint64(numSegments-1)*uint64(segSize))
	if finalSegSize <= 0 || finalSegSize > segSize {
		finalSegSize = segSize
	}
	return Geometry{
		NumBlocks:       numBlocks,
		SmallBlockLen:   small,
		LargeBlockLen:   large,
		LargeBlockCount: largeCount,
		FinalSegSize:    finalSegSize,
		NumSegments:     numSegments,
	}
}

// BlockLen returns the number of source symbols (ndata for this
// block, which may be less than the FEC block's configured maximum
// for the object's final, partially-filled block) held by blockId.
func (g Geometry) BlockLen(blockID wire.BlockId) int {
	idx := int(blockID)
	if idx < g.LargeBlockCount {
		return g.LargeBlockLen
	}
	return g.SmallBlockLen
}

// IsFinalBlock reports whether blockID is the object's last block.
func (g Geometry) IsFinalBlock(blockID wire.BlockId) bool {
	return int(blockID) == g.NumBlocks-1
}

// IsFinalSegment reports whether (blockID, symbolID) is the object's
// last source symbol, which may be shorter than segSize.
func (g Geometry) IsFinalSegment(blockID wire.BlockId, symbolID wire.SymbolId) bool {
	return g.IsFinalBlock(blockID) && int(symbolID) == g.BlockLen(blockID)-1
}
