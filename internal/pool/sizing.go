package pool

// BlockOverheadBytes is the bookkeeping cost of one in-flight block
// object (state struct, pending/repair sub-masks) charged against the
// configured buffer budget, independent of its segment payloads.
const BlockOverheadBytes = 128

// ComputeBlockCount applies the sizing rule from spec §4.3: given a
// byte budget, carve out as many blocks as fit once each block's own
// bookkeeping and its nparity segment buffers (each segSize plus any
// per-segment stream header room) are charged against it. Never fewer
// than two, so a sender can always have one block draining while it
// fills the next.
func ComputeBlockCount(bufferBytes, nparity, segSize, streamHeaderBytes int) int {
	perBlock := BlockOverheadBytes + nparity*(segSize+streamHeaderBytes)
	if perBlock <= 0 {
		return 2
	}
	n := bufferBytes / perBlock
	if n < 2 {
		n = 2
	}
	return n
}

// ComputeSegmentCount returns the segment pool size that keeps every
// block in a blockCount-sized pool able to hold a full parity set at
// once (spec §4.3).
func ComputeSegmentCount(blockCount, nparity int) int {
	return blockCount * nparity
}

// ComputeReceiverBufferBytes scales a receiver's per-sender buffer
// budget by the configured over-provisioning factor (spec §4.6.2),
// which absorbs bursts and out-of-order repair arrivals beyond the
// sender's own advertised object size.
func ComputeReceiverBufferBytes(baseBytes int, bufferFactor float64) int {
	return int(float64(baseBytes) * bufferFactor)
}
