package wire

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// RepairForm selects how a RepairRequest's item list is interpreted
// (spec §4.2).
type RepairForm byte

const (
	RepairItems    RepairForm = 1
	RepairRanges   RepairForm = 2
	RepairErasures RepairForm = 3
)

// RepairFlags scope a repair request to a level of the object hierarchy.
type RepairFlags byte

const (
	RepairSegment RepairFlags = 1 << 0
	RepairBlock   RepairFlags = 1 << 1
	RepairObject  RepairFlags = 1 << 2
	RepairInfo    RepairFlags = 1 << 3
)

// RepairItem is one (object, block, symbol) repair endpoint.
type RepairItem struct {
	ObjectId ObjectId
	BlockId  BlockId
	BlockLen uint16
	SymbolId SymbolId
}

const repairItemLen = 10 // objectId(2) + blockId(4) + blockLen(2) + symbolId(2)

// RepairRequest is one contiguous run of repair items sharing a form and
// flags (spec §4.2 "Repair requests").
type RepairRequest struct {
	Form  RepairForm
	Flags RepairFlags
	Items []RepairItem
}

// Encode packs the request as {form, flags, count, items...}.
func (r RepairRequest) Encode() []byte {
	out := make([]byte, 4, 4+len(r.Items)*repairItemLen)
	out[0] = byte(r.Form)
	out[1] = byte(r.Flags)
	binary.BigEndian.PutUint16(out[2:4], uint16(len(r.Items)))
	for _, it := range r.Items {
		var buf [repairItemLen]byte
		binary.BigEndian.PutUint16(buf[0:2], uint16(it.ObjectId))
		binary.BigEndian.PutUint32(buf[2:6], uint32(it.BlockId))
		binary.BigEndian.PutUint16(buf[6:8], it.BlockLen)
		binary.BigEndian.PutUint16(buf[8:10], uint16(it.SymbolId))
		out = append(out, buf[:]...)
	}
	return out
}

// DecodeRepairRequest parses one RepairRequest starting at b, returning
// it and the number of bytes consumed. Parse progress is strictly
// monotonic: a malformed count cannot cause a zero-length advance.
func DecodeRepairRequest(b []byte) (RepairRequest, int, error) {
	if len(b) < 4 {
		return RepairRequest{}, 0, ErrTruncated
	}
	form := RepairForm(b[0])
	flags := RepairFlags(b[1])
	count := int(binary.BigEndian.Uint16(b[2:4]))
	need := 4 + count*repairItemLen
	if need > len(b) {
		return RepairRequest{}, 0, ErrTruncated
	}
	items := make([]RepairItem, count)
	off := 4
	for i := 0; i < count; i++ {
		it := b[off : off+repairItemLen]
		items[i] = RepairItem{
			ObjectId: ObjectId(binary.BigEndian.Uint16(it[0:2])),
			BlockId:  BlockId(binary.BigEndian.Uint32(it[2:6])),
			BlockLen: binary.BigEndian.Uint16(it[6:8]),
			SymbolId: SymbolId(binary.BigEndian.Uint16(it[8:10])),
		}
		off += repairItemLen
	}
	return RepairRequest{Form: form, Flags: flags, Items: items}, need, nil
}

// DecodeRepairRequests parses a back-to-back sequence of RepairRequest
// records filling the whole of b.
func DecodeRepairRequests(b []byte) ([]RepairRequest, error) {
	var out []RepairRequest
	for len(b) > 0 {
		req, n, err := DecodeRepairRequest(b)
		if err != nil {
			return nil, err
		}
		if n <= 0 {
			return nil, errors.New("wire: repair request parser made no progress")
		}
		out = append(out, req)
		b = b[n:]
	}
	return out, nil
}

// EncodeRepairRequests packs a sequence of requests back to back.
func EncodeRepairRequests(reqs []RepairRequest) []byte {
	var out []byte
	for _, r := range reqs {
		out = append(out, r.Encode()...)
	}
	return out
}

// Endpoint is a decoded (object, block, symbol) position yielded while
// walking a RepairRequest's items, expanding RANGES pairs into their
// implied endpoints.
type Endpoint struct {
	ObjectId ObjectId
	BlockId  BlockId
	BlockLen uint16
	SymbolId SymbolId
}

// Endpoints expands a RepairRequest into the individual endpoints it
// denotes: ITEMS yields one endpoint per item; RANGES pairs successive
// items as inclusive [lo,hi] and yields both bounds (the caller walks
// the inclusive interval between them); ERASURES yields items verbatim
// (unused by this implementation's senders/receivers, per spec §4.6.3,
// but still decodable for wire compatibility).
func (r RepairRequest) Endpoints() []Endpoint {
	eps := make([]Endpoint, 0, len(r.Items))
	for _, it := range r.Items {
		eps = append(eps, Endpoint{it.ObjectId, it.BlockId, it.BlockLen, it.SymbolId})
	}
	return eps
}

// CoalesceItems builds the smallest RepairRequest item encoding for a
// strictly increasing run of symbol ids within one (object,block):
// 1-2 consecutive ids use ITEMS, 3+ use a single RANGES pair (spec
// §4.6.3).
func CoalesceItems(objID ObjectId, blkID BlockId, blockLen uint16, ids []SymbolId) RepairRequest {
	if len(ids) >= 3 {
		lo, hi := ids[0], ids[len(ids)-1]
		return RepairRequest{
			Form:  RepairRanges,
			Flags: RepairSegment,
			Items: []RepairItem{
				{objID, blkID, blockLen, lo},
				{objID, blkID, blockLen, hi},
			},
		}
	}
	items := make([]RepairItem, len(ids))
	for i, id := range ids {
		items[i] = RepairItem{objID, blkID, blockLen, id}
	}
	return RepairRequest{Form: RepairItems, Flags: RepairSegment, Items: items}
}
