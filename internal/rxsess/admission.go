package rxsess

import (
	"github.com/pkg/errors"

	"github.com/normproto/norm/internal/fec"
	"github.com/normproto/norm/internal/object"
	"github.com/normproto/norm/internal/pool"
	"github.com/normproto/norm/internal/wire"
)

// ErrFtiUnknown is returned by Admit when an object's FEC Object
// Transmission Information has not yet arrived; the caller should
// hold the triggering DATA message pending and schedule a NACK(INFO)
// (spec §4.6.2).
var ErrFtiUnknown = errors.New("rxsess: FTI not yet known for object")

// BufferShared holds the per-node block/segment/retrieval pools and
// FEC decoder allocated once FTI is known, shared across every object
// this remote sender has open (spec §4.6.2).
type BufferShared struct {
	Codec     fec.Codec
	BlockPool *pool.Pool[*object.Block]
	SegPool   *pool.SegmentPool
}

// NewBufferShared allocates the shared per-sender buffer pools sized
// from FTI and the configured receive-buffer budget.
func NewBufferShared(fti wire.FTI, bufferBytes int) (*BufferShared, error) {
	codec, err := fec.New(int(fti.FecID), int(fti.M))
	if err != nil {
		return nil, err
	}
	if err := codec.Init(int(fti.BlockLen), int(fti.NumParity), int(fti.SegmentSize)); err != nil {
		return nil, err
	}
	blockCount := pool.ComputeBlockCount(bufferBytes, int(fti.NumParity), int(fti.SegmentSize), 0)
	segCount := pool.ComputeSegmentCount(blockCount, int(fti.NumParity))
	bp := pool.New[*object.Block](blockCount)
	bp.Prime(func() *object.Block { return object.NewBlock(0, 0, 0) })
	sp := pool.NewSegmentPool(segCount, int(fti.SegmentSize))
	return &BufferShared{Codec: codec, BlockPool: bp, SegPool: sp}, nil
}

// Admit opens a receiver-side Object once its FTI and first message
// are known, wiring it to the node's shared buffers.
func Admit(id wire.ObjectId, typ object.Type, size uint64, fti wire.FTI, storage object.Storage, shared *BufferShared) (*object.Object, error) {
	return object.Open(object.Config{
		ID:   id,
		Role: object.RoleReceiver,
		Type: typ,
		Size: size,
		Fec: object.FecParams{
			FecID: fti.FecID, M: fti.M,
			Ndata: int(fti.BlockLen), Nparity: int(fti.NumParity), SegSize: int(fti.SegmentSize),
		},
		Storage: storage,
	}, shared.Codec, shared.BlockPool, shared.SegPool)
}
