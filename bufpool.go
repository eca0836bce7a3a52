// Copyright (C) 2024 Basalt Labs, Inc.
// See LICENSE for copying information.

package crscode

import (
	"sync"
	"sync/atomic"

	"storj.io/common/sync2/race2"
)

const globalBufSize = 32 * 1024

var globalPool = sync.Pool{New: func() any { return new([globalBufSize]byte) }}

// A ShardPool hands out reference-counted, stripe-aligned buffers and
// groups them, K()+M() at a time, into the exact shard sets a Coder's
// Encode and Decode consume. Callers driving many Encode/Decode calls
// back to back for one Coder use it instead of allocating k+m fresh
// []byte slices per call.
type ShardPool struct {
	coder   *Coder
	bufSize int
}

// NewShardPool creates a ShardPool for coder, with each shard buffer
// sized to the largest whole multiple of StripeSize that fits in the
// pool's underlying 32KiB allocation.
func NewShardPool(coder *Coder) *ShardPool {
	return &ShardPool{
		coder:   coder,
		bufSize: (globalBufSize / StripeSize) * StripeSize,
	}
}

// Size returns the per-shard buffer size used by this pool.
func (p *ShardPool) Size() int { return p.bufSize }

// GetAndClaim returns a ShardSet of coder.K()+coder.M() freshly claimed
// buffers, ready to pass to Coder.EncodeShards or Coder.DecodeShards.
func (p *ShardPool) GetAndClaim() *ShardSet {
	bufs := make([]*shardBuf, p.coder.K()+p.coder.M())
	for i := range bufs {
		b := &shardBuf{
			slice:   globalPool.Get().(*[globalBufSize]byte),
			bufSize: p.bufSize,
		}
		b.refCount.Store(1)
		bufs[i] = b
	}
	return &ShardSet{coder: p.coder, bufs: bufs}
}

// A ShardSet is a claimed, reference-counted group of k+m pooled shard
// buffers for one Coder: indices [0, K()) back the data shards, indices
// [K(), K()+M()) back the code shards.
type ShardSet struct {
	coder *Coder
	bufs  []*shardBuf
}

// Data returns the data-shard slices of this set, suitable as the
// data argument to Coder.Encode or Coder.Decode.
func (s *ShardSet) Data() [][]byte {
	out := make([][]byte, s.coder.K())
	for i := range out {
		out[i] = s.bufs[i].slice[:s.bufs[i].bufSize]
	}
	return out
}

// Code returns the code-shard slices of this set, suitable as the
// code argument to Coder.Encode or Coder.Decode.
func (s *ShardSet) Code() [][]byte {
	out := make([][]byte, s.coder.M())
	for i := range out {
		out[i] = s.bufs[s.coder.K()+i].slice[:s.bufs[s.coder.K()+i].bufSize]
	}
	return out
}

// Size returns the size, in bytes, of each shard in this set: the
// size argument Coder.Encode/Decode expect.
func (s *ShardSet) Size() int {
	if len(s.bufs) == 0 {
		return 0
	}
	return s.bufs[0].bufSize
}

// Claim adds 1 to every buffer's reference count, returning false
// without changing any count if any buffer in the set was no longer
// claimable. See Release.
func (s *ShardSet) Claim() bool {
	claimed := 0
	for _, b := range s.bufs {
		if !b.claim() {
			break
		}
		claimed++
	}
	if claimed != len(s.bufs) {
		for _, b := range s.bufs[:claimed] {
			b.release()
		}
		return false
	}
	return true
}

// Release releases every buffer in the set, returning each to the
// pool once its individual reference count hits zero.
func (s *ShardSet) Release() {
	for _, b := range s.bufs {
		b.release()
	}
}

// shardBuf is one pooled, reference-counted backing buffer.
type shardBuf struct {
	slice    *[globalBufSize]byte
	bufSize  int
	refCount atomic.Int32
}

func (b *shardBuf) claim() bool {
	for {
		val := b.refCount.Load()
		if val <= 0 {
			return false
		}
		if b.refCount.CompareAndSwap(val, val+1) {
			return true
		}
	}
}

func (b *shardBuf) release() {
	res := b.refCount.Add(-1)
	if res <= 0 {
		if res < 0 {
			panic("extra release")
		}
		race2.WriteSlice(b.slice[:])
		globalPool.Put(b.slice)
	}
}

// EncodeShards runs Encode over a ShardSet claimed from a ShardPool
// built for this Coder, reading the set's shape and size directly from
// the set instead of requiring the caller to re-assemble data/code
// slices by hand.
func (c *Coder) EncodeShards(s *ShardSet) error {
	return c.Encode(s.Data(), s.Code(), s.Size())
}

// DecodeShards runs Decode over a ShardSet claimed from a ShardPool
// built for this Coder.
func (c *Coder) DecodeShards(erased []bool, s *ShardSet) error {
	return c.Decode(erased, s.Data(), s.Code(), s.Size())
}
