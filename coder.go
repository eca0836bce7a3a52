// Copyright (C) 2024 Basalt Labs, Inc.
// See LICENSE for copying information.

package crscode

import (
	"encoding/binary"

	"storj.io/common/sync2/race2"
)

// PacketSize is the granularity, in bytes, at which one sub-packet
// COPY/XOR operates.
const PacketSize = 4096

// StripeSize is P*FieldWidth: the number of bytes in a shard consumed
// by one pass of schedule execution. Encode and Decode only accept
// sizes that are positive multiples of StripeSize.
const StripeSize = PacketSize * FieldWidth

// Coder holds the encoding bit matrix and encoding schedule for a
// fixed (k,m) pair, built once at construction and retained
// thereafter. A Coder is immutable with respect to Encode and Decode:
// neither mutates the retained state, so a single Coder may be used
// concurrently by any number of callers, provided each call's buffers
// are disjoint from every other concurrent call's buffers.
type Coder struct {
	k, m int

	field      *Field
	encodingBM *bitMatrix
	encoding   Schedule
}

// NewCoder builds a Coder for k data shards and m code shards. k and m
// must both be positive.
func NewCoder(k, m int) (*Coder, error) {
	if err := validateKM(k, m); err != nil {
		return nil, err
	}

	field := NewField()
	mb := newMatrixBuilder(field)
	bm := mb.BuildEncodingBitMatrix(k, m)
	sched := buildSchedule(k, bm)

	return &Coder{
		k: k, m: m,
		field:      field,
		encodingBM: bm,
		encoding:   sched,
	}, nil
}

// K returns the number of data shards this Coder was built for.
func (c *Coder) K() int { return c.k }

// M returns the number of code (parity) shards this Coder was built for.
func (c *Coder) M() int { return c.m }

// validateKM checks that k and m are both positive, the precondition
// shared by NewCoder and ValidateShapes.
func validateKM(k, m int) error {
	if k <= 0 {
		return Error.New("k must be positive, got %d", k)
	}
	if m <= 0 {
		return Error.New("m must be positive, got %d", m)
	}
	return nil
}

// erasurePopcount counts the true entries in an erasure vector.
func erasurePopcount(erased []bool) int {
	n := 0
	for _, e := range erased {
		if e {
			n++
		}
	}
	return n
}

// ValidateShapes checks every precondition Encode and Decode require
// before either touches a buffer: k and m must be positive; size must be a positive
// multiple of StripeSize; there must be exactly k data and m code
// buffers, each exactly size bytes; and, when erased is non-nil (as
// Decode requires but Encode does not, so Encode callers pass nil),
// erased must have length k+m with at most m entries true. It is
// exported so a caller assembling buffers across several calls can
// fail fast once, instead of relying on Encode/Decode to repeat the
// same checks per call.
func ValidateShapes(k, m, size int, data, code [][]byte, erased []bool) error {
	if err := validateKM(k, m); err != nil {
		return err
	}
	if size <= 0 {
		return Error.New("size must be positive, got %d", size)
	}
	if size%StripeSize != 0 {
		return Error.New("size %d is not a multiple of the stripe size %d", size, StripeSize)
	}
	if len(data) != k {
		return Error.New("expected %d data buffers, got %d", k, len(data))
	}
	if len(code) != m {
		return Error.New("expected %d code buffers, got %d", m, len(code))
	}
	for i, d := range data {
		if len(d) != size {
			return Error.New("data shard %d has length %d, expected %d", i, len(d), size)
		}
	}
	for i, d := range code {
		if len(d) != size {
			return Error.New("code shard %d has length %d, expected %d", i, len(d), size)
		}
	}
	if erased != nil {
		if len(erased) != k+m {
			return Error.New("expected erasure vector of length %d, got %d", k+m, len(erased))
		}
		if n := erasurePopcount(erased); n > m {
			return Error.New("erasure count %d exceeds m=%d, unrecoverable", n, m)
		}
	}
	return nil
}

// Encode computes the m code shards from the k data shards in place,
// using the retained encoding schedule. size must be a positive
// multiple of StripeSize, and every one of the k+m buffers must be
// exactly size bytes. Data buffers are only read; code buffers are
// overwritten.
func (c *Coder) Encode(data, code [][]byte, size int) error {
	if err := ValidateShapes(c.k, c.m, size, data, code, nil); err != nil {
		return err
	}

	ptrs := make([][]byte, c.k+c.m)
	copy(ptrs, data)
	copy(ptrs[c.k:], code)

	for _, d := range data {
		race2.ReadSlice(d)
	}
	for _, d := range code {
		race2.WriteSlice(d)
	}

	mon.Counter("crscode_encode_stripes").Inc(int64(size / StripeSize))
	executeSchedule(c.encoding, ptrs, size)
	return nil
}

// Decode reconstructs every shard marked erased from the surviving
// shards, overwriting the erased buffers in place. erased must have
// length k+m; at most m entries may be true. If no entries are true,
// Decode returns immediately without touching any buffer.
func (c *Coder) Decode(erased []bool, data, code [][]byte, size int) error {
	if err := ValidateShapes(c.k, c.m, size, data, code, erased); err != nil {
		return err
	}

	erasedCount := erasurePopcount(erased)
	if erasedCount == 0 {
		return nil
	}

	for i, d := range data {
		if erased[i] {
			race2.WriteSlice(d)
		} else {
			race2.ReadSlice(d)
		}
	}
	for i, d := range code {
		if erased[c.k+i] {
			race2.WriteSlice(d)
		} else {
			race2.ReadSlice(d)
		}
	}

	plan := c.planDecode(erased, data, code)
	dm := c.buildDecodingBitMatrix(plan)
	sched := buildSchedule(c.k, dm)

	mon.Counter("crscode_decode_erasures").Inc(int64(erasedCount))
	mon.Counter("crscode_decode_stripes").Inc(int64(size / StripeSize))

	executeSchedule(sched, plan.ptrs, size)
	return nil
}

// decodePlan captures the bookkeeping Decode needs before it can build
// a decoding bit matrix: the ptr array addressed by "row id" (data rows 0..k-1
// first, then the erased shards' output slots in the same order the
// decoding bit matrix's rows address them), and the two mutual-inverse
// permutations between row id and the caller's original shard index
// ("part index").
type decodePlan struct {
	ptrs [][]byte

	// rowidToPartidx[i] for i in [0,k): the part index (0..k+m-1) that
	// supplies data row i -- itself if data shard i survived, or the
	// lowest-indexed surviving code shard substituting for it.
	// rowidToPartidx[k+s] for s in [0, numErasedData+numErasedCode):
	// the original part index that output slot s reconstructs.
	rowidToPartidx []int

	// partidxToRowid is the inverse mapping: for data part i,
	// partidxToRowid[i] is i itself (if it survived) or its output
	// slot row id k+s (if erased). For code part c, partidxToRowid[c]
	// is the data row id it substitutes for, its own output slot row id
	// if c is an erased code shard, or unused otherwise.
	partidxToRowid []int

	numErasedData, numErasedCode int
}

// planDecode builds the ptr array and the rowid/partidx permutations
// that buildDecodingBitMatrix and executeSchedule address by row id.
func (c *Coder) planDecode(erased []bool, data, code [][]byte) decodePlan {
	total := c.k + c.m
	ptrs := make([][]byte, total)
	rowidToPartidx := make([]int, total)
	partidxToRowid := make([]int, total)

	goodCodePart := c.k
	erasedSlot := c.k
	numErasedData := 0

	for i := 0; i < c.k; i++ {
		if !erased[i] {
			ptrs[i] = data[i]
			rowidToPartidx[i] = i
			partidxToRowid[i] = i
			continue
		}

		for erased[goodCodePart] {
			goodCodePart++
		}
		ptrs[i] = code[goodCodePart-c.k]
		rowidToPartidx[i] = goodCodePart
		partidxToRowid[goodCodePart] = i
		goodCodePart++

		ptrs[erasedSlot] = data[i]
		rowidToPartidx[erasedSlot] = i
		partidxToRowid[i] = erasedSlot
		erasedSlot++
		numErasedData++
	}

	numErasedCode := 0
	for i := c.k; i < total; i++ {
		if !erased[i] {
			continue
		}
		ptrs[erasedSlot] = code[i-c.k]
		rowidToPartidx[erasedSlot] = i
		partidxToRowid[i] = erasedSlot
		erasedSlot++
		numErasedCode++
	}

	return decodePlan{
		ptrs:           ptrs,
		rowidToPartidx: rowidToPartidx,
		partidxToRowid: partidxToRowid,
		numErasedData:  numErasedData,
		numErasedCode:  numErasedCode,
	}
}

// buildDecodingBitMatrix builds the ((ed+ec)*8) x (k*8) decoding bit
// matrix from the retained encoding bit matrix and the erasure
// bookkeeping in plan: one row block per erased data shard (the
// inverted survivor submatrix), followed by one row block per erased
// code shard (its encoding row, with the contribution of every erased
// data shard substituted out via the already-reconstructed rows).
func (c *Coder) buildDecodingBitMatrix(plan decodePlan) *bitMatrix {
	k, ed, ec := c.k, plan.numErasedData, plan.numErasedCode
	dm := newBitMatrix((ed+ec)*FieldWidth, k*FieldWidth)

	if ed > 0 {
		t := newBitMatrix(k*FieldWidth, k*FieldWidth)
		for i := 0; i < k; i++ {
			if plan.rowidToPartidx[i] == i {
				for j := 0; j < FieldWidth; j++ {
					t.set(i*FieldWidth+j, i*FieldWidth+j, 1)
				}
				continue
			}
			codeIdx := plan.rowidToPartidx[i] - k
			for j := 0; j < FieldWidth; j++ {
				copy(t.row(i*FieldWidth+j), c.encodingBM.row(codeIdx*FieldWidth+j))
			}
		}

		tinv := invertBitMatrix(t)

		for s := 0; s < ed; s++ {
			origDataIdx := plan.rowidToPartidx[k+s]
			for j := 0; j < FieldWidth; j++ {
				copy(dm.row(s*FieldWidth+j), tinv.row(origDataIdx*FieldWidth+j))
			}
		}
	}

	for s := 0; s < ec; s++ {
		codeIdx := plan.rowidToPartidx[k+ed+s] - k
		block := ed + s

		for j := 0; j < FieldWidth; j++ {
			copy(dm.row(block*FieldWidth+j), c.encodingBM.row(codeIdx*FieldWidth+j))
		}

		for i := 0; i < k; i++ {
			if plan.rowidToPartidx[i] == i {
				continue
			}
			for j := 0; j < FieldWidth; j++ {
				destRow := dm.row(block*FieldWidth + j)
				for col := i * FieldWidth; col < (i+1)*FieldWidth; col++ {
					destRow[col] = 0
				}
			}
		}

		for i := 0; i < k; i++ {
			if plan.rowidToPartidx[i] == i {
				continue
			}
			erasedDataSlot := plan.partidxToRowid[i] - k
			for j := 0; j < FieldWidth; j++ {
				p2 := dm.row(block*FieldWidth + j)
				for bitN := 0; bitN < FieldWidth; bitN++ {
					if c.encodingBM.at(codeIdx*FieldWidth+j, i*FieldWidth+bitN) == 0 {
						continue
					}
					p1 := dm.row(erasedDataSlot*FieldWidth + bitN)
					for col := range p2 {
						p2[col] ^= p1[col]
					}
				}
			}
		}
	}

	return dm
}

// invertBitMatrix inverts an n x n binary matrix over GF(2) using
// Gauss-Jordan elimination with row swaps for zero pivots.
// mat is consumed (left in an undefined state);
// the caller retains no use for it afterward. Panics via Unreachable
// if a column has no nonzero pivot candidate: the Cauchy construction
// guarantees every matrix this codec inverts is invertible, so this
// indicates internal corruption.
func invertBitMatrix(mat *bitMatrix) *bitMatrix {
	n := mat.rows
	inv := newBitMatrix(n, n)
	for i := 0; i < n; i++ {
		inv.set(i, i, 1)
	}

	for i := 0; i < n; i++ {
		if mat.at(i, i) == 0 {
			j := i + 1
			for ; j < n && mat.at(j, i) == 0; j++ {
			}
			if j == n {
				panic(Unreachable.New("no nonzero pivot in column %d during bit matrix inversion", i))
			}
			swapRows(mat, i, j)
			swapRows(inv, i, j)
		}

		for j := i + 1; j < n; j++ {
			if mat.at(j, i) != 0 {
				xorRowInto(mat.row(j), mat.row(i))
				xorRowInto(inv.row(j), inv.row(i))
			}
		}
	}

	for i := n - 1; i >= 0; i-- {
		for j := 0; j < i; j++ {
			if mat.at(j, i) != 0 {
				xorRowInto(mat.row(j), mat.row(i))
				xorRowInto(inv.row(j), inv.row(i))
			}
		}
	}

	return inv
}

func swapRows(b *bitMatrix, i, j int) {
	ri, rj := b.row(i), b.row(j)
	for c := range ri {
		ri[c], rj[c] = rj[c], ri[c]
	}
}

func xorRowInto(dst, src []byte) {
	for i := range dst {
		dst[i] ^= src[i]
	}
}

// executeSchedule runs sched over one StripeSize-byte stripe of ptrs
// at a time, advancing every shard pointer by StripeSize after each
// stripe, until size bytes have been consumed.
func executeSchedule(sched Schedule, ptrs [][]byte, size int) {
	for offset := 0; offset < size; offset += StripeSize {
		for _, op := range sched {
			src := ptrs[op.SrcDev][offset+op.SrcBit*PacketSize : offset+(op.SrcBit+1)*PacketSize]
			dst := ptrs[op.DstDev][offset+op.DstBit*PacketSize : offset+(op.DstBit+1)*PacketSize]
			if op.Op == OpCopy {
				copy(dst, src)
			} else {
				xorInto(dst, src)
			}
		}
	}
}

// xorInto computes dst ^= src over a PacketSize-length slice, using
// aligned 64-bit words since PacketSize is a multiple of 8.
func xorInto(dst, src []byte) {
	n := len(dst)
	i := 0
	for ; i+8 <= n; i += 8 {
		d := binary.LittleEndian.Uint64(dst[i : i+8])
		s := binary.LittleEndian.Uint64(src[i : i+8])
		binary.LittleEndian.PutUint64(dst[i:i+8], d^s)
	}
	for ; i < n; i++ {
		dst[i] ^= src[i]
	}
}
