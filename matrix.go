// Copyright (C) 2024 Basalt Labs, Inc.
// See LICENSE for copying information.

package crscode

// cauchyMatrix is a dense m x k matrix of GF(2^8) elements, stored
// row-major. Row-major indexing never leaks outside this file; callers
// only see the expanded bit matrix produced by bitMatrix.
type cauchyMatrix struct {
	k, m int
	vals []int // len k*m, row-major: vals[i*k+j] is row i, column j
}

func newCauchyMatrix(k, m int) *cauchyMatrix {
	return &cauchyMatrix{k: k, m: m, vals: make([]int, k*m)}
}

func (c *cauchyMatrix) at(i, j int) int { return c.vals[i*c.k+j] }
func (c *cauchyMatrix) set(i, j, v int) { c.vals[i*c.k+j] = v }

// matrixBuilder builds the Cauchy coding matrix for a given (k,m) pair
// and expands it into the bit matrix the Scheduler consumes. It caches
// the primitive-reduction bit positions used by cauchyOnes once, in its
// constructor, rather than recomputing them on every call or stashing
// them in a package-level variable shared across (k,m) pairs.
type matrixBuilder struct {
	field *Field

	// primBits holds one single-bit mask (1<<i) for each set bit of
	// prim = field.Multiply(128, 2),
	// the GF(2^8) reduction applied by cauchyOnes when doubling an element
	// whose top bit is set.
	primBits []int
}

func newMatrixBuilder(field *Field) *matrixBuilder {
	prim := field.Multiply(1<<(FieldWidth-1), 2)
	mb := &matrixBuilder{field: field}
	for i := 0; i < FieldWidth; i++ {
		if prim&(1<<i) != 0 {
			mb.primBits = append(mb.primBits, 1<<i)
		}
	}
	return mb
}

// cauchyOnes returns the number of 1-bits across all 8 columns of the
// 8x8 bit expansion of a, i.e. popcount(a) + popcount(a*2) + ... +
// popcount(a*2^7), all products taken in GF(2^8). The running value is
// maintained incrementally: doubling a field element is a left shift,
// and only needs a GF(2^8) reduction (XOR with prim) when the top bit
// was set, in which case exactly len(primBits) bit positions flip.
func (mb *matrixBuilder) cauchyOnes(a int) int {
	total := popcount(a)
	highBit := 1 << (FieldWidth - 1)
	cur := total
	for c := 1; c < FieldWidth; c++ {
		if a&highBit != 0 {
			a ^= highBit
			a <<= 1
			a ^= mb.field.Multiply(highBit, 2)
			cur--
			for _, bit := range mb.primBits {
				if a&bit != 0 {
					cur++
				} else {
					cur--
				}
			}
		} else {
			a <<= 1
		}
		total += cur
	}
	return total
}

func popcount(a int) int {
	n := 0
	for a != 0 {
		n += a & 1
		a >>= 1
	}
	return n
}

// buildCauchyMatrix forms the raw, unsparsified k x m Cauchy matrix:
// M[i][j] = 1 / (i XOR (m+j)).
func (mb *matrixBuilder) buildCauchyMatrix(k, m int) *cauchyMatrix {
	mat := newCauchyMatrix(k, m)
	for i := 0; i < m; i++ {
		for j := 0; j < k; j++ {
			mat.set(i, j, mb.field.Divide(1, i^(m+j)))
		}
	}
	return mat
}

// normalizeFirstRow rescales each column so that row 0 becomes all
// ones: row 0 of M (row k of [I_k; M]) is the first parity row, and
// scaling a column is a change of basis that does not affect
// invertibility.
func (mb *matrixBuilder) normalizeFirstRow(mat *cauchyMatrix) {
	for j := 0; j < mat.k; j++ {
		v := mat.at(0, j)
		if v == 1 {
			continue
		}
		scale := mb.field.Divide(1, v)
		for i := 0; i < mat.m; i++ {
			mat.set(i, j, mb.field.Multiply(mat.at(i, j), scale))
		}
	}
}

// sparsify minimizes the number of one-bits in each row i >= 1 of the
// bit-matrix expansion by optionally rescaling the whole row by
// 1/M[i][j] for the column j that yields the fewest bits, strictly
// improving on the row's current bit count. Ties on j are broken
// toward the smallest index.
func (mb *matrixBuilder) sparsify(mat *cauchyMatrix) {
	for i := 1; i < mat.m; i++ {
		curOnes := 0
		for j := 0; j < mat.k; j++ {
			curOnes += mb.cauchyOnes(mat.at(i, j))
		}

		bestOnes := curOnes
		bestCol := -1
		for j := 0; j < mat.k; j++ {
			v := mat.at(i, j)
			if v == 1 {
				continue
			}
			scale := mb.field.Divide(1, v)
			candOnes := 0
			for k := 0; k < mat.k; k++ {
				candOnes += mb.cauchyOnes(mb.field.Multiply(mat.at(i, k), scale))
			}
			if candOnes < bestOnes {
				bestOnes = candOnes
				bestCol = j
			}
		}

		if bestCol != -1 {
			scale := mb.field.Divide(1, mat.at(i, bestCol))
			for j := 0; j < mat.k; j++ {
				mat.set(i, j, mb.field.Multiply(mat.at(i, j), scale))
			}
		}
	}
}

// expand builds the (m*8) x (k*8) bit matrix: element M[i][j] becomes
// the 8x8 block at bit-rows [i*8, i*8+8), bit-cols [j*8, j*8+8), whose
// column c is the little-endian bit pattern of M[i][j] * 2^c.
//
// The returned matrix is row-major over bitRows = m*FieldWidth rows and
// bitCols = k*FieldWidth columns, one byte (0 or 1) per entry.
func (mb *matrixBuilder) expand(mat *cauchyMatrix) *bitMatrix {
	bitCols := mat.k * FieldWidth
	bm := newBitMatrix(mat.m*FieldWidth, bitCols)
	for i := 0; i < mat.m; i++ {
		for j := 0; j < mat.k; j++ {
			a := mat.at(i, j)
			for c := 0; c < FieldWidth; c++ {
				for n := 0; n < FieldWidth; n++ {
					bm.set(i*FieldWidth+n, j*FieldWidth+c, byte((a>>n)&1))
				}
				a = mb.field.Multiply(a, 2)
			}
		}
	}
	return bm
}

// BuildEncodingBitMatrix builds the full (m*8) x (k*8) encoding bit
// matrix for a (k,m) pair: the sparsified, row-0-normalized Cauchy
// matrix, expanded to bits.
func (mb *matrixBuilder) BuildEncodingBitMatrix(k, m int) *bitMatrix {
	mat := mb.buildCauchyMatrix(k, m)
	mb.normalizeFirstRow(mat)
	mb.sparsify(mat)
	return mb.expand(mat)
}

// bitMatrix is a dense, row-major matrix of 0/1 bytes with rows bitRows
// and cols bitCols, used both for the encoding/decoding bit matrices
// and the identity/inverse companions built during decode.
type bitMatrix struct {
	rows, cols int
	vals       []byte // len rows*cols, row-major
}

func newBitMatrix(rows, cols int) *bitMatrix {
	return &bitMatrix{rows: rows, cols: cols, vals: make([]byte, rows*cols)}
}

func (b *bitMatrix) at(i, j int) byte     { return b.vals[i*b.cols+j] }
func (b *bitMatrix) set(i, j int, v byte) { b.vals[i*b.cols+j] = v }

// row returns the backing slice for row i, from column 0 through
// cols-1. Mutating the returned slice mutates the matrix.
func (b *bitMatrix) row(i int) []byte { return b.vals[i*b.cols : (i+1)*b.cols] }
