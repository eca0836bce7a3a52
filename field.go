// Copyright (C) 2024 Basalt Labs, Inc.
// See LICENSE for copying information.

package crscode

// FieldWidth is the number of bits per field element, sometimes called
// w. This codec only ever operates over GF(2^8); wider fields are out
// of scope.
const FieldWidth = 8

// fieldSize is the number of elements in GF(2^8).
const fieldSize = 1 << FieldWidth

// primPoly is the primitive polynomial used to build GF(2^8), 0o435 in
// the original notation, 285 decimal.
const primPoly = 0435

// Field implements multiply and divide over GF(2^8) using precomputed
// log/antilog tables. A Field is built once and is immutable afterward;
// its zero value is not usable, use NewField.
type Field struct {
	mul [fieldSize * fieldSize]byte
	div [fieldSize * fieldSize]int16
}

// NewField builds the GF(2^8) log/antilog tables and the derived
// multiply/divide tables. The result is immutable and safe for
// concurrent use by any number of goroutines.
func NewField() *Field {
	var log [fieldSize]int
	var antilog [fieldSize]int
	for i := range log {
		log[i] = fieldSize - 1
		antilog[i] = 0
	}

	idx := 1
	for e := 0; e < fieldSize-1; e++ {
		log[idx] = e
		antilog[e] = idx
		idx <<= 1
		if idx&fieldSize != 0 {
			idx = (idx ^ primPoly) & (fieldSize - 1)
		}
	}
	antilog[fieldSize-1] = antilog[0]

	f := &Field{}
	for x := 0; x < fieldSize; x++ {
		for y := 0; y < fieldSize; y++ {
			i := x*fieldSize + y
			switch {
			case x == 0 && y == 0:
				f.mul[i] = 0
				f.div[i] = -1
			case x == 0:
				f.mul[i] = 0
				f.div[i] = 0
			case y == 0:
				f.mul[i] = 0
				f.div[i] = -1
			default:
				lx, ly := log[x], log[y]
				m := lx + ly
				if m > fieldSize-2 {
					m -= fieldSize - 1
				}
				f.mul[i] = byte(antilog[m])
				d := lx - ly
				if d < 0 {
					d += fieldSize - 1
				}
				f.div[i] = int16(antilog[d])
			}
		}
	}
	return f
}

// Multiply returns x*y in GF(2^8). x and y must be in [0, 256).
func (f *Field) Multiply(x, y int) int {
	if x == 0 || y == 0 {
		return 0
	}
	return int(f.mul[x*fieldSize+y])
}

// Divide returns x/y in GF(2^8). y must be nonzero; internal callers
// never pass y=0, since the Cauchy construction guarantees a nonzero
// denominator (see matrix.go). x and y must be in [0, 256).
func (f *Field) Divide(x, y int) int {
	v := f.div[x*fieldSize+y]
	if v < 0 {
		panic(Unreachable.New("divide by zero in GF(2^8): divisor table returned sentinel"))
	}
	return int(v)
}
