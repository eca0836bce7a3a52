// Copyright (C) 2024 Basalt Labs, Inc.
// See LICENSE for copying information.

package crscode

import (
	"testing"

	"github.com/zeebo/assert"
)

func TestNormalizeFirstRowAllOnes(t *testing.T) {
	field := NewField()
	mb := newMatrixBuilder(field)

	for _, kv := range []struct{ k, m int }{{8, 4}, {3, 2}, {16, 6}, {2, 1}} {
		mat := mb.buildCauchyMatrix(kv.k, kv.m)
		mb.normalizeFirstRow(mat)
		for j := 0; j < kv.k; j++ {
			assert.That(t, mat.at(0, j) == 1)
		}
	}
}

func TestSparsifyNeverIncreasesOnes(t *testing.T) {
	field := NewField()
	mb := newMatrixBuilder(field)

	mat := mb.buildCauchyMatrix(8, 4)
	mb.normalizeFirstRow(mat)

	before := make([]int, mat.m)
	for i := 0; i < mat.m; i++ {
		for j := 0; j < mat.k; j++ {
			before[i] += mb.cauchyOnes(mat.at(i, j))
		}
	}

	mb.sparsify(mat)

	for i := 0; i < mat.m; i++ {
		after := 0
		for j := 0; j < mat.k; j++ {
			after += mb.cauchyOnes(mat.at(i, j))
		}
		assert.That(t, after <= before[i])
	}
}

func TestCauchyOnesMatchesBruteForce(t *testing.T) {
	field := NewField()
	mb := newMatrixBuilder(field)

	for a := 0; a < fieldSize; a++ {
		want := 0
		v := a
		for c := 0; c < FieldWidth; c++ {
			want += popcount(v)
			v = field.Multiply(v, 2)
		}
		assert.That(t, mb.cauchyOnes(a) == want)
	}
}

func TestExpandBinaryValuesOnly(t *testing.T) {
	field := NewField()
	mb := newMatrixBuilder(field)
	bm := mb.BuildEncodingBitMatrix(8, 4)

	assert.That(t, bm.rows == 4*FieldWidth)
	assert.That(t, bm.cols == 8*FieldWidth)
	for _, v := range bm.vals {
		assert.That(t, v == 0 || v == 1)
	}
}

func TestExpandColumnIsPowerOfTwoMultiple(t *testing.T) {
	field := NewField()
	mb := newMatrixBuilder(field)

	mat := newCauchyMatrix(1, 1)
	mat.set(0, 0, 5)
	bm := mb.expand(mat)

	a := 5
	for c := 0; c < FieldWidth; c++ {
		for n := 0; n < FieldWidth; n++ {
			want := byte((a >> n) & 1)
			assert.That(t, bm.at(n, c) == want)
		}
		a = field.Multiply(a, 2)
	}
}

func TestBuildEncodingBitMatrixDeterministic(t *testing.T) {
	field := NewField()
	mb1 := newMatrixBuilder(field)
	mb2 := newMatrixBuilder(field)

	a := mb1.BuildEncodingBitMatrix(8, 4)
	b := mb2.BuildEncodingBitMatrix(8, 4)

	assert.That(t, len(a.vals) == len(b.vals))
	for i := range a.vals {
		assert.That(t, a.vals[i] == b.vals[i])
	}
}
