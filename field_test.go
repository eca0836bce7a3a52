// Copyright (C) 2024 Basalt Labs, Inc.
// See LICENSE for copying information.

package crscode

import (
	"testing"

	"github.com/zeebo/assert"
	"github.com/zeebo/mwc"
)

func TestFieldZero(t *testing.T) {
	f := NewField()
	for x := 0; x < fieldSize; x++ {
		assert.That(t, f.Multiply(0, x) == 0)
		assert.That(t, f.Multiply(x, 0) == 0)
	}
}

func TestFieldMultiplyCommutative(t *testing.T) {
	f := NewField()
	for range 10000 {
		x, y := mwc.Intn(fieldSize), mwc.Intn(fieldSize)
		assert.That(t, f.Multiply(x, y) == f.Multiply(y, x))
	}
}

func TestFieldDivideInverse(t *testing.T) {
	f := NewField()
	for x := 1; x < fieldSize; x++ {
		for y := 1; y < fieldSize; y++ {
			assert.That(t, f.Divide(f.Multiply(x, y), y) == x)
		}
	}
}

func TestFieldDivideByOne(t *testing.T) {
	f := NewField()
	for x := 0; x < fieldSize; x++ {
		assert.That(t, f.Divide(x, 1) == x)
	}
}

func TestFieldDivideByZeroPanics(t *testing.T) {
	f := NewField()
	defer func() {
		r := recover()
		assert.That(t, r != nil)
	}()
	f.Divide(5, 0)
}

func TestFieldMultiplyAssociative(t *testing.T) {
	f := NewField()
	for range 10000 {
		x, y, z := mwc.Intn(fieldSize), mwc.Intn(fieldSize), mwc.Intn(fieldSize)
		left := f.Multiply(f.Multiply(x, y), z)
		right := f.Multiply(x, f.Multiply(y, z))
		assert.That(t, left == right)
	}
}
