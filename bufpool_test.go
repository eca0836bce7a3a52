// Copyright (C) 2024 Basalt Labs, Inc.
// See LICENSE for copying information.

package crscode

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/zeebo/assert"
)

func TestShardPoolSizeIsStripeMultiple(t *testing.T) {
	coder, err := NewCoder(8, 4)
	require.NoError(t, err)

	pool := NewShardPool(coder)
	assert.That(t, pool.Size() > 0)
	assert.That(t, pool.Size()%StripeSize == 0)
}

func TestShardSetShapeMatchesCoder(t *testing.T) {
	coder, err := NewCoder(8, 4)
	require.NoError(t, err)

	pool := NewShardPool(coder)
	set := pool.GetAndClaim()

	assert.That(t, len(set.Data()) == coder.K())
	assert.That(t, len(set.Code()) == coder.M())
	for _, d := range set.Data() {
		assert.That(t, len(d) == set.Size())
	}
	for _, d := range set.Code() {
		assert.That(t, len(d) == set.Size())
	}

	set.Release()
}

func TestShardSetClaimRelease(t *testing.T) {
	coder, err := NewCoder(8, 4)
	require.NoError(t, err)

	pool := NewShardPool(coder)
	set := pool.GetAndClaim()

	assert.That(t, set.Claim())
	set.Release()
	assert.That(t, set.Claim())
	set.Release()
	set.Release()

	assert.That(t, !set.Claim())
}

func TestEncodeDecodeShardsRoundTrip(t *testing.T) {
	coder, err := NewCoder(8, 4)
	require.NoError(t, err)

	pool := NewShardPool(coder)
	set := pool.GetAndClaim()
	defer set.Release()

	fillRandom(set.Data(), 123)

	require.NoError(t, coder.EncodeShards(set))

	original := cloneShards(append(cloneShards(set.Data()), set.Code()...))

	erased := make([]bool, coder.K()+coder.M())
	erased[1] = true
	data := set.Data()
	for i := range data[1] {
		data[1][i] = 0
	}

	require.NoError(t, coder.DecodeShards(erased, set))

	assert.That(t, string(set.Data()[1]) == string(original[1]))
}
