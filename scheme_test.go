// Copyright (C) 2024 Basalt Labs, Inc.
// See LICENSE for copying information.

package crscode

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/zeebo/assert"

	"storj.io/common/memory"
	"storj.io/common/testrand"
)

func TestSchemeEncodeDecodeRoundTrip(t *testing.T) {
	coder, err := NewCoder(8, 4)
	require.NoError(t, err)
	scheme := NewScheme(coder)

	assert.That(t, scheme.TotalCount() == 12)
	assert.That(t, scheme.RequiredCount() == 8)
	assert.That(t, scheme.ErasureShareSize() == StripeSize)
	assert.That(t, scheme.StripeSize() == StripeSize*8)

	in := testrand.Bytes(memory.Size(scheme.StripeSize()))

	shares := make(map[int][]byte)
	require.NoError(t, scheme.Encode(in, func(num int, data []byte) {
		shares[num] = append([]byte(nil), data...)
	}))
	assert.That(t, len(shares) == 12)

	for i := 0; i < 8; i++ {
		assert.That(t, string(shares[i]) == string(in[i*StripeSize:(i+1)*StripeSize]))
	}

	// Drop four shares, still decodable.
	var avail []Share
	for num, data := range shares {
		if num == 1 || num == 2 || num == 9 || num == 11 {
			continue
		}
		avail = append(avail, Share{Number: num, Data: data})
	}

	out, err := scheme.Decode(nil, avail)
	require.NoError(t, err)
	assert.That(t, string(out) == string(in))
}

func TestSchemeEncodeSingleMatchesEncode(t *testing.T) {
	coder, err := NewCoder(8, 4)
	require.NoError(t, err)
	scheme := NewScheme(coder)

	in := testrand.Bytes(memory.Size(scheme.StripeSize()))

	want := make(map[int][]byte)
	require.NoError(t, scheme.Encode(in, func(num int, data []byte) {
		want[num] = append([]byte(nil), data...)
	}))

	for num := 0; num < 12; num++ {
		out := make([]byte, scheme.ErasureShareSize())
		require.NoError(t, scheme.EncodeSingle(in, out, num))
		assert.That(t, string(out) == string(want[num]))
	}
}

func TestSchemeRebuildProducesEveryShare(t *testing.T) {
	coder, err := NewCoder(8, 4)
	require.NoError(t, err)
	scheme := NewScheme(coder)

	in := testrand.Bytes(memory.Size(scheme.StripeSize()))

	all := make(map[int][]byte)
	require.NoError(t, scheme.Encode(in, func(num int, data []byte) {
		all[num] = append([]byte(nil), data...)
	}))

	var avail []Share
	for num, data := range all {
		if num == 0 || num == 10 {
			continue
		}
		avail = append(avail, Share{Number: num, Data: data})
	}

	rebuilt := make(map[int][]byte)
	require.NoError(t, scheme.Rebuild(avail, func(sh Share) {
		rebuilt[sh.Number] = sh.Data
	}))

	assert.That(t, len(rebuilt) == 12)
	for num, data := range all {
		assert.That(t, string(rebuilt[num]) == string(data))
	}
}

func TestSchemeDecodeFailsWithTooFewShares(t *testing.T) {
	coder, err := NewCoder(8, 4)
	require.NoError(t, err)
	scheme := NewScheme(coder)

	in := testrand.Bytes(memory.Size(scheme.StripeSize()))
	all := make(map[int][]byte)
	require.NoError(t, scheme.Encode(in, func(num int, data []byte) {
		all[num] = append([]byte(nil), data...)
	}))

	var avail []Share
	for num, data := range all {
		if num < 5 {
			continue // only 7 of 12 shares available, need 8
		}
		avail = append(avail, Share{Number: num, Data: data})
	}

	_, err = scheme.Decode(nil, avail)
	require.Error(t, err)
}
