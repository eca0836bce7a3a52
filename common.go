// Copyright (C) 2024 Basalt Labs, Inc.
// See LICENSE for copying information.

// Package crscode implements a systematic Cauchy Reed-Solomon erasure
// codec over GF(2^8): given k data shards it produces m parity shards
// (Encode), and can reconstruct any up to m missing shards from the
// survivors (Decode). The package is a pure, stateless transform over
// caller-owned buffers; it does no I/O, has no wire format, and keeps
// no state beyond one immutable Coder per (k,m) pair.
package crscode

import (
	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
)

var (
	// Error is the default crscode errs class, used for precondition
	// violations reported to callers as ordinary errors.
	Error = errs.Class("crscode")

	// Unreachable is the class of errors that indicate an internal
	// invariant was broken: a zero Gauss-Jordan pivot during decode
	// matrix inversion, or a GF(2^8) divide-by-zero that the Cauchy
	// construction should have made impossible. These are reported by
	// panicking; there is no way for the codec to recover from a
	// broken invariant, and no retry inside the codec makes sense.
	Unreachable = errs.Class("crscode unreachable")

	mon = monkit.Package()
)
