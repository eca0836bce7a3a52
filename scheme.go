// Copyright (C) 2024 Basalt Labs, Inc.
// See LICENSE for copying information.

package crscode

// ErasureScheme represents the general format of any erasure scheme
// algorithm. It is carried over from this package's lineage so code
// written against that interface can swap in this codec as a drop-in,
// whole-stripe-at-a-time implementation.
type ErasureScheme interface {
	// Encode takes one full stripe, 'in' (k*ErasureShareSize bytes),
	// and calls 'out' with every one of the k+m erasure shares: the k
	// systematic shares are slices of 'in' itself, and the m parity
	// shares are newly computed.
	Encode(in []byte, out func(num int, data []byte)) error

	// EncodeSingle fills 'out' with the erasure share for piece 'num'
	// given the full stripe 'in'. For num < k this is a plain slice of
	// 'in'; for num >= k it is recomputed directly from the retained
	// encoding bit matrix, without running the full encoding schedule.
	EncodeSingle(in, out []byte, num int) error

	// Decode takes a set of available erasure shares, 'in', and writes
	// the reconstructed stripe into 'out' from index 0 (reusing its
	// backing array when its capacity suffices, allocating otherwise),
	// returning the result. Decode
	// requires at least RequiredCount() distinct share numbers in 'in'.
	Decode(out []byte, in []Share) ([]byte, error)

	// Rebuild reconstructs every missing share (from the k+m implied
	// by the share numbers absent from 'in') and calls 'out' once per
	// share of the complete set, both originals and rebuilt ones.
	Rebuild(in []Share, out func(Share)) error

	// ErasureShareSize is the size, in bytes, of one erasure share:
	// StripeSize, the stripe width this Coder was built to process in
	// one Encode/Decode call.
	ErasureShareSize() int

	// StripeSize is the size of the stripes passed to Encode and
	// returned by Decode: ErasureShareSize() * RequiredCount().
	StripeSize() int

	// TotalCount is the number of shares Encode produces: k+m.
	TotalCount() int

	// RequiredCount is the number of shares Decode requires: k.
	RequiredCount() int
}

// A Share is one erasure-coded piece: its number in [0, k+m) and its
// ErasureShareSize()-byte payload.
type Share struct {
	Number int
	Data   []byte
}

type rsScheme struct {
	coder *Coder
}

// NewScheme adapts a Coder to the ErasureScheme interface. Each
// Encode/Decode/Rebuild call processes exactly one stripe of
// coder.K()*StripeSize bytes; callers processing a longer stream call
// it once per stripe.
func NewScheme(coder *Coder) ErasureScheme {
	return &rsScheme{coder: coder}
}

func (s *rsScheme) ErasureShareSize() int { return StripeSize }
func (s *rsScheme) StripeSize() int       { return StripeSize * s.coder.k }
func (s *rsScheme) TotalCount() int       { return s.coder.k + s.coder.m }
func (s *rsScheme) RequiredCount() int    { return s.coder.k }

func (s *rsScheme) splitStripe(in []byte) ([][]byte, error) {
	if len(in) != s.StripeSize() {
		return nil, Error.New("input has length %d, expected stripe size %d", len(in), s.StripeSize())
	}
	data := make([][]byte, s.coder.k)
	for i := range data {
		data[i] = in[i*StripeSize : (i+1)*StripeSize]
	}
	return data, nil
}

func (s *rsScheme) Encode(in []byte, out func(num int, data []byte)) error {
	data, err := s.splitStripe(in)
	if err != nil {
		return err
	}

	code := make([][]byte, s.coder.m)
	for i := range code {
		code[i] = make([]byte, StripeSize)
	}

	if err := s.coder.Encode(data, code, StripeSize); err != nil {
		return err
	}

	for i, d := range data {
		out(i, d)
	}
	for i, d := range code {
		out(s.coder.k+i, d)
	}
	return nil
}

// EncodeSingle fills out with share num's data directly from the
// retained encoding bit matrix, rather than computing every parity
// share via the full encoding schedule: this codec, unlike a
// incremental/streaming scheme, always builds its schedule for the
// complete set of m parity rows, so producing just one row from
// scratch is cheaper than running the whole schedule and discarding
// the rest.
func (s *rsScheme) EncodeSingle(in, out []byte, num int) error {
	data, err := s.splitStripe(in)
	if err != nil {
		return err
	}
	if len(out) != StripeSize {
		return Error.New("output has length %d, expected share size %d", len(out), StripeSize)
	}
	if num < 0 || num >= s.coder.k+s.coder.m {
		return Error.New("share number %d out of range [0, %d)", num, s.coder.k+s.coder.m)
	}

	if num < s.coder.k {
		copy(out, data[num])
		return nil
	}

	row := num - s.coder.k
	bm := s.coder.encodingBM
	for j := 0; j < FieldWidth; j++ {
		dst := out[j*PacketSize : (j+1)*PacketSize]
		for i := range dst {
			dst[i] = 0
		}
		bits := bm.row(row*FieldWidth + j)
		for shard := 0; shard < s.coder.k; shard++ {
			for bit := 0; bit < FieldWidth; bit++ {
				if bits[shard*FieldWidth+bit] == 0 {
					continue
				}
				xorInto(dst, data[shard][bit*PacketSize:(bit+1)*PacketSize])
			}
		}
	}
	return nil
}

// scatter rebuilds the data/code/erased arrays this Coder's Decode
// expects from a partial set of available shares.
func (s *rsScheme) scatter(in []Share) (data, code [][]byte, erased []bool, erasedCount int, err error) {
	k, m := s.coder.k, s.coder.m
	data = make([][]byte, k)
	code = make([][]byte, m)
	for i := range data {
		data[i] = make([]byte, StripeSize)
	}
	for i := range code {
		code[i] = make([]byte, StripeSize)
	}

	have := make([]bool, k+m)
	for _, sh := range in {
		if sh.Number < 0 || sh.Number >= k+m {
			return nil, nil, nil, 0, Error.New("share number %d out of range [0, %d)", sh.Number, k+m)
		}
		if len(sh.Data) != StripeSize {
			return nil, nil, nil, 0, Error.New("share %d has length %d, expected %d", sh.Number, len(sh.Data), StripeSize)
		}
		if sh.Number < k {
			copy(data[sh.Number], sh.Data)
		} else {
			copy(code[sh.Number-k], sh.Data)
		}
		have[sh.Number] = true
	}

	erased = make([]bool, k+m)
	for i, ok := range have {
		if !ok {
			erased[i] = true
			erasedCount++
		}
	}
	if erasedCount > m {
		return nil, nil, nil, 0, Error.New("only %d of %d shares available, need at least %d", k+m-erasedCount, k+m, k)
	}
	return data, code, erased, erasedCount, nil
}

func (s *rsScheme) Decode(out []byte, in []Share) ([]byte, error) {
	data, code, erased, erasedCount, err := s.scatter(in)
	if err != nil {
		return nil, err
	}
	if erasedCount > 0 {
		if err := s.coder.Decode(erased, data, code, StripeSize); err != nil {
			return nil, err
		}
	}

	expected := s.coder.k * StripeSize
	if cap(out) < expected {
		out = make([]byte, expected)
	} else {
		out = out[:expected]
	}
	for i, d := range data {
		copy(out[i*StripeSize:], d)
	}
	return out, nil
}

func (s *rsScheme) Rebuild(in []Share, out func(Share)) error {
	data, code, erased, erasedCount, err := s.scatter(in)
	if err != nil {
		return err
	}
	if erasedCount > 0 {
		if err := s.coder.Decode(erased, data, code, StripeSize); err != nil {
			return err
		}
	}

	for i, d := range data {
		out(Share{Number: i, Data: d})
	}
	for i, d := range code {
		out(Share{Number: s.coder.k + i, Data: d})
	}
	return nil
}
