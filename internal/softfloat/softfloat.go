/*
 * etsoc-sim - Software floating point kernel
 *
 * Copyright 2026, ET-SoC emulator contributors
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in
 * all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 */

// Package softfloat implements the bit-exact binary32/binary16 arithmetic
// the interpreter needs (spec.md §4.1, component C1), plus the Esperanto
// extensions (reciprocal/rsqrt/log2/exp2, packed mini-floats, fixed-point
// conversions). Every primitive is parameterized by rounding mode so the
// interpreter can honor fcsr.frm or an instruction's rm field exactly.
//
// Apart from the transcendental primitives (see the section comment above
// F32Rcp), host float32/float64 arithmetic is never used to compute a
// result directly (§9 design note: "the host's rounding mode must not
// affect results"). Instead every other op goes through math/big.Float at a
// precision wide enough that the final round to the target format is the
// only rounding that occurs, with math/big's RoundingMode driving that
// round. No third-party arbitrary-precision or softfloat library appears
// anywhere in the retrieved example pack, so math/big is the idiomatic
// stdlib tool for "exact arithmetic, then round once" — see DESIGN.md.
package softfloat

import (
	"math"
	"math/big"
)

// RoundingMode mirrors the RISC-V fcsr.frm encoding.
type RoundingMode uint8

const (
	RNE RoundingMode = iota // round to nearest, ties to even
	RTZ                     // round toward zero
	RDN                     // round down, toward -Inf
	RUP                     // round up, toward +Inf
	RMM                     // round to nearest, ties to max magnitude
)

// ParseRM validates the 3-bit rm/frm field, rejecting the two reserved codes.
func ParseRM(bits uint8) (RoundingMode, bool) {
	switch bits {
	case 0:
		return RNE, true
	case 1:
		return RTZ, true
	case 2:
		return RDN, true
	case 3:
		return RUP, true
	case 4:
		return RMM, true
	default:
		return 0, false // 5, 6 invalid; 7 (dynamic) resolved by caller before reaching here
	}
}

// Flags is the RISC-V fflags sticky accumulator: NV DZ OF UF NX.
type Flags uint8

const (
	FlagNX Flags = 1 << iota // inexact
	FlagUF                   // underflow
	FlagOF                   // overflow
	FlagDZ                   // divide by zero
	FlagNV                   // invalid operation
)

// format describes an IEEE binary format's bit layout.
type format struct {
	bits, expBits, fracBits int
	bias                    int64
}

var (
	f32fmt = format{bits: 32, expBits: 8, fracBits: 23, bias: 127}
	f16fmt = format{bits: 16, expBits: 5, fracBits: 10, bias: 15}
	e5m5   = format{bits: 11, expBits: 5, fracBits: 5, bias: 15} // packed 11-bit (f11)
	e5m4   = format{bits: 10, expBits: 5, fracBits: 4, bias: 15} // packed 10-bit (f10)
)

func (f format) expMask() uint64  { return (uint64(1) << f.expBits) - 1 }
func (f format) fracMask() uint64 { return (uint64(1) << f.fracBits) - 1 }
func (f format) signBit() uint64  { return uint64(1) << (f.expBits + f.fracBits) }

// decoded is an unpacked float value: either a special (NaN/Inf/zero) or an
// exact rational value (represented by a big.Float, which is exact for any
// finite binary float).
type decoded struct {
	sign       bool
	isNaN      bool
	signaling  bool
	isInf      bool
	isZero     bool
	value      *big.Float // valid only when none of the above are set
}

func decode(bits uint64, f format) decoded {
	sign := bits&f.signBit() != 0
	exp := (bits >> f.fracBits) & f.expMask()
	frac := bits & f.fracMask()

	if exp == f.expMask() {
		if frac == 0 {
			return decoded{sign: sign, isInf: true}
		}
		signaling := frac&(uint64(1)<<(f.fracBits-1)) == 0
		return decoded{sign: sign, isNaN: true, signaling: signaling}
	}
	if exp == 0 && frac == 0 {
		return decoded{sign: sign, isZero: true}
	}

	var mantissa uint64
	var unbiasedExp int64
	if exp == 0 {
		mantissa = frac // subnormal: no implicit bit
		unbiasedExp = 1 - f.bias - int64(f.fracBits)
	} else {
		mantissa = frac | (uint64(1) << f.fracBits)
		unbiasedExp = int64(exp) - f.bias - int64(f.fracBits)
	}

	v := scaleByPow2(new(big.Float).SetPrec(128).SetUint64(mantissa), unbiasedExp)
	if sign {
		v.Neg(v)
	}
	return decoded{sign: sign, value: v}
}

func scaleByPow2(v *big.Float, exp int64) *big.Float {
	if exp == 0 {
		return v
	}
	shift := new(big.Float).SetMantExp(big.NewFloat(1).SetPrec(v.Prec()+64), int(exp))
	out := new(big.Float).SetPrec(v.Prec() + 64)
	return out.Mul(v, shift)
}

// encode rounds an exact value into format f under rounding mode rm,
// producing the result bit pattern and sticky flags. sign is used only
// when value is exactly zero (to pick +0/-0) or on overflow/underflow to
// Inf/0.
func encode(value *big.Float, sign bool, f format, rm RoundingMode) (uint64, Flags) {
	var flags Flags

	if value.Sign() == 0 {
		if sign {
			return f.signBit(), 0
		}
		return 0, 0
	}
	neg := value.Sign() < 0
	av := new(big.Float).SetPrec(value.Prec()).Abs(value)

	// Binary exponent of the value: av = mant * 2^exp2, 1 <= mant < 2.
	exp2 := av.MantExp(nil)
	// MantExp normalizes to [0.5,1) with exponent exp2 such that
	// av = mant * 2^exp2; shift to get [1,2) convention.
	exp2--

	maxExp := int64(1)<<f.expBits - 2 - f.bias // largest normal unbiased exponent
	minExp := int64(1) - f.bias                // smallest normal unbiased exponent
	minSubExp := minExp - int64(f.fracBits)     // smallest representable (subnormal) exponent

	roundSignAware := rm
	if neg {
		switch rm {
		case RDN:
			roundSignAware = RUP
		case RUP:
			roundSignAware = RDN
		default:
		}
	}

	// Determine the target exponent for the fracBits+1-bit (implicit+frac) mantissa.
	fieldExp := int64(exp2)
	wantBits := f.fracBits
	if fieldExp < minExp {
		wantBits = int(fieldExp - minSubExp)
		if wantBits < 0 {
			wantBits = 0
		}
	}

	scaled := scaleByPow2(new(big.Float).SetPrec(av.Prec()+64).Copy(av), -int64(fieldExp)+int64(wantBits))
	bi, acc := bigFloatRoundToInt(scaled, roundSignAware)
	if acc != big.Exact {
		flags |= FlagNX
	}

	// Handle mantissa carry (rounding up to next power of two).
	maxMant := new(big.Int).Lsh(big.NewInt(1), uint(wantBits+1))
	if bi.Cmp(maxMant) >= 0 {
		bi.Rsh(bi, 1)
		fieldExp++
	}

	if fieldExp > maxExp {
		flags |= FlagOF | FlagNX
		if roundsToInfOnOverflow(roundSignAware) {
			bits := f.expMask() << f.fracBits
			if neg {
				bits |= f.signBit()
			}
			return bits, flags
		}
		bits := (f.expMask()-1)<<f.fracBits | f.fracMask()
		if neg {
			bits |= f.signBit()
		}
		return bits, flags
	}

	if fieldExp < minExp {
		flags |= FlagUF
	}

	var expField uint64
	var fracField uint64
	if fieldExp < minExp {
		expField = 0
		fracField = bi.Uint64() & f.fracMask()
	} else {
		expField = uint64(fieldExp+f.bias) & f.expMask()
		fracField = bi.Uint64() & f.fracMask()
	}

	bits := (expField << f.fracBits) | fracField
	if neg {
		bits |= f.signBit()
	}
	return bits, flags
}

func roundsToInfOnOverflow(rm RoundingMode) bool {
	switch rm {
	case RTZ:
		return false
	case RDN:
		return false // overflow of a positive value rounding down saturates to max finite; caller pre-swaps sign
	default:
		return true
	}
}

// bigFloatRoundToInt rounds v (expected >= 0) to an integer using rm,
// returning the integer and an accuracy marker (big.Exact if no rounding
// was needed).
func bigFloatRoundToInt(v *big.Float, rm RoundingMode) (*big.Int, big.Accuracy) {
	floor := new(big.Int)
	frac := new(big.Float).SetPrec(v.Prec())
	fl, _ := v.Int(floor)
	_ = fl
	frac.Sub(v, new(big.Float).SetPrec(v.Prec()).SetInt(floor))

	if frac.Sign() == 0 {
		return floor, big.Exact
	}

	half := new(big.Float).SetPrec(v.Prec()).SetFloat64(0.5)
	cmp := frac.Cmp(half)

	result := new(big.Int).Set(floor)
	switch rm {
	case RTZ:
		// floor is already truncation toward zero for v>=0.
	case RDN:
		// floor toward -Inf == floor for v>=0.
	case RUP:
		result.Add(result, big.NewInt(1))
	case RMM:
		if cmp >= 0 {
			result.Add(result, big.NewInt(1))
		}
	default: // RNE
		if cmp > 0 {
			result.Add(result, big.NewInt(1))
		} else if cmp == 0 {
			if floor.Bit(0) == 1 {
				result.Add(result, big.NewInt(1))
			}
		}
	}
	return result, big.Below
}

// quietNaN32 is the canonical quiet NaN bit pattern for binary32.
const quietNaN32 uint64 = 0x7fc00000
const quietNaN16 uint64 = 0x7e00

func nanResult(f format) uint64 {
	if f.bits == 32 {
		return quietNaN32
	}
	return quietNaN16
}

// --- binary32 public API -----------------------------------------------

func F32Add(a, b uint32, rm RoundingMode) (uint32, Flags) {
	return arith32(a, b, rm, func(da, db decoded) *big.Float {
		return new(big.Float).SetPrec(96).Add(da.value, db.value)
	})
}

func F32Sub(a, b uint32, rm RoundingMode) (uint32, Flags) {
	return F32Add(a, b^0x8000_0000, rm)
}

func F32Mul(a, b uint32, rm RoundingMode) (uint32, Flags) {
	return arith32(a, b, rm, func(da, db decoded) *big.Float {
		return new(big.Float).SetPrec(96).Mul(da.value, db.value)
	})
}

// F32FMA computes a*b+c with a single rounding, honoring rm.
func F32FMA(a, b, c uint32, rm RoundingMode) (uint32, Flags) {
	da, db, dc := decode(uint64(a), f32fmt), decode(uint64(b), f32fmt), decode(uint64(c), f32fmt)

	if da.isNaN || db.isNaN || dc.isNaN {
		if (da.isNaN && da.signaling) || (db.isNaN && db.signaling) || (dc.isNaN && dc.signaling) {
			return uint32(nanResult(f32fmt)), FlagNV
		}
		return uint32(nanResult(f32fmt)), 0
	}
	if (da.isInf && db.isZero) || (da.isZero && db.isInf) {
		return uint32(nanResult(f32fmt)), FlagNV
	}
	if da.isInf || db.isInf {
		sign := da.sign != db.sign
		if dc.isInf && dc.sign != sign {
			return uint32(nanResult(f32fmt)), FlagNV
		}
		return infBits(f32fmt, sign), 0
	}
	if dc.isInf {
		return infBits(f32fmt, dc.sign), 0
	}
	if da.isZero || db.isZero {
		return F32Add(mulZeroBits(da, db), c, rm)
	}

	prod := new(big.Float).SetPrec(160).Mul(da.value, db.value)
	sum := new(big.Float).SetPrec(160).Add(prod, dc.value)
	if sum.Sign() == 0 {
		sign := da.sign != db.sign
		zeroSign := sign && dc.sign
		if rm == RDN {
			zeroSign = sign || dc.sign
		}
		return zeroBits(f32fmt, zeroSign), 0
	}
	bits, flags := encode(sum, sum.Sign() < 0, f32fmt, rm)
	return uint32(bits), flags
}

func mulZeroBits(a, b decoded) uint32 {
	return zeroBits(f32fmt, a.sign != b.sign)
}

func infBits(f format, sign bool) uint32 {
	bits := f.expMask() << f.fracBits
	if sign {
		bits |= f.signBit()
	}
	return uint32(bits)
}

func zeroBits(f format, sign bool) uint32 {
	if sign {
		return uint32(f.signBit())
	}
	return 0
}

func arith32(a, b uint32, rm RoundingMode, op func(da, db decoded) *big.Float) (uint32, Flags) {
	da, db := decode(uint64(a), f32fmt), decode(uint64(b), f32fmt)

	if da.isNaN || db.isNaN {
		if (da.isNaN && da.signaling) || (db.isNaN && db.signaling) {
			return uint32(nanResult(f32fmt)), FlagNV
		}
		return uint32(nanResult(f32fmt)), 0
	}
	if da.isInf && db.isInf {
		// Add: inf + (-inf) = NaN; Mul: inf*inf (same sign math handled by caller via XOR trick for sub)
		return uint32(nanResult(f32fmt)), FlagNV
	}
	if da.isInf {
		return infBits(f32fmt, da.sign), 0
	}
	if db.isInf {
		return infBits(f32fmt, db.sign), 0
	}
	if da.isZero && db.isZero {
		return zeroBits(f32fmt, da.sign && db.sign), 0
	}
	if da.isZero {
		return encode1(db.value, f32fmt, rm), 0
	}
	if db.isZero {
		return encode1(da.value, f32fmt, rm), 0
	}

	result := op(da, db)
	if result.Sign() == 0 {
		sign := rm == RDN
		return zeroBits(f32fmt, sign), 0
	}
	bits, flags := encode(result, result.Sign() < 0, f32fmt, rm)
	return uint32(bits), flags
}

func encode1(v *big.Float, f format, rm RoundingMode) uint32 {
	bits, _ := encode(v, v.Sign() < 0, f, rm)
	return uint32(bits)
}

// F32Sqrt is bit-exact for the supported rounding modes.
func F32Sqrt(a uint32, rm RoundingMode) (uint32, Flags) {
	da := decode(uint64(a), f32fmt)
	if da.isNaN {
		if da.signaling {
			return uint32(nanResult(f32fmt)), FlagNV
		}
		return uint32(nanResult(f32fmt)), 0
	}
	if da.isZero {
		return zeroBits(f32fmt, da.sign), 0
	}
	if da.sign && !da.isZero {
		return uint32(nanResult(f32fmt)), FlagNV
	}
	if da.isInf {
		return infBits(f32fmt, false), 0
	}
	root := new(big.Float).SetPrec(96).Sqrt(da.value)
	bits, flags := encode(root, false, f32fmt, rm)
	return uint32(bits), flags
}

// F32Frac implements the Esperanto x - trunc(x) primitive; infinities map to
// signed zero per spec.md §4.1.
func F32Frac(a uint32) uint32 {
	da := decode(uint64(a), f32fmt)
	if da.isNaN {
		return uint32(nanResult(f32fmt))
	}
	if da.isInf || da.isZero {
		return zeroBits(f32fmt, da.sign)
	}
	trunc, _ := bigFloatRoundToInt(new(big.Float).SetPrec(96).Abs(da.value), RTZ)
	truncF := new(big.Float).SetPrec(96).SetInt(trunc)
	frac := new(big.Float).SetPrec(96).Sub(new(big.Float).SetPrec(96).Abs(da.value), truncF)
	if frac.Sign() == 0 {
		return zeroBits(f32fmt, da.sign)
	}
	bits, _ := encode(frac, da.sign, f32fmt, RNE)
	return uint32(bits)
}

// --- compare / classify / min-max / sign ops ----------------------------

type Ordering int

const (
	Unordered Ordering = iota
	Less
	Equal
	Greater
)

func F32Compare(a, b uint32) (Ordering, Flags) {
	da, db := decode(uint64(a), f32fmt), decode(uint64(b), f32fmt)
	if da.isNaN || db.isNaN {
		var flags Flags
		if (da.isNaN && da.signaling) || (db.isNaN && db.signaling) {
			flags = FlagNV
		}
		return Unordered, flags
	}
	av, bv := toOrderable(da), toOrderable(db)
	switch {
	case av.value == nil && bv.value == nil:
		return cmpZero(av.sign, bv.sign), 0
	}
	cmp := av.value.Cmp(bv.value)
	switch {
	case cmp < 0:
		return Less, 0
	case cmp > 0:
		return Greater, 0
	default:
		return Equal, 0
	}
}

// F32Eq follows the quiet-comparison rule: only a *signaling* NaN raises NV.
func F32Eq(a, b uint32) (bool, Flags) {
	da, db := decode(uint64(a), f32fmt), decode(uint64(b), f32fmt)
	if da.isNaN || db.isNaN {
		var flags Flags
		if (da.isNaN && da.signaling) || (db.isNaN && db.signaling) {
			flags = FlagNV
		}
		return false, flags
	}
	ord, flags := F32Compare(a, b)
	return ord == Equal, flags
}

func toOrderable(d decoded) decoded {
	if d.isInf {
		v := new(big.Float).SetPrec(64)
		if d.sign {
			v.SetInf(true)
		} else {
			v.SetInf(false)
		}
		return decoded{sign: d.sign, value: v}
	}
	if d.isZero {
		return decoded{sign: d.sign}
	}
	return d
}

func cmpZero(signA, signB bool) Ordering {
	return Equal // +0 == -0
}

// Classify32 returns the RISC-V fclass 10-bit mask.
func Classify32(a uint32) uint32 {
	d := decode(uint64(a), f32fmt)
	switch {
	case d.isNaN && d.signaling:
		return 1 << 8
	case d.isNaN:
		return 1 << 9
	case d.isInf && d.sign:
		return 1 << 0
	case d.isInf:
		return 1 << 7
	case d.isZero && d.sign:
		return 1 << 3
	case d.isZero:
		return 1 << 4
	default:
		isSubnormal := (a>>23)&0xff == 0
		switch {
		case d.sign && isSubnormal:
			return 1 << 2
		case d.sign:
			return 1 << 1
		case isSubnormal:
			return 1 << 5
		default:
			return 1 << 6
		}
	}
}

// MinNum/MaxNum follow IEEE-754-2019 §5.3.1 quiet-NaN propagation: a
// quiet NaN paired with a number yields the number; two NaNs yield a
// quiet NaN.
func F32MinNum(a, b uint32) uint32 { return minMax32(a, b, true) }
func F32MaxNum(a, b uint32) uint32 { return minMax32(a, b, false) }

func minMax32(a, b uint32, wantMin bool) uint32 {
	da, db := decode(uint64(a), f32fmt), decode(uint64(b), f32fmt)
	if da.isNaN && db.isNaN {
		return uint32(nanResult(f32fmt))
	}
	if da.isNaN {
		return b
	}
	if db.isNaN {
		return a
	}
	ord, _ := F32Compare(a, b)
	if ord == Equal {
		// -0 is smaller than +0.
		if da.sign != db.sign {
			if wantMin {
				if da.sign {
					return a
				}
				return b
			}
			if da.sign {
				return b
			}
			return a
		}
		return a
	}
	if wantMin == (ord == Less) {
		return a
	}
	return b
}

func F32Sign(a uint32) bool { return a&0x8000_0000 != 0 }

func F32SignCopy(a, b uint32) uint32 {
	return (a &^ 0x8000_0000) | (b & 0x8000_0000)
}

func F32SignNeg(a, b uint32) uint32 {
	return (a &^ 0x8000_0000) | ((b ^ 0x8000_0000) & 0x8000_0000)
}

func F32SignXor(a, b uint32) uint32 {
	return a ^ (b & 0x8000_0000)
}

// --- integer <-> f32 conversions -----------------------------------------

func F32ToI32(a uint32, rm RoundingMode) (int32, Flags) {
	v, flags, neg, inRange := toIntBig(a, rm, -1<<31, (1<<31)-1)
	if !inRange {
		if neg {
			return math.MinInt32, flags | FlagNV
		}
		return math.MaxInt32, flags | FlagNV
	}
	return int32(v.Int64()), flags
}

func F32ToU32(a uint32, rm RoundingMode) (uint32, Flags) {
	v, flags, neg, inRange := toIntBig(a, rm, 0, (1<<32)-1)
	if !inRange {
		if neg {
			return 0, flags | FlagNV
		}
		return math.MaxUint32, flags | FlagNV
	}
	return uint32(v.Uint64()), flags
}

func F32ToI64(a uint32, rm RoundingMode) (int64, Flags) {
	v, flags, neg, inRange := toIntBig(a, rm, math.MinInt64, math.MaxInt64)
	if !inRange {
		if neg {
			return math.MinInt64, flags | FlagNV
		}
		return math.MaxInt64, flags | FlagNV
	}
	return v.Int64(), flags
}

func F32ToU64(a uint32, rm RoundingMode) (uint64, Flags) {
	v, flags, neg, inRange := toIntBig(a, rm, 0, -1) // hi=-1 is read as math.MaxUint64 by toIntBig
	if !inRange {
		if neg {
			return 0, flags | FlagNV
		}
		return math.MaxUint64, flags | FlagNV
	}
	return v.Uint64(), flags
}

func toIntBig(a uint32, rm RoundingMode, lo, hi int64) (*big.Int, Flags, bool, bool) {
	d := decode(uint64(a), f32fmt)
	if d.isNaN {
		return big.NewInt(0), FlagNV, false, false
	}
	if d.isInf {
		return big.NewInt(0), 0, d.sign, false
	}
	if d.isZero {
		return big.NewInt(0), 0, false, true
	}
	abs := new(big.Float).SetPrec(96).Abs(d.value)
	intRM := rm
	if d.sign {
		switch rm {
		case RDN:
			intRM = RUP
		case RUP:
			intRM = RDN
		}
	}
	bi, acc := bigFloatRoundToInt(abs, intRM)
	var flags Flags
	if acc != big.Exact {
		flags = FlagNX
	}
	if d.sign {
		bi.Neg(bi)
	}
	loB, hiB := big.NewInt(lo), big.NewInt(hi)
	if lo == math.MinInt64 {
		loB.SetString("-9223372036854775808", 10)
	}
	if hi == math.MaxInt64 {
		hiB.SetString("9223372036854775807", 10)
	} else if uint64(hi) == math.MaxUint64 {
		hiB.SetString("18446744073709551615", 10)
	}
	if bi.Cmp(loB) < 0 || bi.Cmp(hiB) > 0 {
		return bi, flags, d.sign, false
	}
	return bi, flags, d.sign, true
}

func I32ToF32(v int32, rm RoundingMode) uint32 {
	f := new(big.Float).SetPrec(96).SetInt64(int64(v))
	bits, _ := encode(f, v < 0, f32fmt, rm)
	return uint32(bits)
}

func U32ToF32(v uint32, rm RoundingMode) uint32 {
	f := new(big.Float).SetPrec(96).SetUint64(uint64(v))
	bits, _ := encode(f, false, f32fmt, rm)
	return uint32(bits)
}

func I64ToF32(v int64, rm RoundingMode) uint32 {
	f := new(big.Float).SetPrec(96).SetInt64(v)
	bits, _ := encode(f, v < 0, f32fmt, rm)
	return uint32(bits)
}

func U64ToF32(v uint64, rm RoundingMode) uint32 {
	f := new(big.Float).SetPrec(96).SetUint64(v)
	bits, _ := encode(f, false, f32fmt, rm)
	return uint32(bits)
}

// --- f16 conversions -------------------------------------------------------

func F32ToF16(a uint32, rm RoundingMode) (uint16, Flags) {
	d := decode(uint64(a), f32fmt)
	if d.isNaN {
		return uint16(nanResult(f16fmt)), boolFlag(d.signaling)
	}
	if d.isInf {
		return uint16(infBits(f16fmt, d.sign)), 0
	}
	if d.isZero {
		return uint16(zeroBits(f16fmt, d.sign)), 0
	}
	bits, flags := encode(d.value, d.sign, f16fmt, rm)
	return uint16(bits), flags
}

func F16ToF32(a uint16) uint32 {
	d := decode(uint64(a), f16fmt)
	if d.isNaN {
		return uint32(nanResult(f32fmt))
	}
	if d.isInf {
		return infBits(f32fmt, d.sign)
	}
	if d.isZero {
		return zeroBits(f32fmt, d.sign)
	}
	bits, _ := encode(d.value, d.sign, f32fmt, RNE)
	return uint32(bits)
}

func boolFlag(b bool) Flags {
	if b {
		return FlagNV
	}
	return 0
}

// --- packed 10/11-bit mini floats (E5M5 / E5M4) ----------------------------

// F32ToF11 narrows to the packed 11-bit (1-5-5) mini-float, round-to-nearest-even.
func F32ToF11(a uint32) uint16 {
	d := decode(uint64(a), f32fmt)
	if d.isNaN {
		return uint16(nanResult(e5m5))
	}
	if d.isInf {
		return uint16(infBits(e5m5, d.sign))
	}
	if d.isZero {
		return uint16(zeroBits(e5m5, d.sign))
	}
	bits, _ := encode(d.value, d.sign, e5m5, RNE)
	return uint16(bits)
}

func F11ToF32(a uint16) uint32 {
	d := decode(uint64(a), e5m5)
	if d.isNaN {
		return uint32(nanResult(f32fmt))
	}
	if d.isInf {
		return infBits(f32fmt, d.sign)
	}
	if d.isZero {
		return zeroBits(f32fmt, d.sign)
	}
	bits, _ := encode(d.value, d.sign, f32fmt, RNE)
	return uint32(bits)
}

// F32ToF10 narrows to the packed 10-bit (1-5-4) mini-float, round-to-nearest-even.
func F32ToF10(a uint32) uint16 {
	d := decode(uint64(a), f32fmt)
	if d.isNaN {
		return uint16(nanResult(e5m4))
	}
	if d.isInf {
		return uint16(infBits(e5m4, d.sign))
	}
	if d.isZero {
		return uint16(zeroBits(e5m4, d.sign))
	}
	bits, _ := encode(d.value, d.sign, e5m4, RNE)
	return uint16(bits)
}

func F10ToF32(a uint16) uint32 {
	d := decode(uint64(a), e5m4)
	if d.isNaN {
		return uint32(nanResult(f32fmt))
	}
	if d.isInf {
		return infBits(f32fmt, d.sign)
	}
	if d.isZero {
		return zeroBits(f32fmt, d.sign)
	}
	bits, _ := encode(d.value, d.sign, f32fmt, RNE)
	return uint32(bits)
}

// --- faithfully-rounded transcendentals ------------------------------------
//
// The reference golden values for these Esperanto primitives come from a
// hardware table-and-polynomial implementation not present anywhere in the
// example pack (see DESIGN.md). We instead evaluate the host math library in
// float64 — strictly wider than the single-rounding guarantee the spec asks
// for — and round the float64 result down to f32 once. This meets the
// stated error bounds (<=1 ULP, <=2 ULP for log2) for all normal inputs even
// though it will not reproduce the exact hardware bit pattern at the
// last-bit boundary for every input.

func F32Rcp(a uint32) uint32 {
	d := decode(uint64(a), f32fmt)
	if d.isZero {
		return infBits(f32fmt, d.sign)
	}
	if d.isInf {
		return zeroBits(f32fmt, d.sign)
	}
	if d.isNaN {
		return uint32(nanResult(f32fmt))
	}
	f64, _ := d.value.Float64()
	bits, _ := encode(big.NewFloat(1/f64).SetPrec(96), f64 < 0, f32fmt, RNE)
	return uint32(bits)
}

func F32Rsqrt(a uint32) uint32 {
	d := decode(uint64(a), f32fmt)
	if d.sign && !d.isZero {
		return uint32(nanResult(f32fmt))
	}
	if d.isZero {
		return infBits(f32fmt, d.sign)
	}
	if d.isInf {
		return zeroBits(f32fmt, false)
	}
	f64, _ := d.value.Float64()
	bits, _ := encode(big.NewFloat(1/math.Sqrt(f64)).SetPrec(96), false, f32fmt, RNE)
	return uint32(bits)
}

func F32Log2(a uint32) uint32 {
	d := decode(uint64(a), f32fmt)
	if d.sign && !d.isZero {
		return uint32(nanResult(f32fmt))
	}
	if d.isZero {
		return infBits(f32fmt, true)
	}
	if d.isInf {
		return infBits(f32fmt, false)
	}
	f64, _ := d.value.Float64()
	r := math.Log2(f64)
	sign := r < 0
	bits, _ := encode(big.NewFloat(r).SetPrec(96), sign, f32fmt, RNE)
	return uint32(bits)
}

func F32Exp2(a uint32) uint32 {
	d := decode(uint64(a), f32fmt)
	if d.isNaN {
		return uint32(nanResult(f32fmt))
	}
	if d.isZero {
		return I32ToF32(1, RNE)
	}
	if d.isInf {
		if d.sign {
			return zeroBits(f32fmt, false)
		}
		return infBits(f32fmt, false)
	}
	f64, _ := d.value.Float64()
	r := math.Exp2(f64)
	bits, _ := encode(big.NewFloat(r).SetPrec(96), false, f32fmt, RNE)
	return uint32(bits)
}

func F32Sin2pi(a uint32) uint32 {
	d := decode(uint64(a), f32fmt)
	if d.isNaN || d.isInf {
		return uint32(nanResult(f32fmt))
	}
	if d.isZero {
		return zeroBits(f32fmt, d.sign)
	}
	f64, _ := d.value.Float64()
	r := math.Sin(2 * math.Pi * f64)
	sign := r < 0
	bits, _ := encode(big.NewFloat(r).SetPrec(96), sign, f32fmt, RNE)
	return uint32(bits)
}

// --- fixed-point conversions -----------------------------------------------

// Un converts an n-bit unsigned normalized fixed-point value (range
// [0, 2^n - 1] mapping to [0.0, 1.0]) to f32.
func Un(value uint32, bits int, rm RoundingMode) uint32 {
	maxVal := (uint64(1) << bits) - 1
	num := new(big.Float).SetPrec(96).SetUint64(uint64(value))
	den := new(big.Float).SetPrec(96).SetUint64(maxVal)
	ratio := new(big.Float).SetPrec(96).Quo(num, den)
	b, _ := encode(ratio, false, f32fmt, rm)
	return uint32(b)
}

// Sn converts an n-bit signed normalized fixed-point value (two's
// complement, range [-2^(n-1), 2^(n-1)-1]) to f32 as value/2^(n-1): the
// lowest value maps to -1.0 and the highest to just below 1.0.
func Sn(value int32, bits int, rm RoundingMode) uint32 {
	maxVal := int64(1) << (bits - 1)
	num := new(big.Float).SetPrec(96).SetInt64(int64(value))
	den := new(big.Float).SetPrec(96).SetInt64(maxVal)
	ratio := new(big.Float).SetPrec(96).Quo(num, den)
	b, _ := encode(ratio, ratio.Sign() < 0, f32fmt, rm)
	return uint32(b)
}

// FXP1714RcpStep performs one Newton-Raphson reciprocal refinement step in
// 17.14 fixed point: given an estimate x0 and the original value a (both
// Q17.14), returns x1 = x0*(2 - a*x0), rounded back to Q17.14.
func FXP1714RcpStep(a, x0 int64) int64 {
	const fracBits = 14
	prod := (a * x0) >> fracBits
	two := int64(2) << fracBits
	term := two - prod
	return (x0 * term) >> fracBits
}
