package protocol

import (
	"fmt"
	"math"

	"github.com/relcore/relcore/errs"
)

func floatToBits(f float64) int64 { return int64(math.Float64bits(f)) }

func bitsToFloat(b int64) float64 { return math.Float64frombits(uint64(b)) }

func stringify(v interface{}) string { return fmt.Sprintf("%v", v) }

func errUnknownValueTag(tag byte) error {
	return errs.ErrIO.New(fmt.Sprintf("unknown value tag %d on the wire", tag))
}
