package vecstore

// Vector backend: registers a vector_distance_cos scalar function directly
// against modernc.org/sqlite. No virtual table is registered. Adapted from
// the teacher's in-memory vec0 shim, but queries run over a plain on-disk
// "vectors" table instead of an in-memory map, so a built pack is
// actually queryable after process restart without a backfill step.

import (
	"database/sql/driver"
	"fmt"
	"math"

	sqlite "modernc.org/sqlite"
)

func init() {
	_ = sqlite.RegisterDeterministicScalarFunction("vector_distance_cos", 2, vectorDistanceCos)
}

// vectorDistanceCos computes 1 - cosine_similarity(a, b) from two
// little-endian float32 blobs. Registered as deterministic: the same
// input blobs always produce the same distance, which lets SQLite's query
// planner treat it as a pure function.
func vectorDistanceCos(ctx *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("vector_distance_cos expects 2 arguments")
	}
	a, err := decodeFloat32(args[0])
	if err != nil {
		return nil, err
	}
	b, err := decodeFloat32(args[1])
	if err != nil {
		return nil, err
	}
	if len(a) != len(b) {
		return nil, fmt.Errorf("vector_distance_cos: dimension mismatch %d vs %d", len(a), len(b))
	}

	var dot, na, nb float64
	for i := range a {
		af, bf := float64(a[i]), float64(b[i])
		dot += af * bf
		na += af * af
		nb += bf * bf
	}
	if na == 0 || nb == 0 {
		return float64(1), nil
	}
	cos := dot / (math.Sqrt(na) * math.Sqrt(nb))
	return float64(1 - cos), nil
}

func decodeFloat32(v driver.Value) ([]float32, error) {
	b, ok := v.([]byte)
	if !ok {
		return nil, fmt.Errorf("vector_distance_cos: expected blob, got %T", v)
	}
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("vector_distance_cos: blob length %d not a multiple of 4", len(b))
	}
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(uint32(b[i*4]) | uint32(b[i*4+1])<<8 | uint32(b[i*4+2])<<16 | uint32(b[i*4+3])<<24)
	}
	return out, nil
}
