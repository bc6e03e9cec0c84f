package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strconv"
	"strings"
	"unicode"
)

const defaultHashingDimension = 256

// Hashing is a local bag-of-words embedder. Identical token sets map to identical vectors,
// so it serves offline runs and tests without a model service.
type Hashing struct {
	dimension int
}

func NewHashing(dimension int) *Hashing {
	if dimension <= 0 {
		dimension = defaultHashingDimension
	}
	return &Hashing{dimension: dimension}
}

func (h *Hashing) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tokens := Tokenize(text)
	if len(tokens) == 0 {
		return nil, ErrEmptyText
	}
	vector := make([]float32, h.dimension)
	for _, token := range tokens {
		hasher := fnv.New64a()
		_, _ = hasher.Write([]byte(token))
		sum := hasher.Sum64()
		idx := int(sum % uint64(h.dimension))
		if sum&(1<<63) != 0 {
			vector[idx] -= 1
		} else {
			vector[idx] += 1
		}
	}
	var norm float64
	for _, v := range vector {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vector, nil
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vector {
		vector[i] *= scale
	}
	return vector, nil
}

func (h *Hashing) Dimension() int {
	return h.dimension
}

func (h *Hashing) ID() string {
	return "hashing:" + strconv.Itoa(h.dimension)
}

// Tokenize lower-cases text and splits it on anything that is not a letter or digit.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
