package retriever

import "math"

// normEpsilon is the smallest vector norm treated as non-zero.
const normEpsilon = 1e-9

// CosineSimilarity returns dot(a,b)/(|a||b|). Vectors of different length
// or with a norm below normEpsilon score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}

	normA = math.Sqrt(normA)
	normB = math.Sqrt(normB)
	if normA < normEpsilon || normB < normEpsilon {
		return 0
	}
	return dot / (normA * normB)
}

// Norm returns the Euclidean length of v.
func Norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}
