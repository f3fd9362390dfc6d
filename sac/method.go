package sac

import "fmt"

// Method selects the sampling and scoring strategy of the consensus loop.
type Method string

const (
	// RANSAC maximizes the number of residuals under the threshold over
	// uniformly drawn minimal subsets.
	RANSAC Method = "ransac"
	// LMedS minimizes the median squared residual and derives its inlier
	// threshold from the median, needing no tuned threshold.
	LMedS Method = "lmeds"
	// MSAC scores with a truncated quadratic cost instead of a flat
	// inlier count.
	MSAC Method = "msac"
	// PROSAC is RANSAC with progressive sampling biased towards
	// high-quality observations.
	PROSAC Method = "prosac"
	// PROMedS is LMedS with the progressive PROSAC sampling.
	PROMedS Method = "promeds"
)

// DefaultMethod is used when no method is named.
const DefaultMethod = PROMedS

// ParseMethod maps a string onto a Method. The empty string selects
// DefaultMethod.
func ParseMethod(s string) (Method, error) {
	switch Method(s) {
	case "":
		return DefaultMethod, nil
	case RANSAC, LMedS, MSAC, PROSAC, PROMedS:
		return Method(s), nil
	default:
		return "", fmt.Errorf("unknown robust method %q", s)
	}
}

// Valid reports whether m names a supported method.
func (m Method) Valid() bool {
	switch m {
	case RANSAC, LMedS, MSAC, PROSAC, PROMedS:
		return true
	default:
		return false
	}
}

// Progressive reports whether m samples in quality order and therefore
// requires quality scores.
func (m Method) Progressive() bool {
	return m == PROSAC || m == PROMedS
}

// medianScored reports whether m scores candidates by the median squared
// residual instead of a fixed threshold.
func (m Method) medianScored() bool {
	return m == LMedS || m == PROMedS
}

// String renders the method name.
func (m Method) String() string {
	return string(m)
}
