package model

// InputSize is the square input resolution of u2netp.
const InputSize = 320

var (
	InputShape  = []int64{1, 3, InputSize, InputSize}
	OutputShape = []int64{1, 1, InputSize, InputSize}
)

type SessionConfig struct {
	ModelPath      string
	LibraryPath    string
	IntraOpThreads int
	UseCUDA        bool
}

// IOInfo describes the tensors bound by a Session.
type IOInfo struct {
	InputName  string
	OutputName string
}

func numElements(shape []int64) int {
	n := 1
	for _, dim := range shape {
		n *= int(dim)
	}
	return n
}
