package remote

import "errors"

// MaxIDsPerFetch is the per-call id cap of the remote fetch API.
const MaxIDsPerFetch = 10

var ErrInvalidChunkSize = errors.New("chunk size must be positive")

// Chunk splits items into consecutive groups of at most size elements.
// Chunk k holds items[k*size : (k+1)*size]; only the last may be shorter.
// An empty input yields no chunks.
func Chunk[T any](items []T, size int) ([][]T, error) {
	if size <= 0 {
		return nil, ErrInvalidChunkSize
	}
	chunks := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		chunks = append(chunks, items[start:end:end])
	}
	return chunks, nil
}
