package batch

import (
	"errors"
	"fmt"
)

// ErrInvalidBatchSize is returned when the batch size is not positive
var ErrInvalidBatchSize = errors.New("batch size must be positive")

// Batch is a contiguous slice of the job's URL list processed against one capture context
type Batch struct {
	Index int      // Position of the batch in schedule order
	Start int      // Global index of URLs[0] in the original list
	URLs  []string // Ordered URLs owned by this batch
}

// GlobalIndex maps a position inside the batch back to the original URL list
func (b Batch) GlobalIndex(i int) int {
	return b.Start + i
}

// Schedule partitions urls into ordered batches of at most size entries.
// Batch i holds urls[i*size : (i+1)*size]; the last batch may be shorter.
// The result partitions the input exactly, so concatenating batch URLs in
// order reproduces urls. An empty list yields no batches.
func Schedule(urls []string, size int) ([]Batch, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidBatchSize, size)
	}

	batches := make([]Batch, 0, Count(len(urls), size))
	for start := 0; start < len(urls); start += size {
		end := min(start+size, len(urls))

		// Copy so callers can't mutate the job's URL list through a batch
		group := make([]string, end-start)
		copy(group, urls[start:end])

		batches = append(batches, Batch{
			Index: len(batches),
			Start: start,
			URLs:  group,
		})
	}

	return batches, nil
}

// Count returns the number of batches Schedule produces for n URLs
func Count(n, size int) int {
	if size <= 0 || n <= 0 {
		return 0
	}
	return (n + size - 1) / size
}

// Flatten concatenates batch URLs in schedule order
func Flatten(batches []Batch) []string {
	total := 0
	for _, b := range batches {
		total += len(b.URLs)
	}

	urls := make([]string, 0, total)
	for _, b := range batches {
		urls = append(urls, b.URLs...)
	}
	return urls
}
