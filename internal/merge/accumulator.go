package merge

import (
	"fmt"
	"maps"
	"slices"

	"go.uber.org/zap"

	"github.com/edgecomet/pdfbatch/internal/capture"
)

// Rejection is a successful capture whose document the merge primitive refused
type Rejection struct {
	Index int
	URL   string
	Err   error
}

// Merged is the serialized output document
type Merged struct {
	Document []byte
	Pages    int
	Indexes  []int // input positions that contributed pages, ascending
}

// Accumulator folds capture results into one document in global URL order.
// Results may arrive out of order; they are buffered until every earlier
// index has been seen. Failures contribute nothing.
type Accumulator struct {
	doc      Document
	next     int
	pending  map[int]capture.Result
	seen     map[int]struct{}
	appended []int
	rejected []Rejection
	logger   *zap.Logger
}

// NewAccumulator creates an accumulator writing into a fresh document from p
func NewAccumulator(p Primitive, logger *zap.Logger) *Accumulator {
	return &Accumulator{
		doc:     p.NewDocument(),
		pending: make(map[int]capture.Result),
		seen:    make(map[int]struct{}),
		logger:  logger,
	}
}

// Add records the result for the URL at index and appends every result that is
// now contiguous with what has already been merged.
func (a *Accumulator) Add(index int, res capture.Result) error {
	if index < 0 {
		return fmt.Errorf("negative result index %d", index)
	}
	if _, dup := a.seen[index]; dup {
		return fmt.Errorf("%w: %d", ErrDuplicateIndex, index)
	}
	a.seen[index] = struct{}{}
	a.pending[index] = res

	for {
		next, ok := a.pending[a.next]
		if !ok {
			return nil
		}
		delete(a.pending, a.next)
		a.fold(a.next, next)
		a.next++
	}
}

// fold appends one result's pages
func (a *Accumulator) fold(index int, res capture.Result) {
	if !res.OK() {
		return
	}

	if err := a.doc.AppendPages(res.Success.Document); err != nil {
		a.logger.Warn("Merge primitive rejected document",
			zap.Int("index", index),
			zap.String("url", res.URL),
			zap.Error(err))
		a.rejected = append(a.rejected, Rejection{Index: index, URL: res.URL, Err: err})
		return
	}

	a.appended = append(a.appended, index)
}

// Rejected returns documents the primitive refused, in index order
func (a *Accumulator) Rejected() []Rejection {
	return a.rejected
}

// Finish merges any results still buffered behind a gap, in ascending index
// order, and serializes the document. It returns ErrEmptyResult when no page
// was appended.
func (a *Accumulator) Finish() (*Merged, error) {
	for _, index := range slices.Sorted(maps.Keys(a.pending)) {
		a.fold(index, a.pending[index])
		delete(a.pending, index)
	}

	if len(a.appended) == 0 {
		return nil, ErrEmptyResult
	}

	data, err := a.doc.Bytes()
	if err != nil {
		return nil, fmt.Errorf("serialize merged document: %w", err)
	}

	return &Merged{
		Document: data,
		Pages:    a.doc.PageCount(),
		Indexes:  slices.Clone(a.appended),
	}, nil
}

// Accumulate merges results given in input URL order
func Accumulate(p Primitive, results []capture.Result, logger *zap.Logger) (*Merged, []Rejection, error) {
	acc := NewAccumulator(p, logger)
	for i, res := range results {
		if err := acc.Add(i, res); err != nil {
			return nil, nil, err
		}
	}
	merged, err := acc.Finish()
	return merged, acc.Rejected(), err
}
