package merge

import "errors"

var (
	// ErrEmptyResult means no capture succeeded, so there is no document to return
	ErrEmptyResult = errors.New("no pages to merge")
	// ErrInvalidDocument means the merge primitive rejected a single-page document
	ErrInvalidDocument = errors.New("document rejected by merge primitive")
	// ErrDuplicateIndex means a result was added twice for the same URL position
	ErrDuplicateIndex = errors.New("result already accumulated for index")
)

// Primitive creates empty output documents
type Primitive interface {
	NewDocument() Document
}

// Document is an output document under construction
type Document interface {
	// AppendPages appends every page of src, in order
	AppendPages(src []byte) error
	// Bytes serializes the document
	Bytes() ([]byte, error)
	PageCount() int
}
