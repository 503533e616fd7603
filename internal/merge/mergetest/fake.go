// Package mergetest provides an in-memory merge primitive that records page order.
package mergetest

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/edgecomet/pdfbatch/internal/merge"
)

// ErrRejected is returned for documents listed in Primitive.Reject
var ErrRejected = errors.New("fake primitive: document rejected")

// pageSeparator splits pages in the serialized fake document
var pageSeparator = []byte("\n--page--\n")

// Primitive treats every source document as exactly one page
type Primitive struct {
	// Reject lists source documents that AppendPages refuses
	Reject [][]byte
}

// NewDocument starts an empty fake document
func (p *Primitive) NewDocument() merge.Document {
	return &Document{reject: p.Reject}
}

// Document records appended pages in order
type Document struct {
	reject [][]byte
	pages  [][]byte
}

func (d *Document) AppendPages(src []byte) error {
	if len(src) == 0 {
		return fmt.Errorf("%w: empty", merge.ErrInvalidDocument)
	}
	for _, r := range d.reject {
		if bytes.Equal(r, src) {
			return ErrRejected
		}
	}
	d.pages = append(d.pages, bytes.Clone(src))
	return nil
}

func (d *Document) Bytes() ([]byte, error) {
	if len(d.pages) == 0 {
		return nil, merge.ErrEmptyResult
	}
	return bytes.Join(d.pages, pageSeparator), nil
}

func (d *Document) PageCount() int {
	return len(d.pages)
}

// Pages splits a serialized fake document back into its source documents
func Pages(doc []byte) [][]byte {
	if len(doc) == 0 {
		return nil
	}
	return bytes.Split(doc, pageSeparator)
}

// MinimalPDF builds a valid single-page PDF with an empty page of the given size in points
func MinimalPDF(width, height int) []byte {
	var buf bytes.Buffer
	offsets := make([]int, 0, 3)

	buf.WriteString("%PDF-1.4\n")
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 %d %d] /Resources << >> >>", width, height),
	}
	for i, obj := range objects {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objects)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)

	return buf.Bytes()
}
