package merge

import (
	"bytes"
	"fmt"
	"io"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

func init() {
	// Keep pdfcpu from creating a config directory under $HOME
	model.ConfigPath = "disable"
}

// PDFPrimitive merges PDF documents with pdfcpu
type PDFPrimitive struct{}

// NewPDFPrimitive creates the pdfcpu-backed merge primitive
func NewPDFPrimitive() *PDFPrimitive {
	return &PDFPrimitive{}
}

// NewDocument starts an empty PDF
func (p *PDFPrimitive) NewDocument() Document {
	return &pdfDocument{}
}

func newConfiguration() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// pdfDocument buffers validated source PDFs and merges them on serialization
type pdfDocument struct {
	parts [][]byte
	pages int
}

// AppendPages validates src and queues all of its pages
func (d *pdfDocument) AppendPages(src []byte) error {
	if len(src) == 0 {
		return fmt.Errorf("%w: empty document", ErrInvalidDocument)
	}

	n, err := api.PageCount(bytes.NewReader(src), newConfiguration())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: document has no pages", ErrInvalidDocument)
	}

	d.parts = append(d.parts, src)
	d.pages += n
	return nil
}

// Bytes merges the queued PDFs in append order
func (d *pdfDocument) Bytes() ([]byte, error) {
	switch len(d.parts) {
	case 0:
		return nil, ErrEmptyResult
	case 1:
		return bytes.Clone(d.parts[0]), nil
	}

	readers := make([]io.ReadSeeker, len(d.parts))
	for i, part := range d.parts {
		readers[i] = bytes.NewReader(part)
	}

	var out bytes.Buffer
	if err := api.MergeRaw(readers, &out, false, newConfiguration()); err != nil {
		return nil, fmt.Errorf("pdfcpu merge: %w", err)
	}
	return out.Bytes(), nil
}

func (d *pdfDocument) PageCount() int {
	return d.pages
}
