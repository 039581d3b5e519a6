// Package assembler builds new PDF documents out of pages of existing ones.
//
// Pages are copied structurally with pdfcpu: content streams, fonts and
// resources are carried over as objects, nothing is re-rendered.
package assembler

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

func init() {
	// pdfcpu would otherwise create a config dir under the user's home.
	api.DisableConfigDir()
}

var (
	// ErrNoPages is returned when a document or a build plan has no pages.
	ErrNoPages = errors.New("no pages")
	// ErrPageOutOfRange is returned when a selection names a page the source does not have.
	ErrPageOutOfRange = errors.New("page index out of range")
)

// Document is a loaded, validated PDF. It is never modified after Load.
type Document struct {
	Name string
	ctx  *model.Context
}

// Open reads the PDF at path fully into memory and validates it. The file
// can be deleted as soon as Open returns.
func Open(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	doc, err := Load(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	doc.Name = path
	return doc, nil
}

// Load parses and validates a PDF.
func Load(rs io.ReadSeeker) (*Document, error) {
	ctx, err := api.ReadValidateAndOptimize(rs, model.NewDefaultConfiguration())
	if err != nil {
		return nil, fmt.Errorf("load pdf: %w", err)
	}
	if err := ctx.EnsurePageCount(); err != nil {
		return nil, fmt.Errorf("count pages: %w", err)
	}
	if ctx.PageCount == 0 {
		return nil, ErrNoPages
	}
	return &Document{ctx: ctx}, nil
}

// PageCount returns the number of pages.
func (d *Document) PageCount() int { return d.ctx.PageCount }

// Selection names zero-based pages of one source, in output order.
type Selection struct {
	Doc   *Document
	Pages []int
}

// Build writes a fresh document to w made of every selection's pages, in
// the order given.
func Build(w io.Writer, sels ...Selection) error {
	total := 0
	for i, sel := range sels {
		if sel.Doc == nil {
			return fmt.Errorf("selection %d: nil document", i)
		}
		for _, idx := range sel.Pages {
			if idx < 0 || idx >= sel.Doc.PageCount() {
				return fmt.Errorf("selection %d page %d: %w", i, idx, ErrPageOutOfRange)
			}
		}
		total += len(sel.Pages)
	}
	if total == 0 {
		return ErrNoPages
	}

	nonEmpty := sels[:0:0]
	for _, sel := range sels {
		if len(sel.Pages) > 0 {
			nonEmpty = append(nonEmpty, sel)
		}
	}
	if len(nonEmpty) == 1 {
		return nonEmpty[0].Doc.write(w, nonEmpty[0].Pages)
	}

	parts := make([]io.ReadSeeker, 0, len(nonEmpty))
	for i, sel := range nonEmpty {
		var buf bytes.Buffer
		if err := sel.Doc.write(&buf, sel.Pages); err != nil {
			return fmt.Errorf("selection %d: %w", i, err)
		}
		parts = append(parts, bytes.NewReader(buf.Bytes()))
	}
	if err := api.MergeRaw(parts, w, false, model.NewDefaultConfiguration()); err != nil {
		return fmt.Errorf("merge: %w", err)
	}
	return nil
}

// WritePage writes a single-page document holding page idx.
func (d *Document) WritePage(w io.Writer, idx int) error {
	if idx < 0 || idx >= d.PageCount() {
		return fmt.Errorf("page %d: %w", idx, ErrPageOutOfRange)
	}
	return d.write(w, []int{idx})
}

func (d *Document) write(w io.Writer, pages []int) error {
	nrs := make([]int, len(pages))
	for i, idx := range pages {
		nrs[i] = idx + 1
	}
	out, err := pdfcpu.ExtractPages(d.ctx, nrs, false)
	if err != nil {
		return fmt.Errorf("extract pages: %w", err)
	}
	if err := api.WriteContext(out, w); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}
