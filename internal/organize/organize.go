// Package organize implements the page-level operations: merge, split,
// extract and remove. Each call reads request-owned input files and writes
// exactly one new output file through the caller's tempstore.Scope, so the
// caller's deferred Release covers inputs, outputs and partial outputs alike.
package organize

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zip"
	"github.com/rs/zerolog"

	"github.com/local/pdforganizer/internal/assembler"
	"github.com/local/pdforganizer/internal/pagerange"
	"github.com/local/pdforganizer/internal/tempstore"
)

// Operation names, also used as metric labels.
const (
	OpMerge   = "merge"
	OpSplit   = "split"
	OpExtract = "extract"
	OpRemove  = "remove"
)

// Fixed download names; clients rely on them.
const (
	MergedName    = "takkunu-merged.pdf"
	SplitName     = "takkunu-split.zip"
	ExtractedName = "takkunu-extracted.pdf"
	CleanedName   = "takkunu-cleaned.pdf"
)

const (
	ContentTypePDF = "application/pdf"
	ContentTypeZip = "application/zip"
)

// User-facing messages.
const (
	msgMergeCount  = "Please upload at least 2 PDF files to merge."
	msgNeedFile    = "Please upload a PDF file."
	msgOneFile     = "Please upload exactly one PDF file."
	msgNeedPages   = `Page range is required (e.g., "1,3-5").`
	msgBadRange    = "Invalid page range selected."
	msgRemoveAll   = "Cannot remove all pages from the PDF."
	msgMergeOpen   = "Failed to merge PDFs. One or more files might be corrupted."
	msgInvalidPDF  = "The uploaded file is not a valid PDF document."
	msgMergeFail   = "Failed to merge PDFs."
	msgSplitFail   = "Failed to split PDF."
	msgExtractFail = "Failed to extract pages."
	msgRemoveFail  = "Failed to remove pages."
)

// Result describes the output of an operation.
type Result struct {
	File         *tempstore.File
	ContentType  string
	DownloadName string
	// Pages is the number of pages in the output, or zip entries for split.
	Pages int
	// Selection is the compact form of the source pages used, when one was parsed.
	Selection string
}

// Service runs operations. It holds no per-request state.
type Service struct{}

// New returns a Service.
func New() *Service { return &Service{} }

// Merge concatenates every page of every input, in input order.
func (s *Service) Merge(ctx context.Context, scope *tempstore.Scope, inputs []*tempstore.File) (*Result, error) {
	if len(inputs) < 2 {
		return nil, invalid(msgMergeCount, nil)
	}
	sels := make([]assembler.Selection, 0, len(inputs))
	total := 0
	for _, in := range inputs {
		doc, err := assembler.Open(in.Path)
		if err != nil {
			return nil, invalid(msgMergeOpen, err)
		}
		sels = append(sels, assembler.Selection{Doc: doc, Pages: pagerange.All(doc.PageCount())})
		total += doc.PageCount()
	}
	if err := ctx.Err(); err != nil {
		return nil, failed(OpMerge, msgMergeFail, err)
	}

	out, err := writeOutput(scope, "merged", "pdf", func(w io.Writer) error {
		return assembler.Build(w, sels...)
	})
	if err != nil {
		return nil, failed(OpMerge, msgMergeFail, err)
	}
	zerolog.Ctx(ctx).Info().Int("files", len(inputs)).Int("pages", total).Msg("merged pdfs")
	return &Result{File: out, ContentType: ContentTypePDF, DownloadName: MergedName, Pages: total}, nil
}

// Split writes a zip holding one single-page PDF per source page, named
// page-1.pdf, page-2.pdf, ... in page order.
func (s *Service) Split(ctx context.Context, scope *tempstore.Scope, inputs []*tempstore.File) (*Result, error) {
	doc, err := openSingle(inputs)
	if err != nil {
		return nil, err
	}
	n := doc.PageCount()

	out, err := writeOutput(scope, "split", "zip", func(w io.Writer) error {
		zw := zip.NewWriter(w)
		for i := 0; i < n; i++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			entry, err := zw.Create(fmt.Sprintf("page-%d.pdf", i+1))
			if err != nil {
				return err
			}
			if err := doc.WritePage(entry, i); err != nil {
				return fmt.Errorf("page %d: %w", i+1, err)
			}
		}
		return zw.Close()
	})
	if err != nil {
		return nil, failed(OpSplit, msgSplitFail, err)
	}
	zerolog.Ctx(ctx).Info().Int("pages", n).Msg("split pdf")
	return &Result{File: out, ContentType: ContentTypeZip, DownloadName: SplitName, Pages: n}, nil
}

// Extract copies the pages named by spec, ascending, into a new PDF.
func (s *Service) Extract(ctx context.Context, scope *tempstore.Scope, inputs []*tempstore.File, spec string) (*Result, error) {
	if strings.TrimSpace(spec) == "" {
		return nil, invalid(msgNeedPages, pagerange.ErrEmptySelection)
	}
	doc, err := openSingle(inputs)
	if err != nil {
		return nil, err
	}
	pages, err := pagerange.Parse(spec, doc.PageCount())
	if err != nil {
		return nil, invalid(msgBadRange, err)
	}

	out, err := writeOutput(scope, "extracted", "pdf", func(w io.Writer) error {
		return assembler.Build(w, assembler.Selection{Doc: doc, Pages: pages})
	})
	if err != nil {
		return nil, failed(OpExtract, msgExtractFail, err)
	}
	sel := pagerange.Format(pages)
	zerolog.Ctx(ctx).Info().Str("pages", sel).Int("count", len(pages)).Msg("extracted pages")
	return &Result{File: out, ContentType: ContentTypePDF, DownloadName: ExtractedName, Pages: len(pages), Selection: sel}, nil
}

// Remove drops the pages named by spec and keeps the rest in original order.
func (s *Service) Remove(ctx context.Context, scope *tempstore.Scope, inputs []*tempstore.File, spec string) (*Result, error) {
	if strings.TrimSpace(spec) == "" {
		return nil, invalid(msgNeedPages, pagerange.ErrEmptySelection)
	}
	doc, err := openSingle(inputs)
	if err != nil {
		return nil, err
	}
	drop, err := pagerange.Parse(spec, doc.PageCount())
	if err != nil {
		return nil, invalid(msgBadRange, err)
	}
	keep := pagerange.Complement(drop, doc.PageCount())
	if len(keep) == 0 {
		return nil, invalid(msgRemoveAll, ErrAllPagesRemoved)
	}

	out, err := writeOutput(scope, "cleaned", "pdf", func(w io.Writer) error {
		return assembler.Build(w, assembler.Selection{Doc: doc, Pages: keep})
	})
	if err != nil {
		return nil, failed(OpRemove, msgRemoveFail, err)
	}
	sel := pagerange.Format(keep)
	zerolog.Ctx(ctx).Info().Str("removed", pagerange.Format(drop)).Int("kept", len(keep)).Msg("removed pages")
	return &Result{File: out, ContentType: ContentTypePDF, DownloadName: CleanedName, Pages: len(keep), Selection: sel}, nil
}

func openSingle(inputs []*tempstore.File) (*assembler.Document, error) {
	switch {
	case len(inputs) == 0:
		return nil, invalid(msgNeedFile, nil)
	case len(inputs) > 1:
		return nil, invalid(msgOneFile, nil)
	}
	doc, err := assembler.Open(inputs[0].Path)
	if err != nil {
		return nil, invalid(msgInvalidPDF, err)
	}
	return doc, nil
}

// writeOutput creates an output file owned by scope and fills it with fill.
// On failure the partial file stays tracked by scope and goes away on Release.
func writeOutput(scope *tempstore.Scope, prefix, ext string, fill func(io.Writer) error) (*tempstore.File, error) {
	f, fh, err := scope.Create(prefix, ext)
	if err != nil {
		return nil, err
	}
	bw := bufio.NewWriter(fh)
	werr := fill(bw)
	if werr == nil {
		werr = bw.Flush()
	}
	cerr := fh.Close()
	if err := errors.Join(werr, cerr); err != nil {
		return nil, err
	}
	return f, nil
}
