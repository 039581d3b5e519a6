// Package converter wraps the conversion paths: office documents to PDF via
// LibreOffice, images to PDF via pdfcpu, and PDF pages to JPEG via MuPDF.
// Each conversion is an opaque file in, file out step run inside a request
// scope, like the organize operations.
package converter

import (
	"bufio"
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/local/pdforganizer/internal/organize"
	"github.com/local/pdforganizer/internal/tempstore"
)

const (
	OpWordToPDF = "word-to-pdf"
	OpImagesPDF = "jpg-to-pdf"
	OpPDFImages = "pdf-to-jpg"
)

const (
	ConvertedName = "takkunu-converted.pdf"
	ImagesPDFName = "takkunu-images.pdf"
	ImagesZipName = "takkunu-images.zip"
)

// Office converts one office document to PDF.
type Office interface {
	ConvertToPDF(ctx context.Context, job Job) (*Result, error)
}

// Service runs conversions inside a request scope.
type Service struct {
	office   Office
	renderer PageRenderer
}

// NewService wires the external converters. Either may be nil, in which case
// the matching conversion reports itself unavailable.
func NewService(office Office, renderer PageRenderer) *Service {
	return &Service{office: office, renderer: renderer}
}

// WordToPDF converts a single office document.
func (s *Service) WordToPDF(ctx context.Context, scope *tempstore.Scope, inputs []*tempstore.File) (*organize.Result, error) {
	if len(inputs) != 1 {
		return nil, organize.Invalid(http.StatusBadRequest, "Please upload a Word (.docx) file.", nil)
	}
	if s.office == nil {
		return nil, organize.Failed(OpWordToPDF, "Word conversion is not available.", errors.New("no office converter"))
	}
	in := inputs[0]

	// soffice writes next to the input; own that path before it exists.
	if _, err := scope.Adopt(ExpectedOutput(in.Path)); err != nil {
		return nil, organize.Failed(OpWordToPDF, "Conversion failed during processing.", err)
	}
	out := scope.Allocate("converted", "pdf")

	if _, err := s.office.ConvertToPDF(ctx, Job{InputPath: in.Path, OutputPath: out.Path}); err != nil {
		if errors.Is(err, ErrProtected) {
			return nil, organize.Invalid(http.StatusBadRequest, "The document is password protected.", err)
		}
		return nil, organize.Failed(OpWordToPDF, "Conversion failed during processing.", err)
	}
	zerolog.Ctx(ctx).Info().Str("input", in.Original).Msg("converted document to pdf")
	return &organize.Result{File: out, ContentType: organize.ContentTypePDF, DownloadName: ConvertedName}, nil
}

// ImagesToPDF turns each uploaded image into one page, in upload order.
func (s *Service) ImagesToPDF(ctx context.Context, scope *tempstore.Scope, inputs []*tempstore.File) (*organize.Result, error) {
	if len(inputs) == 0 {
		return nil, organize.Invalid(http.StatusBadRequest, "Please upload at least one image.", nil)
	}
	paths := make([]string, len(inputs))
	for i, in := range inputs {
		paths[i] = in.Path
	}
	out := scope.Allocate("images-to-pdf", "pdf")
	if err := ImagesToPDF(paths, out.Path); err != nil {
		return nil, organize.Failed(OpImagesPDF, "Failed to convert images to PDF.", err)
	}
	zerolog.Ctx(ctx).Info().Int("images", len(inputs)).Msg("converted images to pdf")
	return &organize.Result{File: out, ContentType: organize.ContentTypePDF, DownloadName: ImagesPDFName, Pages: len(inputs)}, nil
}

// PDFToImages renders every page of one PDF into a zip of JPEGs.
func (s *Service) PDFToImages(ctx context.Context, scope *tempstore.Scope, inputs []*tempstore.File) (*organize.Result, error) {
	if len(inputs) != 1 {
		return nil, organize.Invalid(http.StatusBadRequest, "Please upload a PDF file.", nil)
	}
	if s.renderer == nil {
		return nil, organize.Failed(OpPDFImages, "Image conversion is not available.", errors.New("no renderer"))
	}
	out, fh, err := scope.Create("images", "zip")
	if err != nil {
		return nil, organize.Failed(OpPDFImages, "Failed to convert PDF to images.", err)
	}
	bw := bufio.NewWriter(fh)
	n, err := PagesToZip(ctx, s.renderer, inputs[0].Path, bw)
	if err == nil {
		err = bw.Flush()
	}
	if cerr := fh.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, organize.Failed(OpPDFImages, "Failed to convert PDF to images.", err)
	}
	zerolog.Ctx(ctx).Info().Int("pages", n).Msg("rendered pdf to images")
	return &organize.Result{File: out, ContentType: organize.ContentTypeZip, DownloadName: ImagesZipName, Pages: n}, nil
}
