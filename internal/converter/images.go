package converter

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zip"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// ImagesToPDF imports every image as one page of a new PDF at outPath.
// outPath must not exist yet: pdfcpu appends to an existing file.
func ImagesToPDF(images []string, outPath string) error {
	if len(images) == 0 {
		return errors.New("no images")
	}
	if err := api.ImportImagesFile(images, outPath, nil, model.NewDefaultConfiguration()); err != nil {
		return fmt.Errorf("import images: %w", err)
	}
	return nil
}

// PageRenderer rasterises the pages of a PDF one at a time.
type PageRenderer interface {
	RenderPages(ctx context.Context, pdfPath string, emit func(page int, jpegBytes []byte) error) (int, error)
}

// PagesToZip renders pdfPath with r and writes page-N.jpg entries to w.
func PagesToZip(ctx context.Context, r PageRenderer, pdfPath string, w io.Writer) (int, error) {
	zw := zip.NewWriter(w)
	n, err := r.RenderPages(ctx, pdfPath, func(page int, data []byte) error {
		// JPEG is already compressed
		entry, err := zw.CreateHeader(&zip.FileHeader{Name: fmt.Sprintf("page-%d.jpg", page), Method: zip.Store})
		if err != nil {
			return err
		}
		_, err = entry.Write(data)
		return err
	})
	if err != nil {
		return n, err
	}
	if n == 0 {
		return 0, errors.New("no pages rendered")
	}
	return n, zw.Close()
}
