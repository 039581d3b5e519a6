package converter

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local/pdforganizer/internal/organize"
	"github.com/local/pdforganizer/internal/pdftest"
	"github.com/local/pdforganizer/internal/tempstore"
)

func newScope(t *testing.T) (*tempstore.Store, *tempstore.Scope) {
	t.Helper()
	store, err := tempstore.New(t.TempDir(), tempstore.Options{})
	require.NoError(t, err)
	return store, store.NewScope()
}

func put(t *testing.T, scope *tempstore.Scope, ext string, data []byte) *tempstore.File {
	t.Helper()
	f, fh, err := scope.Create("upload", ext)
	require.NoError(t, err)
	_, err = fh.Write(data)
	require.NoError(t, err)
	require.NoError(t, fh.Close())
	return f
}

func pngImage(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

func assertStoreEmpty(t *testing.T, store *tempstore.Store) {
	t.Helper()
	entries, err := store.Entries()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

// fakeSoffice writes a PDF where real soffice would.
func fakeSoffice(calls *[]string) Runner {
	return func(ctx context.Context, name string, args ...string) ([]byte, error) {
		*calls = append(*calls, name)
		input := args[len(args)-1]
		return nil, os.WriteFile(ExpectedOutput(input), pdftest.Build(612), 0o600)
	}
}

func TestLibreOfficeConvert(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "report.docx")
	require.NoError(t, os.WriteFile(input, []byte("PK fake docx"), 0o600))
	output := filepath.Join(dir, "converted.pdf")

	var calls []string
	lo := NewLibreOffice("", 1, time.Second).WithRunner(fakeSoffice(&calls))
	res, err := lo.ConvertToPDF(context.Background(), Job{InputPath: input, OutputPath: output})
	require.NoError(t, err)
	assert.Equal(t, output, res.OutputPath)
	assert.Equal(t, []string{"soffice"}, calls)
	assert.FileExists(t, output)
	assert.NoFileExists(t, filepath.Join(dir, "report.pdf"))
}

func TestLibreOfficeFailures(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "locked.docx")
	require.NoError(t, os.WriteFile(input, []byte("x"), 0o600))
	job := Job{InputPath: input, OutputPath: filepath.Join(dir, "out.pdf")}

	t.Run("password", func(t *testing.T) {
		lo := NewLibreOffice("soffice", 1, time.Second).WithRunner(func(context.Context, string, ...string) ([]byte, error) {
			return []byte("Error: source file could not be loaded, password required"), errors.New("exit status 1")
		})
		_, err := lo.ConvertToPDF(context.Background(), job)
		assert.ErrorIs(t, err, ErrProtected)
	})

	t.Run("no output", func(t *testing.T) {
		lo := NewLibreOffice("soffice", 1, time.Second).WithRunner(func(context.Context, string, ...string) ([]byte, error) {
			return nil, nil
		})
		_, err := lo.ConvertToPDF(context.Background(), job)
		assert.ErrorContains(t, err, "output file not created")
	})

	t.Run("timeout", func(t *testing.T) {
		lo := NewLibreOffice("soffice", 1, 20*time.Millisecond).WithRunner(func(ctx context.Context, _ string, _ ...string) ([]byte, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		})
		_, err := lo.ConvertToPDF(context.Background(), job)
		assert.ErrorContains(t, err, "timeout")
	})

	t.Run("empty input", func(t *testing.T) {
		empty := filepath.Join(dir, "empty.docx")
		require.NoError(t, os.WriteFile(empty, nil, 0o600))
		lo := NewLibreOffice("soffice", 1, time.Second)
		_, err := lo.ConvertToPDF(context.Background(), Job{InputPath: empty, OutputPath: job.OutputPath})
		assert.ErrorContains(t, err, "file is empty")
	})
}

func TestExpectedOutput(t *testing.T) {
	assert.Equal(t, filepath.Join("a", "b", "upload-1.pdf"), ExpectedOutput(filepath.Join("a", "b", "upload-1.docx")))
}

func TestImagesToPDF(t *testing.T) {
	dir := t.TempDir()
	var paths []string
	for i, size := range [][2]int{{40, 30}, {20, 60}} {
		p := filepath.Join(dir, []string{"a.png", "b.png"}[i])
		require.NoError(t, os.WriteFile(p, pngImage(t, size[0], size[1]), 0o600))
		paths = append(paths, p)
	}
	out := filepath.Join(dir, "out.pdf")
	require.NoError(t, ImagesToPDF(paths, out))
	assert.Len(t, pdftest.PageWidthsFile(t, out), 2)

	assert.Error(t, ImagesToPDF(nil, filepath.Join(dir, "none.pdf")))
}

type fakeRenderer struct {
	pages int
	err   error
}

func (f fakeRenderer) RenderPages(ctx context.Context, _ string, emit func(int, []byte) error) (int, error) {
	for i := 1; i <= f.pages; i++ {
		if err := emit(i, []byte{0xFF, 0xD8, byte(i)}); err != nil {
			return i - 1, err
		}
	}
	return f.pages, f.err
}

func TestPagesToZip(t *testing.T) {
	var buf bytes.Buffer
	n, err := PagesToZip(context.Background(), fakeRenderer{pages: 3}, "in.pdf", &buf)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	require.Len(t, zr.File, 3)
	for i, f := range zr.File {
		assert.Equal(t, []string{"page-1.jpg", "page-2.jpg", "page-3.jpg"}[i], f.Name)
		rc, err := f.Open()
		require.NoError(t, err)
		data, _ := io.ReadAll(rc)
		rc.Close()
		assert.Equal(t, byte(i+1), data[2])
	}

	_, err = PagesToZip(context.Background(), fakeRenderer{}, "in.pdf", io.Discard)
	assert.Error(t, err)
}

func TestServiceWordToPDF(t *testing.T) {
	store, scope := newScope(t)
	in := put(t, scope, "docx", []byte("PK fake"))

	var calls []string
	svc := NewService(NewLibreOffice("soffice", 1, time.Second).WithRunner(fakeSoffice(&calls)), nil)
	res, err := svc.WordToPDF(context.Background(), scope, []*tempstore.File{in})
	require.NoError(t, err)
	assert.Equal(t, ConvertedName, res.DownloadName)
	assert.Equal(t, []int{612}, pdftest.PageWidthsFile(t, res.File.Path))

	scope.Release()
	assertStoreEmpty(t, store)
}

func TestServiceWordToPDFFailureCleansUp(t *testing.T) {
	store, scope := newScope(t)
	in := put(t, scope, "docx", []byte("PK fake"))

	// the tool writes its output, then reports failure
	runner := func(ctx context.Context, _ string, args ...string) ([]byte, error) {
		_ = os.WriteFile(ExpectedOutput(args[len(args)-1]), []byte("partial"), 0o600)
		return []byte("crash"), errors.New("exit status 81")
	}
	svc := NewService(NewLibreOffice("soffice", 1, time.Second).WithRunner(runner), nil)
	_, err := svc.WordToPDF(context.Background(), scope, []*tempstore.File{in})
	assert.True(t, organize.IsProcessing(err))

	scope.Release()
	assertStoreEmpty(t, store)
}

func TestServiceImagesToPDF(t *testing.T) {
	store, scope := newScope(t)
	a := put(t, scope, "png", pngImage(t, 30, 30))
	b := put(t, scope, "png", pngImage(t, 10, 50))

	svc := NewService(nil, nil)
	res, err := svc.ImagesToPDF(context.Background(), scope, []*tempstore.File{a, b})
	require.NoError(t, err)
	assert.Equal(t, ImagesPDFName, res.DownloadName)
	assert.Len(t, pdftest.PageWidthsFile(t, res.File.Path), 2)

	_, err = svc.ImagesToPDF(context.Background(), scope, nil)
	assert.True(t, organize.IsValidation(err))

	scope.Release()
	assertStoreEmpty(t, store)
}

func TestServicePDFToImages(t *testing.T) {
	store, scope := newScope(t)
	in := put(t, scope, "pdf", pdftest.Build(100, 110))

	svc := NewService(nil, fakeRenderer{pages: 2})
	res, err := svc.PDFToImages(context.Background(), scope, []*tempstore.File{in})
	require.NoError(t, err)
	assert.Equal(t, ImagesZipName, res.DownloadName)
	assert.Equal(t, 2, res.Pages)

	failing := NewService(nil, fakeRenderer{pages: 1, err: errors.New("mupdf exploded")})
	_, err = failing.PDFToImages(context.Background(), scope, []*tempstore.File{in})
	assert.True(t, organize.IsProcessing(err))

	_, err = NewService(nil, nil).PDFToImages(context.Background(), scope, []*tempstore.File{in})
	assert.True(t, organize.IsProcessing(err))

	scope.Release()
	assertStoreEmpty(t, store)
}
