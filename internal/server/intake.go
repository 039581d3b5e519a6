package server

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/local/pdforganizer/internal/fetch"
	"github.com/local/pdforganizer/internal/filetype"
	"github.com/local/pdforganizer/internal/metrics"
	"github.com/local/pdforganizer/internal/organize"
	"github.com/local/pdforganizer/internal/tempstore"
)

const (
	maxFieldBytes = 64 << 10
	fieldFileURL  = "file_url"
)

var (
	kindsPDF   = []filetype.Kind{filetype.KindPDF}
	kindsImage = []filetype.Kind{filetype.KindImage}
	kindsWord  = []filetype.Kind{filetype.KindWord}
)

// upload is the parsed request: files in arrival order, then plain fields.
type upload struct {
	files  []*tempstore.File
	fields url.Values
}

// maxBody caps the whole request so a client cannot stream forever.
func (s *Server) maxBody() int64 {
	return int64(s.deps.Upload.MaxFiles)*s.deps.Upload.MaxFileBytes + 1<<20
}

// readUpload streams every file part straight into scope, enforcing the
// per-file size, the file count and the allowed kinds. Any file field name is
// accepted.
func (s *Server) readUpload(r *http.Request, scope *tempstore.Scope, kinds []filetype.Kind) (*upload, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, organize.Invalid(http.StatusBadRequest, "Expected a multipart/form-data upload.", err)
	}

	in := &upload{fields: url.Values{}}
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, bodyError(err)
		}

		if part.FileName() == "" {
			value, err := io.ReadAll(io.LimitReader(part, maxFieldBytes))
			part.Close()
			if err != nil {
				return nil, bodyError(err)
			}
			in.fields.Add(part.FormName(), strings.TrimSpace(string(value)))
			continue
		}

		if len(in.files) >= s.deps.Upload.MaxFiles {
			part.Close()
			return nil, s.tooManyFiles()
		}
		file, err := s.savePart(part, scope)
		part.Close()
		if err != nil {
			return nil, err
		}
		in.files = append(in.files, file)
	}

	if err := s.fetchRemote(r, scope, in); err != nil {
		return nil, err
	}

	for _, f := range in.files {
		if _, err := s.deps.Detector.Require(f.Path, f.Original, kinds...); err != nil {
			if errors.Is(err, filetype.ErrUnsupported) {
				return nil, organize.Invalid(http.StatusUnsupportedMediaType, kindMessage(kinds), err)
			}
			return nil, organize.Invalid(http.StatusBadRequest, "Could not read the uploaded file.", err)
		}
	}
	return in, nil
}

func (s *Server) savePart(part *multipart.Part, scope *tempstore.Scope) (*tempstore.File, error) {
	name := filepath.Base(part.FileName())
	file, fh, err := scope.Create("upload", filepath.Ext(name))
	if err != nil {
		return nil, organize.Failed("upload", "Could not store the upload.", err)
	}
	file.Original = name

	limit := s.deps.Upload.MaxFileBytes
	n, err := io.CopyN(fh, part, limit+1)
	cerr := fh.Close()
	metrics.AddUploadBytes(n)
	if err != nil && err != io.EOF {
		return nil, bodyError(err)
	}
	if n > limit {
		return nil, s.tooLarge()
	}
	if cerr != nil {
		return nil, organize.Failed("upload", "Could not store the upload.", cerr)
	}
	return file, nil
}

func (s *Server) fetchRemote(r *http.Request, scope *tempstore.Scope, in *upload) error {
	refs := in.fields[fieldFileURL]
	if len(refs) == 0 {
		return nil
	}
	if s.deps.Fetcher == nil {
		return organize.Invalid(http.StatusBadRequest, "Remote files are not enabled.", nil)
	}
	for _, ref := range refs {
		if ref == "" {
			continue
		}
		if len(in.files) >= s.deps.Upload.MaxFiles {
			return s.tooManyFiles()
		}
		file, err := s.deps.Fetcher.Fetch(r.Context(), scope, ref)
		switch {
		case errors.Is(err, fetch.ErrTooLarge):
			return s.tooLarge()
		case errors.Is(err, fetch.ErrUnsupportedScheme):
			return organize.Invalid(http.StatusBadRequest, "Unsupported file URL.", err)
		case err != nil:
			zerolog.Ctx(r.Context()).Warn().Err(err).Str("ref", ref).Msg("remote fetch failed")
			return organize.Invalid(http.StatusBadRequest, "Could not fetch the remote file.", err)
		}
		in.files = append(in.files, file)
	}
	return nil
}

func (s *Server) tooLarge() error {
	return organize.Invalid(http.StatusRequestEntityTooLarge,
		fmt.Sprintf("File too large. Maximum size is %d MB.", s.deps.Upload.MaxFileBytes>>20), nil)
}

func (s *Server) tooManyFiles() error {
	return organize.Invalid(http.StatusBadRequest,
		fmt.Sprintf("Too many files. Upload at most %d files.", s.deps.Upload.MaxFiles), nil)
}

func bodyError(err error) error {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return organize.Invalid(http.StatusRequestEntityTooLarge, "Request too large.", err)
	}
	return organize.Invalid(http.StatusBadRequest, "Malformed upload.", err)
}

func kindMessage(kinds []filetype.Kind) string {
	switch kinds[0] {
	case filetype.KindImage:
		return "Only JPG and PNG images are allowed."
	case filetype.KindWord:
		return "Only Word documents (.doc, .docx) are allowed."
	default:
		return "Only PDF files are allowed."
	}
}
