package filetype

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog/log"
)

// Kind is the coarse class of an upload.
type Kind string

const (
	KindPDF   Kind = "pdf"
	KindImage Kind = "image"
	KindWord  Kind = "word"
	KindOther Kind = "other"
)

// ErrUnsupported is returned by Require when the content is not of an allowed kind.
var ErrUnsupported = errors.New("unsupported file type")

// FileTypeInfo contains detected file type information
type FileTypeInfo struct {
	MIMEType  string
	Extension string
	Kind      Kind
}

// Detector handles file type detection using magic bytes
type Detector struct{}

// New creates a new file type detector
func New() *Detector {
	return &Detector{}
}

// Detect sniffs the content of filePath. The extension of hint (usually the
// client's file name) only disambiguates container formats such as ZIP and
// OLE, it never overrides a positive match.
func (d *Detector) Detect(filePath, hint string) (*FileTypeInfo, error) {
	mtype, err := mimetype.DetectFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to detect file type: %w", err)
	}

	info := &FileTypeInfo{MIMEType: mtype.String(), Extension: mtype.Extension()}
	ext := strings.ToLower(filepath.Ext(hint))

	switch {
	case mtype.Is("application/zip") && ext == ".docx":
		info.MIMEType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
		info.Extension = ".docx"
	case (mtype.Is("application/x-ole-storage") || mtype.Is("application/x-cfb")) && ext == ".doc":
		info.MIMEType = "application/msword"
		info.Extension = ".doc"
	}

	info.Kind = classify(info.MIMEType)
	log.Debug().Str("mime", info.MIMEType).Str("kind", string(info.Kind)).Str("file", filepath.Base(filePath)).Msg("detected file type")
	return info, nil
}

// Require detects filePath and fails with ErrUnsupported unless it is one of kinds.
func (d *Detector) Require(filePath, hint string, kinds ...Kind) (*FileTypeInfo, error) {
	info, err := d.Detect(filePath, hint)
	if err != nil {
		return nil, err
	}
	for _, k := range kinds {
		if info.Kind == k {
			return info, nil
		}
	}
	return info, fmt.Errorf("%s: %w", info.MIMEType, ErrUnsupported)
}

func classify(mimeType string) Kind {
	// mimetype may append parameters, e.g. "text/plain; charset=utf-8"
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = mimeType[:i]
	}
	switch mimeType {
	case "application/pdf":
		return KindPDF
	case "image/jpeg", "image/png":
		return KindImage
	case "application/msword",
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		"application/vnd.oasis.opendocument.text",
		"application/rtf", "text/rtf":
		return KindWord
	}
	return KindOther
}
