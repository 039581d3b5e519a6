// Package pdftest builds small deterministic PDF documents for tests and
// reads back the page geometry of generated output.
//
// Every fixture page carries its own MediaBox width so a test can tell which
// source page ended up where after a structural copy.
package pdftest

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// PageHeight is the fixed height of every fixture page.
const PageHeight = 792

// Build returns a PDF with one page per width.
func Build(widths ...int) []byte {
	var buf bytes.Buffer
	offsets := make([]int, 0, 2+2*len(widths))

	obj := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}

	buf.WriteString("%PDF-1.4\n")
	obj("<< /Type /Catalog /Pages 2 0 R >>")

	kids := ""
	for i := range widths {
		kids += fmt.Sprintf("%d 0 R ", 3+2*i)
	}
	obj(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", kids, len(widths)))

	for i, w := range widths {
		content := fmt.Sprintf("0 0 m %d %d l S", w, PageHeight)
		obj(fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 %d %d] /Resources << >> /Contents %d 0 R >>",
			w, PageHeight, 4+2*i))
		obj(fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content))
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(offsets)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)
	return buf.Bytes()
}

// Widths returns n distinct page widths starting at base, stepping by 10.
func Widths(base, n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = base + 10*i
	}
	return out
}

// WriteFile stores a fixture under dir and returns its path.
func WriteFile(t testing.TB, dir, name string, widths ...int) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, Build(widths...), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

// PageWidths parses data and returns the MediaBox width of every page in order.
func PageWidths(t testing.TB, data []byte) []int {
	t.Helper()
	ctx, err := api.ReadValidateAndOptimize(bytes.NewReader(data), model.NewDefaultConfiguration())
	if err != nil {
		t.Fatalf("read pdf: %v", err)
	}
	if err := ctx.EnsurePageCount(); err != nil {
		t.Fatalf("page count: %v", err)
	}
	out := make([]int, 0, ctx.PageCount)
	for p := 1; p <= ctx.PageCount; p++ {
		_, _, inh, err := ctx.PageDict(p, false)
		if err != nil {
			t.Fatalf("page %d: %v", p, err)
		}
		if inh == nil || inh.MediaBox == nil {
			t.Fatalf("page %d: no media box", p)
		}
		out = append(out, int(inh.MediaBox.Width()+0.5))
	}
	return out
}

// PageWidthsFile is PageWidths for a file on disk.
func PageWidthsFile(t testing.TB, path string) []int {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return PageWidths(t, data)
}
