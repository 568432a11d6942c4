package app

import (
	"bytes"
	"fmt"
	"testing"
)

// buildPDF assembles a minimal single-page PDF with a document-info title
// and a correct cross-reference table.
func buildPDF(title string) []byte {
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] >>",
		fmt.Sprintf("<< /Title (%s) >>", title),
	}
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, body := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, body)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objects)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R /Info 4 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

func TestInspectPDF(t *testing.T) {
	hints, err := inspectPDF(buildPDF("Deep Reading"))
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	if hints.PageCount != 1 || hints.Title != "Deep Reading" {
		t.Fatalf("unexpected hints: %+v", hints)
	}
}

func TestInspectPDFRejectsGarbage(t *testing.T) {
	for _, data := range [][]byte{nil, []byte("not a pdf"), samplePDF} {
		if hints, err := inspectPDF(data); err == nil {
			t.Fatalf("expected error for %q, got %+v", data, hints)
		}
	}
}
