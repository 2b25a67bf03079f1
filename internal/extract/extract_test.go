package extract

import (
	"archive/zip"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"reelflow/internal/util"
)

func writeEPUB(t *testing.T, path string, chapters map[string]string, spine []string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	zw := zip.NewWriter(f)
	put := func(name, body string) {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	put("mimetype", "application/epub+zip")
	put("META-INF/container.xml", `<?xml version="1.0"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles><rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/></rootfiles>
</container>`)
	manifest := ""
	for id := range chapters {
		manifest += `<item id="` + id + `" href="text/` + id + `.xhtml" media-type="application/xhtml+xml"/>`
	}
	spineXML := ""
	for _, id := range spine {
		spineXML += `<itemref idref="` + id + `"/>`
	}
	put("OEBPS/content.opf", `<?xml version="1.0"?>
<package xmlns="http://www.idpf.org/2007/opf" version="3.0">
  <manifest>`+manifest+`</manifest>
  <spine>`+spineXML+`</spine>
</package>`)
	for id, body := range chapters {
		put("OEBPS/text/"+id+".xhtml", `<html><head><title>x</title><style>p{}</style></head><body>`+body+`</body></html>`)
	}
	require.NoError(t, zw.Close())
}

func TestExtractEPUBFollowsSpineOrder(t *testing.T) {
	dir := t.TempDir()
	writeEPUB(t, filepath.Join(dir, "book.epub"), map[string]string{
		"ch1": "<h1>One</h1><p>First <b>bold</b> words.</p>",
		"ch2": "<p>Second chapter.</p><script>ignored()</script>",
	}, []string{"ch2", "ch1"})

	text, err := New(dir).Extract(context.Background(), "book.epub")
	require.NoError(t, err)
	require.Contains(t, text, "Second chapter.")
	require.Contains(t, text, "First bold words.")
	require.NotContains(t, text, "ignored")
	require.NotContains(t, text, "<p>")
	require.Less(t, strings.Index(text, "Second"), strings.Index(text, "First"))
}

func TestExtractPlainText(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("  hello\x00 world  "), 0o644))
	text, err := New(dir).Extract(context.Background(), "notes.txt")
	require.NoError(t, err)
	require.Equal(t, "hello world", text)
}

func TestExtractFailures(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "empty.txt"), []byte("   "), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.epub"), []byte("not a zip"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "book.doc"), []byte("x"), 0o644))
	e := New(dir)

	cases := map[string]string{
		"missing":     "missing.epub",
		"empty":       "empty.txt",
		"corrupt":     "broken.epub",
		"unsupported": "book.doc",
		"traversal":   "../outside.txt",
	}
	for name, path := range cases {
		_, err := e.Extract(context.Background(), path)
		require.ErrorIs(t, err, util.ErrExtraction, name)
	}

	_, err := e.Extract(context.Background(), "empty.txt")
	require.ErrorIs(t, err, util.ErrNoExtractableText)
}

func TestExtractHonoursCancelledContext(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := runWithContext(ctx, func() (string, error) {
		<-release
		return "", nil
	})
	require.ErrorIs(t, err, context.Canceled)
}

// writePDF lays out objects with a correct xref table. An object body may be
// garbage so the reader trips over it only when it resolves that object.
func writePDF(t *testing.T, path string, objects []string) {
	t.Helper()
	var b strings.Builder
	b.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, body := range objects {
		offsets[i] = b.Len()
		if strings.HasPrefix(body, "@@@@") {
			b.WriteString(body + "\n")
			continue
		}
		fmt.Fprintf(&b, "%d 0 obj\n%s\nendobj\n", i+1, body)
	}
	xref := b.Len()
	fmt.Fprintf(&b, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&b, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&b, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
}

func TestExtractMalformedPDFIsExtractionFailure(t *testing.T) {
	dir := t.TempDir()
	content := "BT /F1 12 Tf 72 720 Td (Hello) Tj ET"
	writePDF(t, filepath.Join(dir, "bad.pdf"), []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 5 0 R >> >> /Contents 4 0 R >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content),
		"@@@@ ]]]]",
	})
	require.NoError(t, os.WriteFile(filepath.Join(dir, "junk.pdf"), []byte("%PDF-1.4 nothing else"), 0o644))

	e := New(dir)
	for _, name := range []string{"bad.pdf", "junk.pdf"} {
		text, err := e.Extract(context.Background(), name)
		require.ErrorIs(t, err, util.ErrExtraction, name)
		require.Empty(t, text, name)
	}
}

func TestRunWithContextRecoversParserPanic(t *testing.T) {
	text, err := runWithContext(context.Background(), func() (string, error) {
		panic("unexpected keyword")
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "parser panic: unexpected keyword")
	require.Empty(t, text)
}
