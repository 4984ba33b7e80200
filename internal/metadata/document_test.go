package metadata

import (
	"bytes"
	"context"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metascrub/backend/internal/testutil"
)

func zipNames(t *testing.T, data []byte) []string {
	t.Helper()
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)

	names := make([]string, 0, len(r.File))
	for _, f := range r.File {
		names = append(names, f.Name)
	}
	return names
}

func zipEntry(t *testing.T, data []byte, name string) string {
	t.Helper()
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)

	for _, f := range r.File {
		if f.Name == name {
			body, err := readZipEntry(f)
			require.NoError(t, err)
			return string(body)
		}
	}
	t.Fatalf("entry %s not found", name)
	return ""
}

func TestDocumentHandler_Extract(t *testing.T) {
	h := NewDocumentHandler()
	dir := t.TempDir()
	ctx := context.Background()

	t.Run("core properties", func(t *testing.T) {
		p := testutil.WriteFile(t, dir, "letter.docx", testutil.DOCX(t, &testutil.CoreProps{
			Title:   "Resignation",
			Creator: "Bob",
		}))

		record, err := h.Extract(ctx, p)
		require.NoError(t, err)
		assert.Equal(t, "Bob", record["author"])
		assert.Equal(t, "Resignation", record["title"])
		assert.Equal(t, "2024-01-02T03:04:05Z", record["created"])
		assert.NotContains(t, record, "subject", "empty properties are omitted")
	})

	t.Run("no core part", func(t *testing.T) {
		p := testutil.WriteFile(t, dir, "bare.docx", testutil.DOCX(t, nil))

		record, err := h.Extract(ctx, p)
		require.NoError(t, err)
		assert.Empty(t, record)
	})
}

func TestDocumentHandler_Strip(t *testing.T) {
	h := NewDocumentHandler()
	dir := t.TempDir()
	ctx := context.Background()

	original := testutil.DOCX(t, &testutil.CoreProps{Title: "Draft", Creator: "Carol"})
	p := testutil.WriteFile(t, dir, "draft.docx", original)

	out, err := h.Strip(ctx, p)
	require.NoError(t, err)

	assert.Equal(t, zipNames(t, original), zipNames(t, out), "entry order is preserved")
	assert.Equal(t, emptyCoreProps, zipEntry(t, out, corePropsPart))
	assert.Equal(t, zipEntry(t, original, "word/document.xml"), zipEntry(t, out, "word/document.xml"))

	cleaned := testutil.WriteFile(t, dir, "cleaned_draft.docx", out)
	record, err := h.Extract(ctx, cleaned)
	require.NoError(t, err)
	assert.NotContains(t, record, "author")
	assert.NotContains(t, record, "title")
	assert.Empty(t, record)
}

func TestCoreProperties_Record(t *testing.T) {
	props := coreProperties{
		Creator:        "  Dana ",
		LastModifiedBy: "Eve",
		Revision:       "3",
	}

	assert.Equal(t, map[string]string{
		"author":           "Dana",
		"last_modified_by": "Eve",
		"revision":         "3",
	}, map[string]string(props.record()))
}
