package service

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fadilmartias/climate-tracker/internal/apperror"
)

type fakePages struct {
	pages  []string
	failOn int
	closed int
	opened []byte
}

func (f *fakePages) NumPage() int { return len(f.pages) }

func (f *fakePages) Text(n int) (string, error) {
	if f.failOn == n+1 {
		return "", errors.New("broken page")
	}
	return f.pages[n], nil
}

func (f *fakePages) Close() error {
	f.closed++
	return nil
}

func openerFor(f *fakePages) DocumentOpener {
	return func(data []byte) (PageSource, error) {
		f.opened = data
		return f, nil
	}
}

var samplePDF = []byte("%PDF-1.7\n...binary...")

func TestExtractTextJoinsPagesAndCloses(t *testing.T) {
	doc := &fakePages{pages: []string{
		"  Calgary Climate Assessment 2023  ",
		"",
		strings.Repeat("Indicator scores and recommendations. ", 5),
	}}
	svc := NewPDFTextService(openerFor(doc), 50, nil)

	text, err := svc.ExtractText(context.Background(), samplePDF)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(text, "Calgary Climate Assessment 2023\n\nIndicator scores"))
	assert.Equal(t, 1, doc.closed)
	assert.Equal(t, samplePDF, doc.opened)
}

func TestExtractTextDecodesBase64Payload(t *testing.T) {
	doc := &fakePages{pages: []string{strings.Repeat("text ", 40)}}
	svc := NewPDFTextService(openerFor(doc), 0, nil)

	encoded := base64.StdEncoding.EncodeToString(samplePDF)
	_, err := svc.ExtractText(context.Background(), []byte(encoded))
	require.NoError(t, err)
	assert.Equal(t, samplePDF, doc.opened)

	_, err = svc.ExtractText(context.Background(), []byte("data:application/pdf;base64,"+encoded))
	require.NoError(t, err)
	assert.Equal(t, samplePDF, doc.opened)
}

func TestExtractTextScannedDocumentIsUnreadable(t *testing.T) {
	doc := &fakePages{pages: []string{"", "  ", "\n"}}
	svc := NewPDFTextService(openerFor(doc), 100, nil)

	_, err := svc.ExtractText(context.Background(), samplePDF)
	require.Error(t, err)
	assert.Equal(t, apperror.KindUnreadableDocument, apperror.KindOf(err))
	assert.Contains(t, apperror.From(err).Message, "no readable text")
	assert.Equal(t, 1, doc.closed, "document must be released on failure")
}

func TestExtractTextSkipsBrokenPages(t *testing.T) {
	doc := &fakePages{pages: []string{strings.Repeat("a", 60), "ignored", strings.Repeat("b", 60)}, failOn: 2}
	svc := NewPDFTextService(openerFor(doc), 100, nil)

	text, err := svc.ExtractText(context.Background(), samplePDF)
	require.NoError(t, err)
	assert.NotContains(t, text, "ignored")
}

func TestExtractTextRejectsNonPDFPayload(t *testing.T) {
	svc := NewPDFTextService(openerFor(&fakePages{}), 0, nil)

	for _, payload := range [][]byte{nil, []byte("not base64 !!"), []byte(base64.StdEncoding.EncodeToString([]byte("hello")))} {
		_, err := svc.ExtractText(context.Background(), payload)
		assert.Equal(t, apperror.KindUnreadableDocument, apperror.KindOf(err), "payload %q", payload)
	}
}

func TestExtractTextOpenFailure(t *testing.T) {
	svc := NewPDFTextService(func([]byte) (PageSource, error) {
		return nil, errors.New("corrupt xref")
	}, 0, nil)

	_, err := svc.ExtractText(context.Background(), samplePDF)
	assert.Equal(t, apperror.KindUnreadableDocument, apperror.KindOf(err))
}

func TestOpenerForEngine(t *testing.T) {
	for _, name := range []string{"", "fitz", "FITZ", "pure"} {
		open, err := OpenerForEngine(name)
		require.NoError(t, err, name)
		assert.NotNil(t, open)
	}
	_, err := OpenerForEngine("tesseract")
	assert.Error(t, err)
}
