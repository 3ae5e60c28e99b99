package mupdf

import (
	"context"
	"testing"

	"github.com/MeKo-Tech/deckscan/internal/pdf"
	"github.com/MeKo-Tech/deckscan/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRasterize_PaintsVectorText(t *testing.T) {
	r, err := pdf.NewRasterizer(Name)
	require.NoError(t, err)

	doc, err := pdf.Open(testutil.HelloWorldPDF(), pdf.WithRasterizer(r))
	require.NoError(t, err)

	img, err := doc.Rasterize(context.Background(), 1, 1)
	require.NoError(t, err)
	assert.Equal(t, testutil.PageWidth, img.Bounds().Dx())
	assert.False(t, pdf.IsBlank(img))
}

func TestRasterize_VectorOnlyPage(t *testing.T) {
	doc, err := pdf.Open(testutil.OutlinedPDF(), pdf.WithRasterizer(Rasterizer{}))
	require.NoError(t, err)
	assert.Empty(t, doc.ExtractText(1))

	img, err := doc.Rasterize(context.Background(), 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 2*testutil.PageWidth, img.Bounds().Dx())
	assert.False(t, pdf.IsBlank(img), "filled paths are painted")

	fallback, err := pdf.Open(testutil.OutlinedPDF(), pdf.WithRasterizer(pdf.ComposeRasterizer{}))
	require.NoError(t, err)
	img, err = fallback.Rasterize(context.Background(), 1, 2)
	require.NoError(t, err)
	assert.True(t, pdf.IsBlank(img), "compose only places images")
}

func TestDefaultRasterizer(t *testing.T) {
	r, err := pdf.NewRasterizer("")
	require.NoError(t, err)
	assert.IsType(t, Rasterizer{}, r)
	assert.Contains(t, pdf.Rasterizers(), "compose")
	assert.Contains(t, pdf.Rasterizers(), Name)
}

func TestRasterize_TooLarge(t *testing.T) {
	doc, err := pdf.Open(testutil.HelloWorldPDF(), pdf.WithRasterizer(Rasterizer{}))
	require.NoError(t, err)

	_, err = doc.Rasterize(context.Background(), 1, 100)
	var renderErr *pdf.PageRenderError
	require.ErrorAs(t, err, &renderErr)
	assert.Equal(t, 1, renderErr.Page)
}
