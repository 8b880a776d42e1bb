package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/maklermate/maklermate-api/internal/domain"
	"github.com/maklermate/maklermate-api/internal/repository"
	"github.com/maklermate/maklermate-api/internal/service"
	"github.com/maklermate/maklermate-api/internal/store"
	"github.com/maklermate/maklermate-api/internal/textgen"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubGenerator struct {
	text    string
	err     error
	prompts []string
}

func (g *stubGenerator) Generate(_ context.Context, prompt string) (string, error) {
	g.prompts = append(g.prompts, prompt)
	return g.text, g.err
}

func createExposeService(t *testing.T, gen textgen.Generator) *service.ExposeService {
	t.Helper()
	repo := repository.NewExposeRepository(store.NewMemoryBackend(store.NewMemoryHub(), 0), "", repository.Options{
		Debounce: time.Hour,
	})
	t.Cleanup(func() { repo.Close() })
	return service.NewExposeService(repo, gen, zap.NewNop())
}

func createTestExpose(t *testing.T, svc *service.ExposeService, ctx context.Context) *domain.SavedExpose {
	t.Helper()
	e, err := svc.Create(ctx, &domain.CreateExposeRequest{
		FormData:      map[string]string{"adresse": "Hauptstraße 1", "zimmer": "3"},
		Output:        "Charmante Altbauwohnung",
		SelectedStyle: "SACHLICH",
		Images:        []string{"a.jpg", "b.jpg", "c.jpg"},
		Captions:      []string{"Außen", "Küche"},
	})
	require.NoError(t, err)
	return e
}

func TestExposeService_Create(t *testing.T) {
	svc := createExposeService(t, nil)
	ctx := createTestContext()

	e := createTestExpose(t, svc, ctx)
	assert.NotEmpty(t, e.ID)
	assert.Equal(t, domain.ExposeStyleFactual, e.SelectedStyle)
	assert.Equal(t, []string{"a.jpg", "b.jpg", "c.jpg"}, e.Images)
	assert.Equal(t, []string{"Außen", "Küche", ""}, e.Captions, "captions are padded to the images")

	stored, err := svc.GetByID(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, *e, *stored)
}

func TestExposeService_ImageOperations(t *testing.T) {
	svc := createExposeService(t, nil)
	ctx := createTestContext()
	e := createTestExpose(t, svc, ctx)

	e, err := svc.AddImage(ctx, e.ID, &domain.AddImageRequest{Image: "d.jpg", Caption: "Garten"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.jpg", "b.jpg", "c.jpg", "d.jpg"}, e.Images)
	assert.Equal(t, []string{"Außen", "Küche", "", "Garten"}, e.Captions)

	e, err = svc.MoveImage(ctx, e.ID, &domain.MoveImageRequest{From: 3, To: 0})
	require.NoError(t, err)
	assert.Equal(t, []string{"d.jpg", "a.jpg", "b.jpg", "c.jpg"}, e.Images)
	assert.Equal(t, []string{"Garten", "Außen", "Küche", ""}, e.Captions)

	e, err = svc.SetCaption(ctx, e.ID, 3, &domain.CaptionRequest{Caption: "Bad"})
	require.NoError(t, err)
	assert.Equal(t, "Bad", e.Captions[3])

	e, err = svc.RemoveImage(ctx, e.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"d.jpg", "b.jpg", "c.jpg"}, e.Images)
	assert.Equal(t, []string{"Garten", "Küche", "Bad"}, e.Captions)

	stored, err := svc.GetByID(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, e.Images, stored.Images)
	assert.Equal(t, len(stored.Images), len(stored.Captions))
}

func TestExposeService_ImageIndexOutOfRange(t *testing.T) {
	svc := createExposeService(t, nil)
	ctx := createTestContext()
	e := createTestExpose(t, svc, ctx)

	tests := []struct {
		name string
		call func() error
	}{
		{"remove", func() error { _, err := svc.RemoveImage(ctx, e.ID, 3); return err }},
		{"remove negative", func() error { _, err := svc.RemoveImage(ctx, e.ID, -1); return err }},
		{"move", func() error {
			_, err := svc.MoveImage(ctx, e.ID, &domain.MoveImageRequest{From: 0, To: 9})
			return err
		}},
		{"caption", func() error {
			_, err := svc.SetCaption(ctx, e.ID, 7, &domain.CaptionRequest{Caption: "x"})
			return err
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.call(), domain.ErrValidation)
		})
	}

	stored, err := svc.GetByID(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, e.UpdatedAt, stored.UpdatedAt, "failed operations do not write")
}

func TestExposeService_UpdateAndList(t *testing.T) {
	svc := createExposeService(t, nil)
	ctx := createTestContext()
	first := createTestExpose(t, svc, ctx)
	time.Sleep(2 * time.Millisecond)
	second, err := svc.Create(ctx, &domain.CreateExposeRequest{
		FormData: map[string]string{"adresse": "Seeweg 7"},
		Output:   "Villa am See",
	})
	require.NoError(t, err)

	updated, err := svc.Update(ctx, first.ID, &domain.UpdateExposeRequest{Output: strPtr("Neu formuliert")})
	require.NoError(t, err)
	assert.Equal(t, "Neu formuliert", updated.Output)
	assert.Equal(t, first.FormData, updated.FormData)

	all, err := svc.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, second.ID, all[0].ID, "newest first")

	found, err := svc.List(ctx, "seeweg")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, second.ID, found[0].ID)

	require.NoError(t, svc.Delete(ctx, second.ID))
	assert.ErrorIs(t, svc.Delete(ctx, second.ID), domain.ErrNotFound)
}

func TestExposeService_Generate(t *testing.T) {
	ctx := createTestContext()
	form := map[string]string{"adresse": "Hauptstraße 1"}

	t.Run("without save", func(t *testing.T) {
		gen := &stubGenerator{text: "Traumhafte Wohnung"}
		svc := createExposeService(t, gen)

		resp, err := svc.Generate(ctx, &domain.GenerateExposeRequest{FormData: form, Style: "luxus"})
		require.NoError(t, err)
		assert.Equal(t, "Traumhafte Wohnung", resp.Output)
		assert.Nil(t, resp.Expose)
		require.Len(t, gen.prompts, 1)
		assert.Contains(t, gen.prompts[0], "Hauptstraße 1")

		all, err := svc.List(ctx, "")
		require.NoError(t, err)
		assert.Empty(t, all)
	})

	t.Run("with save", func(t *testing.T) {
		svc := createExposeService(t, &stubGenerator{text: "Traumhafte Wohnung"})

		resp, err := svc.Generate(ctx, &domain.GenerateExposeRequest{FormData: form, Style: "quatsch", Save: true})
		require.NoError(t, err)
		require.NotNil(t, resp.Expose)
		assert.Equal(t, domain.ExposeStyleEmotional, resp.Expose.SelectedStyle)
		assert.Equal(t, "Traumhafte Wohnung", resp.Expose.Output)
	})

	t.Run("generator failure", func(t *testing.T) {
		boom := errors.New("upstream down")
		svc := createExposeService(t, &stubGenerator{err: boom})
		_, err := svc.Generate(ctx, &domain.GenerateExposeRequest{FormData: form})
		assert.ErrorIs(t, err, boom)
	})

	t.Run("no generator", func(t *testing.T) {
		svc := createExposeService(t, nil)
		_, err := svc.Generate(ctx, &domain.GenerateExposeRequest{FormData: form})
		assert.ErrorIs(t, err, service.ErrGeneratorUnavailable)
	})
}

func TestExposeService_ImportExport(t *testing.T) {
	ctx := createTestContext()
	src := createExposeService(t, nil)
	e := createTestExpose(t, src, ctx)

	export, err := src.Export(ctx, service.FormatJSON, "")
	require.NoError(t, err)

	dst := createExposeService(t, nil)
	res, err := dst.Import(ctx, export.Data)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Imported)

	imported, err := dst.GetByID(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, *e, *imported)

	csv, err := src.Export(ctx, service.FormatCSV, "")
	require.NoError(t, err)
	assert.Equal(t, "text/csv; charset=utf-8", csv.ContentType)

	_, err = src.Export(ctx, service.FormatText, "")
	assert.ErrorIs(t, err, service.ErrUnsupportedFormat)

	_, err = dst.Import(ctx, []byte(`"nope"`))
	assert.ErrorIs(t, err, domain.ErrInvalidFormat)
}

func TestExposeService_BulkDelete(t *testing.T) {
	svc := createExposeService(t, nil)
	ctx := createTestContext()
	a := createTestExpose(t, svc, ctx)
	b := createTestExpose(t, svc, ctx)

	res, err := svc.BulkDelete(ctx, &domain.BulkDeleteRequest{IDs: []string{a.ID, b.ID, "x"}})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Affected)

	createTestExpose(t, svc, ctx)
	require.NoError(t, svc.DeleteAll(ctx))
	all, err := svc.List(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, all)
}
