package service_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/moviestore/internal/audit/domain"
	auditrepo "github.com/smallbiznis/moviestore/internal/audit/repository"
	auditservice "github.com/smallbiznis/moviestore/internal/audit/service"
	"github.com/smallbiznis/moviestore/internal/clock"
	"github.com/smallbiznis/moviestore/internal/events"
	"github.com/smallbiznis/moviestore/internal/movie/domain"
	"github.com/smallbiznis/moviestore/internal/movie/repository"
	"github.com/smallbiznis/moviestore/internal/movie/service"
	"github.com/smallbiznis/moviestore/internal/storage"
	"github.com/smallbiznis/moviestore/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	db     *gorm.DB
	node   *snowflake.Node
	svc    domain.Service
	audit  auditdomain.Service
	events *events.Recorder
	store  *storage.Local
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewDB(t)
	node := testutil.NewNode(t)
	store, err := storage.NewLocal(t.TempDir(), "http://cdn.local")
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC))

	audit := auditservice.NewService(auditservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  auditrepo.Provide(),
		Clock: clk,
	})
	rec := events.NewRecorder()
	svc := service.New(service.Params{
		DB:      db,
		Log:     zap.NewNop(),
		GenID:   node,
		Repo:    repository.Provide(),
		Storage: store,
		Audit:   audit,
		Events:  rec,
		Clock:   clk,
	})
	return &fixture{db: db, node: node, svc: svc, audit: audit, events: rec, store: store}
}

func intPtr(v int) *int { return &v }

func pngUpload(name string) domain.ImageUpload {
	return domain.ImageUpload{Filename: name, ContentType: "image/png", Size: 4, Body: strings.NewReader("\x89PNG")}
}

func (f *fixture) create(t *testing.T, title string, stock int) *domain.Response {
	t.Helper()
	resp, err := f.svc.Create(context.Background(), domain.CreateRequest{
		Title:       title,
		Description: "A movie",
		Stock:       intPtr(stock),
		RentalPrice: "0.50",
		SalePrice:   "40",
		Images:      []domain.ImageUpload{pngUpload("cover.png")},
	})
	require.NoError(t, err)
	return resp
}

func TestCreateMovie(t *testing.T) {
	f := newFixture(t)
	resp := f.create(t, "Blade Runner", 3)

	assert.Equal(t, "blade-runner", resp.Slug)
	assert.Equal(t, "0.50", resp.RentalPrice)
	assert.Equal(t, "40.00", resp.SalePrice)
	assert.True(t, resp.Availability)
	require.Len(t, resp.Images, 1)
	assert.True(t, strings.HasPrefix(resp.Images[0].URL, "http://cdn.local/movies/blade-runner/"))
	assert.Equal(t, []string{events.MovieCreated}, f.events.Types())

	logs, err := f.audit.List(context.Background(), auditdomain.ListAuditLogRequest{TargetType: auditdomain.TargetMovie})
	require.NoError(t, err)
	require.Len(t, logs.AuditLogs, 1)
	assert.Equal(t, "movie.create", logs.AuditLogs[0].Action)
	assert.Equal(t, "Blade Runner", logs.AuditLogs[0].Metadata["title"])
	assert.Equal(t, "0.50", logs.AuditLogs[0].Metadata["rental_price"])
}

func TestCreateMovieValidation(t *testing.T) {
	f := newFixture(t)
	base := domain.CreateRequest{
		Title:       "Heat",
		Stock:       intPtr(1),
		RentalPrice: "1.00",
		SalePrice:   "10.00",
		ImageURLs:   []string{"https://img.example.com/heat.jpg"},
	}

	cases := []struct {
		name   string
		mutate func(r *domain.CreateRequest)
		want   error
	}{
		{"missing title", func(r *domain.CreateRequest) { r.Title = "  " }, domain.ErrInvalidTitle},
		{"missing stock", func(r *domain.CreateRequest) { r.Stock = nil }, domain.ErrInvalidStock},
		{"negative stock", func(r *domain.CreateRequest) { r.Stock = intPtr(-1) }, domain.ErrInvalidStock},
		{"bad rental price", func(r *domain.CreateRequest) { r.RentalPrice = "abc" }, domain.ErrInvalidRentalPrice},
		{"three decimals", func(r *domain.CreateRequest) { r.RentalPrice = "1.005" }, domain.ErrInvalidRentalPrice},
		{"negative sale price", func(r *domain.CreateRequest) { r.SalePrice = "-1" }, domain.ErrInvalidSalePrice},
		{"price too large", func(r *domain.CreateRequest) { r.SalePrice = "1000000" }, domain.ErrInvalidSalePrice},
		{"no images", func(r *domain.CreateRequest) { r.ImageURLs = nil }, domain.ErrImageRequired},
		{"bad image url", func(r *domain.CreateRequest) { r.ImageURLs = []string{"ftp://x"} }, domain.ErrInvalidImageURL},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := base
			tc.mutate(&req)
			_, err := f.svc.Create(context.Background(), req)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	list, err := f.svc.List(context.Background(), domain.ListRequest{})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestListOrderedByTitleWithFilters(t *testing.T) {
	f := newFixture(t)
	f.create(t, "Zodiac", 1)
	alien := f.create(t, "Alien", 1)
	f.create(t, "Memento", 1)

	_, err := f.svc.SetAvailability(context.Background(), alien.ID, false)
	require.NoError(t, err)

	all, err := f.svc.List(context.Background(), domain.ListRequest{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"Alien", "Memento", "Zodiac"}, []string{all[0].Title, all[1].Title, all[2].Title})

	available := true
	onlyAvailable, err := f.svc.List(context.Background(), domain.ListRequest{Availability: &available})
	require.NoError(t, err)
	assert.Len(t, onlyAvailable, 2)

	byTitle, err := f.svc.List(context.Background(), domain.ListRequest{Title: "Memento"})
	require.NoError(t, err)
	require.Len(t, byTitle, 1)
	assert.Len(t, byTitle[0].Images, 1)
}

func TestSetAvailabilityMessages(t *testing.T) {
	f := newFixture(t)
	m := f.create(t, "Heat", 1)

	resp, err := f.svc.SetAvailability(context.Background(), m.ID, false)
	require.NoError(t, err)
	assert.Equal(t, "Movie was changed to unavailable.", resp.Message)

	resp, err = f.svc.SetAvailability(context.Background(), m.ID, true)
	require.NoError(t, err)
	assert.Equal(t, "Movie was changed to available.", resp.Message)

	_, err = f.svc.SetAvailability(context.Background(), "12345", true)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUpdateKeepsAtLeastOneImage(t *testing.T) {
	f := newFixture(t)
	m := f.create(t, "Heat", 1)

	_, err := f.svc.Update(context.Background(), domain.UpdateRequest{ID: m.ID, RemoveImageIDs: []string{m.Images[0].ID}})
	assert.ErrorIs(t, err, domain.ErrImageRequired)

	title := "Heat (1995)"
	updated, err := f.svc.Update(context.Background(), domain.UpdateRequest{
		ID:             m.ID,
		Title:          &title,
		RemoveImageIDs: []string{m.Images[0].ID},
		ImageURLs:      []string{"https://img.example.com/heat.jpg"},
	})
	require.NoError(t, err)
	assert.Equal(t, "heat-1995", updated.Slug)
	require.Len(t, updated.Images, 1)
	assert.Equal(t, "https://img.example.com/heat.jpg", updated.Images[0].URL)
	assert.Equal(t, 1, updated.Stock)
}

func TestReplaceRequiresAllFields(t *testing.T) {
	f := newFixture(t)
	m := f.create(t, "Heat", 1)

	_, err := f.svc.Replace(context.Background(), m.ID, domain.CreateRequest{Title: "Heat"})
	assert.ErrorIs(t, err, domain.ErrInvalidStock)

	resp, err := f.svc.Replace(context.Background(), m.ID, domain.CreateRequest{
		Title:       "Heat",
		Stock:       intPtr(9),
		RentalPrice: "2.00",
		SalePrice:   "20.00",
	})
	require.NoError(t, err)
	assert.Equal(t, 9, resp.Stock)
	assert.Len(t, resp.Images, 1)
}

func TestDeleteRemovesImagesAndObjects(t *testing.T) {
	f := newFixture(t)
	m := f.create(t, "Heat", 1)

	require.NoError(t, f.svc.Delete(context.Background(), m.ID))

	_, err := f.svc.Get(context.Background(), m.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	var images int64
	require.NoError(t, f.db.Raw(`SELECT COUNT(*) FROM movie_images`).Scan(&images).Error)
	assert.Zero(t, images)
	assert.Contains(t, f.events.Types(), events.MovieDeleted)
}

func TestToggleLike(t *testing.T) {
	f := newFixture(t)
	m := f.create(t, "Heat", 1)
	user := testutil.SeedUser(t, f.db, f.node, testutil.UserSeed{Username: "alice"})

	resp, err := f.svc.ToggleLike(context.Background(), m.ID, user)
	require.NoError(t, err)
	assert.True(t, resp.Liked)
	assert.Equal(t, 1, resp.LikesCount)

	resp, err = f.svc.ToggleLike(context.Background(), m.ID, user)
	require.NoError(t, err)
	assert.False(t, resp.Liked)
	assert.Equal(t, 0, resp.LikesCount)
}

func TestGetInvalidID(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Get(context.Background(), "not-a-number")
	assert.ErrorIs(t, err, domain.ErrInvalidID)
}
