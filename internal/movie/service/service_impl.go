package service

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/moviestore/internal/audit/domain"
	"github.com/smallbiznis/moviestore/internal/clock"
	"github.com/smallbiznis/moviestore/internal/events"
	"github.com/smallbiznis/moviestore/internal/movie/domain"
	"github.com/smallbiznis/moviestore/internal/pricing"
	"github.com/smallbiznis/moviestore/internal/storage"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	maxTitleLength       = 200
	maxDescriptionLength = 500
)

// Activity log action flags shown by the movie log view.
const (
	actionFlagAddition = 1
	actionFlagChange   = 2
	actionFlagDeletion = 3
)

var maxPrice = decimal.RequireFromString("999999.99")

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Repo    domain.Repository
	Storage storage.Storage
	Audit   auditdomain.Service
	Events  events.Publisher `optional:"true"`
	Clock   clock.Clock      `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	repo    domain.Repository
	storage storage.Storage
	audit   auditdomain.Service
	events  events.Publisher
	clock   clock.Clock
}

func New(p Params) domain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.System{}
	}
	pub := p.Events
	if pub == nil {
		pub = events.NewNoop()
	}
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("movie.service"),
		genID:   p.GenID,
		repo:    p.Repo,
		storage: p.Storage,
		audit:   p.Audit,
		events:  pub,
		clock:   clk,
	}
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) ([]domain.Response, error) {
	items, err := s.repo.List(ctx, s.db, domain.ListFilter{
		Title:        strings.TrimSpace(req.Title),
		Availability: req.Availability,
		SortBy:       strings.TrimSpace(req.SortBy),
		OrderBy:      strings.TrimSpace(req.OrderBy),
	})
	if err != nil {
		return nil, err
	}

	ids := make([]snowflake.ID, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID)
	}
	images, err := s.repo.ListImages(ctx, s.db, ids)
	if err != nil {
		return nil, err
	}
	byMovie := groupImages(images)

	resp := make([]domain.Response, 0, len(items))
	for i := range items {
		resp = append(resp, toResponse(&items[i], byMovie[items[i].ID]))
	}
	return resp, nil
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Response, error) {
	movieID, err := parseID(id)
	if err != nil {
		return nil, err
	}
	movie, err := s.load(ctx, s.db, movieID)
	if err != nil {
		return nil, err
	}
	return s.respond(ctx, movie)
}

func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (*domain.Response, error) {
	fields, err := validateCreate(req)
	if err != nil {
		return nil, err
	}
	if len(req.Images)+len(req.ImageURLs) == 0 {
		return nil, domain.ErrImageRequired
	}

	now := s.clock.Now().UTC()
	movie := &domain.Movie{
		ID:           s.genID.Generate(),
		Title:        fields.title,
		Description:  fields.description,
		Stock:        fields.stock,
		RentalPrice:  fields.rentalPrice,
		SalePrice:    fields.salePrice,
		Availability: fields.availability,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	images, err := s.prepareImages(ctx, movie, req.Images, req.ImageURLs, now)
	if err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		slugValue, err := s.uniqueSlug(ctx, tx, movie.Title, movie.ID)
		if err != nil {
			return err
		}
		movie.Slug = slugValue
		if err := s.repo.Insert(ctx, tx, movie); err != nil {
			return err
		}
		for i := range images {
			if err := s.repo.InsertImage(ctx, tx, &images[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.discardObjects(ctx, images)
		return nil, err
	}

	s.record(ctx, "movie.create", actionFlagAddition, movie)
	s.publish(ctx, events.MovieCreated, movie)

	resp := toResponse(movie, images)
	return &resp, nil
}

// Replace is a full update. Images listed in req replace every current image.
func (s *Service) Replace(ctx context.Context, id string, req domain.CreateRequest) (*domain.Response, error) {
	movieID, err := parseID(id)
	if err != nil {
		return nil, err
	}
	fields, err := validateCreate(req)
	if err != nil {
		return nil, err
	}

	current, err := s.load(ctx, s.db, movieID)
	if err != nil {
		return nil, err
	}
	existing, err := s.repo.ListImages(ctx, s.db, []snowflake.ID{movieID})
	if err != nil {
		return nil, err
	}
	replacing := len(req.Images)+len(req.ImageURLs) > 0
	if !replacing && len(existing) == 0 {
		return nil, domain.ErrImageRequired
	}

	now := s.clock.Now().UTC()
	current.Title = fields.title
	current.Description = fields.description
	current.Stock = fields.stock
	current.RentalPrice = fields.rentalPrice
	current.SalePrice = fields.salePrice
	current.Availability = fields.availability
	current.UpdatedAt = now

	var added []domain.MovieImage
	if replacing {
		added, err = s.prepareImages(ctx, current, req.Images, req.ImageURLs, now)
		if err != nil {
			return nil, err
		}
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		slugValue, err := s.uniqueSlug(ctx, tx, current.Title, current.ID)
		if err != nil {
			return err
		}
		current.Slug = slugValue
		if err := s.repo.Update(ctx, tx, current); err != nil {
			return err
		}
		if !replacing {
			return nil
		}
		for _, img := range existing {
			if err := s.repo.DeleteImage(ctx, tx, current.ID, img.ID); err != nil {
				return err
			}
		}
		for i := range added {
			if err := s.repo.InsertImage(ctx, tx, &added[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.discardObjects(ctx, added)
		return nil, err
	}
	if replacing {
		s.discardObjects(ctx, existing)
	}

	s.record(ctx, "movie.update", actionFlagChange, current)
	s.publish(ctx, events.MovieUpdated, current)
	return s.respond(ctx, current)
}

func (s *Service) Update(ctx context.Context, req domain.UpdateRequest) (*domain.Response, error) {
	movieID, err := parseID(req.ID)
	if err != nil {
		return nil, err
	}
	current, err := s.load(ctx, s.db, movieID)
	if err != nil {
		return nil, err
	}

	if req.Title != nil {
		title, err := normalizeTitle(*req.Title)
		if err != nil {
			return nil, err
		}
		current.Title = title
	}
	if req.Description != nil {
		description := strings.TrimSpace(*req.Description)
		if utf8.RuneCountInString(description) > maxDescriptionLength {
			return nil, domain.ErrInvalidDescription
		}
		current.Description = description
	}
	if req.Stock != nil {
		if *req.Stock < 0 {
			return nil, domain.ErrInvalidStock
		}
		current.Stock = *req.Stock
	}
	if req.RentalPrice != nil {
		price, err := parsePrice(*req.RentalPrice, domain.ErrInvalidRentalPrice)
		if err != nil {
			return nil, err
		}
		current.RentalPrice = price
	}
	if req.SalePrice != nil {
		price, err := parsePrice(*req.SalePrice, domain.ErrInvalidSalePrice)
		if err != nil {
			return nil, err
		}
		current.SalePrice = price
	}
	if req.Availability != nil {
		current.Availability = *req.Availability
	}

	existing, err := s.repo.ListImages(ctx, s.db, []snowflake.ID{movieID})
	if err != nil {
		return nil, err
	}
	removeIDs, err := parseImageIDs(req.RemoveImageIDs)
	if err != nil {
		return nil, err
	}
	var removed []domain.MovieImage
	for _, img := range existing {
		if removeIDs[img.ID] {
			removed = append(removed, img)
		}
	}
	if len(existing)-len(removed)+len(req.Images)+len(req.ImageURLs) == 0 {
		return nil, domain.ErrImageRequired
	}

	now := s.clock.Now().UTC()
	current.UpdatedAt = now
	added, err := s.prepareImages(ctx, current, req.Images, req.ImageURLs, now)
	if err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if req.Title != nil {
			slugValue, err := s.uniqueSlug(ctx, tx, current.Title, current.ID)
			if err != nil {
				return err
			}
			current.Slug = slugValue
		}
		// Stock and availability keep their stored values unless set here.
		if req.Stock == nil || req.Availability == nil {
			fresh, err := s.repo.FindByIDForUpdate(ctx, tx, current.ID)
			if err != nil {
				return err
			}
			if fresh == nil {
				return domain.ErrNotFound
			}
			if req.Stock == nil {
				current.Stock = fresh.Stock
			}
			if req.Availability == nil {
				current.Availability = fresh.Availability
			}
		}
		if err := s.repo.Update(ctx, tx, current); err != nil {
			return err
		}
		for _, img := range removed {
			if err := s.repo.DeleteImage(ctx, tx, current.ID, img.ID); err != nil {
				return err
			}
		}
		for i := range added {
			if err := s.repo.InsertImage(ctx, tx, &added[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.discardObjects(ctx, added)
		return nil, err
	}
	s.discardObjects(ctx, removed)

	s.record(ctx, "movie.update", actionFlagChange, current)
	s.publish(ctx, events.MovieUpdated, current)
	return s.respond(ctx, current)
}

func (s *Service) Delete(ctx context.Context, id string) error {
	movieID, err := parseID(id)
	if err != nil {
		return err
	}
	movie, err := s.load(ctx, s.db, movieID)
	if err != nil {
		return err
	}
	images, err := s.repo.ListImages(ctx, s.db, []snowflake.ID{movieID})
	if err != nil {
		return err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, img := range images {
			if err := s.repo.DeleteImage(ctx, tx, movieID, img.ID); err != nil {
				return err
			}
		}
		return s.repo.Delete(ctx, tx, movieID)
	})
	if err != nil {
		return err
	}
	s.discardObjects(ctx, images)

	s.record(ctx, "movie.delete", actionFlagDeletion, movie)
	s.publish(ctx, events.MovieDeleted, movie)
	return nil
}

func (s *Service) SetAvailability(ctx context.Context, id string, available bool) (*domain.AvailabilityResponse, error) {
	movieID, err := parseID(id)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now().UTC()
	ok, err := s.repo.SetAvailability(ctx, s.db, movieID, available, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrNotFound
	}

	movie, err := s.load(ctx, s.db, movieID)
	if err != nil {
		return nil, err
	}

	action, message := "movie.set_unavailable", domain.MessageUnavailable
	if available {
		action, message = "movie.set_available", domain.MessageAvailable
	}
	s.record(ctx, action, actionFlagChange, movie)
	s.publish(ctx, events.MovieAvailabilityChanged, movie)

	return &domain.AvailabilityResponse{Message: message}, nil
}

// ToggleLike likes the movie for userID, or removes an existing like.
func (s *Service) ToggleLike(ctx context.Context, id string, userID snowflake.ID) (*domain.LikeResponse, error) {
	movieID, err := parseID(id)
	if err != nil {
		return nil, err
	}
	if userID == 0 {
		return nil, domain.ErrInvalidUser
	}

	var liked bool
	var likes int
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		movie, err := s.repo.FindByIDForUpdate(ctx, tx, movieID)
		if err != nil {
			return err
		}
		if movie == nil {
			return domain.ErrNotFound
		}

		removed, err := s.repo.DeleteLike(ctx, tx, movieID, userID)
		if err != nil {
			return err
		}
		delta := -1
		if !removed {
			inserted, err := s.repo.InsertLike(ctx, tx, &domain.MovieLike{
				MovieID:   movieID,
				UserID:    userID,
				CreatedAt: s.clock.Now().UTC(),
			})
			if err != nil {
				return err
			}
			if !inserted {
				delta = 0
			} else {
				delta = 1
			}
			liked = true
		}
		if delta != 0 {
			if err := s.repo.AdjustLikes(ctx, tx, movieID, delta); err != nil {
				return err
			}
		}

		updated, err := s.repo.FindByID(ctx, tx, movieID)
		if err != nil {
			return err
		}
		likes = updated.LikesCount
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &domain.LikeResponse{Liked: liked, LikesCount: likes}, nil
}

func (s *Service) load(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Movie, error) {
	movie, err := s.repo.FindByID(ctx, db, id)
	if err != nil {
		return nil, err
	}
	if movie == nil {
		return nil, domain.ErrNotFound
	}
	return movie, nil
}

func (s *Service) respond(ctx context.Context, movie *domain.Movie) (*domain.Response, error) {
	images, err := s.repo.ListImages(ctx, s.db, []snowflake.ID{movie.ID})
	if err != nil {
		return nil, err
	}
	resp := toResponse(movie, images)
	return &resp, nil
}

func (s *Service) prepareImages(ctx context.Context, movie *domain.Movie, uploads []domain.ImageUpload, urls []string, now time.Time) ([]domain.MovieImage, error) {
	images := make([]domain.MovieImage, 0, len(uploads)+len(urls))
	for _, raw := range urls {
		parsed, err := url.Parse(strings.TrimSpace(raw))
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
			return nil, domain.ErrInvalidImageURL
		}
		images = append(images, domain.MovieImage{
			ID:        s.genID.Generate(),
			MovieID:   movie.ID,
			URL:       parsed.String(),
			CreatedAt: now,
		})
	}

	for _, upload := range uploads {
		if upload.Body == nil {
			s.discardObjects(ctx, images)
			return nil, domain.ErrInvalidImage
		}
		key, err := storage.ImageKey(movie.Title, upload.ContentType)
		if err != nil {
			s.discardObjects(ctx, images)
			return nil, domain.ErrInvalidImage
		}
		obj, err := s.storage.Put(ctx, key, upload.Body, upload.Size, upload.ContentType)
		if err != nil {
			s.discardObjects(ctx, images)
			return nil, fmt.Errorf("store image %s: %w", upload.Filename, err)
		}
		images = append(images, domain.MovieImage{
			ID:          s.genID.Generate(),
			MovieID:     movie.ID,
			StorageKey:  obj.Key,
			URL:         obj.URL,
			ContentType: obj.ContentType,
			CreatedAt:   now,
		})
	}
	return images, nil
}

func (s *Service) discardObjects(ctx context.Context, images []domain.MovieImage) {
	for _, img := range images {
		if img.StorageKey == "" {
			continue
		}
		if err := s.storage.Delete(ctx, img.StorageKey); err != nil {
			s.log.Warn("failed to delete image object", zap.String("key", img.StorageKey), zap.Error(err))
		}
	}
}

func (s *Service) uniqueSlug(ctx context.Context, db *gorm.DB, title string, id snowflake.ID) (string, error) {
	base := slug.Make(title)
	if base == "" {
		base = "movie"
	}
	exists, err := s.repo.SlugExists(ctx, db, base, id)
	if err != nil {
		return "", err
	}
	if !exists {
		return base, nil
	}
	return fmt.Sprintf("%s-%s", base, strings.ToLower(id.Base36())), nil
}

func (s *Service) record(ctx context.Context, action string, flag int, movie *domain.Movie) {
	if s.audit == nil {
		return
	}
	targetID := movie.ID.String()
	err := s.audit.AuditLog(ctx, "", nil, action, auditdomain.TargetMovie, &targetID, map[string]any{
		"action_flag":  flag,
		"title":        movie.Title,
		"rental_price": pricing.Format(movie.RentalPrice),
		"sale_price":   pricing.Format(movie.SalePrice),
	})
	if err != nil {
		s.log.Warn("failed to record movie activity", zap.String("action", action), zap.Error(err))
	}
}

func (s *Service) publish(ctx context.Context, eventType string, movie *domain.Movie) {
	payload := map[string]any{
		"movie_id":     movie.ID.String(),
		"title":        movie.Title,
		"stock":        movie.Stock,
		"availability": movie.Availability,
	}
	if err := s.events.Publish(ctx, eventType, payload); err != nil {
		s.log.Warn("failed to publish movie event", zap.String("type", eventType), zap.Error(err))
	}
}

type movieFields struct {
	title        string
	description  string
	stock        int
	rentalPrice  decimal.Decimal
	salePrice    decimal.Decimal
	availability bool
}

func validateCreate(req domain.CreateRequest) (movieFields, error) {
	var out movieFields
	title, err := normalizeTitle(req.Title)
	if err != nil {
		return out, err
	}
	description := strings.TrimSpace(req.Description)
	if utf8.RuneCountInString(description) > maxDescriptionLength {
		return out, domain.ErrInvalidDescription
	}
	if req.Stock == nil || *req.Stock < 0 {
		return out, domain.ErrInvalidStock
	}
	rental, err := parsePrice(req.RentalPrice, domain.ErrInvalidRentalPrice)
	if err != nil {
		return out, err
	}
	sale, err := parsePrice(req.SalePrice, domain.ErrInvalidSalePrice)
	if err != nil {
		return out, err
	}

	out = movieFields{
		title:        title,
		description:  description,
		stock:        *req.Stock,
		rentalPrice:  rental,
		salePrice:    sale,
		availability: true,
	}
	if req.Availability != nil {
		out.availability = *req.Availability
	}
	return out, nil
}

func normalizeTitle(raw string) (string, error) {
	title := strings.TrimSpace(raw)
	if title == "" || utf8.RuneCountInString(title) > maxTitleLength {
		return "", domain.ErrInvalidTitle
	}
	return title, nil
}

// parsePrice accepts non-negative amounts with at most two decimals that fit
// a numeric(8,2) column.
func parsePrice(raw string, invalid error) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Decimal{}, invalid
	}
	if d.IsNegative() || !d.Equal(d.Round(2)) || d.GreaterThan(maxPrice) {
		return decimal.Decimal{}, invalid
	}
	return d.Round(2), nil
}

func parseID(raw string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(raw))
	if err != nil || id <= 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}

func parseImageIDs(raw []string) (map[snowflake.ID]bool, error) {
	out := make(map[snowflake.ID]bool, len(raw))
	for _, item := range raw {
		id, err := parseID(item)
		if err != nil {
			return nil, domain.ErrInvalidImage
		}
		out[id] = true
	}
	return out, nil
}

func groupImages(images []domain.MovieImage) map[snowflake.ID][]domain.MovieImage {
	out := make(map[snowflake.ID][]domain.MovieImage)
	for _, img := range images {
		out[img.MovieID] = append(out[img.MovieID], img)
	}
	return out
}

func toResponse(m *domain.Movie, images []domain.MovieImage) domain.Response {
	resp := domain.Response{
		ID:           m.ID.String(),
		Title:        m.Title,
		Slug:         m.Slug,
		Description:  m.Description,
		Stock:        m.Stock,
		RentalPrice:  pricing.Format(m.RentalPrice),
		SalePrice:    pricing.Format(m.SalePrice),
		Availability: m.Availability,
		LikesCount:   m.LikesCount,
		Images:       make([]domain.ImageResponse, 0, len(images)),
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
	for _, img := range images {
		resp.Images = append(resp.Images, domain.ImageResponse{ID: img.ID.String(), URL: img.URL})
	}
	return resp
}
