package service_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/golang/mock/gomock"
	"github.com/shopspring/decimal"
	auditrepo "github.com/smallbiznis/moviestore/internal/audit/repository"
	auditservice "github.com/smallbiznis/moviestore/internal/audit/service"
	authdomain "github.com/smallbiznis/moviestore/internal/auth/domain"
	"github.com/smallbiznis/moviestore/internal/clock"
	"github.com/smallbiznis/moviestore/internal/config"
	"github.com/smallbiznis/moviestore/internal/events"
	moviedomain "github.com/smallbiznis/moviestore/internal/movie/domain"
	movierepo "github.com/smallbiznis/moviestore/internal/movie/repository"
	paymentdomain "github.com/smallbiznis/moviestore/internal/payment/domain"
	"github.com/smallbiznis/moviestore/internal/payment/mocks"
	"github.com/smallbiznis/moviestore/internal/pricing"
	"github.com/smallbiznis/moviestore/internal/rent/domain"
	"github.com/smallbiznis/moviestore/internal/rent/repository"
	"github.com/smallbiznis/moviestore/internal/rent/service"
	"github.com/smallbiznis/moviestore/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	db       *gorm.DB
	node     *snowflake.Node
	clock    *clock.FakeClock
	gateway  *mocks.MockGateway
	events   *events.Recorder
	svc      domain.Service
	alice    authdomain.Principal
	bob      authdomain.Principal
	admin    authdomain.Principal
	sessions atomic.Int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithPolicy(t, config.DefaultPricingPolicy())
}

func newFixtureWithPolicy(t *testing.T, policy config.PricingPolicy) *fixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	db := testutil.NewDB(t)
	node := testutil.NewNode(t)
	clk := clock.NewFakeClock(time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC))
	gateway := mocks.NewMockGateway(ctrl)
	gateway.EXPECT().Provider().Return("stripe").AnyTimes()

	audit := auditservice.NewService(auditservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  auditrepo.Provide(),
		Clock: clk,
	})
	rec := events.NewRecorder()
	svc := service.New(service.Params{
		DB:        db,
		Log:       zap.NewNop(),
		GenID:     node,
		Config:    config.Config{Payment: config.PaymentConfig{Timeout: time.Second}},
		Repo:      repository.Provide(),
		MovieRepo: movierepo.Provide(),
		Audit:     audit,
		Pricing:   config.NewStaticPricingHolder(policy),
		Gateway:   gateway,
		Events:    rec,
		Clock:     clk,
	})

	f := &fixture{db: db, node: node, clock: clk, gateway: gateway, events: rec, svc: svc}
	f.alice = f.principal(t, "alice", authdomain.RoleCustomer)
	f.bob = f.principal(t, "bob", authdomain.RoleCustomer)
	f.admin = f.principal(t, "root", authdomain.RoleAdmin)
	return f
}

func (f *fixture) principal(t *testing.T, username string, role authdomain.Role) authdomain.Principal {
	id := testutil.SeedUser(t, f.db, f.node, testutil.UserSeed{Username: username, Role: string(role)})
	return authdomain.Principal{UserID: id, Username: username, Email: username + "@example.com", Role: role}
}

// expectCheckout lets the gateway open n sessions with unique references.
func (f *fixture) expectCheckout(n int) {
	f.gateway.EXPECT().
		CreateCheckoutSession(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, req paymentdomain.CheckoutRequest) (*paymentdomain.CheckoutSession, error) {
			seq := f.sessions.Add(1)
			ref := fmt.Sprintf("cs_test_%d", seq)
			return &paymentdomain.CheckoutSession{Reference: ref, URL: "https://checkout.local/" + ref}, nil
		}).
		Times(n)
}

func (f *fixture) date(day int) time.Time {
	return time.Date(2024, 5, day, 0, 0, 0, 0, time.UTC)
}

func (f *fixture) countRents(t *testing.T) int64 {
	var n int64
	require.NoError(t, f.db.Raw(`SELECT COUNT(*) FROM rents`).Scan(&n).Error)
	return n
}

func TestCreateRentPricesAndReservesStock(t *testing.T) {
	f := newFixture(t)
	movieID := testutil.SeedMovie(t, f.db, f.node, testutil.MovieSeed{Title: "Heat", Stock: 5})

	var got paymentdomain.CheckoutRequest
	f.gateway.EXPECT().
		CreateCheckoutSession(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, req paymentdomain.CheckoutRequest) (*paymentdomain.CheckoutSession, error) {
			_, hasDeadline := ctx.Deadline()
			assert.True(t, hasDeadline)
			got = req
			return &paymentdomain.CheckoutSession{Reference: "cs_test_1", URL: "https://checkout.local/cs_test_1"}, nil
		})

	resp, err := f.svc.Create(context.Background(), f.alice, domain.CreateRequest{
		MovieID:  movieID.String(),
		Quantity: 2,
		DueDate:  f.date(12),
	})
	require.NoError(t, err)

	assert.Equal(t, "2.00", resp.Data.Amount)
	assert.Equal(t, "12-05-2024", resp.Data.DueDate)
	assert.Equal(t, domain.StatusAwaitingPayment, resp.Data.Status)
	assert.Equal(t, "cs_test_1", resp.SessionID)
	assert.Equal(t, "https://checkout.local/cs_test_1", resp.SessionURL)
	assert.Equal(t, "0.00", resp.Data.ExtraCharge)
	assert.False(t, resp.Data.Paid)

	assert.True(t, got.Amount.Equal(decimal.RequireFromString("2.00")))
	assert.Equal(t, resp.Data.ID, got.ExternalID)
	assert.Equal(t, "alice@example.com", got.CustomerEmail)
	assert.Equal(t, 3, testutil.MovieStock(t, f.db, movieID))
	assert.Equal(t, []string{events.RentCreated}, f.events.Types())
}

func TestCreateRentRejectionsPersistNothing(t *testing.T) {
	f := newFixture(t)
	movieID := testutil.SeedMovie(t, f.db, f.node, testutil.MovieSeed{Title: "Heat", Stock: 2})

	tests := []struct {
		name     string
		quantity int
		dueDate  time.Time
		code     pricing.Code
	}{
		{name: "zero quantity", quantity: 0, dueDate: f.date(12), code: pricing.QuantityTooLow},
		{name: "more than stock", quantity: 3, dueDate: f.date(12), code: pricing.QuantityUnavailable},
		{name: "due today", quantity: 1, dueDate: f.date(10), code: pricing.DueDateInvalid},
		{name: "due in the past", quantity: 1, dueDate: f.date(1), code: pricing.DueDateInvalid},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Create(context.Background(), f.alice, domain.CreateRequest{
				MovieID:  movieID.String(),
				Quantity: tc.quantity,
				DueDate:  tc.dueDate,
			})
			var rejections pricing.Rejections
			require.True(t, errors.As(err, &rejections), "expected rejections, got %v", err)
			assert.True(t, rejections.Has(tc.code))
		})
	}
	assert.Zero(t, f.countRents(t))
	assert.Equal(t, 2, testutil.MovieStock(t, f.db, movieID))
}

func TestCreateRentUnknownOrUnavailableMovie(t *testing.T) {
	f := newFixture(t)
	hidden := testutil.SeedMovie(t, f.db, f.node, testutil.MovieSeed{Title: "Hidden", Stock: 2, Unavailable: true})

	_, err := f.svc.Create(context.Background(), f.alice, domain.CreateRequest{MovieID: "12345", Quantity: 1, DueDate: f.date(12)})
	assert.ErrorIs(t, err, moviedomain.ErrNotFound)

	_, err = f.svc.Create(context.Background(), f.alice, domain.CreateRequest{MovieID: hidden.String(), Quantity: 1, DueDate: f.date(12)})
	assert.ErrorIs(t, err, domain.ErrMovieUnavailable)

	_, err = f.svc.Create(context.Background(), f.alice, domain.CreateRequest{MovieID: "abc", Quantity: 1, DueDate: f.date(12)})
	assert.ErrorIs(t, err, domain.ErrInvalidMovie)
}

func TestConcurrentRentsForWholeStockAcceptOne(t *testing.T) {
	f := newFixture(t)
	movieID := testutil.SeedMovie(t, f.db, f.node, testutil.MovieSeed{Title: "Heat", Stock: 2})
	f.expectCheckout(1)

	const callers = 2
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Create(context.Background(), f.alice, domain.CreateRequest{
				MovieID:  movieID.String(),
				Quantity: 2,
				DueDate:  f.date(12),
			})
		}(i)
	}
	wg.Wait()

	accepted, rejected := 0, 0
	for _, err := range errs {
		var rejections pricing.Rejections
		switch {
		case err == nil:
			accepted++
		case errors.As(err, &rejections) && rejections.Has(pricing.QuantityUnavailable):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, accepted)
	assert.Equal(t, 1, rejected)
	assert.Equal(t, 0, testutil.MovieStock(t, f.db, movieID))
	assert.EqualValues(t, 1, f.countRents(t))
}

func TestGatewayFailureCompensatesReservation(t *testing.T) {
	f := newFixture(t)
	movieID := testutil.SeedMovie(t, f.db, f.node, testutil.MovieSeed{Title: "Heat", Stock: 3})
	f.gateway.EXPECT().
		CreateCheckoutSession(gomock.Any(), gomock.Any()).
		Return(nil, context.DeadlineExceeded)

	_, err := f.svc.Create(context.Background(), f.alice, domain.CreateRequest{
		MovieID:  movieID.String(),
		Quantity: 2,
		DueDate:  f.date(12),
	})

	var gwErr *paymentdomain.GatewayError
	require.True(t, errors.As(err, &gwErr))
	assert.True(t, gwErr.Timeout)
	assert.Equal(t, "stripe", gwErr.Provider)
	assert.Equal(t, 3, testutil.MovieStock(t, f.db, movieID))
	assert.Zero(t, f.countRents(t))
	assert.Empty(t, f.events.Types())
}

func TestPunctualReturn(t *testing.T) {
	f := newFixture(t)
	movieID := testutil.SeedMovie(t, f.db, f.node, testutil.MovieSeed{Title: "Heat", Stock: 3})
	f.expectCheckout(1)

	created, err := f.svc.Create(context.Background(), f.alice, domain.CreateRequest{MovieID: movieID.String(), Quantity: 2, DueDate: f.date(12)})
	require.NoError(t, err)

	resp, err := f.svc.Return(context.Background(), f.alice, created.Data.ID)
	require.NoError(t, err)

	assert.Equal(t, domain.OutcomePunctualReturn, resp.Outcome)
	assert.True(t, resp.Data.Returned)
	assert.NotNil(t, resp.Data.ReturnedAt)
	assert.Equal(t, "0.00", resp.Data.ExtraCharge)
	assert.Equal(t, domain.StatusReturned, resp.Data.Status)
	assert.Equal(t, 3, testutil.MovieStock(t, f.db, movieID))

	_, err = f.svc.Return(context.Background(), f.alice, created.Data.ID)
	assert.ErrorIs(t, err, domain.ErrAlreadyReturned)
	assert.Equal(t, 3, testutil.MovieStock(t, f.db, movieID))
}

func TestLateReturnGeneratesExtraCharge(t *testing.T) {
	f := newFixture(t)
	movieID := testutil.SeedMovie(t, f.db, f.node, testutil.MovieSeed{Title: "Heat", Stock: 3})
	f.expectCheckout(1)

	created, err := f.svc.Create(context.Background(), f.alice, domain.CreateRequest{MovieID: movieID.String(), Quantity: 2, DueDate: f.date(11)})
	require.NoError(t, err)
	assert.Equal(t, "1.00", created.Data.Amount)

	f.clock.Set(time.Date(2024, 5, 13, 9, 0, 0, 0, time.UTC))
	resp, err := f.svc.Return(context.Background(), f.alice, created.Data.ID)
	require.NoError(t, err)

	assert.Equal(t, domain.OutcomeExtraChargeGenerated, resp.Outcome)
	assert.Equal(t, 2, resp.LateDays)
	assert.Equal(t, "2.00", resp.Data.ExtraCharge)
	assert.True(t, resp.Data.Returned)
	assert.Equal(t, []string{events.RentCreated, events.RentReturned}, f.events.Types())
}

func TestReturnRequiresOwnerOrAdmin(t *testing.T) {
	f := newFixture(t)
	movieID := testutil.SeedMovie(t, f.db, f.node, testutil.MovieSeed{Title: "Heat", Stock: 3})
	f.expectCheckout(1)

	created, err := f.svc.Create(context.Background(), f.alice, domain.CreateRequest{MovieID: movieID.String(), Quantity: 1, DueDate: f.date(12)})
	require.NoError(t, err)

	_, err = f.svc.Return(context.Background(), f.bob, created.Data.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	resp, err := f.svc.Return(context.Background(), f.admin, created.Data.ID)
	require.NoError(t, err)
	assert.True(t, resp.Data.Returned)
}

func TestListIsScopedToOwner(t *testing.T) {
	f := newFixture(t)
	movieID := testutil.SeedMovie(t, f.db, f.node, testutil.MovieSeed{Title: "Heat", Stock: 5})
	f.expectCheckout(2)

	own, err := f.svc.Create(context.Background(), f.alice, domain.CreateRequest{MovieID: movieID.String(), Quantity: 1, DueDate: f.date(12)})
	require.NoError(t, err)
	other, err := f.svc.Create(context.Background(), f.bob, domain.CreateRequest{MovieID: movieID.String(), Quantity: 1, DueDate: f.date(12)})
	require.NoError(t, err)

	aliceView, err := f.svc.List(context.Background(), f.alice, domain.ListRequest{})
	require.NoError(t, err)
	require.Len(t, aliceView, 1)
	assert.Equal(t, own.Data.ID, aliceView[0].ID)

	adminView, err := f.svc.List(context.Background(), f.admin, domain.ListRequest{})
	require.NoError(t, err)
	assert.Len(t, adminView, 2)

	_, err = f.svc.Get(context.Background(), f.alice, other.Data.ID)
	assert.ErrorIs(t, err, domain.ErrRentNotFound)

	got, err := f.svc.Get(context.Background(), f.admin, other.Data.ID)
	require.NoError(t, err)
	assert.Equal(t, other.Data.ID, got.ID)
}

func TestUpdateDueDateRepricesAndReopensCheckout(t *testing.T) {
	f := newFixture(t)
	movieID := testutil.SeedMovie(t, f.db, f.node, testutil.MovieSeed{Title: "Heat", Stock: 2})
	f.expectCheckout(2)

	created, err := f.svc.Create(context.Background(), f.alice, domain.CreateRequest{MovieID: movieID.String(), Quantity: 2, DueDate: f.date(12)})
	require.NoError(t, err)

	due := f.date(14)
	updated, err := f.svc.Update(context.Background(), f.alice, domain.UpdateRequest{ID: created.Data.ID, DueDate: &due})
	require.NoError(t, err)
	assert.Equal(t, "14-05-2024", updated.DueDate)
	assert.Equal(t, "4.00", updated.Amount)
	require.NotNil(t, updated.PaymentURL)
	assert.Equal(t, "https://checkout.local/cs_test_2", *updated.PaymentURL)

	past := f.date(9)
	_, err = f.svc.Update(context.Background(), f.alice, domain.UpdateRequest{ID: created.Data.ID, DueDate: &past})
	var rejections pricing.Rejections
	require.True(t, errors.As(err, &rejections))
	assert.True(t, rejections.Has(pricing.DueDateInvalid))
}

func TestReturnDuringCheckoutSurvivesGatewayFailure(t *testing.T) {
	f := newFixture(t)
	movieID := testutil.SeedMovie(t, f.db, f.node, testutil.MovieSeed{Title: "Heat", Stock: 3})

	var returned *domain.ReturnResponse
	f.gateway.EXPECT().
		CreateCheckoutSession(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, req paymentdomain.CheckoutRequest) (*paymentdomain.CheckoutSession, error) {
			var err error
			returned, err = f.svc.Return(context.Background(), f.alice, req.ExternalID)
			require.NoError(t, err)
			return nil, errors.New("gateway down")
		})

	_, err := f.svc.Create(context.Background(), f.alice, domain.CreateRequest{
		MovieID:  movieID.String(),
		Quantity: 2,
		DueDate:  f.date(12),
	})

	var gwErr *paymentdomain.GatewayError
	require.True(t, errors.As(err, &gwErr))
	require.NotNil(t, returned)
	assert.Equal(t, 3, testutil.MovieStock(t, f.db, movieID))
	assert.EqualValues(t, 1, f.countRents(t))

	stored, err := f.svc.Get(context.Background(), f.alice, returned.Data.ID)
	require.NoError(t, err)
	assert.True(t, stored.Returned)
}

func TestEarlierCheckoutStaysPayableAfterUpdate(t *testing.T) {
	f := newFixture(t)
	movieID := testutil.SeedMovie(t, f.db, f.node, testutil.MovieSeed{Title: "Heat", Stock: 2})
	f.expectCheckout(2)
	repo := repository.Provide()

	created, err := f.svc.Create(context.Background(), f.alice, domain.CreateRequest{MovieID: movieID.String(), Quantity: 1, DueDate: f.date(12)})
	require.NoError(t, err)
	require.Equal(t, "cs_test_1", created.SessionID)

	due := f.date(14)
	updated, err := f.svc.Update(context.Background(), f.alice, domain.UpdateRequest{ID: created.Data.ID, DueDate: &due})
	require.NoError(t, err)
	require.Equal(t, "https://checkout.local/cs_test_2", *updated.PaymentURL)

	rentID, err := snowflake.ParseString(created.Data.ID)
	require.NoError(t, err)
	refs, err := repo.ListCheckoutReferences(context.Background(), f.db, rentID)
	require.NoError(t, err)
	assert.Equal(t, []string{"cs_test_1", "cs_test_2"}, refs)

	flipped, err := repo.MarkPaidByReference(context.Background(), f.db, "cs_test_1", f.clock.Now())
	require.NoError(t, err)
	assert.EqualValues(t, 1, flipped)

	byOld, err := repo.FindByReference(context.Background(), f.db, "cs_test_1")
	require.NoError(t, err)
	require.NotNil(t, byOld)
	assert.True(t, byOld.Paid)
	assert.Equal(t, domain.StatusPaid, byOld.Status)

	flipped, err = repo.MarkPaidByReference(context.Background(), f.db, "cs_test_2", f.clock.Now())
	require.NoError(t, err)
	assert.Zero(t, flipped)

	later := f.date(16)
	_, err = f.svc.Update(context.Background(), f.alice, domain.UpdateRequest{ID: created.Data.ID, DueDate: &later})
	var rejections pricing.Rejections
	require.True(t, errors.As(err, &rejections))
	assert.True(t, rejections.Has(pricing.DueDateInvalid))
}

func TestUpdateRefusedWhenPaidDuringCheckout(t *testing.T) {
	f := newFixture(t)
	movieID := testutil.SeedMovie(t, f.db, f.node, testutil.MovieSeed{Title: "Heat", Stock: 2})
	f.expectCheckout(1)
	repo := repository.Provide()

	created, err := f.svc.Create(context.Background(), f.alice, domain.CreateRequest{MovieID: movieID.String(), Quantity: 1, DueDate: f.date(12)})
	require.NoError(t, err)

	f.gateway.EXPECT().
		CreateCheckoutSession(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, req paymentdomain.CheckoutRequest) (*paymentdomain.CheckoutSession, error) {
			_, err := repo.MarkPaidByReference(context.Background(), f.db, created.SessionID, f.clock.Now())
			require.NoError(t, err)
			return &paymentdomain.CheckoutSession{Reference: "cs_test_late", URL: "https://checkout.local/cs_test_late"}, nil
		})

	due := f.date(14)
	_, err = f.svc.Update(context.Background(), f.alice, domain.UpdateRequest{ID: created.Data.ID, DueDate: &due})
	var rejections pricing.Rejections
	require.True(t, errors.As(err, &rejections))

	stored, err := f.svc.Get(context.Background(), f.alice, created.Data.ID)
	require.NoError(t, err)
	assert.True(t, stored.Paid)
	assert.Equal(t, "12-05-2024", stored.DueDate)
	assert.Equal(t, "1.00", stored.Amount)

	unknown, err := repo.FindByReference(context.Background(), f.db, "cs_test_late")
	require.NoError(t, err)
	assert.Nil(t, unknown)
}

func TestLateReturnWithoutFeeIsStillLate(t *testing.T) {
	policy := config.DefaultPricingPolicy()
	policy.LateFeeMultiplier = decimal.Zero
	f := newFixtureWithPolicy(t, policy)
	movieID := testutil.SeedMovie(t, f.db, f.node, testutil.MovieSeed{Title: "Heat", Stock: 3})
	f.expectCheckout(1)

	created, err := f.svc.Create(context.Background(), f.alice, domain.CreateRequest{MovieID: movieID.String(), Quantity: 1, DueDate: f.date(11)})
	require.NoError(t, err)

	f.clock.Set(time.Date(2024, 5, 13, 9, 0, 0, 0, time.UTC))
	resp, err := f.svc.Return(context.Background(), f.alice, created.Data.ID)
	require.NoError(t, err)

	assert.Equal(t, domain.OutcomeExtraChargeGenerated, resp.Outcome)
	assert.Equal(t, 2, resp.LateDays)
	assert.Equal(t, "0.00", resp.Data.ExtraCharge)
}
