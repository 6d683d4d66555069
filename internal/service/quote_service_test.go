package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"quote-service/internal/models"
	"quote-service/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) GetProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error) {
	args := m.Called(ctx, ids)
	return args.Get(0).([]models.Product), args.Error(1)
}

func (m *mockStore) ReserveQuote(ctx context.Context, quote *models.Quote, items []models.QuoteItem) error {
	args := m.Called(ctx, quote, items)
	return args.Error(0)
}

func (m *mockStore) MarkQuoteUsed(ctx context.Context, quoteID string) (*models.Quote, error) {
	args := m.Called(ctx, quoteID)
	var quote *models.Quote
	if v := args.Get(0); v != nil {
		quote = v.(*models.Quote)
	}
	return quote, args.Error(1)
}

func (m *mockStore) ReleaseQuote(ctx context.Context, quoteID, reason string, guard store.ReleaseGuard) (*store.ReleaseResult, error) {
	args := m.Called(ctx, quoteID, reason, guard)
	var result *store.ReleaseResult
	if v := args.Get(0); v != nil {
		result = v.(*store.ReleaseResult)
	}
	return result, args.Error(1)
}

func (m *mockStore) GetQuote(ctx context.Context, quoteID string) (*models.Quote, error) {
	args := m.Called(ctx, quoteID)
	var quote *models.Quote
	if v := args.Get(0); v != nil {
		quote = v.(*models.Quote)
	}
	return quote, args.Error(1)
}

func (m *mockStore) ListExpiredQuoteIDs(ctx context.Context, limit int) ([]string, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).([]string), args.Error(1)
}

func (m *mockStore) SetProviderTransactionID(ctx context.Context, quoteID, txID string) error {
	args := m.Called(ctx, quoteID, txID)
	return args.Error(0)
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) PublishQuoteIssued(ctx context.Context, event *models.QuoteIssuedEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *mockPublisher) PublishQuoteRedeemed(ctx context.Context, event *models.QuoteRedeemedEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *mockPublisher) PublishQuoteReleased(ctx context.Context, event *models.QuoteReleasedEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func boolPtr(b bool) *bool { return &b }

func newTestService(st *mockStore, pub *mockPublisher) *QuoteService {
	sweeper := NewSweeper(st, pub, 50)
	return NewQuoteService(st, NewZoneShippingCalculator(), sweeper, pub, 20*time.Minute)
}

func expectCleanSweep(st *mockStore) {
	st.On("ListExpiredQuoteIDs", mock.Anything, 50).Return([]string{}, nil)
}

func TestIssueQuoteEmptyCart(t *testing.T) {
	st := new(mockStore)
	pub := new(mockPublisher)
	svc := newTestService(st, pub)

	_, err := svc.IssueQuote(context.Background(), &IssueQuoteRequest{Zone: "CABA"})
	require.Error(t, err)

	rejection, ok := models.AsRejection(err)
	require.True(t, ok)
	assert.Equal(t, models.CodeItemsMissing, rejection.Code)
	st.AssertNotCalled(t, "ReserveQuote", mock.Anything, mock.Anything, mock.Anything)
}

func TestIssueQuoteNonPositiveQuantity(t *testing.T) {
	st := new(mockStore)
	pub := new(mockPublisher)
	svc := newTestService(st, pub)

	for _, quantity := range []int{0, -3} {
		_, err := svc.IssueQuote(context.Background(), &IssueQuoteRequest{
			Items: []CartItemRequest{{ProductID: 10, Quantity: quantity}},
			Zone:  "CABA",
		})
		require.Error(t, err)

		rejection, ok := models.AsRejection(err)
		require.True(t, ok)
		assert.Equal(t, models.CodeItemsMissing, rejection.Code)
		assert.Equal(t, int64(10), rejection.ProductID)
	}

	// A negative line must never reach the store, where it would add
	// stock instead of subtracting it.
	st.AssertNotCalled(t, "GetProductsByIDs", mock.Anything, mock.Anything)
	st.AssertNotCalled(t, "ReserveQuote", mock.Anything, mock.Anything, mock.Anything)
}

func TestIssueQuoteDuplicatesCancellingOut(t *testing.T) {
	st := new(mockStore)
	pub := new(mockPublisher)
	svc := newTestService(st, pub)

	// Duplicate lines merge by sum, so a pair netting to zero is
	// rejected the same way a zero line is.
	_, err := svc.IssueQuote(context.Background(), &IssueQuoteRequest{
		Items: []CartItemRequest{
			{ProductID: 10, Quantity: 2},
			{ProductID: 10, Quantity: -2},
		},
		Zone: "CABA",
	})
	require.Error(t, err)

	rejection, ok := models.AsRejection(err)
	require.True(t, ok)
	assert.Equal(t, models.CodeItemsMissing, rejection.Code)
	st.AssertNotCalled(t, "ReserveQuote", mock.Anything, mock.Anything, mock.Anything)
}

func TestIssueQuoteSuccess(t *testing.T) {
	st := new(mockStore)
	pub := new(mockPublisher)
	svc := newTestService(st, pub)

	expectCleanSweep(st)
	st.On("GetProductsByIDs", mock.Anything, []int64{10}).Return([]models.Product{
		{ID: 10, Name: "Lamp", Category: "home", Price: 100, Stock: 2, Active: boolPtr(true)},
	}, nil)
	st.On("ReserveQuote", mock.Anything, mock.AnythingOfType("*models.Quote"), mock.Anything).Return(nil)
	pub.On("PublishQuoteIssued", mock.Anything, mock.AnythingOfType("*models.QuoteIssuedEvent")).Return(nil)

	resp, err := svc.IssueQuote(context.Background(), &IssueQuoteRequest{
		Items: []CartItemRequest{{ProductID: 10, Quantity: 2}},
		Zone:  "CABA",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, resp.QuoteID)
	assert.Equal(t, int64(200), resp.Subtotal)
	assert.Equal(t, int64(2500), resp.ShippingCost)
	assert.Equal(t, int64(200+2500), resp.Total)
	assert.WithinDuration(t, time.Now().Add(20*time.Minute), resp.ExpiresAt, 2*time.Second)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, "Lamp", resp.Items[0].Title)
	st.AssertExpectations(t)
}

func TestIssueQuoteDeduplicatesItems(t *testing.T) {
	st := new(mockStore)
	pub := new(mockPublisher)
	svc := newTestService(st, pub)

	expectCleanSweep(st)
	st.On("GetProductsByIDs", mock.Anything, []int64{10}).Return([]models.Product{
		{ID: 10, Name: "Lamp", Price: 100, Stock: 5},
	}, nil)
	st.On("ReserveQuote", mock.Anything, mock.Anything, mock.MatchedBy(func(items []models.QuoteItem) bool {
		return len(items) == 1 && items[0].Quantity == 3
	})).Return(nil)
	pub.On("PublishQuoteIssued", mock.Anything, mock.Anything).Return(nil)

	resp, err := svc.IssueQuote(context.Background(), &IssueQuoteRequest{
		Items: []CartItemRequest{
			{ProductID: 10, Quantity: 1},
			{ProductID: 10, Quantity: 2},
		},
		Zone: "CABA",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(300), resp.Subtotal)
	st.AssertExpectations(t)
}

func TestIssueQuoteInsufficientStockPrecheck(t *testing.T) {
	st := new(mockStore)
	pub := new(mockPublisher)
	svc := newTestService(st, pub)

	expectCleanSweep(st)
	st.On("GetProductsByIDs", mock.Anything, []int64{10}).Return([]models.Product{
		{ID: 10, Name: "Lamp", Price: 100, Stock: 1},
	}, nil)

	_, err := svc.IssueQuote(context.Background(), &IssueQuoteRequest{
		Items: []CartItemRequest{{ProductID: 10, Quantity: 2}},
		Zone:  "CABA",
	})
	require.Error(t, err)

	rejection, ok := models.AsRejection(err)
	require.True(t, ok)
	assert.Equal(t, models.CodeInsufficientStock, rejection.Code)
	assert.Equal(t, int64(10), rejection.ProductID)
	assert.Equal(t, 1, rejection.Available)
	assert.Equal(t, 2, rejection.Requested)
	st.AssertNotCalled(t, "ReserveQuote", mock.Anything, mock.Anything, mock.Anything)
}

func TestIssueQuoteInactiveProduct(t *testing.T) {
	st := new(mockStore)
	pub := new(mockPublisher)
	svc := newTestService(st, pub)

	expectCleanSweep(st)
	st.On("GetProductsByIDs", mock.Anything, []int64{10}).Return([]models.Product{
		{ID: 10, Name: "Lamp", Price: 100, Stock: 5, Active: boolPtr(false)},
	}, nil)

	_, err := svc.IssueQuote(context.Background(), &IssueQuoteRequest{
		Items: []CartItemRequest{{ProductID: 10, Quantity: 1}},
		Zone:  "CABA",
	})
	require.Error(t, err)

	rejection, ok := models.AsRejection(err)
	require.True(t, ok)
	assert.Equal(t, models.CodeProductInactive, rejection.Code)
}

func TestIssueQuoteProductNotFound(t *testing.T) {
	st := new(mockStore)
	pub := new(mockPublisher)
	svc := newTestService(st, pub)

	expectCleanSweep(st)
	st.On("GetProductsByIDs", mock.Anything, []int64{10, 11}).Return([]models.Product{
		{ID: 10, Name: "Lamp", Price: 100, Stock: 5},
	}, nil)

	_, err := svc.IssueQuote(context.Background(), &IssueQuoteRequest{
		Items: []CartItemRequest{
			{ProductID: 10, Quantity: 1},
			{ProductID: 11, Quantity: 1},
		},
		Zone: "CABA",
	})
	require.Error(t, err)

	rejection, ok := models.AsRejection(err)
	require.True(t, ok)
	assert.Equal(t, models.CodeProductNotFound, rejection.Code)
	assert.Equal(t, int64(11), rejection.ProductID)
}

func TestIssueQuoteCannotShip(t *testing.T) {
	st := new(mockStore)
	pub := new(mockPublisher)
	svc := newTestService(st, pub)

	expectCleanSweep(st)
	st.On("GetProductsByIDs", mock.Anything, []int64{10}).Return([]models.Product{
		{ID: 10, Name: "Lamp", Price: 100, Stock: 5},
	}, nil)

	_, err := svc.IssueQuote(context.Background(), &IssueQuoteRequest{
		Items: []CartItemRequest{{ProductID: 10, Quantity: 1}},
		Zone:  "ANTARCTICA",
	})
	require.Error(t, err)

	rejection, ok := models.AsRejection(err)
	require.True(t, ok)
	assert.Equal(t, models.CodeCannotShip, rejection.Code)
	assert.NotEmpty(t, rejection.Reason)
	st.AssertNotCalled(t, "ReserveQuote", mock.Anything, mock.Anything, mock.Anything)
}

func TestIssueQuoteReserveStageRace(t *testing.T) {
	st := new(mockStore)
	pub := new(mockPublisher)
	svc := newTestService(st, pub)

	// Pre-check passes against the stale read, the atomic decrement
	// then fails because a concurrent reservation won the stock.
	expectCleanSweep(st)
	st.On("GetProductsByIDs", mock.Anything, []int64{10}).Return([]models.Product{
		{ID: 10, Name: "Lamp", Price: 100, Stock: 2},
	}, nil)
	st.On("ReserveQuote", mock.Anything, mock.Anything, mock.Anything).Return(&models.Rejection{
		Code:      models.CodeInsufficientStock,
		ProductID: 10,
		Available: 0,
		Requested: 2,
	})

	_, err := svc.IssueQuote(context.Background(), &IssueQuoteRequest{
		Items: []CartItemRequest{{ProductID: 10, Quantity: 2}},
		Zone:  "CABA",
	})
	require.Error(t, err)

	rejection, ok := models.AsRejection(err)
	require.True(t, ok)
	assert.Equal(t, models.CodeInsufficientStock, rejection.Code)
	assert.Equal(t, 0, rejection.Available)
	pub.AssertNotCalled(t, "PublishQuoteIssued", mock.Anything, mock.Anything)
}

func TestIssueQuoteSweepFailureDoesNotBlock(t *testing.T) {
	st := new(mockStore)
	pub := new(mockPublisher)
	svc := newTestService(st, pub)

	st.On("ListExpiredQuoteIDs", mock.Anything, 50).Return([]string{}, assert.AnError)
	st.On("GetProductsByIDs", mock.Anything, []int64{10}).Return([]models.Product{
		{ID: 10, Name: "Lamp", Price: 100, Stock: 5},
	}, nil)
	st.On("ReserveQuote", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	pub.On("PublishQuoteIssued", mock.Anything, mock.Anything).Return(nil)

	_, err := svc.IssueQuote(context.Background(), &IssueQuoteRequest{
		Items: []CartItemRequest{{ProductID: 10, Quantity: 1}},
		Zone:  "CABA",
	})
	require.NoError(t, err)
}

func TestRedeemQuoteSuccess(t *testing.T) {
	st := new(mockStore)
	pub := new(mockPublisher)
	svc := newTestService(st, pub)

	payload := &models.QuotePayload{
		Items:        []models.QuoteItem{{ProductID: 10, Quantity: 2, UnitPrice: 100}},
		Zone:         "CABA",
		Subtotal:     200,
		ShippingCost: 2500,
		Total:        2700,
	}
	payloadJSON, err := json.Marshal(payload)
	require.NoError(t, err)

	now := time.Now()
	expectCleanSweep(st)
	st.On("MarkQuoteUsed", mock.Anything, "q-1").Return(&models.Quote{
		QuoteID:     "q-1",
		PayloadJSON: payloadJSON,
		Total:       2700,
		UsedAt:      &now,
	}, nil)
	pub.On("PublishQuoteRedeemed", mock.Anything, mock.AnythingOfType("*models.QuoteRedeemedEvent")).Return(nil)

	quote, got, err := svc.RedeemQuote(context.Background(), "q-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2700), quote.Total)
	assert.Equal(t, payload.Total, got.Total)
	require.Len(t, got.Items, 1)
	assert.Equal(t, int64(10), got.Items[0].ProductID)
	st.AssertExpectations(t)
}

func TestRedeemQuoteAlreadyUsed(t *testing.T) {
	st := new(mockStore)
	pub := new(mockPublisher)
	svc := newTestService(st, pub)

	expectCleanSweep(st)
	st.On("MarkQuoteUsed", mock.Anything, "q-1").Return(nil, &models.Rejection{Code: models.CodeQuoteAlreadyUsed})

	_, _, err := svc.RedeemQuote(context.Background(), "q-1")
	require.Error(t, err)

	rejection, ok := models.AsRejection(err)
	require.True(t, ok)
	assert.Equal(t, models.CodeQuoteAlreadyUsed, rejection.Code)
	pub.AssertNotCalled(t, "PublishQuoteRedeemed", mock.Anything, mock.Anything)
}

func TestRedeemQuoteReleasedCarriesReason(t *testing.T) {
	st := new(mockStore)
	pub := new(mockPublisher)
	svc := newTestService(st, pub)

	expectCleanSweep(st)
	st.On("MarkQuoteUsed", mock.Anything, "q-1").Return(nil, &models.Rejection{
		Code:   models.CodeQuoteUnavailable,
		Reason: models.ReleaseReasonExpired,
	})

	_, _, err := svc.RedeemQuote(context.Background(), "q-1")
	require.Error(t, err)

	rejection, ok := models.AsRejection(err)
	require.True(t, ok)
	assert.Equal(t, models.CodeQuoteUnavailable, rejection.Code)
	assert.Equal(t, models.ReleaseReasonExpired, rejection.Reason)
}

func TestRedeemQuoteCorruptPayloadReleases(t *testing.T) {
	st := new(mockStore)
	pub := new(mockPublisher)
	svc := newTestService(st, pub)

	now := time.Now()
	expectCleanSweep(st)
	st.On("MarkQuoteUsed", mock.Anything, "q-1").Return(&models.Quote{
		QuoteID:     "q-1",
		PayloadJSON: []byte("{not json"),
		UsedAt:      &now,
	}, nil)
	st.On("ReleaseQuote", mock.Anything, "q-1", models.ReleaseReasonInvalidPayload, store.GuardNone).
		Return(&store.ReleaseResult{Released: true}, nil)
	pub.On("PublishQuoteReleased", mock.Anything, mock.AnythingOfType("*models.QuoteReleasedEvent")).Return(nil)

	_, _, err := svc.RedeemQuote(context.Background(), "q-1")
	require.Error(t, err)

	rejection, ok := models.AsRejection(err)
	require.True(t, ok)
	assert.Equal(t, models.CodeQuotePayloadInvalid, rejection.Code)
	st.AssertExpectations(t)
}

func TestReleaseSkippedPublishesNothing(t *testing.T) {
	st := new(mockStore)
	pub := new(mockPublisher)
	svc := newTestService(st, pub)

	st.On("ReleaseQuote", mock.Anything, "q-1", models.ReleaseReasonManual, store.GuardUnused).
		Return(&store.ReleaseResult{Released: false, Reason: store.ReleaseSkipAlreadyUsed}, nil)

	result, err := svc.Release(context.Background(), "q-1", models.ReleaseReasonManual, store.GuardUnused)
	require.NoError(t, err)
	assert.False(t, result.Released)
	assert.Equal(t, store.ReleaseSkipAlreadyUsed, result.Reason)
	pub.AssertNotCalled(t, "PublishQuoteReleased", mock.Anything, mock.Anything)
}

func TestDedupItems(t *testing.T) {
	items := []CartItemRequest{
		{ProductID: 1, Quantity: 2},
		{ProductID: 2, Quantity: 1},
		{ProductID: 1, Quantity: 3},
	}

	deduped := dedupItems(items)

	require.Len(t, deduped, 2)
	assert.Equal(t, int64(1), deduped[0].ProductID)
	assert.Equal(t, 5, deduped[0].Quantity)
	assert.Equal(t, int64(2), deduped[1].ProductID)
	assert.Equal(t, 1, deduped[1].Quantity)
}

func TestFingerprint(t *testing.T) {
	a := fingerprint([]byte(`{"items":[{"product_id":1}]}`))
	b := fingerprint([]byte(`{"items":[{"product_id":1}]}`))
	c := fingerprint([]byte(`{"items":[{"product_id":2}]}`))

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}
