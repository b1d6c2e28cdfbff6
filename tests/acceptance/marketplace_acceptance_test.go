package acceptance

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/atelier-api/client"
	"github.com/kendall-kelly/atelier-api/controllers"
	"github.com/kendall-kelly/atelier-api/models"
	"github.com/kendall-kelly/atelier-api/services"
	"github.com/kendall-kelly/atelier-api/tests/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"
)

const (
	designerToken = "auth0|designer"
	supplierToken = "auth0|supplier"
)

// lostOrderUpdates fails every order payment status write, as if the database dropped them
type lostOrderUpdates struct{}

func (lostOrderUpdates) UpdateOrderPaymentStatus(ctx context.Context, orderID uint, status models.PaymentStatus) (*models.Order, error) {
	return nil, errors.New("connection reset by peer")
}

// MarketplaceAcceptanceTestSuite serves the API over HTTP and drives it with the Go client
type MarketplaceAcceptanceTestSuite struct {
	suite.Suite
	server   *httptest.Server
	api      *client.Client
	db       *gorm.DB
	mocks    *testutil.MockServices
	designer models.User
	supplier models.User
}

// SetupSuite runs once before all tests
func (suite *MarketplaceAcceptanceTestSuite) SetupSuite() {
	gin.SetMode(gin.TestMode)
	testutil.MustSetTestEnvironment(suite.T())
}

// SetupTest runs before each test
func (suite *MarketplaceAcceptanceTestSuite) SetupTest() {
	t := suite.T()
	suite.db = testutil.NewTestDB(t)
	suite.mocks = testutil.InstallMockServices(t, suite.db)
	suite.designer = testutil.CreateUser(t, suite.db, designerToken, "Dana Designer", "dana@example.com", models.RoleDesigner)
	suite.supplier = testutil.CreateUser(t, suite.db, supplierToken, "Sam Supplier", "sam@example.com", models.RoleSupplier)

	router := gin.New()
	router.Use(gin.Recovery())
	controllers.RegisterRoutes(router.Group("/api/v1"), testutil.BearerSubjectAuth())
	suite.server = httptest.NewServer(router)
	suite.api = client.New(suite.server.URL, client.WithTimeout(5*time.Second))
}

// TearDownTest runs after each test
func (suite *MarketplaceAcceptanceTestSuite) TearDownTest() {
	suite.server.Close()
}

// acceptedOrder publishes a design, quotes it and accepts the quote
func (suite *MarketplaceAcceptanceTestSuite) acceptedOrder(price string) *models.Order {
	ctx := context.Background()
	design, err := suite.api.CreateDesign(ctx, designerToken, client.NewDesign{
		Title:       "Canvas tote",
		Description: "Screen printed, natural canvas",
		Category:    models.CategoryUnisex,
		Quantity:    1000,
	})
	require.NoError(suite.T(), err)

	quote, err := suite.api.SubmitQuote(ctx, supplierToken, client.NewQuote{
		DesignID:           design.ID,
		Price:              decimal.RequireFromString(price),
		DeliveryTimeInDays: 20,
	})
	require.NoError(suite.T(), err)

	order, err := suite.api.AcceptQuote(ctx, designerToken, quote.ID)
	require.NoError(suite.T(), err)
	return order
}

// TestMessagingWorkflow tests a conversation between the two sides of a quote
func (suite *MarketplaceAcceptanceTestSuite) TestMessagingWorkflow() {
	ctx := context.Background()
	api := suite.api

	first, err := api.SendMessage(ctx, designerToken, client.NewMessage{ReceiverID: suite.supplier.ID, Content: "Could you share fabric swatches?"})
	require.NoError(suite.T(), err)
	assert.False(suite.T(), first.IsRead)
	assert.Equal(suite.T(), suite.designer.ID, first.Sender.ID)

	_, err = api.SendMessage(ctx, supplierToken, client.NewMessage{ReceiverID: suite.designer.ID, Content: "Posting them today."})
	require.NoError(suite.T(), err)

	_, err = api.SendMessage(ctx, supplierToken, client.NewMessage{ReceiverID: suite.supplier.ID, Content: "note to self"})
	var apiErr *client.APIError
	require.True(suite.T(), errors.As(err, &apiErr))
	assert.Equal(suite.T(), "VALIDATION_ERROR", apiErr.Code)

	conversation, err := api.GetConversation(ctx, supplierToken, suite.designer.ID, nil)
	require.NoError(suite.T(), err)
	require.Len(suite.T(), conversation, 2)
	assert.Equal(suite.T(), first.ID, conversation[0].ID, "oldest first")

	// the supplier's unread badge, as a polling client sees it
	pollCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	var counts []int64
	api.PollUnreadCount(pollCtx, supplierToken, func(count int64, err error) {
		require.NoError(suite.T(), err)
		counts = append(counts, count)
		cancel()
	})
	assert.Equal(suite.T(), []int64{1}, counts)

	_, err = api.MarkMessageAsRead(ctx, designerToken, first.ID)
	require.True(suite.T(), errors.As(err, &apiErr), "only the receiver marks a message read")

	read, err := api.MarkMessageAsRead(ctx, supplierToken, first.ID)
	require.NoError(suite.T(), err)
	assert.True(suite.T(), read.IsRead)
	assert.NotNil(suite.T(), read.ReadAt)

	unread, err := api.GetUnreadCount(ctx, supplierToken)
	require.NoError(suite.T(), err)
	assert.Zero(suite.T(), unread)

	inbox, err := api.GetMyMessages(ctx, designerToken)
	require.NoError(suite.T(), err)
	assert.Len(suite.T(), inbox, 2)
}

// TestSendEmail tests the outbound email endpoint
func (suite *MarketplaceAcceptanceTestSuite) TestSendEmail() {
	ctx := context.Background()

	err := suite.api.SendEmail(ctx, designerToken, client.Email{
		To:      "sam@example.com",
		Name:    "Sam Supplier",
		Subject: "Tech pack updated",
		Body:    "The sleeve length changed, see revision B.",
	})
	require.NoError(suite.T(), err)

	sent := suite.mocks.Notifier.Sent()
	require.Len(suite.T(), sent, 1)
	assert.Equal(suite.T(), "sam@example.com", sent[0].ToAddress)
	assert.Equal(suite.T(), "Tech pack updated", sent[0].Subject)

	err = suite.api.SendEmail(ctx, designerToken, client.Email{To: "not-an-address", Subject: "x", Body: "y"})
	var apiErr *client.APIError
	require.True(suite.T(), errors.As(err, &apiErr))
	assert.Equal(suite.T(), http.StatusBadRequest, apiErr.StatusCode)
}

// TestPaymentRetryAfterGatewayTimeout tests that a client retrying after a 503 is charged once
func (suite *MarketplaceAcceptanceTestSuite) TestPaymentRetryAfterGatewayTimeout() {
	ctx := context.Background()
	order := suite.acceptedOrder("640.00")

	suite.mocks.Processor.FailNextWith(&services.TransientError{Op: "charge", Err: errors.New("gateway timeout")})

	pay := client.NewPayment{OrderID: order.ID, Amount: order.Amount, PaymentMethod: models.PaymentMethodBankTransfer}
	_, err := suite.api.ProcessPayment(ctx, designerToken, pay)
	var apiErr *client.APIError
	require.True(suite.T(), errors.As(err, &apiErr))
	assert.Equal(suite.T(), http.StatusServiceUnavailable, apiErr.StatusCode)

	payment, err := suite.api.ProcessPayment(ctx, designerToken, pay)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), 1, payment.Attempt)
	assert.Equal(suite.T(), models.PaymentStatusCompleted, payment.Status)

	_, err = suite.api.ProcessPayment(ctx, designerToken, pay)
	require.True(suite.T(), errors.As(err, &apiErr), "a paid order cannot be charged again")
	assert.Equal(suite.T(), http.StatusConflict, apiErr.StatusCode)

	payments, err := suite.api.ListMyPayments(ctx, designerToken)
	require.NoError(suite.T(), err)
	assert.Len(suite.T(), payments, 1)

	suite.mocks.Payments.WaitForNotifications()
	subjects := []string{}
	for _, n := range suite.mocks.Notifier.Sent() {
		subjects = append(subjects, n.Subject)
	}
	assert.ElementsMatch(suite.T(), []string{"Order Confirmed - Payment Received", "New Order Received"}, subjects)
}

// TestLostOrderUpdateIsRepaired tests both repair paths after the order payment status write is lost
func (suite *MarketplaceAcceptanceTestSuite) TestLostOrderUpdateIsRepaired() {
	ctx := context.Background()
	order := suite.acceptedOrder("75.50")

	lossy := services.NewPaymentService(suite.db, suite.mocks.Processor, nil, testutil.TestFeeRate, services.WithOrderPaymentUpdater(lostOrderUpdates{}))
	services.SetPaymentService(lossy)

	payment, err := suite.api.ProcessPayment(ctx, designerToken, client.NewPayment{OrderID: order.ID, Amount: order.Amount, PaymentMethod: models.PaymentMethodCreditCard})
	require.NoError(suite.T(), err, "the caller is not told about the lost write")
	assert.Equal(suite.T(), models.PaymentStatusCompleted, payment.Status)

	stale, err := suite.api.GetOrder(ctx, supplierToken, order.ID)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), models.PaymentStatusPending, stale.PaymentStatus)

	// the client replays the step
	services.SetPaymentService(suite.mocks.Payments)
	synced, err := suite.api.SyncOrderPaymentStatus(ctx, designerToken, order.ID, models.PaymentStatusCompleted)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), models.PaymentStatusCompleted, synced.PaymentStatus)

	// a second lost write is repaired by the background reconciler
	second := suite.acceptedOrder("12.00")
	services.SetPaymentService(lossy)
	_, err = suite.api.ProcessPayment(ctx, designerToken, client.NewPayment{OrderID: second.ID, Amount: second.Amount, PaymentMethod: models.PaymentMethodPix})
	require.NoError(suite.T(), err)
	services.SetPaymentService(suite.mocks.Payments)

	reconcileCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go services.NewReconciler(suite.mocks.Payments, 10*time.Millisecond).Run(reconcileCtx)

	assert.Eventually(suite.T(), func() bool {
		current, err := suite.api.GetOrder(ctx, designerToken, second.ID)
		return err == nil && current.PaymentStatus == models.PaymentStatusCompleted
	}, 2*time.Second, 20*time.Millisecond)
}

func TestMarketplaceAcceptanceTestSuite(t *testing.T) {
	suite.Run(t, new(MarketplaceAcceptanceTestSuite))
}
