package controllers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/auth0/go-jwt-middleware/v2/validator"
	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/atelier-api/config"
	"github.com/kendall-kelly/atelier-api/middleware"
	"github.com/kendall-kelly/atelier-api/models"
	"github.com/kendall-kelly/atelier-api/services"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err, "Failed to connect to test database")

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, models.AutoMigrate(db), "Failed to migrate test database")

	previous := config.GetDB()
	config.SetDB(db)
	t.Cleanup(func() { config.SetDB(previous) })
	return db
}

func setupTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return gin.New()
}

// mockAuthMiddleware simulates the Auth0 JWT middleware for a fixed subject
func mockAuthMiddleware(auth0ID, role, accessToken string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("user_id", auth0ID)
		c.Set("access_token", accessToken)
		c.Set("validated_claims", &validator.ValidatedClaims{
			CustomClaims: &middleware.CustomClaims{Role: role},
		})
		c.Next()
	}
}

// bearerSubjectAuth treats the bearer token as the Auth0 subject, so one router serves many callers
func bearerSubjectAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false})
			return
		}
		c.Set("user_id", token)
		c.Set("access_token", token)
		c.Set("validated_claims", &validator.ValidatedClaims{CustomClaims: &middleware.CustomClaims{}})
		c.Next()
	}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   struct {
		Code    string          `json:"code"`
		Message string          `json:"message"`
		Details json.RawMessage `json:"details"`
	} `json:"error"`
}

// testEnv is a router over an in-memory database with one designer, two suppliers
// and in-memory processor, notifier and object store
type testEnv struct {
	t         *testing.T
	db        *gorm.DB
	router    *gin.Engine
	designer  models.User
	supplier  models.User
	supplier2 models.User
	processor *services.MockPaymentProcessor
	notifier  *services.MockNotifier
	store     *services.MockObjectStore
	payments  *services.PaymentService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := setupTestDB(t)

	previousConfig := config.GetConfig()
	config.SetConfig(&config.Config{GoEnv: "test", PlatformFeeRate: decimal.RequireFromString("0.10")})

	env := &testEnv{
		t:         t,
		db:        db,
		processor: services.NewMockPaymentProcessor(),
		notifier:  services.NewMockNotifier(),
		store:     services.NewMockObjectStore(),
	}
	env.payments = services.NewPaymentService(db, env.processor, env.notifier, decimal.RequireFromString("0.10"))

	previousPayments := services.GetPaymentService()
	previousNotifier := services.GetNotifier()
	previousFiles := services.GetDesignFileService()
	services.SetPaymentService(env.payments)
	services.SetNotifier(env.notifier)
	services.SetDesignFileService(services.NewObjectStoreDesignFiles(env.store))
	t.Cleanup(func() {
		env.payments.WaitForNotifications()
		config.SetConfig(previousConfig)
		services.SetPaymentService(previousPayments)
		services.SetNotifier(previousNotifier)
		services.SetDesignFileService(previousFiles)
	})

	env.designer = env.createUser("auth0|designer", "Dana Designer", "dana@example.com", models.RoleDesigner)
	env.supplier = env.createUser("auth0|supplier", "Sam Supplier", "sam@example.com", models.RoleSupplier)
	env.supplier2 = env.createUser("auth0|supplier2", "Sky Supplier", "sky@example.com", models.RoleSupplier)

	env.router = setupTestRouter()
	RegisterRoutes(env.router.Group("/api/v1"), bearerSubjectAuth())
	return env
}

func (e *testEnv) createUser(auth0ID, name, email, role string) models.User {
	e.t.Helper()
	user := models.User{Auth0ID: auth0ID, Name: name, Email: email, Role: role}
	require.NoError(e.t, e.db.Create(&user).Error)
	return user
}

// do sends a JSON request as the user with the given Auth0 subject ("" for anonymous)
func (e *testEnv) do(method, path, auth0ID string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	e.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(e.t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if auth0ID != "" {
		req.Header.Set("Authorization", "Bearer "+auth0ID)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	var resp envelope
	if w.Body.Len() > 0 {
		require.NoError(e.t, json.Unmarshal(w.Body.Bytes(), &resp), "body: %s", w.Body.String())
	}
	return w, resp
}

func decodeData(t *testing.T, resp envelope, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(resp.Data, out), "data: %s", string(resp.Data))
}

func (e *testEnv) createDesign() models.Design {
	e.t.Helper()
	w, resp := e.do(http.MethodPost, "/api/v1/designs", e.designer.Auth0ID, gin.H{
		"title":       "Linen summer dress",
		"description": "A-line dress in washed linen",
		"category":    "Women",
		"quantity":    50,
	})
	require.Equal(e.t, http.StatusCreated, w.Code, w.Body.String())
	var design models.Design
	decodeData(e.t, resp, &design)
	return design
}

func (e *testEnv) submitQuote(supplier models.User, designID uint, price string) models.Quote {
	e.t.Helper()
	w, resp := e.do(http.MethodPost, "/api/v1/quotes", supplier.Auth0ID, gin.H{
		"design_id":             designID,
		"price":                 price,
		"delivery_time_in_days": 30,
		"quote_text":            "Washed linen, French seams",
	})
	require.Equal(e.t, http.StatusCreated, w.Code, w.Body.String())
	var quote models.Quote
	decodeData(e.t, resp, &quote)
	return quote
}

func (e *testEnv) acceptedOrder(price string) models.Order {
	e.t.Helper()
	design := e.createDesign()
	quote := e.submitQuote(e.supplier, design.ID, price)
	w, resp := e.do(http.MethodPost, "/api/v1/quotes/"+itoa(quote.ID)+"/accept", e.designer.Auth0ID, nil)
	require.Equal(e.t, http.StatusCreated, w.Code, w.Body.String())
	var order models.Order
	decodeData(e.t, resp, &order)
	return order
}

func (e *testEnv) paidOrder(price string) (models.Order, models.Payment) {
	e.t.Helper()
	order := e.acceptedOrder(price)
	w, resp := e.do(http.MethodPost, "/api/v1/payments/process", e.designer.Auth0ID, gin.H{
		"order_id":       order.ID,
		"amount":         price,
		"payment_method": "CreditCard",
	})
	require.Equal(e.t, http.StatusCreated, w.Code, w.Body.String())
	var payment models.Payment
	decodeData(e.t, resp, &payment)
	e.payments.WaitForNotifications()
	return order, payment
}

func itoa(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
