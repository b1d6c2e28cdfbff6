package services

import (
	"context"
	"testing"

	"github.com/kendall-kelly/atelier-api/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupServiceTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err, "Failed to connect to test database")

	// One connection: every goroutine sees the same in-memory database
	// and transactions serialize the way row locks would.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, models.AutoMigrate(db), "Failed to migrate test database")
	return db
}

// fixture holds a database with one designer and two suppliers
type fixture struct {
	db        *gorm.DB
	ctx       context.Context
	designer  models.User
	supplier  models.User
	supplier2 models.User
	lifecycle *LifecycleService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := setupServiceTestDB(t)

	f := &fixture{
		db:        db,
		ctx:       context.Background(),
		lifecycle: NewLifecycleService(db),
	}
	f.designer = createUser(t, db, "auth0|designer", "Dana Designer", "dana@example.com", models.RoleDesigner)
	f.supplier = createUser(t, db, "auth0|supplier", "Sam Supplier", "sam@example.com", models.RoleSupplier)
	f.supplier2 = createUser(t, db, "auth0|supplier2", "Sue Supplier", "sue@example.com", models.RoleSupplier)
	return f
}

func createUser(t *testing.T, db *gorm.DB, auth0ID, name, email, role string) models.User {
	t.Helper()
	user := models.User{Auth0ID: auth0ID, Name: name, Email: email, Role: role}
	require.NoError(t, db.Create(&user).Error)
	return user
}

func (f *fixture) designerActor() Actor  { return ActorFromUser(&f.designer) }
func (f *fixture) supplierActor() Actor  { return ActorFromUser(&f.supplier) }
func (f *fixture) supplier2Actor() Actor { return ActorFromUser(&f.supplier2) }

func (f *fixture) createDesign(t *testing.T) *models.Design {
	t.Helper()
	design, err := f.lifecycle.CreateDesign(f.ctx, f.designerActor(), CreateDesignInput{
		Title:       "Linen summer dress",
		Description: "A-line dress in washed linen",
		Category:    "Women",
		Quantity:    50,
		FileURLs:    []string{"https://cdn.example.com/sketch.png"},
	})
	require.NoError(t, err)
	return design
}

func (f *fixture) submitQuote(t *testing.T, supplier Actor, designID uint, price string) *models.Quote {
	t.Helper()
	quote, err := f.lifecycle.SubmitQuote(f.ctx, supplier, designID, SubmitQuoteInput{
		Price:              decimal.RequireFromString(price),
		DeliveryTimeInDays: 30,
		QuoteText:          "Can produce in organic linen",
	})
	require.NoError(t, err)
	return quote
}

// acceptedOrder builds a design with one accepted quote and returns its order
func (f *fixture) acceptedOrder(t *testing.T, price string) *models.Order {
	t.Helper()
	design := f.createDesign(t)
	quote := f.submitQuote(t, f.supplierActor(), design.ID, price)
	order, err := f.lifecycle.AcceptQuote(f.ctx, f.designerActor(), quote.ID)
	require.NoError(t, err)
	return order
}

func (f *fixture) reloadDesign(t *testing.T, id uint) models.Design {
	t.Helper()
	var design models.Design
	require.NoError(t, f.db.Unscoped().First(&design, id).Error)
	return design
}

func (f *fixture) reloadQuote(t *testing.T, id uint) models.Quote {
	t.Helper()
	var quote models.Quote
	require.NoError(t, f.db.Unscoped().First(&quote, id).Error)
	return quote
}

func (f *fixture) countOrders(t *testing.T) int64 {
	t.Helper()
	var count int64
	require.NoError(t, f.db.Model(&models.Order{}).Count(&count).Error)
	return count
}
