package testutil

import (
	"testing"

	"github.com/kendall-kelly/atelier-api/config"
	"github.com/kendall-kelly/atelier-api/models"
	"github.com/kendall-kelly/atelier-api/services"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// TestFeeRate is the platform fee rate installed by InstallMockServices
var TestFeeRate = decimal.RequireFromString("0.10")

// NewTestDB opens a migrated in-memory sqlite database and installs it as the global DB.
// The previous DB is restored when the test ends.
func NewTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	RequireTestEnvironment(t)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("Failed to get sql.DB: %v", err)
	}
	// every connection to :memory: is a separate database
	sqlDB.SetMaxOpenConns(1)

	if err := models.AutoMigrate(db); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}

	previous := config.GetDB()
	config.SetDB(db)
	t.Cleanup(func() {
		config.SetDB(previous)
		sqlDB.Close()
	})
	return db
}

// MockServices are the in-memory collaborators installed by InstallMockServices
type MockServices struct {
	Processor *services.MockPaymentProcessor
	Notifier  *services.MockNotifier
	Store     *services.MockObjectStore
	Payments  *services.PaymentService
}

// InstallMockServices replaces the global payment, notification and design file services
// with in-memory ones backed by db. Everything is restored when the test ends.
func InstallMockServices(t *testing.T, db *gorm.DB) *MockServices {
	t.Helper()

	m := &MockServices{
		Processor: services.NewMockPaymentProcessor(),
		Notifier:  services.NewMockNotifier(),
		Store:     services.NewMockObjectStore(),
	}
	m.Payments = services.NewPaymentService(db, m.Processor, m.Notifier, TestFeeRate)

	previousConfig := config.GetConfig()
	previousPayments := services.GetPaymentService()
	previousNotifier := services.GetNotifier()
	previousFiles := services.GetDesignFileService()

	config.SetConfig(&config.Config{GoEnv: "test", PlatformFeeRate: TestFeeRate})
	services.SetPaymentService(m.Payments)
	services.SetNotifier(m.Notifier)
	services.SetDesignFileService(services.NewObjectStoreDesignFiles(m.Store))

	t.Cleanup(func() {
		m.Payments.WaitForNotifications()
		config.SetConfig(previousConfig)
		services.SetPaymentService(previousPayments)
		services.SetNotifier(previousNotifier)
		services.SetDesignFileService(previousFiles)
	})
	return m
}

// CreateUser inserts a profile for the given Auth0 subject
func CreateUser(t *testing.T, db *gorm.DB, auth0ID, name, email, role string) models.User {
	t.Helper()
	user := models.User{Auth0ID: auth0ID, Name: name, Email: email, Role: role}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("Failed to create user %s: %v", auth0ID, err)
	}
	return user
}
