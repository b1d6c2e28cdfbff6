package services

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/kendall-kelly/atelier-api/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var validate = validator.New()

// LifecycleService coordinates the Design -> Quote -> Order state machine.
// Every cross-entity transition runs in one database transaction and guards its
// writes with compare-and-swap conditions on the current status, so the invariants
// hold no matter how many API instances share the database.
type LifecycleService struct {
	db *gorm.DB
}

// NewLifecycleService creates a lifecycle coordinator over db
func NewLifecycleService(db *gorm.DB) *LifecycleService {
	return &LifecycleService{db: db}
}

// CreateDesignInput holds the designer-supplied fields of a new design
type CreateDesignInput struct {
	Title          string     `validate:"required,max=200"`
	Description    string     `validate:"required"`
	Category       string     `validate:"required"`
	Quantity       int        `validate:"gt=0"`
	Specifications string     `validate:"max=10000"`
	FileURLs       []string   `validate:"max=20,dive,required"`
	Deadline       *time.Time `validate:"omitempty"`
	Draft          bool
}

// DesignFilter narrows ListDesigns; zero values match everything
type DesignFilter struct {
	Category   string
	Status     string
	DesignerID uint
}

// SubmitQuoteInput holds the supplier-supplied fields of a quote
type SubmitQuoteInput struct {
	Price              decimal.Decimal
	Currency           string `validate:"omitempty,len=3,alpha"`
	DeliveryTimeInDays int    `validate:"gt=0"`
	QuoteText          string `validate:"max=5000"`
	TermsAndConditions string `validate:"max=5000"`
}

// CreateOrderInput mirrors the order creation request. Every field is checked
// against the stored quote; the quote's price is the only accepted amount.
type CreateOrderInput struct {
	DesignID   uint
	DesignerID uint
	SupplierID uint
	QuoteID    uint
	Amount     decimal.Decimal
}

// CreateDesign stores a new design owned by the acting designer
func (s *LifecycleService) CreateDesign(ctx context.Context, actor Actor, in CreateDesignInput) (*models.Design, error) {
	if !actor.IsDesigner() {
		return nil, &ForbiddenError{Message: "Only designers can create designs"}
	}
	if err := validate.Struct(in); err != nil {
		return nil, structValidationError(err)
	}
	category, err := models.ParseCategory(in.Category)
	if err != nil {
		return nil, enumValidationError("category", err)
	}
	if in.Deadline != nil && in.Deadline.Before(time.Now()) {
		return nil, newValidationError("deadline", "deadline must be in the future")
	}

	status := models.DesignStatusPublished
	if in.Draft {
		status = models.DesignStatusDraft
	}
	fileURLs := in.FileURLs
	if fileURLs == nil {
		fileURLs = []string{}
	}

	design := models.Design{
		DesignerID:     actor.UserID,
		Title:          strings.TrimSpace(in.Title),
		Description:    in.Description,
		Category:       category,
		Quantity:       in.Quantity,
		Specifications: in.Specifications,
		FileURLs:       fileURLs,
		Deadline:       in.Deadline,
		Status:         status,
	}

	db := s.db.WithContext(ctx)
	if err := db.Create(&design).Error; err != nil {
		return nil, fmt.Errorf("failed to create design: %w", err)
	}
	log.Printf("[lifecycle] design created design_id=%d designer_id=%d status=%s", design.ID, design.DesignerID, design.Status)

	return s.GetDesign(ctx, design.ID)
}

// GetDesign loads one design with its designer
func (s *LifecycleService) GetDesign(ctx context.Context, id uint) (*models.Design, error) {
	var design models.Design
	if err := s.db.WithContext(ctx).Preload("Designer").First(&design, id).Error; err != nil {
		return nil, notFoundOr(err, "design", id)
	}
	return &design, nil
}

// ListDesigns returns designs newest first, optionally filtered by category, status and designer
func (s *LifecycleService) ListDesigns(ctx context.Context, filter DesignFilter) ([]models.Design, error) {
	query := s.db.WithContext(ctx).Preload("Designer").Order("created_at DESC").Order("id DESC")

	if filter.Category != "" {
		category, err := models.ParseCategory(filter.Category)
		if err != nil {
			return nil, enumValidationError("category", err)
		}
		query = query.Where("category = ?", category)
	}
	if filter.Status != "" {
		status, err := models.ParseDesignStatus(filter.Status)
		if err != nil {
			return nil, enumValidationError("status", err)
		}
		query = query.Where("status = ?", status)
	}
	if filter.DesignerID != 0 {
		query = query.Where("designer_id = ?", filter.DesignerID)
	}

	designs := []models.Design{}
	if err := query.Find(&designs).Error; err != nil {
		return nil, fmt.Errorf("failed to list designs: %w", err)
	}
	return designs, nil
}

// ListDesignsByDesigner returns one designer's designs, newest first
func (s *LifecycleService) ListDesignsByDesigner(ctx context.Context, designerID uint) ([]models.Design, error) {
	return s.ListDesigns(ctx, DesignFilter{DesignerID: designerID})
}

// designTransitions lists the status edges a designer may trigger directly.
// Ordered is reachable only through quote acceptance.
var designTransitions = map[models.DesignStatus][]models.DesignStatus{
	models.DesignStatusDraft:       {models.DesignStatusPublished, models.DesignStatusClosed, models.DesignStatusCancelled},
	models.DesignStatusPublished:   {models.DesignStatusClosed, models.DesignStatusCancelled},
	models.DesignStatusQuotingOpen: {models.DesignStatusClosed, models.DesignStatusCancelled},
}

// UpdateDesignStatus moves a design along a designer-controlled edge
func (s *LifecycleService) UpdateDesignStatus(ctx context.Context, actor Actor, id uint, rawStatus string) (*models.Design, error) {
	target, err := models.ParseDesignStatus(rawStatus)
	if err != nil {
		return nil, enumValidationError("status", err)
	}

	design, err := s.GetDesign(ctx, id)
	if err != nil {
		return nil, err
	}
	if design.DesignerID != actor.UserID {
		return nil, &ForbiddenError{Message: "Only the owning designer can change a design's status"}
	}
	if !containsStatus(designTransitions[design.Status], target) {
		return nil, &InvalidStateError{
			Resource: "design",
			ID:       id,
			Current:  string(design.Status),
			Action:   "move to " + string(target),
		}
	}

	res := s.db.WithContext(ctx).Model(&models.Design{}).
		Where("id = ? AND status = ?", id, design.Status).
		Update("status", target)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to update design status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, &ConflictError{Message: fmt.Sprintf("design %d changed status concurrently", id)}
	}
	log.Printf("[lifecycle] design status changed design_id=%d from=%s to=%s", id, design.Status, target)

	return s.GetDesign(ctx, id)
}

// DeleteDesign soft-deletes a design that has not been ordered, together with its quotes
func (s *LifecycleService) DeleteDesign(ctx context.Context, actor Actor, id uint) error {
	design, err := s.GetDesign(ctx, id)
	if err != nil {
		return err
	}
	if design.DesignerID != actor.UserID {
		return &ForbiddenError{Message: "Only the owning designer can delete a design"}
	}
	if design.Status == models.DesignStatusOrdered {
		return &InvalidStateError{Resource: "design", ID: id, Current: string(design.Status), Action: "delete"}
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ? AND status <> ?", id, models.DesignStatusOrdered).Delete(&models.Design{})
		if res.Error != nil {
			return fmt.Errorf("failed to delete design: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return &ConflictError{Message: fmt.Sprintf("design %d was ordered concurrently", id), Current: string(models.DesignStatusOrdered)}
		}
		if err := tx.Where("design_id = ?", id).Delete(&models.Quote{}).Error; err != nil {
			return fmt.Errorf("failed to delete quotes of design: %w", err)
		}
		log.Printf("[lifecycle] design deleted design_id=%d", id)
		return nil
	})
}

// SubmitQuote records a supplier's quote against an open design. The first quote
// moves the design from Published to QuotingOpen; quote_count moves in the same transaction.
func (s *LifecycleService) SubmitQuote(ctx context.Context, actor Actor, designID uint, in SubmitQuoteInput) (*models.Quote, error) {
	if !actor.IsSupplier() {
		return nil, &ForbiddenError{Message: "Only suppliers can submit quotes"}
	}
	if err := validate.Struct(in); err != nil {
		return nil, structValidationError(err)
	}
	if !in.Price.IsPositive() {
		return nil, newValidationError("price", "price must be greater than zero")
	}
	if in.Price.Exponent() < -2 {
		return nil, newValidationError("price", "price must have at most two decimal places")
	}
	currency := strings.ToUpper(in.Currency)
	if currency == "" {
		currency = "USD"
	}

	var quote models.Quote
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var design models.Design
		if err := tx.First(&design, designID).Error; err != nil {
			return notFoundOr(err, "design", designID)
		}
		if !design.Status.IsOpenForQuoting() {
			return &InvalidStateError{Resource: "design", ID: designID, Current: string(design.Status), Action: "quote on"}
		}

		res := tx.Model(&models.Design{}).
			Where("id = ? AND status IN ?", designID, models.OpenForQuoting).
			Updates(map[string]interface{}{
				"quote_count": gorm.Expr("quote_count + 1"),
				"status":      gorm.Expr("CASE WHEN status = ? THEN ? ELSE status END", models.DesignStatusPublished, models.DesignStatusQuotingOpen),
			})
		if res.Error != nil {
			return fmt.Errorf("failed to update design: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return &ConflictError{Message: fmt.Sprintf("design %d closed for quoting concurrently", designID)}
		}

		var existing int64
		if err := tx.Model(&models.Quote{}).
			Where("design_id = ? AND supplier_id = ?", designID, actor.UserID).
			Count(&existing).Error; err != nil {
			return fmt.Errorf("failed to check existing quotes: %w", err)
		}
		if existing > 0 {
			return &ConflictError{Message: "You already have a quote on this design"}
		}

		quote = models.Quote{
			DesignID:           designID,
			SupplierID:         actor.UserID,
			Price:              in.Price,
			Currency:           currency,
			DeliveryTimeInDays: in.DeliveryTimeInDays,
			QuoteText:          in.QuoteText,
			TermsAndConditions: in.TermsAndConditions,
			Status:             models.QuoteStatusSubmitted,
		}
		if err := tx.Create(&quote).Error; err != nil {
			return fmt.Errorf("failed to create quote: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[lifecycle] quote submitted quote_id=%d design_id=%d supplier_id=%d price=%s", quote.ID, designID, actor.UserID, quote.Price)

	return s.GetQuote(ctx, quote.ID)
}

// GetQuote loads one quote with its supplier and design
func (s *LifecycleService) GetQuote(ctx context.Context, id uint) (*models.Quote, error) {
	var quote models.Quote
	if err := s.db.WithContext(ctx).Preload("Supplier").Preload("Design").First(&quote, id).Error; err != nil {
		return nil, notFoundOr(err, "quote", id)
	}
	return &quote, nil
}

// ListQuotesForDesign returns the live quotes of a design, oldest first
func (s *LifecycleService) ListQuotesForDesign(ctx context.Context, designID uint) ([]models.Quote, error) {
	db := s.db.WithContext(ctx)
	var design models.Design
	if err := db.Select("id").First(&design, designID).Error; err != nil {
		return nil, notFoundOr(err, "design", designID)
	}

	quotes := []models.Quote{}
	if err := db.Where("design_id = ?", designID).
		Preload("Supplier").
		Order("created_at ASC").Order("id ASC").
		Find(&quotes).Error; err != nil {
		return nil, fmt.Errorf("failed to list quotes: %w", err)
	}
	return quotes, nil
}

// ListQuotesForSupplier returns a supplier's quotes, newest first
func (s *LifecycleService) ListQuotesForSupplier(ctx context.Context, supplierID uint) ([]models.Quote, error) {
	quotes := []models.Quote{}
	if err := s.db.WithContext(ctx).Where("supplier_id = ?", supplierID).
		Preload("Design").
		Order("created_at DESC").Order("id DESC").
		Find(&quotes).Error; err != nil {
		return nil, fmt.Errorf("failed to list quotes: %w", err)
	}
	return quotes, nil
}

// AcceptQuote accepts a submitted quote as one atomic unit of work:
// the design moves to Ordered, the quote to Accepted, every other submitted
// quote on the design to Rejected, and exactly one Order is created.
// A second attempt on the same design fails; nothing is applied partially.
func (s *LifecycleService) AcceptQuote(ctx context.Context, actor Actor, quoteID uint) (*models.Order, error) {
	var order models.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var quote models.Quote
		if err := tx.First(&quote, quoteID).Error; err != nil {
			return notFoundOr(err, "quote", quoteID)
		}
		var design models.Design
		if err := tx.First(&design, quote.DesignID).Error; err != nil {
			return notFoundOr(err, "design", quote.DesignID)
		}
		if design.DesignerID != actor.UserID {
			return &ForbiddenError{Message: "Only the owning designer can accept a quote"}
		}

		if quote.Status == models.QuoteStatusAccepted {
			return &InvalidStateError{Resource: "quote", ID: quoteID, Current: string(quote.Status), Action: "accept"}
		}
		if design.Status == models.DesignStatusOrdered {
			return &ConflictError{
				Message: fmt.Sprintf("design %d already has an accepted quote", design.ID),
				Current: string(design.Status),
			}
		}
		if !design.Status.IsOpenForQuoting() {
			return &InvalidStateError{Resource: "design", ID: design.ID, Current: string(design.Status), Action: "accept a quote on"}
		}
		if quote.Status != models.QuoteStatusSubmitted {
			return &InvalidStateError{Resource: "quote", ID: quoteID, Current: string(quote.Status), Action: "accept"}
		}

		// The design row is written first: concurrent acceptances on the same
		// design serialize on it and the loser sees zero affected rows.
		res := tx.Model(&models.Design{}).
			Where("id = ? AND status IN ?", design.ID, models.OpenForQuoting).
			Update("status", models.DesignStatusOrdered)
		if res.Error != nil {
			return fmt.Errorf("failed to update design: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return &ConflictError{
				Message: fmt.Sprintf("design %d already has an accepted quote", design.ID),
				Current: string(models.DesignStatusOrdered),
			}
		}

		res = tx.Model(&models.Quote{}).
			Where("id = ? AND status = ?", quoteID, models.QuoteStatusSubmitted).
			Update("status", models.QuoteStatusAccepted)
		if res.Error != nil {
			return fmt.Errorf("failed to update quote: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return s.quoteStateError(tx, quoteID, "accept")
		}

		if err := tx.Model(&models.Quote{}).
			Where("design_id = ? AND id <> ? AND status = ?", design.ID, quoteID, models.QuoteStatusSubmitted).
			Update("status", models.QuoteStatusRejected).Error; err != nil {
			return fmt.Errorf("failed to reject sibling quotes: %w", err)
		}

		order = models.Order{
			OrderNumber:   newOrderNumber(time.Now()),
			DesignID:      design.ID,
			DesignerID:    design.DesignerID,
			SupplierID:    quote.SupplierID,
			QuoteID:       quote.ID,
			Amount:        quote.Price,
			Currency:      quote.Currency,
			Status:        models.OrderStatusPending,
			PaymentStatus: models.PaymentStatusPending,
		}
		if err := tx.Create(&order).Error; err != nil {
			if IsUniqueViolation(err) {
				return &ConflictError{Message: fmt.Sprintf("an order already exists for quote %d", quoteID)}
			}
			return fmt.Errorf("failed to create order: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[lifecycle] quote accepted quote_id=%d design_id=%d order_id=%d order_number=%s", quoteID, order.DesignID, order.ID, order.OrderNumber)

	return NewOrderService(s.db).loadOrder(ctx, order.ID)
}

// RejectQuote rejects a submitted quote; the design and other quotes are untouched
func (s *LifecycleService) RejectQuote(ctx context.Context, actor Actor, quoteID uint) (*models.Quote, error) {
	quote, err := s.GetQuote(ctx, quoteID)
	if err != nil {
		return nil, err
	}
	if quote.Design == nil || quote.Design.DesignerID != actor.UserID {
		return nil, &ForbiddenError{Message: "Only the owning designer can reject a quote"}
	}
	if quote.Status != models.QuoteStatusSubmitted {
		return nil, &InvalidStateError{Resource: "quote", ID: quoteID, Current: string(quote.Status), Action: "reject"}
	}

	db := s.db.WithContext(ctx)
	res := db.Model(&models.Quote{}).
		Where("id = ? AND status = ?", quoteID, models.QuoteStatusSubmitted).
		Update("status", models.QuoteStatusRejected)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to reject quote: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, s.quoteStateError(db, quoteID, "reject")
	}
	log.Printf("[lifecycle] quote rejected quote_id=%d design_id=%d", quoteID, quote.DesignID)

	return s.GetQuote(ctx, quoteID)
}

// UpdateQuoteStatus dispatches a status change request to AcceptQuote or RejectQuote.
// The order is returned only for acceptance.
func (s *LifecycleService) UpdateQuoteStatus(ctx context.Context, actor Actor, quoteID uint, rawStatus string) (*models.Quote, *models.Order, error) {
	target, err := models.ParseQuoteStatus(rawStatus)
	if err != nil {
		return nil, nil, enumValidationError("status", err)
	}

	switch target {
	case models.QuoteStatusAccepted:
		order, err := s.AcceptQuote(ctx, actor, quoteID)
		if err != nil {
			return nil, nil, err
		}
		quote, err := s.GetQuote(ctx, quoteID)
		return quote, order, err
	case models.QuoteStatusRejected:
		quote, err := s.RejectQuote(ctx, actor, quoteID)
		return quote, nil, err
	default:
		return nil, nil, newValidationError("status", "a quote can only be moved to Accepted or Rejected")
	}
}

// DeleteQuote withdraws a supplier's own submitted quote
func (s *LifecycleService) DeleteQuote(ctx context.Context, actor Actor, quoteID uint) error {
	quote, err := s.GetQuote(ctx, quoteID)
	if err != nil {
		return err
	}
	if quote.SupplierID != actor.UserID {
		return &ForbiddenError{Message: "Only the submitting supplier can withdraw a quote"}
	}
	if quote.Status != models.QuoteStatusSubmitted {
		return &InvalidStateError{Resource: "quote", ID: quoteID, Current: string(quote.Status), Action: "withdraw"}
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Design before quote, the same lock order as AcceptQuote.
		if err := tx.Model(&models.Design{}).
			Where("id = ? AND quote_count > 0", quote.DesignID).
			Update("quote_count", gorm.Expr("quote_count - 1")).Error; err != nil {
			return fmt.Errorf("failed to update design: %w", err)
		}

		res := tx.Where("id = ? AND status = ?", quoteID, models.QuoteStatusSubmitted).Delete(&models.Quote{})
		if res.Error != nil {
			return fmt.Errorf("failed to delete quote: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return s.quoteStateError(tx, quoteID, "withdraw")
		}
		log.Printf("[lifecycle] quote withdrawn quote_id=%d design_id=%d", quoteID, quote.DesignID)
		return nil
	})
}

// CreateOrder returns the order for an accepted quote, running the acceptance
// transition first when the quote is still submitted. The request fields must
// match the stored quote; amounts are never taken from the caller.
func (s *LifecycleService) CreateOrder(ctx context.Context, actor Actor, in CreateOrderInput) (*models.Order, bool, error) {
	if !actor.IsDesigner() || actor.UserID != in.DesignerID {
		return nil, false, &ForbiddenError{Message: "Only the owning designer can place an order"}
	}

	quote, err := s.GetQuote(ctx, in.QuoteID)
	if err != nil {
		return nil, false, err
	}
	switch {
	case quote.DesignID != in.DesignID:
		return nil, false, newValidationError("design_id", "design does not match the quote")
	case quote.SupplierID != in.SupplierID:
		return nil, false, newValidationError("supplier_id", "supplier does not match the quote")
	case !quote.Price.Equal(in.Amount):
		return nil, false, newValidationError("amount", fmt.Sprintf("amount must equal the quoted price %s", quote.Price.StringFixed(2)))
	}

	switch quote.Status {
	case models.QuoteStatusSubmitted:
		order, err := s.AcceptQuote(ctx, actor, quote.ID)
		return order, err == nil, err
	case models.QuoteStatusAccepted:
		order, err := NewOrderService(s.db).findByQuote(ctx, quote.ID)
		if err != nil {
			return nil, false, err
		}
		if order.DesignerID != actor.UserID {
			return nil, false, &ForbiddenError{Message: "Only the owning designer can place an order"}
		}
		return order, false, nil
	default:
		return nil, false, &InvalidStateError{Resource: "quote", ID: quote.ID, Current: string(quote.Status), Action: "order"}
	}
}

// quoteStateError reports the status a quote holds after a failed compare-and-swap
func (s *LifecycleService) quoteStateError(db *gorm.DB, quoteID uint, action string) error {
	var current models.Quote
	if err := db.Unscoped().Select("id", "status").First(&current, quoteID).Error; err != nil {
		return notFoundOr(err, "quote", quoteID)
	}
	return &InvalidStateError{Resource: "quote", ID: quoteID, Current: string(current.Status), Action: action}
}

func newOrderNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("ORD-%s-%s", now.UTC().Format("20060102"), suffix)
}

func containsStatus[T comparable](list []T, v T) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
