package services

import (
	"context"
	"fmt"
	"log"

	"github.com/kendall-kelly/atelier-api/models"
	"gorm.io/gorm"
)

// OrderService reads orders and moves them through production and payment states
type OrderService struct {
	db *gorm.DB
}

// NewOrderService creates an order service over db
func NewOrderService(db *gorm.DB) *OrderService {
	return &OrderService{db: db}
}

// supplierOrderTransitions are the production steps the supplier drives
var supplierOrderTransitions = map[models.OrderStatus]models.OrderStatus{
	models.OrderStatusPending:      models.OrderStatusInProduction,
	models.OrderStatusInProduction: models.OrderStatusShipped,
	models.OrderStatusShipped:      models.OrderStatusDelivered,
}

// paymentStatusTransitions are the legal edges of an order's payment status
var paymentStatusTransitions = map[models.PaymentStatus][]models.PaymentStatus{
	models.PaymentStatusPending:   {models.PaymentStatusCompleted, models.PaymentStatusFailed},
	models.PaymentStatusFailed:    {models.PaymentStatusPending, models.PaymentStatusCompleted},
	models.PaymentStatusCompleted: {models.PaymentStatusRefunded},
}

// GetOrder returns an order visible to actor
func (s *OrderService) GetOrder(ctx context.Context, actor Actor, id uint) (*models.Order, error) {
	order, err := s.loadOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if !order.HasParticipant(actor.UserID) {
		return nil, &ForbiddenError{Message: "You don't have permission to view this order"}
	}
	return order, nil
}

// ListOrdersForUser returns the orders where actor is designer or supplier, newest first
func (s *OrderService) ListOrdersForUser(ctx context.Context, actor Actor) ([]models.Order, error) {
	orders := []models.Order{}
	err := s.db.WithContext(ctx).
		Preload("Design").Preload("Designer").Preload("Supplier").
		Where("designer_id = ? OR supplier_id = ?", actor.UserID, actor.UserID).
		Order("created_at DESC").Order("id DESC").
		Find(&orders).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	return orders, nil
}

// UpdateOrderStatus applies a fulfillment step. The supplier advances production once the
// order is paid; the designer may cancel while the order is pending and unpaid.
func (s *OrderService) UpdateOrderStatus(ctx context.Context, actor Actor, id uint, rawStatus string) (*models.Order, error) {
	target, err := models.ParseOrderStatus(rawStatus)
	if err != nil {
		return nil, enumValidationError("status", err)
	}

	order, err := s.GetOrder(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	invalid := &InvalidStateError{Resource: "order", ID: id, Current: string(order.Status), Action: "move to " + string(target)}
	switch {
	case target == models.OrderStatusCancelled:
		if order.DesignerID != actor.UserID {
			return nil, &ForbiddenError{Message: "Only the designer can cancel an order"}
		}
		if order.Status != models.OrderStatusPending {
			return nil, invalid
		}
		if order.PaymentStatus == models.PaymentStatusCompleted {
			return nil, &InvalidStateError{Resource: "order", ID: id, Current: "payment " + string(order.PaymentStatus), Action: "cancel"}
		}
	default:
		if order.SupplierID != actor.UserID {
			return nil, &ForbiddenError{Message: "Only the supplier can update production status"}
		}
		if next, ok := supplierOrderTransitions[order.Status]; !ok || next != target {
			return nil, invalid
		}
		if order.Status == models.OrderStatusPending && order.PaymentStatus != models.PaymentStatusCompleted {
			return nil, &InvalidStateError{Resource: "order", ID: id, Current: "payment " + string(order.PaymentStatus), Action: "start production on"}
		}
	}

	query := s.db.WithContext(ctx).Model(&models.Order{}).Where("id = ? AND status = ?", id, order.Status)
	if target == models.OrderStatusCancelled {
		query = query.Where("payment_status <> ?", models.PaymentStatusCompleted)
	}
	res := query.Update("status", target)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to update order status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, &ConflictError{Message: fmt.Sprintf("order %d changed concurrently", id)}
	}
	log.Printf("[lifecycle] order status changed order_id=%d from=%s to=%s", id, order.Status, target)

	return s.loadOrder(ctx, id)
}

// UpdateOrderPaymentStatus records the payment state of an order. Setting the status the
// order already holds is a no-op, so the reconciler and retried requests can call it freely.
func (s *OrderService) UpdateOrderPaymentStatus(ctx context.Context, id uint, target models.PaymentStatus) (*models.Order, error) {
	order, err := s.loadOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if order.PaymentStatus == target {
		return order, nil
	}
	if !containsStatus(paymentStatusTransitions[order.PaymentStatus], target) {
		return nil, &InvalidStateError{
			Resource: "order payment",
			ID:       id,
			Current:  string(order.PaymentStatus),
			Action:   "move to " + string(target),
		}
	}

	res := s.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND payment_status = ?", id, order.PaymentStatus).
		Update("payment_status", target)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to update order payment status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		current, err := s.loadOrder(ctx, id)
		if err != nil {
			return nil, err
		}
		if current.PaymentStatus == target {
			return current, nil
		}
		return nil, &ConflictError{Message: fmt.Sprintf("order %d payment status changed concurrently", id), Current: string(current.PaymentStatus)}
	}
	log.Printf("[lifecycle] order payment status changed order_id=%d from=%s to=%s", id, order.PaymentStatus, target)

	return s.loadOrder(ctx, id)
}

func (s *OrderService) loadOrder(ctx context.Context, id uint) (*models.Order, error) {
	var order models.Order
	err := s.db.WithContext(ctx).
		Preload("Design").Preload("Designer").Preload("Supplier").
		First(&order, id).Error
	if err != nil {
		return nil, notFoundOr(err, "order", id)
	}
	return &order, nil
}

func (s *OrderService) findByQuote(ctx context.Context, quoteID uint) (*models.Order, error) {
	var order models.Order
	err := s.db.WithContext(ctx).
		Preload("Design").Preload("Designer").Preload("Supplier").
		Where("quote_id = ?", quoteID).
		First(&order).Error
	if err != nil {
		return nil, notFoundOr(err, "order for quote", quoteID)
	}
	return &order, nil
}
