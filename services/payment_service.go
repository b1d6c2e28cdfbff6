package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"
	"github.com/kendall-kelly/atelier-api/models"
	"github.com/kendall-kelly/atelier-api/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// OrderPaymentUpdater records an order's payment status
type OrderPaymentUpdater interface {
	UpdateOrderPaymentStatus(ctx context.Context, orderID uint, status models.PaymentStatus) (*models.Order, error)
}

// PaymentService charges and refunds orders through a PaymentProcessor.
// Collecting money and recording the order's payment status are separate steps:
// a failure of the second leaves a Completed payment for ReconcileOrderPayments to finish.
type PaymentService struct {
	db            *gorm.DB
	processor     PaymentProcessor
	notifier      Notifier
	feeRate       decimal.Decimal
	orderPayments OrderPaymentUpdater

	notifications sync.WaitGroup
}

// PaymentOption customizes a PaymentService
type PaymentOption func(*PaymentService)

// WithOrderPaymentUpdater replaces the step that records the order payment status
func WithOrderPaymentUpdater(u OrderPaymentUpdater) PaymentOption {
	return func(s *PaymentService) {
		s.orderPayments = u
	}
}

// NewPaymentService creates a payment service. A nil notifier disables notifications.
func NewPaymentService(db *gorm.DB, processor PaymentProcessor, notifier Notifier, feeRate decimal.Decimal, opts ...PaymentOption) *PaymentService {
	s := &PaymentService{
		db:            db,
		processor:     processor,
		notifier:      notifier,
		feeRate:       feeRate,
		orderPayments: NewOrderService(db),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var paymentServiceInstance *PaymentService

// InitPaymentService creates the global payment service
func InitPaymentService(db *gorm.DB, processor PaymentProcessor, notifier Notifier, feeRate decimal.Decimal) *PaymentService {
	paymentServiceInstance = NewPaymentService(db, processor, notifier, feeRate)
	return paymentServiceInstance
}

// GetPaymentService returns the global payment service
func GetPaymentService() *PaymentService {
	return paymentServiceInstance
}

// SetPaymentService replaces the global payment service (primarily for testing)
func SetPaymentService(s *PaymentService) {
	paymentServiceInstance = s
}

// ProcessPaymentInput is a designer's request to pay for an order
type ProcessPaymentInput struct {
	OrderID   uint
	Amount    decimal.Decimal
	Method    string
	CardToken string
}

// RefundInput is a request to return money for a completed payment
type RefundInput struct {
	PaymentID uint
	Amount    decimal.Decimal
	Reason    string
}

// PaymentStatusView is the lightweight status answer polled by clients
type PaymentStatusView struct {
	PaymentID     uint                 `json:"payment_id"`
	OrderID       uint                 `json:"order_id"`
	Status        models.PaymentStatus `json:"status"`
	TransactionID *string              `json:"transaction_id"`
	FailureReason *string              `json:"failure_reason,omitempty"`
	TotalAmount   decimal.Decimal      `json:"total_amount"`
}

// ProcessPayment charges the designer for an order. The amount must equal the order amount;
// the fee is computed here and stored with the payment. Retrying after a transient failure
// resumes the pending payment instead of creating another one. An order already marked paid
// is rejected; one whose payment completed but whose status update was lost gets the
// update replayed without a second charge.
func (s *PaymentService) ProcessPayment(ctx context.Context, actor Actor, in ProcessPaymentInput) (*models.Payment, error) {
	method, err := models.ParsePaymentMethod(in.Method)
	if err != nil {
		return nil, enumValidationError("payment_method", err)
	}

	order, err := NewOrderService(s.db).loadOrder(ctx, in.OrderID)
	if err != nil {
		return nil, err
	}
	if order.DesignerID != actor.UserID {
		return nil, &ForbiddenError{Message: "Only the designer of the order can pay for it"}
	}
	if order.Status == models.OrderStatusCancelled {
		return nil, &InvalidStateError{Resource: "order", ID: order.ID, Current: string(order.Status), Action: "pay for"}
	}
	if order.PaymentStatus == models.PaymentStatusCompleted || order.PaymentStatus == models.PaymentStatusRefunded {
		return nil, &InvalidStateError{Resource: "order payment", ID: order.ID, Current: string(order.PaymentStatus), Action: "pay for"}
	}
	if !in.Amount.Equal(order.Amount) {
		return nil, newValidationError("amount", fmt.Sprintf("amount must equal the order amount %s", order.Amount.StringFixed(2)))
	}

	fee, err := CalculateFee(order.Amount, s.feeRate)
	if err != nil {
		return nil, err
	}

	payment, charge, err := s.beginCharge(ctx, order, fee, method)
	if err != nil {
		return nil, err
	}
	if payment.Status == models.PaymentStatusCompleted {
		log.Printf("[payment][service] payment already completed, replaying order update payment_id=%d order_id=%d", payment.ID, order.ID)
		s.recordOrderPayment(ctx, order.ID, models.PaymentStatusCompleted)
		return payment, nil
	}

	// The processor call must finish even if the client goes away.
	procCtx := context.WithoutCancel(ctx)

	var result *ChargeResult
	if payment.ProcessorReference != nil {
		log.Printf("[payment][service] resuming payment payment_id=%d reference=%s", payment.ID, *payment.ProcessorReference)
		result, err = s.processor.Lookup(procCtx, *payment.ProcessorReference)
	} else {
		log.Printf("[payment][service] charge start payment_id=%d order_id=%d total=%s method=%s", payment.ID, order.ID, payment.TotalAmount, method)
		result, err = s.processor.Charge(procCtx, ChargeRequest{
			TransactionID: charge.TransactionID,
			OrderNumber:   order.OrderNumber,
			Amount:        payment.TotalAmount,
			Currency:      payment.Currency,
			Method:        method,
			PayerEmail:    order.Designer.Email,
			CardToken:     in.CardToken,
			Description:   fmt.Sprintf("Order %s", order.OrderNumber),
		})
	}

	var declined *PaymentDeclinedError
	switch {
	case errors.As(err, &declined):
		log.Printf("[payment][service] charge declined payment_id=%d reason=%q", payment.ID, declined.Reason)
		if ferr := s.failCharge(procCtx, payment, charge, declined.Reason); ferr != nil {
			return nil, ferr
		}
		s.recordOrderPayment(procCtx, order.ID, models.PaymentStatusFailed)
		return nil, declined
	case IsTransient(err):
		if result != nil && result.ProcessorReference != "" {
			s.rememberReference(procCtx, payment, charge, result.ProcessorReference)
		}
		log.Printf("[payment][service] charge outcome unknown payment_id=%d err=%v", payment.ID, err)
		return nil, err
	case err != nil:
		log.Printf("[payment][service] charge failed payment_id=%d err=%v", payment.ID, err)
		return nil, fmt.Errorf("failed to charge payment %d: %w", payment.ID, err)
	}

	if err := s.completeCharge(procCtx, payment, charge, result.ProcessorReference); err != nil {
		return nil, err
	}
	log.Printf("[payment][service] charge completed payment_id=%d order_id=%d transaction_id=%s", payment.ID, order.ID, charge.TransactionID)

	s.recordOrderPayment(procCtx, order.ID, models.PaymentStatusCompleted)

	completed, err := s.loadPayment(procCtx, payment.ID)
	if err != nil {
		return nil, err
	}
	s.notifyPaymentCompleted(order, completed)
	return completed, nil
}

// beginCharge returns the payment and pending Charge transaction this attempt works on.
// An existing Completed or Pending payment is returned as is; otherwise a new attempt is inserted.
func (s *PaymentService) beginCharge(ctx context.Context, order *models.Order, fee FeeBreakdown, method models.PaymentMethod) (*models.Payment, *models.PaymentTransaction, error) {
	var payment models.Payment
	var charge models.PaymentTransaction

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var latest models.Payment
		err := tx.Where("order_id = ?", order.ID).Order("attempt DESC").First(&latest).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("failed to load payments: %w", err)
		}
		found := err == nil

		if found && (latest.Status == models.PaymentStatusCompleted || latest.Status == models.PaymentStatusPending) {
			payment = latest
			if latest.Status == models.PaymentStatusCompleted {
				return nil
			}
			err := tx.Where("payment_id = ? AND type = ? AND status = ?", latest.ID, models.TransactionTypeCharge, models.PaymentStatusPending).
				Order("id DESC").First(&charge).Error
			if err == nil {
				return nil
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("failed to load charge: %w", err)
			}
			charge = newTransaction(latest.ID, models.TransactionTypeCharge, latest.TotalAmount)
			charge.ProcessorReference = latest.ProcessorReference
			return tx.Create(&charge).Error
		}

		attempt := 1
		if found {
			attempt = latest.Attempt + 1
		}
		payment = models.Payment{
			OrderID:       order.ID,
			Attempt:       attempt,
			Amount:        fee.Amount,
			PlatformFee:   fee.PlatformFee,
			TotalAmount:   fee.TotalAmount,
			Currency:      order.Currency,
			PaymentMethod: method,
			Status:        models.PaymentStatusPending,
		}
		if err := tx.Create(&payment).Error; err != nil {
			if IsUniqueViolation(err) {
				return &ConflictError{Message: fmt.Sprintf("a payment for order %d is already in progress", order.ID)}
			}
			return fmt.Errorf("failed to create payment: %w", err)
		}

		charge = newTransaction(payment.ID, models.TransactionTypeCharge, payment.TotalAmount)
		if err := tx.Create(&charge).Error; err != nil {
			return fmt.Errorf("failed to create charge transaction: %w", err)
		}
		log.Printf("[payment][service] payment created payment_id=%d order_id=%d attempt=%d", payment.ID, order.ID, attempt)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return &payment, &charge, nil
}

func (s *PaymentService) completeCharge(ctx context.Context, payment *models.Payment, charge *models.PaymentTransaction, reference string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Payment{}).
			Where("id = ? AND status = ?", payment.ID, models.PaymentStatusPending).
			Updates(map[string]interface{}{
				"status":              models.PaymentStatusCompleted,
				"transaction_id":      charge.TransactionID,
				"processor_reference": reference,
				"failure_reason":      nil,
			})
		if res.Error != nil {
			return fmt.Errorf("failed to complete payment: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			var current models.Payment
			if err := tx.Select("id", "status").First(&current, payment.ID).Error; err != nil {
				return notFoundOr(err, "payment", payment.ID)
			}
			if current.Status != models.PaymentStatusCompleted {
				return &ConflictError{Message: fmt.Sprintf("payment %d changed concurrently", payment.ID), Current: string(current.Status)}
			}
		}

		return tx.Model(&models.PaymentTransaction{}).
			Where("id = ?", charge.ID).
			Updates(map[string]interface{}{
				"status":              models.PaymentStatusCompleted,
				"processor_reference": reference,
			}).Error
	})
}

func (s *PaymentService) failCharge(ctx context.Context, payment *models.Payment, charge *models.PaymentTransaction, reason string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Payment{}).
			Where("id = ? AND status = ?", payment.ID, models.PaymentStatusPending).
			Updates(map[string]interface{}{
				"status":         models.PaymentStatusFailed,
				"failure_reason": reason,
			}).Error; err != nil {
			return fmt.Errorf("failed to record declined payment: %w", err)
		}
		return tx.Model(&models.PaymentTransaction{}).
			Where("id = ?", charge.ID).
			Updates(map[string]interface{}{
				"status": models.PaymentStatusFailed,
				"reason": reason,
			}).Error
	})
}

func (s *PaymentService) rememberReference(ctx context.Context, payment *models.Payment, charge *models.PaymentTransaction, reference string) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Payment{}).Where("id = ?", payment.ID).
			Update("processor_reference", reference).Error; err != nil {
			return err
		}
		return tx.Model(&models.PaymentTransaction{}).Where("id = ?", charge.ID).
			Update("processor_reference", reference).Error
	})
	if err != nil {
		log.Printf("[payment][service] failed to store processor reference payment_id=%d err=%v", payment.ID, err)
	}
}

// recordOrderPayment is the separate status step; its failure is logged and left to reconciliation
func (s *PaymentService) recordOrderPayment(ctx context.Context, orderID uint, status models.PaymentStatus) {
	if _, err := s.orderPayments.UpdateOrderPaymentStatus(ctx, orderID, status); err != nil {
		log.Printf("[payment][service] order payment status update failed order_id=%d status=%s err=%v (left for reconciliation)", orderID, status, err)
	}
}

// notifyPaymentCompleted emails designer and supplier independently.
// Failures are logged and never reach the payment caller.
func (s *PaymentService) notifyPaymentCompleted(order *models.Order, payment *models.Payment) {
	if s.notifier == nil {
		return
	}

	designTitle := ""
	if order.Design != nil {
		designTitle = order.Design.Title
	}
	notifications := []Notification{
		{
			ToAddress: order.Designer.Email,
			ToName:    order.Designer.Name,
			Subject:   "Order Confirmed - Payment Received",
			Body: fmt.Sprintf("Your order %s for %q has been confirmed. Payment of %s has been processed successfully. The supplier will begin manufacturing your design.",
				order.OrderNumber, designTitle, utils.FormatMoney(payment.TotalAmount, payment.Currency)),
		},
		{
			ToAddress: order.Supplier.Email,
			ToName:    order.Supplier.Name,
			Subject:   "New Order Received",
			Body: fmt.Sprintf("You have received a new order %s for %s. Please begin manufacturing. Platform fee: %s",
				order.OrderNumber, utils.FormatMoney(payment.Amount, payment.Currency), utils.FormatMoney(payment.PlatformFee, payment.Currency)),
		},
	}

	for _, n := range notifications {
		s.notifications.Add(1)
		go func(n Notification) {
			defer s.notifications.Done()
			if err := s.notifier.Send(context.Background(), n); err != nil {
				log.Printf("[payment][service] notification failed order_id=%d to=%s subject=%q err=%v", order.ID, n.ToAddress, n.Subject, err)
			}
		}(n)
	}
}

// WaitForNotifications blocks until every notification started by this service has finished
func (s *PaymentService) WaitForNotifications() {
	s.notifications.Wait()
}

// RefundPayment returns money for a completed payment. Either participant of the order may
// request it. The payment is marked Refunded with a Pending refund transaction before the
// processor is called, so two concurrent refunds cannot both reach the processor. A decline
// restores the payment; an unknown outcome keeps the refund Pending and the next call
// resumes it with the same idempotency key.
func (s *PaymentService) RefundPayment(ctx context.Context, actor Actor, in RefundInput) (*models.PaymentTransaction, error) {
	payment, order, err := s.paymentForParticipant(ctx, actor, in.PaymentID)
	if err != nil {
		return nil, err
	}

	var refund *models.PaymentTransaction
	resume := false
	switch payment.Status {
	case models.PaymentStatusCompleted:
		if !in.Amount.IsPositive() || in.Amount.GreaterThan(payment.TotalAmount) {
			return nil, newValidationError("amount", fmt.Sprintf("refund amount must be greater than zero and at most %s", payment.TotalAmount.StringFixed(2)))
		}
		refund, err = s.beginRefund(ctx, payment, in)
		if err != nil {
			return nil, err
		}
	case models.PaymentStatusRefunded:
		refund, err = s.pendingRefund(ctx, payment.ID)
		if err != nil {
			return nil, err
		}
		if refund == nil {
			return nil, &InvalidStateError{Resource: "payment", ID: payment.ID, Current: string(payment.Status), Action: "refund"}
		}
		if !in.Amount.Equal(refund.Amount) {
			return nil, newValidationError("amount", fmt.Sprintf("a refund of %s is still being processed", refund.Amount.StringFixed(2)))
		}
		resume = true
		log.Printf("[payment][service] resuming refund payment_id=%d transaction_id=%s", payment.ID, refund.TransactionID)
	default:
		return nil, &InvalidStateError{Resource: "payment", ID: payment.ID, Current: string(payment.Status), Action: "refund"}
	}

	procCtx := context.WithoutCancel(ctx)
	reference := ""
	if payment.ProcessorReference != nil {
		reference = *payment.ProcessorReference
	}
	result, err := s.processor.Refund(procCtx, RefundRequest{
		TransactionID:      refund.TransactionID,
		ProcessorReference: reference,
		Amount:             refund.Amount,
		Reason:             refund.Reason,
		Resume:             resume,
	})

	var declined *PaymentDeclinedError
	switch {
	case errors.As(err, &declined):
		log.Printf("[payment][service] refund declined payment_id=%d reason=%q", payment.ID, declined.Reason)
		if rerr := s.revertRefund(procCtx, payment.ID, refund, declined.Reason); rerr != nil {
			log.Printf("[payment][service] refund revert failed payment_id=%d err=%v", payment.ID, rerr)
		}
		return nil, declined
	case err != nil:
		log.Printf("[payment][service] refund outcome unknown payment_id=%d transaction_id=%s err=%v", payment.ID, refund.TransactionID, err)
		if IsTransient(err) {
			return nil, err
		}
		return nil, &TransientError{Op: "refund payment", Err: err}
	}

	if err := s.db.WithContext(procCtx).Model(&models.PaymentTransaction{}).
		Where("id = ?", refund.ID).
		Updates(map[string]interface{}{
			"status":              models.PaymentStatusCompleted,
			"processor_reference": result.ProcessorReference,
		}).Error; err != nil {
		return nil, fmt.Errorf("failed to record refund: %w", err)
	}
	log.Printf("[payment][service] refund completed payment_id=%d order_id=%d amount=%s", payment.ID, order.ID, refund.Amount)

	s.recordOrderPayment(procCtx, order.ID, models.PaymentStatusRefunded)

	if err := s.db.WithContext(procCtx).First(refund, refund.ID).Error; err != nil {
		return nil, fmt.Errorf("failed to load refund: %w", err)
	}
	return refund, nil
}

// beginRefund moves the payment to Refunded and records the Pending refund transaction
func (s *PaymentService) beginRefund(ctx context.Context, payment *models.Payment, in RefundInput) (*models.PaymentTransaction, error) {
	var refund models.PaymentTransaction
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Payment{}).
			Where("id = ? AND status = ?", payment.ID, models.PaymentStatusCompleted).
			Update("status", models.PaymentStatusRefunded)
		if res.Error != nil {
			return fmt.Errorf("failed to mark payment refunded: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return &ConflictError{Message: fmt.Sprintf("payment %d was refunded concurrently", payment.ID), Current: string(models.PaymentStatusRefunded)}
		}

		refund = newTransaction(payment.ID, models.TransactionTypeRefund, in.Amount)
		refund.Reason = in.Reason
		refund.OriginalTransactionID = payment.TransactionID
		return tx.Create(&refund).Error
	})
	if err != nil {
		return nil, err
	}
	return &refund, nil
}

// pendingRefund returns the refund of a payment whose outcome is not known yet, or nil
func (s *PaymentService) pendingRefund(ctx context.Context, paymentID uint) (*models.PaymentTransaction, error) {
	var refund models.PaymentTransaction
	err := s.db.WithContext(ctx).
		Where("payment_id = ? AND type = ? AND status = ?", paymentID, models.TransactionTypeRefund, models.PaymentStatusPending).
		Order("id DESC").First(&refund).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load refund: %w", err)
	}
	return &refund, nil
}

func (s *PaymentService) revertRefund(ctx context.Context, paymentID uint, refund *models.PaymentTransaction, reason string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Payment{}).
			Where("id = ? AND status = ?", paymentID, models.PaymentStatusRefunded).
			Update("status", models.PaymentStatusCompleted).Error; err != nil {
			return err
		}
		return tx.Model(&models.PaymentTransaction{}).
			Where("id = ?", refund.ID).
			Updates(map[string]interface{}{
				"status": models.PaymentStatusFailed,
				"reason": reason,
			}).Error
	})
}

// GetPayment returns a payment visible to actor
func (s *PaymentService) GetPayment(ctx context.Context, actor Actor, id uint) (*models.Payment, error) {
	payment, _, err := s.paymentForParticipant(ctx, actor, id)
	return payment, err
}

// GetPaymentStatus returns the status summary of a payment visible to actor
func (s *PaymentService) GetPaymentStatus(ctx context.Context, actor Actor, id uint) (*PaymentStatusView, error) {
	payment, _, err := s.paymentForParticipant(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	return &PaymentStatusView{
		PaymentID:     payment.ID,
		OrderID:       payment.OrderID,
		Status:        payment.Status,
		TransactionID: payment.TransactionID,
		FailureReason: payment.FailureReason,
		TotalAmount:   payment.TotalAmount,
	}, nil
}

// ListPaymentsForUser returns payments of orders where actor is designer or supplier
func (s *PaymentService) ListPaymentsForUser(ctx context.Context, actor Actor) ([]models.Payment, error) {
	payments := []models.Payment{}
	err := s.db.WithContext(ctx).
		Joins("JOIN orders ON orders.id = payments.order_id AND orders.deleted_at IS NULL").
		Where("orders.designer_id = ? OR orders.supplier_id = ?", actor.UserID, actor.UserID).
		Order("payments.created_at DESC").Order("payments.id DESC").
		Find(&payments).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	return payments, nil
}

// ListTransactions returns the charge and refund history of a payment, oldest first
func (s *PaymentService) ListTransactions(ctx context.Context, actor Actor, paymentID uint) ([]models.PaymentTransaction, error) {
	if _, _, err := s.paymentForParticipant(ctx, actor, paymentID); err != nil {
		return nil, err
	}
	txns := []models.PaymentTransaction{}
	if err := s.db.WithContext(ctx).Where("payment_id = ?", paymentID).
		Order("created_at ASC").Order("id ASC").
		Find(&txns).Error; err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	return txns, nil
}

// LatestPaymentForOrder returns the newest payment attempt of an order, or nil when there is none
func (s *PaymentService) LatestPaymentForOrder(ctx context.Context, orderID uint) (*models.Payment, error) {
	var payment models.Payment
	err := s.db.WithContext(ctx).Where("order_id = ?", orderID).Order("attempt DESC").First(&payment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load payment: %w", err)
	}
	return &payment, nil
}

// SyncOrderPaymentStatus retries the order payment status step for one order.
// The requested status must be the status of the order's latest payment, so a
// participant can replay a lost update but never mark an unpaid order as paid.
func (s *PaymentService) SyncOrderPaymentStatus(ctx context.Context, actor Actor, orderID uint, rawStatus string) (*models.Order, error) {
	target, err := models.ParsePaymentStatus(rawStatus)
	if err != nil {
		return nil, enumValidationError("status", err)
	}

	order, err := NewOrderService(s.db).GetOrder(ctx, actor, orderID)
	if err != nil {
		return nil, err
	}

	latest, err := s.LatestPaymentForOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	current := models.PaymentStatusPending
	if latest != nil {
		current = latest.Status
	}
	if target != current {
		return nil, &ConflictError{
			Message: fmt.Sprintf("order %s payment is %s, cannot record %s", order.OrderNumber, current, target),
			Current: string(current),
		}
	}
	if target == models.PaymentStatusRefunded {
		pending, err := s.pendingRefund(ctx, latest.ID)
		if err != nil {
			return nil, err
		}
		if pending != nil {
			return nil, &ConflictError{
				Message: fmt.Sprintf("the refund of order %s is still being processed", order.OrderNumber),
				Current: string(models.PaymentStatusPending),
			}
		}
	}

	return s.orderPayments.UpdateOrderPaymentStatus(ctx, orderID, target)
}

// ReconcileOrderPayments re-applies the order payment status for payments whose
// order was not updated after the money moved. It is idempotent and returns how
// many orders were repaired.
func (s *PaymentService) ReconcileOrderPayments(ctx context.Context) (int, error) {
	type pending struct {
		OrderID uint
		Status  models.PaymentStatus
	}
	var rows []pending
	err := s.db.WithContext(ctx).Model(&models.Payment{}).
		Select("payments.order_id AS order_id, payments.status AS status").
		Joins("JOIN orders ON orders.id = payments.order_id AND orders.deleted_at IS NULL").
		Where("(payments.status = ? AND orders.payment_status NOT IN ?) OR (payments.status = ? AND orders.payment_status = ? AND NOT EXISTS (?))",
			models.PaymentStatusCompleted, []models.PaymentStatus{models.PaymentStatusCompleted, models.PaymentStatusRefunded},
			models.PaymentStatusRefunded, models.PaymentStatusCompleted,
			s.db.Model(&models.PaymentTransaction{}).Select("1").
				Where("payment_transactions.payment_id = payments.id AND payment_transactions.type = ? AND payment_transactions.status = ?",
					models.TransactionTypeRefund, models.PaymentStatusPending)).
		Scan(&rows).Error
	if err != nil {
		return 0, fmt.Errorf("failed to find unreconciled payments: %w", err)
	}

	repaired := 0
	for _, row := range rows {
		if _, err := s.orderPayments.UpdateOrderPaymentStatus(ctx, row.OrderID, row.Status); err != nil {
			log.Printf("[reconcile] order payment status still failing order_id=%d status=%s err=%v", row.OrderID, row.Status, err)
			continue
		}
		repaired++
		log.Printf("[reconcile] order payment status repaired order_id=%d status=%s", row.OrderID, row.Status)
	}
	return repaired, nil
}

func (s *PaymentService) paymentForParticipant(ctx context.Context, actor Actor, id uint) (*models.Payment, *models.Order, error) {
	payment, err := s.loadPayment(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	order, err := NewOrderService(s.db).loadOrder(ctx, payment.OrderID)
	if err != nil {
		return nil, nil, err
	}
	if !order.HasParticipant(actor.UserID) {
		return nil, nil, &ForbiddenError{Message: "You don't have permission to access this payment"}
	}
	return payment, order, nil
}

func (s *PaymentService) loadPayment(ctx context.Context, id uint) (*models.Payment, error) {
	var payment models.Payment
	if err := s.db.WithContext(ctx).First(&payment, id).Error; err != nil {
		return nil, notFoundOr(err, "payment", id)
	}
	return &payment, nil
}

func newTransaction(paymentID uint, kind models.TransactionType, amount decimal.Decimal) models.PaymentTransaction {
	return models.PaymentTransaction{
		PaymentID:     paymentID,
		TransactionID: "txn_" + uuid.NewString(),
		Type:          kind,
		Amount:        amount,
		Status:        models.PaymentStatusPending,
	}
}
