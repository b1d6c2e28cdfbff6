package services

import (
	"context"
	"errors"
	"testing"

	"github.com/kendall-kelly/atelier-api/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingOrderPayments struct {
	err   error
	calls int
}

func (u *failingOrderPayments) UpdateOrderPaymentStatus(ctx context.Context, orderID uint, status models.PaymentStatus) (*models.Order, error) {
	u.calls++
	return nil, u.err
}

type paymentFixture struct {
	*fixture
	processor *MockPaymentProcessor
	notifier  *MockNotifier
	payments  *PaymentService
}

func newPaymentFixture(t *testing.T, opts ...PaymentOption) *paymentFixture {
	t.Helper()
	f := newFixture(t)
	processor := NewMockPaymentProcessor()
	notifier := NewMockNotifier()
	return &paymentFixture{
		fixture:   f,
		processor: processor,
		notifier:  notifier,
		payments:  NewPaymentService(f.db, processor, notifier, decimal.RequireFromString("0.10"), opts...),
	}
}

func (p *paymentFixture) pay(order *models.Order) (*models.Payment, error) {
	return p.payments.ProcessPayment(p.ctx, p.designerActor(), ProcessPaymentInput{
		OrderID: order.ID,
		Amount:  order.Amount,
		Method:  "CreditCard",
	})
}

func (p *paymentFixture) reloadOrder(t *testing.T, id uint) models.Order {
	t.Helper()
	var order models.Order
	require.NoError(t, p.db.First(&order, id).Error)
	return order
}

func (p *paymentFixture) countPayments(t *testing.T, orderID uint) int64 {
	t.Helper()
	var count int64
	require.NoError(t, p.db.Model(&models.Payment{}).Where("order_id = ?", orderID).Count(&count).Error)
	return count
}

func TestProcessPayment_Success(t *testing.T) {
	p := newPaymentFixture(t)
	order := p.acceptedOrder(t, "100.00")

	payment, err := p.pay(order)
	require.NoError(t, err)
	p.payments.WaitForNotifications()

	assert.Equal(t, models.PaymentStatusCompleted, payment.Status)
	assert.True(t, payment.Amount.Equal(decimal.NewFromInt(100)))
	assert.True(t, payment.PlatformFee.Equal(decimal.NewFromInt(10)))
	assert.True(t, payment.TotalAmount.Equal(decimal.NewFromInt(110)))
	assert.Equal(t, 1, payment.Attempt)
	require.NotNil(t, payment.TransactionID)
	assert.Contains(t, *payment.TransactionID, "txn_")
	require.NotNil(t, payment.ProcessorReference)

	assert.Equal(t, models.PaymentStatusCompleted, p.reloadOrder(t, order.ID).PaymentStatus)

	charges := p.processor.Charges()
	require.Len(t, charges, 1)
	assert.True(t, charges[0].Amount.Equal(decimal.NewFromInt(110)), "the processor is charged the total")
	assert.Equal(t, *payment.TransactionID, charges[0].TransactionID)
	assert.Equal(t, p.designer.Email, charges[0].PayerEmail)

	txns, err := p.payments.ListTransactions(p.ctx, p.supplierActor(), payment.ID)
	require.NoError(t, err)
	require.Len(t, txns, 1)
	assert.Equal(t, models.TransactionTypeCharge, txns[0].Type)
	assert.Equal(t, models.PaymentStatusCompleted, txns[0].Status)

	sent := p.notifier.Sent()
	require.Len(t, sent, 2)
	subjects := []string{sent[0].Subject, sent[1].Subject}
	assert.ElementsMatch(t, []string{"Order Confirmed - Payment Received", "New Order Received"}, subjects)
	for _, n := range sent {
		if n.Subject == "New Order Received" {
			assert.Equal(t, p.supplier.Email, n.ToAddress)
			assert.Contains(t, n.Body, "$100.00")
			assert.Contains(t, n.Body, "Platform fee: $10.00")
		} else {
			assert.Equal(t, p.designer.Email, n.ToAddress)
			assert.Contains(t, n.Body, "$110.00")
		}
	}
}

func TestProcessPayment_Validation(t *testing.T) {
	p := newPaymentFixture(t)
	order := p.acceptedOrder(t, "100")

	_, err := p.payments.ProcessPayment(p.ctx, p.designerActor(), ProcessPaymentInput{OrderID: order.ID, Amount: decimal.NewFromInt(1), Method: "Pix"})
	assert.IsType(t, &ValidationError{}, err, "the amount is fixed by the order")

	_, err = p.payments.ProcessPayment(p.ctx, p.designerActor(), ProcessPaymentInput{OrderID: order.ID, Amount: order.Amount, Method: "Cash"})
	assert.IsType(t, &ValidationError{}, err)

	_, err = p.payments.ProcessPayment(p.ctx, p.supplierActor(), ProcessPaymentInput{OrderID: order.ID, Amount: order.Amount, Method: "Pix"})
	assert.IsType(t, &ForbiddenError{}, err)

	_, err = p.payments.ProcessPayment(p.ctx, p.designerActor(), ProcessPaymentInput{OrderID: 999, Amount: order.Amount, Method: "Pix"})
	assert.IsType(t, &NotFoundError{}, err)

	assert.Empty(t, p.processor.Charges())
	assert.Equal(t, int64(0), p.countPayments(t, order.ID))
}

func TestProcessPayment_Declined(t *testing.T) {
	p := newPaymentFixture(t)
	order := p.acceptedOrder(t, "100")
	p.processor.DeclineNext("cc_rejected_insufficient_amount")

	_, err := p.pay(order)
	var declined *PaymentDeclinedError
	require.True(t, errors.As(err, &declined))
	assert.Equal(t, "cc_rejected_insufficient_amount", declined.Reason)

	var failed models.Payment
	require.NoError(t, p.db.Where("order_id = ?", order.ID).First(&failed).Error)
	assert.Equal(t, models.PaymentStatusFailed, failed.Status)
	require.NotNil(t, failed.FailureReason)
	assert.Equal(t, "cc_rejected_insufficient_amount", *failed.FailureReason)
	assert.Nil(t, failed.TransactionID)
	assert.Equal(t, models.PaymentStatusFailed, p.reloadOrder(t, order.ID).PaymentStatus)
	assert.Empty(t, p.notifier.Sent())

	// the designer fixes the card and pays again
	payment, err := p.pay(order)
	require.NoError(t, err)
	assert.Equal(t, 2, payment.Attempt)
	assert.Equal(t, models.PaymentStatusCompleted, p.reloadOrder(t, order.ID).PaymentStatus)
}

func TestProcessPayment_TransientThenRetry(t *testing.T) {
	p := newPaymentFixture(t)
	order := p.acceptedOrder(t, "100")
	p.processor.FailNextWith(&TransientError{Op: "charge", Err: errors.New("i/o timeout")})

	_, err := p.pay(order)
	require.Error(t, err)
	assert.True(t, IsTransient(err))

	var pending models.Payment
	require.NoError(t, p.db.Where("order_id = ?", order.ID).First(&pending).Error)
	assert.Equal(t, models.PaymentStatusPending, pending.Status)
	assert.Equal(t, models.PaymentStatusPending, p.reloadOrder(t, order.ID).PaymentStatus)

	payment, err := p.pay(order)
	require.NoError(t, err)
	assert.Equal(t, pending.ID, payment.ID, "the retry resumes the pending payment")
	assert.Equal(t, int64(1), p.countPayments(t, order.ID))
	assert.Len(t, p.processor.Charges(), 2)
}

func TestProcessPayment_PaidOrderIsRejected(t *testing.T) {
	p := newPaymentFixture(t)
	order := p.acceptedOrder(t, "100")

	_, err := p.pay(order)
	require.NoError(t, err)
	require.Equal(t, models.PaymentStatusCompleted, p.reloadOrder(t, order.ID).PaymentStatus)

	_, err = p.pay(order)
	var stateErr *InvalidStateError
	require.ErrorAs(t, err, &stateErr)
	assert.Equal(t, "Completed", stateErr.Current)
	assert.Len(t, p.processor.Charges(), 1)
	assert.Equal(t, int64(1), p.countPayments(t, order.ID))
}

func TestProcessPayment_OrderStatusUpdateFailureIsReconcilable(t *testing.T) {
	failing := &failingOrderPayments{err: errors.New("database is locked")}
	p := newPaymentFixture(t, WithOrderPaymentUpdater(failing))
	order := p.acceptedOrder(t, "100")

	payment, err := p.pay(order)
	require.NoError(t, err, "the payment caller does not see the status update failure")
	p.payments.WaitForNotifications()
	assert.Equal(t, models.PaymentStatusCompleted, payment.Status)
	assert.Equal(t, 1, failing.calls)
	assert.Equal(t, models.PaymentStatusPending, p.reloadOrder(t, order.ID).PaymentStatus)

	healthy := NewPaymentService(p.db, p.processor, nil, decimal.RequireFromString("0.10"))
	repaired, err := healthy.ReconcileOrderPayments(p.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, repaired)
	assert.Equal(t, models.PaymentStatusCompleted, p.reloadOrder(t, order.ID).PaymentStatus)

	repaired, err = healthy.ReconcileOrderPayments(p.ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, repaired, "reconciliation is idempotent")

	assert.Equal(t, int64(1), p.countPayments(t, order.ID))
	assert.Len(t, p.processor.Charges(), 1)
}

func TestProcessPayment_RetriedCallRepairsOrderStatus(t *testing.T) {
	failing := &failingOrderPayments{err: errors.New("connection reset")}
	p := newPaymentFixture(t, WithOrderPaymentUpdater(failing))
	order := p.acceptedOrder(t, "100")

	_, err := p.pay(order)
	require.NoError(t, err)

	healthy := NewPaymentService(p.db, p.processor, nil, decimal.RequireFromString("0.10"))
	payment, err := healthy.ProcessPayment(p.ctx, p.designerActor(), ProcessPaymentInput{OrderID: order.ID, Amount: order.Amount, Method: "CreditCard"})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusCompleted, payment.Status)
	assert.Equal(t, models.PaymentStatusCompleted, p.reloadOrder(t, order.ID).PaymentStatus)
	assert.Equal(t, int64(1), p.countPayments(t, order.ID))
	assert.Len(t, p.processor.Charges(), 1)
}

func TestProcessPayment_NotificationFailureIsSwallowed(t *testing.T) {
	p := newPaymentFixture(t)
	p.notifier.Err = errors.New("outbox unavailable")
	order := p.acceptedOrder(t, "100")

	payment, err := p.pay(order)
	require.NoError(t, err)
	p.payments.WaitForNotifications()

	assert.Equal(t, models.PaymentStatusCompleted, payment.Status)
	var stored models.Payment
	require.NoError(t, p.db.First(&stored, payment.ID).Error)
	assert.Equal(t, models.PaymentStatusCompleted, stored.Status)
	assert.Equal(t, models.PaymentStatusCompleted, p.reloadOrder(t, order.ID).PaymentStatus)
}

func TestRefundPayment(t *testing.T) {
	p := newPaymentFixture(t)
	order := p.acceptedOrder(t, "100")
	payment, err := p.pay(order)
	require.NoError(t, err)

	_, err = p.payments.RefundPayment(p.ctx, p.designerActor(), RefundInput{PaymentID: payment.ID, Amount: decimal.NewFromInt(500)})
	assert.IsType(t, &ValidationError{}, err, "cannot refund more than was paid")

	_, err = p.payments.RefundPayment(p.ctx, p.designerActor(), RefundInput{PaymentID: payment.ID, Amount: decimal.Zero})
	assert.IsType(t, &ValidationError{}, err)

	_, err = p.payments.RefundPayment(p.ctx, p.supplier2Actor(), RefundInput{PaymentID: payment.ID, Amount: decimal.NewFromInt(10)})
	assert.IsType(t, &ForbiddenError{}, err)

	refund, err := p.payments.RefundPayment(p.ctx, p.supplierActor(), RefundInput{PaymentID: payment.ID, Amount: payment.TotalAmount, Reason: "fabric unavailable"})
	require.NoError(t, err)
	assert.Equal(t, models.TransactionTypeRefund, refund.Type)
	assert.Equal(t, models.PaymentStatusCompleted, refund.Status)
	assert.Equal(t, "fabric unavailable", refund.Reason)
	require.NotNil(t, refund.OriginalTransactionID)
	assert.Equal(t, *payment.TransactionID, *refund.OriginalTransactionID)

	status, err := p.payments.GetPaymentStatus(p.ctx, p.designerActor(), payment.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusRefunded, status.Status)
	assert.Equal(t, models.PaymentStatusRefunded, p.reloadOrder(t, order.ID).PaymentStatus)

	_, err = p.payments.RefundPayment(p.ctx, p.designerActor(), RefundInput{PaymentID: payment.ID, Amount: decimal.NewFromInt(1)})
	var stateErr *InvalidStateError
	require.True(t, errors.As(err, &stateErr))
	assert.Equal(t, "Refunded", stateErr.Current)

	txns, err := p.payments.ListTransactions(p.ctx, p.designerActor(), payment.ID)
	require.NoError(t, err)
	require.Len(t, txns, 2)
	assert.Equal(t, models.TransactionTypeCharge, txns[0].Type)
	assert.Equal(t, models.TransactionTypeRefund, txns[1].Type)
	assert.Len(t, p.processor.Refunds(), 1)
}

func TestRefundPayment_DeclineRestoresPayment(t *testing.T) {
	p := newPaymentFixture(t)
	order := p.acceptedOrder(t, "100")
	payment, err := p.pay(order)
	require.NoError(t, err)

	p.processor.RefundErr = &PaymentDeclinedError{Reason: "refund window closed"}
	_, err = p.payments.RefundPayment(p.ctx, p.designerActor(), RefundInput{PaymentID: payment.ID, Amount: decimal.NewFromInt(50)})
	var declined *PaymentDeclinedError
	require.ErrorAs(t, err, &declined)

	stored, err := p.payments.GetPayment(p.ctx, p.designerActor(), payment.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusCompleted, stored.Status)
	assert.Equal(t, models.PaymentStatusCompleted, p.reloadOrder(t, order.ID).PaymentStatus)

	txns, err := p.payments.ListTransactions(p.ctx, p.designerActor(), payment.ID)
	require.NoError(t, err)
	require.Len(t, txns, 2)
	assert.Equal(t, models.PaymentStatusFailed, txns[1].Status)

	p.processor.RefundErr = nil
	_, err = p.payments.RefundPayment(p.ctx, p.designerActor(), RefundInput{PaymentID: payment.ID, Amount: decimal.NewFromInt(50)})
	require.NoError(t, err)
	assert.Equal(t, 1, p.processor.AppliedRefunds())
}

func TestRefundPayment_LostReplyIsResumedNotRepeated(t *testing.T) {
	p := newPaymentFixture(t)
	order := p.acceptedOrder(t, "100")
	payment, err := p.pay(order)
	require.NoError(t, err)

	p.processor.LoseNextRefundReply()
	_, err = p.payments.RefundPayment(p.ctx, p.designerActor(), RefundInput{PaymentID: payment.ID, Amount: decimal.NewFromInt(50)})
	require.Error(t, err)
	assert.True(t, IsTransient(err))

	stored, err := p.payments.GetPayment(p.ctx, p.designerActor(), payment.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusRefunded, stored.Status, "an unknown outcome keeps the payment out of reach of a new refund")
	assert.Equal(t, models.PaymentStatusCompleted, p.reloadOrder(t, order.ID).PaymentStatus)

	repaired, err := p.payments.ReconcileOrderPayments(p.ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, repaired, "a pending refund is not reconciled")

	_, err = p.payments.SyncOrderPaymentStatus(p.ctx, p.designerActor(), order.ID, "Refunded")
	var conflict *ConflictError
	assert.ErrorAs(t, err, &conflict)

	_, err = p.payments.RefundPayment(p.ctx, p.designerActor(), RefundInput{PaymentID: payment.ID, Amount: decimal.NewFromInt(20)})
	var validation *ValidationError
	assert.ErrorAs(t, err, &validation, "the pending refund amount is fixed")

	refund, err := p.payments.RefundPayment(p.ctx, p.supplierActor(), RefundInput{PaymentID: payment.ID, Amount: decimal.NewFromInt(50)})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusCompleted, refund.Status)
	assert.Equal(t, models.PaymentStatusRefunded, p.reloadOrder(t, order.ID).PaymentStatus)

	requests := p.processor.Refunds()
	require.Len(t, requests, 2)
	assert.Equal(t, requests[0].TransactionID, requests[1].TransactionID)
	assert.Equal(t, refund.TransactionID, requests[1].TransactionID)
	assert.False(t, requests[0].Resume)
	assert.True(t, requests[1].Resume)
	assert.Equal(t, 1, p.processor.AppliedRefunds(), "money moves once")

	txns, err := p.payments.ListTransactions(p.ctx, p.designerActor(), payment.ID)
	require.NoError(t, err)
	assert.Len(t, txns, 2)

	_, err = p.payments.RefundPayment(p.ctx, p.designerActor(), RefundInput{PaymentID: payment.ID, Amount: decimal.NewFromInt(50)})
	var stateErr *InvalidStateError
	assert.ErrorAs(t, err, &stateErr)
}

func TestListPaymentsForUser(t *testing.T) {
	p := newPaymentFixture(t)
	first := p.acceptedOrder(t, "100")
	second := p.acceptedOrder(t, "40")
	_, err := p.pay(first)
	require.NoError(t, err)
	_, err = p.pay(second)
	require.NoError(t, err)

	mine, err := p.payments.ListPaymentsForUser(p.ctx, p.designerActor())
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	supplierView, err := p.payments.ListPaymentsForUser(p.ctx, p.supplierActor())
	require.NoError(t, err)
	assert.Len(t, supplierView, 2)

	stranger, err := p.payments.ListPaymentsForUser(p.ctx, p.supplier2Actor())
	require.NoError(t, err)
	assert.Empty(t, stranger)

	latest, err := p.payments.LatestPaymentForOrder(p.ctx, first.ID)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, first.ID, latest.OrderID)
}

func TestReconcileOrderPayments_Refunds(t *testing.T) {
	p := newPaymentFixture(t)
	order := p.acceptedOrder(t, "100")
	payment, err := p.pay(order)
	require.NoError(t, err)

	// refund recorded on the payment, order update lost
	require.NoError(t, p.db.Model(&models.Payment{}).Where("id = ?", payment.ID).Update("status", models.PaymentStatusRefunded).Error)

	repaired, err := p.payments.ReconcileOrderPayments(p.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, repaired)
	assert.Equal(t, models.PaymentStatusRefunded, p.reloadOrder(t, order.ID).PaymentStatus)
}

func TestSyncOrderPaymentStatus(t *testing.T) {
	failing := &failingOrderPayments{err: errors.New("connection reset")}
	p := newPaymentFixture(t, WithOrderPaymentUpdater(failing))
	order := p.acceptedOrder(t, "100")
	healthy := NewPaymentService(p.db, p.processor, nil, p.payments.feeRate)

	_, err := healthy.SyncOrderPaymentStatus(p.ctx, p.designerActor(), order.ID, "Completed")
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict, "an unpaid order cannot be marked paid")
	assert.Equal(t, string(models.PaymentStatusPending), conflict.Current)

	_, err = p.pay(order)
	require.NoError(t, err)
	p.payments.WaitForNotifications()
	require.Equal(t, models.PaymentStatusPending, p.reloadOrder(t, order.ID).PaymentStatus)

	_, err = healthy.SyncOrderPaymentStatus(p.ctx, p.supplier2Actor(), order.ID, "Completed")
	var forbidden *ForbiddenError
	assert.ErrorAs(t, err, &forbidden)

	_, err = healthy.SyncOrderPaymentStatus(p.ctx, p.designerActor(), order.ID, "Refunded")
	assert.ErrorAs(t, err, &conflict)

	synced, err := healthy.SyncOrderPaymentStatus(p.ctx, p.supplierActor(), order.ID, " completed ")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusCompleted, synced.PaymentStatus)

	again, err := healthy.SyncOrderPaymentStatus(p.ctx, p.designerActor(), order.ID, "Completed")
	require.NoError(t, err, "replaying is a no-op")
	assert.Equal(t, models.PaymentStatusCompleted, again.PaymentStatus)

	_, err = healthy.SyncOrderPaymentStatus(p.ctx, p.designerActor(), order.ID, "Paid")
	var validation *ValidationError
	assert.ErrorAs(t, err, &validation)
}

func TestPaymentServiceSingleton(t *testing.T) {
	previous := GetPaymentService()
	t.Cleanup(func() { SetPaymentService(previous) })

	db := setupServiceTestDB(t)
	s := InitPaymentService(db, NewMockPaymentProcessor(), nil, decimal.RequireFromString("0.05"))
	assert.Same(t, s, GetPaymentService())

	other := NewPaymentService(db, NewMockPaymentProcessor(), nil, decimal.Zero)
	SetPaymentService(other)
	assert.Same(t, other, GetPaymentService())
}
