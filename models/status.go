package models

import (
	"fmt"
	"strings"
)

// DesignStatus is the lifecycle state of a Design
type DesignStatus string

const (
	DesignStatusDraft       DesignStatus = "Draft"
	DesignStatusPublished   DesignStatus = "Published"
	DesignStatusQuotingOpen DesignStatus = "QuotingOpen"
	DesignStatusOrdered     DesignStatus = "Ordered"
	DesignStatusClosed      DesignStatus = "Closed"
	DesignStatusCancelled   DesignStatus = "Cancelled"
)

// DesignStatuses lists every design status in lifecycle order
var DesignStatuses = []DesignStatus{
	DesignStatusDraft,
	DesignStatusPublished,
	DesignStatusQuotingOpen,
	DesignStatusOrdered,
	DesignStatusClosed,
	DesignStatusCancelled,
}

// OpenForQuoting lists the design statuses in which quotes may be submitted or accepted
var OpenForQuoting = []DesignStatus{DesignStatusPublished, DesignStatusQuotingOpen}

// IsOpenForQuoting reports whether suppliers can still quote on the design
func (s DesignStatus) IsOpenForQuoting() bool {
	return s == DesignStatusPublished || s == DesignStatusQuotingOpen
}

// IsTerminal reports whether no further transition is possible
func (s DesignStatus) IsTerminal() bool {
	return s == DesignStatusOrdered || s == DesignStatusClosed || s == DesignStatusCancelled
}

// QuoteStatus is the lifecycle state of a Quote
type QuoteStatus string

const (
	QuoteStatusSubmitted QuoteStatus = "Submitted"
	QuoteStatusAccepted  QuoteStatus = "Accepted"
	QuoteStatusRejected  QuoteStatus = "Rejected"
)

// QuoteStatuses lists every quote status
var QuoteStatuses = []QuoteStatus{QuoteStatusSubmitted, QuoteStatusAccepted, QuoteStatusRejected}

// PaymentStatus is the state of a Payment, of a payment transaction, and of an Order's payment
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "Pending"
	PaymentStatusCompleted PaymentStatus = "Completed"
	PaymentStatusFailed    PaymentStatus = "Failed"
	PaymentStatusRefunded  PaymentStatus = "Refunded"
)

// PaymentStatuses lists every payment status
var PaymentStatuses = []PaymentStatus{
	PaymentStatusPending,
	PaymentStatusCompleted,
	PaymentStatusFailed,
	PaymentStatusRefunded,
}

// OrderStatus tracks production and fulfillment of an Order
type OrderStatus string

const (
	OrderStatusPending      OrderStatus = "Pending"
	OrderStatusInProduction OrderStatus = "InProduction"
	OrderStatusShipped      OrderStatus = "Shipped"
	OrderStatusDelivered    OrderStatus = "Delivered"
	OrderStatusCancelled    OrderStatus = "Cancelled"
)

// OrderStatuses lists every order status
var OrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusInProduction,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusCancelled,
}

// Category is the target wearer group of a design
type Category string

const (
	CategoryMen    Category = "Men"
	CategoryWomen  Category = "Women"
	CategoryBoy    Category = "Boy"
	CategoryGirl   Category = "Girl"
	CategoryUnisex Category = "Unisex"
)

// Categories lists every design category
var Categories = []Category{CategoryMen, CategoryWomen, CategoryBoy, CategoryGirl, CategoryUnisex}

// PaymentMethod is how the designer pays for an order
type PaymentMethod string

const (
	PaymentMethodCreditCard   PaymentMethod = "CreditCard"
	PaymentMethodDebitCard    PaymentMethod = "DebitCard"
	PaymentMethodPayPal       PaymentMethod = "PayPal"
	PaymentMethodBankTransfer PaymentMethod = "BankTransfer"
	PaymentMethodPix          PaymentMethod = "Pix"
)

// PaymentMethods lists every accepted payment method
var PaymentMethods = []PaymentMethod{
	PaymentMethodCreditCard,
	PaymentMethodDebitCard,
	PaymentMethodPayPal,
	PaymentMethodBankTransfer,
	PaymentMethodPix,
}

// TransactionType distinguishes money moving in from money moving back
type TransactionType string

const (
	TransactionTypeCharge TransactionType = "Charge"
	TransactionTypeRefund TransactionType = "Refund"
)

// InvalidEnumError is returned when a string does not name a known enum value
type InvalidEnumError struct {
	Kind    string
	Value   string
	Allowed []string
}

func (e *InvalidEnumError) Error() string {
	return fmt.Sprintf("invalid %s %q (allowed: %s)", e.Kind, e.Value, strings.Join(e.Allowed, ", "))
}

// parseEnum is the single normalization boundary for enum strings:
// whitespace is trimmed and matching is case-insensitive.
func parseEnum[T ~string](kind, raw string, values []T) (T, error) {
	normalized := strings.TrimSpace(raw)
	allowed := make([]string, 0, len(values))
	for _, v := range values {
		if strings.EqualFold(string(v), normalized) {
			return v, nil
		}
		allowed = append(allowed, string(v))
	}
	var zero T
	return zero, &InvalidEnumError{Kind: kind, Value: raw, Allowed: allowed}
}

// ParseDesignStatus normalizes a design status string
func ParseDesignStatus(s string) (DesignStatus, error) {
	return parseEnum("design status", s, DesignStatuses)
}

// ParseQuoteStatus normalizes a quote status string
func ParseQuoteStatus(s string) (QuoteStatus, error) {
	return parseEnum("quote status", s, QuoteStatuses)
}

// ParsePaymentStatus normalizes a payment status string
func ParsePaymentStatus(s string) (PaymentStatus, error) {
	return parseEnum("payment status", s, PaymentStatuses)
}

// ParseOrderStatus normalizes an order status string
func ParseOrderStatus(s string) (OrderStatus, error) {
	return parseEnum("order status", s, OrderStatuses)
}

// ParseCategory normalizes a design category string
func ParseCategory(s string) (Category, error) {
	return parseEnum("category", s, Categories)
}

// ParsePaymentMethod normalizes a payment method string
func ParsePaymentMethod(s string) (PaymentMethod, error) {
	return parseEnum("payment method", s, PaymentMethods)
}
