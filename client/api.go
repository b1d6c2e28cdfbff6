package client

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/kendall-kelly/atelier-api/models"
	"github.com/kendall-kelly/atelier-api/services"
	"github.com/shopspring/decimal"
)

// NewDesign is the body of CreateDesign
type NewDesign struct {
	Title          string          `json:"title"`
	Description    string          `json:"description"`
	Category       models.Category `json:"category"`
	Quantity       int             `json:"quantity"`
	Specifications string          `json:"specifications,omitempty"`
	FileURLs       []string        `json:"file_urls,omitempty"`
	Deadline       *time.Time      `json:"deadline,omitempty"`
	Draft          bool            `json:"draft,omitempty"`
}

// NewQuote is the body of SubmitQuote
type NewQuote struct {
	DesignID           uint            `json:"design_id"`
	Price              decimal.Decimal `json:"price"`
	Currency           string          `json:"currency,omitempty"`
	DeliveryTimeInDays int             `json:"delivery_time_in_days"`
	QuoteText          string          `json:"quote_text,omitempty"`
	TermsAndConditions string          `json:"terms_and_conditions,omitempty"`
}

// NewPayment is the body of ProcessPayment
type NewPayment struct {
	OrderID       uint                 `json:"order_id"`
	Amount        decimal.Decimal      `json:"amount"`
	PaymentMethod models.PaymentMethod `json:"payment_method"`
	CardToken     string               `json:"card_token,omitempty"`
}

// NewMessage is the body of SendMessage
type NewMessage struct {
	ReceiverID uint   `json:"receiver_id"`
	Content    string `json:"content"`
	DesignID   *uint  `json:"design_id,omitempty"`
	QuoteID    *uint  `json:"quote_id,omitempty"`
}

// Email is the body of SendEmail
type Email struct {
	To      string `json:"to"`
	Name    string `json:"name,omitempty"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// QuoteStatusResult is returned by UpdateQuoteStatus; Order is set when the quote was accepted
type QuoteStatusResult struct {
	Quote models.Quote  `json:"quote"`
	Order *models.Order `json:"order,omitempty"`
}

type statusBody struct {
	Status string `json:"status"`
}

// Users

func (c *Client) CreateProfile(ctx context.Context, token, role string) (*models.User, error) {
	var user models.User
	body := map[string]string{}
	if role != "" {
		body["role"] = role
	}
	if err := c.do(ctx, token, http.MethodPost, "/users", nil, body, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (c *Client) GetProfile(ctx context.Context, token string) (*models.User, error) {
	var user models.User
	if err := c.do(ctx, token, http.MethodGet, "/users/me", nil, nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Designs

func (c *Client) CreateDesign(ctx context.Context, token string, in NewDesign) (*models.Design, error) {
	var design models.Design
	if err := c.do(ctx, token, http.MethodPost, "/designs", nil, in, &design); err != nil {
		return nil, err
	}
	return &design, nil
}

// ListDesigns lists designs; empty filters are ignored
func (c *Client) ListDesigns(ctx context.Context, token, category, status string) ([]models.Design, error) {
	query := url.Values{}
	if category != "" {
		query.Set("category", category)
	}
	if status != "" {
		query.Set("status", status)
	}
	var designs []models.Design
	if err := c.do(ctx, token, http.MethodGet, "/designs", query, nil, &designs); err != nil {
		return nil, err
	}
	return designs, nil
}

func (c *Client) GetDesign(ctx context.Context, token string, id uint) (*models.Design, error) {
	var design models.Design
	if err := c.do(ctx, token, http.MethodGet, idPath("/designs/%d", id), nil, nil, &design); err != nil {
		return nil, err
	}
	return &design, nil
}

func (c *Client) UpdateDesignStatus(ctx context.Context, token string, id uint, status models.DesignStatus) (*models.Design, error) {
	var design models.Design
	if err := c.do(ctx, token, http.MethodPatch, idPath("/designs/%d/status", id), nil, statusBody{Status: string(status)}, &design); err != nil {
		return nil, err
	}
	return &design, nil
}

func (c *Client) DeleteDesign(ctx context.Context, token string, id uint) error {
	return c.do(ctx, token, http.MethodDelete, idPath("/designs/%d", id), nil, nil, nil)
}

// UploadDesignFile stores an attachment; put the returned key in NewDesign.FileURLs
func (c *Client) UploadDesignFile(ctx context.Context, token, filename string, content io.Reader) (*services.StoredDesignFile, error) {
	var stored services.StoredDesignFile
	if err := c.upload(ctx, token, "/designs/files", filename, content, &stored); err != nil {
		return nil, err
	}
	return &stored, nil
}

// Quotes

func (c *Client) SubmitQuote(ctx context.Context, token string, in NewQuote) (*models.Quote, error) {
	var quote models.Quote
	if err := c.do(ctx, token, http.MethodPost, "/quotes", nil, in, &quote); err != nil {
		return nil, err
	}
	return &quote, nil
}

func (c *Client) ListQuotesForDesign(ctx context.Context, token string, designID uint) ([]models.Quote, error) {
	var quotes []models.Quote
	if err := c.do(ctx, token, http.MethodGet, idPath("/quotes/design/%d", designID), nil, nil, &quotes); err != nil {
		return nil, err
	}
	return quotes, nil
}

// AcceptQuote accepts the quote and returns the order it created
func (c *Client) AcceptQuote(ctx context.Context, token string, quoteID uint) (*models.Order, error) {
	var order models.Order
	if err := c.do(ctx, token, http.MethodPost, idPath("/quotes/%d/accept", quoteID), nil, nil, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

func (c *Client) RejectQuote(ctx context.Context, token string, quoteID uint) (*models.Quote, error) {
	var quote models.Quote
	if err := c.do(ctx, token, http.MethodPost, idPath("/quotes/%d/reject", quoteID), nil, nil, &quote); err != nil {
		return nil, err
	}
	return &quote, nil
}

func (c *Client) UpdateQuoteStatus(ctx context.Context, token string, quoteID uint, status models.QuoteStatus) (*QuoteStatusResult, error) {
	var result QuoteStatusResult
	if err := c.do(ctx, token, http.MethodPatch, idPath("/quotes/%d/status", quoteID), nil, statusBody{Status: string(status)}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Orders

func (c *Client) ListMyOrders(ctx context.Context, token string) ([]models.Order, error) {
	var orders []models.Order
	if err := c.do(ctx, token, http.MethodGet, "/orders/user", nil, nil, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (c *Client) GetOrder(ctx context.Context, token string, id uint) (*models.Order, error) {
	var order models.Order
	if err := c.do(ctx, token, http.MethodGet, idPath("/orders/%d", id), nil, nil, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

func (c *Client) UpdateOrderStatus(ctx context.Context, token string, id uint, status models.OrderStatus) (*models.Order, error) {
	var order models.Order
	if err := c.do(ctx, token, http.MethodPut, idPath("/orders/%d/status", id), nil, statusBody{Status: string(status)}, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// SyncOrderPaymentStatus replays the order payment status step after a lost update
func (c *Client) SyncOrderPaymentStatus(ctx context.Context, token string, id uint, status models.PaymentStatus) (*models.Order, error) {
	var order models.Order
	if err := c.do(ctx, token, http.MethodPut, idPath("/orders/%d/payment-status", id), nil, statusBody{Status: string(status)}, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// Payments

func (c *Client) CalculateFee(ctx context.Context, token string, amount decimal.Decimal) (*services.FeeBreakdown, error) {
	var breakdown services.FeeBreakdown
	if err := c.do(ctx, token, http.MethodPost, "/payments/calculate-fee", nil, map[string]decimal.Decimal{"amount": amount}, &breakdown); err != nil {
		return nil, err
	}
	return &breakdown, nil
}

// ProcessPayment charges an order. A *APIError with status 503 is safe to retry.
func (c *Client) ProcessPayment(ctx context.Context, token string, in NewPayment) (*models.Payment, error) {
	var payment models.Payment
	if err := c.do(ctx, token, http.MethodPost, "/payments/process", nil, in, &payment); err != nil {
		return nil, err
	}
	return &payment, nil
}

func (c *Client) GetPayment(ctx context.Context, token string, paymentID uint) (*models.Payment, error) {
	var payment models.Payment
	if err := c.do(ctx, token, http.MethodGet, idPath("/payments/%d", paymentID), nil, nil, &payment); err != nil {
		return nil, err
	}
	return &payment, nil
}

func (c *Client) GetPaymentStatus(ctx context.Context, token string, paymentID uint) (*services.PaymentStatusView, error) {
	var view services.PaymentStatusView
	if err := c.do(ctx, token, http.MethodGet, idPath("/payments/%d/status", paymentID), nil, nil, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

func (c *Client) ListMyPayments(ctx context.Context, token string) ([]models.Payment, error) {
	var payments []models.Payment
	if err := c.do(ctx, token, http.MethodGet, "/payments/user", nil, nil, &payments); err != nil {
		return nil, err
	}
	return payments, nil
}

// RefundPayment refunds up to the payment's total amount
func (c *Client) RefundPayment(ctx context.Context, token string, paymentID uint, amount decimal.Decimal, reason string) (*models.PaymentTransaction, error) {
	body := map[string]interface{}{"amount": amount, "reason": reason}
	var refund models.PaymentTransaction
	if err := c.do(ctx, token, http.MethodPost, idPath("/payments/%d/refund", paymentID), nil, body, &refund); err != nil {
		return nil, err
	}
	return &refund, nil
}

func (c *Client) ListPaymentTransactions(ctx context.Context, token string, paymentID uint) ([]models.PaymentTransaction, error) {
	var txns []models.PaymentTransaction
	if err := c.do(ctx, token, http.MethodGet, idPath("/payments/%d/transactions", paymentID), nil, nil, &txns); err != nil {
		return nil, err
	}
	return txns, nil
}

// Messages

func (c *Client) SendMessage(ctx context.Context, token string, in NewMessage) (*models.Message, error) {
	var message models.Message
	if err := c.do(ctx, token, http.MethodPost, "/messages", nil, in, &message); err != nil {
		return nil, err
	}
	return &message, nil
}

// GetConversation returns messages with another user, oldest first. designID may be nil.
func (c *Client) GetConversation(ctx context.Context, token string, otherUserID uint, designID *uint) ([]models.Message, error) {
	var query url.Values
	if designID != nil {
		query = url.Values{"designId": {strconv.FormatUint(uint64(*designID), 10)}}
	}
	var conversation []models.Message
	if err := c.do(ctx, token, http.MethodGet, idPath("/messages/conversation/%d", otherUserID), query, nil, &conversation); err != nil {
		return nil, err
	}
	return conversation, nil
}

func (c *Client) GetMyMessages(ctx context.Context, token string) ([]models.Message, error) {
	var list []models.Message
	if err := c.do(ctx, token, http.MethodGet, "/messages/user", nil, nil, &list); err != nil {
		return nil, err
	}
	return list, nil
}

func (c *Client) MarkMessageAsRead(ctx context.Context, token string, messageID uint) (*models.Message, error) {
	var message models.Message
	if err := c.do(ctx, token, http.MethodPut, idPath("/messages/%d/read", messageID), nil, nil, &message); err != nil {
		return nil, err
	}
	return &message, nil
}

func (c *Client) GetUnreadCount(ctx context.Context, token string) (int64, error) {
	var out struct {
		Count int64 `json:"count"`
	}
	if err := c.do(ctx, token, http.MethodGet, "/messages/unread/count", nil, nil, &out); err != nil {
		return 0, err
	}
	return out.Count, nil
}

// SendEmail queues a notification email
func (c *Client) SendEmail(ctx context.Context, token string, email Email) error {
	return c.do(ctx, token, http.MethodPost, "/email/send", nil, email, nil)
}
