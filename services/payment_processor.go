package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kendall-kelly/atelier-api/models"
	"github.com/mercadopago/sdk-go/pkg/config"
	"github.com/mercadopago/sdk-go/pkg/mperror"
	"github.com/mercadopago/sdk-go/pkg/payment"
	"github.com/mercadopago/sdk-go/pkg/refund"
	"github.com/mercadopago/sdk-go/pkg/requester"
	"github.com/shopspring/decimal"
)

var ErrMissingMercadoPagoAccessToken = errors.New("missing MERCADOPAGO_ACCESS_TOKEN")

// ChargeRequest is one attempt to collect money for a payment
type ChargeRequest struct {
	TransactionID string // idempotency key and external reference
	OrderNumber   string
	Amount        decimal.Decimal
	Currency      string
	Method        models.PaymentMethod
	PayerEmail    string
	CardToken     string
	Description   string
}

// ChargeResult is the processor's answer to an approved or still-processing charge
type ChargeResult struct {
	ProcessorReference string
	Status             string
	Detail             string
}

// RefundRequest returns money for a previously approved charge.
// Resume is set when an earlier request with the same TransactionID ended with an unknown outcome.
type RefundRequest struct {
	TransactionID      string // idempotency key of the refund
	ProcessorReference string
	Amount             decimal.Decimal
	Reason             string
	Resume             bool
}

// RefundResult is the processor's answer to a refund
type RefundResult struct {
	ProcessorReference string
	Status             string
}

// PaymentProcessor is the external payment gateway. Charge and Refund return *PaymentDeclinedError
// when the processor rejects the request and *TransientError when the outcome is not known.
// Repeating a Charge or Refund with the same TransactionID must not move money twice.
type PaymentProcessor interface {
	Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error)
	Lookup(ctx context.Context, processorReference string) (*ChargeResult, error)
	Refund(ctx context.Context, req RefundRequest) (*RefundResult, error)
}

var (
	paymentProcessor PaymentProcessor
)

// InitPaymentProcessor sets the global processor from configuration
func InitPaymentProcessor(accessToken string, mockMode bool) error {
	processor, err := NewMercadoPagoProcessor(accessToken, mockMode)
	if err != nil {
		return err
	}
	paymentProcessor = processor
	return nil
}

// GetPaymentProcessor returns the global processor instance
func GetPaymentProcessor() PaymentProcessor {
	return paymentProcessor
}

// SetPaymentProcessor replaces the global processor (primarily for testing)
func SetPaymentProcessor(p PaymentProcessor) {
	paymentProcessor = p
}

// MercadoPagoProcessor charges and refunds through Mercado Pago.
// In mock mode every charge is approved without leaving the process.
type MercadoPagoProcessor struct {
	payments payment.Client
	refunds  refund.Client
	mockMode bool
	policy   RetryPolicy
}

// NewMercadoPagoProcessor creates the processor; mockMode skips the SDK entirely
func NewMercadoPagoProcessor(accessToken string, mockMode bool) (*MercadoPagoProcessor, error) {
	if mockMode {
		log.Printf("[payment][gateway] mock mode enabled")
		return &MercadoPagoProcessor{mockMode: true, policy: DefaultRetryPolicy}, nil
	}
	if accessToken == "" {
		log.Printf("[payment][gateway] missing MERCADOPAGO_ACCESS_TOKEN")
		return nil, ErrMissingMercadoPagoAccessToken
	}

	cfg, err := config.New(accessToken)
	if err != nil {
		log.Printf("[payment][gateway] failed creating sdk config err=%v", err)
		return nil, err
	}
	log.Printf("[payment][gateway] Mercado Pago client initialized")

	return newMercadoPagoProcessor(cfg), nil
}

func newMercadoPagoProcessor(cfg *config.Config) *MercadoPagoProcessor {
	cfg.Requester = idempotentRequester{next: cfg.Requester}
	return &MercadoPagoProcessor{
		payments: payment.NewClient(cfg),
		refunds:  refund.NewClient(cfg),
		policy:   DefaultRetryPolicy,
	}
}

type idempotencyKeyCtx struct{}

func withIdempotencyKey(ctx context.Context, key string) context.Context {
	if key == "" {
		return ctx
	}
	return context.WithValue(ctx, idempotencyKeyCtx{}, key)
}

// idempotentRequester replaces the SDK's per-request X-Idempotency-Key with the
// key of the charge or refund, so a repeated write is deduplicated by Mercado Pago.
type idempotentRequester struct {
	next requester.Requester
}

func (r idempotentRequester) Do(req *http.Request) (*http.Response, error) {
	if key, ok := req.Context().Value(idempotencyKeyCtx{}).(string); ok && req.Method != http.MethodGet {
		req.Header.Set("X-Idempotency-Key", key)
	}
	return r.next.Do(req)
}

// Charge creates a payment at Mercado Pago
func (p *MercadoPagoProcessor) Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	if p.mockMode {
		ref := strconv.FormatInt(time.Now().UTC().UnixNano(), 10)
		log.Printf("[payment][gateway] mock charge approved transaction_id=%s reference=%s", req.TransactionID, ref)
		return &ChargeResult{ProcessorReference: ref, Status: "approved", Detail: "accredited"}, nil
	}

	if req.TransactionID == "" {
		return nil, errors.New("mercadopago charge: missing transaction id")
	}
	methodID, err := mercadoPagoMethod(req.Method)
	if err != nil {
		return nil, err
	}
	amount, _ := req.Amount.Float64()
	request := payment.Request{
		TransactionAmount: amount,
		PaymentMethodID:   methodID,
		Description:       req.Description,
		ExternalReference: req.TransactionID,
		Token:             req.CardToken,
		Installments:      1,
		Payer:             &payment.PayerRequest{Email: req.PayerEmail},
	}

	ctx = withIdempotencyKey(ctx, req.TransactionID)

	var result *ChargeResult
	err = Retry(ctx, p.policy, "mercadopago charge", func(ctx context.Context) error {
		resp, err := p.payments.Create(ctx, request)
		if err != nil {
			log.Printf("[payment][gateway] sdk create failed transaction_id=%s err=%v", req.TransactionID, err)
			return classifyProcessorError("mercadopago charge", err)
		}
		log.Printf("[payment][gateway] create done transaction_id=%s reference=%d status=%s", req.TransactionID, resp.ID, resp.Status)
		result, err = chargeOutcome(strconv.Itoa(resp.ID), resp.Status, resp.StatusDetail)
		return err
	})
	return result, err
}

// Lookup reads the current outcome of an earlier charge
func (p *MercadoPagoProcessor) Lookup(ctx context.Context, processorReference string) (*ChargeResult, error) {
	if p.mockMode {
		return &ChargeResult{ProcessorReference: processorReference, Status: "approved", Detail: "accredited"}, nil
	}
	id, err := strconv.Atoi(processorReference)
	if err != nil {
		return nil, fmt.Errorf("invalid processor reference %q: %w", processorReference, err)
	}

	var result *ChargeResult
	err = Retry(ctx, p.policy, "mercadopago lookup", func(ctx context.Context) error {
		resp, err := p.payments.Get(ctx, id)
		if err != nil {
			return classifyProcessorError("mercadopago lookup", err)
		}
		result, err = chargeOutcome(processorReference, resp.Status, resp.StatusDetail)
		return err
	})
	return result, err
}

// Refund returns part or all of an approved payment
func (p *MercadoPagoProcessor) Refund(ctx context.Context, req RefundRequest) (*RefundResult, error) {
	if p.mockMode {
		ref := strconv.FormatInt(time.Now().UTC().UnixNano(), 10)
		log.Printf("[payment][gateway] mock refund approved reference=%s", req.ProcessorReference)
		return &RefundResult{ProcessorReference: ref, Status: "approved"}, nil
	}
	id, err := strconv.Atoi(req.ProcessorReference)
	if err != nil {
		return nil, fmt.Errorf("invalid processor reference %q: %w", req.ProcessorReference, err)
	}
	if req.TransactionID == "" {
		return nil, errors.New("mercadopago refund: missing transaction id")
	}
	amount, _ := req.Amount.Float64()

	if req.Resume {
		existing, err := p.findRefund(ctx, id, req.Amount)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			log.Printf("[payment][gateway] refund already applied reference=%d refund=%s", id, existing.ProcessorReference)
			return existing, nil
		}
	}
	ctx = withIdempotencyKey(ctx, req.TransactionID)

	var result *RefundResult
	err = Retry(ctx, p.policy, "mercadopago refund", func(ctx context.Context) error {
		resp, err := p.refunds.CreatePartialRefund(ctx, id, amount)
		if err != nil {
			log.Printf("[payment][gateway] sdk refund failed reference=%d err=%v", id, err)
			return classifyProcessorError("mercadopago refund", err)
		}
		if resp.Status == "rejected" || resp.Status == "cancelled" {
			return &PaymentDeclinedError{Reason: "refund " + resp.Status}
		}
		result = &RefundResult{ProcessorReference: strconv.Itoa(resp.ID), Status: resp.Status}
		return nil
	})
	return result, err
}

// findRefund returns an approved refund of amount already recorded for the payment, or nil
func (p *MercadoPagoProcessor) findRefund(ctx context.Context, paymentID int, amount decimal.Decimal) (*RefundResult, error) {
	var found *RefundResult
	err := Retry(ctx, p.policy, "mercadopago refund lookup", func(ctx context.Context) error {
		refunds, err := p.refunds.List(ctx, paymentID)
		if err != nil {
			// a failed lookup never reads as a decline: the refund may have been applied
			if classified := classifyProcessorError("mercadopago refund lookup", err); IsTransient(classified) {
				return classified
			}
			return fmt.Errorf("mercadopago refund lookup: %w", err)
		}
		for _, r := range refunds {
			if r.Status == "approved" && decimal.NewFromFloat(r.Amount).Equal(amount) {
				found = &RefundResult{ProcessorReference: strconv.Itoa(r.ID), Status: r.Status}
				return nil
			}
		}
		return nil
	})
	return found, err
}

func chargeOutcome(reference, status, detail string) (*ChargeResult, error) {
	switch status {
	case "approved", "authorized":
		return &ChargeResult{ProcessorReference: reference, Status: status, Detail: detail}, nil
	case "rejected", "cancelled", "refunded", "charged_back":
		return nil, &PaymentDeclinedError{Reason: detail}
	default:
		// pending, in_process, in_mediation: the outcome is not known yet
		return &ChargeResult{ProcessorReference: reference, Status: status, Detail: detail},
			&TransientError{Op: "mercadopago charge", Err: fmt.Errorf("payment %s is %s", reference, status)}
	}
}

func mercadoPagoMethod(method models.PaymentMethod) (string, error) {
	switch method {
	case models.PaymentMethodPix:
		return "pix", nil
	case models.PaymentMethodBankTransfer:
		return "bolbradesco", nil
	case models.PaymentMethodCreditCard:
		return "visa", nil
	case models.PaymentMethodDebitCard:
		return "debvisa", nil
	default:
		return "", &PaymentDeclinedError{Reason: fmt.Sprintf("payment method %s is not supported by the processor", method)}
	}
}

// classifyProcessorError sorts SDK failures into retryable and user-correctable ones
func classifyProcessorError(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &TransientError{Op: op, Err: err}
	}
	var respErr *mperror.ResponseError
	if errors.As(err, &respErr) {
		switch {
		case respErr.StatusCode == http.StatusTooManyRequests || respErr.StatusCode >= http.StatusInternalServerError:
			return &TransientError{Op: op, Err: err}
		case respErr.StatusCode >= http.StatusBadRequest:
			return &PaymentDeclinedError{Reason: respErr.Message}
		}
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"timeout", "connection reset", "connection refused", "eof", "temporarily", "429", "500", "502", "503", "504"} {
		if strings.Contains(msg, marker) {
			return &TransientError{Op: op, Err: err}
		}
	}
	for _, marker := range []string{"400", "402", "rejected", "invalid", "insufficient"} {
		if strings.Contains(msg, marker) {
			return &PaymentDeclinedError{Reason: err.Error()}
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
