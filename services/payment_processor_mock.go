package services

import (
	"context"
	"fmt"
	"sync"
)

// MockPaymentProcessor is an in-memory processor for tests
type MockPaymentProcessor struct {
	mu       sync.Mutex
	next     int
	charges  []ChargeRequest
	refunds  []RefundRequest
	outcomes map[string]*ChargeResult

	// refunds applied, by idempotency key
	applied         map[string]*RefundResult
	appliedCount    int
	loseRefundReply bool

	// Queued results consumed by the next Charge call, in order
	chargeErrs []error
	RefundErr  error
}

// NewMockPaymentProcessor creates a processor that approves everything by default
func NewMockPaymentProcessor() *MockPaymentProcessor {
	return &MockPaymentProcessor{
		outcomes: make(map[string]*ChargeResult),
		applied:  make(map[string]*RefundResult),
	}
}

// LoseNextRefundReply applies the next refund but answers with a timeout,
// as when the processor succeeds and the response never arrives
func (m *MockPaymentProcessor) LoseNextRefundReply() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loseRefundReply = true
}

// DeclineNext makes the next Charge fail with a decline carrying reason
func (m *MockPaymentProcessor) DeclineNext(reason string) {
	m.FailNextWith(&PaymentDeclinedError{Reason: reason})
}

// FailNextWith makes the next Charge fail with err
func (m *MockPaymentProcessor) FailNextWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chargeErrs = append(m.chargeErrs, err)
}

func (m *MockPaymentProcessor) Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.charges = append(m.charges, req)
	if len(m.chargeErrs) > 0 {
		err := m.chargeErrs[0]
		m.chargeErrs = m.chargeErrs[1:]
		return nil, err
	}

	m.next++
	result := &ChargeResult{
		ProcessorReference: fmt.Sprintf("mock-%d", m.next),
		Status:             "approved",
		Detail:             "accredited",
	}
	m.outcomes[result.ProcessorReference] = result
	return result, nil
}

func (m *MockPaymentProcessor) Lookup(ctx context.Context, processorReference string) (*ChargeResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	result, ok := m.outcomes[processorReference]
	if !ok {
		return nil, fmt.Errorf("unknown processor reference %q", processorReference)
	}
	return result, nil
}

func (m *MockPaymentProcessor) Refund(ctx context.Context, req RefundRequest) (*RefundResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.refunds = append(m.refunds, req)
	if result, ok := m.applied[req.TransactionID]; ok && req.TransactionID != "" {
		return result, nil
	}
	if m.RefundErr != nil {
		return nil, m.RefundErr
	}
	m.next++
	m.appliedCount++
	result := &RefundResult{ProcessorReference: fmt.Sprintf("mock-refund-%d", m.next), Status: "approved"}
	if req.TransactionID != "" {
		m.applied[req.TransactionID] = result
	}
	if m.loseRefundReply {
		m.loseRefundReply = false
		return nil, &TransientError{Op: "refund", Err: context.DeadlineExceeded}
	}
	return result, nil
}

// AppliedRefunds returns how many refunds actually moved money
func (m *MockPaymentProcessor) AppliedRefunds() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appliedCount
}

// Charges returns every charge request received so far
func (m *MockPaymentProcessor) Charges() []ChargeRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ChargeRequest(nil), m.charges...)
}

// Refunds returns every refund request received so far
func (m *MockPaymentProcessor) Refunds() []RefundRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]RefundRequest(nil), m.refunds...)
}
