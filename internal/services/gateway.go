package services

import (
	"context"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/coreapi"
	"github.com/midtrans/midtrans-go/snap"
)

// ErrInvalidSignature rejects a notification whose signature key does not
// match; the caller must produce no side effects and no detail.
var ErrInvalidSignature = errors.New("invalid notification signature")

// PaymentOutcome is the normalized result of a gateway event, shared by
// the webhook and the synchronous status check so both channels feed the
// reconciler identically.
type PaymentOutcome string

const (
	OutcomePaid    PaymentOutcome = "paid"
	OutcomeFailed  PaymentOutcome = "failed"
	OutcomePending PaymentOutcome = "pending"
	// OutcomeUnknown covers event kinds this system does not care about;
	// they are acknowledged and ignored, never treated as errors.
	OutcomeUnknown PaymentOutcome = "unknown"
)

// CheckoutItem describes one line of a hosted checkout
type CheckoutItem struct {
	ID    string
	Name  string
	Price int64
	Qty   int32
}

// CheckoutRequest carries everything the gateway needs to open a hosted
// checkout session.
type CheckoutRequest struct {
	CorrelationToken string
	Amount           int64
	CustomerName     string
	CustomerEmail    string
	Items            []CheckoutItem
	FinishURL        string
}

// CheckoutSession is the gateway's answer: a token for the embedded
// widget and a redirect URL for the hosted page.
type CheckoutSession struct {
	Token       string
	RedirectURL string
}

// GatewayEvent is a normalized notification or status-check result
type GatewayEvent struct {
	CorrelationToken string
	Outcome          PaymentOutcome
	SettlementID     string
	PaymentType      string
	RawStatus        string
	StatusMessage    string
}

// CheckoutCreator opens hosted checkout sessions
type CheckoutCreator interface {
	CreateCheckout(req *CheckoutRequest) (*CheckoutSession, error)
	CancelCheckout(correlationToken string) error
}

// StatusChecker asks the gateway for the true state of a token. The
// context bounds the call; a timeout means "unknown", never "failed".
type StatusChecker interface {
	CheckStatus(ctx context.Context, correlationToken string) (*GatewayEvent, error)
}

// NotificationVerifier authenticates and normalizes a raw webhook payload
type NotificationVerifier interface {
	VerifyNotification(payload []byte) (*GatewayEvent, error)
}

// MidtransGateway wraps the Midtrans Snap and Core API clients behind the
// three gateway roles above.
type MidtransGateway struct {
	snapClient snap.Client
	coreClient coreapi.Client
	serverKey  string
}

// NewMidtransGateway builds the gateway from environment configuration
func NewMidtransGateway() *MidtransGateway {
	serverKey := os.Getenv("MIDTRANS_SERVER_KEY")
	envStr := os.Getenv("MIDTRANS_IS_PRODUCTION")

	env := midtrans.Sandbox
	if envStr == "true" {
		env = midtrans.Production
	}

	var s snap.Client
	s.New(serverKey, env)

	var c coreapi.Client
	c.New(serverKey, env)

	return &MidtransGateway{
		snapClient: s,
		coreClient: c,
		serverKey:  serverKey,
	}
}

// CreateCheckout opens a Snap transaction for the given order snapshot
func (g *MidtransGateway) CreateCheckout(req *CheckoutRequest) (*CheckoutSession, error) {
	items := make([]midtrans.ItemDetails, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, midtrans.ItemDetails{
			ID:    it.ID,
			Name:  it.Name,
			Price: it.Price,
			Qty:   it.Qty,
		})
	}

	param := &snap.Request{
		TransactionDetails: midtrans.TransactionDetails{
			OrderID:  req.CorrelationToken,
			GrossAmt: req.Amount,
		},
		CustomerDetail: &midtrans.CustomerDetails{
			FName: req.CustomerName,
			Email: req.CustomerEmail,
		},
		Items: &items,
		Callbacks: &snap.Callbacks{
			Finish: req.FinishURL,
		},
	}

	resp, err := g.snapClient.CreateTransaction(param)
	if err != nil {
		return nil, fmt.Errorf("midtrans create transaction: %v", err)
	}

	return &CheckoutSession{Token: resp.Token, RedirectURL: resp.RedirectURL}, nil
}

// CancelCheckout voids a pending transaction at the gateway
func (g *MidtransGateway) CancelCheckout(correlationToken string) error {
	_, err := g.coreClient.CancelTransaction(correlationToken)
	if err != nil {
		return fmt.Errorf("midtrans cancel transaction: %v", err)
	}
	return nil
}

// CheckStatus polls the gateway for the real status of a token. The call
// is bounded by ctx; on expiry the caller sees ctx.Err() and must leave
// the intent pending.
func (g *MidtransGateway) CheckStatus(ctx context.Context, correlationToken string) (*GatewayEvent, error) {
	type result struct {
		resp *coreapi.TransactionStatusResponse
		err  *midtrans.Error
	}
	ch := make(chan result, 1)
	go func() {
		resp, err := g.coreClient.CheckTransaction(correlationToken)
		ch <- result{resp: resp, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.err != nil {
			return nil, fmt.Errorf("midtrans check transaction: %v", r.err)
		}
		return &GatewayEvent{
			CorrelationToken: correlationToken,
			Outcome:          mapTransactionStatus(r.resp.TransactionStatus, r.resp.FraudStatus),
			SettlementID:     r.resp.TransactionID,
			PaymentType:      r.resp.PaymentType,
			RawStatus:        r.resp.TransactionStatus,
			StatusMessage:    r.resp.StatusMessage,
		}, nil
	}
}

// midtransNotification is the subset of the webhook payload this system
// reads. The signature key authenticates order id, status code and gross
// amount against the server key.
type midtransNotification struct {
	OrderID           string `json:"order_id"`
	StatusCode        string `json:"status_code"`
	GrossAmount       string `json:"gross_amount"`
	SignatureKey      string `json:"signature_key"`
	TransactionID     string `json:"transaction_id"`
	TransactionStatus string `json:"transaction_status"`
	FraudStatus       string `json:"fraud_status"`
	PaymentType       string `json:"payment_type"`
	StatusMessage     string `json:"status_message"`
}

// VerifyNotification authenticates the raw payload before anything acts
// on it. A bad signature or malformed body is an error with no detail;
// a valid payload with a status this system ignores maps to
// OutcomeUnknown.
func (g *MidtransGateway) VerifyNotification(payload []byte) (*GatewayEvent, error) {
	var notif midtransNotification
	if err := json.Unmarshal(payload, &notif); err != nil {
		return nil, fmt.Errorf("malformed notification payload: %w", err)
	}
	if notif.OrderID == "" || notif.SignatureKey == "" {
		return nil, ErrInvalidSignature
	}

	expected := notificationSignature(notif.OrderID, notif.StatusCode, notif.GrossAmount, g.serverKey)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(notif.SignatureKey)) != 1 {
		return nil, ErrInvalidSignature
	}

	return &GatewayEvent{
		CorrelationToken: notif.OrderID,
		Outcome:          mapTransactionStatus(notif.TransactionStatus, notif.FraudStatus),
		SettlementID:     notif.TransactionID,
		PaymentType:      notif.PaymentType,
		RawStatus:        notif.TransactionStatus,
		StatusMessage:    notif.StatusMessage,
	}, nil
}

// notificationSignature is sha512(order_id + status_code + gross_amount +
// server_key), hex encoded, per the gateway's notification contract.
func notificationSignature(orderID, statusCode, grossAmount, serverKey string) string {
	sum := sha512.Sum512([]byte(orderID + statusCode + grossAmount + serverKey))
	return hex.EncodeToString(sum[:])
}

// mapTransactionStatus normalizes gateway transaction states. A capture
// under fraud challenge stays pending until the gateway decides.
func mapTransactionStatus(status, fraudStatus string) PaymentOutcome {
	switch status {
	case "capture":
		if fraudStatus == "challenge" {
			return OutcomePending
		}
		return OutcomePaid
	case "settlement":
		return OutcomePaid
	case "pending", "authorize":
		return OutcomePending
	case "deny", "cancel", "expire", "failure":
		return OutcomeFailed
	default:
		return OutcomeUnknown
	}
}
