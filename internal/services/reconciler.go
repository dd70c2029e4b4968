package services

import (
	"context"
	"errors"
	"log"
	"time"

	"gorm.io/gorm"

	"edumarket_echo/internal/models"
)

// ErrIntentNotFound means the correlation token matches no payment intent
var ErrIntentNotFound = errors.New("payment intent not found")

// PaymentReconciler converges payment intents onto the gateway's truth.
// It is fed from two channels, webhook notifications and synchronous
// status checks, and both funnel through Apply so redelivery, reordering
// and channel races all collapse into the same single-winner write.
type PaymentReconciler struct {
	db      *gorm.DB
	checker StatusChecker
	mailer  ConfirmationSender
}

// NewPaymentReconciler creates a reconciler. mailer may be nil to skip
// confirmation emails.
func NewPaymentReconciler(db *gorm.DB, checker StatusChecker, mailer ConfirmationSender) *PaymentReconciler {
	return &PaymentReconciler{
		db:      db,
		checker: checker,
		mailer:  mailer,
	}
}

// Apply folds one gateway event into the local state. The intent's move
// out of pending is a conditional update, so of any number of concurrent
// deliveries exactly one performs the side effects; the rest see a
// terminal intent and return nil. Pending and unknown outcomes change
// nothing.
func (r *PaymentReconciler) Apply(event *GatewayEvent) error {
	switch event.Outcome {
	case OutcomePaid:
		return r.applyPaid(event)
	case OutcomeFailed:
		return r.applyFailed(event)
	case OutcomePending, OutcomeUnknown:
		// Nothing to converge; the intent stays where it is
		return r.ensureIntentExists(event.CorrelationToken)
	default:
		return r.ensureIntentExists(event.CorrelationToken)
	}
}

func (r *PaymentReconciler) applyPaid(event *GatewayEvent) error {
	var settled models.Order

	err := r.db.Transaction(func(tx *gorm.DB) error {
		intent, won, err := r.settleIntent(tx, event, models.PaymentIntentCompleted, "")
		if err != nil {
			return err
		}
		if !won {
			return nil
		}

		if err := TransitionOrder(tx, intent.OrderID, models.OrderStatusPaid, models.OrderPaymentCompleted); err != nil {
			return err
		}

		var order models.Order
		if err := tx.Preload("Lines").First(&order, intent.OrderID).Error; err != nil {
			return err
		}

		// Enrollment grants are idempotent on the (user, course) unique
		// index, so a partially applied earlier attempt is completed
		// rather than duplicated.
		for _, line := range order.Lines {
			enrollment := models.Enrollment{
				UserID:   order.UserID,
				CourseID: line.CourseID,
			}
			if err := tx.Where("user_id = ? AND course_id = ?", order.UserID, line.CourseID).
				FirstOrCreate(&enrollment).Error; err != nil {
				return err
			}
		}

		if err := tx.Where("user_id = ?", order.UserID).Delete(&models.CartItem{}).Error; err != nil {
			return err
		}

		settled = order
		return nil
	})
	if err != nil {
		return err
	}

	// Email only after the settlement is durable, and never let a mail
	// failure look like a settlement failure.
	if settled.ID != 0 && r.mailer != nil {
		if mailErr := r.mailer.SendPurchaseConfirmation(&settled); mailErr != nil {
			log.Printf("purchase confirmation for order %s: %v", settled.OrderNumber, mailErr)
		}
	}
	return nil
}

func (r *PaymentReconciler) applyFailed(event *GatewayEvent) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		message := event.StatusMessage
		if message == "" {
			message = "payment " + event.RawStatus
		}

		intent, won, err := r.settleIntent(tx, event, models.PaymentIntentFailed, message)
		if err != nil {
			return err
		}
		if !won {
			return nil
		}

		return TransitionOrder(tx, intent.OrderID, models.OrderStatusFailed, models.OrderPaymentFailed)
	})
}

// settleIntent moves the intent out of pending. won reports whether this
// call performed the move; a false with nil error means another delivery
// already settled it.
func (r *PaymentReconciler) settleIntent(tx *gorm.DB, event *GatewayEvent, to models.PaymentIntentStatus, errMsg string) (*models.PaymentIntent, bool, error) {
	now := time.Now()
	updates := map[string]interface{}{
		"status":        to,
		"error_message": errMsg,
		"completed_at":  now,
	}
	// The settlement reference belongs to successful collections only; a
	// failed attempt has nothing settled to point at.
	if to == models.PaymentIntentCompleted {
		updates["settlement_id"] = event.SettlementID
		updates["payment_type"] = event.PaymentType
	}

	res := tx.Model(&models.PaymentIntent{}).
		Where("correlation_token = ? AND status = ?", event.CorrelationToken, models.PaymentIntentPending).
		Updates(updates)
	if res.Error != nil {
		return nil, false, res.Error
	}

	var intent models.PaymentIntent
	err := tx.Where("correlation_token = ?", event.CorrelationToken).First(&intent).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, ErrIntentNotFound
		}
		return nil, false, err
	}

	if res.RowsAffected == 0 {
		if intent.Status != to {
			log.Printf("payment %s already settled as %s, dropping %s event",
				event.CorrelationToken, intent.Status, to)
		}
		return &intent, false, nil
	}
	return &intent, true, nil
}

func (r *PaymentReconciler) ensureIntentExists(correlationToken string) error {
	var count int64
	err := r.db.Model(&models.PaymentIntent{}).
		Where("correlation_token = ?", correlationToken).
		Count(&count).Error
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrIntentNotFound
	}
	return nil
}

// VerifyPending is the synchronous channel: it asks the gateway for the
// current truth about a still-pending intent and folds the answer in.
// When the gateway cannot answer within ctx, the intent simply stays
// pending; only a definitive gateway answer ever moves it.
func (r *PaymentReconciler) VerifyPending(ctx context.Context, correlationToken string) (*models.PaymentIntent, error) {
	intent, err := r.GetByToken(correlationToken)
	if err != nil {
		return nil, err
	}
	if intent.Status.Terminal() {
		return intent, nil
	}

	event, err := r.checker.CheckStatus(ctx, correlationToken)
	if err != nil {
		log.Printf("status check for %s: %v", correlationToken, err)
		return intent, nil
	}

	if err := r.Apply(event); err != nil {
		return nil, err
	}
	return r.GetByToken(correlationToken)
}

// GetByToken loads an intent by its correlation token
func (r *PaymentReconciler) GetByToken(correlationToken string) (*models.PaymentIntent, error) {
	var intent models.PaymentIntent
	err := r.db.Where("correlation_token = ?", correlationToken).First(&intent).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrIntentNotFound
		}
		return nil, err
	}
	return &intent, nil
}

// GetByTokenForUser loads an intent only if it belongs to the user
func (r *PaymentReconciler) GetByTokenForUser(correlationToken string, userID uint) (*models.PaymentIntent, error) {
	intent, err := r.GetByToken(correlationToken)
	if err != nil {
		return nil, err
	}
	if intent.UserID != userID {
		return nil, ErrIntentNotFound
	}
	return intent, nil
}

// RecordNotification appends a raw webhook payload to the audit trail.
// Audit rows are written even for events that change nothing, so the
// trail shows every delivery the gateway made.
func (r *PaymentReconciler) RecordNotification(gateway models.PaymentGateway, correlationToken, state string, payload []byte) {
	notif := models.PaymentNotification{
		Gateway:          gateway,
		CorrelationToken: correlationToken,
		TransactionState: state,
		Payload:          payload,
	}
	if err := r.db.Create(&notif).Error; err != nil {
		log.Printf("record payment notification for %s: %v", correlationToken, err)
	}
}
