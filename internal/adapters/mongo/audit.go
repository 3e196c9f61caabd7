package mongo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/robertarktes/event-ticket-inventory/internal/notify"
	"github.com/robertarktes/event-ticket-inventory/internal/observability"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// AuditLogger keeps an append-only trail of lifecycle notifications.
type AuditLogger struct {
	coll   *mongo.Collection
	logger observability.Logger
}

func NewAuditLogger(db *mongo.Database, logger observability.Logger) *AuditLogger {
	return &AuditLogger{
		coll:   db.Collection("audit_logs"),
		logger: logger,
	}
}

type AuditLog struct {
	ID        string    `bson:"_id"`
	Action    string    `bson:"action"`
	UserID    string    `bson:"user_id,omitempty"`
	Timestamp time.Time `bson:"timestamp"`
	Data      bson.M    `bson:"data"`
}

func (a *AuditLogger) Name() string { return "mongo_audit" }

// Deliver records n. The notification id is the document id, so a
// redelivered notification is written once.
func (a *AuditLogger) Deliver(ctx context.Context, n notify.Notification) error {
	msg := notify.NewMessage(n)
	data := bson.M{
		"event_id":   msg.EventID,
		"booking_id": msg.BookingID,
		"class":      msg.Class,
		"quantity":   msg.Quantity,
		"total":      msg.TotalAmount,
		"status":     msg.Status,
	}
	if msg.Reason != "" {
		data["reason"] = msg.Reason
	}
	if msg.PaymentID != "" {
		data["payment_id"] = msg.PaymentID
		data["external_payment_id"] = msg.ExternalPaymentID
	}
	return a.LogEvent(ctx, n.ID, string(n.Kind), msg.UserID, n.OccurredAt, data)
}

func (a *AuditLogger) LogEvent(ctx context.Context, id uuid.UUID, action, userID string, at time.Time, data bson.M) error {
	log := AuditLog{
		ID:        id.String(),
		Action:    action,
		UserID:    userID,
		Timestamp: at,
		Data:      data,
	}
	_, err := a.coll.InsertOne(ctx, log)
	if mongo.IsDuplicateKeyError(err) {
		return nil
	}
	if err != nil {
		a.logger.WithError(err).WithField("action", action).Error("failed to insert audit log")
		return err
	}
	return nil
}

// ForUser returns the newest entries for one user.
func (a *AuditLogger) ForUser(ctx context.Context, userID uuid.UUID, limit int64) ([]AuditLog, error) {
	cur, err := a.coll.Find(ctx, bson.M{"user_id": userID.String()},
		options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}}).SetLimit(limit))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var logs []AuditLog
	if err := cur.All(ctx, &logs); err != nil {
		return nil, err
	}
	return logs, nil
}
