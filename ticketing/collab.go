package ticketing

import (
	"context"

	"github.com/sirupsen/logrus"
)

// Notifier is the outbound notification capability. Delivery is best-effort
// and must never block or fail a state transition; the engine fires it on a
// goroutine after a confirm resolves.
type Notifier interface {
	Notify(ctx context.Context, accountID AccountID, subject, body string)
}

// ProofStore turns an uploaded payment-proof blob into an opaque reference
// the engine stores verbatim. The blob's contents are never interpreted;
// verification is a human decision by the organizer.
type ProofStore interface {
	Save(ctx context.Context, txID TransactionID, blob []byte) (string, error)
}

// LogNotifier writes notifications to the log. Stands in for the real
// email/push delivery service, which lives outside this system.
type LogNotifier struct {
	Logger *logrus.Logger
}

func (n *LogNotifier) Notify(_ context.Context, accountID AccountID, subject, body string) {
	n.Logger.WithFields(logrus.Fields{
		"account_id": accountID,
		"subject":    subject,
	}).Info(body)
}
