package reconcile

import (
	"context"
	"time"

	"storecore/internal/events"
	"storecore/internal/logger"
	"storecore/internal/metrics"

	"go.uber.org/zap"
)

// Alert is the payload of reconcile.alert events.
type Alert struct {
	Check    string    `json:"check"`
	Subject  string    `json:"subject"`
	Message  string    `json:"message"`
	RaisedAt time.Time `json:"raised_at"`
}

// Alerter reports problems a human has to look at.
type Alerter struct {
	pub     events.Publisher
	metrics *metrics.Registry
}

func NewAlerter(pub events.Publisher, reg *metrics.Registry) *Alerter {
	return &Alerter{pub: pub, metrics: reg}
}

func (a *Alerter) Raise(ctx context.Context, check, subject, message string) {
	log := logger.FromCtx(ctx)
	log.Error("reconcile alert",
		zap.String("check", check),
		zap.String("subject", subject),
		zap.String("message", message),
	)
	a.metrics.Counter("reconcile.alerts").Inc()

	evt, err := events.New(ctx, events.TypeReconcileAlert, subject, Alert{
		Check:    check,
		Subject:  subject,
		Message:  message,
		RaisedAt: time.Now().UTC(),
	})
	if err == nil {
		err = a.pub.Publish(ctx, evt)
	}
	if err != nil {
		log.Warn("publish alert failed", zap.Error(err))
	}
}
