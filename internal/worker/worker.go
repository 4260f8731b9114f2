// Package worker consumes claim events from the bus and runs the
// fraud evaluation pipeline asynchronously.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/opensource-claims/kestrel/internal/domain"
	"github.com/opensource-claims/kestrel/internal/fraud"
	"github.com/opensource-claims/kestrel/internal/reconcile"
)

// Worker subscribes to claim lifecycle topics and drives fraud
// evaluation and reconciliation off the request path.
type Worker struct {
	bus        domain.EventBus
	evaluator  *fraud.Evaluator
	classifier *fraud.Classifier
	reconciler *reconcile.Reconciler

	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// NewWorker creates an async worker. Reconciler may be nil, in which
// case document review events are ignored.
func NewWorker(eventBus domain.EventBus, evaluator *fraud.Evaluator, classifier *fraud.Classifier, reconciler *reconcile.Reconciler) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:        eventBus,
		evaluator:  evaluator,
		classifier: classifier,
		reconciler: reconciler,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// ClaimMessage is the payload published when a claim is filed or a
// document review lands.
type ClaimMessage struct {
	ClaimID     string `json:"claimId"`
	ClaimNumber string `json:"claimNumber"`
	UserID      string `json:"userId"`
}

// FlaggedMessage is published after each evaluation run.
type FlaggedMessage struct {
	ClaimID   string           `json:"claimId"`
	FlagCount int              `json:"flagCount"`
	RiskLevel domain.RiskLevel `json:"riskLevel"`
}

// Start subscribes to the claim topics.
func (w *Worker) Start() error {
	sub, err := w.bus.Subscribe(w.ctx, domain.TopicClaimFiled, w.tracked(w.handleClaimFiled))
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	if w.reconciler != nil {
		sub, err = w.bus.Subscribe(w.ctx, domain.TopicDocumentReviewed, w.tracked(w.handleDocumentReviewed))
		if err != nil {
			return err
		}
		w.subscriptions = append(w.subscriptions, sub)
	}

	slog.Info("worker started",
		"subscription_count", len(w.subscriptions),
	)
	return nil
}

// tracked counts in-flight deliveries so Stop can drain them.
func (w *Worker) tracked(handler domain.MessageHandler) domain.MessageHandler {
	return func(ctx context.Context, msg *domain.Message) error {
		w.wg.Add(1)
		defer w.wg.Done()
		return handler(ctx, msg)
	}
}

// handleClaimFiled runs fraud evaluation for a freshly filed claim
// and publishes the outcome.
func (w *Worker) handleClaimFiled(ctx context.Context, msg *domain.Message) error {
	start := time.Now()

	var claimMsg ClaimMessage
	if err := json.Unmarshal(msg.Payload, &claimMsg); err != nil {
		slog.Error("failed to parse claim message",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	flags, err := w.evaluator.Evaluate(ctx, claimMsg.ClaimID)
	if err != nil {
		slog.Error("fraud evaluation failed",
			"claim_id", claimMsg.ClaimID,
			"error", err,
		)
		return err
	}

	summary, err := w.classifier.Classify(ctx, claimMsg.ClaimID)
	if err != nil {
		slog.Error("risk classification failed",
			"claim_id", claimMsg.ClaimID,
			"error", err,
		)
		return err
	}

	payload, _ := json.Marshal(FlaggedMessage{
		ClaimID:   claimMsg.ClaimID,
		FlagCount: len(flags),
		RiskLevel: summary.Level,
	})
	if err := w.bus.Publish(ctx, domain.TopicClaimFlagged, payload); err != nil {
		slog.Error("failed to publish evaluation result",
			"claim_id", claimMsg.ClaimID,
			"error", err,
		)
	}

	if summary.Level == domain.RiskHigh || summary.Level == domain.RiskCritical {
		if err := w.bus.Publish(ctx, domain.TopicClaimAlert, payload); err != nil {
			slog.Error("failed to publish alert",
				"claim_id", claimMsg.ClaimID,
				"error", err,
			)
		}
	}

	slog.Info("claim evaluated",
		"claim_id", claimMsg.ClaimID,
		"flag_count", len(flags),
		"risk_level", summary.Level,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// handleDocumentReviewed reconciles the claim after a review lands.
func (w *Worker) handleDocumentReviewed(ctx context.Context, msg *domain.Message) error {
	var claimMsg ClaimMessage
	if err := json.Unmarshal(msg.Payload, &claimMsg); err != nil {
		slog.Error("failed to parse review message",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	result, err := w.reconciler.Reconcile(ctx, claimMsg.ClaimID)
	if err != nil {
		slog.Error("reconciliation failed",
			"claim_id", claimMsg.ClaimID,
			"error", err,
		)
		return err
	}

	if result.StatusChanged {
		slog.Info("claim reconciled from review event",
			"claim_id", claimMsg.ClaimID,
			"new_status", result.NewStatus,
		)
	}
	return nil
}

// Stop unsubscribes and waits for in-flight handlers.
func (w *Worker) Stop() error {
	w.cancel()

	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.wg.Wait()

	slog.Info("worker stopped")
	return nil
}

// Stats reports active subscriptions.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
