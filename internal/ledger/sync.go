package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/xtrntr/ledgerview/internal/models"
)

// ErrUnavailable means no ledger is deployed on the current network
var ErrUnavailable = errors.New("ledger unavailable")

// Sink receives the mirrored event streams
type Sink interface {
	Load(all, cancelled, filled []models.Order)
	Append(event models.Event) (bool, error)
}

// Syncer loads the ledger history into a sink and then follows it live
type Syncer struct {
	source Source
	sink   Sink
	log    *logrus.Logger
}

// NewSyncer creates a syncer. A nil source stands for an unavailable ledger.
func NewSyncer(source Source, sink Sink, log *logrus.Logger) *Syncer {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Syncer{source: source, sink: sink, log: log}
}

// LoadHistory pins the ledger head, fetches the history of all three
// streams up to it, hands it to the sink in one step and returns the head.
// Events written after the head is read are left to the subscription.
func (s *Syncer) LoadHistory(ctx context.Context) (uint64, error) {
	if s.source == nil {
		return 0, ErrUnavailable
	}

	head, err := s.source.Head(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read ledger head: %w", err)
	}

	cancelled, err := s.query(ctx, models.KindCancel, head)
	if err != nil {
		return 0, err
	}
	filled, err := s.query(ctx, models.KindTrade, head)
	if err != nil {
		return 0, err
	}
	all, err := s.query(ctx, models.KindOrder, head)
	if err != nil {
		return 0, err
	}

	s.sink.Load(all, cancelled, filled)
	return head, nil
}

func (s *Syncer) query(ctx context.Context, kind models.EventKind, head uint64) ([]models.Order, error) {
	events, err := s.source.QueryEvents(ctx, kind, 0, head)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s events: %w", kind, err)
	}
	orders := make([]models.Order, 0, len(events))
	for _, e := range events {
		orders = append(orders, e.Order)
	}
	return orders, nil
}

// Run loads the history and then appends live events until ctx is done.
// Events written between the two steps are replayed by the subscription.
func (s *Syncer) Run(ctx context.Context) error {
	head, err := s.LoadHistory(ctx)
	if err != nil {
		return err
	}
	s.log.WithField("head", head).Info("ledger history loaded, following live events")

	err = s.source.Subscribe(ctx, head+1, func(event models.Event) {
		changed, err := s.sink.Append(event)
		if err != nil {
			s.log.WithError(err).WithField("block", event.Block).Warn("failed to apply ledger event")
			return
		}
		if changed {
			s.log.WithFields(logrus.Fields{
				"kind":  event.Kind,
				"id":    event.Order.ID,
				"block": event.Block,
			}).Debug("ledger event applied")
		}
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("ledger subscription ended: %w", err)
	}
	return nil
}
