package notifier

import (
	"context"
	"errors"
	"log/slog"
	"sort"

	"github.com/go-futureme/internal/domain"
)

// LogPresenter writes fired notifications to the structured log.
type LogPresenter struct{}

func (LogPresenter) Present(_ context.Context, d domain.Delivery) error {
	slog.Info("notification fired",
		"id", d.ID,
		"title", d.Payload.Title,
		"body", d.Payload.Body,
		"badge", d.Payload.Badge,
		"fire_at", d.FireAt,
	)
	return nil
}

type publisher interface {
	Publish(c domain.Change)
}

// BusPresenter forwards fired notifications to change subscribers so the UI
// shell can render them.
type BusPresenter struct {
	Pub publisher
}

func (p BusPresenter) Present(_ context.Context, d domain.Delivery) error {
	p.Pub.Publish(domain.Change{Kind: domain.NotificationFired, LetterID: d.Payload.LetterID, Delivery: &d})
	return nil
}

// Presenters fans a delivery out to several presenters.
type Presenters []Presenter

func (ps Presenters) Present(ctx context.Context, d domain.Delivery) error {
	var errs []error
	for _, p := range ps {
		if err := p.Present(ctx, d); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func sortDeliveries(ds []domain.Delivery) {
	sort.Slice(ds, func(i, j int) bool {
		if !ds[i].FireAt.Equal(ds[j].FireAt) {
			return ds[i].FireAt.Before(ds[j].FireAt)
		}
		return ds[i].ID < ds[j].ID
	})
}
