package notifier

import (
	"context"
	"time"

	"github.com/ariebrainware/kinesio-turnos/model"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Stats counts the outcome of one dispatch pass.
type Stats struct {
	Sent   int
	Failed int
}

// Dispatcher polls due notifications and sends them one at a time.
type Dispatcher struct {
	DB        *gorm.DB
	Sender    Sender
	Interval  time.Duration
	BatchSize int
	Now       func() time.Time
	Log       *logrus.Entry
}

// NewDispatcher builds a Dispatcher with sane defaults for zero values.
func NewDispatcher(db *gorm.DB, sender Sender, interval time.Duration, batchSize int) *Dispatcher {
	if interval <= 0 {
		interval = time.Minute
	}
	if batchSize <= 0 {
		batchSize = 50
	}
	return &Dispatcher{
		DB:        db,
		Sender:    sender,
		Interval:  interval,
		BatchSize: batchSize,
		Now:       time.Now,
		Log:       logrus.WithField("component", "notifier"),
	}
}

// Due returns up to BatchSize pending notifications scheduled at or before now.
func (d *Dispatcher) Due(ctx context.Context, now time.Time) ([]model.Notification, error) {
	var rows []model.Notification
	err := d.DB.WithContext(ctx).
		Where("status = ? AND scheduled_for <= ?", model.NotificationPending, now).
		Order("scheduled_for ASC, id ASC").
		Limit(d.BatchSize).
		Find(&rows).Error
	return rows, err
}

// RunOnce performs a single dispatch pass.
func (d *Dispatcher) RunOnce(ctx context.Context) (Stats, error) {
	var stats Stats
	now := d.Now().UTC()

	rows, err := d.Due(ctx, now)
	if err != nil {
		return stats, err
	}

	for i := range rows {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		n := &rows[i]
		log := d.Log.WithFields(logrus.Fields{"notification_id": n.ID, "organization_id": n.OrganizationID})

		to, err := NormalizePhone(n.Recipient)
		if err != nil {
			stats.Failed++
			log.WithError(err).Warn("invalid recipient")
			if err := d.markFailed(ctx, n, err); err != nil {
				return stats, err
			}
			continue
		}

		ref, err := d.Sender.Send(ctx, Message{To: to, Text: n.Message, MediaURL: n.MediaURL})
		if err != nil {
			stats.Failed++
			log.WithError(err).Warn("send failed")
			if err := d.markFailed(ctx, n, err); err != nil {
				return stats, err
			}
			continue
		}

		stats.Sent++
		log.WithField("external_ref", ref).Info("notification sent")
		if err := d.markSent(ctx, n, ref, d.Now().UTC()); err != nil {
			return stats, err
		}
	}
	return stats, nil
}

func (d *Dispatcher) markSent(ctx context.Context, n *model.Notification, ref string, at time.Time) error {
	return d.DB.WithContext(ctx).Model(&model.Notification{}).
		Where("id = ?", n.ID).
		Updates(map[string]interface{}{
			"status":       model.NotificationSent,
			"sent_at":      at,
			"external_ref": ref,
			"last_error":   "",
			"attempts":     gorm.Expr("attempts + 1"),
		}).Error
}

func (d *Dispatcher) markFailed(ctx context.Context, n *model.Notification, cause error) error {
	return d.DB.WithContext(ctx).Model(&model.Notification{}).
		Where("id = ?", n.ID).
		Updates(map[string]interface{}{
			"status":     model.NotificationFailed,
			"last_error": cause.Error(),
			"attempts":   gorm.Expr("attempts + 1"),
		}).Error
}

// Run dispatches immediately and then on every Interval tick until ctx is done.
func (d *Dispatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.Interval)
	defer ticker.Stop()

	for {
		stats, err := d.RunOnce(ctx)
		switch {
		case ctx.Err() != nil:
			return nil
		case err != nil:
			d.Log.WithError(err).Error("dispatch pass failed")
		case stats.Sent+stats.Failed > 0:
			d.Log.WithFields(logrus.Fields{"sent": stats.Sent, "failed": stats.Failed}).Info("dispatch pass finished")
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
