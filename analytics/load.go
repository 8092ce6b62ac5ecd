package analytics

import (
	"context"
	"time"

	"github.com/ariebrainware/kinesio-turnos/model"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

type idName struct {
	ID   uint
	Name string
}

func loadNames(ctx context.Context, db *gorm.DB, table, column string, orgID uint) (map[uint]string, error) {
	var rows []idName
	err := db.WithContext(ctx).Table(table).
		Select("id, "+column+" AS name").
		Where("organization_id = ? AND deleted_at IS NULL", orgID).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[uint]string, len(rows))
	for _, r := range rows {
		out[r.ID] = r.Name
	}
	return out, nil
}

// Load fetches the organization's appointments in r together with the
// specialty and specialist names and returns the aggregated summary.
func Load(ctx context.Context, db *gorm.DB, orgID uint, r Range, g Granularity, loc *time.Location) (Summary, error) {
	var (
		appts []model.Appointment
		names Names
	)

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return db.WithContext(ctx).
			Scopes(model.ForOrganization(orgID)).
			Where("start_at >= ? AND start_at < ?", r.From.UTC(), r.To.UTC()).
			Order("start_at").
			Find(&appts).Error
	})
	eg.Go(func() error {
		m, err := loadNames(ctx, db, "specialties", "name", orgID)
		names.Specialties = m
		return err
	})
	eg.Go(func() error {
		m, err := loadNames(ctx, db, "specialists", "full_name", orgID)
		names.Specialists = m
		return err
	})
	if err := eg.Wait(); err != nil {
		return Summary{}, err
	}

	return Summarize(appts, r, g, loc, names), nil
}
