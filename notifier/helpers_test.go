package notifier

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/ariebrainware/kinesio-turnos/model"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:notifier_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(model.AllModels()...))
	return db
}

type sentCall struct {
	msg Message
}

// fakeSender records calls and fails for recipients listed in failFor.
type fakeSender struct {
	calls   []sentCall
	failFor map[string]error
}

func (f *fakeSender) Send(_ context.Context, msg Message) (string, error) {
	f.calls = append(f.calls, sentCall{msg: msg})
	if err, ok := f.failFor[msg.To]; ok {
		return "", err
	}
	return fmt.Sprintf("ref-%d", len(f.calls)), nil
}

var errBoom = errors.New("boom")
