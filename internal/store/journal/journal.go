// Package journal persists the engine's event stream and trade history to
// SQLite. It is a pure consumer: nothing in the decision path reads from it.
package journal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"zonebreak/internal/events"
	zlog "zonebreak/internal/logger"
	storemodel "zonebreak/internal/store/model"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type eventModel = storemodel.EventModel
type tradeModel = storemodel.TradeModel

type Journal struct {
	db *gorm.DB
}

func Open(path string) (*Journal, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("journal: path cannot be empty")
	}
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&eventModel{}, &tradeModel{}); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite + WAL: a little parallelism for HTTP reads, low lock contention.
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &Journal{db: db}, nil
}

func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Emit implements events.Sink. Failures are logged and swallowed: the
// journal must never feed errors back into the tick loop.
func (j *Journal) Emit(evt events.Event) {
	if j == nil || j.db == nil {
		return
	}
	fields, err := json.Marshal(evt.Fields)
	if err != nil {
		zlog.Warnf("journal: marshal event %s failed: %v", evt.ID, err)
		fields = []byte("{}")
	}
	session, _ := evt.Fields["session"].(string)
	row := eventModel{
		EventID:   evt.ID,
		Type:      string(evt.Type),
		Session:   session,
		Fields:    datatypes.JSON(fields),
		Timestamp: evt.At.UnixMilli(),
	}
	if err := j.db.Create(&row).Error; err != nil {
		zlog.Warnf("journal: persist event %s failed: %v", evt.Type, err)
	}
	switch evt.Type {
	case events.TradeOpen:
		j.recordOpen(evt)
	case events.TradeClose:
		j.recordClose(evt)
	}
}

func (j *Journal) recordOpen(evt events.Event) {
	row := tradeModel{
		TradeID:    evt.ID,
		DealID:     str(evt.Fields, "deal_id"),
		Session:    str(evt.Fields, "session"),
		Direction:  str(evt.Fields, "direction"),
		EntryPrice: num(evt.Fields, "entry"),
		Size:       num(evt.Fields, "size"),
		OpenedAt:   evt.At.UnixMilli(),
	}
	if err := j.db.Create(&row).Error; err != nil {
		zlog.Warnf("journal: persist trade open failed: %v", err)
	}
}

func (j *Journal) recordClose(evt events.Event) {
	dealID := str(evt.Fields, "deal_id")
	updates := map[string]any{
		"exit_price":   num(evt.Fields, "exit"),
		"points":       num(evt.Fields, "points"),
		"close_reason": str(evt.Fields, "reason"),
		"closed_at":    evt.At.UnixMilli(),
	}
	res := j.db.Model(&tradeModel{}).Where("deal_id = ?", dealID).Updates(updates)
	if res.Error != nil {
		zlog.Warnf("journal: persist trade close failed: %v", res.Error)
	}
}

// RecentEvents returns the newest events, most recent first.
func (j *Journal) RecentEvents(limit int) ([]storemodel.EventModel, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []storemodel.EventModel
	err := j.db.Order("timestamp DESC").Limit(limit).Find(&rows).Error
	return rows, err
}

// TradesSince returns trades opened at or after the given unix-milli time.
func (j *Journal) TradesSince(unixMilli int64) ([]storemodel.TradeModel, error) {
	var rows []storemodel.TradeModel
	err := j.db.Where("opened_at >= ?", unixMilli).Order("opened_at ASC").Find(&rows).Error
	return rows, err
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func str(fields map[string]any, key string) string {
	v, _ := fields[key].(string)
	return v
}

func num(fields map[string]any, key string) float64 {
	switch v := fields[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}
