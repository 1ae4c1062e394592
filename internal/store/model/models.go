package model

import "gorm.io/datatypes"

// EventModel maps to the 'event_log' table: one row per engine event.
type EventModel struct {
	ID        int64          `gorm:"column:id;primaryKey;autoIncrement"`
	EventID   string         `gorm:"column:event_id;uniqueIndex"`
	Type      string         `gorm:"column:type;index"`
	Session   string         `gorm:"column:session;index"`
	Fields    datatypes.JSON `gorm:"column:fields;type:TEXT"`
	Timestamp int64          `gorm:"column:timestamp;index"`
}

func (EventModel) TableName() string { return "event_log" }

// TradeModel maps to the 'trades' table: one row per trade, updated on
// close.
type TradeModel struct {
	ID            int64   `gorm:"column:id;primaryKey;autoIncrement"`
	TradeID       string  `gorm:"column:trade_id;uniqueIndex"`
	DealID        string  `gorm:"column:deal_id"`
	Session       string  `gorm:"column:session;index"`
	Direction     string  `gorm:"column:direction"`
	EntryPrice    float64 `gorm:"column:entry_price"`
	ExitPrice     float64 `gorm:"column:exit_price"`
	Size          float64 `gorm:"column:size"`
	Points        float64 `gorm:"column:points"`
	FinalDistance float64 `gorm:"column:final_distance"`
	CloseReason   string  `gorm:"column:close_reason"`
	OpenedAt      int64   `gorm:"column:opened_at;index"`
	ClosedAt      int64   `gorm:"column:closed_at"`
}

func (TradeModel) TableName() string { return "trades" }
