package gormstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"agentra/internal/store"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// GormStore persists the agent document in SQLite via Gorm. Open positions
// and trade records get their own tables; the scalar remainder of the
// document lives in a single-row aggregate table.
type GormStore struct {
	db             *gorm.DB
	initialBalance float64
}

var _ store.Store = (*GormStore)(nil)

func New(path string, initialBalance float64) (*GormStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("gorm store: state path is empty")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&positionModel{}, &tradeModel{}, &aggregateModel{}); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite + WAL: allow concurrent HTTP reads while keeping lock
	// contention low.
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &GormStore{db: db, initialBalance: initialBalance}, nil
}

func (s *GormStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *GormStore) Load(ctx context.Context) (*store.State, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("gorm store not initialized")
	}

	var agg aggregateModel
	err := s.db.WithContext(ctx).First(&agg, "id = ?", 1).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return store.NewState(s.initialBalance), nil
	}
	if err != nil {
		return nil, err
	}

	st := store.NewState(s.initialBalance)
	st.AccountBalance = agg.Balance
	st.Metrics = store.Metrics{Wins: agg.Wins, Losses: agg.Losses, TotalPnL: agg.TotalPnL}
	st.LastRun = millisToTime(agg.LastRun)
	if len(agg.LastOracleCalls) > 0 {
		if err := json.Unmarshal(agg.LastOracleCalls, &st.LastOracleCall); err != nil {
			return nil, fmt.Errorf("gorm store: decode oracle call map: %w", err)
		}
	}
	if len(agg.LatestAnalysis) > 0 {
		if err := json.Unmarshal(agg.LatestAnalysis, &st.LatestAnalysis); err != nil {
			return nil, fmt.Errorf("gorm store: decode latest analysis: %w", err)
		}
	}

	var positions []positionModel
	if err := s.db.WithContext(ctx).Order("symbol ASC").Find(&positions).Error; err != nil {
		return nil, err
	}
	for _, m := range positions {
		pos, err := positionModelToRecord(m)
		if err != nil {
			return nil, err
		}
		st.SetPosition(pos)
	}

	var trades []tradeModel
	if err := s.db.WithContext(ctx).Order("exit_time ASC, id ASC").Find(&trades).Error; err != nil {
		return nil, err
	}
	for _, m := range trades {
		rec, err := tradeModelToRecord(m)
		if err != nil {
			return nil, err
		}
		st.TradeHistory = append(st.TradeHistory, rec)
	}
	return st, nil
}

// Save writes the whole document atomically. Positions are replaced
// wholesale; trade records are append-only and deduplicated by id.
func (s *GormStore) Save(ctx context.Context, st *store.State) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("gorm store not initialized")
	}
	if st == nil {
		return fmt.Errorf("gorm store: nil state")
	}

	oracleCalls, err := json.Marshal(st.LastOracleCall)
	if err != nil {
		return fmt.Errorf("gorm store: encode oracle call map: %w", err)
	}
	latest, err := json.Marshal(st.LatestAnalysis)
	if err != nil {
		return fmt.Errorf("gorm store: encode latest analysis: %w", err)
	}
	agg := aggregateModel{
		ID:              1,
		Balance:         st.AccountBalance,
		Wins:            st.Metrics.Wins,
		Losses:          st.Metrics.Losses,
		TotalPnL:        st.Metrics.TotalPnL,
		LastOracleCalls: datatypes.JSON(oracleCalls),
		LatestAnalysis:  datatypes.JSON(latest),
		LastRun:         timeToMillis(st.LastRun),
		UpdatedAtUnix:   time.Now().UnixMilli(),
	}

	positions := make([]positionModel, 0, len(st.Positions))
	for _, pos := range st.Positions {
		m, err := newPositionModel(pos)
		if err != nil {
			return err
		}
		positions = append(positions, m)
	}
	trades := make([]tradeModel, 0, len(st.TradeHistory))
	for _, rec := range st.TradeHistory {
		m, err := newTradeModel(rec)
		if err != nil {
			return err
		}
		trades = append(trades, m)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).Create(&agg).Error; err != nil {
			return err
		}
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&positionModel{}).Error; err != nil {
			return err
		}
		if len(positions) > 0 {
			if err := tx.Create(&positions).Error; err != nil {
				return err
			}
		}
		if len(trades) > 0 {
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "trade_uuid"}},
				DoNothing: true,
			}).Create(&trades).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// --------------------------- Models ------------------------------------

type positionModel struct {
	ID              int64          `gorm:"column:id;primaryKey"`
	Symbol          string         `gorm:"column:symbol;uniqueIndex"`
	Side            string         `gorm:"column:side"`
	EntryPrice      float64        `gorm:"column:entry_price"`
	Quantity        float64        `gorm:"column:quantity"`
	StopLoss        float64        `gorm:"column:stop_loss"`
	InitialStopLoss float64        `gorm:"column:initial_stop_loss"`
	TakeProfit      float64        `gorm:"column:take_profit"`
	EntryTime       int64          `gorm:"column:entry_time"`
	RegimeAtEntry   datatypes.JSON `gorm:"column:regime_at_entry;type:TEXT"`
	StrategyUsed    string         `gorm:"column:strategy_used"`
	CurrentPrice    float64        `gorm:"column:current_price"`
	LastUpdate      int64          `gorm:"column:last_update"`
}

func (positionModel) TableName() string { return "open_positions" }

type tradeModel struct {
	ID         int64          `gorm:"column:id;primaryKey"`
	TradeUUID  string         `gorm:"column:trade_uuid;uniqueIndex"`
	Symbol     string         `gorm:"column:symbol;index"`
	Side       string         `gorm:"column:side"`
	EntryPrice float64        `gorm:"column:entry_price"`
	ExitPrice  float64        `gorm:"column:exit_price"`
	ExitTime   int64          `gorm:"column:exit_time;index"`
	PnLPercent float64        `gorm:"column:pnl_percent"`
	Realized   float64        `gorm:"column:realized_pnl"`
	Reason     string         `gorm:"column:reason"`
	Context    datatypes.JSON `gorm:"column:context;type:TEXT"`
}

func (tradeModel) TableName() string { return "trade_history" }

type aggregateModel struct {
	ID              int            `gorm:"column:id;primaryKey"`
	Balance         float64        `gorm:"column:balance"`
	Wins            int            `gorm:"column:wins"`
	Losses          int            `gorm:"column:losses"`
	TotalPnL        float64        `gorm:"column:total_pnl"`
	LastOracleCalls datatypes.JSON `gorm:"column:last_oracle_calls;type:TEXT"`
	LatestAnalysis  datatypes.JSON `gorm:"column:latest_analysis;type:TEXT"`
	LastRun         int64          `gorm:"column:last_run"`
	UpdatedAtUnix   int64          `gorm:"column:updated_at"`
}

func (aggregateModel) TableName() string { return "agent_state" }

// --------------------------- Conversions ------------------------------------

func newPositionModel(pos store.Position) (positionModel, error) {
	regimeJSON, err := json.Marshal(pos.RegimeAtEntry)
	if err != nil {
		return positionModel{}, fmt.Errorf("gorm store: encode entry regime: %w", err)
	}
	return positionModel{
		Symbol:          strings.ToUpper(strings.TrimSpace(pos.Symbol)),
		Side:            pos.Side,
		EntryPrice:      pos.EntryPrice,
		Quantity:        pos.Quantity,
		StopLoss:        pos.StopLoss,
		InitialStopLoss: pos.InitialStopLoss,
		TakeProfit:      pos.TakeProfit,
		EntryTime:       timeToMillis(pos.EntryTime),
		RegimeAtEntry:   datatypes.JSON(regimeJSON),
		StrategyUsed:    pos.StrategyUsed,
		CurrentPrice:    pos.CurrentPrice,
		LastUpdate:      timeToMillis(pos.LastUpdate),
	}, nil
}

func positionModelToRecord(m positionModel) (store.Position, error) {
	pos := store.Position{
		Symbol:          m.Symbol,
		Side:            m.Side,
		EntryPrice:      m.EntryPrice,
		Quantity:        m.Quantity,
		StopLoss:        m.StopLoss,
		InitialStopLoss: m.InitialStopLoss,
		TakeProfit:      m.TakeProfit,
		EntryTime:       millisToTime(m.EntryTime),
		StrategyUsed:    m.StrategyUsed,
		CurrentPrice:    m.CurrentPrice,
		LastUpdate:      millisToTime(m.LastUpdate),
	}
	if len(m.RegimeAtEntry) > 0 {
		if err := json.Unmarshal(m.RegimeAtEntry, &pos.RegimeAtEntry); err != nil {
			return store.Position{}, fmt.Errorf("gorm store: decode entry regime for %s: %w", m.Symbol, err)
		}
	}
	return pos, nil
}

func newTradeModel(rec store.TradeRecord) (tradeModel, error) {
	ctxJSON, err := json.Marshal(rec.Context)
	if err != nil {
		return tradeModel{}, fmt.Errorf("gorm store: encode trade context: %w", err)
	}
	return tradeModel{
		TradeUUID:  rec.ID,
		Symbol:     strings.ToUpper(strings.TrimSpace(rec.Symbol)),
		Side:       rec.Side,
		EntryPrice: rec.EntryPrice,
		ExitPrice:  rec.ExitPrice,
		ExitTime:   timeToMillis(rec.ExitTime),
		PnLPercent: rec.PnLPercent,
		Realized:   rec.Realized,
		Reason:     rec.Reason,
		Context:    datatypes.JSON(ctxJSON),
	}, nil
}

func tradeModelToRecord(m tradeModel) (store.TradeRecord, error) {
	rec := store.TradeRecord{
		ID:         m.TradeUUID,
		Symbol:     m.Symbol,
		Side:       m.Side,
		EntryPrice: m.EntryPrice,
		ExitPrice:  m.ExitPrice,
		ExitTime:   millisToTime(m.ExitTime),
		PnLPercent: m.PnLPercent,
		Realized:   m.Realized,
		Reason:     m.Reason,
	}
	if len(m.Context) > 0 {
		if err := json.Unmarshal(m.Context, &rec.Context); err != nil {
			return store.TradeRecord{}, fmt.Errorf("gorm store: decode trade context %s: %w", m.TradeUUID, err)
		}
	}
	return rec, nil
}

func timeToMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func millisToTime(v int64) time.Time {
	if v <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(v)
}
