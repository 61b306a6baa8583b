package monitor

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"pairtrader/internal/store"
)

// Service 负责持久化监控事件。
type Service struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewService 初始化监控服务，创建所需表结构。
func NewService(store *store.Store, logger *zap.Logger) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("monitor: store 不能为空")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Service{
		db:     store.DB(),
		logger: logger,
	}

	if err := s.initSchema(); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Service) initSchema() error {
	stmt := `
CREATE TABLE IF NOT EXISTS monitor_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	event_type TEXT NOT NULL,
	symbol TEXT NOT NULL,
	message TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_monitor_events_type ON monitor_events(event_type);
CREATE INDEX IF NOT EXISTS idx_monitor_events_symbol ON monitor_events(symbol);
`
	if _, err := s.db.Exec(stmt); err != nil {
		return fmt.Errorf("monitor: 初始化表失败: %w", err)
	}
	return nil
}

// Record 写入单个事件。
func (s *Service) Record(ctx context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO monitor_events (event_type, symbol, message, created_at) VALUES (?, ?, ?, ?)`,
		string(event.Type), event.Symbol, event.Message, event.Timestamp.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("monitor: 写入事件失败: %w", err)
	}

	return nil
}

// RecordEvent 记录交易过程事件，写失败只告警。
func (s *Service) RecordEvent(ctx context.Context, eventType, symbol, message string) {
	if err := s.Record(ctx, Event{
		Type:      EventType(strings.ToLower(eventType)),
		Symbol:    symbol,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}); err != nil {
		s.logger.Warn("记录监控事件失败", zap.Error(err))
	}
}

// ListEvents 按类型与交易对检索最近事件，空参数表示不过滤。
func (s *Service) ListEvents(ctx context.Context, eventType EventType, symbol string, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT event_type, symbol, message, created_at FROM monitor_events`
	conds := make([]string, 0, 2)
	args := make([]interface{}, 0, 3)
	if eventType != "" {
		conds = append(conds, `event_type = ?`)
		args = append(args, string(eventType))
	}
	if symbol != "" {
		conds = append(conds, `symbol = ?`)
		args = append(args, symbol)
	}
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, ` AND `)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("monitor: 查询事件失败: %w", err)
	}
	defer rows.Close()

	events := make([]Event, 0, limit)
	for rows.Next() {
		var (
			typ     string
			symb    string
			message string
			created string
		)
		if scanErr := rows.Scan(&typ, &symb, &message, &created); scanErr != nil {
			return nil, fmt.Errorf("monitor: 解析事件失败: %w", scanErr)
		}

		ts, parseErr := time.Parse(time.RFC3339, created)
		if parseErr != nil {
			ts = time.Now().UTC()
		}

		events = append(events, Event{
			Type:      EventType(typ),
			Symbol:    symb,
			Message:   message,
			Timestamp: ts,
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("monitor: 读取事件失败: %w", err)
	}

	return events, nil
}
