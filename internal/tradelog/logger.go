package tradelog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"pairtrader/internal/position"
	"pairtrader/internal/store"
)

const timeLayout = "2006-01-02 15:04:05"

// Logger 负责持久化已完成的往返交易：
// 写入数据库的 trade_records 表，同时为每个交易对追加一行文本日志。
type Logger struct {
	db     *sql.DB
	logDir string
	logger *zap.Logger

	mu sync.Mutex
}

// NewLogger 初始化交易记录器，创建所需表结构。
// logDir 为空时不写文本日志。
func NewLogger(store *store.Store, logDir string, logger *zap.Logger) (*Logger, error) {
	if store == nil {
		return nil, fmt.Errorf("tradelog: store 不能为空")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	l := &Logger{
		db:     store.DB(),
		logDir: logDir,
		logger: logger,
	}

	if err := l.initSchema(); err != nil {
		return nil, err
	}

	return l, nil
}

func (l *Logger) initSchema() error {
	stmt := `
CREATE TABLE IF NOT EXISTS trade_records (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	symbol TEXT NOT NULL,
	position_type TEXT NOT NULL,
	buy_price TEXT NOT NULL,
	buy_time TEXT NOT NULL,
	sell_price TEXT NOT NULL,
	sell_time TEXT NOT NULL,
	outcome TEXT NOT NULL,
	buy_note TEXT NOT NULL,
	sell_note TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_trade_records_symbol ON trade_records(symbol);
`
	if _, err := l.db.Exec(stmt); err != nil {
		return fmt.Errorf("tradelog: 初始化表失败: %w", err)
	}
	return nil
}

// Append 持久化一条成交记录。文本日志写失败只告警，不影响数据库记录。
func (l *Logger) Append(ctx context.Context, record position.TradeRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, err := l.db.ExecContext(ctx,
		`INSERT INTO trade_records
			(symbol, position_type, buy_price, buy_time, sell_price, sell_time, outcome, buy_note, sell_note, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.Symbol,
		string(record.Type),
		record.BuyPrice.String(),
		record.BuyTime.UTC().Format(time.RFC3339),
		record.SellPrice.String(),
		record.SellTime.UTC().Format(time.RFC3339),
		record.Outcome.String(),
		record.BuyNote,
		record.SellNote,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("tradelog: 写入成交记录失败: %w", err)
	}

	if l.logDir != "" {
		if err := l.appendLine(record); err != nil {
			l.logger.Warn("写入交易文本日志失败", zap.Error(err))
		}
	}

	return nil
}

// FormatLine 输出人类可读的单行交易记录。
func FormatLine(record position.TradeRecord) string {
	return fmt.Sprintf(
		"marketType:%s, Buy order, price: %s, time: %s [%s] | Sell order, price: %s, time: %s [%s], outcome: %s [%s]",
		record.Type,
		formatPrice(record.BuyPrice),
		record.BuyTime.Format(timeLayout),
		record.BuyNote,
		formatPrice(record.SellPrice),
		record.SellTime.Format(timeLayout),
		record.SellNote,
		formatPrice(record.Outcome),
		record.Symbol,
	)
}

func (l *Logger) appendLine(record position.TradeRecord) error {
	if err := os.MkdirAll(l.logDir, 0o755); err != nil {
		return fmt.Errorf("tradelog: 创建日志目录失败: %w", err)
	}

	path := filepath.Join(l.logDir, strings.ToLower(record.Symbol)+"_trades.log")
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("tradelog: 打开日志文件失败: %w", err)
	}
	defer file.Close()

	if _, err := file.WriteString(FormatLine(record) + "\n"); err != nil {
		return fmt.Errorf("tradelog: 追加日志失败: %w", err)
	}
	return nil
}

// Recent 按时间倒序返回指定交易对最近的成交记录，symbol 为空时不过滤。
func (l *Logger) Recent(ctx context.Context, symbol string, limit int) ([]position.TradeRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT symbol, position_type, buy_price, buy_time, sell_price, sell_time, outcome, buy_note, sell_note FROM trade_records`
	args := make([]interface{}, 0, 2)
	if symbol != "" {
		query += ` WHERE symbol = ?`
		args = append(args, symbol)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("tradelog: 查询成交记录失败: %w", err)
	}
	defer rows.Close()

	records := make([]position.TradeRecord, 0, limit)
	for rows.Next() {
		var (
			record    position.TradeRecord
			ptype     string
			buyPrice  string
			buyTime   string
			sellPrice string
			sellTime  string
			outcome   string
		)
		if scanErr := rows.Scan(
			&record.Symbol, &ptype,
			&buyPrice, &buyTime, &sellPrice, &sellTime,
			&outcome, &record.BuyNote, &record.SellNote,
		); scanErr != nil {
			return nil, fmt.Errorf("tradelog: 解析成交记录失败: %w", scanErr)
		}

		record.Type = position.Type(ptype)
		record.BuyPrice = parseDecimal(buyPrice)
		record.SellPrice = parseDecimal(sellPrice)
		record.Outcome = parseDecimal(outcome)
		record.BuyTime = parseTime(buyTime)
		record.SellTime = parseTime(sellTime)

		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("tradelog: 读取成交记录失败: %w", err)
	}

	return records, nil
}

func formatPrice(d decimal.Decimal) string {
	f, _ := d.Float64()
	return fmt.Sprintf("%.8f", f)
}

func parseDecimal(value string) decimal.Decimal {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func parseTime(value string) time.Time {
	ts, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}
	}
	return ts
}
