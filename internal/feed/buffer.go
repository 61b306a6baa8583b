package feed

import "sync"

// Buffer 是账户数据流与交易循环之间唯一的共享点。
// 单一生产者（监听协程）整体发布事件，消费者只读取副本，
// 不会观察到写入到一半的事件；按事件时间去重由消费者负责。
type Buffer struct {
	mu       sync.RWMutex
	reports  map[string]ExecutionReport
	account  AccountUpdate
	hasAcct  bool
}

// NewBuffer 创建空缓冲。
func NewBuffer() *Buffer {
	return &Buffer{
		reports: make(map[string]ExecutionReport),
	}
}

// PublishReport 以整体替换方式发布某交易对的最新执行回报。
func (b *Buffer) PublishReport(report ExecutionReport) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reports[report.Symbol] = report
}

// PublishAccount 发布最新账户快照，余额表在发布前拷贝。
func (b *Buffer) PublishAccount(update AccountUpdate) {
	balances := make(map[string]Balance, len(update.Balances))
	for asset, balance := range update.Balances {
		balances[asset] = balance
	}
	update.Balances = balances

	b.mu.Lock()
	defer b.mu.Unlock()
	b.account = update
	b.hasAcct = true
}

// LatestReport 返回指定交易对的最新执行回报。
func (b *Buffer) LatestReport(symbol string) (ExecutionReport, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	report, ok := b.reports[symbol]
	return report, ok
}

// LatestAccount 返回最新账户快照的副本。
func (b *Buffer) LatestAccount() (AccountUpdate, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.hasAcct {
		return AccountUpdate{}, false
	}

	balances := make(map[string]Balance, len(b.account.Balances))
	for asset, balance := range b.account.Balances {
		balances[asset] = balance
	}

	return AccountUpdate{Balances: balances, EventTime: b.account.EventTime}, true
}
