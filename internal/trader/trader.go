package trader

import (
	"context"
	"time"

	"go.uber.org/zap"

	"pairtrader/internal/config"
	"pairtrader/internal/exchange"
	"pairtrader/internal/indicator"
	"pairtrader/internal/market"
	"pairtrader/internal/position"
)

// Run 驱动交易循环直到收到停机请求或 ctx 取消。
// 首轮前阻塞等待完整的市场数据（实盘还要求首个账户快照）。
func (t *Trader) Run(ctx context.Context) error {
	defer close(t.done)

	if err := t.warmUp(ctx); err != nil {
		return err
	}
	t.logger.Info("交易实例进入预热阶段", zap.String("symbol", t.pair.Symbol()))

	interval := t.cfg.LoopInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		t.tick(ctx)

		if t.state == StateStop {
			t.logger.Info("交易实例已停机")
			return nil
		}

		select {
		case <-ctx.Done():
			// 取消路径上仍尽力撤单，避免在交易所留下孤儿委托。
			t.abortOutstanding(context.WithoutCancel(ctx))
			t.state = StateStop
			t.publishStatus()
			t.logger.Warn("上下文取消，交易实例退出", zap.Error(ctx.Err()))
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Pause 暂停新的交易决策，持仓对账与停机处理不受影响。
func (t *Trader) Pause() {
	t.pauseReq.Store(true)
}

// Resume 恢复交易决策。
func (t *Trader) Resume() {
	t.pauseReq.Store(false)
}

// Stop 请求有界停机：阻止新的买入并等待在途持仓结清，
// 超过 stop_timeout 后撤销全部在途委托强制退出。
// 阻塞直到循环退出或 ctx 取消。
func (t *Trader) Stop(ctx context.Context) error {
	t.stopOnce.Do(func() { close(t.stopCh) })

	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Trader) warmUp(ctx context.Context) error {
	for {
		if ready := t.tryWarmUp(ctx); ready {
			t.state = StateSetup
			return nil
		}

		timer := time.NewTimer(time.Second)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (t *Trader) tryWarmUp(ctx context.Context) bool {
	snap, err := t.market.GetSnapshot(ctx, exchange.DefaultSnapshotRequest())
	if err != nil {
		t.logger.Debug("市场数据尚未就绪", zap.Error(err))
		return false
	}
	quote, err := market.QuoteFromSnapshot(snap)
	if err != nil || len(snap.Candles) < indicator.MinCandles {
		t.logger.Debug("K线或盘口数据不足，继续等待")
		return false
	}

	if t.cfg.RunType == config.RunReal && t.buffer != nil {
		update, ok := t.buffer.LatestAccount()
		if !ok {
			t.logger.Debug("等待首个账户快照")
			return false
		}
		t.wallet = update
		t.walletAt = update.EventTime
	}

	t.quote = quote
	t.candles = snap.Candles
	return true
}

// tick 执行一轮循环：采集行情、同步钱包、对账持仓、做出并执行决策。
func (t *Trader) tick(ctx context.Context) {
	snap, err := t.market.GetSnapshot(ctx, exchange.DefaultSnapshotRequest())
	if err != nil {
		t.logger.Warn("拉取市场快照失败，跳过本轮", zap.Error(err))
		return
	}
	quote, err := market.QuoteFromSnapshot(snap)
	if err != nil {
		t.logger.Warn("市场快照不完整，跳过本轮", zap.Error(err))
		return
	}
	t.quote = quote
	t.candles = snap.Candles

	decisionsOK := true
	if ind, err := t.calc.Compute(t.market.Symbol(), snap.Candles, snap.Candles15M); err != nil {
		t.logger.Warn("指标计算失败，本轮只对账不决策", zap.Error(err))
		decisionsOK = false
	} else {
		t.indicators = ind
	}

	t.syncWallet()
	t.applyPauseRequest()

	for i, leg := range t.legs() {
		if i > 0 {
			t.sleepOrderDelay(ctx)
		}

		// 完成标记保留一轮供监控读取，下一轮复位进入新的交易周期。
		if leg.MarketStatus != position.MarketTrading {
			leg.MarketStatus = position.MarketTrading
		}

		t.reconcile(ctx, leg)

		// 停机等待期间每轮重新压下买入闸门：卖出侧刚结清换仓的持仓
		// 不得在同一轮再次入场。部分成交冻结不被覆盖。
		if t.stopRequested() && !leg.Buy.Locked() {
			leg.Buy.State = position.StateForcePreventBuy
		}

		if decisionsOK && leg.CanOrder && t.state == StateRun && !t.entryBlockedByPeer(leg) {
			t.manage(ctx, leg)
		}
	}

	t.advanceStop(ctx)

	if t.state == StateSetup {
		t.state = StateRun
		t.logger.Info("交易实例进入运行状态")
	}

	t.publishStatus()
}

// syncWallet 按事件时间去重地应用最新账户快照，旧事件直接丢弃。
func (t *Trader) syncWallet() {
	if t.cfg.RunType != config.RunReal || t.buffer == nil {
		return
	}
	update, ok := t.buffer.LatestAccount()
	if !ok || !update.EventTime.After(t.walletAt) {
		return
	}

	t.wallet = update
	t.walletAt = update.EventTime
	t.logger.Info("账户余额已更新", zap.Time("event_time", update.EventTime))
}

func (t *Trader) applyPauseRequest() {
	if t.pauseReq.Load() {
		if t.state == StateRun {
			t.state = StateForcePause
			t.logger.Info("交易决策已暂停")
		}
		return
	}
	if t.state == StateForcePause {
		t.state = StateRun
		t.logger.Info("交易决策已恢复")
	}
}

// entryBlockedByPeer 实现同一时间只允许一个方向活跃交易：
// 对侧持仓已入场（或已挂买入单）时，本方向只观察不下单。
func (t *Trader) entryBlockedByPeer(leg *position.Leg) bool {
	if !t.cfg.TradeOnlyOne || t.cfg.MarketType != config.MarketMargin || t.short == nil {
		return false
	}

	peer := t.short
	if leg.Type == position.Short {
		peer = t.long
	}
	return peer.Buy.Kind != position.KindWait || peer.Sell.Armed()
}

// stopRequested 报告是否已收到停机请求，不阻塞。
func (t *Trader) stopRequested() bool {
	select {
	case <-t.stopCh:
		return true
	default:
		return false
	}
}

// advanceStop 推进停机流程。首次观察到停机请求时记下截止时间；
// 全部卖出侧结清后正常停机，超时则撤销在途委托强制停机。
// 买入闸门由 tick 在每轮对账后压下。
func (t *Trader) advanceStop(ctx context.Context) {
	if !t.stopRequested() {
		return
	}

	if t.stopDeadline.IsZero() {
		timeout := t.cfg.StopTimeout
		if timeout <= 0 {
			timeout = 2 * time.Minute
		}
		t.stopDeadline = time.Now().Add(timeout)
		t.logger.Info("收到停机请求，等待在途持仓结清",
			zap.Time("deadline", t.stopDeadline),
		)
	}

	settled := true
	for _, leg := range t.legs() {
		if leg.Sell.Armed() {
			settled = false
			break
		}
	}

	if settled {
		t.state = StateStop
		return
	}
	if time.Now().After(t.stopDeadline) {
		t.logger.Warn("停机等待超时，强制撤销在途委托")
		t.abortOutstanding(ctx)
		t.state = StateStop
	}
}

func (t *Trader) abortOutstanding(ctx context.Context) {
	for _, leg := range t.legs() {
		t.cancelSide(ctx, &leg.Buy)
		t.cancelSide(ctx, &leg.Sell)
	}
}

func (t *Trader) sleepOrderDelay(ctx context.Context) {
	if t.cfg.OrderDelay <= 0 {
		return
	}
	timer := time.NewTimer(t.cfg.OrderDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
