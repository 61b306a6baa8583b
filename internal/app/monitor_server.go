package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"pairtrader/internal/indicator"
	"pairtrader/internal/monitor"
	"pairtrader/internal/tradelog"
	"pairtrader/internal/trader"
)

func startMonitorServer(
	ctx context.Context,
	svc *monitor.Service,
	trades *tradelog.Logger,
	traders []*trader.Trader,
	port int,
	logger *zap.Logger,
) error {
	mux := http.NewServeMux()

	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		statuses := make([]trader.Status, 0, len(traders))
		for _, tr := range traders {
			statuses = append(statuses, tr.Status())
		}
		writeJSON(w, statuses, logger)
	})

	mux.HandleFunc("/events", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		limit := parseLimit(q.Get("limit"), 200)

		eventType := monitor.EventType("")
		if typ := strings.TrimSpace(q.Get("type")); typ != "" {
			eventType = monitor.EventType(strings.ToLower(typ))
		}
		symbol := strings.ToUpper(strings.TrimSpace(q.Get("symbol")))

		events, err := svc.ListEvents(r.Context(), eventType, symbol, limit)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, events, logger)
	})

	mux.HandleFunc("/indicators", func(w http.ResponseWriter, r *http.Request) {
		snapshots := make(map[string]indicator.Snapshot, len(traders))
		for _, tr := range traders {
			status := tr.Status()
			snapshots[status.Symbol] = status.Indicators
		}
		writeJSON(w, snapshots, logger)
	})

	mux.HandleFunc("/trades", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		limit := parseLimit(q.Get("limit"), 100)
		symbol := strings.ToUpper(strings.TrimSpace(q.Get("symbol")))

		records, err := trades.Recent(r.Context(), symbol, limit)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, records, logger)
	})

	addr := fmt.Sprintf(":%d", port)
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && err != http.ErrServerClosed {
			logger.Warn("关闭监控服务失败", zap.Error(err))
		}
	}()

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("监控服务异常", zap.Error(err))
		}
	}()

	logger.Info("监控接口已启动", zap.String("addr", addr))
	return nil
}

func parseLimit(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return fallback
	}
	if v > 1000 {
		return 1000
	}
	return v
}

func writeJSON(w http.ResponseWriter, payload interface{}, logger *zap.Logger) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Warn("写入监控响应失败", zap.Error(err))
	}
}
