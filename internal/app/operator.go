package app

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const operatorOffsetKey = "telegram:operator:last_update_id"

// startOperator polls Telegram for /pause, /resume and /status commands from
// the allowed operator accounts. The poll offset is persisted so a restart
// never replays already-handled commands.
func (a *App) startOperator(ctx context.Context) {
	if !a.cfg.Telegram.Enabled || !a.cfg.Telegram.OperatorEnabled {
		return
	}
	go a.operatorLoop(ctx)
}

func (a *App) operatorLoop(ctx context.Context) {
	offset := a.loadOperatorOffset(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(a.cfg.Telegram.OperatorPollInterval):
		}
		updates, err := a.alerts.GetUpdates(ctx, offset, a.cfg.Telegram.OperatorPollInterval)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			a.log.Warn("operator poll failed", zap.Error(err))
			continue
		}
		for _, update := range updates {
			if update.UpdateID >= offset {
				offset = update.UpdateID + 1
			}
			a.handleCommand(ctx, update.UserID, update.Username, update.Text)
		}
		if len(updates) > 0 {
			a.saveOperatorOffset(ctx, offset)
		}
	}
}

func (a *App) handleCommand(ctx context.Context, userID int64, username, text string) {
	command := strings.ToLower(strings.TrimSpace(text))
	if !strings.HasPrefix(command, "/") {
		return
	}
	if !a.operatorAllowed(userID) {
		a.log.Warn("operator command from unauthorized user",
			zap.Int64("user_id", userID),
			zap.String("username", username),
			zap.String("command", command),
		)
		return
	}
	var reply string
	switch command {
	case "/pause":
		if a.machine.Apply(EventPause) == StatePaused {
			reply = "paused: ticking continues, quoting suspended"
		} else {
			reply = fmt.Sprintf("cannot pause from %s", a.machine.State())
		}
	case "/resume":
		if a.machine.Apply(EventResume) == StateRunning {
			reply = "resumed"
		} else {
			reply = fmt.Sprintf("cannot resume from %s", a.machine.State())
		}
	case "/status":
		reply = a.statusMessage()
	default:
		reply = "commands: /pause /resume /status"
	}
	a.log.Info("operator command",
		zap.Int64("user_id", userID),
		zap.String("username", username),
		zap.String("command", command),
	)
	if err := a.alerts.Send(ctx, reply); err != nil {
		a.log.Warn("operator reply failed", zap.Error(err))
	}
}

func (a *App) operatorAllowed(userID int64) bool {
	allowed := a.cfg.Telegram.OperatorAllowedUserIDs
	if len(allowed) == 0 {
		return false
	}
	for _, id := range allowed {
		if id == userID {
			return true
		}
	}
	return false
}

func (a *App) statusMessage() string {
	view := a.stats.View()
	return fmt.Sprintf(
		"%s %s\nstate: %s\nmode: %s around %.6g (diff %.4f%%)\nuptime: %s\nticks: %d refreshes: %d\nplaced: %d failed: %d cancelled: %d\ntracked: %d\nrisk denials: %d oracle overrides: %d\nquoted volume: %.2f",
		a.cfg.Strategy.Symbol,
		a.cfg.Strategy.Mode,
		a.machine.State(),
		view.LastMode,
		view.LastReference,
		view.LastDiffPct,
		view.Uptime.Round(time.Second),
		view.Ticks,
		view.Refreshes,
		view.OrdersPlaced,
		view.OrdersFailed,
		view.OrdersCancelled,
		a.orders.TrackedCount(a.cfg.Strategy.Symbol),
		view.RiskDenials,
		view.OracleOverrides,
		view.QuotedVolume,
	)
}

func (a *App) loadOperatorOffset(ctx context.Context) int64 {
	raw, ok, err := a.store.Get(ctx, operatorOffsetKey)
	if err != nil || !ok {
		return 0
	}
	offset, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0
	}
	return offset
}

func (a *App) saveOperatorOffset(ctx context.Context, offset int64) {
	if err := a.store.Set(ctx, operatorOffsetKey, []byte(strconv.FormatInt(offset, 10))); err != nil {
		a.log.Warn("operator offset save failed", zap.Error(err))
	}
}
