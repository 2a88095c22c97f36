package app

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/n00bc0der89/MotivationCoach-sub000/internal/content"
	"github.com/n00bc0der89/MotivationCoach-sub000/internal/delivery"
	"github.com/n00bc0der89/MotivationCoach-sub000/internal/orchestrator"
	"github.com/n00bc0der89/MotivationCoach-sub000/internal/task/engine"
	"github.com/n00bc0der89/MotivationCoach-sub000/internal/transport/telegram/router"
	logx "github.com/n00bc0der89/MotivationCoach-sub000/pkg/logx"
)

const historyDefault = 10
const historyMax = 50

func (a *App) commands() []router.Command {
	return []router.Command{
		{
			Name:        "now",
			Description: "deliver one item immediately",
			Usage:       "/now",
			Timeout:     30 * time.Second,
			Handle:      a.handleNow,
		},
		{
			Name:        "status",
			Aliases:     []string{"st"},
			Description: "schedule, catalog and queue state",
			Usage:       "/status",
			Timeout:     10 * time.Second,
			Handle:      a.handleStatus,
		},
		{
			Name:        "history",
			Aliases:     []string{"hist"},
			Description: "recent deliveries, newest first",
			Usage:       "/history [n]",
			Timeout:     10 * time.Second,
			Handle:      a.handleHistory,
		},
		{
			Name:        "reset",
			Description: "clear the delivery ledger so every item is selectable again",
			Usage:       "/reset",
			Access:      router.AccessOwnerOnly,
			Timeout:     10 * time.Second,
			Handle:      a.handleReset,
		},
	}
}

func (a *App) deliveryChatID() int64 {
	cfg := a.cfgm.Get()
	if cfg == nil || cfg.Delivery == nil {
		return 0
	}
	return cfg.Delivery.ChatID
}

func (a *App) handleNow(ctx context.Context, req *router.Request) error {
	tr, err := a.orch.TriggerManual(ctx)
	if err != nil {
		_, _ = req.Adapter.SendText(ctx, req.Chat, "delivery failed: "+err.Error(), nil)
		return err
	}
	if tr.State == orchestrator.TriggerExhausted {
		_, err := req.Adapter.SendText(ctx, req.Chat,
			"every item has been delivered already. /reset starts the rotation over.", nil)
		return err
	}

	// The item goes to the configured delivery chat; only acknowledge
	// here when that target is somewhere else.
	target := a.deliveryChatID()
	switch {
	case target == 0:
		_, err := req.Adapter.SendText(ctx, req.Chat,
			"recorded "+tr.Delivery.Item.ID.String()+", but delivery.chat_id is not configured — the message has nowhere to go.", nil)
		return err
	case target != req.Chat.ChatID:
		_, err := req.Adapter.SendText(ctx, req.Chat,
			"sent "+tr.Delivery.Item.ID.String()+" to the delivery chat.", nil)
		return err
	}
	return nil
}

func (a *App) handleStatus(ctx context.Context, req *router.Request) error {
	snap := a.orch.Snapshot(ctx)
	_, err := req.Adapter.SendText(ctx, req.Chat,
		renderStatus(snap, a.engine.Snapshot(), a.pipe.Snapshot()), nil)
	return err
}

func (a *App) handleHistory(ctx context.Context, req *router.Request) error {
	n := historyDefault
	if len(req.Args) > 0 {
		v, err := strconv.Atoi(req.Args[0])
		if err != nil || v <= 0 {
			_, err := req.Adapter.SendText(ctx, req.Chat, "usage: /history [n]", nil)
			return err
		}
		n = v
		if n > historyMax {
			n = historyMax
		}
	}
	recs, err := a.store.Deliveries(ctx, n)
	if err != nil {
		_, _ = req.Adapter.SendText(ctx, req.Chat, "history unavailable: "+err.Error(), nil)
		return err
	}
	_, err = req.Adapter.SendText(ctx, req.Chat, renderHistory(recs), nil)
	return err
}

func (a *App) handleReset(ctx context.Context, req *router.Request) error {
	n, err := a.sel.ResetLedger(ctx)
	if err != nil {
		_, _ = req.Adapter.SendText(ctx, req.Chat, "reset failed: "+err.Error(), nil)
		return err
	}
	// Freed items may unblock a schedule that ran dry.
	if _, perr := a.orch.EnsurePlanned(ctx); perr != nil {
		req.Logger.Warn("replan after reset failed", logx.Err(perr))
	}
	_, err = req.Adapter.SendText(ctx, req.Chat,
		fmt.Sprintf("ledger cleared (%d rows). every item is selectable again.", n), nil)
	return err
}

func renderStatus(o orchestrator.Snapshot, e engine.Snapshot, hist []delivery.HistoryItem) string {
	var b strings.Builder

	b.WriteString("📟 schedule: ")
	if o.Enabled {
		fmt.Fprintf(&b, "on — %s %s, %d/day", o.Mode, o.Window, o.PerDay)
		if o.Days != "" {
			fmt.Fprintf(&b, " (%s)", o.Days)
		}
	} else {
		b.WriteString("off")
	}
	b.WriteString("\n")

	if o.NextAt.IsZero() {
		b.WriteString("next: nothing planned\n")
	} else {
		fmt.Fprintf(&b, "next: %s\n", o.NextAt.Format("Mon Jan 2 15:04"))
	}
	if o.Pending > 1 {
		fmt.Fprintf(&b, "pending units: %d\n", o.Pending)
	}

	fmt.Fprintf(&b, "catalog: %d items, %d unseen\n", o.Items, o.Unseen)

	fmt.Fprintf(&b, "engine: %d/%d queued, %d running", e.QueueLen, e.QueueCap, e.InFlight)
	if e.Dropped > 0 {
		fmt.Fprintf(&b, ", %d dropped", e.Dropped)
	}
	b.WriteString("\n")

	if len(hist) == 0 {
		b.WriteString("pipeline: no sends yet")
	} else {
		last := hist[len(hist)-1]
		if last.Error != "" {
			fmt.Fprintf(&b, "pipeline: last send failed (%s)", last.Error)
		} else {
			fmt.Fprintf(&b, "pipeline: last sent %s at %s", last.ItemID, last.At.Format("Jan 2 15:04"))
		}
	}
	return b.String()
}

func renderHistory(recs []content.DeliveryRecord) string {
	if len(recs) == 0 {
		return "no deliveries yet."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "last %d deliveries, newest first:\n", len(recs))
	for _, r := range recs {
		fmt.Fprintf(&b, "%s  %s", r.At.Format("Jan 02 15:04"), r.ItemID)
		if content.IsManualSlotID(r.SlotID) {
			b.WriteString("  (manual)")
		}
		if r.Status != content.StatusDelivered {
			fmt.Fprintf(&b, "  [%s]", r.Status)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
