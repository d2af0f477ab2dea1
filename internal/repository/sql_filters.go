package repository

import (
	"fmt"
	"strings"
	"time"

	"tracker-backend/internal/domain"
)

const orderColumns = `id, symbol, timeframe, direction, risk_level, entry_price, stop_loss, stop_loss_pct,
	target_t1, target_t2, target_t3, leverage, quantity, open_amount, position_size_pct, summary,
	opened_at, status, closed_at, closed_price, final_profit_pct, is_win`

const snapshotColumns = `id, order_id, price, profit_pct, profit_amount, tracking_interval,
	stop_triggered, take_profit_triggered, triggered_target, recorded_at`

// whereBuilder accumulates AND-ed conditions with driver-specific
// placeholders and time encoding.
type whereBuilder struct {
	clauses     []string
	args        []any
	placeholder func(n int) string
	timeArg     func(t time.Time) any
	noLimit     string
}

func postgresWhere() *whereBuilder {
	return &whereBuilder{
		placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
		timeArg:     func(t time.Time) any { return t },
		noLimit:     "all",
	}
}

func sqliteWhere() *whereBuilder {
	return &whereBuilder{
		placeholder: func(int) string { return "?" },
		timeArg:     func(t time.Time) any { return t.UnixMilli() },
		noLimit:     "-1",
	}
}

// add appends cond, whose single %s is replaced by the next placeholder.
func (b *whereBuilder) add(cond string, arg any) {
	b.args = append(b.args, arg)
	b.clauses = append(b.clauses, fmt.Sprintf(cond, b.placeholder(len(b.args))))
}

func (b *whereBuilder) addTime(cond string, t time.Time) {
	b.add(cond, b.timeArg(t))
}

func (b *whereBuilder) raw(cond string) {
	b.clauses = append(b.clauses, cond)
}

// next returns the placeholder for an extra argument appended after the
// conditions, such as LIMIT.
func (b *whereBuilder) next(arg any) string {
	b.args = append(b.args, arg)
	return b.placeholder(len(b.args))
}

func (b *whereBuilder) String() string {
	if len(b.clauses) == 0 {
		return ""
	}
	return " where " + strings.Join(b.clauses, " and ")
}

func (b *whereBuilder) orderFilter(f domain.OrderFilter) {
	if f.Symbol != "" {
		b.add("symbol = %s", f.Symbol)
	}
	if f.Status != "" {
		b.add("status = %s", string(f.Status))
	}
	if f.Direction != "" {
		b.add("direction = %s", string(f.Direction))
	}
	if f.RiskLevel != "" {
		b.add("risk_level = %s", string(f.RiskLevel))
	}
	if !f.From.IsZero() {
		b.addTime("opened_at >= %s", f.From)
	}
	if !f.To.IsZero() {
		b.addTime("opened_at <= %s", f.To)
	}
}

func (b *whereBuilder) closedFilter(f domain.ClosedOrderFilter) {
	b.raw("status <> 'OPEN'")
	if f.Symbol != "" {
		b.add("symbol = %s", f.Symbol)
	}
	if !f.From.IsZero() {
		b.addTime("closed_at >= %s", f.From)
	}
	if !f.To.IsZero() {
		b.addTime("closed_at < %s", f.To)
	}
}

func (b *whereBuilder) snapshotFilter(f domain.SnapshotFilter) {
	if f.OrderID != "" {
		b.add("order_id = %s", f.OrderID)
	}
	if f.Symbol != "" {
		b.add("order_id in (select id from orders where symbol = %s)", f.Symbol)
	}
	if f.Interval != "" {
		b.add("tracking_interval = %s", f.Interval)
	}
	if !f.From.IsZero() {
		b.addTime("recorded_at >= %s", f.From)
	}
	if !f.To.IsZero() {
		b.addTime("recorded_at <= %s", f.To)
	}
}

// pageClause renders LIMIT/OFFSET for a filter, or nothing when unbounded.
func (b *whereBuilder) pageClause(limit, offset int) string {
	var sb strings.Builder
	if limit > 0 {
		sb.WriteString(" limit " + b.next(limit))
	}
	if offset > 0 {
		if limit <= 0 {
			sb.WriteString(" limit " + b.noLimit)
		}
		sb.WriteString(" offset " + b.next(offset))
	}
	return sb.String()
}
