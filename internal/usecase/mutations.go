package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"

	"github.com/example/order-dashboard/internal/domain"
	"github.com/example/order-dashboard/internal/querycache"
)

// Operation административная команда дашборда.
type Operation string

const (
	OpCreateOrder         Operation = "createOrder"
	OpCreateRandomOrder   Operation = "createRandomOrder"
	OpCreateBulkOrders    Operation = "createBulkOrders"
	OpReprocessOrder      Operation = "reprocessOrder"
	OpReprocessAllPending Operation = "reprocessAllPending"
	OpDiscardOrder        Operation = "discardOrder"
)

var (
	orderQueries = []string{
		ResOrders, ResRecentOrders, ResOrderByOrderID, ResOrdersByProduct, ResOrdersByStatus,
		ResOrderStats, ResProductStats, ResOrderSearch,
		ResAggregationStats, ResAggregationSummary, ResProductAggregate,
	}
	dlqQueries = []string{ResFailedOrders, ResFailedOrder, ResFailedOrdersByType, ResDLQStats}

	invalidations = map[Operation][]string{
		OpCreateOrder:         orderQueries,
		OpCreateRandomOrder:   orderQueries,
		OpCreateBulkOrders:    orderQueries,
		OpReprocessOrder:      append(append([]string{}, dlqQueries...), orderQueries...),
		OpReprocessAllPending: append(append([]string{}, dlqQueries...), orderQueries...),
		OpDiscardOrder:        dlqQueries,
	}
)

// Invalidates ресурсы кэша, которые команда op инвалидирует после успеха.
func Invalidates(op Operation) []string {
	return append([]string(nil), invalidations[op]...)
}

// Command команда с параметрами; используйте конструкторы ниже.
type Command struct {
	Op Operation
	// Order и Simulate для createOrder.
	Order    domain.OrderRequest
	Simulate string
	// Count для createBulkOrders.
	Count int
	// ID записи DLQ для reprocessOrder и discardOrder.
	ID    int64
	Actor string
}

func CreateOrder(req domain.OrderRequest) Command {
	return Command{Op: OpCreateOrder, Order: req}
}

func CreateRandomOrder() Command { return Command{Op: OpCreateRandomOrder} }

func CreateBulkOrders(n int) Command { return Command{Op: OpCreateBulkOrders, Count: n} }

func ReprocessOrder(id int64, actor string) Command {
	return Command{Op: OpReprocessOrder, ID: id, Actor: actor}
}

func ReprocessAllPending(actor string) Command {
	return Command{Op: OpReprocessAllPending, Actor: actor}
}

func DiscardOrder(id int64) Command { return Command{Op: OpDiscardOrder, ID: id} }

// ItemError сбой одного элемента пакетной команды.
type ItemError struct {
	Index int    `json:"index"`
	Error string `json:"error"`
	Err   error  `json:"-"`
}

// Result итог команды. Для пакетных команд частичный сбой отражается в
// Failed и Errors, а не в ошибке Execute.
type Result struct {
	Operation Operation   `json:"operation"`
	Actor     string      `json:"actor,omitempty"`
	Message   string      `json:"message,omitempty"`
	Total     int         `json:"total"`
	Succeeded int         `json:"succeeded"`
	Failed    int         `json:"failed"`
	Errors    []ItemError `json:"errors"`
}

// Invalidator часть кэша запросов, нужная командам.
type Invalidator interface {
	Invalidate(filters ...querycache.Filter) int
}

// MutationObserver получает итог каждой выполненной команды.
type MutationObserver interface {
	ObserveMutation(operation string, err error, partial bool, elapsed time.Duration)
}

// MutationDispatcher выполняет команды записи без автоматических повторов и
// после успеха инвалидирует связанные запросы одним вызовом Invalidate.
// Записи кэша напрямую не изменяются.
type MutationDispatcher struct {
	Producer domain.Producer
	DLQ      domain.DeadLetterQueue
	Cache    Invalidator
	// Audit и Metrics необязательны.
	Audit   domain.AuditSink
	Metrics MutationObserver
	Logger  *slog.Logger

	DefaultActor string
	// MaxBulk верхняя граница createBulkOrders; 0 без ограничения.
	MaxBulk int
	// BulkConcurrency число одновременных вызовов в пакете; 0 все сразу.
	BulkConcurrency int
}

// Execute проверяет команду до сетевого вызова и выполняет её. Ошибка
// валидации оборачивает domain.ErrValidation, сбой вызова возвращается как
// *domain.MutationError.
func (d MutationDispatcher) Execute(ctx context.Context, cmd Command) (Result, error) {
	cmd, err := d.prepare(cmd)
	if err != nil {
		return Result{Operation: cmd.Op}, err
	}

	start := time.Now()
	res, err := d.run(ctx, cmd)
	res.Operation = cmd.Op
	res.Actor = cmd.Actor
	if res.Errors == nil {
		res.Errors = []ItemError{}
	}
	if d.Metrics != nil {
		d.Metrics.ObserveMutation(string(cmd.Op), err, res.Failed > 0, time.Since(start))
	}

	if err != nil {
		d.logger().Warn("mutation failed", "operation", cmd.Op, "error", err)
		d.audit(ctx, cmd, res, err)
		return res, err
	}
	if res.Failed > 0 {
		d.logger().Warn("mutation partially failed", "operation", cmd.Op,
			"succeeded", res.Succeeded, "failed", res.Failed)
	}
	// аудит после инвалидации: его задержка не держит панели устаревшими
	if res.Succeeded > 0 || cmd.Op == OpReprocessAllPending {
		d.invalidate(cmd.Op)
	}
	d.audit(ctx, cmd, res, nil)
	return res, nil
}

func (d MutationDispatcher) prepare(cmd Command) (Command, error) {
	switch cmd.Op {
	case OpCreateOrder:
		req, err := cmd.Order.WithSimulation(cmd.Simulate)
		if err != nil {
			return cmd, err
		}
		if err := req.Validate(); err != nil {
			return cmd, err
		}
		cmd.Order = req
	case OpCreateRandomOrder:
	case OpCreateBulkOrders:
		if cmd.Count < 1 {
			return cmd, &domain.ValidationError{Field: "count", Reason: "must be at least 1"}
		}
		if d.MaxBulk > 0 && cmd.Count > d.MaxBulk {
			return cmd, &domain.ValidationError{Field: "count", Reason: fmt.Sprintf("must not exceed %d", d.MaxBulk)}
		}
	case OpReprocessOrder, OpDiscardOrder:
		if cmd.ID < 1 {
			return cmd, &domain.ValidationError{Field: "id", Reason: "must be positive"}
		}
	case OpReprocessAllPending:
	default:
		return cmd, &domain.ValidationError{Field: "operation", Reason: fmt.Sprintf("unknown operation %q", cmd.Op)}
	}
	if cmd.Actor == "" {
		cmd.Actor = d.DefaultActor
	}
	return cmd, nil
}

func (d MutationDispatcher) run(ctx context.Context, cmd Command) (Result, error) {
	switch cmd.Op {
	case OpCreateOrder:
		msg, err := d.Producer.CreateOrder(ctx, cmd.Order)
		return single(cmd.Op, msg, err)
	case OpCreateRandomOrder:
		msg, err := d.Producer.CreateRandomOrder(ctx)
		return single(cmd.Op, msg, err)
	case OpCreateBulkOrders:
		return d.bulk(ctx, cmd.Count), nil
	case OpReprocessOrder:
		ar, err := d.DLQ.Reprocess(ctx, cmd.ID, cmd.Actor)
		return single(cmd.Op, ar.Message, err)
	case OpDiscardOrder:
		ar, err := d.DLQ.Discard(ctx, cmd.ID)
		return single(cmd.Op, ar.Message, err)
	case OpReprocessAllPending:
		sum, err := d.DLQ.ReprocessAll(ctx, cmd.Actor)
		if err != nil {
			return Result{}, &domain.MutationError{Operation: string(cmd.Op), Err: err}
		}
		return Result{
			Message:   fmt.Sprintf("Reprocessed %d of %d pending orders", sum.Success, sum.Total),
			Total:     sum.Total,
			Succeeded: sum.Success,
			Failed:    sum.Failed,
		}, nil
	}
	return Result{}, fmt.Errorf("unhandled operation %q", cmd.Op)
}

func single(op Operation, msg string, err error) (Result, error) {
	if err != nil {
		return Result{Total: 1, Failed: 1}, &domain.MutationError{Operation: string(op), Err: err}
	}
	return Result{Message: msg, Total: 1, Succeeded: 1}, nil
}

type bulkOutcome struct {
	index int
	err   error
}

// bulk отправляет n независимых запросов. Сбой одного не отменяет остальные.
func (d MutationDispatcher) bulk(ctx context.Context, n int) Result {
	p := pool.NewWithResults[bulkOutcome]()
	if d.BulkConcurrency > 0 {
		p = p.WithMaxGoroutines(d.BulkConcurrency)
	}
	for i := 0; i < n; i++ {
		p.Go(func() bulkOutcome {
			_, err := d.Producer.CreateRandomOrder(ctx)
			return bulkOutcome{index: i, err: err}
		})
	}
	outs := p.Wait()
	sort.Slice(outs, func(a, b int) bool { return outs[a].index < outs[b].index })

	res := Result{Total: n, Errors: []ItemError{}}
	for _, o := range outs {
		if o.err != nil {
			res.Failed++
			res.Errors = append(res.Errors, ItemError{Index: o.index, Error: o.err.Error(), Err: o.err})
			continue
		}
		res.Succeeded++
	}
	res.Message = fmt.Sprintf("Created %d of %d orders", res.Succeeded, n)
	return res
}

func (d MutationDispatcher) invalidate(op Operation) {
	if d.Cache == nil {
		return
	}
	resources := invalidations[op]
	filters := make([]querycache.Filter, 0, len(resources))
	for _, r := range resources {
		filters = append(filters, querycache.Prefix(r))
	}
	n := d.Cache.Invalidate(filters...)
	d.logger().Debug("queries invalidated after mutation", "operation", op, "entries", n)
}

func (d MutationDispatcher) audit(ctx context.Context, cmd Command, res Result, err error) {
	if d.Audit == nil {
		return
	}
	ev := domain.AuditEvent{
		ID:        uuid.NewString(),
		Operation: string(cmd.Op),
		Actor:     cmd.Actor,
		Target:    target(cmd),
		Succeeded: res.Succeeded,
		Failed:    res.Failed,
		At:        time.Now().UTC(),
	}
	if err != nil {
		ev.Error = err.Error()
	}
	if perr := d.Audit.Publish(context.WithoutCancel(ctx), ev); perr != nil {
		d.logger().Warn("audit publish failed", "operation", cmd.Op, "error", perr)
	}
}

func target(cmd Command) string {
	switch cmd.Op {
	case OpCreateOrder:
		return cmd.Order.OrderID
	case OpCreateBulkOrders:
		return strconv.Itoa(cmd.Count)
	case OpReprocessOrder, OpDiscardOrder:
		return strconv.FormatInt(cmd.ID, 10)
	}
	return ""
}

func (d MutationDispatcher) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}
