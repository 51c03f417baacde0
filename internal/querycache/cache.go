// Package querycache кэширует результаты удалённых запросов по ключу,
// периодически их обновляет и оповещает подписчиков об изменениях.
//
// На каждый ключ в полёте не более одной загрузки: повторные триггеры
// присоединяются к ней. После неудачи загрузка повторяется (по умолчанию
// один раз), затем запись переходит в error, сохраняя последние успешные
// данные. Ошибки с Temporary() == false не повторяются, паника загрузчика
// считается ошибкой. Периодическое обновление идёт с фиксированной
// задержкой: следующий тик взводится только после завершения предыдущей
// загрузки.
package querycache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sourcegraph/conc"
)

var (
	ErrUnknownKey = errors.New("querycache: unknown key")
	ErrClosed     = errors.New("querycache: closed")
)

// Cache менеджер кэша запросов. Нулевое значение не готово к работе, используйте New.
type Cache struct {
	retries  int
	now      func() time.Time
	logger   *slog.Logger
	observer Observer

	ctx    context.Context
	cancel context.CancelFunc
	work   conc.WaitGroup
	loop   conc.WaitGroup
	notify *notifier

	mu      sync.Mutex
	entries map[Key]*entry
	nextSub uint64
	closed  bool
}

type entry struct {
	key         Key
	fetch       Fetcher
	data        any
	err         error
	status      Status
	lastUpdated time.Time
	stale       bool
	generation  uint64
	inflight    *call
	subs        map[uint64]*Subscription
	interval    time.Duration
	stop        chan struct{}
}

// call общая загрузка, к которой присоединяются все триггеры ключа.
type call struct {
	done       chan struct{}
	generation uint64
}

func New(opts ...Option) *Cache {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Cache{
		retries: 1,
		now:     time.Now,
		logger:  discardLogger(),
		ctx:     ctx,
		cancel:  cancel,
		entries: make(map[Key]*entry),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	c.notify = newNotifier(func(r any) {
		c.logger.Error("query subscriber panicked", "panic", r)
	})
	c.loop.Go(c.notify.run)
	return c
}

// Subscribe регистрирует интерес к ключу. Новая, устаревшая или ошибочная
// запись загружается сразу. При interval > 0 ключ обновляется периодически,
// пока жив хотя бы один подписчик; интервал записи равен наименьшему из
// интервалов подписчиков. onChange может быть nil.
func (c *Cache) Subscribe(key Key, fetch Fetcher, interval time.Duration, onChange func(Snapshot)) *Subscription {
	sub := &Subscription{cache: c, key: key, interval: interval, onChange: onChange}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		sub.closed = true
		return sub
	}
	e, ok := c.entries[key]
	if !ok {
		e = &entry{key: key, status: StatusIdle, subs: make(map[uint64]*Subscription)}
		c.entries[key] = e
	}
	if fetch != nil {
		e.fetch = fetch
	}
	c.nextSub++
	sub.id = c.nextSub
	e.subs[sub.id] = sub
	c.rescheduleLocked(e)

	if e.fetch != nil && e.needsFetch(c.now()) {
		_, d := c.startLocked(e)
		c.notify.push(d)
	}
	return sub
}

// Snapshot возвращает текущее состояние записи; для неизвестного ключа idle без данных.
func (c *Cache) Snapshot(key Key) Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return Snapshot{Key: key, Status: StatusIdle}
	}
	return e.snapshotLocked()
}

// Invalidate помечает подходящие записи устаревшими. Записи с подписчиками
// загружаются сразу; если загрузка уже идёт, она повторится по её завершении,
// так как начата до инвалидации. Записи без подписчиков обновятся при
// следующем Subscribe. Возвращает число затронутых записей.
func (c *Cache) Invalidate(filters ...Filter) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for key, e := range c.entries {
		if !matchAny(filters, key) {
			continue
		}
		n++
		e.generation++
		e.stale = true
		if len(e.subs) > 0 && e.fetch != nil && e.inflight == nil {
			_, d := c.startLocked(e)
			c.notify.push(d)
		}
	}
	if n > 0 {
		c.logger.Debug("queries invalidated", "count", n)
	}
	return n
}

// Refetch загружает ключ немедленно, независимо от таймера, присоединяясь к
// уже идущей загрузке. Возвращает снимок после её завершения. Ошибка загрузки
// доступна в Snapshot.Err; сама функция возвращает ошибку только для
// неизвестного ключа, закрытого кэша или истёкшего ctx.
func (c *Cache) Refetch(ctx context.Context, key Key) (Snapshot, error) {
	c.mu.Lock()
	e, ok := c.entries[key]
	if !ok || e.fetch == nil {
		c.mu.Unlock()
		return Snapshot{Key: key, Status: StatusIdle}, fmt.Errorf("refetch %s: %w", key, ErrUnknownKey)
	}
	if c.closed {
		snap := e.snapshotLocked()
		c.mu.Unlock()
		return snap, ErrClosed
	}
	cl, d := c.startLocked(e)
	c.notify.push(d)
	c.mu.Unlock()
	return c.wait(ctx, key, cl)
}

// Touch загружает запись, если у неё есть подписчики и она в ошибке, устарела
// или её интервал истёк. Идущая загрузка не дублируется. Сообщает, начата ли загрузка.
func (c *Cache) Touch(key Key) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	e, ok := c.entries[key]
	if !ok || e.fetch == nil || e.inflight != nil || len(e.subs) == 0 || !e.needsFetch(c.now()) {
		return false
	}
	_, d := c.startLocked(e)
	c.notify.push(d)
	return true
}

// Await дожидается идущей загрузки ключа, не начиная новую.
func (c *Cache) Await(ctx context.Context, key Key) (Snapshot, error) {
	c.mu.Lock()
	var cl *call
	if e, ok := c.entries[key]; ok {
		cl = e.inflight
	}
	c.mu.Unlock()
	return c.wait(ctx, key, cl)
}

func (c *Cache) wait(ctx context.Context, key Key, cl *call) (Snapshot, error) {
	if cl != nil {
		select {
		case <-cl.done:
		case <-ctx.Done():
			return c.Snapshot(key), fmt.Errorf("wait %s: %w", key, ctx.Err())
		}
	}
	return c.Snapshot(key), nil
}

// Prune удаляет записи без подписчиков и загрузок, не обновлявшиеся maxIdle.
func (c *Cache) Prune(maxIdle time.Duration) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	n := 0
	for key, e := range c.entries {
		if len(e.subs) > 0 || e.inflight != nil {
			continue
		}
		if e.lastUpdated.IsZero() || now.Sub(e.lastUpdated) >= maxIdle {
			delete(c.entries, key)
			n++
		}
	}
	return n
}

// Len число записей в кэше.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Close останавливает расписания и доставку уведомлений. Идущие загрузки
// отменяются через контекст; Close дожидается всех горутин.
func (c *Cache) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	for _, e := range c.entries {
		if e.stop != nil {
			close(e.stop)
			e.stop = nil
		}
	}
	c.mu.Unlock()

	c.cancel()
	c.work.Wait()
	c.notify.close()
	c.loop.Wait()
}

// startLocked запускает загрузку или возвращает уже идущую.
func (c *Cache) startLocked(e *entry) (*call, delivery) {
	if e.inflight != nil {
		return e.inflight, delivery{}
	}
	if c.closed || e.fetch == nil {
		return nil, delivery{}
	}
	cl := &call{done: make(chan struct{}), generation: e.generation}
	e.inflight = cl
	e.status = StatusLoading
	fetch := e.fetch
	c.work.Go(func() { c.run(e, cl, fetch) })
	return cl, e.deliveryLocked()
}

func (c *Cache) run(e *entry, cl *call, fetch Fetcher) {
	start := time.Now()
	attempts := 0
	data, err := backoff.Retry(c.ctx, func() (v any, err error) {
		attempts++
		defer func() {
			if r := recover(); r != nil {
				c.logger.Error("query fetcher panicked", "key", e.key.String(), "panic", r)
				v, err = nil, fmt.Errorf("fetch panicked: %v", r)
			}
		}()
		v, err = fetch(c.ctx)
		if err != nil && !retryable(err) {
			return nil, backoff.Permanent(err)
		}
		return v, err
	},
		backoff.WithBackOff(&backoff.ZeroBackOff{}),
		backoff.WithMaxTries(uint(c.retries+1)),
	)
	if c.observer != nil {
		c.observer.ObserveFetch(e.key.Resource, err, attempts, time.Since(start))
	}

	c.mu.Lock()
	e.inflight = nil
	if err == nil {
		e.data = data
		e.err = nil
		e.status = StatusSuccess
		e.lastUpdated = c.now()
		e.stale = e.generation != cl.generation
	} else {
		// previous data stays in place for stale reads
		e.err = &FetchError{Key: e.key, Attempts: attempts, Err: err}
		e.status = StatusError
		c.logger.Warn("query fetch failed", "key", e.key.String(), "attempts", attempts, "error", err)
	}
	c.notify.push(e.deliveryLocked())
	if e.generation != cl.generation && len(e.subs) > 0 {
		_, d := c.startLocked(e)
		c.notify.push(d)
	}
	c.mu.Unlock()
	close(cl.done)
}

// poll периодически загружает запись с фиксированной задержкой между
// завершением загрузки и следующим тиком.
func (c *Cache) poll(e *entry, every time.Duration, stop <-chan struct{}) {
	timer := time.NewTimer(every)
	defer timer.Stop()
	for {
		select {
		case <-stop:
			return
		case <-c.ctx.Done():
			return
		case <-timer.C:
		}

		c.mu.Lock()
		select {
		case <-stop:
			c.mu.Unlock()
			return
		default:
		}
		cl, d := c.startLocked(e)
		c.notify.push(d)
		c.mu.Unlock()

		if cl != nil {
			select {
			case <-cl.done:
			case <-stop:
				return
			case <-c.ctx.Done():
				return
			}
		}
		timer.Reset(every)
	}
}

func (c *Cache) rescheduleLocked(e *entry) {
	var every time.Duration
	for _, s := range e.subs {
		if s.interval > 0 && (every == 0 || s.interval < every) {
			every = s.interval
		}
	}
	if every == e.interval && (e.stop != nil) == (every > 0) {
		return
	}
	if e.stop != nil {
		close(e.stop)
		e.stop = nil
	}
	e.interval = every
	if every > 0 && !c.closed {
		stop := make(chan struct{})
		e.stop = stop
		c.work.Go(func() { c.poll(e, every, stop) })
	}
}

func (e *entry) needsFetch(now time.Time) bool {
	switch {
	case e.status == StatusIdle, e.status == StatusError, e.stale:
		return true
	case e.interval > 0 && !e.lastUpdated.IsZero():
		return now.Sub(e.lastUpdated) >= e.interval
	}
	return false
}

func (e *entry) snapshotLocked() Snapshot {
	return Snapshot{
		Key:         e.key,
		Data:        e.data,
		Err:         e.err,
		Status:      e.status,
		LastUpdated: e.lastUpdated,
		Stale:       e.stale,
	}
}

func (e *entry) deliveryLocked() delivery {
	d := delivery{snap: e.snapshotLocked()}
	for _, s := range e.subs {
		if s.onChange != nil {
			d.callbacks = append(d.callbacks, s.onChange)
		}
	}
	return d
}

// temporary реализуют ошибки транспорта, различающие повторяемые сбои.
type temporary interface {
	Temporary() bool
}

// retryable: ошибка, явно помеченная как постоянная, не повторяется.
func retryable(err error) bool {
	var t temporary
	if errors.As(err, &t) {
		return t.Temporary()
	}
	return true
}

func matchAny(filters []Filter, key Key) bool {
	for _, f := range filters {
		if f != nil && f.Match(key) {
			return true
		}
	}
	return false
}

// Subscription подписка на ключ; Close снимает её.
type Subscription struct {
	cache    *Cache
	key      Key
	id       uint64
	interval time.Duration
	onChange func(Snapshot)
	closed   bool
}

func (s *Subscription) Key() Key { return s.key }

// Snapshot текущее состояние ключа подписки.
func (s *Subscription) Snapshot() Snapshot { return s.cache.Snapshot(s.key) }

// Close снимает подписку. После снятия последней подписки периодическое
// обновление ключа прекращается, данные остаются в кэше. Идущая загрузка не
// прерывается. Повторный вызов ничего не делает.
func (s *Subscription) Close() {
	c := s.cache
	c.mu.Lock()
	defer c.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	if e, ok := c.entries[s.key]; ok {
		delete(e.subs, s.id)
		c.rescheduleLocked(e)
	}
}
