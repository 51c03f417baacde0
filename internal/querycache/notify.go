package querycache

import "sync"

type delivery struct {
	snap      Snapshot
	callbacks []func(Snapshot)
}

// notifier доставляет уведомления подписчикам в порядке изменений записей.
// Очередь пополняется под блокировкой кэша, обработчики вызываются одной
// горутиной без блокировок, поэтому из обработчика можно обращаться к кэшу.
type notifier struct {
	onPanic func(any)

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []delivery
	closed bool
}

func newNotifier(onPanic func(any)) *notifier {
	n := &notifier{onPanic: onPanic}
	n.cond = sync.NewCond(&n.mu)
	return n
}

func (n *notifier) push(d delivery) {
	if len(d.callbacks) == 0 {
		return
	}
	n.mu.Lock()
	if !n.closed {
		n.queue = append(n.queue, d)
		n.cond.Signal()
	}
	n.mu.Unlock()
}

// run обрабатывает очередь до close; оставшиеся уведомления доставляются.
func (n *notifier) run() {
	for {
		n.mu.Lock()
		for len(n.queue) == 0 && !n.closed {
			n.cond.Wait()
		}
		if len(n.queue) == 0 && n.closed {
			n.mu.Unlock()
			return
		}
		d := n.queue[0]
		n.queue[0] = delivery{}
		n.queue = n.queue[1:]
		n.mu.Unlock()

		for _, cb := range d.callbacks {
			n.invoke(cb, d.snap)
		}
	}
}

func (n *notifier) invoke(cb func(Snapshot), snap Snapshot) {
	defer func() {
		if r := recover(); r != nil && n.onPanic != nil {
			n.onPanic(r)
		}
	}()
	cb(snap)
}

func (n *notifier) close() {
	n.mu.Lock()
	n.closed = true
	n.cond.Broadcast()
	n.mu.Unlock()
}
