package telegram

import "sync"

const queueLen = 64

// chatQueues runs each chat's events one at a time, in arrival order, on a
// goroutine owned by that chat. Chats never wait on each other. A worker
// exits once its queue drains and is recreated on the next event.
type chatQueues struct {
	mu     sync.Mutex
	queues map[int64]chan func()
	wg     sync.WaitGroup
}

func newChatQueues() *chatQueues {
	return &chatQueues{queues: make(map[int64]chan func())}
}

// submit queues task for chatID. It reports false when the chat's queue is full.
func (q *chatQueues) submit(chatID int64, task func()) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	ch, ok := q.queues[chatID]
	if !ok {
		ch = make(chan func(), queueLen)
		q.queues[chatID] = ch
		q.wg.Add(1)
		go q.run(chatID, ch)
	}
	select {
	case ch <- task:
		return true
	default:
		return false
	}
}

func (q *chatQueues) run(chatID int64, ch chan func()) {
	defer q.wg.Done()
	for {
		select {
		case task := <-ch:
			task()
		default:
			// submit sends under q.mu, so an empty queue seen here stays empty.
			q.mu.Lock()
			if len(ch) == 0 {
				delete(q.queues, chatID)
				q.mu.Unlock()
				return
			}
			q.mu.Unlock()
		}
	}
}

// wait blocks until every queued task has run.
func (q *chatQueues) wait() {
	q.wg.Wait()
}

func (q *chatQueues) active() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queues)
}
