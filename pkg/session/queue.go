package session

import "sync"

// keyedQueue выполняет задачи одного ключа строго по очереди.
// Для каждого ключа с задачами работает одна горутина, она завершается,
// когда очередь ключа пуста. Разные ключи обрабатываются независимо.
type keyedQueue struct {
	mu     sync.Mutex
	queues map[string][]func()
	wg     sync.WaitGroup
	closed bool

	onPanic func(key string, recovered interface{})
}

func newKeyedQueue(onPanic func(key string, recovered interface{})) *keyedQueue {
	return &keyedQueue{queues: make(map[string][]func()), onPanic: onPanic}
}

// Enqueue добавляет задачу. После Close задачи не принимаются.
func (q *keyedQueue) Enqueue(key string, task func()) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}

	q.wg.Add(1)
	pending, running := q.queues[key]
	q.queues[key] = append(pending, task)
	if !running {
		go q.run(key)
	}
	return true
}

func (q *keyedQueue) run(key string) {
	for {
		q.mu.Lock()
		tasks := q.queues[key]
		if len(tasks) == 0 {
			delete(q.queues, key)
			q.mu.Unlock()
			return
		}
		task := tasks[0]
		tasks[0] = nil
		q.queues[key] = tasks[1:]
		q.mu.Unlock()

		q.exec(key, task)
	}
}

func (q *keyedQueue) exec(key string, task func()) {
	defer q.wg.Done()
	defer func() {
		if r := recover(); r != nil && q.onPanic != nil {
			q.onPanic(key, r)
		}
	}()
	task()
}

// Drain ждет выполнения всех принятых задач
func (q *keyedQueue) Drain() {
	q.wg.Wait()
}

// Close перестает принимать задачи и ждет выполнения принятых
func (q *keyedQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.wg.Wait()
}

// Keys количество ключей с незавершенными задачами
func (q *keyedQueue) Keys() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queues)
}
