package workerpool

import (
	"log/slog"
	"sync"
)

// Task 任务函数
type Task func()

const (
	defaultWorkers   = 32
	defaultQueueSize = 1024
)

// Pool 有界工作池
// fanout 订阅和 transport 的入站事件都经由它调度，避免阻塞读取循环
// Shutdown 前调用方必须先停止提交，队列里剩余的任务会被执行完
type Pool struct {
	tasks  chan Task
	quit   chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
	logger *slog.Logger
}

// New 创建并启动工作池，workers 或 queueSize 不合法时取默认值
func New(workers int, queueSize int, logger *slog.Logger) *Pool {
	if workers <= 0 {
		workers = defaultWorkers
	}
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	if logger == nil {
		logger = slog.Default()
	}

	p := &Pool{
		tasks:  make(chan Task, queueSize),
		quit:   make(chan struct{}),
		logger: logger,
	}

	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker(i)
	}

	p.logger.Info("Worker pool started", "workers", workers, "queue_size", queueSize)
	return p
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	for {
		select {
		case task := <-p.tasks:
			p.run(id, task)
		case <-p.quit:
			// 排空队列里剩余的任务再退出
			for {
				select {
				case task := <-p.tasks:
					p.run(id, task)
				default:
					return
				}
			}
		}
	}
}

func (p *Pool) run(id int, task Task) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Task panic recovered", "worker_id", id, "panic", r)
		}
	}()
	task()
}

// Submit 提交任务，队列满时阻塞；池已关闭返回 false
func (p *Pool) Submit(task Task) bool {
	if p.closed() {
		return false
	}
	select {
	case <-p.quit:
		return false
	case p.tasks <- task:
		return true
	}
}

// TrySubmit 提交任务，队列满或池已关闭立即返回 false
func (p *Pool) TrySubmit(task Task) bool {
	if p.closed() {
		return false
	}
	select {
	case p.tasks <- task:
		return true
	default:
		return false
	}
}

func (p *Pool) closed() bool {
	select {
	case <-p.quit:
		return true
	default:
		return false
	}
}

// Len 当前排队任务数
func (p *Pool) Len() int {
	return len(p.tasks)
}

// Shutdown 关闭工作池，排空队列后返回
func (p *Pool) Shutdown() {
	p.once.Do(func() {
		close(p.quit)
	})
	p.wg.Wait()
	p.logger.Info("Worker pool shutdown completed")
}
