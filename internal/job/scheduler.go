package job

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// Scheduler 后台任务调度
//
// 所有任务都使用单例模式：上一轮还没跑完时跳过本轮，避免同一批 outbox 消息被并发发送
type Scheduler struct {
	sched  gocron.Scheduler
	ctx    context.Context
	cancel context.CancelFunc
}

func NewScheduler() (*Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("创建调度器失败: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{sched: sched, ctx: ctx, cancel: cancel}, nil
}

func (s *Scheduler) add(name string, interval time.Duration, task func()) error {
	_, err := s.sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(task),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("注册任务 %s 失败: %w", name, err)
	}
	log.Printf("[Scheduler] 任务已注册: name=%s, interval=%v", name, interval)
	return nil
}

// AddOutboxSender 默认每 100ms 扫描一次
func (s *Scheduler) AddOutboxSender(sender *OutboxSender, interval time.Duration) error {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	return s.add("outbox-sender", interval, func() {
		sender.ProcessPending(s.ctx)
	})
}

func (s *Scheduler) AddBucketSweeper(sweeper *BucketSweeper, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Minute
	}
	return s.add("ratelimit-sweeper", interval, func() {
		sweeper.Run()
	})
}

func (s *Scheduler) Start() {
	s.sched.Start()
	log.Println("[Scheduler] 后台任务启动")
}

// Shutdown 取消进行中的任务并等待退出
func (s *Scheduler) Shutdown() error {
	s.cancel()
	if err := s.sched.Shutdown(); err != nil {
		return fmt.Errorf("关闭调度器失败: %w", err)
	}
	log.Println("[Scheduler] 后台任务已停止")
	return nil
}
