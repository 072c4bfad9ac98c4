package cron

import (
	"context"
	"log"
	"time"

	"instructly/config"
	"instructly/services/payment"
	"instructly/services/tasks"

	"github.com/hibiken/asynq"
)

// InitSettlementWorker runs the asynq worker and periodic scheduler that
// drive the payment sweeps in the background.
func InitSettlementWorker(paymentSvc payment.PaymentService) {
	redisOpts := asynq.RedisClientOpt{
		Addr:     config.AppConfig.RedisAddr,
		Password: config.AppConfig.RedisPassword,
		DB:       config.AppConfig.RedisQueueDB,
	}

	srv := asynq.NewServer(
		redisOpts,
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				"default": 1,
			},
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(tasks.TypeAuthorizationSweep, func(ctx context.Context, _ *asynq.Task) error {
		return paymentSvc.AuthorizationSweep(ctx)
	})
	mux.HandleFunc(tasks.TypeCaptureSweep, func(ctx context.Context, _ *asynq.Task) error {
		return paymentSvc.CaptureSweep(ctx)
	})
	mux.HandleFunc(tasks.TypeReversalSweep, func(ctx context.Context, _ *asynq.Task) error {
		return paymentSvc.ReversalRetrySweep(ctx)
	})

	// Start async worker with retry logic.
	go func() {
		log.Println("[SettlementWorker] starting async worker...")
		const maxAttempts = 5

		for attempts := 1; attempts <= maxAttempts; attempts++ {
			if err := srv.Run(mux); err != nil {
				log.Printf("[SettlementWorker] attempt %d/%d failed to start worker: %v", attempts, maxAttempts, err)

				if attempts == maxAttempts {
					log.Fatal("[SettlementWorker] max retry attempts reached, exiting")
				}
				time.Sleep(time.Duration(attempts*2) * time.Second)
			} else {
				break
			}
		}
	}()

	go runScheduler(redisOpts)
}

// runScheduler enqueues the periodic sweep tasks.
func runScheduler(redisOpts asynq.RedisClientOpt) {
	scheduler := asynq.NewScheduler(redisOpts, &asynq.SchedulerOpts{})

	entries := []struct {
		spec string
		task *asynq.Task
	}{
		{"@every 1m", tasks.NewAuthorizationSweepTask()},
		{"@every 1m", tasks.NewCaptureSweepTask()},
		{"@every 10m", tasks.NewReversalSweepTask()},
	}
	for _, e := range entries {
		if _, err := scheduler.Register(e.spec, e.task); err != nil {
			log.Printf("[SettlementWorker] failed to register %s: %v", e.task.Type(), err)
		}
	}

	if err := scheduler.Run(); err != nil {
		log.Printf("[SettlementWorker] scheduler stopped: %v", err)
	}
}
