package worker

import (
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/osagie8/tcp-chat/internal/tasks"
)

// WorkerServer 封装 Asynq 后台任务服务器。
// 周期任务由 Scheduler 入队，这里负责消费。
type WorkerServer struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	scheduler *asynq.Scheduler
}

// NewWorkerServer 创建后台任务服务器与调度器。
// retentionDays 控制已读私信的保留天数。
func NewWorkerServer(redisAddr, redisPassword string, redisDB int, retention *RetentionHandler, activity *ActivityHandler, retentionDays int) *WorkerServer {
	if retention == nil {
		panic("RetentionHandler cannot be nil for WorkerServer")
	}
	if activity == nil {
		panic("ActivityHandler cannot be nil for WorkerServer")
	}

	redisOpt := asynq.RedisClientOpt{
		Addr:     redisAddr,
		Password: redisPassword,
		DB:       redisDB,
	}

	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: 10,
		Queues: map[string]int{
			"critical": 6,
			"default":  3,
			"low":      1,
		},
	})

	mux := asynq.NewServeMux()
	mux.HandleFunc(tasks.TypeMessageRetention, retention.ProcessTask)
	mux.HandleFunc(tasks.TypeChatroomActivity, activity.ProcessTask)

	scheduler := asynq.NewScheduler(redisOpt, nil)

	retentionPayload, err := tasks.NewMessageRetentionTask(retentionDays)
	if err != nil {
		panic("failed to build retention task payload: " + err.Error())
	}
	if _, err := scheduler.Register("@every 1h",
		asynq.NewTask(tasks.TypeMessageRetention, retentionPayload, asynq.Queue("low"))); err != nil {
		panic("failed to register retention schedule: " + err.Error())
	}

	activityPayload, err := tasks.NewChatroomActivityTask()
	if err != nil {
		panic("failed to build activity task payload: " + err.Error())
	}
	if _, err := scheduler.Register("@every 5m",
		asynq.NewTask(tasks.TypeChatroomActivity, activityPayload, asynq.Queue("low"))); err != nil {
		panic("failed to register activity schedule: " + err.Error())
	}

	return &WorkerServer{server: server, mux: mux, scheduler: scheduler}
}

// Start 启动任务消费与调度，非阻塞。
func (w *WorkerServer) Start() error {
	if err := w.server.Start(w.mux); err != nil {
		return err
	}
	if err := w.scheduler.Start(); err != nil {
		w.server.Shutdown()
		return err
	}
	logrus.Info("Worker: Asynq server and scheduler started")
	return nil
}

// Shutdown 停止调度并等待在途任务完成。
func (w *WorkerServer) Shutdown() {
	w.scheduler.Shutdown()
	w.server.Shutdown()
	logrus.Info("Worker: Asynq server stopped")
}
