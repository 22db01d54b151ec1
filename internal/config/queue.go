package config

import "sync"

const (
	QueueDriverMemory = "memory"
	QueueDriverNATS   = "nats"
)

type QueueConfig struct {
	Driver        string
	Workers       int
	Size          int
	NATSURL       string
	NATSSubject   string
	WorkerEnabled bool
}

var (
	queueConfig *QueueConfig
	queueOnce   sync.Once
)

func LoadQueueConfig() *QueueConfig {
	queueOnce.Do(func() {
		queueConfig = newQueueConfig()
	})
	return queueConfig
}

func newQueueConfig() *QueueConfig {
	return &QueueConfig{
		Driver:        getEnv("QUEUE_DRIVER", QueueDriverMemory),
		Workers:       getEnvInt("QUEUE_WORKERS", 4),
		Size:          getEnvInt("QUEUE_SIZE", 256),
		NATSURL:       getEnv("NATS_URL", "nats://localhost:4222"),
		NATSSubject:   getEnv("NATS_SUBJECT", "climate.extraction.jobs"),
		WorkerEnabled: getEnvBool("WORKER_ENABLED", true),
	}
}
