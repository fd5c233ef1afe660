package jobs

import (
	"testing"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisConnOpt(t *testing.T) {
	opt, err := RedisConnOpt("127.0.0.1:6379")
	require.NoError(t, err)
	assert.Equal(t, asynq.RedisClientOpt{Addr: "127.0.0.1:6379"}, opt)

	opt, err = RedisConnOpt("redis://:pw@cache:6380/3")
	require.NoError(t, err)
	client, ok := opt.(asynq.RedisClientOpt)
	require.True(t, ok)
	assert.Equal(t, "cache:6380", client.Addr)
	assert.Equal(t, 3, client.DB)
	assert.Equal(t, "pw", client.Password)

	_, err = RedisConnOpt("")
	assert.Error(t, err)
}

func TestNewWorkerRegistersCron(t *testing.T) {
	task, err := NewStatsWarmupTask(0, uuid.Nil)
	require.NoError(t, err)
	w, err := NewWorker(WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: "127.0.0.1:0"},
		Cron:      []CronRegistration{{Spec: "15 1 * * *", Task: task}},
	})
	require.NoError(t, err)
	assert.NotNil(t, w.scheduler)

	_, err = NewWorker(WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: "127.0.0.1:0"},
		Cron:      []CronRegistration{{Spec: "not a cron", Task: task}},
	})
	assert.Error(t, err)
}
