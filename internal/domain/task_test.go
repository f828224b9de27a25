package domain

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTask(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	payload := json.RawMessage(`{"prompt":"write about Go"}`)

	t.Run("creates pending task", func(t *testing.T) {
		t.Parallel()
		task, err := NewTask(userID, TaskTypeGenerate, payload, map[string]string{"prompt": "write about Go"})
		require.NoError(t, err)
		assert.Equal(t, TaskStatusPending, task.Status)
		assert.Equal(t, TaskTypeGenerate, task.Type)
		assert.NotEqual(t, uuid.Nil, task.ID)
		assert.Nil(t, task.CompletedAt)
		assert.False(t, task.Terminal())
	})

	t.Run("rejects unknown type", func(t *testing.T) {
		t.Parallel()
		_, err := NewTask(userID, TaskType("transcode"), payload, nil)
		assert.ErrorIs(t, err, ErrInvalidTaskType)
	})

	t.Run("rejects nil user", func(t *testing.T) {
		t.Parallel()
		_, err := NewTask(uuid.Nil, TaskTypeEngage, payload, nil)
		assert.ErrorIs(t, err, ErrEmptyTaskUserID)
	})
}

func TestTaskTerminal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status TaskStatus
		want   bool
	}{
		{TaskStatusPending, false},
		{TaskStatusRunning, false},
		{TaskStatusCompleted, true},
		{TaskStatusFailed, true},
	}

	for _, tc := range tests {
		assert.Equal(t, tc.want, (&Task{Status: tc.status}).Terminal(),
			"status %s", tc.status)
	}
}

func TestIsValidTaskType(t *testing.T) {
	t.Parallel()

	assert.True(t, IsValidTaskType(TaskTypeGenerate))
	assert.True(t, IsValidTaskType(TaskTypeEngage))
	assert.True(t, IsValidTaskType(TaskTypeResearch))
	assert.False(t, IsValidTaskType(TaskType("")))
	assert.False(t, IsValidTaskType(TaskType("publish")))
}
