package job

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

// JobsTopic is the queue every job message is published to.
const JobsTopic = "jobs"

// EvaluationRunner executes a queued sweep.
type EvaluationRunner interface {
	RunEvaluation(ctx context.Context, payload EvaluationPayload) error
}

type JobService struct {
	publisher message.Publisher
	repo      JobRepository
	logger    watermill.LoggerAdapter
	runner    EvaluationRunner
}

type JobMessage struct {
	JobID    int             `json:"job_id"`
	TaskType string          `json:"task_type"`
	Payload  json.RawMessage `json:"payload"`
}

func NewJobService(
	publisher message.Publisher,
	repo JobRepository,
	logger watermill.LoggerAdapter,
	runner EvaluationRunner,
) *JobService {
	return &JobService{
		publisher: publisher,
		repo:      repo,
		logger:    logger,
		runner:    runner,
	}
}

// EnqueueJob creates a new job and publishes it to the message queue
func (s *JobService) EnqueueJob(ctx context.Context, taskType string, payload json.RawMessage) (*Job, error) {
	job, err := s.repo.Create(ctx, taskType, payload)
	if err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	jobMsg := JobMessage{
		JobID:    job.ID,
		TaskType: job.TaskType,
		Payload:  job.Payload,
	}

	msgPayload, err := json.Marshal(jobMsg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job message: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), msgPayload)
	if err := s.publisher.Publish(JobsTopic, msg); err != nil {
		return nil, fmt.Errorf("failed to publish job message: %w", err)
	}

	return job, nil
}

// EnqueueEvaluation validates and queues a sweep.
func (s *JobService) EnqueueEvaluation(ctx context.Context, payload EvaluationPayload) (*Job, error) {
	if err := payload.Validate(); err != nil {
		return nil, err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal evaluation payload: %w", err)
	}
	return s.EnqueueJob(ctx, TaskTypeEvaluation, data)
}

// ProcessJobMessage processes a job message from the queue
func (s *JobService) ProcessJobMessage(msg *message.Message) error {
	var jobMsg JobMessage
	if err := json.Unmarshal(msg.Payload, &jobMsg); err != nil {
		return fmt.Errorf("failed to unmarshal job message: %w", err)
	}

	ctx := msg.Context()

	job, err := s.repo.Get(ctx, jobMsg.JobID)
	if err != nil {
		return fmt.Errorf("failed to get job: %w", err)
	}
	if job == nil {
		return fmt.Errorf("%w: %d", ErrJobNotFound, jobMsg.JobID)
	}

	if err := s.repo.UpdateStatus(ctx, job.ID, JobStatusRunning, nil); err != nil {
		return fmt.Errorf("failed to update job status to running: %w", err)
	}

	err = s.processJob(ctx, job)

	if err != nil {
		errStr := err.Error()
		if updateErr := s.repo.UpdateStatus(ctx, job.ID, JobStatusFailed, &errStr); updateErr != nil {
			s.logger.Error("Failed to update job status to failed", updateErr, watermill.LogFields{
				"job_id": job.ID,
			})
		}
		return fmt.Errorf("failed to process job: %w", err)
	}

	if err := s.repo.UpdateStatus(ctx, job.ID, JobStatusCompleted, nil); err != nil {
		return fmt.Errorf("failed to update job status to completed: %w", err)
	}

	return nil
}

// processJob handles different types of jobs
func (s *JobService) processJob(ctx context.Context, job *Job) error {
	switch job.TaskType {
	case TaskTypeEvaluation:
		var payload EvaluationPayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return fmt.Errorf("failed to unmarshal evaluation payload: %w", err)
		}
		s.logger.Info("Evaluation job started", watermill.LogFields{
			"job_id":  job.ID,
			"corpus":  payload.CorpusDir,
			"presets": len(payload.Presets),
		})
		return s.runner.RunEvaluation(ctx, payload)
	default:
		return fmt.Errorf("unknown task type: %s", job.TaskType)
	}
}
