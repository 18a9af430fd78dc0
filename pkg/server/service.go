package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mikeboe/deep-research/pkg/database"
	"github.com/mikeboe/deep-research/pkg/research"
	"github.com/mikeboe/deep-research/pkg/vectorstore"
)

var (
	ErrNoDatabase  = errors.New("no database configured")
	ErrJobNotFound = errors.New("job not found")
	ErrNoIndex     = errors.New("source search is not configured")
)

// Service runs research in the background and keeps jobs in postgres.
// DB and Index are optional; without them only streaming is available.
type Service struct {
	DB     *database.PostgresDB
	Engine *research.ResearchEngine
	Index  *vectorstore.SourceIndexer
	Logger *slog.Logger

	ctx context.Context
	wg  sync.WaitGroup
}

// NewService creates the service. Background jobs stop when ctx is cancelled.
func NewService(ctx context.Context, db *database.PostgresDB, engine *research.ResearchEngine, index *vectorstore.SourceIndexer) *Service {
	return &Service{
		DB:     db,
		Engine: engine,
		Index:  index,
		Logger: slog.Default(),
		ctx:    ctx,
	}
}

type Job struct {
	ID        uuid.UUID       `json:"id"`
	Topic     string          `json:"topic"`
	Mode      string          `json:"mode"`
	Status    string          `json:"status"`
	Report    *string         `json:"report,omitempty"`
	Error     *string         `json:"error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	Config    json.RawMessage `json:"config"`
	State     json.RawMessage `json:"state,omitempty"`
}

type jobConfig struct {
	MaxIterations    int `json:"max_iterations"`
	MaxDetailFetches int `json:"max_detail_fetches"`
}

// CreateJob validates req, stores a pending job and starts it.
func (s *Service) CreateJob(ctx context.Context, req research.Request) (*Job, error) {
	if s.DB == nil {
		return nil, ErrNoDatabase
	}
	rc, err := research.NewContext(req, s.Engine.Defaults)
	if err != nil {
		return nil, err
	}

	configJSON, err := json.Marshal(jobConfig{MaxIterations: rc.MaxIterations, MaxDetailFetches: rc.MaxDetailFetches})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job config: %w", err)
	}

	job := &Job{Config: configJSON}
	err = s.DB.Pool.QueryRow(ctx, `
		INSERT INTO research_jobs (id, topic, mode, status, config)
		VALUES ($1, $2, $3, 'pending', $4)
		RETURNING id, topic, mode, status, created_at, updated_at
	`, uuid.New(), rc.Topic, string(rc.Mode), configJSON).Scan(
		&job.ID, &job.Topic, &job.Mode, &job.Status, &job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	s.wg.Add(1)
	go s.runWorker(job.ID, rc)

	return job, nil
}

func (s *Service) GetJob(ctx context.Context, id uuid.UUID) (*Job, error) {
	if s.DB == nil {
		return nil, ErrNoDatabase
	}
	job := &Job{}
	err := s.DB.Pool.QueryRow(ctx, `
		SELECT id, topic, mode, status, report, error, created_at, updated_at, config, state
		FROM research_jobs
		WHERE id = $1
	`, id).Scan(
		&job.ID, &job.Topic, &job.Mode, &job.Status, &job.Report, &job.Error,
		&job.CreatedAt, &job.UpdatedAt, &job.Config, &job.State,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

func (s *Service) ListJobs(ctx context.Context) ([]Job, error) {
	if s.DB == nil {
		return nil, ErrNoDatabase
	}
	rows, err := s.DB.Pool.Query(ctx, `
		SELECT id, topic, mode, status, report, error, created_at, updated_at, config
		FROM research_jobs
		ORDER BY created_at DESC
		LIMIT 50
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		var job Job
		if err := rows.Scan(&job.ID, &job.Topic, &job.Mode, &job.Status, &job.Report, &job.Error,
			&job.CreatedAt, &job.UpdatedAt, &job.Config); err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	return jobs, nil
}

type LogEntry struct {
	ID        int             `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	Level     string          `json:"level"`
	Message   string          `json:"message"`
	Metadata  json.RawMessage `json:"metadata"`
}

func (s *Service) GetJobLogs(ctx context.Context, jobID uuid.UUID) ([]LogEntry, error) {
	if s.DB == nil {
		return nil, ErrNoDatabase
	}
	rows, err := s.DB.Pool.Query(ctx, `
		SELECT id, timestamp, level, message, metadata
		FROM research_logs
		WHERE job_id = $1
		ORDER BY id ASC
	`, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to get logs: %w", err)
	}
	defer rows.Close()

	var logs []LogEntry
	for rows.Next() {
		var l LogEntry
		if err := rows.Scan(&l.ID, &l.Timestamp, &l.Level, &l.Message, &l.Metadata); err != nil {
			return nil, fmt.Errorf("failed to scan log: %w", err)
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// SearchSources runs a semantic search over the chunks of indexed sources.
func (s *Service) SearchSources(ctx context.Context, query string, topK int, url string) ([]vectorstore.SimilaritySearchResult, error) {
	if s.Index == nil {
		return nil, ErrNoIndex
	}
	return s.Index.Search(ctx, query, topK, url)
}

// SourceContent returns the indexed text of one source url.
func (s *Service) SourceContent(ctx context.Context, url string) (string, []vectorstore.Document, error) {
	if s.Index == nil {
		return "", nil, ErrNoIndex
	}
	return s.Index.SourceText(ctx, url)
}

// Wait blocks until every started job has returned.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) runWorker(jobID uuid.UUID, rc *research.ResearchContext) {
	defer s.wg.Done()
	ctx := s.ctx

	_, _ = s.DB.Pool.Exec(ctx, "UPDATE research_jobs SET status = 'running', updated_at = NOW() WHERE id = $1", jobID)

	logger := slog.New(NewDBLogHandler(s.DB, jobID, s.Logger.Handler()))

	// Each job gets its own engine so logging and persistence stay per job.
	engine := *s.Engine
	engine.Logger = logger
	engine.OnStateUpdate = func(state research.ResearchContext) {
		stateJSON, err := json.Marshal(state)
		if err != nil {
			logger.Error("Failed to marshal state", "error", err)
			return
		}
		_, err = s.DB.Pool.Exec(context.Background(),
			"UPDATE research_jobs SET state = $2, updated_at = NOW() WHERE id = $1", jobID, stateJSON)
		if err != nil {
			logger.Error("Failed to save state to DB", "error", err)
		}
	}

	var failure string
	for ev := range engine.Events(ctx, rc) {
		switch data := ev.Data.(type) {
		case research.ProcessMessage:
			logger.Info(data.Content, "node", data.Node, "type", data.Type)
		case research.ErrorData:
			failure = data.Message
		case research.ReportChunkData:
		default:
			logger.Info(string(ev.Type), "data", data)
		}
	}
	if failure != "" {
		s.failJob(jobID, failure, logger)
		return
	}

	_, err := s.DB.Pool.Exec(context.Background(),
		"UPDATE research_jobs SET status = 'completed', report = $2, updated_at = NOW() WHERE id = $1",
		jobID, rc.Report)
	if err != nil {
		logger.Error("Failed to save final report to DB", "error", err)
	}

	if s.Index != nil {
		n, err := s.Index.IndexSources(ctx, jobID.String(), rc.Sources)
		if err != nil {
			logger.Warn("Failed to index sources", "error", err)
			return
		}
		logger.Info("Indexed sources", "sources", len(rc.Sources), "chunks", n)
	}
}

func (s *Service) failJob(jobID uuid.UUID, reason string, logger *slog.Logger) {
	logger.Error("Research failed", "reason", reason)
	_, _ = s.DB.Pool.Exec(context.Background(),
		"UPDATE research_jobs SET status = 'failed', error = $2, updated_at = NOW() WHERE id = $1", jobID, reason)
}
