package scheduler

import (
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/medscope/telegram-insights/internal/config"
	"github.com/medscope/telegram-insights/internal/pipeline"
)

// Service schedules the pipeline jobs
type Service struct {
	config   *config.Config
	pipeline *pipeline.Service
	cron     *cron.Cron
}

// NewService creates a new scheduler service
func NewService(cfg *config.Config, pipelineService *pipeline.Service) *Service {
	return &Service{
		config:   cfg,
		pipeline: pipelineService,
		cron:     cron.New(cron.WithSeconds()),
	}
}

// Start registers the cron entries and begins scheduling
func (s *Service) Start() error {
	jobs := []struct {
		name     string
		schedule string
		run      func() error
	}{
		{"ingestion", s.config.IngestionSchedule, s.runIngestionAndLoad},
		{"transform", s.config.TransformSchedule, s.pipeline.RunTransform},
		{"detections", s.config.DetectionSchedule, s.pipeline.RunDetectionLoad},
		{"full pipeline", s.config.FullPipelineSchedule, s.pipeline.RunFull},
		{"weekly refresh", s.config.WeeklyRefreshSchedule, s.pipeline.RunTransform},
	}

	for _, job := range jobs {
		name, run := job.name, job.run
		_, err := s.cron.AddFunc(job.schedule, func() {
			logrus.Infof("Starting scheduled %s run", name)
			if err := run(); err != nil {
				logrus.Errorf("Scheduled %s run failed: %v", name, err)
			}
		})
		if err != nil {
			return err
		}
	}

	s.cron.Start()
	logrus.Infof("Scheduler started with %d jobs", len(jobs))
	return nil
}

// runIngestionAndLoad scrapes the channels and immediately loads the new
// snapshots so the raw tables stay close to the lake
func (s *Service) runIngestionAndLoad() error {
	if err := s.pipeline.RunIngestion(); err != nil {
		return err
	}
	return s.pipeline.RunLoad()
}

// Stop stops the scheduler
func (s *Service) Stop() {
	if s.cron != nil {
		s.cron.Stop()
		logrus.Info("Scheduler stopped")
	}
}
