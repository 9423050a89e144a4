package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/medscope/telegram-insights/internal/config"
	"github.com/medscope/telegram-insights/internal/models"
	"github.com/medscope/telegram-insights/internal/notifications"
	"github.com/medscope/telegram-insights/internal/scraper"
	"github.com/medscope/telegram-insights/internal/storage"
)

// messageLoader and detectionLoader are the loading surfaces the pipeline
// drives; scriptRunner executes the transform SQL.
type messageLoader interface {
	LoadDate(ctx context.Context, date time.Time) (int, error)
}

type detectionLoader interface {
	LoadAll(ctx context.Context) (int, error)
}

type scriptRunner interface {
	RunScript(ctx context.Context, script string) error
}

// Service orchestrates the scrape, load and transform jobs
type Service struct {
	config     *config.Config
	lake       storage.Interface
	source     scraper.Source
	messages   messageLoader
	detections detectionLoader
	runner     scriptRunner
	notifier   notifications.Notifier
	metrics    *Metrics
	mu         sync.RWMutex
}

// Metrics holds pipeline run metrics
type Metrics struct {
	LastRun         time.Time      `json:"last_run"`
	LastRunDuration string         `json:"last_run_duration"`
	LastJob         string         `json:"last_job"`
	RunsCompleted   int            `json:"runs_completed"`
	MessagesSeen    int            `json:"messages_seen"`
	MediaSeen       int            `json:"media_seen"`
	RowsLoaded      int            `json:"rows_loaded"`
	ChannelCounts   map[string]int `json:"channel_counts"`
	ErrorCount      int            `json:"error_count"`
}

// NewService creates a new pipeline service
func NewService(cfg *config.Config, lake storage.Interface, source scraper.Source,
	messages messageLoader, detections detectionLoader, runner scriptRunner,
	notifier notifications.Notifier) *Service {
	return &Service{
		config:     cfg,
		lake:       lake,
		source:     source,
		messages:   messages,
		detections: detections,
		runner:     runner,
		notifier:   notifier,
		metrics: &Metrics{
			ChannelCounts: make(map[string]int),
		},
	}
}

// RunIngestion scrapes the registered channels and writes snapshots and
// media to the data lake
func (s *Service) RunIngestion() error {
	start := time.Now()
	report := s.newReport("ingestion", start)
	logrus.Infof("Starting ingestion run %s", report.RunID)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	if !s.source.Enabled() {
		err := fmt.Errorf("telegram source is not configured")
		s.finishRun(report, start, err)
		s.sendAlert("Ingestion run failed", err)
		return err
	}

	channels := make([]string, 0, len(s.config.Channels))
	for _, ch := range s.config.Channels {
		if ch.Active {
			channels = append(channels, ch.Name)
		}
	}

	posts, err := s.source.FetchPosts(ctx, channels, s.config.ScrapeLimit)
	if err != nil {
		s.finishRun(report, start, err)
		s.sendAlert("Ingestion run failed", err)
		return fmt.Errorf("scraping failed: %w", err)
	}
	logrus.Infof("Scraped %d posts from %d channels", len(posts), len(channels))

	byChannel := groupByChannel(posts)

	var wg sync.WaitGroup
	errorsChan := make(chan error, len(byChannel))
	mediaChan := make(chan int, len(byChannel))

	for name, messages := range byChannel {
		wg.Add(1)
		go func(name string, messages []models.RawMessage) {
			defer wg.Done()

			media, err := s.storeChannelSnapshot(ctx, name, messages, start)
			if err != nil {
				logrus.Errorf("Error storing snapshot for %s: %v", name, err)
				errorsChan <- err
				return
			}
			mediaChan <- media
		}(name, messages)
	}

	go func() {
		wg.Wait()
		close(errorsChan)
		close(mediaChan)
	}()

	for media := range mediaChan {
		report.MediaSeen += media
	}
	for range errorsChan {
		report.ErrorCount++
	}

	report.MessagesSeen = len(posts)
	for name, messages := range byChannel {
		report.ChannelCounts[name] = len(messages)
	}

	s.finishRun(report, start, nil)
	s.sendReport(report)
	logrus.Infof("Ingestion run %s completed in %v", report.RunID, time.Since(start))
	return nil
}

// storeChannelSnapshot downloads media for one channel's messages and
// writes the snapshot JSON to the lake. Returns the media count.
func (s *Service) storeChannelSnapshot(ctx context.Context, name string, messages []models.RawMessage, scrapeDate time.Time) (int, error) {
	media := 0
	for i := range messages {
		msg := &messages[i]
		if msg.Media == nil || msg.Media.FileID == "" {
			continue
		}

		fileName, data, err := s.source.DownloadMedia(ctx, msg.Media.FileID)
		if err != nil {
			logrus.Warnf("Media download failed for %s/%d: %v", name, msg.MessageID, err)
			continue
		}

		key := storage.MediaKey(name, msg.MessageID, fileName)
		if err := s.lake.Store(key, data); err != nil {
			return media, fmt.Errorf("storing media %s failed: %w", key, err)
		}
		msg.Media.LocalPath = key
		media++
	}

	snapshot := models.ChannelSnapshot{
		ChannelName:  name,
		ScrapeDate:   scrapeDate.UTC(),
		MessageCount: len(messages),
		Messages:     messages,
	}
	if len(messages) > 0 {
		snapshot.ChannelID = messages[0].ChannelID
	}

	data, err := json.Marshal(snapshot)
	if err != nil {
		return media, fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	key := storage.MessageKey(scrapeDate, name)
	if err := s.lake.Store(key, data); err != nil {
		return media, fmt.Errorf("storing snapshot %s failed: %w", key, err)
	}

	return media, nil
}

// RunLoad moves today's lake snapshots into the raw warehouse tables
func (s *Service) RunLoad() error {
	start := time.Now()
	report := s.newReport("load", start)
	logrus.Infof("Starting load run %s", report.RunID)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Minute)
	defer cancel()

	rows, err := s.messages.LoadDate(ctx, start.UTC())
	if err != nil {
		s.finishRun(report, start, err)
		s.sendAlert("Load run failed", err)
		return err
	}

	report.RowsLoaded = rows
	s.finishRun(report, start, nil)
	logrus.Infof("Load run %s completed, %d rows", report.RunID, rows)
	return nil
}

// RunTransform executes the warehouse transform scripts in lexical order
func (s *Service) RunTransform() error {
	start := time.Now()
	report := s.newReport("transform", start)
	logrus.Infof("Starting transform run %s", report.RunID)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	scripts, err := listTransformScripts(s.config.TransformScriptDir)
	if err != nil {
		s.finishRun(report, start, err)
		s.sendAlert("Transform run failed", err)
		return err
	}

	for _, script := range scripts {
		data, err := os.ReadFile(script)
		if err != nil {
			s.finishRun(report, start, err)
			s.sendAlert("Transform run failed", err)
			return fmt.Errorf("reading transform script %s failed: %w", script, err)
		}

		logrus.Infof("Running transform script %s", filepath.Base(script))
		if err := s.runner.RunScript(ctx, string(data)); err != nil {
			s.finishRun(report, start, err)
			s.sendAlert("Transform run failed", err)
			return fmt.Errorf("transform script %s failed: %w", script, err)
		}
	}

	s.finishRun(report, start, nil)
	logrus.Infof("Transform run %s completed, %d scripts", report.RunID, len(scripts))
	return nil
}

// RunDetectionLoad moves vision-model output into the warehouse
func (s *Service) RunDetectionLoad() error {
	start := time.Now()
	report := s.newReport("detections", start)
	logrus.Infof("Starting detection load run %s", report.RunID)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Minute)
	defer cancel()

	rows, err := s.detections.LoadAll(ctx)
	if err != nil {
		s.finishRun(report, start, err)
		s.sendAlert("Detection load failed", err)
		return err
	}

	report.RowsLoaded = rows
	s.finishRun(report, start, nil)
	logrus.Infof("Detection load run %s completed, %d rows", report.RunID, rows)
	return nil
}

// RunFull runs the whole pipeline end to end
func (s *Service) RunFull() error {
	logrus.Info("Starting full pipeline run")

	steps := []struct {
		name string
		run  func() error
	}{
		{"ingestion", s.RunIngestion},
		{"load", s.RunLoad},
		{"transform", s.RunTransform},
		{"detections", s.RunDetectionLoad},
	}

	for _, step := range steps {
		if err := step.run(); err != nil {
			return fmt.Errorf("full pipeline stopped at %s: %w", step.name, err)
		}
	}

	logrus.Info("Full pipeline run completed")
	return nil
}

// Trigger runs the named job. Used by the manual trigger endpoint.
func (s *Service) Trigger(job string) error {
	switch job {
	case "ingestion":
		return s.RunIngestion()
	case "load":
		return s.RunLoad()
	case "transform":
		return s.RunTransform()
	case "detections":
		return s.RunDetectionLoad()
	case "full":
		return s.RunFull()
	default:
		return fmt.Errorf("unknown job %q", job)
	}
}

func (s *Service) newReport(job string, start time.Time) *models.RunReport {
	return &models.RunReport{
		RunID:         uuid.New().String(),
		Job:           job,
		StartedAt:     start.UTC(),
		ChannelCounts: make(map[string]int),
	}
}

func (s *Service) finishRun(report *models.RunReport, start time.Time, err error) {
	report.Duration = time.Since(start).Round(time.Millisecond).String()
	report.Succeeded = err == nil && report.ErrorCount == 0
	if err != nil {
		report.ErrorCount++
	}
	s.updateMetrics(report)
}

func (s *Service) sendReport(report *models.RunReport) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.SendReport(report); err != nil {
		logrus.Errorf("Failed to send run report: %v", err)
	}
}

func (s *Service) sendAlert(subject string, cause error) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.SendAlert(subject, cause.Error()); err != nil {
		logrus.Errorf("Failed to send alert: %v", err)
	}
}

func (s *Service) updateMetrics(report *models.RunReport) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.metrics.LastRun = time.Now()
	s.metrics.LastRunDuration = report.Duration
	s.metrics.LastJob = report.Job
	s.metrics.RunsCompleted++
	s.metrics.ErrorCount += report.ErrorCount

	if report.Job == "ingestion" {
		s.metrics.MessagesSeen = report.MessagesSeen
		s.metrics.MediaSeen = report.MediaSeen
		s.metrics.ChannelCounts = make(map[string]int)
		for name, count := range report.ChannelCounts {
			s.metrics.ChannelCounts[name] = count
		}
	}
	if report.RowsLoaded > 0 {
		s.metrics.RowsLoaded = report.RowsLoaded
	}
}

// GetMetrics returns current metrics as JSON
func (s *Service) GetMetrics() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, _ := json.MarshalIndent(s.metrics, "", "  ")
	return string(data)
}

func groupByChannel(posts []models.RawMessage) map[string][]models.RawMessage {
	byChannel := make(map[string][]models.RawMessage)
	for _, post := range posts {
		byChannel[post.ChannelName] = append(byChannel[post.ChannelName], post)
	}
	return byChannel
}

// listTransformScripts returns the .sql files in dir in lexical order so
// numbered scripts run in sequence
func listTransformScripts(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading transform directory %s failed: %w", dir, err)
	}

	var scripts []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		scripts = append(scripts, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(scripts)
	return scripts, nil
}
