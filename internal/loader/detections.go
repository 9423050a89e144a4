package loader

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"

	"github.com/medscope/telegram-insights/internal/models"
	"github.com/medscope/telegram-insights/internal/storage"
)

const insertDetectionSQL = `
	INSERT INTO raw.image_detections (
		message_id, channel_name, image_path,
		detected_object_class, confidence_score, confidence_level, is_medical_related,
		bbox_x1, bbox_y1, bbox_x2, bbox_y2, detection_area, detection_time
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	ON CONFLICT DO NOTHING`

// medicalObjectClasses are the detector classes treated as medically
// relevant in channel imagery.
var medicalObjectClasses = map[string]bool{
	"person": true, "bottle": true, "cup": true, "bowl": true,
	"chair": true, "couch": true, "bed": true, "dining table": true,
	"tv": true, "laptop": true, "mouse": true, "remote": true,
	"keyboard": true, "cell phone": true, "book": true, "clock": true,
	"vase": true, "scissors": true, "teddy bear": true,
	"hair drier": true, "toothbrush": true,
}

// DetectionLoader moves vision-model output files from the data lake into
// the raw warehouse table.
type DetectionLoader struct {
	lake storage.Interface
	db   batchExecutor
}

func NewDetectionLoader(lake storage.Interface, db batchExecutor) *DetectionLoader {
	return &DetectionLoader{lake: lake, db: db}
}

// LoadAll reads every detection file under the enriched prefix and inserts
// one row per detected object. Returns the number of rows queued.
func (l *DetectionLoader) LoadAll(ctx context.Context) (int, error) {
	keys, err := l.lake.List(storage.DetectionPrefix)
	if err != nil {
		return 0, fmt.Errorf("listing detection files failed: %w", err)
	}

	batch := &pgx.Batch{}
	rows := 0
	for _, key := range keys {
		if !strings.HasSuffix(key, ".json") {
			continue
		}

		data, err := l.lake.Retrieve(key)
		if err != nil {
			return 0, fmt.Errorf("retrieving detection file %s failed: %w", key, err)
		}

		var file models.DetectionFile
		if err := json.Unmarshal(data, &file); err != nil {
			return 0, fmt.Errorf("decoding detection file %s failed: %w", key, err)
		}

		rows += queueDetections(batch, &file)
	}

	if err := l.db.Batch(ctx, batch); err != nil {
		return 0, fmt.Errorf("loading detections failed: %w", err)
	}

	logrus.Infof("Loaded %d detection rows from %d files", rows, len(keys))
	return rows, nil
}

func queueDetections(batch *pgx.Batch, file *models.DetectionFile) int {
	for _, det := range file.Detections {
		batch.Queue(insertDetectionSQL,
			file.MessageID, file.ChannelName, file.ImagePath,
			det.ClassName, det.Confidence, confidenceLevel(det.Confidence),
			medicalObjectClasses[det.ClassName],
			det.BBox.X1, det.BBox.Y1, det.BBox.X2, det.BBox.Y2,
			det.Area, det.DetectionTime,
		)
	}
	return len(file.Detections)
}

// confidenceLevel buckets a detection score for reporting
func confidenceLevel(score float64) string {
	switch {
	case score >= 0.8:
		return "high"
	case score >= 0.5:
		return "medium"
	default:
		return "low"
	}
}
