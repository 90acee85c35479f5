package correlate

import (
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/orcastack/orca-monitor/internal/models"
)

// Correlator groups freshly inserted insights that plausibly share a root
// cause into incidents. It is a pure post-processing step: it only ever sees
// insights the store actually accepted, never suppressed duplicates.
type Correlator struct {
	logger *slog.Logger
	newID  func() string
}

func NewCorrelator(logger *slog.Logger) *Correlator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Correlator{
		logger: logger,
		newID:  func() string { return uuid.NewString() },
	}
}

// Correlate buckets insights by container and returns the incidents formed
// from buckets with at least two insights. A lone insight stays ungrouped:
// one symptom is not yet an incident.
func (c *Correlator) Correlate(insights []models.Insight, now time.Time) ([]models.Incident, models.CorrelationSummary) {
	if len(insights) < 2 {
		return nil, models.CorrelationSummary{}
	}

	byContainer := make(map[string][]models.Insight)
	for _, ins := range insights {
		byContainer[ins.ContainerID] = append(byContainer[ins.ContainerID], ins)
	}

	containers := make([]string, 0, len(byContainer))
	for id := range byContainer {
		containers = append(containers, id)
	}
	sort.Strings(containers)

	var incidents []models.Incident
	grouped := 0
	for _, containerID := range containers {
		group := byContainer[containerID]
		if len(group) < 2 {
			continue
		}
		incident := models.Incident{
			ID:        c.newID(),
			CreatedAt: now,
		}
		for _, ins := range group {
			incident.InsightIDs = append(incident.InsightIDs, ins.ID)
		}
		incidents = append(incidents, incident)
		grouped += len(group)

		c.logger.Info("correlated insights into incident",
			slog.String("incident_id", incident.ID),
			slog.String("container_id", containerID),
			slog.Int("insights", len(group)))
	}

	return incidents, models.CorrelationSummary{
		IncidentsCreated: len(incidents),
		InsightsGrouped:  grouped,
	}
}
