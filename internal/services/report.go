package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/teampulse/insight/internal/models"
	"github.com/teampulse/insight/pkg/logger"
	"github.com/teampulse/insight/pkg/response"
	"gorm.io/gorm"
)

// ArtifactRepository persists report artifact records.
type ArtifactRepository interface {
	Create(ctx context.Context, a *models.ReportArtifact) error
	// Get returns nil, nil when the artifact does not exist.
	Get(ctx context.Context, id string) (*models.ReportArtifact, error)
	ListExpired(ctx context.Context, now time.Time) ([]models.ReportArtifact, error)
	Delete(ctx context.Context, ids []string) error
}

type GormArtifactRepository struct {
	db *gorm.DB
}

func NewGormArtifactRepository(db *gorm.DB) *GormArtifactRepository {
	return &GormArtifactRepository{db: db}
}

func (r *GormArtifactRepository) Create(ctx context.Context, a *models.ReportArtifact) error {
	return r.db.WithContext(ctx).Create(a).Error
}

func (r *GormArtifactRepository) Get(ctx context.Context, id string) (*models.ReportArtifact, error) {
	var a models.ReportArtifact
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *GormArtifactRepository) ListExpired(ctx context.Context, now time.Time) ([]models.ReportArtifact, error) {
	var list []models.ReportArtifact
	err := r.db.WithContext(ctx).Where("expires_at <= ?", now).Find(&list).Error
	return list, err
}

func (r *GormArtifactRepository) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Where("id IN ?", ids).Delete(&models.ReportArtifact{}).Error
}

// ReportResult references a generated artifact.
type ReportResult struct {
	ArtifactID  string    `json:"artifact_id"`
	DownloadRef string    `json:"download_ref"`
	HealthScore int       `json:"health_score"`
	Cached      bool      `json:"cached"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func downloadRef(id string) string {
	return "/api/reports/" + id + "/download"
}

// GenerateReport renders an advisory report for one project, or for the
// actor's whole scope when projectID is nil. A report generated for the same
// actor and scope within the reuse window is returned instead of re-rendering,
// as long as no status change has been committed since.
func (s *InsightService) GenerateReport(ctx context.Context, actor Actor, projectID *uint) (*ReportResult, error) {
	ctx = context.WithoutCancel(ctx)

	var (
		key     CacheKey
		scope   *Scope
		project *ProjectAnalytics
		label   string
		gen     uint64
		genErr  error
		err     error
	)
	// The generation is read before the snapshot so a concurrent commit can
	// only make the entry older than its key, never newer.
	if projectID != nil {
		gen, genErr = s.gens.Project(ctx, *projectID)
		key = CacheKey{ActorID: actor.ID, Kind: KindReport, Query: fmt.Sprintf("project:%d", *projectID), Generation: gen}
		if scope, err = s.planner.Project(ctx, actor, *projectID); err != nil {
			return nil, err
		}
		p := scope.Projects[0]
		label = "project " + p.Name
		project = buildProjectAnalytics(p, scope.Names(), scope.Level == AccessSelf, s.now(), s.th)
	} else {
		gen, genErr = s.gens.Global(ctx)
		key = CacheKey{ActorID: actor.ID, Kind: KindReport, Query: "summary", Generation: gen}
		if scope, err = s.planner.Summary(ctx, actor); err != nil {
			return nil, err
		}
		label = scopeLabel(scope)
	}
	useCache := genErr == nil
	if !useCache {
		logger.Warn().Err(genErr).Uint("actor", actor.ID).Msg("[Report] Generation unavailable, bypassing cache")
	}

	if useCache {
		if cached := s.cachedReport(ctx, key); cached != nil {
			return cached, nil
		}
	}

	adv := s.evaluate(ctx, scope, label, "")
	now := s.now()
	id := uuid.New().String()
	fileName := fmt.Sprintf("insight-report-%s.pdf", now.Format("20060102-150405"))

	if err := os.MkdirAll(s.reportDir, 0o755); err != nil {
		return nil, fmt.Errorf("create report dir: %w", err)
	}
	path := filepath.Join(s.reportDir, id+".pdf")

	data := &ReportData{
		Title:       "Progress report: " + label,
		Owner:       actor.Name,
		GeneratedAt: now,
		Advisory:    adv,
		Project:     project,
	}
	if err := s.renderer.Render(ctx, data, path); err != nil {
		reportRenders.WithLabelValues("error").Inc()
		_ = os.Remove(path)
		logger.Error().Err(err).Uint("actor", actor.ID).Str("scope", label).Msg("[Report] Render failed")
		return nil, response.NewUpstreamUnavailable("report renderer is unavailable, try again later")
	}
	reportRenders.WithLabelValues("ok").Inc()

	artifact := &models.ReportArtifact{
		ID:          id,
		OwnerID:     actor.ID,
		ProjectID:   projectID,
		FilePath:    path,
		FileName:    fileName,
		HealthScore: adv.HealthScore,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.retention),
	}
	if err := s.artifacts.Create(ctx, artifact); err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("save report artifact: %w", err)
	}

	result := &ReportResult{
		ArtifactID:  id,
		DownloadRef: downloadRef(id),
		HealthScore: adv.HealthScore,
		ExpiresAt:   artifact.ExpiresAt,
	}
	if payload, err := json.Marshal(result); err == nil && useCache {
		if err := s.cache.Put(ctx, key, payload, s.reportTTL); err != nil {
			logger.Warn().Err(err).Str("artifact", id).Msg("[Report] Failed to cache artifact reference")
		}
	}
	logger.Info().Str("artifact", id).Uint("actor", actor.ID).Str("scope", label).Int("health", adv.HealthScore).Msg("[Report] Generated")
	return result, nil
}

// cachedReport returns the cached reference only while the artifact it
// points to is still retained.
func (s *InsightService) cachedReport(ctx context.Context, key CacheKey) *ReportResult {
	payload, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		logger.Warn().Err(err).Msg("[Report] Cache read failed, regenerating")
		return nil
	}
	if !ok {
		return nil
	}
	var result ReportResult
	if err := json.Unmarshal(payload, &result); err != nil {
		_ = s.cache.Delete(ctx, key)
		return nil
	}
	artifact, err := s.artifacts.Get(ctx, result.ArtifactID)
	if err != nil || artifact == nil || !s.now().Before(artifact.ExpiresAt) {
		_ = s.cache.Delete(ctx, key)
		return nil
	}
	result.Cached = true
	return &result
}

// ReportArtifact returns an artifact for download. Only its owner may fetch it.
func (s *InsightService) ReportArtifact(ctx context.Context, actor Actor, id string) (*models.ReportArtifact, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, response.NewBadRequest("invalid report id")
	}
	artifact, err := s.artifacts.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load report artifact: %w", err)
	}
	if artifact == nil || !s.now().Before(artifact.ExpiresAt) {
		return nil, response.NewNotFound("report not found")
	}
	if artifact.OwnerID != actor.ID {
		return nil, response.NewForbidden("report belongs to another user")
	}
	return artifact, nil
}

// PurgeExpiredArtifacts deletes artifacts past retention, files first.
func (s *InsightService) PurgeExpiredArtifacts(ctx context.Context) (int, error) {
	expired, err := s.artifacts.ListExpired(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("list expired artifacts: %w", err)
	}
	if len(expired) == 0 {
		return 0, nil
	}

	ids := make([]string, 0, len(expired))
	for _, a := range expired {
		if err := os.Remove(a.FilePath); err != nil && !os.IsNotExist(err) {
			logger.Warn().Err(err).Str("artifact", a.ID).Msg("[Report] Failed to remove artifact file")
			continue
		}
		ids = append(ids, a.ID)
	}
	if err := s.artifacts.Delete(ctx, ids); err != nil {
		return 0, fmt.Errorf("delete artifact records: %w", err)
	}
	return len(ids), nil
}

// SweepCache evicts expired cache entries when the store supports it.
func (s *InsightService) SweepCache(ctx context.Context) (int, error) {
	if sw, ok := s.cache.(Sweeper); ok {
		return sw.Sweep(ctx)
	}
	return 0, nil
}
