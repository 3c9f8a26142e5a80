package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"sort"
	"strings"

	"github.com/qri-io/jsonschema"
	"gorm.io/gorm"

	"choraid-server/models"
	"choraid-server/utils"
)

const (
	SourceLLM       = "llm"
	SourceHeuristic = "heuristic"
)

// RankRequest asks for candidate workers to be ranked for a job
type RankRequest struct {
	JobID     uint   `json:"jobId" binding:"required"`
	WorkerIDs []uint `json:"workerIds"`
}

// TipsRequest asks for free-text advice about a job
type TipsRequest struct {
	JobID uint `json:"jobId" binding:"required"`
}

// WorkerRanking is one ranked candidate
type WorkerRanking struct {
	WorkerID uint           `json:"workerId"`
	Score    float64        `json:"score"`
	Reason   string         `json:"reason"`
	Worker   *models.Worker `json:"worker,omitempty"`
}

// RankResult is the ordered ranking of a job's candidates
type RankResult struct {
	JobID    uint            `json:"jobId"`
	Source   string          `json:"source"`
	Provider string          `json:"provider,omitempty"`
	Rankings []WorkerRanking `json:"rankings"`
}

type TipsResult struct {
	JobID    uint   `json:"jobId"`
	Provider string `json:"provider"`
	Tips     string `json:"tips"`
}

// MatchingService ranks workers for jobs and writes tips, using an LLM when one is configured
type MatchingService struct {
	db            *gorm.DB
	llm           LLM
	schema        *jsonschema.Schema
	prompts       *PromptCatalog
	maxCandidates int
}

func NewMatchingService(db *gorm.DB, llm LLM, maxCandidates int) (*MatchingService, error) {
	rs := &jsonschema.Schema{}
	if err := json.Unmarshal(rankingSchemaJSON, rs); err != nil {
		return nil, fmt.Errorf("compile ranking schema: %w", err)
	}
	prompts, err := DefaultPromptCatalog()
	if err != nil {
		return nil, err
	}
	if maxCandidates <= 0 {
		maxCandidates = 10
	}
	return &MatchingService{db: db, llm: llm, schema: rs, prompts: prompts, maxCandidates: maxCandidates}, nil
}

// Provider names the configured LLM, or "" when ranking is heuristic only
func (s *MatchingService) Provider() string {
	if s.llm == nil {
		return ""
	}
	return s.llm.Name()
}

type jobPromptView struct {
	ID          uint
	Title       string
	Description string
	Category    string
	Budget      string
	City        string
}

type candidatePromptView struct {
	ID            uint
	Name          string
	Skills        []string
	Rating        float64
	Reviews       int
	CompletedJobs int
	Verified      bool
	HourlyRate    string
	HasDistance   bool
	DistanceKm    float64
}

func newJobPromptView(job *models.Job) jobPromptView {
	return jobPromptView{
		ID:          job.ID,
		Title:       job.Title,
		Description: job.Description,
		Category:    job.Category.Name,
		Budget:      fmt.Sprintf("%s - %s", formatAmount(job.BudgetMin, job.Currency), formatAmount(job.BudgetMax, job.Currency)),
		City:        job.City,
	}
}

// Rank orders candidate workers for a job. Candidates are the given worker
// ids, or else available workers of the job's category.
func (s *MatchingService) Rank(ctx context.Context, actor *models.Profile, req RankRequest) (*RankResult, error) {
	job, err := s.loadJob(ctx, req.JobID)
	if err != nil {
		return nil, err
	}
	if job.ClientID != actor.ID && !actor.IsAdmin() {
		return nil, fmt.Errorf("job %d belongs to another client: %w", job.ID, ErrForbidden)
	}

	candidates, err := s.candidates(ctx, job, req.WorkerIDs)
	if err != nil {
		return nil, err
	}

	result := &RankResult{JobID: job.ID, Source: SourceHeuristic, Rankings: []WorkerRanking{}}
	if len(candidates) == 0 {
		return result, nil
	}

	if s.llm == nil {
		result.Rankings = HeuristicRank(job, candidates)
		return result, nil
	}

	prompt, err := s.prompts.Render("rank_workers", map[string]any{
		"Job":        newJobPromptView(job),
		"Candidates": candidateViews(job, candidates),
	})
	if err != nil {
		return nil, err
	}

	log.Printf("🤖 Ranking %d workers for job %d with %s", len(candidates), job.ID, s.llm.Name())
	out, err := s.llm.Generate(ctx, prompt, true)
	if err != nil {
		return nil, err
	}

	rankings, err := s.parseRankings(ctx, out)
	if err != nil {
		log.Printf("❌ Invalid ranking output for job %d: %v", job.ID, err)
		return nil, err
	}

	result.Source = SourceLLM
	result.Provider = s.llm.Name()
	result.Rankings = mergeRankings(rankings, candidates)
	return result, nil
}

// Tips asks the LLM for advice tailored to the caller's side of the job
func (s *MatchingService) Tips(ctx context.Context, actor *models.Profile, req TipsRequest) (*TipsResult, error) {
	if s.llm == nil {
		return nil, fmt.Errorf("no LLM provider configured: %w", ErrDisabled)
	}
	job, err := s.loadJob(ctx, req.JobID)
	if err != nil {
		return nil, err
	}

	audience := "client"
	switch {
	case job.ClientID == actor.ID || actor.IsAdmin():
	case actor.IsWorker():
		worker, err := workerByProfile(s.db.WithContext(ctx), actor.ID)
		if err != nil {
			return nil, err
		}
		var applied int64
		if err := s.db.WithContext(ctx).Model(&models.Application{}).
			Where("job_id = ? AND worker_id = ?", job.ID, worker.ID).
			Count(&applied).Error; err != nil {
			return nil, err
		}
		if applied == 0 && (job.AssignedWorkerID == nil || *job.AssignedWorkerID != worker.ID) {
			return nil, fmt.Errorf("worker has not applied to job %d: %w", job.ID, ErrForbidden)
		}
		audience = "worker"
	default:
		return nil, fmt.Errorf("job %d: %w", job.ID, ErrForbidden)
	}

	prompt, err := s.prompts.Render("job_tips", map[string]any{
		"Audience": audience,
		"Job":      newJobPromptView(job),
	})
	if err != nil {
		return nil, err
	}

	out, err := s.llm.Generate(ctx, prompt, false)
	if err != nil {
		return nil, err
	}
	tips := strings.TrimSpace(out)
	if tips == "" {
		return nil, fmt.Errorf("empty tips from %s: %w", s.llm.Name(), ErrUpstream)
	}
	return &TipsResult{JobID: job.ID, Provider: s.llm.Name(), Tips: tips}, nil
}

func (s *MatchingService) loadJob(ctx context.Context, id uint) (*models.Job, error) {
	var job models.Job
	if err := s.db.WithContext(ctx).Preload("Category").First(&job, id).Error; err != nil {
		return nil, wrapNotFound(err, "job", id)
	}
	return &job, nil
}

func (s *MatchingService) candidates(ctx context.Context, job *models.Job, ids []uint) ([]models.Worker, error) {
	var workers []models.Worker
	if len(ids) == 0 {
		if err := s.db.WithContext(ctx).
			Preload("Profile").
			Where("category_id = ? AND is_available = ? AND profile_id <> ?", job.CategoryID, true, job.ClientID).
			Order("rating DESC, total_reviews DESC, id ASC").
			Limit(s.maxCandidates).
			Find(&workers).Error; err != nil {
			return nil, err
		}
		return workers, nil
	}

	seen := make(map[uint]bool, len(ids))
	unique := make([]uint, 0, len(ids))
	for _, id := range ids {
		if id != 0 && !seen[id] {
			seen[id] = true
			unique = append(unique, id)
		}
	}
	if len(unique) > s.maxCandidates {
		return nil, fmt.Errorf("at most %d workers can be ranked at once: %w", s.maxCandidates, ErrValidation)
	}

	if err := s.db.WithContext(ctx).Preload("Profile").Where("id IN ?", unique).Find(&workers).Error; err != nil {
		return nil, err
	}
	if len(workers) != len(unique) {
		found := make(map[uint]bool, len(workers))
		for _, w := range workers {
			found[w.ID] = true
		}
		var missing []string
		for _, id := range unique {
			if !found[id] {
				missing = append(missing, fmt.Sprint(id))
			}
		}
		return nil, fmt.Errorf("unknown workers %s: %w", strings.Join(missing, ", "), ErrValidation)
	}

	// keep the caller's order
	order := make(map[uint]int, len(unique))
	for i, id := range unique {
		order[id] = i
	}
	sort.SliceStable(workers, func(i, j int) bool { return order[workers[i].ID] < order[workers[j].ID] })
	return workers, nil
}

func candidateViews(job *models.Job, workers []models.Worker) []candidatePromptView {
	jobLoc := utils.NewLocation(job.Lat, job.Lng)
	views := make([]candidatePromptView, 0, len(workers))
	for _, w := range workers {
		v := candidatePromptView{
			ID:            w.ID,
			Name:          w.Profile.FullName,
			Skills:        []string(w.Skills),
			Rating:        w.Rating,
			Reviews:       w.TotalReviews,
			CompletedJobs: w.CompletedJobs,
			Verified:      w.IsVerified,
			HourlyRate:    formatAmount(w.HourlyRate, job.Currency),
		}
		if d, ok := utils.DistanceKm(jobLoc, utils.NewLocation(w.Lat, w.Lng)); ok {
			v.HasDistance = true
			v.DistanceKm = d
		}
		views = append(views, v)
	}
	return views
}

type rankingPayload struct {
	Rankings []struct {
		WorkerID float64 `json:"workerId"`
		Score    float64 `json:"score"`
		Reason   string  `json:"reason"`
	} `json:"rankings"`
}

// parseRankings extracts the JSON object from model output and validates it against the ranking schema
func (s *MatchingService) parseRankings(ctx context.Context, out string) ([]WorkerRanking, error) {
	j := extractJSON(out)
	if j == "" {
		return nil, fmt.Errorf("no JSON object in model output: %w", ErrUpstream)
	}

	verrs, err := s.schema.ValidateBytes(ctx, []byte(j))
	if err != nil {
		return nil, fmt.Errorf("validate ranking: %v: %w", err, ErrUpstream)
	}
	if len(verrs) > 0 {
		msgs := make([]string, 0, len(verrs))
		for _, v := range verrs {
			msgs = append(msgs, v.Message)
		}
		return nil, fmt.Errorf("ranking does not match schema: %s: %w", strings.Join(msgs, "; "), ErrUpstream)
	}

	var payload rankingPayload
	if err := json.Unmarshal([]byte(j), &payload); err != nil {
		return nil, fmt.Errorf("decode ranking: %v: %w", err, ErrUpstream)
	}

	rankings := make([]WorkerRanking, 0, len(payload.Rankings))
	for _, r := range payload.Rankings {
		rankings = append(rankings, WorkerRanking{
			WorkerID: uint(r.WorkerID),
			Score:    math.Round(r.Score*10) / 10,
			Reason:   strings.TrimSpace(r.Reason),
		})
	}
	return rankings, nil
}

// mergeRankings drops ids outside the candidate set and duplicates, appends
// candidates the model left out with score 0, and sorts by score.
func mergeRankings(rankings []WorkerRanking, candidates []models.Worker) []WorkerRanking {
	byID := make(map[uint]*models.Worker, len(candidates))
	for i := range candidates {
		byID[candidates[i].ID] = &candidates[i]
	}

	out := make([]WorkerRanking, 0, len(candidates))
	seen := make(map[uint]bool, len(candidates))
	for _, r := range rankings {
		w, ok := byID[r.WorkerID]
		if !ok || seen[r.WorkerID] {
			continue
		}
		seen[r.WorkerID] = true
		r.Worker = w
		out = append(out, r)
	}
	for i := range candidates {
		if seen[candidates[i].ID] {
			continue
		}
		out = append(out, WorkerRanking{
			WorkerID: candidates[i].ID,
			Score:    0,
			Reason:   "not ranked by the model",
			Worker:   &candidates[i],
		})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// HeuristicRank scores candidates from their track record when no LLM is available.
// Rating is worth up to 60 points, reviews 10, completed jobs 10, verification 10 and proximity 10.
func HeuristicRank(job *models.Job, candidates []models.Worker) []WorkerRanking {
	jobLoc := utils.NewLocation(job.Lat, job.Lng)
	out := make([]WorkerRanking, 0, len(candidates))

	for i := range candidates {
		w := &candidates[i]
		score := w.Rating / 5 * 60
		score += math.Min(float64(w.TotalReviews), 50) / 50 * 10
		score += math.Min(float64(w.CompletedJobs), 20) / 20 * 10

		var reasons []string
		reasons = append(reasons, fmt.Sprintf("rated %.1f from %d reviews", w.Rating, w.TotalReviews))
		if w.IsVerified {
			score += 10
			reasons = append(reasons, "verified")
		}
		if d, ok := utils.DistanceKm(jobLoc, utils.NewLocation(w.Lat, w.Lng)); ok {
			score += math.Max(0, 1-d/50) * 10
			reasons = append(reasons, fmt.Sprintf("%.1f km away", d))
		} else {
			score += 5
		}
		if w.CategoryID == job.CategoryID {
			reasons = append(reasons, "works in this category")
		}

		out = append(out, WorkerRanking{
			WorkerID: w.ID,
			Score:    math.Round(math.Min(score, 100)*10) / 10,
			Reason:   strings.Join(reasons, ", "),
			Worker:   w,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].WorkerID < out[j].WorkerID
	})
	return out
}

// extractJSON returns the first complete JSON object embedded in s
func extractJSON(s string) string {
	for start := strings.Index(s, "{"); start != -1; {
		var obj json.RawMessage
		if err := json.NewDecoder(strings.NewReader(s[start:])).Decode(&obj); err == nil {
			return string(obj)
		}
		next := strings.Index(s[start+1:], "{")
		if next == -1 {
			break
		}
		start += next + 1
	}
	return ""
}
