package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"mosaic/internal/logging"
	"mosaic/internal/models"
)

// Checkpoint progress values. Checkpoints are strictly ordered; progress
// only ever moves forward while a task is active.
const (
	progressStarted       = 10
	progressDecodeStart   = 20
	progressDecodeDone    = 40
	progressExpandDone    = 60
	progressSearchDone    = 80
	taskCeilingTimeout    = 10 * time.Minute
	historyKeywordsToFeed = 10
)

// Store surfaces the orchestrator needs, narrowed for testability.
// The concrete Mongo stores satisfy them.
type orchestratorTaskStore interface {
	Create(ctx context.Context, task *models.Task) error
	GetByID(ctx context.Context, userID string, taskID primitive.ObjectID) (*models.Task, error)
	FindActiveForUpload(ctx context.Context, uploadID primitive.ObjectID) (*models.Task, error)
	MarkProcessing(ctx context.Context, taskID primitive.ObjectID, progress int) error
	Checkpoint(ctx context.Context, taskID primitive.ObjectID, progress int, taskContext map[string]interface{}) error
	MarkCompleted(ctx context.Context, taskID primitive.ObjectID, taskContext map[string]interface{}) error
	MarkFailed(ctx context.Context, taskID primitive.ObjectID, taskErr string) error
}

type orchestratorUploadStore interface {
	GetByID(ctx context.Context, userID string, uploadID primitive.ObjectID) (*models.Upload, error)
}

type orchestratorAnalysisStore interface {
	Create(ctx context.Context, analysis *models.Analysis) error
	Complete(ctx context.Context, analysisID primitive.ObjectID, fullContext map[string]interface{}) error
	MarkFailedByUpload(ctx context.Context, uploadID primitive.ObjectID, analysisErr string) error
	InsertRecommendations(ctx context.Context, recs []models.Recommendation) ([]models.Recommendation, error)
}

type preferenceReader interface {
	Get(ctx context.Context, userID string) (*models.UserPreference, error)
}

// Orchestrator drives one task through the fixed Decode -> Expand ->
// Mosaic state machine, persisting progress checkpoints and the
// accumulating context so pollers can render partial results. A failed
// task is terminal; resubmission is the only retry.
type Orchestrator struct {
	tasks         orchestratorTaskStore
	uploads       orchestratorUploadStore
	analyses      orchestratorAnalysisStore
	prefs         preferenceReader
	understanding UnderstandingProvider
	fetcher       FetchProvider
	ranker        *Ranker
	generator     *Generator

	recommendationCount int
	maxAnalysisChars    int
}

// NewOrchestrator wires the pipeline orchestrator
func NewOrchestrator(
	tasks *TaskStore,
	uploads *UploadStore,
	analyses *AnalysisStore,
	prefs *PreferenceStore,
	understanding UnderstandingProvider,
	fetcher FetchProvider,
	ranker *Ranker,
	generator *Generator,
	recommendationCount int,
	maxAnalysisChars int,
) *Orchestrator {
	return &Orchestrator{
		tasks:               tasks,
		uploads:             uploads,
		analyses:            analyses,
		prefs:               prefs,
		understanding:       understanding,
		fetcher:             fetcher,
		ranker:              ranker,
		generator:           generator,
		recommendationCount: recommendationCount,
		maxAnalysisChars:    maxAnalysisChars,
	}
}

// Submit validates ownership and schedules an analysis run without
// blocking the caller. Submission is idempotent: while a task for the same
// upload is still active, the existing task is returned instead of a new
// one.
func (o *Orchestrator) Submit(ctx context.Context, userID string, uploadID primitive.ObjectID) (*models.Task, bool, error) {
	upload, err := o.uploads.GetByID(ctx, userID, uploadID)
	if err != nil {
		return nil, false, err
	}

	if active, err := o.tasks.FindActiveForUpload(ctx, uploadID); err != nil {
		return nil, false, err
	} else if active != nil {
		log.Printf("♻️ [ORCHESTRATOR] Task %s already active for upload %s", active.ID.Hex(), uploadID.Hex())
		return active, true, nil
	}

	task := &models.Task{
		UserID:   userID,
		UploadID: uploadID,
		Status:   models.TaskStatusPending,
		Progress: 0,
	}
	if err := o.tasks.Create(ctx, task); err != nil {
		return nil, false, err
	}

	// Detach from the request context: the task outlives the submit call
	go o.run(task, upload)

	log.Printf("🚀 [ORCHESTRATOR] Task %s scheduled for upload %s (type: %s)",
		task.ID.Hex(), uploadID.Hex(), upload.Type)
	return task, false, nil
}

// Status returns the task for status polling, scoped to user
func (o *Orchestrator) Status(ctx context.Context, userID string, taskID primitive.ObjectID) (*models.Task, error) {
	return o.tasks.GetByID(ctx, userID, taskID)
}

// run executes the four-checkpoint state machine for one task
func (o *Orchestrator) run(task *models.Task, upload *models.Upload) {
	ctx, cancel := context.WithTimeout(context.Background(), taskCeilingTimeout)
	defer cancel()

	taskID := task.ID
	taskContext := map[string]interface{}{}
	tlog := logging.WithTask(taskID.Hex(), upload.ID.Hex(), task.UserID)
	tlog.Debug("pipeline started", "upload_type", upload.Type)

	if err := o.tasks.MarkProcessing(ctx, taskID, progressStarted); err != nil {
		// Leaving the task pending would block resubmission forever
		o.fail(ctx, taskID, upload.ID, fmt.Errorf("failed to start: %w", err))
		return
	}

	taskContext["step_message"] = "Preparing content..."
	o.checkpoint(ctx, taskID, progressDecodeStart, taskContext)

	// Step 1: Deep Decode
	log.Printf("🔍 [ORCHESTRATOR] Task %s step 1: deep decode (%s)", taskID.Hex(), upload.Type)
	decoded, err := o.decode(ctx, upload)
	if err != nil {
		o.fail(ctx, taskID, upload.ID, fmt.Errorf("decode failed: %w", err))
		return
	}
	taskContext["deep_decode"] = map[string]interface{}{
		"visual_description":   decoded.visualDescription,
		"extracted_text":       decoded.extractedText,
		"content_for_analysis": decoded.contentForAnalysis,
	}
	taskContext["step_message"] = "Deep decode complete."
	o.checkpoint(ctx, taskID, progressDecodeDone, taskContext)

	// Step 2: Contextual Expand
	log.Printf("🧭 [ORCHESTRATOR] Task %s step 2: contextual expand", taskID.Hex())
	prefs, err := o.prefs.Get(ctx, task.UserID)
	if err != nil {
		log.Printf("⚠️ [ORCHESTRATOR] Task %s preference load failed, continuing without history: %v", taskID.Hex(), err)
		prefs = &models.UserPreference{UserID: task.UserID}
	}
	history := tail(prefs.LikedKeywords, historyKeywordsToFeed)

	judgment, err := o.understanding.JudgeIntent(ctx, decoded.contentForAnalysis, decoded.visualDescription, history)
	if err != nil {
		o.fail(ctx, taskID, upload.ID, fmt.Errorf("expand failed: %w", err))
		return
	}

	// Persist the analysis now so partial results stay queryable even if
	// the mosaic stage fails later
	analysis := &models.Analysis{
		UploadID:          upload.ID,
		UserID:            task.UserID,
		VisualDescription: decoded.visualDescription,
		ExtractedText:     decoded.extractedText,
		IntentJudgment:    judgment,
		Keywords:          judgment.Keywords,
		InterestTags:      judgment.InterestTags,
		Status:            models.AnalysisStatusExpandComplete,
	}
	if err := o.analyses.Create(ctx, analysis); err != nil {
		o.fail(ctx, taskID, upload.ID, fmt.Errorf("expand failed: %w", err))
		return
	}
	taskContext["contextual_expand"] = judgment
	taskContext["step_message"] = "Contextual expand complete."
	o.checkpoint(ctx, taskID, progressExpandDone, taskContext)

	// Step 3: Dynamic Mosaic
	log.Printf("🧩 [ORCHESTRATOR] Task %s step 3: dynamic mosaic", taskID.Hex())
	outcome, err := o.ranker.Rank(ctx, judgment, prefs, o.recommendationCount)
	if err != nil {
		o.fail(ctx, taskID, upload.ID, fmt.Errorf("mosaic failed: %w", err))
		return
	}
	taskContext["search_results"] = outcome.SearchResults
	taskContext["step_message"] = "Search complete, building recommendations..."
	o.checkpoint(ctx, taskID, progressSearchDone, taskContext)

	for i := range outcome.Recommendations {
		outcome.Recommendations[i].AnalysisID = analysis.ID
		outcome.Recommendations[i].UserID = task.UserID
	}
	saved, err := o.analyses.InsertRecommendations(ctx, outcome.Recommendations)
	if err != nil {
		o.fail(ctx, taskID, upload.ID, fmt.Errorf("mosaic failed: %w", err))
		return
	}

	taskContext["final_result"] = map[string]interface{}{
		"analysis_id":           analysis.ID.Hex(),
		"upload_id":             upload.ID.Hex(),
		"recommendations_count": len(saved),
		"rank_mode":             string(outcome.Mode),
		"keywords":              judgment.Keywords,
		"interest_tags":         judgment.InterestTags,
	}
	taskContext["step_message"] = "Dynamic mosaic complete."

	if err := o.analyses.Complete(ctx, analysis.ID, taskContext); err != nil {
		log.Printf("⚠️ [ORCHESTRATOR] Task %s failed to finalize analysis: %v", taskID.Hex(), err)
	}

	// Long-form articles are generated in the background; task completion
	// does not wait for them
	go o.generator.GenerateBatch(context.Background(), saved, outcome.SearchResults)

	if err := o.tasks.MarkCompleted(ctx, taskID, taskContext); err != nil {
		log.Printf("❌ [ORCHESTRATOR] Task %s failed to complete: %v", taskID.Hex(), err)
		return
	}
	log.Printf("✅ [ORCHESTRATOR] Task %s completed with %d recommendations (%s)",
		taskID.Hex(), len(saved), outcome.Mode)
	tlog.Debug("pipeline completed", "recommendations", len(saved), "rank_mode", string(outcome.Mode))
}

// decodeResult carries the decode stage output forward
type decodeResult struct {
	visualDescription  string
	extractedText      string
	contentForAnalysis string
}

// decode branches on artifact kind and produces the text the expand stage
// reasons over. The provider input is capped before submission to bound
// cost.
func (o *Orchestrator) decode(ctx context.Context, upload *models.Upload) (*decodeResult, error) {
	switch upload.Type {
	case models.UploadTypeImage:
		insight, err := o.understanding.AnalyzeImage(ctx, upload.ImageURL)
		if err != nil {
			return nil, err
		}
		return &decodeResult{
			visualDescription:  insight.VisualDescription,
			extractedText:      insight.ExtractedText,
			contentForAnalysis: insight.VisualDescription + "\n" + insight.ExtractedText,
		}, nil

	case models.UploadTypeURL:
		page, err := o.fetcher.FetchURL(ctx, upload.ContentText)
		if err != nil {
			return nil, err
		}
		content := truncate(page.Content, o.maxAnalysisChars)
		summary, err := o.understanding.AnalyzeText(ctx, content, o.maxAnalysisChars)
		if err != nil {
			return nil, err
		}
		return &decodeResult{
			visualDescription:  summary,
			extractedText:      page.Content,
			contentForAnalysis: content,
		}, nil

	case models.UploadTypeText:
		content := truncate(upload.ContentText, o.maxAnalysisChars)
		summary, err := o.understanding.AnalyzeText(ctx, content, o.maxAnalysisChars)
		if err != nil {
			return nil, err
		}
		return &decodeResult{
			visualDescription:  summary,
			contentForAnalysis: content,
		}, nil

	default:
		return nil, fmt.Errorf("unsupported upload type: %s", upload.Type)
	}
}

// checkpoint persists a progress advance; persistence errors are logged
// but do not abort the pipeline (the next checkpoint will retry the write)
func (o *Orchestrator) checkpoint(ctx context.Context, taskID primitive.ObjectID, progress int, taskContext map[string]interface{}) {
	if err := o.tasks.Checkpoint(ctx, taskID, progress, taskContext); err != nil {
		log.Printf("⚠️ [ORCHESTRATOR] Task %s checkpoint %d failed: %v", taskID.Hex(), progress, err)
	}
}

// fail records the terminal failure on the task and best-effort marks the
// analysis failed; the secondary update can never mask the primary failure
func (o *Orchestrator) fail(ctx context.Context, taskID, uploadID primitive.ObjectID, taskErr error) {
	log.Printf("❌ [ORCHESTRATOR] Task %s failed: %v", taskID.Hex(), taskErr)

	if err := o.tasks.MarkFailed(ctx, taskID, taskErr.Error()); err != nil {
		log.Printf("❌ [ORCHESTRATOR] Task %s failure could not be recorded: %v", taskID.Hex(), err)
	}
	if err := o.analyses.MarkFailedByUpload(ctx, uploadID, taskErr.Error()); err != nil {
		log.Printf("⚠️ [ORCHESTRATOR] Task %s analysis failure mark swallowed: %v", taskID.Hex(), err)
	}
}
