// Package pipeline drives one job through the staged analysis state
// machine: preparing, transcribing or normalizing, segmenting, analyzing,
// synthesizing, generating assets and finalizing.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"transcript-insights-go/internal/aggregator"
	"transcript-insights-go/internal/artifact"
	"transcript-insights-go/internal/assets"
	"transcript-insights-go/internal/events"
	"transcript-insights-go/internal/extractor"
	"transcript-insights-go/internal/logger"
	"transcript-insights-go/internal/metrics"
	"transcript-insights-go/internal/normalizer"
	"transcript-insights-go/internal/processor"
	"transcript-insights-go/internal/quiz"
	"transcript-insights-go/internal/segmenter"
	"transcript-insights-go/internal/store"
	"transcript-insights-go/internal/synthesis"
	"transcript-insights-go/internal/transcription"
	"transcript-insights-go/internal/types"
)

var (
	// ErrJobNotQueued is returned when the job was already claimed or finished.
	ErrJobNotQueued = errors.New("job is not queued")
	// ErrJobNotFailed is returned when a requeue targets a job that is not FAILED.
	ErrJobNotFailed = errors.New("job is not failed")
)

// Stage is one state of the run state machine.
type Stage string

const (
	StageQueued       Stage = "queued"
	StagePreparing    Stage = "preparing"
	StageTranscribing Stage = "transcribing"
	StageNormalizing  Stage = "normalizing"
	StageSegmenting   Stage = "segmenting"
	StageAnalyzing    Stage = "analyzing"
	StageSynthesizing Stage = "synthesizing"
	StageAssets       Stage = "generating-assets"
	StageFinalizing   Stage = "finalizing"
	StageCompleted    Stage = "completed"
	StageFailed       Stage = "failed"
	StageSkipped      Stage = "skipped"
)

// Publisher receives lifecycle events.
type Publisher interface {
	Publish(ctx context.Context, e events.Event) error
}

// AssetWriter exports a finalized document and returns where it went.
type AssetWriter interface {
	Write(doc *types.Document) (string, error)
}

// SuiteFactory builds the analysis capabilities for a persona. It is
// called once per run.
type SuiteFactory func(p extractor.Persona) *extractor.Suite

type Config struct {
	Concurrency    int
	Strategy       string
	DefaultPersona string
	Segmentation   segmenter.Params
	Quiz           quiz.Config
	Synthesis      synthesis.Config
}

type Deps struct {
	Store       store.Store
	Suites      SuiteFactory
	Transcriber transcription.Provider
	Artifacts   artifact.Remover
	Events      Publisher
	Metrics     *metrics.Metrics
	Assets      AssetWriter
}

type Orchestrator struct {
	cfg  Config
	deps Deps
	log  *logger.Logger
}

func New(cfg Config, deps Deps) *Orchestrator {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 5
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New(prometheus.NewRegistry())
	}
	if deps.Events == nil {
		deps.Events = events.New(nil, deps.Metrics)
	}
	if deps.Artifacts == nil {
		deps.Artifacts = artifact.Local{}
	}
	if deps.Suites == nil {
		deps.Suites = func(p extractor.Persona) *extractor.Suite {
			return extractor.NewSuite(p, extractor.Options{UseMockLLM: true, UseMockSearch: true})
		}
	}
	return &Orchestrator{cfg: cfg, deps: deps, log: logger.Component("pipeline")}
}

// Submit persists job as QUEUED, assigning an id when it has none.
func (o *Orchestrator) Submit(ctx context.Context, job *types.Job) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	job.Status = types.StatusQueued
	job.Progress = string(StageQueued)
	job.Error = ""
	if job.SourceKind == "" {
		switch {
		case job.AudioURL != "":
			job.SourceKind = types.SourceAudio
		case len(job.Records) > 0:
			job.SourceKind = types.SourceRecords
		default:
			job.SourceKind = types.SourceText
		}
	}
	if err := o.deps.Store.CreateJob(ctx, job); err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	o.log.WithJob(job.ID).WithField("source", job.SourceKind).Info("job queued")
	return nil
}

// Requeue puts a FAILED job back in the queue. Its persisted section
// results survive, so the next Run only analyzes what is missing.
func (o *Orchestrator) Requeue(ctx context.Context, id string) (*types.Job, error) {
	job, moved, err := o.deps.Store.RequeueJob(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("requeue job %s: %w", id, err)
	}
	if !moved {
		return job, fmt.Errorf("%w: %s is %s", ErrJobNotFailed, id, job.Status)
	}
	entry := types.LogEntry{Stage: string(StageQueued), Level: "info", Message: "requeued after failure", At: time.Now().UTC()}
	if err := o.deps.Store.AppendLog(ctx, id, entry); err != nil {
		o.log.WithJob(id).WithError(err).Warn("failed to append job log")
	}
	o.log.WithJob(id).Info("job requeued")
	return job, nil
}

// run carries the state of one execution.
type run struct {
	job   *types.Job
	log   *logger.Logger
	acc   *aggregator.Run
	suite *extractor.Suite
	stage Stage
	// closeStage stops the clock of the stage in progress; it is safe to
	// call more than once.
	closeStage func()
}

// Run executes job id. A job that is not QUEUED ends as skipped with
// ErrJobNotQueued. Any other error has already been persisted as FAILED,
// with credits refunded; the source artifact is deleted on every path once
// the job is claimed.
func (o *Orchestrator) Run(ctx context.Context, id string) (doc *types.Document, err error) {
	log := o.log.WithJob(id)
	job, claimed, err := o.deps.Store.ClaimJob(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("claim job %s: %w", id, err)
	}
	if !claimed {
		log.WithField("status", job.Status).Warn("job is not queued, skipping")
		o.deps.Metrics.RecordJobSkipped()
		o.publish(ctx, events.Event{Type: events.JobSkipped, JobID: id, Status: string(job.Status)})
		return nil, fmt.Errorf("%w: %s is %s", ErrJobNotQueued, id, job.Status)
	}

	r := &run{job: job, log: log, acc: aggregator.NewRun()}
	o.deps.Metrics.RecordJobStart()
	cleanupCtx := context.WithoutCancel(ctx)

	defer func() {
		if rec := recover(); rec != nil {
			log.WithField("stack", string(debug.Stack())).Errorf("pipeline panicked: %v", rec)
			doc, err = nil, fmt.Errorf("panic in %s: %v", r.stage, rec)
		}
		if r.closeStage != nil {
			r.closeStage()
		}
		if err != nil {
			o.fail(cleanupCtx, r, err)
		}
		if job.ArtifactPath != "" {
			if derr := o.deps.Artifacts.Delete(cleanupCtx, job.ArtifactPath); derr != nil {
				log.WithError(derr).Error("failed to delete source artifact")
			} else {
				log.WithField("artifact", job.ArtifactPath).Info("source artifact deleted")
			}
		}
	}()

	doc, err = o.execute(ctx, r)
	if err != nil {
		return nil, err
	}
	o.deps.Metrics.RecordJobEnd(string(StageCompleted))
	o.publish(ctx, events.Event{
		Type:   events.JobCompleted,
		JobID:  id,
		Status: string(types.StatusCompleted),
		Details: map[string]any{
			"title":    doc.Title,
			"sections": len(doc.Sections),
			"failed":   len(doc.FailedSections),
			"strategy": doc.Strategy,
		},
	})
	return doc, nil
}

func (o *Orchestrator) execute(ctx context.Context, r *run) (*types.Document, error) {
	// preparing
	stop := o.enter(ctx, r, StagePreparing, "preparing job")
	personaName := r.job.Persona
	if personaName == "" {
		personaName = o.cfg.DefaultPersona
	}
	persona, err := extractor.ParsePersona(personaName)
	if err != nil {
		return nil, err
	}
	r.suite = o.deps.Suites(persona)
	stop()

	// transcribing / normalizing
	utterances, words, err := o.loadTranscript(ctx, r)
	if err != nil {
		return nil, err
	}

	// segmenting
	stop = o.enter(ctx, r, StageSegmenting, fmt.Sprintf("segmenting %d utterances", len(utterances)))
	strategy, err := segmenter.ByName(o.cfg.Strategy, utterances, words, o.cfg.Segmentation)
	if err != nil {
		return nil, err
	}
	sections := strategy.Segment(utterances)
	if len(sections) == 0 {
		return nil, fmt.Errorf("%w: transcript produced no sections", normalizer.ErrNormalization)
	}
	r.log.WithField("strategy", strategy.Name()).WithField("sections", len(sections)).Info("transcript segmented")
	stop()

	// analyzing
	stop = o.enter(ctx, r, StageAnalyzing, fmt.Sprintf("analyzing %d sections", len(sections)))
	results := o.analyze(ctx, r, sections)
	folded := aggregator.Fold(results, r.acc)
	for _, res := range results {
		o.deps.Metrics.RecordSection(res.Outcome.String())
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.log.WithField("outcomes", folded.Outcomes).Info("sections analyzed")
	stop()

	// synthesizing
	stop = o.enter(ctx, r, StageSynthesizing, fmt.Sprintf("synthesizing %d section results", len(folded.Results)))
	syn, shape, costs, err := synthesis.New(r.suite.Meta, o.cfg.Synthesis).Synthesize(ctx, folded.Results)
	r.acc.AddCosts(costs)
	if err != nil {
		r.log.WithError(err).Warn("synthesis failed, continuing with empty synthesis")
		syn = types.Synthesis{}
	}
	r.log.WithField("shape", shape).Info("synthesis finished")
	stop()

	// generating assets
	stop = o.enter(ctx, r, StageAssets, "generating assets")
	doc := &types.Document{
		JobID:           r.job.ID,
		Title:           assets.Title(syn, folded.Results),
		Persona:         persona.Name(),
		Strategy:        strategy.Name(),
		Sections:        folded.Results,
		FailedSections:  folded.Failed,
		SkippedSections: folded.Skipped,
		Synthesis:       syn,
		QuizGroups:      quiz.Plan(folded.Results, o.cfg.Quiz),
	}
	if o.deps.Assets != nil {
		doc.Costs = r.acc.Costs()
		doc.Timings = r.acc.Timings()
		path, err := o.deps.Assets.Write(doc)
		if err != nil {
			return nil, fmt.Errorf("write assets: %w", err)
		}
		doc.AssetPath = path
	}
	stop()

	// finalizing
	stop = o.enter(ctx, r, StageFinalizing, "finalizing document")
	doc.Costs = r.acc.Costs()
	stop()
	doc.Timings = r.acc.Timings()
	if err := o.deps.Store.PutDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("persist document: %w", err)
	}
	err = o.deps.Store.UpdateJob(ctx, r.job.ID, func(j *types.Job) {
		j.Status = types.StatusCompleted
		j.Progress = string(StageCompleted)
	})
	if err != nil {
		return nil, fmt.Errorf("mark completed: %w", err)
	}
	o.appendLog(ctx, r, StageCompleted, "info", fmt.Sprintf("completed %q with %d sections", doc.Title, len(doc.Sections)))
	r.log.WithField("title", doc.Title).WithField("total_seconds", doc.Timings.Total()).Info("job completed")
	return doc, nil
}

func (o *Orchestrator) loadTranscript(ctx context.Context, r *run) ([]types.Utterance, []types.Word, error) {
	if r.job.SourceKind == types.SourceAudio {
		stop := o.enter(ctx, r, StageTranscribing, "transcribing audio")
		if o.deps.Transcriber == nil {
			return nil, nil, errors.New("no transcription provider configured")
		}
		tr, err := o.deps.Transcriber.Transcribe(ctx, r.job.AudioURL)
		if err != nil {
			return nil, nil, fmt.Errorf("transcribe: %w", err)
		}
		stop()
		if len(tr.Utterances) > 0 {
			return tr.Utterances, tr.Words, nil
		}
		utts, err := normalizer.FromText(tr.Text)
		return utts, tr.Words, err
	}

	stop := o.enter(ctx, r, StageNormalizing, "normalizing transcript")
	defer stop()
	utts, err := normalizer.Normalize(normalizer.Input{Text: r.job.Text, Records: r.job.Records})
	return utts, nil, err
}

// analyze fans sections out under the concurrency gate. results[i] always
// belongs to sections[i].
func (o *Orchestrator) analyze(ctx context.Context, r *run, sections []types.Section) []processor.Result {
	proc := processor.New(r.suite, o.deps.Store)
	results := make([]processor.Result, len(sections))

	g := new(errgroup.Group)
	g.SetLimit(o.cfg.Concurrency)
	for i, sec := range sections {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i] = processor.Result{Index: i, Outcome: processor.Failed, Err: err}
				return nil
			}
			results[i] = proc.Process(ctx, r.job.ID, i, sec)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// enter records the transition to stage and returns the stage clock. A
// stage left open by an early return is closed by the next enter or by Run.
func (o *Orchestrator) enter(ctx context.Context, r *run, stage Stage, progress string) func() {
	if r.closeStage != nil {
		r.closeStage()
	}
	r.stage = stage
	r.log.WithField("stage", stage).Info(progress)
	err := o.deps.Store.UpdateJob(ctx, r.job.ID, func(j *types.Job) { j.Progress = progress })
	if err != nil {
		r.log.WithError(err).Warn("failed to update progress")
	}
	o.appendLog(ctx, r, stage, "info", progress)
	stop := r.acc.Time(string(stage))
	var once sync.Once
	r.closeStage = func() {
		once.Do(func() { o.deps.Metrics.RecordStage(string(stage), stop().Seconds()) })
	}
	return r.closeStage
}

func (o *Orchestrator) appendLog(ctx context.Context, r *run, stage Stage, level, msg string) {
	entry := types.LogEntry{Stage: string(stage), Level: level, Message: msg, At: time.Now().UTC()}
	if err := o.deps.Store.AppendLog(ctx, r.job.ID, entry); err != nil {
		r.log.WithError(err).Warn("failed to append job log")
	}
}

// fail persists FAILED and refunds any pre-authorized credits.
func (o *Orchestrator) fail(ctx context.Context, r *run, cause error) {
	msg := fmt.Sprintf("%s failed: %v", r.stage, cause)
	r.log.WithField("stage", r.stage).WithField("error", cause.Error()).
		WithField("total_seconds", r.acc.Timings().Total()).Error("job failed")

	err := o.deps.Store.UpdateJob(ctx, r.job.ID, func(j *types.Job) {
		j.Status = types.StatusFailed
		j.Progress = string(StageFailed)
		j.Error = msg
	})
	if err != nil {
		r.log.WithError(err).Error("failed to persist job failure")
	}
	o.appendLog(ctx, r, StageFailed, "error", msg)

	if r.job.PreAuthorizedCredits > 0 {
		if err := o.deps.Store.Refund(ctx, r.job.ID, r.job.PreAuthorizedCredits, msg); err != nil {
			r.log.WithError(err).Error("credit refund failed")
		} else {
			r.log.WithField("credits", r.job.PreAuthorizedCredits).Info("pre-authorized credits refunded")
		}
	}
	o.deps.Metrics.RecordJobEnd(string(StageFailed))
	o.publish(ctx, events.Event{Type: events.JobFailed, JobID: r.job.ID, Status: string(types.StatusFailed), Error: msg})
}

func (o *Orchestrator) publish(ctx context.Context, e events.Event) {
	if err := o.deps.Events.Publish(ctx, e); err != nil {
		o.log.WithJob(e.JobID).WithError(err).Warn("failed to publish event")
	}
}
