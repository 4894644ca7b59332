package ingest

import (
	"context"
	"hash/fnv"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/antoniostano/nerina/internal/extraction"
	"github.com/antoniostano/nerina/internal/observability"
	"github.com/antoniostano/nerina/internal/policy"
	"github.com/antoniostano/nerina/internal/profile"
	"github.com/antoniostano/nerina/internal/semantic"
	"github.com/antoniostano/nerina/internal/userlock"
)

// Exchange is one completed conversation turn handed to the pipeline.
type Exchange struct {
	UserID   string
	Username string
	UserText string
	Reply    string
}

// Pipeline step names as recorded on job records and metrics.
const (
	StepExtract   = "extract"
	StepStore     = "store"
	StepSummarize = "summarize"
)

// Step results.
const (
	ResultOK      = "ok"
	ResultEmpty   = "empty"
	ResultSkipped = "skipped"
	ResultFailed  = "failed"
)

// Job is the record of one pipeline run.
type Job struct {
	ID          string            `json:"id"`
	UserID      string            `json:"user_id"`
	Steps       map[string]string `json:"steps"`
	FactsStored int               `json:"facts_stored"`
	Summarized  bool              `json:"summarized"`
	Error       string            `json:"error,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	FinishedAt  time.Time         `json:"finished_at"`
}

// Event announces one finished job to subscribers of that user.
type Event struct {
	JobID       string `json:"job_id"`
	UserID      string `json:"user_id"`
	FactsStored int    `json:"facts_stored"`
	Summarized  bool   `json:"summarized"`
	Error       string `json:"error,omitempty"`
}

const (
	defaultWorkers   = 2
	defaultQueueSize = 64
	defaultJobBudget = 2 * time.Minute
	recordLimit      = 128
)

// Config wires the pipeline's collaborators.
type Config struct {
	Extractor  *extraction.Extractor
	Summarizer *extraction.Summarizer
	Memory     *semantic.Memory
	Profiles   profile.Store
	Locks      *userlock.Registry
	Metrics    *observability.Metrics
	Workers    int
	QueueSize  int
}

// Pipeline runs post-reply memory work detached from the request lifetime:
// extract facts, embed and store them, then refresh the persona summary.
// Jobs for one user run in submission order; users are sharded across
// workers so unrelated users proceed in parallel. The pipeline never touches
// karma.
type Pipeline struct {
	extractor  *extraction.Extractor
	summarizer *extraction.Summarizer
	memory     *semantic.Memory
	profiles   profile.Store
	locks      *userlock.Registry
	metrics    *observability.Metrics
	jobBudget  time.Duration

	baseCtx context.Context
	cancel  context.CancelFunc
	queues  []chan queuedJob
	wg      sync.WaitGroup

	mu          sync.Mutex
	records     []Job
	subscribers map[string]map[int]chan Event
	nextSubID   int
}

type queuedJob struct {
	job Job
	ex  Exchange
}

func New(cfg Config) *Pipeline {
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.Locks == nil {
		cfg.Locks = userlock.NewRegistry()
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pipeline{
		extractor:   cfg.Extractor,
		summarizer:  cfg.Summarizer,
		memory:      cfg.Memory,
		profiles:    cfg.Profiles,
		locks:       cfg.Locks,
		metrics:     cfg.Metrics,
		jobBudget:   defaultJobBudget,
		baseCtx:     ctx,
		cancel:      cancel,
		queues:      make([]chan queuedJob, cfg.Workers),
		subscribers: make(map[string]map[int]chan Event),
	}
	for i := range p.queues {
		p.queues[i] = make(chan queuedJob, cfg.QueueSize)
		p.wg.Add(1)
		go p.worker(p.queues[i])
	}
	return p
}

// Schedule enqueues background memory work for a finished exchange and
// returns before any step runs. A full queue or a closed pipeline drops the
// job and reports false.
func (p *Pipeline) Schedule(ex Exchange) bool {
	userID := strings.TrimSpace(ex.UserID)
	if userID == "" || p.baseCtx.Err() != nil {
		return false
	}
	ex.UserID = userID

	qj := queuedJob{
		job: Job{
			ID:        uuid.NewString(),
			UserID:    userID,
			Steps:     make(map[string]string, 3),
			CreatedAt: time.Now(),
		},
		ex: ex,
	}
	select {
	case p.queues[shardFor(userID, len(p.queues))] <- qj:
		return true
	default:
		p.metrics.IncIngestStep("enqueue", "dropped")
		return false
	}
}

// Subscribe delivers an Event per finished job for the given user. The
// returned func cancels the subscription.
func (p *Pipeline) Subscribe(userID string) (<-chan Event, func()) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		ch := make(chan Event)
		close(ch)
		return ch, func() {}
	}

	ch := make(chan Event, 16)
	p.mu.Lock()
	p.nextSubID++
	id := p.nextSubID
	if _, ok := p.subscribers[userID]; !ok {
		p.subscribers[userID] = make(map[int]chan Event)
	}
	p.subscribers[userID][id] = ch
	p.mu.Unlock()

	return ch, func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		subs := p.subscribers[userID]
		if subs == nil {
			return
		}
		if c, ok := subs[id]; ok {
			delete(subs, id)
			close(c)
		}
		if len(subs) == 0 {
			delete(p.subscribers, userID)
		}
	}
}

// Jobs returns the most recent finished job records, newest last.
func (p *Pipeline) Jobs(limit int) []Job {
	p.mu.Lock()
	defer p.mu.Unlock()
	if limit <= 0 || limit > len(p.records) {
		limit = len(p.records)
	}
	out := make([]Job, limit)
	copy(out, p.records[len(p.records)-limit:])
	for i := range out {
		steps := make(map[string]string, len(out[i].Steps))
		for k, v := range out[i].Steps {
			steps[k] = v
		}
		out[i].Steps = steps
	}
	return out
}

// Close stops the workers. Queued jobs that have not started are dropped.
func (p *Pipeline) Close() {
	p.cancel()
	p.wg.Wait()

	p.mu.Lock()
	defer p.mu.Unlock()
	for userID, subs := range p.subscribers {
		for id, ch := range subs {
			delete(subs, id)
			close(ch)
		}
		delete(p.subscribers, userID)
	}
}

func (p *Pipeline) worker(q chan queuedJob) {
	defer p.wg.Done()
	for {
		select {
		case <-p.baseCtx.Done():
			return
		case qj := <-q:
			p.run(qj)
		}
	}
}

// run executes one job. Steps are failure-isolated: a failed extract or
// store still lets the summary step attempt its work, and no failure
// escapes the pipeline.
func (p *Pipeline) run(qj queuedJob) {
	ctx, cancel := context.WithTimeout(p.baseCtx, p.jobBudget)
	defer cancel()

	unlock := p.locks.Lock(qj.ex.UserID)
	defer unlock()

	job, ex := qj.job, qj.ex

	pairs := p.extract(ctx, &job, ex)
	job.FactsStored = p.store(ctx, &job, ex, pairs)
	job.Summarized = p.summarize(ctx, &job, ex)

	job.FinishedAt = time.Now()
	p.finish(job)
}

func (p *Pipeline) extract(ctx context.Context, job *Job, ex Exchange) []extraction.Pair {
	pairs, err := p.extractor.ExtractFacts(ctx, ex.UserID, ex.UserText, ex.Reply)
	if err != nil {
		log.Printf("ingest: extract for user %s: %v", ex.UserID, err)
		p.setStep(job, StepExtract, ResultFailed, err)
		return nil
	}
	if len(pairs) == 0 {
		p.setStep(job, StepExtract, ResultEmpty, nil)
		return nil
	}
	p.setStep(job, StepExtract, ResultOK, nil)
	return pairs
}

func (p *Pipeline) store(ctx context.Context, job *Job, ex Exchange, pairs []extraction.Pair) int {
	if len(pairs) == 0 {
		p.setStep(job, StepStore, ResultSkipped, nil)
		return 0
	}

	stored := 0
	var firstErr error
	for _, pair := range pairs {
		content, _ := policy.RedactPII(pair.Content())
		if err := p.memory.Remember(ctx, ex.UserID, content); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			log.Printf("ingest: store fact for user %s: %v", ex.UserID, err)
			continue
		}
		stored++
	}
	p.metrics.AddFactsStored(stored)

	if firstErr != nil {
		p.setStep(job, StepStore, ResultFailed, firstErr)
	} else {
		p.setStep(job, StepStore, ResultOK, nil)
	}
	return stored
}

func (p *Pipeline) summarize(ctx context.Context, job *Job, ex Exchange) bool {
	prof, err := p.profiles.Get(ctx, ex.UserID)
	if err != nil {
		log.Printf("ingest: load profile for user %s: %v", ex.UserID, err)
		p.setStep(job, StepSummarize, ResultFailed, err)
		return false
	}

	next, save, err := p.summarizer.Refresh(ctx, prof.Summary, ex.UserText, ex.Reply)
	if err != nil {
		log.Printf("ingest: summarize for user %s: %v", ex.UserID, err)
		p.setStep(job, StepSummarize, ResultFailed, err)
		return false
	}
	if !save {
		p.setStep(job, StepSummarize, ResultSkipped, nil)
		return false
	}

	next, _ = policy.RedactPII(next)
	if err := p.profiles.UpdateSummary(ctx, ex.UserID, next); err != nil {
		log.Printf("ingest: save summary for user %s: %v", ex.UserID, err)
		p.setStep(job, StepSummarize, ResultFailed, err)
		return false
	}
	p.setStep(job, StepSummarize, ResultOK, nil)
	return true
}

func (p *Pipeline) setStep(job *Job, step, result string, err error) {
	job.Steps[step] = result
	if err != nil && job.Error == "" {
		job.Error = step + ": " + err.Error()
	}
	p.metrics.IncIngestStep(step, result)
}

func (p *Pipeline) finish(job Job) {
	ev := Event{
		JobID:       job.ID,
		UserID:      job.UserID,
		FactsStored: job.FactsStored,
		Summarized:  job.Summarized,
		Error:       job.Error,
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.records = append(p.records, job)
	if len(p.records) > recordLimit {
		p.records = append([]Job(nil), p.records[len(p.records)-recordLimit:]...)
	}

	for _, ch := range p.subscribers[job.UserID] {
		select {
		case ch <- ev:
		default:
		}
	}
}

func shardFor(userID string, shards int) int {
	h := fnv.New32a()
	h.Write([]byte(userID))
	return int(h.Sum32() % uint32(shards))
}
