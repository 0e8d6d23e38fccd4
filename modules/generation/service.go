package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"genstudio-server/modules/common/apperr"
	"genstudio-server/modules/common/database"
	"genstudio-server/modules/common/logger"
	"genstudio-server/modules/common/metrics"
	"genstudio-server/modules/common/model"
	"genstudio-server/modules/common/poller"
	"genstudio-server/modules/kie"
	"genstudio-server/modules/relocator"
)

// Vendor - Kie.ai 클라이언트 중 서비스가 쓰는 부분
type Vendor interface {
	Submit(ctx context.Context, family kie.Family, payload interface{}) (string, error)
	Status(ctx context.Context, family kie.Family, taskID string) (poller.Status, error)
	UploadBase64(ctx context.Context, data, uploadPath, fileName string) (*kie.UploadResult, error)
}

// Enqueuer hands a task id to the background worker.
type Enqueuer interface {
	Enqueue(ctx context.Context, taskID string) error
}

// AssetStore copies result files into permanent storage.
type AssetStore interface {
	Relocate(ctx context.Context, req relocator.Request) (*model.StoredAsset, error)
}

// Notifier receives per-attempt progress and the terminal record.
type Notifier interface {
	Progress(taskID string, attempt int, status string)
	Finished(task *model.GenerationTask)
}

// PollProfile - 종류별 폴링 간격/횟수
type PollProfile struct {
	Interval    time.Duration
	MaxAttempts int
}

type Options struct {
	Profiles           map[model.Kind]PollProfile
	MaxTransportErrors int
}

// Deps - Vendor와 Store는 필수, 나머지는 nil 가능
type Deps struct {
	Vendor   Vendor
	Store    TaskStore
	Queue    Enqueuer
	Assets   AssetStore
	Activity database.ActivityRecorder
	Notifier Notifier
}

// Request - 생성 요청 (동기/비동기 공통)
type Request struct {
	ModelID string
	// Kind restricts ModelID to one kind when set.
	Kind        model.Kind
	Prompt      string
	ImageURLs   []string
	ImageData   string
	UploadPath  string
	UploadName  string
	AspectRatio string
	Duration    int
	Persist     bool
	UserID      string
}

func (r Request) hasImage() bool {
	return len(r.ImageURLs) > 0 || r.ImageData != ""
}

type Service struct {
	vendor   Vendor
	store    TaskStore
	queue    Enqueuer
	assets   AssetStore
	activity database.ActivityRecorder
	notifier Notifier

	profiles           map[model.Kind]PollProfile
	maxTransportErrors int
	sleep              poller.SleepFunc
	now                func() time.Time
	log                zerolog.Logger
}

func NewService(deps Deps, opts Options, log zerolog.Logger) *Service {
	return &Service{
		vendor:             deps.Vendor,
		store:              deps.Store,
		queue:              deps.Queue,
		assets:             deps.Assets,
		activity:           deps.Activity,
		notifier:           deps.Notifier,
		profiles:           opts.Profiles,
		maxTransportErrors: opts.MaxTransportErrors,
		sleep:              poller.Sleep,
		now:                time.Now,
		log:                logger.Component(log, "generation"),
	}
}

// Prepare validates req against the registry without touching the network.
func (s *Service) Prepare(req Request) (Model, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return Model{}, apperr.Validation("prompt cannot be empty")
	}

	var (
		m   Model
		err error
	)
	if req.Kind != "" {
		m, err = LookupKind(req.ModelID, req.Kind)
	} else {
		m, err = Lookup(req.ModelID)
	}
	if err != nil {
		return Model{}, err
	}

	m = ResolveVariant(m, req.hasImage())
	if err := m.Require(requiredFeatures(m.Kind, req.hasImage())...); err != nil {
		return Model{}, err
	}
	return m, nil
}

// Generate submits req and blocks until the task is terminal.
func (s *Service) Generate(ctx context.Context, req Request) (*model.GenerationTask, error) {
	task, m, err := s.submit(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.wait(ctx, task, m)
}

// Submit submits req and leaves completion to the queue worker.
func (s *Service) Submit(ctx context.Context, req Request) (*model.GenerationTask, error) {
	if s.queue == nil {
		return nil, apperr.MissingConfig("REDIS_HOST")
	}
	task, _, err := s.submit(ctx, req)
	if err != nil {
		return nil, err
	}

	// 큐 적재 실패 시에도 pending 기록이 남아 있으므로 재시작 시 Recover가 다시 적재함
	if err := s.queue.Enqueue(ctx, task.TaskID); err != nil {
		s.log.Error().Err(err).Str("task_id", task.TaskID).Msg("failed to enqueue task")
	}
	return task, nil
}

// Complete drives a stored pending task to a terminal state. Used by the queue worker.
func (s *Service) Complete(ctx context.Context, taskID string) (*model.GenerationTask, error) {
	task, err := s.store.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.Status.IsTerminal() {
		return task, nil
	}

	m, err := Lookup(task.ModelID)
	if err != nil {
		return nil, fmt.Errorf("task %s: %w", taskID, err)
	}
	return s.wait(ctx, task, m)
}

// Status returns the stored record. A pending record gets exactly one vendor probe.
func (s *Service) Status(ctx context.Context, taskID string) (*model.GenerationTask, error) {
	task, err := s.store.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.Status.IsTerminal() {
		return task, nil
	}

	m, err := Lookup(task.ModelID)
	if err != nil {
		return nil, fmt.Errorf("task %s: %w", taskID, err)
	}

	status, err := s.vendor.Status(ctx, m.Family, taskID)
	if err != nil {
		s.log.Warn().Err(err).Str("task_id", taskID).Msg("status probe failed")
		return task, nil
	}

	switch status.State {
	case poller.Succeeded:
		if len(status.URLs) == 0 {
			return s.finishProbe(ctx, task, nil, &apperr.GenerationFailedError{TaskID: taskID, Message: "no result URL returned"})
		}
		return s.finishProbe(ctx, task, &poller.Result{URLs: status.URLs, Attempts: task.Attempts}, nil)
	case poller.Failed:
		return s.finishProbe(ctx, task, nil, &apperr.GenerationFailedError{TaskID: taskID, Message: status.Message})
	default:
		return task, nil
	}
}

// finishProbe records a terminal probe answer. A vendor failure is part of the
// returned record (status + error), not an error of the status query itself.
func (s *Service) finishProbe(ctx context.Context, task *model.GenerationTask, res *poller.Result, vendorErr error) (*model.GenerationTask, error) {
	finished, _ := s.finish(ctx, task, res, vendorErr)
	return finished, nil
}

// Recover returns the ids of records left pending, e.g. by a restart.
func (s *Service) Recover(ctx context.Context) ([]string, error) {
	return s.store.Pending(ctx)
}

func (s *Service) submit(ctx context.Context, req Request) (*model.GenerationTask, Model, error) {
	m, err := s.Prepare(req)
	if err != nil {
		return nil, Model{}, err
	}

	in := Input{
		Prompt:      req.Prompt,
		ImageURLs:   append([]string(nil), req.ImageURLs...),
		AspectRatio: req.AspectRatio,
		Duration:    req.Duration,
	}
	if req.ImageData != "" {
		uploaded, err := s.vendor.UploadBase64(ctx, req.ImageData, req.UploadPath, req.UploadName)
		if err != nil {
			return nil, Model{}, fmt.Errorf("upload input image: %w", err)
		}
		if uploaded.URL() == "" {
			return nil, Model{}, &apperr.UpstreamError{Provider: model.ProviderKie, Message: "Failed to upload image: no image URL returned"}
		}
		in.ImageURLs = append([]string{uploaded.URL()}, in.ImageURLs...)
	}

	taskID, err := s.vendor.Submit(ctx, m.Family, m.Payload(in))
	if err != nil {
		metrics.RecordGeneration(string(m.ID), "submit_failed")
		return nil, Model{}, err
	}

	now := s.now().UTC()
	task := &model.GenerationTask{
		TaskID:      taskID,
		Provider:    model.ProviderKie,
		ModelID:     string(m.ID),
		Kind:        m.Kind,
		Status:      model.StatusPending,
		ResultURLs:  []string{},
		Persist:     req.Persist,
		UserID:      req.UserID,
		SubmittedAt: now,
		UpdatedAt:   now,
	}
	if err := s.store.Save(ctx, task); err != nil {
		return nil, Model{}, fmt.Errorf("save task %s: %w", taskID, err)
	}

	s.log.Info().
		Str("task_id", taskID).
		Str("model", string(m.ID)).
		Str("family", string(m.Family)).
		Str("duration", durationLabel(req.Duration)).
		Str("prompt", logger.Truncate(req.Prompt, 80)).
		Msg("generation submitted")
	return task, m, nil
}

func (s *Service) wait(ctx context.Context, task *model.GenerationTask, m Model) (*model.GenerationTask, error) {
	profile, ok := s.profiles[m.Kind]
	if !ok {
		return nil, fmt.Errorf("no poll profile for %s", m.Kind)
	}

	res, err := poller.Wait(ctx, task.TaskID, func(ctx context.Context) (poller.Status, error) {
		return s.vendor.Status(ctx, m.Family, task.TaskID)
	}, poller.Options{
		Interval:           profile.Interval,
		MaxAttempts:        profile.MaxAttempts,
		MaxTransportErrors: s.maxTransportErrors,
		Sleep:              s.sleep,
		OnAttempt: func(attempt int, state poller.State) {
			task.Attempts = attempt
			metrics.RecordPollAttempt(string(m.Kind))
			if s.notifier != nil {
				s.notifier.Progress(task.TaskID, attempt, state.String())
			}
		},
	})

	// 취소(종료, 연결 끊김)는 terminal이 아님: pending 기록을 남겨 Recover/status probe가 이어받음
	if err != nil && errors.Is(ctx.Err(), context.Canceled) {
		return task, fmt.Errorf("poll task %s: %w", task.TaskID, context.Canceled)
	}

	// deadline 초과는 timed_out으로 기록
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	return s.finish(saveCtx, task, res, err)
}

// finish writes the terminal record. waitErr is returned unchanged.
// A record that is already terminal wins: it is returned as stored and the side effects
// (persist, activity, notification) are skipped, so they run once per task.
func (s *Service) finish(ctx context.Context, task *model.GenerationTask, res *poller.Result, waitErr error) (*model.GenerationTask, error) {
	if stored, err := s.store.Get(ctx, task.TaskID); err == nil && stored.Status.IsTerminal() {
		return s.alreadyFinished(stored, waitErr)
	}

	now := s.now().UTC()
	task.UpdatedAt = now
	task.CompletedAt = &now

	var timeoutErr *apperr.TimeoutError
	switch {
	case waitErr == nil:
		task.Status = model.StatusSucceeded
		task.ResultURLs = res.URLs
		if res.Attempts > task.Attempts {
			task.Attempts = res.Attempts
		}
		if task.Persist {
			task.StoredAssets = s.persist(ctx, task)
		}
	case errors.As(waitErr, &timeoutErr):
		task.Status = model.StatusTimedOut
		task.Error = waitErr.Error()
	default:
		task.Status = model.StatusFailed
		task.Error = apperr.PublicMessage(waitErr)
	}

	if err := s.store.Save(ctx, task); err != nil {
		if errors.Is(err, ErrTerminal) {
			// 다른 경로가 Get과 Save 사이에 먼저 끝냄
			if stored, getErr := s.store.Get(ctx, task.TaskID); getErr == nil {
				return s.alreadyFinished(stored, waitErr)
			}
		}
		s.log.Error().Err(err).Str("task_id", task.TaskID).Msg("failed to save terminal task")
	}

	metrics.RecordGeneration(task.ModelID, string(task.Status))
	s.recordActivity(ctx, task)
	if s.notifier != nil {
		s.notifier.Finished(task)
	}

	event := s.log.Info()
	if waitErr != nil {
		event = s.log.Warn().Err(waitErr)
	}
	event.Str("task_id", task.TaskID).Str("status", string(task.Status)).Int("attempts", task.Attempts).Msg("generation finished")
	return task, waitErr
}

// alreadyFinished answers with the stored terminal record and an error matching its status.
func (s *Service) alreadyFinished(stored *model.GenerationTask, waitErr error) (*model.GenerationTask, error) {
	s.log.Debug().Str("task_id", stored.TaskID).Str("status", string(stored.Status)).Msg("task already finished")
	switch {
	case stored.Status == model.StatusSucceeded:
		return stored, nil
	case waitErr != nil:
		return stored, waitErr
	case stored.Status == model.StatusTimedOut:
		return stored, &apperr.TimeoutError{TaskID: stored.TaskID, Attempts: stored.Attempts}
	default:
		return stored, &apperr.GenerationFailedError{TaskID: stored.TaskID, Message: "task already finished as " + string(stored.Status)}
	}
}

// persist - 결과 URL을 영구 스토리지로 복사 (실패한 URL은 건너뜀)
func (s *Service) persist(ctx context.Context, task *model.GenerationTask) []model.StoredAsset {
	if s.assets == nil || !task.Kind.IsAsset() {
		return nil
	}

	var stored []model.StoredAsset
	for i, url := range task.ResultURLs {
		fileName := task.TaskID
		if len(task.ResultURLs) > 1 {
			fileName = fmt.Sprintf("%s-%d", task.TaskID, i)
		}
		asset, err := s.assets.Relocate(ctx, relocator.Request{
			SourceURL: url,
			Category:  task.Kind,
			FileName:  fileName,
		})
		if err != nil {
			s.log.Error().Err(err).Str("task_id", task.TaskID).Str("url", url).Msg("failed to relocate result")
			continue
		}
		stored = append(stored, *asset)
	}
	return stored
}

func (s *Service) recordActivity(ctx context.Context, task *model.GenerationTask) {
	if s.activity == nil {
		return
	}

	action := model.ActionGenerationSucceeded
	if task.Status != model.StatusSucceeded {
		action = model.ActionGenerationFailed
	}
	entry := model.ActivityLog{
		Action:       action,
		ResourceType: string(task.Kind),
		ResourceID:   task.TaskID,
		Metadata: map[string]interface{}{
			"modelId":  task.ModelID,
			"status":   string(task.Status),
			"attempts": task.Attempts,
		},
	}
	if task.UserID != "" {
		userID := task.UserID
		entry.UserID = &userID
	}
	if task.Error != "" {
		entry.Metadata["error"] = logger.Truncate(task.Error, 200)
	}
	if err := s.activity.RecordActivity(ctx, entry); err != nil {
		s.log.Warn().Err(err).Str("task_id", task.TaskID).Msg("failed to record activity")
	}
}
