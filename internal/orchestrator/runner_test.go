package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"story-generator/config"
	"story-generator/internal/apperr"
	"story-generator/internal/dedup"
	"story-generator/internal/lock"
	"story-generator/internal/models"
	"story-generator/internal/provider"
	"story-generator/internal/publisher"
	"story-generator/internal/storage"
	"story-generator/internal/subscription"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	name  string
	calls atomic.Int32
	fn    func(call int32, req models.GenerationRequest) (*models.GenerationResponse, error)
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) GenerateArticle(_ context.Context, req models.GenerationRequest, _ time.Duration) (*models.GenerationResponse, error) {
	n := s.calls.Add(1)
	if s.fn != nil {
		return s.fn(n, req)
	}
	return &models.GenerationResponse{
		Title:     "Article for " + req.PromptID,
		BodyHTML:  "<p>body</p>",
		RequestID: fmt.Sprintf("%s-%s-%d", s.name, req.PromptID, n),
		Provider:  s.name,
	}, nil
}

type stubSubs struct {
	status    *models.SubscriptionStatus
	err       error
	credits   int
	reserved  int
	committed int
	// denyAfter 大于0时，超过该次数的预留一律失败
	denyAfter int
}

func (s *stubSubs) GetStatus(context.Context, string) (*models.SubscriptionStatus, error) {
	return s.status, s.err
}

func (s *stubSubs) ReserveCredit(context.Context, string) bool {
	s.reserved++
	if s.denyAfter > 0 && s.reserved > s.denyAfter {
		return false
	}
	return s.credits > 0
}

func (s *stubSubs) CommitCredit(string) {
	s.committed++
	s.credits--
}

type keyFlag bool

func (k keyFlag) KeyConfigured() bool { return bool(k) }

type memorySink struct {
	mu      sync.Mutex
	entries []string
}

func (m *memorySink) Log(level, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, level+": "+message)
}

func (m *memorySink) count(substr string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.entries {
		if strings.Contains(e, substr) {
			n++
		}
	}
	return n
}

type harness struct {
	runner  *Runner
	store   *storage.Store
	managed *stubProvider
	direct  *stubProvider
	subs    *stubSubs
	sink    *memorySink
	lock    *lock.StoreLock
}

func newHarness(t *testing.T, prompts []models.Prompt, subs *stubSubs, directKey bool) *harness {
	t.Helper()
	store, err := storage.NewStore(filepath.Join(t.TempDir(), "runner.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	require.NoError(t, store.SavePromptDocument(context.Background(), models.PromptDocument{
		DefaultSettings: models.DefaultSettings{Model: "m", Timeout: 30},
		Prompts:         prompts,
	}))

	h := &harness{
		store:   store,
		managed: &stubProvider{name: "managed"},
		direct:  &stubProvider{name: "direct"},
		subs:    subs,
		sink:    &memorySink{},
		lock:    lock.NewStoreLock(store, "generation"),
	}
	h.runner = NewRunner(Config{
		Domain:          "example.com",
		AuthorID:        "1",
		IntervalDays:    1,
		LockTTL:         10 * time.Minute,
		DefaultTimeout:  time.Minute,
		DedupWindowDays: 30,
		DedupMaxItems:   10,
	}, Deps{
		Lock:          h.lock,
		Subscriptions: subs,
		Prompts:       store,
		Options:       store,
		Dedup:         dedup.NewBuilder(store, ""),
		Providers:     provider.Set{Managed: h.managed, Direct: h.direct},
		DirectKey:     keyFlag(directKey),
		Publisher:     publisher.New(store, nil),
		Sink:          h.sink,
	})
	return h
}

func activePrompts(ids ...string) []models.Prompt {
	out := make([]models.Prompt, 0, len(ids))
	for _, id := range ids {
		out = append(out, models.Prompt{ID: id, Text: "Write about " + id, Category: "General", Active: true})
	}
	return out
}

func TestRunBatch_ManagedWithCredits(t *testing.T) {
	subs := &stubSubs{status: &models.SubscriptionStatus{Valid: true, CreditsRemaining: 2}, credits: 2}
	prompts := append(activePrompts("p1", "p2", "p3"), models.Prompt{ID: "p4", Text: "inactive", Active: false})
	h := newHarness(t, prompts, subs, false)

	result := h.runner.RunBatch(context.Background(), RunOptions{Force: true, Trigger: TriggerManual})

	assert.Len(t, result.Successes, 2)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "prompt p3")
	assert.Contains(t, result.Errors[0], "credits exhausted")
	assert.Equal(t, int32(2), h.managed.calls.Load())
	assert.Equal(t, int32(0), h.direct.calls.Load())
	assert.Equal(t, 3, subs.reserved)
	assert.Equal(t, 2, subs.committed)
	assert.Equal(t, 1, h.sink.count("credits exhausted"))

	n, err := h.store.CountEntries(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.Equal(t, StateIdle, h.runner.State())
	last := h.runner.LastRun()
	require.NotNil(t, last)
	assert.Equal(t, TriggerManual, last.Trigger)
	assert.Equal(t, result, last.Result)

	st, err := h.lock.Inspect(context.Background())
	require.NoError(t, err)
	assert.False(t, st.Held)
}

func TestRunBatch_LockHeld(t *testing.T) {
	subs := &stubSubs{status: &models.SubscriptionStatus{Valid: true, CreditsRemaining: 5}, credits: 5}
	h := newHarness(t, activePrompts("p1"), subs, false)

	other := lock.NewStoreLock(h.store, "generation")
	ok, err := other.TryAcquire(context.Background(), time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	result := h.runner.RunBatch(context.Background(), RunOptions{Force: true})
	assert.Equal(t, []string{"lock held"}, result.Errors)
	assert.Empty(t, result.Successes)
	assert.Equal(t, int32(0), h.managed.calls.Load())
	assert.Equal(t, 1, h.sink.count("生成锁已被持有"))

	// 未持有锁的运行器不能释放他人的锁
	st, err := other.Inspect(context.Background())
	require.NoError(t, err)
	assert.True(t, st.Held)
}

func TestRunBatch_ConcurrentCallsRunOnce(t *testing.T) {
	subs := &stubSubs{status: &models.SubscriptionStatus{Valid: true, CreditsRemaining: 5}, credits: 5}
	h := newHarness(t, activePrompts("p1"), subs, false)

	started := make(chan struct{})
	release := make(chan struct{})
	h.managed.fn = func(call int32, req models.GenerationRequest) (*models.GenerationResponse, error) {
		close(started)
		<-release
		return &models.GenerationResponse{Title: "T", BodyHTML: "<p>b</p>", RequestID: "r1"}, nil
	}

	var first models.BatchResult
	done := make(chan struct{})
	go func() {
		defer close(done)
		first = h.runner.RunBatch(context.Background(), RunOptions{Force: true})
	}()

	<-started
	assert.Equal(t, StateRunning, h.runner.State())

	second := h.runner.RunBatch(context.Background(), RunOptions{Force: true})
	assert.Equal(t, []string{"lock held"}, second.Errors)
	assert.Equal(t, StateRunning, h.runner.State())

	close(release)
	<-done
	assert.Len(t, first.Successes, 1)
	assert.Empty(t, first.Errors)
}

func TestRunBatch_FallbackToDirect(t *testing.T) {
	subs := &stubSubs{status: &models.SubscriptionStatus{Valid: false}}
	h := newHarness(t, activePrompts("p1", "p2"), subs, true)

	result := h.runner.RunBatch(context.Background(), RunOptions{Force: true})
	assert.Len(t, result.Successes, 2)
	assert.Empty(t, result.Errors)
	assert.Equal(t, int32(2), h.direct.calls.Load())
	assert.Equal(t, int32(0), h.managed.calls.Load())
	assert.Equal(t, 0, subs.reserved)
}

func TestRunBatch_NoProviderAvailable(t *testing.T) {
	subs := &stubSubs{status: &models.SubscriptionStatus{Valid: false}}
	h := newHarness(t, activePrompts("p1", "p2"), subs, false)

	result := h.runner.RunBatch(context.Background(), RunOptions{Force: true})
	assert.Empty(t, result.Successes)
	require.Len(t, result.Errors, 2)
	for _, e := range result.Errors {
		assert.Contains(t, e, apperr.ErrNoProviderAvailable.Error())
	}
}

func TestRunBatch_SubscriptionUnreachable(t *testing.T) {
	t.Run("with direct key", func(t *testing.T) {
		subs := &stubSubs{err: apperr.ErrServiceUnreachable}
		h := newHarness(t, activePrompts("p1"), subs, true)

		result := h.runner.RunBatch(context.Background(), RunOptions{Force: true})
		assert.Len(t, result.Successes, 1)
		assert.Equal(t, int32(1), h.direct.calls.Load())
	})

	t.Run("without direct key", func(t *testing.T) {
		subs := &stubSubs{err: apperr.ErrServiceUnreachable}
		h := newHarness(t, activePrompts("p1", "p2"), subs, false)

		result := h.runner.RunBatch(context.Background(), RunOptions{Force: true})
		assert.Empty(t, result.Successes)
		require.Len(t, result.Errors, 1)
		assert.Contains(t, result.Errors[0], "subscription service unreachable")
		assert.Equal(t, int32(0), h.direct.calls.Load())
	})
}

func TestRunBatch_RetriesProviderErrorOnce(t *testing.T) {
	subs := &stubSubs{status: &models.SubscriptionStatus{Valid: false}}
	h := newHarness(t, activePrompts("p1", "p2"), subs, true)

	h.direct.fn = func(call int32, req models.GenerationRequest) (*models.GenerationResponse, error) {
		switch req.PromptID {
		case "p1":
			if call == 1 {
				return nil, &apperr.ProviderError{Provider: "direct", StatusCode: 503}
			}
			return &models.GenerationResponse{Title: "T1", BodyHTML: "<p>b</p>", RequestID: "r1"}, nil
		default:
			return nil, fmt.Errorf("%w: bad json", apperr.ErrMalformedResponse)
		}
	}

	result := h.runner.RunBatch(context.Background(), RunOptions{Force: true})
	assert.Len(t, result.Successes, 1)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "prompt p2: malformed response")
	// p1两次，p2不重试
	assert.Equal(t, int32(3), h.direct.calls.Load())
}

func TestRunBatch_PersistentProviderErrorSkipsPrompt(t *testing.T) {
	subs := &stubSubs{status: &models.SubscriptionStatus{Valid: false}}
	h := newHarness(t, activePrompts("p1", "p2"), subs, true)

	h.direct.fn = func(call int32, req models.GenerationRequest) (*models.GenerationResponse, error) {
		if req.PromptID == "p1" {
			return nil, &apperr.ProviderError{Provider: "direct", StatusCode: 500, Payload: "down"}
		}
		return &models.GenerationResponse{Title: "T2", BodyHTML: "<p>b</p>", RequestID: "r2"}, nil
	}

	result := h.runner.RunBatch(context.Background(), RunOptions{Force: true})
	assert.Len(t, result.Successes, 1)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "prompt p1: provider error")
	assert.Equal(t, 1, h.sink.count("prompt p1"))
}

func TestRunBatch_LockBudgetExceeded(t *testing.T) {
	subs := &stubSubs{status: &models.SubscriptionStatus{Valid: false}}
	prompts := activePrompts("p1", "p2", "p3")
	prompts[1].Timeout = 400 // 两次尝试超过10分钟
	h := newHarness(t, prompts, subs, true)

	result := h.runner.RunBatch(context.Background(), RunOptions{Force: true})
	assert.Len(t, result.Successes, 1)
	assert.Equal(t, []string{
		"prompt p2: skipped: lock budget exceeded",
		"prompt p3: skipped: lock budget exceeded",
	}, result.Errors)
	assert.Equal(t, int32(1), h.direct.calls.Load())
}

func TestRunBatch_PanicReleasesLock(t *testing.T) {
	subs := &stubSubs{status: &models.SubscriptionStatus{Valid: false}}
	h := newHarness(t, activePrompts("p1"), subs, true)
	h.direct.fn = func(int32, models.GenerationRequest) (*models.GenerationResponse, error) {
		panic("boom")
	}

	result := h.runner.RunBatch(context.Background(), RunOptions{Force: true})
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "boom")

	st, err := h.lock.Inspect(context.Background())
	require.NoError(t, err)
	assert.False(t, st.Held)
	assert.Equal(t, StateIdle, h.runner.State())
}

func TestRunBatch_CronSkippedWhenIntervalZero(t *testing.T) {
	subs := &stubSubs{status: &models.SubscriptionStatus{Valid: true, CreditsRemaining: 5}, credits: 5}
	h := newHarness(t, activePrompts("p1"), subs, false)
	require.NoError(t, h.store.SetOption(storage.OptionIntervalDays, "0"))

	result := h.runner.RunBatch(context.Background(), RunOptions{Trigger: TriggerCron})
	assert.Empty(t, result.Successes)
	assert.Empty(t, result.Errors)
	assert.Equal(t, int32(0), h.managed.calls.Load())

	result = h.runner.RunBatch(context.Background(), RunOptions{Force: true, Trigger: TriggerManual})
	assert.Len(t, result.Successes, 1)
}

func TestRunBatch_PassesDedupContext(t *testing.T) {
	subs := &stubSubs{status: &models.SubscriptionStatus{Valid: false}}
	h := newHarness(t, activePrompts("p1", "p2"), subs, true)
	require.NoError(t, h.store.SetOption(storage.OptionAutoPublish, "true"))

	var seen [][]models.RecentArticleSummary
	var mu sync.Mutex
	h.direct.fn = func(call int32, req models.GenerationRequest) (*models.GenerationResponse, error) {
		mu.Lock()
		seen = append(seen, req.RecentArticles)
		mu.Unlock()
		return &models.GenerationResponse{Title: "Title " + req.PromptID, BodyHTML: "<p>b</p>", RequestID: "r-" + req.PromptID}, nil
	}

	result := h.runner.RunBatch(context.Background(), RunOptions{Force: true})
	require.Len(t, result.Successes, 2)
	require.Len(t, seen, 2)
	assert.Empty(t, seen[0])
	require.Len(t, seen[1], 1)
	assert.Equal(t, "Title p1", seen[1][0].Title)
}

// 端到端：真实的订阅服务、托管提供方、发布器和本地存储，托管服务按次扣减额度
func TestRunBatch_EndToEndManaged(t *testing.T) {
	var (
		mu      sync.Mutex
		credits = 2
		seen    []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		switch r.URL.Path {
		case "/subscription":
			json.NewEncoder(w).Encode(models.SubscriptionStatus{Valid: true, PackageName: "Starter", CreditsRemaining: credits})
		case "/generate":
			var req struct {
				Domain   string `json:"domain"`
				PromptID string `json:"prompt_id"`
			}
			json.NewDecoder(r.Body).Decode(&req)
			seen = append(seen, req.PromptID)
			if credits == 0 {
				w.WriteHeader(http.StatusPaymentRequired)
				return
			}
			credits--
			fmt.Fprintf(w, `{"success":true,"request_id":"req-%s","token_usage":100,"article":{"title":"About %s","content":"<p>Body</p>","tags":["A","a"]}}`, req.PromptID, req.PromptID)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	store, err := storage.NewStore(filepath.Join(t.TempDir(), "e2e.db"))
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.SavePromptDocument(ctx, models.PromptDocument{
		DefaultSettings: models.DefaultSettings{Model: "m", Timeout: 10},
		Prompts: []models.Prompt{
			{ID: "p1", Text: "one", Category: "Tech", Active: true},
			{ID: "p2", Text: "two", Category: "Tech", Active: true},
			{ID: "p3", Text: "three", Category: "Tech", Active: true},
			{ID: "p4", Text: "four", Category: "Tech", Active: false},
		},
	}))

	managedCfg := &config.ManagedConfig{BaseURL: srv.URL, Timeout: time.Second}
	direct := provider.NewDirect(&config.OpenAIConfig{}, provider.OptionCredentials{Options: store}, nil)
	sink := &memorySink{}

	runner := NewRunner(Config{
		Domain:          "example.com",
		AuthorID:        "1",
		AutoPublish:     true,
		IntervalDays:    1,
		LockTTL:         time.Minute,
		DefaultTimeout:  10 * time.Second,
		DedupWindowDays: 30,
		DedupMaxItems:   10,
	}, Deps{
		Lock:          lock.NewStoreLock(store, "generation"),
		Subscriptions: subscription.NewService(managedCfg),
		Prompts:       store,
		Options:       store,
		Dedup:         dedup.NewBuilder(store, ""),
		Providers:     provider.Set{Managed: provider.NewManaged(managedCfg), Direct: direct},
		DirectKey:     direct,
		Publisher:     publisher.New(store, nil),
		Sink:          sink,
	})

	result := runner.RunBatch(ctx, RunOptions{Force: true, Trigger: TriggerManual})

	assert.Len(t, result.Successes, 2)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "prompt p3")
	assert.Contains(t, result.Errors[0], "credits exhausted")
	assert.Equal(t, []string{"p1", "p2"}, seen)
	assert.Equal(t, "部分生成失败", result.Summary())

	recent, err := store.QueryRecentEntries(ctx, "Tech", time.Now().Add(-time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, []string{"A"}, recent[0].Tags)
	assert.Equal(t, models.StatusPublished, recent[0].Status)
}

func TestRunBatch_ManagedRetryReservesCreditAgain(t *testing.T) {
	t.Run("credit still available", func(t *testing.T) {
		subs := &stubSubs{status: &models.SubscriptionStatus{Valid: true, CreditsRemaining: 1}, credits: 1}
		h := newHarness(t, activePrompts("p1"), subs, false)
		h.managed.fn = func(call int32, req models.GenerationRequest) (*models.GenerationResponse, error) {
			if call == 1 {
				return nil, &apperr.ProviderError{Provider: "managed", StatusCode: 502}
			}
			return &models.GenerationResponse{Title: "T", BodyHTML: "<p>b</p>", RequestID: "r1"}, nil
		}

		result := h.runner.RunBatch(context.Background(), RunOptions{Force: true})
		assert.Len(t, result.Successes, 1)
		assert.Equal(t, 2, subs.reserved)
		assert.Equal(t, 1, subs.committed)
	})

	t.Run("credit gone before retry", func(t *testing.T) {
		subs := &stubSubs{status: &models.SubscriptionStatus{Valid: true, CreditsRemaining: 1}, credits: 1, denyAfter: 1}
		h := newHarness(t, activePrompts("p1"), subs, false)
		h.managed.fn = func(int32, models.GenerationRequest) (*models.GenerationResponse, error) {
			return nil, &apperr.ProviderError{Provider: "managed", StatusCode: 502}
		}

		result := h.runner.RunBatch(context.Background(), RunOptions{Force: true})
		assert.Empty(t, result.Successes)
		assert.Equal(t, []string{"prompt p1: credits exhausted"}, result.Errors)
		assert.Equal(t, int32(1), h.managed.calls.Load())
		assert.Equal(t, 0, subs.committed)
	})
}

// hangingProvider 忽略自身超时，只在上下文结束时返回
type hangingProvider struct{}

func (hangingProvider) Name() string { return "direct" }

func (hangingProvider) GenerateArticle(ctx context.Context, _ models.GenerationRequest, _ time.Duration) (*models.GenerationResponse, error) {
	<-ctx.Done()
	return nil, &apperr.ProviderError{Provider: "direct", Err: ctx.Err()}
}

func TestRunBatch_DeadlineStopsBatchBeforeLockExpires(t *testing.T) {
	subs := &stubSubs{status: &models.SubscriptionStatus{Valid: false}}
	h := newHarness(t, activePrompts("p1", "p2"), subs, true)
	require.NoError(t, h.store.SavePromptDocument(context.Background(), models.PromptDocument{
		DefaultSettings: models.DefaultSettings{Model: "m"},
		Prompts:         activePrompts("p1", "p2"),
	}))
	h.runner.cfg.LockTTL = time.Second
	h.runner.cfg.DefaultTimeout = 200 * time.Millisecond
	h.runner.deps.Providers.Direct = hangingProvider{}

	start := time.Now()
	result := h.runner.RunBatch(context.Background(), RunOptions{Force: true})
	elapsed := time.Since(start)

	assert.Less(t, elapsed, time.Second)
	assert.Empty(t, result.Successes)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "prompt p1: skipped: lock budget exceeded")
	assert.Equal(t, "prompt p2: skipped: lock budget exceeded", result.Errors[1])

	st, err := h.lock.Inspect(context.Background())
	require.NoError(t, err)
	assert.False(t, st.Held)
}

// 直连提供方带配图：LLM和图片搜索共用每次尝试的超时，批次在锁过期前结束
func TestRunBatch_DirectWithPhotosStaysWithinLock(t *testing.T) {
	subs := &stubSubs{status: &models.SubscriptionStatus{Valid: false}}
	prompts := activePrompts("p1")
	prompts[0].Timeout = 1
	prompts[0].PhotoCount = 1
	h := newHarness(t, prompts, subs, true)

	const ttl = 2500 * time.Millisecond
	rival := lock.NewStoreLock(h.store, "generation")
	var (
		llmCalls  atomic.Int32
		overlaps  atomic.Int32
		rivalErrs atomic.Int32
	)
	llm := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		llmCalls.Add(1)
		ok, err := rival.TryAcquire(context.Background(), ttl)
		if err != nil {
			rivalErrs.Add(1)
		}
		if ok {
			overlaps.Add(1)
		}

		select {
		case <-time.After(900 * time.Millisecond):
		case <-r.Context().Done():
			return
		}
		content, _ := json.Marshal(map[string]any{"title": "Rome", "content": "<p>a</p><p>b</p>", "tags": []string{"Italy"}})
		out, _ := json.Marshal(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"choices": []map[string]any{{"index": 0, "message": map[string]any{"role": "assistant", "content": string(content)}}},
			"usage":   map[string]any{"total_tokens": 10},
		})
		w.Header().Set("Content-Type", "application/json")
		w.Write(out)
	}))
	defer llm.Close()

	images := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer images.Close()

	direct := provider.NewDirect(
		&config.OpenAIConfig{BaseURL: llm.URL, Model: "m"},
		provider.OptionCredentials{Options: h.store, LLMKey: "sk-test", ImageKey: "img-test"},
		provider.NewPexelsSearcher(&config.ImageSearchConfig{URL: images.URL, Timeout: 10 * time.Second}),
	)
	h.runner.cfg.LockTTL = ttl
	h.runner.deps.Providers.Direct = direct
	h.runner.deps.DirectKey = direct

	start := time.Now()
	result := h.runner.RunBatch(context.Background(), RunOptions{Force: true})
	elapsed := time.Since(start)

	assert.Less(t, elapsed, ttl)
	assert.Equal(t, int32(0), overlaps.Load())
	assert.Equal(t, int32(0), rivalErrs.Load())
	assert.Equal(t, int32(2), llmCalls.Load())
	assert.Empty(t, result.Successes)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "prompt p1:")
}
