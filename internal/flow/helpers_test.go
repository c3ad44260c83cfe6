package flow

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/BTreeMap/PostPipe/internal/models"
)

// fakeBackend is a scripted Backend for tests.
type fakeBackend struct {
	mu sync.Mutex

	analyzeErr  error
	generateErr error
	refineErrs  []error // consumed one per RefinePosts call; nil entries succeed

	analyzeCalls  int
	generateCalls int
	refineCalls   int
	lastFeedback  string
	lastContext   models.CampaignContext
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{}
}

func samplePosts(label string) models.AggregatePosts {
	return models.AggregatePosts{
		Facebook:  models.PlatformPost{Text: label + " facebook", Hashtags: []string{"#sale"}},
		Instagram: models.PlatformPost{Text: label + " instagram", Hashtags: []string{"#sale"}, ImageSuggestions: []string{"storefront"}},
		LinkedIn:  models.PlatformPost{Text: label + " linkedin"},
		X:         models.PlatformPost{Text: label + " x", Hashtags: []string{"#sale"}},
	}
}

func (f *fakeBackend) AnalyzeContext(ctx context.Context, message, audience string, tone models.Tone) (models.CampaignContext, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.analyzeCalls++
	if f.analyzeErr != nil {
		return nil, f.analyzeErr
	}
	if err := ctx.Err(); err != nil {
		return nil, models.NewBackendError(OpAnalyzeContext, models.BackendErrorCanceled, err)
	}
	return models.CampaignContext{
		models.ContextKeyKeyMessages:        []any{message},
		models.ContextKeyCreativeDirections: []any{"bold colors", "countdown"},
	}, nil
}

func (f *fakeBackend) GeneratePosts(ctx context.Context, cc models.CampaignContext, message, audience string, tone models.Tone, useEmojis bool) (models.AggregatePosts, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.generateCalls++
	f.lastContext = cc
	if f.generateErr != nil {
		return models.AggregatePosts{}, f.generateErr
	}
	if err := ctx.Err(); err != nil {
		return models.AggregatePosts{}, models.NewBackendError(OpGeneratePosts, models.BackendErrorCanceled, err)
	}
	return samplePosts("generated"), nil
}

func (f *fakeBackend) RefinePosts(ctx context.Context, current models.AggregatePosts, feedback string) (models.AggregatePosts, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refineCalls++
	f.lastFeedback = feedback
	if len(f.refineErrs) > 0 {
		err := f.refineErrs[0]
		f.refineErrs = f.refineErrs[1:]
		if err != nil {
			return models.AggregatePosts{}, err
		}
	}
	return samplePosts(fmt.Sprintf("refined %d", f.refineCalls)), nil
}

var errBackendDown = models.NewBackendError("test", models.BackendErrorUnavailable, errors.New("backend down"))

func mustMachine(b Backend, opts ...MachineOption) *Machine {
	m, err := NewMachine(b, opts...)
	if err != nil {
		panic(err)
	}
	return m
}

func sampleRequest() models.Request {
	r, err := models.NewRequest("Launch sale", "young adults", models.ToneFriendly, true)
	if err != nil {
		panic(err)
	}
	return r
}
