package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eduadocs/backend/internal/domain"
	"github.com/eduadocs/backend/internal/eventbus"
	"github.com/eduadocs/backend/internal/repository/memory"
	"github.com/eduadocs/backend/internal/service/draftgen"
	"github.com/eduadocs/backend/internal/service/exporter"
	"github.com/eduadocs/backend/internal/service/ingest"
	"github.com/eduadocs/backend/internal/service/wizard"
)

func newTestWizardService() (*WizardService, *eventbus.WizardEventBus) {
	bus := eventbus.NewWizardEventBus()
	controller := wizard.NewController(draftgen.NewTemplateGenerator(), exporter.New())
	svc := NewWizardService(
		memory.NewSessionRepository(time.Hour, time.Minute),
		controller,
		ingest.New(ingest.Options{MaxFiles: 5}),
		bus,
	)
	return svc, bus
}

var testForm = domain.FormData{
	DocumentType: domain.DocumentTypeSummary,
	Subject:      "Biology",
	Topic:        "Photosynthesis",
	Audience:     "High School",
	Language:     domain.LanguageEnglish,
	LLMProvider:  domain.ProviderOpenAI,
}

func TestWizardServiceFullFlow(t *testing.T) {
	svc, bus := newTestWizardService()
	ctx := context.Background()

	var events []eventbus.WizardEvent
	eventbus.SubscribeAll(bus, func(ctx context.Context, event eventbus.WizardEvent) error {
		events = append(events, event)
		return nil
	})

	state, err := svc.Create(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.StepInput, state.Step)

	state, err = svc.Apply(ctx, state.ID, wizard.Command{Action: domain.ActionSubmit, Form: &testForm})
	require.NoError(t, err)
	assert.Equal(t, domain.StepDraft, state.Step)
	assert.Contains(t, state.GeneratedDraft, "Photosynthesis")

	edited := "X"
	state, err = svc.Apply(ctx, state.ID, wizard.Command{Action: domain.ActionSave, Content: &edited})
	require.NoError(t, err)
	state, err = svc.Apply(ctx, state.ID, wizard.Command{Action: domain.ActionApprove})
	require.NoError(t, err)
	assert.Equal(t, "X", state.ApprovedContent)

	_, err = svc.Artifact(ctx, state.ID)
	assert.ErrorIs(t, err, ErrNoArtifact)

	state, err = svc.Apply(ctx, state.ID, wizard.Command{Action: domain.ActionGenerateDocument, Format: domain.FormatMarkdown})
	require.NoError(t, err)
	assert.Equal(t, domain.StepFinal, state.Step)

	artifact, err := svc.Artifact(ctx, state.ID)
	require.NoError(t, err)
	assert.Equal(t, "Biology_Photosynthesis.md", artifact.Filename)
	assert.NotEmpty(t, artifact.Content)

	stored, err := svc.Get(ctx, state.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StepFinal, stored.Step)

	require.NotEmpty(t, events)
	assert.Equal(t, eventbus.WizardEventSessionCreated, events[0].Type)
	last := events[len(events)-1]
	assert.Equal(t, eventbus.WizardEventStepChanged, last.Type)
	assert.Equal(t, domain.StepApproved, last.From)
	assert.Equal(t, domain.StepFinal, last.To)
}

func TestWizardServiceRejectedActionKeepsStoredState(t *testing.T) {
	svc, bus := newTestWizardService()
	ctx := context.Background()

	var rejected []eventbus.WizardEvent
	bus.Subscribe(eventbus.WizardEventActionRejected, func(ctx context.Context, event eventbus.WizardEvent) error {
		rejected = append(rejected, event)
		return nil
	})

	state, err := svc.Create(ctx)
	require.NoError(t, err)

	got, err := svc.Apply(ctx, state.ID, wizard.Command{Action: domain.ActionSubmit, Form: &domain.FormData{Subject: "Biology"}})
	require.Error(t, err)
	assert.True(t, wizard.IsValidation(err))
	assert.Equal(t, domain.StepInput, got.Step)

	stored, err := svc.Get(ctx, state.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.Form)

	require.Len(t, rejected, 1)
	assert.Equal(t, domain.ActionSubmit, rejected[0].Action)
	assert.NotEmpty(t, rejected[0].Error)
}

func TestWizardServiceUnknownSession(t *testing.T) {
	svc, _ := newTestWizardService()
	ctx := context.Background()

	_, err := svc.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	_, err = svc.Apply(ctx, "missing", wizard.Command{Action: domain.ActionBack})
	assert.ErrorIs(t, err, ErrSessionNotFound)

	assert.ErrorIs(t, svc.End(ctx, "missing"), ErrSessionNotFound)
}

func TestWizardServiceEnd(t *testing.T) {
	svc, _ := newTestWizardService()
	ctx := context.Background()

	state, err := svc.Create(ctx)
	require.NoError(t, err)
	_, _, err = svc.Upload(ctx, state.ID, []ingest.File{{Name: "notes.txt", Data: []byte("chlorophyll absorbs light\n")}})
	require.NoError(t, err)

	require.NoError(t, svc.End(ctx, state.ID))
	_, err = svc.Get(ctx, state.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.False(t, svc.ingest.DocumentsAvailable(state.ID))
}

func TestWizardServiceUpload(t *testing.T) {
	svc, _ := newTestWizardService()
	ctx := context.Background()

	state, err := svc.Create(ctx)
	require.NoError(t, err)
	assert.False(t, state.DocumentsAvailable)

	_, _, err = svc.Upload(ctx, state.ID, []ingest.File{{Name: "image.png", Data: []byte("\x89PNG\r\n\x1a\n")}})
	require.Error(t, err)
	assert.True(t, wizard.IsValidation(err))

	state, docs, err := svc.Upload(ctx, state.ID, []ingest.File{{Name: "notes.txt", Data: []byte("chlorophyll absorbs light\n")}})
	require.NoError(t, err)
	assert.Len(t, docs, 1)
	assert.True(t, state.DocumentsAvailable)

	listed, err := svc.Documents(ctx, state.ID)
	require.NoError(t, err)
	assert.Len(t, listed, 1)

	// 草稿中注明使用了上传资料
	state, err = svc.Apply(ctx, state.ID, wizard.Command{Action: domain.ActionSubmit, Form: &testForm})
	require.NoError(t, err)
	assert.Contains(t, state.GeneratedDraft, "uploaded documents")
}

func TestWizardServiceSerialisesActions(t *testing.T) {
	svc, _ := newTestWizardService()
	ctx := context.Background()

	state, err := svc.Create(ctx)
	require.NoError(t, err)

	// 并发提交同一会话：只有一个能从 input 迁移到 draft
	var (
		wg        sync.WaitGroup
		mutex     sync.Mutex
		succeeded int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Apply(ctx, state.ID, wizard.Command{Action: domain.ActionSubmit, Form: &testForm})
			if err == nil {
				mutex.Lock()
				succeeded++
				mutex.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, succeeded)
}

func TestWizardServiceSubscriberErrorDoesNotFailAction(t *testing.T) {
	svc, bus := newTestWizardService()
	ctx := context.Background()
	bus.Subscribe(eventbus.WizardEventStepChanged, func(ctx context.Context, event eventbus.WizardEvent) error {
		return errors.New("renderer offline")
	})

	state, err := svc.Create(ctx)
	require.NoError(t, err)
	state, err = svc.Apply(ctx, state.ID, wizard.Command{Action: domain.ActionSubmit, Form: &testForm})
	require.NoError(t, err)
	assert.Equal(t, domain.StepDraft, state.Step)
}
