package draftgen

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eduadocs/backend/internal/domain"
)

var form = domain.FormData{
	DocumentType: domain.DocumentTypeSummary,
	Subject:      "Biology",
	Topic:        "Photosynthesis",
	Audience:     "High School",
	Details:      "Focus on chlorophyll",
	Language:     domain.LanguageEnglish,
	LLMProvider:  domain.ProviderOpenAI,
	UseWebSearch: true,
}

func TestTemplateGeneratorEmbedsFormFields(t *testing.T) {
	g := NewTemplateGenerator()

	draft, err := g.GenerateDraft(context.Background(), domain.GenerationRequest{Form: form})
	require.NoError(t, err)

	for _, want := range []string{"Biology", "Photosynthesis", "Summary", "High School", "Focus on chlorophyll", "OpenAI", "English", "web search"} {
		assert.Contains(t, draft, want)
	}
	assert.NotContains(t, draft, "{topic}")
}

func TestTemplateGeneratorIsDeterministic(t *testing.T) {
	g := NewTemplateGenerator()
	req := domain.GenerationRequest{Form: form}

	first, err := g.GenerateDraft(context.Background(), req)
	require.NoError(t, err)
	second, err := g.GenerateDraft(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestTemplateGeneratorPerDocumentType(t *testing.T) {
	g := NewTemplateGenerator()
	headings := map[domain.DocumentType]string{
		domain.DocumentTypeSummary:            "## Key Concepts",
		domain.DocumentTypeExerciseList:       "## Exercises",
		domain.DocumentTypeExerciseCorrection: "## Solutions",
	}

	for docType, heading := range headings {
		f := form
		f.DocumentType = docType
		draft, err := g.GenerateDraft(context.Background(), domain.GenerationRequest{Form: f})
		require.NoError(t, err)
		assert.Contains(t, draft, heading, docType)
		assert.True(t, strings.HasPrefix(draft, "# "+string(docType)), docType)
	}
}

func TestTemplateGeneratorPlaceholders(t *testing.T) {
	g := NewTemplateGenerator()
	f := domain.FormData{DocumentType: domain.DocumentTypeExerciseList, Subject: "Math", Topic: "Fractions"}

	draft, err := g.GenerateDraft(context.Background(), domain.GenerationRequest{Form: f, DocumentsAvailable: true})
	require.NoError(t, err)
	assert.Contains(t, draft, notSpecified)
	assert.Contains(t, draft, "uploaded documents")
}

func TestTemplateGeneratorUnknownType(t *testing.T) {
	g := NewTemplateGenerator()
	f := form
	f.DocumentType = "Essay"

	_, err := g.GenerateDraft(context.Background(), domain.GenerationRequest{Form: f})
	assert.ErrorIs(t, err, ErrUnknownDocType)
}

type fakeChatModel struct {
	reply    string
	err      error
	received []*schema.Message
}

func (m *fakeChatModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	m.received = input
	if m.err != nil {
		return nil, m.err
	}
	return schema.AssistantMessage(m.reply, nil), nil
}

func (m *fakeChatModel) Stream(_ context.Context, _ []*schema.Message, _ ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not implemented")
}

func TestChatModelGenerator(t *testing.T) {
	cm := &fakeChatModel{reply: "# Photosynthesis\n\nExpanded draft"}
	g := NewChatModelGenerator(cm)

	draft, err := g.GenerateDraft(context.Background(), domain.GenerationRequest{Form: form})
	require.NoError(t, err)
	assert.Equal(t, cm.reply, draft)

	require.Len(t, cm.received, 2)
	assert.Equal(t, schema.System, cm.received[0].Role)
	assert.Contains(t, cm.received[0].Content, "English")
	assert.Contains(t, cm.received[1].Content, "Photosynthesis")
}

func TestChatModelGeneratorStripsOuterFence(t *testing.T) {
	cm := &fakeChatModel{reply: "```markdown\n# Photosynthesis\n\nBody\n```"}

	draft, err := NewChatModelGenerator(cm).GenerateDraft(context.Background(), domain.GenerationRequest{Form: form})
	require.NoError(t, err)
	assert.Equal(t, "# Photosynthesis\n\nBody\n", draft)
}

func TestChatModelGeneratorRequiresKnowledgeSource(t *testing.T) {
	cm := &fakeChatModel{reply: "x"}
	g := NewChatModelGenerator(cm)

	f := form
	f.UseWebSearch = false
	_, err := g.GenerateDraft(context.Background(), domain.GenerationRequest{Form: f})
	assert.ErrorIs(t, err, ErrNoKnowledgeSource)
	assert.Nil(t, cm.received)

	_, err = g.GenerateDraft(context.Background(), domain.GenerationRequest{Form: f, DocumentsAvailable: true})
	assert.NoError(t, err)
}

func TestChatModelGeneratorErrors(t *testing.T) {
	providerErr := errors.New("rate limited")
	_, err := NewChatModelGenerator(&fakeChatModel{err: providerErr}).
		GenerateDraft(context.Background(), domain.GenerationRequest{Form: form})
	assert.ErrorIs(t, err, providerErr)

	_, err = NewChatModelGenerator(&fakeChatModel{reply: "  "}).
		GenerateDraft(context.Background(), domain.GenerationRequest{Form: form})
	assert.ErrorIs(t, err, ErrEmptyModelOutput)
}
