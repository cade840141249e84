package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"

	"github.com/eduadocs/backend/config"
	"github.com/eduadocs/backend/internal/domain"
	"github.com/eduadocs/backend/internal/eventbus"
	"github.com/eduadocs/backend/internal/repository/memory"
	"github.com/eduadocs/backend/internal/service"
	"github.com/eduadocs/backend/internal/service/draftgen"
	"github.com/eduadocs/backend/internal/service/exporter"
	"github.com/eduadocs/backend/internal/service/ingest"
	"github.com/eduadocs/backend/internal/service/wizard"
)

type runOptions struct {
	outDir    string
	format    string
	documents []string
}

// actionQuit 只在终端中出现，结束会话并退出
const actionQuit = "quit"

var actionLabels = map[domain.Action]string{
	domain.ActionRegenerate:       "Regenerate draft",
	domain.ActionSave:             "Edit draft",
	domain.ActionApprove:          "Approve draft",
	domain.ActionBack:             "Back to form",
	domain.ActionGenerateDocument: "Generate document",
	domain.ActionEdit:             "Edit content",
	domain.ActionStartOver:        "Start over",
	domain.ActionCreateNew:        "Create new document",
	domain.ActionViewContent:      "View content",
}

func run(ctx context.Context, cfg *config.Config, opts runOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}

	svc := service.NewWizardService(
		memory.NewSessionRepository(cfg.Session.TTL, cfg.Session.CleanupInterval),
		wizard.NewController(draftgen.NewTemplateGenerator(), exporter.New()),
		ingest.New(ingest.Options{MaxFiles: cfg.Upload.MaxFiles, MaxFileBytes: cfg.Upload.MaxFileBytes}),
		eventbus.NewWizardEventBus(),
	)

	state, err := svc.Create(ctx)
	if err != nil {
		return err
	}
	defer svc.End(context.Background(), state.ID)

	if len(opts.documents) > 0 {
		files, err := readDocuments(opts.documents)
		if err != nil {
			return err
		}
		if state, _, err = svc.Upload(ctx, state.ID, files); err != nil {
			return err
		}
		fmt.Printf("Uploaded %d reference document(s).\n", len(files))
	}

	t := &terminalWizard{svc: svc, opts: opts}
	err = t.loop(ctx, state)
	if errors.Is(err, terminal.InterruptErr) {
		return nil
	}
	return err
}

func readDocuments(paths []string) ([]ingest.File, error) {
	files := make([]ingest.File, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read document: %w", err)
		}
		files = append(files, ingest.File{Name: filepath.Base(path), Data: data})
	}
	return files, nil
}

type terminalWizard struct {
	svc  *service.WizardService
	opts runOptions
}

func (t *terminalWizard) loop(ctx context.Context, state domain.SessionState) error {
	for {
		cmd, quit, err := t.prompt(state)
		if err != nil {
			return err
		}
		if quit {
			return nil
		}

		next, err := t.svc.Apply(ctx, state.ID, cmd)
		if err != nil {
			if wizard.IsValidation(err) || wizard.IsExternal(err) {
				fmt.Printf("\n%v\n\n", err)
				continue
			}
			return err
		}
		if next.Step == domain.StepFinal && cmd.Action == domain.ActionGenerateDocument {
			if err := t.writeArtifact(ctx, next.ID); err != nil {
				return err
			}
		}
		state = next
	}
}

// prompt 根据当前步骤向用户询问下一步动作
func (t *terminalWizard) prompt(state domain.SessionState) (wizard.Command, bool, error) {
	switch state.Step {
	case domain.StepInput:
		form, err := askForm(formDefaults(state))
		if err != nil {
			return wizard.Command{}, false, err
		}
		return wizard.Command{Action: domain.ActionSubmit, Form: &form}, false, nil
	case domain.StepDraft:
		printBlock("Draft", state.GeneratedDraft)
	case domain.StepApproved:
		printBlock("Approved content", state.ApprovedContent)
	case domain.StepFinal:
		if state.Artifact != nil {
			fmt.Printf("\nDocument ready: %s (%d bytes)\n\n", state.Artifact.Filename, state.Artifact.Size)
		}
	}

	action, err := t.askAction(t.svc.AvailableActions(state))
	if err != nil {
		return wizard.Command{}, false, err
	}
	if action == actionQuit {
		return wizard.Command{}, true, nil
	}

	cmd := wizard.Command{Action: domain.Action(action)}
	switch cmd.Action {
	case domain.ActionSave:
		content, err := askContent(state.GeneratedDraft)
		if err != nil {
			return wizard.Command{}, false, err
		}
		cmd.Content = &content
	case domain.ActionGenerateDocument:
		format, err := askFormat(t.opts.format)
		if err != nil {
			return wizard.Command{}, false, err
		}
		cmd.Format = format
	}
	return cmd, false, nil
}

// formDefaults 从草稿返回表单时保留已填写的内容
func formDefaults(state domain.SessionState) domain.FormData {
	if state.Form != nil {
		return *state.Form
	}
	return domain.FormData{
		DocumentType: domain.DocumentTypeSummary,
		Audience:     wizard.DefaultAudience,
		Language:     domain.LanguageEnglish,
		LLMProvider:  domain.ProviderOpenAI,
		UseWebSearch: true,
	}
}

func (t *terminalWizard) askAction(actions []domain.Action) (string, error) {
	options := make([]string, 0, len(actions)+1)
	values := make(map[string]string, len(actions)+1)
	for _, a := range actions {
		label := actionLabels[a]
		options = append(options, label)
		values[label] = string(a)
	}
	options = append(options, "Quit")
	values["Quit"] = actionQuit

	var answer string
	if err := survey.AskOne(&survey.Select{Message: "What next?", Options: options}, &answer); err != nil {
		return "", err
	}
	return values[answer], nil
}

func (t *terminalWizard) writeArtifact(ctx context.Context, sessionID string) error {
	artifact, err := t.svc.Artifact(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(t.opts.outDir, 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	path := filepath.Join(t.opts.outDir, artifact.Filename)
	if err := os.WriteFile(path, artifact.Content, 0644); err != nil {
		return fmt.Errorf("write document: %w", err)
	}
	fmt.Printf("\nSaved %s\n", path)
	return nil
}

// formAnswers survey 只能写入基础类型，选择项先按字符串接收
type formAnswers struct {
	DocumentType string `survey:"document_type"`
	Subject      string `survey:"subject"`
	Topic        string `survey:"topic"`
	Audience     string `survey:"audience"`
	Details      string `survey:"details"`
	Context      string `survey:"context"`
	Language     string `survey:"language"`
	Provider     string `survey:"provider"`
	UseWebSearch bool   `survey:"use_web_search"`
}

func askForm(defaults domain.FormData) (domain.FormData, error) {
	questions := []*survey.Question{
		{
			Name:   "document_type",
			Prompt: &survey.Select{Message: "Document type:", Options: toStrings(domain.DocumentTypes), Default: string(defaults.DocumentType)},
		},
		{
			Name:     "subject",
			Prompt:   &survey.Input{Message: "Subject:", Default: defaults.Subject},
			Validate: survey.Required,
		},
		{
			Name:     "topic",
			Prompt:   &survey.Input{Message: "Topic:", Default: defaults.Topic},
			Validate: survey.Required,
		},
		{
			Name:   "audience",
			Prompt: &survey.Input{Message: "Target audience:", Default: defaults.Audience},
		},
		{
			Name:   "details",
			Prompt: &survey.Multiline{Message: "Additional details:", Default: defaults.Details},
		},
		{
			Name:   "context",
			Prompt: &survey.Multiline{Message: "Context:", Default: defaults.Context},
		},
		{
			Name:   "language",
			Prompt: &survey.Select{Message: "Language:", Options: toStrings(domain.Languages), Default: string(defaults.Language)},
		},
		{
			Name:   "provider",
			Prompt: &survey.Select{Message: "AI provider:", Options: toStrings(domain.Providers), Default: string(defaults.LLMProvider)},
		},
		{
			Name:   "use_web_search",
			Prompt: &survey.Confirm{Message: "Use web search?", Default: defaults.UseWebSearch},
		},
	}

	var answers formAnswers
	if err := survey.Ask(questions, &answers); err != nil {
		return domain.FormData{}, err
	}
	return domain.FormData{
		DocumentType: domain.DocumentType(answers.DocumentType),
		Subject:      answers.Subject,
		Topic:        answers.Topic,
		Audience:     answers.Audience,
		Details:      answers.Details,
		Context:      answers.Context,
		Language:     domain.Language(answers.Language),
		LLMProvider:  domain.Provider(answers.Provider),
		UseWebSearch: answers.UseWebSearch,
	}, nil
}

func askContent(current string) (string, error) {
	var content string
	prompt := &survey.Editor{
		Message:       "Edit the draft:",
		Default:       current,
		AppendDefault: true,
		HideDefault:   true,
		FileName:      "*.md",
	}
	if err := survey.AskOne(prompt, &content); err != nil {
		return "", err
	}
	return content, nil
}

func askFormat(defaultFormat string) (domain.OutputFormat, error) {
	if !domain.OutputFormat(defaultFormat).Valid() {
		defaultFormat = string(domain.FormatMarkdown)
	}
	var format string
	prompt := &survey.Select{Message: "Export format:", Options: toStrings(domain.OutputFormats), Default: defaultFormat}
	if err := survey.AskOne(prompt, &format); err != nil {
		return "", err
	}
	return domain.OutputFormat(format), nil
}

func printBlock(title, body string) {
	rule := strings.Repeat("-", 60)
	fmt.Printf("\n%s\n%s\n%s\n%s\n%s\n\n", rule, title, rule, strings.TrimRight(body, "\n"), rule)
}

func toStrings[T ~string](values []T) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = string(v)
	}
	return out
}
