// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/inkweaver/internal/gemini"
	"github.com/jeranaias/inkweaver/internal/generate"
	"github.com/jeranaias/inkweaver/internal/model"
	"github.com/jeranaias/inkweaver/internal/storage"
)

// fakeGen replays fragments and records requests.
type fakeGen struct {
	mu        sync.Mutex
	fragments []string
	used      model.Variant
	err       error
	title     string
	block     chan struct{}

	prompts   []string
	histories [][]model.Message
	titleReqs [][]model.Message
}

func (f *fakeGen) Generate(ctx context.Context, history []model.Message, prompt string, cfg model.ModelConfig, onPartial generate.PartialFunc) (model.GenerationResult, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.histories = append(f.histories, history)
	fragments, used, err, block := f.fragments, f.used, f.err, f.block
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return model.GenerationResult{}, ctx.Err()
		}
	}
	var acc strings.Builder
	for _, frag := range fragments {
		acc.WriteString(frag)
		onPartial(acc.String())
	}
	if err != nil {
		return model.GenerationResult{}, err
	}
	return model.GenerationResult{Text: acc.String(), UsedModel: used, Attempts: 1}, nil
}

func (f *fakeGen) SynthesizeTitle(ctx context.Context, history []model.Message) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.titleReqs = append(f.titleReqs, history)
	return f.title
}

func newTestService(t *testing.T, gen *fakeGen) (*Service, storage.Store) {
	t.Helper()
	store, err := storage.NewJSONStore(t.TempDir())
	require.NoError(t, err)
	l := logrus.New()
	l.SetOutput(io.Discard)
	return NewService(store, gen, WithLogger(l)), store
}

const longReply = "The tide came in carrying lanterns nobody had lit."

func TestService_CreateGetList(t *testing.T) {
	svc, _ := newTestService(t, &fakeGen{})

	sess, err := svc.Create(nil)
	require.NoError(t, err)
	assert.Equal(t, model.DefaultTitle, sess.Title)
	assert.Equal(t, model.DefaultModelConfig(), sess.Config)

	cfg := model.DefaultModelConfig()
	cfg.Variant = model.VariantLite
	second, err := svc.Create(&cfg)
	require.NoError(t, err)
	assert.Equal(t, model.VariantLite, second.Config.Variant)

	got, err := svc.Get(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, got.ID)

	metas, err := svc.List()
	require.NoError(t, err)
	assert.Len(t, metas, 2)

	_, err = svc.Get("nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestService_CreateRejectsInvalidConfig(t *testing.T) {
	svc, _ := newTestService(t, &fakeGen{})
	cfg := model.ModelConfig{Variant: model.Variant(9)}
	_, err := svc.Create(&cfg)
	assert.Error(t, err)
}

func TestService_GetReturnsCopy(t *testing.T) {
	svc, _ := newTestService(t, &fakeGen{fragments: []string{"hi"}})
	sess, err := svc.Create(nil)
	require.NoError(t, err)

	got, err := svc.Get(sess.ID)
	require.NoError(t, err)
	got.Title = "mutated"

	again, err := svc.Get(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DefaultTitle, again.Title)
}

func TestService_SendStreamsIntoPlaceholder(t *testing.T) {
	gen := &fakeGen{fragments: []string{"Once ", "upon ", "a time"}, used: model.VariantPro}
	svc, store := newTestService(t, gen)
	sess, err := svc.Create(nil)
	require.NoError(t, err)

	var updates []string
	res, err := svc.Send(context.Background(), sess.ID, "Start a fairy tale", func(text string) {
		updates = append(updates, text)
	})
	require.NoError(t, err)
	assert.Equal(t, "Once upon a time", res.Text)
	assert.Equal(t, []string{"Once ", "Once upon ", "Once upon a time"}, updates)

	got, err := svc.Get(sess.ID)
	require.NoError(t, err)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, model.RoleUser, got.Messages[0].Role)
	assert.Equal(t, "Start a fairy tale", got.Messages[0].Text)
	assert.Equal(t, model.RoleAssistant, got.Messages[1].Role)
	assert.Equal(t, "Once upon a time", got.Messages[1].Text)
	assert.False(t, got.Messages[1].IsThinking)

	persisted, err := store.Load(sess.ID)
	require.NoError(t, err)
	assert.Len(t, persisted.Messages, 2)
	assert.Equal(t, "Once upon a time", persisted.Messages[1].Text)

	// History sent with the prompt excludes the prompt itself.
	require.Len(t, gen.histories, 1)
	assert.Empty(t, gen.histories[0])
}

func TestService_SendFailureLeavesErrorNotice(t *testing.T) {
	gen := &fakeGen{err: errors.New("boom")}
	svc, _ := newTestService(t, gen)
	sess, err := svc.Create(nil)
	require.NoError(t, err)

	_, err = svc.Send(context.Background(), sess.ID, "hello", nil)
	require.Error(t, err)

	got, err := svc.Get(sess.ID)
	require.NoError(t, err)
	require.Len(t, got.Messages, 2)
	last := got.Messages[1]
	assert.True(t, IsErrorNotice(last))
	assert.Contains(t, last.Text, "Details: boom")

	// The notice is not sent back to the model on the next turn.
	gen.err = nil
	gen.fragments = []string{"ok"}
	_, err = svc.Send(context.Background(), sess.ID, "again", nil)
	require.NoError(t, err)
	require.Len(t, gen.histories, 2)
	require.Len(t, gen.histories[1], 1)
	assert.Equal(t, "hello", gen.histories[1][0].Text)
}

// blockingBackend answers every stream with a prompt safety block.
type blockingBackend struct{}

func (blockingBackend) StreamGenerateContent(_ context.Context, _ string, _ *gemini.GenerateContentRequest, cb gemini.StreamCallback) error {
	cb(&gemini.GenerateContentResponse{PromptFeedback: &gemini.PromptFeedback{BlockReason: "SAFETY"}})
	return nil
}

func (blockingBackend) GenerateContent(context.Context, string, *gemini.GenerateContentRequest) (*gemini.GenerateContentResponse, error) {
	return &gemini.GenerateContentResponse{}, nil
}

func TestService_BlockedPromptLeavesErrorNotice(t *testing.T) {
	store, err := storage.NewJSONStore(t.TempDir())
	require.NoError(t, err)
	l := logrus.New()
	l.SetOutput(io.Discard)
	orch := generate.NewOrchestrator(blockingBackend{}, generate.WithLogger(l))
	svc := NewService(store, orch, WithLogger(l))
	defer svc.Wait()

	sess, err := svc.Create(nil)
	require.NoError(t, err)

	_, err = svc.Send(context.Background(), sess.ID, "hello", nil)
	require.ErrorIs(t, err, gemini.ErrEmptyResponse)

	got, err := svc.Get(sess.ID)
	require.NoError(t, err)
	require.Len(t, got.Messages, 2)
	last := got.Messages[1]
	assert.True(t, IsErrorNotice(last))
	assert.False(t, last.IsThinking)
	assert.Contains(t, last.Text, "prompt blocked (SAFETY)")

	stored, err := store.Load(sess.ID)
	require.NoError(t, err)
	assert.True(t, IsErrorNotice(stored.Messages[1]), "the notice is persisted, not an empty reply")
}

func TestService_SendRejectsEmptyPrompt(t *testing.T) {
	svc, _ := newTestService(t, &fakeGen{})
	sess, err := svc.Create(nil)
	require.NoError(t, err)
	_, err = svc.Send(context.Background(), sess.ID, "   ", nil)
	assert.ErrorIs(t, err, ErrEmptyPrompt)
}

func TestService_SendUnknownSession(t *testing.T) {
	svc, _ := newTestService(t, &fakeGen{})
	_, err := svc.Send(context.Background(), "missing", "hi", nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestService_OneGenerationPerSession(t *testing.T) {
	gen := &fakeGen{fragments: []string{"done"}, block: make(chan struct{})}
	svc, _ := newTestService(t, gen)
	sess, err := svc.Create(nil)
	require.NoError(t, err)

	started := make(chan struct{})
	errc := make(chan error, 1)
	go func() {
		close(started)
		_, err := svc.Send(context.Background(), sess.ID, "first", nil)
		errc <- err
	}()
	<-started

	require.Eventually(t, func() bool {
		gen.mu.Lock()
		defer gen.mu.Unlock()
		return len(gen.prompts) == 1
	}, 2*time.Second, 10*time.Millisecond)

	_, err = svc.Send(context.Background(), sess.ID, "second", nil)
	assert.ErrorIs(t, err, ErrBusy)
	assert.ErrorIs(t, svc.Delete(sess.ID), ErrBusy)

	close(gen.block)
	require.NoError(t, <-errc)

	_, err = svc.Send(context.Background(), sess.ID, "third", nil)
	assert.NoError(t, err)
}

func TestService_RetitlesNewSession(t *testing.T) {
	gen := &fakeGen{fragments: []string{longReply}, title: "  Lanterns at Low Tide "}
	svc, _ := newTestService(t, gen)
	sess, err := svc.Create(nil)
	require.NoError(t, err)

	_, err = svc.Send(context.Background(), sess.ID, "A coastal village", nil)
	require.NoError(t, err)
	svc.Wait()

	got, err := svc.Get(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "Lanterns at Low Tide", got.Title)

	require.Len(t, gen.titleReqs, 1)
	req := gen.titleReqs[0]
	require.Len(t, req, 2)
	assert.Equal(t, "A coastal village", req[0].Text)
	assert.Equal(t, longReply, req[1].Text)
}

func TestService_RetitleRules(t *testing.T) {
	t.Run("short reply keeps title", func(t *testing.T) {
		gen := &fakeGen{fragments: []string{"Too short."}, title: "Ignored"}
		svc, _ := newTestService(t, gen)
		sess, err := svc.Create(nil)
		require.NoError(t, err)
		_, err = svc.Send(context.Background(), sess.ID, "go", nil)
		require.NoError(t, err)
		svc.Wait()
		assert.Empty(t, gen.titleReqs)
	})

	t.Run("unusable title is ignored", func(t *testing.T) {
		gen := &fakeGen{fragments: []string{longReply}, title: model.UntitledTitle}
		svc, _ := newTestService(t, gen)
		sess, err := svc.Create(nil)
		require.NoError(t, err)
		_, err = svc.Send(context.Background(), sess.ID, "go", nil)
		require.NoError(t, err)
		svc.Wait()
		got, _ := svc.Get(sess.ID)
		assert.Equal(t, model.DefaultTitle, got.Title)
	})

	t.Run("titled session keeps title once history grows", func(t *testing.T) {
		gen := &fakeGen{fragments: []string{longReply}, title: "Fresh"}
		svc, _ := newTestService(t, gen)
		sess, err := svc.Create(nil)
		require.NoError(t, err)
		_, err = svc.Rename(sess.ID, "Chosen By Hand")
		require.NoError(t, err)

		// First turn: request history is 1, still eligible.
		_, err = svc.Send(context.Background(), sess.ID, "one", nil)
		require.NoError(t, err)
		svc.Wait()
		_, err = svc.Rename(sess.ID, "Chosen By Hand")
		require.NoError(t, err)

		// Second turn: request history is 3 (two prior plus prompt), eligible.
		_, err = svc.Send(context.Background(), sess.ID, "two", nil)
		require.NoError(t, err)
		svc.Wait()
		_, err = svc.Rename(sess.ID, "Chosen By Hand")
		require.NoError(t, err)

		// Third turn: request history is 5, not eligible.
		_, err = svc.Send(context.Background(), sess.ID, "three", nil)
		require.NoError(t, err)
		svc.Wait()

		got, _ := svc.Get(sess.ID)
		assert.Equal(t, "Chosen By Hand", got.Title)
		assert.Len(t, gen.titleReqs, 2)
	})

	t.Run("snippet title counts as default", func(t *testing.T) {
		gen := &fakeGen{fragments: []string{longReply}, title: "Real Title"}
		svc, _ := newTestService(t, gen)
		sess, err := svc.Create(nil)
		require.NoError(t, err)
		for _, p := range []string{"a", "b", "c"} {
			_, err = svc.Send(context.Background(), sess.ID, p, nil)
			require.NoError(t, err)
		}
		svc.Wait()
		_, err = svc.Rename(sess.ID, "A lighthouse keeper...")
		require.NoError(t, err)

		_, err = svc.Send(context.Background(), sess.ID, "d", nil)
		require.NoError(t, err)
		svc.Wait()
		got, _ := svc.Get(sess.ID)
		assert.Equal(t, "Real Title", got.Title)
	})
}

func TestService_Regenerate(t *testing.T) {
	gen := &fakeGen{fragments: []string{"first draft"}}
	svc, _ := newTestService(t, gen)
	sess, err := svc.Create(nil)
	require.NoError(t, err)

	_, err = svc.Regenerate(context.Background(), sess.ID, nil)
	assert.ErrorIs(t, err, ErrCannotRegenerate)

	_, err = svc.Send(context.Background(), sess.ID, "opening line", nil)
	require.NoError(t, err)

	gen.fragments = []string{"second draft"}
	res, err := svc.Regenerate(context.Background(), sess.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, "second draft", res.Text)

	got, err := svc.Get(sess.ID)
	require.NoError(t, err)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "opening line", got.Messages[0].Text)
	assert.Equal(t, "second draft", got.Messages[1].Text)

	require.Len(t, gen.prompts, 2)
	assert.Equal(t, "opening line", gen.prompts[1])
	assert.Empty(t, gen.histories[1])

	// Busy flag is released after a refused regenerate too.
	_, err = svc.Send(context.Background(), sess.ID, "next", nil)
	assert.NoError(t, err)
}

func TestService_DevelopCharacter(t *testing.T) {
	gen := &fakeGen{fragments: []string{"A profile"}}
	svc, _ := newTestService(t, gen)

	c := model.NewCharacter("Mara Vell")
	c.Goals = "Find her brother"
	id, res, err := svc.DevelopCharacter(context.Background(), "", c, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, "A profile", res.Text)
	require.Len(t, gen.prompts, 1)
	assert.Equal(t, c.Prompt(), gen.prompts[0])

	_, _, err = svc.DevelopCharacter(context.Background(), id, &model.Character{}, nil)
	assert.Error(t, err)
}

func TestService_UpdateConfigAndRename(t *testing.T) {
	svc, store := newTestService(t, &fakeGen{})
	sess, err := svc.Create(nil)
	require.NoError(t, err)

	cfg := sess.Config
	cfg.Variant = model.VariantFlash
	cfg.AutoSwitch = false
	updated, err := svc.UpdateConfig(sess.ID, cfg)
	require.NoError(t, err)
	assert.Equal(t, model.VariantFlash, updated.Config.Variant)

	_, err = svc.Rename(sess.ID, "  ")
	assert.Error(t, err)
	_, err = svc.Rename(sess.ID, "The Salt Road")
	require.NoError(t, err)

	persisted, err := store.Load(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "The Salt Road", persisted.Title)
	assert.False(t, persisted.Config.AutoSwitch)
}

func TestService_LoadsFromStore(t *testing.T) {
	gen := &fakeGen{fragments: []string{"reply"}}
	svc, store := newTestService(t, gen)

	existing := model.NewChatSession()
	existing.Append(model.NewUserMessage("earlier"))
	existing.Append(model.NewAssistantMessage("earlier reply"))
	require.NoError(t, store.Save(existing))

	_, err := svc.Send(context.Background(), existing.ID, "now", nil)
	require.NoError(t, err)
	require.Len(t, gen.histories[0], 2)
}

func TestService_Delete(t *testing.T) {
	svc, _ := newTestService(t, &fakeGen{})
	sess, err := svc.Create(nil)
	require.NoError(t, err)
	require.NoError(t, svc.Delete(sess.ID))
	_, err = svc.Get(sess.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}
