package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/LegendarySpy/Glimpse-sub000/internal/capture"
	"github.com/LegendarySpy/Glimpse-sub000/internal/dictionary"
	"github.com/LegendarySpy/Glimpse-sub000/internal/events"
	"github.com/LegendarySpy/Glimpse-sub000/internal/modectx"
	"github.com/LegendarySpy/Glimpse-sub000/internal/observe"
	"github.com/LegendarySpy/Glimpse-sub000/internal/settings"
	"github.com/LegendarySpy/Glimpse-sub000/internal/store"
	"github.com/LegendarySpy/Glimpse-sub000/pkg/audio"
	"github.com/LegendarySpy/Glimpse-sub000/pkg/provider/stt"
	"github.com/LegendarySpy/Glimpse-sub000/pkg/provider/stt/cloud"
)

// runPipeline drives one finished recording through persist, transcribe,
// cleanup, dictionary, paste and history. Runs on its own goroutine; every
// stage boundary checks ctx so a same-origin press can abandon the work.
func (c *Controller) runPipeline(ctx context.Context, rec capture.Recording, snap settings.Settings) {
	pipelineStart := c.deps.Now()

	ctx, span := observe.StartSpan(ctx, "dictation.pipeline")
	defer span.End()
	log := observe.Logger(ctx)

	gain := audio.NormalizeGain(rec.Samples)
	if gain != 1 {
		log.Debug("pipeline: normalized recording gain", "gain", gain)
	}

	saved, err := c.deps.Persist(ctx, rec.Samples, rec.SampleRate, rec.Channels, rec.StartedAt, rec.EndedAt)
	if err != nil {
		log.Error("pipeline: persisting recording failed", "error", err)
		c.deps.Bus.Publish(events.RecordingError, err.Error())
		c.deps.Bus.Publish(events.ToastShow, "Could not save recording")
		c.finish(StateError)
		return
	}
	c.deps.Bus.Publish(events.RecordingComplete, map[string]any{
		"path":     saved.Path,
		"duration": saved.DurationSeconds,
	})
	if c.deps.Metrics != nil {
		c.deps.Metrics.RecordingDuration.Record(ctx, saved.DurationSeconds)
	}

	if c.cancelled(ctx, saved.Path) {
		return
	}

	// Mode context and edit-mode selection are resolved once, at stop time.
	var modePrompt string
	if c.deps.Foreground != nil {
		modePrompt = modectx.Prompt(c.deps.Foreground(), snap.Personalities)
	}

	editMode, selected, err := c.resolveEditMode(snap)
	if err != nil {
		c.deps.Bus.Publish(events.TranscriptionError, err.Error())
		c.deps.Bus.Publish(events.ToastShow, err.Error())
		c.recordError(err.Error(), saved.Path, saved.DurationSeconds)
		c.finish(StateError)
		return
	}

	mono := rec.Samples
	if rec.Channels > 1 {
		mono = audio.DownmixMean(rec.Samples, rec.Channels)
	}

	c.deps.Bus.Publish(events.TranscriptionStart, nil)
	res, err := c.transcribe(ctx, snap, mono, rec.SampleRate, saved.Path, selected, editMode)
	if err != nil {
		if ctx.Err() != nil {
			c.discardCancelled(saved.Path)
			return
		}
		c.reportTranscriptionFailure(ctx, snap, err, saved.Path, saved.DurationSeconds)
		return
	}
	if c.cancelled(ctx, saved.Path) {
		return
	}

	if res.Transcript == "" {
		c.handleEmptyTranscript(saved.Path)
		return
	}

	final, raw, llmModel, llmCleaned := c.refine(ctx, snap, res, selected, editMode, modePrompt)
	final = dictionary.ApplyReplacements(final, snap.Replacements)

	if c.cancelled(ctx, saved.Path) {
		return
	}

	c.deliver(ctx, snap, final)

	meta := store.Metadata{
		SpeechModel:          res.SpeechModel,
		LLMModel:             llmModel,
		WordCount:            stt.WordCount(final),
		AudioDurationSeconds: saved.DurationSeconds,
	}
	var recRecord *store.Record
	var saveErr error
	if llmCleaned && raw != final {
		recRecord, saveErr = c.deps.History.SaveWithCleanup(raw, final, saved.Path, meta)
	} else {
		recRecord, saveErr = c.deps.History.Save(final, saved.Path, meta)
	}
	if saveErr != nil {
		log.Error("pipeline: saving history record failed", "error", saveErr)
	}

	c.deps.Bus.Publish(events.TranscriptionComplete, map[string]any{
		"transcript": final,
		"record":     recRecord,
	})
	if c.deps.Metrics != nil {
		mode := string(snap.TranscriptionMode)
		c.deps.Metrics.RecordDictation(ctx, mode, "success")
		c.deps.Metrics.PipelineDuration.Record(ctx, c.deps.Now().Sub(pipelineStart).Seconds())
	}
	c.finish(StateIdle)
}

// resolveEditMode captures the foreground selection when edit mode is on.
// A selection with no usable LLM is a hard error; a failed or empty
// selection read falls back to plain transcription.
func (c *Controller) resolveEditMode(snap settings.Settings) (bool, string, error) {
	if !snap.EditModeEnabled {
		return false, "", nil
	}
	if !snap.LLMCleanupEnabled || c.deps.Cleaner == nil {
		return false, "", errors.New("edit mode requires LLM cleanup to be enabled")
	}

	selected, err := c.deps.Paster.ReadSelection()
	if err != nil {
		slog.Warn("pipeline: reading selection failed, falling back to transcription", "error", err)
		return false, "", nil
	}
	if selected == "" {
		return false, "", nil
	}
	return true, selected, nil
}

// transcribe dispatches to the configured backend.
func (c *Controller) transcribe(ctx context.Context, snap settings.Settings, mono []int16, sampleRate int, audioPath, selected string, editMode bool) (*stt.Result, error) {
	ctx, span := observe.StartSpan(ctx, "dictation.transcribe")
	defer span.End()

	start := c.deps.Now()
	defer func() {
		if c.deps.Metrics != nil {
			observe.RecordStage(ctx, c.deps.Metrics.TranscribeDuration,
				c.deps.Now().Sub(start).Seconds(), string(snap.TranscriptionMode))
		}
	}()

	switch snap.TranscriptionMode {
	case settings.ModeLocal:
		return c.deps.LocalTranscribe(ctx, stt.Request{
			Samples:    mono,
			SampleRate: sampleRate,
			Prompt:     dictionary.BuildPrompt(snap.Dictionary),
			Language:   snap.Language,
		})
	case settings.ModeCloud:
		data, err := os.ReadFile(audioPath)
		if err != nil {
			return nil, fmt.Errorf("controller: read persisted audio: %w", err)
		}
		return c.deps.CloudTranscribe(ctx, data, cloud.Request{
			Audio:        data,
			LLMCleanup:   snap.LLMCleanupEnabled && !editMode,
			UserContext:  snap.UserContext,
			SelectedText: selected,
			Language:     snap.Language,
		})
	default:
		return nil, fmt.Errorf("controller: unknown transcription mode %q", snap.TranscriptionMode)
	}
}

// refine applies the LLM edit or cleanup pass. LLM failures degrade
// silently to the raw transcript.
func (c *Controller) refine(ctx context.Context, snap settings.Settings, res *stt.Result, selected string, editMode bool, modePrompt string) (final, raw, llmModel string, llmCleaned bool) {
	final = res.Transcript
	raw = res.Transcript
	llmModel = res.LLMModel
	llmCleaned = res.LLMCleaned

	if llmCleaned && res.RawTranscript != "" {
		// Cloud already cleaned; keep its raw text for the record.
		raw = res.RawTranscript
		return final, raw, llmModel, llmCleaned
	}
	if c.deps.Cleaner == nil || !snap.LLMCleanupEnabled {
		return final, raw, llmModel, llmCleaned
	}

	ctx, span := observe.StartSpan(ctx, "dictation.cleanup")
	defer span.End()

	start := c.deps.Now()
	var (
		out   string
		model string
		err   error
	)
	if editMode {
		out, model, err = c.deps.Cleaner.Edit(ctx, selected, res.Transcript, modePrompt)
	} else {
		out, model, err = c.deps.Cleaner.Clean(ctx, res.Transcript, modePrompt)
	}
	if c.deps.Metrics != nil {
		observe.RecordStage(ctx, c.deps.Metrics.CleanupDuration,
			c.deps.Now().Sub(start).Seconds(), string(snap.LLMProvider))
	}
	if err != nil {
		observe.Logger(ctx).Warn("pipeline: LLM pass failed, using raw transcript", "error", err)
		return final, raw, llmModel, llmCleaned
	}
	return out, res.Transcript, model, true
}

// deliver pastes or copies the final text according to auto_paste.
func (c *Controller) deliver(ctx context.Context, snap settings.Settings, text string) {
	ctx, span := observe.StartSpan(ctx, "dictation.deliver")
	defer span.End()
	log := observe.Logger(ctx)

	start := c.deps.Now()
	defer func() {
		if c.deps.Metrics != nil {
			observe.RecordStage(ctx, c.deps.Metrics.PasteDuration,
				c.deps.Now().Sub(start).Seconds(), "clipboard")
		}
	}()

	if !snap.AutoPaste {
		if err := c.deps.Paster.CopyOnly(text); err != nil {
			log.Warn("pipeline: copying transcript failed", "error", err)
		}
		return
	}

	if err := c.deps.Paster.Paste(text); err != nil {
		log.Warn("pipeline: paste failed, transcript left on clipboard", "error", err)
		if copyErr := c.deps.Paster.CopyOnly(text); copyErr != nil {
			log.Warn("pipeline: fallback copy failed", "error", copyErr)
		}
		c.deps.Bus.Publish(events.ToastShow, "Pasted to clipboard instead")
		c.deps.Notify("info", "Pasted to clipboard instead")
	}
}

// handleEmptyTranscript unlinks the artifact and resets silently apart
// from the warning toast. No history record is written.
func (c *Controller) handleEmptyTranscript(audioPath string) {
	if err := c.deps.RemoveFile(audioPath); err != nil {
		slog.Warn("pipeline: deleting empty-transcript audio failed", "path", audioPath, "error", err)
	}
	c.deps.Bus.Publish(events.TranscriptionComplete, map[string]any{"transcript": ""})
	c.deps.Bus.Publish(events.ToastShow, "No words detected. Recording deleted.")
	c.deps.Notify("warn", "No words detected. Recording deleted.")
	c.finish(StateIdle)
}

// reportTranscriptionFailure classifies the error, records it, and leaves
// the audio on disk for retry.
func (c *Controller) reportTranscriptionFailure(ctx context.Context, snap settings.Settings, err error, audioPath string, duration float64) {
	message := userMessage(err)
	observe.Logger(ctx).Error("pipeline: transcription failed", "error", err)

	var ce *cloud.Error
	if errors.As(err, &ce) && ce.IsAuth() {
		c.reportAuthError(err)
	} else {
		c.deps.Bus.Publish(events.ToastShow, message)
		c.deps.Notify("error", message)
	}
	c.deps.Bus.Publish(events.TranscriptionError, message)
	c.recordError(message, audioPath, duration)

	if c.deps.Metrics != nil {
		mode := string(snap.TranscriptionMode)
		c.deps.Metrics.RecordDictation(ctx, mode, "error")
		c.deps.Metrics.RecordTranscriberError(ctx, mode, errorKind(err))
	}
	c.finish(StateError)
}

// recordError stores an Error record so the dictation can be retried from
// its retained audio.
func (c *Controller) recordError(message, audioPath string, duration float64) {
	if _, err := c.deps.History.SaveError(message, audioPath, store.Metadata{
		AudioDurationSeconds: duration,
	}); err != nil {
		slog.Error("pipeline: saving error record failed", "error", err)
	}
}

// cancelled checks the cancel flag at a stage boundary and, when tripped,
// removes the pending audio.
func (c *Controller) cancelled(ctx context.Context, audioPath string) bool {
	if ctx.Err() == nil {
		return false
	}
	c.discardCancelled(audioPath)
	return true
}

// discardCancelled removes the pending artifact after a cancel. The state
// transition already happened on the edge-handling goroutine.
func (c *Controller) discardCancelled(audioPath string) {
	slog.Info("pipeline: cancelled, removing pending audio", "path", audioPath)
	if err := c.deps.RemoveFile(audioPath); err != nil && !os.IsNotExist(err) {
		slog.Warn("pipeline: removing cancelled audio failed", "error", err)
	}
	if c.deps.Metrics != nil {
		c.deps.Metrics.RecordDictation(context.Background(), "", "cancelled")
	}
}

// userMessage maps a stage error onto its user-facing disposition.
func userMessage(err error) string {
	var ce *cloud.Error
	if errors.As(err, &ce) {
		switch ce.Kind {
		case cloud.KindTooLarge:
			return "Audio file too large"
		case cloud.KindAuthFailed:
			return "Authentication error"
		case cloud.KindRequestFailed:
			return "Network error. Tap Retry."
		default:
			return authToast(err)
		}
	}
	return "Transcription failed"
}

// errorKind labels an error for metrics.
func errorKind(err error) string {
	var ce *cloud.Error
	if errors.As(err, &ce) {
		return string(ce.Kind)
	}
	return "local_inference"
}

// Retry re-runs a failed dictation from its retained audio. The audio is
// decoded from disk, resubmitted through the same stages, and the Error
// record is replaced in place on success.
func (c *Controller) Retry(id string) error {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return errors.New("controller: busy, cannot retry now")
	}
	prior := c.deps.History.GetByID(id)
	if prior == nil {
		c.mu.Unlock()
		return fmt.Errorf("controller: record %q not found", id)
	}
	if prior.Status != store.StatusError {
		c.mu.Unlock()
		return fmt.Errorf("controller: record %q is not an error record", id)
	}
	c.setStateLocked(StateProcessing, ModeNone)
	ctx, cancel := context.WithCancel(context.Background())
	c.cancelPipeline = cancel
	c.mu.Unlock()

	defer cancel()

	ctx, span := observe.StartSpan(ctx, "dictation.retry")
	defer span.End()

	snap := c.deps.Settings.Snapshot()

	samples, sampleRate, err := c.deps.Decode(prior.AudioPath)
	if err != nil {
		c.finish(StateError)
		return fmt.Errorf("controller: decode retry audio: %w", err)
	}

	c.deps.Bus.Publish(events.TranscriptionStart, map[string]any{"retry": id})
	res, err := c.transcribe(ctx, snap, samples, sampleRate, prior.AudioPath, "", false)
	if err != nil {
		c.reportTranscriptionFailureForRetry(ctx, snap, err, prior)
		return err
	}

	if res.Transcript == "" {
		c.handleEmptyTranscript(prior.AudioPath)
		if _, delErr := c.deps.History.Delete(id); delErr != nil {
			slog.Warn("controller: deleting empty-retry record failed", "error", delErr)
		}
		return nil
	}

	var modePrompt string
	if c.deps.Foreground != nil {
		modePrompt = modectx.Prompt(c.deps.Foreground(), snap.Personalities)
	}
	final, raw, llmModel, llmCleaned := c.refine(ctx, snap, res, "", false, modePrompt)
	final = dictionary.ApplyReplacements(final, snap.Replacements)

	c.deliver(ctx, snap, final)

	replacement := store.Record{
		ID:        id,
		Timestamp: c.deps.Now(),
		Text:      final,
		AudioPath: prior.AudioPath,
		Status:    store.StatusSuccess,
		Metadata: store.Metadata{
			SpeechModel:          res.SpeechModel,
			LLMModel:             llmModel,
			WordCount:            stt.WordCount(final),
			AudioDurationSeconds: prior.Metadata.AudioDurationSeconds,
		},
	}
	if llmCleaned && raw != final {
		replacement.RawText = raw
	}
	if err := c.deps.History.Replace(id, replacement); err != nil {
		slog.Error("controller: replacing retried record failed", "error", err)
	}

	c.deps.Bus.Publish(events.TranscriptionComplete, map[string]any{
		"transcript": final,
		"record":     &replacement,
	})
	c.finish(StateIdle)
	return nil
}

// reportTranscriptionFailureForRetry updates the existing Error record
// instead of appending a second one.
func (c *Controller) reportTranscriptionFailureForRetry(ctx context.Context, snap settings.Settings, err error, prior *store.Record) {
	message := userMessage(err)
	slog.Error("controller: retry failed", "record", prior.ID, "error", err)

	updated := *prior
	updated.Timestamp = c.deps.Now()
	updated.ErrorMessage = message
	if replaceErr := c.deps.History.Replace(prior.ID, updated); replaceErr != nil {
		slog.Warn("controller: updating retried error record failed", "error", replaceErr)
	}

	c.deps.Bus.Publish(events.TranscriptionError, message)
	c.deps.Bus.Publish(events.ToastShow, message)
	if c.deps.Metrics != nil {
		c.deps.Metrics.RecordDictation(ctx, string(snap.TranscriptionMode), "error")
	}
	c.finish(StateError)
}

// DeleteRecording removes a stored record and its audio artifact.
func (c *Controller) DeleteRecording(id string) error {
	audioPath, err := c.deps.History.Delete(id)
	if err != nil {
		return err
	}
	if audioPath != "" {
		if err := c.deps.RemoveFile(audioPath); err != nil && !os.IsNotExist(err) {
			slog.Warn("controller: removing deleted recording audio failed", "path", audioPath, "error", err)
		}
	}
	return nil
}
