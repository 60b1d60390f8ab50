package coordinator

import (
	"context"
	"log/slog"
	"time"

	"github.com/parley-voice/parley/internal/history"
	"github.com/parley-voice/parley/internal/observe"
	"github.com/parley-voice/parley/internal/transcript"
)

// run is the conversation loop. It is the only goroutine that touches the
// transcript buffer, the timers and the speaking bookkeeping, so transitions
// never race.
func (c *Coordinator) run(ctx context.Context) {
	defer c.wg.Done()
	defer func() {
		c.endTurnSpan()
		stopTimer(c.silenceTimer)
		stopTimer(c.watchdogTimer)
		stopTimer(c.cooldownTimer)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.silenceTimer.C:
			c.handleQuestionReady(ctx)
		case <-c.watchdogTimer.C:
			c.handleWatchdogFired(ctx)
		case <-c.cooldownTimer.C:
			c.handleCooldownDone(ctx)
		case ev := <-c.events:
			c.dispatch(ctx, ev)
		}
	}
}

func (c *Coordinator) dispatch(ctx context.Context, ev event) {
	switch ev.kind {
	case evTranscript:
		c.handleTranscript(ev.text, ev.at)
	case evTurnComplete:
		c.handleTurnComplete(ctx)
	case evDrained:
		c.handleDrained(ctx)
	case evPlaybackFatal:
		c.handlePlaybackFatal(ctx, ev.err)
	case evReplyReady:
		c.handleReplyReady(ctx, ev.text)
	case evReplyFailed:
		observe.Logger(c.turnContext(ctx)).Warn("coordinator: reply generation failed, skipping to cooldown", "error", ev.err)
		c.enterCooldown()
	case evTerminalError:
		slog.Error("coordinator: streaming client gave up reconnecting", "error", ev.err)
		c.metrics.TerminalErrors.Add(ctx, 1)
		if c.onTerminalError != nil {
			c.onTerminalError(ev.err)
		}
	}
}

// handleTranscript buffers incoming text unconditionally so nothing said is
// lost to a race, and only restarts the silence timer while Listening.
func (c *Coordinator) handleTranscript(text string, at time.Time) {
	c.buf.Append(text, at)
	if c.State() != StateListening {
		return
	}
	stopTimer(c.watchdogTimer)
	resetTimer(c.silenceTimer, c.silenceTimeout)
}

// handleQuestionReady fires when silence follows buffered interviewer text.
// A repeat of the previous question short-circuits to the fixed repeat prompt;
// anything else goes to the reply generator.
func (c *Coordinator) handleQuestionReady(ctx context.Context) {
	if c.buf.Empty() {
		// A blank fragment can arm the silence timer without leaving anything
		// to process; restore the watchdog so Listening is never timer-less.
		if c.watchdogEnabled {
			resetTimer(c.watchdogTimer, c.watchdogTimeout)
		}
		return
	}
	stopTimer(c.silenceTimer)
	stopTimer(c.watchdogTimer)

	text, startedAt := c.buf.Take()
	c.turnStart = time.Now()
	c.turnCtx, c.turnSpan = observe.StartSpan(ctx, "conversation.turn")
	c.record(c.turnCtx, history.Turn{
		Role:      history.RoleInterviewer,
		Text:      text,
		StartedAt: startedAt,
		EndedAt:   time.Now(),
	})

	if c.lastQuestion != "" && transcript.SameQuestion(c.lastQuestion, text) {
		observe.Logger(c.turnCtx).Info("coordinator: duplicate question detected", "text", text)
		c.beginSpeaking(ctx, c.repeatPrompt, observe.UtteranceRepeatPrompt)
		return
	}
	c.lastQuestion = text

	c.setState(StateAwaitingReply)
	c.wg.Add(1)
	go func(ctx context.Context) {
		defer c.wg.Done()
		start := time.Now()
		answer, err := c.generator.Generate(ctx, text)
		if err != nil {
			c.metrics.RecordReply(ctx, time.Since(start), "error")
			c.post(ctx, event{kind: evReplyFailed, err: err})
			return
		}
		c.metrics.RecordReply(ctx, time.Since(start), "ok")
		c.post(ctx, event{kind: evReplyReady, text: answer})
	}(c.turnCtx)
}

// turnContext returns the context of the turn in flight, falling back to the
// loop context between turns.
func (c *Coordinator) turnContext(ctx context.Context) context.Context {
	if c.turnCtx != nil {
		return c.turnCtx
	}
	return ctx
}

func (c *Coordinator) handleReplyReady(ctx context.Context, answer string) {
	if c.State() != StateAwaitingReply {
		slog.Debug("coordinator: discarding stale reply", "state", c.State())
		return
	}
	c.beginSpeaking(ctx, answer, observe.UtteranceReply)
}

// handleWatchdogFired speaks the no-audio prompt after prolonged silence with
// no transcripts at all. The watchdog stays disarmed until after the next full
// cooldown so a persistently silent counterpart is prompted at most once.
func (c *Coordinator) handleWatchdogFired(ctx context.Context) {
	if c.State() != StateListening || !c.buf.Empty() {
		return
	}
	slog.Info("coordinator: no audio received, prompting for repeat")
	c.watchdogEnabled = false
	c.beginSpeaking(ctx, c.noAudioPrompt, observe.UtteranceNoAudioPrompt)
}

// beginSpeaking closes the capture gate and hands text to the synthesis
// client. Chunks stream to playback as they arrive.
func (c *Coordinator) beginSpeaking(ctx context.Context, text, kind string) {
	if c.speaking {
		slog.Warn("coordinator: refusing overlapping utterance", "error", ErrAlreadySpeaking)
		return
	}
	c.gate.Close()
	c.speaking = true
	c.utterance = text
	c.speechStart = time.Now()
	c.turnDone = false

	if err := c.synthesizer.Speak(text); err != nil {
		slog.Warn("coordinator: synthesis request failed", "error", err)
		c.speaking = false
		c.enterCooldown()
		return
	}
	c.metrics.RecordUtterance(ctx, kind)
	c.setState(StateSpeaking)
}

// handleTurnComplete marks the end of the synthesis stream. Every chunk of
// the utterance has been enqueued by now (the stream delivers chunks before
// its turn-complete), so playback.Idle is authoritative: if it already
// reports idle (including when the service sent no audio at all) the turn
// is over, otherwise the pending drain finishes it.
func (c *Coordinator) handleTurnComplete(ctx context.Context) {
	if !c.speaking {
		return
	}
	c.turnDone = true
	if c.playback.Idle() {
		c.finishSpeaking(ctx)
	}
}

// handleDrained defers the speaking-to-cooldown transition until the synthesis
// stream has also finished, so a playback queue that momentarily outpaces
// synthesis does not cut the utterance short. The Idle re-check guards
// against a drain notification that raced a late chunk.
func (c *Coordinator) handleDrained(ctx context.Context) {
	if !c.speaking || !c.turnDone {
		return
	}
	if c.playback.Idle() {
		c.finishSpeaking(ctx)
	}
}

// handlePlaybackFatal ends the turn abnormally: the remaining audio is gone,
// but the cycle still completes through cooldown.
func (c *Coordinator) handlePlaybackFatal(ctx context.Context, err error) {
	slog.Error("coordinator: playback aborted", "error", err)
	c.metrics.PlaybackFatals.Add(ctx, 1)
	if !c.speaking {
		return
	}
	c.finishSpeaking(ctx)
}

func (c *Coordinator) finishSpeaking(ctx context.Context) {
	ctx = c.turnContext(ctx)
	c.record(ctx, history.Turn{
		Role:      history.RoleAgent,
		Text:      c.utterance,
		StartedAt: c.speechStart,
		EndedAt:   time.Now(),
	})
	if !c.turnStart.IsZero() {
		c.metrics.RecordTurn(ctx, time.Since(c.turnStart))
		c.turnStart = time.Time{}
	}
	c.speaking = false
	c.utterance = ""
	c.enterCooldown()
}

func (c *Coordinator) endTurnSpan() {
	if c.turnSpan != nil {
		c.turnSpan.End()
		c.turnSpan = nil
		c.turnCtx = nil
	}
}

// enterCooldown is the single funnel every turn outcome passes through, so
// the turn span ends here.
func (c *Coordinator) enterCooldown() {
	c.endTurnSpan()
	c.gate.Close()
	stopTimer(c.silenceTimer)
	stopTimer(c.watchdogTimer)
	c.setState(StateCooldown)
	resetTimer(c.cooldownTimer, c.cooldown)
}

// handleCooldownDone reopens the gate and resumes Listening. Text that leaked
// into the buffer while the gate was closed is processed immediately unless it
// has gone stale.
func (c *Coordinator) handleCooldownDone(ctx context.Context) {
	c.watchdogEnabled = true
	c.gate.Open()
	c.setState(StateListening)

	if !c.buf.Empty() {
		if time.Since(c.buf.FirstAppend()) > 2*c.cooldown {
			slog.Info("coordinator: discarding stale buffered transcript", "text", c.buf.Text())
			c.buf.Reset()
		} else {
			c.handleQuestionReady(ctx)
			return
		}
	}
	resetTimer(c.watchdogTimer, c.watchdogTimeout)
}

// record persists a completed turn without ever blocking the loop; store
// failures are logged and the conversation continues.
func (c *Coordinator) record(ctx context.Context, turn history.Turn) {
	if c.store == nil {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := c.store.Append(ctx, turn); err != nil {
			slog.Warn("coordinator: recording turn failed", "role", turn.Role, "error", err)
		}
	}()
}
