package audio_test

import (
	"bytes"
	"errors"
	"testing"
	"time"

	audio "github.com/parley-voice/parley/pkg/audio"
	"github.com/parley-voice/parley/pkg/audio/mock"
)

// shortFrame returns a frame lasting roughly a millisecond so tests that wait
// out real playback durations stay fast.
func shortFrame(fill byte) audio.Frame {
	data := make([]byte, 32) // 16 samples @ 16 kHz = 1 ms
	for i := range data {
		data[i] = fill
	}
	return audio.Frame{Data: data, SampleRate: 16000}
}

func startPlayback(t *testing.T, p *audio.PlaybackPipeline) {
	t.Helper()
	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { p.Stop() })
}

func waitSignal(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func TestPlaybackStrictOrderAndDrained(t *testing.T) {
	primary := &mock.Sink{}
	p := audio.NewPlayback(primary, nil)
	drained := make(chan struct{}, 1)
	p.OnDrained(func() { drained <- struct{}{} })
	startPlayback(t, p)

	want := []audio.Frame{shortFrame(1), shortFrame(2), shortFrame(3)}
	for _, f := range want {
		p.Enqueue(f)
	}

	waitSignal(t, drained, "drained")

	got := primary.Frames()
	if len(got) != len(want) {
		t.Fatalf("played %d frames, want %d", len(got), len(want))
	}
	for i := range want {
		if !bytes.Equal(got[i].Data, want[i].Data) {
			t.Errorf("frame %d out of order", i)
		}
	}
}

func TestPlaybackDuplicatesToUplink(t *testing.T) {
	primary := &mock.Sink{}
	uplink := &mock.Sink{}
	p := audio.NewPlayback(primary, uplink)
	drained := make(chan struct{}, 1)
	p.OnDrained(func() { drained <- struct{}{} })
	startPlayback(t, p)

	p.Enqueue(shortFrame(7))
	waitSignal(t, drained, "drained")

	pf, uf := primary.Frames(), uplink.Frames()
	if len(pf) != 1 || len(uf) != 1 {
		t.Fatalf("primary=%d uplink=%d frames, want 1 each", len(pf), len(uf))
	}
	if !bytes.Equal(pf[0].Data, uf[0].Data) {
		t.Error("uplink frame differs from primary frame")
	}
}

func TestPlaybackSkipsFailedFrame(t *testing.T) {
	primary := &mock.Sink{FailNext: 1}
	p := audio.NewPlayback(primary, nil)
	drained := make(chan struct{}, 1)
	p.OnDrained(func() { drained <- struct{}{} })
	startPlayback(t, p)

	p.Enqueue(shortFrame(1)) // fails, skipped
	p.Enqueue(shortFrame(2)) // plays
	waitSignal(t, drained, "drained")

	got := primary.Frames()
	if len(got) != 1 {
		t.Fatalf("played %d frames, want 1", len(got))
	}
	if got[0].Data[0] != 2 {
		t.Error("surviving frame is not the one after the failure")
	}
}

func TestPlaybackFatalAfterThreeConsecutiveFailures(t *testing.T) {
	primary := &mock.Sink{FailNext: 3}
	p := audio.NewPlayback(primary, nil)
	fatal := make(chan error, 1)
	p.OnFatal(func(err error) { fatal <- err })

	// Enqueue before starting so the whole burst is aborted atomically.
	for i := range 5 {
		p.Enqueue(shortFrame(byte(i)))
	}
	startPlayback(t, p)

	select {
	case err := <-fatal:
		if !errors.Is(err, audio.ErrPlaybackFatal) {
			t.Fatalf("fatal err = %v, want audio.ErrPlaybackFatal", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for fatal")
	}

	// Remaining queue was aborted; at most the frames enqueued after the
	// abort point may have played, and since all five preceded it: none.
	if n := len(primary.Frames()); n != 0 {
		t.Errorf("played %d frames after fatal, want 0", n)
	}
}

func TestPlaybackUsableAfterFatal(t *testing.T) {
	primary := &mock.Sink{FailNext: 3}
	p := audio.NewPlayback(primary, nil)
	fatal := make(chan error, 1)
	drained := make(chan struct{}, 1)
	p.OnFatal(func(err error) { fatal <- err })
	p.OnDrained(func() { drained <- struct{}{} })
	for i := range 3 {
		p.Enqueue(shortFrame(byte(i)))
	}
	startPlayback(t, p)
	waitSignal(t, fatalAsSignal(fatal), "fatal")

	// The next turn's audio still plays.
	p.Enqueue(shortFrame(9))
	waitSignal(t, drained, "drained after fatal")
	if n := len(primary.Frames()); n != 1 {
		t.Errorf("played %d frames in recovery turn, want 1", n)
	}
}

func fatalAsSignal(ch <-chan error) <-chan struct{} {
	out := make(chan struct{}, 1)
	go func() {
		<-ch
		out <- struct{}{}
	}()
	return out
}

func TestPlaybackResamplesToDeviceRate(t *testing.T) {
	primary := &mock.Sink{}
	p := audio.NewPlayback(primary, nil, audio.WithPlaybackRate(8000))
	drained := make(chan struct{}, 1)
	p.OnDrained(func() { drained <- struct{}{} })
	startPlayback(t, p)

	p.Enqueue(audio.Frame{Data: make([]byte, 64), SampleRate: 16000})
	waitSignal(t, drained, "drained")

	got := primary.Frames()
	if len(got) != 1 {
		t.Fatalf("played %d frames, want 1", len(got))
	}
	if got[0].SampleRate != 8000 {
		t.Errorf("sink frame rate = %d, want 8000", got[0].SampleRate)
	}
	if got[0].Samples() != 16 {
		t.Errorf("sink frame samples = %d, want 16", got[0].Samples())
	}
}

func TestPlaybackIdleTracksQueueAndSounding(t *testing.T) {
	primary := &mock.Sink{}
	p := audio.NewPlayback(primary, nil)
	drained := make(chan struct{}, 1)
	p.OnDrained(func() { drained <- struct{}{} })

	if !p.Idle() {
		t.Fatal("fresh pipeline should be idle")
	}

	// Enqueue before Start: the frame sits queued, so the pipeline is busy
	// even though nothing is sounding yet.
	p.Enqueue(shortFrame(1))
	if p.Idle() {
		t.Fatal("pipeline with a queued frame must not report idle")
	}

	startPlayback(t, p)
	waitSignal(t, drained, "drained")
	if !p.Idle() {
		t.Fatal("pipeline should be idle once the queue has drained")
	}
}

func TestGate(t *testing.T) {
	g := audio.NewGate()
	if !g.IsOpen() {
		t.Fatal("new gate should be open")
	}
	g.Close()
	if g.IsOpen() {
		t.Fatal("gate should be closed")
	}
	g.Open()
	if !g.IsOpen() {
		t.Fatal("gate should be open again")
	}
}
