package reply_test

import (
	"context"
	"errors"
	"testing"

	"github.com/parley-voice/parley/pkg/reply"
	"github.com/parley-voice/parley/pkg/reply/mock"
)

func TestGeneratorFuncAdapts(t *testing.T) {
	gen := reply.GeneratorFunc(func(_ context.Context, prompt string) (string, error) {
		return "echo: " + prompt, nil
	})

	got, err := gen.Generate(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "echo: hello" {
		t.Fatalf("got %q, want %q", got, "echo: hello")
	}
}

func TestMockServesScriptInOrder(t *testing.T) {
	gen := mock.New("first", "second")

	for i, want := range []string{"first", "second", "second"} {
		got, err := gen.Generate(context.Background(), "q")
		if err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
		if got != want {
			t.Fatalf("call %d: got %q, want %q", i, got, want)
		}
	}
	if n := len(gen.Prompts()); n != 3 {
		t.Fatalf("recorded %d prompts, want 3", n)
	}
}

func TestMockErrWinsOverScript(t *testing.T) {
	gen := mock.New("unused")
	gen.Err = reply.ErrGenerationFailed

	if _, err := gen.Generate(context.Background(), "q"); !errors.Is(err, reply.ErrGenerationFailed) {
		t.Fatalf("got %v, want ErrGenerationFailed", err)
	}
}
