package answer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"

	"github.com/kailas-cloud/finrag/internal/domain"
	"github.com/kailas-cloud/finrag/internal/domain/chat"
	"github.com/kailas-cloud/finrag/internal/metrics"
)

var threeChunks = []chat.RetrievedChunk{
	{Filename: "f1.pdf", Page: 1, Text: "alpha"},
	{Filename: "f2.pdf", Page: 2, Text: "beta"},
	{Filename: "f1.pdf", Page: 1, Text: "gamma"},
}

func drain(ch <-chan chat.Event) []chat.Event {
	var out []chat.Event
	for ev := range ch {
		out = append(out, ev)
	}
	return out
}

func TestBuildPrompt(t *testing.T) {
	history := make([]chat.Turn, 0, 8)
	for i := 0; i < 4; i++ {
		history = append(history,
			chat.Turn{Role: chat.RoleUser, Content: "q" + string(rune('0'+i))},
			chat.Turn{Role: chat.RoleModel, Content: "a" + string(rune('0'+i))},
		)
	}

	p := BuildPrompt("What was revenue?", threeChunks[:2], history, 6)

	for _, want := range []string{
		"[Source 1 — f1.pdf, Page 1]\nalpha\n\n[Source 2 — f2.pdf, Page 2]\nbeta",
		"Always cite your sources using the format: [Source N — filename, Page X]",
		"This information isn't available in the uploaded documents.",
		"User: q1\nAssistant: a1\nUser: q2\nAssistant: a2\nUser: q3\nAssistant: a3\n",
		"User Question: What was revenue?",
	} {
		if !strings.Contains(p, want) {
			t.Errorf("prompt misses %q", want)
		}
	}
	if strings.Contains(p, "User: q0") {
		t.Error("history older than 6 turns must be dropped")
	}
}

func TestGenerate_ShortCircuit(t *testing.T) {
	gen := &fakeGenerator{}
	svc := New(gen, nil, "m", 0, zap.NewNop())
	before := testutil.ToFloat64(metrics.GenerationShortCircuitTotal)

	got, err := svc.Generate(context.Background(), "q", nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got.Text != chat.FallbackAnswer || got.Citations == nil || len(got.Citations) != 0 {
		t.Errorf("unexpected fallback: %+v", got)
	}
	if gen.completes != 0 || gen.streams != 0 {
		t.Error("model must not be called without context")
	}
	if testutil.ToFloat64(metrics.GenerationShortCircuitTotal) != before+1 {
		t.Error("short circuit not counted")
	}
}

func TestGenerate_CitationsAndTrim(t *testing.T) {
	gen := &fakeGenerator{text: "  Revenue was $10M [Source 1 — f1.pdf, Page 1]\n"}
	svc := New(gen, fixedCounter(120), "m", 6, zap.NewNop())

	got, err := svc.Generate(context.Background(), "q", threeChunks, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got.Text != "Revenue was $10M [Source 1 — f1.pdf, Page 1]" {
		t.Errorf("text = %q", got.Text)
	}
	want := []chat.Citation{{Filename: "f1.pdf", Page: 1}, {Filename: "f2.pdf", Page: 2}}
	if len(got.Citations) != 2 || got.Citations[0] != want[0] || got.Citations[1] != want[1] {
		t.Errorf("citations = %v", got.Citations)
	}
	if !strings.Contains(gen.prompt, "[Source 3 — f1.pdf, Page 1]\ngamma") {
		t.Error("all retrieved chunks belong in the prompt")
	}
}

func TestGenerate_Error(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("upstream 500")}
	_, err := New(gen, nil, "m", 6, zap.NewNop()).Generate(context.Background(), "q", threeChunks, nil)
	if !errors.Is(err, domain.ErrGeneration) {
		t.Fatalf("expected ErrGeneration, got %v", err)
	}
}

func TestStream_Shape(t *testing.T) {
	gen := &fakeGenerator{tokens: []string{"Net ", "income ", "rose."}}
	events := drain(New(gen, nil, "m", 6, zap.NewNop()).Stream(context.Background(), "q", threeChunks, nil))

	if len(events) != 4 {
		t.Fatalf("expected 3 tokens + sources, got %d events", len(events))
	}
	var text strings.Builder
	for _, ev := range events[:3] {
		if ev.Kind != chat.EventToken {
			t.Fatalf("token expected, got %+v", ev)
		}
		text.WriteString(ev.Token)
	}
	if text.String() != "Net income rose." {
		t.Errorf("joined tokens = %q", text.String())
	}
	last := events[3]
	if last.Kind != chat.EventSources || last.Err != nil || len(last.Sources) != 2 {
		t.Errorf("sources event = %+v", last)
	}
}

func TestStream_ShortCircuit(t *testing.T) {
	gen := &fakeGenerator{}
	events := drain(New(gen, nil, "m", 6, zap.NewNop()).Stream(context.Background(), "q", nil, nil))

	if len(events) != 2 {
		t.Fatalf("events = %+v", events)
	}
	if events[0].Kind != chat.EventToken || events[0].Token != chat.FallbackAnswer {
		t.Errorf("first event = %+v", events[0])
	}
	if events[1].Kind != chat.EventSources || events[1].Sources == nil || len(events[1].Sources) != 0 {
		t.Errorf("second event = %+v", events[1])
	}
	if gen.streams != 0 {
		t.Error("model must not be called")
	}
}

func TestStream_MidFailureKeepsTokens(t *testing.T) {
	gen := &fakeGenerator{tokens: []string{"a", "b", "c"}, err: errors.New("reset by peer"), failAfter: 2}
	events := drain(New(gen, nil, "m", 6, zap.NewNop()).Stream(context.Background(), "q", threeChunks, nil))

	if len(events) != 3 {
		t.Fatalf("expected 2 tokens + sources, got %+v", events)
	}
	if events[0].Token != "a" || events[1].Token != "b" {
		t.Errorf("tokens = %+v", events[:2])
	}
	if events[2].Kind != chat.EventSources || !errors.Is(events[2].Err, domain.ErrGeneration) {
		t.Errorf("sources event = %+v", events[2])
	}
	if len(events[2].Sources) != 2 {
		t.Errorf("citations still expected after failure: %+v", events[2].Sources)
	}
}

func TestStream_ClientGone(t *testing.T) {
	gen := &fakeGenerator{tokens: []string{"a", "b", "c", "d"}}
	ctx, cancel := context.WithCancel(context.Background())
	ch := New(gen, nil, "m", 6, zap.NewNop()).Stream(ctx, "q", threeChunks, nil)

	first := <-ch
	if first.Token != "a" {
		t.Fatalf("first = %+v", first)
	}
	cancel()

	// The producer must close the channel without anyone reading the rest.
	for range ch {
	}
}
