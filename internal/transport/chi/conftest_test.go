package chi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	domchat "github.com/kailas-cloud/finrag/internal/domain/chat"
	domdoc "github.com/kailas-cloud/finrag/internal/domain/document"
	domusage "github.com/kailas-cloud/finrag/internal/domain/usage"
	domvec "github.com/kailas-cloud/finrag/internal/domain/vector"
	chatuc "github.com/kailas-cloud/finrag/internal/usecase/chat"
	healthuc "github.com/kailas-cloud/finrag/internal/usecase/health"
)

type fakeIngester struct {
	summary  domdoc.Summary
	err      error
	gotNS    string
	gotName  string
	gotBytes int
}

func (f *fakeIngester) Ingest(_ context.Context, data []byte, filename, ns string) (domdoc.Summary, error) {
	f.gotNS, f.gotName, f.gotBytes = ns, filename, len(data)
	return f.summary, f.err
}

type fakeDocuments struct {
	docs       []domdoc.Summary
	listErr    error
	result     domvec.DeleteResult
	deleteErr  error
	gotNS      string
	gotDeleted string
}

func (f *fakeDocuments) List(_ context.Context, ns string) ([]domdoc.Summary, error) {
	f.gotNS = ns
	return f.docs, f.listErr
}

func (f *fakeDocuments) Delete(_ context.Context, ns, filename string) (domvec.DeleteResult, error) {
	f.gotNS, f.gotDeleted = ns, filename
	return f.result, f.deleteErr
}

type fakeChatter struct {
	answer     *domchat.Answer
	events     []domchat.Event
	err        error
	gotNS      string
	gotMessage string
	gotHistory []domchat.Turn
	gotStream  bool
}

func (f *fakeChatter) Chat(
	_ context.Context, ns, question string, history []domchat.Turn, stream bool,
) (chatuc.Reply, error) {
	f.gotNS, f.gotMessage, f.gotHistory, f.gotStream = ns, question, history, stream
	if f.err != nil {
		return chatuc.Reply{}, f.err
	}
	if f.answer != nil {
		return chatuc.Reply{Answer: f.answer}, nil
	}
	ch := make(chan domchat.Event, len(f.events))
	for _, ev := range f.events {
		ch <- ev
	}
	close(ch)
	return chatuc.Reply{Events: ch}, nil
}

type fakeUsage struct {
	report domusage.Report
	got    domusage.Period
}

func (f *fakeUsage) GetReport(_ context.Context, p domusage.Period) domusage.Report {
	f.got = p
	return f.report
}

type fakeHealth struct {
	report healthuc.Report
}

func (f *fakeHealth) Check(context.Context) healthuc.Report { return f.report }

type testDeps struct {
	ingest    *fakeIngester
	documents *fakeDocuments
	chat      *fakeChatter
	usage     *fakeUsage
	health    *fakeHealth
}

func newTestRouter(t *testing.T, maxUploadMB int) (http.Handler, *testDeps) {
	t.Helper()
	d := &testDeps{
		ingest:    &fakeIngester{},
		documents: &fakeDocuments{},
		chat:      &fakeChatter{},
		usage:     &fakeUsage{},
		health:    &fakeHealth{report: healthuc.Report{Status: healthuc.Healthy, Checks: map[string]healthuc.CheckResult{}}},
	}
	s := NewServer(d.ingest, d.documents, d.chat, d.usage, d.health, maxUploadMB, zap.NewNop())
	return NewRouter(s, nil, zap.NewNop()), d
}

// do sends req as namespace alice in local mode.
func do(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	req.Header.Set(NamespaceHeader, "alice")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}
