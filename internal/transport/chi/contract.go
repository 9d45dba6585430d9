package chi

import (
	"context"

	domchat "github.com/kailas-cloud/finrag/internal/domain/chat"
	domdoc "github.com/kailas-cloud/finrag/internal/domain/document"
	domusage "github.com/kailas-cloud/finrag/internal/domain/usage"
	domvec "github.com/kailas-cloud/finrag/internal/domain/vector"
	chatuc "github.com/kailas-cloud/finrag/internal/usecase/chat"
	healthuc "github.com/kailas-cloud/finrag/internal/usecase/health"
)

// Ingester runs the upload pipeline.
type Ingester interface {
	Ingest(ctx context.Context, data []byte, filename, ns string) (domdoc.Summary, error)
}

// Documents lists and deletes ingested documents.
type Documents interface {
	List(ctx context.Context, ns string) ([]domdoc.Summary, error)
	Delete(ctx context.Context, ns, filename string) (domvec.DeleteResult, error)
}

// Chatter answers questions.
type Chatter interface {
	Chat(ctx context.Context, ns, question string, history []domchat.Turn, stream bool) (chatuc.Reply, error)
}

// UsageReporter builds embedding budget reports.
type UsageReporter interface {
	GetReport(ctx context.Context, period domusage.Period) domusage.Report
}

// HealthChecker aggregates component checks.
type HealthChecker interface {
	Check(ctx context.Context) healthuc.Report
}
