package orchestrator

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// orchestratorMetrics holds the OTel instruments Run reports against. They
// register against the global provider at init time, the way the teacher's
// dolt storage backend does, so they forward to a real exporter once one is
// installed and stay no-ops otherwise.
var orchestratorMetrics struct {
	phaseCount    metric.Int64Counter
	phaseFailures metric.Int64Counter
}

func init() {
	m := otel.Meter("github.com/jcatrysse/jira2redmine/orchestrator")
	orchestratorMetrics.phaseCount, _ = m.Int64Counter("migrate.phase.count",
		metric.WithDescription("Phases executed per entity family"),
		metric.WithUnit("{phase}"),
	)
	orchestratorMetrics.phaseFailures, _ = m.Int64Counter("migrate.phase.failures",
		metric.WithDescription("Phases that returned an error"),
		metric.WithUnit("{phase}"),
	)
}

func recordPhaseOutcome(ctx context.Context, family Family, phase Phase, dryRun bool, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("family", string(family)),
		attribute.String("phase", string(phase)),
		attribute.Bool("dry_run", dryRun),
	}
	orchestratorMetrics.phaseCount.Add(ctx, 1, metric.WithAttributes(attrs...))
	if err != nil {
		orchestratorMetrics.phaseFailures.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

// Report renders one Run invocation's PhaseResult list as an operator-facing
// summary line per phase, in execution order.
func Report(family Family, results []PhaseResult) []string {
	lines := make([]string, 0, len(results))
	for _, r := range results {
		lines = append(lines, string(family)+"/"+string(r.Phase)+": "+r.Summary)
	}
	return lines
}
