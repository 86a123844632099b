package agent

import "github.com/sgrlab/deepresearch/schema"

// AllowedActions computes the action set the model may choose from at the
// next step. The rules guarantee termination: once the step budget is
// reached only report-producing actions remain.
func AllowedActions(c *Context) []schema.Kind {
	b := c.Budgets()
	step, searches, clarifications := c.Counters()
	hasPlan := c.Plan() != nil
	hasReport := c.Report() != nil
	enoughSources := len(c.Sources()) >= b.MinReportSources

	// A finished report leaves exactly one way out.
	if hasReport {
		return []schema.Kind{schema.KindReportCompletion}
	}

	// Step budget exhausted: force the report, or nothing if there is no
	// evidence to report on (the loop fails the agent in that case).
	if step >= b.MaxSteps {
		if enoughSources {
			return []schema.Kind{schema.KindCreateReport}
		}
		return nil
	}

	// Before a plan exists the agent may only clarify or plan.
	if !hasPlan {
		allowed := []schema.Kind{}
		if clarifications < b.MaxClarifications {
			allowed = append(allowed, schema.KindClarification)
		}
		return append(allowed, schema.KindGeneratePlan)
	}

	allowed := []schema.Kind{}
	if searches < b.MaxSearches {
		allowed = append(allowed, schema.KindWebSearch)
	}
	allowed = append(allowed, schema.KindAdaptPlan)
	if enoughSources {
		allowed = append(allowed, schema.KindCreateReport)
	}
	return allowed
}
