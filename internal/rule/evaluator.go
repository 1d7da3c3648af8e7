package rule

import (
	"fmt"

	"github.com/labwatch/labwatch/internal/models"
)

// ReasonMetricUnavailable is returned when a single-condition rule's metric
// is absent from the current value map. Absence of data is never an error.
const ReasonMetricUnavailable = "metric unavailable"

// Evaluate decides whether a rule triggers against the current metric
// values of one resource. It returns the trigger decision and a
// human-readable reason.
//
// Rules with condition groups use the group path: each group combines its
// conditions with the group operator (AND when unset), and all groups must
// hold for the rule to fire. A metric missing from the map makes that one
// condition false. Rules without groups use the single metric/condition/
// threshold fields.
func Evaluate(r *models.AlertRule, values map[string]float64) (bool, string) {
	if len(r.Groups) > 0 {
		for i := range r.Groups {
			if !evaluateGroup(&r.Groups[i], values) {
				return false, fmt.Sprintf("condition group %d not met", i+1)
			}
		}
		return true, "all condition groups met"
	}

	current, ok := values[r.MetricName]
	if !ok {
		return false, ReasonMetricUnavailable
	}
	if !Compare(r.Condition, current, r.Threshold) {
		return false, fmt.Sprintf("%s %s %g not met (current %g)",
			r.MetricName, r.Condition.Symbol(), r.Threshold, current)
	}
	return true, fmt.Sprintf("%s %s %g (current %g)",
		r.MetricName, r.Condition.Symbol(), r.Threshold, current)
}

func evaluateGroup(g *models.ConditionGroup, values map[string]float64) bool {
	if len(g.Conditions) == 0 {
		return false
	}

	op := g.Operator
	if op == "" {
		op = models.GroupAnd
	}

	for _, c := range g.Conditions {
		current, ok := values[c.MetricName]
		holds := ok && Compare(c.Condition, current, c.Threshold)

		switch op {
		case models.GroupOr:
			if holds {
				return true
			}
		default: // AND
			if !holds {
				return false
			}
		}
	}
	return op != models.GroupOr
}

// Compare applies a scalar comparison. All comparisons are IEEE-754 double
// precision; eq/ne are exact.
func Compare(op models.Operator, current, threshold float64) bool {
	switch op {
	case models.OperatorGT:
		return current > threshold
	case models.OperatorLT:
		return current < threshold
	case models.OperatorGTE:
		return current >= threshold
	case models.OperatorLTE:
		return current <= threshold
	case models.OperatorEQ:
		return current == threshold
	case models.OperatorNE:
		return current != threshold
	default:
		return false
	}
}
