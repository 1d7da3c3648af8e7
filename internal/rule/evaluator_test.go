package rule

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/labwatch/labwatch/internal/models"
)

func singleRule(metric string, op models.Operator, threshold float64) *models.AlertRule {
	return &models.AlertRule{
		Name:       "test-rule",
		MetricName: metric,
		Condition:  op,
		Threshold:  threshold,
		Severity:   models.SeverityWarning,
	}
}

func TestEvaluateSingleCondition(t *testing.T) {
	tests := []struct {
		name      string
		op        models.Operator
		threshold float64
		current   float64
		want      bool
	}{
		{"gt above", models.OperatorGT, 90, 92, true},
		{"gt equal", models.OperatorGT, 90, 90, false},
		{"lt below", models.OperatorLT, 10, 5, true},
		{"lt above", models.OperatorLT, 10, 15, false},
		{"gte equal", models.OperatorGTE, 90, 90, true},
		{"lte equal", models.OperatorLTE, 90, 90, true},
		{"eq equal", models.OperatorEQ, 42, 42, true},
		{"eq unequal", models.OperatorEQ, 42, 42.0001, false},
		{"ne unequal", models.OperatorNE, 42, 43, true},
		{"ne equal", models.OperatorNE, 42, 42, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := singleRule("cpu_percent", tt.op, tt.threshold)
			triggered, reason := Evaluate(r, map[string]float64{"cpu_percent": tt.current})
			assert.Equal(t, tt.want, triggered)
			assert.NotEmpty(t, reason)
		})
	}
}

func TestEvaluateMissingMetric(t *testing.T) {
	r := singleRule("disk_percent", models.OperatorGT, 90)
	triggered, reason := Evaluate(r, map[string]float64{"cpu_percent": 99})
	assert.False(t, triggered)
	assert.Equal(t, ReasonMetricUnavailable, reason)
}

// eq is defined as exact bit-equality on float64. Pinned so a change to
// epsilon comparison shows up as a test failure.
func TestEqualityIsExact(t *testing.T) {
	r := singleRule("ratio", models.OperatorEQ, 0.3)
	triggered, _ := Evaluate(r, map[string]float64{"ratio": 0.1 + 0.2})
	assert.False(t, triggered, "0.1+0.2 must not equal 0.3 exactly")

	triggered, _ = Evaluate(r, map[string]float64{"ratio": 0.3})
	assert.True(t, triggered)
}

func groupRule(groups ...models.ConditionGroup) *models.AlertRule {
	return &models.AlertRule{
		Name:     "group-rule",
		Severity: models.SeverityCritical,
		Groups:   groups,
	}
}

func TestEvaluateGroupAnd(t *testing.T) {
	r := groupRule(models.ConditionGroup{
		Operator: models.GroupAnd,
		Conditions: []models.Condition{
			{MetricName: "cpu_percent", Condition: models.OperatorGT, Threshold: 80},
			{MetricName: "memory_percent", Condition: models.OperatorGT, Threshold: 90},
		},
	})

	triggered, _ := Evaluate(r, map[string]float64{"cpu_percent": 85, "memory_percent": 95})
	assert.True(t, triggered)

	triggered, _ = Evaluate(r, map[string]float64{"cpu_percent": 85, "memory_percent": 50})
	assert.False(t, triggered)

	triggered, _ = Evaluate(r, map[string]float64{"cpu_percent": 50, "memory_percent": 95})
	assert.False(t, triggered)
}

func TestEvaluateGroupOr(t *testing.T) {
	r := groupRule(models.ConditionGroup{
		Operator: models.GroupOr,
		Conditions: []models.Condition{
			{MetricName: "cpu_percent", Condition: models.OperatorGT, Threshold: 80},
			{MetricName: "memory_percent", Condition: models.OperatorGT, Threshold: 90},
		},
	})

	triggered, _ := Evaluate(r, map[string]float64{"cpu_percent": 85, "memory_percent": 50})
	assert.True(t, triggered)

	triggered, _ = Evaluate(r, map[string]float64{"cpu_percent": 50, "memory_percent": 95})
	assert.True(t, triggered)

	triggered, _ = Evaluate(r, map[string]float64{"cpu_percent": 50, "memory_percent": 50})
	assert.False(t, triggered)
}

func TestEvaluateGroupDefaultsToAnd(t *testing.T) {
	r := groupRule(models.ConditionGroup{
		Conditions: []models.Condition{
			{MetricName: "cpu_percent", Condition: models.OperatorGT, Threshold: 80},
			{MetricName: "memory_percent", Condition: models.OperatorGT, Threshold: 90},
		},
	})

	triggered, _ := Evaluate(r, map[string]float64{"cpu_percent": 85, "memory_percent": 50})
	assert.False(t, triggered)
}

// Groups are combined with a fixed AND regardless of their own operators.
func TestEvaluateMultipleGroupsCombineWithAnd(t *testing.T) {
	r := groupRule(
		models.ConditionGroup{
			Operator: models.GroupOr,
			Conditions: []models.Condition{
				{MetricName: "cpu_percent", Condition: models.OperatorGT, Threshold: 80},
				{MetricName: "load_avg", Condition: models.OperatorGT, Threshold: 4},
			},
		},
		models.ConditionGroup{
			Operator: models.GroupAnd,
			Conditions: []models.Condition{
				{MetricName: "memory_percent", Condition: models.OperatorGT, Threshold: 90},
			},
		},
	)

	// Both groups hold.
	triggered, _ := Evaluate(r, map[string]float64{"cpu_percent": 85, "load_avg": 1, "memory_percent": 95})
	assert.True(t, triggered)

	// First group holds, second does not.
	triggered, _ = Evaluate(r, map[string]float64{"cpu_percent": 85, "load_avg": 1, "memory_percent": 50})
	assert.False(t, triggered)

	// Second group holds, first does not.
	triggered, _ = Evaluate(r, map[string]float64{"cpu_percent": 10, "load_avg": 1, "memory_percent": 95})
	assert.False(t, triggered)
}

// A metric absent from the value map makes that one condition false, not
// an evaluation error.
func TestEvaluateGroupMissingMetricIsFalse(t *testing.T) {
	r := groupRule(models.ConditionGroup{
		Operator: models.GroupAnd,
		Conditions: []models.Condition{
			{MetricName: "cpu_percent", Condition: models.OperatorGT, Threshold: 80},
			{MetricName: "not_collected", Condition: models.OperatorGT, Threshold: 1},
		},
	})

	triggered, _ := Evaluate(r, map[string]float64{"cpu_percent": 85})
	assert.False(t, triggered)

	or := groupRule(models.ConditionGroup{
		Operator: models.GroupOr,
		Conditions: []models.Condition{
			{MetricName: "not_collected", Condition: models.OperatorGT, Threshold: 1},
			{MetricName: "cpu_percent", Condition: models.OperatorGT, Threshold: 80},
		},
	})
	triggered, _ = Evaluate(or, map[string]float64{"cpu_percent": 85})
	assert.True(t, triggered)
}

func TestEvaluateEmptyGroupNeverTriggers(t *testing.T) {
	r := groupRule(models.ConditionGroup{Operator: models.GroupAnd})
	triggered, _ := Evaluate(r, map[string]float64{"cpu_percent": 85})
	assert.False(t, triggered)
}
