package qualifier

import (
	"errors"
	"log/slog"

	"swift-coupons/internal/models"
)

// DefaultFailureMessage is reported when no failed rule left a message.
const DefaultFailureMessage = "You are not qualified to use this coupon."

// QualificationError rejects a coupon for the current request.
type QualificationError struct {
	Message string
}

func (e *QualificationError) Error() string { return e.Message }

// Evaluator reduces a coupon's qualifier configuration to a verdict.
type Evaluator struct {
	registry *Registry
	logger   *slog.Logger
}

// NewEvaluator creates an evaluator over registry. A nil logger discards
// output.
func NewEvaluator(registry *Registry, logger *slog.Logger) *Evaluator {
	if registry == nil {
		registry = DefaultRegistry()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Evaluator{registry: registry, logger: logger}
}

// Evaluate returns nil when the configuration admits the coupon and a
// *QualificationError otherwise. Disabled or empty configurations always
// admit.
func (e *Evaluator) Evaluate(env *Env, cfg models.QualifierConfig) error {
	if !cfg.Enabled || len(cfg.Data) == 0 {
		return nil
	}

	r := &run{Evaluator: e, env: env}
	var ok bool
	if len(cfg.Data) == 1 {
		ok = r.group(cfg.Data[0])
	} else {
		ok = foldGroups(cfg.Data, r.group)
	}
	if ok {
		return nil
	}

	msg := r.message
	if msg == "" {
		msg = DefaultFailureMessage
	}
	return &QualificationError{Message: msg}
}

// run holds per-evaluation state. The message is overwritten by every rule
// that fails, so the last failure in evaluation order wins.
type run struct {
	*Evaluator
	env     *Env
	message string
}

func (r *run) group(g models.GroupNode) bool {
	if len(g.Rules) == 0 {
		return true
	}
	ok := foldRules(g.Rules, r.rule)
	if !ok && r.message == "" {
		r.message = g.Settings.ErrorMessage
	}
	return ok
}

func (r *run) rule(node models.RuleNode) bool {
	rule, err := r.registry.Build(Kind(node.ID), node.Data)
	if errors.Is(err, ErrUnknownRule) {
		r.logger.Debug("unknown qualifier rule", "rule", node.ID)
		return false
	}

	vars := varsFromData(node.Data)
	if err != nil {
		r.logger.Debug("invalid qualifier rule data", "rule", node.ID, "error", err)
		r.message = Render(node.Settings.ErrorMessage, vars)
		return false
	}
	if rule.Match(r.env, vars) {
		return true
	}
	r.message = Render(node.Settings.ErrorMessage, vars)
	return false
}

// foldGroups reduces an alternating group/switch sequence left to right,
// carrying the running verdict. An OR switch whose left side is already true
// ends the fold; otherwise the right group is evaluated and combined with AND.
func foldGroups(nodes []models.GroupNode, eval func(models.GroupNode) bool) bool {
	if len(nodes) == 0 {
		return true
	}

	evaluation := eval(nodes[0])
	for i := 1; i < len(nodes); i++ {
		if !nodes[i].IsSwitch() {
			continue
		}
		if nodes[i].State == models.SwitchOR && evaluation {
			return true
		}
		if i+1 >= len(nodes) || nodes[i+1].IsSwitch() {
			// dangling switch
			return evaluation
		}
		next := eval(nodes[i+1])
		evaluation = evaluation && next
	}
	return evaluation
}

// foldRules reduces a group's rule/switch sequence. Unlike groups, every
// switch combines only its two neighbours: the rule left of the switch is
// evaluated again and the previous verdict is discarded, so A AND B AND C
// with a false A and a true B and C admits. An OR whose left rule is true
// ends the fold. A sequence without switches is its first rule.
func foldRules(nodes []models.RuleNode, eval func(models.RuleNode) bool) bool {
	if len(nodes) == 0 {
		return true
	}

	evaluation, switched := false, false
	for i := 1; i < len(nodes); i++ {
		if !nodes[i].IsSwitch() || nodes[i-1].IsSwitch() {
			continue
		}
		switched = true
		prev := eval(nodes[i-1])
		if nodes[i].State == models.SwitchOR && prev {
			return true
		}
		if i+1 >= len(nodes) || nodes[i+1].IsSwitch() {
			// dangling switch
			return prev
		}
		next := eval(nodes[i+1])
		evaluation = prev && next
	}
	if !switched {
		return eval(nodes[0])
	}
	return evaluation
}
