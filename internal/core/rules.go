// Package core wires the commit-time rules and the storage backends that
// enforce the location, approval and certificate invariants.
package core

import "locationcore/pkg/domain"

// NewDefaultRulesEngine builds a rules engine with the built-in policy set.
func NewDefaultRulesEngine() *domain.RulesEngine {
	engine := domain.NewRulesEngine()
	engine.Register(LifecycleTransitionRule())
	engine.Register(LocationIntegrityRule())
	engine.Register(PendingRequestScopeRule())
	engine.Register(CurrentCertificateRule())
	engine.Register(LedgerCompletenessRule())
	return engine
}

func blocking(rule string, code domain.ErrorCode, reason domain.Reason, entity domain.EntityType, id, message string) domain.Violation {
	return domain.Violation{
		Rule:     rule,
		Severity: domain.SeverityBlock,
		Code:     code,
		Reason:   reason,
		Message:  message,
		Entity:   entity,
		EntityID: id,
	}
}

func decodeChangePayload[T any](payload domain.ChangePayload) (T, bool) {
	out, ok, err := domain.DecodePayload[T](payload)
	if err != nil {
		return out, false
	}
	return out, ok
}
