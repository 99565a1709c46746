// Package orchestrator runs pharmaceutical queries from submission to
// notification.
//
// The orchestrator package provides:
//   - Decomposer: turns a query into one sub-question per capability, with a
//     deterministic template when the reasoning step fails
//   - Dispatcher: fans sub-questions out to capability agents under a
//     per-agent timeout and joins on every result
//   - Consolidate: merges results into an ordered, status-annotated summary
//   - NotifierDispatch: delivers an approved summary with one fallback attempt
//   - Controller: the forward-only state machine that owns each run and parks
//     it at the approval gate until a decision, timeout or cancellation
//
// Example usage:
//
//	registry, _, _ := capability.FromConfig(cfg, completer, logger)
//	ctrl := orchestrator.NewController(
//		orchestrator.SettingsFromConfig(cfg.Orchestrator),
//		orchestrator.NewDecomposer(completer, cfg.Orchestrator.Capabilities),
//		orchestrator.NewDispatcher(registry, cfg.Orchestrator.AgentTimeout),
//		orchestrator.NewNotifierDispatch(primary, fallback, logger),
//		orchestrator.WithStore(db),
//	)
//	runID, err := ctrl.SubmitQuery("Summarize CAPA, graph, and trial data for Brand X")
//	...
//	err = ctrl.SubmitApprovalDecision(runID, models.ApprovalDecision{Outcome: models.ApprovalApproved})
package orchestrator
