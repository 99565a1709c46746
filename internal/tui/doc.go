// Package tui provides the terminal review screen shown at the approval gate.
//
// The review screen displays the consolidated summary of a parked run and
// collects one decision:
//   - a approves the summary as shown
//   - r rejects it
//   - e opens an editor preloaded with the summary; ctrl+s sends the edit
//     and esc returns to the summary
//   - q or ctrl+c leaves without deciding, so the run stays parked
//
// Usage:
//
//	decision, ok, err := tui.RunReview(state, orchestrator.Render(*state.Summary))
//	if err != nil {
//	    return err
//	}
//	if ok {
//	    err = ctrl.SubmitApprovalDecision(state.RunID, decision)
//	}
package tui
