package scenario

import (
	"fmt"
	"strings"

	"github.com/octoreflex/flowcore/internal/attack"
	"github.com/octoreflex/flowcore/internal/policy"
)

// AssertionResult is one checked ScenarioAssertion's outcome.
type AssertionResult struct {
	Passed  bool
	Message string
}

// ScenarioResult is a single scenario's full verification outcome: the
// Attack-engine assertion checks plus the Defense-engine per-step
// verification, aggregated into one pass/fail verdict.
type ScenarioResult struct {
	ScenarioID       string
	ScenarioName     string
	IsSuccess        bool
	ExecutionResult  attack.ExecutionResult
	DefenseSteps     []StepResult
	DefenseReport    ScenarioReport
	AssertionResults []AssertionResult
	TotalElapsedMs   int64
}

// Verify runs a scenario through both engines: the Attack-side Accept.Asserts
// block is checked via CheckAssertion, and the Defense-side per-step
// expected_state/expected_tier/expected_actions predictions are checked via
// VerifyScenario. A scenario is successful only if both halves pass.
func Verify(scn Scenario, runner *Runner, attackProfile, defenseProfile policy.Profile) (ScenarioResult, error) {
	execResult, err := runner.RunAttack(scn, attackProfile)
	if err != nil {
		return ScenarioResult{}, err
	}
	defenseSteps := runner.RunDefense(scn, defenseProfile)
	defenseReport := VerifyScenario(defenseSteps, scn.ID, scn.Name)

	var assertionResults []AssertionResult
	isSuccess := true

	if scn.Accept.TerminalReason != nil {
		passed, msg := CheckAssertion(ScenarioAssertion{
			Type:  AssertTerminalReason,
			Value: scn.Accept.TerminalReason.String(),
		}, execResult)
		assertionResults = append(assertionResults, AssertionResult{Passed: passed, Message: msg})
		if !passed {
			isSuccess = false
		}
	}

	for _, a := range scn.Accept.Asserts {
		passed, msg := CheckAssertion(a, execResult)
		assertionResults = append(assertionResults, AssertionResult{Passed: passed, Message: msg})
		if !passed {
			isSuccess = false
		}
	}

	for _, sv := range defenseReport.Steps {
		if sv.Passed {
			continue
		}
		isSuccess = false
		assertionResults = append(assertionResults, AssertionResult{
			Passed:  false,
			Message: fmt.Sprintf("FAILED: defense step %d: %s", sv.Seq, strings.Join(sv.Mismatches, "; ")),
		})
	}

	return ScenarioResult{
		ScenarioID:       scn.ID,
		ScenarioName:     scn.Name,
		IsSuccess:        isSuccess,
		ExecutionResult:  execResult,
		DefenseSteps:     defenseSteps,
		DefenseReport:    defenseReport,
		AssertionResults: assertionResults,
		TotalElapsedMs:   execResult.TotalElapsedMs,
	}, nil
}

// Report aggregates multiple ScenarioResults and prints a console summary
// in the style the acceptance-test CLI tools use.
type Report struct {
	Results []ScenarioResult
}

// Add appends a result to the report.
func (r *Report) Add(result ScenarioResult) { r.Results = append(r.Results, result) }

// AllPassed reports whether every scenario in the report succeeded.
func (r *Report) AllPassed() bool {
	for _, res := range r.Results {
		if !res.IsSuccess {
			return false
		}
	}
	return true
}

// Summary renders a console-friendly pass/fail summary.
func (r *Report) Summary() string {
	var b strings.Builder
	total := len(r.Results)
	passed := 0
	for _, res := range r.Results {
		if res.IsSuccess {
			passed++
		}
	}
	failed := total - passed

	fmt.Fprintln(&b, strings.Repeat("=", 60))
	fmt.Fprintln(&b, "ACCEPTANCE SCENARIO SUMMARY")
	fmt.Fprintln(&b, strings.Repeat("=", 60))
	fmt.Fprintf(&b, "TOTAL: %d  PASSED: %d  FAILED: %d\n", total, passed, failed)
	fmt.Fprintln(&b, strings.Repeat("-", 60))

	for _, res := range r.Results {
		status := "PASS"
		if !res.IsSuccess {
			status = "FAIL"
		}
		fmt.Fprintf(&b, "[%s] %-30s | %s | %5dms\n", res.ScenarioID, res.ScenarioName, status, res.TotalElapsedMs)
		if !res.IsSuccess {
			for _, a := range res.AssertionResults {
				if !a.Passed {
					fmt.Fprintf(&b, "  - %s\n", a.Message)
				}
			}
		}
	}
	fmt.Fprintln(&b, strings.Repeat("=", 60))
	return b.String()
}
