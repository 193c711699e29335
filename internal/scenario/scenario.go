// Package scenario runs ordered checks against a browser session and reports
// one outcome per check.
package scenario

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vtmqa/vtmsmoke/internal/browser"
	"github.com/vtmqa/vtmsmoke/internal/resultlog"
)

// Verdict is the expected-path result of a check.
type Verdict struct {
	Passed bool
	Detail string
}

// Pass returns a passing Verdict.
func Pass(format string, args ...interface{}) Verdict {
	return Verdict{Passed: true, Detail: fmt.Sprintf(format, args...)}
}

// Fail returns a failing Verdict. Use it for assertion mismatches and
// elements that could not be found; faults are returned as errors instead.
func Fail(format string, args ...interface{}) Verdict {
	return Verdict{Detail: fmt.Sprintf(format, args...)}
}

// Check is one logged unit of work.
type Check struct {
	// Name is written to the result log.
	Name string
	Run  func(ctx context.Context, s *browser.Session) (Verdict, error)
}

// Scenario is an ordered group of checks.
type Scenario struct {
	Name   string
	Checks []Check
	// Summary is printed when every check of the scenario succeeded.
	Summary string
}

// CheckResult is the concluded state of a check.
type CheckResult struct {
	Name      string
	Outcome   resultlog.Outcome
	Detail    string
	Duration  time.Duration
	Artifacts []string
}

// Result collects the check results of one scenario.
type Result struct {
	Scenario string
	Summary  string
	Checks   []CheckResult
}

// OK reports whether every check succeeded.
func (r Result) OK() bool {
	for _, c := range r.Checks {
		if c.Outcome != resultlog.Success {
			return false
		}
	}
	return len(r.Checks) > 0
}

// Runner executes scenarios in order on one session.
type Runner struct {
	session  *browser.Session
	recorder resultlog.Recorder
	log      logrus.FieldLogger
	now      func() time.Time
}

// NewRunner returns a Runner that reports every outcome to recorder.
func NewRunner(session *browser.Session, recorder resultlog.Recorder, log logrus.FieldLogger) *Runner {
	return &Runner{
		session:  session,
		recorder: recorder,
		log:      log.WithFields(logrus.Fields{"component": "scenario", "run": session.RunID()}),
		now:      time.Now,
	}
}

// Run executes every check of every scenario. A check that fails or faults
// never stops the ones after it; only ctx ending does, in which case the
// results gathered so far are returned with ctx's error.
func (r *Runner) Run(ctx context.Context, scenarios []Scenario) ([]Result, error) {
	var results []Result
	for _, sc := range scenarios {
		res := Result{Scenario: sc.Name, Summary: sc.Summary}
		for _, c := range sc.Checks {
			if err := ctx.Err(); err != nil {
				return append(results, res), err
			}
			res.Checks = append(res.Checks, r.runCheck(ctx, c))
		}
		if res.OK() && sc.Summary != "" {
			r.log.WithField("scenario", sc.Name).Info(sc.Summary)
		}
		results = append(results, res)
	}
	return results, nil
}

func (r *Runner) runCheck(ctx context.Context, c Check) CheckResult {
	logger := r.log.WithField("check", c.Name)
	logger.Debug("Starting check")

	start := r.now()
	v, err := invoke(ctx, r.session, c)
	end := r.now()

	res := CheckResult{Name: c.Name, Detail: v.Detail, Duration: end.Sub(start)}
	switch {
	case err != nil:
		res.Outcome, res.Detail = resultlog.Error, err.Error()
	case v.Passed:
		res.Outcome = resultlog.Success
	default:
		res.Outcome = resultlog.Failure
	}

	logger = logger.WithFields(logrus.Fields{"outcome": res.Outcome.Label(), "took": res.Duration.Round(time.Millisecond)})
	if res.Outcome == resultlog.Success {
		logger.Info("Check passed")
	} else {
		res.Artifacts = r.session.CaptureFailure(c.Name)
		logger.WithField("detail", res.Detail).Warn("Check did not pass")
	}

	r.recorder.Record(resultlog.Record{
		Time:    end,
		Test:    c.Name,
		Outcome: res.Outcome,
		RunID:   r.session.RunID(),
		Detail:  res.Detail,
	})
	return res
}

// invoke runs c, turning a panic into an error.
func invoke(ctx context.Context, s *browser.Session, c Check) (v Verdict, err error) {
	defer func() {
		if p := recover(); p != nil {
			v = Verdict{}
			err = fmt.Errorf("panic: %v", p)
			s.Log().WithField("check", c.Name).Debugf("Recovered panic\n%s", debug.Stack())
		}
	}()
	return c.Run(ctx, s)
}
