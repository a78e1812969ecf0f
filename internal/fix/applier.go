// File: internal/fix/applier.go
package fix

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/uveworks/vigil/api/schemas"
)

// Applier performs mechanical DOM patches for fixable issues. Every fix is
// gated on the confidence threshold, verified after application, and reverted
// when verification fails and the patch supports it. Fixes are independent:
// one failure never blocks the others.
type Applier struct {
	logger    *zap.Logger
	threshold float64
}

// NewApplier creates a fix applier with the given confidence threshold.
func NewApplier(threshold float64, logger *zap.Logger) *Applier {
	return &Applier{
		logger:    logger.Named("fix"),
		threshold: threshold,
	}
}

// ApplyAll attempts every issue in order and returns one outcome per fixable
// issue. Issues without a fix descriptor are skipped silently; issues below
// the threshold are recorded as skipped.
func (a *Applier) ApplyAll(ctx context.Context, sess schemas.Session, issues []schemas.Issue) []schemas.FixOutcome {
	outcomes := make([]schemas.FixOutcome, 0)
	for _, issue := range issues {
		if !issue.Fixable || issue.Fix == nil {
			continue
		}
		outcomes = append(outcomes, a.Apply(ctx, sess, issue))
	}
	return outcomes
}

// Apply attempts one fix against the live DOM.
func (a *Applier) Apply(ctx context.Context, sess schemas.Session, issue schemas.Issue) schemas.FixOutcome {
	log := a.logger.With(
		zap.String("issue_id", issue.ID),
		zap.String("category", string(issue.Category)))

	if issue.Confidence < a.threshold {
		log.Info("Fix skipped: confidence below threshold.",
			zap.Float64("confidence", issue.Confidence),
			zap.Float64("threshold", a.threshold))
		return schemas.FixOutcome{
			IssueID: issue.ID,
			Status:  schemas.FixSkipped,
			Detail:  fmt.Sprintf("confidence %.2f below threshold %.2f", issue.Confidence, a.threshold),
		}
	}

	previous, applyErr := a.patch(ctx, sess, issue.Fix)
	if applyErr != nil {
		log.Warn("Fix application failed.", zap.Error(applyErr))
		return schemas.FixOutcome{
			IssueID: issue.ID,
			Status:  schemas.FixUnresolved,
			Detail:  fmt.Sprintf("applying patch: %v", applyErr),
		}
	}

	verified, verifyErr := a.verify(ctx, sess, issue.Fix)
	if verifyErr == nil && verified {
		log.Info("Fix applied and verified.")
		return schemas.FixOutcome{IssueID: issue.ID, Status: schemas.FixResolved}
	}

	detail := schemas.ErrFixVerification.Error()
	if verifyErr != nil {
		detail = fmt.Sprintf("%s: %v", detail, verifyErr)
	}
	log.Warn("Fix verification failed.", zap.Error(verifyErr))

	// An unverified patch must not linger in the DOM.
	if issue.Fix.Reversible() {
		if err := a.revert(ctx, sess, issue.Fix, previous); err != nil {
			log.Error("Fix revert failed.", zap.Error(err))
			return schemas.FixOutcome{
				IssueID: issue.ID,
				Status:  schemas.FixRevertError,
				Detail:  fmt.Sprintf("%s; revert failed: %v", detail, err),
			}
		}
		return schemas.FixOutcome{
			IssueID:  issue.ID,
			Status:   schemas.FixUnresolved,
			Detail:   detail,
			Reverted: true,
		}
	}

	return schemas.FixOutcome{
		IssueID: issue.ID,
		Status:  schemas.FixUnresolved,
		Detail:  detail,
	}
}

// patch performs the DOM mutation and returns the previous value for
// reversible operations. A nil pointer means the attribute was absent.
func (a *Applier) patch(ctx context.Context, sess schemas.Session, fix *schemas.FixDescriptor) (*string, error) {
	switch fix.Op {
	case schemas.PatchSetAttribute:
		script := fmt.Sprintf(`(() => {
			const el = document.querySelector(%s);
			if (!el) return {found: false};
			const prev = el.getAttribute(%s);
			el.setAttribute(%s, %s);
			return {found: true, prev: prev};
		})()`, jsString(fix.Selector), jsString(fix.Attribute), jsString(fix.Attribute), jsString(fix.Value))

		var result struct {
			Found bool    `json:"found"`
			Prev  *string `json:"prev"`
		}
		if err := sess.Evaluate(ctx, script, &result); err != nil {
			return nil, err
		}
		if !result.Found {
			return nil, fmt.Errorf("selector %q matched no element", fix.Selector)
		}
		return result.Prev, nil

	case schemas.PatchInjectLabel:
		script := fmt.Sprintf(`(() => {
			const el = document.querySelector(%s);
			if (!el) return false;
			const label = document.createElement("label");
			label.textContent = %s;
			if (el.id) label.setAttribute("for", el.id);
			el.parentNode.insertBefore(label, el);
			return true;
		})()`, jsString(fix.Selector), jsString(fix.Value))

		var ok bool
		if err := sess.Evaluate(ctx, script, &ok); err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("selector %q matched no element", fix.Selector)
		}
		return nil, nil

	default:
		return nil, fmt.Errorf("unsupported patch operation %q", fix.Op)
	}
}

// verify evaluates the fix's verification predicate.
func (a *Applier) verify(ctx context.Context, sess schemas.Session, fix *schemas.FixDescriptor) (bool, error) {
	if fix.Verify == "" {
		return false, fmt.Errorf("fix has no verification predicate")
	}
	var ok bool
	if err := sess.Evaluate(ctx, fmt.Sprintf("Boolean(%s)", fix.Verify), &ok); err != nil {
		return false, err
	}
	return ok, nil
}

// revert restores the attribute to its pre-patch state.
func (a *Applier) revert(ctx context.Context, sess schemas.Session, fix *schemas.FixDescriptor, previous *string) error {
	var script string
	if previous == nil {
		script = fmt.Sprintf(`(() => {
			const el = document.querySelector(%s);
			if (el) el.removeAttribute(%s);
			return true;
		})()`, jsString(fix.Selector), jsString(fix.Attribute))
	} else {
		script = fmt.Sprintf(`(() => {
			const el = document.querySelector(%s);
			if (el) el.setAttribute(%s, %s);
			return true;
		})()`, jsString(fix.Selector), jsString(fix.Attribute), jsString(*previous))
	}
	var ok bool
	return sess.Evaluate(ctx, script, &ok)
}

// jsString renders s as a JavaScript string literal.
func jsString(s string) string {
	out := make([]byte, 0, len(s)+2)
	out = append(out, '"')
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '"', '\\':
			out = append(out, '\\', c)
		case '\n':
			out = append(out, '\\', 'n')
		default:
			out = append(out, c)
		}
	}
	return string(append(out, '"'))
}
