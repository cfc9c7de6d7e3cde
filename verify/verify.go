// Package verify scores an evidence bundle against a claimed work duration.
// Every check is independent and must pass; the first failure wins and
// carries a machine-readable reason. Optional fields that are absent skip
// their check instead of failing it — missing evidence is never a false
// reject, but an empty bundle always is.
package verify

import (
	"fmt"
	"math"
	"time"
)

// Reject reason codes. Stable identifiers for callers; never a generic
// "invalid".
const (
	ReasonNoEvidence          = "no_evidence"
	ReasonInsufficientDensity = "insufficient_density"
	ReasonSpanMismatch        = "span_mismatch"
	ReasonSubmissionTooOld    = "submission_too_old"
	ReasonLowWorkQuality      = "low_work_quality"
	ReasonTooMuchNonWork      = "too_much_non_work"
	ReasonLivenessFailures    = "liveness_failures"
	ReasonLivenessConfidence  = "liveness_confidence"
)

// RejectError reports which check failed and why.
type RejectError struct {
	Code   string
	Detail string
}

func (e *RejectError) Error() string {
	return fmt.Sprintf("verify: %s: %s", e.Code, e.Detail)
}

func reject(code, format string, args ...interface{}) *RejectError {
	return &RejectError{Code: code, Detail: fmt.Sprintf(format, args...)}
}

// LivenessCheck is one liveness probe result from the tracker.
type LivenessCheck struct {
	Detected   bool    `json:"detected"`
	Confidence float64 `json:"confidence"`
}

// Evidence is the per-submission proof-of-work bundle assembled by the
// tracker. Captures are taken at a fixed short interval during active work.
type Evidence struct {
	CaptureCount        int             `json:"capture_count"`
	FirstCaptureTime    string          `json:"first_capture_time,omitempty"`
	LastCaptureTime     string          `json:"last_capture_time,omitempty"`
	WorkPercentage      *float64        `json:"work_percentage,omitempty"`
	NonWorkCaptureCount int             `json:"non_work_capture_count,omitempty"`
	LivenessChecks      []LivenessCheck `json:"liveness_checks,omitempty"`
}

// Thresholds is the single named configuration set for all checks.
type Thresholds struct {
	// MinCapturesPerHour scales the evidence-density floor by claimed hours.
	MinCapturesPerHour int `yaml:"min_captures_per_hour"`
	// SpanTolerance is the allowed fractional deviation between the capture
	// time span and the claimed hours. Wide, to absorb breaks and idle gaps.
	SpanTolerance float64 `yaml:"span_tolerance"`
	// MaxAgeHours rejects evidence whose last capture is older than this.
	MaxAgeHours float64 `yaml:"max_age_hours"`
	// MinWorkPercent is the floor on the work-relevant capture percentage.
	MinWorkPercent float64 `yaml:"min_work_percent"`
	// MaxNonWorkFraction caps non-work captures as a fraction of the total.
	MaxNonWorkFraction float64 `yaml:"max_non_work_fraction"`
	// MaxLivenessFailFraction caps failed liveness probes as a fraction of
	// all probes (bathroom breaks happen).
	MaxLivenessFailFraction float64 `yaml:"max_liveness_fail_fraction"`
	// MinLivenessConfidence is the floor on mean confidence of passed probes.
	MinLivenessConfidence float64 `yaml:"min_liveness_confidence"`
}

// DefaultThresholds returns the production defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinCapturesPerHour:      250,
		SpanTolerance:           0.5,
		MaxAgeHours:             48,
		MinWorkPercent:          50,
		MaxNonWorkFraction:      0.6,
		MaxLivenessFailFraction: 0.4,
		MinLivenessConfidence:   0.5,
	}
}

// Verifier runs the checks. Now is injectable for the staleness check.
type Verifier struct {
	T   Thresholds
	Now func() time.Time
}

// NewVerifier returns a verifier over the given thresholds using wall time.
func NewVerifier(t Thresholds) *Verifier {
	return &Verifier{T: t, Now: time.Now}
}

// Verify classifies the claim. A nil return is an accept; any non-nil
// return is a *RejectError naming the failed check.
func (v *Verifier) Verify(e *Evidence, claimedHours float64) error {
	if e == nil || e.CaptureCount == 0 {
		return reject(ReasonNoEvidence, "no captures provided")
	}
	if err := v.checkDensity(e, claimedHours); err != nil {
		return err
	}
	if err := v.checkTimeSpan(e, claimedHours); err != nil {
		return err
	}
	if err := v.checkStaleness(e); err != nil {
		return err
	}
	if err := v.checkWorkQuality(e); err != nil {
		return err
	}
	return v.checkLiveness(e)
}

func (v *Verifier) checkDensity(e *Evidence, claimedHours float64) error {
	minCaptures := int(math.Ceil(claimedHours * float64(v.T.MinCapturesPerHour)))
	if minCaptures < 1 {
		minCaptures = 1
	}
	if e.CaptureCount < minCaptures {
		return reject(ReasonInsufficientDensity,
			"%d captures for %.1f hours, expected at least %d",
			e.CaptureCount, claimedHours, minCaptures)
	}
	return nil
}

func (v *Verifier) checkTimeSpan(e *Evidence, claimedHours float64) error {
	first, okFirst := parseCaptureTime(e.FirstCaptureTime)
	last, okLast := parseCaptureTime(e.LastCaptureTime)
	if !okFirst || !okLast {
		// Unparsable or absent timestamps skip the check.
		return nil
	}
	spanHours := last.Sub(first).Hours()
	if math.Abs(spanHours-claimedHours) > claimedHours*v.T.SpanTolerance {
		return reject(ReasonSpanMismatch,
			"capture span %.1fh does not match claimed %.1fh", spanHours, claimedHours)
	}
	return nil
}

func (v *Verifier) checkStaleness(e *Evidence) error {
	last, ok := parseCaptureTime(e.LastCaptureTime)
	if !ok {
		return nil
	}
	ageHours := v.Now().Sub(last).Hours()
	if ageHours > v.T.MaxAgeHours {
		return reject(ReasonSubmissionTooOld, "last capture is %.1f hours old", ageHours)
	}
	return nil
}

func (v *Verifier) checkWorkQuality(e *Evidence) error {
	if e.WorkPercentage != nil && *e.WorkPercentage < v.T.MinWorkPercent {
		return reject(ReasonLowWorkQuality,
			"%.0f%% work-related activity, minimum %.0f%%",
			*e.WorkPercentage, v.T.MinWorkPercent)
	}
	// The raw non-work count is checked even when the percentage field is
	// absent or inconsistent with it.
	if float64(e.NonWorkCaptureCount) > float64(e.CaptureCount)*v.T.MaxNonWorkFraction {
		return reject(ReasonTooMuchNonWork,
			"%d of %d captures are non-work", e.NonWorkCaptureCount, e.CaptureCount)
	}
	return nil
}

func (v *Verifier) checkLiveness(e *Evidence) error {
	total := len(e.LivenessChecks)
	if total == 0 {
		return nil
	}
	failed := 0
	passedConfidence := 0.0
	for _, check := range e.LivenessChecks {
		if check.Detected {
			passedConfidence += check.Confidence
		} else {
			failed++
		}
	}
	if float64(failed) > float64(total)*v.T.MaxLivenessFailFraction {
		return reject(ReasonLivenessFailures,
			"%d of %d liveness checks failed", failed, total)
	}
	if passed := total - failed; passed > 0 {
		mean := passedConfidence / float64(passed)
		if mean < v.T.MinLivenessConfidence {
			return reject(ReasonLivenessConfidence,
				"mean liveness confidence %.2f below %.2f", mean, v.T.MinLivenessConfidence)
		}
	}
	return nil
}

// parseCaptureTime accepts RFC 3339 or a bare ISO timestamp without zone,
// which is what trackers emit.
func parseCaptureTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05.999999", "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
