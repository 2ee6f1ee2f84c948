// Two-tier violation detection: deterministic forbidden-term matching, falling back to an external classifier.
package detect

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/guildwarden/warden/automod/keyword"
	"github.com/guildwarden/warden/automod/settings"
	"github.com/guildwarden/warden/automod/verdict"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("automod/detect")

// Classification backend unreachable, timed out, or returned an error
var ErrClassifierUnavailable = errors.New("classifier unavailable")

const DefaultClassifierTimeout = 20 * time.Second

// Black-box text classification backend: prompt in, fixed-field text block out.
type Classifier interface {
	Classify(ctx context.Context, prompt string) (string, error)
}

// Adapter to allow use of ordinary functions as a Classifier
type ClassifierFunc func(ctx context.Context, prompt string) (string, error)

func (f ClassifierFunc) Classify(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// What to do when the classifier fails or its output cannot be parsed
type ClassifierErrorPolicy int

const (
	// Fail-open: treat the message as not violating any rule, with the error text as the reason
	TreatAsNoViolation ClassifierErrorPolicy = iota
)

func (p ClassifierErrorPolicy) Verdict(err error) verdict.Verdict {
	// TreatAsNoViolation is the only policy
	return verdict.Clean(err.Error())
}

type Tier int

const (
	TierKeyword    Tier = 1
	TierClassifier Tier = 2
)

func (t Tier) String() string {
	switch t {
	case TierKeyword:
		return "keyword"
	case TierClassifier:
		return "classifier"
	}
	return "unknown"
}

type Result struct {
	Verdict verdict.Verdict
	Tier    Tier
	// Raw classifier output; empty for keyword matches
	Raw string
	// Classifier or parse failure which was resolved by the error policy. Never returned to pipeline callers as an error.
	Err error
}

type Detector struct {
	// Optional; if nil, every message that misses tier 1 fails open
	Classifier        Classifier
	Timeout           time.Duration
	OnClassifierError ClassifierErrorPolicy
	Logger            *slog.Logger
}

func (d *Detector) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.Default()
	}
	return d.Logger
}

// Produces a verdict for the message text, under the given workspace settings. Never fails: classifier problems are resolved by OnClassifierError.
func (d *Detector) Detect(ctx context.Context, ms *settings.MonitorSettings, text string) Result {
	if tr, ok := keyword.FirstMatch(text, keyword.ExtractTermRules(ms.Rules)); ok {
		verdictCount.WithLabelValues(TierKeyword.String(), "true").Inc()
		return Result{
			Tier: TierKeyword,
			Verdict: verdict.Verdict{
				IsViolation:       true,
				ViolatedRule:      tr.Rule,
				Severity:          verdict.SeverityMedium,
				RecommendedAction: verdict.ActionWarn,
				Reason:            fmt.Sprintf("Tin nhắn chứa từ bị cấm \"%s\" (quy tắc #%d: %s)", tr.Term, tr.Index, tr.Rule),
			},
		}
	}

	res := d.classify(ctx, ms, text)
	verdictCount.WithLabelValues(TierClassifier.String(), fmt.Sprint(res.Verdict.IsViolation)).Inc()
	return res
}

func (d *Detector) classify(ctx context.Context, ms *settings.MonitorSettings, text string) Result {
	ctx, span := tracer.Start(ctx, "classify")
	defer span.End()
	span.SetAttributes(attribute.String("workspace", ms.WorkspaceID))

	res := Result{Tier: TierClassifier}
	if d.Classifier == nil {
		res.Err = fmt.Errorf("%w: no classifier configured", ErrClassifierUnavailable)
		classifierFailures.WithLabelValues("unconfigured").Inc()
		res.Verdict = d.OnClassifierError.Verdict(res.Err)
		return res
	}

	timeout := d.Timeout
	if timeout <= 0 {
		timeout = DefaultClassifierTimeout
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	raw, err := d.Classifier.Classify(cctx, RenderPrompt(ms, text))
	classifierDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		kind := "error"
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(cctx.Err(), context.DeadlineExceeded) {
			kind = "timeout"
		}
		classifierFailures.WithLabelValues(kind).Inc()
		res.Err = fmt.Errorf("%w: %w", ErrClassifierUnavailable, err)
		d.logger().Warn("classifier call failed, treating as no violation", "err", err, "kind", kind, "workspace", ms.WorkspaceID)
		res.Verdict = d.OnClassifierError.Verdict(res.Err)
		return res
	}
	res.Raw = raw

	v, err := ParseVerdict(raw)
	if err != nil {
		classifierFailures.WithLabelValues("unparseable").Inc()
		res.Err = err
		d.logger().Warn("classifier output unparseable, treating as no violation", "err", err, "workspace", ms.WorkspaceID, "raw", raw)
		res.Verdict = d.OnClassifierError.Verdict(res.Err)
		return res
	}
	if v.IsViolation && v.ViolatedRule != verdict.NoRule {
		if canonical, _, ok := ms.ResolveRule(v.ViolatedRule); ok {
			v.ViolatedRule = canonical
		}
	}
	span.SetAttributes(attribute.Bool("violation", v.IsViolation))
	res.Verdict = v
	return res
}
