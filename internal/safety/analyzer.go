package safety

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/simonlevelai/askeve-platform/pkg/logging"
)

var analyzerTracer = otel.Tracer("askeve/safety-analyzer")

// ConversationContext carries the history and risk flags the contextual
// pass needs.
type ConversationContext struct {
	ConversationID string
	UserID         string
	RecentMessages []string
	RiskFlags      []string
}

// TriggerMatch records a single trigger firing against a message. Matches
// are produced fresh per analysis call and never mutated.
type TriggerMatch struct {
	TriggerID  string    `json:"trigger_id"`
	Category   Category  `json:"category"`
	Severity   Severity  `json:"severity"`
	Confidence float64   `json:"confidence"`
	Match      MatchType `json:"match_type"`
	Start      int       `json:"start"`
	End        int       `json:"end"`
}

// SafetyResult is the analyzer's verdict for one user message. It is
// produced once and only read downstream.
type SafetyResult struct {
	Severity           Severity       `json:"severity"`
	Confidence         float64        `json:"confidence"`
	RequiresEscalation bool           `json:"requires_escalation"`
	Matches            []TriggerMatch `json:"matches,omitempty"`
	RiskFactors        []string       `json:"risk_factors,omitempty"`
	ContextualConcerns []string       `json:"contextual_concerns,omitempty"`
	RecommendedActions []string       `json:"recommended_actions,omitempty"`
	AnalysisDuration   time.Duration  `json:"analysis_duration"`
	SLAViolation       bool           `json:"sla_violation"`
	TableVersion       string         `json:"table_version"`
}

// noMatchConfidence is the low baseline reported when nothing in the table
// fires.
const noMatchConfidence = 0.3

// contextualConfidence is the confidence assigned to matches produced by the
// contextual pass alone.
const contextualConfidence = 0.5

// Analyzer scans messages against a trigger table. The SLA is a soft
// deadline: overruns are logged and flagged, never cancelled, because a
// crisis verdict must not be dropped to a timeout.
type Analyzer struct {
	table  *TriggerTable
	sla    time.Duration
	logger *logging.Logger
}

// NewAnalyzer creates an analyzer over the given table.
func NewAnalyzer(table *TriggerTable, sla time.Duration, logger *logging.Logger) *Analyzer {
	if table == nil {
		table = DefaultTriggerTable()
	}
	if sla <= 0 {
		sla = 500 * time.Millisecond
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Analyzer{table: table, sla: sla, logger: logger}
}

// Analyze runs the exact, fuzzy, pattern, and contextual passes over the
// message and returns the combined verdict.
func (a *Analyzer) Analyze(ctx context.Context, message string, convCtx ConversationContext) SafetyResult {
	ctx, span := analyzerTracer.Start(ctx, "safety.analyze")
	defer span.End()

	start := time.Now()

	lower := strings.ToLower(message)
	normalized := normalizeText(message)

	var matches []TriggerMatch
	for i, t := range a.table.triggers {
		if m, ok := a.matchTrigger(t, a.table.normalizedPhrases[i], message, lower, normalized); ok {
			matches = append(matches, m)
		}
	}

	concerns, riskFactors := a.contextualPass(convCtx)
	if len(concerns) > 0 && len(matches) == 0 {
		// History alone can raise an otherwise neutral message to
		// emotional-support level.
		matches = append(matches, TriggerMatch{
			TriggerID:  "context.prior_concern",
			Category:   CategoryEmotionalDistress,
			Severity:   SeverityEmotionalSupport,
			Confidence: contextualConfidence,
			Match:      MatchContextual,
		})
	}

	result := a.combine(matches)
	result.ContextualConcerns = concerns
	result.RiskFactors = riskFactors
	result.TableVersion = a.table.version
	result.AnalysisDuration = time.Since(start)

	if result.AnalysisDuration > a.sla {
		result.SLAViolation = true
		a.logger.Warn("safety analysis exceeded SLA",
			"conversation_id", convCtx.ConversationID,
			"duration_ms", result.AnalysisDuration.Milliseconds(),
			"sla_ms", a.sla.Milliseconds(),
		)
	}

	span.SetAttributes(
		attribute.String("safety.severity", string(result.Severity)),
		attribute.Bool("safety.requires_escalation", result.RequiresEscalation),
		attribute.Int("safety.match_count", len(result.Matches)),
	)

	return result
}

// AnalyzeSafe wraps Analyze with fail-safe semantics: any panic during
// trigger matching yields a crisis verdict rather than suppressing
// escalation.
func (a *Analyzer) AnalyzeSafe(ctx context.Context, message string, convCtx ConversationContext) (result SafetyResult) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("safety analyzer failure, failing safe to crisis",
				"conversation_id", convCtx.ConversationID,
				"panic", fmt.Sprint(r),
			)
			result = SafetyResult{
				Severity:           SeverityCrisis,
				Confidence:         1.0,
				RequiresEscalation: true,
				RiskFactors:        []string{"analyzer_failure"},
				RecommendedActions: []string{"contact_emergency_services", "alert_nurse_team"},
				TableVersion:       a.table.version,
			}
		}
	}()
	return a.Analyze(ctx, message, convCtx)
}

func (a *Analyzer) matchTrigger(t Trigger, normalizedPhrase, original, lower, normalized string) (TriggerMatch, bool) {
	if t.Pattern != nil {
		if loc := t.Pattern.FindStringIndex(original); loc != nil {
			return TriggerMatch{
				TriggerID:  t.ID,
				Category:   t.Category,
				Severity:   t.Severity,
				Confidence: t.Confidence,
				Match:      MatchPattern,
				Start:      loc[0],
				End:        loc[1],
			}, true
		}
		return TriggerMatch{}, false
	}

	if idx := strings.Index(lower, t.Phrase); idx >= 0 {
		return TriggerMatch{
			TriggerID:  t.ID,
			Category:   t.Category,
			Severity:   t.Severity,
			Confidence: t.Confidence,
			Match:      MatchExact,
			Start:      idx,
			End:        idx + len(t.Phrase),
		}, true
	}

	// Fuzzy pass: punctuation/case-insensitive containment, slightly lower
	// confidence than an exact hit.
	if normalizedPhrase != "" {
		if idx := strings.Index(normalized, normalizedPhrase); idx >= 0 {
			return TriggerMatch{
				TriggerID:  t.ID,
				Category:   t.Category,
				Severity:   t.Severity,
				Confidence: t.Confidence * 0.9,
				Match:      MatchFuzzy,
				Start:      idx,
				End:        idx + len(normalizedPhrase),
			}, true
		}
	}
	return TriggerMatch{}, false
}

func (a *Analyzer) contextualPass(convCtx ConversationContext) (concerns, riskFactors []string) {
	for _, msg := range convCtx.RecentMessages {
		lower := strings.ToLower(msg)
		for _, indicator := range a.table.contextIndicators {
			if strings.Contains(lower, indicator) {
				concerns = append(concerns, indicator)
			}
		}
	}
	riskFactors = append(riskFactors, convCtx.RiskFlags...)
	if len(riskFactors) > 0 {
		concerns = append(concerns, "user_risk_flags")
	}
	return concerns, riskFactors
}

// combine folds matches into an overall verdict: the maximum severity wins,
// ties broken by higher confidence, and the decisive match supplies the
// overall confidence.
func (a *Analyzer) combine(matches []TriggerMatch) SafetyResult {
	if len(matches) == 0 {
		return SafetyResult{
			Severity:           SeverityGeneral,
			Confidence:         noMatchConfidence,
			RecommendedActions: recommendedActions(SeverityGeneral),
		}
	}

	decisive := matches[0]
	for _, m := range matches[1:] {
		if m.Severity.Level() > decisive.Severity.Level() ||
			(m.Severity.Level() == decisive.Severity.Level() && m.Confidence > decisive.Confidence) {
			decisive = m
		}
	}

	requiresEscalation := decisive.Severity.AtLeast(SeverityHighConcern)
	if !requiresEscalation && decisive.Severity == SeverityEmotionalSupport {
		for _, m := range matches {
			if m.Category == CategoryCallbackRequest {
				requiresEscalation = true
				break
			}
		}
	}

	return SafetyResult{
		Severity:           decisive.Severity,
		Confidence:         decisive.Confidence,
		RequiresEscalation: requiresEscalation,
		Matches:            matches,
		RecommendedActions: recommendedActions(decisive.Severity),
	}
}

func recommendedActions(s Severity) []string {
	switch s {
	case SeverityCrisis:
		return []string{"contact_emergency_services", "alert_nurse_team"}
	case SeverityHighConcern:
		return []string{"urgent_care_guidance", "alert_nurse_team"}
	case SeverityEmotionalSupport:
		return []string{"offer_support_resources"}
	default:
		return []string{"provide_information"}
	}
}

// HasCategory reports whether any match belongs to the given category.
func (r SafetyResult) HasCategory(c Category) bool {
	for _, m := range r.Matches {
		if m.Category == c {
			return true
		}
	}
	return false
}
