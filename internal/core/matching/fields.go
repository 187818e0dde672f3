package matching

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/kirillkom/receiving-verifier/internal/core/domain"
)

// FieldPattern locates a structured identifier in OCR text.
type FieldPattern struct {
	Name  string
	Label string
	expr  *regexp.Regexp
}

func NewFieldPattern(name, label, pattern string) (FieldPattern, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return FieldPattern{}, domain.WrapError(domain.ErrInvalidInput, "field pattern", fmt.Errorf("name is required"))
	}
	expr, err := regexp.Compile(pattern)
	if err != nil {
		return FieldPattern{}, domain.WrapError(domain.ErrInvalidInput, "field pattern "+name, err)
	}
	if strings.TrimSpace(label) == "" {
		label = strings.ReplaceAll(name, "_", " ")
	}
	return FieldPattern{Name: name, Label: label, expr: expr}, nil
}

func MustFieldPattern(name, label, pattern string) FieldPattern {
	p, err := NewFieldPattern(name, label, pattern)
	if err != nil {
		panic(err)
	}
	return p
}

// Extract returns the first match in text.
func (p FieldPattern) Extract(text string) (string, bool) {
	if p.expr == nil || text == "" {
		return "", false
	}
	match := p.expr.FindString(text)
	if match == "" {
		return "", false
	}
	return strings.TrimSpace(match), true
}

func (p FieldPattern) String() string {
	if p.expr == nil {
		return ""
	}
	return p.expr.String()
}

// ConsistencyRule requires the field found in Source to equal the one found in Target.
type ConsistencyRule struct {
	Field  FieldPattern
	Source domain.DocumentType
	Target domain.DocumentType
}

var (
	InvoiceNumberPattern    = MustFieldPattern("invoice_number", "invoice number", `(?i)\bINV[-/ ]?\d+(?:[-/]\d+)*\b`)
	AirwayBillNumberPattern = MustFieldPattern("airway_bill_number", "airway bill number", `(?i)\bAWB[-/ ]?\d[\d-]{4,}\d\b`)
)

func DefaultRules() []ConsistencyRule {
	return []ConsistencyRule{
		{Field: InvoiceNumberPattern, Source: domain.DocumentInvoice, Target: domain.DocumentBillOfEntry},
		{Field: AirwayBillNumberPattern, Source: domain.DocumentInvoice, Target: domain.DocumentAirwayBill},
	}
}

type Checker struct {
	rules []ConsistencyRule
}

func NewChecker(rules []ConsistencyRule) *Checker {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &Checker{rules: append([]ConsistencyRule(nil), rules...)}
}

func (c *Checker) Rules() []ConsistencyRule {
	return append([]ConsistencyRule(nil), c.rules...)
}

// Check evaluates every rule whose two documents both have text and reports all failing pairs.
func (c *Checker) Check(texts map[domain.DocumentType]string) []domain.FieldMismatch {
	var out []domain.FieldMismatch
	for _, rule := range c.rules {
		sourceText := texts[rule.Source]
		targetText := texts[rule.Target]
		if sourceText == "" || targetText == "" {
			continue
		}
		if mismatch, failed := evaluateRule(rule, sourceText, targetText); failed {
			out = append(out, mismatch)
		}
	}
	return out
}

func evaluateRule(rule ConsistencyRule, sourceText, targetText string) (domain.FieldMismatch, bool) {
	sourceValue, sourceOK := rule.Field.Extract(sourceText)
	targetValue, targetOK := rule.Field.Extract(targetText)
	mismatch := domain.FieldMismatch{
		Field:       rule.Field.Name,
		Source:      rule.Source,
		Target:      rule.Target,
		SourceValue: sourceValue,
		TargetValue: targetValue,
	}

	label := rule.Field.Label
	switch {
	case !sourceOK && !targetOK:
		mismatch.Reason = fmt.Sprintf("%s not found in %s or %s; resubmit both documents",
			label, rule.Source.Label(), rule.Target.Label())
	case !sourceOK:
		mismatch.Reason = fmt.Sprintf("%s not found in %s; resubmit a clearer %s",
			label, rule.Source.Label(), rule.Source.Label())
	case !targetOK:
		mismatch.Reason = fmt.Sprintf("%s not found in %s; resubmit a clearer %s",
			label, rule.Target.Label(), rule.Target.Label())
	case !strings.EqualFold(sourceValue, targetValue):
		mismatch.Reason = fmt.Sprintf("%s in %s (%s) must match %s (%s)",
			label, rule.Target.Label(), targetValue, rule.Source.Label(), sourceValue)
	default:
		return domain.FieldMismatch{}, false
	}
	return mismatch, true
}
