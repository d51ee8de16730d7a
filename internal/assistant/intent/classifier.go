package intent

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// keyword carries a match term and its weight. Multi-word terms are matched
// as substrings of the lower-cased message; single words must appear as a
// whole token.
type keyword struct {
	term   string
	weight int
}

// intentKeywords is scanned in declaration order; ties go to the earlier
// intent, so the more specific domains come first and analytics last.
var intentKeywords = []struct {
	intent   Intent
	keywords []keyword
}{
	{IntentOrders, []keyword{
		{"order", 3}, {"orders", 3}, {"fulfillment", 2}, {"unfulfilled", 3},
		{"fulfilled", 2}, {"shipment", 2}, {"shipped", 2}, {"refund", 2},
		{"refunded", 2}, {"unpaid", 2}, {"invoice", 1}, {"purchase", 1},
	}},
	{IntentProducts, []keyword{
		{"product", 3}, {"products", 3}, {"inventory", 3}, {"stock", 2},
		{"sku", 2}, {"variant", 2}, {"variants", 2}, {"item", 1},
		{"items", 1}, {"catalog", 2}, {"out of stock", 3}, {"in stock", 2},
		{"price", 1}, {"listing", 1},
	}},
	{IntentCustomers, []keyword{
		{"customer", 3}, {"customers", 3}, {"buyer", 2}, {"buyers", 2},
		{"shopper", 2}, {"client", 1}, {"subscriber", 2}, {"who bought", 3},
		{"repeat customer", 3}, {"email list", 2},
	}},
	{IntentCollections, []keyword{
		{"collection", 3}, {"collections", 3}, {"category", 2},
		{"categories", 2}, {"smart collection", 3},
	}},
	{IntentAnalytics, []keyword{
		{"revenue", 3}, {"sales", 2}, {"total sales", 3}, {"best selling", 3},
		{"best seller", 3}, {"top selling", 3}, {"performance", 2},
		{"report", 2}, {"how much", 2}, {"average order", 3}, {"aov", 3},
		{"summary", 1}, {"overview", 2},
	}},
	{IntentHelp, []keyword{
		{"help", 3}, {"what can you do", 4}, {"what can you", 3},
		{"how do i use", 3}, {"how does this work", 3}, {"hello", 1}, {"hi", 1},
	}},
}

var (
	limitRe      = regexp.MustCompile(`\b(?:top|first|last|latest|recent|show me)\s+(\d{1,3})\b`)
	bareCountRe  = regexp.MustCompile(`\b(\d{1,3})\s+(?:products?|orders?|customers?|collections?|items?|results?)\b`)
	quotedRe     = regexp.MustCompile(`"([^"]{1,100})"|'([^']{1,100})'`)
	namedRe      = regexp.MustCompile(`\b(?:named|called|matching|for)\s+([A-Za-z0-9][A-Za-z0-9 \-]{0,60}?)(?:[.,?!]|$)`)
	lastNDaysRe  = regexp.MustCompile(`\blast\s+(\d{1,3})\s+days?\b`)
	orderStatus  = []string{"unfulfilled", "fulfilled", "cancelled", "canceled", "refunded", "unpaid", "paid", "open", "closed", "pending"}
	maxEntityLen = 80
)

// Classify runs keyword classification and entity extraction against the
// current clock.
func Classify(message string) Result {
	return ClassifyAt(message, time.Now().UTC())
}

// ClassifyAt classifies against a fixed clock so period extraction is
// deterministic in tests.
func ClassifyAt(message string, now time.Time) Result {
	lowered := strings.ToLower(strings.TrimSpace(message))
	if lowered == "" {
		return Result{Intent: IntentUnknown}
	}

	tokens := tokenSet(lowered)

	best := IntentUnknown
	bestScore := 0
	for _, group := range intentKeywords {
		score := 0
		for _, kw := range group.keywords {
			if strings.Contains(kw.term, " ") {
				if strings.Contains(lowered, kw.term) {
					score += kw.weight
				}
			} else if tokens[kw.term] {
				score += kw.weight
			}
		}
		if score > bestScore {
			bestScore = score
			best = group.intent
		}
	}

	result := Result{
		Intent:     best,
		Confidence: normalizeScore(bestScore),
		Entities:   extractEntities(lowered, message, now),
	}
	return result
}

// normalizeScore maps a raw keyword score into (0, 1]. A score of 3 (one
// strong keyword) lands at 0.6; anything past 12 saturates.
func normalizeScore(score int) float64 {
	if score <= 0 {
		return 0
	}
	conf := float64(score) / (float64(score) + 2.0)
	if conf > 1 {
		conf = 1
	}
	return conf
}

func tokenSet(lowered string) map[string]bool {
	fields := strings.FieldsFunc(lowered, func(r rune) bool {
		return !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9')
	})
	set := make(map[string]bool, len(fields))
	for _, f := range fields {
		set[f] = true
	}
	return set
}

func extractEntities(lowered, original string, now time.Time) Entities {
	var e Entities

	// "last 30 days" is a period, not a result limit, so a count followed by
	// "day(s)" never sets Limit.
	if m := limitRe.FindStringSubmatchIndex(lowered); m != nil && !followedByDays(lowered[m[1]:]) {
		e.Limit = clampLimit(lowered[m[2]:m[3]])
	}
	if e.Limit == 0 {
		if m := bareCountRe.FindStringSubmatch(lowered); m != nil {
			e.Limit = clampLimit(m[1])
		}
	}

	for _, status := range orderStatus {
		if strings.Contains(lowered, status) {
			if status == "canceled" {
				status = "cancelled"
			}
			e.Status = status
			break
		}
	}

	if m := quotedRe.FindStringSubmatch(original); m != nil {
		if m[1] != "" {
			e.SearchTerm = truncate(m[1])
		} else {
			e.SearchTerm = truncate(m[2])
		}
	} else if m := namedRe.FindStringSubmatch(original); m != nil {
		e.SearchTerm = truncate(strings.TrimSpace(m[1]))
	}

	e.Since, e.Until = extractPeriod(lowered, now)
	return e
}

func extractPeriod(lowered string, now time.Time) (since, until time.Time) {
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	switch {
	case strings.Contains(lowered, "today"):
		return dayStart, now
	case strings.Contains(lowered, "yesterday"):
		return dayStart.AddDate(0, 0, -1), dayStart
	case strings.Contains(lowered, "this week"):
		weekday := int(now.Weekday())
		if weekday == 0 {
			weekday = 7 // treat Monday as the start of the week
		}
		return dayStart.AddDate(0, 0, -(weekday - 1)), now
	case strings.Contains(lowered, "this month"):
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC), now
	case strings.Contains(lowered, "last month"):
		first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		return first.AddDate(0, -1, 0), first
	}
	if m := lastNDaysRe.FindStringSubmatch(lowered); m != nil {
		days, err := strconv.Atoi(m[1])
		if err == nil && days > 0 && days <= 365 {
			return dayStart.AddDate(0, 0, -days), now
		}
	}
	return time.Time{}, time.Time{}
}

func followedByDays(rest string) bool {
	return strings.HasPrefix(strings.TrimLeft(rest, " "), "day")
}

func clampLimit(raw string) int {
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0
	}
	if n > 50 {
		return 50
	}
	return n
}

func truncate(s string) string {
	if len(s) > maxEntityLen {
		return s[:maxEntityLen]
	}
	return s
}
