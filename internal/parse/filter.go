package parse

import (
	"regexp"
	"strings"
)

// placeholderRes match titles/descriptions that are residue of prompt-template
// leakage rather than real findings.
var placeholderRes = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^\s*(issue|finding|problem)\s+(title|description|here)\s*$`),
	regexp.MustCompile(`(?i)^\s*<[^>]+>\s*$`),
	regexp.MustCompile(`(?i)^\s*(example|sample|placeholder|template)\b`),
	regexp.MustCompile(`(?i)^\s*(n/?a|none|tbd|todo|\.{3})\s*$`),
	regexp.MustCompile(`(?i)^\s*no (issues?|problems?|findings?)( (found|detected|identified))?\s*\.?\s*$`),
	regexp.MustCompile(`(?i)^\s*lorem ipsum`),
}

// selfNegatingRe matches text that retracts the issue it claims to report.
var selfNegatingRe = regexp.MustCompile(`(?i)\b(no|not a|isn't a|is not a)\s+(vulnerabilit|security (issue|risk|concern)|problem here|actual issue)`)

// sqlTokenRe matches SQL-ish vocabulary a genuine SQL-injection finding would
// reference.
var sqlTokenRe = regexp.MustCompile(`(?i)\b(select|insert|update|delete|union|where|query|statement|prepared?|parameteriz\w*|(?:un)?sanitiz\w*|exec)\b`)

var sqlInjectionClaimRe = regexp.MustCompile(`(?i)sql\s*.?injection`)

// IsPlaceholder reports whether an issue's title or description looks like
// prompt-template residue.
func IsPlaceholder(issue Issue) bool {
	for _, re := range placeholderRes {
		if re.MatchString(issue.Title) || (issue.Description != "" && re.MatchString(issue.Description)) {
			return true
		}
	}
	return strings.TrimSpace(issue.Title) == ""
}

// IsPlausible applies cheap semantic checks: a security finding must not
// negate itself, and an SQL-injection claim must mention something SQL-like.
func IsPlausible(issue Issue) bool {
	text := issue.Title + " " + issue.Description

	if strings.EqualFold(issue.Category, "security") && selfNegatingRe.MatchString(text) {
		return false
	}

	if sqlInjectionClaimRe.MatchString(text) && !sqlTokenRe.MatchString(text) {
		return false
	}

	return true
}

// FilterIssues drops placeholder and implausible issues, preserving order.
func FilterIssues(issues []Issue) []Issue {
	var kept []Issue
	for _, issue := range issues {
		if IsPlaceholder(issue) || !IsPlausible(issue) {
			continue
		}
		kept = append(kept, issue)
	}
	return kept
}
