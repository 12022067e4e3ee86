// Package rules holds the declarative knobs of the preparation pipeline:
// redaction patterns and topic classification rules. Both ship with built-in
// defaults and can be extended from YAML files at startup.
package rules

import (
	"regexp"
)

// Redaction masks sensitive substrings in event payload text before any of it
// leaves the process.
type Redaction struct {
	Name    string
	Pattern *regexp.Regexp
	Replace string
}

// TopicRule assigns a topic to an event. Rules match on source type first,
// then on payload keywords; first match wins.
type TopicRule struct {
	Topic       string
	SourceTypes []string
	Keywords    []string
}

// Set is the loaded, validated rule set the pipeline runs with.
type Set struct {
	Redactions []Redaction
	Topics     []TopicRule
}

// Default returns the built-in rule set: secret-shaped token masks and a
// small topic taxonomy for common event sources. File-loaded rules are
// appended after these, so built-ins always apply first.
func Default() Set {
	return Set{
		Redactions: []Redaction{
			{
				Name:    "bearer_token",
				Pattern: regexp.MustCompile(`(?i)bearer\s+[a-z0-9._~+/-]+=*`),
				Replace: "bearer [REDACTED]",
			},
			{
				Name:    "api_key",
				Pattern: regexp.MustCompile(`(?i)(api[_-]?key|secret|token|password)\s*[:=]\s*\S+`),
				Replace: "$1=[REDACTED]",
			},
			{
				Name:    "email_address",
				Pattern: regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`),
				Replace: "[EMAIL]",
			},
		},
		Topics: []TopicRule{
			{Topic: "code_review", SourceTypes: []string{"github.pr", "gitlab.mr"}},
			{Topic: "incidents", SourceTypes: []string{"pagerduty.alert", "opsgenie.alert"}, Keywords: []string{"incident", "outage", "sev1", "sev2"}},
			{Topic: "ci", SourceTypes: []string{"github.workflow", "jenkins.build"}, Keywords: []string{"build failed", "pipeline failed"}},
			{Topic: "mentions", Keywords: []string{"mentioned you", "assigned you", "requested your review"}},
			{Topic: "calendar", SourceTypes: []string{"calendar.event"}, Keywords: []string{"meeting", "invite"}},
		},
	}
}
