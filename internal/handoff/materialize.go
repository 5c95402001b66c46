// Package handoff implements the handoff materializer (C8): a pure
// projection of comms-journal rows and unresolved claims into one
// canonical Markdown document, plus an atomic-write wrapper around it.
package handoff

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

const materializerVersion = "1"

// Row is one entry in the append-only comms journal.
type Row struct {
	ID         string
	Ts         int64
	Channel    string
	Direction  string // "inbound" | "outbound"
	Status     string // "recorded", "routed", "brokered", "failed", ...
	AckStatus  string
	Body       string
}

// Claim is one unresolved-claims-reader entry.
type Claim struct {
	ID         string
	Status     string // "contested" | "pending_proof" | "proposed" | ...
	Confidence float64
	Statement  string
}

// Document is the materialized handoff output.
type Document struct {
	Content string
}

var taggedSignalPrefixes = []string{
	"DECISION", "TASK", "ACTION", "FINDING", "BLOCKER", "QUESTION",
	"NEXT", "DONE", "TEST", "PLAN", "RISK", "CLAIM",
}

var claimStatusPriority = map[string]int{
	"contested":     0,
	"pending_proof": 1,
	"proposed":      2,
}

// Materialize is a pure function: no clock reads, no randomness, and two
// calls on equal inputs are byte-equal.
func Materialize(rows []Row, claims []Claim, nowMs int64, sessionID, source string) (Document, error) {
	var b strings.Builder

	windowStart, windowEnd := windowBounds(rows)
	fmt.Fprintf(&b, "# Session Handoff\n\n")
	fmt.Fprintf(&b, "- Generated at: %s\n", isoFromMs(nowMs))
	fmt.Fprintf(&b, "- Source: %s\n", source)
	fmt.Fprintf(&b, "- Materializer version: %s\n", materializerVersion)
	fmt.Fprintf(&b, "- Session: %s\n", sessionID)
	fmt.Fprintf(&b, "- Rows: %d\n", len(rows))
	fmt.Fprintf(&b, "- Window: %s to %s\n\n", isoFromMs(windowStart), isoFromMs(windowEnd))

	writeCoverage(&b, rows)
	writeUnresolvedClaims(&b, claims)
	writeTaggedSignals(&b, rows)
	writeFailedDeliveries(&b, rows)
	writePendingDeliveries(&b, rows)
	writeRecentMessages(&b, rows)

	return Document{Content: b.String()}, nil
}

func windowBounds(rows []Row) (int64, int64) {
	if len(rows) == 0 {
		return 0, 0
	}
	start, end := rows[0].Ts, rows[0].Ts
	for _, r := range rows {
		if r.Ts < start {
			start = r.Ts
		}
		if r.Ts > end {
			end = r.Ts
		}
	}
	return start, end
}

func isoFromMs(ms int64) string {
	if ms == 0 {
		return "n/a"
	}
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}

func writeCoverage(b *strings.Builder, rows []Row) {
	byStatus := map[string]int{}
	byChannel := map[string]int{}
	byDirection := map[string]int{}
	for _, r := range rows {
		byStatus[r.Status]++
		byChannel[r.Channel]++
		byDirection[r.Direction]++
	}
	b.WriteString("## Coverage\n\n")
	writeCountTable(b, "Status", byStatus)
	writeCountTable(b, "Channel", byChannel)
	writeCountTable(b, "Direction", byDirection)
	b.WriteString("\n")
}

func writeCountTable(b *strings.Builder, label string, counts map[string]int) {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Fprintf(b, "%s:", label)
	if len(keys) == 0 {
		b.WriteString(" (none)\n")
		return
	}
	b.WriteString("\n")
	for _, k := range keys {
		fmt.Fprintf(b, "- %s: %d\n", k, counts[k])
	}
}

func writeUnresolvedClaims(b *strings.Builder, claims []Claim) {
	b.WriteString("## Unresolved Claims\n\n")

	filtered := make([]Claim, 0, len(claims))
	for _, c := range claims {
		if _, ok := claimStatusPriority[c.Status]; ok {
			filtered = append(filtered, c)
		}
	}

	byID := map[string]Claim{}
	for _, c := range filtered {
		if existing, ok := byID[c.ID]; !ok || c.Confidence > existing.Confidence {
			byID[c.ID] = c
		}
	}
	deduped := make([]Claim, 0, len(byID))
	for _, c := range byID {
		deduped = append(deduped, c)
	}

	sort.Slice(deduped, func(i, j int) bool {
		pi, pj := claimStatusPriority[deduped[i].Status], claimStatusPriority[deduped[j].Status]
		if pi != pj {
			return pi < pj
		}
		if deduped[i].Confidence != deduped[j].Confidence {
			return deduped[i].Confidence > deduped[j].Confidence
		}
		return deduped[i].ID < deduped[j].ID
	})

	if len(deduped) > 10 {
		deduped = deduped[:10]
	}
	if len(deduped) == 0 {
		b.WriteString("(none)\n\n")
		return
	}
	for _, c := range deduped {
		fmt.Fprintf(b, "- [%s] (%.2f) %s: %s\n", c.Status, c.Confidence, c.ID, truncateStatement(c.Statement, 100))
	}
	b.WriteString("\n")
}

func truncateStatement(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "…"
}

func writeTaggedSignals(b *strings.Builder, rows []Row) {
	b.WriteString("## Tagged Signals\n\n")
	var matched []Row
	for _, r := range rows {
		if tag := leadingTag(r.Body); tag != "" {
			matched = append(matched, r)
		}
	}
	matched = tail(matched, 120)
	if len(matched) == 0 {
		b.WriteString("(none)\n\n")
		return
	}
	for _, r := range matched {
		fmt.Fprintf(b, "- %s\n", firstLine(r.Body))
	}
	b.WriteString("\n")
}

// leadingTag returns the matched tag name if body, after stripping an
// optional "[AGENT MSG ...]" or "(ROLE #N):" prefix, starts a line with one
// of the recognized tag names.
func leadingTag(body string) string {
	line := firstLine(body)
	line = stripBracketPrefix(line)
	line = stripParenRolePrefix(line)
	for _, tag := range taggedSignalPrefixes {
		if strings.HasPrefix(line, tag) {
			return tag
		}
	}
	return ""
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}

func stripBracketPrefix(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "[") {
		if idx := strings.Index(s, "]"); idx >= 0 {
			return strings.TrimSpace(s[idx+1:])
		}
	}
	return s
}

func stripParenRolePrefix(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "(") {
		if idx := strings.Index(s, "):"); idx >= 0 {
			return strings.TrimSpace(s[idx+2:])
		}
	}
	return s
}

func writeFailedDeliveries(b *strings.Builder, rows []Row) {
	b.WriteString("## Failed Deliveries\n\n")
	var failed []Row
	for _, r := range rows {
		if r.Status == "failed" {
			failed = append(failed, r)
		}
	}
	failed = tail(failed, 80)
	writeMessageList(b, failed)
}

func writePendingDeliveries(b *strings.Builder, rows []Row) {
	b.WriteString("## Pending Deliveries\n\n")
	var pending []Row
	for _, r := range rows {
		if r.Direction != "outbound" || r.Status == "failed" {
			continue
		}
		if r.Status == "recorded" || r.Status == "routed" {
			pending = append(pending, r)
			continue
		}
		if r.Status == "brokered" && isPendingAckStatus(r.AckStatus) {
			pending = append(pending, r)
		}
	}
	pending = tail(pending, 80)
	writeMessageList(b, pending)
}

func isPendingAckStatus(ack string) bool {
	ack = strings.ToLower(ack)
	for _, substr := range []string{"pending", "queue", "unverified", "accepted", "routed", "processing", "inflight"} {
		if strings.Contains(ack, substr) {
			return true
		}
	}
	return false
}

func writeRecentMessages(b *strings.Builder, rows []Row) {
	b.WriteString("## Recent Messages\n\n")
	writeMessageList(b, tail(rows, 250))
}

func writeMessageList(b *strings.Builder, rows []Row) {
	if len(rows) == 0 {
		b.WriteString("(none)\n\n")
		return
	}
	for _, r := range rows {
		fmt.Fprintf(b, "- [%s/%s] %s\n", r.Channel, r.Status, firstLine(r.Body))
	}
	b.WriteString("\n")
}

func tail(rows []Row, max int) []Row {
	if len(rows) <= max {
		return rows
	}
	return rows[len(rows)-max:]
}
