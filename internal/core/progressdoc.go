package core

import (
	"bufio"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/valter-silva-au/taskloop/pkg/models"
)

// Progress document layout. Timestamps are RFC 3339 in UTC with second
// precision; that is all the document captures.
//
// Executor-supplied text never reaches the document raw: description lines
// are quoted with "> " and single-line fields escape backslashes, carriage
// returns and newlines, so no entry can produce a line the parser would read
// as structure.
const (
	progressTitle   = "# Progress Log"
	sectionStatus   = "## Current Status"
	sectionRecent   = "## Recent Activity"
	sectionHistory  = "## Compacted History"
	entryPrefix     = "### "
	weekPrefix      = "### Week of "
	monthPrefix     = "### Month of "
	yearPrefix      = "### Year of "
	weekLayout      = "2006-01-02"
	monthLayout     = "2006-01"
	yearLayout      = "2006"
	headerSeparator = " | "
	quotePrefix     = "> "
	quoteEmpty      = ">"
	fieldArtifact   = "- Artifact: "
	fieldNext       = "- Next: "
	fieldCompacted  = "- Compacted: "
	fieldSuccesses  = "- Successes: "
	fieldMilestone  = "- Milestone: "
	fieldFix        = "- Fix: "
	fieldDecision   = "- Decision: "
)

var (
	fieldEscaper   = strings.NewReplacer(`\`, `\\`, "\n", `\n`, "\r", `\r`)
	newlineCleaner = strings.NewReplacer("\r\n", "\n", "\r", "\n")
)

var validOutcomes = map[models.Outcome]bool{
	models.OutcomeSuccess: true,
	models.OutcomePartial: true,
	models.OutcomeBlocked: true,
}

// FormatProgressLog renders the log as a markdown document.
func FormatProgressLog(log *models.ProgressLog) string {
	var b strings.Builder
	b.WriteString(progressTitle + "\n\n")

	b.WriteString(sectionStatus + "\n\n")
	writeStatus(&b, log.Status)
	b.WriteString("\n")

	b.WriteString(sectionRecent + "\n")
	for _, e := range log.Recent {
		b.WriteString("\n")
		b.WriteString(FormatProgressEntry(e))
	}
	b.WriteString("\n")

	b.WriteString(sectionHistory + "\n")
	if log.CompactedAt != nil {
		fmt.Fprintf(&b, "\n%s%s\n", fieldCompacted, formatTime(*log.CompactedAt))
	}
	for _, p := range log.History {
		b.WriteString("\n")
		writeSummary(&b, p)
	}
	return b.String()
}

// FormatProgressEntry renders a single recent-activity block.
func FormatProgressEntry(e models.ProgressEntry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s%s%s%s%s%s\n", entryPrefix, formatTime(e.Timestamp), headerSeparator, e.Outcome, headerSeparator, escapeField(e.Title))
	if desc := CleanDescription(e.Description); desc != "" {
		b.WriteString("\n")
		for _, line := range strings.Split(desc, "\n") {
			if line == "" {
				b.WriteString(quoteEmpty + "\n")
				continue
			}
			b.WriteString(quotePrefix + line + "\n")
		}
	}
	if len(e.Artifacts) > 0 || e.NextHint != "" {
		b.WriteString("\n")
	}
	for _, a := range e.Artifacts {
		b.WriteString(fieldArtifact + escapeField(a) + "\n")
	}
	if e.NextHint != "" {
		b.WriteString(fieldNext + escapeField(e.NextHint) + "\n")
	}
	return b.String()
}

// CleanDescription is the form a description takes in the document: line
// endings normalized to "\n" and surrounding whitespace trimmed.
func CleanDescription(s string) string {
	return strings.TrimSpace(newlineCleaner.Replace(s))
}

func escapeField(s string) string {
	return fieldEscaper.Replace(s)
}

// unescapeField reverses escapeField. Unknown escapes are kept verbatim.
func unescapeField(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 == len(s) {
			b.WriteByte(c)
			continue
		}
		switch s[i+1] {
		case '\\':
			b.WriteByte('\\')
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		default:
			b.WriteByte(c)
			continue
		}
		i++
	}
	return b.String()
}

func writeStatus(b *strings.Builder, s models.CurrentStatus) {
	fmt.Fprintf(b, "- Updated: %s\n", formatTime(s.Updated))
	fmt.Fprintf(b, "- Iteration: %d\n", s.Iteration)
	if s.Breaker != "" {
		fmt.Fprintf(b, "- Breaker: %s\n", s.Breaker)
	}
	if s.LastTask != "" {
		fmt.Fprintf(b, "- Last task: %s\n", escapeField(s.LastTask))
	}
	if len(s.Counts) > 0 {
		fmt.Fprintf(b, "- Counts: %s\n", formatCounts(s.Counts))
	}
	if s.NextHint != "" {
		fmt.Fprintf(b, "%s%s\n", fieldNext, escapeField(s.NextHint))
	}
}

func writeSummary(b *strings.Builder, p models.PeriodSummary) {
	b.WriteString(periodHeader(p) + "\n\n")
	fmt.Fprintf(b, "%s%d\n", fieldSuccesses, p.Successes)
	for _, m := range p.Milestones {
		b.WriteString(fieldMilestone + escapeField(m) + "\n")
	}
	for _, f := range p.Fixes {
		b.WriteString(fieldFix + escapeField(f) + "\n")
	}
	for _, d := range p.Decisions {
		b.WriteString(fieldDecision + escapeField(d) + "\n")
	}
}

func periodHeader(p models.PeriodSummary) string {
	at := p.Period.UTC()
	switch p.Span {
	case models.SpanMonth:
		return monthPrefix + at.Format(monthLayout)
	case models.SpanYear:
		return yearPrefix + at.Format(yearLayout)
	default:
		return weekPrefix + at.Format(weekLayout)
	}
}

// parsePeriodHeader recognizes the three period header forms.
func parsePeriodHeader(line string) (models.PeriodSummary, bool, error) {
	forms := []struct {
		prefix string
		layout string
		span   models.PeriodSpan
	}{
		{weekPrefix, weekLayout, models.SpanWeek},
		{monthPrefix, monthLayout, models.SpanMonth},
		{yearPrefix, yearLayout, models.SpanYear},
	}
	for _, f := range forms {
		if !strings.HasPrefix(line, f.prefix) {
			continue
		}
		at, err := time.Parse(f.layout, strings.TrimPrefix(line, f.prefix))
		if err != nil {
			return models.PeriodSummary{}, true, fmt.Errorf("period key: %w", err)
		}
		return models.PeriodSummary{Period: at.UTC(), Span: f.span}, true, nil
	}
	return models.PeriodSummary{}, false, nil
}

func formatCounts(counts map[models.TaskStatus]int) string {
	var parts []string
	seen := make(map[models.TaskStatus]bool, len(counts))
	for _, s := range models.AllStatuses {
		if n, ok := counts[s]; ok {
			parts = append(parts, fmt.Sprintf("%s=%d", s, n))
			seen[s] = true
		}
	}
	var extra []string
	for s, n := range counts {
		if !seen[s] {
			extra = append(extra, fmt.Sprintf("%s=%d", s, n))
		}
	}
	sort.Strings(extra)
	return strings.Join(append(parts, extra...), " ")
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// ProgressLineCount is the size measure used to decide on compaction: the
// number of lines in the rendered document.
func ProgressLineCount(log *models.ProgressLog) int {
	return strings.Count(FormatProgressLog(log), "\n")
}

// ParseProgressLog parses a document produced by FormatProgressLog. Unknown
// status keys are ignored; anything else that does not fit the layout is an
// error.
func ParseProgressLog(data string) (*models.ProgressLog, error) {
	p := &progressParser{log: &models.ProgressLog{}}
	scanner := bufio.NewScanner(strings.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		p.lineNo++
		if err := p.line(strings.TrimRight(scanner.Text(), "\r")); err != nil {
			return nil, fmt.Errorf("parsing progress log line %d: %w", p.lineNo, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading progress log: %w", err)
	}
	p.flushEntry()
	p.flushSummary()
	return p.log, nil
}

type progressParser struct {
	log     *models.ProgressLog
	lineNo  int
	section string

	entry     *models.ProgressEntry
	entryDesc []string
	summary   *models.PeriodSummary
}

func (p *progressParser) line(line string) error {
	switch {
	case line == progressTitle:
		return nil
	case line == sectionStatus || line == sectionRecent || line == sectionHistory:
		p.flushEntry()
		p.flushSummary()
		p.section = line
		return nil
	case strings.HasPrefix(line, "## "):
		return fmt.Errorf("unknown section %q", line)
	}

	switch p.section {
	case sectionStatus:
		return p.statusLine(line)
	case sectionRecent:
		return p.recentLine(line)
	case sectionHistory:
		return p.historyLine(line)
	default:
		if strings.TrimSpace(line) == "" {
			return nil
		}
		return fmt.Errorf("unexpected text outside any section")
	}
}

func (p *progressParser) statusLine(line string) error {
	if strings.TrimSpace(line) == "" {
		return nil
	}
	key, value, ok := splitField(line)
	if !ok {
		return fmt.Errorf("malformed status line %q", line)
	}
	s := &p.log.Status
	switch key {
	case "Updated":
		t, err := time.Parse(time.RFC3339, value)
		if err != nil {
			return fmt.Errorf("status updated time: %w", err)
		}
		s.Updated = t.UTC()
	case "Iteration":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("status iteration: %w", err)
		}
		s.Iteration = n
	case "Breaker":
		s.Breaker = models.BreakerState(value)
	case "Last task":
		s.LastTask = unescapeField(value)
	case "Counts":
		counts, err := parseCounts(value)
		if err != nil {
			return err
		}
		s.Counts = counts
	case "Next":
		s.NextHint = unescapeField(value)
	}
	return nil
}

func (p *progressParser) recentLine(line string) error {
	if strings.HasPrefix(line, entryPrefix) {
		p.flushEntry()
		e, err := parseEntryHeader(strings.TrimPrefix(line, entryPrefix))
		if err != nil {
			return err
		}
		p.entry = e
		return nil
	}
	if p.entry == nil {
		if strings.TrimSpace(line) == "" {
			return nil
		}
		return fmt.Errorf("activity text before any entry header")
	}
	switch {
	case line == quoteEmpty:
		p.entryDesc = append(p.entryDesc, "")
	case strings.HasPrefix(line, quotePrefix):
		p.entryDesc = append(p.entryDesc, strings.TrimPrefix(line, quotePrefix))
	case strings.HasPrefix(line, fieldArtifact):
		p.entry.Artifacts = append(p.entry.Artifacts, unescapeField(strings.TrimPrefix(line, fieldArtifact)))
	case strings.HasPrefix(line, fieldNext):
		p.entry.NextHint = unescapeField(strings.TrimPrefix(line, fieldNext))
	case strings.TrimSpace(line) == "":
	default:
		// Unquoted text is accepted as description for hand-edited logs.
		p.entryDesc = append(p.entryDesc, line)
	}
	return nil
}

func (p *progressParser) historyLine(line string) error {
	if strings.TrimSpace(line) == "" {
		return nil
	}
	if summary, ok, err := parsePeriodHeader(line); ok {
		if err != nil {
			return err
		}
		p.flushSummary()
		p.summary = &summary
		return nil
	}
	if strings.HasPrefix(line, fieldCompacted) && p.summary == nil {
		t, err := time.Parse(time.RFC3339, strings.TrimPrefix(line, fieldCompacted))
		if err != nil {
			return fmt.Errorf("compaction time: %w", err)
		}
		t = t.UTC()
		p.log.CompactedAt = &t
		return nil
	}
	if p.summary == nil {
		return fmt.Errorf("history text before any period header")
	}
	switch {
	case strings.HasPrefix(line, fieldSuccesses):
		n, err := strconv.Atoi(strings.TrimPrefix(line, fieldSuccesses))
		if err != nil {
			return fmt.Errorf("success count: %w", err)
		}
		p.summary.Successes = n
	case strings.HasPrefix(line, fieldMilestone):
		p.summary.Milestones = append(p.summary.Milestones, unescapeField(strings.TrimPrefix(line, fieldMilestone)))
	case strings.HasPrefix(line, fieldFix):
		p.summary.Fixes = append(p.summary.Fixes, unescapeField(strings.TrimPrefix(line, fieldFix)))
	case strings.HasPrefix(line, fieldDecision):
		p.summary.Decisions = append(p.summary.Decisions, unescapeField(strings.TrimPrefix(line, fieldDecision)))
	default:
		return fmt.Errorf("malformed history line %q", line)
	}
	return nil
}

func (p *progressParser) flushEntry() {
	if p.entry == nil {
		return
	}
	p.entry.Description = strings.TrimSpace(strings.Join(p.entryDesc, "\n"))
	p.log.Recent = append(p.log.Recent, *p.entry)
	p.entry = nil
	p.entryDesc = nil
}

func (p *progressParser) flushSummary() {
	if p.summary == nil {
		return
	}
	p.log.History = append(p.log.History, *p.summary)
	p.summary = nil
}

func parseEntryHeader(header string) (*models.ProgressEntry, error) {
	parts := strings.SplitN(header, headerSeparator, 3)
	if len(parts) < 2 {
		return nil, fmt.Errorf("malformed entry header %q", header)
	}
	ts, err := time.Parse(time.RFC3339, parts[0])
	if err != nil {
		return nil, fmt.Errorf("entry timestamp: %w", err)
	}
	outcome := models.Outcome(strings.TrimSpace(parts[1]))
	if !validOutcomes[outcome] {
		return nil, fmt.Errorf("entry outcome %q is invalid", parts[1])
	}
	e := &models.ProgressEntry{Timestamp: ts.UTC(), Outcome: outcome}
	if len(parts) == 3 {
		e.Title = unescapeField(parts[2])
	}
	return e, nil
}

func parseCounts(value string) (map[models.TaskStatus]int, error) {
	counts := make(map[models.TaskStatus]int)
	for _, field := range strings.Fields(value) {
		k, v, ok := strings.Cut(field, "=")
		if !ok {
			return nil, fmt.Errorf("malformed count %q", field)
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("count for %s: %w", k, err)
		}
		counts[models.TaskStatus(k)] = n
	}
	return counts, nil
}

// splitField splits "- Key: value" lines.
func splitField(line string) (string, string, bool) {
	if !strings.HasPrefix(line, "- ") {
		return "", "", false
	}
	key, value, ok := strings.Cut(strings.TrimPrefix(line, "- "), ": ")
	if !ok {
		return "", "", false
	}
	return key, value, true
}
