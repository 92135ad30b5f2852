package core

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/valter-silva-au/taskloop/pkg/models"
)

// Default classification patterns. They are best-effort heuristics and are
// expected to be tuned per project.
const (
	DefaultMilestonePattern = `(?i)\b(complete[sd]?|done|finished|milestone|shipped|checked|reviewed)\b`
	DefaultFixPattern       = `(?i)\b(fix|fixe[sd]|resolved?|repaired|bug|regression)\b`
	DefaultDecisionPattern  = `(?i)\b(decided|decision|chose|chosen|switched to|adopted|agreed)\b`
)

// maxItemRunes bounds a single extracted summary item.
const maxItemRunes = 120

// CompactionStats describes one compaction run. RolledUp counts period
// summaries that were merged into a longer span, stripped of their items or
// dropped to bring the log under max_lines. Oversize is only set when the
// status and the kept entries alone are over the limit.
type CompactionStats struct {
	Folded      int  `json:"folded"`
	RolledUp    int  `json:"rolled_up"`
	Kept        int  `json:"kept"`
	Periods     int  `json:"periods"`
	LinesBefore int  `json:"lines_before"`
	LinesAfter  int  `json:"lines_after"`
	Oversize    bool `json:"oversize"`
}

// Changed reports whether the run rewrote the log.
func (s CompactionStats) Changed() bool {
	return s.Folded > 0 || s.RolledUp > 0
}

// Compactor folds old progress entries into weekly summaries.
type Compactor struct {
	cfg       models.CompactionConfig
	milestone *regexp.Regexp
	fix       *regexp.Regexp
	decision  *regexp.Regexp
}

// NewCompactor compiles the classification patterns in cfg. Empty patterns
// fall back to the defaults.
func NewCompactor(cfg models.CompactionConfig) (*Compactor, error) {
	c := &Compactor{cfg: cfg}
	var err error
	if c.milestone, err = compilePattern("milestone_pattern", cfg.MilestonePattern, DefaultMilestonePattern); err != nil {
		return nil, err
	}
	if c.fix, err = compilePattern("fix_pattern", cfg.FixPattern, DefaultFixPattern); err != nil {
		return nil, err
	}
	if c.decision, err = compilePattern("decision_pattern", cfg.DecisionPattern, DefaultDecisionPattern); err != nil {
		return nil, err
	}
	return c, nil
}

func compilePattern(name, pattern, fallback string) (*regexp.Regexp, error) {
	if pattern == "" {
		pattern = fallback
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compiling compaction.%s: %w", name, err)
	}
	return re, nil
}

// NeedsCompaction reports whether the log exceeds either size threshold.
func (c *Compactor) NeedsCompaction(log *models.ProgressLog) bool {
	if c.cfg.MaxRecentEntries > 0 && len(log.Recent) > c.cfg.MaxRecentEntries {
		return true
	}
	return c.cfg.MaxLines > 0 && ProgressLineCount(log) > c.cfg.MaxLines
}

// Compact returns a new log holding only the newest KeepRecent entries plus
// the merged period summaries. If the result is still over MaxLines the
// oldest summaries are rolled up into months and then years, then stripped of
// their items, then dropped. The input is not modified. When nothing changes
// the result equals the input, including CompactedAt.
func (c *Compactor) Compact(log *models.ProgressLog, now time.Time) (*models.ProgressLog, CompactionStats) {
	out := copyProgressLog(log)
	stats := CompactionStats{LinesBefore: ProgressLineCount(log)}

	keep := c.cfg.KeepRecent
	if keep < 0 {
		keep = 0
	}
	if len(out.Recent) > keep {
		split := len(out.Recent) - keep
		folded := out.Recent[:split]
		out.Recent = append([]models.ProgressEntry(nil), out.Recent[split:]...)
		for _, e := range folded {
			c.fold(coveringSummary(out, e.Timestamp), e)
		}
		stats.Folded = len(folded)
	}

	// The compaction line counts toward the size, so it is in place before
	// shrinking and removed again if nothing changed.
	previous := out.CompactedAt
	at := now.UTC().Truncate(time.Second)
	out.CompactedAt = &at
	if stats.Folded > 0 {
		sortSummaries(out.History)
	}
	stats.RolledUp = c.shrink(out)
	if !stats.Changed() {
		out.CompactedAt = previous
	}

	stats.Kept = len(out.Recent)
	stats.Periods = len(out.History)
	stats.LinesAfter = ProgressLineCount(out)
	stats.Oversize = c.cfg.MaxLines > 0 && stats.LinesAfter > c.cfg.MaxLines
	return out, stats
}

// CompactDocument parses raw, compacts it and renders the result. A parse
// failure is returned as *CompactionError and raw must then be kept as is.
// When nothing changes raw is returned unchanged.
func (c *Compactor) CompactDocument(raw string, now time.Time) (string, CompactionStats, error) {
	log, err := ParseProgressLog(raw)
	if err != nil {
		return raw, CompactionStats{}, &CompactionError{Err: err}
	}
	compacted, stats := c.Compact(log, now)
	if !stats.Changed() {
		return raw, stats, nil
	}
	return FormatProgressLog(compacted), stats, nil
}

// coveringSummary returns the summary an entry at t folds into: an existing
// week, month or year summary containing t, or a new weekly one.
func coveringSummary(log *models.ProgressLog, t time.Time) *models.PeriodSummary {
	for _, span := range []models.PeriodSpan{models.SpanWeek, models.SpanMonth, models.SpanYear} {
		key := SpanStart(t, span)
		for i := range log.History {
			if log.History[i].Span == span && log.History[i].Period.Equal(key) {
				return &log.History[i]
			}
		}
	}
	log.History = append(log.History, models.PeriodSummary{Period: WeekStart(t), Span: models.SpanWeek})
	return &log.History[len(log.History)-1]
}

// shrink reduces the history one step at a time until the log fits
// MaxLines or no history is left. It returns the number of summaries
// touched.
func (c *Compactor) shrink(log *models.ProgressLog) int {
	if c.cfg.MaxLines <= 0 {
		return 0
	}
	touched := 0
	for len(log.History) > 0 && ProgressLineCount(log) > c.cfg.MaxLines {
		sortSummaries(log.History)
		touched += c.reduceOldest(log)
	}
	if touched > 0 {
		sortSummaries(log.History)
	}
	return touched
}

// reduceOldest applies the first applicable reduction to the oldest
// candidate: roll a week or month up, strip a summary's items, drop a
// summary. History must be sorted most recent first.
func (c *Compactor) reduceOldest(log *models.ProgressLog) int {
	h := log.History
	for i := len(h) - 1; i >= 0; i-- {
		if h[i].Span < models.SpanYear {
			return c.rollUp(log, h[i].Span, h[i].Period)
		}
	}
	for i := len(h) - 1; i >= 0; i-- {
		if len(h[i].Milestones)+len(h[i].Fixes)+len(h[i].Decisions) > 0 {
			h[i].Milestones, h[i].Fixes, h[i].Decisions = nil, nil, nil
			return 1
		}
	}
	log.History = h[:len(h)-1]
	return 1
}

// rollUp merges every summary of the given span that falls in the same
// next-longer span as period, together with an existing summary of that
// longer span, into one summary.
func (c *Compactor) rollUp(log *models.ProgressLog, span models.PeriodSpan, period time.Time) int {
	longer := span + 1
	key := SpanStart(period, longer)

	var members, rest []models.PeriodSummary
	for _, p := range log.History {
		if (p.Span == span && SpanStart(p.Period, longer).Equal(key)) || (p.Span == longer && p.Period.Equal(key)) {
			members = append(members, p)
			continue
		}
		rest = append(rest, p)
	}

	merged := models.PeriodSummary{Period: key, Span: longer}
	for i := len(members) - 1; i >= 0; i-- {
		p := members[i]
		merged.Successes += p.Successes
		for _, m := range p.Milestones {
			merged.Milestones = c.addItem(merged.Milestones, m)
		}
		for _, f := range p.Fixes {
			merged.Fixes = c.addItem(merged.Fixes, f)
		}
		for _, d := range p.Decisions {
			merged.Decisions = c.addItem(merged.Decisions, d)
		}
	}
	log.History = append(rest, merged)
	return len(members)
}

// sortSummaries orders summaries most recent first; a shorter span sorts
// before a longer one starting at the same time.
func sortSummaries(h []models.PeriodSummary) {
	sort.SliceStable(h, func(i, j int) bool {
		if !h[i].Period.Equal(h[j].Period) {
			return h[i].Period.After(h[j].Period)
		}
		return h[i].Span < h[j].Span
	})
}

func (c *Compactor) fold(s *models.PeriodSummary, e models.ProgressEntry) {
	if e.Outcome == models.OutcomeSuccess {
		s.Successes++
	}
	if c.milestone.MatchString(e.Title) {
		s.Milestones = c.addItem(s.Milestones, e.Title)
	}
	text := firstLine(e.Description)
	if text == "" {
		text = e.Title
	}
	if c.fix.MatchString(text) {
		s.Fixes = c.addItem(s.Fixes, text)
	}
	if c.decision.MatchString(text) {
		s.Decisions = c.addItem(s.Decisions, text)
	}
}

// addItem appends a trimmed, de-duplicated item while under the cap.
func (c *Compactor) addItem(items []string, item string) []string {
	item = truncateRunes(strings.TrimSpace(item), maxItemRunes)
	if item == "" {
		return items
	}
	if c.cfg.MaxItems > 0 && len(items) >= c.cfg.MaxItems {
		return items
	}
	for _, existing := range items {
		if existing == item {
			return items
		}
	}
	return append(items, item)
}

// SpanStart returns the UTC start of the span of the given length that
// contains t.
func SpanStart(t time.Time, span models.PeriodSpan) time.Time {
	t = t.UTC()
	switch span {
	case models.SpanMonth:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	case models.SpanYear:
		return time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	default:
		return WeekStart(t)
	}
}

// WeekStart returns Monday 00:00 UTC of the ISO week containing t.
func WeekStart(t time.Time) time.Time {
	t = t.UTC()
	offset := (int(t.Weekday()) + 6) % 7
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return day.AddDate(0, 0, -offset)
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:n-3])) + "..."
}

func copyProgressLog(log *models.ProgressLog) *models.ProgressLog {
	out := &models.ProgressLog{
		Status:  log.Status,
		Recent:  append([]models.ProgressEntry(nil), log.Recent...),
		History: make([]models.PeriodSummary, len(log.History)),
	}
	if log.Status.Counts != nil {
		out.Status.Counts = make(map[models.TaskStatus]int, len(log.Status.Counts))
		for k, v := range log.Status.Counts {
			out.Status.Counts[k] = v
		}
	}
	for i, p := range log.History {
		p.Milestones = append([]string(nil), p.Milestones...)
		p.Fixes = append([]string(nil), p.Fixes...)
		p.Decisions = append([]string(nil), p.Decisions...)
		out.History[i] = p
	}
	if log.CompactedAt != nil {
		at := *log.CompactedAt
		out.CompactedAt = &at
	}
	return out
}
