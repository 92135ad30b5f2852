package observability

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/valter-silva-au/taskloop/internal/core"
	"github.com/valter-silva-au/taskloop/pkg/models"
)

// maxDigestLines caps how many starving tasks a digest names before it
// summarises the remainder.
const maxDigestLines = 10

// Notifier posts loop health to an external channel.
type Notifier interface {
	// Notify sends an alert digest. An empty slice sends nothing.
	Notify(alerts []Alert) error
	// NotifyTrip reports that the circuit breaker stopped the loop.
	NotifyTrip(trip TripNotice) error
}

// TripNotice describes a breaker trip: where the loop last made durable
// progress, why it stopped and which tasks were left waiting.
type TripNotice struct {
	Checkpoint models.Checkpoint
	Threshold  int
	Starving   []core.StarvationWarning
	At         time.Time
}

// NewTripNotice reads the checkpoint and starving tasks from state.
func NewTripNotice(state StateReader, threshold int, at time.Time) (TripNotice, error) {
	cp, err := state.Checkpoint()
	if err != nil {
		return TripNotice{}, fmt.Errorf("reading checkpoint: %w", err)
	}
	starving, err := state.Starving()
	if err != nil {
		return TripNotice{}, fmt.Errorf("reading starving tasks: %w", err)
	}
	return TripNotice{Checkpoint: *cp, Threshold: threshold, Starving: starving, At: at.UTC()}, nil
}

type webhookNotifier struct {
	webhookURL string
	client     *http.Client
}

// NewSlackNotifier creates a Notifier that posts Block Kit messages to the
// given incoming webhook URL.
func NewSlackNotifier(webhookURL string) Notifier {
	return &webhookNotifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

// NewNotifier returns the webhook notifier when notifications are enabled
// and nil otherwise.
func NewNotifier(enabled bool, webhookURL string) Notifier {
	if !enabled || webhookURL == "" {
		return nil
	}
	return NewSlackNotifier(webhookURL)
}

type slackMessage struct {
	Text   string       `json:"text"`
	Blocks []slackBlock `json:"blocks"`
}

type slackBlock struct {
	Type     string      `json:"type"`
	Text     *slackText  `json:"text,omitempty"`
	Fields   []slackText `json:"fields,omitempty"`
	Elements []slackText `json:"elements,omitempty"`
}

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func (n *webhookNotifier) Notify(alerts []Alert) error {
	if len(alerts) == 0 {
		return nil
	}
	return n.post(alertDigest(alerts))
}

func (n *webhookNotifier) NotifyTrip(trip TripNotice) error {
	return n.post(tripMessage(trip))
}

func (n *webhookNotifier) post(msg slackMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshaling webhook message: %w", err)
	}

	resp, err := n.client.Post(n.webhookURL, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("posting to webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		if s := strings.TrimSpace(string(snippet)); s != "" {
			return fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, s)
		}
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// alertDigest renders one section per alert, except that starving tasks are
// collapsed into a single digest section.
func alertDigest(alerts []Alert) slackMessage {
	title := fmt.Sprintf("taskloop: %d alert(s)", len(alerts))
	blocks := []slackBlock{header(title)}

	var starving []Alert
	var latest time.Time
	for _, a := range alerts {
		if a.TriggeredAt.After(latest) {
			latest = a.TriggeredAt
		}
		if a.Condition == ConditionTaskStarving {
			starving = append(starving, a)
			continue
		}
		text := fmt.Sprintf("%s *[%s]* `%s` %s",
			severityEmoji(a.Severity), strings.ToUpper(string(a.Severity)), a.Condition, a.Message)
		blocks = append(blocks, section(text))
	}

	if len(starving) > 0 {
		lines := make([]string, 0, len(starving))
		for _, a := range starving {
			lines = append(lines, a.Message)
		}
		blocks = append(blocks, section(digest(
			fmt.Sprintf("%s *%d task(s) starving*", severityEmoji(SeverityLow), len(starving)), lines)))
	}

	if !latest.IsZero() {
		blocks = append(blocks, contextBlock("Evaluated "+latest.UTC().Format("2006-01-02 15:04 UTC")))
	}
	return slackMessage{Text: title, Blocks: blocks}
}

// tripMessage renders a breaker trip with everything needed to decide where
// to resume.
func tripMessage(trip TripNotice) slackMessage {
	cp := trip.Checkpoint
	title := "taskloop: circuit breaker tripped"

	reason := cp.TripReason
	if reason == "" {
		reason = fmt.Sprintf("%d consecutive iterations without durable progress", cp.ConsecutiveFailures)
	}

	lastTask := cp.LastSuccessfulTaskID
	if lastTask == "" {
		lastTask = "none"
	}
	ref := "none recorded"
	if cp.LastGoodReference != "" {
		ref = "`" + cp.LastGoodReference + "`"
		if !cp.Timestamp.IsZero() {
			ref += " at " + cp.Timestamp.UTC().Format("2006-01-02 15:04 UTC")
		}
	}

	blocks := []slackBlock{
		header(title),
		section(severityEmoji(SeverityHigh) + " *Loop stopped:* " + reason),
		{
			Type: "section",
			Fields: []slackText{
				mrkdwn(fmt.Sprintf("*Iteration*\n%d", cp.Iteration)),
				mrkdwn(fmt.Sprintf("*Failures*\n%d of %d", cp.ConsecutiveFailures, trip.Threshold)),
				mrkdwn("*Last successful task*\n" + lastTask),
				mrkdwn("*Last good reference*\n" + ref),
			},
		},
	}

	if len(trip.Starving) > 0 {
		lines := make([]string, 0, len(trip.Starving))
		for _, w := range trip.Starving {
			lines = append(lines, w.Error())
		}
		blocks = append(blocks, section(digest(fmt.Sprintf("*%d task(s) left starving*", len(trip.Starving)), lines)))
	}

	note := "Fix the cause, then run `taskloop reset`."
	if !trip.At.IsZero() {
		note = trip.At.Format("2006-01-02 15:04 UTC") + ". " + note
	}
	blocks = append(blocks, contextBlock(note))

	return slackMessage{Text: title + ": " + reason, Blocks: blocks}
}

func digest(heading string, lines []string) string {
	var b strings.Builder
	b.WriteString(heading)
	for i, line := range lines {
		if i == maxDigestLines {
			fmt.Fprintf(&b, "\n…and %d more", len(lines)-maxDigestLines)
			break
		}
		b.WriteString("\n• ")
		b.WriteString(line)
	}
	return b.String()
}

func header(text string) slackBlock {
	return slackBlock{Type: "header", Text: &slackText{Type: "plain_text", Text: text}}
}

func section(text string) slackBlock {
	t := mrkdwn(text)
	return slackBlock{Type: "section", Text: &t}
}

func contextBlock(text string) slackBlock {
	return slackBlock{Type: "context", Elements: []slackText{mrkdwn(text)}}
}

func mrkdwn(text string) slackText {
	return slackText{Type: "mrkdwn", Text: text}
}

func severityEmoji(severity AlertSeverity) string {
	switch severity {
	case SeverityHigh:
		return "\U0001f534"
	case SeverityMedium:
		return "\U0001f7e1"
	case SeverityLow:
		return "\U0001f535"
	default:
		return "❓"
	}
}
