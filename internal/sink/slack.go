package sink

import (
	"fmt"
	"strings"

	"github.com/slack-go/slack"

	"github.com/mobarasa/roamtech-cypress/internal/model"
)

// Slack sends a message to a slack channel when a suite run fails.
type Slack struct {
	api             *slack.Client
	notifyChannelID string
	failed          map[string][]model.Result
}

func NewSlack(channelID, token string, opts ...slack.Option) *Slack {
	return &Slack{
		api:             slack.New(token, opts...),
		notifyChannelID: channelID,
		failed:          map[string][]model.Result{},
	}
}

func (s *Slack) Name() string {
	return "slack"
}

// Init checks that the configured token is valid.
func (s *Slack) Init() error {
	if _, err := s.api.AuthTest(); err != nil {
		return fmt.Errorf("invalid auth token: %w", err)
	}

	return nil
}

func (s *Slack) OnResult(r model.Result) error {
	if r.FinalOutcome == model.OutcomeFailed || r.FinalOutcome == model.OutcomeTimedOut {
		s.failed[r.RunID] = append(s.failed[r.RunID], r)
	}

	return nil
}

func (s *Slack) OnSuiteComplete(summary model.Summary) error {
	failed := s.failed[summary.RunID]
	delete(s.failed, summary.RunID)

	if summary.Succeeded() {
		return nil
	}

	_, _, err := s.api.PostMessage(s.notifyChannelID, slack.MsgOptionBlocks(
		slack.NewSectionBlock(
			slack.NewTextBlockObject("mrkdwn", Message(summary, failed), false, false),
			nil, nil),
	))
	if err != nil {
		return fmt.Errorf("sending slack message: %w", err)
	}

	return nil
}

// Message formats the markdown message of a failed suite run.
func Message(summary model.Summary, failed []model.Result) string {
	b := strings.Builder{}

	b.WriteString(fmt.Sprintf("Test suite run *%s* (`%s`) failed.\n\n", summary.SuiteName, summary.RunID))
	b.WriteString(fmt.Sprintf("%d passed, %d failed, %d timed out, %d skipped\n\n",
		summary.Passed, summary.Failed, summary.TimedOut, summary.Skipped))
	b.WriteString("Failed tests:\n")

	for _, r := range failed {
		b.WriteString(fmt.Sprintf("- %s (%s after %d attempts)\n", r.TestID, r.FinalOutcome, len(r.Attempts)))
	}

	return b.String()
}
