package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

type SlackNotifier struct {
	SlackWebhookURL string
	// defaults to http.DefaultClient
	Client *http.Client
}

var _ Notifier = (*SlackNotifier)(nil)

func (n *SlackNotifier) SendEnforcement(ctx context.Context, rep *Report) error {
	return n.sendSlackMsg(ctx, slackBody("⚠️ Automod Enforcement ⚠️\n", rep))
}

type SlackWebhookBody struct {
	Text string `json:"text"`
}

// Sends a simple slack message to a channel via "incoming webhook".
//
// The slack incoming webhook must be already configured in the slack workplace.
func (n *SlackNotifier) sendSlackMsg(ctx context.Context, msg string) error {
	body, err := json.Marshal(SlackWebhookBody{Text: msg})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.SlackWebhookURL, bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	req.Header.Add("Content-Type", "application/json")
	client := n.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	buf := new(bytes.Buffer)
	buf.ReadFrom(resp.Body)
	if resp.StatusCode != 200 || buf.String() != "ok" {
		return fmt.Errorf("failed slack webhook POST request. status=%d", resp.StatusCode)
	}
	return nil
}

func slackBody(header string, rep *Report) string {
	msg := header
	msg += fmt.Sprintf("workspace `%s` / channel `%s` / user `%s`\n", rep.Message.WorkspaceID, rep.Message.ChannelID, rep.Message.AuthorID)
	msg += fmt.Sprintf("Action: `%s`", rep.Decision.Action)
	if rep.Decision.Escalated {
		msg += " (escalated: suspected fake account)"
	}
	msg += "\n"
	if rule := rep.Detect.Verdict.ViolatedRule; rule != "" {
		msg += fmt.Sprintf("Rule: `%s`\n", rule)
	}
	if reason := rep.Detect.Verdict.Reason; reason != "" {
		msg += fmt.Sprintf("Reason: %s\n", truncate(reason, 500))
	}
	return msg
}
