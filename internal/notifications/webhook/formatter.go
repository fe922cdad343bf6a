package webhook

import (
	"encoding/json"
	"fmt"
	"strings"

	"delaywatch/internal/notifications"
	"delaywatch/internal/types"
)

// Platform identifies a webhook destination platform.
type Platform string

const (
	PlatformGeneric Platform = "generic"
	PlatformSlack   Platform = "slack"
)

// Formatter renders a payload for one platform and interprets its replies.
type Formatter interface {
	Platform() Platform
	Format(p *notifications.Payload) ([]byte, error)
	// ValidateResponse catches soft failures such as Slack answering 200
	// with an error body.
	ValidateResponse(statusCode int, body []byte) error
}

// DetectPlatform picks a platform from the destination URL.
func DetectPlatform(url string) Platform {
	if strings.Contains(strings.ToLower(url), "hooks.slack.com") {
		return PlatformSlack
	}
	return PlatformGeneric
}

// FormatterFor returns the formatter for platform, defaulting to generic.
func FormatterFor(p Platform) Formatter {
	if p == PlatformSlack {
		return SlackFormatter{}
	}
	return GenericFormatter{}
}

// GenericFormatter sends the payload as-is so downstream consumers see a
// stable contract.
type GenericFormatter struct{}

func (GenericFormatter) Platform() Platform { return PlatformGeneric }

func (GenericFormatter) Format(p *notifications.Payload) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("generic formatter: payload is nil")
	}
	return p.Marshal()
}

func (GenericFormatter) ValidateResponse(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}
	return fmt.Errorf("generic webhook: unexpected status %d: %s", statusCode, truncateBody(body))
}

// SlackPayload is a Slack Block Kit message.
type SlackPayload struct {
	Text   string       `json:"text"`
	Blocks []SlackBlock `json:"blocks"`
}

// SlackBlock is one Block Kit block.
type SlackBlock struct {
	Type     string       `json:"type"`
	Text     *SlackText   `json:"text,omitempty"`
	Fields   []*SlackText `json:"fields,omitempty"`
	Elements []*SlackText `json:"elements,omitempty"`
}

// SlackText is a Block Kit text object.
type SlackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// SlackFormatter renders alerts as Block Kit messages.
type SlackFormatter struct{}

func (SlackFormatter) Platform() Platform { return PlatformSlack }

func (SlackFormatter) Format(p *notifications.Payload) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("slack formatter: payload is nil")
	}

	msg := SlackPayload{
		Text: fmt.Sprintf("[%s] %s", strings.ToUpper(string(p.Severity)), p.Message),
		Blocks: []SlackBlock{
			{Type: "header", Text: &SlackText{Type: "plain_text", Text: slackTitle(p)}},
			{Type: "section", Text: &SlackText{Type: "mrkdwn", Text: p.Message}},
		},
	}

	var fields []*SlackText
	for _, v := range p.Violations {
		fields = append(fields, &SlackText{
			Type: "mrkdwn",
			Text: fmt.Sprintf("*%s*\n%.1f %s (limit %.1f %s)", capitalizeFirst(v.Kind.Label()), v.Value, v.Unit, v.Threshold, v.Unit),
		})
	}
	if p.Delay != nil {
		fields = append(fields, &SlackText{
			Type: "mrkdwn",
			Text: fmt.Sprintf("*Cost*\n$%.2f (labor $%.2f, overhead $%.2f)", p.Delay.TotalCost, p.Delay.LaborCost, p.Delay.OverheadCost),
		})
	}
	if len(fields) > 0 {
		msg.Blocks = append(msg.Blocks, SlackBlock{Type: "section", Fields: fields})
	}

	station := ""
	if p.Weather != nil && p.Weather.Station.ID != "" {
		station = fmt.Sprintf(" | *Station*: %s (%.1f mi)", p.Weather.Station.ID, p.Weather.Station.DistanceMi)
	}
	msg.Blocks = append(msg.Blocks, SlackBlock{
		Type: "context",
		Elements: []*SlackText{{
			Type: "mrkdwn",
			Text: fmt.Sprintf("*Severity*: %s | *Site*: %s%s", p.Severity, p.SiteID, station),
		}},
	})

	return json.Marshal(msg)
}

// ValidateResponse treats anything but "ok" or a JSON body without
// ok=false as a pass; Slack reports errors with HTTP 200.
func (SlackFormatter) ValidateResponse(statusCode int, body []byte) error {
	if statusCode < 200 || statusCode >= 300 {
		return fmt.Errorf("slack: unexpected status %d", statusCode)
	}
	bodyStr := strings.TrimSpace(string(body))
	if bodyStr == "ok" || bodyStr == "" {
		return nil
	}

	var resp struct {
		OK    *bool  `json:"ok"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &resp); err == nil {
		if resp.OK != nil && !*resp.OK {
			if resp.Error == "" {
				resp.Error = "unknown error"
			}
			return fmt.Errorf("slack: API error: %s", resp.Error)
		}
		return nil
	}

	switch bodyStr {
	case "no_text", "channel_not_found", "channel_is_archived", "invalid_payload", "invalid_token":
		return fmt.Errorf("slack: API error: %s", bodyStr)
	}
	return nil
}

func slackTitle(p *notifications.Payload) string {
	switch p.AlertType {
	case types.AlertNewDelay:
		return "Weather delay: " + p.SiteName
	case types.AlertContinuing:
		return "Weather delay continuing: " + p.SiteName
	case types.AlertDelayEnded:
		return "Weather delay ended: " + p.SiteName
	}
	return p.SiteName
}

func capitalizeFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

const maxErrorBody = 200

func truncateBody(body []byte) string {
	if len(body) > maxErrorBody {
		return string(body[:maxErrorBody]) + "..."
	}
	return string(body)
}
