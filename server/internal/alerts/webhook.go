package alerts

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/highstakes/highstakes/server/internal/config"
)

// fact is one name/value line about the stake behind an alert.
type fact struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// stakeFacts lists what every chat payload shows about the triggering stake.
func stakeFacts(a *Alert) []fact {
	rank := "off the board"
	if a.Rank > 0 {
		rank = "#" + strconv.Itoa(a.Rank)
	}
	return []fact{
		{Name: "Offer", Value: strconv.Itoa(a.OfferID)},
		{Name: "Customer", Value: strconv.Itoa(a.CustomerID)},
		{Name: "Rank", Value: rank},
		{Name: "Value", Value: strconv.Itoa(a.Value)},
		{Name: "State", Value: a.State},
	}
}

// httpPayload is the body posted to "http" webhooks. The stake fields sit at
// the top level so receivers need not parse Message.
type httpPayload struct {
	Rule       string    `json:"rule"`
	Severity   string    `json:"severity"`
	State      string    `json:"state"`
	OfferID    int       `json:"offer_id"`
	CustomerID int       `json:"customer_id"`
	Rank       int       `json:"rank"`
	Value      int       `json:"value"`
	Message    string    `json:"message"`
	At         time.Time `json:"at"`
	Alert      *Alert    `json:"alert"`
}

// payload encodes a for the given webhook type.
func payload(kind string, a *Alert) ([]byte, error) {
	switch kind {
	case "slack":
		fields := make([]map[string]interface{}, 0, 5)
		for _, f := range stakeFacts(a) {
			fields = append(fields, map[string]interface{}{"title": f.Name, "value": f.Value, "short": true})
		}
		return json.Marshal(map[string]interface{}{
			"text": fmt.Sprintf("*%s* %s", severityLabel(a.Severity), a.Message),
			"attachments": []map[string]interface{}{{
				"color":  "#" + severityColor(a.Severity),
				"fields": fields,
			}},
		})

	case "teams":
		return json.Marshal(map[string]interface{}{
			"@type":      "MessageCard",
			"@context":   "http://schema.org/extensions",
			"themeColor": severityColor(a.Severity),
			"summary":    a.RuleName,
			"title":      fmt.Sprintf("High stakes alert: %s (%s)", a.RuleName, a.State),
			"text":       a.Message,
			"sections": []map[string]interface{}{{
				"facts": stakeFacts(a),
			}},
		})

	case "http":
		return json.Marshal(httpPayload{
			Rule:       a.RuleName,
			Severity:   a.Severity,
			State:      a.State,
			OfferID:    a.OfferID,
			CustomerID: a.CustomerID,
			Rank:       a.Rank,
			Value:      a.Value,
			Message:    a.Message,
			At:         latest(a),
			Alert:      a,
		})
	}
	return nil, fmt.Errorf("unknown webhook type %q", kind)
}

// deliver posts a to every webhook with a resolvable URL. Failures are logged
// and never reach the caller.
func (e *Engine) deliver(webhooks []config.WebhookConfig, a *Alert) {
	for _, wh := range webhooks {
		url := wh.URL()
		if url == "" {
			continue
		}
		log := slog.With("type", wh.Type, "rule", a.RuleName, "offer_id", a.OfferID, "state", a.State)

		body, err := payload(wh.Type, a)
		if err != nil {
			log.Warn("alerts: skipping webhook", "err", err)
			continue
		}
		if err := e.post(url, body); err != nil {
			log.Error("alerts: webhook delivery failed", "err", err)
			continue
		}
		log.Debug("alerts: webhook delivered")
	}
}

func (e *Engine) post(url string, body []byte) error {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("http post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned HTTP %d", resp.StatusCode)
	}
	return nil
}

func severityLabel(s string) string {
	switch s {
	case "critical", "warning":
		return "[" + strings.ToUpper(s) + "]"
	}
	return "[INFO]"
}

func severityColor(s string) string {
	switch s {
	case "critical":
		return "D7263D"
	case "warning":
		return "F49D37"
	}
	return "3F88C5"
}
