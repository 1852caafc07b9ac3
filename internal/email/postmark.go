// Package email delivers chore notifications through the Postmark API.
package email

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"net/http"
	"strings"
	"time"

	"github.com/dukerupert/chorly/internal/localtime"
	"github.com/dukerupert/chorly/internal/model"
)

const apiURL = "https://api.postmarkapp.com/email"

var ErrNotConfigured = errors.New("email client not configured: missing server token")

type Client struct {
	serverToken string
	fromEmail   string
	baseURL     string
	zone        localtime.Zone
	httpClient  *http.Client
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// WithZone sets the zone due times are shown in. Defaults to UTC.
func WithZone(z localtime.Zone) Option {
	return func(cl *Client) {
		cl.zone = z
	}
}

func NewClient(serverToken, fromEmail, baseURL string, opts ...Option) *Client {
	c := &Client{
		serverToken: serverToken,
		fromEmail:   fromEmail,
		baseURL:     strings.TrimRight(baseURL, "/"),
		httpClient:  http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured returns true if the server token is set.
func (c *Client) Configured() bool {
	return c.serverToken != ""
}

type postmarkEmail struct {
	From     string `json:"From"`
	To       string `json:"To"`
	Subject  string `json:"Subject"`
	HtmlBody string `json:"HtmlBody"`
	TextBody string `json:"TextBody"`
}

// Line is one chore listed in a notification.
type Line struct {
	Title string
	DueAt time.Time
}

// Message is a composed notification ready to send.
type Message struct {
	Subject string
	Intro   string
	Lines   []Line
	// Empty is shown instead of the list when Lines is empty.
	Empty string
	Path  string
}

// Send delivers msg to member. Members without an address are skipped.
func (c *Client) Send(ctx context.Context, member model.Member, msg Message) error {
	if !c.Configured() {
		return ErrNotConfigured
	}
	if member.Email == "" {
		return nil
	}

	payload := postmarkEmail{
		From:     c.fromEmail,
		To:       member.Email,
		Subject:  msg.Subject,
		TextBody: c.textBody(member, msg),
		HtmlBody: c.htmlBody(member, msg),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal email: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Postmark-Server-Token", c.serverToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("postmark API error: status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) formatDue(t time.Time) string {
	return c.zone.In(t).Format("Mon Jan 2 15:04")
}

func (c *Client) textBody(member model.Member, msg Message) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s,\n\n%s\n", member.DisplayName, msg.Intro)
	for _, l := range msg.Lines {
		fmt.Fprintf(&b, "- %s (due %s)\n", l.Title, c.formatDue(l.DueAt))
	}
	if len(msg.Lines) == 0 && msg.Empty != "" {
		fmt.Fprintf(&b, "- %s\n", msg.Empty)
	}
	fmt.Fprintf(&b, "\nOpen: %s%s", c.baseURL, msg.Path)
	return b.String()
}

func (c *Client) htmlBody(member model.Member, msg Message) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<p>Hi %s,</p><p>%s</p><ul>",
		html.EscapeString(member.DisplayName), html.EscapeString(msg.Intro))
	for _, l := range msg.Lines {
		fmt.Fprintf(&b, "<li>%s (due %s)</li>", html.EscapeString(l.Title), c.formatDue(l.DueAt))
	}
	if len(msg.Lines) == 0 && msg.Empty != "" {
		fmt.Fprintf(&b, "<li>%s</li>", html.EscapeString(msg.Empty))
	}
	link := c.baseURL + msg.Path
	fmt.Fprintf(&b, `</ul><p><a href="%s">Open Chorly</a></p>`, html.EscapeString(link))
	return b.String()
}

// NotifyAssigned implements chore.Notifier.
func (c *Client) NotifyAssigned(ctx context.Context, member model.Member, ch model.ChoreDefinition, occ model.Occurrence) error {
	return c.Send(ctx, member, AssignedMessage(ch, occ))
}

func AssignedMessage(ch model.ChoreDefinition, occ model.Occurrence) Message {
	return Message{
		Subject: "Chorly assignment: " + ch.Title,
		Intro:   "You were assigned a chore:",
		Lines:   []Line{{Title: ch.Title, DueAt: occ.DueAt}},
		Path:    "/today",
	}
}

func ReminderMessage(lines []Line) Message {
	return Message{
		Subject: "Chorly morning reminder",
		Intro:   "Your chores for today:",
		Lines:   lines,
		Path:    "/today",
	}
}

func OverdueMessage(lines []Line) Message {
	return Message{
		Subject: "Chorly overdue chores",
		Intro:   "These chores are overdue:",
		Lines:   lines,
		Path:    "/today",
	}
}

// SummaryMessage reports last week's approvals and earnings and previews
// the coming week.
func SummaryMessage(approved int, earnedCents int64, upcoming []Line) Message {
	return Message{
		Subject: "Chorly weekly summary",
		Intro: fmt.Sprintf("Last week you had %d approved chores and earned %s. Coming up:",
			approved, FormatCents(earnedCents)),
		Lines: upcoming,
		Empty: "No upcoming chores in the next 7 days",
		Path:  "/week",
	}
}

// FormatCents renders an amount such as 1250 as "12.50".
func FormatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}
