package email

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"time"
)

//go:embed templates/*.html
var templateFS embed.FS

type baseEmailData struct {
	Title       string
	Heading     string
	Subheading  string
	AccentColor string
	Banner      string
	CTALabel    string
	CTAURL      string
}

// LeadSummary is the lead block rendered in every CRM email.
type LeadSummary struct {
	Name        string
	Email       string
	Phone       string
	Language    string
	Source      string
	Segment     string
	BudgetRange string
	PageType    string
	Message     string
}

func (l LeadSummary) displayName() string {
	if l.Name == "" {
		return defaultLeadDisplayName
	}
	return l.Name
}

// BroadcastOffer invites a pool agent to claim a lead.
type BroadcastOffer struct {
	Lead          LeadSummary
	ClaimURL      string
	ClaimDeadline time.Time
}

// EscalationAlarm is one rung of the unclaimed-lead ladder.
type EscalationAlarm struct {
	Lead           LeadSummary
	Level          int
	MinutesWaiting int
	ClaimURL       string
}

// ClaimBreachNotice tells the fallback admin nobody claimed a lead.
type ClaimBreachNotice struct {
	Lead          LeadSummary
	AdminName     string
	WindowMinutes int
	PoolSize      int
	ReassignURL   string
}

// ContactBreachNotice tells the fallback admin an agent claimed but didn't call.
type ContactBreachNotice struct {
	Lead        LeadSummary
	AdminName   string
	AgentName   string
	AgentEmail  string
	ClaimedAt   time.Time
	ReassignURL string
}

// ReassignmentNotice tells the new owner a lead moved to them.
type ReassignmentNotice struct {
	Lead                 LeadSummary
	AgentName            string
	Reason               string
	Notes                string
	StartsContactTimer   bool
	ContactWindowMinutes int
	LeadURL              string
}

// DirectAssignment tells an agent a lead was routed straight to them.
type DirectAssignment struct {
	Lead            LeadSummary
	AgentName       string
	ContactDeadline time.Time
	LeadURL         string
}

type alarmStyle struct {
	prefix string
	color  string
}

var alarmStyles = map[int]alarmStyle{
	1: {alarmSubjectPrefixLevel1, "#2563eb"},
	2: {alarmSubjectPrefixLevel2, "#d97706"},
	3: {alarmSubjectPrefixLevel3, "#ea580c"},
	4: {alarmSubjectPrefixLevel4, "#dc2626"},
}

// Rendered is a subject plus HTML body.
type Rendered struct {
	Subject string
	HTML    string
}

// RenderBroadcastOffer renders the claim invitation.
func RenderBroadcastOffer(d BroadcastOffer) (Rendered, error) {
	return render("broadcast_offer.html", fmt.Sprintf(subjectBroadcastOfferFmt, d.Lead.Language), struct {
		baseEmailData
		BroadcastOffer
	}{
		baseEmailData: baseEmailData{
			Title:       "New lead available",
			Heading:     "A new lead is waiting for an owner",
			Subheading:  "The first agent to claim it gets it.",
			AccentColor: "#2563eb",
			CTALabel:    "Claim lead",
			CTAURL:      d.ClaimURL,
		},
		BroadcastOffer: d,
	})
}

// RenderEscalationAlarm renders a ladder alarm with level-specific urgency.
func RenderEscalationAlarm(d EscalationAlarm) (Rendered, error) {
	style, ok := alarmStyles[d.Level]
	if !ok {
		return Rendered{}, fmt.Errorf("escalation level %d has no template", d.Level)
	}
	banner := ""
	if d.Level == 4 {
		banner = finalWarningNotice
	}
	subject := fmt.Sprintf(alarmSubjectBodyFmt, style.prefix, d.Lead.Language, d.MinutesWaiting)
	return render("escalation_alarm.html", subject, struct {
		baseEmailData
		EscalationAlarm
	}{
		baseEmailData: baseEmailData{
			Title:       style.prefix,
			Heading:     fmt.Sprintf("Lead unclaimed for %d minutes", d.MinutesWaiting),
			AccentColor: style.color,
			Banner:      banner,
			CTALabel:    "Claim lead now",
			CTAURL:      d.ClaimURL,
		},
		EscalationAlarm: d,
	})
}

// RenderClaimBreach renders the admin notice for a lead nobody claimed.
func RenderClaimBreach(d ClaimBreachNotice) (Rendered, error) {
	return render("claim_breach.html", fmt.Sprintf(subjectClaimBreachFmt, d.WindowMinutes), struct {
		baseEmailData
		ClaimBreachNotice
	}{
		baseEmailData: baseEmailData{
			Title:       "Lead unclaimed",
			Heading:     "No agent claimed this lead",
			AccentColor: "#dc2626",
			CTALabel:    "Reassign lead",
			CTAURL:      d.ReassignURL,
		},
		ClaimBreachNotice: d,
	})
}

// RenderContactBreach renders the admin notice for a claimed lead nobody called.
func RenderContactBreach(d ContactBreachNotice) (Rendered, error) {
	return render("contact_breach.html", fmt.Sprintf(subjectContactBreachFmt, d.AgentName), struct {
		baseEmailData
		ContactBreachNotice
	}{
		baseEmailData: baseEmailData{
			Title:       "Agent claimed but didn't call",
			Heading:     "Contact window missed",
			AccentColor: "#b91c1c",
			CTALabel:    "Reassign lead",
			CTAURL:      d.ReassignURL,
		},
		ContactBreachNotice: d,
	})
}

// RenderReassignment renders the new owner's notice. Non-manual moves carry
// the contact timer banner.
func RenderReassignment(d ReassignmentNotice) (Rendered, error) {
	banner := ""
	if d.StartsContactTimer {
		banner = fmt.Sprintf(contactTimerBannerFmt, d.ContactWindowMinutes)
	}
	return render("reassigned.html", fmt.Sprintf(subjectReassignedFmt, d.Lead.displayName()), struct {
		baseEmailData
		ReassignmentNotice
	}{
		baseEmailData: baseEmailData{
			Title:       "Lead reassigned",
			Heading:     "A lead has been reassigned to you",
			AccentColor: "#7c3aed",
			Banner:      banner,
			CTALabel:    "Open lead",
			CTAURL:      d.LeadURL,
		},
		ReassignmentNotice: d,
	})
}

// RenderDirectAssignment renders the notice for rule or rotation assignments.
func RenderDirectAssignment(d DirectAssignment) (Rendered, error) {
	return render("assigned.html", fmt.Sprintf(subjectDirectAssignedFmt, d.Lead.displayName()), struct {
		baseEmailData
		DirectAssignment
	}{
		baseEmailData: baseEmailData{
			Title:       "New lead",
			Heading:     "A new lead has been assigned to you",
			AccentColor: "#059669",
			Banner:      "Your contact timer is running. Call the lead before " + d.ContactDeadline.UTC().Format("15:04 MST") + ".",
			CTALabel:    "Open lead",
			CTAURL:      d.LeadURL,
		},
		DirectAssignment: d,
	})
}

func render(name, subject string, data any) (Rendered, error) {
	html, err := renderEmailTemplate(name, data)
	if err != nil {
		return Rendered{}, err
	}
	return Rendered{Subject: subject, HTML: html}, nil
}

func renderEmailTemplate(name string, data any) (string, error) {
	templates := []string{"templates/base.html", "templates/lead_summary.html", "templates/" + name}
	tmpl, err := template.New("base.html").Funcs(template.FuncMap{
		"utc": func(t time.Time) string { return t.UTC().Format("2006-01-02 15:04 MST") },
	}).ParseFS(templateFS, templates...)
	if err != nil {
		return "", fmt.Errorf("parse email template %s: %w", name, err)
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "email", data); err != nil {
		return "", fmt.Errorf("execute email template %s: %w", name, err)
	}
	return buf.String(), nil
}
