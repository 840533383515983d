package notify

import (
	"strings"
	"time"

	"github.com/wolfman30/zalo-lead-notifier/internal/leads"
)

// TimestampLayout renders dd/mm/yyyy HH:MM:SS.
const TimestampLayout = "02/01/2006 15:04:05"

// DefaultTimezone is where recipients read the lead timestamp.
const DefaultTimezone = "Asia/Ho_Chi_Minh"

// Template holds the labels and placeholders of the new-lead message.
type Template struct {
	Header        string
	NameLabel     string
	PhoneLabel    string
	EmailLabel    string
	SourceLabel   string
	StatusLabel   string
	AssigneeLabel string
	TimeLabel     string
	LinkLabel     string
	Reminder      string
	NameFallback  string
	NotProvided   string
	UnknownSource string
	DefaultStatus string
	Unassigned    string
}

var Vietnamese = Template{
	Header:        "LEAD MỚI",
	NameLabel:     "Tên khách hàng",
	PhoneLabel:    "Số điện thoại",
	EmailLabel:    "Email",
	SourceLabel:   "Nguồn",
	StatusLabel:   "Trạng thái",
	AssigneeLabel: "Người phụ trách",
	TimeLabel:     "Thời gian",
	LinkLabel:     "Link xem chi tiết",
	Reminder:      "Lưu ý: Ưu tiên liên hệ khách hàng sớm nhất có thể để tăng tỷ lệ chuyển đổi!",
	NameFallback:  "Khách hàng tiềm năng",
	NotProvided:   "Chưa có",
	UnknownSource: "Chưa xác định",
	DefaultStatus: "New",
	Unassigned:    "Chưa phân công",
}

var English = Template{
	Header:        "NEW LEAD",
	NameLabel:     "Customer name",
	PhoneLabel:    "Phone",
	EmailLabel:    "Email",
	SourceLabel:   "Source",
	StatusLabel:   "Status",
	AssigneeLabel: "Assigned to",
	TimeLabel:     "Time",
	LinkLabel:     "View details",
	Reminder:      "Note: contact the customer as soon as possible to improve conversion!",
	NameFallback:  "Prospective customer",
	NotProvided:   "Not provided",
	UnknownSource: "Unknown",
	DefaultStatus: "New",
	Unassigned:    "Unassigned",
}

// TemplateFor returns the template for locale, defaulting to Vietnamese.
func TemplateFor(locale string) Template {
	if strings.EqualFold(strings.TrimSpace(locale), "en") {
		return English
	}
	return Vietnamese
}

// LeadLink is the CRM deep link for a lead.
func LeadLink(siteURL, leadID string) string {
	return strings.TrimRight(siteURL, "/") + "/#Lead/view/" + leadID
}

// ComposeLeadMessage renders the new-lead text. Blank fields are replaced by
// the template's placeholders so every line is always present.
func ComposeLeadMessage(lead leads.Lead, tpl Template, siteURL string, now time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}

	var b strings.Builder
	b.WriteString(tpl.Header + "\n\n")
	line := func(label, value, fallback string) {
		b.WriteString(label + ": " + orDefault(value, fallback) + "\n")
	}
	line(tpl.NameLabel, lead.Name, tpl.NameFallback)
	line(tpl.PhoneLabel, lead.Phone, tpl.NotProvided)
	line(tpl.EmailLabel, lead.Email, tpl.NotProvided)
	line(tpl.SourceLabel, lead.Source, tpl.UnknownSource)
	line(tpl.StatusLabel, lead.Status, tpl.DefaultStatus)
	line(tpl.AssigneeLabel, lead.AssignedUserName, tpl.Unassigned)
	b.WriteString(tpl.TimeLabel + ": " + now.In(loc).Format(TimestampLayout) + "\n\n")
	b.WriteString(tpl.LinkLabel + ":\n")
	b.WriteString(LeadLink(siteURL, lead.ID) + "\n\n")
	b.WriteString(tpl.Reminder)
	return b.String()
}

func orDefault(value, fallback string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return fallback
}
