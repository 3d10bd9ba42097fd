package notify

import (
	"bytes"
	"strings"
	"text/template"
	"time"

	"github.com/md-rashed-zaman/calbook/services/scheduling-service/internal/bookings"
	"github.com/md-rashed-zaman/calbook/services/scheduling-service/internal/sellers"
)

var templates = template.Must(template.New("emails").Funcs(template.FuncMap{
	"when":  func(t time.Time) string { return t.Format("Monday, January 2, 2006 at 15:04 MST") },
	"clock": func(t time.Time) string { return t.Format("15:04 MST") },
}).Parse(`
{{define "confirmation_buyer"}}Hi {{.Buyer.Name}},

Your appointment with {{.Seller.Name}} is confirmed.
{{template "details" .}}{{end}}

{{define "confirmation_seller"}}Hi {{.Seller.Name}},

You have a new booking from {{.Buyer.Name}}.
{{template "details" .}}{{end}}

{{define "details"}}
When:     {{when .Start}}
Duration: {{.Minutes}} minutes
{{- if .Booking.Description}}
Notes:    {{.Booking.Description}}{{end}}
{{- if .Booking.MeetLink}}
Join:     {{.Booking.MeetLink}}{{end}}

This event has also been added to your Google Calendar.
{{end}}

{{define "reminder"}}Hi {{.Recipient.Name}},

Your appointment "{{.Booking.Title}}" starts in about {{.MinutesBefore}} minutes, at {{clock .Start}}.
{{- if .Booking.MeetLink}}

Join: {{.Booking.MeetLink}}{{end}}
{{end}}

{{define "cancellation"}}Hi there,

The following appointment has been cancelled by {{.CancelledByName}}:

{{.Booking.Title}}
{{when .Start}}

The event has been removed from Google Calendar. No further action is needed.
{{end}}
`))

type emailData struct {
	Booking       bookings.Booking
	Seller        sellers.User
	Buyer         sellers.User
	Recipient     sellers.User
	Start         time.Time
	Minutes       int
	MinutesBefore int
}

func (d emailData) CancelledByName() string {
	if d.Booking.CancelledBy == sellers.RoleSeller {
		return d.Seller.Name
	}
	return d.Buyer.Name
}

func newEmailData(b bookings.Booking, seller, buyer sellers.User) emailData {
	start := b.StartTime
	if loc, err := time.LoadLocation(b.Timezone); err == nil {
		start = start.In(loc)
	}
	return emailData{
		Booking: b,
		Seller:  seller,
		Buyer:   buyer,
		Start:   start,
		Minutes: int(b.EndTime.Sub(b.StartTime) / time.Minute),
	}
}

func render(name string, data emailData) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", err
	}
	return strings.TrimSpace(buf.String()) + "\n", nil
}
