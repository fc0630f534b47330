package service

import (
	"bytes"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/event-booking/internal/model"
)

// zeroDecimalCurrencies have no minor unit.
var zeroDecimalCurrencies = map[string]bool{"JPY": true, "KRW": true}

// FormatMoney renders minor units as a decimal amount with currency code,
// e.g. 2500 EUR -> "25.00 EUR".
func FormatMoney(amount int64, currency string) string {
	currency = strings.ToUpper(currency)
	places := int32(2)
	if zeroDecimalCurrencies[currency] {
		places = 0
	}
	return decimal.New(amount, -places).StringFixed(places) + " " + currency
}

// Renderer builds the subject and bodies of outbound emails.
type Renderer struct {
	publicURL string
}

// NewRenderer links tickets and events relative to publicURL.
func NewRenderer(publicURL string) *Renderer {
	return &Renderer{publicURL: strings.TrimRight(publicURL, "/")}
}

// Rendered is a ready-to-queue message body.
type Rendered struct {
	Subject string
	Text    string
	HTML    string
}

type ticketView struct {
	Name      string
	Event     string
	Session   string
	Venue     string
	Location  string
	StartsAt  string
	Quantity  int
	Total     string
	TicketURL string
	Reference string
}

var ticketText = texttemplate.Must(texttemplate.New("ticket").Parse(
	`Hi {{.Name}},

your booking for {{.Event}} is confirmed.

Session:   {{.Session}}
When:      {{.StartsAt}}
Where:     {{.Venue}}{{if .Location}}, {{.Location}}{{end}}
Tickets:   {{.Quantity}}
Total:     {{.Total}}
Reference: {{.Reference}}

Your tickets: {{.TicketURL}}
`))

var ticketHTML = htmltemplate.Must(htmltemplate.New("ticket").Parse(
	`<p>Hi {{.Name}},</p>
<p>your booking for <strong>{{.Event}}</strong> is confirmed.</p>
<table>
<tr><td>Session</td><td>{{.Session}}</td></tr>
<tr><td>When</td><td>{{.StartsAt}}</td></tr>
<tr><td>Where</td><td>{{.Venue}}{{if .Location}}, {{.Location}}{{end}}</td></tr>
<tr><td>Tickets</td><td>{{.Quantity}}</td></tr>
<tr><td>Total</td><td>{{.Total}}</td></tr>
<tr><td>Reference</td><td>{{.Reference}}</td></tr>
</table>
<p><a href="{{.TicketURL}}">View your tickets</a></p>
`))

// TicketConfirmation renders the confirmation sent after payment succeeds.
func (r *Renderer) TicketConfirmation(d *model.ReservationDetail) (Rendered, error) {
	v := ticketView{
		Name:      d.Reservation.GuestName,
		Event:     d.Event.Title,
		Session:   d.Session.Title,
		Venue:     d.Event.VenueName,
		Location:  d.Event.Location,
		StartsAt:  d.Session.StartTime.UTC().Format(time.RFC1123),
		Quantity:  d.Reservation.Quantity,
		Total:     FormatMoney(d.Reservation.TotalAmount, d.Reservation.Currency),
		TicketURL: r.publicURL + "/tickets/" + d.Reservation.AccessToken,
		Reference: shortRef(d.Reservation.ID),
	}
	return render("Your tickets for "+d.Event.Title, ticketText, ticketHTML, v)
}

type waitlistView struct {
	Name     string
	Event    string
	Session  string
	StartsAt string
	Quantity int
	URL      string
}

var waitlistText = texttemplate.Must(texttemplate.New("waitlist").Parse(
	`Hi {{.Name}},

good news: tickets for {{.Event}} ({{.Session}}, {{.StartsAt}}) became available.
You asked for {{.Quantity}} ticket(s). Book now before they are gone:

{{.URL}}
`))

var waitlistHTML = htmltemplate.Must(htmltemplate.New("waitlist").Parse(
	`<p>Hi {{.Name}},</p>
<p>good news: tickets for <strong>{{.Event}}</strong> ({{.Session}}, {{.StartsAt}}) became available.</p>
<p>You asked for {{.Quantity}} ticket(s). <a href="{{.URL}}">Book now</a> before they are gone.</p>
`))

// WaitlistAvailable renders the notice sent to a claimed waitlist entry.
func (r *Renderer) WaitlistAvailable(e model.WaitlistEntry, s model.EventSession, ev model.Event) (Rendered, error) {
	v := waitlistView{
		Name:     e.Name,
		Event:    ev.Title,
		Session:  s.Title,
		StartsAt: s.StartTime.UTC().Format(time.RFC1123),
		Quantity: e.Quantity,
		URL:      r.publicURL + "/events/" + ev.Slug + "?session=" + s.ID,
	}
	return render("Tickets available: "+ev.Title, waitlistText, waitlistHTML, v)
}

type contactView struct {
	Name    string
	Email   string
	Message string
}

var contactText = texttemplate.Must(texttemplate.New("contact").Parse(
	`New contact form submission

From: {{.Name}} <{{.Email}}>

{{.Message}}
`))

var contactHTML = htmltemplate.Must(htmltemplate.New("contact").Parse(
	`<p>New contact form submission</p>
<p>From: {{.Name}} &lt;{{.Email}}&gt;</p>
<pre>{{.Message}}</pre>
`))

// ContactNotification renders the message forwarded to the site operator.
func (r *Renderer) ContactNotification(name, email, message string) (Rendered, error) {
	return render("Contact form: "+name, contactText, contactHTML, contactView{Name: name, Email: email, Message: message})
}

func render(subject string, text *texttemplate.Template, html *htmltemplate.Template, data interface{}) (Rendered, error) {
	var tb, hb bytes.Buffer
	if err := text.Execute(&tb, data); err != nil {
		return Rendered{}, err
	}
	if err := html.Execute(&hb, data); err != nil {
		return Rendered{}, err
	}
	return Rendered{Subject: subject, Text: tb.String(), HTML: hb.String()}, nil
}

// shortRef is the customer-facing booking reference.
func shortRef(id string) string {
	ref := strings.ToUpper(strings.ReplaceAll(id, "-", ""))
	if len(ref) > 8 {
		ref = ref[:8]
	}
	return ref
}
