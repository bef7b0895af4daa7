package mailer

import (
	"bytes"
	"fmt"
	"html/template"
)

const ShopName = "Good Vibes Barbershop"

// ConfirmationData is everything the confirmation email renders.
type ConfirmationData struct {
	Name        string
	ServiceName string
	Date        string
	Time        string
	Price       float64
	Location    string
}

const DefaultLocation = "123 Luxury Ave, Suite 400, Beverly Hills, CA 90210"

var confirmationTmpl = template.Must(template.New("confirmation").Funcs(template.FuncMap{
	"money": func(p float64) string { return fmt.Sprintf("$%.2f", p) },
}).Parse(`<!doctype html>
<html><body style="font-family:sans-serif">
<h2>You're booked, {{.Name}}!</h2>
<p>Thanks for booking with ` + ShopName + `. Here are your appointment details:</p>
<table cellpadding="4">
<tr><td><b>Service</b></td><td>{{.ServiceName}}</td></tr>
<tr><td><b>Date</b></td><td>{{.Date}}</td></tr>
<tr><td><b>Time</b></td><td>{{.Time}}</td></tr>
<tr><td><b>Price</b></td><td>{{money .Price}}</td></tr>
<tr><td><b>Location</b></td><td>{{.Location}}</td></tr>
</table>
<p>Need to reschedule? Just reply to this email.</p>
</body></html>`))

func ConfirmationSubject(d ConfirmationData) string {
	return fmt.Sprintf("Booking confirmed: %s on %s", d.ServiceName, d.Date)
}

func RenderConfirmation(d ConfirmationData) (string, error) {
	if d.Location == "" {
		d.Location = DefaultLocation
	}
	var buf bytes.Buffer
	if err := confirmationTmpl.Execute(&buf, d); err != nil {
		return "", err
	}
	return buf.String(), nil
}
