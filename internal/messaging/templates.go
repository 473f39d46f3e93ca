package messaging

import (
	"fmt"
	"time"

	"github.com/dpfarias/leadline-backend/pkg/db/models"
)

// Templates renders the outbound WhatsApp copy. Rendering is pure: no store
// or network access, and a bad meeting date is an error, never a garbled
// string sent to a customer.
type Templates struct {
	loc *time.Location
}

// NewTemplates loads the greeting reference timezone. Greetings follow the
// customer's local day, not the server's.
func NewTemplates(timezone string) (*Templates, error) {
	if timezone == "" {
		return nil, fmt.Errorf("timezone is required")
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", timezone, err)
	}
	return &Templates{loc: loc}, nil
}

var weekdaysPtBR = [...]string{
	time.Sunday:    "domingo",
	time.Monday:    "segunda-feira",
	time.Tuesday:   "terça-feira",
	time.Wednesday: "quarta-feira",
	time.Thursday:  "quinta-feira",
	time.Friday:    "sexta-feira",
	time.Saturday:  "sábado",
}

var monthsPtBR = [...]string{
	time.January:   "janeiro",
	time.February:  "fevereiro",
	time.March:     "março",
	time.April:     "abril",
	time.May:       "maio",
	time.June:      "junho",
	time.July:      "julho",
	time.August:    "agosto",
	time.September: "setembro",
	time.October:   "outubro",
	time.November:  "novembro",
	time.December:  "dezembro",
}

// Greeting picks the time-of-day salutation: morning [05:00,12:00),
// afternoon [12:00,18:00), evening otherwise.
func (t *Templates) Greeting(now time.Time) string {
	hour := now.In(t.loc).Hour()
	switch {
	case hour >= 5 && hour < 12:
		return "Bom dia"
	case hour >= 12 && hour < 18:
		return "Boa tarde"
	default:
		return "Boa noite"
	}
}

// Welcome renders the delayed first-contact message.
func (t *Templates) Welcome(lead models.Lead, now time.Time) string {
	return fmt.Sprintf(
		"%s, %s! Vi que você se cadastrou para a consultoria. Posso te passar os próximos passos para garantir a sua vaga?",
		t.Greeting(now), lead.FirstName(),
	)
}

// Abandoned renders the stalled-payment nudge.
func (t *Templates) Abandoned(lead models.Lead, now time.Time) string {
	return fmt.Sprintf(
		"%s, %s! Notei que você começou o pagamento da consultoria mas não concluiu. O código PIX expira em poucos minutos — precisa de ajuda para finalizar?",
		t.Greeting(now), lead.FirstName(),
	)
}

// Confirmed renders the payment confirmation with the booked meeting.
func (t *Templates) Confirmed(lead models.Lead, meetingAt time.Time, now time.Time) (string, error) {
	formatted, err := t.formatMeeting(meetingAt)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(
		"%s, %s! Pagamento confirmado. Sua reunião está agendada para %s. Até lá!",
		t.Greeting(now), lead.FirstName(), formatted,
	), nil
}

// formatMeeting renders "segunda-feira, 02 de março às 14:30" in the
// reference timezone.
func (t *Templates) formatMeeting(meetingAt time.Time) (string, error) {
	if meetingAt.IsZero() {
		return "", fmt.Errorf("meeting time is not set")
	}
	local := meetingAt.In(t.loc)
	return fmt.Sprintf(
		"%s, %02d de %s às %02d:%02d",
		weekdaysPtBR[local.Weekday()],
		local.Day(),
		monthsPtBR[local.Month()],
		local.Hour(),
		local.Minute(),
	), nil
}
