package portal

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// The dashboard carries one "Continue" link per manageable appointment
// record; the schedule id is the only path segment that varies.
func scheduleLinkPattern(country string) *regexp.Regexp {
	return regexp.MustCompile(
		`href="/en-` + regexp.QuoteMeta(country) + `/niv/schedule/(\d+)/continue_actions">Continue</a>`)
}

// appointmentTextPattern matches the held appointment's date/time as printed
// on the dashboard, e.g. "13 March, 2024, 09:30".
var appointmentTextPattern = regexp.MustCompile(`\d{1,2} [A-Za-z]+, \d{4}, \d{1,2}:\d{2}`)

func parseDashboard(body, country string) (Dashboard, error) {
	var d Dashboard
	for _, m := range scheduleLinkPattern(country).FindAllStringSubmatch(body, -1) {
		d.ScheduleIDs = append(d.ScheduleIDs, m[1])
	}

	if m := appointmentTextPattern.FindString(body); m != "" {
		at, err := time.Parse(appointmentLayout, m)
		if err != nil {
			return d, fmt.Errorf("portal: parse appointment date %q: %w", m, err)
		}
		d.Appointment = at
	}
	return d, nil
}

func extractCSRFToken(body string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("portal: parse page: %w", err)
	}
	token, ok := doc.Find(`meta[name="csrf-token"]`).Attr("content")
	if !ok || token == "" {
		return "", ErrNoCSRFToken
	}
	return token, nil
}

const (
	facilitySelectID    = "appointments_consulate_appointment_facility_id"
	ascFacilitySelectID = "appointments_asc_appointment_facility_id"
)

func parseAppointmentPage(body string) (AppointmentPage, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return AppointmentPage{}, fmt.Errorf("portal: parse appointment page: %w", err)
	}
	return AppointmentPage{
		Facilities:    parseFacilitySelect(doc, facilitySelectID),
		ASCFacilities: parseFacilitySelect(doc, ascFacilitySelectID),
	}, nil
}

func parseFacilitySelect(doc *goquery.Document, id string) map[string]string {
	out := map[string]string{}
	doc.Find("select#" + id + " option").Each(func(_ int, opt *goquery.Selection) {
		value, _ := opt.Attr("value")
		if value != "" {
			out[value] = strings.TrimSpace(opt.Text())
		}
	})
	if len(out) == 0 {
		return nil
	}
	return out
}
