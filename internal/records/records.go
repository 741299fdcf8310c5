package records

import "fmt"

// Kind identifies which export a source file came from.
type Kind string

const (
	KindReservations Kind = "reservations"
	KindKarte        Kind = "karte"
	KindListing      Kind = "listing"
	KindSurvey       Kind = "survey"
)

// ParseKind accepts the canonical kind names plus a few short aliases.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "reservations", "reservation", "rsv":
		return KindReservations, nil
	case "karte", "visits", "emr":
		return KindKarte, nil
	case "listing", "ads", "ad":
		return KindListing, nil
	case "survey", "surveys":
		return KindSurvey, nil
	default:
		return "", fmt.Errorf("unknown source kind %q (use reservations|karte|listing|survey)", s)
	}
}

// Survey file types as they appear in the questionnaire exports.
const (
	SurveyOutpatient = "外来"
	SurveyEndoscopy  = "内視鏡"
)

// Reservation is one row of the appointment system export.
// Timestamps are ISO-8601 strings with offset; ReservationHour is -1 when unknown.
type Reservation struct {
	Department            string `json:"department"`
	ReservationDate       string `json:"reservation_date"`
	ReservationHour       int    `json:"reservation_hour"`
	ReceivedAt            string `json:"received_at,omitempty"`
	BookingAt             string `json:"booking_at,omitempty"`
	AppointmentAt         string `json:"appointment_at,omitempty"`
	VisitType             string `json:"visit_type,omitempty"`
	PatientNumber         string `json:"patient_number,omitempty"`
	PatientName           string `json:"patient_name,omitempty"`
	PatientNameNormalized string `json:"patient_name_normalized,omitempty"`
	BirthDate             string `json:"birth_date,omitempty"`
}

// Timestamp returns the first populated event timestamp: received, booking, appointment.
func (r Reservation) Timestamp() string {
	switch {
	case r.ReceivedAt != "":
		return r.ReceivedAt
	case r.BookingAt != "":
		return r.BookingAt
	default:
		return r.AppointmentAt
	}
}

// KarteRecord is one clinical visit from the electronic medical record export.
type KarteRecord struct {
	PatientNumber         string `json:"patient_number,omitempty"`
	PatientName           string `json:"patient_name,omitempty"`
	PatientNameNormalized string `json:"patient_name_normalized,omitempty"`
	BirthDate             string `json:"birth_date,omitempty"`
	Date                  string `json:"date"`
	Department            string `json:"department,omitempty"`
}

// ListingCategory holds per-hour ad conversions for one ad category.
type ListingCategory struct {
	Category string       `json:"category"`
	Days     []ListingDay `json:"days"`
}

// ListingDay is one date of hourly conversions.
type ListingDay struct {
	Date     string      `json:"date"`
	HourlyCV [24]float64 `json:"hourly_cv"`
}

// Total returns the day's conversions across all hours.
func (d ListingDay) Total() float64 {
	var sum float64
	for _, v := range d.HourlyCV {
		sum += v
	}
	return sum
}

// SurveyEntry is one day of questionnaire channel counters.
type SurveyEntry struct {
	Date     string             `json:"date"`
	FileType string             `json:"file_type"`
	Channels map[string]float64 `json:"channels"`
}

// Survey channel keys.
const (
	ChannelGoogleSearch      = "googleSearch"
	ChannelGoogleMap         = "googleMap"
	ChannelFeverGoogleSearch = "feverGoogleSearch"
	ChannelFeverGoogleMap    = "feverGoogleMap"
	ChannelYahooSearch       = "yahooSearch"
	ChannelInstagram         = "instagram"
	ChannelLine              = "line"
	ChannelReferral          = "referral"
	ChannelSignboard         = "signboard"
	ChannelWebsite           = "website"
	ChannelOther             = "other"
)

// SearchChannels are the survey answers attributable to search listings.
var SearchChannels = map[string]bool{
	ChannelGoogleSearch:      true,
	ChannelGoogleMap:         true,
	ChannelFeverGoogleSearch: true,
	ChannelFeverGoogleMap:    true,
	ChannelYahooSearch:       true,
}
