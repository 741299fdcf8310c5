package ingest

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/KaramelBytes/clinicpulse-cli/internal/records"
)

// ErrUnknownKind is returned when a file's kind can be neither given nor guessed.
var ErrUnknownKind = errors.New("cannot infer source kind")

// ColumnError reports required columns that no header matched.
type ColumnError struct {
	File    string
	Kind    records.Kind
	Missing []string
}

func (e *ColumnError) Error() string {
	return fmt.Sprintf("%s: %s file is missing column(s): %s", e.File, e.Kind, strings.Join(e.Missing, ", "))
}

// field names a logical column; aliases list the headers that map to it.
type field string

const (
	colDepartment    field = "department"
	colDate          field = "date"
	colHour          field = "hour"
	colReceivedAt    field = "received_at"
	colBookingAt     field = "booking_at"
	colAppointmentAt field = "appointment_at"
	colVisitType     field = "visit_type"
	colPatientNumber field = "patient_number"
	colPatientName   field = "patient_name"
	colBirthDate     field = "birth_date"
	colCategory      field = "category"
	colCV            field = "cv"
	colFileType      field = "file_type"
)

var aliases = map[field][]string{
	colDepartment:    {"診療科", "診療科目", "科目", "予約メニュー", "メニュー", "予約項目", "department", "menu"},
	colDate:          {"予約日", "予約日付", "来院予定日", "受診日", "来院日", "診療日", "日付", "回答日", "date", "reservation_date", "visit_date"},
	colHour:          {"予約時間", "予約時刻", "時間", "時刻", "時間帯", "hour", "time", "reservation_hour"},
	colReceivedAt:    {"受付日時", "予約受付日時", "received_at", "received"},
	colBookingAt:     {"予約登録日時", "登録日時", "作成日時", "申込日時", "booking_at", "created_at"},
	colAppointmentAt: {"予約日時", "来院予定日時", "appointment_at", "appointment"},
	colVisitType:     {"初診/再診", "初再診", "初診再診", "受診区分", "区分", "visit_type"},
	colPatientNumber: {"患者番号", "診察券番号", "カルテ番号", "患者id", "patient_number", "patient_id", "patient_no"},
	colPatientName:   {"患者名", "患者氏名", "氏名", "名前", "お名前", "patient_name", "name"},
	colBirthDate:     {"生年月日", "birth_date", "birthdate", "dob"},
	colCategory:      {"カテゴリ", "カテゴリー", "キャンペーン", "広告グループ", "category", "campaign"},
	colCV:            {"cv", "cv数", "コンバージョン", "コンバージョン数", "conversions"},
	colFileType:      {"種別", "ファイル種別", "アンケート種別", "file_type", "type"},
}

var aliasIndex = func() map[string]field {
	m := make(map[string]field)
	for f, names := range aliases {
		for _, n := range names {
			m[headerKey(n)] = f
		}
	}
	return m
}()

// channelAliases maps survey headers to channel keys.
var channelAliases = func() map[string]string {
	src := map[string][]string{
		records.ChannelGoogleSearch:      {"google検索", "グーグル検索"},
		records.ChannelGoogleMap:         {"googleマップ", "グーグルマップ", "googlemaps"},
		records.ChannelFeverGoogleSearch: {"発熱google検索", "発熱外来google検索"},
		records.ChannelFeverGoogleMap:    {"発熱googleマップ", "発熱外来googleマップ"},
		records.ChannelYahooSearch:       {"yahoo検索", "ヤフー検索"},
		records.ChannelInstagram:         {"インスタグラム", "インスタ"},
		records.ChannelLine:              {"ライン"},
		records.ChannelReferral:          {"紹介", "知人の紹介", "ご紹介"},
		records.ChannelSignboard:         {"看板", "通りがかり"},
		records.ChannelWebsite:           {"ホームページ", "hp", "webサイト"},
		records.ChannelOther:             {"その他"},
	}
	m := make(map[string]string)
	for ch, names := range src {
		m[headerKey(ch)] = ch
		for _, n := range names {
			m[headerKey(n)] = ch
		}
	}
	return m
}()

// columns maps each recognized field to its first matching header position.
type columns map[field]int

func mapColumns(header []string) columns {
	cols := columns{}
	for i, h := range header {
		f, ok := aliasIndex[headerKey(h)]
		if !ok {
			continue
		}
		if _, dup := cols[f]; !dup {
			cols[f] = i
		}
	}
	return cols
}

func (c columns) has(f field) bool {
	_, ok := c[f]
	return ok
}

func (c columns) index(f field) int {
	if i, ok := c[f]; ok {
		return i
	}
	return -1
}

// require returns a ColumnError naming each group where none of the fields is present.
func (c columns) require(file string, kind records.Kind, groups ...[]field) error {
	var missing []string
	for _, g := range groups {
		found := false
		names := make([]string, len(g))
		for i, f := range g {
			names[i] = string(f)
			if c.has(f) {
				found = true
			}
		}
		if !found {
			missing = append(missing, strings.Join(names, "|"))
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return &ColumnError{File: file, Kind: kind, Missing: missing}
}

var kindHints = []struct {
	kind  records.Kind
	hints []string
}{
	{records.KindKarte, []string{"カルテ", "karte", "emr", "受診履歴"}},
	{records.KindListing, []string{"広告", "リスティング", "listing", "ads"}},
	{records.KindSurvey, []string{"アンケート", "問診", "survey", "questionnaire"}},
	{records.KindReservations, []string{"予約", "reserv", "booking"}},
}

// DetectKind guesses a source kind from the file name.
func DetectKind(path string) (records.Kind, error) {
	name := headerKey(filepath.Base(path))
	for _, k := range kindHints {
		for _, h := range k.hints {
			if strings.Contains(name, headerKey(h)) {
				return k.kind, nil
			}
		}
	}
	return "", fmt.Errorf("%w from file name %q; pass --kind", ErrUnknownKind, filepath.Base(path))
}

// surveyTypeFromName reads the survey file type from a file name.
func surveyTypeFromName(path string) string {
	name := filepath.Base(path)
	switch {
	case strings.Contains(name, records.SurveyEndoscopy), strings.Contains(strings.ToLower(name), "endoscopy"):
		return records.SurveyEndoscopy
	case strings.Contains(name, records.SurveyOutpatient), strings.Contains(strings.ToLower(name), "outpatient"):
		return records.SurveyOutpatient
	}
	return ""
}

// normalizeSurveyType maps free text in a type column onto the two known file types.
func normalizeSurveyType(s string) string {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return ""
	case strings.Contains(s, records.SurveyEndoscopy), strings.Contains(s, "胃カメラ"), strings.Contains(s, "大腸"),
		strings.EqualFold(s, "endoscopy"):
		return records.SurveyEndoscopy
	case strings.Contains(s, records.SurveyOutpatient), strings.Contains(s, "一般"), strings.EqualFold(s, "outpatient"):
		return records.SurveyOutpatient
	}
	return s
}
