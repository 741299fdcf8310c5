package ingest

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/transform"

	"github.com/KaramelBytes/clinicpulse-cli/internal/records"
)

func jst() *time.Location { return time.FixedZone("JST", 9*3600) }

func TestNormalizeName(t *testing.T) {
	cases := map[string]string{
		"山田　太郎 様":    "山田太郎",
		"ﾔﾏﾀﾞ ﾀﾛｳ":   "ヤマダタロウ",
		"ＳＭＩＴＨ　Ｊｏｈｎ": "smithjohn",
		"佐藤花子さん":     "佐藤花子",
		"鈴木様方":       "鈴木",
		"様":          "様",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeName(in), in)
	}
}

func TestParseHour(t *testing.T) {
	loc := jst()
	cases := map[string]int{
		"9":                9,
		"09:30":            9,
		"14時":              14,
		"9:00-9:30":        9,
		"2024/05/01 18:15": 18,
		"0.375":            9,
		"":                 -1,
		"午前":               -1,
		"24":               24,
	}
	for in, want := range cases {
		assert.Equal(t, want, parseHour(in, loc), in)
	}
}

func TestCanonicalValues(t *testing.T) {
	loc := jst()
	assert.Equal(t, "2024-05-01", canonicalDate("2024/5/1", loc))
	assert.Equal(t, "2024-05-01", canonicalDate("45413", loc), "excel serial date")
	assert.Equal(t, "2024-05-01T09:05:00+09:00", canonicalTimestamp("2024/05/01 09:05", loc))
	assert.Equal(t, "2024-05-01T09:05:00+09:00", canonicalTimestamp("2024-05-01T00:05:00Z", loc))
	assert.Equal(t, "someday", canonicalDate("someday", loc), "unparsable date passes through")

	v, ok := parseNumber("1,234件")
	assert.True(t, ok)
	assert.Equal(t, 1234.0, v)
	v, ok = parseNumber("１２")
	assert.True(t, ok, "full-width digits")
	assert.Equal(t, 12.0, v)
	_, ok = parseNumber("n/a")
	assert.False(t, ok)
}

func TestDetectKind(t *testing.T) {
	cases := map[string]records.Kind{
		"予約一覧_202405.csv":      records.KindReservations,
		"reservations.csv":     records.KindReservations,
		"カルテ_5月.xlsx":          records.KindKarte,
		"広告CV_hourly.csv":      records.KindListing,
		"アンケート_内視鏡.csv":        records.KindSurvey,
		"/tmp/x/listing-1.tsv": records.KindListing,
	}
	for name, want := range cases {
		got, err := DetectKind(name)
		assert.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}
	_, err := DetectKind("export.csv")
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestParseReservations(t *testing.T) {
	csv := strings.Join([]string{
		"予約日,予約時間,診療科,受付日時,初診/再診,患者名",
		"2024/05/01,9:00,内科,2024/04/28 21:10,初診,山田 太郎 様",
		"2024/05/01,14時,胃カメラ,,再診,佐藤花子",
		",,,,,",
		"2024/05/02,10:30,,,,誰か",
	}, "\n")
	l := NewLoader(jst(), zerolog.Nop())
	b, err := l.Parse("予約.csv", []byte(csv), "")
	require.NoError(t, err)
	assert.Equal(t, records.KindReservations, b.Kind)
	require.Len(t, b.Reservations, 2)
	r := b.Reservations[0]
	assert.Equal(t, "2024-05-01", r.ReservationDate)
	assert.Equal(t, 9, r.ReservationHour)
	assert.Equal(t, "内科", r.Department)
	assert.Equal(t, "2024-04-28T21:10:00+09:00", r.ReceivedAt)
	assert.Equal(t, "山田太郎", r.PatientNameNormalized)
	assert.Equal(t, "初診", r.VisitType)
	assert.Equal(t, 14, b.Reservations[1].ReservationHour)
}

func TestParseReservations_SlotTimestampOnly(t *testing.T) {
	csv := "診療科,予約日時,患者番号\n大腸内視鏡,2024-05-03 08:00,P-1\n"
	b, err := (&Loader{Location: jst()}).Parse("a.csv", []byte(csv), records.KindReservations)
	require.NoError(t, err)
	require.Len(t, b.Reservations, 1)
	r := b.Reservations[0]
	assert.Equal(t, "2024-05-03", r.ReservationDate, "slot used for bucket")
	assert.Equal(t, 8, r.ReservationHour)
	assert.Equal(t, "P-1", r.PatientNumber)
}

func TestParseMissingColumns(t *testing.T) {
	l := &Loader{}
	_, err := l.Parse("r.csv", []byte("患者名,メモ\na,b\n"), records.KindReservations)
	var ce *ColumnError
	require.ErrorAs(t, err, &ce)
	assert.Len(t, ce.Missing, 2)
	assert.Contains(t, ce.Error(), "department")
}

func TestParseKarte_ShiftJIS(t *testing.T) {
	text := "患者番号,患者氏名,生年月日,受診日,診療科\n001,ﾀﾅｶ ｲﾁﾛｳ,1980/1/2,2024/04/20,内科\n002,,,2024/04/21,\n,,,2024/04/22,内科\n"
	sjis, _, err := transform.Bytes(japanese.ShiftJIS.NewEncoder(), []byte(text))
	require.NoError(t, err)
	b, err := (&Loader{Location: jst()}).Parse("カルテ.csv", sjis, "")
	require.NoError(t, err)
	require.Len(t, b.Karte, 2)
	k := b.Karte[0]
	assert.Equal(t, "タナカイチロウ", k.PatientNameNormalized)
	assert.Equal(t, "1980-01-02", k.BirthDate)
	assert.Equal(t, "2024-04-20", k.Date)
}

func TestDecodeBOMAndExplicitEncoding(t *testing.T) {
	in := append([]byte{0xEF, 0xBB, 0xBF}, []byte("日付")...)
	out, err := decode(in, EncodingShiftJIS)
	require.NoError(t, err)
	assert.Equal(t, "日付", string(out), "bom wins over the explicit encoding")
	_, err = ParseEncoding("latin1")
	assert.Error(t, err)
}

func TestParseListing_WideAndLong(t *testing.T) {
	wide := "日付,カテゴリ,0時,9時,10時,23時\n2024/05/01,発熱外来,0,2,\"1,000\",1\n2024/05/01,発熱外来,0,1,0,0\n2024/05/02,胃カメラ,,,3,\n"
	b, err := (&Loader{Location: jst()}).Parse("広告.csv", []byte(wide), "")
	require.NoError(t, err)
	require.Len(t, b.Listing, 2)
	assert.Equal(t, "発熱外来", b.Listing[0].Category)
	day := b.Listing[0].Days[0]
	assert.EqualValues(t, 3, day.HourlyCV[9], "rows for the same day merge")
	assert.EqualValues(t, 1000, day.HourlyCV[10])
	assert.EqualValues(t, 1, day.HourlyCV[23])

	long := "date\thour\tcategory\tcv\n2024-05-01\t9\tfever\t2\n2024-05-01\t25\tfever\t1\n2024-05-02\t9\tfever\t4\n"
	b, err = (&Loader{}).Parse("ads.tsv", []byte(long), records.KindListing)
	require.NoError(t, err)
	require.Len(t, b.Listing, 1)
	days := b.Listing[0].Days
	require.Len(t, days, 2)
	assert.Equal(t, "2024-05-01", days[0].Date)
	assert.EqualValues(t, 2, days[0].HourlyCV[9])
	assert.EqualValues(t, 4, days[1].Total())
}

func TestParseSurveys(t *testing.T) {
	csv := "回答日,種別,Google検索,Googleマップ,発熱Google検索,紹介,備考\n2024/05/01,外来,3,1,2,0,x\n2024/05/01,,1,,,,\n"
	l := &Loader{Location: jst(), SurveyType: "内視鏡"}
	b, err := l.Parse("アンケート.csv", []byte(csv), "")
	require.NoError(t, err)
	require.Len(t, b.Surveys, 2)
	e := b.Surveys[0]
	assert.Equal(t, records.SurveyOutpatient, e.FileType)
	assert.EqualValues(t, 3, e.Channels[records.ChannelGoogleSearch])
	assert.EqualValues(t, 2, e.Channels[records.ChannelFeverGoogleSearch])
	assert.EqualValues(t, 1, e.Channels[records.ChannelGoogleMap])
	assert.NotContains(t, e.Channels, records.ChannelReferral, "zero counters are not stored")
	assert.Equal(t, records.SurveyEndoscopy, b.Surveys[1].FileType, "fallback type")

	// file name decides when there is neither a column nor a flag
	b, err = (&Loader{}).Parse("survey_内視鏡.csv", []byte("date,googleSearch\n2024-05-01,1\n"), "")
	require.NoError(t, err)
	require.Len(t, b.Surveys, 1)
	assert.Equal(t, records.SurveyEndoscopy, b.Surveys[0].FileType)
}

func TestParseXLSX(t *testing.T) {
	content := buildXLSX(t, "予約", [][]string{
		{"予約日", "予約時間", "診療科", "患者名"},
		{"45413", "0.375", "内科", "山田"},
	})
	dir := t.TempDir()
	path := filepath.Join(dir, "予約.xlsx")
	require.NoError(t, os.WriteFile(path, content, 0o644))
	l := &Loader{Location: jst(), SheetName: "予約"}
	b, err := l.Load(path, "")
	require.NoError(t, err)
	require.Len(t, b.Reservations, 1)
	r := b.Reservations[0]
	assert.Equal(t, "2024-05-01", r.ReservationDate)
	assert.Equal(t, 9, r.ReservationHour)
	assert.Equal(t, "内科", r.Department)

	l.SheetName = "missing"
	_, err = l.Load(path, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "available: 予約")
}

func TestColumnIndex(t *testing.T) {
	cases := map[string]int{"A1": 0, "C12": 2, "AA3": 26, "": -1, "12": -1}
	for in, want := range cases {
		assert.Equal(t, want, columnIndex(in), in)
	}
	assert.Equal(t, "xl/worksheets/sheet1.xml", relPartPath("/xl/worksheets/sheet1.xml"))
	assert.Equal(t, "xl/worksheets/sheet2.xml", relPartPath("worksheets/sheet2.xml"))
}

// buildXLSX writes a one-sheet workbook; the first column uses shared strings
// for text cells and the rest inline strings.
func buildXLSX(t *testing.T, sheet string, rows [][]string) []byte {
	t.Helper()
	var shared []string
	var sb strings.Builder
	sb.WriteString(`<?xml version="1.0" encoding="UTF-8"?><worksheet xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main"><sheetData>`)
	for i, row := range rows {
		sb.WriteString(`<row r="` + strconv.Itoa(i+1) + `">`)
		for j, v := range row {
			ref := string(rune('A'+j)) + strconv.Itoa(i+1)
			switch {
			case isNumeric(v):
				sb.WriteString(`<c r="` + ref + `"><v>` + v + `</v></c>`)
			case j == 0:
				shared = append(shared, v)
				sb.WriteString(`<c r="` + ref + `" t="s"><v>` + strconv.Itoa(len(shared)-1) + `</v></c>`)
			default:
				sb.WriteString(`<c r="` + ref + `" t="inlineStr"><is><t>` + v + `</t></is></c>`)
			}
		}
		sb.WriteString(`</row>`)
	}
	sb.WriteString(`</sheetData></worksheet>`)

	var sst strings.Builder
	sst.WriteString(`<?xml version="1.0" encoding="UTF-8"?><sst xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main">`)
	for _, s := range shared {
		sst.WriteString(`<si><t>` + s + `</t></si>`)
	}
	sst.WriteString(`</sst>`)

	parts := map[string]string{
		"xl/workbook.xml":            `<?xml version="1.0" encoding="UTF-8"?><workbook xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main" xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships"><sheets><sheet name="` + sheet + `" sheetId="1" r:id="rId1"/></sheets></workbook>`,
		"xl/_rels/workbook.xml.rels": `<?xml version="1.0" encoding="UTF-8"?><Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships"><Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/worksheet" Target="/xl/worksheets/sheet1.xml"/></Relationships>`,
		"xl/worksheets/sheet1.xml":   sb.String(),
		"xl/sharedStrings.xml":       sst.String(),
	}
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range parts {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func isNumeric(s string) bool {
	_, ok := parseNumber(s)
	return ok && s != "" && strings.Trim(s, "0123456789.") == ""
}
