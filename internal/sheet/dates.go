package sheet

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

var (
	isoDate      = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})`)
	dayFirstDate = regexp.MustCompile(`^(\d{1,2})[/.\-](\d{1,2})[/.\-](\d{4})`)
	yearFirst    = regexp.MustCompile(`^(\d{4})[/.\-](\d{1,2})[/.\-](\d{1,2})`)
	excelSerial  = regexp.MustCompile(`^\d+(\.\d+)?$`)

	timeLayouts = []string{
		time.RFC3339,
		time.RFC3339Nano,
		"Jan 2, 2006",
		"2 Jan 2006",
	}
)

const isoLayout = "2006-01-02"

// NormalizeDate converts a DATA cell to YYYY-MM-DD. It accepts ISO dates,
// day-first dates with / - or . separators, year-first dates and Excel
// serial numbers. Unparseable values yield "".
func NormalizeDate(raw string) string {
	value := strings.TrimSpace(raw)
	if value == "" {
		return ""
	}

	if m := isoDate.FindStringSubmatch(value); m != nil {
		return buildDate(m[1], m[2], m[3])
	}
	if m := dayFirstDate.FindStringSubmatch(value); m != nil {
		return buildDate(m[3], m[2], m[1])
	}
	if m := yearFirst.FindStringSubmatch(value); m != nil {
		return buildDate(m[1], m[2], m[3])
	}
	if excelSerial.MatchString(value) {
		serial, err := strconv.ParseFloat(value, 64)
		if err != nil || serial <= 0 {
			return ""
		}
		ts, err := excelize.ExcelDateToTime(serial, false)
		if err != nil {
			return ""
		}
		return ts.Format(isoLayout)
	}
	for _, layout := range timeLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts.Format(isoLayout)
		}
	}
	return ""
}

func buildDate(yearRaw, monthRaw, dayRaw string) string {
	year, errY := strconv.Atoi(yearRaw)
	month, errM := strconv.Atoi(monthRaw)
	day, errD := strconv.Atoi(dayRaw)
	if errY != nil || errM != nil || errD != nil {
		return ""
	}
	ts := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	// time.Date normalizes out-of-range values; reject them instead.
	if ts.Year() != year || int(ts.Month()) != month || ts.Day() != day {
		return ""
	}
	return ts.Format(isoLayout)
}
