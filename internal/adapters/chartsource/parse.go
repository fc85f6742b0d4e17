package chartsource

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"oidworker/internal/domain/options"
	"oidworker/pkg/errors"
)

// Point is one chart datum. Values arrive as numbers or as formatted strings.
type Point struct {
	X interface{} `json:"x"`
	Y interface{} `json:"y"`
}

// Payload is what the in-page script reads from the rendered chart
type Payload struct {
	Title           string   `json:"title"`
	Subtitle        string   `json:"subtitle"`
	FullText        string   `json:"fullText"`
	FrameTexts      []string `json:"frameTexts"`
	HTML            string   `json:"html"`
	OptionTexts     []string `json:"optionTexts"`
	SeriesName      string   `json:"seriesName"`
	ExpirationLabel string   `json:"expirationLabel"`
	Put             []Point  `json:"put"`
	Call            []Point  `json:"call"`
	Vol             []Point  `json:"vol"`
}

// Totals are the aggregates printed in the chart subtitle
type Totals struct {
	Put       float64
	Call      float64
	Vol       *float64
	VolChg    *float64
	FutureChg *float64
}

// OptionFields are the "Option Symbol:" and "Option Expiration:" page fields
type OptionFields struct {
	Symbol     string
	Expiration string
}

var (
	tagRe       = regexp.MustCompile(`<[^>]+>`)
	putRe       = regexp.MustCompile(`(?i)Put:\s*([\d,.-]+)`)
	callRe      = regexp.MustCompile(`(?i)Call:\s*([\d,.-]+)`)
	volRe       = regexp.MustCompile(`(?i)Vol:\s*([\d,.-]+)`)
	volChgRe    = regexp.MustCompile(`(?i)Vol Chg:\s*([\d,.-]+)`)
	futureChgRe = regexp.MustCompile(`(?i)Fut(?:ure)? Chg:\s*([\d,.-]+)`)

	isoDateRe  = regexp.MustCompile(`\b(\d{4}-\d{2}-\d{2})\b`)
	slashMDYRe = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})/(\d{4})\b`)
	dayMonRe   = regexp.MustCompile(`\b(\d{1,2})[-/ ]([A-Za-z]{3})[-/ ,]+(\d{2,4})\b`)
	monDayRe   = regexp.MustCompile(`\b([A-Za-z]{3})[ -]+(\d{1,2}),?[ -]+(\d{2,4})\b`)
	dteRe      = regexp.MustCompile(`(?i)\b(-?\d+(?:\.\d+)?)\s*DTE\b`)

	optionExpirationRe = regexp.MustCompile(`(?i)Option\s+Expiration:\s*([^\n\r]+)`)
	optionSymbolRe     = regexp.MustCompile(`(?i)Option\s+Symbol:\s*([A-Z0-9]+)`)

	expirationCodeRe = regexp.MustCompile(`(?i)\bEXPIRATION:\s*([A-Z0-9]+)\b`)
	dteTitleCodeRe   = regexp.MustCompile(`(?i)\)\s+([A-Z0-9]+)\s+\([-+]?\d+(?:\.\d+)?\s*DTE\)`)
	optionRowCodeRe  = regexp.MustCompile(`^\s*([A-Z0-9]+)\s+\d{1,2}\s+[A-Za-z]{3}\s+\d{4}\b`)
	rowDateRe        = regexp.MustCompile(`\d{1,2}\s+[A-Za-z]{3}\s+\d{4}`)
	lineDayMonRe     = regexp.MustCompile(`\b\d{1,2}[-/ ]+[A-Za-z]{3}[-/ ,]+\d{2,4}\b`)
	lineMonDayRe     = regexp.MustCompile(`\b[A-Za-z]{3}[ -]+\d{1,2},?[ -]+\d{2,4}\b`)
	lineSplitRe      = regexp.MustCompile(`\r?\n`)
)

var months = map[string]string{
	"jan": "01", "feb": "02", "mar": "03", "apr": "04", "may": "05", "jun": "06",
	"jul": "07", "aug": "08", "sep": "09", "oct": "10", "nov": "11", "dec": "12",
}

// ParseNumber accepts numbers and comma-grouped numeric strings. Anything else is nil.
func ParseNumber(v interface{}) *float64 {
	switch n := v.(type) {
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return nil
		}
		return &n
	case int:
		f := float64(n)
		return &f
	case string:
		clean := strings.TrimSpace(strings.ReplaceAll(n, ",", ""))
		if clean == "" {
			return nil
		}
		d, err := decimal.NewFromString(clean)
		if err != nil {
			return nil
		}
		f := d.InexactFloat64()
		return &f
	default:
		return nil
	}
}

func firstNumber(re *regexp.Regexp, s string) *float64 {
	m := re.FindStringSubmatch(s)
	if m == nil {
		return nil
	}
	return ParseNumber(m[1])
}

func orZero(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

// ParseTotals reads Put/Call/Vol/Vol Chg/Fut Chg from the subtitle markup
func ParseTotals(subtitle string) Totals {
	s := tagRe.ReplaceAllString(subtitle, " ")
	return Totals{
		Put:       orZero(firstNumber(putRe, s)),
		Call:      orZero(firstNumber(callRe, s)),
		Vol:       firstNumber(volRe, s),
		VolChg:    firstNumber(volChgRe, s),
		FutureChg: firstNumber(futureChgRe, s),
	}
}

func expandYear(y string) string {
	if len(y) == 2 {
		return "20" + y
	}
	return y
}

func pad2(s string) string {
	if len(s) == 1 {
		return "0" + s
	}
	return s
}

// ParseExpirationDate finds the first date in ISO, M/D/YYYY, DD-Mon-YY(YY) or Mon DD, YYYY form
// and returns it as YYYY-MM-DD, or "" when none matches.
func ParseExpirationDate(raw string) string {
	if m := isoDateRe.FindStringSubmatch(raw); m != nil {
		return m[1]
	}
	if m := slashMDYRe.FindStringSubmatch(raw); m != nil {
		return fmt.Sprintf("%s-%s-%s", m[3], pad2(m[1]), pad2(m[2]))
	}
	if m := dayMonRe.FindStringSubmatch(raw); m != nil {
		if mm, ok := months[strings.ToLower(m[2])]; ok {
			return fmt.Sprintf("%s-%s-%s", expandYear(m[3]), mm, pad2(m[1]))
		}
	}
	if m := monDayRe.FindStringSubmatch(raw); m != nil {
		if mm, ok := months[strings.ToLower(m[1])]; ok {
			return fmt.Sprintf("%s-%s-%s", expandYear(m[3]), mm, pad2(m[2]))
		}
	}
	return ""
}

// ParseDTE reads "N DTE"
func ParseDTE(raw string) *float64 {
	m := dteRe.FindStringSubmatch(raw)
	if m == nil {
		return nil
	}
	return ParseNumber(m[1])
}

func normalizeSpaces(s string) string {
	return strings.ReplaceAll(s, "\u00a0", " ")
}

// ParseOptionFields reads the option symbol and expiration fields from page text
func ParseOptionFields(text string) OptionFields {
	text = normalizeSpaces(text)
	var f OptionFields
	if m := optionExpirationRe.FindStringSubmatch(text); m != nil {
		f.Expiration = strings.TrimSpace(m[1])
	}
	if m := optionSymbolRe.FindStringSubmatch(text); m != nil {
		f.Symbol = strings.TrimSpace(m[1])
	}
	return f
}

func (f OptionFields) empty() bool {
	return f.Symbol == "" && f.Expiration == ""
}

// SelectedSeriesCode finds the series the page is showing
func SelectedSeriesCode(p *Payload) string {
	for _, source := range []string{p.Title, p.Subtitle, p.ExpirationLabel, p.FullText} {
		if source == "" {
			continue
		}
		if m := expirationCodeRe.FindStringSubmatch(source); m != nil {
			return strings.ToUpper(m[1])
		}
		if m := dteTitleCodeRe.FindStringSubmatch(source); m != nil {
			return strings.ToUpper(m[1])
		}
	}
	for _, row := range p.OptionTexts {
		if m := optionRowCodeRe.FindStringSubmatch(row); m != nil {
			return strings.ToUpper(m[1])
		}
	}
	return ""
}

type labeledDate struct {
	label string
	date  string
}

func wordRe(code string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(code) + `\b`)
}

func expirationFromOptions(code string, optionTexts []string, fallback string) labeledDate {
	if code != "" {
		prefix := regexp.MustCompile(`(?i)^\s*` + regexp.QuoteMeta(code) + `\b`)
		for _, row := range optionTexts {
			if prefix.MatchString(row) {
				return labeledDate{label: strings.TrimSpace(row), date: ParseExpirationDate(row)}
			}
		}

		anywhere := wordRe(code)
		for _, row := range optionTexts {
			if anywhere.MatchString(row) && rowDateRe.MatchString(row) {
				return labeledDate{label: strings.TrimSpace(row), date: ParseExpirationDate(row)}
			}
		}

		line := ""
		for _, row := range lineSplitRe.Split(fallback, -1) {
			row = strings.TrimSpace(row)
			if row != "" && anywhere.MatchString(row) && (lineDayMonRe.MatchString(row) || lineMonDayRe.MatchString(row)) {
				line = row
				break
			}
		}
		if line == "" {
			line = regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(code) + `\b[^\n]*`).FindString(fallback)
		}
		if line != "" {
			return labeledDate{label: strings.TrimSpace(line), date: ParseExpirationDate(line)}
		}
	}
	return labeledDate{date: ParseExpirationDate(fallback)}
}

func seriesDateFromText(code, text string) labeledDate {
	if code == "" || text == "" {
		return labeledDate{}
	}
	re := wordRe(code)
	for _, line := range lineSplitRe.Split(normalizeSpaces(text), -1) {
		line = strings.TrimSpace(line)
		if line == "" || !re.MatchString(line) {
			continue
		}
		if d := ParseExpirationDate(line); d != "" {
			return labeledDate{label: line, date: d}
		}
	}
	return labeledDate{}
}

// inferExpirationDate projects a positive DTE forward from now in the venue zone
func inferExpirationDate(dte *float64, now time.Time, loc *time.Location) string {
	if dte == nil || *dte <= 0 {
		return ""
	}
	minutes := math.Round(*dte * 24 * 60)
	return now.In(loc).Add(time.Duration(minutes) * time.Minute).Format(time.DateOnly)
}

func mergeBars(p *Payload) []options.Bar {
	type acc struct {
		put, call float64
		volSettle *float64
	}
	byStrike := make(map[float64]*acc)
	get := func(x interface{}) *acc {
		strike := ParseNumber(x)
		if strike == nil {
			return nil
		}
		a, ok := byStrike[*strike]
		if !ok {
			a = &acc{}
			byStrike[*strike] = a
		}
		return a
	}

	for _, pt := range p.Put {
		if a := get(pt.X); a != nil {
			a.put = orZero(ParseNumber(pt.Y))
		}
	}
	for _, pt := range p.Call {
		if a := get(pt.X); a != nil {
			a.call = orZero(ParseNumber(pt.Y))
		}
	}
	for _, pt := range p.Vol {
		a := get(pt.X)
		if a == nil {
			continue
		}
		a.volSettle = nil
		if v := ParseNumber(pt.Y); v != nil {
			rounded := decimal.NewFromFloat(*v).Mul(decimal.NewFromInt(100)).Round(2).InexactFloat64()
			a.volSettle = &rounded
		}
	}

	bars := make([]options.Bar, 0, len(byStrike))
	for strike, a := range byStrike {
		bars = append(bars, options.Bar{Strike: strike, Put: a.put, Call: a.call, VolSettle: a.volSettle})
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Strike < bars[j].Strike })
	return bars
}

// BuildOptions controls Build
type BuildOptions struct {
	View               options.ViewType
	TradeDate          string
	RequirePositiveDTE bool
	Now                time.Time
	VenueLocation      *time.Location
}

func formatDTE(dte *float64) string {
	if dte == nil {
		return "null"
	}
	return decimal.NewFromFloat(*dte).String()
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// Build turns a chart payload into an extracted view
func Build(p *Payload, opts BuildOptions) (*options.ExtractedView, error) {
	if p == nil {
		return nil, errors.New("Highcharts payload unavailable")
	}
	if len(p.Put) == 0 && len(p.Call) == 0 && len(p.Vol) == 0 {
		return nil, errors.Newf("highcharts_empty_series tab=%s trade_date=%s", opts.View, opts.TradeDate)
	}

	totals := ParseTotals(p.Subtitle)

	fields := OptionFields{}
	for _, text := range append([]string{p.FullText}, p.FrameTexts...) {
		if f := ParseOptionFields(text); !f.empty() {
			fields = f
			break
		}
	}
	fromHTML := ParseOptionFields(tagRe.ReplaceAllString(p.HTML, " "))
	fromText := ParseOptionFields(p.FullText)
	fields.Symbol = firstNonEmpty(fields.Symbol, fromHTML.Symbol, fromText.Symbol)
	fields.Expiration = firstNonEmpty(fields.Expiration, fromHTML.Expiration, fromText.Expiration)

	code := SelectedSeriesCode(p)
	expiration := expirationFromOptions(code, p.OptionTexts, p.FullText+"\n"+p.Title)

	dte := ParseDTE(fields.Expiration)
	if dte == nil || *dte == 0 {
		dte = ParseDTE(p.Title + " " + p.Subtitle + " " + p.FullText)
	}
	if opts.RequirePositiveDTE && (dte == nil || *dte <= 0) {
		return nil, errors.Newf("positive_dte_series_not_found trade_date=%s dte=%s mode=url_selected", opts.TradeDate, formatDTE(dte))
	}

	bars := mergeBars(p)
	if len(bars) == 0 {
		return nil, errors.Newf("no_strike_bars_parsed tab=%s trade_date=%s", opts.View, opts.TradeDate)
	}

	series := firstNonEmpty(code, strings.TrimSpace(p.SeriesName), fields.Symbol, "N/A")
	seriesDate := seriesDateFromText(series, p.FullText)

	loc := opts.VenueLocation
	if loc == nil {
		loc = time.UTC
	}

	return &options.ExtractedView{
		SeriesName:      series,
		ExpirationLabel: optional(firstNonEmpty(fields.Expiration, seriesDate.label, expiration.label, strings.TrimSpace(p.ExpirationLabel))),
		ExpirationDate: optional(firstNonEmpty(
			ParseExpirationDate(fields.Expiration),
			seriesDate.date,
			expiration.date,
			inferExpirationDate(dte, opts.Now, loc),
		)),
		DTE:       dte,
		PutTotal:  totals.Put,
		CallTotal: totals.Call,
		Vol:       totals.Vol,
		VolChg:    totals.VolChg,
		FutureChg: totals.FutureChg,
		Bars:      bars,
	}, nil
}
