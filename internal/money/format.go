package money

import (
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// Formatter renders amounts for humans using locale grouping rules.
type Formatter struct {
	printer *message.Printer
	point   string
	scale   int32
	symbol  string
}

// NewFormatter builds a Formatter for the locale tag. An unparseable tag falls back to English.
func NewFormatter(locale string, scale int32, symbol string) Formatter {
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.English
	}
	printer := message.NewPrinter(tag)
	return Formatter{printer: printer, point: decimalPoint(printer), scale: scale, symbol: symbol}
}

// Format renders a for display. Digits come from the exact decimal; only the grouping and
// the decimal point are localised. Display only; never feed the result back into arithmetic.
func (f Formatter) Format(a Amount) string {
	if f.printer == nil {
		f.printer = message.NewPrinter(language.English)
		f.point = "."
	}
	d := a.Decimal(f.scale)
	whole, frac, _ := strings.Cut(d.Abs().StringFixed(f.scale), ".")
	n, err := strconv.ParseUint(whole, 10, 64)
	if err != nil {
		return d.StringFixed(f.scale)
	}
	out := f.printer.Sprint(number.Decimal(n))
	if frac != "" {
		out += f.point + frac
	}
	if a.IsNegative() {
		out = "-" + out
	}
	if f.symbol == "" {
		return out
	}
	return f.symbol + " " + out
}

func decimalPoint(p *message.Printer) string {
	if point := strings.Trim(p.Sprint(number.Decimal(0.5, number.Scale(1))), "05"); point != "" {
		return point
	}
	return "."
}
