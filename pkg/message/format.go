package message

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"pxwatch/pkg/trend"
)

const (
	// FlagshipPrecision is the default number of decimals for the flagship asset.
	FlagshipPrecision = 4
	// DefaultPrecision is the default number of decimals for every other asset.
	DefaultPrecision = 2

	changePrecision = 2
	lineSeparator   = "\n\n"
)

// Style selects the text markup of a rendered message.
type Style int

const (
	Plain Style = iota
	Markdown
)

// ParseStyle maps a config value onto a Style. Empty means Plain.
func ParseStyle(raw string) (Style, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "plain", "text":
		return Plain, nil
	case "markdown", "md":
		return Markdown, nil
	default:
		return Plain, fmt.Errorf("message: unknown style %q", raw)
	}
}

func (s Style) String() string {
	if s == Markdown {
		return "markdown"
	}
	return "plain"
}

// Line is one asset's entry in a notification.
type Line struct {
	Symbol    string
	Price     float64
	Precision int
	// Flagship lines carry Change, the percent change since the reference price.
	Flagship  bool
	Change    float64
	Indicator trend.Indicator
}

// Formatter renders lines into a notification body.
type Formatter struct {
	style Style
}

// NewFormatter returns a formatter for the given style.
func NewFormatter(style Style) *Formatter {
	return &Formatter{style: style}
}

// Style reports the formatter's markup style.
func (f *Formatter) Style() Style {
	return f.style
}

// Format renders one line per asset, separated by a blank line.
func (f *Formatter) Format(lines []Line) string {
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		out = append(out, f.formatLine(line))
	}
	return strings.Join(out, lineSeparator)
}

func (f *Formatter) formatLine(line Line) string {
	symbol := line.Symbol
	if f.style == Markdown {
		symbol = "*" + EscapeMarkdown(symbol) + "*"
	}
	price := FormatFixed(line.Price, line.Precision)
	if line.Flagship {
		return fmt.Sprintf("%s %s | %s%% %s", symbol, price, FormatFixed(line.Change, changePrecision), line.Indicator)
	}
	return fmt.Sprintf("%s %s %s", symbol, price, line.Indicator)
}

// FormatFixed renders v in fixed-point notation with exactly precision decimals.
// Negative precision is treated as zero; negative zero renders without a sign.
func FormatFixed(v float64, precision int) string {
	if precision < 0 {
		precision = 0
	}
	return decimal.NewFromFloat(v).StringFixed(int32(precision))
}

var markdownEscaper = strings.NewReplacer(
	"_", `\_`,
	"*", `\*`,
	"`", "\\`",
	"[", `\[`,
)

// EscapeMarkdown escapes the characters reserved by Telegram's legacy Markdown mode.
func EscapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}
