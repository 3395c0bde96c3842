// Package components provides reusable UI components.
package components

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/j-veylop/llm-quota-governor/internal/logger"
	"github.com/j-veylop/llm-quota-governor/internal/ui/styles"
)

const (
	gradientLow  = "#ff6b6b"
	gradientHigh = "#51cf66"
	timeStart    = "#ffd93d"
	timeEnd      = "#6c5ce7"
)

// RenderGradientBar renders a bar filled to percent (0-100), red to green.
func RenderGradientBar(percent float64, width int) string {
	return renderBar(percent/100, width, gradientLow, gradientHigh)
}

// RenderTimeBarChars renders a bar filled to fraction (0-1), yellow to purple.
func RenderTimeBarChars(fraction float64, width int) string {
	return renderBar(fraction, width, timeStart, timeEnd)
}

func renderBar(fraction float64, width int, from, to string) string {
	if width < 1 {
		return ""
	}

	filled := min(max(int(float64(width)*fraction), 0), width)

	var b strings.Builder
	empty := lipgloss.NewStyle().Foreground(styles.Subtle)
	for i := range width {
		if i < filled {
			t := float64(i) / float64(max(1, width-1))
			color := interpolateColor(from, to, t)
			b.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color(color)).Render("█"))
		} else {
			b.WriteString(empty.Render("░"))
		}
	}
	return b.String()
}

// QuotaBar renders a labelled remaining-quota bar followed by the
// remaining percentage and the absolute numbers.
func QuotaBar(label string, remaining, limit int64, width int) string {
	percent := 0.0
	if limit > 0 {
		percent = float64(remaining) / float64(limit) * 100
	}
	if limit > 0 && remaining == 0 {
		return RateLimitedBar(label, width)
	}

	const (
		labelWidth   = 10
		percentWidth = 6
		countWidth   = 16
	)
	barWidth := max(width-labelWidth-percentWidth-countWidth-4, 5)

	labelStr := styles.ProgressLabelStyle.Width(labelWidth).Render(label)
	percentStr := styles.GetQuotaStyle(percent, false).
		Width(percentWidth).
		Align(lipgloss.Right).
		Render(fmt.Sprintf("%.0f%%", percent))
	countStr := lipgloss.NewStyle().
		Foreground(styles.TextSecondary).
		Width(countWidth).
		Align(lipgloss.Right).
		Render(fmt.Sprintf("%s/%s", FormatCount(remaining), FormatCount(limit)))

	return fmt.Sprintf("%s [%s] %s%s", labelStr, RenderGradientBar(percent, barWidth), percentStr, countStr)
}

// RateLimitedBar renders an exhausted resource.
func RateLimitedBar(label string, width int) string {
	const labelWidth = 10
	barWidth := max(width-labelWidth-26, 5)

	labelStr := styles.ProgressLabelStyle.Width(labelWidth).Render(label)
	emptyBar := lipgloss.NewStyle().
		Foreground(styles.Error).
		Render(strings.Repeat("░", barWidth))
	statusStr := styles.QuotaRateLimitedStyle.
		Width(14).
		Align(lipgloss.Right).
		Render("RATE LIMITED")

	return fmt.Sprintf("%s [%s] %s", labelStr, emptyBar, statusStr)
}

// CountdownBar renders how much of total has elapsed with remaining left,
// e.g. the time until a window resets or a backoff expires.
func CountdownBar(label string, remaining, total time.Duration, width int) string {
	fraction := 1.0
	if total > 0 {
		fraction = 1 - remaining.Seconds()/total.Seconds()
	}
	fraction = min(max(fraction, 0), 1)

	const (
		labelWidth = 10
		timeWidth  = 8
	)
	barWidth := max(width-labelWidth-timeWidth-4, 5)

	labelStr := styles.ProgressLabelStyle.Width(labelWidth).Render(label)
	timeStr := lipgloss.NewStyle().
		Foreground(styles.TextSecondary).
		Width(timeWidth).
		Align(lipgloss.Right).
		Render(FormatDuration(remaining))

	return fmt.Sprintf("%s [%s] %s", labelStr, RenderTimeBarChars(fraction, barWidth), timeStr)
}

// LoadingBar renders a shimmering placeholder bar for frame.
func LoadingBar(label string, width, frame int) string {
	const labelWidth = 10
	barWidth := max(width-labelWidth-4, 10)

	accent := styles.Requests
	if strings.Contains(strings.ToLower(label), "token") {
		accent = styles.Tokens
	}

	const cycle = 120
	t := float64(frame%cycle) / float64(cycle)
	p := t * 2
	if t >= 0.5 {
		p = (1 - t) * 2
	}
	eased := p * p * (3 - 2*p)
	shimmerPos := int(eased * float64(barWidth))

	var b strings.Builder
	for i := range barWidth {
		dist := shimmerPos - i
		if dist < 0 {
			dist = -dist
		}
		switch {
		case dist < 3:
			b.WriteString(lipgloss.NewStyle().Foreground(accent).Render("▓"))
		case dist < 5:
			b.WriteString(lipgloss.NewStyle().Foreground(styles.TextSecondary).Render("▒"))
		default:
			b.WriteString(lipgloss.NewStyle().Foreground(styles.BgLight).Render("░"))
		}
	}

	labelStr := styles.ProgressLabelStyle.Width(labelWidth).Render(label)
	return fmt.Sprintf("%s [%s]", labelStr, b.String())
}

// FormatCount shortens large counts, e.g. 125000 -> 125k.
func FormatCount(n int64) string {
	switch {
	case n >= 10_000_000:
		return fmt.Sprintf("%dM", n/1_000_000)
	case n >= 1_000_000:
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	case n >= 10_000:
		return fmt.Sprintf("%dk", n/1_000)
	default:
		return fmt.Sprintf("%d", n)
	}
}

// FormatDuration renders a countdown like "1h05m", "2m30s" or "12s".
func FormatDuration(d time.Duration) string {
	if d <= 0 {
		return "0s"
	}
	d = d.Round(time.Second)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	switch {
	case h > 0:
		return fmt.Sprintf("%dh%02dm", h, m)
	case m > 0:
		return fmt.Sprintf("%dm%02ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}

func interpolateColor(fromHex, toHex string, t float64) string {
	from := hexToRGB(fromHex)
	to := hexToRGB(toHex)

	r := int(float64(from[0]) + t*(float64(to[0])-float64(from[0])))
	g := int(float64(from[1]) + t*(float64(to[1])-float64(from[1])))
	b := int(float64(from[2]) + t*(float64(to[2])-float64(from[2])))

	return fmt.Sprintf("#%02x%02x%02x", r, g, b)
}

func hexToRGB(hex string) [3]int {
	hex = strings.TrimPrefix(hex, "#")
	var r, g, b int
	if _, err := fmt.Sscanf(hex, "%02x%02x%02x", &r, &g, &b); err != nil {
		logger.Error("failed to parse hex color", "hex", hex, "error", err)
		return [3]int{0, 0, 0}
	}
	return [3]int{r, g, b}
}
