package cli

import (
	"fmt"
	"strings"

	"github.com/zeromicro/go-zero/core/logx"

	"pxwatch/internal/config"
	"pxwatch/pkg/confkit"
)

// ConfigSummaryLines returns human readable lines describing the loaded app config.
func ConfigSummaryLines(cfg *config.Config) []string {
	if cfg == nil {
		return []string{"Configuration: <nil>"}
	}

	lines := []string{
		fmt.Sprintf("Config file: %s", cfg.MainPath()),
		fmt.Sprintf("Schedule: %s", scheduleLine(cfg.Schedule)),
		fmt.Sprintf("Backoff / fetch timeout: %s / %s", cfg.Schedule.Backoff, cfg.Schedule.FetchTimeout),
		fmt.Sprintf("Message style: %s", cfg.MessageStyle()),
		fmt.Sprintf("Redis price mirror: %s", presence(cfg.RedisEnabled())),
		fmt.Sprintf("Metrics: %s", presence(strings.TrimSpace(cfg.Metrics.Addr) != "")),
		sectionLine("Market config", cfg.Market),
		sectionLine("Notifier config", cfg.Notifier),
	}
	if cfg.Notifier.Value != nil {
		lines = append(lines, fmt.Sprintf("Notifier: %s", cfg.Notifier.Value.Type))
	}
	for _, a := range cfg.Assets {
		line := fmt.Sprintf("Asset %s: id=%s provider=%s precision=%d", cfg.DisplaySymbol(a), a.ID, cfg.ProviderFor(a), a.Precision)
		if a.Flagship {
			line += fmt.Sprintf(" flagship reference=%v", a.ReferencePrice)
		}
		lines = append(lines, line)
	}
	return lines
}

// LogConfigSummary emits the configuration summary using logx.
func LogConfigSummary(cfg *config.Config) {
	lines := ConfigSummaryLines(cfg)
	if len(lines) == 0 {
		return
	}
	logx.Info("configuration summary")
	for _, line := range lines {
		logx.Infof("config • %s", line)
	}
}

func scheduleLine(s config.ScheduleConf) string {
	if s.Mode == config.ScheduleInterval {
		return fmt.Sprintf("every %s", s.Interval)
	}
	return fmt.Sprintf("each minute at +%s", s.Offset)
}

func presence(ok bool) string {
	if ok {
		return "configured"
	}
	return "not configured"
}

func sectionLine[T any](name string, section confkit.Section[T]) string {
	switch {
	case strings.TrimSpace(section.File) != "":
		return fmt.Sprintf("%s: %s", name, section.File)
	case section.Value != nil:
		return fmt.Sprintf("%s: inline", name)
	default:
		return fmt.Sprintf("%s: not configured", name)
	}
}
