package bot

import (
	"context"
	"fmt"
	"runtime"
	"runtime/debug"
	"time"

	"eventbot/internal/transport/telegram/router"
	"eventbot/pkg/tgui"
)

func (b *Bot) cmdSysinfo(ctx context.Context, req *router.Request) error {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	mod := ""
	if bi, ok := debug.ReadBuildInfo(); ok {
		mod = bi.Main.Path + " " + bi.Main.Version
	}

	msg := tgui.New().Title("🧠", "sysinfo").
		KV("uptime", durRel(time.Since(b.started))).
		KV("go", runtime.Version()).
		KV("module", mod).
		KV("goroutines", runtime.NumGoroutine()).
		KV("mem_alloc", fmtBytes(m.Alloc)).
		KV("mem_sys", fmtBytes(m.Sys)).
		KV("active flows", b.sessions.Len())
	_, err := msg.Build().Send(ctx, req.Adapter, req.Chat)
	return err
}

func fmtBytes(n uint64) string {
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
	)
	switch {
	case n >= GB:
		return fmt.Sprintf("%.1fGB", float64(n)/GB)
	case n >= MB:
		return fmt.Sprintf("%.1fMB", float64(n)/MB)
	case n >= KB:
		return fmt.Sprintf("%.1fKB", float64(n)/KB)
	default:
		return fmt.Sprintf("%dB", n)
	}
}

func durRel(d time.Duration) string {
	if d < 0 {
		d = -d
	}
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	case d < 48*time.Hour:
		return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
	default:
		return fmt.Sprintf("%dd%dh", int(d.Hours())/24, int(d.Hours())%24)
	}
}
