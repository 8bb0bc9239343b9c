package commands

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/net"
)

const cpuSampleWindow = 500 * time.Millisecond

// SystemStats holds what /stats reports.
type SystemStats struct {
	Hostname string
	Platform string
	Uptime   time.Duration

	CPUModel   string
	CPUThreads int
	CPUUsage   float64

	TotalMemory   uint64
	UsedMemory    uint64
	MemoryPercent float64

	DiskTotal   uint64
	DiskUsed    uint64
	DiskPercent float64

	NetworkSent uint64
	NetworkRecv uint64

	GoVersion  string
	GoRoutines int
	HeapAlloc  uint64
	NumGC      uint32

	BotUptime time.Duration
	Guilds    int
	Latency   time.Duration
}

// handleStats shows host and bot statistics
func (h *Handler) handleStats(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate, _ options) error {
	// Sampling CPU usage takes longer than the initial response deadline.
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	})
	if err != nil {
		return err
	}

	stats := gatherSystemStats(ctx)
	stats.BotUptime = time.Since(h.startedAt)
	stats.Latency = s.HeartbeatLatency()
	if s.State != nil {
		stats.Guilds = len(s.State.Guilds)
	}

	_, err = s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{
		Embeds: &[]*discordgo.MessageEmbed{statsEmbed(stats)},
	})
	return err
}

// gatherSystemStats collects host statistics. Sources that fail are left zero.
func gatherSystemStats(ctx context.Context) *SystemStats {
	stats := &SystemStats{
		CPUThreads: runtime.NumCPU(),
		GoVersion:  runtime.Version(),
		GoRoutines: runtime.NumGoroutine(),
	}

	if hostInfo, err := host.InfoWithContext(ctx); err == nil {
		stats.Hostname = hostInfo.Hostname
		stats.Platform = strings.TrimSpace(hostInfo.Platform + " " + hostInfo.PlatformVersion)
		stats.Uptime = time.Duration(hostInfo.Uptime) * time.Second
	}

	if cpuInfo, err := cpu.InfoWithContext(ctx); err == nil && len(cpuInfo) > 0 {
		stats.CPUModel = cpuInfo[0].ModelName
	}
	if pct, err := cpu.PercentWithContext(ctx, cpuSampleWindow, false); err == nil && len(pct) > 0 {
		stats.CPUUsage = pct[0]
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		stats.TotalMemory = vm.Total
		stats.UsedMemory = vm.Used
		stats.MemoryPercent = vm.UsedPercent
	}

	if du, err := disk.UsageWithContext(ctx, "/"); err == nil {
		stats.DiskTotal = du.Total
		stats.DiskUsed = du.Used
		stats.DiskPercent = du.UsedPercent
	}

	if counters, err := net.IOCountersWithContext(ctx, false); err == nil && len(counters) > 0 {
		stats.NetworkSent = counters[0].BytesSent
		stats.NetworkRecv = counters[0].BytesRecv
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	stats.HeapAlloc = ms.HeapAlloc
	stats.NumGC = ms.NumGC

	return stats
}

func statsEmbed(stats *SystemStats) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title: "📊 System Statistics",
		Color: embedColor,
		Fields: []*discordgo.MessageEmbedField{
			{
				Name: "🖥️ Host Information",
				Value: fmt.Sprintf("**Hostname:** `%s`\n**Platform:** `%s`\n**Uptime:** `%s`",
					orUnknown(stats.Hostname), orUnknown(stats.Platform), formatDuration(stats.Uptime)),
			},
			{
				Name: "📈 CPU Usage",
				Value: fmt.Sprintf("%s `%.1f%%`\n**Model:** `%s`\n**Threads:** `%d`",
					createProgressBar(stats.CPUUsage, 100), stats.CPUUsage, orUnknown(stats.CPUModel), stats.CPUThreads),
			},
			{
				Name: "🗂️ RAM Usage",
				Value: fmt.Sprintf("%s `%.1f%%`\n`%s / %s`",
					createProgressBar(stats.MemoryPercent, 100), stats.MemoryPercent, formatBytes(stats.UsedMemory), formatBytes(stats.TotalMemory)),
				Inline: true,
			},
			{
				Name: "📀 Disk Usage",
				Value: fmt.Sprintf("%s `%.1f%%`\n`%s / %s`",
					createProgressBar(stats.DiskPercent, 100), stats.DiskPercent, formatBytes(stats.DiskUsed), formatBytes(stats.DiskTotal)),
				Inline: true,
			},
			{
				Name:  "🌐 Network I/O",
				Value: fmt.Sprintf("**Sent:** `%s`\n**Received:** `%s`", formatBytes(stats.NetworkSent), formatBytes(stats.NetworkRecv)),
			},
			{
				Name: "🚀 Bot Status",
				Value: fmt.Sprintf("**Uptime:** `%s`\n**Guilds:** `%d`\n**Gateway:** `%dms`",
					formatDuration(stats.BotUptime), stats.Guilds, stats.Latency.Milliseconds()),
				Inline: true,
			},
			{
				Name: "🔷 Go Runtime",
				Value: fmt.Sprintf("**Version:** `%s`\n**Goroutines:** `%d`\n**Heap:** `%s`\n**GC Cycles:** `%d`",
					stats.GoVersion, stats.GoRoutines, formatBytes(stats.HeapAlloc), stats.NumGC),
				Inline: true,
			},
		},
		Footer:    &discordgo.MessageEmbedFooter{Text: footerText},
		Timestamp: time.Now().Format(time.RFC3339),
	}
}

func formatBytes(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := uint64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.2f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

func formatDuration(d time.Duration) string {
	days := int(d.Hours() / 24)
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}

func createProgressBar(value, total float64) string {
	filled := 0
	if total > 0 {
		filled = min(max(int(value/total*10), 0), 10)
	}
	return "`" + strings.Repeat("█", filled) + strings.Repeat("░", 10-filled) + "`"
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
