package common

import (
	"fmt"
	"strings"

	"github.com/ternarybob/banner"
)

// PrintBanner displays the startup banner.
func PrintBanner(cfg *Config, configFile, logFile string) {
	b := banner.New().
		SetStyle(banner.StyleDouble).
		SetBorderColor(banner.ColorCyan).
		SetTextColor(banner.ColorWhite).
		SetBold(true).
		SetWidth(80)

	fmt.Printf("\n")

	b.PrintTopLine()
	b.PrintCenteredText("EYE OF HORUS")
	b.PrintCenteredText("Meeting Transcript Triage Service")
	b.PrintSeparatorLine()

	b.PrintKeyValue("Version", GetVersion(), 15)
	b.PrintKeyValue("Build", GetBuild(), 15)
	b.PrintKeyValue("Environment", cfg.Server.Environment, 15)
	b.PrintKeyValue("Address", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port), 15)
	b.PrintKeyValue("Analysis", cfg.Gemini.AnalysisModel, 15)
	b.PrintKeyValue("Transcription", cfg.Gemini.TranscriptionModel, 15)
	b.PrintBottomLine()

	fmt.Printf("\n")

	fmt.Printf("📋 Configuration:\n")
	if configFile == "" {
		configFile = "(defaults + environment)"
	}
	fmt.Printf("   • Config File: %s\n", configFile)
	if logFile != "" {
		pattern := strings.Replace(logFile, ".log", ".{YYYY-MM-DDTHH-MM-SS}.log", 1)
		fmt.Printf("   • Log File: %s\n", pattern)
	}
	fmt.Printf("\n")

	printIntegrations(cfg)
	fmt.Printf("\n")
}

func printIntegrations(cfg *Config) {
	fmt.Printf("🎯 Integrations:\n")
	fmt.Printf("   • Reasoning backend: %s\n", configured(cfg.Gemini.APIKey != ""))
	fmt.Printf("   • Object storage:    %s\n", configured(cfg.S3.Bucket != ""))
	fmt.Printf("   • Drive recordings:  %s\n", configured(cfg.Drive.CredentialsFile != ""))
	fmt.Printf("   • API keys:          %s\n", configured(cfg.HasAPIKeys()))
}

func configured(ok bool) string {
	if ok {
		return "configured"
	}
	return "not configured"
}

// PrintShutdownBanner displays the shutdown banner.
func PrintShutdownBanner(serviceName string) {
	b := banner.New().
		SetStyle(banner.StyleDouble).
		SetBorderColor(banner.ColorCyan).
		SetTextColor(banner.ColorWhite).
		SetBold(true).
		SetWidth(42)

	b.PrintTopLine()
	b.PrintCenteredText("SHUTTING DOWN")
	b.PrintCenteredText(serviceName)
	b.PrintBottomLine()
	fmt.Println()
}
