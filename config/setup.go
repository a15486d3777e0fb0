package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"
)

// telegramAPI is overridden in tests.
var telegramAPI = "https://api.telegram.org"

// envFileOrder is the order keys are written to config.env.
var envFileOrder = []string{
	"LLM_PROVIDER",
	"GEMINI_API_KEY",
	"ANTHROPIC_API_KEY",
	"OPENAI_API_KEY",
	"BOT_TOKEN",
}

// EnvFilePath returns the path of config.env, creating its directory.
func EnvFilePath() (string, error) {
	configBase, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config directory: %w", err)
	}
	dir := filepath.Join(configBase, AppName)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}
	return filepath.Join(dir, EnvFileName), nil
}

// IsInteractiveTerminal reports whether stdin and stdout are both TTYs.
func IsInteractiveTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

// RunSetupWizard asks for the provider and its API key, plus an optional
// Telegram bot token, and saves them to config.env. It returns false when
// the user aborts or saving fails.
func RunSetupWizard() bool {
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("99")).
		MarginBottom(1)

	fmt.Println()
	fmt.Println(titleStyle.Render("itemcheck setup"))
	fmt.Println()

	provider := ProviderGemini
	var apiKey, botToken string

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Model provider").
				Options(
					huh.NewOption("Google Gemini", ProviderGemini),
					huh.NewOption("Anthropic Claude", ProviderAnthropic),
					huh.NewOption("OpenAI", ProviderOpenAI),
				).
				Value(&provider),
		),
		huh.NewGroup(
			huh.NewInput().
				TitleFunc(func() string { return apiKeyVar(provider) }, &provider).
				EchoMode(huh.EchoModePassword).
				Value(&apiKey).
				Validate(func(s string) error {
					if s == "" {
						return errors.New("API key is required")
					}
					return nil
				}),
			huh.NewInput().
				Title("Telegram bot token (optional)").
				Description("Message @BotFather on Telegram, /newbot, copy the token. Leave empty to run the HTTP API only.").
				Value(&botToken).
				Validate(func(s string) error {
					if s == "" {
						return nil
					}
					return validateTelegramToken(s)
				}),
		),
	).WithTheme(huh.ThemeBase16())

	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			fmt.Println("\nSetup cancelled.")
			return false
		}
		fmt.Printf("\nError: %v\n", err)
		return false
	}

	values := map[string]string{
		"LLM_PROVIDER":      provider,
		apiKeyVar(provider): apiKey,
	}
	if botToken != "" {
		values["BOT_TOKEN"] = botToken
	}

	path, err := WriteEnvFile(values)
	if err != nil {
		fmt.Printf("\nError saving configuration: %v\n", err)
		return false
	}
	for k, v := range values {
		os.Setenv(k, v)
	}

	fmt.Println()
	fmt.Println(lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true).Render("Configuration saved"))
	fmt.Println(lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Render("  " + path))
	fmt.Println()
	return true
}

func apiKeyVar(provider string) string {
	switch provider {
	case ProviderAnthropic:
		return "ANTHROPIC_API_KEY"
	case ProviderOpenAI:
		return "OPENAI_API_KEY"
	default:
		return "GEMINI_API_KEY"
	}
}

// validateTelegramToken checks the token against getMe.
func validateTelegramToken(token string) error {
	var result struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
	}
	res, err := resty.New().
		SetTimeout(10*time.Second).
		R().
		SetResult(&result).
		SetError(&result).
		Get(fmt.Sprintf("%s/bot%s/getMe", telegramAPI, token))
	if err != nil {
		return errors.New("connection failed, check your internet")
	}
	if !result.OK {
		if result.Description != "" {
			return errors.New(result.Description)
		}
		return fmt.Errorf("token rejected by Telegram (HTTP %d)", res.StatusCode())
	}
	return nil
}

// WriteEnvFile writes values to config.env with owner-only permissions and
// returns its path. Values are quoted.
func WriteEnvFile(values map[string]string) (string, error) {
	path, err := EnvFilePath()
	if err != nil {
		return "", err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return "", fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	for _, key := range envFileOrder {
		val, ok := values[key]
		if !ok {
			continue
		}
		if _, err := fmt.Fprintf(f, "%s=%q\n", key, val); err != nil {
			return "", fmt.Errorf("failed to write %s: %w", key, err)
		}
	}
	return path, nil
}

// WaitOnWindows keeps the console window open so errors stay readable.
func WaitOnWindows() {
	if runtime.GOOS == "windows" {
		fmt.Println()
		fmt.Println("Press Enter to exit...")
		fmt.Scanln()
	}
}

// FatalWithWait logs msg, waits on Windows and exits.
func FatalWithWait(format string, args ...any) {
	log.Error().Msgf(format, args...)
	WaitOnWindows()
	os.Exit(1)
}
