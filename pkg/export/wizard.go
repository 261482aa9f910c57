package export

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"golang.org/x/term"

	"github.com/vanderheijden86/bmo/pkg/model"
)

// WizardConfig holds the answers of the export wizard. Its zero fields are
// filled from flags before the wizard runs.
type WizardConfig struct {
	Module model.Module
	Format Format
	Dir    string
	// Upload is only offered when CanUpload is set.
	Upload    bool
	CanUpload bool
}

// isTerminal checks if stdin is connected to a terminal
func isTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// newForm creates a form with appropriate settings based on TTY detection
func newForm(groups ...*huh.Group) *huh.Form {
	form := huh.NewForm(groups...).WithTheme(huh.ThemeDracula())
	if !isTerminal() {
		form = form.WithAccessible(true)
	}
	return form
}

// RunWizard asks for module, format and destination. When stdin is not a
// terminal the defaults (usually from flags) are returned unchanged.
func RunWizard(out io.Writer, defaults WizardConfig) (WizardConfig, error) {
	if !isTerminal() {
		return defaults, nil
	}
	cfg := defaults
	if !cfg.Module.IsValid() {
		cfg.Module = model.ModuleDashboard
	}
	if cfg.Format == "" {
		cfg.Format = FormatJSON
	}

	fmt.Fprintln(out, "Export")
	fmt.Fprintln(out, "────────────────────────────")

	moduleName := string(cfg.Module)
	moduleOpts := make([]huh.Option[string], 0, len(model.Modules))
	for _, m := range model.Modules {
		moduleOpts = append(moduleOpts, huh.NewOption(m.Title(), string(m)))
	}
	formatName := string(cfg.Format)
	formatOpts := make([]huh.Option[string], 0, len(Formats))
	for _, f := range Formats {
		formatOpts = append(formatOpts, huh.NewOption(fmt.Sprintf("%s - %s", f, f.Description()), string(f)))
	}

	fields := []huh.Field{
		huh.NewSelect[string]().
			Title("Which module?").
			Options(moduleOpts...).
			Value(&moduleName),
		huh.NewSelect[string]().
			Title("Format").
			Options(formatOpts...).
			Value(&formatName),
		huh.NewInput().
			Title("Output directory").
			Value(&cfg.Dir).
			Validate(func(s string) error {
				if strings.TrimSpace(s) == "" {
					return errors.New("directory is required")
				}
				return nil
			}),
	}
	if cfg.CanUpload {
		fields = append(fields, huh.NewConfirm().
			Title("Upload to S3 afterwards?").
			Value(&cfg.Upload).
			Affirmative("Upload").
			Negative("Local only"))
	}

	if err := newForm(huh.NewGroup(fields...)).Run(); err != nil {
		return defaults, err
	}

	m, err := model.ParseModule(moduleName)
	if err != nil {
		return defaults, err
	}
	f, err := ParseFormat(formatName)
	if err != nil {
		return defaults, err
	}
	cfg.Module, cfg.Format = m, f
	fmt.Fprintln(out)
	return cfg, nil
}
