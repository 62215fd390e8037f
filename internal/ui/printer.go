package ui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aldervik/lumen/internal/registry"
)

// Printer writes styled CLI output. Commands render through it so tests
// can capture output with a buffer.
type Printer struct {
	out   io.Writer
	width int
}

// NewPrinter creates a Printer writing to w, or os.Stdout when w is nil.
func NewPrinter(w io.Writer) *Printer {
	if w == nil {
		w = os.Stdout
	}
	return &Printer{out: w, width: GetTerminalWidth()}
}

// Width returns the terminal width used by this printer.
func (p *Printer) Width() int {
	return p.width
}

// Print writes content to the output.
func (p *Printer) Print(content string) {
	_, _ = fmt.Fprint(p.out, content)
}

// Println writes content with a newline.
func (p *Printer) Println(content string) {
	_, _ = fmt.Fprintln(p.out, content)
}

// Newline prints an empty line.
func (p *Printer) Newline() {
	_, _ = fmt.Fprintln(p.out)
}

// PrintSuccess prints a success result box.
func (p *Printer) PrintSuccess(title string, details [][2]string) {
	p.Print(RenderSuccessBox(title, details, p.width))
	p.Newline()
}

// PrintError prints an error result box with troubleshooting tips.
func (p *Printer) PrintError(title string, err error, troubleshooting []string) {
	p.Print(RenderErrorBox(title, err, troubleshooting, p.width))
	p.Newline()
}

// PrintDeviceList prints the saved-device table.
func (p *Printer) PrintDeviceList(records []*registry.Record) {
	p.Print(RenderDeviceList(records))
}

// RenderSuccessBox renders a success result box. Details render in order.
func RenderSuccessBox(title string, details [][2]string, width int) string {
	var lines []string

	lines = append(lines, "")
	lines = append(lines, SuccessTitleStyle.Render("   "+SuccessMarker+"  "+title))
	lines = append(lines, "")

	for _, kv := range details {
		keyStyled := KeyStyle.Render("   " + kv[0] + ":")
		valueStyled := ValueStyle.Render(kv[1])
		lines = append(lines, keyStyled+" "+valueStyled)
	}
	lines = append(lines, "")

	return SuccessBoxStyle(width).Render(strings.Join(lines, "\n"))
}

// RenderErrorBox renders an error result box with troubleshooting tips.
func RenderErrorBox(title string, err error, troubleshooting []string, width int) string {
	var lines []string

	lines = append(lines, "")
	lines = append(lines, ErrorTitleStyle.Render("   "+FailureMarker+"  "+title))
	lines = append(lines, "")

	if err != nil {
		lines = append(lines, ErrorMessageStyle.Render("   "+err.Error()))
		lines = append(lines, "")
	}

	if len(troubleshooting) > 0 {
		var tips []string
		tips = append(tips, HintStyle.Render("Troubleshooting:"))
		tips = append(tips, "")
		for _, tip := range troubleshooting {
			tips = append(tips, HintStyle.Render("  • "+tip))
		}
		lines = append(lines, TroubleshootingBoxStyle(width).Render(strings.Join(tips, "\n")))
		lines = append(lines, "")
	}

	return ErrorBoxStyle(width).Render(strings.Join(lines, "\n"))
}

// RenderDeviceList renders the saved-device table for `lumen devices`.
func RenderDeviceList(records []*registry.Record) string {
	if len(records) == 0 {
		return HintStyle.Render("No paired lights. Run `lumen provision` to add one.") + "\n"
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Paired lights"))
	b.WriteString("\n\n")
	for _, rec := range records {
		line := fmt.Sprintf("  %-8s %-22s %-15s %s", rec.ID, rec.Name, rec.IP, rec.FirmwareVersion)
		if rec.OTAInProgress {
			line += "  " + UpdatingStyle.Render("(updating)")
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

// RenderStatusLine renders one probe observation for `lumen watch`.
func RenderStatusLine(id string, online, lightOn bool, version string) string {
	if !online {
		return fmt.Sprintf("  %s %s  %s", OfflineStyle.Render(OfflineMarker), id, OfflineStyle.Render("offline"))
	}
	light := "off"
	if lightOn {
		light = "on"
	}
	line := fmt.Sprintf("  %s %s  light %s", OnlineStyle.Render(OnlineMarker), id, light)
	if version != "" {
		line += "  " + NoteStyle.Render("fw "+version)
	}
	return line
}
