package style

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/gagliardetto/solana-go"

	"github.com/rovshanmuradov/candy-wrapper/internal/blockchain/solbc/transaction"
	"github.com/rovshanmuradov/candy-wrapper/internal/candy"
)

// FormatSOL renders lamports as SOL with 4 decimals.
func FormatSOL(lamports uint64) string {
	return fmt.Sprintf("%.4f SOL", float64(lamports)/float64(solana.LAMPORTS_PER_SOL))
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(MutedStyle).
		Headers(headers...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return TableHeaderStyle
			}
			return CellStyle
		})
}

// RenderMachines prints the withdrawable machines found for authority.
func RenderMachines(authority solana.PublicKey, machines []candy.Machine) string {
	var b strings.Builder
	b.WriteString(TitleStyle.Render("Candy machines of " + authority.String()))
	b.WriteString("\n")

	if len(machines) == 0 {
		b.WriteString(MutedStyle.Render("No withdrawable machines found"))
		return b.String()
	}

	t := newTable("#", "Machine", "Version", "Balance")
	for i, m := range machines {
		t.Row(fmt.Sprint(i+1), m.Address.String(), m.Version.String(), FormatSOL(m.Lamports))
	}
	b.WriteString(t.String())
	b.WriteString("\n")
	b.WriteString(SuccessStyle.Render("Total withdrawable: " + FormatSOL(candy.TotalLamports(machines))))
	return b.String()
}

// RenderBatch prints the per-transaction outcome of a batch.
func RenderBatch(result *transaction.BatchResult) string {
	t := newTable("#", "Status", "Detail")
	rows := make([][]string, result.Attempted)
	for _, r := range result.Results {
		rows[r.Index] = []string{fmt.Sprint(r.Index), SuccessStyle.Render("confirmed"), r.Signature.String()}
	}
	for _, f := range result.Failures {
		rows[f.Index] = []string{fmt.Sprint(f.Index), ErrorStyle.Render("failed"), f.Err.Error()}
	}
	for i, row := range rows {
		if row == nil {
			row = []string{fmt.Sprint(i), WarningStyle.Render("skipped"), ""}
		}
		t.Row(row...)
	}

	summary := fmt.Sprintf("%d/%d confirmed, expiry height %d", len(result.Results), result.Attempted, result.ExpiryHeight)
	style := SuccessStyle
	if !result.Succeeded() {
		style = ErrorStyle
	}
	return t.String() + "\n" + style.Render(summary)
}

// RenderLeaders prints the TPU sockets of upcoming leaders.
func RenderLeaders(slot uint64, sockets []string) string {
	var b strings.Builder
	b.WriteString(TitleStyle.Render(fmt.Sprintf("Upcoming leaders from slot %d", slot)))
	b.WriteString("\n")
	if len(sockets) == 0 {
		b.WriteString(WarningStyle.Render("No leader TPU sockets known"))
		return b.String()
	}
	t := newTable("#", "TPU socket")
	for i, s := range sockets {
		t.Row(fmt.Sprint(i+1), s)
	}
	b.WriteString(t.String())
	return b.String()
}

// RenderStatus prints the state of one signature.
func RenderStatus(status *transaction.Status) string {
	style := WarningStyle
	switch status.Status {
	case "confirmed", "finalized":
		style = SuccessStyle
	case "failed":
		style = ErrorStyle
	}
	line := fmt.Sprintf("%s  %s  slot %d", status.Signature, style.Render(status.Status), status.Slot)
	if status.Error != "" {
		line += "\n" + ErrorStyle.Render(status.Error)
	}
	return line
}
