// Package cli provides scan configuration commands.
package cli

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/fenrik/clickseq/internal/models"
)

func init() {
	rootCmd.AddCommand(scansCmd)
	scansCmd.AddCommand(scansListCmd)
	scansCmd.AddCommand(scansShowCmd)
}

var scansCmd = &cobra.Command{
	Use:   "scans",
	Short: "Manage scan configurations",
	Long:  "List and inspect the scan configurations scan steps reference.",
}

var scansListCmd = &cobra.Command{
	Use:   "list",
	Short: "List scan configurations",
	RunE: func(cmd *cobra.Command, args []string) error {
		lib, err := openLibrary()
		if err != nil {
			return err
		}

		if IsJSONOutput() || IsJSONLOutput() {
			return WriteOutput(os.Stdout, lib.Scans)
		}

		if len(lib.Scans) == 0 {
			fmt.Fprintln(os.Stdout, "No scan configurations found.")
			return nil
		}

		rows := make([][]string, 0, len(lib.Scans))
		for _, scanCfg := range lib.Scans {
			rows = append(rows, []string{
				scanCfg.Name,
				string(scanCfg.Mode),
				formatYesNo(scanCfg.Reverse),
				strconv.Itoa(len(scanCfg.Slots)),
				strconv.Itoa(len(scanCfg.Items)),
			})
		}
		return writeTable(os.Stdout, []string{"NAME", "MODE", "REVERSE", "SLOTS", "ITEMS"}, rows)
	},
}

var scansShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Show a scan configuration",
	Long:  "Show a scan's slots and item profiles with their resolved defaults.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		lib, err := openLibrary()
		if err != nil {
			return err
		}

		scanCfg, err := lib.Scan(args[0])
		if err != nil {
			return err
		}

		if IsJSONOutput() || IsJSONLOutput() {
			return WriteOutput(os.Stdout, scanCfg)
		}

		fmt.Fprintf(os.Stdout, "%s (mode %s, reverse %s)\n\n", scanCfg.Name, scanCfg.Mode, formatYesNo(scanCfg.Reverse))

		slotRows := make([][]string, 0, len(scanCfg.Slots))
		for _, slot := range scanCfg.Slots {
			slotRows = append(slotRows, []string{
				slot.ID,
				formatRegion(slot.Region),
				strconv.Itoa(slot.Index),
				formatClickTarget(slot),
			})
		}
		if err := writeTable(os.Stdout, []string{"SLOT", "REGION", "INDEX", "CLICK"}, slotRows); err != nil {
			return err
		}
		fmt.Fprintln(os.Stdout)

		itemRows := make([][]string, 0, len(scanCfg.Items))
		for _, item := range scanCfg.Items {
			itemRows = append(itemRows, []string{
				item.Name,
				orDash(item.Category),
				strconv.Itoa(item.Priority),
				formatMarkerPolicy(item),
				orDash(item.Template),
				formatConfirm(item),
			})
		}
		return writeTable(os.Stdout, []string{"ITEM", "CATEGORY", "PRIORITY", "MARKERS", "TEMPLATE", "CONFIRM"}, itemRows)
	},
}

func formatRegion(r models.Region) string {
	return fmt.Sprintf("%d,%d %dx%d", r.X, r.Y, r.W, r.H)
}

func formatClickTarget(slot models.ItemSlot) string {
	target := slot.ClickTarget()
	if slot.Click == nil {
		return fmt.Sprintf("center (%d,%d)", target.X, target.Y)
	}
	return fmt.Sprintf("%d,%d", target.X, target.Y)
}

func formatMarkerPolicy(item models.ItemProfile) string {
	if len(item.Markers) == 0 {
		return "-"
	}
	if item.RequireAllMarkers {
		return fmt.Sprintf("all of %d", len(item.Markers))
	}
	return fmt.Sprintf("%d of %d", item.MinMarkers, len(item.Markers))
}

func formatConfirm(item models.ItemProfile) string {
	if item.ConfirmOffset == nil {
		return "-"
	}
	return fmt.Sprintf("%+d,%+d after %s", item.ConfirmOffset.DX, item.ConfirmOffset.DY, item.ConfirmDelay)
}
