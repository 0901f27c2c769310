// Package cli provides point management commands.
package cli

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fenrik/clickseq/internal/input"
)

var (
	pointsAddAt   string
	pointsAddHere bool
)

func init() {
	rootCmd.AddCommand(pointsCmd)
	pointsCmd.AddCommand(pointsListCmd)
	pointsCmd.AddCommand(pointsAddCmd)
	pointsCmd.AddCommand(pointsRenameCmd)
	pointsCmd.AddCommand(pointsRemoveCmd)

	pointsAddCmd.Flags().StringVar(&pointsAddAt, "at", "", "screen coordinates as x,y")
	pointsAddCmd.Flags().BoolVar(&pointsAddHere, "here", false, "use the current pointer location")
}

var pointsCmd = &cobra.Command{
	Use:   "points",
	Short: "Manage named points",
	Long:  "List, add, rename, and remove the named screen points steps click on.",
}

var pointsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List points",
	RunE: func(cmd *cobra.Command, args []string) error {
		lib, err := openLibrary()
		if err != nil {
			return err
		}

		if IsJSONOutput() || IsJSONLOutput() {
			return WriteOutput(os.Stdout, lib.Points)
		}

		if len(lib.Points) == 0 {
			fmt.Fprintln(os.Stdout, "No points defined. Add one with `clickseq points add <name> --at x,y`.")
			return nil
		}

		rows := make([][]string, 0, len(lib.Points))
		for _, point := range lib.Points {
			rows = append(rows, []string{
				point.ID,
				orDash(point.Name),
				strconv.Itoa(point.X),
				strconv.Itoa(point.Y),
			})
		}
		return writeTable(os.Stdout, []string{"ID", "NAME", "X", "Y"}, rows)
	},
}

var pointsAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add a point",
	Long:  "Add a named point at explicit coordinates (--at x,y) or at the current pointer (--here).",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()

		var x, y int
		switch {
		case pointsAddHere:
			robot := input.NewRobot(cfg.ClickMoveDelay, cfg.PostClickDelay)
			x, y = robot.PointerLocation()
		case pointsAddAt != "":
			var err error
			x, y, err = parseCoordinates(pointsAddAt)
			if err != nil {
				return err
			}
		default:
			return fmt.Errorf("either --at x,y or --here is required")
		}

		lib, err := openLibrary()
		if err != nil {
			return err
		}

		point := lib.AddPoint(args[0], x, y)
		if err := lib.SavePoints(); err != nil {
			return fmt.Errorf("save points: %w", err)
		}

		if IsJSONOutput() || IsJSONLOutput() {
			return WriteOutput(os.Stdout, point)
		}

		fmt.Fprintf(os.Stdout, "Added point %s (%q) at %d,%d\n", point.ID, point.Name, point.X, point.Y)
		return nil
	},
}

var pointsRenameCmd = &cobra.Command{
	Use:   "rename <id> <name>",
	Short: "Rename a point",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		lib, err := openLibrary()
		if err != nil {
			return err
		}

		if err := lib.RenamePoint(args[0], args[1]); err != nil {
			return err
		}
		if err := lib.SavePoints(); err != nil {
			return fmt.Errorf("save points: %w", err)
		}

		if IsJSONOutput() || IsJSONLOutput() {
			point, err := lib.Point(args[0])
			if err != nil {
				return err
			}
			return WriteOutput(os.Stdout, point)
		}

		fmt.Fprintf(os.Stdout, "Renamed point %s to %q\n", args[0], args[1])
		return nil
	},
}

var pointsRemoveCmd = &cobra.Command{
	Use:     "rm <id>",
	Aliases: []string{"remove"},
	Short:   "Remove a point",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		lib, err := openLibrary()
		if err != nil {
			return err
		}

		if err := lib.RemovePoint(args[0]); err != nil {
			return err
		}
		if err := lib.SavePoints(); err != nil {
			return fmt.Errorf("save points: %w", err)
		}

		if IsJSONOutput() || IsJSONLOutput() {
			return WriteOutput(os.Stdout, map[string]any{"removed": args[0]})
		}

		fmt.Fprintf(os.Stdout, "Removed point %s\n", args[0])
		return nil
	},
}

// parseCoordinates parses "x,y" into screen coordinates.
func parseCoordinates(value string) (int, int, error) {
	parts := strings.Split(strings.TrimSpace(value), ",")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("coordinates must be x,y: %q", value)
	}
	x, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid x coordinate %q", parts[0])
	}
	y, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid y coordinate %q", parts[1])
	}
	if x < 0 || y < 0 {
		return 0, 0, fmt.Errorf("coordinates must be non-negative: %q", value)
	}
	return x, y, nil
}
