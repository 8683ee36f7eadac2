package cli

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/dbnest/dbnest"
)

// StatusCmd is the 'dbnest status' command.
type StatusCmd struct{}

// Run lists the live instances from the registry. Entries whose process has
// exited are pruned by the listing itself, so the output is current.
func (c *StatusCmd) Run() error {
	infos, err := dbnest.List(context.Background(), registryOptions()...)
	if err != nil {
		return err
	}
	if len(infos) == 0 {
		fmt.Println("no running instances")
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Data Directory", "Port", "PID", "Uptime"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("  ")
	table.SetNoWhiteSpace(true)

	for _, info := range infos {
		table.Append([]string{
			info.DataDir,
			strconv.Itoa(info.Port),
			strconv.Itoa(info.PID),
			time.Since(info.StartedAt).Round(time.Second).String(),
		})
	}
	table.Render()
	return nil
}
