// Package paths provides the paths command code.
package paths

import (
	"fmt"
	"io"

	"github.com/ardanlabs/llava/sdk/tools/defaults"
	"github.com/ardanlabs/llava/sdk/tools/models"
	"github.com/olekukonko/tablewriter"
)

// Run executes the paths command.
func Run(w io.Writer) error {
	mdls := models.New("")

	files, err := mdls.RetrieveFiles()
	if err != nil {
		return fmt.Errorf("paths: %w", err)
	}

	fmt.Fprintln(w, "BasePath :", defaults.BaseDir(""))
	fmt.Fprintln(w, "LibPath  :", defaults.LibsDir(""))
	fmt.Fprintln(w, "ModelPath:", mdls.Path())
	fmt.Fprintln(w)

	if len(files) == 0 {
		fmt.Fprintln(w, "No models found, use the pull command to download one")
		return nil
	}

	var data [][]string

	for _, f := range files {
		kind := "model"
		if f.IsProj {
			kind = "mmproj"
		}

		data = append(data, []string{f.Name, kind, fmt.Sprintf("%.1f MiB", float64(f.Size)/(1024*1024)), f.Modified.Format("2006-01-02 15:04")})
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"NAME", "KIND", "SIZE", "MODIFIED"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("  ")
	table.AppendBulk(data)
	table.Render()

	return nil
}
