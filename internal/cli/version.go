package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	apihttp "github.com/GriffinCanCode/contextify/internal/api/http"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "contextify %s (%s %s/%s)\n",
			apihttp.Version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
	},
}
