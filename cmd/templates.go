package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"docbatch/internal/tui"
)

var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "List saved job templates",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd, nil)
		if err != nil {
			return err
		}
		defer a.close()

		all, err := a.templates().List(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintln(os.Stdout, tui.RenderTemplates(all))
		return nil
	},
}

var templateRmCmd = &cobra.Command{
	Use:   "rm <name|id>",
	Short: "Delete a saved template",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd, nil)
		if err != nil {
			return err
		}
		defer a.close()

		ok, err := a.templates().Delete(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("template %q not found", args[0])
		}
		fmt.Fprintf(os.Stdout, "removed template %s\n", args[0])
		return nil
	},
}

func init() {
	templatesCmd.AddCommand(templateRmCmd)
	rootCmd.AddCommand(templatesCmd)
}
