package cmd

import (
	"github.com/spf13/cobra"
)

func newMigrateCmd(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the store schemas",
		RunE: func(cmd *cobra.Command, args []string) error {
			// Opening the service runs the migrations.
			service, conf, err := openService(*configFile)
			if err != nil {
				return err
			}
			defer service.Close()

			cmd.Printf("schemas ready at %s\n", conf.SqlitePath)
			return nil
		},
	}
}
