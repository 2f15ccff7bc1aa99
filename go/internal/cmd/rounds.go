package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mcdev12/memoria/go/internal/match"
)

func newRoundsCmd(envFile *string) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "rounds",
		Short: "Print the round table as YAML",
		Long: "Print the round table the server would use. With --file the table is " +
			"read from that YAML file and validated instead.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			table := match.DefaultRounds()
			if file != "" {
				var err error
				if table, err = match.LoadRounds(file); err != nil {
					return err
				}
			} else {
				cfg, err := loadConfig(*envFile)
				if err != nil {
					return err
				}
				sc, err := cfg.Session()
				if err != nil {
					return err
				}
				table = sc.Rounds
			}

			out, err := table.Marshal()
			if err != nil {
				return fmt.Errorf("failed to encode rounds: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML round table to validate and print")
	return cmd
}
