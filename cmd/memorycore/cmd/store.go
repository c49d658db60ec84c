package cmd

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/carebridge/memorycore/memory"
	"github.com/carebridge/memorycore/scope"
	"github.com/carebridge/memorycore/semantic"
)

func newStoreCmd(configFile *string) *cobra.Command {
	params := &struct {
		Owner  string
		Source string
		Tags   []string
	}{}

	cmd := &cobra.Command{
		Use:   "store <content>",
		Short: "Append a record to the associative store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			service, conf, err := openService(*configFile)
			if err != nil {
				return err
			}
			defer service.Close()

			embedder := memory.NewHashEmbedder(conf.VectorDimension)
			embedding, err := embedder.Embed(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			sc := scope.Scope{
				ID:          "cli",
				UserIDs:     []string{params.Owner},
				Permissions: scope.Permissions{Read: true, Write: true},
			}
			result, err := service.StoreAssociative(cmd.Context(), semantic.StoreInput{
				Content:   args[0],
				Embedding: embedding,
				Source:    params.Source,
				Tags:      params.Tags,
				OwnerID:   params.Owner,
			}, nil, sc)
			if err != nil {
				return err
			}
			if !result.Success {
				return errors.Errorf("store failed: %s", result.Error)
			}

			cmd.Printf("stored %s\n", result.RecordID)
			return nil
		},
	}

	cmd.Flags().StringVar(&params.Owner, "owner", "cli", "owning user id")
	cmd.Flags().StringVar(&params.Source, "source", "cli", "record source tag")
	cmd.Flags().StringSliceVar(&params.Tags, "tag", nil, "free-form tags")
	return cmd
}
