package cmd

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/carebridge/memorycore/graph"
	"github.com/carebridge/memorycore/memory"
	"github.com/carebridge/memorycore/scope"
	"github.com/carebridge/memorycore/semantic"
)

func newQueryCmd(configFile *string) *cobra.Command {
	params := &struct {
		Users       []string
		Projects    []string
		Contacts    []string
		EntityTypes []string
		Semantic    bool
		Limit       int
	}{}

	cmd := &cobra.Command{
		Use:   "query <text>",
		Short: "Run a scoped query against the structured or associative store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			service, conf, err := openService(*configFile)
			if err != nil {
				return err
			}
			defer service.Close()

			sc := scope.Scope{
				ID:          "cli",
				UserIDs:     params.Users,
				ProjectIDs:  params.Projects,
				ContactIDs:  params.Contacts,
				Permissions: scope.Permissions{Read: true},
			}

			var out any
			if params.Semantic {
				embedder := memory.NewHashEmbedder(conf.VectorDimension)
				embedding, err := embedder.Embed(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				out, err = service.QueryAssociative(cmd.Context(), semantic.Query{
					Embedding: embedding,
					Threshold: conf.SimilarityThreshold,
					Limit:     params.Limit,
				}, sc)
				if err != nil {
					return err
				}
			} else {
				out, err = service.QueryStructured(cmd.Context(), &graph.StructuredQuery{
					EntityTypes: params.EntityTypes,
					Filters: []graph.Filter{
						{Field: "content", Op: graph.OperatorContains, Value: args[0]},
					},
					Limit: params.Limit,
				}, sc)
				if err != nil {
					return err
				}
			}

			encoded, err := json.MarshalIndent(out, "", "  ")
			if err != nil {
				return err
			}
			cmd.Println(string(encoded))
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&params.Users, "user", nil, "scope user ids")
	cmd.Flags().StringSliceVar(&params.Projects, "project", nil, "scope project ids")
	cmd.Flags().StringSliceVar(&params.Contacts, "contact", nil, "scope contact ids")
	cmd.Flags().StringSliceVar(&params.EntityTypes, "type", nil, "entity type labels to match")
	cmd.Flags().BoolVar(&params.Semantic, "semantic", false, "query the associative store instead")
	cmd.Flags().IntVar(&params.Limit, "limit", 0, "result limit (0 = default)")
	return cmd
}
