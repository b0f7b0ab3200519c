package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/noah-isme/advanced-filters-api/internal/dto"
	"github.com/noah-isme/advanced-filters-api/pkg/query"
)

type inspection struct {
	Query  *dto.QueryNode     `json:"query"`
	Fields []string           `json:"fields"`
	Values []query.FieldValue `json:"field_values"`
}

func newInspectCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect ENCODED",
		Short: "Decode a stored query and print its tree and fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(cmd.OutOrStdout(), query.NewSerializer(query.Format(a.cfg.Filters.QueryFormat)), args[0])
		},
	}
}

func runInspect(out io.Writer, s *query.Serializer, encoded string) error {
	expr, err := s.Decode(encoded)
	if err != nil {
		return err
	}
	fields, err := s.ListFields(encoded)
	if err != nil {
		return err
	}
	values, err := s.FieldValues(encoded)
	if err != nil {
		return err
	}

	body, err := json.MarshalIndent(inspection{Query: dto.NewQueryNode(expr), Fields: fields, Values: values}, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(body))
	return err
}
