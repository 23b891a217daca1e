package cli

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/sql4go/internal/store"
)

// LoadFile is the YAML document accepted by the load command.
//
//	columns:
//	  price: double
//	documents:
//	  - {_id: p1, name: Boot, price: 10.5}
//	  - {name: Cap, price: 5.25}
type LoadFile struct {
	Columns   map[string]string `yaml:"columns,omitempty"`
	Documents []map[string]any  `yaml:"documents"`
}

// LoadResult is the JSON payload of the load command.
type LoadResult struct {
	Index     string `json:"index"`
	Documents int    `json:"documents"`
	Columns   int    `json:"columns"`
}

// NewLoadCommand creates the load command.
func NewLoadCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "load <index> <file.yaml>",
		Short: "Load documents into the local database",
		Long: `Store the documents of a YAML file under an index of the local
SQLite database, creating the database if needed.

A document's _id field becomes its id; documents without one get a
random UUID. Documents with an existing id are replaced. Declared
column types override the types inferred from the documents.

Examples:
  sql4go load products products.yaml
  sql4go load --db ./shop.db products products.yaml`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoad(cmd, rootOpts, args[0], args[1])
		},
	}
	return cmd
}

func runLoad(cmd *cobra.Command, opts *RootOptions, index, path string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	if opts.Backend != BackendLocal {
		return NewExitError(ExitCommandError, "load only supports the local backend")
	}

	file, err := readLoadFile(path)
	if err != nil {
		return err
	}

	st, err := store.Open(opts.DB)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	docs := make([]store.Document, 0, len(file.Documents))
	for _, src := range file.Documents {
		doc := store.Document{Index: index, Source: make(map[string]any, len(src))}
		for k, v := range src {
			if k == "_id" {
				doc.ID = fmt.Sprint(v)
				continue
			}
			doc.Source[k] = v
		}
		if doc.ID == "" {
			doc.ID = uuid.NewString()
		}
		docs = append(docs, doc)
	}
	if err := st.PutBatch(ctx, docs); err != nil {
		return WrapExitError(ExitCommandError, "failed to store documents", err)
	}
	if len(file.Columns) > 0 {
		if err := st.DeclareColumns(ctx, index, file.Columns); err != nil {
			return WrapExitError(ExitCommandError, "failed to declare columns", err)
		}
	}
	opts.Logger().Info("documents loaded", "index", index, "documents", len(docs), "db", opts.DB)

	result := LoadResult{Index: index, Documents: len(docs), Columns: len(file.Columns)}
	if opts.Format == "json" {
		return formatter.Success(result)
	}
	fmt.Fprintf(formatter.Writer, "Loaded %d document(s) into %s\n", result.Documents, index)
	return nil
}

// readLoadFile parses a load file, rejecting unknown keys.
func readLoadFile(path string) (*LoadFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to read documents", err)
	}
	var file LoadFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to parse documents", err)
	}
	if len(file.Documents) == 0 {
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("no documents in %s", path))
	}
	return &file, nil
}
