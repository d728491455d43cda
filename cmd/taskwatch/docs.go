package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/phrazzld/taskwatch/internal/document"
	"github.com/phrazzld/taskwatch/internal/domain"
)

func docsCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "docs",
		Short: "Inspect and edit generated documents",
	}

	var output string
	cmd.PersistentFlags().StringVarP(&output, "output", "o", formatText, "Output format (text|json|yaml)")

	showCmd := &cobra.Command{
		Use:   "show <document-id>",
		Short: "Print a document version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := parseFormat(output)
			if err != nil {
				return err
			}
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			r := document.NewResolver(c.app.client, c.app.logger)
			doc, err := r.Show(cmd.Context(), id)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), format, doc, func(w io.Writer) error {
				return writeDocumentText(w, doc)
			})
		},
	}

	versionsCmd := &cobra.Command{
		Use:   "versions <document-id>",
		Short: "List every version of a document, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := parseFormat(output)
			if err != nil {
				return err
			}
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			r := document.NewResolver(c.app.client, c.app.logger)
			versions, err := r.Open(cmd.Context(), id)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), format, versions, func(w io.Writer) error {
				return writeVersionsText(w, versions)
			})
		},
	}

	var file string
	saveCmd := &cobra.Command{
		Use:   "save <document-id>",
		Short: "Store new content as the next version of a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := parseFormat(output)
			if err != nil {
				return err
			}
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			content, err := readContent(cmd.InOrStdin(), file)
			if err != nil {
				return err
			}

			r := document.NewResolver(c.app.client, c.app.logger)
			if _, err := r.Show(cmd.Context(), id); err != nil {
				return err
			}
			doc, err := r.Save(cmd.Context(), content)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), format, doc, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "saved document %d as version %d (id %d)\n", id, doc.Version, doc.ID)
				return err
			})
		},
	}
	saveCmd.Flags().StringVarP(&file, "file", "f", "", "Read content from this file, or - for stdin")

	cmd.AddCommand(showCmd, versionsCmd, saveCmd)
	return cmd
}

func readContent(stdin io.Reader, file string) (string, error) {
	switch file {
	case "":
		return "", errors.New("--file is required")
	case "-":
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		return string(data), nil
	default:
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("failed to read %s: %w", file, err)
		}
		return string(data), nil
	}
}

func writeDocumentText(w io.Writer, doc domain.Document) error {
	latest := ""
	if doc.IsLatest {
		latest = ", latest"
	}
	fmt.Fprintf(w, "# %s (document %d, version %d%s)\n\n", doc.Title, doc.ID, doc.Version, latest)
	_, err := fmt.Fprintln(w, doc.Content)
	return err
}

func writeVersionsText(w io.Writer, versions []domain.DocumentVersion) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "\tVERSION\tDOCUMENT\tUPDATED\tLATEST")
	for _, v := range versions {
		marker := ""
		if v.Current {
			marker = "*"
		}
		latest := ""
		if v.IsLatest {
			latest = "yes"
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%s\n",
			marker, v.Version, v.DocumentID, v.UpdatedAt.Format(time.DateTime), latest)
	}
	return tw.Flush()
}
