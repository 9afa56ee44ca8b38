package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ritzau/kube-playground/pkg/advisor"
	"github.com/ritzau/kube-playground/pkg/canvas"
	"github.com/ritzau/kube-playground/pkg/finder"
	"github.com/ritzau/kube-playground/pkg/logging"
	"github.com/ritzau/kube-playground/pkg/manifest"
	"github.com/ritzau/kube-playground/pkg/output"
	"github.com/ritzau/kube-playground/pkg/playground"
)

var manifestPath string

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Reconcile a manifest and print the regenerated YAML",
	Long: `render loads a manifest file or directory onto a fresh canvas, creates
the pods each deployment asks for and prints the canvas back as YAML.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := setup(cmd); err != nil {
			return err
		}
		session, err := loadSession(cmd.Context(), manifestPath)
		if err != nil {
			return err
		}
		defer session.Close()

		text, err := session.GenerateYAML(cmd.Context())
		if err != nil {
			return err
		}
		_, err = io.WriteString(cmd.OutOrStdout(), text)
		return err
	},
}

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Print the canvas built from a manifest as JSON",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := setup(cmd); err != nil {
			return err
		}
		session, err := loadSession(cmd.Context(), manifestPath)
		if err != nil {
			return err
		}
		defer session.Close()

		if summary, _ := cmd.Flags().GetBool("summary"); summary {
			output.PrintGraphSummary(cmd.OutOrStdout(), session.Graph())
			return nil
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(session.Graph())
	},
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Report problems and best-practice advice for a manifest",
	Long: `check parses a manifest file or directory and prints every warning the
parser and the advisor produce. It exits non-zero when an error is found.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := setup(cmd); err != nil {
			return err
		}
		text, err := manifest.ReadPath(manifestPath)
		if err != nil {
			return err
		}
		b, err := canvas.FromYAML(text)
		if err != nil {
			return err
		}

		advice, err := manifestAdvice(manifestPath)
		if err != nil {
			return err
		}
		advice = append(advice, advisor.Check(b.Graph)...)
		output.PrintAdviceReport(cmd.OutOrStdout(), manifestPath, b.Graph, advice)

		if advisor.Count(advice)[advisor.SeverityError] > 0 {
			return errIssuesFound
		}
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{renderCmd, graphCmd, checkCmd} {
		c.Flags().StringVarP(&manifestPath, "file", "f", "", "Manifest file or directory")
		c.MarkFlagRequired("file")
	}
	graphCmd.Flags().Bool("summary", false, "Print a readable summary instead of JSON")
}

// manifestAdvice checks every manifest file at path on its own, so line
// numbers refer to the file. Advice from a directory is prefixed with the
// file name.
func manifestAdvice(path string) ([]advisor.Advice, error) {
	files, err := finder.FindManifests(path)
	if err != nil {
		return nil, err
	}
	var out []advisor.Advice
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return nil, err
		}
		for _, a := range advisor.CheckText(string(data)) {
			if len(files) > 1 {
				a.Message = fmt.Sprintf("%s: %s", filepath.Base(f), a.Message)
			}
			out = append(out, a)
		}
	}
	return out, nil
}

// loadSession applies the manifests at path to a session that reconciles
// synchronously.
func loadSession(ctx context.Context, path string) (*playground.Session, error) {
	text, err := manifest.ReadPath(path)
	if err != nil {
		return nil, err
	}
	session := playground.New(playground.Options{})
	out := session.UpdateFromYAML(ctx, text)
	if !out.OK {
		session.Close()
		return nil, fmt.Errorf("%s: %w", path, out.Err)
	}
	for _, w := range out.Warnings {
		logging.Warn("manifest warning", "path", path, "warning", w)
	}
	return session, nil
}
