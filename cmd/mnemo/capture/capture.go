// Package capturecmder provides the capture command, which stores a memory.
package capturecmder

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/mnemo/cmd/mnemo/cmdutil"
	"github.com/papercomputeco/mnemo/pkg/cliui"
	"github.com/papercomputeco/mnemo/pkg/config"
	"github.com/papercomputeco/mnemo/pkg/embeddings"
	"github.com/papercomputeco/mnemo/pkg/memory"
)

type captureCommander struct {
	owner       string
	contentType string
	mediaRef    string
	tags        []string
	remote      bool
	quiet       bool
}

const captureLongDesc string = `Store a memory.

The text is run through the configured model client, which extracts
entities and sentiment and computes the embedding, then written to the
vector store and the entity graph. With no arguments, or "-", the text is
read from stdin.

Use --remote to send the memory to a running mnemo server instead of
opening the stores directly.

Examples:
  mnemo capture "Lunch with Sarah on Friday, she wants the Q3 numbers"
  echo "Call the bank about the mortgage" | mnemo capture --tag todo
  mnemo capture --type image --media s3://photos/beach.jpg "Beach day in Lisbon"`

const captureShortDesc string = "Store a memory"

func NewCaptureCmd() *cobra.Command {
	cmder := &captureCommander{}

	cmd := &cobra.Command{
		Use:   "capture [text]",
		Short: captureShortDesc,
		Long:  captureLongDesc,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd, args)
		},
	}

	cmdutil.AddOwnerFlag(cmd, &cmder.owner)
	cmdutil.AddRemoteFlags(cmd, &cmder.remote)
	cmdutil.AddStoreFlags(cmd)
	cmd.Flags().StringVar(&cmder.contentType, "type", string(memory.ContentText), "Content type (text, image, audio, mixed)")
	cmd.Flags().StringVar(&cmder.mediaRef, "media", "", "Reference to an attached media file")
	cmd.Flags().StringSliceVarP(&cmder.tags, "tag", "t", nil, "Tag the memory (repeatable)")
	cmd.Flags().BoolVarP(&cmder.quiet, "quiet", "q", false, "Print only the memory id")

	return cmd
}

func (c *captureCommander) run(cmd *cobra.Command, args []string) error {
	var text string
	if len(args) > 0 || c.mediaRef == "" {
		var err error
		if text, err = readText(cmd.InOrStdin(), args); err != nil {
			return err
		}
	}

	owner, err := cmdutil.ResolveOwner(cmd, c.owner)
	if err != nil {
		return err
	}

	cfg, err := cmdutil.LoadConfig(cmd, config.StoreFlags, config.ClientFlags)
	if err != nil {
		return err
	}

	in := embeddings.Input{
		OwnerID:     owner,
		Content:     text,
		ContentType: memory.ContentType(c.contentType),
		MediaRef:    c.mediaRef,
		Tags:        c.tags,
	}

	var (
		id         string
		incomplete bool
	)
	if c.remote {
		cl, err := cmdutil.Remote(cfg)
		if err != nil {
			return err
		}
		res, err := cl.Capture(cmd.Context(), in)
		if err != nil {
			return err
		}
		id, incomplete = res.ID, res.GraphIncomplete
	} else {
		s, err := cmdutil.OpenStack(cmd.Context(), cmd, cfg, cmdutil.Logger(cmd, true))
		if err != nil {
			return err
		}
		defer s.Close()

		id, err = s.Ingest.Capture(cmd.Context(), in)
		if err != nil {
			return err
		}
		incomplete = s.Ingest.GraphIncomplete(id)
	}

	out := cmd.OutOrStdout()
	if c.quiet {
		fmt.Fprintln(out, id)
		return nil
	}

	fmt.Fprintf(out, "  %s Captured %s\n", cliui.SuccessMark, cliui.ValueStyle.Render(id))
	if incomplete {
		fmt.Fprintf(out, "  %s\n", cliui.WarnStyle.Render("graph write pending; the memory is searchable by similarity only until it lands"))
	}
	return nil
}

func readText(stdin io.Reader, args []string) (string, error) {
	if len(args) > 0 && !(len(args) == 1 && args[0] == "-") {
		return strings.Join(args, " "), nil
	}
	b, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("reading stdin: %w", err)
	}
	text := strings.TrimSpace(string(b))
	if text == "" {
		return "", errors.New("nothing to capture: pass text or pipe it on stdin")
	}
	return text, nil
}
