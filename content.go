package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/clouddrive-go/internal/editor"
)

// defaultEditor is run when neither $VISUAL nor $EDITOR is set.
const defaultEditor = "vi"

func newCatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cat <name>",
		Short: "Print a file's content",
		Args:  cobra.ExactArgs(1),
		RunE:  runCat,
	}
}

func newEditCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "edit <name>",
		Short: "Edit a text file in $EDITOR and save it back",
		Args:  cobra.ExactArgs(1),
		RunE:  runEdit,
	}
}

func newWriteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "write <name>",
		Short: "Replace a text file's content with stdin",
		Args:  cobra.ExactArgs(1),
		RunE:  runWrite,
	}
}

func runCat(cmd *cobra.Command, args []string) error {
	return withApp(cmd.Context(), func(a *app) error {
		if _, err := a.requireSession(); err != nil {
			return err
		}

		doc, err := a.editor.Open(cmd.Context(), args[0])
		if err != nil {
			return authHint(err)
		}

		if doc.Binary {
			if isTerminal(a.cc.Stdout) {
				return fmt.Errorf("%s has binary content; redirect output or use 'get'", args[0])
			}

			_, err = a.cc.Stdout.Write(doc.Data)

			return err
		}

		_, err = io.WriteString(a.cc.Stdout, doc.Text)

		return err
	})
}

func runEdit(cmd *cobra.Command, args []string) error {
	name := args[0]

	return withApp(cmd.Context(), func(a *app) error {
		if _, err := a.requireSession(); err != nil {
			return err
		}

		ctx := cmd.Context()

		doc, err := a.editor.Open(ctx, name)
		if err != nil {
			return authHint(err)
		}

		if doc.Binary {
			return fmt.Errorf("cannot edit %s: %w", name, editor.ErrBinaryContent)
		}

		edited, err := editText(ctx, name, doc.Text, cmd.InOrStdin(), a.cc.Stdout, a.cc.Stderr)
		if err != nil {
			return err
		}

		if edited == doc.Text {
			a.cc.Statusf("No changes to %s.\n", name)
			return nil
		}

		if err := a.editor.Save(ctx, name, edited); err != nil {
			return authHint(err)
		}

		a.cc.Statusf("Saved %s\n", name)

		return nil
	})
}

func runWrite(cmd *cobra.Command, args []string) error {
	name := args[0]

	text, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return fmt.Errorf("reading stdin: %w", err)
	}

	return withApp(cmd.Context(), func(a *app) error {
		if _, err := a.requireSession(); err != nil {
			return err
		}

		ctx := cmd.Context()

		// Opening first records whether the file is binary so Save can
		// refuse to overwrite it with text.
		if _, err := a.editor.Open(ctx, name); err != nil {
			return authHint(err)
		}

		if err := a.editor.Save(ctx, name, string(text)); err != nil {
			return authHint(err)
		}

		a.cc.Statusf("Saved %s (%s)\n", name, formatSize(int64(len(text))))

		return nil
	})
}

// editorCommand returns the user's editor command split into fields.
func editorCommand() []string {
	for _, env := range []string{"VISUAL", "EDITOR"} {
		if fields := strings.Fields(os.Getenv(env)); len(fields) > 0 {
			return fields
		}
	}

	return []string{defaultEditor}
}

// editText writes text to a temp file named after name, runs the editor
// on it and returns the file's content afterwards.
func editText(ctx context.Context, name, text string, stdin io.Reader, stdout, stderr io.Writer) (string, error) {
	dir, err := os.MkdirTemp("", "clouddrive-edit-")
	if err != nil {
		return "", fmt.Errorf("creating temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	base, err := localNameFor(name)
	if err != nil {
		return "", err
	}

	path := filepath.Join(dir, base)
	if err := os.WriteFile(path, []byte(text), 0o600); err != nil {
		return "", fmt.Errorf("writing temp file: %w", err)
	}

	argv := append(editorCommand(), path)

	c := exec.CommandContext(ctx, argv[0], argv[1:]...)
	c.Stdin = stdin
	c.Stdout = stdout
	c.Stderr = stderr

	if err := c.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", fmt.Errorf("editor exited with status %d, not saving", exitErr.ExitCode())
		}

		return "", fmt.Errorf("running editor %s: %w", argv[0], err)
	}

	edited, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading edited file: %w", err)
	}

	return string(edited), nil
}
