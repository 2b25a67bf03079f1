package main

import (
	"context"

	"github.com/spf13/cobra"

	"reelflow/internal/config"
	"reelflow/internal/cursor"
	"reelflow/internal/extract"
	"reelflow/internal/models"
	"reelflow/internal/util"
)

type windowView struct {
	BookID    string `json:"book_id"`
	TextLen   int    `json:"text_len"`
	TextHash  string `json:"text_sha256"`
	Cursor    int    `json:"cursor"`
	Exhausted bool   `json:"exhausted"`
	Start     int    `json:"start,omitempty"`
	End       int    `json:"end,omitempty"`
	NewCursor int    `json:"new_cursor,omitempty"`
	Preview   string `json:"preview,omitempty"`
}

func windowCmd() *cobra.Command {
	var full bool

	cmd := &cobra.Command{
		Use:   "window <book-id>",
		Short: "Show the text window the next top-up of a book would send",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			ext := extract.New(e.cfg.UploadsRoot)
			view, err := nextWindow(cmd.Context(), e.store, ext, e.cfg, args[0], full)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), view)
		},
	}

	cmd.Flags().BoolVar(&full, "full", false, "print the whole window text instead of a preview")

	return cmd
}

type bookGetter interface {
	GetBook(ctx context.Context, bookID string) (models.Book, error)
}

type textExtractor interface {
	Extract(ctx context.Context, sourcePath string) (string, error)
}

func nextWindow(ctx context.Context, books bookGetter, ext textExtractor, cfg config.Config, bookID string, full bool) (windowView, error) {
	book, err := books.GetBook(ctx, bookID)
	if err != nil {
		return windowView{}, err
	}
	ectx, cancel := context.WithTimeout(ctx, cfg.ExtractTimeout)
	defer cancel()
	text, err := ext.Extract(ectx, book.SourcePath)
	if err != nil {
		return windowView{}, err
	}

	runes := []rune(text)
	view := windowView{
		BookID:   bookID,
		TextLen:  len(runes),
		TextHash: util.SHA256Hex(text),
		Cursor:   book.GeneratedCursor,
	}
	w, ok := cursor.Next(book.GeneratedCursor, len(runes), cfg.ChunkSize, cfg.OverlapPadding)
	if !ok {
		view.Exhausted = true
		return view, nil
	}
	view.Start, view.End, view.NewCursor = w.Start, w.End, w.NewCursor
	view.Preview = w.Slice(runes)
	if !full {
		view.Preview = util.Preview(view.Preview, 0)
	}
	return view, nil
}
