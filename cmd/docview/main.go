// Command docview is the headless shell around the viewer core: it opens
// the given documents, reports their structure, and can rasterize single
// pages to disk. The graphical shell consumes the same app.Application
// surface.
package main

import (
	"context"
	"errors"
	"fmt"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/alecthomas/kong"

	"github.com/wudi/docview/app"
	"github.com/wudi/docview/config"
	"github.com/wudi/docview/doc"
	"github.com/wudi/docview/observability"
	_ "github.com/wudi/docview/ocr/tesseract"
	"github.com/wudi/docview/render"
)

var args struct {
	Files []string `arg:"" name:"file" help:"Documents to open." type:"path"`

	Profile   string `help:"User profile name." default:"default"`
	NoPlugins bool   `help:"Disable plugins."`
	Verbose   bool   `short:"v" help:"Raise logging to debug."`
	Config    string `help:"Override config discovery." type:"path"`

	Password   string `help:"Password for encrypted documents."`
	RenderPage int    `help:"Rasterize one 0-based page per document." default:"-1"`
	Out        string `help:"Output path for --render-page (PNG)." type:"path" default:"page.png"`
}

func main() {
	kong.Parse(&args)
	os.Exit(run())
}

func run() int {
	level := slog.LevelInfo
	if args.Verbose {
		level = slog.LevelDebug
	}
	logger := observability.NewSlogLogger(slog.New(
		slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	cfg, err := loadConfig()
	if err != nil {
		logger.Error("bad configuration", observability.Error("err", err))
		return 1
	}
	cfg.ProfileDir = filepath.Join(cfg.ProfileDir, args.Profile)

	a, err := app.New(cfg, logger)
	if err != nil {
		logger.Error("init failed", observability.Error("err", err))
		return 1
	}
	defer a.Shutdown()

	failed := false
	for _, path := range args.Files {
		if err := inspect(a, path); err != nil {
			logger.Error("open failed",
				observability.String("path", path),
				observability.String("kind", doc.KindOf(err).String()),
				observability.Error("err", err))
			failed = true
		}
	}
	if failed {
		return 1
	}
	return 0
}

func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if args.Config != "" {
		if _, err := os.Stat(args.Config); err != nil {
			return nil, err
		}
		// Config files carry profile state the shell owns; the core only
		// needs the directory they live in.
		cfg.ProfileDir = filepath.Dir(args.Config)
	}
	if cfg.ProfileDir == "" {
		home, err := os.UserConfigDir()
		if err == nil {
			cfg.ProfileDir = filepath.Join(home, "docview")
		}
	}
	return cfg, nil
}

func inspect(a *app.Application, path string) error {
	d, err := a.Open(path, args.Password)
	if err != nil {
		return err
	}
	defer a.CloseDocument(d.ID())

	bd := d.Doc()
	fmt.Printf("%s: %s", path, bd.Format())
	if v := bd.Version(); v != "" {
		fmt.Printf(" %s", v)
	}
	fmt.Printf(", %d page(s)\n", bd.PageCount())
	if m := bd.Metadata(); m.Title != "" {
		fmt.Printf("  title: %s\n", m.Title)
	}
	if bd.Encrypted() {
		fmt.Println("  encrypted: yes")
	}
	if bd.HasRestrictions() {
		fmt.Println("  restricted: yes")
	}
	printTOC(bd.TOC(), "  ")

	if args.RenderPage >= 0 {
		return renderPage(a, d, args.RenderPage)
	}
	return nil
}

func printTOC(entries []doc.TOCEntry, indent string) {
	for _, e := range entries {
		if e.Dest.Type == doc.DestPage {
			fmt.Printf("%s- %s (page %d)\n", indent, e.Title, e.Dest.Page+1)
		} else {
			fmt.Printf("%s- %s\n", indent, e.Title)
		}
		printTOC(e.Children, indent+"  ")
	}
}

// renderPage runs the page through the progressive pipeline the way the
// viewport would, draining every pass and keeping the final image.
func renderPage(a *app.Application, d *app.Document, index int) error {
	page := d.Doc().Page(index)
	if page == nil {
		return doc.Errorf(doc.KindInvalidArgument, "render", "page %d out of range", index)
	}
	size := page.Size()
	finalW := int(size.Width * 2)
	finalH := int(size.Height * 2)

	_, events, err := a.Pipeline().Submit(render.Request{
		DocID:         d.RenderDocID(),
		PageIndex:     index,
		Source:        page,
		InitialWidth:  finalW / 4,
		InitialHeight: finalH / 4,
		FinalWidth:    finalW,
		FinalHeight:   finalH,
		Zoom:          2.0,
	})
	if err != nil {
		return err
	}
	for ev := range events {
		switch ev.Kind {
		case render.EventCompleted:
			out, err := os.Create(args.Out)
			if err != nil {
				return err
			}
			defer out.Close()
			return png.Encode(out, ev.Image)
		case render.EventFailed:
			return ev.Err
		case render.EventCanceled:
			return errors.New("render canceled")
		}
	}
	return errors.New("render pipeline closed")
}
