package mcpserver

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/fsnotify/fsnotify"
	"github.com/ggoodman/mcp-engine-go/content"
	"github.com/ggoodman/mcp-engine-go/features"
)

// DirResources exposes every regular file under dir as a resource whose URI
// is prefix joined with the slash-separated relative path. Reads return text
// for valid UTF-8 files and a blob otherwise.
func DirResources(dir, prefix string) ([]*Resource, error) {
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", dir, err)
	}
	var out []*Resource
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		var size int64
		if info, err := d.Info(); err == nil {
			size = info.Size()
		}
		uri := fileURI(prefix, rel)
		mt := mime.TypeByExtension(path.Ext(rel))
		out = append(out, NewResource(uri, path.Base(filepath.ToSlash(rel)), readFile(p), WithResourceMIMEType(mt), WithResourceSize(size)))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}
	return out, nil
}

func readFile(p string) ResourceHandler {
	return func(_ context.Context, _ *features.Set, uri string) ([]content.ResourceContents, error) {
		b, err := os.ReadFile(p)
		if os.IsNotExist(err) {
			return nil, ResourceNotFound(uri)
		}
		if err != nil {
			return nil, err
		}
		if utf8.Valid(b) {
			return []content.ResourceContents{{URI: uri, Text: string(b)}}, nil
		}
		return []content.ResourceContents{{URI: uri, Blob: b}}, nil
	}
}

func fileURI(prefix, rel string) string {
	return strings.TrimSuffix(prefix, "/") + "/" + filepath.ToSlash(rel)
}

// WatchDir watches dir recursively until ctx ends and calls updated with the
// resource URI of every file written or created, and listChanged whenever
// files are created, removed or renamed. Either callback may be nil.
func WatchDir(ctx context.Context, dir, prefix string, updated func(ctx context.Context, uri string), listChanged func(ctx context.Context)) error {
	root, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", dir, err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() {
		_ = w.Close()
	}()

	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		return w.Add(p)
	})
	if err != nil {
		return fmt.Errorf("watch %s: %w", root, err)
	}

	log := slog.Default().With(slog.String("dir", root))
	log.Debug("mcpserver.watch_dir.start")

	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warn("mcpserver.watch_dir.error", slog.String("err", err.Error()))
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			rel, err := filepath.Rel(root, ev.Name)
			if err != nil || strings.HasPrefix(rel, "..") {
				continue
			}
			if ev.Op&fsnotify.Create == fsnotify.Create {
				if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
					_ = w.Add(ev.Name)
					if listChanged != nil {
						listChanged(ctx)
					}
					continue
				}
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 && updated != nil {
				updated(ctx, fileURI(prefix, rel))
			}
			if ev.Op&(fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 && listChanged != nil {
				listChanged(ctx)
			}
		}
	}
}
