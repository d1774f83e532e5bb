// Package install implements unpacking plugin bundles into the plugin
// directory.
package install

import (
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"maps"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/nlepage/go-tarfs"
	"github.com/spf13/cobra"

	hostcmd "plughost.software/plughost/cmd/plughost/cmd/internal/cmd"
	"plughost.software/plughost/cmd/plughost/internal/hostctx"
	"plughost.software/plughost/manager/types"
)

const FlagForce = "force"

// candidate is one plugin found inside a bundle: its descriptor, its module
// file and the module suffix used to name the installed copy.
type candidate struct {
	descriptorPath string
	modulePath     string
	moduleSuffix   string
	meta           *types.Metadata
}

func New() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "install {bundle}",
		Aliases: []string{"add"},
		Short:   "Unpack a plugin bundle into the plugin directory",
		Long: `Install the plugins contained in a tar bundle into the plugin directory.
The bundle may be plain or gzip compressed and must pair every module file
with its descriptor. Bundles that ship a module without a descriptor, a
descriptor without a module, or a descriptor whose declared name does not
match its base name are refused as a whole and nothing is installed.

Pass "-" as the bundle to read it from standard input.`,
		Example: `plughost install dogs.tar.gz --plugin-dir ./plugins
curl -fsSL https://example.com/dogs.tgz | plughost install - --plugin-dir ./plugins`,
		Args:              cobra.ExactArgs(1),
		RunE:              InstallBundle,
		DisableAutoGenTag: true,
		SilenceUsage:      true,
	}

	cmd.Flags().Bool(FlagForce, false, "overwrite plugins that are already installed")

	return cmd
}

func InstallBundle(cmd *cobra.Command, args []string) error {
	pm := hostctx.FromContext(cmd.Context()).Manager()
	if pm == nil {
		return fmt.Errorf("could not retrieve plugin manager from context")
	}
	dir := pm.Directory()
	if dir == "" {
		return fmt.Errorf("no plugin directory configured, pass --%s", hostcmd.PluginDirectoryFlag)
	}

	force, err := cmd.Flags().GetBool(FlagForce)
	if err != nil {
		return fmt.Errorf("getting force flag failed: %w", err)
	}
	suffixes, err := cmd.Flags().GetStringSlice(hostcmd.SuffixFlag)
	if err != nil {
		return fmt.Errorf("getting suffix flag failed: %w", err)
	}

	bundle, closeBundle, err := openBundle(cmd, args[0])
	if err != nil {
		return err
	}
	defer func() {
		if err := closeBundle(); err != nil {
			slog.WarnContext(cmd.Context(), "closing bundle failed", slog.String("error", err.Error()))
		}
	}()

	candidates, err := collectCandidates(bundle, suffixes)
	if err != nil {
		return fmt.Errorf("refusing bundle %s: %w", args[0], err)
	}

	if !force {
		var taken []error
		for _, c := range candidates {
			for _, target := range installTargets(dir, c) {
				if _, err := os.Stat(target); err == nil {
					taken = append(taken, fmt.Errorf("plugin %s is already installed at %s, use --%s to overwrite", c.meta.Name, target, FlagForce))
				}
			}
		}
		if err := errors.Join(taken...); err != nil {
			return err
		}
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create plugin directory %s: %w", dir, err)
	}
	for _, c := range candidates {
		if err := extract(bundle, dir, c); err != nil {
			return fmt.Errorf("failed to install plugin %s: %w", c.meta.Name, err)
		}
	}

	if err := pm.Rescan(cmd.Context()); err != nil {
		return fmt.Errorf("rescanning %s after install failed: %w", dir, err)
	}
	for _, c := range candidates {
		installed := pm.Path(c.meta.Name)
		if installed == "" {
			slog.WarnContext(cmd.Context(), "installed plugin is shadowed and will not be used",
				slog.String("plugin", c.meta.Name))
		}
		fmt.Fprintf(cmd.OutOrStdout(), "installed %s (%s)\n", c.meta.Name, pm.State(c.meta.Name))
	}

	return nil
}

// openBundle opens the bundle as a read-only filesystem, transparently
// decompressing gzip. The bundle has to be buffered anyway to be seekable,
// so reading from standard input via "-" costs nothing extra.
func openBundle(cmd *cobra.Command, name string) (fs.FS, func() error, error) {
	var src io.Reader
	closer := func() error { return nil }
	if name == "-" {
		src = cmd.InOrStdin()
	} else {
		f, err := os.Open(name)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open bundle: %w", err)
		}
		src = f
		closer = f.Close
	}

	var header [2]byte
	n, err := io.ReadFull(src, header[:])
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, nil, errors.Join(fmt.Errorf("failed to read bundle for gzip detection: %w", err), closer())
	}
	reader := io.MultiReader(bytes.NewReader(header[:n]), src)

	const gzipMagic1, gzipMagic2 = 0x1F, 0x8B
	if n == 2 && header[0] == gzipMagic1 && header[1] == gzipMagic2 {
		gzReader, err := gzip.NewReader(reader)
		if err != nil {
			return nil, nil, errors.Join(fmt.Errorf("failed to initialize gzip reader: %w", err), closer())
		}
		fileCloser := closer
		closer = func() error {
			return errors.Join(gzReader.Close(), fileCloser())
		}
		reader = gzReader
	}

	bundle, err := tarfs.New(reader)
	if err != nil {
		return nil, nil, errors.Join(fmt.Errorf("failed to read bundle as tar: %w", err), closer())
	}
	return bundle, closer, nil
}

// collectCandidates walks the bundle and pairs every module file with its
// descriptor. Any unpaired file, name collision or invalid descriptor
// refuses the bundle as a whole.
func collectCandidates(bundle fs.FS, suffixes []string) ([]candidate, error) {
	descriptors := map[string]string{}
	modules := map[string]candidate{}
	err := fs.WalkDir(bundle, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		base := path.Base(p)
		if name, ok := strings.CutSuffix(base, types.DescriptorSuffix); ok && name != "" {
			if prior, dup := descriptors[name]; dup {
				return fmt.Errorf("bundle contains several descriptors for plugin %s: %s and %s", name, prior, p)
			}
			descriptors[name] = p
			return nil
		}
		for _, suffix := range suffixes {
			name, ok := strings.CutSuffix(base, suffix)
			if !ok || name == "" {
				continue
			}
			if prior, dup := modules[name]; dup {
				return fmt.Errorf("bundle contains several modules for plugin %s: %s and %s", name, prior.modulePath, p)
			}
			modules[name] = candidate{modulePath: p, moduleSuffix: suffix}
			return nil
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	var partial []error
	for _, name := range slices.Sorted(maps.Keys(descriptors)) {
		if _, ok := modules[name]; !ok {
			partial = append(partial, fmt.Errorf("descriptor %s has no module file", descriptors[name]))
		}
	}
	for _, name := range slices.Sorted(maps.Keys(modules)) {
		if _, ok := descriptors[name]; !ok {
			partial = append(partial, fmt.Errorf("module %s has no descriptor", modules[name].modulePath))
		}
	}
	if err := errors.Join(partial...); err != nil {
		return nil, err
	}
	if len(modules) == 0 {
		return nil, errors.New("bundle contains no plugins")
	}

	candidates := make([]candidate, 0, len(modules))
	for _, name := range slices.Sorted(maps.Keys(modules)) {
		c := modules[name]
		c.descriptorPath = descriptors[name]
		raw, err := fs.ReadFile(bundle, c.descriptorPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read descriptor %s: %w", c.descriptorPath, err)
		}
		meta, err := types.ParseMetadata(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", c.descriptorPath, err)
		}
		if meta.Name != name {
			return nil, fmt.Errorf("%s: declared name %q does not match descriptor base name %q", c.descriptorPath, meta.Name, name)
		}
		c.meta = meta
		candidates = append(candidates, c)
	}
	return candidates, nil
}

// installTargets returns the two files a candidate installs to, module first.
func installTargets(dir string, c candidate) [2]string {
	return [2]string{
		filepath.Join(dir, c.meta.Name+c.moduleSuffix),
		filepath.Join(dir, c.meta.Name+types.DescriptorSuffix),
	}
}

func extract(bundle fs.FS, dir string, c candidate) error {
	targets := installTargets(dir, c)
	if err := copyFile(bundle, c.modulePath, targets[0], 0o755); err != nil {
		return err
	}
	return copyFile(bundle, c.descriptorPath, targets[1], 0o644)
}

func copyFile(bundle fs.FS, src, dst string, perm os.FileMode) error {
	in, err := bundle.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s in bundle: %w", src, err)
	}
	defer func() {
		_ = in.Close()
	}()
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		return errors.Join(fmt.Errorf("failed to write %s: %w", dst, err), out.Close())
	}
	return out.Close()
}
