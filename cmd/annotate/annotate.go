// Package annotate provides the annotate command
package annotate

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/kent2980/aoi-data-manager/internal/annotate"
	"github.com/kent2980/aoi-data-manager/internal/errors"
	"github.com/kent2980/aoi-data-manager/internal/fileio"
	"github.com/kent2980/aoi-data-manager/internal/runtime"
)

type options struct {
	image    string
	imageDir string
	filename string
	format   string
	maxSize  string
}

// Command creates and returns the annotate command
func Command(rt *runtime.Context) *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "annotate DEFECT_ID",
		Short: "Render a board image with the defect marked",
		Long: `Annotate draws a marker at the stored position of DEFECT_ID on the board image
and writes it with a text panel describing the defect. The image is taken from
--image, or looked up in --image-dir by model code and lot.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := rt.OpenStore()
			if err != nil {
				return err
			}
			defer store.Close()

			d, err := store.Defects().Get(args[0])
			if err != nil {
				return err
			}
			if d == nil {
				return errors.Newf("defect %s not found", args[0]).
					Category(errors.CategoryNotFound).
					Build()
			}

			imagePath, err := resolveImage(opts, d.ImagePath, d.LotNumber, d.ModelCode)
			if err != nil {
				return err
			}

			renderOpts, err := rt.AnnotateOptions()
			if err != nil {
				return err
			}
			if err := applyFlags(&renderOpts, opts); err != nil {
				return err
			}

			out, err := annotate.Render(d, imagePath, renderOpts)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}

	cmd.Flags().StringVarP(&opts.image, "image", "i", "", "Board image path")
	cmd.Flags().StringVar(&opts.imageDir, "image-dir", "", "Directory searched for the board image")
	cmd.Flags().StringVarP(&opts.filename, "name", "n", "", "Output file name without extension")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "", "PNG, JPEG or BMP (default: export.imageformat)")
	cmd.Flags().StringVar(&opts.maxSize, "max-size", "", "Bound such as 800x600 (default: export.maximagesize)")

	return cmd
}

// resolveImage picks the flag, then the stored path, then a directory lookup.
func resolveImage(opts options, stored, lot, modelCode string) (string, error) {
	switch {
	case opts.image != "":
		return opts.image, nil
	case stored != "":
		return stored, nil
	case opts.imageDir != "":
		name, err := fileio.FindImage(opts.imageDir, lot, modelCode)
		if err != nil {
			return "", err
		}
		return filepath.Join(opts.imageDir, name), nil
	}
	return "", errors.ValidationError("no image: pass --image or --image-dir")
}

func applyFlags(o *annotate.Options, opts options) error {
	if opts.filename != "" {
		o.Filename = opts.filename
	}
	if opts.format != "" {
		o.Format = annotate.Format(opts.format)
	}
	if opts.maxSize != "" {
		size, err := annotate.ParseSize(opts.maxSize)
		if err != nil {
			return err
		}
		o.MaxSize = size
	}
	return nil
}
