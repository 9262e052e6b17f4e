package cli

import (
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"photo-gallery/internal/models"
	"photo-gallery/internal/photos"
)

// photoView is a photo without its payload.
type photoView struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"`
	CreatedAt   string `json:"createdAt"`
	Bytes       int    `json:"bytes"`
}

func newPhotoView(p models.Photo) photoView {
	v := photoView{
		ID:          p.ID,
		Title:       p.Title,
		Description: p.Description,
		Category:    p.Category,
		CreatedAt:   p.CreatedAt,
	}
	if _, data, err := photos.ParseDataURL(p.URL); err == nil {
		v.Bytes = len(data)
	}
	return v
}

// NewPhotosCommand creates the photos command group.
func NewPhotosCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "photos",
		Short: "Manage the session user's photos",
	}

	cmd.AddCommand(newPhotosListCommand(rootOpts))
	cmd.AddCommand(newPhotosAddCommand(rootOpts))
	cmd.AddCommand(newPhotosEditCommand(rootOpts))
	cmd.AddCommand(newPhotosRemoveCommand(rootOpts))

	return cmd
}

// openRepository opens the profile store and the session user's photos.
func openRepository(rootOpts *RootOptions) (*env, *photos.Repository, error) {
	e, err := openEnv(rootOpts)
	if err != nil {
		return nil, nil, err
	}
	user, err := e.requireSession()
	if err != nil {
		e.Close()
		return nil, nil, err
	}
	repo, err := photos.NewRepository(e.collections, user.ID)
	if err != nil {
		e.Close()
		return nil, nil, err
	}
	return e, repo, nil
}

func newPhotosListCommand(rootOpts *RootOptions) *cobra.Command {
	var category string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List photos, optionally filtered by category",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, repo, err := openRepository(rootOpts)
			if err != nil {
				return err
			}
			defer e.Close()

			if err := repo.SelectCategory(category); err != nil {
				return err
			}
			list := repo.Photos()
			views := make([]photoView, 0, len(list))
			for _, p := range list {
				views = append(views, newPhotoView(p))
			}

			return output(rootOpts, cmd.OutOrStdout(), views, func(w io.Writer) error {
				if len(views) == 0 {
					_, err := fmt.Fprintln(w, "No photos")
					return err
				}
				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tCATEGORY\tCREATED\tTITLE")
				for _, v := range views {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", v.ID, v.Category, v.CreatedAt, v.Title)
				}
				return tw.Flush()
			})
		},
	}

	cmd.Flags().StringVarP(&category, "category", "c", models.CategoryAll, "category filter")

	return cmd
}

func newPhotosAddCommand(rootOpts *RootOptions) *cobra.Command {
	var title, description, category string

	cmd := &cobra.Command{
		Use:   "add <file>",
		Short: "Upload an image file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, repo, err := openRepository(rootOpts)
			if err != nil {
				return err
			}
			defer e.Close()

			f, closeFile, err := openFile(args[0])
			if err != nil {
				return err
			}
			defer closeFile()

			p, err := repo.Add(cmd.Context(), f, title, description, category)
			if err != nil {
				return err
			}
			view := newPhotoView(*p)
			return output(rootOpts, cmd.OutOrStdout(), view, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "Added %s (%s, %d bytes)\n", view.ID, view.Category, view.Bytes)
				return err
			})
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "photo title")
	cmd.Flags().StringVar(&description, "description", "", "photo description")
	cmd.Flags().StringVarP(&category, "category", "c", "Other", "photo category")

	return cmd
}

func newPhotosEditCommand(rootOpts *RootOptions) *cobra.Command {
	var u photos.Update
	var file string

	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Change a photo's fields or image",
		Long: `Change a photo's fields or image. Flags left empty keep their current value.

The id is looked up across every user in the profile.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, repo, err := openRepository(rootOpts)
			if err != nil {
				return err
			}
			defer e.Close()

			if file != "" {
				f, closeFile, err := openFile(file)
				if err != nil {
					return err
				}
				defer closeFile()
				u.File = &f
			}

			if err := repo.Update(cmd.Context(), args[0], u); err != nil {
				return err
			}
			return output(rootOpts, cmd.OutOrStdout(), map[string]string{"updated": args[0]}, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "Updated %s\n", args[0])
				return err
			})
		},
	}

	cmd.Flags().StringVar(&u.Title, "title", "", "new title")
	cmd.Flags().StringVar(&u.Description, "description", "", "new description")
	cmd.Flags().StringVarP(&u.Category, "category", "c", "", "new category")
	cmd.Flags().StringVar(&file, "file", "", "replacement image file")

	return cmd
}

func newPhotosRemoveCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <id>",
		Aliases: []string{"delete"},
		Short:   "Delete a photo",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, repo, err := openRepository(rootOpts)
			if err != nil {
				return err
			}
			defer e.Close()

			if err := repo.Delete(args[0]); err != nil {
				return err
			}
			return output(rootOpts, cmd.OutOrStdout(), map[string]string{"deleted": args[0]}, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "Deleted %s\n", args[0])
				return err
			})
		},
	}
}

func openFile(path string) (photos.File, func(), error) {
	f, err := os.Open(path)
	if err != nil {
		return photos.File{}, nil, fmt.Errorf("%w: %v", photos.ErrFileRead, err)
	}
	return photos.File{
		Name:        filepath.Base(path),
		ContentType: mime.TypeByExtension(filepath.Ext(path)),
		Body:        f,
	}, func() { f.Close() }, nil
}
