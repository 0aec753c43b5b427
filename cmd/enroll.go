package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/faceid/internal/engine"
	"github.com/kozaktomas/faceid/internal/identity"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll <person-name> <image-or-directory>...",
	Short: "Enroll reference face images for a person",
	Long: `Enroll one or more reference face images for a person.

Each image is decoded, checked for exactly one face, quality-gated and
added to the similarity index. Rejected images are reported individually
and do not abort the rest of the batch.

Examples:
  # Enroll two reference photos
  faceid enroll "Jane Doe" photo1.jpg photo2.jpg

  # Enroll every image in a directory
  faceid enroll "Jane Doe" ./reference-photos/

  # Use a stricter quality gate for this batch
  faceid enroll "Jane Doe" ./reference-photos/ --quality 0.6`,
	Args: cobra.MinimumNArgs(2),
	RunE: runEnroll,
}

func init() {
	rootCmd.AddCommand(enrollCmd)

	enrollCmd.Flags().BoolP("recursive", "r", false, "Search directories recursively")
	enrollCmd.Flags().Float64("quality", 0, "Quality threshold override for this batch")
	enrollCmd.Flags().Bool("no-create", false, "Fail if the person does not exist yet")
}

// isImageFile checks if a file has a supported image extension.
func isImageFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg", ".png", ".bmp", ".webp":
		return true
	}
	return false
}

// collectImageFiles expands file and directory arguments into image paths.
func collectImageFiles(args []string, recursive bool) ([]string, error) {
	var paths []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("cannot access %s: %w", arg, err)
		}
		if !info.IsDir() {
			paths = append(paths, arg)
			continue
		}

		err = filepath.WalkDir(arg, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if path != arg && !recursive {
					return filepath.SkipDir
				}
				return nil
			}
			if isImageFile(path) {
				paths = append(paths, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("scanning %s: %w", arg, err)
		}
	}
	if len(paths) == 0 {
		return nil, errors.New("no image files found")
	}
	return paths, nil
}

// resolvePerson finds the person by name, creating them unless disabled.
func resolvePerson(ctx context.Context, a *app, name string, noCreate bool) (*identity.Person, error) {
	person, err := a.engine.Store().FindPersonByName(ctx, name)
	if err == nil {
		return person, nil
	}
	if !errors.Is(err, identity.ErrPersonNotFound) {
		return nil, err
	}
	if noCreate {
		return nil, fmt.Errorf("person %q does not exist", name)
	}

	person = &identity.Person{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	if err := a.engine.Store().CreatePerson(ctx, person); err != nil {
		return nil, fmt.Errorf("creating person: %w", err)
	}
	fmt.Printf("Created person %s (%s)\n", person.Name, person.ID)
	return person, nil
}

func runEnroll(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	paths, err := collectImageFiles(args[1:], mustGetBool(cmd, "recursive"))
	if err != nil {
		return err
	}

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	person, err := resolvePerson(ctx, a, args[0], mustGetBool(cmd, "no-create"))
	if err != nil {
		return err
	}

	bar := progressbar.NewOptions(len(paths),
		progressbar.OptionSetDescription("Reading images"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("images"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionFullWidth(),
	)

	images := make([][]byte, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path) //nolint:gosec // paths come from CLI arguments
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		images = append(images, data)
		_ = bar.Add(1)
	}
	fmt.Println()

	result, err := a.engine.Enroll(ctx, person.ID, images, engine.EnrollOptions{
		QualityThreshold: mustGetFloat64(cmd, "quality"),
	})
	if err != nil {
		return fmt.Errorf("enrollment failed: %w", err)
	}

	fmt.Printf("Enrollment %s: %s\n", result.EnrollmentID, result.Status)
	fmt.Printf("  Enrolled faces: %d/%d\n", result.FaceCount, len(images))
	for _, failure := range result.Failures {
		fmt.Printf("  Rejected: %s\n", failure)
	}

	a.saveIndex(ctx)
	return nil
}
