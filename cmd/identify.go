package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/faceid/internal/engine"
	"github.com/kozaktomas/faceid/internal/identity"
)

var identifyCmd = &cobra.Command{
	Use:   "identify <image>",
	Short: "Identify the person in a probe image",
	Long: `Identify the person in a probe image against all enrolled faces.

The probe image is decoded, checked for exactly one face, quality-gated
and searched against the similarity index. Matches at or above the
similarity threshold are printed best first.

Examples:
  # Identify with the configured defaults
  faceid identify probe.jpg

  # Require a higher similarity and show more candidates
  faceid identify probe.jpg --threshold 0.7 --top-k 10`,
	Args: cobra.ExactArgs(1),
	RunE: runIdentify,
}

var verifyCmd = &cobra.Command{
	Use:   "verify <person-name> <image>",
	Short: "Verify that a probe image matches a claimed person",
	Args:  cobra.ExactArgs(2),
	RunE:  runVerify,
}

func init() {
	rootCmd.AddCommand(identifyCmd)
	rootCmd.AddCommand(verifyCmd)

	identifyCmd.Flags().Float64("threshold", 0, "Similarity threshold override")
	identifyCmd.Flags().Int("top-k", 0, "Maximum number of candidates to return")
	verifyCmd.Flags().Float64("threshold", 0, "Similarity threshold override")
}

func runIdentify(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	data, err := os.ReadFile(args[0]) //nolint:gosec // path comes from CLI argument
	if err != nil {
		return fmt.Errorf("reading %s: %w", args[0], err)
	}

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	result, err := a.engine.Identify(ctx, data, engine.IdentifyOptions{
		Threshold: mustGetFloat64(cmd, "threshold"),
		TopK:      mustGetInt(cmd, "top-k"),
	})
	if err != nil {
		return fmt.Errorf("identification failed: %w", err)
	}

	fmt.Printf("Probe quality: %.2f (%s)\n", result.Quality.Score, result.Quality.Band)
	if result.Liveness != nil {
		fmt.Printf("Liveness: %s (confidence %.2f)\n", result.Liveness.Method, result.Liveness.Confidence)
	}

	if len(result.Matches) == 0 {
		fmt.Println("\nNo match found.")
		return nil
	}

	fmt.Println()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RANK\tPERSON\tSCORE\tFACE ID")
	fmt.Fprintln(w, "----\t------\t-----\t-------")
	for i, match := range result.Matches {
		fmt.Fprintf(w, "%d\t%s\t%.4f\t%s\n", i+1, match.PersonName, match.Score, match.FaceID)
	}
	w.Flush()

	return nil
}

func runVerify(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	data, err := os.ReadFile(args[1]) //nolint:gosec // path comes from CLI argument
	if err != nil {
		return fmt.Errorf("reading %s: %w", args[1], err)
	}

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	person, err := a.engine.Store().FindPersonByName(ctx, args[0])
	if err != nil {
		if errors.Is(err, identity.ErrPersonNotFound) {
			return fmt.Errorf("person %q does not exist", args[0])
		}
		return err
	}

	result, err := a.engine.Verify(ctx, person.ID, data, mustGetFloat64(cmd, "threshold"))
	if err != nil {
		return fmt.Errorf("verification failed: %w", err)
	}

	fmt.Printf("Person: %s (%s)\n", person.Name, person.ID)
	fmt.Printf("Probe quality: %.2f (%s)\n", result.Quality.Score, result.Quality.Band)
	fmt.Printf("Best score: %.4f\n", result.Score)
	if result.Verified {
		fmt.Println("Result: VERIFIED")
	} else {
		fmt.Println("Result: NOT VERIFIED")
	}

	return nil
}
